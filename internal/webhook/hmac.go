package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SignaturePrefix precedes the hex HMAC in the Twitch-Eventsub-Message-Signature header.
const SignaturePrefix = "sha256="

// Verify reports whether provided is the signature Twitch computes for a
// delivery: "sha256=" + hex(HMAC-SHA256(secret, messageID || timestamp || rawBody)).
//
// rawBody must be the bytes exactly as received. The comparison runs in
// constant time over the full expected length; a length mismatch, an empty
// secret or an empty signature returns false. Verify never panics on
// attacker-controlled input and has no side effects.
func Verify(secret []byte, messageID, timestamp string, rawBody []byte, provided string) bool {
	if len(secret) == 0 || provided == "" {
		return false
	}

	expected := computeSignature(secret, messageID, timestamp, rawBody)
	if len(provided) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare(expected, []byte(provided)) == 1
}

// Sign returns the header value Twitch would send for this delivery.
func Sign(secret []byte, messageID, timestamp string, rawBody []byte) string {
	return string(computeSignature(secret, messageID, timestamp, rawBody))
}

func computeSignature(secret []byte, messageID, timestamp string, rawBody []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(signedMessage(messageID, timestamp, rawBody))
	sum := mac.Sum(nil)

	out := make([]byte, len(SignaturePrefix)+hex.EncodedLen(len(sum)))
	copy(out, SignaturePrefix)
	hex.Encode(out[len(SignaturePrefix):], sum)
	return out
}

// signedMessage concatenates the HMAC input into a fresh slice so the
// caller's body is never aliased or modified.
func signedMessage(messageID, timestamp string, rawBody []byte) []byte {
	msg := make([]byte, 0, len(messageID)+len(timestamp)+len(rawBody))
	msg = append(msg, messageID...)
	msg = append(msg, timestamp...)
	msg = append(msg, rawBody...)
	return msg
}
