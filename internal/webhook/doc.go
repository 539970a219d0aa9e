// Package webhook implements the Twitch EventSub webhook endpoint with
// HMAC-SHA256 verification.
//
// Twitch signs every delivery with the secret supplied when the subscription
// was created. The signature covers the message id, the timestamp and the raw
// body:
//
//	Twitch-Eventsub-Message-Signature: sha256=hex(HMAC-SHA256(secret, id || timestamp || body))
//
// # Security Model
//
// - Signatures verified over the exact bytes read from the connection using crypto/subtle
// - No JSON is parsed before the signature passes
// - With max_message_age set, signed timestamps outside it are rejected as replays
// - No signature details leaked in error responses (always generic 403)
// - Request logging excludes payloads and signatures
//
// # Request Flow
//
//  1. Content-Type must be application/json (415 otherwise)
//  2. Body size checked (413 if too large)
//  3. Message id, timestamp and signature headers extracted (403 if missing)
//  4. HMAC-SHA256 verified in constant time (403 if mismatch)
//  5. Timestamp checked against the replay window (403 if stale)
//  6. Message type classified; unknown types are acknowledged with 204
//  7. Body parsed (400 if malformed)
//  8. Route:
//     - webhook_callback_verification: 200 with the challenge as text/plain
//     - notification: optional ledger claim, dispatch, 204 (500 on dispatch failure)
//     - revocation: logged, 204
//
// # Duplicate Suppression
//
// When a Ledger is configured, a notification whose message id was already
// claimed is acknowledged with 204 and not dispatched again. A failed
// dispatch releases its claim so Twitch's retry goes through. Ledger errors
// fail open.
//
// # Example Usage
//
//	cfg, _ := webhook.FromGlobalConfig(globalConfig)
//	d := dispatch.New(dispatch.Config{}, lookup, sink, logger, nil)
//	endpoint := webhook.New(cfg, d, nil, hub, nil, logger)
//	router.Method(http.MethodPost, "/eventsub", endpoint)
package webhook
