// Package auth checks the shared bearer secret on the admin endpoints.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrMissingToken = errors.New("missing Authorization header")
	ErrMalformed    = errors.New("invalid Authorization header format")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Principal identifies an authenticated admin request in logs.
type Principal struct {
	// RequestID is a fresh id for correlating log lines and hub events of
	// one admin call.
	RequestID string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}

	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrMalformed
	}

	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// Equal compares a presented token against the configured secret in
// constant time. An empty value on either side never matches.
func Equal(presented, secret string) bool {
	if presented == "" || secret == "" {
		return false
	}
	if len(presented) != len(secret) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) == 1
}

// Authenticate checks the request's bearer token against secret.
func Authenticate(r *http.Request, secret string) (Principal, error) {
	token, err := ExtractBearerToken(r)
	if err != nil {
		return Principal{}, err
	}
	if !Equal(token, secret) {
		return Principal{}, ErrInvalidToken
	}
	return Principal{RequestID: uuid.NewString()}, nil
}
