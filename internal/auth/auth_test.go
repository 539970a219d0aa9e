package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"valid", "Bearer abc", "abc", nil},
		{"lowercase scheme", "bearer abc", "abc", nil},
		{"surrounding spaces", "Bearer   abc  ", "abc", nil},
		{"missing", "", "", ErrMissingToken},
		{"wrong scheme", "Basic abc", "", ErrMalformed},
		{"scheme only", "Bearer ", "", ErrMissingToken},
		{"short", "Bear", "", ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := ExtractBearerToken(r)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("token = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	if !Equal("secret", "secret") {
		t.Error("equal values did not match")
	}
	for _, tc := range [][2]string{{"secret", "secreT"}, {"secret", "secret2"}, {"", ""}, {"", "secret"}, {"secret", ""}} {
		if Equal(tc[0], tc[1]) {
			t.Errorf("Equal(%q, %q) = true", tc[0], tc[1])
		}
	}
}

func TestAuthenticate(t *testing.T) {
	r := httptest.NewRequest("POST", "/newuser", nil)
	r.Header.Set("Authorization", "Bearer api-secret")

	p, err := Authenticate(r, "api-secret")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if _, err := uuid.Parse(p.RequestID); err != nil {
		t.Errorf("RequestID %q is not a uuid: %v", p.RequestID, err)
	}

	ctx := WithPrincipal(context.Background(), p)
	got, ok := PrincipalFromContext(ctx)
	if !ok || got != p {
		t.Error("principal did not round-trip through context")
	}

	r.Header.Set("Authorization", "Bearer wrong")
	if _, err := Authenticate(r, "api-secret"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}
