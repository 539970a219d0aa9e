package webhook

import (
	"context"
	"errors"
	"time"

	"github.com/mmattdonk/solrock-eventsub/internal/dispatch"
	"github.com/mmattdonk/solrock-eventsub/internal/eventsub"
	"github.com/mmattdonk/solrock-eventsub/internal/ledger"
)

// Dispatcher handles a parsed notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, n eventsub.Notification) (dispatch.Result, error)
}

// Ledger suppresses redelivered notifications. A nil Ledger disables
// suppression.
type Ledger interface {
	Claim(ctx context.Context, messageID string, digest []byte) (ledger.Outcome, error)
	Release(ctx context.Context, messageID string) error
}

// Config holds webhook endpoint configuration.
type Config struct {
	// Secret is the EventSub subscription secret shared with Twitch.
	Secret []byte

	// MaxBodySize is the maximum allowed request body size in bytes (default: 1MB)
	MaxBodySize int64

	// MaxMessageAge rejects deliveries whose Twitch-Eventsub-Message-Timestamp
	// is further than this from now. 0 disables the check.
	MaxMessageAge time.Duration
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

var (
	// ErrSignatureMismatch covers a missing header or a signature that does
	// not match. Callers never learn which.
	ErrSignatureMismatch = errors.New("webhook signature verification failed")
	// ErrStaleMessage means the signed timestamp is outside MaxMessageAge.
	ErrStaleMessage = errors.New("webhook message timestamp outside replay window")
)

// Default values
const (
	DefaultMaxBodySize = 1048576 // 1 MB
)
