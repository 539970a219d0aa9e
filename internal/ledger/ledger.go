// Package ledger suppresses duplicate EventSub deliveries.
//
// Twitch retries a notification until it sees a 2xx, and a retry carries the
// same Twitch-Eventsub-Message-Id. A Ledger records message ids it has
// claimed for a TTL so a redelivery of an event that was already dispatched
// is acknowledged without being dispatched again.
package ledger

import (
	"context"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/mmattdonk/solrock-eventsub/internal/config"
	"github.com/mmattdonk/solrock-eventsub/internal/storage"
)

// Outcome is the result of a Claim.
type Outcome int

const (
	// Fresh means the message id was not held; the caller owns it now.
	Fresh Outcome = iota
	// Duplicate means the message id is held with the same body digest.
	Duplicate
	// Conflict means the message id is held with a different body digest.
	Conflict
)

func (o Outcome) String() string {
	switch o {
	case Fresh:
		return "fresh"
	case Duplicate:
		return "duplicate"
	case Conflict:
		return "conflict"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Ledger records claimed message ids.
type Ledger interface {
	// Claim atomically records messageID with the body digest unless an
	// unexpired claim for it exists.
	Claim(ctx context.Context, messageID string, digest []byte) (Outcome, error)
	// Release drops a claim so a redelivery of messageID is processed.
	Release(ctx context.Context, messageID string) error
	Close() error
}

// Digest returns the blake3 digest of a delivery body.
func Digest(body []byte) []byte {
	sum := blake3.Sum256(body)
	return sum[:]
}

// Open builds the ledger selected by cfg. The none backend returns a nil
// Ledger and no error; callers treat nil as "no duplicate suppression".
func Open(ctx context.Context, cfg config.LedgerConfig) (Ledger, error) {
	switch cfg.Backend {
	case "", config.LedgerNone:
		return nil, nil
	case config.LedgerSQLite:
		db, err := storage.OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		return NewSQLite(db, cfg.TTL), nil
	case config.LedgerRedis:
		l, err := DialRedis(ctx, cfg.RedisURL, cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("open redis ledger: %w", err)
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}
