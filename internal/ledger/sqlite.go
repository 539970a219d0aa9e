package ledger

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// SQLite is a Ledger backed by the eventsub_delivery table.
type SQLite struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLite returns a ledger over db, which must already be bootstrapped
// (see storage.OpenSQLite). The ledger takes ownership of db.
func NewSQLite(db *sql.DB, ttl time.Duration) *SQLite {
	return &SQLite{db: db, ttl: ttl, now: time.Now}
}

func (l *SQLite) Claim(ctx context.Context, messageID string, digest []byte) (Outcome, error) {
	now := l.now().UTC()

	// Expired rows are pruned lazily so a message id becomes claimable again
	// once its TTL passes.
	if _, err := l.db.ExecContext(ctx,
		`DELETE FROM eventsub_delivery WHERE expires_at <= ?;`, now.UnixMilli()); err != nil {
		return Fresh, fmt.Errorf("prune ledger: %w", err)
	}

	res, err := l.db.ExecContext(ctx, `
INSERT INTO eventsub_delivery(message_id, digest, claimed_at, expires_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(message_id) DO NOTHING;`,
		messageID, hex.EncodeToString(digest), now.Format(time.RFC3339Nano), now.Add(l.ttl).UnixMilli())
	if err != nil {
		return Fresh, fmt.Errorf("insert claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Fresh, fmt.Errorf("insert claim: %w", err)
	}
	if n == 1 {
		return Fresh, nil
	}

	var held string
	err = l.db.QueryRowContext(ctx,
		`SELECT digest FROM eventsub_delivery WHERE message_id = ?;`, messageID).Scan(&held)
	if errors.Is(err, sql.ErrNoRows) {
		// Released between the insert and the read; the caller may retry.
		return Fresh, fmt.Errorf("claim for %q vanished", messageID)
	}
	if err != nil {
		return Fresh, fmt.Errorf("read claim: %w", err)
	}
	return compareDigest(held, digest), nil
}

func (l *SQLite) Release(ctx context.Context, messageID string) error {
	if _, err := l.db.ExecContext(ctx,
		`DELETE FROM eventsub_delivery WHERE message_id = ?;`, messageID); err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

func (l *SQLite) Close() error {
	return l.db.Close()
}

func compareDigest(heldHex string, digest []byte) Outcome {
	held, err := hex.DecodeString(heldHex)
	if err != nil || !bytes.Equal(held, digest) {
		return Conflict
	}
	return Duplicate
}
