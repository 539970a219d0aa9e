package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "eventsub:delivery:"

// Redis is a Ledger backed by SET NX keys that expire after the TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis returns a ledger over an existing client.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// DialRedis connects to the server at url (redis://[:password@]host:port/db)
// and checks it answers.
func DialRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, ttl), nil
}

func (l *Redis) Claim(ctx context.Context, messageID string, digest []byte) (Outcome, error) {
	key := redisKeyPrefix + messageID
	value := hex.EncodeToString(digest)

	ok, err := l.client.SetNX(ctx, key, value, l.ttl).Result()
	if err != nil {
		return Fresh, fmt.Errorf("claim %q: %w", messageID, err)
	}
	if ok {
		return Fresh, nil
	}

	held, err := l.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return Fresh, fmt.Errorf("claim for %q vanished", messageID)
	}
	if err != nil {
		return Fresh, fmt.Errorf("read claim %q: %w", messageID, err)
	}
	return compareDigest(held, digest), nil
}

func (l *Redis) Release(ctx context.Context, messageID string) error {
	if err := l.client.Del(ctx, redisKeyPrefix+messageID).Err(); err != nil {
		return fmt.Errorf("release claim %q: %w", messageID, err)
	}
	return nil
}

func (l *Redis) Close() error {
	return l.client.Close()
}
