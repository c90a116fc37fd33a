// Package cache holds the Redis-backed payment history cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/scholarstream/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "payments:history:"
	versionPrefix = "payments:history-version:"
)

// HistoryCache stores each payer's ledger entries as one JSON value under a
// versioned key. Invalidate bumps the payer's version, so a list read from the
// ledger before the bump and written after it lands on a key no Get reads.
type HistoryCache struct {
	client redis.Cmdable
}

func NewHistoryCache(client redis.Cmdable) *HistoryCache {
	return &HistoryCache{client: client}
}

// Connect dials addr and checks it answers.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func key(email string, version int64) string {
	return fmt.Sprintf("%s%s:v%d", keyPrefix, email, version)
}

func versionKey(email string) string {
	return versionPrefix + email
}

func (c *HistoryCache) version(ctx context.Context, email string) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(email)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get version: %w", err)
	}
	return v, nil
}

// Get returns the cached list, or on a miss the version a following Set
// must be given.
func (c *HistoryCache) Get(ctx context.Context, email string) ([]*models.Payment, int64, bool, error) {
	version, err := c.version(ctx, email)
	if err != nil {
		return nil, 0, false, err
	}

	data, err := c.client.Get(ctx, key(email, version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, version, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("redis get: %w", err)
	}

	var list []*models.Payment
	if err := json.Unmarshal(data, &list); err != nil {
		// A value we cannot read is a miss; the next Set replaces it.
		return nil, version, false, nil
	}
	return list, version, true, nil
}

func (c *HistoryCache) Set(ctx context.Context, email string, version int64, payments []*models.Payment, ttl time.Duration) error {
	data, err := json.Marshal(payments)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := c.client.Set(ctx, key(email, version), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *HistoryCache) Invalidate(ctx context.Context, email string) error {
	next, err := c.client.Incr(ctx, versionKey(email)).Result()
	if err != nil {
		return fmt.Errorf("redis incr version: %w", err)
	}
	if err := c.client.Del(ctx, key(email, next-1)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
