// Package cache holds the storage contracts shared by the result cache tiers.
package cache

import (
	"context"
	"time"
)

// Store is a remote byte store with per-key TTL. redisstore.Client implements it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}
