// Package cache holds short-lived byte values keyed by string, in process
// memory or in Redis.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	// Get reports ok=false for missing or expired keys.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
