// Package cache holds short-lived derived values such as analytics snapshots.
// Values are opaque bytes; callers own serialization.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	// Get returns (nil, false, nil) on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}
