package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers processed event IDs so that subscribers see each
// event at most once per TTL window
type IdempotencyStore interface {
	// MarkProcessed returns true if the ID was newly marked, false if it was already present
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	// Release forgets an event so a later delivery is processed again
	Release(ctx context.Context, eventID string) error
	Close() error
}

// IdempotencyConfig holds configuration for idempotent event handling
type IdempotencyConfig struct {
	TTL     time.Duration
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
