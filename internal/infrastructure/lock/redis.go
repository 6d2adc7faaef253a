package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/erp/procurement/internal/domain/shared"
	"github.com/erp/procurement/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultLockTTL is how long a Redis order lock lives if its holder dies
const DefaultLockTTL = 30 * time.Second

const retryInterval = 50 * time.Millisecond

// RedisOrderLocker serializes mutations of the same order across instances
// with a Redis lock keyed by order ID
type RedisOrderLocker struct {
	client      *redislock.Client
	keyPrefix   string
	ttl         time.Duration
	waitTimeout time.Duration
	logger      *zap.Logger
}

// NewRedisOrderLocker creates a locker on an existing Redis client
func NewRedisOrderLocker(client redislock.RedisClient, ttl, waitTimeout time.Duration, logger *zap.Logger) *RedisOrderLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisOrderLocker{
		client:      redislock.New(client),
		keyPrefix:   "procurement:lock:order:",
		ttl:         ttl,
		waitTimeout: waitTimeout,
		logger:      logger.Named("order_lock"),
	}
}

// Acquire polls for the lock until the wait timeout. ErrNotObtained becomes a
// concurrency conflict so the caller's retry policy applies.
func (l *RedisOrderLocker) Acquire(ctx context.Context, orderID uuid.UUID) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.waitTimeout)
	defer cancel()

	lock, err := l.client.Obtain(waitCtx, l.keyPrefix+orderID.String(), l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(retryInterval),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) || (errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil) {
			return nil, fmt.Errorf("order %s still locked after %s: %w", orderID, l.waitTimeout, shared.ErrConcurrencyConflict)
		}
		return nil, fmt.Errorf("obtain order lock: %w", err)
	}

	return func() {
		// The holder's context may already be cancelled; release must still reach Redis
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("failed to release order lock",
				logger.OrderID(orderID),
				zap.Error(err),
			)
		}
	}, nil
}
