package procurement

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/erp/procurement/internal/domain/procurement"
	"github.com/erp/procurement/internal/domain/shared"
	"github.com/google/uuid"
)

// RetryPolicy bounds how often a conflicting order mutation is re-attempted.
// Every attempt starts a fresh transaction and re-reads the order.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     200 * time.Millisecond,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// run calls op until it succeeds, fails with anything other than a
// concurrency conflict, or the attempts are used up. Exhaustion is reported
// as a CONCURRENCY_CONFLICT rejection for orderID.
func (p RetryPolicy) run(ctx context.Context, orderID uuid.UUID, onRetry func(attempt int, err error), op func(ctx context.Context, attempt int) error) error {
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := op(ctx, attempt)
		if err == nil || errors.Is(err, shared.ErrConcurrencyConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, p.backOff(ctx), func(err error, _ time.Duration) {
		if onRetry != nil {
			onRetry(attempt, err)
		}
	})
	if err != nil && errors.Is(err, shared.ErrConcurrencyConflict) {
		return procurement.NewConcurrencyConflict(orderID, attempt)
	}
	return err
}
