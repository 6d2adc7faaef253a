package procurement

import (
	"context"

	"github.com/google/uuid"
)

// OrderLocker serializes mutations of one order across goroutines or
// instances. It is taken before the storage transaction begins. Failing to
// acquire within the locker's timeout returns an error wrapping
// shared.ErrConcurrencyConflict.
type OrderLocker interface {
	Acquire(ctx context.Context, orderID uuid.UUID) (release func(), err error)
}

// NoopOrderLocker relies on the storage layer alone
type NoopOrderLocker struct{}

// Acquire always succeeds immediately
func (NoopOrderLocker) Acquire(context.Context, uuid.UUID) (func(), error) {
	return func() {}, nil
}
