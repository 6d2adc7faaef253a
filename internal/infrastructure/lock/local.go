// Package lock provides order-scoped mutual exclusion for the reconciliation
// service, in process or across instances through Redis.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/procurement/internal/domain/shared"
	"github.com/google/uuid"
)

// DefaultWaitTimeout bounds how long a caller queues for an order lock
const DefaultWaitTimeout = 5 * time.Second

// orderSlot is a one-token semaphore shared by everyone waiting on an order
type orderSlot struct {
	token   chan struct{}
	waiters int
}

// LocalOrderLocker serializes mutations of the same order within one process.
// Slots are dropped once nobody holds or waits for them.
type LocalOrderLocker struct {
	mu          sync.Mutex
	slots       map[uuid.UUID]*orderSlot
	waitTimeout time.Duration
}

// NewLocalOrderLocker creates a new in-process order locker
func NewLocalOrderLocker(waitTimeout time.Duration) *LocalOrderLocker {
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}
	return &LocalOrderLocker{
		slots:       make(map[uuid.UUID]*orderSlot),
		waitTimeout: waitTimeout,
	}
}

// Acquire blocks until the order is free, the wait timeout passes or ctx is
// done. A timeout is reported as a concurrency conflict.
func (l *LocalOrderLocker) Acquire(ctx context.Context, orderID uuid.UUID) (func(), error) {
	slot := l.join(orderID)

	timer := time.NewTimer(l.waitTimeout)
	defer timer.Stop()

	select {
	case slot.token <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.token
				l.leave(orderID, slot)
			})
		}, nil
	case <-timer.C:
		l.leave(orderID, slot)
		return nil, fmt.Errorf("order %s still locked after %s: %w", orderID, l.waitTimeout, shared.ErrConcurrencyConflict)
	case <-ctx.Done():
		l.leave(orderID, slot)
		return nil, ctx.Err()
	}
}

func (l *LocalOrderLocker) join(orderID uuid.UUID) *orderSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[orderID]
	if !ok {
		slot = &orderSlot{token: make(chan struct{}, 1)}
		l.slots[orderID] = slot
	}
	slot.waiters++
	return slot
}

func (l *LocalOrderLocker) leave(orderID uuid.UUID, slot *orderSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot.waiters--
	if slot.waiters == 0 {
		delete(l.slots, orderID)
	}
}

// held returns the number of orders with a holder or waiter
func (l *LocalOrderLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
