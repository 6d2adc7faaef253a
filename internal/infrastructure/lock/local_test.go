package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/procurement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalOrderLocker_SerializesSameOrder(t *testing.T) {
	locker := NewLocalOrderLocker(time.Second)
	orderID := uuid.New()

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), orderID)
			require.NoError(t, err)
			defer release()

			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
	assert.Equal(t, 0, locker.held())
}

func TestLocalOrderLocker_DifferentOrdersDoNotBlock(t *testing.T) {
	locker := NewLocalOrderLocker(50 * time.Millisecond)

	releaseA, err := locker.Acquire(context.Background(), uuid.New())
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := locker.Acquire(context.Background(), uuid.New())
	require.NoError(t, err)
	releaseB()
}

func TestLocalOrderLocker_TimeoutIsAConflict(t *testing.T) {
	locker := NewLocalOrderLocker(20 * time.Millisecond)
	orderID := uuid.New()

	release, err := locker.Acquire(context.Background(), orderID)
	require.NoError(t, err)

	_, err = locker.Acquire(context.Background(), orderID)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	release()
	release()
	assert.Equal(t, 0, locker.held())

	again, err := locker.Acquire(context.Background(), orderID)
	require.NoError(t, err)
	again()
}

func TestLocalOrderLocker_ContextCancelled(t *testing.T) {
	locker := NewLocalOrderLocker(time.Second)
	orderID := uuid.New()

	release, err := locker.Acquire(context.Background(), orderID)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = locker.Acquire(ctx, orderID)
	assert.ErrorIs(t, err, context.Canceled)
}
