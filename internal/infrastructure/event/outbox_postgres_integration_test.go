//go:build integration

package event

import (
	"context"
	"sync"
	"testing"

	"github.com/erp/procurement/internal/domain/shared"
	"github.com/erp/procurement/internal/infrastructure/persistence"
	"github.com/erp/procurement/internal/infrastructure/persistence/pgtest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxRepository_ConcurrentClaimsOnPostgres(t *testing.T) {
	db, err := persistence.NewDatabase(pgtest.Start(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	repo := NewGormOutboxRepository(db.DB)
	serializer := NewEventSerializer()
	serializer.Register("TestEvent", &testEvent{})

	const total = 20
	ids := make([]uuid.UUID, total)
	for i := range ids {
		entry := newStoredEntry(t, serializer, "TestEvent")
		require.NoError(t, repo.Save(ctx, entry))
		ids[i] = entry.ID
	}

	const processors = 4
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		claims = make(map[uuid.UUID]int)
	)
	for p := 0; p < processors; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := repo.MarkProcessing(ctx, ids)
			assert.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()
			for _, entry := range claimed {
				claims[entry.ID]++
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.LessOrEqual(t, claims[id], 1, "entry %s claimed twice", id)
	}

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(claims)), counts[shared.OutboxStatusProcessing])
}
