package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/procurement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockOutboxRepository is a testify mock of shared.OutboxRepository
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	return m.Called(ctx, entries).Error(0)
}

func (m *MockOutboxRepository) FindPending(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*shared.OutboxEntry), args.Error(1)
}

func (m *MockOutboxRepository) FindRetryable(ctx context.Context, before time.Time, limit int) ([]*shared.OutboxEntry, error) {
	args := m.Called(ctx, before, limit)
	return args.Get(0).([]*shared.OutboxEntry), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]*shared.OutboxEntry), args.Error(1)
}

func (m *MockOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockOutboxRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[shared.OutboxStatus]int64), args.Error(1)
}

func (m *MockOutboxRepository) FindDead(ctx context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	args := m.Called(ctx, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*shared.OutboxEntry), args.Get(1).(int64), args.Error(2)
}

func (m *MockOutboxRepository) FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.OutboxEntry), args.Error(1)
}

type stubEvent struct {
	shared.BaseDomainEvent
}

func deadEntry() *shared.OutboxEntry {
	event := &stubEvent{BaseDomainEvent: shared.NewBaseDomainEvent("ReceiptPosted", "PurchaseOrder", uuid.New())}
	entry := shared.NewOutboxEntry(event, []byte(`{}`))
	entry.Status = shared.OutboxStatusDead
	entry.RetryCount = entry.MaxRetries
	entry.LastError = "handler failed"
	return entry
}

func TestOutboxService_GetDeadLetterEntries(t *testing.T) {
	ctx := context.Background()

	t.Run("clamps paging and computes pages", func(t *testing.T) {
		repo := new(MockOutboxRepository)
		svc := NewOutboxService(repo, nil)
		entries := []*shared.OutboxEntry{deadEntry(), deadEntry()}
		repo.On("FindDead", ctx, 1, 100).Return(entries, int64(201), nil).Once()

		result, err := svc.GetDeadLetterEntries(ctx, OutboxFilter{Page: 0, PageSize: 500})
		require.NoError(t, err)

		assert.Equal(t, 1, result.Page)
		assert.Equal(t, 100, result.PageSize)
		assert.Equal(t, 3, result.TotalPages)
		require.Len(t, result.Entries, 2)
		assert.Equal(t, "DEAD", result.Entries[0].Status)
		assert.Equal(t, "handler failed", result.Entries[0].LastError)
		repo.AssertExpectations(t)
	})

	t.Run("defaults the page size", func(t *testing.T) {
		repo := new(MockOutboxRepository)
		svc := NewOutboxService(repo, nil)
		repo.On("FindDead", ctx, 2, 20).Return([]*shared.OutboxEntry{}, int64(0), nil).Once()

		result, err := svc.GetDeadLetterEntries(ctx, OutboxFilter{Page: 2})
		require.NoError(t, err)
		assert.Empty(t, result.Entries)
		assert.Equal(t, 0, result.TotalPages)
	})

	t.Run("wraps repository failures", func(t *testing.T) {
		repo := new(MockOutboxRepository)
		svc := NewOutboxService(repo, nil)
		boom := errors.New("db down")
		repo.On("FindDead", ctx, 1, 20).Return(nil, int64(0), boom).Once()

		_, err := svc.GetDeadLetterEntries(ctx, OutboxFilter{})
		assert.ErrorIs(t, err, boom)
	})
}

func TestOutboxService_GetEntry(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOutboxRepository)
	svc := NewOutboxService(repo, nil)

	entry := deadEntry()
	missing := uuid.New()
	repo.On("FindByID", ctx, entry.ID).Return(entry, nil)
	repo.On("FindByID", ctx, missing).Return(nil, shared.ErrNotFound)

	dto, err := svc.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.EventID, dto.EventID)
	assert.Equal(t, "ReceiptPosted", dto.EventType)

	_, err = svc.GetEntry(ctx, missing)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestOutboxService_RetryDeadEntry(t *testing.T) {
	ctx := context.Background()

	t.Run("resets a dead entry to pending", func(t *testing.T) {
		repo := new(MockOutboxRepository)
		svc := NewOutboxService(repo, nil)
		entry := deadEntry()
		repo.On("FindByID", ctx, entry.ID).Return(entry, nil)
		repo.On("Update", ctx, mock.MatchedBy(func(e *shared.OutboxEntry) bool {
			return e.ID == entry.ID && e.Status == shared.OutboxStatusPending && e.RetryCount == 0
		})).Return(nil).Once()

		dto, err := svc.RetryDeadEntry(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, "PENDING", dto.Status)
		assert.Empty(t, dto.LastError)
		repo.AssertExpectations(t)
	})

	t.Run("refuses an entry that is not dead", func(t *testing.T) {
		repo := new(MockOutboxRepository)
		svc := NewOutboxService(repo, nil)
		entry := deadEntry()
		entry.Status = shared.OutboxStatusSent
		repo.On("FindByID", ctx, entry.ID).Return(entry, nil)

		_, err := svc.RetryDeadEntry(ctx, entry.ID)
		assert.ErrorIs(t, err, shared.ErrInvalidState)
		repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})
}

func TestOutboxService_RetryAllDeadEntries(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOutboxRepository)
	svc := NewOutboxService(repo, nil)

	batch := []*shared.OutboxEntry{deadEntry(), deadEntry(), deadEntry()}
	repo.On("FindDead", ctx, 1, 100).Return(batch, int64(3), nil).Once()
	repo.On("FindDead", ctx, 1, 100).Return([]*shared.OutboxEntry{}, int64(0), nil).Once()
	repo.On("Update", ctx, mock.AnythingOfType("*shared.OutboxEntry")).Return(nil).Times(3)

	count, err := svc.RetryAllDeadEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	for _, entry := range batch {
		assert.Equal(t, shared.OutboxStatusPending, entry.Status)
	}
	repo.AssertExpectations(t)
}

func TestOutboxService_GetStats(t *testing.T) {
	ctx := context.Background()
	repo := new(MockOutboxRepository)
	svc := NewOutboxService(repo, nil)

	repo.On("CountByStatus", ctx).Return(map[shared.OutboxStatus]int64{
		shared.OutboxStatusPending: 4,
		shared.OutboxStatusSent:    10,
		shared.OutboxStatusDead:    1,
	}, nil)

	stats, err := svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Pending)
	assert.Equal(t, int64(10), stats.Sent)
	assert.Equal(t, int64(1), stats.Dead)
	assert.Equal(t, int64(0), stats.Failed)
	assert.Equal(t, int64(15), stats.Total)
}

var _ shared.OutboxRepository = (*MockOutboxRepository)(nil)
