package event

import (
	"testing"
	"time"

	"github.com/erp/procurement/internal/domain/shared"
	"github.com/erp/procurement/internal/infrastructure/config"
	"github.com/erp/procurement/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// testEvent is a minimal domain event for exercising the pipeline
type testEvent struct {
	shared.BaseDomainEvent
	Note string `json:"note,omitempty"`
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New()),
	}
}

// newTestDB opens an in-memory SQLite database with the outbox table
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: "sqlite", SQLitePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.AutoMigrate())
	return db.DB
}

// newStoredEntry builds an outbox entry for eventType with a valid payload
func newStoredEntry(t *testing.T, serializer *EventSerializer, eventType string) *shared.OutboxEntry {
	t.Helper()

	event := newTestEvent(eventType)
	payload, err := serializer.Serialize(event)
	require.NoError(t, err)

	entry := shared.NewOutboxEntry(event, payload)
	entry.CreatedAt = entry.CreatedAt.Add(-time.Minute)
	return entry
}
