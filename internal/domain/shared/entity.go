package shared

import (
	"time"

	"github.com/google/uuid"
)

// Now returns the current time in UTC at microsecond precision, the
// resolution PostgreSQL stores. Domain timestamps read back from storage then
// compare equal to the ones written, which replayed receipt results rely on.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Entity is anything identified by a UUID that carries audit timestamps
type Entity interface {
	GetID() uuid.UUID
	GetCreatedAt() time.Time
	GetUpdatedAt() time.Time
}

// BaseEntity holds the identity and audit timestamps shared by orders and receipts
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e *BaseEntity) GetID() uuid.UUID {
	return e.ID
}

func (e *BaseEntity) GetCreatedAt() time.Time {
	return e.CreatedAt
}

func (e *BaseEntity) GetUpdatedAt() time.Time {
	return e.UpdatedAt
}

// Touch records a modification. Receipts are append-only and never touched.
func (e *BaseEntity) Touch() {
	e.UpdatedAt = Now()
}

// NewBaseEntity creates an entity with a fresh ID, created and updated now
func NewBaseEntity() BaseEntity {
	now := Now()
	return BaseEntity{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
