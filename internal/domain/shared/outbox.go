package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is where an event sits on its way from the order transaction
// that recorded it to the subscribers.
//
//	PENDING -> PROCESSING -> SENT
//	              |
//	              v
//	           FAILED -> PROCESSING ... -> DEAD -> (operator retry) -> PENDING
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

const (
	DefaultMaxRetries = 5

	// DefaultBaseBackoff doubles per failed attempt up to MaxRetryDelay
	DefaultBaseBackoff = time.Second
	MaxRetryDelay      = 5 * time.Minute
)

// ErrOutboxEntryNotDead is returned when an operator retries an entry that
// delivery has not given up on.
var ErrOutboxEntryNotDead = NewDomainError("INVALID_STATE", "can only retry dead letter entries")

// OutboxEntry is one order event written in the same transaction as the
// receipt or status change that raised it. The relay delivers it afterwards,
// at least once.
type OutboxEntry struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	EventType     string
	AggregateID   uuid.UUID
	AggregateType string
	Payload       []byte
	Status        OutboxStatus
	RetryCount    int
	MaxRetries    int
	LastError     string
	NextRetryAt   *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewOutboxEntry(event DomainEvent, payload []byte) *OutboxEntry {
	now := Now()
	return &OutboxEntry{
		ID:            uuid.New(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultMaxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// RetryDelay is the wait before delivery attempt n+1 after n failures
func RetryDelay(failures int) time.Duration {
	if failures < 1 {
		return 0
	}
	delay := DefaultBaseBackoff
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= MaxRetryDelay {
			return MaxRetryDelay
		}
	}
	return delay
}

func (e *OutboxEntry) CanRetry() bool {
	return e.Status == OutboxStatusFailed && e.RetryCount < e.MaxRetries
}

func (e *OutboxEntry) IsDead() bool {
	return e.Status == OutboxStatusDead
}

// Source names the aggregate the event belongs to, e.g. "PurchaseOrder 1f0c..."
func (e *OutboxEntry) Source() string {
	return fmt.Sprintf("%s %s", e.AggregateType, e.AggregateID)
}

func (e *OutboxEntry) MarkSent() {
	now := Now()
	e.Status = OutboxStatusSent
	e.ProcessedAt = &now
	e.UpdatedAt = now
}

// MarkFailed records a failed delivery. Once RetryCount reaches MaxRetries
// the entry is dead and waits for an operator.
func (e *OutboxEntry) MarkFailed(errMsg string) {
	now := Now()
	e.RetryCount++
	e.LastError = errMsg
	e.UpdatedAt = now

	if e.RetryCount >= e.MaxRetries {
		e.Status = OutboxStatusDead
		e.NextRetryAt = nil
		return
	}
	e.Status = OutboxStatusFailed
	next := now.Add(RetryDelay(e.RetryCount))
	e.NextRetryAt = &next
}

// ResetForRetry puts a dead entry back in the pending queue with a fresh
// retry count. Subscribers are idempotent per event ID, so a receipt that
// was in fact delivered before the entry died is not applied twice.
func (e *OutboxEntry) ResetForRetry() error {
	if !e.IsDead() {
		return ErrOutboxEntryNotDead
	}
	e.Status = OutboxStatusPending
	e.RetryCount = 0
	e.LastError = ""
	e.NextRetryAt = nil
	e.UpdatedAt = Now()
	return nil
}

// OutboxRepository stores outbox entries next to the orders they describe
type OutboxRepository interface {
	Save(ctx context.Context, entries ...*OutboxEntry) error
	FindPending(ctx context.Context, limit int) ([]*OutboxEntry, error)
	FindRetryable(ctx context.Context, before time.Time, limit int) ([]*OutboxEntry, error)
	// MarkProcessing claims entries for one relay and returns those it won
	MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*OutboxEntry, error)
	Update(ctx context.Context, entry *OutboxEntry) error
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)

	// FindDead pages through dead letter entries, newest first
	FindDead(ctx context.Context, page, pageSize int) ([]*OutboxEntry, int64, error)
	// FindByID returns ErrNotFound for an unknown entry
	FindByID(ctx context.Context, id uuid.UUID) (*OutboxEntry, error)
}
