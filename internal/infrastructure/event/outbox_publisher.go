package event

import (
	"context"
	"fmt"

	"github.com/erp/procurement/internal/domain/shared"
	"gorm.io/gorm"
)

// OutboxPublisher writes domain events to the outbox inside the caller's transaction
type OutboxPublisher struct {
	serializer *EventSerializer
	maxRetries int
}

// NewOutboxPublisher creates a new outbox publisher
func NewOutboxPublisher(serializer *EventSerializer) *OutboxPublisher {
	return &OutboxPublisher{
		serializer: serializer,
		maxRetries: shared.DefaultMaxRetries,
	}
}

// SetMaxRetries sets the delivery attempts new entries get before dead-lettering
func (p *OutboxPublisher) SetMaxRetries(n int) {
	if n > 0 {
		p.maxRetries = n
	}
}

// PublishWithTx serializes events and inserts them through tx, so they commit
// or roll back together with the order change that raised them
func (p *OutboxPublisher) PublishWithTx(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	entries := make([]*shared.OutboxEntry, 0, len(events))
	for _, event := range events {
		payload, err := p.serializer.Serialize(event)
		if err != nil {
			return fmt.Errorf("serialize %s: %w", event.EventType(), err)
		}
		entry := shared.NewOutboxEntry(event, payload)
		entry.MaxRetries = p.maxRetries
		entries = append(entries, entry)
	}

	return NewGormOutboxRepository(tx).Save(ctx, entries...)
}

// SaveEvents implements shared.OutboxEventSaver
func (p *OutboxPublisher) SaveEvents(ctx context.Context, txProvider any, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, ok := txProvider.(*gorm.DB)
	if !ok {
		return fmt.Errorf("txProvider must be a *gorm.DB, got %T", txProvider)
	}

	return p.PublishWithTx(ctx, tx, events...)
}

// Ensure OutboxPublisher implements OutboxEventSaver
var _ shared.OutboxEventSaver = (*OutboxPublisher)(nil)
