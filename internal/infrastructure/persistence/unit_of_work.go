package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/procurement/internal/domain/procurement"
	"github.com/erp/procurement/internal/domain/shared"
	"github.com/erp/procurement/internal/infrastructure/logger"
	"github.com/erp/procurement/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormUnitOfWork implements procurement.UnitOfWork using GORM transactions.
// Repositories handed to the callback share the transaction, and domain
// events saved through it land in the outbox atomically with the writes.
type GormUnitOfWork struct {
	db     *gorm.DB
	events shared.OutboxEventSaver
}

// NewGormUnitOfWork creates a new GormUnitOfWork. events may be nil, in which
// case SaveEvents is a no-op.
func NewGormUnitOfWork(db *gorm.DB, events shared.OutboxEventSaver) *GormUnitOfWork {
	return &GormUnitOfWork{db: db, events: events}
}

// Execute runs fn within a database transaction.
// If fn returns an error, the transaction is rolled back.
// If fn succeeds, the transaction is committed. Serialization failures,
// deadlocks and lock timeouts, including those raised at commit, are
// reported as shared.ErrConcurrencyConflict so the caller retries.
func (u *GormUnitOfWork) Execute(ctx context.Context, fn func(ctx context.Context, tx procurement.Transaction) error) error {
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &gormTransaction{tx: tx, events: u.events})
	})
	if err == nil || errors.Is(err, shared.ErrConcurrencyConflict) {
		return err
	}
	if code, ok := logger.IsConflictError(err); ok {
		return fmt.Errorf("transaction aborted (SQLSTATE %s): %w: %w", code, shared.ErrConcurrencyConflict, err)
	}
	return err
}

// gormTransaction provides access to all repositories within a transaction.
type gormTransaction struct {
	tx     *gorm.DB
	events shared.OutboxEventSaver
}

// Orders returns the order repository scoped to the current transaction.
func (t *gormTransaction) Orders() procurement.OrderRepository {
	return NewGormOrderRepository(t.tx)
}

// Receipts returns the receipt repository scoped to the current transaction.
func (t *gormTransaction) Receipts() procurement.ReceiptRepository {
	return NewGormReceiptRepository(t.tx)
}

// SaveEvents writes events to the outbox inside the current transaction.
func (t *gormTransaction) SaveEvents(ctx context.Context, events ...shared.DomainEvent) error {
	if t.events == nil || len(events) == 0 {
		return nil
	}
	return t.events.SaveEvents(ctx, t.tx, events...)
}

func allModels() []any {
	return []any{
		&models.PurchaseOrderModel{},
		&models.OrderLineModel{},
		&models.ReceiptModel{},
		&models.ReceiptLineModel{},
		&models.OutboxEntryModel{},
	}
}

// Ensure GormUnitOfWork implements procurement.UnitOfWork
var _ procurement.UnitOfWork = (*GormUnitOfWork)(nil)

// Ensure gormTransaction implements procurement.Transaction
var _ procurement.Transaction = (*gormTransaction)(nil)
