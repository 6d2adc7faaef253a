package procurement

import (
	"context"

	"github.com/erp/procurement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderFilter narrows order listings
type OrderFilter struct {
	shared.Filter
	Status            *OrderStatus
	SupplierReference string
}

// OrderRepository defines persistence operations for purchase orders
type OrderRepository interface {
	// FindByID loads an order with its lines
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// FindByIDForUpdate loads an order and holds a row lock until the
	// surrounding transaction ends, where the database supports it
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)

	FindByOrderNumber(ctx context.Context, orderNumber string) (*Order, error)
	FindAll(ctx context.Context, filter OrderFilter) ([]Order, error)
	Count(ctx context.Context, filter OrderFilter) (int64, error)
	ExistsByOrderNumber(ctx context.Context, orderNumber string) (bool, error)

	// Create inserts a new order with its lines
	Create(ctx context.Context, order *Order) error

	// SaveWithLock updates the order and its line caches if the stored
	// version still equals order.Version, then increments it. A stale
	// version returns shared.ErrConcurrencyConflict.
	SaveWithLock(ctx context.Context, order *Order) error
}

// ReceiptRepository defines persistence operations for the append-only receipt log
type ReceiptRepository interface {
	// Append inserts a receipt with its lines. A duplicate idempotency key or
	// a second reversal of the same receipt returns shared.ErrConcurrencyConflict.
	Append(ctx context.Context, receipt *Receipt) error

	FindByID(ctx context.Context, id uuid.UUID) (*Receipt, error)
	FindByIdempotencyKey(ctx context.Context, orderID uuid.UUID, key string) (*Receipt, error)

	// FindByOrder returns receipts of an order in posting order
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]Receipt, error)

	// FindReversalOf returns the reversal of a receipt, or shared.ErrNotFound
	FindReversalOf(ctx context.Context, receiptID uuid.UUID) (*Receipt, error)

	// SumReceivedByLine returns the signed receipt total per order line
	SumReceivedByLine(ctx context.Context, orderID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
}

// Transaction exposes repositories bound to a single storage transaction
type Transaction interface {
	Orders() OrderRepository
	Receipts() ReceiptRepository

	// SaveEvents writes domain events to the outbox inside the transaction
	SaveEvents(ctx context.Context, events ...shared.DomainEvent) error
}

// UnitOfWork runs fn in one storage transaction. The transaction commits when
// fn returns nil and rolls back otherwise.
type UnitOfWork interface {
	Execute(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}
