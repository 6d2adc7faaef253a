package models

import (
	"encoding/json"
	"time"

	"github.com/erp/procurement/internal/domain/procurement"
	"github.com/erp/procurement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseOrderModel is the persistence model for the Order aggregate root.
type PurchaseOrderModel struct {
	AggregateModel
	OrderNumber       string                  `gorm:"type:varchar(50);not null;uniqueIndex"`
	SupplierReference string                  `gorm:"type:varchar(100);not null;index"`
	IssueDate         time.Time               `gorm:"not null"`
	ExpectedDate      *time.Time              `gorm:"index"`
	Status            procurement.OrderStatus `gorm:"type:varchar(30);not null;default:'DRAFT';index"`
	ReceiptCount      int                     `gorm:"not null;default:0"`
	ApprovedAt        *time.Time
	CancelledAt       *time.Time
	ClosedAt          *time.Time
	CloseReason       string           `gorm:"type:varchar(500)"`
	Lines             []OrderLineModel `gorm:"foreignKey:OrderID;references:ID"`
}

// TableName returns the table name for GORM
func (PurchaseOrderModel) TableName() string {
	return "purchase_orders"
}

// ToDomain converts the persistence model to a domain Order.
// Lines must be preloaded in line number order.
func (m *PurchaseOrderModel) ToDomain() *procurement.Order {
	order := &procurement.Order{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		OrderNumber:       m.OrderNumber,
		SupplierReference: m.SupplierReference,
		IssueDate:         m.IssueDate,
		ExpectedDate:      m.ExpectedDate,
		Status:            m.Status,
		ReceiptCount:      m.ReceiptCount,
		ApprovedAt:        m.ApprovedAt,
		CancelledAt:       m.CancelledAt,
		ClosedAt:          m.ClosedAt,
		CloseReason:       m.CloseReason,
		Lines:             make([]procurement.OrderLine, len(m.Lines)),
	}
	for i := range m.Lines {
		order.Lines[i] = m.Lines[i].ToDomain()
	}
	return order
}

// FromDomain populates the persistence model from a domain Order
func (m *PurchaseOrderModel) FromDomain(o *procurement.Order) {
	m.FromDomainAggregateRoot(o.BaseAggregateRoot)
	m.OrderNumber = o.OrderNumber
	m.SupplierReference = o.SupplierReference
	m.IssueDate = o.IssueDate
	m.ExpectedDate = o.ExpectedDate
	m.Status = o.Status
	m.ReceiptCount = o.ReceiptCount
	m.ApprovedAt = o.ApprovedAt
	m.CancelledAt = o.CancelledAt
	m.ClosedAt = o.ClosedAt
	m.CloseReason = o.CloseReason

	m.Lines = make([]OrderLineModel, len(o.Lines))
	for i := range o.Lines {
		m.Lines[i] = *OrderLineModelFromDomain(&o.Lines[i], o.CreatedAt, o.UpdatedAt)
	}
}

// PurchaseOrderModelFromDomain creates a new persistence model from a domain Order
func PurchaseOrderModelFromDomain(o *procurement.Order) *PurchaseOrderModel {
	m := &PurchaseOrderModel{}
	m.FromDomain(o)
	return m
}

// OrderLineModel is the persistence model for an order line. ReceivedQuantity
// is the cached receipt log total for the line.
type OrderLineModel struct {
	ID               uuid.UUID       `gorm:"type:uuid;primary_key"`
	OrderID          uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_order_lines_number,priority:1"`
	LineNumber       int             `gorm:"not null;uniqueIndex:idx_order_lines_number,priority:2"`
	ItemReference    string          `gorm:"type:varchar(100);not null"`
	Description      string          `gorm:"type:varchar(500)"`
	OrderedQuantity  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitPrice        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ReceivedQuantity decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	CreatedAt        time.Time       `gorm:"not null"`
	UpdatedAt        time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderLineModel) TableName() string {
	return "purchase_order_lines"
}

// ToDomain converts the persistence model to a domain OrderLine
func (m *OrderLineModel) ToDomain() procurement.OrderLine {
	return procurement.OrderLine{
		ID:               m.ID,
		OrderID:          m.OrderID,
		LineNumber:       m.LineNumber,
		ItemReference:    m.ItemReference,
		Description:      m.Description,
		OrderedQuantity:  m.OrderedQuantity,
		UnitPrice:        m.UnitPrice,
		ReceivedQuantity: m.ReceivedQuantity,
	}
}

// OrderLineModelFromDomain creates a line model. Lines have no timestamps of
// their own in the domain, so the order's are used.
func OrderLineModelFromDomain(l *procurement.OrderLine, createdAt, updatedAt time.Time) *OrderLineModel {
	return &OrderLineModel{
		ID:               l.ID,
		OrderID:          l.OrderID,
		LineNumber:       l.LineNumber,
		ItemReference:    l.ItemReference,
		Description:      l.Description,
		OrderedQuantity:  l.OrderedQuantity,
		UnitPrice:        l.UnitPrice,
		ReceivedQuantity: l.ReceivedQuantity,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}
}

// ReceiptModel is the persistence model for an append-only receipt.
// (order_id, idempotency_key) is unique so concurrent retries of one
// submission can insert at most once; reverses_receipt_id is unique so a
// receipt is reversed at most once.
type ReceiptModel struct {
	BaseModel
	OrderID           uuid.UUID                 `gorm:"type:uuid;not null;uniqueIndex:idx_receipts_order_key,priority:1;uniqueIndex:idx_receipts_order_seq,priority:1"`
	Sequence          int                       `gorm:"not null;uniqueIndex:idx_receipts_order_seq,priority:2"`
	ReceiptNumber     string                    `gorm:"type:varchar(80);not null"`
	IdempotencyKey    string                    `gorm:"type:varchar(128);not null;uniqueIndex:idx_receipts_order_key,priority:2"`
	Kind              procurement.ReceiptKind   `gorm:"type:varchar(20);not null"`
	ReversesReceiptID *uuid.UUID                `gorm:"type:uuid;uniqueIndex"`
	ReceivedAt        time.Time                 `gorm:"not null"`
	Note              string                    `gorm:"type:varchar(500)"`
	Status            procurement.ReceiptStatus `gorm:"type:varchar(30);not null"`
	Result            []byte                    `gorm:"type:jsonb"`
	Lines             []ReceiptLineModel        `gorm:"foreignKey:ReceiptID;references:ID"`
}

// TableName returns the table name for GORM
func (ReceiptModel) TableName() string {
	return "receipts"
}

// ToDomain converts the persistence model to a domain Receipt
func (m *ReceiptModel) ToDomain() (*procurement.Receipt, error) {
	receipt := &procurement.Receipt{
		BaseEntity:        shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		OrderID:           m.OrderID,
		Sequence:          m.Sequence,
		ReceiptNumber:     m.ReceiptNumber,
		IdempotencyKey:    m.IdempotencyKey,
		Kind:              m.Kind,
		ReversesReceiptID: m.ReversesReceiptID,
		ReceivedAt:        m.ReceivedAt,
		Note:              m.Note,
		Status:            m.Status,
		Lines:             make([]procurement.ReceiptLine, len(m.Lines)),
	}
	for i, l := range m.Lines {
		receipt.Lines[i] = procurement.ReceiptLine{
			ID:          l.ID,
			ReceiptID:   l.ReceiptID,
			OrderLineID: l.OrderLineID,
			Quantity:    l.Quantity,
			Note:        l.Note,
		}
	}
	if len(m.Result) > 0 {
		var result procurement.ReceiptResult
		if err := json.Unmarshal(m.Result, &result); err != nil {
			return nil, err
		}
		receipt.Result = &result
	}
	return receipt, nil
}

// ReceiptModelFromDomain creates a new persistence model from a domain Receipt
func ReceiptModelFromDomain(r *procurement.Receipt) (*ReceiptModel, error) {
	m := &ReceiptModel{
		OrderID:           r.OrderID,
		Sequence:          r.Sequence,
		ReceiptNumber:     r.ReceiptNumber,
		IdempotencyKey:    r.IdempotencyKey,
		Kind:              r.Kind,
		ReversesReceiptID: r.ReversesReceiptID,
		ReceivedAt:        r.ReceivedAt,
		Note:              r.Note,
		Status:            r.Status,
		Lines:             make([]ReceiptLineModel, len(r.Lines)),
	}
	m.FromDomainBaseEntity(r.BaseEntity)
	for i, l := range r.Lines {
		m.Lines[i] = ReceiptLineModel{
			ID:          l.ID,
			ReceiptID:   r.ID,
			Position:    i + 1,
			OrderID:     r.OrderID,
			OrderLineID: l.OrderLineID,
			Quantity:    l.Quantity,
			Note:        l.Note,
			CreatedAt:   r.CreatedAt,
		}
	}
	if r.Result != nil {
		payload, err := json.Marshal(r.Result)
		if err != nil {
			return nil, err
		}
		m.Result = payload
	}
	return m, nil
}

// ReceiptLineModel is one signed quantity in the receipt log. OrderID is
// denormalised so per-line totals are a single grouped scan.
type ReceiptLineModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key"`
	ReceiptID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	Position    int             `gorm:"not null;default:0"`
	OrderID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_receipt_lines_order_line,priority:1"`
	OrderLineID uuid.UUID       `gorm:"type:uuid;not null;index:idx_receipt_lines_order_line,priority:2"`
	Quantity    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Note        string          `gorm:"type:varchar(500)"`
	CreatedAt   time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReceiptLineModel) TableName() string {
	return "receipt_lines"
}
