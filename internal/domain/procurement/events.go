package procurement

import (
	"github.com/erp/procurement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypeOrder = "PurchaseOrder"

// Event type constants
const (
	EventTypeOrderCreated       = "OrderCreated"
	EventTypeOrderStatusChanged = "OrderStatusChanged"
	EventTypeReceiptPosted      = "ReceiptPosted"
	EventTypeReceiptReversed    = "ReceiptReversed"
)

// OrderCreatedEvent is raised when a draft order is created
type OrderCreatedEvent struct {
	shared.BaseDomainEvent
	OrderID           uuid.UUID `json:"order_id"`
	OrderNumber       string    `json:"order_number"`
	SupplierReference string    `json:"supplier_reference"`
	LineCount         int       `json:"line_count"`
}

// NewOrderCreatedEvent creates a new OrderCreatedEvent
func NewOrderCreatedEvent(order *Order) *OrderCreatedEvent {
	return &OrderCreatedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeOrderCreated, AggregateTypeOrder, order.ID),
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		SupplierReference: order.SupplierReference,
		LineCount:         len(order.Lines),
	}
}

// EventType returns the event type name
func (e *OrderCreatedEvent) EventType() string {
	return EventTypeOrderCreated
}

// OrderStatusChangedEvent is raised whenever an order moves to a new status
type OrderStatusChangedEvent struct {
	shared.BaseDomainEvent
	OrderID     uuid.UUID   `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	From        OrderStatus `json:"from"`
	To          OrderStatus `json:"to"`
	Reason      string      `json:"reason,omitempty"`
}

// NewOrderStatusChangedEvent creates a new OrderStatusChangedEvent
func NewOrderStatusChangedEvent(order *Order, from OrderStatus, reason string) *OrderStatusChangedEvent {
	return &OrderStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderStatusChanged, AggregateTypeOrder, order.ID),
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		From:            from,
		To:              order.Status,
		Reason:          reason,
	}
}

// EventType returns the event type name
func (e *OrderStatusChangedEvent) EventType() string {
	return EventTypeOrderStatusChanged
}

// ReceiptLineInfo represents a receipt line in events
type ReceiptLineInfo struct {
	OrderLineID   uuid.UUID       `json:"order_line_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	TotalReceived decimal.Decimal `json:"total_received"`
	LineStatus    LineStatus      `json:"line_status"`
}

func receiptLineInfos(order *Order, receipt *Receipt) []ReceiptLineInfo {
	infos := make([]ReceiptLineInfo, 0, len(receipt.Lines))
	for _, rl := range receipt.Lines {
		info := ReceiptLineInfo{OrderLineID: rl.OrderLineID, Quantity: rl.Quantity}
		if line, ok := order.Line(rl.OrderLineID); ok {
			info.TotalReceived = line.ReceivedQuantity
			info.LineStatus = line.Status()
		}
		infos = append(infos, info)
	}
	return infos
}

// ReceiptPostedEvent is raised when a standard receipt is accepted
type ReceiptPostedEvent struct {
	shared.BaseDomainEvent
	OrderID       uuid.UUID         `json:"order_id"`
	ReceiptID     uuid.UUID         `json:"receipt_id"`
	ReceiptNumber string            `json:"receipt_number"`
	ReceiptStatus ReceiptStatus     `json:"receipt_status"`
	OrderStatus   OrderStatus       `json:"order_status"`
	Lines         []ReceiptLineInfo `json:"lines"`
}

// NewReceiptPostedEvent creates a new ReceiptPostedEvent
func NewReceiptPostedEvent(order *Order, receipt *Receipt) *ReceiptPostedEvent {
	return &ReceiptPostedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReceiptPosted, AggregateTypeOrder, order.ID),
		OrderID:         order.ID,
		ReceiptID:       receipt.ID,
		ReceiptNumber:   receipt.ReceiptNumber,
		ReceiptStatus:   receipt.Status,
		OrderStatus:     order.Status,
		Lines:           receiptLineInfos(order, receipt),
	}
}

// EventType returns the event type name
func (e *ReceiptPostedEvent) EventType() string {
	return EventTypeReceiptPosted
}

// ReceiptReversedEvent is raised when a compensating reversal is accepted
type ReceiptReversedEvent struct {
	shared.BaseDomainEvent
	OrderID           uuid.UUID         `json:"order_id"`
	ReceiptID         uuid.UUID         `json:"receipt_id"`
	ReversedReceiptID uuid.UUID         `json:"reversed_receipt_id"`
	OrderStatus       OrderStatus       `json:"order_status"`
	Reason            string            `json:"reason"`
	Lines             []ReceiptLineInfo `json:"lines"`
}

// NewReceiptReversedEvent creates a new ReceiptReversedEvent
func NewReceiptReversedEvent(order *Order, reversal *Receipt, reason string) *ReceiptReversedEvent {
	var reversed uuid.UUID
	if reversal.ReversesReceiptID != nil {
		reversed = *reversal.ReversesReceiptID
	}
	return &ReceiptReversedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeReceiptReversed, AggregateTypeOrder, order.ID),
		OrderID:           order.ID,
		ReceiptID:         reversal.ID,
		ReversedReceiptID: reversed,
		OrderStatus:       order.Status,
		Reason:            reason,
		Lines:             receiptLineInfos(order, reversal),
	}
}

// EventType returns the event type name
func (e *ReceiptReversedEvent) EventType() string {
	return EventTypeReceiptReversed
}
