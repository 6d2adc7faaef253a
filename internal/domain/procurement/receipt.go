package procurement

import (
	"time"

	"github.com/erp/procurement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceiptKind distinguishes ordinary receipts from compensating reversals
type ReceiptKind string

const (
	ReceiptKindStandard ReceiptKind = "STANDARD"
	ReceiptKindReversal ReceiptKind = "REVERSAL"
)

// ReceiptLine is the quantity received against one order line.
// Reversal lines are negative.
type ReceiptLine struct {
	ID          uuid.UUID
	ReceiptID   uuid.UUID
	OrderLineID uuid.UUID
	Quantity    decimal.Decimal
	Note        string
}

// Receipt is an append-only record of goods received against an order
type Receipt struct {
	shared.BaseEntity
	OrderID           uuid.UUID
	Sequence          int // 1-based position in the order's receipt log
	ReceiptNumber     string
	IdempotencyKey    string
	Kind              ReceiptKind
	ReversesReceiptID *uuid.UUID
	ReceivedAt        time.Time
	Note              string
	Status            ReceiptStatus
	Lines             []ReceiptLine
	Result            *ReceiptResult
}

// IsReversal returns true for compensating receipts
func (r *Receipt) IsReversal() bool {
	return r.Kind == ReceiptKindReversal
}

// TotalQuantity returns the signed sum over all lines
func (r *Receipt) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, l := range r.Lines {
		total = total.Add(l.Quantity)
	}
	return total
}

// LineTotal is the post-receipt state of one touched order line
type LineTotal struct {
	OrderLineID   uuid.UUID       `json:"order_line_id"`
	TotalReceived decimal.Decimal `json:"total_received"`
	LineStatus    LineStatus      `json:"line_status"`
}

// ReceiptResult is the outcome of an accepted receipt. It is stored with the
// receipt so a retried submission returns the same answer.
type ReceiptResult struct {
	OrderID       uuid.UUID     `json:"order_id"`
	ReceiptID     uuid.UUID     `json:"receipt_id"`
	ReceiptNumber string        `json:"receipt_number"`
	Kind          ReceiptKind   `json:"kind"`
	OrderStatus   OrderStatus   `json:"order_status"`
	ReceiptStatus ReceiptStatus `json:"receipt_status"`
	Lines         []LineTotal   `json:"lines"`
}

func newReceipt(orderID uuid.UUID, sequence int, number, idempotencyKey string, kind ReceiptKind, receivedAt time.Time, note string) *Receipt {
	r := &Receipt{
		BaseEntity:     shared.NewBaseEntity(),
		OrderID:        orderID,
		Sequence:       sequence,
		ReceiptNumber:  number,
		IdempotencyKey: idempotencyKey,
		Kind:           kind,
		ReceivedAt:     receivedAt,
		Note:           note,
	}
	return r
}

func (r *Receipt) addLine(orderLineID uuid.UUID, qty decimal.Decimal, note string) {
	r.Lines = append(r.Lines, ReceiptLine{
		ID:          uuid.New(),
		ReceiptID:   r.ID,
		OrderLineID: orderLineID,
		Quantity:    qty,
		Note:        note,
	})
}
