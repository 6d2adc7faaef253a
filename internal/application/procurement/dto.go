package procurement

import (
	"time"

	"github.com/erp/procurement/internal/domain/procurement"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ==================== Order DTOs ====================

// CreateOrderRequest represents a request to create a draft purchase order
type CreateOrderRequest struct {
	OrderNumber       string                 `json:"order_number" binding:"omitempty,max=50"`
	SupplierReference string                 `json:"supplier_reference" binding:"required,min=1,max=100"`
	IssueDate         *time.Time             `json:"issue_date"`
	ExpectedDate      *time.Time             `json:"expected_date"`
	Lines             []CreateOrderLineInput `json:"lines" binding:"required,min=1,dive"`
}

// CreateOrderLineInput represents one line in the create order request
type CreateOrderLineInput struct {
	ItemReference   string          `json:"item_reference" binding:"required,min=1,max=100"`
	Description     string          `json:"description" binding:"max=500"`
	OrderedQuantity decimal.Decimal `json:"ordered_quantity" binding:"required"`
	UnitPrice       decimal.Decimal `json:"unit_price" binding:"decimal_gte0"`
}

// ReasonRequest carries the reason for cancel, close-short and reversal
type ReasonRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500"`
}

// OrderListFilter represents filter options for the order list
type OrderListFilter struct {
	Search            string                   `form:"search"`
	Status            *procurement.OrderStatus `form:"status"`
	SupplierReference string                   `form:"supplier_reference"`
	Page              int                      `form:"page" binding:"omitempty,min=1"`
	PageSize          int                      `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy           string                   `form:"order_by"`
	OrderDir          string                   `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// OrderLineResponse represents an order line in API responses
type OrderLineResponse struct {
	ID                uuid.UUID              `json:"id"`
	LineNumber        int                    `json:"line_number"`
	ItemReference     string                 `json:"item_reference"`
	Description       string                 `json:"description,omitempty"`
	OrderedQuantity   decimal.Decimal        `json:"ordered_quantity"`
	UnitPrice         decimal.Decimal        `json:"unit_price"`
	ReceivedQuantity  decimal.Decimal        `json:"received_quantity"`
	RemainingQuantity decimal.Decimal        `json:"remaining_quantity"`
	Status            procurement.LineStatus `json:"status"`
}

// OrderResponse represents a purchase order in API responses
type OrderResponse struct {
	ID                uuid.UUID               `json:"id"`
	OrderNumber       string                  `json:"order_number"`
	SupplierReference string                  `json:"supplier_reference"`
	IssueDate         time.Time               `json:"issue_date"`
	ExpectedDate      *time.Time              `json:"expected_date,omitempty"`
	Status            procurement.OrderStatus `json:"status"`
	Lines             []OrderLineResponse     `json:"lines"`
	ReceiptCount      int                     `json:"receipt_count"`
	ApprovedAt        *time.Time              `json:"approved_at,omitempty"`
	CancelledAt       *time.Time              `json:"cancelled_at,omitempty"`
	ClosedAt          *time.Time              `json:"closed_at,omitempty"`
	CloseReason       string                  `json:"close_reason,omitempty"`
	Version           int                     `json:"version"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

// OrderListItemResponse represents an order in list responses
type OrderListItemResponse struct {
	ID                uuid.UUID               `json:"id"`
	OrderNumber       string                  `json:"order_number"`
	SupplierReference string                  `json:"supplier_reference"`
	IssueDate         time.Time               `json:"issue_date"`
	Status            procurement.OrderStatus `json:"status"`
	LineCount         int                     `json:"line_count"`
	TotalOrdered      decimal.Decimal         `json:"total_ordered"`
	TotalReceived     decimal.Decimal         `json:"total_received"`
	CreatedAt         time.Time               `json:"created_at"`
}

// ==================== Receipt DTOs ====================

// SubmitReceiptRequest represents a goods receipt submission
type SubmitReceiptRequest struct {
	IdempotencyKey string             `json:"idempotency_key" binding:"omitempty,max=100"`
	ReceivedAt     *time.Time         `json:"received_at"`
	Note           string             `json:"note" binding:"max=500"`
	Lines          []ReceiptLineInput `json:"lines" binding:"dive"`
}

// ReceiptLineInput represents one line of a receipt submission
type ReceiptLineInput struct {
	OrderLineID uuid.UUID       `json:"order_line_id" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	Note        string          `json:"note" binding:"max=500"`
}

// ReverseReceiptRequest represents a request to reverse a receipt
type ReverseReceiptRequest struct {
	IdempotencyKey string `json:"idempotency_key" binding:"omitempty,max=100"`
	Reason         string `json:"reason" binding:"required,min=1,max=500"`
}

// SubmitReceiptCommand is a receipt submission addressed to one order
type SubmitReceiptCommand struct {
	OrderID        uuid.UUID
	IdempotencyKey string
	ReceivedAt     *time.Time
	Note           string
	Lines          []ReceiptLineInput
}

func (c SubmitReceiptCommand) proposal() procurement.ProposedReceipt {
	p := procurement.ProposedReceipt{
		Lines: make([]procurement.ProposedReceiptLine, 0, len(c.Lines)),
		Note:  c.Note,
	}
	if c.ReceivedAt != nil {
		p.ReceivedAt = *c.ReceivedAt
	}
	for _, l := range c.Lines {
		p.Lines = append(p.Lines, procurement.ProposedReceiptLine{
			OrderLineID: l.OrderLineID,
			Quantity:    l.Quantity,
			Note:        l.Note,
		})
	}
	return p
}

// ReverseReceiptCommand asks for a compensating reversal of one receipt
type ReverseReceiptCommand struct {
	OrderID        uuid.UUID
	ReceiptID      uuid.UUID
	IdempotencyKey string
	Reason         string
}

// LineTotalResponse is the post-receipt state of one touched order line
type LineTotalResponse struct {
	OrderLineID   uuid.UUID              `json:"order_line_id"`
	TotalReceived decimal.Decimal        `json:"total_received"`
	LineStatus    procurement.LineStatus `json:"line_status"`
}

// ReceiptResultResponse is the outcome of an accepted submission. Replayed is
// true when the idempotency key matched an earlier receipt.
type ReceiptResultResponse struct {
	OrderID       uuid.UUID                 `json:"order_id"`
	ReceiptID     uuid.UUID                 `json:"receipt_id"`
	ReceiptNumber string                    `json:"receipt_number"`
	Kind          procurement.ReceiptKind   `json:"kind"`
	OrderStatus   procurement.OrderStatus   `json:"order_status"`
	ReceiptStatus procurement.ReceiptStatus `json:"receipt_status"`
	Lines         []LineTotalResponse       `json:"lines"`
	Replayed      bool                      `json:"replayed"`
}

// ReceiptLineResponse represents a receipt line in API responses
type ReceiptLineResponse struct {
	ID          uuid.UUID       `json:"id"`
	OrderLineID uuid.UUID       `json:"order_line_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Note        string          `json:"note,omitempty"`
}

// ReceiptResponse represents a logged receipt in API responses
type ReceiptResponse struct {
	ID                uuid.UUID                 `json:"id"`
	OrderID           uuid.UUID                 `json:"order_id"`
	Sequence          int                       `json:"sequence"`
	ReceiptNumber     string                    `json:"receipt_number"`
	IdempotencyKey    string                    `json:"idempotency_key"`
	Kind              procurement.ReceiptKind   `json:"kind"`
	ReversesReceiptID *uuid.UUID                `json:"reverses_receipt_id,omitempty"`
	ReceivedAt        time.Time                 `json:"received_at"`
	Note              string                    `json:"note,omitempty"`
	Status            procurement.ReceiptStatus `json:"status"`
	Lines             []ReceiptLineResponse     `json:"lines"`
	CreatedAt         time.Time                 `json:"created_at"`
}

// ==================== Fulfillment DTOs ====================

// LineFulfillmentResponse is the fulfillment state of one order line
type LineFulfillmentResponse struct {
	OrderLineID   uuid.UUID              `json:"order_line_id"`
	LineNumber    int                    `json:"line_number"`
	ItemReference string                 `json:"item_reference"`
	Ordered       decimal.Decimal        `json:"ordered"`
	Received      decimal.Decimal        `json:"received"`
	Remaining     decimal.Decimal        `json:"remaining"`
	LineStatus    procurement.LineStatus `json:"line_status"`
}

// FulfillmentResponse is the fulfillment state of an order
type FulfillmentResponse struct {
	OrderID     uuid.UUID                 `json:"order_id"`
	OrderNumber string                    `json:"order_number"`
	OrderStatus procurement.OrderStatus   `json:"order_status"`
	Version     int                       `json:"version"`
	Lines       []LineFulfillmentResponse `json:"lines"`
}

// LedgerDiscrepancyResponse reports one line whose cache disagrees with the log
type LedgerDiscrepancyResponse struct {
	OrderLineID uuid.UUID       `json:"order_line_id"`
	LineNumber  int             `json:"line_number"`
	Cached      decimal.Decimal `json:"cached"`
	Ledger      decimal.Decimal `json:"ledger"`
	Difference  decimal.Decimal `json:"difference"`
}

// LedgerAuditResponse is the result of comparing cached totals with the receipt log
type LedgerAuditResponse struct {
	OrderID       uuid.UUID                   `json:"order_id"`
	OrderStatus   procurement.OrderStatus     `json:"order_status"`
	Consistent    bool                        `json:"consistent"`
	StatusCurrent bool                        `json:"status_current"`
	Repaired      bool                        `json:"repaired"`
	Discrepancies []LedgerDiscrepancyResponse `json:"discrepancies"`
}

// ==================== Mappers ====================

// ToOrderResponse converts a domain Order to OrderResponse
func ToOrderResponse(order *procurement.Order) OrderResponse {
	lines := make([]OrderLineResponse, 0, len(order.Lines))
	for i := range order.Lines {
		lines = append(lines, ToOrderLineResponse(&order.Lines[i]))
	}
	return OrderResponse{
		ID:                order.ID,
		OrderNumber:       order.OrderNumber,
		SupplierReference: order.SupplierReference,
		IssueDate:         order.IssueDate,
		ExpectedDate:      order.ExpectedDate,
		Status:            order.Status,
		Lines:             lines,
		ReceiptCount:      order.ReceiptCount,
		ApprovedAt:        order.ApprovedAt,
		CancelledAt:       order.CancelledAt,
		ClosedAt:          order.ClosedAt,
		CloseReason:       order.CloseReason,
		Version:           order.Version,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
}

// ToOrderLineResponse converts a domain OrderLine to OrderLineResponse
func ToOrderLineResponse(line *procurement.OrderLine) OrderLineResponse {
	return OrderLineResponse{
		ID:                line.ID,
		LineNumber:        line.LineNumber,
		ItemReference:     line.ItemReference,
		Description:       line.Description,
		OrderedQuantity:   line.OrderedQuantity,
		UnitPrice:         line.UnitPrice,
		ReceivedQuantity:  line.ReceivedQuantity,
		RemainingQuantity: line.RemainingQuantity(),
		Status:            line.Status(),
	}
}

// ToOrderListItemResponses converts domain orders to list responses
func ToOrderListItemResponses(orders []procurement.Order) []OrderListItemResponse {
	out := make([]OrderListItemResponse, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		out = append(out, OrderListItemResponse{
			ID:                o.ID,
			OrderNumber:       o.OrderNumber,
			SupplierReference: o.SupplierReference,
			IssueDate:         o.IssueDate,
			Status:            o.Status,
			LineCount:         len(o.Lines),
			TotalOrdered:      o.TotalOrderedQuantity(),
			TotalReceived:     o.TotalReceivedQuantity(),
			CreatedAt:         o.CreatedAt,
		})
	}
	return out
}

// ToReceiptResultResponse converts a stored ReceiptResult to its response
func ToReceiptResultResponse(result *procurement.ReceiptResult, replayed bool) *ReceiptResultResponse {
	lines := make([]LineTotalResponse, 0, len(result.Lines))
	for _, l := range result.Lines {
		lines = append(lines, LineTotalResponse{
			OrderLineID:   l.OrderLineID,
			TotalReceived: l.TotalReceived,
			LineStatus:    l.LineStatus,
		})
	}
	return &ReceiptResultResponse{
		OrderID:       result.OrderID,
		ReceiptID:     result.ReceiptID,
		ReceiptNumber: result.ReceiptNumber,
		Kind:          result.Kind,
		OrderStatus:   result.OrderStatus,
		ReceiptStatus: result.ReceiptStatus,
		Lines:         lines,
		Replayed:      replayed,
	}
}

// ToReceiptResponses converts domain receipts to responses
func ToReceiptResponses(receipts []procurement.Receipt) []ReceiptResponse {
	out := make([]ReceiptResponse, 0, len(receipts))
	for i := range receipts {
		r := &receipts[i]
		lines := make([]ReceiptLineResponse, 0, len(r.Lines))
		for _, l := range r.Lines {
			lines = append(lines, ReceiptLineResponse{
				ID:          l.ID,
				OrderLineID: l.OrderLineID,
				Quantity:    l.Quantity,
				Note:        l.Note,
			})
		}
		out = append(out, ReceiptResponse{
			ID:                r.ID,
			OrderID:           r.OrderID,
			Sequence:          r.Sequence,
			ReceiptNumber:     r.ReceiptNumber,
			IdempotencyKey:    r.IdempotencyKey,
			Kind:              r.Kind,
			ReversesReceiptID: r.ReversesReceiptID,
			ReceivedAt:        r.ReceivedAt,
			Note:              r.Note,
			Status:            r.Status,
			Lines:             lines,
			CreatedAt:         r.CreatedAt,
		})
	}
	return out
}

// ToFulfillmentResponse reads the fulfillment state from the order line cache
func ToFulfillmentResponse(order *procurement.Order) *FulfillmentResponse {
	lines := make([]LineFulfillmentResponse, 0, len(order.Lines))
	for i := range order.Lines {
		l := &order.Lines[i]
		lines = append(lines, LineFulfillmentResponse{
			OrderLineID:   l.ID,
			LineNumber:    l.LineNumber,
			ItemReference: l.ItemReference,
			Ordered:       l.OrderedQuantity,
			Received:      l.ReceivedQuantity,
			Remaining:     l.RemainingQuantity(),
			LineStatus:    l.Status(),
		})
	}
	return &FulfillmentResponse{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		OrderStatus: order.Status,
		Version:     order.Version,
		Lines:       lines,
	}
}

// ToLedgerAuditResponse builds an audit response from discrepancies.
// statusCurrent tells whether the stored status matched the cached line
// totals before any repair.
func ToLedgerAuditResponse(order *procurement.Order, diffs []procurement.LedgerDiscrepancy, statusCurrent, repaired bool) *LedgerAuditResponse {
	out := &LedgerAuditResponse{
		OrderID:       order.ID,
		OrderStatus:   order.Status,
		Consistent:    len(diffs) == 0 && statusCurrent,
		StatusCurrent: statusCurrent,
		Repaired:      repaired,
		Discrepancies: make([]LedgerDiscrepancyResponse, 0, len(diffs)),
	}
	for _, d := range diffs {
		out.Discrepancies = append(out.Discrepancies, LedgerDiscrepancyResponse{
			OrderLineID: d.OrderLineID,
			LineNumber:  d.LineNumber,
			Cached:      d.Cached,
			Ledger:      d.Ledger,
			Difference:  d.Ledger.Sub(d.Cached),
		})
	}
	return out
}
