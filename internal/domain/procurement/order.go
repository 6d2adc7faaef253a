package procurement

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/procurement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLine is one line of a purchase order. ReceivedQuantity caches the
// receipt log total for the line and is kept in step with it on every receipt.
type OrderLine struct {
	ID               uuid.UUID
	OrderID          uuid.UUID
	LineNumber       int
	ItemReference    string
	Description      string
	OrderedQuantity  decimal.Decimal
	UnitPrice        decimal.Decimal
	ReceivedQuantity decimal.Decimal
}

// RemainingQuantity returns the quantity still to be received
func (l *OrderLine) RemainingQuantity() decimal.Decimal {
	return l.OrderedQuantity.Sub(l.ReceivedQuantity)
}

// Status derives the line status from the cached received quantity
func (l *OrderLine) Status() LineStatus {
	return DeriveLineStatus(l.OrderedQuantity, l.ReceivedQuantity)
}

// IsFullyReceived returns true if the line has been received in full
func (l *OrderLine) IsFullyReceived() bool {
	return l.Status() == LineStatusFullyReceived
}

// NewOrderLine is the input for one line of a new order
type NewOrderLine struct {
	ItemReference   string
	Description     string
	OrderedQuantity decimal.Decimal
	UnitPrice       decimal.Decimal
}

// Order is the purchase order aggregate root
type Order struct {
	shared.BaseAggregateRoot
	OrderNumber       string
	SupplierReference string
	IssueDate         time.Time
	ExpectedDate      *time.Time
	Status            OrderStatus
	Lines             []OrderLine
	ReceiptCount      int
	ApprovedAt        *time.Time
	CancelledAt       *time.Time
	ClosedAt          *time.Time
	CloseReason       string
}

// NewOrder creates a new draft purchase order
func NewOrder(orderNumber, supplierReference string, issueDate time.Time, expectedDate *time.Time, lines []NewOrderLine) (*Order, error) {
	if strings.TrimSpace(orderNumber) == "" {
		return nil, shared.NewDomainError("INVALID_ORDER_NUMBER", "Order number cannot be empty")
	}
	if len(orderNumber) > 50 {
		return nil, shared.NewDomainError("INVALID_ORDER_NUMBER", "Order number cannot exceed 50 characters")
	}
	if strings.TrimSpace(supplierReference) == "" {
		return nil, shared.NewDomainError("INVALID_SUPPLIER", "Supplier reference cannot be empty")
	}
	if len(lines) == 0 {
		return nil, shared.NewDomainError("NO_LINES", "Order must have at least one line")
	}
	if issueDate.IsZero() {
		issueDate = shared.Now()
	}
	if expectedDate != nil && expectedDate.Before(issueDate) {
		return nil, shared.NewDomainError("INVALID_EXPECTED_DATE", "Expected date cannot be before the issue date")
	}

	order := &Order{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OrderNumber:       orderNumber,
		SupplierReference: supplierReference,
		IssueDate:         issueDate,
		ExpectedDate:      expectedDate,
		Status:            OrderStatusDraft,
		Lines:             make([]OrderLine, 0, len(lines)),
	}

	for i, nl := range lines {
		if strings.TrimSpace(nl.ItemReference) == "" {
			return nil, shared.NewDomainError("INVALID_ITEM", fmt.Sprintf("Line %d: item reference cannot be empty", i+1))
		}
		if !nl.OrderedQuantity.IsPositive() {
			return nil, shared.NewDomainError("INVALID_QUANTITY", fmt.Sprintf("Line %d: ordered quantity must be positive", i+1))
		}
		if !fitsQuantityColumn(nl.OrderedQuantity) {
			return nil, shared.NewDomainError("INVALID_QUANTITY",
				fmt.Sprintf("Line %d: ordered quantity must fit %d decimal places and 14 integer digits", i+1, QuantityScale))
		}
		if nl.UnitPrice.IsNegative() {
			return nil, shared.NewDomainError("INVALID_PRICE", fmt.Sprintf("Line %d: unit price cannot be negative", i+1))
		}
		if !fitsQuantityColumn(nl.UnitPrice) {
			return nil, shared.NewDomainError("INVALID_PRICE",
				fmt.Sprintf("Line %d: unit price must fit %d decimal places and 14 integer digits", i+1, QuantityScale))
		}
		order.Lines = append(order.Lines, OrderLine{
			ID:               uuid.New(),
			OrderID:          order.ID,
			LineNumber:       i + 1,
			ItemReference:    nl.ItemReference,
			Description:      nl.Description,
			OrderedQuantity:  nl.OrderedQuantity,
			UnitPrice:        nl.UnitPrice,
			ReceivedQuantity: decimal.Zero,
		})
	}

	order.AddDomainEvent(NewOrderCreatedEvent(order))

	return order, nil
}

// Line returns the order line with the given ID
func (o *Order) Line(id uuid.UUID) (*OrderLine, bool) {
	for i := range o.Lines {
		if o.Lines[i].ID == id {
			return &o.Lines[i], true
		}
	}
	return nil, false
}

// LineStatuses returns the derived status of every line, in line order
func (o *Order) LineStatuses() []LineStatus {
	statuses := make([]LineStatus, len(o.Lines))
	for i := range o.Lines {
		statuses[i] = o.Lines[i].Status()
	}
	return statuses
}

// TotalOrderedQuantity returns the sum of ordered quantities
func (o *Order) TotalOrderedQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.OrderedQuantity)
	}
	return total
}

// TotalReceivedQuantity returns the sum of received quantities
func (o *Order) TotalReceivedQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.ReceivedQuantity)
	}
	return total
}

// Approve releases a draft order for receiving
func (o *Order) Approve() error {
	if o.Status != OrderStatusDraft {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot approve order in %s status", o.Status))
	}
	from := o.Status
	now := shared.Now()
	o.Status = OrderStatusApproved
	o.ApprovedAt = &now
	o.Touch()
	o.AddDomainEvent(NewOrderStatusChangedEvent(o, from, ""))
	return nil
}

// Cancel cancels the order. Allowed only before any receipt has been posted;
// a partially received order must be closed short instead.
func (o *Order) Cancel(reason string) error {
	if !o.Status.CanTransitionTo(OrderStatusCancelled) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel order in %s status", o.Status))
	}
	if strings.TrimSpace(reason) == "" {
		return shared.NewDomainError("INVALID_REASON", "Cancel reason is required")
	}
	if o.ReceiptCount > 0 {
		return shared.NewDomainError("ALREADY_RECEIVED", "Cannot cancel order after goods have been received, close it short instead")
	}
	from := o.Status
	now := shared.Now()
	o.Status = OrderStatusCancelled
	o.CancelledAt = &now
	o.CloseReason = reason
	o.Touch()
	o.AddDomainEvent(NewOrderStatusChangedEvent(o, from, reason))
	return nil
}

// CloseShort ends a partially received order without expecting the rest
func (o *Order) CloseShort(reason string) error {
	if !o.Status.CanTransitionTo(OrderStatusClosedShort) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot close short order in %s status", o.Status))
	}
	if strings.TrimSpace(reason) == "" {
		return shared.NewDomainError("INVALID_REASON", "Close reason is required")
	}
	from := o.Status
	now := shared.Now()
	o.Status = OrderStatusClosedShort
	o.ClosedAt = &now
	o.CloseReason = reason
	o.Touch()
	o.AddDomainEvent(NewOrderStatusChangedEvent(o, from, reason))
	return nil
}

// PostReceipt applies a validated receipt to the line caches, re-derives the
// order status and returns the receipt to append to the log.
func (o *Order) PostReceipt(validated *ValidatedReceipt, idempotencyKey string) (*Receipt, error) {
	if !o.Status.IsReceivable() {
		return nil, NewOrderNotReceivable(o.Status)
	}
	if validated == nil || len(validated.Lines) == 0 {
		return nil, NewEmptyOrInvalidReceipt("receipt has no lines")
	}

	// Check every line before touching any of them
	for _, vl := range validated.Lines {
		line, ok := o.Line(vl.OrderLineID)
		if !ok {
			return nil, NewLineNotInOrder(vl.OrderLineID)
		}
		if remaining := line.RemainingQuantity(); vl.Quantity.GreaterThan(remaining) {
			return nil, NewOverReceipt(line, vl.Quantity, remaining)
		}
	}

	seq := o.ReceiptCount + 1
	number := fmt.Sprintf("GR-%s-%03d", o.OrderNumber, seq)
	receipt := newReceipt(o.ID, seq, number, idempotencyKey, ReceiptKindStandard, validated.ReceivedAt, validated.Note)

	touched := make([]LineStatus, 0, len(validated.Lines))
	for _, vl := range validated.Lines {
		line, _ := o.Line(vl.OrderLineID)
		line.ReceivedQuantity = line.ReceivedQuantity.Add(vl.Quantity)
		receipt.addLine(line.ID, vl.Quantity, vl.Note)
		touched = append(touched, line.Status())
	}
	receipt.Status = DeriveReceiptStatus(touched)

	o.ReceiptCount++
	from := o.Status
	o.Status = DeriveOrderStatus(o.Status, o.LineStatuses())
	o.Touch()
	receipt.Result = o.resultFor(receipt)

	o.AddDomainEvent(NewReceiptPostedEvent(o, receipt))
	if from != o.Status {
		o.AddDomainEvent(NewOrderStatusChangedEvent(o, from, ""))
	}

	return receipt, nil
}

// ReverseReceipt posts a compensating receipt that negates every line of a
// prior standard receipt. It is the only way received totals go down.
func (o *Order) ReverseReceipt(original *Receipt, idempotencyKey, reason string) (*Receipt, error) {
	if !o.Status.IsReversible() {
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot reverse receipts of order in %s status", o.Status))
	}
	if original == nil || original.OrderID != o.ID {
		return nil, shared.NewDomainError("RECEIPT_NOT_IN_ORDER", "Receipt does not belong to this order")
	}
	if original.IsReversal() {
		return nil, shared.NewDomainError("INVALID_RECEIPT", "A reversal cannot itself be reversed")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, shared.NewDomainError("INVALID_REASON", "Reversal reason is required")
	}

	for _, rl := range original.Lines {
		line, ok := o.Line(rl.OrderLineID)
		if !ok {
			return nil, NewLineNotInOrder(rl.OrderLineID)
		}
		if line.ReceivedQuantity.Sub(rl.Quantity).IsNegative() {
			return nil, shared.NewDomainError("LEDGER_INCONSISTENT",
				fmt.Sprintf("Reversing line %d would make its received quantity negative", line.LineNumber))
		}
	}

	seq := o.ReceiptCount + 1
	number := fmt.Sprintf("RV-%s-%03d", o.OrderNumber, seq)
	reversal := newReceipt(o.ID, seq, number, idempotencyKey, ReceiptKindReversal, shared.Now(), reason)
	originalID := original.ID
	reversal.ReversesReceiptID = &originalID

	touched := make([]LineStatus, 0, len(original.Lines))
	for _, rl := range original.Lines {
		line, _ := o.Line(rl.OrderLineID)
		line.ReceivedQuantity = line.ReceivedQuantity.Sub(rl.Quantity)
		reversal.addLine(line.ID, rl.Quantity.Neg(), rl.Note)
		touched = append(touched, line.Status())
	}
	reversal.Status = DeriveReceiptStatus(touched)

	o.ReceiptCount++
	from := o.Status
	o.Status = DeriveOrderStatus(o.Status, o.LineStatuses())
	o.Touch()
	reversal.Result = o.resultFor(reversal)

	o.AddDomainEvent(NewReceiptReversedEvent(o, reversal, reason))
	if from != o.Status {
		o.AddDomainEvent(NewOrderStatusChangedEvent(o, from, reason))
	}

	return reversal, nil
}

// DerivedStatus is the status the cached line totals call for
func (o *Order) DerivedStatus() OrderStatus {
	return DeriveOrderStatus(o.Status, o.LineStatuses())
}

// ReconcileWithLedger overwrites cached line totals that disagree with the
// ledger and re-derives the status, even when every total already matches.
// It returns what was corrected and whether the order changed at all.
func (o *Order) ReconcileWithLedger(ledger *Ledger) ([]LedgerDiscrepancy, bool) {
	diffs := ledger.Discrepancies(o)
	for _, d := range diffs {
		line, _ := o.Line(d.OrderLineID)
		line.ReceivedQuantity = d.Ledger
	}
	from := o.Status
	o.Status = o.DerivedStatus()
	if len(diffs) == 0 && from == o.Status {
		return nil, false
	}
	o.Touch()
	if from != o.Status {
		o.AddDomainEvent(NewOrderStatusChangedEvent(o, from, "ledger reconciliation"))
	}
	return diffs, true
}

func (o *Order) resultFor(receipt *Receipt) *ReceiptResult {
	lines := make([]LineTotal, 0, len(receipt.Lines))
	for _, rl := range receipt.Lines {
		line, _ := o.Line(rl.OrderLineID)
		lines = append(lines, LineTotal{
			OrderLineID:   line.ID,
			TotalReceived: line.ReceivedQuantity,
			LineStatus:    line.Status(),
		})
	}
	return &ReceiptResult{
		OrderID:       o.ID,
		ReceiptID:     receipt.ID,
		ReceiptNumber: receipt.ReceiptNumber,
		Kind:          receipt.Kind,
		OrderStatus:   o.Status,
		ReceiptStatus: receipt.Status,
		Lines:         lines,
	}
}
