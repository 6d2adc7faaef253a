package procurement

import "github.com/shopspring/decimal"

// OrderStatus represents the fulfillment status of a purchase order
type OrderStatus string

const (
	OrderStatusDraft             OrderStatus = "DRAFT"
	OrderStatusApproved          OrderStatus = "APPROVED"
	OrderStatusPartiallyReceived OrderStatus = "PARTIALLY_RECEIVED"
	OrderStatusFullyReceived     OrderStatus = "FULLY_RECEIVED"
	OrderStatusCancelled         OrderStatus = "CANCELLED"
	OrderStatusClosedShort       OrderStatus = "CLOSED_SHORT"
)

// IsValid checks if the status is a valid OrderStatus
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusDraft, OrderStatusApproved, OrderStatusPartiallyReceived,
		OrderStatusFullyReceived, OrderStatusCancelled, OrderStatusClosedShort:
		return true
	}
	return false
}

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// IsReceivable returns true if goods can be received against an order in this status
func (s OrderStatus) IsReceivable() bool {
	return s == OrderStatusApproved || s == OrderStatusPartiallyReceived
}

// admitsReceiptChecks reports whether a submission is checked line by line.
// A fully received order is, so an extra unit is reported as an over-receipt
// with its exact excess rather than a bare status refusal.
func (s OrderStatus) admitsReceiptChecks() bool {
	return s.IsReceivable() || s == OrderStatusFullyReceived
}

// IsReversible returns true if a posted receipt may be reversed in this status
func (s OrderStatus) IsReversible() bool {
	return s == OrderStatusPartiallyReceived || s == OrderStatusFullyReceived
}

// CanTransitionTo checks if the status can transition to the target status.
// FULLY_RECEIVED only moves back through a receipt reversal.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	switch s {
	case OrderStatusDraft:
		return target == OrderStatusApproved || target == OrderStatusCancelled
	case OrderStatusApproved:
		return target == OrderStatusPartiallyReceived || target == OrderStatusFullyReceived || target == OrderStatusCancelled
	case OrderStatusPartiallyReceived:
		return target == OrderStatusPartiallyReceived || target == OrderStatusFullyReceived ||
			target == OrderStatusApproved || target == OrderStatusClosedShort
	case OrderStatusFullyReceived:
		return target == OrderStatusPartiallyReceived || target == OrderStatusApproved
	case OrderStatusCancelled, OrderStatusClosedShort:
		return false // Terminal states
	}
	return false
}

// LineStatus represents the fulfillment status of a single order line
type LineStatus string

const (
	LineStatusNotReceived       LineStatus = "NOT_RECEIVED"
	LineStatusPartiallyReceived LineStatus = "PARTIALLY_RECEIVED"
	LineStatusFullyReceived     LineStatus = "FULLY_RECEIVED"
)

// ReceiptStatus describes what a receipt achieved for the lines it touched
type ReceiptStatus string

const (
	ReceiptStatusPartiallyReceived ReceiptStatus = "PARTIALLY_RECEIVED"
	ReceiptStatusFullyReceived     ReceiptStatus = "FULLY_RECEIVED"
)

// DeriveLineStatus maps an ordered/received pair to a line status.
// Values outside 0..ordered clamp to the nearest end.
func DeriveLineStatus(ordered, received decimal.Decimal) LineStatus {
	if received.LessThanOrEqual(decimal.Zero) {
		return LineStatusNotReceived
	}
	if received.GreaterThanOrEqual(ordered) {
		return LineStatusFullyReceived
	}
	return LineStatusPartiallyReceived
}

// DeriveOrderStatus maps the per-line statuses of an order to its aggregate status.
// DRAFT, CANCELLED and CLOSED_SHORT are never changed by receipt activity.
func DeriveOrderStatus(current OrderStatus, lines []LineStatus) OrderStatus {
	switch current {
	case OrderStatusDraft, OrderStatusCancelled, OrderStatusClosedShort:
		return current
	}
	if len(lines) == 0 {
		return current
	}

	anyReceived := false
	allFull := true
	for _, ls := range lines {
		if ls != LineStatusNotReceived {
			anyReceived = true
		}
		if ls != LineStatusFullyReceived {
			allFull = false
		}
	}

	switch {
	case allFull:
		return OrderStatusFullyReceived
	case anyReceived:
		return OrderStatusPartiallyReceived
	default:
		return OrderStatusApproved
	}
}

// DeriveReceiptStatus returns FULLY_RECEIVED only when every line the receipt
// touched is fully received after it was applied.
func DeriveReceiptStatus(touched []LineStatus) ReceiptStatus {
	if len(touched) == 0 {
		return ReceiptStatusPartiallyReceived
	}
	for _, ls := range touched {
		if ls != LineStatusFullyReceived {
			return ReceiptStatusPartiallyReceived
		}
	}
	return ReceiptStatusFullyReceived
}
