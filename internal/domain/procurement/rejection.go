package procurement

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RejectionReason classifies why a receipt submission was refused
type RejectionReason string

const (
	ReasonOrderNotReceivable    RejectionReason = "ORDER_NOT_RECEIVABLE"
	ReasonLineNotInOrder        RejectionReason = "LINE_NOT_IN_ORDER"
	ReasonEmptyOrInvalidReceipt RejectionReason = "EMPTY_OR_INVALID_RECEIPT"
	ReasonOverReceipt           RejectionReason = "OVER_RECEIPT"
	ReasonConcurrencyConflict   RejectionReason = "CONCURRENCY_CONFLICT"
	ReasonNotFound              RejectionReason = "NOT_FOUND"
)

// Rejection is a business refusal of a submission. Nothing is persisted when
// one is returned.
type Rejection struct {
	Reason      RejectionReason
	Message     string
	OrderLineID uuid.UUID
	Requested   decimal.Decimal
	Remaining   decimal.Decimal
	Excess      decimal.Decimal
}

// Error implements the error interface
func (r *Rejection) Error() string {
	return r.Message
}

// Is matches any Rejection with the same reason
func (r *Rejection) Is(target error) bool {
	var t *Rejection
	if !errors.As(target, &t) {
		return false
	}
	return r.Reason == t.Reason
}

// Sentinels for errors.Is matching
var (
	ErrOrderNotReceivable    = &Rejection{Reason: ReasonOrderNotReceivable, Message: "order is not receivable"}
	ErrLineNotInOrder        = &Rejection{Reason: ReasonLineNotInOrder, Message: "line does not belong to order"}
	ErrEmptyOrInvalidReceipt = &Rejection{Reason: ReasonEmptyOrInvalidReceipt, Message: "receipt is empty or invalid"}
	ErrOverReceipt           = &Rejection{Reason: ReasonOverReceipt, Message: "quantity exceeds remaining"}
	ErrConcurrencyConflict   = &Rejection{Reason: ReasonConcurrencyConflict, Message: "order was modified concurrently"}
	ErrNotFound              = &Rejection{Reason: ReasonNotFound, Message: "not found"}
)

// AsRejection unwraps err into a Rejection
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// NewOrderNotReceivable rejects a submission against an order in a non-receivable status
func NewOrderNotReceivable(status OrderStatus) *Rejection {
	return &Rejection{
		Reason:  ReasonOrderNotReceivable,
		Message: fmt.Sprintf("order in %s status cannot receive goods", status),
	}
}

// NewLineNotInOrder rejects a receipt line that references a foreign order line
func NewLineNotInOrder(orderLineID uuid.UUID) *Rejection {
	return &Rejection{
		Reason:      ReasonLineNotInOrder,
		Message:     fmt.Sprintf("order line %s does not belong to this order", orderLineID),
		OrderLineID: orderLineID,
	}
}

// NewEmptyOrInvalidReceipt rejects a receipt with no positive quantity or a negative one
func NewEmptyOrInvalidReceipt(message string) *Rejection {
	return &Rejection{
		Reason:  ReasonEmptyOrInvalidReceipt,
		Message: message,
	}
}

// NewOverReceipt rejects a line whose requested quantity exceeds what remains
func NewOverReceipt(line *OrderLine, requested, remaining decimal.Decimal) *Rejection {
	excess := requested.Sub(remaining)
	return &Rejection{
		Reason: ReasonOverReceipt,
		Message: fmt.Sprintf("cannot receive %s, only %s remain on line %d (%s)",
			requested.String(), remaining.String(), line.LineNumber, line.ItemReference),
		OrderLineID: line.ID,
		Requested:   requested,
		Remaining:   remaining,
		Excess:      excess,
	}
}

// NewConcurrencyConflict reports that retries were exhausted for an order
func NewConcurrencyConflict(orderID uuid.UUID, attempts int) *Rejection {
	return &Rejection{
		Reason:  ReasonConcurrencyConflict,
		Message: fmt.Sprintf("order %s is being modified concurrently, gave up after %d attempts", orderID, attempts),
	}
}

// NewNotFound reports a missing order or receipt
func NewNotFound(kind string, id uuid.UUID) *Rejection {
	return &Rejection{
		Reason:  ReasonNotFound,
		Message: fmt.Sprintf("%s %s not found", kind, id),
	}
}
