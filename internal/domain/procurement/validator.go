package procurement

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/procurement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProposedReceiptLine is one line of a receipt as submitted
type ProposedReceiptLine struct {
	OrderLineID uuid.UUID
	Quantity    decimal.Decimal
	Note        string
}

// ProposedReceipt is a receipt as submitted, before validation
type ProposedReceipt struct {
	Lines      []ProposedReceiptLine
	ReceivedAt time.Time
	Note       string
}

// ValidatedReceipt is a normalized receipt that passed every check: zero lines
// are dropped and repeated order lines are merged.
type ValidatedReceipt struct {
	Lines      []ProposedReceiptLine
	ReceivedAt time.Time
	Note       string
}

// Validate checks a proposed receipt against an order and its ledger. Checks run
// in a fixed order and the first failure is returned.
func Validate(order *Order, ledger *Ledger, proposal ProposedReceipt) (*ValidatedReceipt, *Rejection) {
	if !order.Status.admitsReceiptChecks() {
		return nil, NewOrderNotReceivable(order.Status)
	}

	for _, pl := range proposal.Lines {
		if _, ok := order.Line(pl.OrderLineID); !ok {
			return nil, NewLineNotInOrder(pl.OrderLineID)
		}
	}

	if len(proposal.Lines) == 0 {
		return nil, NewEmptyOrInvalidReceipt("receipt has no lines")
	}
	anyPositive := false
	for _, pl := range proposal.Lines {
		if pl.Quantity.IsNegative() {
			return nil, NewEmptyOrInvalidReceipt(
				fmt.Sprintf("quantity for order line %s cannot be negative", pl.OrderLineID))
		}
		if !fitsQuantityColumn(pl.Quantity) {
			return nil, NewEmptyOrInvalidReceipt(
				fmt.Sprintf("quantity %s for order line %s has more than %d decimal places or is too large",
					pl.Quantity, pl.OrderLineID, QuantityScale))
		}
		if pl.Quantity.IsPositive() {
			anyPositive = true
		}
	}
	if !anyPositive {
		return nil, NewEmptyOrInvalidReceipt("receipt must receive a positive quantity on at least one line")
	}

	lines := normalizeLines(proposal.Lines)

	for _, vl := range lines {
		line, _ := order.Line(vl.OrderLineID)
		remaining := ledger.Remaining(line)
		if vl.Quantity.GreaterThan(remaining) {
			return nil, NewOverReceipt(line, vl.Quantity, remaining)
		}
	}

	receivedAt := proposal.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = shared.Now()
	}

	return &ValidatedReceipt{
		Lines:      lines,
		ReceivedAt: receivedAt,
		Note:       proposal.Note,
	}, nil
}

// normalizeLines drops zero quantities and merges lines that reference the same
// order line, keeping first-seen order
func normalizeLines(in []ProposedReceiptLine) []ProposedReceiptLine {
	index := make(map[uuid.UUID]int, len(in))
	out := make([]ProposedReceiptLine, 0, len(in))
	for _, pl := range in {
		if pl.Quantity.IsZero() {
			continue
		}
		if i, ok := index[pl.OrderLineID]; ok {
			out[i].Quantity = out[i].Quantity.Add(pl.Quantity)
			out[i].Note = joinNotes(out[i].Note, pl.Note)
			continue
		}
		index[pl.OrderLineID] = len(out)
		out = append(out, pl)
	}
	return out
}

func joinNotes(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "" || strings.Contains(a, b):
		return a
	default:
		return a + "; " + b
	}
}
