package procurement

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger holds the received totals per order line, computed from the receipt log.
// Reversal lines carry negative quantities, so a reversed receipt nets to zero.
type Ledger struct {
	received map[uuid.UUID]decimal.Decimal
}

// NewLedger builds a ledger from per-line sums
func NewLedger(totals map[uuid.UUID]decimal.Decimal) *Ledger {
	received := make(map[uuid.UUID]decimal.Decimal, len(totals))
	for id, qty := range totals {
		received[id] = qty
	}
	return &Ledger{received: received}
}

// LedgerFromReceipts folds a receipt log into a ledger
func LedgerFromReceipts(receipts []Receipt) *Ledger {
	received := make(map[uuid.UUID]decimal.Decimal)
	for _, r := range receipts {
		for _, l := range r.Lines {
			received[l.OrderLineID] = received[l.OrderLineID].Add(l.Quantity)
		}
	}
	return &Ledger{received: received}
}

// ReceivedSoFar returns the signed total received for an order line, zero if none
func (l *Ledger) ReceivedSoFar(orderLineID uuid.UUID) decimal.Decimal {
	if qty, ok := l.received[orderLineID]; ok {
		return qty
	}
	return decimal.Zero
}

// Remaining returns the ordered quantity minus what has been received
func (l *Ledger) Remaining(line *OrderLine) decimal.Decimal {
	return line.OrderedQuantity.Sub(l.ReceivedSoFar(line.ID))
}

// LedgerDiscrepancy describes a line whose cached total disagrees with the receipt log
type LedgerDiscrepancy struct {
	OrderLineID uuid.UUID
	LineNumber  int
	Cached      decimal.Decimal
	Ledger      decimal.Decimal
}

// Discrepancies compares the ledger with the cached received quantity on each line
func (l *Ledger) Discrepancies(order *Order) []LedgerDiscrepancy {
	var diffs []LedgerDiscrepancy
	for _, line := range order.Lines {
		fromLog := l.ReceivedSoFar(line.ID)
		if !fromLog.Equal(line.ReceivedQuantity) {
			diffs = append(diffs, LedgerDiscrepancy{
				OrderLineID: line.ID,
				LineNumber:  line.LineNumber,
				Cached:      line.ReceivedQuantity,
				Ledger:      fromLog,
			})
		}
	}
	return diffs
}
