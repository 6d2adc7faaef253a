package procurement

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_ReceivedSoFar(t *testing.T) {
	lineA, lineB, lineC := uuid.New(), uuid.New(), uuid.New()
	ledger := NewLedger(map[uuid.UUID]decimal.Decimal{
		lineA: decimal.NewFromInt(4),
		lineB: decimal.NewFromInt(0),
	})

	assert.True(t, ledger.ReceivedSoFar(lineA).Equal(decimal.NewFromInt(4)))
	assert.True(t, ledger.ReceivedSoFar(lineB).IsZero())
	assert.True(t, ledger.ReceivedSoFar(lineC).IsZero(), "line without receipts reads zero")
}

func TestLedger_NewLedgerCopiesInput(t *testing.T) {
	line := uuid.New()
	totals := map[uuid.UUID]decimal.Decimal{line: decimal.NewFromInt(2)}
	ledger := NewLedger(totals)

	totals[line] = decimal.NewFromInt(9)

	assert.True(t, ledger.ReceivedSoFar(line).Equal(decimal.NewFromInt(2)))
}

func TestLedgerFromReceipts_NetsReversals(t *testing.T) {
	line := uuid.New()
	receipts := []Receipt{
		{Kind: ReceiptKindStandard, Lines: []ReceiptLine{{OrderLineID: line, Quantity: decimal.NewFromInt(6)}}},
		{Kind: ReceiptKindStandard, Lines: []ReceiptLine{{OrderLineID: line, Quantity: decimal.NewFromInt(3)}}},
		{Kind: ReceiptKindReversal, Lines: []ReceiptLine{{OrderLineID: line, Quantity: decimal.NewFromInt(-6)}}},
	}

	ledger := LedgerFromReceipts(receipts)

	assert.True(t, ledger.ReceivedSoFar(line).Equal(decimal.NewFromInt(3)))
}

func TestLedger_Remaining(t *testing.T) {
	line := OrderLine{ID: uuid.New(), OrderedQuantity: decimal.NewFromInt(90)}
	ledger := NewLedger(map[uuid.UUID]decimal.Decimal{line.ID: decimal.NewFromInt(40)})

	assert.True(t, ledger.Remaining(&line).Equal(decimal.NewFromInt(50)))
}

func TestLedger_Discrepancies(t *testing.T) {
	order := newApprovedOrder(t, "10", "5")
	order.Lines[0].ReceivedQuantity = decimal.NewFromInt(3)

	ledger := NewLedger(map[uuid.UUID]decimal.Decimal{
		order.Lines[0].ID: decimal.NewFromInt(4),
	})

	diffs := ledger.Discrepancies(order)
	require.Len(t, diffs, 1)
	assert.Equal(t, order.Lines[0].ID, diffs[0].OrderLineID)
	assert.Equal(t, 1, diffs[0].LineNumber)
	assert.True(t, diffs[0].Cached.Equal(decimal.NewFromInt(3)))
	assert.True(t, diffs[0].Ledger.Equal(decimal.NewFromInt(4)))
}

func TestLedger_NoDiscrepanciesWhenInStep(t *testing.T) {
	order := newApprovedOrder(t, "10")
	assert.Empty(t, NewLedger(nil).Discrepancies(order))
}
