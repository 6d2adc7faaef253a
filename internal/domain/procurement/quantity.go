package procurement

import "github.com/shopspring/decimal"

// QuantityScale is the number of decimal places a stored quantity keeps.
// Quantity columns are DECIMAL(18,4) and round anything finer on write.
const QuantityScale int32 = 4

var maxQuantity = decimal.New(1, 18-QuantityScale)

// fitsQuantityColumn reports whether q is stored exactly by a quantity column
func fitsQuantityColumn(q decimal.Decimal) bool {
	return q.Equal(q.Truncate(QuantityScale)) && q.Abs().LessThan(maxQuantity)
}
