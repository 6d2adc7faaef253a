package persistence

import (
	"strings"
)

// orderSortColumns whitelists the purchase_orders columns a list may be
// sorted by. Anything else falls back to created_at, so user input never
// reaches the ORDER BY clause.
var orderSortColumns = map[string]bool{
	"created_at":         true,
	"updated_at":         true,
	"order_number":       true,
	"supplier_reference": true,
	"issue_date":         true,
	"expected_date":      true,
	"status":             true,
	"approved_at":        true,
	"closed_at":          true,
}

// orderListSort returns the ORDER BY expression for an order list. The id
// tiebreak keeps pages stable when the sort column has duplicates.
func orderListSort(field, dir string) string {
	column := strings.ToLower(strings.TrimSpace(field))
	if !orderSortColumns[column] {
		column = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(strings.TrimSpace(dir), "asc") {
		direction = "ASC"
	}
	return column + " " + direction + ", id ASC"
}
