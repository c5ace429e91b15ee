package integration

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/inventory"
)

func monetary(qty, unitCost decimal.Decimal) decimal.Decimal {
	return inventory.LineCost(qty, unitCost)
}

// purchaseCost prefers the invoiced cost and falls back to the batch cost.
func purchaseCost(requested, batchCost decimal.Decimal) decimal.Decimal {
	if requested.IsPositive() {
		return requested
	}
	return batchCost
}
