package inventory

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/shared"
)

// CostResolver values outgoing stock at the cost price recorded on each
// batch. Batches pin their own cost, so there is no cross-batch FIFO layer.
type CostResolver struct {
	repo RepositoryPort
}

func NewCostResolver(repo RepositoryPort) *CostResolver {
	return &CostResolver{repo: repo}
}

// LineCost is the monetary value of qty units at unitCost, rounded to cents.
// Movements and journal lines both use it so their totals agree.
func LineCost(qty, unitCost decimal.Decimal) decimal.Decimal {
	return qty.Mul(unitCost).Round(2)
}

// GetBatchCost returns unit and total cost of qty units of a batch.
func (c *CostResolver) GetBatchCost(ctx context.Context, batchID int64, qty decimal.Decimal) (BatchCost, error) {
	batch, err := c.repo.GetBatch(ctx, batchID)
	if err != nil {
		return BatchCost{}, err
	}
	return BatchCost{UnitCost: batch.CostPrice, TotalCost: LineCost(qty, batch.CostPrice)}, nil
}

// GetBatchUnitCost returns the batch cost price, or zero when the batch is missing.
func (c *CostResolver) GetBatchUnitCost(ctx context.Context, batchID int64) (decimal.Decimal, error) {
	batch, err := c.repo.GetBatch(ctx, batchID)
	if errors.Is(err, ErrBatchNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return batch.CostPrice, nil
}

// ValidateStockAvailability reports whether on-hand covers required. A
// missing row counts as zero.
func (c *CostResolver) ValidateStockAvailability(ctx context.Context, locationID, batchID int64, required decimal.Decimal) (bool, error) {
	stock, err := c.repo.GetOnHand(ctx, locationID, batchID)
	if err != nil && !errors.Is(err, ErrStockNotFound) {
		return false, err
	}
	return stock.Quantity.GreaterThanOrEqual(required), nil
}

// RequireStock is the locking variant of ValidateStockAvailability used on
// the write path.
func (c *CostResolver) RequireStock(ctx context.Context, locationID, batchID int64, required decimal.Decimal) error {
	stock, err := c.repo.GetOnHandForUpdate(ctx, locationID, batchID)
	if err != nil && !errors.Is(err, ErrStockNotFound) {
		return err
	}
	if stock.Quantity.LessThan(required) {
		return &shared.InsufficientStockError{LocationID: locationID, BatchID: batchID, Available: stock.Quantity, Required: required}
	}
	return nil
}
