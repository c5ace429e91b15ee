package inventory_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/inventory"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/testing/memstore"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newInventory(t *testing.T, cfg inventory.ServiceConfig) (*inventory.Service, *memstore.Store, inventory.Batch) {
	t.Helper()
	store := memstore.New()
	batch := store.Inventory().AddBatch(inventory.Batch{ProductID: 77, BatchNumber: "AMX-2026-01", CostPrice: d("40")})
	return inventory.NewService(store.Inventory(), cfg, nil), store, batch
}

func TestGetBatchCost(t *testing.T) {
	svc, _, batch := newInventory(t, inventory.ServiceConfig{})
	ctx := context.Background()

	cost, err := svc.Costs().GetBatchCost(ctx, batch.ID, d("5"))
	require.NoError(t, err)
	require.True(t, cost.UnitCost.Equal(d("40")))
	require.True(t, cost.TotalCost.Equal(d("200")))

	_, err = svc.Costs().GetBatchCost(ctx, 999, d("1"))
	require.ErrorIs(t, err, inventory.ErrBatchNotFound)

	unit, err := svc.Costs().GetBatchUnitCost(ctx, 999)
	require.NoError(t, err)
	require.True(t, unit.IsZero())
}

// Each batch keeps its own cost price; two lots of one product are never
// blended.
func TestBatchCostIsPerLot(t *testing.T) {
	svc, store, first := newInventory(t, inventory.ServiceConfig{})
	second := store.Inventory().AddBatch(inventory.Batch{ProductID: first.ProductID, BatchNumber: "AMX-2026-02", CostPrice: d("55")})
	ctx := context.Background()

	a, err := svc.Costs().GetBatchUnitCost(ctx, first.ID)
	require.NoError(t, err)
	b, err := svc.Costs().GetBatchUnitCost(ctx, second.ID)
	require.NoError(t, err)
	require.True(t, a.Equal(d("40")))
	require.True(t, b.Equal(d("55")))
}

func TestValidateStockAvailability(t *testing.T) {
	svc, store, batch := newInventory(t, inventory.ServiceConfig{})
	ctx := context.Background()

	ok, err := svc.Costs().ValidateStockAvailability(ctx, 1, batch.ID, d("1"))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.Costs().ValidateStockAvailability(ctx, 1, batch.ID, decimal.Zero)
	require.NoError(t, err)
	require.True(t, ok)

	store.Inventory().SetOnHand(1, batch.ID, d("10"))
	ok, err = svc.Costs().ValidateStockAvailability(ctx, 1, batch.ID, d("10"))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = svc.Costs().ValidateStockAvailability(ctx, 1, batch.ID, d("10.5"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLineCostRoundsToCents(t *testing.T) {
	require.True(t, inventory.LineCost(d("3"), d("3.333")).Equal(d("10")))
	require.True(t, inventory.LineCost(d("2.5"), d("0.125")).Equal(d("0.31")))
	require.True(t, inventory.LineCost(d("4"), d("40")).Equal(d("160")))
}

func TestRecordSignsQuantityByType(t *testing.T) {
	svc, store, batch := newInventory(t, inventory.ServiceConfig{})
	ctx := context.Background()

	in, err := svc.Record(ctx, inventory.MovementInput{
		LocationID: 1, BatchID: batch.ID, Type: inventory.MovementPurchase, Quantity: d("10"), UnitCost: d("40"),
		ReferenceType: "PURCHASE", ReferenceNumber: "GRN-1", UserID: 3,
	})
	require.NoError(t, err)
	require.True(t, in.Quantity.Equal(d("10")))
	require.True(t, in.TotalCost.Equal(d("400")))
	require.Equal(t, batch.ProductID, in.ProductID)

	out, err := svc.Record(ctx, inventory.MovementInput{
		LocationID: 1, BatchID: batch.ID, Type: inventory.MovementSale, Quantity: d("4"), UnitCost: d("40"),
		ReferenceType: "SALE", ReferenceNumber: "INV-1", UserID: 3,
	})
	require.NoError(t, err)
	require.True(t, out.Quantity.Equal(d("-4")))
	require.True(t, out.TotalCost.Equal(d("160")))

	qty, err := svc.OnHand(ctx, 1, batch.ID)
	require.NoError(t, err)
	require.True(t, qty.Equal(d("6")))

	drift, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Empty(t, drift)

	moves, err := svc.ListMovements(ctx, inventory.MovementFilter{ReferenceNumber: "INV-1"})
	require.NoError(t, err)
	require.Len(t, moves, 1)
	require.Len(t, store.Inventory().Movements(), 2)
}

func TestRecordRejectsInsufficientStock(t *testing.T) {
	svc, store, batch := newInventory(t, inventory.ServiceConfig{})
	store.Inventory().SetOnHand(2, batch.ID, d("3"))

	_, err := svc.Record(context.Background(), inventory.MovementInput{
		LocationID: 2, BatchID: batch.ID, Type: inventory.MovementWriteOff, Quantity: d("5"), UnitCost: d("40"),
	})
	var stockErr *shared.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.True(t, stockErr.Available.Equal(d("3")))
	require.True(t, stockErr.Required.Equal(d("5")))
	require.Empty(t, store.Inventory().Movements())
}

func TestRecordAllowsNegativeWhenConfigured(t *testing.T) {
	svc, _, batch := newInventory(t, inventory.ServiceConfig{AllowNegativeStock: true})
	ctx := context.Background()

	_, err := svc.Record(ctx, inventory.MovementInput{
		LocationID: 2, BatchID: batch.ID, Type: inventory.MovementSale, Quantity: d("2"), UnitCost: d("40"),
	})
	require.NoError(t, err)
	qty, err := svc.OnHand(ctx, 2, batch.ID)
	require.NoError(t, err)
	require.True(t, qty.Equal(d("-2")))
}

func TestRecordValidatesInput(t *testing.T) {
	svc, _, batch := newInventory(t, inventory.ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Record(ctx, inventory.MovementInput{LocationID: 1, BatchID: batch.ID, Type: "TELEPORT", Quantity: d("1")})
	require.ErrorIs(t, err, inventory.ErrInvalidMovementType)

	_, err = svc.Record(ctx, inventory.MovementInput{LocationID: 1, BatchID: batch.ID, Type: inventory.MovementPurchase, Quantity: d("0")})
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)

	_, err = svc.Record(ctx, inventory.MovementInput{LocationID: 1, BatchID: batch.ID, Type: inventory.MovementPurchase, Quantity: d("1"), UnitCost: d("-1")})
	require.ErrorIs(t, err, inventory.ErrInvalidUnitCost)

	_, err = svc.Record(ctx, inventory.MovementInput{LocationID: 1, BatchID: 555, Type: inventory.MovementPurchase, Quantity: d("1")})
	require.ErrorIs(t, err, inventory.ErrBatchNotFound)
}

func TestReconcileReportsDrift(t *testing.T) {
	svc, store, batch := newInventory(t, inventory.ServiceConfig{})
	ctx := context.Background()
	_, err := svc.Record(ctx, inventory.MovementInput{LocationID: 1, BatchID: batch.ID, Type: inventory.MovementPurchase, Quantity: d("8"), UnitCost: d("40")})
	require.NoError(t, err)
	store.Inventory().SetOnHand(1, batch.ID, d("7"))

	drift, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	require.True(t, drift[0].Difference().Equal(d("-1")))
}

func TestMovementTypeDirection(t *testing.T) {
	outgoing := []inventory.MovementType{inventory.MovementSale, inventory.MovementPurchaseReturn, inventory.MovementAdjDecrease, inventory.MovementWriteOff, inventory.MovementTransferOut}
	for _, mt := range outgoing {
		require.True(t, mt.Outgoing(), mt)
	}
	incoming := []inventory.MovementType{inventory.MovementPurchase, inventory.MovementSaleReturn, inventory.MovementAdjIncrease, inventory.MovementTransferIn}
	for _, mt := range incoming {
		require.False(t, mt.Outgoing(), mt)
	}
}
