package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// Service records stock movements and keeps on-hand quantities in step.
// It never opens a transaction; callers wrap it in their unit of work.
type Service struct {
	repo     RepositoryPort
	costs    *CostResolver
	allowNeg bool
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, costs: NewCostResolver(repo), allowNeg: cfg.AllowNegativeStock, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Costs exposes the batch cost resolver.
func (s *Service) Costs() *CostResolver {
	return s.costs
}

// Record validates and persists one movement, then applies its signed
// quantity to on-hand. Outgoing movements lock and check on-hand first
// unless negative stock is allowed.
func (s *Service) Record(ctx context.Context, in MovementInput) (StockMovement, error) {
	if !in.Type.Valid() {
		return StockMovement{}, fmt.Errorf("%w: %q", ErrInvalidMovementType, in.Type)
	}
	if in.LocationID == 0 || in.BatchID == 0 {
		return StockMovement{}, fmt.Errorf("inventory: location and batch required")
	}
	if !in.Quantity.IsPositive() {
		return StockMovement{}, ErrInvalidQuantity
	}
	if in.UnitCost.IsNegative() {
		return StockMovement{}, ErrInvalidUnitCost
	}
	batch, err := s.repo.GetBatch(ctx, in.BatchID)
	if err != nil {
		return StockMovement{}, err
	}
	delta := in.Quantity
	if in.Type.Outgoing() {
		delta = delta.Neg()
		if !s.allowNeg {
			if err := s.costs.RequireStock(ctx, in.LocationID, in.BatchID, in.Quantity); err != nil {
				return StockMovement{}, err
			}
		}
	}
	now := s.now().UTC()
	movement, err := s.repo.InsertMovement(ctx, StockMovement{
		LocationID:       in.LocationID,
		BatchID:          in.BatchID,
		ProductID:        batch.ProductID,
		Type:             in.Type,
		Quantity:         delta,
		UnitCost:         in.UnitCost,
		TotalCost:        LineCost(in.Quantity, in.UnitCost),
		ReferenceType:    in.ReferenceType,
		ReferenceNumber:  in.ReferenceNumber,
		ReferenceID:      in.ReferenceID,
		PairedMovementID: in.PairedMovementID,
		Notes:            in.Notes,
		CreatedBy:        in.UserID,
		CreatedAt:        now,
	})
	if err != nil {
		return StockMovement{}, err
	}
	stock, err := s.repo.ApplyDelta(ctx, in.LocationID, in.BatchID, delta, now)
	if err != nil {
		return StockMovement{}, fmt.Errorf("inventory: apply delta: %w", err)
	}
	s.logger.DebugContext(ctx, "stock movement recorded",
		slog.Int64("movement_id", movement.ID),
		slog.String("type", string(in.Type)),
		slog.Int64("location_id", in.LocationID),
		slog.Int64("batch_id", in.BatchID),
		slog.String("delta", delta.String()),
		slog.String("on_hand", stock.Quantity.String()))
	return movement, nil
}

// LinkTransfer points an outgoing transfer movement at its incoming pair.
func (s *Service) LinkTransfer(ctx context.Context, outID, inID int64) error {
	return s.repo.LinkPair(ctx, outID, inID)
}

// StampJournal records the accounting entry on each movement.
func (s *Service) StampJournal(ctx context.Context, movementIDs []int64, entryID int64) error {
	return s.repo.StampJournal(ctx, movementIDs, entryID)
}

// OnHand returns the quantity at a location, zero when no row exists.
func (s *Service) OnHand(ctx context.Context, locationID, batchID int64) (decimal.Decimal, error) {
	stock, err := s.repo.GetOnHand(ctx, locationID, batchID)
	if err != nil {
		if errors.Is(err, ErrStockNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return stock.Quantity, nil
}

func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	return s.repo.ListMovements(ctx, filter)
}

// Reconcile returns every on-hand row that disagrees with movement history.
func (s *Service) Reconcile(ctx context.Context) ([]Drift, error) {
	return s.repo.Drift(ctx)
}
