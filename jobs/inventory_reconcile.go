package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-pharmacy/internal/jobs"
)

// Reconciler recomputes on-hand from movement history.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]inventory.Drift, error)
}

// InventoryReconcileJob reports on-hand rows that disagree with the sum of
// their movements.
type InventoryReconcileJob struct {
	Stock   Reconciler
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewInventoryReconcileJob initialises the reconcile handler.
func NewInventoryReconcileJob(stock Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *InventoryReconcileJob {
	return &InventoryReconcileJob{Stock: stock, Logger: logger, Metrics: metrics}
}

// Handle executes the reconciliation for an Asynq task.
func (j *InventoryReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("inventory reconcile: handler not configured")
	}
	var payload InventoryReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	_, err := j.Run(ctx)
	return err
}

// Run returns every drifting (location, batch) pair.
func (j *InventoryReconcileJob) Run(ctx context.Context) (drifts []inventory.Drift, err error) {
	if j.Stock == nil {
		return nil, errors.New("inventory reconcile: stock not configured")
	}
	tracker := j.Metrics.Track(TaskInventoryReconcile)
	defer func() {
		err = tracker.End(err)
	}()
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskInventoryReconcile))
	start := time.Now()

	drifts, err = j.Stock.Reconcile(ctx)
	if err != nil {
		logger.Error("inventory reconcile failed", slog.Any("error", err))
		return nil, err
	}
	perLocation := make(map[int64]int)
	for _, d := range drifts {
		perLocation[d.LocationID]++
		logger.Warn("stock drift detected",
			slog.Int64("location_id", d.LocationID),
			slog.Int64("batch_id", d.BatchID),
			slog.String("on_hand", d.OnHand.String()),
			slog.String("from_movements", d.FromMovements.String()),
			slog.String("difference", d.Difference().String()))
	}
	for location, count := range perLocation {
		j.Metrics.AddAnomalies(CheckStockDrift, location, count)
	}
	logger.Info("completed inventory reconcile",
		slog.Int("drifts", len(drifts)),
		slog.Duration("duration", time.Since(start)))
	return drifts, nil
}
