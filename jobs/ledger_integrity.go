package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/journals"
	jobmetrics "github.com/odyssey-erp/odyssey-pharmacy/internal/jobs"
)

// Integrity check names, used as anomaly metric labels.
const (
	CheckUnbalanced     = "unbalanced_entry"
	CheckVoidNoReversal = "void_without_reversal"
	CheckOrphanMovement = "movement_without_entry"
	CheckStockDrift     = "stock_drift"
)

// IntegrityChecker runs the read-only ledger consistency queries.
type IntegrityChecker interface {
	UnbalancedEntries(ctx context.Context) ([]journals.Imbalance, error)
	VoidsWithoutReversal(ctx context.Context) ([]int64, error)
	UnaccountedMovements(ctx context.Context) ([]int64, error)
}

// IntegrityReport summarises one ledger scan.
type IntegrityReport struct {
	Unbalanced      []journals.Imbalance
	VoidsNoReversal []int64
	OrphanMovements []int64
	CheckedAt       time.Time
}

// Clean reports whether the scan found nothing.
func (r IntegrityReport) Clean() bool {
	return len(r.Unbalanced) == 0 && len(r.VoidsNoReversal) == 0 && len(r.OrphanMovements) == 0
}

// LedgerIntegrityJob verifies that every stored entry balances, every void
// has a posted reversal and every stock movement points at a posted entry.
type LedgerIntegrityJob struct {
	Checks  IntegrityChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewLedgerIntegrityJob initialises the integrity handler.
func NewLedgerIntegrityJob(checks IntegrityChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{
		Checks:  checks,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan for an Asynq task.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	_, err := j.Run(ctx)
	return err
}

// Run executes the three checks concurrently and records what they found.
// Findings are not an error; only failed queries are.
func (j *LedgerIntegrityJob) Run(ctx context.Context) (report IntegrityReport, err error) {
	if j.Checks == nil {
		return IntegrityReport{}, errors.New("ledger integrity: checks not configured")
	}
	tracker := j.Metrics.Track(TaskLedgerIntegrity)
	defer func() {
		err = tracker.End(err)
	}()
	logger := j.logger()
	start := j.now()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := j.Checks.UnbalancedEntries(gctx)
		report.Unbalanced = rows
		return err
	})
	g.Go(func() error {
		ids, err := j.Checks.VoidsWithoutReversal(gctx)
		report.VoidsNoReversal = ids
		return err
	})
	g.Go(func() error {
		ids, err := j.Checks.UnaccountedMovements(gctx)
		report.OrphanMovements = ids
		return err
	})
	if err = g.Wait(); err != nil {
		logger.Error("ledger integrity scan failed", slog.Any("error", err))
		return IntegrityReport{}, err
	}
	report.CheckedAt = start

	for _, row := range report.Unbalanced {
		logger.Warn("unbalanced journal entry",
			slog.Int64("entry_id", row.EntryID),
			slog.String("entry_number", row.EntryNumber),
			slog.String("debit", row.Debit.String()),
			slog.String("credit", row.Credit.String()))
	}
	for _, id := range report.VoidsNoReversal {
		logger.Warn("voided entry without posted reversal", slog.Int64("entry_id", id))
	}
	if len(report.OrphanMovements) > 0 {
		logger.Warn("stock movements without posted entry", slog.Any("movement_ids", report.OrphanMovements))
	}
	j.Metrics.AddAnomalies(CheckUnbalanced, 0, len(report.Unbalanced))
	j.Metrics.AddAnomalies(CheckVoidNoReversal, 0, len(report.VoidsNoReversal))
	j.Metrics.AddAnomalies(CheckOrphanMovement, 0, len(report.OrphanMovements))

	logger.Info("completed ledger integrity scan",
		slog.Bool("clean", report.Clean()),
		slog.Duration("duration", time.Since(start)))
	return report, nil
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

func (j *LedgerIntegrityJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
