package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-pharmacy/internal/jobs"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/testing/memstore"
	"github.com/odyssey-erp/odyssey-pharmacy/jobs"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func metricValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			if m.GetGauge() != nil {
				return m.GetGauge().GetValue()
			}
		}
	}
	return 0
}

func TestLedgerIntegrityFindsEachAnomaly(t *testing.T) {
	store := memstore.New()
	unbalanced := store.Journals().Put(journals.JournalEntry{
		EntryNumber: "JE-BROKEN",
		Status:      journals.JournalStatusPosted,
		TotalDebit:  d("100"),
		TotalCredit: d("90"),
		Lines: []journals.JournalLine{
			{LineNumber: 1, AccountID: 1, Debit: d("100"), Credit: decimal.Zero},
			{LineNumber: 2, AccountID: 2, Debit: decimal.Zero, Credit: d("90")},
		},
	})
	void := store.Journals().Put(journals.JournalEntry{
		EntryNumber: "JE-VOID",
		Status:      journals.JournalStatusVoid,
		TotalDebit:  d("10"),
		TotalCredit: d("10"),
		Lines: []journals.JournalLine{
			{LineNumber: 1, AccountID: 1, Debit: d("10"), Credit: decimal.Zero},
			{LineNumber: 2, AccountID: 2, Debit: decimal.Zero, Credit: d("10")},
		},
	})
	orphan := store.Inventory().PutMovement(inventory.StockMovement{
		LocationID: 1, BatchID: 1, Type: inventory.MovementPurchase, Quantity: d("3"),
	})

	reg := prometheus.NewRegistry()
	job := jobs.NewLedgerIntegrityJob(store.Integrity(), nil, jobmetrics.NewMetrics(reg))
	report, err := job.Run(context.Background())
	require.NoError(t, err)
	require.False(t, report.Clean())
	require.Len(t, report.Unbalanced, 1)
	require.Equal(t, unbalanced.ID, report.Unbalanced[0].EntryID)
	require.Equal(t, []int64{void.ID}, report.VoidsNoReversal)
	require.Equal(t, []int64{orphan.ID}, report.OrphanMovements)

	require.Equal(t, 1.0, metricValue(t, reg, "odyssey_ledger_anomalies_total", map[string]string{"check": jobs.CheckUnbalanced}))
	require.Equal(t, 1.0, metricValue(t, reg, "odyssey_ledger_anomalies_total", map[string]string{"check": jobs.CheckOrphanMovement}))
	require.Equal(t, 1.0, metricValue(t, reg, "odyssey_jobs_total", map[string]string{"job": jobs.TaskLedgerIntegrity, "status": "success"}))
	require.Positive(t, metricValue(t, reg, "odyssey_job_last_success_timestamp_seconds", map[string]string{"job": jobs.TaskLedgerIntegrity}))
}

func TestLedgerIntegrityCleanLedger(t *testing.T) {
	store := memstore.New()
	job := jobs.NewLedgerIntegrityJob(store.Integrity(), nil, nil)
	task, err := jobs.NewLedgerIntegrityTask(time.Now())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	report, err := job.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Clean())
}

func TestLedgerIntegrityQueryFailure(t *testing.T) {
	store := memstore.New()
	store.FailOn("Integrity.VoidsWithoutReversal", memstore.ErrInjected)
	reg := prometheus.NewRegistry()
	job := jobs.NewLedgerIntegrityJob(store.Integrity(), nil, jobmetrics.NewMetrics(reg))

	_, err := job.Run(context.Background())
	require.ErrorIs(t, err, memstore.ErrInjected)
	require.Equal(t, 1.0, metricValue(t, reg, "odyssey_jobs_failures_total", map[string]string{"job": jobs.TaskLedgerIntegrity}))
	require.Zero(t, metricValue(t, reg, "odyssey_job_last_success_timestamp_seconds", map[string]string{"job": jobs.TaskLedgerIntegrity}))
}

func TestHandleRejectsMalformedPayload(t *testing.T) {
	job := jobs.NewLedgerIntegrityJob(memstore.New().Integrity(), nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(jobs.TaskLedgerIntegrity, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestInventoryReconcileReportsDrift(t *testing.T) {
	store := memstore.New()
	batch := store.Inventory().AddBatch(inventory.Batch{ProductID: 1, BatchNumber: "B1", CostPrice: d("5")})
	store.Inventory().PutMovement(inventory.StockMovement{LocationID: 3, BatchID: batch.ID, Type: inventory.MovementPurchase, Quantity: d("10")})
	store.Inventory().SetOnHand(3, batch.ID, d("7"))

	reg := prometheus.NewRegistry()
	stock := inventory.NewService(store.Inventory(), inventory.ServiceConfig{}, nil)
	job := jobs.NewInventoryReconcileJob(stock, nil, jobmetrics.NewMetrics(reg))
	drifts, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	require.Equal(t, int64(3), drifts[0].LocationID)
	require.True(t, drifts[0].Difference().Equal(d("-3")))
	require.Equal(t, 1.0, metricValue(t, reg, "odyssey_ledger_anomalies_total", map[string]string{"check": jobs.CheckStockDrift, "location": "3"}))
}

type pruner struct {
	olderThan time.Duration
	err       error
}

func (p *pruner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	p.olderThan = olderThan
	return 4, p.err
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	p := &pruner{}
	job := jobs.NewIdempotencyCleanupJob(p, nil, nil)

	task, err := jobs.NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, p.olderThan)

	task, err = jobs.NewIdempotencyCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, jobs.DefaultIdempotencyRetention, p.olderThan)

	p.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), task))
}
