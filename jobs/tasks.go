package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity scans the ledger for unbalanced entries, voids
	// without reversal and movements without a posted entry.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskInventoryReconcile compares on-hand rows with movement history.
	TaskInventoryReconcile = "inventory:reconcile"
	// TaskIdempotencyCleanup prunes old idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// LedgerIntegrityPayload carries scheduling metadata.
type LedgerIntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// InventoryReconcilePayload carries scheduling metadata.
type InventoryReconcilePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// IdempotencyCleanupPayload sets how long keys are kept.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the ledger scan.
func NewLedgerIntegrityTask(at time.Time) (*asynq.Task, error) {
	return newTask(TaskLedgerIntegrity, LedgerIntegrityPayload{ScheduledFor: at})
}

// NewInventoryReconcileTask constructs an Asynq task for stock reconciliation.
func NewInventoryReconcileTask(at time.Time) (*asynq.Task, error) {
	return newTask(TaskInventoryReconcile, InventoryReconcilePayload{ScheduledFor: at})
}

// NewIdempotencyCleanupTask constructs an Asynq task pruning keys older than retention.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, IdempotencyCleanupPayload{RetentionHours: int(retention.Hours())})
}

func newTask(typ string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault)), nil
}
