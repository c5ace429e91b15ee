package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/platform/db"
)

// RepositoryPort abstracts repository usage for the service and cost resolver.
type RepositoryPort interface {
	GetBatch(ctx context.Context, id int64) (Batch, error)
	GetOnHand(ctx context.Context, locationID, batchID int64) (StoreInventory, error)
	GetOnHandForUpdate(ctx context.Context, locationID, batchID int64) (StoreInventory, error)
	ApplyDelta(ctx context.Context, locationID, batchID int64, delta decimal.Decimal, at time.Time) (StoreInventory, error)
	InsertMovement(ctx context.Context, m StockMovement) (StockMovement, error)
	LinkPair(ctx context.Context, movementID, pairedID int64) error
	StampJournal(ctx context.Context, movementIDs []int64, entryID int64) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error)
	Drift(ctx context.Context) ([]Drift, error)
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetBatch(ctx context.Context, id int64) (Batch, error) {
	var b Batch
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT id, product_id, batch_number, expiry_date, cost_price, created_at
FROM product_batches WHERE id=$1`, id).Scan(&b.ID, &b.ProductID, &b.BatchNumber, &b.ExpiryDate, &b.CostPrice, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, ErrBatchNotFound
	}
	return b, err
}

func (r *Repository) GetOnHand(ctx context.Context, locationID, batchID int64) (StoreInventory, error) {
	return r.onHand(ctx, `SELECT location_id, batch_id, quantity, version, updated_at
FROM store_inventory WHERE location_id=$1 AND batch_id=$2`, locationID, batchID)
}

// GetOnHandForUpdate locks the row until the surrounding transaction ends.
func (r *Repository) GetOnHandForUpdate(ctx context.Context, locationID, batchID int64) (StoreInventory, error) {
	return r.onHand(ctx, `SELECT location_id, batch_id, quantity, version, updated_at
FROM store_inventory WHERE location_id=$1 AND batch_id=$2 FOR UPDATE`, locationID, batchID)
}

func (r *Repository) onHand(ctx context.Context, query string, locationID, batchID int64) (StoreInventory, error) {
	var s StoreInventory
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, locationID, batchID).
		Scan(&s.LocationID, &s.BatchID, &s.Quantity, &s.Version, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoreInventory{LocationID: locationID, BatchID: batchID}, ErrStockNotFound
	}
	return s, err
}

// ApplyDelta adds a signed delta to the on-hand row, creating it when absent.
func (r *Repository) ApplyDelta(ctx context.Context, locationID, batchID int64, delta decimal.Decimal, at time.Time) (StoreInventory, error) {
	var s StoreInventory
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO store_inventory (location_id, batch_id, quantity, version, updated_at)
VALUES ($1, $2, $3, 1, $4)
ON CONFLICT (location_id, batch_id) DO UPDATE SET quantity = store_inventory.quantity + EXCLUDED.quantity,
version = store_inventory.version + 1, updated_at = EXCLUDED.updated_at
RETURNING location_id, batch_id, quantity, version, updated_at`, locationID, batchID, delta, at).
		Scan(&s.LocationID, &s.BatchID, &s.Quantity, &s.Version, &s.UpdatedAt)
	return s, err
}

func (r *Repository) InsertMovement(ctx context.Context, m StockMovement) (StockMovement, error) {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO stock_movements (location_id, batch_id, product_id, movement_type, quantity,
unit_cost, total_cost, reference_type, reference_number, reference_id, paired_movement_id, journal_entry_id, notes, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''), $14, $15) RETURNING id`,
		m.LocationID, m.BatchID, m.ProductID, m.Type, m.Quantity, m.UnitCost, m.TotalCost, m.ReferenceType, m.ReferenceNumber,
		m.ReferenceID, m.PairedMovementID, m.JournalEntryID, m.Notes, m.CreatedBy, m.CreatedAt).Scan(&m.ID)
	if err != nil {
		return StockMovement{}, fmt.Errorf("inventory: insert movement: %w", err)
	}
	return m, nil
}

func (r *Repository) LinkPair(ctx context.Context, movementID, pairedID int64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE stock_movements SET paired_movement_id=$2 WHERE id=$1`, movementID, pairedID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMovementNotFound
	}
	return nil
}

// StampJournal links movements to the entry that accounts for them. Only
// unstamped rows are touched.
func (r *Repository) StampJournal(ctx context.Context, movementIDs []int64, entryID int64) error {
	if len(movementIDs) == 0 {
		return nil
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE stock_movements SET journal_entry_id=$2
WHERE id = ANY($1) AND journal_entry_id IS NULL`, movementIDs, entryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != int64(len(movementIDs)) {
		return fmt.Errorf("%w: stamped %d of %d", ErrMovementNotFound, tag.RowsAffected(), len(movementIDs))
	}
	return nil
}

func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.LocationID != 0 {
		add("location_id=$%d", filter.LocationID)
	}
	if filter.BatchID != 0 {
		add("batch_id=$%d", filter.BatchID)
	}
	if filter.ReferenceType != "" {
		add("reference_type=$%d", filter.ReferenceType)
	}
	if filter.ReferenceNumber != "" {
		add("reference_number=$%d", filter.ReferenceNumber)
	}
	if filter.JournalEntryID != 0 {
		add("journal_entry_id=$%d", filter.JournalEntryID)
	}
	query := `SELECT id, location_id, batch_id, product_id, movement_type, quantity, unit_cost, total_cost, reference_type,
reference_number, reference_id, paired_movement_id, journal_entry_id, COALESCE(notes, ''), created_by, created_at FROM stock_movements`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StockMovement
	for rows.Next() {
		var m StockMovement
		if err := rows.Scan(&m.ID, &m.LocationID, &m.BatchID, &m.ProductID, &m.Type, &m.Quantity, &m.UnitCost, &m.TotalCost,
			&m.ReferenceType, &m.ReferenceNumber, &m.ReferenceID, &m.PairedMovementID, &m.JournalEntryID, &m.Notes,
			&m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Drift recomputes on-hand from movement history and returns mismatches.
func (r *Repository) Drift(ctx context.Context) ([]Drift, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT COALESCE(s.location_id, m.location_id), COALESCE(s.batch_id, m.batch_id),
COALESCE(s.quantity, 0), COALESCE(m.total, 0)
FROM store_inventory s
FULL OUTER JOIN (SELECT location_id, batch_id, SUM(quantity) AS total FROM stock_movements GROUP BY location_id, batch_id) m
ON m.location_id = s.location_id AND m.batch_id = s.batch_id
WHERE COALESCE(s.quantity, 0) <> COALESCE(m.total, 0)
ORDER BY 1, 2`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Drift
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.LocationID, &d.BatchID, &d.OnHand, &d.FromMovements); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
