package journals

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/platform/db"
)

// Imbalance is a stored entry whose lines do not balance.
type Imbalance struct {
	EntryID     int64
	EntryNumber string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// IntegrityRepository runs read-only consistency queries over the ledger.
type IntegrityRepository struct {
	pool *pgxpool.Pool
}

func NewIntegrityRepository(pool *pgxpool.Pool) *IntegrityRepository {
	return &IntegrityRepository{pool: pool}
}

// UnbalancedEntries lists posted or voided entries whose line sums differ
// by more than Tolerance, or disagree with the header totals.
func (r *IntegrityRepository) UnbalancedEntries(ctx context.Context) ([]Imbalance, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT e.id, e.entry_number, COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_entries e LEFT JOIN journal_entry_lines l ON l.entry_id = e.id
WHERE e.status IN ('POSTED', 'VOID')
GROUP BY e.id, e.entry_number, e.total_debit, e.total_credit
HAVING ABS(COALESCE(SUM(l.debit), 0) - COALESCE(SUM(l.credit), 0)) > $1
OR COALESCE(SUM(l.debit), 0) <> e.total_debit OR COALESCE(SUM(l.credit), 0) <> e.total_credit
ORDER BY e.id`, Tolerance)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Imbalance
	for rows.Next() {
		var im Imbalance
		if err := rows.Scan(&im.EntryID, &im.EntryNumber, &im.Debit, &im.Credit); err != nil {
			return nil, err
		}
		out = append(out, im)
	}
	return out, rows.Err()
}

// VoidsWithoutReversal lists voided entries lacking a posted reversal.
func (r *IntegrityRepository) VoidsWithoutReversal(ctx context.Context) ([]int64, error) {
	return r.ids(ctx, `SELECT e.id FROM journal_entries e
LEFT JOIN journal_entries rev ON rev.id = e.reversed_by_entry_id AND rev.status = 'POSTED'
WHERE e.status = 'VOID' AND rev.id IS NULL ORDER BY e.id`)
}

// UnaccountedMovements lists stock movements without a posted journal entry.
func (r *IntegrityRepository) UnaccountedMovements(ctx context.Context) ([]int64, error) {
	return r.ids(ctx, `SELECT m.id FROM stock_movements m
LEFT JOIN journal_entries e ON e.id = m.journal_entry_id AND e.status = 'POSTED'
WHERE e.id IS NULL ORDER BY m.id`)
}

func (r *IntegrityRepository) ids(ctx context.Context, query string) ([]int64, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
