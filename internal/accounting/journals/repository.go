package journals

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/platform/db"
)

// Repository encapsulates DB operations for journals. Writes join the
// transaction carried by ctx.
type Repository interface {
	InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	GetEntry(ctx context.Context, id int64) (JournalEntry, error)
	GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error)
	MarkVoid(ctx context.Context, id, reversedByID, userID int64, reason string, at time.Time) error
	AccountBalance(ctx context.Context, accountID int64, locationID *int64, asOf time.Time) (Balance, error)
	AccountLedger(ctx context.Context, accountID int64, from, to time.Time) ([]LedgerRow, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const entryColumns = `id, entry_number, entry_date, posting_date, entry_type, COALESCE(description, ''), COALESCE(reference, ''),
COALESCE(source_table, ''), source_id, location_id, total_debit, total_credit, status, is_system_entry, fiscal_period_id,
reversed_by_entry_id, reverses_entry_id, posted_by, posted_at, voided_by, voided_at, COALESCE(void_reason, ''),
created_by, created_at, updated_at`

const entryNumberConstraint = "journal_entries_entry_number_key"

// InsertEntry writes the header and every line, returning generated ids.
func (r *repository) InsertEntry(ctx context.Context, e JournalEntry) (JournalEntry, error) {
	q := db.Conn(ctx, r.pool)
	err := q.QueryRow(ctx, `INSERT INTO journal_entries (entry_number, entry_date, posting_date, entry_type, description, reference,
source_table, source_id, location_id, total_debit, total_credit, status, is_system_entry, fiscal_period_id,
reverses_entry_id, posted_by, posted_at, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $19)
RETURNING id`,
		e.EntryNumber, e.EntryDate, e.PostingDate, e.Type, e.Description, e.Reference,
		e.SourceTable, e.SourceID, e.LocationID, e.TotalDebit, e.TotalCredit, e.Status, e.IsSystemEntry, e.FiscalPeriodID,
		e.ReversesEntryID, e.PostedBy, e.PostedAt, e.CreatedBy, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		if db.IsUniqueViolation(err, entryNumberConstraint) {
			return JournalEntry{}, shared.ErrEntryNumberConflict
		}
		return JournalEntry{}, err
	}
	e.UpdatedAt = e.CreatedAt
	batch := &pgx.Batch{}
	for _, l := range e.Lines {
		batch.Queue(`INSERT INTO journal_entry_lines (entry_id, line_number, account_id, debit, credit, description, location_id)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7) RETURNING id`,
			e.ID, l.LineNumber, l.AccountID, l.Debit, l.Credit, l.Description, l.LocationID)
	}
	results := q.SendBatch(ctx, batch)
	defer results.Close()
	for i := range e.Lines {
		e.Lines[i].EntryID = e.ID
		if err := results.QueryRow().Scan(&e.Lines[i].ID); err != nil {
			return JournalEntry{}, err
		}
	}
	return e, nil
}

func (r *repository) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	return r.load(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id)
}

func (r *repository) GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	return r.load(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, id)
}

func (r *repository) load(ctx context.Context, query string, id int64) (JournalEntry, error) {
	q := db.Conn(ctx, r.pool)
	var e JournalEntry
	err := q.QueryRow(ctx, query, id).Scan(&e.ID, &e.EntryNumber, &e.EntryDate, &e.PostingDate, &e.Type, &e.Description, &e.Reference,
		&e.SourceTable, &e.SourceID, &e.LocationID, &e.TotalDebit, &e.TotalCredit, &e.Status, &e.IsSystemEntry, &e.FiscalPeriodID,
		&e.ReversedByEntryID, &e.ReversesEntryID, &e.PostedBy, &e.PostedAt, &e.VoidedBy, &e.VoidedAt, &e.VoidReason,
		&e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, entry_id, line_number, account_id, debit, credit, COALESCE(description, ''), location_id
FROM journal_entry_lines WHERE entry_id=$1 ORDER BY line_number`, id)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.LineNumber, &l.AccountID, &l.Debit, &l.Credit, &l.Description, &l.LocationID); err != nil {
			return JournalEntry{}, err
		}
		e.Lines = append(e.Lines, l)
	}
	return e, rows.Err()
}

// MarkVoid is the only update allowed on a posted entry.
func (r *repository) MarkVoid(ctx context.Context, id, reversedByID, userID int64, reason string, at time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE journal_entries SET status='VOID', reversed_by_entry_id=$2, voided_by=$3,
void_reason=NULLIF($4, ''), voided_at=$5, updated_at=$5 WHERE id=$1 AND status='POSTED'`, id, reversedByID, userID, reason, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

// AccountBalance sums posted and voided lines, since a void is offset by its
// posted reversal.
func (r *repository) AccountBalance(ctx context.Context, accountID int64, locationID *int64, asOf time.Time) (Balance, error) {
	b := Balance{AccountID: accountID}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_entry_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_id=$1 AND e.status IN ('POSTED', 'VOID') AND e.posting_date::date <= $2::date
AND ($3::bigint IS NULL OR l.location_id = $3)`, accountID, asOf, locationID).Scan(&b.Debit, &b.Credit)
	if err != nil {
		return Balance{}, err
	}
	return b, nil
}

func (r *repository) AccountLedger(ctx context.Context, accountID int64, from, to time.Time) ([]LedgerRow, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT e.id, e.entry_number, e.posting_date, e.entry_type, l.line_number, l.debit, l.credit,
COALESCE(l.description, ''), l.location_id
FROM journal_entry_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_id=$1 AND e.status IN ('POSTED', 'VOID') AND e.posting_date::date BETWEEN $2::date AND $3::date
ORDER BY e.posting_date, e.id, l.line_number`, accountID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerRow
	for rows.Next() {
		var row LedgerRow
		if err := rows.Scan(&row.EntryID, &row.EntryNumber, &row.PostingDate, &row.Type, &row.LineNumber, &row.Debit, &row.Credit,
			&row.Description, &row.LocationID); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
