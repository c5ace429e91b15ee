package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/platform/db"
)

// Repository persists fiscal years, periods and location overrides.
type Repository interface {
	FiscalYearCodeExists(ctx context.Context, code string) (bool, error)
	InsertFiscalYear(ctx context.Context, year FiscalYear) (FiscalYear, error)
	GetFiscalYear(ctx context.Context, id int64) (FiscalYear, error)
	UpdateFiscalYearStatus(ctx context.Context, id int64, status PeriodStatus, userID int64, at time.Time) error
	FindPeriodByDate(ctx context.Context, date time.Time) (Period, error)
	GetPeriod(ctx context.Context, id int64) (Period, error)
	GetPeriodForUpdate(ctx context.Context, id int64) (Period, error)
	ListPeriods(ctx context.Context, fiscalYearID int64) ([]Period, error)
	UpdatePeriod(ctx context.Context, p Period) error
	GetOverride(ctx context.Context, periodID, locationID int64) (Override, error)
	GetOverrideForUpdate(ctx context.Context, periodID, locationID int64) (Override, error)
	SaveOverride(ctx context.Context, o Override) (Override, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const periodColumns = `id, fiscal_year_id, number, code, name, start_date, end_date, status,
closed_by, closed_at, locked_by, locked_at, reopened_by, reopened_at, COALESCE(reopen_reason, ''), created_at, updated_at`

const overrideColumns = `id, period_id, location_id, status, closed_by, closed_at, locked_by, locked_at,
reopened_by, reopened_at, COALESCE(reopen_reason, ''), created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.FiscalYearID, &p.Number, &p.Code, &p.Name, &p.StartDate, &p.EndDate, &p.Status,
		&p.ClosedBy, &p.ClosedAt, &p.LockedBy, &p.LockedAt, &p.ReopenedBy, &p.ReopenedAt, &p.ReopenReason,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, shared.ErrPeriodNotFound
	}
	return p, err
}

func scanOverride(row pgx.Row) (Override, error) {
	var o Override
	err := row.Scan(&o.ID, &o.PeriodID, &o.LocationID, &o.Status, &o.ClosedBy, &o.ClosedAt, &o.LockedBy, &o.LockedAt,
		&o.ReopenedBy, &o.ReopenedAt, &o.ReopenReason, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Override{}, ErrOverrideNotFound
	}
	return o, err
}

func (r *repository) FiscalYearCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM fiscal_years WHERE code=$1)`, code).Scan(&exists)
	return exists, err
}

// InsertFiscalYear stores the year and its periods, filling generated ids.
func (r *repository) InsertFiscalYear(ctx context.Context, year FiscalYear) (FiscalYear, error) {
	q := db.Conn(ctx, r.pool)
	err := q.QueryRow(ctx, `INSERT INTO fiscal_years (code, name, start_date, end_date, status, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id`,
		year.Code, year.Name, year.StartDate, year.EndDate, year.Status, year.CreatedBy, year.CreatedAt).Scan(&year.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return FiscalYear{}, ErrFiscalYearExists
		}
		return FiscalYear{}, err
	}
	year.UpdatedAt = year.CreatedAt
	for i := range year.Periods {
		p := &year.Periods[i]
		p.FiscalYearID = year.ID
		err := q.QueryRow(ctx, `INSERT INTO periods (fiscal_year_id, number, code, name, start_date, end_date, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8) RETURNING id`,
			p.FiscalYearID, p.Number, p.Code, p.Name, p.StartDate, p.EndDate, p.Status, p.CreatedAt).Scan(&p.ID)
		if err != nil {
			return FiscalYear{}, err
		}
		p.UpdatedAt = p.CreatedAt
	}
	return year, nil
}

func (r *repository) GetFiscalYear(ctx context.Context, id int64) (FiscalYear, error) {
	var y FiscalYear
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT id, code, name, start_date, end_date, status, closed_by, closed_at, created_by, created_at, updated_at
FROM fiscal_years WHERE id=$1`, id).
		Scan(&y.ID, &y.Code, &y.Name, &y.StartDate, &y.EndDate, &y.Status, &y.ClosedBy, &y.ClosedAt, &y.CreatedBy, &y.CreatedAt, &y.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalYear{}, ErrFiscalYearNotFound
		}
		return FiscalYear{}, err
	}
	y.Periods, err = r.ListPeriods(ctx, id)
	if err != nil {
		return FiscalYear{}, err
	}
	return y, nil
}

func (r *repository) UpdateFiscalYearStatus(ctx context.Context, id int64, status PeriodStatus, userID int64, at time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE fiscal_years SET status=$2, closed_by=$3, closed_at=$4, updated_at=$4 WHERE id=$1`, id, status, userID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFiscalYearNotFound
	}
	return nil
}

// FindPeriodByDate returns the period whose window covers date in any status.
func (r *repository) FindPeriodByDate(ctx context.Context, date time.Time) (Period, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+periodColumns+`
FROM periods WHERE $1::date BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1`, DateOnly(date))
	return scanPeriod(row)
}

func (r *repository) GetPeriod(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE id=$1`, id))
}

func (r *repository) GetPeriodForUpdate(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE id=$1 FOR UPDATE`, id))
}

func (r *repository) ListPeriods(ctx context.Context, fiscalYearID int64) ([]Period, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+periodColumns+` FROM periods WHERE fiscal_year_id=$1 ORDER BY number`, fiscalYearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) UpdatePeriod(ctx context.Context, p Period) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE periods SET status=$2, closed_by=$3, closed_at=$4, locked_by=$5, locked_at=$6,
reopened_by=$7, reopened_at=$8, reopen_reason=NULLIF($9, ''), updated_at=$10 WHERE id=$1`,
		p.ID, p.Status, p.ClosedBy, p.ClosedAt, p.LockedBy, p.LockedAt, p.ReopenedBy, p.ReopenedAt, p.ReopenReason, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrPeriodNotFound
	}
	return nil
}

func (r *repository) GetOverride(ctx context.Context, periodID, locationID int64) (Override, error) {
	return scanOverride(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+overrideColumns+`
FROM period_location_overrides WHERE period_id=$1 AND location_id=$2`, periodID, locationID))
}

func (r *repository) GetOverrideForUpdate(ctx context.Context, periodID, locationID int64) (Override, error) {
	return scanOverride(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+overrideColumns+`
FROM period_location_overrides WHERE period_id=$1 AND location_id=$2 FOR UPDATE`, periodID, locationID))
}

// SaveOverride upserts on (period_id, location_id).
func (r *repository) SaveOverride(ctx context.Context, o Override) (Override, error) {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO period_location_overrides
(period_id, location_id, status, closed_by, closed_at, locked_by, locked_at, reopened_by, reopened_at, reopen_reason, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $11)
ON CONFLICT (period_id, location_id) DO UPDATE SET status=EXCLUDED.status, closed_by=EXCLUDED.closed_by, closed_at=EXCLUDED.closed_at,
locked_by=EXCLUDED.locked_by, locked_at=EXCLUDED.locked_at, reopened_by=EXCLUDED.reopened_by, reopened_at=EXCLUDED.reopened_at,
reopen_reason=EXCLUDED.reopen_reason, updated_at=EXCLUDED.updated_at
RETURNING id, created_at`,
		o.PeriodID, o.LocationID, o.Status, o.ClosedBy, o.ClosedAt, o.LockedBy, o.LockedAt, o.ReopenedBy, o.ReopenedAt, o.ReopenReason, o.UpdatedAt).
		Scan(&o.ID, &o.CreatedAt)
	return o, err
}
