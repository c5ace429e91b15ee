package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/shared"
)

type PeriodRepo struct{ s *Store }

// SetStatus forces a period status, bypassing transition rules.
func (r *PeriodRepo) SetStatus(id int64, status periods.PeriodStatus) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p := r.s.st.periods[id]
	p.Status = status
	r.s.st.periods[id] = p
}

func (r *PeriodRepo) FiscalYearCodeExists(ctx context.Context, code string) (bool, error) {
	if err := r.s.begin("Periods.FiscalYearCodeExists"); err != nil {
		return false, err
	}
	defer r.s.mu.Unlock()
	for _, y := range r.s.st.years {
		if y.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (r *PeriodRepo) InsertFiscalYear(ctx context.Context, year periods.FiscalYear) (periods.FiscalYear, error) {
	if err := r.s.begin("Periods.InsertFiscalYear"); err != nil {
		return periods.FiscalYear{}, err
	}
	defer r.s.mu.Unlock()
	year.ID = r.s.nextID()
	year.UpdatedAt = year.CreatedAt
	children := make([]periods.Period, len(year.Periods))
	for i, p := range year.Periods {
		p.ID = r.s.nextID()
		p.FiscalYearID = year.ID
		p.UpdatedAt = p.CreatedAt
		r.s.st.periods[p.ID] = p
		children[i] = p
	}
	stored := year
	stored.Periods = nil
	r.s.st.years[year.ID] = stored
	year.Periods = children
	return year, nil
}

func (r *PeriodRepo) GetFiscalYear(ctx context.Context, id int64) (periods.FiscalYear, error) {
	if err := r.s.begin("Periods.GetFiscalYear"); err != nil {
		return periods.FiscalYear{}, err
	}
	defer r.s.mu.Unlock()
	y, ok := r.s.st.years[id]
	if !ok {
		return periods.FiscalYear{}, periods.ErrFiscalYearNotFound
	}
	y.Periods = r.listLocked(id)
	return y, nil
}

func (r *PeriodRepo) UpdateFiscalYearStatus(ctx context.Context, id int64, status periods.PeriodStatus, userID int64, at time.Time) error {
	if err := r.s.begin("Periods.UpdateFiscalYearStatus"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	y, ok := r.s.st.years[id]
	if !ok {
		return periods.ErrFiscalYearNotFound
	}
	y.Status = status
	y.ClosedBy = &userID
	y.ClosedAt = &at
	y.UpdatedAt = at
	r.s.st.years[id] = y
	return nil
}

func (r *PeriodRepo) FindPeriodByDate(ctx context.Context, date time.Time) (periods.Period, error) {
	if err := r.s.begin("Periods.FindPeriodByDate"); err != nil {
		return periods.Period{}, err
	}
	defer r.s.mu.Unlock()
	var found []periods.Period
	for _, p := range r.s.st.periods {
		if p.Contains(date) {
			found = append(found, p)
		}
	}
	if len(found) == 0 {
		return periods.Period{}, shared.ErrPeriodNotFound
	}
	sort.Slice(found, func(i, j int) bool { return found[i].StartDate.Before(found[j].StartDate) })
	return found[0], nil
}

func (r *PeriodRepo) GetPeriod(ctx context.Context, id int64) (periods.Period, error) {
	if err := r.s.begin("Periods.GetPeriod"); err != nil {
		return periods.Period{}, err
	}
	defer r.s.mu.Unlock()
	p, ok := r.s.st.periods[id]
	if !ok {
		return periods.Period{}, shared.ErrPeriodNotFound
	}
	return p, nil
}

func (r *PeriodRepo) GetPeriodForUpdate(ctx context.Context, id int64) (periods.Period, error) {
	return r.GetPeriod(ctx, id)
}

func (r *PeriodRepo) ListPeriods(ctx context.Context, fiscalYearID int64) ([]periods.Period, error) {
	if err := r.s.begin("Periods.ListPeriods"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	return r.listLocked(fiscalYearID), nil
}

func (r *PeriodRepo) listLocked(fiscalYearID int64) []periods.Period {
	var out []periods.Period
	for _, p := range r.s.st.periods {
		if p.FiscalYearID == fiscalYearID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (r *PeriodRepo) UpdatePeriod(ctx context.Context, p periods.Period) error {
	if err := r.s.begin("Periods.UpdatePeriod"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.periods[p.ID]; !ok {
		return shared.ErrPeriodNotFound
	}
	r.s.st.periods[p.ID] = p
	return nil
}

func (r *PeriodRepo) GetOverride(ctx context.Context, periodID, locationID int64) (periods.Override, error) {
	if err := r.s.begin("Periods.GetOverride"); err != nil {
		return periods.Override{}, err
	}
	defer r.s.mu.Unlock()
	o, ok := r.s.st.overrides[pair{periodID, locationID}]
	if !ok {
		return periods.Override{}, periods.ErrOverrideNotFound
	}
	return o, nil
}

func (r *PeriodRepo) GetOverrideForUpdate(ctx context.Context, periodID, locationID int64) (periods.Override, error) {
	return r.GetOverride(ctx, periodID, locationID)
}

func (r *PeriodRepo) SaveOverride(ctx context.Context, o periods.Override) (periods.Override, error) {
	if err := r.s.begin("Periods.SaveOverride"); err != nil {
		return periods.Override{}, err
	}
	defer r.s.mu.Unlock()
	key := pair{o.PeriodID, o.LocationID}
	if existing, ok := r.s.st.overrides[key]; ok {
		o.ID = existing.ID
		o.CreatedAt = existing.CreatedAt
	} else {
		o.ID = r.s.nextID()
		o.CreatedAt = o.UpdatedAt
	}
	r.s.st.overrides[key] = o
	return o, nil
}

// Overrides returns the number of stored overrides.
func (r *PeriodRepo) Overrides() int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.st.overrides)
}
