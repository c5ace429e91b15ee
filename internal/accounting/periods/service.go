package periods

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

// AuditPort records lifecycle transitions.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Locker serialises work on a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Service owns the fiscal calendar.
type Service struct {
	repo   Repository
	uow    db.UnitOfWork
	locker Locker
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the calendar service. locker and audit may be nil.
func NewService(repo Repository, uow db.UnitOfWork, locker Locker, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, uow: uow, locker: locker, audit: audit, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetPeriodForDate returns the period covering date. Periods are global, so
// locationID only matters to status checks, not to the lookup.
func (s *Service) GetPeriodForDate(ctx context.Context, date time.Time, locationID *int64) (Period, bool, error) {
	p, err := s.repo.FindPeriodByDate(ctx, date)
	if errors.Is(err, shared.ErrPeriodNotFound) {
		return Period{}, false, nil
	}
	if err != nil {
		return Period{}, false, err
	}
	return p, true, nil
}

// GetEffectiveStatus returns the location override status when present,
// else the global status. A globally locked period is locked everywhere.
func (s *Service) GetEffectiveStatus(ctx context.Context, periodID int64, locationID *int64) (PeriodStatus, error) {
	p, err := s.repo.GetPeriod(ctx, periodID)
	if err != nil {
		return "", err
	}
	return s.effectiveStatus(ctx, p, locationID)
}

func (s *Service) effectiveStatus(ctx context.Context, p Period, locationID *int64) (PeriodStatus, error) {
	if p.Status == PeriodStatusLocked || locationID == nil {
		return p.Status, nil
	}
	o, err := s.repo.GetOverride(ctx, p.ID, *locationID)
	if errors.Is(err, ErrOverrideNotFound) {
		return p.Status, nil
	}
	if err != nil {
		return "", err
	}
	return o.Status, nil
}

// ValidatePeriodOpen fails with FiscalPeriodClosedError unless a period covers
// postingDate and is effectively open for locationID.
func (s *Service) ValidatePeriodOpen(ctx context.Context, postingDate time.Time, locationID *int64) error {
	p, ok, err := s.GetPeriodForDate(ctx, postingDate, locationID)
	if err != nil {
		return err
	}
	if !ok {
		return &shared.FiscalPeriodClosedError{LocationID: locationID}
	}
	return s.ensureOpen(ctx, p, locationID)
}

// EnsureOpen checks a known period by id.
func (s *Service) EnsureOpen(ctx context.Context, periodID int64, locationID *int64) (Period, error) {
	p, err := s.repo.GetPeriod(ctx, periodID)
	if err != nil {
		return Period{}, err
	}
	if err := s.ensureOpen(ctx, p, locationID); err != nil {
		return Period{}, err
	}
	return p, nil
}

func (s *Service) ensureOpen(ctx context.Context, p Period, locationID *int64) error {
	status, err := s.effectiveStatus(ctx, p, locationID)
	if err != nil {
		return err
	}
	if status != PeriodStatusOpen {
		return &shared.FiscalPeriodClosedError{PeriodID: p.ID, PeriodCode: p.Code, Status: string(status), LocationID: locationID}
	}
	return nil
}

func (s *Service) ClosePeriod(ctx context.Context, periodID, userID int64, locationID *int64) (Snapshot, error) {
	return s.transition(ctx, periodID, locationID, ActionClose, userID, "")
}

func (s *Service) ReopenPeriod(ctx context.Context, periodID, userID int64, reason string, locationID *int64) (Snapshot, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Snapshot{}, ErrReopenReasonRequired
	}
	return s.transition(ctx, periodID, locationID, ActionReopen, userID, reason)
}

// LockPeriod locks the period globally.
func (s *Service) LockPeriod(ctx context.Context, periodID, userID int64) (Snapshot, error) {
	return s.transition(ctx, periodID, nil, ActionLock, userID, "")
}

func (s *Service) transition(ctx context.Context, periodID int64, locationID *int64, action Action, userID int64, reason string) (Snapshot, error) {
	var snap Snapshot
	run := func(ctx context.Context) error {
		return s.uow.WithinTx(ctx, func(ctx context.Context) error {
			p, err := s.repo.GetPeriodForUpdate(ctx, periodID)
			if err != nil {
				return err
			}
			now := s.now().UTC()
			if locationID == nil {
				next, err := Transition(p.Status, action)
				if err != nil {
					return err
				}
				p.Status = next
				p.UpdatedAt = now
				stampPeriod(&p, action, userID, reason, now)
				if err := s.repo.UpdatePeriod(ctx, p); err != nil {
					return err
				}
				snap = Snapshot{Period: p, Effective: p.Status}
				return nil
			}
			if p.Status == PeriodStatusLocked {
				return fmt.Errorf("%w: cannot %s", ErrPeriodLocked, action)
			}
			o, err := s.repo.GetOverrideForUpdate(ctx, periodID, *locationID)
			switch {
			case errors.Is(err, ErrOverrideNotFound):
				if action == ActionReopen {
					snap = Snapshot{Period: p, Effective: p.Status}
					return nil
				}
				o = Override{PeriodID: periodID, LocationID: *locationID, Status: p.Status}
			case err != nil:
				return err
			}
			next, err := Transition(o.Status, action)
			if err != nil {
				return err
			}
			o.Status = next
			o.UpdatedAt = now
			stampOverride(&o, action, userID, reason, now)
			saved, err := s.repo.SaveOverride(ctx, o)
			if err != nil {
				return err
			}
			snap = Snapshot{Period: p, Override: &saved, Effective: saved.Status}
			return nil
		})
	}
	var err error
	if s.locker != nil {
		err = s.locker.WithLock(ctx, internalShared.FinanceLockKey(periodID), run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return Snapshot{}, err
	}
	s.record(ctx, userID, "period."+string(action), periodID, map[string]any{
		"location_id": locationID,
		"status":      snap.Effective,
		"reason":      reason,
	})
	s.logger.InfoContext(ctx, "period transition", slog.Int64("period_id", periodID), slog.String("action", string(action)),
		slog.String("status", string(snap.Effective)), slog.Any("location_id", locationID))
	return snap, nil
}

func stampPeriod(p *Period, action Action, userID int64, reason string, at time.Time) {
	switch action {
	case ActionClose:
		p.ClosedBy, p.ClosedAt = &userID, &at
	case ActionLock:
		p.LockedBy, p.LockedAt = &userID, &at
	case ActionReopen:
		p.ReopenedBy, p.ReopenedAt, p.ReopenReason = &userID, &at, reason
	}
}

func stampOverride(o *Override, action Action, userID int64, reason string, at time.Time) {
	switch action {
	case ActionClose:
		o.ClosedBy, o.ClosedAt = &userID, &at
	case ActionLock:
		o.LockedBy, o.LockedAt = &userID, &at
	case ActionReopen:
		o.ReopenedBy, o.ReopenedAt, o.ReopenReason = &userID, &at, reason
	}
}

// CreateFiscalYear generates a year with twelve open monthly periods. The
// year always starts on the first day of startDate's month so every period
// covers exactly one calendar month.
func (s *Service) CreateFiscalYear(ctx context.Context, startDate time.Time, userID int64) (FiscalYear, error) {
	day := DateOnly(startDate)
	start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, -1)
	year := FiscalYear{
		Code:      fiscalYearCode(start, end),
		Name:      fiscalYearName(start, end),
		StartDate: start,
		EndDate:   end,
		Status:    PeriodStatusOpen,
		CreatedBy: userID,
		CreatedAt: s.now().UTC(),
	}
	for i := 0; i < 12; i++ {
		ps := start.AddDate(0, i, 0)
		year.Periods = append(year.Periods, Period{
			Number:    i + 1,
			Code:      ps.Format("2006-01"),
			Name:      ps.Format("January 2006"),
			StartDate: ps,
			EndDate:   start.AddDate(0, i+1, -1),
			Status:    PeriodStatusOpen,
			CreatedAt: year.CreatedAt,
		})
	}
	var created FiscalYear
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		exists, err := s.repo.FiscalYearCodeExists(ctx, year.Code)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrFiscalYearExists, year.Code)
		}
		for _, d := range []time.Time{start, end} {
			if _, err := s.repo.FindPeriodByDate(ctx, d); err == nil {
				return fmt.Errorf("%w: %s", ErrFiscalYearOverlap, d.Format(time.DateOnly))
			} else if !errors.Is(err, shared.ErrPeriodNotFound) {
				return err
			}
		}
		created, err = s.repo.InsertFiscalYear(ctx, year)
		return err
	})
	if err != nil {
		return FiscalYear{}, err
	}
	s.record(ctx, userID, "fiscal_year.create", created.ID, map[string]any{"code": created.Code})
	s.logger.InfoContext(ctx, "fiscal year created", slog.String("code", created.Code), slog.Int64("fiscal_year_id", created.ID))
	return created, nil
}

func fiscalYearCode(start, end time.Time) string {
	if start.Month() == time.January {
		return fmt.Sprintf("FY%d", start.Year())
	}
	return fmt.Sprintf("FY%d-%d", start.Year(), end.Year())
}

func fiscalYearName(start, end time.Time) string {
	if start.Month() == time.January {
		return fmt.Sprintf("Fiscal Year %d", start.Year())
	}
	return fmt.Sprintf("Fiscal Year %d/%d", start.Year(), end.Year())
}

func (s *Service) GetFiscalYear(ctx context.Context, id int64) (FiscalYear, error) {
	return s.repo.GetFiscalYear(ctx, id)
}

func (s *Service) ListPeriods(ctx context.Context, fiscalYearID int64) ([]Period, error) {
	return s.repo.ListPeriods(ctx, fiscalYearID)
}

// CloseFiscalYear marks the year closed once every period is closed or locked.
func (s *Service) CloseFiscalYear(ctx context.Context, id, userID int64) (FiscalYear, error) {
	var year FiscalYear
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		year, err = s.repo.GetFiscalYear(ctx, id)
		if err != nil {
			return err
		}
		if year.Status != PeriodStatusOpen {
			return fmt.Errorf("%w: fiscal year %s is %s", ErrInvalidPeriodTransition, year.Code, year.Status)
		}
		for _, p := range year.Periods {
			if p.Status == PeriodStatusOpen {
				return fmt.Errorf("%w: %s", ErrFiscalYearNotClosable, p.Code)
			}
		}
		now := s.now().UTC()
		if err := s.repo.UpdateFiscalYearStatus(ctx, id, PeriodStatusClosed, userID, now); err != nil {
			return err
		}
		year.Status = PeriodStatusClosed
		year.ClosedBy, year.ClosedAt = &userID, &now
		year.UpdatedAt = now
		return nil
	})
	if err != nil {
		return FiscalYear{}, err
	}
	s.record(ctx, userID, "fiscal_year.close", id, map[string]any{"code": year.Code})
	return year, nil
}

func (s *Service) record(ctx context.Context, userID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entity := "period"
	if strings.HasPrefix(action, "fiscal_year") {
		entity = "fiscal_year"
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  userID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now().UTC(),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
