package periods

import (
	"errors"
	"time"
)

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
	PeriodStatusLocked PeriodStatus = "LOCKED"
)

// FiscalYear groups twelve monthly periods.
type FiscalYear struct {
	ID        int64
	Code      string
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Status    PeriodStatus
	ClosedBy  *int64
	ClosedAt  *time.Time
	CreatedBy int64
	CreatedAt time.Time
	UpdatedAt time.Time
	Periods   []Period
}

// Period represents a fiscal period window. EndDate is the last day included.
type Period struct {
	ID           int64
	FiscalYearID int64
	Number       int
	Code         string
	Name         string
	StartDate    time.Time
	EndDate      time.Time
	Status       PeriodStatus
	ClosedBy     *int64
	ClosedAt     *time.Time
	LockedBy     *int64
	LockedAt     *time.Time
	ReopenedBy   *int64
	ReopenedAt   *time.Time
	ReopenReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Contains reports whether date falls within the period, ignoring time of day.
func (p Period) Contains(date time.Time) bool {
	d := DateOnly(date)
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

// Override is a location specific status that shadows the global period status.
type Override struct {
	ID           int64
	PeriodID     int64
	LocationID   int64
	Status       PeriodStatus
	ClosedBy     *int64
	ClosedAt     *time.Time
	LockedBy     *int64
	LockedAt     *time.Time
	ReopenedBy   *int64
	ReopenedAt   *time.Time
	ReopenReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Snapshot describes a period as seen from one scope after a transition.
type Snapshot struct {
	Period    Period
	Override  *Override
	Effective PeriodStatus
}

// DateOnly truncates t to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

var (
	// ErrPeriodLocked indicates a transition was attempted on a locked period.
	ErrPeriodLocked = errors.New("periods: period is locked")
	// ErrInvalidPeriodTransition indicates status change not allowed.
	ErrInvalidPeriodTransition = errors.New("periods: invalid period transition")
	// ErrReopenReasonRequired indicates a reopen without justification.
	ErrReopenReasonRequired = errors.New("periods: reopen reason required")
	// ErrFiscalYearExists indicates a duplicate fiscal year code.
	ErrFiscalYearExists = errors.New("periods: fiscal year already exists")
	// ErrFiscalYearOverlap indicates the new year overlaps existing periods.
	ErrFiscalYearOverlap = errors.New("periods: fiscal year overlaps existing periods")
	// ErrFiscalYearNotFound indicates a missing fiscal year.
	ErrFiscalYearNotFound = errors.New("periods: fiscal year not found")
	// ErrFiscalYearNotClosable indicates open periods remain in the year.
	ErrFiscalYearNotClosable = errors.New("periods: fiscal year has open periods")
	// ErrOverrideNotFound indicates no location override exists.
	ErrOverrideNotFound = errors.New("periods: location override not found")
)
