package periods_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/testing/memstore"
)

var fixedNow = time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*periods.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	svc := periods.NewService(store.Periods(), store, nil, store.Audit(), nil)
	svc.WithNow(func() time.Time { return fixedNow })
	return svc, store
}

func newYear(t *testing.T, svc *periods.Service) periods.FiscalYear {
	t.Helper()
	year, err := svc.CreateFiscalYear(context.Background(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 7)
	require.NoError(t, err)
	return year
}

func TestCreateFiscalYearBuildsTwelveOpenPeriods(t *testing.T) {
	svc, store := newService(t)
	year := newYear(t, svc)

	require.Equal(t, "FY2026", year.Code)
	require.Equal(t, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), year.EndDate)
	require.Len(t, year.Periods, 12)
	for i, p := range year.Periods {
		require.Equal(t, i+1, p.Number)
		require.Equal(t, periods.PeriodStatusOpen, p.Status)
		require.Equal(t, 1, p.StartDate.Day())
		if i > 0 {
			require.Equal(t, year.Periods[i-1].EndDate.AddDate(0, 0, 1), p.StartDate)
		}
	}
	require.Equal(t, "2026-02", year.Periods[1].Code)
	require.Equal(t, 28, year.Periods[1].EndDate.Day())

	_, err := svc.CreateFiscalYear(context.Background(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 7)
	require.ErrorIs(t, err, periods.ErrFiscalYearExists)

	logs := store.Audit().Logs()
	require.Len(t, logs, 1)
	require.Equal(t, "fiscal_year.create", logs[0].Action)
}

func TestCreateFiscalYearMidYearStart(t *testing.T) {
	svc, _ := newService(t)
	year, err := svc.CreateFiscalYear(context.Background(), time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), 7)
	require.NoError(t, err)
	require.Equal(t, "FY2026-2027", year.Code)
	require.Equal(t, "2027-06", year.Periods[11].Code)

	_, err = svc.CreateFiscalYear(context.Background(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 7)
	require.ErrorIs(t, err, periods.ErrFiscalYearOverlap)
}

func TestCreateFiscalYearMonthEndStartAnchorsToFirstOfMonth(t *testing.T) {
	svc, _ := newService(t)
	year, err := svc.CreateFiscalYear(context.Background(), time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), 7)
	require.NoError(t, err)

	require.Equal(t, "FY2025", year.Code)
	require.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), year.StartDate)
	require.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), year.EndDate)
	require.Len(t, year.Periods, 12)

	codes := make(map[string]bool)
	for i, p := range year.Periods {
		require.Equal(t, fmt.Sprintf("2025-%02d", i+1), p.Code)
		require.Equal(t, time.Month(i+1), p.StartDate.Month())
		require.Equal(t, 1, p.StartDate.Day())
		require.Equal(t, p.StartDate.AddDate(0, 1, -1), p.EndDate)
		codes[p.Code] = true
	}
	require.Len(t, codes, 12)
	require.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), year.Periods[1].EndDate)
}

func TestGetPeriodForDateIsStable(t *testing.T) {
	svc, _ := newService(t)
	year := newYear(t, svc)
	ctx := context.Background()
	date := time.Date(2026, 3, 31, 23, 59, 0, 0, time.UTC)

	first, ok, err := svc.GetPeriodForDate(ctx, date, nil)
	require.NoError(t, err)
	require.True(t, ok)
	second, ok, err := svc.GetPeriodForDate(ctx, date, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, year.Periods[2].ID, first.ID)

	_, ok, err = svc.GetPeriodForDate(ctx, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestValidatePeriodOpen(t *testing.T) {
	svc, _ := newService(t)
	year := newYear(t, svc)
	ctx := context.Background()
	march := year.Periods[2]

	require.NoError(t, svc.ValidatePeriodOpen(ctx, march.StartDate, nil))

	_, err := svc.ClosePeriod(ctx, march.ID, 7, nil)
	require.NoError(t, err)

	err = svc.ValidatePeriodOpen(ctx, march.StartDate.AddDate(0, 0, 3), nil)
	var closed *shared.FiscalPeriodClosedError
	require.ErrorAs(t, err, &closed)
	require.Equal(t, march.ID, closed.PeriodID)
	require.Equal(t, "2026-03", closed.PeriodCode)
	require.Equal(t, string(periods.PeriodStatusClosed), closed.Status)

	err = svc.ValidatePeriodOpen(ctx, time.Date(2031, 5, 1, 0, 0, 0, 0, time.UTC), nil)
	require.ErrorIs(t, err, shared.ErrFiscalPeriodClosed)
}

func TestLocationOverrideTakesPrecedence(t *testing.T) {
	svc, store := newService(t)
	year := newYear(t, svc)
	ctx := context.Background()
	april := year.Periods[3]
	storeA, storeB := int64(11), int64(12)

	snap, err := svc.ClosePeriod(ctx, april.ID, 7, &storeA)
	require.NoError(t, err)
	require.NotNil(t, snap.Override)
	require.Equal(t, periods.PeriodStatusClosed, snap.Effective)
	require.Equal(t, 1, store.Periods().Overrides())

	status, err := svc.GetEffectiveStatus(ctx, april.ID, &storeA)
	require.NoError(t, err)
	require.Equal(t, periods.PeriodStatusClosed, status)

	status, err = svc.GetEffectiveStatus(ctx, april.ID, &storeB)
	require.NoError(t, err)
	require.Equal(t, periods.PeriodStatusOpen, status)

	status, err = svc.GetEffectiveStatus(ctx, april.ID, nil)
	require.NoError(t, err)
	require.Equal(t, periods.PeriodStatusOpen, status)

	require.ErrorIs(t, svc.ValidatePeriodOpen(ctx, april.StartDate, &storeA), shared.ErrFiscalPeriodClosed)
	require.NoError(t, svc.ValidatePeriodOpen(ctx, april.StartDate, &storeB))

	snap, err = svc.ReopenPeriod(ctx, april.ID, 7, "late delivery note", &storeA)
	require.NoError(t, err)
	require.Equal(t, periods.PeriodStatusOpen, snap.Effective)
	require.Equal(t, "late delivery note", snap.Override.ReopenReason)
}

func TestReopenAbsentOverrideIsNoop(t *testing.T) {
	svc, store := newService(t)
	year := newYear(t, svc)
	loc := int64(4)

	snap, err := svc.ReopenPeriod(context.Background(), year.Periods[0].ID, 7, "nothing to do", &loc)
	require.NoError(t, err)
	require.Nil(t, snap.Override)
	require.Equal(t, periods.PeriodStatusOpen, snap.Effective)
	require.Zero(t, store.Periods().Overrides())
}

func TestReopenRequiresReason(t *testing.T) {
	svc, _ := newService(t)
	year := newYear(t, svc)
	ctx := context.Background()
	jan := year.Periods[0]

	_, err := svc.ClosePeriod(ctx, jan.ID, 7, nil)
	require.NoError(t, err)
	_, err = svc.ReopenPeriod(ctx, jan.ID, 7, "   ", nil)
	require.ErrorIs(t, err, periods.ErrReopenReasonRequired)

	snap, err := svc.ReopenPeriod(ctx, jan.ID, 7, "audit adjustment", nil)
	require.NoError(t, err)
	require.Equal(t, periods.PeriodStatusOpen, snap.Period.Status)
	require.NotNil(t, snap.Period.ReopenedBy)
	require.Equal(t, "audit adjustment", snap.Period.ReopenReason)
}

func TestInvalidTransitions(t *testing.T) {
	svc, _ := newService(t)
	year := newYear(t, svc)
	ctx := context.Background()
	feb := year.Periods[1]

	_, err := svc.LockPeriod(ctx, feb.ID, 7)
	require.ErrorIs(t, err, periods.ErrInvalidPeriodTransition)

	_, err = svc.ReopenPeriod(ctx, feb.ID, 7, "why", nil)
	require.ErrorIs(t, err, periods.ErrInvalidPeriodTransition)

	_, err = svc.ClosePeriod(ctx, feb.ID, 7, nil)
	require.NoError(t, err)
	_, err = svc.ClosePeriod(ctx, feb.ID, 7, nil)
	require.ErrorIs(t, err, periods.ErrInvalidPeriodTransition)
}

func TestLockedPeriodIsTerminal(t *testing.T) {
	svc, _ := newService(t)
	year := newYear(t, svc)
	ctx := context.Background()
	may := year.Periods[4]
	loc := int64(3)

	_, err := svc.ClosePeriod(ctx, may.ID, 7, nil)
	require.NoError(t, err)
	snap, err := svc.LockPeriod(ctx, may.ID, 7)
	require.NoError(t, err)
	require.Equal(t, periods.PeriodStatusLocked, snap.Period.Status)
	require.NotNil(t, snap.Period.LockedAt)

	_, err = svc.ClosePeriod(ctx, may.ID, 8, nil)
	require.ErrorIs(t, err, periods.ErrPeriodLocked)
	_, err = svc.ReopenPeriod(ctx, may.ID, 8, "please", nil)
	require.ErrorIs(t, err, periods.ErrPeriodLocked)
	_, err = svc.LockPeriod(ctx, may.ID, 8)
	require.ErrorIs(t, err, periods.ErrPeriodLocked)
	_, err = svc.ClosePeriod(ctx, may.ID, 8, &loc)
	require.ErrorIs(t, err, periods.ErrPeriodLocked)

	status, err := svc.GetEffectiveStatus(ctx, may.ID, &loc)
	require.NoError(t, err)
	require.Equal(t, periods.PeriodStatusLocked, status)

	list, err := svc.ListPeriods(ctx, year.ID)
	require.NoError(t, err)
	require.Equal(t, periods.PeriodStatusLocked, list[4].Status)
	require.Equal(t, int64(7), *list[4].LockedBy)
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from   periods.PeriodStatus
		action periods.Action
		to     periods.PeriodStatus
		err    error
	}{
		{periods.PeriodStatusOpen, periods.ActionClose, periods.PeriodStatusClosed, nil},
		{periods.PeriodStatusOpen, periods.ActionLock, periods.PeriodStatusOpen, periods.ErrInvalidPeriodTransition},
		{periods.PeriodStatusOpen, periods.ActionReopen, periods.PeriodStatusOpen, periods.ErrInvalidPeriodTransition},
		{periods.PeriodStatusClosed, periods.ActionReopen, periods.PeriodStatusOpen, nil},
		{periods.PeriodStatusClosed, periods.ActionLock, periods.PeriodStatusLocked, nil},
		{periods.PeriodStatusLocked, periods.ActionReopen, periods.PeriodStatusLocked, periods.ErrPeriodLocked},
	}
	for _, tc := range cases {
		next, err := periods.Transition(tc.from, tc.action)
		if tc.err != nil {
			require.ErrorIs(t, err, tc.err)
		} else {
			require.NoError(t, err)
		}
		require.Equal(t, tc.to, next)
	}
}

func TestCloseFiscalYearRequiresClosedPeriods(t *testing.T) {
	svc, _ := newService(t)
	year := newYear(t, svc)
	ctx := context.Background()

	_, err := svc.CloseFiscalYear(ctx, year.ID, 7)
	require.ErrorIs(t, err, periods.ErrFiscalYearNotClosable)

	for _, p := range year.Periods {
		_, err := svc.ClosePeriod(ctx, p.ID, 7, nil)
		require.NoError(t, err)
	}
	closed, err := svc.CloseFiscalYear(ctx, year.ID, 7)
	require.NoError(t, err)
	require.Equal(t, periods.PeriodStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	stored, err := svc.GetFiscalYear(ctx, year.ID)
	require.NoError(t, err)
	require.Equal(t, periods.PeriodStatusClosed, stored.Status)
	require.Len(t, stored.Periods, 12)

	_, err = svc.CloseFiscalYear(ctx, year.ID, 7)
	require.ErrorIs(t, err, periods.ErrInvalidPeriodTransition)
}

func TestFailedTransitionLeavesStateUntouched(t *testing.T) {
	svc, store := newService(t)
	year := newYear(t, svc)
	ctx := context.Background()
	loc := int64(9)

	store.FailOn("Periods.SaveOverride", memstore.ErrInjected)
	_, err := svc.ClosePeriod(ctx, year.Periods[0].ID, 7, &loc)
	require.ErrorIs(t, err, memstore.ErrInjected)
	require.Zero(t, store.Periods().Overrides())
}

func TestTransitionsTakeRedisLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := memstore.New()
	svc := periods.NewService(store.Periods(), store, cache.NewLocker(client, time.Second), nil, nil)
	year := newYear(t, svc)
	ctx := context.Background()
	jun := year.Periods[5]

	lockKey := fmt.Sprintf("finance:period:%d:lock", jun.ID)

	_, err := svc.ClosePeriod(ctx, jun.ID, 7, nil)
	require.NoError(t, err)
	require.False(t, mr.Exists(lockKey))

	require.NoError(t, mr.Set(lockKey, "held"))
	lockedOut := periods.NewService(store.Periods(), store, cache.NewLocker(client, time.Second).WithoutRetry(), nil, nil)
	_, err = lockedOut.LockPeriod(ctx, jun.ID, 7)
	require.True(t, errors.Is(err, cache.ErrLockNotObtained))

	status, err := svc.GetEffectiveStatus(ctx, jun.ID, nil)
	require.NoError(t, err)
	require.Equal(t, periods.PeriodStatusClosed, status)
}
