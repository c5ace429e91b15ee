package journals_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/testing/memstore"
)

var fixedNow = time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)

type fixture struct {
	store   *memstore.Store
	engine  *journals.Service
	periods *periods.Service
	chart   map[accounts.Classification]accounts.Account
}

func setup(t *testing.T) fixture {
	t.Helper()
	store := memstore.New()
	chart := store.SeedChart()
	per := periods.NewService(store.Periods(), store, nil, nil, nil)
	per.WithNow(func() time.Time { return fixedNow })
	engine := journals.NewService(store.Journals(), store, per, accounts.NewService(store.Accounts(), store.Mappings()), store.Audit(), nil, nil)
	engine.WithNow(func() time.Time { return fixedNow })
	return fixture{store: store, engine: engine, periods: per, chart: chart}
}

func (f fixture) id(class accounts.Classification) int64 {
	return f.chart[class].ID
}

func (f fixture) withYear(t *testing.T) periods.FiscalYear {
	t.Helper()
	year, err := f.periods.CreateFiscalYear(context.Background(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 1)
	require.NoError(t, err)
	return year
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func manual(f fixture, amount string) journals.CreateInput {
	return journals.CreateInput{
		Type:        journals.EntryTypeManual,
		Description: "owner cash injection",
		UserID:      5,
		Lines: []journals.LineInput{
			journals.Debit(f.id(accounts.ClassCash), d(amount), "cash", nil),
			journals.Credit(f.id(accounts.ClassSalesRevenue), d(amount), "revenue", nil),
		},
	}
}

func TestPostAssignsNumberLinesAndTotals(t *testing.T) {
	f := setup(t)
	entry, err := f.engine.CreateAndPost(context.Background(), manual(f, "100.00"))
	require.NoError(t, err)

	require.NotZero(t, entry.ID)
	require.True(t, strings.HasPrefix(entry.EntryNumber, "JE-20260315093000-"), entry.EntryNumber)
	require.Len(t, entry.EntryNumber, len("JE-20260315093000-")+8)
	require.Equal(t, journals.JournalStatusPosted, entry.Status)
	require.True(t, entry.TotalDebit.Equal(d("100")))
	require.True(t, entry.TotalCredit.Equal(d("100")))
	require.Equal(t, int64(5), *entry.PostedBy)
	require.Equal(t, fixedNow, *entry.PostedAt)
	require.Equal(t, 1, entry.Lines[0].LineNumber)
	require.Equal(t, 2, entry.Lines[1].LineNumber)
	require.Nil(t, entry.FiscalPeriodID)

	logs := f.store.Audit().Logs()
	require.Len(t, logs, 1)
	require.Equal(t, "journal.post", logs[0].Action)

	other, err := f.engine.CreateAndPost(context.Background(), manual(f, "1"))
	require.NoError(t, err)
	require.NotEqual(t, entry.EntryNumber, other.EntryNumber)
}

func TestPostRejectsNonDraft(t *testing.T) {
	f := setup(t)
	entry := manual(f, "10").Draft(fixedNow)
	entry.Status = journals.JournalStatusPosted

	_, err := f.engine.Post(context.Background(), entry, 5)
	var statusErr *shared.InvalidJournalStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, "POSTED", statusErr.Actual)
	require.Equal(t, "DRAFT", statusErr.Expected)
}

func TestPostRejectsEmptyJournal(t *testing.T) {
	f := setup(t)
	_, err := f.engine.CreateAndPost(context.Background(), journals.CreateInput{Type: journals.EntryTypeManual, UserID: 5})
	require.ErrorIs(t, err, shared.ErrEmptyJournal)
}

func TestPostBalanceTolerance(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	in := manual(f, "100")
	in.Lines[1].Credit = d("99.99")
	_, err := f.engine.CreateAndPost(ctx, in)
	var mismatch *shared.DebitCreditMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.True(t, mismatch.Debit.Equal(d("100")))
	require.True(t, mismatch.Credit.Equal(d("99.99")))
	require.Empty(t, f.store.Journals().All())

	in = manual(f, "100")
	in.Lines[0].Debit = d("100.0005")
	_, err = f.engine.CreateAndPost(ctx, in)
	require.NoError(t, err)
}

func TestPostRejectsUnknownAndInactiveAccounts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	in := manual(f, "10")
	in.Lines[0].AccountID = 999
	_, err := f.engine.CreateAndPost(ctx, in)
	var accErr *shared.AccountError
	require.ErrorAs(t, err, &accErr)
	require.ErrorIs(t, err, shared.ErrUnknownAccount)
	require.Equal(t, int64(999), accErr.AccountID)

	f.store.Accounts().SetActive(f.id(accounts.ClassSalesRevenue), false)
	_, err = f.engine.CreateAndPost(ctx, manual(f, "10"))
	require.ErrorIs(t, err, shared.ErrInactiveAccount)
	require.ErrorAs(t, err, &accErr)
	require.Equal(t, f.chart[accounts.ClassSalesRevenue].Code, accErr.Code)
	require.Empty(t, f.store.Journals().All())
}

func TestPostIntoClosedPeriodPersistsNothing(t *testing.T) {
	f := setup(t)
	year := f.withYear(t)
	ctx := context.Background()
	march := year.Periods[2]
	_, err := f.periods.ClosePeriod(ctx, march.ID, 1, nil)
	require.NoError(t, err)

	_, err = f.engine.CreateAndPost(ctx, manual(f, "50"))
	var closed *shared.FiscalPeriodClosedError
	require.ErrorAs(t, err, &closed)
	require.Equal(t, "2026-03", closed.PeriodCode)
	require.Equal(t, "CLOSED", closed.Status)
	require.Empty(t, f.store.Journals().All())

	in := manual(f, "50")
	in.EntryDate = time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	entry, err := f.engine.CreateAndPost(ctx, in)
	require.NoError(t, err)
	require.Equal(t, year.Periods[1].ID, *entry.FiscalPeriodID)
}

func TestPostHonoursLocationOverride(t *testing.T) {
	f := setup(t)
	year := f.withYear(t)
	ctx := context.Background()
	loc := int64(21)
	_, err := f.periods.ClosePeriod(ctx, year.Periods[2].ID, 1, &loc)
	require.NoError(t, err)

	in := manual(f, "20")
	in.LocationID = &loc
	_, err = f.engine.CreateAndPost(ctx, in)
	require.ErrorIs(t, err, shared.ErrFiscalPeriodClosed)

	_, err = f.engine.CreateAndPost(ctx, manual(f, "20"))
	require.NoError(t, err)
}

func TestPostExplicitPeriodMustBeOpen(t *testing.T) {
	f := setup(t)
	year := f.withYear(t)
	ctx := context.Background()
	jan := year.Periods[0]
	_, err := f.periods.ClosePeriod(ctx, jan.ID, 1, nil)
	require.NoError(t, err)

	entry := manual(f, "5").Draft(fixedNow)
	entry.FiscalPeriodID = &jan.ID
	_, err = f.engine.Post(ctx, entry, 5)
	var closed *shared.FiscalPeriodClosedError
	require.ErrorAs(t, err, &closed)
	require.Equal(t, jan.ID, closed.PeriodID)
}

func TestVoidProducesBalancedMirror(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	original, err := f.engine.CreateAndPost(ctx, manual(f, "100"))
	require.NoError(t, err)

	reversal, err := f.engine.Void(ctx, original.ID, "keyed twice", 6)
	require.NoError(t, err)
	require.Equal(t, journals.EntryTypeReversal, reversal.Type)
	require.Equal(t, journals.JournalStatusPosted, reversal.Status)
	require.Equal(t, original.ID, *reversal.ReversesEntryID)
	require.Len(t, reversal.Lines, 2)
	require.Equal(t, f.id(accounts.ClassCash), reversal.Lines[0].AccountID)
	require.True(t, reversal.Lines[0].Credit.Equal(d("100")))
	require.True(t, reversal.Lines[0].Debit.IsZero())
	require.Equal(t, f.id(accounts.ClassSalesRevenue), reversal.Lines[1].AccountID)
	require.True(t, reversal.Lines[1].Debit.Equal(d("100")))

	stored, err := f.engine.GetEntry(ctx, original.ID)
	require.NoError(t, err)
	require.Equal(t, journals.JournalStatusVoid, stored.Status)
	require.Equal(t, reversal.ID, *stored.ReversedByEntryID)
	require.Equal(t, "keyed twice", stored.VoidReason)

	bal, err := f.engine.AccountBalance(ctx, f.id(accounts.ClassCash), nil, fixedNow)
	require.NoError(t, err)
	require.True(t, bal.Net().IsZero())

	_, err = f.engine.Void(ctx, original.ID, "again", 6)
	var statusErr *shared.InvalidJournalStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, "VOID", statusErr.Actual)

	_, err = f.engine.Void(ctx, reversal.ID, "undo the undo", 6)
	require.ErrorIs(t, err, shared.ErrSystemEntryVoidForbidden)
}

func TestVoidSystemEntryForbidden(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	in := manual(f, "40")
	in.IsSystemEntry = true
	entry, err := f.engine.CreateAndPost(ctx, in)
	require.NoError(t, err)

	_, err = f.engine.Void(ctx, entry.ID, "nope", 6)
	require.ErrorIs(t, err, shared.ErrSystemEntryVoidForbidden)

	stored, err := f.engine.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, journals.JournalStatusPosted, stored.Status)
}

func TestVoidMissingEntry(t *testing.T) {
	f := setup(t)
	_, err := f.engine.Void(context.Background(), 4242, "gone", 6)
	require.ErrorIs(t, err, shared.ErrJournalNotFound)
}

func TestVoidRollsBackWhenReversalCannotPost(t *testing.T) {
	f := setup(t)
	year := f.withYear(t)
	ctx := context.Background()

	in := manual(f, "75")
	in.EntryDate = time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	original, err := f.engine.CreateAndPost(ctx, in)
	require.NoError(t, err)

	_, err = f.periods.ClosePeriod(ctx, year.Periods[2].ID, 1, nil)
	require.NoError(t, err)

	_, err = f.engine.Void(ctx, original.ID, "wrong customer", 6)
	require.ErrorIs(t, err, shared.ErrFiscalPeriodClosed)

	stored, err := f.engine.GetEntry(ctx, original.ID)
	require.NoError(t, err)
	require.Equal(t, journals.JournalStatusPosted, stored.Status)
	require.Nil(t, stored.ReversedByEntryID)
	require.Len(t, f.store.Journals().All(), 1)
}

func TestVoidRollsBackWhenMarkFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	original, err := f.engine.CreateAndPost(ctx, manual(f, "12"))
	require.NoError(t, err)

	f.store.FailOn("Journals.MarkVoid", memstore.ErrInjected)
	_, err = f.engine.Void(ctx, original.ID, "dup", 6)
	require.ErrorIs(t, err, memstore.ErrInjected)
	require.Len(t, f.store.Journals().All(), 1)
}

func TestAccountLedgerOrdersLines(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	loc := int64(3)

	first := manual(f, "30")
	first.EntryDate = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	first.Lines[0].LocationID = &loc
	_, err := f.engine.CreateAndPost(ctx, first)
	require.NoError(t, err)
	_, err = f.engine.CreateAndPost(ctx, manual(f, "20"))
	require.NoError(t, err)

	rows, err := f.engine.AccountLedger(ctx, f.id(accounts.ClassCash), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), fixedNow)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.True(t, rows[0].Debit.Equal(d("30")))
	require.True(t, rows[1].Debit.Equal(d("20")))

	bal, err := f.engine.AccountBalance(ctx, f.id(accounts.ClassCash), &loc, fixedNow)
	require.NoError(t, err)
	require.True(t, bal.Net().Equal(d("30")))

	_, err = f.engine.AccountLedger(ctx, f.id(accounts.ClassCash), fixedNow, fixedNow.AddDate(0, 0, -1))
	require.Error(t, err)
}

func TestTotalsAndBalanced(t *testing.T) {
	lines := []journals.JournalLine{
		{Debit: d("10.10")},
		{Debit: d("0.90")},
		{Credit: d("11")},
	}
	debit, credit := journals.Totals(lines)
	require.True(t, debit.Equal(d("11")))
	require.True(t, journals.Balanced(debit, credit))
	require.False(t, journals.Balanced(d("1.002"), d("1")))
}
