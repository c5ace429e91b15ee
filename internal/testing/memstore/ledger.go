package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

type AccountRepo struct{ s *Store }

// Add stores an account, assigning an id when zero.
func (r *AccountRepo) Add(a accounts.Account) accounts.Account {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a.ID == 0 {
		a.ID = r.s.nextID()
	}
	r.s.st.accounts[a.ID] = a
	return a
}

// SetActive toggles an account's active flag.
func (r *AccountRepo) SetActive(id int64, active bool) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a := r.s.st.accounts[id]
	a.IsActive = active
	r.s.st.accounts[id] = a
}

func (r *AccountRepo) List(ctx context.Context) ([]accounts.Account, error) {
	if err := r.s.begin("Accounts.List"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	out := make([]accounts.Account, 0, len(r.s.st.accounts))
	for _, a := range r.s.st.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *AccountRepo) Get(ctx context.Context, id int64) (accounts.Account, error) {
	if err := r.s.begin("Accounts.Get"); err != nil {
		return accounts.Account{}, err
	}
	defer r.s.mu.Unlock()
	a, ok := r.s.st.accounts[id]
	if !ok {
		return accounts.Account{}, accounts.ErrAccountNotFound
	}
	return a, nil
}

func (r *AccountRepo) FindActiveByClassification(ctx context.Context, class accounts.Classification) ([]accounts.Account, error) {
	if err := r.s.begin("Accounts.FindActiveByClassification"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var out []accounts.Account
	for _, a := range r.s.st.accounts {
		if a.IsActive && a.Classification == class {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type MappingRepo struct{ s *Store }

// Set pins module/key to accountID.
func (r *MappingRepo) Set(module, key string, accountID int64) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	module = strings.ToUpper(module)
	r.s.st.mappings[module+"|"+key] = mappings.AccountMapping{Module: module, Key: key, AccountID: accountID}
}

func (r *MappingRepo) Get(ctx context.Context, module, key string) (mappings.AccountMapping, error) {
	if err := r.s.begin("Mappings.Get"); err != nil {
		return mappings.AccountMapping{}, err
	}
	defer r.s.mu.Unlock()
	m, ok := r.s.st.mappings[strings.ToUpper(module)+"|"+key]
	if !ok {
		return mappings.AccountMapping{}, shared.ErrMappingNotFound
	}
	return m, nil
}

type JournalRepo struct{ s *Store }

// All returns every stored entry ordered by id.
func (r *JournalRepo) All() []journals.JournalEntry {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]journals.JournalEntry, 0, len(r.s.st.entries))
	for _, e := range r.s.st.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Put overwrites an entry as-is, bypassing posting rules.
func (r *JournalRepo) Put(e journals.JournalEntry) journals.JournalEntry {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e.ID == 0 {
		e.ID = r.s.nextID()
	}
	r.s.st.entries[e.ID] = e
	return e
}

func (r *JournalRepo) InsertEntry(ctx context.Context, e journals.JournalEntry) (journals.JournalEntry, error) {
	if err := r.s.begin("Journals.InsertEntry"); err != nil {
		return journals.JournalEntry{}, err
	}
	defer r.s.mu.Unlock()
	for _, existing := range r.s.st.entries {
		if existing.EntryNumber == e.EntryNumber {
			return journals.JournalEntry{}, shared.ErrEntryNumberConflict
		}
	}
	e.ID = r.s.nextID()
	e.UpdatedAt = e.CreatedAt
	lines := make([]journals.JournalLine, len(e.Lines))
	for i, l := range e.Lines {
		l.ID = r.s.nextID()
		l.EntryID = e.ID
		lines[i] = l
	}
	e.Lines = lines
	r.s.st.entries[e.ID] = e
	return e, nil
}

func (r *JournalRepo) GetEntry(ctx context.Context, id int64) (journals.JournalEntry, error) {
	if err := r.s.begin("Journals.GetEntry"); err != nil {
		return journals.JournalEntry{}, err
	}
	defer r.s.mu.Unlock()
	e, ok := r.s.st.entries[id]
	if !ok {
		return journals.JournalEntry{}, shared.ErrJournalNotFound
	}
	return e, nil
}

func (r *JournalRepo) GetEntryForUpdate(ctx context.Context, id int64) (journals.JournalEntry, error) {
	return r.GetEntry(ctx, id)
}

func (r *JournalRepo) MarkVoid(ctx context.Context, id, reversedByID, userID int64, reason string, at time.Time) error {
	if err := r.s.begin("Journals.MarkVoid"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	e, ok := r.s.st.entries[id]
	if !ok || e.Status != journals.JournalStatusPosted {
		return shared.ErrJournalNotFound
	}
	e.Status = journals.JournalStatusVoid
	e.ReversedByEntryID = &reversedByID
	e.VoidedBy = &userID
	e.VoidedAt = &at
	e.VoidReason = reason
	e.UpdatedAt = at
	r.s.st.entries[id] = e
	return nil
}

func counted(e journals.JournalEntry) bool {
	return e.Status == journals.JournalStatusPosted || e.Status == journals.JournalStatusVoid
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (r *JournalRepo) AccountBalance(ctx context.Context, accountID int64, locationID *int64, asOf time.Time) (journals.Balance, error) {
	if err := r.s.begin("Journals.AccountBalance"); err != nil {
		return journals.Balance{}, err
	}
	defer r.s.mu.Unlock()
	b := journals.Balance{AccountID: accountID}
	for _, e := range r.s.st.entries {
		if !counted(e) || dateOnly(e.PostingDate).After(dateOnly(asOf)) {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID != accountID {
				continue
			}
			if locationID != nil && (l.LocationID == nil || *l.LocationID != *locationID) {
				continue
			}
			b.Debit = b.Debit.Add(l.Debit)
			b.Credit = b.Credit.Add(l.Credit)
		}
	}
	return b, nil
}

func (r *JournalRepo) AccountLedger(ctx context.Context, accountID int64, from, to time.Time) ([]journals.LedgerRow, error) {
	if err := r.s.begin("Journals.AccountLedger"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var out []journals.LedgerRow
	for _, e := range r.s.st.entries {
		d := dateOnly(e.PostingDate)
		if !counted(e) || d.Before(dateOnly(from)) || d.After(dateOnly(to)) {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID != accountID {
				continue
			}
			out = append(out, journals.LedgerRow{
				EntryID: e.ID, EntryNumber: e.EntryNumber, PostingDate: e.PostingDate, Type: e.Type,
				LineNumber: l.LineNumber, Debit: l.Debit, Credit: l.Credit, Description: l.Description, LocationID: l.LocationID,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PostingDate.Equal(out[j].PostingDate) {
			return out[i].PostingDate.Before(out[j].PostingDate)
		}
		if out[i].EntryID != out[j].EntryID {
			return out[i].EntryID < out[j].EntryID
		}
		return out[i].LineNumber < out[j].LineNumber
	})
	return out, nil
}

type IntegrityRepo struct{ s *Store }

func (r *IntegrityRepo) UnbalancedEntries(ctx context.Context) ([]journals.Imbalance, error) {
	if err := r.s.begin("Integrity.UnbalancedEntries"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var out []journals.Imbalance
	for _, e := range r.s.st.entries {
		if !counted(e) {
			continue
		}
		debit, credit := journals.Totals(e.Lines)
		if !journals.Balanced(debit, credit) || !debit.Equal(e.TotalDebit) || !credit.Equal(e.TotalCredit) {
			out = append(out, journals.Imbalance{EntryID: e.ID, EntryNumber: e.EntryNumber, Debit: debit, Credit: credit})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryID < out[j].EntryID })
	return out, nil
}

func (r *IntegrityRepo) VoidsWithoutReversal(ctx context.Context) ([]int64, error) {
	if err := r.s.begin("Integrity.VoidsWithoutReversal"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var out []int64
	for _, e := range r.s.st.entries {
		if e.Status != journals.JournalStatusVoid {
			continue
		}
		if e.ReversedByEntryID != nil {
			if rev, ok := r.s.st.entries[*e.ReversedByEntryID]; ok && rev.Status == journals.JournalStatusPosted {
				continue
			}
		}
		out = append(out, e.ID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r *IntegrityRepo) UnaccountedMovements(ctx context.Context) ([]int64, error) {
	if err := r.s.begin("Integrity.UnaccountedMovements"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var out []int64
	for _, m := range r.s.st.movements {
		if m.JournalEntryID != nil {
			if e, ok := r.s.st.entries[*m.JournalEntryID]; ok && e.Status == journals.JournalStatusPosted {
				continue
			}
		}
		out = append(out, m.ID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

type AuditSink struct{ s *Store }

func (a *AuditSink) Record(ctx context.Context, log internalShared.AuditLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	if err := a.s.begin("Audit.Record"); err != nil {
		return err
	}
	defer a.s.mu.Unlock()
	a.s.st.audit = append(a.s.st.audit, log)
	return nil
}

// Logs returns recorded audit logs in order.
func (a *AuditSink) Logs() []internalShared.AuditLog {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return append([]internalShared.AuditLog(nil), a.s.st.audit...)
}

type IdempotencyRepo struct{ s *Store }

func (r *IdempotencyRepo) CheckAndInsert(ctx context.Context, key, module string) error {
	if err := r.s.begin("Idempotency.CheckAndInsert"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.idem[key]; ok {
		return internalShared.ErrIdempotencyConflict
	}
	r.s.st.idem[key] = module
	return nil
}

// Has reports whether key was recorded.
func (r *IdempotencyRepo) Has(key string) bool {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.st.idem[key]
	return ok
}
