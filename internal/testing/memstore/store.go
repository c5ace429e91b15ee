// Package memstore is an in-memory implementation of every repository port,
// with a unit of work that discards all writes of a failed transaction.
package memstore

import (
	"context"
	"errors"
	"sync"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/inventory"
	internalShared "github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

type pair [2]int64

type state struct {
	seq       int64
	accounts  map[int64]accounts.Account
	mappings  map[string]mappings.AccountMapping
	years     map[int64]periods.FiscalYear
	periods   map[int64]periods.Period
	overrides map[pair]periods.Override
	entries   map[int64]journals.JournalEntry
	batches   map[int64]inventory.Batch
	stock     map[pair]inventory.StoreInventory
	movements map[int64]inventory.StockMovement
	audit     []internalShared.AuditLog
	idem      map[string]string
}

func newState() *state {
	return &state{
		accounts:  map[int64]accounts.Account{},
		mappings:  map[string]mappings.AccountMapping{},
		years:     map[int64]periods.FiscalYear{},
		periods:   map[int64]periods.Period{},
		overrides: map[pair]periods.Override{},
		entries:   map[int64]journals.JournalEntry{},
		batches:   map[int64]inventory.Batch{},
		stock:     map[pair]inventory.StoreInventory{},
		movements: map[int64]inventory.StockMovement{},
		idem:      map[string]string{},
	}
}

func (s *state) clone() *state {
	c := &state{seq: s.seq, audit: append([]internalShared.AuditLog(nil), s.audit...)}
	c.accounts = cloneMap(s.accounts)
	c.mappings = cloneMap(s.mappings)
	c.years = cloneMap(s.years)
	c.periods = cloneMap(s.periods)
	c.overrides = cloneMap(s.overrides)
	c.entries = cloneMap(s.entries)
	c.batches = cloneMap(s.batches)
	c.stock = cloneMap(s.stock)
	c.movements = cloneMap(s.movements)
	c.idem = cloneMap(s.idem)
	return c
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type txKey struct{}

// Store holds all state behind a mutex. Values stored are never mutated in
// place, so a shallow snapshot is enough to roll back.
type Store struct {
	mu    sync.Mutex
	st    *state
	fails map[string]error
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), fails: map[string]error{}}
}

// WithinTx snapshots state and restores it when fn fails. Nested calls join
// the outer unit.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
		if err != nil {
			s.restore(snapshot)
		}
	}()
	if err = fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Store) restore(snapshot *state) {
	s.mu.Lock()
	s.st = snapshot
	s.mu.Unlock()
}

// FailOn makes the next call of the named operation return err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[op] = err
}

// begin acquires the mutex unless a failure was injected for op, in which
// case the mutex is released and the failure returned.
func (s *Store) begin(op string) error {
	s.mu.Lock()
	if err, ok := s.fails[op]; ok {
		delete(s.fails, op)
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) nextID() int64 {
	s.st.seq++
	return s.st.seq
}

// ErrInjected is a convenience error for FailOn.
var ErrInjected = errors.New("memstore: injected failure")

// Accounts returns the accounts.Repository view.
func (s *Store) Accounts() *AccountRepo { return &AccountRepo{s} }

// Mappings returns the mapping lookup view.
func (s *Store) Mappings() *MappingRepo { return &MappingRepo{s} }

// Periods returns the periods.Repository view.
func (s *Store) Periods() *PeriodRepo { return &PeriodRepo{s} }

// Journals returns the journals.Repository view.
func (s *Store) Journals() *JournalRepo { return &JournalRepo{s} }

// Inventory returns the inventory.RepositoryPort view.
func (s *Store) Inventory() *InventoryRepo { return &InventoryRepo{s} }

// Integrity returns the ledger consistency view.
func (s *Store) Integrity() *IntegrityRepo { return &IntegrityRepo{s} }

// Audit returns the audit sink.
func (s *Store) Audit() *AuditSink { return &AuditSink{s} }

// Idempotency returns the idempotency key store.
func (s *Store) Idempotency() *IdempotencyRepo { return &IdempotencyRepo{s} }
