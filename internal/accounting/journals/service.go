package journals

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// PeriodGate answers whether a posting date or period accepts postings.
type PeriodGate interface {
	GetPeriodForDate(ctx context.Context, date time.Time, locationID *int64) (periods.Period, bool, error)
	EnsureOpen(ctx context.Context, periodID int64, locationID *int64) (periods.Period, error)
}

// AccountChecker fails unless the account exists and is active.
type AccountChecker interface {
	Require(ctx context.Context, id int64) (accounts.Account, error)
}

// Metrics receives posting outcomes.
type Metrics interface {
	ObservePosting(entryType string, err error)
	ObserveVoid(err error)
}

// Service is the only write path for ledger state.
type Service struct {
	repo     Repository
	uow      db.UnitOfWork
	periods  PeriodGate
	accounts AccountChecker
	audit    AuditPort
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the posting engine. audit and metrics may be nil.
func NewService(repo Repository, uow db.UnitOfWork, periods PeriodGate, accounts AccountChecker, audit AuditPort, metrics Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, uow: uow, periods: periods, accounts: accounts, audit: audit, metrics: metrics, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post validates a draft entry and persists it as posted. It joins the unit of
// work carried by ctx, so callers control atomicity with their own writes.
func (s *Service) Post(ctx context.Context, entry JournalEntry, userID int64) (posted JournalEntry, err error) {
	defer func() {
		if s.metrics != nil {
			s.metrics.ObservePosting(string(entry.Type), err)
		}
	}()
	if entry.Status != JournalStatusDraft {
		return JournalEntry{}, &shared.InvalidJournalStatusError{EntryID: entry.ID, Actual: string(entry.Status), Expected: string(JournalStatusDraft)}
	}
	if len(entry.Lines) == 0 {
		return JournalEntry{}, shared.ErrEmptyJournal
	}
	debit, credit := Totals(entry.Lines)
	if !Balanced(debit, credit) {
		return JournalEntry{}, &shared.DebitCreditMismatchError{Debit: debit, Credit: credit}
	}
	entry.Lines = append([]JournalLine(nil), entry.Lines...)

	err = s.uow.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.resolvePeriod(ctx, &entry); err != nil {
			return err
		}
		seen := make(map[int64]struct{}, len(entry.Lines))
		for _, line := range entry.Lines {
			if _, ok := seen[line.AccountID]; ok {
				continue
			}
			seen[line.AccountID] = struct{}{}
			if _, err := s.accounts.Require(ctx, line.AccountID); err != nil {
				return err
			}
		}
		now := s.now().UTC()
		entry.EntryNumber = entryNumber(now)
		for i := range entry.Lines {
			entry.Lines[i].LineNumber = i + 1
		}
		entry.Status = JournalStatusPosted
		entry.PostedBy = &userID
		entry.PostedAt = &now
		entry.TotalDebit = debit
		entry.TotalCredit = credit
		if entry.CreatedBy == 0 {
			entry.CreatedBy = userID
		}
		entry.CreatedAt = now
		inserted, err := s.repo.InsertEntry(ctx, entry)
		if err != nil {
			return fmt.Errorf("accounting: persist entry: %w", err)
		}
		posted = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, userID, "journal.post", posted.ID, map[string]any{
		"number": posted.EntryNumber,
		"type":   posted.Type,
		"total":  posted.TotalDebit.String(),
	})
	s.logger.DebugContext(ctx, "journal posted", slog.Int64("entry_id", posted.ID), slog.String("number", posted.EntryNumber),
		slog.String("type", string(posted.Type)))
	return posted, nil
}

// resolvePeriod enforces period control. An explicit period must be open;
// otherwise the covering period, if any, must be open and is attached. Lines
// booked to another location must find the period open there as well.
func (s *Service) resolvePeriod(ctx context.Context, entry *JournalEntry) error {
	var periodID int64
	if entry.FiscalPeriodID != nil {
		if _, err := s.periods.EnsureOpen(ctx, *entry.FiscalPeriodID, entry.LocationID); err != nil {
			return err
		}
		periodID = *entry.FiscalPeriodID
	} else {
		period, ok, err := s.periods.GetPeriodForDate(ctx, entry.PostingDate, entry.LocationID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if _, err := s.periods.EnsureOpen(ctx, period.ID, entry.LocationID); err != nil {
			return err
		}
		periodID = period.ID
		entry.FiscalPeriodID = &periodID
	}
	for _, location := range lineLocations(entry) {
		if _, err := s.periods.EnsureOpen(ctx, periodID, &location); err != nil {
			return err
		}
	}
	return nil
}

// lineLocations lists the distinct line locations that differ from the
// entry's own location.
func lineLocations(entry *JournalEntry) []int64 {
	var out []int64
	seen := make(map[int64]struct{})
	if entry.LocationID != nil {
		seen[*entry.LocationID] = struct{}{}
	}
	for _, line := range entry.Lines {
		if line.LocationID == nil {
			continue
		}
		if _, ok := seen[*line.LocationID]; ok {
			continue
		}
		seen[*line.LocationID] = struct{}{}
		out = append(out, *line.LocationID)
	}
	return out
}

func entryNumber(at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("JE-%s-%s", at.Format("20060102150405"), strings.ToUpper(suffix))
}

// Void posts a mirror reversal of a posted manual entry and marks the
// original void, atomically.
func (s *Service) Void(ctx context.Context, entryID int64, reason string, userID int64) (reversal JournalEntry, err error) {
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveVoid(err)
		}
	}()
	err = s.uow.WithinTx(ctx, func(ctx context.Context) error {
		original, err := s.repo.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if original.Status != JournalStatusPosted {
			return &shared.InvalidJournalStatusError{EntryID: original.ID, Actual: string(original.Status), Expected: string(JournalStatusPosted)}
		}
		if original.IsSystemEntry {
			return fmt.Errorf("%w: %s", shared.ErrSystemEntryVoidForbidden, original.EntryNumber)
		}
		now := s.now().UTC()
		originalID := original.ID
		draft := JournalEntry{
			EntryDate:       now,
			PostingDate:     now,
			Type:            EntryTypeReversal,
			Description:     reversalDescription(reason, original.EntryNumber),
			Reference:       original.EntryNumber,
			SourceTable:     "journal_entries",
			SourceID:        &originalID,
			LocationID:      original.LocationID,
			Status:          JournalStatusDraft,
			IsSystemEntry:   true,
			ReversesEntryID: &originalID,
			CreatedBy:       userID,
			Lines:           reverseLines(original.Lines),
		}
		reversal, err = s.Post(ctx, draft, userID)
		if err != nil {
			return err
		}
		return s.repo.MarkVoid(ctx, original.ID, reversal.ID, userID, reason, now)
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, userID, "journal.void", entryID, map[string]any{
		"reason":          reason,
		"reversal_id":     reversal.ID,
		"reversal_number": reversal.EntryNumber,
	})
	return reversal, nil
}

func reversalDescription(reason, number string) string {
	if reason != "" {
		return fmt.Sprintf("Reversal of %s: %s", number, reason)
	}
	return fmt.Sprintf("Reversal of %s", number)
}

// CreateAndPost builds a draft from in and posts it.
func (s *Service) CreateAndPost(ctx context.Context, in CreateInput) (JournalEntry, error) {
	return s.Post(ctx, in.Draft(s.now().UTC()), in.UserID)
}

func (s *Service) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	return s.repo.GetEntry(ctx, id)
}

// AccountBalance returns posted activity on an account up to asOf,
// optionally restricted to lines tagged with locationID.
func (s *Service) AccountBalance(ctx context.Context, accountID int64, locationID *int64, asOf time.Time) (Balance, error) {
	return s.repo.AccountBalance(ctx, accountID, locationID, asOf)
}

func (s *Service) AccountLedger(ctx context.Context, accountID int64, from, to time.Time) ([]LedgerRow, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("accounting: ledger range ends before it starts")
	}
	return s.repo.AccountLedger(ctx, accountID, from, to)
}

func (s *Service) record(ctx context.Context, userID int64, action string, entryID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  userID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entryID),
		Meta:     meta,
		At:       s.now().UTC(),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
