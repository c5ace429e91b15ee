package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyJournal indicates an entry without lines.
	ErrEmptyJournal = errors.New("accounting: journal has no lines")
	// ErrDebitCreditMismatch indicates debit != credit.
	ErrDebitCreditMismatch = errors.New("accounting: journal lines must balance")
	// ErrInvalidJournalStatus indicates the entry is in the wrong lifecycle state.
	ErrInvalidJournalStatus = errors.New("accounting: invalid journal status")
	// ErrFiscalPeriodClosed indicates the posting period is not open.
	ErrFiscalPeriodClosed = errors.New("accounting: fiscal period is not open")
	// ErrUnknownAccount indicates a referenced account does not exist.
	ErrUnknownAccount = errors.New("accounting: unknown account")
	// ErrInactiveAccount indicates a referenced account is disabled.
	ErrInactiveAccount = errors.New("accounting: inactive account")
	// ErrSystemEntryVoidForbidden indicates a direct void of a system entry.
	ErrSystemEntryVoidForbidden = errors.New("accounting: system entries cannot be voided directly")
	// ErrAccountTypeNotConfigured indicates no active account for a classification.
	ErrAccountTypeNotConfigured = errors.New("accounting: account type not configured")
	// ErrAmbiguousAccountType indicates several active accounts share a classification.
	ErrAmbiguousAccountType = errors.New("accounting: account type is ambiguous")
	// ErrInsufficientStock indicates quantity on hand cannot cover an outgoing movement.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrPeriodNotFound indicates a missing fiscal period.
	ErrPeriodNotFound = errors.New("accounting: fiscal period not found")
	// ErrMappingNotFound indicates account mapping missing.
	ErrMappingNotFound = errors.New("accounting: account mapping not found")
	// ErrEntryNumberConflict indicates a duplicate entry number.
	ErrEntryNumberConflict = errors.New("accounting: entry number already used")
)

// DebitCreditMismatchError carries both sums of an unbalanced entry.
type DebitCreditMismatchError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *DebitCreditMismatchError) Error() string {
	return fmt.Sprintf("accounting: journal lines must balance (debit %s, credit %s)", e.Debit.StringFixed(3), e.Credit.StringFixed(3))
}

func (e *DebitCreditMismatchError) Unwrap() error { return ErrDebitCreditMismatch }

// InvalidJournalStatusError reports the actual and expected entry status.
type InvalidJournalStatusError struct {
	EntryID  int64
	Actual   string
	Expected string
}

func (e *InvalidJournalStatusError) Error() string {
	return fmt.Sprintf("accounting: journal %d is %s, expected %s", e.EntryID, e.Actual, e.Expected)
}

func (e *InvalidJournalStatusError) Unwrap() error { return ErrInvalidJournalStatus }

// FiscalPeriodClosedError identifies the period that rejected a posting.
// PeriodID is zero when no period covers the date.
type FiscalPeriodClosedError struct {
	PeriodID   int64
	PeriodCode string
	Status     string
	LocationID *int64
}

func (e *FiscalPeriodClosedError) Error() string {
	if e.PeriodID == 0 {
		return "accounting: no fiscal period covers the posting date"
	}
	if e.LocationID != nil {
		return fmt.Sprintf("accounting: fiscal period %s is %s for location %d", e.PeriodCode, e.Status, *e.LocationID)
	}
	return fmt.Sprintf("accounting: fiscal period %s is %s", e.PeriodCode, e.Status)
}

func (e *FiscalPeriodClosedError) Unwrap() error { return ErrFiscalPeriodClosed }

// AccountError names the offending account of an UnknownAccount or
// InactiveAccount failure.
type AccountError struct {
	Kind      error
	AccountID int64
	Code      string
}

func (e *AccountError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %d (%s)", e.Kind, e.AccountID, e.Code)
	}
	return fmt.Sprintf("%s: %d", e.Kind, e.AccountID)
}

func (e *AccountError) Unwrap() error { return e.Kind }

// AccountTypeError names the classification that could not be resolved.
type AccountTypeError struct {
	Kind           error
	Classification string
	Candidates     int
}

func (e *AccountTypeError) Error() string {
	if errors.Is(e.Kind, ErrAmbiguousAccountType) {
		return fmt.Sprintf("%s: %s has %d active accounts", e.Kind, e.Classification, e.Candidates)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Classification)
}

func (e *AccountTypeError) Unwrap() error { return e.Kind }

// InsufficientStockError reports available versus required quantity.
type InsufficientStockError struct {
	LocationID int64
	BatchID    int64
	Available  decimal.Decimal
	Required   decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for batch %d at location %d (available %s, required %s)",
		e.BatchID, e.LocationID, e.Available.String(), e.Required.String())
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// IsConfiguration reports whether err signals a deployment defect rather
// than bad user input.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrAccountTypeNotConfigured) || errors.Is(err, ErrAmbiguousAccountType)
}
