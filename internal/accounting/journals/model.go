package journals

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryType tags the business event an entry accounts for.
type EntryType string

const (
	EntryTypeSale           EntryType = "SALE"
	EntryTypePurchase       EntryType = "PURCHASE"
	EntryTypeSaleReturn     EntryType = "SALE_RETURN"
	EntryTypePurchaseReturn EntryType = "PURCHASE_RETURN"
	EntryTypeAdjustment     EntryType = "ADJUSTMENT"
	EntryTypeTransfer       EntryType = "TRANSFER"
	EntryTypeWriteOff       EntryType = "WRITE_OFF"
	EntryTypeReversal       EntryType = "REVERSAL"
	EntryTypeManual         EntryType = "MANUAL"
)

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusDraft  JournalStatus = "DRAFT"
	JournalStatusPosted JournalStatus = "POSTED"
	JournalStatusVoid   JournalStatus = "VOID"
)

// Tolerance is the largest debit/credit difference accepted at posting.
var Tolerance = decimal.New(1, -3)

// JournalEntry captures posting metadata. Once posted only Status and the
// void fields change.
type JournalEntry struct {
	ID                int64
	EntryNumber       string
	EntryDate         time.Time
	PostingDate       time.Time
	Type              EntryType
	Description       string
	Reference         string
	SourceTable       string
	SourceID          *int64
	LocationID        *int64
	TotalDebit        decimal.Decimal
	TotalCredit       decimal.Decimal
	Status            JournalStatus
	IsSystemEntry     bool
	FiscalPeriodID    *int64
	ReversedByEntryID *int64
	ReversesEntryID   *int64
	PostedBy          *int64
	PostedAt          *time.Time
	VoidedBy          *int64
	VoidedAt          *time.Time
	VoidReason        string
	CreatedBy         int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Lines             []JournalLine
}

// JournalLine stores debit or credit amount for an account.
type JournalLine struct {
	ID          int64
	EntryID     int64
	LineNumber  int
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
	LocationID  *int64
}

// Totals sums debits and credits across lines.
func Totals(lines []JournalLine) (debit, credit decimal.Decimal) {
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

// Balanced reports whether debit and credit agree within Tolerance.
func Balanced(debit, credit decimal.Decimal) bool {
	return debit.Sub(credit).Abs().LessThanOrEqual(Tolerance)
}

// Balance is the net position of one account.
type Balance struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Net returns debit minus credit.
func (b Balance) Net() decimal.Decimal {
	return b.Debit.Sub(b.Credit)
}

// LedgerRow is one posted line in an account ledger.
type LedgerRow struct {
	EntryID     int64
	EntryNumber string
	PostingDate time.Time
	Type        EntryType
	LineNumber  int
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
	LocationID  *int64
}
