package journals

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineInput describes one debit or credit of a posting request.
type LineInput struct {
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
	LocationID  *int64
}

// Debit builds a debit line.
func Debit(accountID int64, amount decimal.Decimal, description string, locationID *int64) LineInput {
	return LineInput{AccountID: accountID, Debit: amount, Description: description, LocationID: locationID}
}

// Credit builds a credit line.
func Credit(accountID int64, amount decimal.Decimal, description string, locationID *int64) LineInput {
	return LineInput{AccountID: accountID, Credit: amount, Description: description, LocationID: locationID}
}

// CreateInput groups fields required by CreateAndPost.
type CreateInput struct {
	Type          EntryType
	Description   string
	Lines         []LineInput
	SourceTable   string
	SourceID      *int64
	LocationID    *int64
	UserID        int64
	IsSystemEntry bool
	Reference     string
	EntryDate     time.Time
}

// NewSystemInput returns a CreateInput flagged as system generated.
func NewSystemInput(entryType EntryType, description string, userID int64, lines ...LineInput) CreateInput {
	return CreateInput{Type: entryType, Description: description, UserID: userID, IsSystemEntry: true, Lines: lines}
}

// Draft converts the input into an unposted entry dated at now when no date is set.
func (in CreateInput) Draft(now time.Time) JournalEntry {
	date := in.EntryDate
	if date.IsZero() {
		date = now
	}
	entry := JournalEntry{
		EntryDate:     date,
		PostingDate:   date,
		Type:          in.Type,
		Description:   in.Description,
		Reference:     in.Reference,
		SourceTable:   in.SourceTable,
		SourceID:      in.SourceID,
		LocationID:    in.LocationID,
		Status:        JournalStatusDraft,
		IsSystemEntry: in.IsSystemEntry,
		CreatedBy:     in.UserID,
	}
	for _, l := range in.Lines {
		entry.Lines = append(entry.Lines, JournalLine{
			AccountID:   l.AccountID,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
			LocationID:  l.LocationID,
		})
	}
	return entry
}

// reverseLines swaps debit and credit on every line.
func reverseLines(lines []JournalLine) []JournalLine {
	out := make([]JournalLine, len(lines))
	for i, l := range lines {
		out[i] = JournalLine{
			AccountID:   l.AccountID,
			Debit:       l.Credit,
			Credit:      l.Debit,
			Description: l.Description,
			LocationID:  l.LocationID,
		}
	}
	return out
}
