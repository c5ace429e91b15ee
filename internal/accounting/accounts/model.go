package accounts

import "time"

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
	AccountTypeCOGS      AccountType = "COGS"
)

// Classification is the functional role an account plays in automated postings.
type Classification string

const (
	ClassInventory          Classification = "INVENTORY"
	ClassCOGS               Classification = "COGS"
	ClassSalesRevenue       Classification = "SALES_REVENUE"
	ClassCash               Classification = "CASH"
	ClassAccountsReceivable Classification = "ACCOUNTS_RECEIVABLE"
	ClassAccountsPayable    Classification = "ACCOUNTS_PAYABLE"
	ClassAdjustmentGain     Classification = "ADJUSTMENT_GAIN"
	ClassAdjustmentLoss     Classification = "ADJUSTMENT_LOSS"
	ClassWriteOffExpense    Classification = "WRITE_OFF_EXPENSE"
)

// Account models a chart of accounts node.
type Account struct {
	ID             int64
	Code           string
	Name           string
	Type           AccountType
	Classification Classification
	HeadID         *int64
	SubheadID      *int64
	ParentID       *int64
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
