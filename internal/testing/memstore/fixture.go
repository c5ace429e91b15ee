package memstore

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/accounts"
)

var chart = []struct {
	class accounts.Classification
	typ   accounts.AccountType
	name  string
}{
	{accounts.ClassCash, accounts.AccountTypeAsset, "Cash on Hand"},
	{accounts.ClassAccountsReceivable, accounts.AccountTypeAsset, "Accounts Receivable"},
	{accounts.ClassInventory, accounts.AccountTypeAsset, "Pharmacy Inventory"},
	{accounts.ClassAccountsPayable, accounts.AccountTypeLiability, "Accounts Payable"},
	{accounts.ClassSalesRevenue, accounts.AccountTypeRevenue, "Sales Revenue"},
	{accounts.ClassAdjustmentGain, accounts.AccountTypeRevenue, "Inventory Adjustment Gain"},
	{accounts.ClassCOGS, accounts.AccountTypeCOGS, "Cost of Goods Sold"},
	{accounts.ClassAdjustmentLoss, accounts.AccountTypeExpense, "Inventory Adjustment Loss"},
	{accounts.ClassWriteOffExpense, accounts.AccountTypeExpense, "Expired Stock Write-off"},
}

// SeedChart adds one active account per classification.
func (s *Store) SeedChart() map[accounts.Classification]accounts.Account {
	out := make(map[accounts.Classification]accounts.Account, len(chart))
	repo := s.Accounts()
	for i, c := range chart {
		out[c.class] = repo.Add(accounts.Account{
			Code:           fmt.Sprintf("%d", 1000+i*10),
			Name:           c.name,
			Type:           c.typ,
			Classification: c.class,
			IsActive:       true,
		})
	}
	return out
}
