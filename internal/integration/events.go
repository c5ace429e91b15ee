package integration

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/inventory"
)

// Event names double as movement reference types and idempotency prefixes.
const (
	EventSale           = "SALE"
	EventSaleReturn     = "SALE_RETURN"
	EventPurchase       = "PURCHASE"
	EventPurchaseReturn = "PURCHASE_RETURN"
	EventAdjustment     = "ADJUSTMENT"
	EventTransfer       = "TRANSFER"
	EventWriteOff       = "WRITE_OFF"
)

func settlementClass(method PaymentMethod) accounts.Classification {
	if method == PaymentCredit {
		return accounts.ClassAccountsReceivable
	}
	return accounts.ClassCash
}

// ProcessSale issues stock and posts DR COGS / CR Inventory at cost and
// DR Cash or Receivable / CR Revenue at selling price.
func (o *Orchestrator) ProcessSale(ctx context.Context, req SaleRequest) (Result, error) {
	if err := o.check(req); err != nil {
		return o.fail(ctx, EventSale, req.Reference, err)
	}
	settle := settlementClass(req.PaymentMethod)
	return o.run(ctx, &event{
		name:        EventSale,
		entryType:   journals.EntryTypeSale,
		header:      req.EventHeader,
		sourceTable: "sales",
		description: fmt.Sprintf("Sale %s", req.Reference),
		classes:     []accounts.Classification{accounts.ClassCOGS, accounts.ClassInventory, accounts.ClassSalesRevenue, settle},
		build: func(ctx context.Context, acc map[accounts.Classification]accounts.Account, p *posting) error {
			loc := &req.LocationID
			for _, line := range req.Lines {
				unitCost, err := p.unitCost(ctx, line.BatchID, line.Quantity)
				if err != nil {
					return err
				}
				if _, err := p.move(ctx, inventory.MovementInput{
					LocationID: req.LocationID,
					BatchID:    line.BatchID,
					Type:       inventory.MovementSale,
					Quantity:   line.Quantity,
					UnitCost:   unitCost,
				}); err != nil {
					return err
				}
				p.totalCost = p.totalCost.Add(monetary(line.Quantity, unitCost))
				p.totalRevenue = p.totalRevenue.Add(monetary(line.Quantity, line.UnitPrice))
			}
			p.debit(acc[accounts.ClassCOGS], p.totalCost, loc)
			p.credit(acc[accounts.ClassInventory], p.totalCost, loc)
			p.debit(acc[settle], p.totalRevenue, loc)
			p.credit(acc[accounts.ClassSalesRevenue], p.totalRevenue, loc)
			return nil
		},
	})
}

// ProcessSaleReturn restocks returned goods and reverses both pairs of a sale.
func (o *Orchestrator) ProcessSaleReturn(ctx context.Context, req SaleReturnRequest) (Result, error) {
	if err := o.check(req); err != nil {
		return o.fail(ctx, EventSaleReturn, req.Reference, err)
	}
	settle := settlementClass(req.PaymentMethod)
	return o.run(ctx, &event{
		name:        EventSaleReturn,
		entryType:   journals.EntryTypeSaleReturn,
		header:      req.EventHeader,
		sourceTable: "sale_returns",
		description: fmt.Sprintf("Sale return %s", req.Reference),
		classes:     []accounts.Classification{accounts.ClassCOGS, accounts.ClassInventory, accounts.ClassSalesRevenue, settle},
		build: func(ctx context.Context, acc map[accounts.Classification]accounts.Account, p *posting) error {
			loc := &req.LocationID
			for _, line := range req.Lines {
				unitCost, err := p.unitCost(ctx, line.BatchID, line.Quantity)
				if err != nil {
					return err
				}
				if _, err := p.move(ctx, inventory.MovementInput{
					LocationID: req.LocationID,
					BatchID:    line.BatchID,
					Type:       inventory.MovementSaleReturn,
					Quantity:   line.Quantity,
					UnitCost:   unitCost,
				}); err != nil {
					return err
				}
				p.totalCost = p.totalCost.Add(monetary(line.Quantity, unitCost))
				p.totalRevenue = p.totalRevenue.Add(monetary(line.Quantity, line.UnitPrice))
			}
			p.debit(acc[accounts.ClassInventory], p.totalCost, loc)
			p.credit(acc[accounts.ClassCOGS], p.totalCost, loc)
			p.debit(acc[accounts.ClassSalesRevenue], p.totalRevenue, loc)
			p.credit(acc[settle], p.totalRevenue, loc)
			return nil
		},
	})
}

// ProcessPurchase receives stock and posts DR Inventory / CR Payable.
func (o *Orchestrator) ProcessPurchase(ctx context.Context, req PurchaseRequest) (Result, error) {
	if err := o.check(req); err != nil {
		return o.fail(ctx, EventPurchase, req.Reference, err)
	}
	return o.run(ctx, &event{
		name:        EventPurchase,
		entryType:   journals.EntryTypePurchase,
		header:      req.EventHeader,
		sourceTable: "purchases",
		description: fmt.Sprintf("Purchase %s", req.Reference),
		classes:     []accounts.Classification{accounts.ClassInventory, accounts.ClassAccountsPayable},
		build: func(ctx context.Context, acc map[accounts.Classification]accounts.Account, p *posting) error {
			if err := o.movePurchaseLines(ctx, p, req.LocationID, inventory.MovementPurchase, req.Lines); err != nil {
				return err
			}
			loc := &req.LocationID
			p.debit(acc[accounts.ClassInventory], p.totalCost, loc)
			p.credit(acc[accounts.ClassAccountsPayable], p.totalCost, loc)
			return nil
		},
	})
}

// ProcessPurchaseReturn ships stock back and posts DR Payable / CR Inventory.
func (o *Orchestrator) ProcessPurchaseReturn(ctx context.Context, req PurchaseReturnRequest) (Result, error) {
	if err := o.check(req); err != nil {
		return o.fail(ctx, EventPurchaseReturn, req.Reference, err)
	}
	return o.run(ctx, &event{
		name:        EventPurchaseReturn,
		entryType:   journals.EntryTypePurchaseReturn,
		header:      req.EventHeader,
		sourceTable: "purchase_returns",
		description: fmt.Sprintf("Purchase return %s", req.Reference),
		classes:     []accounts.Classification{accounts.ClassInventory, accounts.ClassAccountsPayable},
		build: func(ctx context.Context, acc map[accounts.Classification]accounts.Account, p *posting) error {
			if err := o.movePurchaseLines(ctx, p, req.LocationID, inventory.MovementPurchaseReturn, req.Lines); err != nil {
				return err
			}
			loc := &req.LocationID
			p.debit(acc[accounts.ClassAccountsPayable], p.totalCost, loc)
			p.credit(acc[accounts.ClassInventory], p.totalCost, loc)
			return nil
		},
	})
}

func (o *Orchestrator) movePurchaseLines(ctx context.Context, p *posting, locationID int64, typ inventory.MovementType, lines []PurchaseLine) error {
	for _, line := range lines {
		batchCost, err := p.unitCost(ctx, line.BatchID, line.Quantity)
		if err != nil {
			return err
		}
		unitCost := purchaseCost(line.UnitCost, batchCost)
		if _, err := p.move(ctx, inventory.MovementInput{
			LocationID: locationID,
			BatchID:    line.BatchID,
			Type:       typ,
			Quantity:   line.Quantity,
			UnitCost:   unitCost,
		}); err != nil {
			return err
		}
		p.totalCost = p.totalCost.Add(monetary(line.Quantity, unitCost))
	}
	return nil
}

// ProcessAdjustment books count differences. Increases post
// DR Inventory / CR Adjustment Gain, decreases DR Adjustment Loss / CR
// Inventory; each pair appears only when the request has such lines.
func (o *Orchestrator) ProcessAdjustment(ctx context.Context, req AdjustmentRequest) (Result, error) {
	if err := o.check(req); err != nil {
		return o.fail(ctx, EventAdjustment, req.Reference, err)
	}
	var hasGain, hasLoss bool
	for _, line := range req.Lines {
		if line.Quantity.IsPositive() {
			hasGain = true
		} else {
			hasLoss = true
		}
	}
	classes := []accounts.Classification{accounts.ClassInventory}
	if hasGain {
		classes = append(classes, accounts.ClassAdjustmentGain)
	}
	if hasLoss {
		classes = append(classes, accounts.ClassAdjustmentLoss)
	}
	return o.run(ctx, &event{
		name:        EventAdjustment,
		entryType:   journals.EntryTypeAdjustment,
		header:      req.EventHeader,
		sourceTable: "stock_adjustments",
		description: fmt.Sprintf("Stock adjustment %s: %s", req.Reference, req.Reason),
		classes:     classes,
		build: func(ctx context.Context, acc map[accounts.Classification]accounts.Account, p *posting) error {
			gain, loss := decimal.Zero, decimal.Zero
			for _, line := range req.Lines {
				qty := line.Quantity.Abs()
				typ := inventory.MovementAdjIncrease
				if line.Quantity.IsNegative() {
					typ = inventory.MovementAdjDecrease
				}
				unitCost, err := p.unitCost(ctx, line.BatchID, qty)
				if err != nil {
					return err
				}
				if _, err := p.move(ctx, inventory.MovementInput{
					LocationID: req.LocationID,
					BatchID:    line.BatchID,
					Type:       typ,
					Quantity:   qty,
					UnitCost:   unitCost,
					Notes:      req.Reason,
				}); err != nil {
					return err
				}
				amount := monetary(qty, unitCost)
				if typ == inventory.MovementAdjIncrease {
					gain = gain.Add(amount)
				} else {
					loss = loss.Add(amount)
				}
			}
			loc := &req.LocationID
			if hasGain {
				p.debit(acc[accounts.ClassInventory], gain, loc)
				p.credit(acc[accounts.ClassAdjustmentGain], gain, loc)
			}
			if hasLoss {
				p.debit(acc[accounts.ClassAdjustmentLoss], loss, loc)
				p.credit(acc[accounts.ClassInventory], loss, loc)
			}
			p.totalCost = gain.Add(loss)
			return nil
		},
	})
}

// ProcessTransfer moves stock between locations as a linked OUT/IN pair and
// posts DR Inventory at the destination / CR Inventory at the source.
func (o *Orchestrator) ProcessTransfer(ctx context.Context, req TransferRequest) (Result, error) {
	if err := o.check(req); err != nil {
		return o.fail(ctx, EventTransfer, req.Reference, err)
	}
	if req.ToLocationID == req.LocationID {
		return o.fail(ctx, EventTransfer, req.Reference, fmt.Errorf("%w: source and destination location are the same", ErrInvalidRequest))
	}
	return o.run(ctx, &event{
		name:        EventTransfer,
		entryType:   journals.EntryTypeTransfer,
		header:      req.EventHeader,
		sourceTable: "stock_transfers",
		description: fmt.Sprintf("Transfer %s: location %d to %d", req.Reference, req.LocationID, req.ToLocationID),
		classes:     []accounts.Classification{accounts.ClassInventory},
		build: func(ctx context.Context, acc map[accounts.Classification]accounts.Account, p *posting) error {
			for _, line := range req.Lines {
				unitCost, err := p.unitCost(ctx, line.BatchID, line.Quantity)
				if err != nil {
					return err
				}
				out, err := p.move(ctx, inventory.MovementInput{
					LocationID: req.LocationID,
					BatchID:    line.BatchID,
					Type:       inventory.MovementTransferOut,
					Quantity:   line.Quantity,
					UnitCost:   unitCost,
				})
				if err != nil {
					return err
				}
				in, err := p.move(ctx, inventory.MovementInput{
					LocationID:       req.ToLocationID,
					BatchID:          line.BatchID,
					Type:             inventory.MovementTransferIn,
					Quantity:         line.Quantity,
					UnitCost:         unitCost,
					PairedMovementID: &out.ID,
				})
				if err != nil {
					return err
				}
				if err := p.stock.LinkTransfer(ctx, out.ID, in.ID); err != nil {
					return err
				}
				p.totalCost = p.totalCost.Add(monetary(line.Quantity, unitCost))
			}
			from, to := req.LocationID, req.ToLocationID
			p.debit(acc[accounts.ClassInventory], p.totalCost, &to)
			p.credit(acc[accounts.ClassInventory], p.totalCost, &from)
			return nil
		},
	})
}

// ProcessWriteOff removes expired or damaged stock and posts
// DR Write-off Expense / CR Inventory.
func (o *Orchestrator) ProcessWriteOff(ctx context.Context, req WriteOffRequest) (Result, error) {
	if err := o.check(req); err != nil {
		return o.fail(ctx, EventWriteOff, req.Reference, err)
	}
	return o.run(ctx, &event{
		name:        EventWriteOff,
		entryType:   journals.EntryTypeWriteOff,
		header:      req.EventHeader,
		sourceTable: "stock_write_offs",
		description: fmt.Sprintf("Write-off %s: %s", req.Reference, req.Reason),
		classes:     []accounts.Classification{accounts.ClassWriteOffExpense, accounts.ClassInventory},
		build: func(ctx context.Context, acc map[accounts.Classification]accounts.Account, p *posting) error {
			for _, line := range req.Lines {
				unitCost, err := p.unitCost(ctx, line.BatchID, line.Quantity)
				if err != nil {
					return err
				}
				if _, err := p.move(ctx, inventory.MovementInput{
					LocationID: req.LocationID,
					BatchID:    line.BatchID,
					Type:       inventory.MovementWriteOff,
					Quantity:   line.Quantity,
					UnitCost:   unitCost,
					Notes:      req.Reason,
				}); err != nil {
					return err
				}
				p.totalCost = p.totalCost.Add(monetary(line.Quantity, unitCost))
			}
			loc := &req.LocationID
			p.debit(acc[accounts.ClassWriteOffExpense], p.totalCost, loc)
			p.credit(acc[accounts.ClassInventory], p.totalCost, loc)
			return nil
		},
	})
}
