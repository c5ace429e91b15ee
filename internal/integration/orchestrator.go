package integration

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/inventory"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

const idempotencyModule = "inventory"

// AccountResolver maps classifications to concrete accounts.
type AccountResolver interface {
	ResolveSet(ctx context.Context, classes ...accounts.Classification) (map[accounts.Classification]accounts.Account, error)
}

// Ledger posts balanced journal entries.
type Ledger interface {
	CreateAndPost(ctx context.Context, input journals.CreateInput) (journals.JournalEntry, error)
}

// Stock records movements and keeps on-hand in step.
type Stock interface {
	Record(ctx context.Context, in inventory.MovementInput) (inventory.StockMovement, error)
	LinkTransfer(ctx context.Context, outID, inID int64) error
	StampJournal(ctx context.Context, movementIDs []int64, entryID int64) error
}

// CostSource values batch quantities.
type CostSource interface {
	GetBatchCost(ctx context.Context, batchID int64, qty decimal.Decimal) (inventory.BatchCost, error)
}

// IdempotencyPort claims event keys inside the running transaction.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
}

// Metrics observes processed events.
type Metrics interface {
	ObserveEvent(event string, started time.Time, err error)
}

// Dependencies wires the orchestrator. Idempotency, Metrics and Logger are optional.
type Dependencies struct {
	UnitOfWork  db.UnitOfWork
	Accounts    AccountResolver
	Ledger      Ledger
	Stock       Stock
	Costs       CostSource
	Idempotency IdempotencyPort
	Metrics     Metrics
	Logger      *slog.Logger
}

// Orchestrator turns inventory business events into stock movements and
// their journal entry within one transaction.
type Orchestrator struct {
	uow      db.UnitOfWork
	accounts AccountResolver
	ledger   Ledger
	stock    Stock
	costs    CostSource
	idem     IdempotencyPort
	metrics  Metrics
	logger   *slog.Logger
	validate *validator.Validate
}

// NewOrchestrator constructs the orchestrator.
func NewOrchestrator(deps Dependencies) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		uow:      deps.UnitOfWork,
		accounts: deps.Accounts,
		ledger:   deps.Ledger,
		stock:    deps.Stock,
		costs:    deps.Costs,
		idem:     deps.Idempotency,
		metrics:  deps.Metrics,
		logger:   logger,
		validate: newValidator(),
	}
}

// event describes one business event to run through the pipeline.
type event struct {
	name        string
	entryType   journals.EntryType
	header      EventHeader
	sourceTable string
	description string
	classes     []accounts.Classification
	build       func(ctx context.Context, acc map[accounts.Classification]accounts.Account, p *posting) error
}

// posting accumulates what an event produced before it is posted.
type posting struct {
	ev           *event
	stock        Stock
	costs        CostSource
	movementIDs  []int64
	lines        []journals.LineInput
	totalCost    decimal.Decimal
	totalRevenue decimal.Decimal
}

func (p *posting) move(ctx context.Context, in inventory.MovementInput) (inventory.StockMovement, error) {
	in.ReferenceType = p.ev.name
	in.ReferenceNumber = p.ev.header.Reference
	in.ReferenceID = p.ev.header.SourceID
	in.UserID = p.ev.header.UserID
	if in.Notes == "" {
		in.Notes = p.ev.header.Notes
	}
	movement, err := p.stock.Record(ctx, in)
	if err != nil {
		return inventory.StockMovement{}, err
	}
	p.movementIDs = append(p.movementIDs, movement.ID)
	return movement, nil
}

func (p *posting) unitCost(ctx context.Context, batchID int64, qty decimal.Decimal) (decimal.Decimal, error) {
	cost, err := p.costs.GetBatchCost(ctx, batchID, qty)
	if err != nil {
		return decimal.Zero, err
	}
	return cost.UnitCost, nil
}

func (p *posting) debit(account accounts.Account, amount decimal.Decimal, locationID *int64) {
	p.lines = append(p.lines, journals.Debit(account.ID, amount, p.ev.description, locationID))
}

func (p *posting) credit(account accounts.Account, amount decimal.Decimal, locationID *int64) {
	p.lines = append(p.lines, journals.Credit(account.ID, amount, p.ev.description, locationID))
}

func (o *Orchestrator) check(req any) error {
	if err := o.validate.Struct(req); err != nil {
		return validationError(err)
	}
	return nil
}

// run executes an event atomically. Configuration errors are returned as
// error; every other failure is reported through Result.
func (o *Orchestrator) run(ctx context.Context, ev *event) (Result, error) {
	started := time.Now()
	var result Result
	err := o.uow.WithinTx(ctx, func(ctx context.Context) error {
		acc, err := o.accounts.ResolveSet(ctx, ev.classes...)
		if err != nil {
			return err
		}
		if o.idem != nil {
			key := internalShared.IdempotencyKey(ev.name, ev.header.Reference)
			if err := o.idem.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
				return err
			}
		}
		p := &posting{ev: ev, stock: o.stock, costs: o.costs, totalCost: decimal.Zero, totalRevenue: decimal.Zero}
		if err := ev.build(ctx, acc, p); err != nil {
			return err
		}
		location := ev.header.LocationID
		entry, err := o.ledger.CreateAndPost(ctx, journals.CreateInput{
			Type:          ev.entryType,
			Description:   ev.description,
			Lines:         p.lines,
			SourceTable:   ev.sourceTable,
			SourceID:      ev.header.SourceID,
			LocationID:    &location,
			UserID:        ev.header.UserID,
			IsSystemEntry: true,
			Reference:     ev.header.Reference,
			EntryDate:     ev.header.Date,
		})
		if err != nil {
			return err
		}
		if err := o.stock.StampJournal(ctx, p.movementIDs, entry.ID); err != nil {
			return err
		}
		result = Result{
			Success:            true,
			JournalEntryID:     entry.ID,
			JournalEntryNumber: entry.EntryNumber,
			StockMovementIDs:   p.movementIDs,
			TotalCost:          p.totalCost,
			TotalRevenue:       p.totalRevenue,
		}
		return nil
	})
	if o.metrics != nil {
		o.metrics.ObserveEvent(ev.name, started, err)
	}
	if err != nil {
		return o.fail(ctx, ev.name, ev.header.Reference, err)
	}
	o.logger.InfoContext(ctx, "inventory event posted",
		slog.String("event", ev.name),
		slog.String("reference", ev.header.Reference),
		slog.Int64("journal_entry_id", result.JournalEntryID),
		slog.String("total_cost", result.TotalCost.String()))
	return result, nil
}

func (o *Orchestrator) fail(ctx context.Context, name, reference string, err error) (Result, error) {
	result := Result{Success: false, ErrorMessage: err.Error(), Err: err}
	if shared.IsConfiguration(err) {
		o.logger.ErrorContext(ctx, "inventory event misconfigured",
			slog.String("event", name), slog.String("reference", reference), slog.Any("error", err))
		return result, err
	}
	level := slog.LevelWarn
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, internalShared.ErrIdempotencyConflict) {
		level = slog.LevelInfo
	}
	o.logger.Log(ctx, level, "inventory event rejected",
		slog.String("event", name), slog.String("reference", reference), slog.Any("error", err))
	return result, nil
}
