package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType tags the business event behind a stock movement.
type MovementType string

const (
	MovementSale           MovementType = "SALE"
	MovementSaleReturn     MovementType = "SALE_RETURN"
	MovementPurchase       MovementType = "PURCHASE"
	MovementPurchaseReturn MovementType = "PURCHASE_RETURN"
	MovementAdjIncrease    MovementType = "ADJ_INCREASE"
	MovementAdjDecrease    MovementType = "ADJ_DECREASE"
	MovementWriteOff       MovementType = "WRITE_OFF"
	MovementTransferOut    MovementType = "TRANSFER_OUT"
	MovementTransferIn     MovementType = "TRANSFER_IN"
)

// Outgoing reports whether the movement removes stock.
func (t MovementType) Outgoing() bool {
	switch t {
	case MovementSale, MovementPurchaseReturn, MovementAdjDecrease, MovementWriteOff, MovementTransferOut:
		return true
	}
	return false
}

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementSale, MovementSaleReturn, MovementPurchase, MovementPurchaseReturn,
		MovementAdjIncrease, MovementAdjDecrease, MovementWriteOff, MovementTransferOut, MovementTransferIn:
		return true
	}
	return false
}

// Batch is one received lot of a product with a fixed cost price.
type Batch struct {
	ID          int64
	ProductID   int64
	BatchNumber string
	ExpiryDate  *time.Time
	CostPrice   decimal.Decimal
	CreatedAt   time.Time
}

// StoreInventory is the running quantity of a batch at a location.
type StoreInventory struct {
	LocationID int64
	BatchID    int64
	Quantity   decimal.Decimal
	Version    int64
	UpdatedAt  time.Time
}

// StockMovement is an immutable, signed quantity change. Quantity is positive
// for incoming stock and negative for outgoing stock.
type StockMovement struct {
	ID               int64
	LocationID       int64
	BatchID          int64
	ProductID        int64
	Type             MovementType
	Quantity         decimal.Decimal
	UnitCost         decimal.Decimal
	TotalCost        decimal.Decimal
	ReferenceType    string
	ReferenceNumber  string
	ReferenceID      *int64
	PairedMovementID *int64
	JournalEntryID   *int64
	Notes            string
	CreatedBy        int64
	CreatedAt        time.Time
}

// BatchCost values a quantity of one batch.
type BatchCost struct {
	UnitCost  decimal.Decimal
	TotalCost decimal.Decimal
}

// MovementInput describes a movement to record. Quantity is the unsigned
// magnitude; the sign follows Type.
type MovementInput struct {
	LocationID       int64
	BatchID          int64
	Type             MovementType
	Quantity         decimal.Decimal
	UnitCost         decimal.Decimal
	ReferenceType    string
	ReferenceNumber  string
	ReferenceID      *int64
	PairedMovementID *int64
	Notes            string
	UserID           int64
}

// Drift reports an on-hand row that disagrees with its movement history.
type Drift struct {
	LocationID    int64
	BatchID       int64
	OnHand        decimal.Decimal
	FromMovements decimal.Decimal
}

// Difference returns OnHand minus the recomputed quantity.
func (d Drift) Difference() decimal.Decimal {
	return d.OnHand.Sub(d.FromMovements)
}

// MovementFilter narrows ListMovements. Zero values are ignored.
type MovementFilter struct {
	LocationID      int64
	BatchID         int64
	ReferenceType   string
	ReferenceNumber string
	JournalEntryID  int64
}

var (
	// ErrBatchNotFound indicates an unknown batch id.
	ErrBatchNotFound = errors.New("inventory: batch not found")
	// ErrStockNotFound indicates no on-hand row exists yet.
	ErrStockNotFound = errors.New("inventory: stock row not found")
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInvalidUnitCost indicates negative cost.
	ErrInvalidUnitCost = errors.New("inventory: unit cost cannot be negative")
	// ErrInvalidMovementType indicates an unknown movement type.
	ErrInvalidMovementType = errors.New("inventory: invalid movement type")
	// ErrMovementNotFound indicates a missing movement.
	ErrMovementNotFound = errors.New("inventory: movement not found")
)
