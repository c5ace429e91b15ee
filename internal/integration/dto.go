package integration

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// PaymentMethod selects the debit side of a sale.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "CASH"
	PaymentCredit PaymentMethod = "CREDIT"
)

// EventHeader carries the fields shared by every business event.
type EventHeader struct {
	LocationID int64     `validate:"required,gt=0"`
	Reference  string    `validate:"required,max=64"`
	SourceID   *int64    `validate:"omitempty"`
	Date       time.Time `validate:"-"`
	UserID     int64     `validate:"required,gt=0"`
	Notes      string    `validate:"max=255"`
}

// SaleLine is one dispensed batch.
type SaleLine struct {
	BatchID   int64           `validate:"required,gt=0"`
	Quantity  decimal.Decimal `validate:"gt=0"`
	UnitPrice decimal.Decimal `validate:"gte=0"`
}

type SaleRequest struct {
	EventHeader
	PaymentMethod PaymentMethod `validate:"required,oneof=CASH CREDIT"`
	Lines         []SaleLine    `validate:"required,min=1,dive"`
}

// SaleReturnRequest mirrors a sale; stock comes back and revenue is refunded.
type SaleReturnRequest struct {
	EventHeader
	PaymentMethod PaymentMethod `validate:"required,oneof=CASH CREDIT"`
	Lines         []SaleLine    `validate:"required,min=1,dive"`
}

// PurchaseLine is one received batch. A zero UnitCost uses the batch cost.
type PurchaseLine struct {
	BatchID  int64           `validate:"required,gt=0"`
	Quantity decimal.Decimal `validate:"gt=0"`
	UnitCost decimal.Decimal `validate:"gte=0"`
}

type PurchaseRequest struct {
	EventHeader
	Lines []PurchaseLine `validate:"required,min=1,dive"`
}

type PurchaseReturnRequest struct {
	EventHeader
	Lines []PurchaseLine `validate:"required,min=1,dive"`
}

// AdjustmentLine carries a signed quantity: positive found, negative lost.
type AdjustmentLine struct {
	BatchID  int64           `validate:"required,gt=0"`
	Quantity decimal.Decimal `validate:"ne=0"`
}

type AdjustmentRequest struct {
	EventHeader
	Reason string           `validate:"required,max=255"`
	Lines  []AdjustmentLine `validate:"required,min=1,dive"`
}

// QuantityLine moves a batch without pricing.
type QuantityLine struct {
	BatchID  int64           `validate:"required,gt=0"`
	Quantity decimal.Decimal `validate:"gt=0"`
}

// TransferRequest moves stock from LocationID to ToLocationID.
type TransferRequest struct {
	EventHeader
	ToLocationID int64          `validate:"required,gt=0"`
	Lines        []QuantityLine `validate:"required,min=1,dive"`
}

type WriteOffRequest struct {
	EventHeader
	Reason string         `validate:"required,max=255"`
	Lines  []QuantityLine `validate:"required,min=1,dive"`
}

// Result reports one processed event. Success=false means nothing was
// committed.
type Result struct {
	Success            bool
	JournalEntryID     int64
	JournalEntryNumber string
	StockMovementIDs   []int64
	TotalCost          decimal.Decimal
	TotalRevenue       decimal.Decimal
	ErrorMessage       string
	Err                error
}

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("integration: invalid request")

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(parts, "; "))
}
