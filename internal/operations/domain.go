// Package operations orchestrates business events: it numbers them, posts
// their vouchers, moves funds, drives instruments and recomputes customer
// balances inside one transaction.
package operations

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ordercash/internal/shared"
)

// Status is the lifecycle state of a financial operation.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// Source types recorded on vouchers and fund transactions.
const (
	SourceOperation = "financial_operation"
	SourcePettyCash = "petty_cash"
)

// Operation is a financial operation. Cancellation soft-deletes it;
// DeletedAt is only ever set together with StatusCancelled.
type Operation struct {
	ID            int64                `json:"id"`
	Number        string               `json:"operation_number"`
	SourceID      uuid.UUID            `json:"source_id"`
	Type          shared.OperationType `json:"type"`
	Status        Status               `json:"status"`
	DeletedAt     *time.Time           `json:"deleted_at,omitempty"`
	Amount        decimal.Decimal      `json:"amount"`
	Date          time.Time            `json:"date"`
	PaymentMethod shared.PaymentMethod `json:"payment_method"`
	CustomerID    *int64               `json:"customer_id,omitempty"`
	FundID        *int64               `json:"fund_id,omitempty"`
	CounterFundID *int64               `json:"counter_fund_id,omitempty"`
	BankFundID    *int64               `json:"bank_fund_id,omitempty"`
	Description   string               `json:"description"`
	CreatedBy     int64                `json:"created_by"`
	ConfirmedAt   *time.Time           `json:"confirmed_at,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// Transition moves op to status to and keeps the soft-delete marker coupled
// to the status: entering CANCELLED deletes, leaving it restores.
func Transition(op Operation, to Status, now time.Time) (Operation, error) {
	switch {
	case op.Status == StatusDraft && to == StatusConfirmed,
		op.Status == StatusCancelled && to == StatusConfirmed:
		op.DeletedAt = nil
		at := now
		op.ConfirmedAt = &at
	case op.Status == StatusDraft && to == StatusCancelled,
		op.Status == StatusConfirmed && to == StatusCancelled:
		at := now
		op.DeletedAt = &at
	default:
		return Operation{}, fmt.Errorf("%w: operation %s cannot move from %s to %s", shared.ErrInvalidTransition, op.Number, op.Status, to)
	}
	op.Status = to
	op.UpdatedAt = now
	return op, nil
}

// OperationInput describes a new financial operation.
type OperationInput struct {
	Type          shared.OperationType `json:"type" validate:"required"`
	Amount        decimal.Decimal      `json:"amount" validate:"gt=0"`
	Date          time.Time            `json:"date" validate:"required"`
	PaymentMethod shared.PaymentMethod `json:"payment_method"`
	CustomerID    *int64               `json:"customer_id"`
	FundID        *int64               `json:"fund_id"`
	BankFundID    *int64               `json:"bank_fund_id"`
	Description   string               `json:"description" validate:"max=500"`
	Confirm       bool                 `json:"confirm"`
}

// Filter narrows operation listings. Zero values match all.
type Filter struct {
	Type           shared.OperationType
	Status         Status
	CustomerID     int64
	From           *time.Time
	To             *time.Time
	IncludeDeleted bool
	Limit          int
}

// PettyDirection distinguishes petty cash top-ups from expenses.
type PettyDirection string

const (
	PettyAdd      PettyDirection = "ADD"
	PettyWithdraw PettyDirection = "WITHDRAW"
)

// EventType returns the posting event of the direction.
func (d PettyDirection) EventType() shared.OperationType {
	if d == PettyAdd {
		return shared.OpPettyCashAdd
	}
	return shared.OpPettyCashWithdraw
}

// PettyCashOperation moves money into or out of a petty cash box.
type PettyCashOperation struct {
	ID           int64           `json:"id"`
	Number       string          `json:"number"`
	SourceID     uuid.UUID       `json:"source_id"`
	Direction    PettyDirection  `json:"direction"`
	PettyFundID  int64           `json:"petty_fund_id"`
	SourceFundID *int64          `json:"source_fund_id,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Date         time.Time       `json:"date"`
	Reason       string          `json:"reason"`
	DeletedAt    *time.Time      `json:"deleted_at,omitempty"`
	CreatedBy    int64           `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PettyCashInput describes a petty cash movement.
type PettyCashInput struct {
	Direction    PettyDirection  `json:"direction" validate:"required,oneof=ADD WITHDRAW"`
	PettyFundID  int64           `json:"petty_fund_id" validate:"required,gt=0"`
	SourceFundID *int64          `json:"source_fund_id" validate:"required_if=Direction ADD"`
	Amount       decimal.Decimal `json:"amount" validate:"gt=0"`
	Date         time.Time       `json:"date" validate:"required"`
	Reason       string          `json:"reason" validate:"required,max=500"`
}

// IssueCheckInput fills a leaf; naming a customer also records the payment.
type IssueCheckInput struct {
	CheckBookID int64           `json:"check_book_id" validate:"required,gt=0"`
	Number      int64           `json:"number" validate:"required,gt=0"`
	Payee       string          `json:"payee" validate:"required,max=200"`
	CustomerID  *int64          `json:"customer_id"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	IssueDate   time.Time       `json:"issue_date" validate:"required"`
	DueDate     time.Time       `json:"due_date" validate:"required"`
	Description string          `json:"description" validate:"max=500"`
}

// ReceiveChequeInput records a cheque handed over by a customer.
type ReceiveChequeInput struct {
	SayadiID     string          `json:"sayadi_id" validate:"required"`
	Serial       string          `json:"serial"`
	BankName     string          `json:"bank_name" validate:"required"`
	CustomerID   int64           `json:"customer_id" validate:"required,gt=0"`
	Amount       decimal.Decimal `json:"amount" validate:"gt=0"`
	DueDate      time.Time       `json:"due_date" validate:"required"`
	ReceivedDate time.Time       `json:"received_date" validate:"required"`
	Description  string          `json:"description" validate:"max=500"`
}

// SpendInput hands received cheques to a payee.
type SpendInput struct {
	ChequeIDs           []int64   `json:"cheque_ids" validate:"required,min=1,dive,gt=0"`
	RecipientCustomerID *int64    `json:"recipient_customer_id"`
	RecipientName       string    `json:"recipient_name" validate:"max=200"`
	Date                time.Time `json:"date" validate:"required"`
	Description         string    `json:"description" validate:"max=500"`
}

// Outcome lists what a confirmation, cancellation or deletion touched.
type Outcome struct {
	Operation   Operation `json:"operation"`
	VoucherID   int64     `json:"voucher_id,omitempty"`
	Funds       []int64   `json:"funds"`
	Customers   []int64   `json:"customers"`
	Instruments int       `json:"instruments"`
}

var (
	// ErrOperationNotFound indicates missing financial operation.
	ErrOperationNotFound = fmt.Errorf("operations: operation %w", shared.ErrNotFound)
	// ErrPettyCashNotFound indicates missing petty cash operation.
	ErrPettyCashNotFound = fmt.Errorf("operations: petty cash operation %w", shared.ErrNotFound)
)
