// Package instruments drives the lifecycles of issued checks and received
// cheques and records every status change.
package instruments

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ordercash/internal/shared"
)

// Kind distinguishes the two instrument families.
type Kind string

const (
	KindCheck          Kind = "check"
	KindReceivedCheque Kind = "received_cheque"
)

// CheckStatus enumerates issued check states.
type CheckStatus string

const (
	CheckUnused    CheckStatus = "UNUSED"
	CheckIssued    CheckStatus = "ISSUED"
	CheckReceived  CheckStatus = "RECEIVED"
	CheckDeposited CheckStatus = "DEPOSITED"
	CheckCleared   CheckStatus = "CLEARED"
	CheckBounced   CheckStatus = "BOUNCED"
	CheckVoid      CheckStatus = "VOID"
)

// ChequeStatus enumerates received cheque states.
type ChequeStatus string

const (
	ChequeReceived        ChequeStatus = "RECEIVED"
	ChequeDeposited       ChequeStatus = "DEPOSITED"
	ChequeCleared         ChequeStatus = "CLEARED"
	ChequeManuallyCleared ChequeStatus = "MANUALLY_CLEARED"
	ChequeSpent           ChequeStatus = "SPENT"
	ChequeBounced         ChequeStatus = "BOUNCED"
	ChequeReturned        ChequeStatus = "RETURNED"
)

// Transition names a lifecycle step.
type Transition string

const (
	TrIssue       Transition = "issue"
	TrClear       Transition = "clear"
	TrBounce      Transition = "bounce"
	TrVoid        Transition = "void"
	TrReset       Transition = "reset"
	TrUnissue     Transition = "unissue"
	TrReceive     Transition = "receive"
	TrDeposit     Transition = "deposit"
	TrManualClear Transition = "manual_clear"
	TrSpend       Transition = "spend"
	TrReturn      Transition = "return"
	TrRespend     Transition = "respend"
	TrRevert      Transition = "revert"
	TrReapply     Transition = "reapply"
)

// CheckBook is a registered range of check leaves of one bank fund.
type CheckBook struct {
	ID          int64     `json:"id"`
	FundID      int64     `json:"fund_id"`
	Serial      string    `json:"serial"`
	StartNumber int64     `json:"start_number"`
	EndNumber   int64     `json:"end_number"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Check is one leaf of a check book.
type Check struct {
	ID          int64           `json:"id"`
	CheckBookID int64           `json:"check_book_id"`
	Number      int64           `json:"number"`
	Status      CheckStatus     `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Payee       string          `json:"payee"`
	CustomerID  *int64          `json:"customer_id,omitempty"`
	IssueDate   *time.Time      `json:"issue_date,omitempty"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	Description string          `json:"description"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// clearIssuance returns the leaf to its blank state.
func (c *Check) clearIssuance() {
	c.Amount = decimal.Zero
	c.Payee = ""
	c.CustomerID = nil
	c.IssueDate = nil
	c.DueDate = nil
	c.Description = ""
}

// ReceivedCheque is a cheque handed to the business by a customer.
type ReceivedCheque struct {
	ID                  int64           `json:"id"`
	SayadiID            string          `json:"sayadi_id"`
	Serial              string          `json:"serial"`
	BankName            string          `json:"bank_name"`
	CustomerID          int64           `json:"customer_id"`
	Amount              decimal.Decimal `json:"amount"`
	DueDate             time.Time       `json:"due_date"`
	ReceivedDate        time.Time       `json:"received_date"`
	Status              ChequeStatus    `json:"status"`
	RecipientCustomerID *int64          `json:"recipient_customer_id,omitempty"`
	RecipientName       string          `json:"recipient_name"`
	DepositedFundID     *int64          `json:"deposited_fund_id,omitempty"`
	ClearedAt           *time.Time      `json:"cleared_at,omitempty"`
	Description         string          `json:"description"`
	DeletedAt           *time.Time      `json:"deleted_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// StatusChange is one immutable audit row.
type StatusChange struct {
	ID           int64
	Kind         Kind
	InstrumentID int64
	Transition   Transition
	OldStatus    string
	NewStatus    string
	OldAmount    decimal.Decimal
	NewAmount    decimal.Decimal
	OldDueDate   *time.Time
	NewDueDate   *time.Time
	ActorID      int64
	OperationID  *int64
	At           time.Time
}

// Link ties a financial operation to an instrument transition it caused, with
// the instrument state before and after so the transition can be undone.
type Link struct {
	ID           int64
	OperationID  int64
	Kind         Kind
	InstrumentID int64
	Transition   Transition
	Before       json.RawMessage
	After        json.RawMessage
	RevertedAt   *time.Time
	CreatedAt    time.Time
}

// Meta carries who triggered a transition and on behalf of which operation.
type Meta struct {
	ActorID     int64
	OperationID *int64
	At          time.Time
}

// CheckBookInput registers a book of leaves.
type CheckBookInput struct {
	FundID      int64  `json:"fund_id" validate:"required,gt=0"`
	Serial      string `json:"serial" validate:"required,max=40"`
	StartNumber int64  `json:"start_number" validate:"required,gt=0"`
	EndNumber   int64  `json:"end_number" validate:"required,gtefield=StartNumber"`
}

// IssueInput fills a blank leaf.
type IssueInput struct {
	CheckBookID int64           `json:"check_book_id" validate:"required,gt=0"`
	Number      int64           `json:"number" validate:"required,gt=0"`
	Payee       string          `json:"payee" validate:"required,max=200"`
	CustomerID  *int64          `json:"customer_id"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	IssueDate   time.Time       `json:"issue_date" validate:"required"`
	DueDate     time.Time       `json:"due_date" validate:"required"`
	Description string          `json:"description" validate:"max=500"`
}

// ReceiveInput records a cheque handed over by a customer.
type ReceiveInput struct {
	SayadiID     string          `json:"sayadi_id" validate:"required,len=16,numeric"`
	Serial       string          `json:"serial" validate:"max=40"`
	BankName     string          `json:"bank_name" validate:"required,max=120"`
	CustomerID   int64           `json:"customer_id" validate:"required,gt=0"`
	Amount       decimal.Decimal `json:"amount" validate:"gt=0"`
	DueDate      time.Time       `json:"due_date" validate:"required"`
	ReceivedDate time.Time       `json:"received_date" validate:"required"`
	Description  string          `json:"description" validate:"max=500"`
}

// ChequeChange carries the denormalised fields a cheque transition sets.
type ChequeChange struct {
	DepositFundID       *int64
	RecipientCustomerID *int64
	RecipientName       string
}

var (
	// ErrCheckNotFound indicates missing check leaf.
	ErrCheckNotFound = fmt.Errorf("instruments: check %w", shared.ErrNotFound)
	// ErrCheckBookNotFound indicates missing check book.
	ErrCheckBookNotFound = fmt.Errorf("instruments: check book %w", shared.ErrNotFound)
	// ErrChequeNotFound indicates missing received cheque.
	ErrChequeNotFound = fmt.Errorf("instruments: received cheque %w", shared.ErrNotFound)
	// ErrDuplicateSayadi indicates a sayadi id already registered.
	ErrDuplicateSayadi = fmt.Errorf("%w: sayadi id already registered", shared.ErrConflict)
)
