// Package funds tracks cash registers, bank accounts and petty cash boxes and
// keeps their running balances reproducible from history.
package funds

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ordercash/internal/shared"
)

// Kind enumerates money pool types.
type Kind string

const (
	KindCash      Kind = "CASH"
	KindBank      Kind = "BANK"
	KindPettyCash Kind = "PETTY_CASH"
)

// Valid reports whether k is a known fund kind.
func (k Kind) Valid() bool {
	return k == KindCash || k == KindBank || k == KindPettyCash
}

// Direction of a fund movement.
type Direction string

const (
	In  Direction = "IN"
	Out Direction = "OUT"
)

// Opposite flips the direction.
func (d Direction) Opposite() Direction {
	if d == In {
		return Out
	}
	return In
}

// Signed applies the direction to amount.
func (d Direction) Signed(amount decimal.Decimal) decimal.Decimal {
	if d == Out {
		return amount.Neg()
	}
	return amount
}

// Reference types of fund movements.
const (
	RefFinancialOperation = "financial_operation"
	RefPettyCash          = "petty_cash"
	RefManual             = "manual"
)

// Fund is a money pool with a cached running balance.
type Fund struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Kind           Kind            `json:"kind"`
	BankName       string          `json:"bank_name,omitempty"`
	AccountNumber  string          `json:"account_number,omitempty"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	IsDefault      bool            `json:"is_default"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Transaction is one append-only movement into or out of a fund.
type Transaction struct {
	ID          int64
	FundID      int64
	Direction   Direction
	Amount      decimal.Decimal
	Date        time.Time
	Description string
	RefType     string
	RefID       int64
	CreatedAt   time.Time
}

// Statement is a materialised running balance row.
type Statement struct {
	ID             int64           `json:"id"`
	FundID         int64           `json:"fund_id"`
	Seq            int             `json:"seq"`
	Date           time.Time       `json:"date"`
	Direction      Direction       `json:"direction"`
	Amount         decimal.Decimal `json:"amount"`
	RunningBalance decimal.Decimal `json:"running_balance"`
	Description    string          `json:"description"`
	RefType        string          `json:"ref_type"`
	RefID          int64           `json:"ref_id"`
}

// BalanceHistory records every change of a fund's cached balance.
type BalanceHistory struct {
	ID              int64           `json:"id"`
	FundID          int64           `json:"fund_id"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	Change          decimal.Decimal `json:"change"`
	NewBalance      decimal.Decimal `json:"new_balance"`
	Reason          string          `json:"reason"`
	RefType         string          `json:"ref_type,omitempty"`
	RefID           int64           `json:"ref_id,omitempty"`
	At              time.Time       `json:"at"`
}

// Movement is a confirmed, non-deleted business event touching a fund, as
// seen by the operation-based strategies. Petty cash events use the petty
// cash fund as FundID and the source fund as CounterFundID.
type Movement struct {
	RefType       string
	RefID         int64
	Number        string
	Type          shared.OperationType
	FundID        *int64
	CounterFundID *int64
	Amount        decimal.Decimal
	Date          time.Time
	CreatedAt     time.Time
	Description   string
}

// Reconciliation compares the three balance derivations of a fund.
type Reconciliation struct {
	FundID           int64           `json:"fund_id"`
	Stored           decimal.Decimal `json:"stored"`
	FromTransactions decimal.Decimal `json:"from_transactions"`
	FromOperations   decimal.Decimal `json:"from_operations"`
	FromStatements   decimal.Decimal `json:"from_statements"`
	StatementRows    int             `json:"statement_rows"`
	CheckedAt        time.Time       `json:"checked_at"`
}

// Consistent reports whether every strategy agrees with the stored balance.
func (r Reconciliation) Consistent() bool {
	return r.Stored.Equal(r.FromTransactions) &&
		r.FromTransactions.Equal(r.FromOperations) &&
		r.FromOperations.Equal(r.FromStatements)
}

// Err returns a *shared.DriftError when the strategies disagree.
func (r Reconciliation) Err() error {
	if r.Consistent() {
		return nil
	}
	return &shared.DriftError{
		FundID:           r.FundID,
		Stored:           r.Stored,
		FromTransactions: r.FromTransactions,
		FromOperations:   r.FromOperations,
		FromStatements:   r.FromStatements,
	}
}

// FundInput describes a new fund.
type FundInput struct {
	Name           string          `json:"name" validate:"required,max=120"`
	Kind           Kind            `json:"kind" validate:"required,oneof=CASH BANK PETTY_CASH"`
	BankName       string          `json:"bank_name" validate:"required_if=Kind BANK"`
	AccountNumber  string          `json:"account_number" validate:"required_if=Kind BANK"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	IsDefault      bool            `json:"is_default"`
}

// TransactionInput describes one movement to append.
type TransactionInput struct {
	FundID      int64
	Direction   Direction
	Amount      decimal.Decimal
	Date        time.Time
	Description string
	RefType     string
	RefID       int64
}

var (
	// ErrFundNotFound indicates missing fund.
	ErrFundNotFound = fmt.Errorf("funds: fund %w", shared.ErrNotFound)
	// ErrFundInactive rejects movements on archived funds.
	ErrFundInactive = fmt.Errorf("%w: fund is inactive", shared.ErrValidation)
)
