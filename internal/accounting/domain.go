package accounting

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ordercash/internal/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// AccountLevel places an account in the group → sub → detail hierarchy.
type AccountLevel string

const (
	LevelGroup  AccountLevel = "GROUP"
	LevelSub    AccountLevel = "SUB"
	LevelDetail AccountLevel = "DETAIL"
)

// Account models a chart of accounts node.
type Account struct {
	ID             int64
	Code           string
	Name           string
	Type           AccountType
	Level          AccountLevel
	ParentID       *int64
	RoleKey        string
	Currency       string
	CurrentBalance decimal.Decimal
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FiscalYear bounds voucher numbering and posting dates.
type FiscalYear struct {
	ID        int64
	Year      int
	StartDate time.Time
	EndDate   time.Time
	IsActive  bool
	CreatedAt time.Time
}

// Covers reports whether date falls inside the fiscal year.
func (fy FiscalYear) Covers(date time.Time) bool {
	d := truncateDay(date)
	return !d.Before(truncateDay(fy.StartDate)) && !d.After(truncateDay(fy.EndDate))
}

// Voucher is one balanced journal entry.
type Voucher struct {
	ID           int64
	FiscalYearID int64
	Number       int64
	Date         time.Time
	Description  string
	SourceType   string
	SourceID     uuid.UUID
	IsReversal   bool
	IsConfirmed  bool
	CreatedBy    int64
	CreatedAt    time.Time
	Items        []VoucherItem
}

// VoucherItem stores a debit or a credit amount for an account.
type VoucherItem struct {
	ID          int64
	VoucherID   int64
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
	Reference   string
}

// Totals sums the debit and credit sides.
func (v Voucher) Totals() (debit, credit decimal.Decimal) {
	for _, item := range v.Items {
		debit = debit.Add(item.Debit)
		credit = credit.Add(item.Credit)
	}
	return debit, credit
}

// Validate asserts the double-entry invariants of the voucher.
func (v Voucher) Validate() error {
	if len(v.Items) < 2 {
		return ErrTooFewLines
	}
	for idx, item := range v.Items {
		if item.AccountID == 0 {
			return fmt.Errorf("%w: line %d missing account", shared.ErrValidation, idx)
		}
		if item.Debit.IsNegative() || item.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d negative amount", shared.ErrUnbalancedPosting, idx)
		}
		if item.Debit.IsPositive() == item.Credit.IsPositive() {
			return fmt.Errorf("%w: line %d must carry exactly one of debit or credit", shared.ErrUnbalancedPosting, idx)
		}
	}
	debit, credit := v.Totals()
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s credit %s", shared.ErrUnbalancedPosting, debit, credit)
	}
	return nil
}

// LedgerContext replaces process-wide defaults: it is built once per unit of
// work and passed to every posting.
type LedgerContext struct {
	FiscalYear FiscalYear
	Currency   string
	ActorID    int64
	Now        time.Time
}

// AccountBalance aggregates voucher items of one account.
type AccountBalance struct {
	Account Account
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}

var (
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = fmt.Errorf("%w: voucher requires at least two lines", shared.ErrUnbalancedPosting)
	// ErrAccountNotFound indicates missing account.
	ErrAccountNotFound = fmt.Errorf("accounting: account %w", shared.ErrNotFound)
	// ErrFiscalYearNotFound indicates no fiscal year covers the date.
	ErrFiscalYearNotFound = fmt.Errorf("accounting: fiscal year %w", shared.ErrNotFound)
	// ErrFiscalYearOverlap indicates a new fiscal year intersects an existing one.
	ErrFiscalYearOverlap = fmt.Errorf("%w: fiscal year overlaps an existing year", shared.ErrValidation)
	// ErrVoucherNotFound indicates missing voucher.
	ErrVoucherNotFound = fmt.Errorf("accounting: voucher %w", shared.ErrNotFound)
	// ErrAmountNotPositive rejects zero or negative postings.
	ErrAmountNotPositive = fmt.Errorf("%w: amount must be positive", shared.ErrValidation)
	// ErrNoRule indicates an event type without a posting rule.
	ErrNoRule = fmt.Errorf("%w: no posting rule for event", shared.ErrValidation)
)

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
