// Package counterparty keeps the customer master rows and their derived
// balances.
package counterparty

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ordercash/internal/shared"
)

// Customer is the minimal counterparty master row.
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// CustomerInput creates a customer.
type CustomerInput struct {
	Name  string `json:"name" validate:"required,max=200"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

// Balance is the derived position of one customer. Current is positive
// when the customer owes the business.
type Balance struct {
	CustomerID          int64           `json:"customer_id"`
	TotalDebit          decimal.Decimal `json:"total_debit"`
	TotalCredit         decimal.Decimal `json:"total_credit"`
	Current             decimal.Decimal `json:"current_balance"`
	LastTransactionDate *time.Time      `json:"last_transaction_date,omitempty"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Entry is one confirmed, non-deleted operation of a customer.
type Entry struct {
	OperationID int64
	Type        shared.OperationType
	Amount      decimal.Decimal
	Date        time.Time
}

// ErrCustomerNotFound indicates missing customer.
var ErrCustomerNotFound = fmt.Errorf("counterparty: customer %w", shared.ErrNotFound)
