package counterparty

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ordercash/internal/shared"
)

// Side tells whether an operation type raises what the customer owes.
type Side int

const (
	SideNone Side = iota
	SideDebit
	SideCredit
)

var sides = map[shared.OperationType]Side{
	shared.OpPayToCustomer:       SideDebit,
	shared.OpBankTransfer:        SideDebit,
	shared.OpCheckBounce:         SideDebit,
	shared.OpSalesInvoice:        SideDebit,
	shared.OpReceiveFromCustomer: SideCredit,
	shared.OpSpentChequeReturn:   SideCredit,
	shared.OpIssuedCheckBounce:   SideCredit,
	shared.OpPurchaseInvoice:     SideCredit,
}

// SideOf classifies an operation type for customer balances.
func SideOf(t shared.OperationType) Side {
	return sides[t]
}

// Fold computes a balance from the full entry history of a customer.
func Fold(customerID int64, entries []Entry, now time.Time) Balance {
	b := Balance{CustomerID: customerID, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero, UpdatedAt: now}
	for _, e := range entries {
		// Every operation dates the customer, even ones that move no balance.
		if b.LastTransactionDate == nil || e.Date.After(*b.LastTransactionDate) {
			d := e.Date
			b.LastTransactionDate = &d
		}
		switch SideOf(e.Type) {
		case SideDebit:
			b.TotalDebit = b.TotalDebit.Add(e.Amount)
		case SideCredit:
			b.TotalCredit = b.TotalCredit.Add(e.Amount)
		}
	}
	b.Current = b.TotalDebit.Sub(b.TotalCredit)
	return b
}

// Recompute replaces the stored balance of the customer with a full fold of
// its confirmed, non-deleted operations.
func Recompute(ctx context.Context, st TxRepository, customerID int64, now time.Time) (Balance, error) {
	if _, err := st.GetCustomer(ctx, customerID); err != nil {
		return Balance{}, err
	}
	entries, err := st.ListCustomerEntries(ctx, customerID)
	if err != nil {
		return Balance{}, err
	}
	b := Fold(customerID, entries, now)
	if err := st.UpsertCustomerBalance(ctx, b); err != nil {
		return Balance{}, err
	}
	return b, nil
}
