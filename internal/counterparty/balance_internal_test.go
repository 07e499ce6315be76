package counterparty

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ordercash/internal/shared"
)

func TestSideTable(t *testing.T) {
	debit := []shared.OperationType{shared.OpPayToCustomer, shared.OpBankTransfer, shared.OpCheckBounce, shared.OpSalesInvoice}
	credit := []shared.OperationType{shared.OpReceiveFromCustomer, shared.OpSpentChequeReturn, shared.OpIssuedCheckBounce, shared.OpPurchaseInvoice}
	for _, op := range debit {
		require.Equal(t, SideDebit, SideOf(op), op)
	}
	for _, op := range credit {
		require.Equal(t, SideCredit, SideOf(op), op)
	}
	for _, op := range []shared.OperationType{shared.OpCapitalInvestment, shared.OpCashWithdrawal, shared.OpReceiveFromBank} {
		require.Equal(t, SideNone, SideOf(op), op)
	}
}

func TestFold(t *testing.T) {
	d1 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	d3 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	entries := []Entry{
		{Type: shared.OpSalesInvoice, Amount: decimal.NewFromInt(1200000), Date: d1},
		{Type: shared.OpReceiveFromCustomer, Amount: decimal.NewFromInt(500000), Date: d2},
		{Type: shared.OpCapitalInvestment, Amount: decimal.NewFromInt(999), Date: d3},
	}
	b := Fold(9, entries, d3)
	require.Equal(t, int64(9), b.CustomerID)
	require.True(t, b.TotalDebit.Equal(decimal.NewFromInt(1200000)))
	require.True(t, b.TotalCredit.Equal(decimal.NewFromInt(500000)))
	require.True(t, b.Current.Equal(decimal.NewFromInt(700000)))
	require.NotNil(t, b.LastTransactionDate)
	require.True(t, b.LastTransactionDate.Equal(d3))
}

func TestFoldDatesNeutralOperations(t *testing.T) {
	d1 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)
	b := Fold(4, []Entry{
		{Type: shared.OpReceiveFromBank, Amount: decimal.NewFromInt(300), Date: d2},
		{Type: shared.OpPayToCustomer, Amount: decimal.NewFromInt(100), Date: d1},
	}, d2)
	require.True(t, b.Current.Equal(decimal.NewFromInt(100)))
	require.NotNil(t, b.LastTransactionDate)
	require.True(t, b.LastTransactionDate.Equal(d2))
}

func TestFoldEmpty(t *testing.T) {
	b := Fold(1, nil, time.Now())
	require.True(t, b.Current.IsZero())
	require.Nil(t, b.LastTransactionDate)
}
