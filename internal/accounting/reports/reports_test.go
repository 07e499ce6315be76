package reports

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestBuildTrialBalance(t *testing.T) {
	accounts := []AccountBalance{
		{Code: "1110001", Name: "Cash register", Type: "ASSET", Debit: d(700000), Credit: d(150000)},
		{Code: "1120001", Name: "Bank Mellat", Type: "ASSET", Debit: d(100000), Credit: d(50000)},
		{Code: "1310001", Name: "Customer Ali", Type: "ASSET", Debit: d(10000), Credit: d(500000)},
		{Code: "3110001", Name: "Owner capital", Type: "EQUITY", Credit: d(110000)},
	}

	tb := BuildTrialBalance(accounts)
	require.Len(t, tb.Groups, 3)
	require.Equal(t, "11", tb.Groups[0].Key)
	require.True(t, tb.TotalDebit.Equal(d(810000)))
	require.True(t, tb.TotalCredit.Equal(d(810000)))
	require.True(t, tb.Balanced)
	require.True(t, tb.Groups[0].Closing.Equal(d(600000)))
}

func TestBuildTrialBalanceFlagsImbalance(t *testing.T) {
	tb := BuildTrialBalance([]AccountBalance{{Code: "1110001", Debit: d(1)}})
	require.False(t, tb.Balanced)
}

func TestBuildProfitAndLoss(t *testing.T) {
	accounts := []AccountBalance{
		{Code: "4110001", Name: "Sales", Type: "REVENUE", Credit: d(1200)},
		{Code: "5110001", Name: "Purchases", Type: "EXPENSE", Debit: d(300)},
		{Code: "5300001", Name: "General expenses", Type: "EXPENSE", Debit: d(200)},
		{Code: "1110001", Name: "Cash", Type: "ASSET", Debit: d(999)},
	}

	pl := BuildProfitAndLoss(accounts)
	require.True(t, pl.Revenue.Total.Equal(d(1200)))
	require.True(t, pl.Expense.Total.Equal(d(500)))
	require.True(t, pl.NetIncome.Equal(d(700)))
	require.Len(t, pl.Expense.Accounts, 2)
}
