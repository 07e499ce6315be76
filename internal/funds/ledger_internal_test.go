package funds

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ordercash/internal/shared"
)

func ptr(v int64) *int64 { return &v }

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestClassificationTable(t *testing.T) {
	for _, in := range []shared.OperationType{shared.OpReceiveFromCustomer, shared.OpReceiveFromBank, shared.OpPaymentToCash, shared.OpCapitalInvestment} {
		d, ok := Classify(in)
		require.True(t, ok)
		require.Equal(t, In, d, in)
	}
	for _, out := range []shared.OperationType{shared.OpPayToCustomer, shared.OpPayToBank, shared.OpPaymentFromCash, shared.OpCashWithdrawal} {
		d, ok := Classify(out)
		require.True(t, ok)
		require.Equal(t, Out, d, out)
	}
	for _, none := range []shared.OperationType{shared.OpSalesInvoice, shared.OpCheckBounce, shared.OpBankTransfer} {
		_, ok := Classify(none)
		require.False(t, ok, none)
	}
}

func TestCounterFundMovesOpposite(t *testing.T) {
	m := Movement{Type: shared.OpReceiveFromBank, FundID: ptr(1), CounterFundID: ptr(2), Amount: dec(10)}
	d, ok := m.DirectionFor(1)
	require.True(t, ok)
	require.Equal(t, In, d)
	d, ok = m.DirectionFor(2)
	require.True(t, ok)
	require.Equal(t, Out, d)
	_, ok = m.DirectionFor(3)
	require.False(t, ok)
	require.Equal(t, map[int64]Direction{1: In, 2: Out}, m.Legs())
}

func TestPettyCashLegs(t *testing.T) {
	add := Movement{Type: shared.OpPettyCashAdd, FundID: ptr(9), CounterFundID: ptr(1)}
	require.Equal(t, map[int64]Direction{9: In, 1: Out}, add.Legs())
	withdraw := Movement{Type: shared.OpPettyCashWithdraw, FundID: ptr(9)}
	require.Equal(t, map[int64]Direction{9: Out}, withdraw.Legs())
}

func TestReplayOrdersByDateThenCreation(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	created := day.Add(10 * time.Hour)
	fund := Fund{ID: 1, InitialBalance: dec(1000)}
	movements := []Movement{
		{RefType: RefFinancialOperation, RefID: 3, Type: shared.OpPayToCustomer, FundID: ptr(1), Amount: dec(300), Date: day.AddDate(0, 0, 1), CreatedAt: created},
		{RefType: RefFinancialOperation, RefID: 2, Type: shared.OpReceiveFromCustomer, FundID: ptr(1), Amount: dec(200), Date: day, CreatedAt: created.Add(time.Minute)},
		{RefType: RefFinancialOperation, RefID: 1, Type: shared.OpReceiveFromCustomer, FundID: ptr(1), Amount: dec(100), Date: day, CreatedAt: created},
		{RefType: RefFinancialOperation, RefID: 4, Type: shared.OpSalesInvoice, FundID: ptr(1), Amount: dec(999), Date: day, CreatedAt: created},
	}
	rows, final := Replay(fund, movements)
	require.True(t, final.Equal(dec(1000)))
	require.Len(t, rows, 3)
	require.Equal(t, int64(1), rows[0].RefID)
	require.True(t, rows[0].RunningBalance.Equal(dec(1100)))
	require.Equal(t, int64(2), rows[1].RefID)
	require.True(t, rows[1].RunningBalance.Equal(dec(1300)))
	require.Equal(t, Out, rows[2].Direction)
	require.True(t, rows[2].RunningBalance.Equal(dec(1000)))
	require.Equal(t, 3, rows[2].Seq)
}

func TestReconciliationErr(t *testing.T) {
	ok := Reconciliation{FundID: 1, Stored: dec(5), FromTransactions: dec(5), FromOperations: dec(5), FromStatements: dec(5)}
	require.NoError(t, ok.Err())
	bad := ok
	bad.FromOperations = dec(6)
	err := bad.Err()
	require.ErrorIs(t, err, shared.ErrReconciliationDrift)
	var drift *shared.DriftError
	require.ErrorAs(t, err, &drift)
	require.True(t, drift.FromOperations.Equal(dec(6)))
}
