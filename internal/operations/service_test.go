package operations_test

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/ordercash/internal/accounting"
	"github.com/odyssey-erp/ordercash/internal/instruments"
	"github.com/odyssey-erp/ordercash/internal/operations"
	"github.com/odyssey-erp/ordercash/internal/shared"
)

func TestReceiveFromCustomerMovesCashAndCustomer(t *testing.T) {
	f := newFixture(t)

	op := f.create(t, operations.OperationInput{
		Type:       shared.OpReceiveFromCustomer,
		Amount:     decimal.NewFromInt(250_000),
		CustomerID: &f.customer.ID,
		Confirm:    true,
	})

	require.Equal(t, operations.StatusConfirmed, op.Status)
	require.Equal(t, "202403100001", op.Number)
	require.NotNil(t, op.FundID)
	require.Equal(t, f.cash.ID, *op.FundID)
	f.requireFund(t, f.cash.ID, 1_250_000)
	f.requireCustomer(t, f.customer.ID, -250_000)
	f.requireBalancedLedger(t)

	doc, err := f.documents.Get(f.ctx, operations.SourceOperation, op.ID)
	require.NoError(t, err)
	require.Nil(t, doc.DeletedAt)
	require.Equal(t, string(shared.OpReceiveFromCustomer), doc.DocType)
}

func TestDraftLeavesBalancesUntouched(t *testing.T) {
	f := newFixture(t)

	op := f.create(t, operations.OperationInput{
		Type:       shared.OpPayToCustomer,
		Amount:     decimal.NewFromInt(40_000),
		CustomerID: &f.customer.ID,
	})
	require.Equal(t, operations.StatusDraft, op.Status)
	f.requireFund(t, f.cash.ID, 1_000_000)
	require.Empty(t, f.store.Vouchers())

	out, err := f.ops.CancelOperation(f.ctx, op.ID)
	require.NoError(t, err)
	require.Equal(t, operations.StatusCancelled, out.Operation.Status)
	require.NotNil(t, out.Operation.DeletedAt)
	require.Empty(t, f.store.Vouchers())
	require.Empty(t, f.store.FundTransactions(f.cash.ID))
}

func TestCancelAndReconfirmRoundTrip(t *testing.T) {
	f := newFixture(t)
	op := f.create(t, operations.OperationInput{
		Type:       shared.OpPayToCustomer,
		Amount:     decimal.NewFromInt(100_000),
		CustomerID: &f.customer.ID,
		Confirm:    true,
	})
	f.requireFund(t, f.cash.ID, 900_000)
	f.requireCustomer(t, f.customer.ID, 100_000)

	out, err := f.ops.CancelOperation(f.ctx, op.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{f.cash.ID}, out.Funds)
	require.Equal(t, []int64{f.customer.ID}, out.Customers)
	f.requireFund(t, f.cash.ID, 1_000_000)
	f.requireCustomer(t, f.customer.ID, 0)
	f.requireBalancedLedger(t)

	doc, err := f.documents.Get(f.ctx, operations.SourceOperation, op.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Zero(t, doc.ID)

	_, err = f.ops.CancelOperation(f.ctx, op.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	out, err = f.ops.ConfirmOperation(f.ctx, op.ID)
	require.NoError(t, err)
	require.Equal(t, operations.StatusConfirmed, out.Operation.Status)
	require.Nil(t, out.Operation.DeletedAt)
	f.requireFund(t, f.cash.ID, 900_000)
	f.requireCustomer(t, f.customer.ID, 100_000)
	f.requireBalancedLedger(t)
	require.Len(t, f.store.FundTransactions(f.cash.ID), 3)

	restored, err := f.documents.Get(f.ctx, operations.SourceOperation, op.ID)
	require.NoError(t, err)
	require.Nil(t, restored.DeletedAt)
}

func TestBankDepositMovesBothFunds(t *testing.T) {
	f := newFixture(t)

	f.create(t, operations.OperationInput{
		Type:       shared.OpPayToBank,
		Amount:     decimal.NewFromInt(300_000),
		BankFundID: &f.bank.ID,
		Confirm:    true,
	})
	f.requireFund(t, f.cash.ID, 700_000)
	f.requireFund(t, f.bank.ID, 5_300_000)

	f.create(t, operations.OperationInput{
		Type:          shared.OpCapitalInvestment,
		Amount:        decimal.NewFromInt(2_000_000),
		PaymentMethod: shared.PaymentBankTransfer,
		BankFundID:    &f.bank.ID,
		Confirm:       true,
	})
	f.requireFund(t, f.bank.ID, 7_300_000)
	f.requireFund(t, f.cash.ID, 700_000)
	f.requireBalancedLedger(t)
}

func TestDeleteOperationPurgesEffects(t *testing.T) {
	f := newFixture(t)
	op := f.create(t, operations.OperationInput{
		Type:       shared.OpReceiveFromCustomer,
		Amount:     decimal.NewFromInt(75_000),
		CustomerID: &f.customer.ID,
		Confirm:    true,
	})

	out, err := f.ops.DeleteOperation(f.ctx, op.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{f.cash.ID}, out.Funds)
	f.requireFund(t, f.cash.ID, 1_000_000)
	f.requireCustomer(t, f.customer.ID, 0)
	require.Empty(t, f.store.Vouchers())
	require.Empty(t, f.store.FundTransactions(f.cash.ID))

	_, err = f.ops.GetOperation(f.ctx, op.ID)
	require.ErrorIs(t, err, operations.ErrOperationNotFound)
}

func TestCreateOperationValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		in   operations.OperationInput
	}{
		{"missing customer", operations.OperationInput{Type: shared.OpReceiveFromCustomer, Amount: decimal.NewFromInt(10)}},
		{"unknown type", operations.OperationInput{Type: "GIFT", Amount: decimal.NewFromInt(10)}},
		{"zero amount", operations.OperationInput{Type: shared.OpPaymentToCash}},
		{"bank deposit without bank", operations.OperationInput{Type: shared.OpPayToBank, Amount: decimal.NewFromInt(10)}},
		{"cash fund as bank", operations.OperationInput{Type: shared.OpPayToBank, Amount: decimal.NewFromInt(10), BankFundID: &f.cash.ID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.in.Date = clock
			_, err := f.ops.CreateOperation(f.ctx, tc.in)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	ops, err := f.ops.ListOperations(f.ctx, operations.Filter{IncludeDeleted: true})
	require.NoError(t, err)
	require.Empty(t, ops)
}

func TestRebuildStatementsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	for i, amount := range []int64{120_000, 35_000, 60_000} {
		typ := shared.OpPaymentToCash
		if i%2 == 1 {
			typ = shared.OpPaymentFromCash
		}
		f.create(t, operations.OperationInput{Type: typ, Amount: decimal.NewFromInt(amount), Confirm: true})
	}

	first, err := f.funds.RebuildStatements(f.ctx, f.cash.ID)
	require.NoError(t, err)
	rowsFirst, err := f.funds.Statements(f.ctx, f.cash.ID)
	require.NoError(t, err)

	second, err := f.funds.RebuildStatements(f.ctx, f.cash.ID)
	require.NoError(t, err)
	rowsSecond, err := f.funds.Statements(f.ctx, f.cash.ID)
	require.NoError(t, err)

	require.True(t, first.Equal(decimal.NewFromInt(1_145_000)))
	require.True(t, first.Equal(second))
	require.Len(t, rowsSecond, 3)
	for i := range rowsFirst {
		require.Equal(t, rowsFirst[i].Seq, rowsSecond[i].Seq)
		require.True(t, rowsFirst[i].RunningBalance.Equal(rowsSecond[i].RunningBalance))
	}
	require.True(t, rowsSecond[2].RunningBalance.Equal(first))
}

func TestConcurrentOperationsGetDistinctNumbers(t *testing.T) {
	f := newFixture(t)
	const n = 20
	numbers := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			out, err := f.ops.CreateOperation(f.ctx, operations.OperationInput{
				Type:    shared.OpPaymentToCash,
				Amount:  decimal.NewFromInt(1_000),
				Date:    clock,
				Confirm: true,
			})
			numbers[i] = out.Operation.Number
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[string]bool, n)
	for _, num := range numbers {
		require.False(t, seen[num], "duplicate number %s", num)
		seen[num] = true
	}
	for i := 1; i <= n; i++ {
		require.True(t, seen[fmt.Sprintf("20240310%04d", i)], "missing number %d", i)
	}
	f.requireFund(t, f.cash.ID, 1_000_000+n*1_000)

	stats, err := f.documents.Statistics(f.ctx)
	require.NoError(t, err)
	require.Equal(t, n, stats.Total)
}

func TestContentionIsRetried(t *testing.T) {
	f := newFixture(t)

	f.store.InjectContention(2)
	op := f.create(t, operations.OperationInput{Type: shared.OpPaymentToCash, Amount: decimal.NewFromInt(5_000), Confirm: true})
	require.Equal(t, operations.StatusConfirmed, op.Status)

	f.store.InjectContention(3)
	_, err := f.ops.CreateOperation(f.ctx, operations.OperationInput{Type: shared.OpPaymentToCash, Amount: decimal.NewFromInt(5_000), Date: clock})
	require.ErrorIs(t, err, shared.ErrContention)
	f.requireFund(t, f.cash.ID, 1_005_000)
}

func TestPettyCashTopUpExpenseAndDelete(t *testing.T) {
	f := newFixture(t)

	add, err := f.ops.CreatePettyCash(f.ctx, operations.PettyCashInput{
		Direction:    operations.PettyAdd,
		PettyFundID:  f.petty.ID,
		SourceFundID: &f.bank.ID,
		Amount:       decimal.NewFromInt(200_000),
		Date:         clock,
		Reason:       "Weekly float",
	})
	require.NoError(t, err)
	require.Equal(t, "PC202403100001", add.Number)
	f.requireFund(t, f.petty.ID, 200_000)
	f.requireFund(t, f.bank.ID, 4_800_000)

	spend, err := f.ops.CreatePettyCash(f.ctx, operations.PettyCashInput{
		Direction:   operations.PettyWithdraw,
		PettyFundID: f.petty.ID,
		Amount:      decimal.NewFromInt(50_000),
		Date:        clock,
		Reason:      "Courier",
	})
	require.NoError(t, err)
	f.requireFund(t, f.petty.ID, 150_000)

	_, err = f.ops.DeletePettyCash(f.ctx, spend.ID)
	require.NoError(t, err)
	f.requireFund(t, f.petty.ID, 200_000)
	f.requireBalancedLedger(t)

	_, err = f.ops.DeletePettyCash(f.ctx, spend.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	live, err := f.ops.PettyCashOf(f.ctx, f.petty.ID)
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, add.ID, live[0].ID)

	_, err = f.ops.CreatePettyCash(f.ctx, operations.PettyCashInput{
		Direction:    operations.PettyAdd,
		PettyFundID:  f.cash.ID,
		SourceFundID: &f.bank.ID,
		Amount:       decimal.NewFromInt(1),
		Date:         clock,
		Reason:       "wrong box",
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAmountsBeyondTwoDecimalsRejected(t *testing.T) {
	f := newFixture(t)
	tiny := decimal.RequireFromString("0.001")
	book, err := f.ops.RegisterCheckBook(f.ctx, instruments.CheckBookInput{FundID: f.bank.ID, Serial: "B-9", StartNumber: 1, EndNumber: 5})
	require.NoError(t, err)

	_, err = f.ops.CreateOperation(f.ctx, operations.OperationInput{
		Type: shared.OpPaymentToCash, Amount: tiny, Date: clock, Confirm: true,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.ops.CreateOperation(f.ctx, operations.OperationInput{
		Type: shared.OpReceiveFromCustomer, CustomerID: &f.customer.ID, Amount: tiny, Date: clock, Confirm: true,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.ops.CreatePettyCash(f.ctx, operations.PettyCashInput{
		Direction: operations.PettyAdd, PettyFundID: f.petty.ID, SourceFundID: &f.bank.ID,
		Amount: decimal.RequireFromString("10.005"), Date: clock, Reason: "float",
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	for _, customerID := range []*int64{nil, &f.supplier.ID} {
		_, err = f.ops.IssueCheck(f.ctx, operations.IssueCheckInput{
			CheckBookID: book.ID, Number: 1, Payee: "Kaveh Supplies", CustomerID: customerID,
			Amount: tiny, IssueDate: clock, DueDate: clock,
		})
		require.ErrorIs(t, err, shared.ErrValidation)
	}

	_, err = f.ops.ReceiveCheque(f.ctx, operations.ReceiveChequeInput{
		SayadiID: "1000000000000009", BankName: "Melli", CustomerID: f.customer.ID,
		Amount: tiny, DueDate: clock, ReceivedDate: clock,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.ledger.Post(f.ctx, 1, accounting.PostingRequest{
		Event: shared.OpPaymentToCash, Amount: tiny, Date: clock,
		Parties: accounting.Parties{PaymentMethod: shared.PaymentCash}, SourceType: "invoice", SourceID: uuid.New(),
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	require.Empty(t, f.store.Vouchers())
	f.requireFund(t, f.petty.ID, 0)
	f.requireFund(t, f.bank.ID, 5_000_000)
	ops, err := f.ops.ListOperations(f.ctx, operations.Filter{IncludeDeleted: true})
	require.NoError(t, err)
	require.Empty(t, ops)

	op, err := f.ops.CreateOperation(f.ctx, operations.OperationInput{
		Type: shared.OpPaymentToCash, Amount: decimal.RequireFromString("1250.50"), Date: clock, Confirm: true,
	})
	require.NoError(t, err)
	require.True(t, op.Operation.Amount.Equal(decimal.RequireFromString("1250.5")))
}
