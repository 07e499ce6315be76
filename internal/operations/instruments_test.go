package operations_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ordercash/internal/instruments"
	"github.com/odyssey-erp/ordercash/internal/operations"
	"github.com/odyssey-erp/ordercash/internal/shared"
)

func (f *fixture) checkBook(t *testing.T) instruments.CheckBook {
	t.Helper()
	book, err := f.ops.RegisterCheckBook(f.ctx, instruments.CheckBookInput{FundID: f.bank.ID, Serial: "B-1402", StartNumber: 100, EndNumber: 124})
	require.NoError(t, err)
	return book
}

func (f *fixture) issue(t *testing.T, book instruments.CheckBook, number int64, amount int64, customerID *int64) operations.InstrumentResult {
	t.Helper()
	res, err := f.ops.IssueCheck(f.ctx, operations.IssueCheckInput{
		CheckBookID: book.ID,
		Number:      number,
		Payee:       "Kaveh Supplies",
		CustomerID:  customerID,
		Amount:      decimal.NewFromInt(amount),
		IssueDate:   clock,
		DueDate:     clock.AddDate(0, 1, 0),
		Description: "Invoice 88",
	})
	require.NoError(t, err)
	return res
}

func TestRegisterCheckBookCreatesBlankLeaves(t *testing.T) {
	f := newFixture(t)
	book := f.checkBook(t)

	summary, err := f.instruments.Summarize(f.ctx, book.ID)
	require.NoError(t, err)
	require.Equal(t, 25, summary.ByStatus[instruments.CheckUnused])

	_, err = f.ops.RegisterCheckBook(f.ctx, instruments.CheckBookInput{FundID: f.cash.ID, Serial: "C-1", StartNumber: 1, EndNumber: 10})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestIssuedCheckBounceCancelRestoresIssuance(t *testing.T) {
	f := newFixture(t)
	book := f.checkBook(t)

	issued := f.issue(t, book, 103, 1_000_000, &f.supplier.ID)
	require.NotNil(t, issued.Operation)
	require.Equal(t, shared.OpPayToCustomer, issued.Operation.Type)
	require.Nil(t, issued.Operation.FundID)
	require.Equal(t, instruments.CheckIssued, issued.Check.Status)
	f.requireCustomer(t, f.supplier.ID, 1_000_000)
	f.requireFund(t, f.bank.ID, 5_000_000)

	bounced, err := f.ops.BounceCheck(f.ctx, issued.Check.ID)
	require.NoError(t, err)
	require.Equal(t, instruments.CheckBounced, bounced.Check.Status)
	require.NotNil(t, bounced.Operation)
	require.Equal(t, shared.OpIssuedCheckBounce, bounced.Operation.Type)
	f.requireCustomer(t, f.supplier.ID, 0)

	out, err := f.ops.CancelOperation(f.ctx, bounced.Operation.ID)
	require.NoError(t, err)
	require.Equal(t, 1, out.Instruments)
	f.requireCustomer(t, f.supplier.ID, 1_000_000)
	f.requireBalancedLedger(t)

	check, err := f.instruments.GetCheck(f.ctx, issued.Check.ID)
	require.NoError(t, err)
	require.Equal(t, instruments.CheckIssued, check.Status)
	require.True(t, check.Amount.Equal(decimal.NewFromInt(1_000_000)))
	require.Equal(t, issued.Check.Payee, check.Payee)
	require.Equal(t, issued.Check.CustomerID, check.CustomerID)
	require.Equal(t, issued.Check.IssueDate, check.IssueDate)
	require.Equal(t, issued.Check.DueDate, check.DueDate)

	history, err := f.instruments.History(f.ctx, instruments.KindCheck, check.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, instruments.TrReset, history[2].Transition)
}

func TestVoidRequiresCancelledPayment(t *testing.T) {
	f := newFixture(t)
	book := f.checkBook(t)
	issued := f.issue(t, book, 110, 400_000, &f.supplier.ID)

	_, err := f.ops.VoidCheck(f.ctx, issued.Check.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = f.ops.CancelOperation(f.ctx, issued.Operation.ID)
	require.NoError(t, err)
	f.requireCustomer(t, f.supplier.ID, 0)

	check, err := f.instruments.GetCheck(f.ctx, issued.Check.ID)
	require.NoError(t, err)
	require.Equal(t, instruments.CheckUnused, check.Status)
	require.True(t, check.Amount.IsZero())
	require.Empty(t, check.Payee)

	voided, err := f.ops.VoidCheck(f.ctx, issued.Check.ID)
	require.NoError(t, err)
	require.Equal(t, instruments.CheckVoid, voided.Check.Status)

	_, err = f.ops.ConfirmOperation(f.ctx, issued.Operation.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	f.requireCustomer(t, f.supplier.ID, 0)
}

func TestIssueWithoutCustomerOnlyFillsLeaf(t *testing.T) {
	f := newFixture(t)
	book := f.checkBook(t)

	res := f.issue(t, book, 101, 90_000, nil)
	require.Nil(t, res.Operation)
	require.Equal(t, instruments.CheckIssued, res.Check.Status)

	cleared, err := f.ops.ClearCheck(f.ctx, res.Check.ID)
	require.NoError(t, err)
	require.Equal(t, instruments.CheckCleared, cleared.Check.Status)

	_, err = f.ops.BounceCheck(f.ctx, res.Check.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	reset, err := f.ops.ResetCheck(f.ctx, res.Check.ID)
	require.NoError(t, err)
	require.Equal(t, instruments.CheckIssued, reset.Check.Status)
	require.Empty(t, f.store.Vouchers())
}

func (f *fixture) receive(t *testing.T, sayadi string, amount int64) operations.InstrumentResult {
	t.Helper()
	res, err := f.ops.ReceiveCheque(f.ctx, operations.ReceiveChequeInput{
		SayadiID:     sayadi,
		Serial:       "778812",
		BankName:     "Saderat",
		CustomerID:   f.customer.ID,
		Amount:       decimal.NewFromInt(amount),
		DueDate:      clock.AddDate(0, 0, 45),
		ReceivedDate: clock,
	})
	require.NoError(t, err)
	return res
}

func TestReceivedChequeDeleteRemovesEverything(t *testing.T) {
	f := newFixture(t)
	res := f.receive(t, "1234567890123456", 500_000)

	require.Len(t, res.Cheques, 1)
	require.Equal(t, instruments.ChequeReceived, res.Cheques[0].Status)
	require.Nil(t, res.Operation.FundID)
	f.requireCustomer(t, f.customer.ID, -500_000)
	f.requireFund(t, f.cash.ID, 1_000_000)
	require.Len(t, f.store.Vouchers(), 1)

	out, err := f.ops.DeleteOperation(f.ctx, res.Operation.ID)
	require.NoError(t, err)
	require.Equal(t, 1, out.Instruments)
	f.requireCustomer(t, f.customer.ID, 0)
	require.Empty(t, f.store.Vouchers())

	_, err = f.instruments.GetCheque(f.ctx, res.Cheques[0].ID)
	require.ErrorIs(t, err, instruments.ErrChequeNotFound)
	listed, err := f.instruments.ListCheques(f.ctx, instruments.ChequeFilter{CustomerID: f.customer.ID})
	require.NoError(t, err)
	require.Empty(t, listed)

	_, err = f.ops.ReceiveCheque(f.ctx, operations.ReceiveChequeInput{
		SayadiID:     "1234567890123456",
		BankName:     "Saderat",
		CustomerID:   f.customer.ID,
		Amount:       decimal.NewFromInt(500_000),
		DueDate:      clock,
		ReceivedDate: clock,
	})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Empty(t, f.store.Vouchers())
}

func TestCancelledReceiptCanBeReconfirmed(t *testing.T) {
	f := newFixture(t)
	res := f.receive(t, "6037991122334455", 320_000)

	_, err := f.ops.CancelOperation(f.ctx, res.Operation.ID)
	require.NoError(t, err)
	_, err = f.instruments.GetCheque(f.ctx, res.Cheques[0].ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.ops.ConfirmOperation(f.ctx, res.Operation.ID)
	require.NoError(t, err)
	cheque, err := f.instruments.GetCheque(f.ctx, res.Cheques[0].ID)
	require.NoError(t, err)
	require.Equal(t, instruments.ChequeReceived, cheque.Status)
	f.requireCustomer(t, f.customer.ID, -320_000)
}

func TestDepositAndClearAreStatusOnly(t *testing.T) {
	f := newFixture(t)
	res := f.receive(t, "1111222233334444", 150_000)
	id := res.Cheques[0].ID

	deposited, err := f.ops.DepositReceivedCheques(f.ctx, f.bank.ID, []int64{id})
	require.NoError(t, err)
	require.Equal(t, instruments.ChequeDeposited, deposited.Cheques[0].Status)
	require.Equal(t, &f.bank.ID, deposited.Cheques[0].DepositedFundID)

	cleared, err := f.ops.ClearReceivedCheque(f.ctx, id)
	require.NoError(t, err)
	require.Equal(t, instruments.ChequeCleared, cleared.Cheques[0].Status)
	require.NotNil(t, cleared.Cheques[0].ClearedAt)
	f.requireFund(t, f.bank.ID, 5_000_000)
	require.Len(t, f.store.Vouchers(), 1)

	_, err = f.ops.DepositReceivedCheques(f.ctx, f.cash.ID, []int64{id})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestBounceReceivedChequeChargesDrawer(t *testing.T) {
	f := newFixture(t)
	res := f.receive(t, "9999888877776666", 210_000)
	f.requireCustomer(t, f.customer.ID, -210_000)

	bounced, err := f.ops.BounceReceivedCheque(f.ctx, res.Cheques[0].ID)
	require.NoError(t, err)
	require.Equal(t, instruments.ChequeBounced, bounced.Cheques[0].Status)
	require.Equal(t, shared.OpCheckBounce, bounced.Operation.Type)
	f.requireCustomer(t, f.customer.ID, 0)

	_, err = f.ops.BounceReceivedCheque(f.ctx, res.Cheques[0].ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	f.requireBalancedLedger(t)
}

func TestSpendReturnAndRespend(t *testing.T) {
	f := newFixture(t)
	first := f.receive(t, "1000000000000001", 300_000)
	second := f.receive(t, "1000000000000002", 200_000)
	ids := []int64{first.Cheques[0].ID, second.Cheques[0].ID}

	_, err := f.ops.SpendReceivedCheques(f.ctx, operations.SpendInput{ChequeIDs: ids, Date: clock})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.ops.SpendReceivedCheques(f.ctx, operations.SpendInput{ChequeIDs: []int64{ids[0], ids[0]}, RecipientCustomerID: &f.supplier.ID, Date: clock})
	require.ErrorIs(t, err, shared.ErrValidation)

	spent, err := f.ops.SpendReceivedCheques(f.ctx, operations.SpendInput{ChequeIDs: ids, RecipientCustomerID: &f.supplier.ID, Date: clock})
	require.NoError(t, err)
	require.True(t, spent.Operation.Amount.Equal(decimal.NewFromInt(500_000)))
	require.Equal(t, shared.PaymentSpendCheque, spent.Operation.PaymentMethod)
	for _, c := range spent.Cheques {
		require.Equal(t, instruments.ChequeSpent, c.Status)
		require.Equal(t, "Kaveh Supplies", c.RecipientName)
	}
	f.requireCustomer(t, f.supplier.ID, 500_000)
	f.requireFund(t, f.cash.ID, 1_000_000)

	returned, err := f.ops.ReturnSpentCheque(f.ctx, ids[1])
	require.NoError(t, err)
	require.Equal(t, instruments.ChequeReturned, returned.Cheques[0].Status)
	require.Nil(t, returned.Cheques[0].RecipientCustomerID)
	require.Equal(t, shared.OpSpentChequeReturn, returned.Operation.Type)
	f.requireCustomer(t, f.supplier.ID, 300_000)

	_, err = f.ops.ReturnSpentCheque(f.ctx, ids[1])
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	respent, err := f.ops.SpendReceivedCheques(f.ctx, operations.SpendInput{ChequeIDs: ids[1:], RecipientCustomerID: &f.supplier.ID, Date: clock.Add(time.Hour)})
	require.NoError(t, err)
	require.Equal(t, instruments.ChequeSpent, respent.Cheques[0].Status)
	f.requireCustomer(t, f.supplier.ID, 500_000)
	f.requireBalancedLedger(t)
}

func TestCancelRefusedWhileChequeRespent(t *testing.T) {
	f := newFixture(t)
	received := f.receive(t, "1000000000000003", 250_000)
	id := received.Cheques[0].ID

	first, err := f.ops.SpendReceivedCheques(f.ctx, operations.SpendInput{ChequeIDs: []int64{id}, RecipientCustomerID: &f.supplier.ID, Date: clock})
	require.NoError(t, err)
	_, err = f.ops.ReturnSpentCheque(f.ctx, id)
	require.NoError(t, err)
	second, err := f.ops.SpendReceivedCheques(f.ctx, operations.SpendInput{ChequeIDs: []int64{id}, RecipientCustomerID: &f.customer.ID, Date: clock.Add(time.Hour)})
	require.NoError(t, err)

	_, err = f.ops.CancelOperation(f.ctx, first.Operation.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	cheque, err := f.instruments.GetCheque(f.ctx, id)
	require.NoError(t, err)
	require.Equal(t, instruments.ChequeSpent, cheque.Status)
	require.Equal(t, &f.customer.ID, cheque.RecipientCustomerID)

	op, err := f.ops.GetOperation(f.ctx, second.Operation.ID)
	require.NoError(t, err)
	require.Equal(t, operations.StatusConfirmed, op.Status)
	op, err = f.ops.GetOperation(f.ctx, first.Operation.ID)
	require.NoError(t, err)
	require.Equal(t, operations.StatusConfirmed, op.Status)
	f.requireBalancedLedger(t)
}

func TestCancelIssuanceRefusedAfterBounce(t *testing.T) {
	f := newFixture(t)
	book := f.checkBook(t)
	issued := f.issue(t, book, 104, 1_000_000, &f.supplier.ID)

	bounced, err := f.ops.BounceCheck(f.ctx, issued.Check.ID)
	require.NoError(t, err)
	_, err = f.ops.ResetCheck(f.ctx, issued.Check.ID)
	require.NoError(t, err)

	_, err = f.ops.CancelOperation(f.ctx, issued.Operation.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	// The bounce no longer matches the check either, so it stays as booked.
	_, err = f.ops.CancelOperation(f.ctx, bounced.Operation.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	check, err := f.instruments.GetCheck(f.ctx, issued.Check.ID)
	require.NoError(t, err)
	require.Equal(t, instruments.CheckIssued, check.Status)
	require.True(t, check.Amount.Equal(decimal.NewFromInt(1_000_000)))
	f.requireCustomer(t, f.supplier.ID, 0)
	f.requireBalancedLedger(t)
}

func TestCustomerlessBounceRecordsNoOperation(t *testing.T) {
	f := newFixture(t)
	book := f.checkBook(t)
	issued := f.issue(t, book, 105, 70_000, nil)

	bounced, err := f.ops.BounceCheck(f.ctx, issued.Check.ID)
	require.NoError(t, err)
	require.Equal(t, instruments.CheckBounced, bounced.Check.Status)
	require.Nil(t, bounced.Operation)

	reset, err := f.ops.ResetCheck(f.ctx, issued.Check.ID)
	require.NoError(t, err)
	require.Equal(t, instruments.CheckIssued, reset.Check.Status)
	require.Empty(t, f.store.Vouchers())
}
