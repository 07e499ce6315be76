package accounting

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ordercash/internal/shared"
)

func TestResolveRolesTable(t *testing.T) {
	cust := Parties{CustomerID: 7, CustomerName: "Ali", PaymentMethod: shared.PaymentCash}
	bankCust := Parties{CustomerID: 7, BankName: "Mellat", BankAccountNumber: "۱۲۳۴", PaymentMethod: shared.PaymentBankTransfer}

	cases := []struct {
		name   string
		event  shared.OperationType
		p      Parties
		debit  string
		credit string
	}{
		{"receive cash", shared.OpReceiveFromCustomer, cust, "cash", "customer:7"},
		{"receive transfer", shared.OpReceiveFromCustomer, bankCust, "bank:1234", "customer:7"},
		{"receive cheque", shared.OpReceiveFromCustomer, Parties{CustomerID: 7, PaymentMethod: shared.PaymentCheque}, "cheques_receivable", "customer:7"},
		{"pay cash", shared.OpPayToCustomer, cust, "customer:7", "cash"},
		{"pay spent cheque", shared.OpPayToCustomer, Parties{CustomerID: 7, PaymentMethod: shared.PaymentSpendCheque}, "customer:7", "cheques_receivable"},
		{"pay issued cheque", shared.OpPayToCustomer, Parties{CustomerID: 7, BankAccountNumber: "1234", PaymentMethod: shared.PaymentCheque}, "customer:7", "bank:1234"},
		{"receive from bank", shared.OpReceiveFromBank, bankCust, "cash", "bank:1234"},
		{"withdrawal", shared.OpCashWithdrawal, bankCust, "cash", "bank:1234"},
		{"pay to bank", shared.OpPayToBank, bankCust, "bank:1234", "cash"},
		{"bank transfer", shared.OpBankTransfer, bankCust, "customer:7", "bank:1234"},
		{"misc receipt", shared.OpPaymentToCash, Parties{}, "cash", "income"},
		{"misc payment", shared.OpPaymentFromCash, Parties{}, "expense", "cash"},
		{"capital", shared.OpCapitalInvestment, Parties{}, "cash", "capital"},
		{"cheque bounce", shared.OpCheckBounce, cust, "customer:7", "cheques_receivable"},
		{"spent return", shared.OpSpentChequeReturn, cust, "cheques_receivable", "customer:7"},
		{"issued bounce", shared.OpIssuedCheckBounce, bankCust, "bank:1234", "customer:7"},
		{"sales invoice", shared.OpSalesInvoice, cust, "customer:7", "sales"},
		{"purchase invoice", shared.OpPurchaseInvoice, cust, "purchase", "customer:7"},
		{"petty top-up from cash", shared.OpPettyCashAdd, Parties{}, "petty_cash", "cash"},
		{"petty top-up from bank", shared.OpPettyCashAdd, Parties{SourceIsBank: true, BankAccountNumber: "1234"}, "petty_cash", "bank:1234"},
		{"petty expense", shared.OpPettyCashWithdraw, Parties{}, "expense", "petty_cash"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			debit, credit, err := ResolveRoles(tc.event, tc.p)
			require.NoError(t, err)
			require.Equal(t, tc.debit, debit.Key())
			require.Equal(t, tc.credit, credit.Key())
		})
	}
}

func TestResolveRolesRequiresParties(t *testing.T) {
	_, _, err := ResolveRoles(shared.OpReceiveFromCustomer, Parties{PaymentMethod: shared.PaymentCash})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, _, err = ResolveRoles(shared.OpPayToBank, Parties{})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, _, err = ResolveRoles(shared.OperationType("GIFT"), Parties{})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestVoucherValidate(t *testing.T) {
	amt := decimal.NewFromInt(500000)
	ok := Voucher{Items: []VoucherItem{{AccountID: 1, Debit: amt}, {AccountID: 2, Credit: amt}}}
	require.NoError(t, ok.Validate())

	unbalanced := Voucher{Items: []VoucherItem{{AccountID: 1, Debit: amt}, {AccountID: 2, Credit: amt.Sub(decimal.NewFromInt(1))}}}
	require.ErrorIs(t, unbalanced.Validate(), shared.ErrUnbalancedPosting)

	both := Voucher{Items: []VoucherItem{{AccountID: 1, Debit: amt, Credit: amt}, {AccountID: 2}}}
	require.ErrorIs(t, both.Validate(), shared.ErrUnbalancedPosting)

	single := Voucher{Items: []VoucherItem{{AccountID: 1, Debit: amt}}}
	require.ErrorIs(t, single.Validate(), ErrTooFewLines)
}

func TestRoleKeysNormalise(t *testing.T) {
	require.Equal(t, BankRole("Mellat", "۱۲۳-۴").Key(), BankRole("mellat", "1234").Key())
	require.Equal(t, "customer:42", CustomerRole(42, "Reza").Key())
	require.Equal(t, "Customer Reza", CustomerRole(42, "Reza").displayName())
	require.Equal(t, "Cash register", CashRole().displayName())
}

func TestFiscalYearCovers(t *testing.T) {
	fy := FiscalYear{StartDate: date(2024, 3, 20), EndDate: date(2025, 3, 20)}
	require.True(t, fy.Covers(date(2024, 3, 20)))
	require.True(t, fy.Covers(date(2025, 3, 20).Add(23*time.Hour)))
	require.False(t, fy.Covers(date(2025, 3, 21)))
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
