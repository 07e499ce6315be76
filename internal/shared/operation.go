package shared

// OperationType enumerates business events that move money.
type OperationType string

const (
	OpReceiveFromCustomer OperationType = "RECEIVE_FROM_CUSTOMER"
	OpPayToCustomer       OperationType = "PAY_TO_CUSTOMER"
	OpReceiveFromBank     OperationType = "RECEIVE_FROM_BANK"
	OpPayToBank           OperationType = "PAY_TO_BANK"
	OpBankTransfer        OperationType = "BANK_TRANSFER"
	OpCashWithdrawal      OperationType = "CASH_WITHDRAWAL"
	OpPaymentToCash       OperationType = "PAYMENT_TO_CASH"
	OpPaymentFromCash     OperationType = "PAYMENT_FROM_CASH"
	OpCapitalInvestment   OperationType = "CAPITAL_INVESTMENT"
	OpCheckBounce         OperationType = "CHECK_BOUNCE"
	OpSpentChequeReturn   OperationType = "SPENT_CHEQUE_RETURN"
	OpIssuedCheckBounce   OperationType = "ISSUED_CHECK_BOUNCE"
	OpSalesInvoice        OperationType = "SALES_INVOICE"
	OpPurchaseInvoice     OperationType = "PURCHASE_INVOICE"

	// Petty cash movements are posted through the same rule table but are
	// never stored as financial operations.
	OpPettyCashAdd      OperationType = "PETTY_CASH_ADD"
	OpPettyCashWithdraw OperationType = "PETTY_CASH_WITHDRAW"
)

var financialOperationTypes = map[OperationType]struct{}{
	OpReceiveFromCustomer: {},
	OpPayToCustomer:       {},
	OpReceiveFromBank:     {},
	OpPayToBank:           {},
	OpBankTransfer:        {},
	OpCashWithdrawal:      {},
	OpPaymentToCash:       {},
	OpPaymentFromCash:     {},
	OpCapitalInvestment:   {},
	OpCheckBounce:         {},
	OpSpentChequeReturn:   {},
	OpIssuedCheckBounce:   {},
	OpSalesInvoice:        {},
	OpPurchaseInvoice:     {},
}

// Valid reports whether t may be stored on a financial operation.
func (t OperationType) Valid() bool {
	_, ok := financialOperationTypes[t]
	return ok
}

// RequiresCustomer reports whether the event needs a counterparty.
func (t OperationType) RequiresCustomer() bool {
	switch t {
	case OpReceiveFromCustomer, OpPayToCustomer, OpBankTransfer, OpCheckBounce,
		OpSpentChequeReturn, OpIssuedCheckBounce, OpSalesInvoice, OpPurchaseInvoice:
		return true
	}
	return false
}

// PaymentMethod describes how money changed hands.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentPOS          PaymentMethod = "pos"
	PaymentCheque       PaymentMethod = "cheque"
	PaymentSpendCheque  PaymentMethod = "spend_cheque"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentBankTransfer, PaymentPOS, PaymentCheque, PaymentSpendCheque:
		return true
	}
	return false
}

// UsesBank reports whether the money moved through a bank account.
func (m PaymentMethod) UsesBank() bool {
	return m == PaymentBankTransfer || m == PaymentPOS
}

// UsesInstrument reports whether a cheque carried the payment.
func (m PaymentMethod) UsesInstrument() bool {
	return m == PaymentCheque || m == PaymentSpendCheque
}
