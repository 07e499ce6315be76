package accounting

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/ordercash/internal/shared"
)

// Parties carries the counterparties a posting rule may resolve accounts for.
type Parties struct {
	CustomerID        int64
	CustomerName      string
	BankName          string
	BankAccountNumber string
	PaymentMethod     shared.PaymentMethod
	// SourceIsBank marks petty cash top-ups funded from a bank account.
	SourceIsBank bool
}

func (p Parties) hasBank() bool {
	return strings.TrimSpace(p.BankAccountNumber) != ""
}

// RoleFn picks the account role for one side of a posting.
type RoleFn func(Parties) (Role, error)

// Rule maps a business event to its debit and credit roles.
type Rule struct {
	Debit    RoleFn
	Credit   RoleFn
	Describe func(Parties) string
}

func fixed(role Role) RoleFn {
	return func(Parties) (Role, error) { return role, nil }
}

func customer(p Parties) (Role, error) {
	if p.CustomerID == 0 {
		return Role{}, shared.Validation("customer required")
	}
	return CustomerRole(p.CustomerID, p.CustomerName), nil
}

func bank(p Parties) (Role, error) {
	if !p.hasBank() {
		return Role{}, shared.Validation("bank account required")
	}
	return BankRole(p.BankName, p.BankAccountNumber), nil
}

// primary is the account money physically moves through: the bank for
// transfers and card payments, the cash register otherwise.
func primary(p Parties) (Role, error) {
	if p.PaymentMethod.UsesBank() {
		return bank(p)
	}
	return CashRole(), nil
}

func primaryIn(p Parties) (Role, error) {
	if p.PaymentMethod == shared.PaymentCheque {
		return ChequesReceivableRole(), nil
	}
	return primary(p)
}

func primaryOut(p Parties) (Role, error) {
	switch p.PaymentMethod {
	case shared.PaymentSpendCheque:
		return ChequesReceivableRole(), nil
	case shared.PaymentCheque:
		return bank(p)
	}
	return primary(p)
}

func pettySource(p Parties) (Role, error) {
	if p.SourceIsBank {
		return bank(p)
	}
	return CashRole(), nil
}

func describe(format string) func(Parties) string {
	return func(p Parties) string {
		if strings.Contains(format, "%s") {
			name := p.CustomerName
			if name == "" {
				name = p.BankName
			}
			return strings.TrimSpace(fmt.Sprintf(format, name))
		}
		return format
	}
}

var postingRules = map[shared.OperationType]Rule{
	shared.OpReceiveFromCustomer: {Debit: primaryIn, Credit: customer, Describe: describe("Receipt from customer %s")},
	shared.OpPayToCustomer:       {Debit: customer, Credit: primaryOut, Describe: describe("Payment to customer %s")},
	shared.OpReceiveFromBank:     {Debit: fixed(CashRole()), Credit: bank, Describe: describe("Cash received from bank %s")},
	shared.OpCashWithdrawal:      {Debit: fixed(CashRole()), Credit: bank, Describe: describe("Cash withdrawal from bank %s")},
	shared.OpPayToBank:           {Debit: bank, Credit: fixed(CashRole()), Describe: describe("Cash deposited to bank %s")},
	shared.OpBankTransfer:        {Debit: customer, Credit: bank, Describe: describe("Bank transfer to %s")},
	shared.OpPaymentToCash:       {Debit: fixed(CashRole()), Credit: fixed(IncomeRole()), Describe: describe("Miscellaneous cash receipt")},
	shared.OpPaymentFromCash:     {Debit: fixed(ExpenseRole()), Credit: fixed(CashRole()), Describe: describe("Miscellaneous cash payment")},
	shared.OpCapitalInvestment:   {Debit: primary, Credit: fixed(CapitalRole()), Describe: describe("Capital investment")},
	shared.OpCheckBounce:         {Debit: customer, Credit: fixed(ChequesReceivableRole()), Describe: describe("Bounced cheque of %s")},
	shared.OpSpentChequeReturn:   {Debit: fixed(ChequesReceivableRole()), Credit: customer, Describe: describe("Spent cheque returned by %s")},
	shared.OpIssuedCheckBounce:   {Debit: bank, Credit: customer, Describe: describe("Issued cheque to %s bounced")},
	shared.OpSalesInvoice:        {Debit: customer, Credit: fixed(SalesRole()), Describe: describe("Sales invoice for %s")},
	shared.OpPurchaseInvoice:     {Debit: fixed(PurchaseRole()), Credit: customer, Describe: describe("Purchase invoice from %s")},
	shared.OpPettyCashAdd:        {Debit: fixed(PettyCashRole()), Credit: pettySource, Describe: describe("Petty cash top-up")},
	shared.OpPettyCashWithdraw:   {Debit: fixed(ExpenseRole()), Credit: fixed(PettyCashRole()), Describe: describe("Petty cash expense")},
}

// RuleFor returns the posting rule of event.
func RuleFor(event shared.OperationType) (Rule, error) {
	rule, ok := postingRules[event]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s", ErrNoRule, event)
	}
	return rule, nil
}

// ResolveRoles applies the rule of event to parties.
func ResolveRoles(event shared.OperationType, parties Parties) (debit, credit Role, err error) {
	rule, err := RuleFor(event)
	if err != nil {
		return Role{}, Role{}, err
	}
	if debit, err = rule.Debit(parties); err != nil {
		return Role{}, Role{}, err
	}
	if credit, err = rule.Credit(parties); err != nil {
		return Role{}, Role{}, err
	}
	return debit, credit, nil
}
