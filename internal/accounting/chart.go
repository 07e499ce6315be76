package accounting

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/odyssey-erp/ordercash/internal/sequence"
	"github.com/odyssey-erp/ordercash/internal/shared"
)

// RoleKind names a well-known account the posting rules can ask for.
type RoleKind string

const (
	RoleCash              RoleKind = "cash"
	RoleBank              RoleKind = "bank"
	RolePettyCash         RoleKind = "petty_cash"
	RoleCustomer          RoleKind = "customer"
	RoleChequesReceivable RoleKind = "cheques_receivable"
	RoleCapital           RoleKind = "capital"
	RoleSales             RoleKind = "sales"
	RoleIncome            RoleKind = "income"
	RolePurchase          RoleKind = "purchase"
	RoleExpense           RoleKind = "expense"
)

// Role identifies an account by meaning rather than by code.
type Role struct {
	Kind RoleKind
	// Ref distinguishes instances of per-party roles: the bank account number
	// or the customer id.
	Ref  string
	Name string
}

// CashRole resolves the main cash register account.
func CashRole() Role { return Role{Kind: RoleCash} }

// PettyCashRole resolves the petty cash account.
func PettyCashRole() Role { return Role{Kind: RolePettyCash} }

// ChequesReceivableRole resolves the account holding received, uncleared cheques.
func ChequesReceivableRole() Role { return Role{Kind: RoleChequesReceivable} }

// CapitalRole resolves the owner's capital account.
func CapitalRole() Role { return Role{Kind: RoleCapital} }

// SalesRole resolves the sales revenue account.
func SalesRole() Role { return Role{Kind: RoleSales} }

// IncomeRole resolves the miscellaneous income account.
func IncomeRole() Role { return Role{Kind: RoleIncome} }

// PurchaseRole resolves the purchases account.
func PurchaseRole() Role { return Role{Kind: RolePurchase} }

// ExpenseRole resolves the administrative expense account.
func ExpenseRole() Role { return Role{Kind: RoleExpense} }

// BankRole resolves the ledger account of one bank account.
func BankRole(bankName, accountNumber string) Role {
	number := shared.NormalizeDigits(accountNumber)
	name := strings.TrimSpace(bankName)
	if number != "" {
		name = fmt.Sprintf("%s - %s", name, number)
	}
	return Role{Kind: RoleBank, Ref: number, Name: name}
}

// CustomerRole resolves the receivable account of one customer.
func CustomerRole(customerID int64, name string) Role {
	return Role{Kind: RoleCustomer, Ref: strconv.FormatInt(customerID, 10), Name: strings.TrimSpace(name)}
}

// Key returns the unique lookup key stored on the account.
func (r Role) Key() string {
	if r.Ref == "" {
		return string(r.Kind)
	}
	return string(r.Kind) + ":" + shared.NormalizeText(r.Ref)
}

func (r Role) validate() error {
	if _, ok := roleParents[r.Kind]; !ok {
		return shared.Validation("unknown account role %q", r.Kind)
	}
	if (r.Kind == RoleBank || r.Kind == RoleCustomer) && strings.TrimSpace(r.Ref) == "" {
		return shared.Validation("%s account requires a reference", r.Kind)
	}
	return nil
}

func (r Role) displayName() string {
	base := defaultNames[r.Kind]
	if r.Name == "" {
		if r.Ref == "" {
			return base
		}
		return fmt.Sprintf("%s %s", base, r.Ref)
	}
	if r.Kind == RoleCustomer || r.Kind == RoleBank {
		return fmt.Sprintf("%s %s", base, r.Name)
	}
	return r.Name
}

type standardAccount struct {
	Code   string
	Name   string
	Type   AccountType
	Level  AccountLevel
	Parent string
}

var standardChart = []standardAccount{
	{Code: "11", Name: "Cash and banks", Type: AccountTypeAsset, Level: LevelGroup},
	{Code: "1110", Name: "Cash", Type: AccountTypeAsset, Level: LevelSub, Parent: "11"},
	{Code: "1120", Name: "Banks", Type: AccountTypeAsset, Level: LevelSub, Parent: "11"},
	{Code: "1130", Name: "Petty cash", Type: AccountTypeAsset, Level: LevelSub, Parent: "11"},
	{Code: "13", Name: "Receivables", Type: AccountTypeAsset, Level: LevelGroup},
	{Code: "1310", Name: "Customers", Type: AccountTypeAsset, Level: LevelSub, Parent: "13"},
	{Code: "1320", Name: "Cheques receivable", Type: AccountTypeAsset, Level: LevelSub, Parent: "13"},
	{Code: "31", Name: "Equity", Type: AccountTypeEquity, Level: LevelGroup},
	{Code: "3110", Name: "Capital", Type: AccountTypeEquity, Level: LevelSub, Parent: "31"},
	{Code: "41", Name: "Sales revenue", Type: AccountTypeRevenue, Level: LevelGroup},
	{Code: "4110", Name: "Sales", Type: AccountTypeRevenue, Level: LevelSub, Parent: "41"},
	{Code: "43", Name: "Other income", Type: AccountTypeRevenue, Level: LevelGroup},
	{Code: "4300", Name: "Miscellaneous income", Type: AccountTypeRevenue, Level: LevelSub, Parent: "43"},
	{Code: "51", Name: "Cost of sales", Type: AccountTypeExpense, Level: LevelGroup},
	{Code: "5110", Name: "Purchases", Type: AccountTypeExpense, Level: LevelSub, Parent: "51"},
	{Code: "53", Name: "Operating expenses", Type: AccountTypeExpense, Level: LevelGroup},
	{Code: "5300", Name: "Administrative expenses", Type: AccountTypeExpense, Level: LevelSub, Parent: "53"},
}

var roleParents = map[RoleKind]string{
	RoleCash:              "1110",
	RoleBank:              "1120",
	RolePettyCash:         "1130",
	RoleCustomer:          "1310",
	RoleChequesReceivable: "1320",
	RoleCapital:           "3110",
	RoleSales:             "4110",
	RoleIncome:            "4300",
	RolePurchase:          "5110",
	RoleExpense:           "5300",
}

var defaultNames = map[RoleKind]string{
	RoleCash:              "Cash register",
	RoleBank:              "Bank",
	RolePettyCash:         "Petty cash fund",
	RoleCustomer:          "Customer",
	RoleChequesReceivable: "Cheques in hand",
	RoleCapital:           "Owner capital",
	RoleSales:             "Sales of goods",
	RoleIncome:            "Other income",
	RolePurchase:          "Purchases of goods",
	RoleExpense:           "General expenses",
}

// InitChart creates every missing standard group and sub account.
func InitChart(ctx context.Context, st TxRepository, currency string) ([]Account, error) {
	created := make([]Account, 0)
	for _, std := range standardChart {
		acc, made, err := ensureStandard(ctx, st, std, currency)
		if err != nil {
			return nil, err
		}
		if made {
			created = append(created, acc)
		}
	}
	return created, nil
}

func ensureStandard(ctx context.Context, st TxRepository, std standardAccount, currency string) (Account, bool, error) {
	existing, err := st.GetAccountByCode(ctx, std.Code)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return Account{}, false, err
	}
	acc := Account{
		Code:     std.Code,
		Name:     std.Name,
		Type:     std.Type,
		Level:    std.Level,
		Currency: currency,
		IsActive: true,
	}
	if std.Parent != "" {
		parent, _, err := ensureStandard(ctx, st, lookupStandard(std.Parent), currency)
		if err != nil {
			return Account{}, false, err
		}
		acc.ParentID = &parent.ID
	}
	inserted, err := st.InsertAccount(ctx, acc)
	if err != nil {
		return Account{}, false, err
	}
	return inserted, true, nil
}

func lookupStandard(code string) standardAccount {
	for _, std := range standardChart {
		if std.Code == code {
			return std
		}
	}
	panic("accounting: unknown standard account " + code)
}

// ResolveOrCreate returns the account playing role, creating it under its
// standard parent when it does not exist yet. The new code is the parent code
// followed by a counter allocated under lock, so concurrent creations never
// collide.
func ResolveOrCreate(ctx context.Context, st TxRepository, lc LedgerContext, role Role) (Account, error) {
	if err := role.validate(); err != nil {
		return Account{}, err
	}
	acc, err := st.GetAccountByRole(ctx, role.Key())
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return Account{}, err
	}
	parent, _, err := ensureStandard(ctx, st, lookupStandard(roleParents[role.Kind]), lc.Currency)
	if err != nil {
		return Account{}, err
	}
	n, err := sequence.Next(ctx, st, sequence.Child(sequence.KindAccount, parent.Code))
	if err != nil {
		return Account{}, err
	}
	return st.InsertAccount(ctx, Account{
		Code:     sequence.FormatChildCode(parent.Code, n),
		Name:     role.displayName(),
		Type:     parent.Type,
		Level:    LevelDetail,
		ParentID: &parent.ID,
		RoleKey:  role.Key(),
		Currency: lc.Currency,
		IsActive: true,
	})
}
