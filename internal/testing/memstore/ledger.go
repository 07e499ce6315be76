package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ordercash/internal/accounting"
	"github.com/odyssey-erp/ordercash/internal/shared"
)

func (x *tx) GetAccount(_ context.Context, id int64) (accounting.Account, error) {
	acc, ok := x.t.accounts[id]
	if !ok {
		return accounting.Account{}, accounting.ErrAccountNotFound
	}
	return acc, nil
}

func (x *tx) GetAccountByCode(_ context.Context, code string) (accounting.Account, error) {
	for _, acc := range x.t.accounts {
		if acc.Code == code {
			return acc, nil
		}
	}
	return accounting.Account{}, accounting.ErrAccountNotFound
}

func (x *tx) GetAccountByRole(_ context.Context, roleKey string) (accounting.Account, error) {
	for _, acc := range x.t.accounts {
		if roleKey != "" && acc.RoleKey == roleKey {
			return acc, nil
		}
	}
	return accounting.Account{}, accounting.ErrAccountNotFound
}

func (x *tx) InsertAccount(_ context.Context, acc accounting.Account) (accounting.Account, error) {
	for _, existing := range x.t.accounts {
		if existing.Code == acc.Code {
			return accounting.Account{}, fmt.Errorf("%w: accounts_code_key", shared.ErrConflict)
		}
		if acc.RoleKey != "" && existing.RoleKey == acc.RoleKey {
			return accounting.Account{}, fmt.Errorf("%w: accounts_role_key_key", shared.ErrConflict)
		}
	}
	now := x.now()
	acc.ID = x.t.id()
	acc.CurrentBalance = decimal.Zero
	acc.CreatedAt = now
	acc.UpdatedAt = now
	x.t.accounts[acc.ID] = acc
	return acc, nil
}

func (x *tx) ListAccounts(_ context.Context) ([]accounting.Account, error) {
	out := sorted(x.t.accounts, nil)
	slices.SortFunc(out, func(a, b accounting.Account) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

func (x *tx) UpdateAccountBalance(_ context.Context, id int64, balance decimal.Decimal) error {
	acc, ok := x.t.accounts[id]
	if !ok {
		return accounting.ErrAccountNotFound
	}
	acc.CurrentBalance = balance
	acc.UpdatedAt = x.now()
	x.t.accounts[id] = acc
	return nil
}

func (x *tx) SumAccountItems(_ context.Context, accountID int64) (decimal.Decimal, decimal.Decimal, error) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, v := range x.t.vouchers {
		for _, item := range v.Items {
			if item.AccountID == accountID {
				debit = debit.Add(item.Debit)
				credit = credit.Add(item.Credit)
			}
		}
	}
	return debit, credit, nil
}

func (x *tx) GetFiscalYearByDate(_ context.Context, date time.Time) (accounting.FiscalYear, error) {
	var (
		found accounting.FiscalYear
		ok    bool
	)
	for _, fy := range sorted(x.t.fiscalYears, nil) {
		if fy.IsActive && fy.Covers(date) && (!ok || fy.StartDate.After(found.StartDate)) {
			found, ok = fy, true
		}
	}
	if !ok {
		return accounting.FiscalYear{}, accounting.ErrFiscalYearNotFound
	}
	return found, nil
}

func (x *tx) ListFiscalYears(_ context.Context) ([]accounting.FiscalYear, error) {
	out := sorted(x.t.fiscalYears, nil)
	slices.SortStableFunc(out, func(a, b accounting.FiscalYear) int { return a.StartDate.Compare(b.StartDate) })
	return out, nil
}

func (x *tx) InsertFiscalYear(_ context.Context, fy accounting.FiscalYear) (accounting.FiscalYear, error) {
	fy.ID = x.t.id()
	fy.CreatedAt = x.now()
	x.t.fiscalYears[fy.ID] = fy
	return fy, nil
}

func (x *tx) InsertVoucher(_ context.Context, v accounting.Voucher) (accounting.Voucher, error) {
	v.ID = x.t.id()
	v.CreatedAt = x.now()
	items := make([]accounting.VoucherItem, len(v.Items))
	for i, item := range v.Items {
		item.ID = x.t.id()
		item.VoucherID = v.ID
		items[i] = item
	}
	v.Items = items
	x.t.vouchers[v.ID] = v
	return v, nil
}

func (x *tx) ListVouchersBySource(_ context.Context, sourceType string, sourceID uuid.UUID) ([]accounting.Voucher, error) {
	return sorted(x.t.vouchers, func(v accounting.Voucher) bool {
		return v.SourceType == sourceType && v.SourceID == sourceID
	}), nil
}

func (x *tx) DeleteVoucher(_ context.Context, id int64) error {
	if _, ok := x.t.vouchers[id]; !ok {
		return accounting.ErrVoucherNotFound
	}
	delete(x.t.vouchers, id)
	return nil
}

func (x *tx) ListAccountTotals(_ context.Context, fiscalYearID int64) ([]accounting.AccountBalance, error) {
	totals := map[int64]accounting.AccountBalance{}
	for _, v := range x.t.vouchers {
		if v.FiscalYearID != fiscalYearID {
			continue
		}
		for _, item := range v.Items {
			b, ok := totals[item.AccountID]
			if !ok {
				b = accounting.AccountBalance{Account: x.t.accounts[item.AccountID], Debit: decimal.Zero, Credit: decimal.Zero}
			}
			b.Debit = b.Debit.Add(item.Debit)
			b.Credit = b.Credit.Add(item.Credit)
			totals[item.AccountID] = b
		}
	}
	out := sorted(totals, nil)
	slices.SortFunc(out, func(a, b accounting.AccountBalance) int { return strings.Compare(a.Account.Code, b.Account.Code) })
	return out, nil
}

// Vouchers returns every committed voucher ordered by id.
func (s *Store) Vouchers() []accounting.Voucher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sorted(s.data.vouchers, nil)
}
