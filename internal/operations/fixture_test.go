package operations_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ordercash/internal/accounting"
	"github.com/odyssey-erp/ordercash/internal/counterparty"
	"github.com/odyssey-erp/ordercash/internal/documents"
	"github.com/odyssey-erp/ordercash/internal/funds"
	"github.com/odyssey-erp/ordercash/internal/instruments"
	"github.com/odyssey-erp/ordercash/internal/operations"
	"github.com/odyssey-erp/ordercash/internal/testing/memstore"
)

var clock = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

type fixture struct {
	ctx         context.Context
	store       *memstore.Store
	ops         *operations.Service
	funds       *funds.Service
	ledger      *accounting.Service
	customers   *counterparty.Service
	instruments *instruments.Service
	documents   *documents.Service
	fiscalYear  accounting.FiscalYear
	cash        funds.Fund
	bank        funds.Fund
	petty       funds.Fund
	customer    counterparty.Customer
	supplier    counterparty.Customer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := func() time.Time { return clock }
	store := memstore.New()

	f := &fixture{
		ctx:         ctx,
		store:       store,
		ops:         operations.NewService(store.Operations(), nil, nil, logger, operations.Config{Currency: "IRR", Retries: 2}),
		funds:       funds.NewService(store.FundsPort(), nil, logger),
		ledger:      accounting.NewService(store.Accounting(), nil, logger, "IRR"),
		customers:   counterparty.NewService(store.Counterparty(), logger),
		instruments: instruments.NewService(store.InstrumentsPort(), logger),
		documents:   documents.NewService(store.DocumentsPort(), nil, logger),
	}
	f.ops.WithNow(now)
	f.funds.WithNow(now)
	f.ledger.WithNow(now)
	f.customers.WithNow(now)
	f.documents.WithNow(now)

	_, err := f.ledger.InitChart(ctx)
	require.NoError(t, err)
	f.fiscalYear, err = f.ledger.OpenFiscalYear(ctx, 2024,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	f.cash = f.createFund(t, funds.FundInput{Name: "Main register", Kind: funds.KindCash, InitialBalance: decimal.NewFromInt(1_000_000), IsDefault: true})
	f.bank = f.createFund(t, funds.FundInput{Name: "Operating account", Kind: funds.KindBank, BankName: "Melli", AccountNumber: "0101234567", InitialBalance: decimal.NewFromInt(5_000_000)})
	f.petty = f.createFund(t, funds.FundInput{Name: "Office box", Kind: funds.KindPettyCash})

	f.customer, err = f.customers.CreateCustomer(ctx, counterparty.CustomerInput{Name: "Rahimi Trading", Phone: "09120000000"})
	require.NoError(t, err)
	f.supplier, err = f.customers.CreateCustomer(ctx, counterparty.CustomerInput{Name: "Kaveh Supplies"})
	require.NoError(t, err)
	return f
}

func (f *fixture) createFund(t *testing.T, in funds.FundInput) funds.Fund {
	t.Helper()
	fund, err := f.funds.CreateFund(f.ctx, in)
	require.NoError(t, err)
	return fund
}

func (f *fixture) create(t *testing.T, in operations.OperationInput) operations.Operation {
	t.Helper()
	if in.Date.IsZero() {
		in.Date = clock
	}
	out, err := f.ops.CreateOperation(f.ctx, in)
	require.NoError(t, err)
	return out.Operation
}

// requireFund asserts the stored balance and that every derivation agrees with it.
func (f *fixture) requireFund(t *testing.T, id int64, want int64) {
	t.Helper()
	rec, err := f.funds.Reconcile(f.ctx, id)
	require.NoError(t, err)
	require.Truef(t, rec.Consistent(), "fund %d drifted: %+v", id, rec)
	require.Truef(t, rec.Stored.Equal(decimal.NewFromInt(want)), "fund %d: want %d, got %s", id, want, rec.Stored)
}

func (f *fixture) requireCustomer(t *testing.T, id int64, want int64) {
	t.Helper()
	b, err := f.customers.Balance(f.ctx, id)
	require.NoError(t, err)
	require.Truef(t, b.Current.Equal(decimal.NewFromInt(want)), "customer %d: want %d, got %s", id, want, b.Current)
}

// requireBalancedLedger checks every voucher and the ledger as a whole.
func (f *fixture) requireBalancedLedger(t *testing.T) {
	t.Helper()
	debit, credit := decimal.Zero, decimal.Zero
	for _, v := range f.store.Vouchers() {
		require.NoError(t, v.Validate(), "voucher %d", v.ID)
		d, c := v.Totals()
		debit = debit.Add(d)
		credit = credit.Add(c)
	}
	require.True(t, debit.Equal(credit), "ledger debit %s credit %s", debit, credit)
}

func ptr[T any](v T) *T { return &v }
