// Package memstore keeps every ledger table in memory behind the same
// transactional repository ports the Postgres adapters implement. Each
// WithTx call works on a copy of the tables and publishes it only on
// success, so a failing unit leaves no trace.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/odyssey-erp/ordercash/internal/accounting"
	"github.com/odyssey-erp/ordercash/internal/counterparty"
	"github.com/odyssey-erp/ordercash/internal/documents"
	"github.com/odyssey-erp/ordercash/internal/funds"
	"github.com/odyssey-erp/ordercash/internal/instruments"
	"github.com/odyssey-erp/ordercash/internal/operations"
	"github.com/odyssey-erp/ordercash/internal/shared"
)

type tables struct {
	nextID      int64
	counters    map[string]int64
	accounts    map[int64]accounting.Account
	fiscalYears map[int64]accounting.FiscalYear
	vouchers    map[int64]accounting.Voucher
	funds       map[int64]funds.Fund
	fundTxs     map[int64]funds.Transaction
	statements  map[int64][]funds.Statement
	history     []funds.BalanceHistory
	customers   map[int64]counterparty.Customer
	balances    map[int64]counterparty.Balance
	books       map[int64]instruments.CheckBook
	checks      map[int64]instruments.Check
	cheques     map[int64]instruments.ReceivedCheque
	changes     []instruments.StatusChange
	links       map[int64]instruments.Link
	documents   map[int64]documents.Number
	settings    *documents.Settings
	operations  map[int64]operations.Operation
	petty       map[int64]operations.PettyCashOperation
}

func newTables() *tables {
	return &tables{
		counters:    map[string]int64{},
		accounts:    map[int64]accounting.Account{},
		fiscalYears: map[int64]accounting.FiscalYear{},
		vouchers:    map[int64]accounting.Voucher{},
		funds:       map[int64]funds.Fund{},
		fundTxs:     map[int64]funds.Transaction{},
		statements:  map[int64][]funds.Statement{},
		customers:   map[int64]counterparty.Customer{},
		balances:    map[int64]counterparty.Balance{},
		books:       map[int64]instruments.CheckBook{},
		checks:      map[int64]instruments.Check{},
		cheques:     map[int64]instruments.ReceivedCheque{},
		links:       map[int64]instruments.Link{},
		documents:   map[int64]documents.Number{},
		operations:  map[int64]operations.Operation{},
		petty:       map[int64]operations.PettyCashOperation{},
	}
}

// Rows hold only immutable pointer targets, so copying the maps is enough
// to isolate a transaction.
func (t *tables) clone() *tables {
	out := *t
	out.counters = maps.Clone(t.counters)
	out.accounts = maps.Clone(t.accounts)
	out.fiscalYears = maps.Clone(t.fiscalYears)
	out.vouchers = maps.Clone(t.vouchers)
	out.funds = maps.Clone(t.funds)
	out.fundTxs = maps.Clone(t.fundTxs)
	out.statements = make(map[int64][]funds.Statement, len(t.statements))
	for id, rows := range t.statements {
		out.statements[id] = slices.Clone(rows)
	}
	out.history = slices.Clone(t.history)
	out.customers = maps.Clone(t.customers)
	out.balances = maps.Clone(t.balances)
	out.books = maps.Clone(t.books)
	out.checks = maps.Clone(t.checks)
	out.cheques = maps.Clone(t.cheques)
	out.changes = slices.Clone(t.changes)
	out.links = maps.Clone(t.links)
	out.documents = maps.Clone(t.documents)
	out.operations = maps.Clone(t.operations)
	out.petty = maps.Clone(t.petty)
	return &out
}

func (t *tables) id() int64 {
	t.nextID++
	return t.nextID
}

// Store is a serializable in-memory database.
type Store struct {
	mu         sync.Mutex
	data       *tables
	contention int
	now        func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{data: newTables(), now: time.Now}
}

// InjectContention makes the next n transactions fail with
// shared.ErrContention before running.
func (s *Store) InjectContention(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contention = n
}

func (s *Store) run(ctx context.Context, fn func(*tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contention > 0 {
		s.contention--
		return shared.ErrContention
	}
	work := &tx{t: s.data.clone(), now: s.now}
	if err := fn(work); err != nil {
		return err
	}
	s.data = work.t
	return nil
}

// tx implements every package TxRepository over one working copy.
type tx struct {
	t   *tables
	now func() time.Time
}

func (x *tx) Ledger() accounting.TxRepository       { return x }
func (x *tx) Funds() funds.TxRepository             { return x }
func (x *tx) Instruments() instruments.TxRepository { return x }
func (x *tx) Balances() counterparty.TxRepository   { return x }
func (x *tx) Documents() documents.TxRepository     { return x }

func (x *tx) LockCounter(_ context.Context, scope string) (int64, error) {
	return x.t.counters[scope], nil
}

func (x *tx) SetCounter(_ context.Context, scope string, value int64) error {
	x.t.counters[scope] = value
	return nil
}

// Operations returns the orchestrator port.
func (s *Store) Operations() operations.RepositoryPort { return operationsPort{s} }

// Accounting returns the ledger port.
func (s *Store) Accounting() accounting.RepositoryPort { return accountingPort{s} }

// FundsPort returns the fund ledger port.
func (s *Store) FundsPort() funds.RepositoryPort { return fundsPort{s} }

// InstrumentsPort returns the instrument port.
func (s *Store) InstrumentsPort() instruments.RepositoryPort { return instrumentsPort{s} }

// Counterparty returns the customer port.
func (s *Store) Counterparty() counterparty.RepositoryPort { return counterpartyPort{s} }

// DocumentsPort returns the document registry port.
func (s *Store) DocumentsPort() documents.RepositoryPort { return documentsPort{s} }

type operationsPort struct{ s *Store }

func (p operationsPort) WithTx(ctx context.Context, fn func(context.Context, operations.TxRepository) error) error {
	return p.s.run(ctx, func(x *tx) error { return fn(ctx, x) })
}

type accountingPort struct{ s *Store }

func (p accountingPort) WithTx(ctx context.Context, fn func(context.Context, accounting.TxRepository) error) error {
	return p.s.run(ctx, func(x *tx) error { return fn(ctx, x) })
}

type fundsPort struct{ s *Store }

func (p fundsPort) WithTx(ctx context.Context, fn func(context.Context, funds.TxRepository) error) error {
	return p.s.run(ctx, func(x *tx) error { return fn(ctx, x) })
}

type instrumentsPort struct{ s *Store }

func (p instrumentsPort) WithTx(ctx context.Context, fn func(context.Context, instruments.TxRepository) error) error {
	return p.s.run(ctx, func(x *tx) error { return fn(ctx, x) })
}

type counterpartyPort struct{ s *Store }

func (p counterpartyPort) WithTx(ctx context.Context, fn func(context.Context, counterparty.TxRepository) error) error {
	return p.s.run(ctx, func(x *tx) error { return fn(ctx, x) })
}

type documentsPort struct{ s *Store }

func (p documentsPort) WithTx(ctx context.Context, fn func(context.Context, documents.TxRepository) error) error {
	return p.s.run(ctx, func(x *tx) error { return fn(ctx, x) })
}

func sorted[V any](m map[int64]V, keep func(V) bool) []V {
	ids := make([]int64, 0, len(m))
	for id, v := range m {
		if keep == nil || keep(v) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

var _ operations.TxRepository = (*tx)(nil)
