package memstore

import (
	"context"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ordercash/internal/funds"
	"github.com/odyssey-erp/ordercash/internal/operations"
)

func (x *tx) GetFund(_ context.Context, id int64) (funds.Fund, error) {
	f, ok := x.t.funds[id]
	if !ok {
		return funds.Fund{}, funds.ErrFundNotFound
	}
	return f, nil
}

func (x *tx) LockFund(ctx context.Context, id int64) (funds.Fund, error) {
	return x.GetFund(ctx, id)
}

func (x *tx) ListFunds(_ context.Context, activeOnly bool) ([]funds.Fund, error) {
	return sorted(x.t.funds, func(f funds.Fund) bool { return f.IsActive || !activeOnly }), nil
}

func (x *tx) FindDefaultFund(_ context.Context, kind funds.Kind) (funds.Fund, error) {
	var (
		found funds.Fund
		ok    bool
	)
	for _, f := range sorted(x.t.funds, func(f funds.Fund) bool { return f.Kind == kind && f.IsActive }) {
		if !ok || (f.IsDefault && !found.IsDefault) {
			found, ok = f, true
		}
	}
	if !ok {
		return funds.Fund{}, funds.ErrFundNotFound
	}
	return found, nil
}

func (x *tx) InsertFund(_ context.Context, f funds.Fund) (funds.Fund, error) {
	now := x.now()
	f.ID = x.t.id()
	f.CurrentBalance = f.InitialBalance
	f.IsActive = true
	f.CreatedAt = now
	f.UpdatedAt = now
	x.t.funds[f.ID] = f
	return f, nil
}

func (x *tx) UpdateFundBalance(_ context.Context, id int64, balance decimal.Decimal) error {
	f, ok := x.t.funds[id]
	if !ok {
		return funds.ErrFundNotFound
	}
	f.CurrentBalance = balance
	f.UpdatedAt = x.now()
	x.t.funds[id] = f
	return nil
}

func (x *tx) InsertFundTransaction(_ context.Context, t funds.Transaction) (funds.Transaction, error) {
	t.ID = x.t.id()
	t.CreatedAt = x.now()
	x.t.fundTxs[t.ID] = t
	return t, nil
}

func (x *tx) ListFundTransactions(_ context.Context, fundID int64) ([]funds.Transaction, error) {
	out := sorted(x.t.fundTxs, func(t funds.Transaction) bool { return t.FundID == fundID })
	slices.SortStableFunc(out, func(a, b funds.Transaction) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (x *tx) DeleteFundTransactionsByRef(_ context.Context, refType string, refID int64) ([]int64, error) {
	var fundIDs []int64
	for _, t := range sorted(x.t.fundTxs, nil) {
		if t.RefType == refType && t.RefID == refID {
			fundIDs = append(fundIDs, t.FundID)
			delete(x.t.fundTxs, t.ID)
		}
	}
	return fundIDs, nil
}

// ListFundMovements mirrors the union of confirmed live operations and live
// petty cash rows that the SQL adapter reads.
func (x *tx) ListFundMovements(_ context.Context, fundID int64) ([]funds.Movement, error) {
	var out []funds.Movement
	for _, op := range sorted(x.t.operations, nil) {
		if op.Status != operations.StatusConfirmed || op.DeletedAt != nil || !touches(fundID, op.FundID, op.CounterFundID) {
			continue
		}
		out = append(out, funds.Movement{
			RefType:       funds.RefFinancialOperation,
			RefID:         op.ID,
			Number:        op.Number,
			Type:          op.Type,
			FundID:        op.FundID,
			CounterFundID: op.CounterFundID,
			Amount:        op.Amount,
			Date:          op.Date,
			CreatedAt:     op.CreatedAt,
			Description:   op.Description,
		})
	}
	for _, p := range sorted(x.t.petty, nil) {
		petty := p.PettyFundID
		if p.DeletedAt != nil || !touches(fundID, &petty, p.SourceFundID) {
			continue
		}
		out = append(out, funds.Movement{
			RefType:       funds.RefPettyCash,
			RefID:         p.ID,
			Number:        p.Number,
			Type:          p.Direction.EventType(),
			FundID:        &petty,
			CounterFundID: p.SourceFundID,
			Amount:        p.Amount,
			Date:          p.Date,
			CreatedAt:     p.CreatedAt,
			Description:   p.Reason,
		})
	}
	return out, nil
}

func touches(fundID int64, ids ...*int64) bool {
	for _, id := range ids {
		if id != nil && *id == fundID {
			return true
		}
	}
	return false
}

func (x *tx) DeleteFundStatements(_ context.Context, fundID int64) error {
	delete(x.t.statements, fundID)
	return nil
}

func (x *tx) InsertFundStatements(_ context.Context, rows []funds.Statement) error {
	for _, s := range rows {
		s.ID = x.t.id()
		x.t.statements[s.FundID] = append(x.t.statements[s.FundID], s)
	}
	return nil
}

func (x *tx) ListFundStatements(_ context.Context, fundID int64) ([]funds.Statement, error) {
	out := slices.Clone(x.t.statements[fundID])
	slices.SortFunc(out, func(a, b funds.Statement) int { return a.Seq - b.Seq })
	return out, nil
}

func (x *tx) InsertBalanceHistory(_ context.Context, h funds.BalanceHistory) error {
	h.ID = x.t.id()
	x.t.history = append(x.t.history, h)
	return nil
}

func (x *tx) ListBalanceHistory(_ context.Context, fundID int64) ([]funds.BalanceHistory, error) {
	var out []funds.BalanceHistory
	for _, h := range x.t.history {
		if h.FundID == fundID {
			out = append(out, h)
		}
	}
	return out, nil
}

// FundTransactions returns the committed transaction rows of a fund.
func (s *Store) FundTransactions(fundID int64) []funds.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, _ := (&tx{t: s.data, now: s.now}).ListFundTransactions(context.Background(), fundID)
	return out
}
