package funds

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ordercash/internal/shared"
)

var classification = map[shared.OperationType]Direction{
	shared.OpReceiveFromCustomer: In,
	shared.OpReceiveFromBank:     In,
	shared.OpPaymentToCash:       In,
	shared.OpCapitalInvestment:   In,
	shared.OpPayToCustomer:       Out,
	shared.OpPayToBank:           Out,
	shared.OpPaymentFromCash:     Out,
	shared.OpCashWithdrawal:      Out,
	shared.OpPettyCashAdd:        In,
	shared.OpPettyCashWithdraw:   Out,
}

// Classify returns the direction an event moves its primary fund. Events
// absent from the table never move a fund.
func Classify(t shared.OperationType) (Direction, bool) {
	d, ok := classification[t]
	return d, ok
}

// DirectionFor returns how the movement affects fundID: the classified
// direction for the primary fund, the opposite for the counter fund.
func (m Movement) DirectionFor(fundID int64) (Direction, bool) {
	d, ok := Classify(m.Type)
	if !ok {
		return "", false
	}
	if m.FundID != nil && *m.FundID == fundID {
		return d, true
	}
	if m.CounterFundID != nil && *m.CounterFundID == fundID {
		return d.Opposite(), true
	}
	return "", false
}

// Legs lists every (fund, direction) pair the movement produces.
func (m Movement) Legs() map[int64]Direction {
	legs := make(map[int64]Direction, 2)
	d, ok := Classify(m.Type)
	if !ok {
		return legs
	}
	if m.FundID != nil {
		legs[*m.FundID] = d
	}
	if m.CounterFundID != nil && (m.FundID == nil || *m.CounterFundID != *m.FundID) {
		legs[*m.CounterFundID] = d.Opposite()
	}
	return legs
}

// Replay orders the movements of fund by (date, created_at) and produces the
// statement rows with their running balance.
func Replay(fund Fund, movements []Movement) ([]Statement, decimal.Decimal) {
	ordered := make([]Movement, len(movements))
	copy(ordered, movements)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.RefType != b.RefType {
			return a.RefType < b.RefType
		}
		return a.RefID < b.RefID
	})
	running := fund.InitialBalance
	statements := make([]Statement, 0, len(ordered))
	for _, m := range ordered {
		dir, ok := m.DirectionFor(fund.ID)
		if !ok || !m.Amount.IsPositive() {
			continue
		}
		running = running.Add(dir.Signed(m.Amount))
		statements = append(statements, Statement{
			FundID:         fund.ID,
			Seq:            len(statements) + 1,
			Date:           m.Date,
			Direction:      dir,
			Amount:         m.Amount,
			RunningBalance: running,
			Description:    m.Description,
			RefType:        m.RefType,
			RefID:          m.RefID,
		})
	}
	return statements, running
}

// FromTransactions derives the balance from the fund's transaction rows.
func FromTransactions(ctx context.Context, st TxRepository, fund Fund) (decimal.Decimal, error) {
	txs, err := st.ListFundTransactions(ctx, fund.ID)
	if err != nil {
		return decimal.Zero, err
	}
	balance := fund.InitialBalance
	for _, t := range txs {
		balance = balance.Add(t.Direction.Signed(t.Amount))
	}
	return balance, nil
}

// FromOperations derives the balance by classifying confirmed, non-deleted
// business events without touching transactions or statements.
func FromOperations(ctx context.Context, st TxRepository, fund Fund) (decimal.Decimal, error) {
	movements, err := st.ListFundMovements(ctx, fund.ID)
	if err != nil {
		return decimal.Zero, err
	}
	inflow, outflow := decimal.Zero, decimal.Zero
	for _, m := range movements {
		dir, ok := m.DirectionFor(fund.ID)
		if !ok {
			continue
		}
		if dir == In {
			inflow = inflow.Add(m.Amount)
		} else {
			outflow = outflow.Add(m.Amount)
		}
	}
	return fund.InitialBalance.Add(inflow).Sub(outflow), nil
}

// RebuildStatements replaces every statement row of the fund with a full
// replay and returns the final running balance.
func RebuildStatements(ctx context.Context, st TxRepository, fundID int64) (decimal.Decimal, int, error) {
	fund, err := st.GetFund(ctx, fundID)
	if err != nil {
		return decimal.Zero, 0, err
	}
	movements, err := st.ListFundMovements(ctx, fundID)
	if err != nil {
		return decimal.Zero, 0, err
	}
	statements, final := Replay(fund, movements)
	if err := st.DeleteFundStatements(ctx, fundID); err != nil {
		return decimal.Zero, 0, err
	}
	if err := st.InsertFundStatements(ctx, statements); err != nil {
		return decimal.Zero, 0, err
	}
	return final, len(statements), nil
}

// AddTransaction appends a movement and refreshes the cached balance from
// the transaction history. It is the only write path for current_balance
// besides RecalculateBalance.
func AddTransaction(ctx context.Context, st TxRepository, in TransactionInput, now time.Time) (Transaction, error) {
	if err := shared.ValidateMoney("fund transaction amount", in.Amount); err != nil {
		return Transaction{}, err
	}
	if in.Direction != In && in.Direction != Out {
		return Transaction{}, shared.Validation("unknown direction %q", in.Direction)
	}
	fund, err := st.LockFund(ctx, in.FundID)
	if err != nil {
		return Transaction{}, err
	}
	if !fund.IsActive {
		return Transaction{}, ErrFundInactive
	}
	inserted, err := st.InsertFundTransaction(ctx, Transaction{
		FundID:      in.FundID,
		Direction:   in.Direction,
		Amount:      in.Amount,
		Date:        in.Date,
		Description: in.Description,
		RefType:     in.RefType,
		RefID:       in.RefID,
	})
	if err != nil {
		return Transaction{}, err
	}
	balance, err := FromTransactions(ctx, st, fund)
	if err != nil {
		return Transaction{}, err
	}
	if err := setBalance(ctx, st, fund, balance, "transaction", in.RefType, in.RefID, now); err != nil {
		return Transaction{}, err
	}
	return inserted, nil
}

// RemoveTransactions deletes the transactions of a reference and returns the
// funds they belonged to, which the caller must recalculate.
func RemoveTransactions(ctx context.Context, st TxRepository, refType string, refID int64) ([]int64, error) {
	ids, err := st.DeleteFundTransactionsByRef(ctx, refType, refID)
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// RecalculateBalance locks the fund, rebuilds its statements and persists the
// replayed balance. The rebuild is authoritative; if the transaction or
// operation strategies disagree with it nothing is persisted and a
// *shared.DriftError is returned.
func RecalculateBalance(ctx context.Context, st TxRepository, fundID int64, now time.Time) (Reconciliation, error) {
	fund, err := st.LockFund(ctx, fundID)
	if err != nil {
		return Reconciliation{}, err
	}
	final, rows, err := RebuildStatements(ctx, st, fundID)
	if err != nil {
		return Reconciliation{}, err
	}
	rec, err := compare(ctx, st, fund, now)
	if err != nil {
		return Reconciliation{}, err
	}
	rec.FromStatements = final
	rec.StatementRows = rows
	rec.Stored = final
	if err := rec.Err(); err != nil {
		rec.Stored = fund.CurrentBalance
		return rec, err
	}
	if err := setBalance(ctx, st, fund, final, "recalculate", "", 0, now); err != nil {
		return Reconciliation{}, err
	}
	return rec, nil
}

// Reconcile computes all three derivations without writing anything.
func Reconcile(ctx context.Context, st TxRepository, fundID int64, now time.Time) (Reconciliation, error) {
	fund, err := st.GetFund(ctx, fundID)
	if err != nil {
		return Reconciliation{}, err
	}
	rec, err := compare(ctx, st, fund, now)
	if err != nil {
		return Reconciliation{}, err
	}
	movements, err := st.ListFundMovements(ctx, fundID)
	if err != nil {
		return Reconciliation{}, err
	}
	statements, final := Replay(fund, movements)
	rec.FromStatements = final
	rec.StatementRows = len(statements)
	return rec, nil
}

func compare(ctx context.Context, st TxRepository, fund Fund, now time.Time) (Reconciliation, error) {
	fromTx, err := FromTransactions(ctx, st, fund)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("funds: from transactions: %w", err)
	}
	fromOps, err := FromOperations(ctx, st, fund)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("funds: from operations: %w", err)
	}
	return Reconciliation{
		FundID:           fund.ID,
		Stored:           fund.CurrentBalance,
		FromTransactions: fromTx,
		FromOperations:   fromOps,
		CheckedAt:        now,
	}, nil
}

func setBalance(ctx context.Context, st TxRepository, fund Fund, balance decimal.Decimal, reason, refType string, refID int64, now time.Time) error {
	if fund.CurrentBalance.Equal(balance) {
		return nil
	}
	if err := st.UpdateFundBalance(ctx, fund.ID, balance); err != nil {
		return err
	}
	return st.InsertBalanceHistory(ctx, BalanceHistory{
		FundID:          fund.ID,
		PreviousBalance: fund.CurrentBalance,
		Change:          balance.Sub(fund.CurrentBalance),
		NewBalance:      balance,
		Reason:          reason,
		RefType:         refType,
		RefID:           refID,
		At:              now,
	})
}
