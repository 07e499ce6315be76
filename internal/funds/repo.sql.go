package funds

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ordercash/internal/platform/db"
)

// TxRepository exposes transactional fund persistence.
type TxRepository interface {
	GetFund(ctx context.Context, id int64) (Fund, error)
	LockFund(ctx context.Context, id int64) (Fund, error)
	ListFunds(ctx context.Context, activeOnly bool) ([]Fund, error)
	FindDefaultFund(ctx context.Context, kind Kind) (Fund, error)
	InsertFund(ctx context.Context, f Fund) (Fund, error)
	UpdateFundBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	InsertFundTransaction(ctx context.Context, t Transaction) (Transaction, error)
	ListFundTransactions(ctx context.Context, fundID int64) ([]Transaction, error)
	DeleteFundTransactionsByRef(ctx context.Context, refType string, refID int64) ([]int64, error)
	ListFundMovements(ctx context.Context, fundID int64) ([]Movement, error)
	DeleteFundStatements(ctx context.Context, fundID int64) error
	InsertFundStatements(ctx context.Context, rows []Statement) error
	ListFundStatements(ctx context.Context, fundID int64) ([]Statement, error)
	InsertBalanceHistory(ctx context.Context, h BalanceHistory) error
	ListBalanceHistory(ctx context.Context, fundID int64) ([]BalanceHistory, error)
}

// Repository persists funds.
type Repository struct {
	pool *pgxpool.Pool
	opts db.TxOptions
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, opts db.TxOptions) *Repository {
	return &Repository{pool: pool, opts: opts}
}

// WithTx executes fn within repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("funds repository not initialised")
	}
	return db.WithTx(ctx, r.pool, r.opts, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxStore binds the fund store to an open transaction.
func NewTxStore(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

const fundColumns = `id, name, kind, COALESCE(bank_name, ''), COALESCE(account_number, ''), initial_balance, current_balance, is_default, is_active, created_at, updated_at`

func scanFund(row pgx.Row) (Fund, error) {
	var f Fund
	err := row.Scan(&f.ID, &f.Name, &f.Kind, &f.BankName, &f.AccountNumber, &f.InitialBalance, &f.CurrentBalance, &f.IsDefault, &f.IsActive, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Fund{}, ErrFundNotFound
	}
	return f, err
}

func (r *txRepository) GetFund(ctx context.Context, id int64) (Fund, error) {
	return scanFund(r.tx.QueryRow(ctx, `SELECT `+fundColumns+` FROM funds WHERE id=$1`, id))
}

func (r *txRepository) LockFund(ctx context.Context, id int64) (Fund, error) {
	return scanFund(r.tx.QueryRow(ctx, `SELECT `+fundColumns+` FROM funds WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) ListFunds(ctx context.Context, activeOnly bool) ([]Fund, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+fundColumns+` FROM funds WHERE is_active OR NOT $1 ORDER BY id`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Fund
	for rows.Next() {
		f, err := scanFund(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *txRepository) FindDefaultFund(ctx context.Context, kind Kind) (Fund, error) {
	return scanFund(r.tx.QueryRow(ctx, `SELECT `+fundColumns+` FROM funds
WHERE kind=$1 AND is_active ORDER BY is_default DESC, id LIMIT 1`, kind))
}

func (r *txRepository) InsertFund(ctx context.Context, f Fund) (Fund, error) {
	return scanFund(r.tx.QueryRow(ctx, `INSERT INTO funds (name, kind, bank_name, account_number, initial_balance, current_balance, is_default, is_active)
VALUES ($1,$2,NULLIF($3,''),NULLIF($4,''),$5,$5,$6,TRUE) RETURNING `+fundColumns,
		f.Name, f.Kind, f.BankName, f.AccountNumber, f.InitialBalance, f.IsDefault))
}

func (r *txRepository) UpdateFundBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE funds SET current_balance=$2, updated_at=NOW() WHERE id=$1`, id, balance)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFundNotFound
	}
	return nil
}

func (r *txRepository) InsertFundTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO fund_transactions (fund_id, direction, amount, date, description, ref_type, ref_id)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		t.FundID, t.Direction, t.Amount, t.Date, t.Description, t.RefType, t.RefID).Scan(&t.ID, &t.CreatedAt)
	return t, err
}

func (r *txRepository) ListFundTransactions(ctx context.Context, fundID int64) ([]Transaction, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, fund_id, direction, amount, date, description, ref_type, ref_id, created_at
FROM fund_transactions WHERE fund_id=$1 ORDER BY date, created_at, id`, fundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.FundID, &t.Direction, &t.Amount, &t.Date, &t.Description, &t.RefType, &t.RefID, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *txRepository) DeleteFundTransactionsByRef(ctx context.Context, refType string, refID int64) ([]int64, error) {
	rows, err := r.tx.Query(ctx, `DELETE FROM fund_transactions WHERE ref_type=$1 AND ref_id=$2 RETURNING fund_id`, refType, refID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seen := make(map[int64]struct{})
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

func (r *txRepository) ListFundMovements(ctx context.Context, fundID int64) ([]Movement, error) {
	rows, err := r.tx.Query(ctx, `SELECT 'financial_operation', id, number, type, fund_id, counter_fund_id, amount, date, created_at, description
FROM financial_operations
WHERE status='CONFIRMED' AND deleted_at IS NULL AND (fund_id=$1 OR counter_fund_id=$1)
UNION ALL
SELECT 'petty_cash', id, number,
       CASE direction WHEN 'ADD' THEN 'PETTY_CASH_ADD' ELSE 'PETTY_CASH_WITHDRAW' END,
       petty_fund_id, source_fund_id, amount, date, created_at, reason
FROM petty_cash_operations
WHERE deleted_at IS NULL AND (petty_fund_id=$1 OR source_fund_id=$1)`, fundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.RefType, &m.RefID, &m.Number, &m.Type, &m.FundID, &m.CounterFundID, &m.Amount, &m.Date, &m.CreatedAt, &m.Description); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *txRepository) DeleteFundStatements(ctx context.Context, fundID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM fund_statements WHERE fund_id=$1`, fundID)
	return err
}

func (r *txRepository) InsertFundStatements(ctx context.Context, rows []Statement) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, s := range rows {
		batch.Queue(`INSERT INTO fund_statements (fund_id, seq, date, direction, amount, running_balance, description, ref_type, ref_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, s.FundID, s.Seq, s.Date, s.Direction, s.Amount, s.RunningBalance, s.Description, s.RefType, s.RefID)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) ListFundStatements(ctx context.Context, fundID int64) ([]Statement, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, fund_id, seq, date, direction, amount, running_balance, description, ref_type, ref_id
FROM fund_statements WHERE fund_id=$1 ORDER BY seq`, fundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Statement
	for rows.Next() {
		var s Statement
		if err := rows.Scan(&s.ID, &s.FundID, &s.Seq, &s.Date, &s.Direction, &s.Amount, &s.RunningBalance, &s.Description, &s.RefType, &s.RefID); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertBalanceHistory(ctx context.Context, h BalanceHistory) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO fund_balance_history (fund_id, previous_balance, change, new_balance, reason, ref_type, ref_id, at)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),NULLIF($7,0),$8)`,
		h.FundID, h.PreviousBalance, h.Change, h.NewBalance, h.Reason, h.RefType, h.RefID, h.At)
	return err
}

func (r *txRepository) ListBalanceHistory(ctx context.Context, fundID int64) ([]BalanceHistory, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, fund_id, previous_balance, change, new_balance, reason, COALESCE(ref_type, ''), COALESCE(ref_id, 0), at
FROM fund_balance_history WHERE fund_id=$1 ORDER BY at, id`, fundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BalanceHistory
	for rows.Next() {
		var h BalanceHistory
		if err := rows.Scan(&h.ID, &h.FundID, &h.PreviousBalance, &h.Change, &h.NewBalance, &h.Reason, &h.RefType, &h.RefID, &h.At); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
