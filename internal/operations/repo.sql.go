package operations

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ordercash/internal/accounting"
	"github.com/odyssey-erp/ordercash/internal/counterparty"
	"github.com/odyssey-erp/ordercash/internal/documents"
	"github.com/odyssey-erp/ordercash/internal/funds"
	"github.com/odyssey-erp/ordercash/internal/instruments"
	"github.com/odyssey-erp/ordercash/internal/platform/db"
	"github.com/odyssey-erp/ordercash/internal/sequence"
)

// Store persists operations and petty cash movements.
type Store interface {
	sequence.Store
	InsertOperation(ctx context.Context, op Operation) (Operation, error)
	GetOperation(ctx context.Context, id int64) (Operation, error)
	LockOperation(ctx context.Context, id int64) (Operation, error)
	UpdateOperation(ctx context.Context, op Operation) error
	DeleteOperation(ctx context.Context, id int64) error
	ListOperations(ctx context.Context, f Filter) ([]Operation, error)
	InsertPettyCash(ctx context.Context, p PettyCashOperation) (PettyCashOperation, error)
	LockPettyCash(ctx context.Context, id int64) (PettyCashOperation, error)
	UpdatePettyCash(ctx context.Context, p PettyCashOperation) error
	ListPettyCash(ctx context.Context, fundID int64) ([]PettyCashOperation, error)
}

// TxRepository exposes every component store bound to one transaction.
type TxRepository interface {
	Store
	Ledger() accounting.TxRepository
	Funds() funds.TxRepository
	Instruments() instruments.TxRepository
	Balances() counterparty.TxRepository
	Documents() documents.TxRepository
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Repository persists operations and binds the component stores.
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
		return errors.New("operations repository not initialised")
	}
	return db.WithTx(ctx, r.pool, r.opts, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

type txRepository struct {
	sequence.Store
	tx pgx.Tx
}

// NewTxStore binds the orchestrator store to an open transaction.
func NewTxStore(tx pgx.Tx) TxRepository {
	return &txRepository{Store: sequence.NewTxStore(tx), tx: tx}
}

func (r *txRepository) Ledger() accounting.TxRepository       { return accounting.NewTxStore(r.tx) }
func (r *txRepository) Funds() funds.TxRepository             { return funds.NewTxStore(r.tx) }
func (r *txRepository) Instruments() instruments.TxRepository { return instruments.NewTxStore(r.tx) }
func (r *txRepository) Balances() counterparty.TxRepository   { return counterparty.NewTxStore(r.tx) }
func (r *txRepository) Documents() documents.TxRepository     { return documents.NewTxStore(r.tx) }

const operationColumns = `id, number, source_id, type, status, deleted_at, amount, date, payment_method, customer_id, fund_id,
counter_fund_id, bank_fund_id, description, created_by, confirmed_at, created_at, updated_at`

func scanOperation(row pgx.Row) (Operation, error) {
	var op Operation
	err := row.Scan(&op.ID, &op.Number, &op.SourceID, &op.Type, &op.Status, &op.DeletedAt, &op.Amount, &op.Date, &op.PaymentMethod,
		&op.CustomerID, &op.FundID, &op.CounterFundID, &op.BankFundID, &op.Description, &op.CreatedBy, &op.ConfirmedAt, &op.CreatedAt, &op.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Operation{}, ErrOperationNotFound
	}
	return op, err
}

func (r *txRepository) InsertOperation(ctx context.Context, op Operation) (Operation, error) {
	out, err := scanOperation(r.tx.QueryRow(ctx, `INSERT INTO financial_operations
(number, source_id, type, status, amount, date, payment_method, customer_id, fund_id, counter_fund_id, bank_fund_id, description, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14) RETURNING `+operationColumns,
		op.Number, op.SourceID, op.Type, op.Status, op.Amount, op.Date, op.PaymentMethod, op.CustomerID, op.FundID,
		op.CounterFundID, op.BankFundID, op.Description, op.CreatedBy, op.CreatedAt))
	return out, db.MapError(err)
}

func (r *txRepository) GetOperation(ctx context.Context, id int64) (Operation, error) {
	return scanOperation(r.tx.QueryRow(ctx, `SELECT `+operationColumns+` FROM financial_operations WHERE id=$1`, id))
}

func (r *txRepository) LockOperation(ctx context.Context, id int64) (Operation, error) {
	return scanOperation(r.tx.QueryRow(ctx, `SELECT `+operationColumns+` FROM financial_operations WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateOperation(ctx context.Context, op Operation) error {
	tag, err := r.tx.Exec(ctx, `UPDATE financial_operations SET status=$2, deleted_at=$3, confirmed_at=$4, updated_at=$5 WHERE id=$1`,
		op.ID, op.Status, op.DeletedAt, op.ConfirmedAt, op.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOperationNotFound
	}
	return nil
}

func (r *txRepository) DeleteOperation(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM financial_operations WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOperationNotFound
	}
	return nil
}

func (r *txRepository) ListOperations(ctx context.Context, f Filter) ([]Operation, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.tx.Query(ctx, `SELECT `+operationColumns+` FROM financial_operations
WHERE ($1='' OR type=$1) AND ($2='' OR status=$2) AND ($3=0 OR customer_id=$3)
  AND ($4::date IS NULL OR date >= $4) AND ($5::date IS NULL OR date <= $5) AND ($6 OR deleted_at IS NULL)
ORDER BY date DESC, id DESC LIMIT $7`, string(f.Type), string(f.Status), f.CustomerID, f.From, f.To, f.IncludeDeleted, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

const pettyColumns = `id, number, source_id, direction, petty_fund_id, source_fund_id, amount, date, reason, deleted_at, created_by, created_at`

func scanPetty(row pgx.Row) (PettyCashOperation, error) {
	var p PettyCashOperation
	err := row.Scan(&p.ID, &p.Number, &p.SourceID, &p.Direction, &p.PettyFundID, &p.SourceFundID, &p.Amount, &p.Date, &p.Reason, &p.DeletedAt, &p.CreatedBy, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PettyCashOperation{}, ErrPettyCashNotFound
	}
	return p, err
}

func (r *txRepository) InsertPettyCash(ctx context.Context, p PettyCashOperation) (PettyCashOperation, error) {
	out, err := scanPetty(r.tx.QueryRow(ctx, `INSERT INTO petty_cash_operations
(number, source_id, direction, petty_fund_id, source_fund_id, amount, date, reason, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING `+pettyColumns,
		p.Number, p.SourceID, p.Direction, p.PettyFundID, p.SourceFundID, p.Amount, p.Date, p.Reason, p.CreatedBy, p.CreatedAt))
	return out, db.MapError(err)
}

func (r *txRepository) LockPettyCash(ctx context.Context, id int64) (PettyCashOperation, error) {
	return scanPetty(r.tx.QueryRow(ctx, `SELECT `+pettyColumns+` FROM petty_cash_operations WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdatePettyCash(ctx context.Context, p PettyCashOperation) error {
	tag, err := r.tx.Exec(ctx, `UPDATE petty_cash_operations SET deleted_at=$2 WHERE id=$1`, p.ID, p.DeletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPettyCashNotFound
	}
	return nil
}

func (r *txRepository) ListPettyCash(ctx context.Context, fundID int64) ([]PettyCashOperation, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+pettyColumns+` FROM petty_cash_operations
WHERE deleted_at IS NULL AND (petty_fund_id=$1 OR source_fund_id=$1) ORDER BY date, id`, fundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PettyCashOperation
	for rows.Next() {
		p, err := scanPetty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
