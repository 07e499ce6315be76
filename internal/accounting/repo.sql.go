package accounting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ordercash/internal/platform/db"
	"github.com/odyssey-erp/ordercash/internal/sequence"
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	sequence.Store
	GetAccount(ctx context.Context, id int64) (Account, error)
	GetAccountByCode(ctx context.Context, code string) (Account, error)
	GetAccountByRole(ctx context.Context, roleKey string) (Account, error)
	InsertAccount(ctx context.Context, acc Account) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	UpdateAccountBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	SumAccountItems(ctx context.Context, accountID int64) (debit, credit decimal.Decimal, err error)
	GetFiscalYearByDate(ctx context.Context, date time.Time) (FiscalYear, error)
	ListFiscalYears(ctx context.Context) ([]FiscalYear, error)
	InsertFiscalYear(ctx context.Context, fy FiscalYear) (FiscalYear, error)
	InsertVoucher(ctx context.Context, v Voucher) (Voucher, error)
	ListVouchersBySource(ctx context.Context, sourceType string, sourceID uuid.UUID) ([]Voucher, error)
	DeleteVoucher(ctx context.Context, id int64) error
	ListAccountTotals(ctx context.Context, fiscalYearID int64) ([]AccountBalance, error)
}

// Repository persists accounting entities.
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
		return errors.New("accounting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, r.opts, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

type txRepository struct {
	sequence.Store
	tx pgx.Tx
}

// NewTxStore binds the accounting store to an open transaction.
func NewTxStore(tx pgx.Tx) TxRepository {
	return &txRepository{Store: sequence.NewTxStore(tx), tx: tx}
}

const accountColumns = `id, code, name, type, level, parent_id, COALESCE(role_key, ''), currency, current_balance, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Level, &a.ParentID, &a.RoleKey, &a.Currency, &a.CurrentBalance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return a, err
}

func (r *txRepository) GetAccount(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

func (r *txRepository) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, code))
}

func (r *txRepository) GetAccountByRole(ctx context.Context, roleKey string) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE role_key=$1`, roleKey))
}

func (r *txRepository) InsertAccount(ctx context.Context, acc Account) (Account, error) {
	var roleKey *string
	if acc.RoleKey != "" {
		roleKey = &acc.RoleKey
	}
	return scanAccount(r.tx.QueryRow(ctx, `INSERT INTO accounts (code, name, type, level, parent_id, role_key, currency, current_balance, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8) RETURNING `+accountColumns,
		acc.Code, acc.Name, acc.Type, acc.Level, acc.ParentID, roleKey, acc.Currency, acc.IsActive))
}

func (r *txRepository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *txRepository) UpdateAccountBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE accounts SET current_balance=$2, updated_at=NOW() WHERE id=$1`, id, balance)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) SumAccountItems(ctx context.Context, accountID int64) (decimal.Decimal, decimal.Decimal, error) {
	var debit, credit decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(debit),0), COALESCE(SUM(credit),0) FROM voucher_items WHERE account_id=$1`, accountID).Scan(&debit, &credit)
	return debit, credit, err
}

const fiscalYearColumns = `id, year, start_date, end_date, is_active, created_at`

func (r *txRepository) GetFiscalYearByDate(ctx context.Context, date time.Time) (FiscalYear, error) {
	var fy FiscalYear
	err := r.tx.QueryRow(ctx, `SELECT `+fiscalYearColumns+` FROM fiscal_years
WHERE is_active AND $1::date BETWEEN start_date AND end_date ORDER BY start_date DESC LIMIT 1`, date).
		Scan(&fy.ID, &fy.Year, &fy.StartDate, &fy.EndDate, &fy.IsActive, &fy.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return FiscalYear{}, ErrFiscalYearNotFound
	}
	return fy, err
}

func (r *txRepository) ListFiscalYears(ctx context.Context) ([]FiscalYear, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+fiscalYearColumns+` FROM fiscal_years ORDER BY start_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FiscalYear
	for rows.Next() {
		var fy FiscalYear
		if err := rows.Scan(&fy.ID, &fy.Year, &fy.StartDate, &fy.EndDate, &fy.IsActive, &fy.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, fy)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertFiscalYear(ctx context.Context, fy FiscalYear) (FiscalYear, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO fiscal_years (year, start_date, end_date, is_active) VALUES ($1,$2,$3,$4)
RETURNING id, created_at`, fy.Year, fy.StartDate, fy.EndDate, fy.IsActive).Scan(&fy.ID, &fy.CreatedAt)
	return fy, err
}

func (r *txRepository) InsertVoucher(ctx context.Context, v Voucher) (Voucher, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO vouchers (fiscal_year_id, number, date, description, source_type, source_id, is_reversal, is_confirmed, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
		v.FiscalYearID, v.Number, v.Date, v.Description, v.SourceType, v.SourceID, v.IsReversal, v.IsConfirmed, nullInt(v.CreatedBy)).
		Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return Voucher{}, err
	}
	batch := &pgx.Batch{}
	for _, item := range v.Items {
		batch.Queue(`INSERT INTO voucher_items (voucher_id, account_id, debit, credit, description, reference)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, v.ID, item.AccountID, item.Debit, item.Credit, item.Description, item.Reference)
	}
	results := r.tx.SendBatch(ctx, batch)
	for i := range v.Items {
		if err := results.QueryRow().Scan(&v.Items[i].ID); err != nil {
			_ = results.Close()
			return Voucher{}, err
		}
		v.Items[i].VoucherID = v.ID
	}
	if err := results.Close(); err != nil {
		return Voucher{}, err
	}
	return v, nil
}

func (r *txRepository) ListVouchersBySource(ctx context.Context, sourceType string, sourceID uuid.UUID) ([]Voucher, error) {
	rows, err := r.tx.Query(ctx, `SELECT v.id, v.fiscal_year_id, v.number, v.date, v.description, v.source_type, v.source_id,
v.is_reversal, v.is_confirmed, COALESCE(v.created_by, 0), v.created_at,
i.id, i.account_id, i.debit, i.credit, i.description, i.reference
FROM vouchers v JOIN voucher_items i ON i.voucher_id = v.id
WHERE v.source_type=$1 AND v.source_id=$2 ORDER BY v.id, i.id`, sourceType, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var vouchers []Voucher
	for rows.Next() {
		var v Voucher
		var item VoucherItem
		if err := rows.Scan(&v.ID, &v.FiscalYearID, &v.Number, &v.Date, &v.Description, &v.SourceType, &v.SourceID,
			&v.IsReversal, &v.IsConfirmed, &v.CreatedBy, &v.CreatedAt,
			&item.ID, &item.AccountID, &item.Debit, &item.Credit, &item.Description, &item.Reference); err != nil {
			return nil, err
		}
		item.VoucherID = v.ID
		if n := len(vouchers); n > 0 && vouchers[n-1].ID == v.ID {
			vouchers[n-1].Items = append(vouchers[n-1].Items, item)
			continue
		}
		v.Items = []VoucherItem{item}
		vouchers = append(vouchers, v)
	}
	return vouchers, rows.Err()
}

func (r *txRepository) DeleteVoucher(ctx context.Context, id int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM voucher_items WHERE voucher_id=$1`, id); err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM vouchers WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVoucherNotFound
	}
	return nil
}

func (r *txRepository) ListAccountTotals(ctx context.Context, fiscalYearID int64) ([]AccountBalance, error) {
	rows, err := r.tx.Query(ctx, `SELECT a.id, a.code, a.name, a.type, a.level, a.parent_id, COALESCE(a.role_key, ''), a.currency, a.current_balance, a.is_active, a.created_at, a.updated_at,
COALESCE(SUM(i.debit),0), COALESCE(SUM(i.credit),0)
FROM accounts a
JOIN voucher_items i ON i.account_id = a.id
JOIN vouchers v ON v.id = i.voucher_id AND v.fiscal_year_id = $1
GROUP BY a.id ORDER BY a.code`, fiscalYearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		a := &b.Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Level, &a.ParentID, &a.RoleKey, &a.Currency, &a.CurrentBalance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
