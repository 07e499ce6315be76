package counterparty

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ordercash/internal/platform/db"
)

// TxRepository exposes transactional customer persistence.
type TxRepository interface {
	InsertCustomer(ctx context.Context, c Customer) (Customer, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	ListCustomers(ctx context.Context) ([]Customer, error)
	ListCustomerEntries(ctx context.Context, customerID int64) ([]Entry, error)
	GetCustomerBalance(ctx context.Context, customerID int64) (Balance, bool, error)
	UpsertCustomerBalance(ctx context.Context, b Balance) error
}

// Repository persists customers and balances.
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
		return errors.New("counterparty repository not initialised")
	}
	return db.WithTx(ctx, r.pool, r.opts, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxStore binds the customer store to an open transaction.
func NewTxStore(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.IsActive, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	return c, err
}

func (r *txRepository) InsertCustomer(ctx context.Context, c Customer) (Customer, error) {
	return scanCustomer(r.tx.QueryRow(ctx, `INSERT INTO customers (name, phone, is_active) VALUES ($1,$2,TRUE)
RETURNING id, name, phone, is_active, created_at`, c.Name, c.Phone))
}

func (r *txRepository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return scanCustomer(r.tx.QueryRow(ctx, `SELECT id, name, phone, is_active, created_at FROM customers WHERE id=$1`, id))
}

func (r *txRepository) ListCustomers(ctx context.Context) ([]Customer, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, name, phone, is_active, created_at FROM customers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *txRepository) ListCustomerEntries(ctx context.Context, customerID int64) ([]Entry, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, type, amount, date FROM financial_operations
WHERE customer_id=$1 AND status='CONFIRMED' AND deleted_at IS NULL ORDER BY date, id`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.OperationID, &e.Type, &e.Amount, &e.Date); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *txRepository) GetCustomerBalance(ctx context.Context, customerID int64) (Balance, bool, error) {
	var b Balance
	err := r.tx.QueryRow(ctx, `SELECT customer_id, total_debit, total_credit, current_balance, last_transaction_date, updated_at
FROM customer_balances WHERE customer_id=$1`, customerID).
		Scan(&b.CustomerID, &b.TotalDebit, &b.TotalCredit, &b.Current, &b.LastTransactionDate, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, false, nil
	}
	if err != nil {
		return Balance{}, false, err
	}
	return b, true, nil
}

func (r *txRepository) UpsertCustomerBalance(ctx context.Context, b Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO customer_balances (customer_id, total_debit, total_credit, current_balance, last_transaction_date, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (customer_id) DO UPDATE SET total_debit=EXCLUDED.total_debit, total_credit=EXCLUDED.total_credit,
current_balance=EXCLUDED.current_balance, last_transaction_date=EXCLUDED.last_transaction_date, updated_at=EXCLUDED.updated_at`,
		b.CustomerID, b.TotalDebit, b.TotalCredit, b.Current, b.LastTransactionDate, b.UpdatedAt)
	return err
}
