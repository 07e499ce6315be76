package instruments

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ordercash/internal/platform/db"
)

// ChequeFilter narrows received cheque listings. Zero values match all.
type ChequeFilter struct {
	Status     ChequeStatus
	CustomerID int64
	DueBefore  *time.Time
}

// TxRepository exposes transactional instrument persistence.
type TxRepository interface {
	InsertCheckBook(ctx context.Context, b CheckBook) (CheckBook, error)
	GetCheckBook(ctx context.Context, id int64) (CheckBook, error)
	ListCheckBooks(ctx context.Context, fundID int64) ([]CheckBook, error)
	InsertChecks(ctx context.Context, leaves []Check) error
	GetCheck(ctx context.Context, id int64) (Check, error)
	LockCheck(ctx context.Context, id int64) (Check, error)
	LockCheckByNumber(ctx context.Context, bookID, number int64) (Check, error)
	UpdateCheck(ctx context.Context, c Check) error
	ListChecks(ctx context.Context, bookID int64) ([]Check, error)
	InsertCheque(ctx context.Context, c ReceivedCheque) (ReceivedCheque, error)
	GetCheque(ctx context.Context, id int64) (ReceivedCheque, error)
	LockCheque(ctx context.Context, id int64) (ReceivedCheque, error)
	GetChequeBySayadi(ctx context.Context, sayadiID string) (ReceivedCheque, error)
	UpdateCheque(ctx context.Context, c ReceivedCheque) error
	ListCheques(ctx context.Context, f ChequeFilter) ([]ReceivedCheque, error)
	InsertStatusChange(ctx context.Context, sc StatusChange) error
	ListStatusChanges(ctx context.Context, kind Kind, instrumentID int64) ([]StatusChange, error)
	InsertInstrumentLink(ctx context.Context, l Link) (Link, error)
	ListInstrumentLinks(ctx context.Context, operationID int64) ([]Link, error)
	ListInstrumentLinksByInstrument(ctx context.Context, kind Kind, instrumentID int64) ([]Link, error)
	UpdateInstrumentLink(ctx context.Context, l Link) error
	DeleteInstrumentLinks(ctx context.Context, operationID int64) error
}

// Repository persists checks and received cheques.
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
		return errors.New("instruments repository not initialised")
	}
	return db.WithTx(ctx, r.pool, r.opts, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxStore binds the instrument store to an open transaction.
func NewTxStore(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

const bookColumns = `id, fund_id, serial, start_number, end_number, is_active, created_at`

func scanBook(row pgx.Row) (CheckBook, error) {
	var b CheckBook
	err := row.Scan(&b.ID, &b.FundID, &b.Serial, &b.StartNumber, &b.EndNumber, &b.IsActive, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return CheckBook{}, ErrCheckBookNotFound
	}
	return b, err
}

func (r *txRepository) InsertCheckBook(ctx context.Context, b CheckBook) (CheckBook, error) {
	book, err := scanBook(r.tx.QueryRow(ctx, `INSERT INTO check_books (fund_id, serial, start_number, end_number, is_active, created_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING `+bookColumns, b.FundID, b.Serial, b.StartNumber, b.EndNumber, b.IsActive, b.CreatedAt))
	return book, db.MapError(err)
}

func (r *txRepository) GetCheckBook(ctx context.Context, id int64) (CheckBook, error) {
	return scanBook(r.tx.QueryRow(ctx, `SELECT `+bookColumns+` FROM check_books WHERE id=$1`, id))
}

func (r *txRepository) ListCheckBooks(ctx context.Context, fundID int64) ([]CheckBook, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+bookColumns+` FROM check_books WHERE $1=0 OR fund_id=$1 ORDER BY id`, fundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CheckBook
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertChecks(ctx context.Context, leaves []Check) error {
	if len(leaves) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range leaves {
		batch.Queue(`INSERT INTO checks (check_book_id, number, status, amount, updated_at) VALUES ($1,$2,$3,$4,$5)`,
			c.CheckBookID, c.Number, c.Status, c.Amount, c.UpdatedAt)
	}
	return db.MapError(r.tx.SendBatch(ctx, batch).Close())
}

const checkColumns = `id, check_book_id, number, status, amount, payee, customer_id, issue_date, due_date, description, updated_at`

func scanCheck(row pgx.Row) (Check, error) {
	var c Check
	err := row.Scan(&c.ID, &c.CheckBookID, &c.Number, &c.Status, &c.Amount, &c.Payee, &c.CustomerID, &c.IssueDate, &c.DueDate, &c.Description, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Check{}, ErrCheckNotFound
	}
	return c, err
}

func (r *txRepository) GetCheck(ctx context.Context, id int64) (Check, error) {
	return scanCheck(r.tx.QueryRow(ctx, `SELECT `+checkColumns+` FROM checks WHERE id=$1`, id))
}

func (r *txRepository) LockCheck(ctx context.Context, id int64) (Check, error) {
	return scanCheck(r.tx.QueryRow(ctx, `SELECT `+checkColumns+` FROM checks WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) LockCheckByNumber(ctx context.Context, bookID, number int64) (Check, error) {
	return scanCheck(r.tx.QueryRow(ctx, `SELECT `+checkColumns+` FROM checks WHERE check_book_id=$1 AND number=$2 FOR UPDATE`, bookID, number))
}

func (r *txRepository) UpdateCheck(ctx context.Context, c Check) error {
	tag, err := r.tx.Exec(ctx, `UPDATE checks SET status=$2, amount=$3, payee=$4, customer_id=$5, issue_date=$6, due_date=$7, description=$8, updated_at=$9
WHERE id=$1`, c.ID, c.Status, c.Amount, c.Payee, c.CustomerID, c.IssueDate, c.DueDate, c.Description, c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCheckNotFound
	}
	return nil
}

func (r *txRepository) ListChecks(ctx context.Context, bookID int64) ([]Check, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+checkColumns+` FROM checks WHERE check_book_id=$1 ORDER BY number`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Check
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const chequeColumns = `id, sayadi_id, serial, bank_name, customer_id, amount, due_date, received_date, status,
recipient_customer_id, recipient_name, deposited_fund_id, cleared_at, description, deleted_at, created_at, updated_at`

func scanCheque(row pgx.Row) (ReceivedCheque, error) {
	var c ReceivedCheque
	err := row.Scan(&c.ID, &c.SayadiID, &c.Serial, &c.BankName, &c.CustomerID, &c.Amount, &c.DueDate, &c.ReceivedDate, &c.Status,
		&c.RecipientCustomerID, &c.RecipientName, &c.DepositedFundID, &c.ClearedAt, &c.Description, &c.DeletedAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ReceivedCheque{}, ErrChequeNotFound
	}
	return c, err
}

func (r *txRepository) InsertCheque(ctx context.Context, c ReceivedCheque) (ReceivedCheque, error) {
	out, err := scanCheque(r.tx.QueryRow(ctx, `INSERT INTO received_cheques
(sayadi_id, serial, bank_name, customer_id, amount, due_date, received_date, status, recipient_name, description, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'',$9,$10,$10) RETURNING `+chequeColumns,
		c.SayadiID, c.Serial, c.BankName, c.CustomerID, c.Amount, c.DueDate, c.ReceivedDate, c.Status, c.Description, c.CreatedAt))
	if db.IsUniqueViolation(err, "received_cheques_sayadi_id_key") {
		return ReceivedCheque{}, ErrDuplicateSayadi
	}
	return out, db.MapError(err)
}

func (r *txRepository) GetCheque(ctx context.Context, id int64) (ReceivedCheque, error) {
	return scanCheque(r.tx.QueryRow(ctx, `SELECT `+chequeColumns+` FROM received_cheques WHERE id=$1`, id))
}

func (r *txRepository) LockCheque(ctx context.Context, id int64) (ReceivedCheque, error) {
	return scanCheque(r.tx.QueryRow(ctx, `SELECT `+chequeColumns+` FROM received_cheques WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) GetChequeBySayadi(ctx context.Context, sayadiID string) (ReceivedCheque, error) {
	return scanCheque(r.tx.QueryRow(ctx, `SELECT `+chequeColumns+` FROM received_cheques WHERE sayadi_id=$1`, sayadiID))
}

func (r *txRepository) UpdateCheque(ctx context.Context, c ReceivedCheque) error {
	tag, err := r.tx.Exec(ctx, `UPDATE received_cheques SET amount=$2, due_date=$3, status=$4, recipient_customer_id=$5, recipient_name=$6,
deposited_fund_id=$7, cleared_at=$8, description=$9, deleted_at=$10, updated_at=$11 WHERE id=$1`,
		c.ID, c.Amount, c.DueDate, c.Status, c.RecipientCustomerID, c.RecipientName, c.DepositedFundID, c.ClearedAt, c.Description, c.DeletedAt, c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrChequeNotFound
	}
	return nil
}

func (r *txRepository) ListCheques(ctx context.Context, f ChequeFilter) ([]ReceivedCheque, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+chequeColumns+` FROM received_cheques
WHERE deleted_at IS NULL AND ($1='' OR status=$1) AND ($2=0 OR customer_id=$2) AND ($3::date IS NULL OR due_date <= $3)
ORDER BY due_date, id`, string(f.Status), f.CustomerID, f.DueBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReceivedCheque
	for rows.Next() {
		c, err := scanCheque(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertStatusChange(ctx context.Context, sc StatusChange) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO instrument_status_changes
(kind, instrument_id, transition, old_status, new_status, old_amount, new_amount, old_due_date, new_due_date, actor_id, operation_id, at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		sc.Kind, sc.InstrumentID, sc.Transition, sc.OldStatus, sc.NewStatus, sc.OldAmount, sc.NewAmount,
		sc.OldDueDate, sc.NewDueDate, sc.ActorID, sc.OperationID, sc.At)
	return err
}

func (r *txRepository) ListStatusChanges(ctx context.Context, kind Kind, instrumentID int64) ([]StatusChange, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, kind, instrument_id, transition, old_status, new_status, old_amount, new_amount,
old_due_date, new_due_date, actor_id, operation_id, at
FROM instrument_status_changes WHERE kind=$1 AND instrument_id=$2 ORDER BY at, id`, kind, instrumentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusChange
	for rows.Next() {
		var sc StatusChange
		if err := rows.Scan(&sc.ID, &sc.Kind, &sc.InstrumentID, &sc.Transition, &sc.OldStatus, &sc.NewStatus, &sc.OldAmount, &sc.NewAmount,
			&sc.OldDueDate, &sc.NewDueDate, &sc.ActorID, &sc.OperationID, &sc.At); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

const linkColumns = `id, operation_id, kind, instrument_id, transition, before_state, after_state, reverted_at, created_at`

func scanLinks(rows pgx.Rows) ([]Link, error) {
	defer rows.Close()
	var out []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.ID, &l.OperationID, &l.Kind, &l.InstrumentID, &l.Transition, &l.Before, &l.After, &l.RevertedAt, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertInstrumentLink(ctx context.Context, l Link) (Link, error) {
	var before any
	if len(l.Before) > 0 {
		before = []byte(l.Before)
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO operation_instrument_links (operation_id, kind, instrument_id, transition, before_state, after_state, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`, l.OperationID, l.Kind, l.InstrumentID, l.Transition, before, []byte(l.After), l.CreatedAt).Scan(&l.ID)
	return l, err
}

func (r *txRepository) ListInstrumentLinks(ctx context.Context, operationID int64) ([]Link, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+linkColumns+` FROM operation_instrument_links WHERE operation_id=$1 ORDER BY id`, operationID)
	if err != nil {
		return nil, err
	}
	return scanLinks(rows)
}

func (r *txRepository) ListInstrumentLinksByInstrument(ctx context.Context, kind Kind, instrumentID int64) ([]Link, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+linkColumns+` FROM operation_instrument_links WHERE kind=$1 AND instrument_id=$2 ORDER BY id`, kind, instrumentID)
	if err != nil {
		return nil, err
	}
	return scanLinks(rows)
}

func (r *txRepository) UpdateInstrumentLink(ctx context.Context, l Link) error {
	_, err := r.tx.Exec(ctx, `UPDATE operation_instrument_links SET reverted_at=$2 WHERE id=$1`, l.ID, l.RevertedAt)
	return err
}

func (r *txRepository) DeleteInstrumentLinks(ctx context.Context, operationID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM operation_instrument_links WHERE operation_id=$1`, operationID)
	return err
}
