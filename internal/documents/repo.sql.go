package documents

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ordercash/internal/platform/db"
	"github.com/odyssey-erp/ordercash/internal/sequence"
)

// Repository persists document numbers.
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
		return errors.New("documents repository not initialised")
	}
	return db.WithTx(ctx, r.pool, r.opts, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

type txRepository struct {
	sequence.Store
	tx pgx.Tx
}

// NewTxStore binds the registry store to an open transaction.
func NewTxStore(tx pgx.Tx) TxRepository {
	return &txRepository{Store: sequence.NewTxStore(tx), tx: tx}
}

const documentColumns = `id, entity_type, entity_id, doc_type, document_number, deleted_at, deleted_by, created_at`

func scanDocument(row pgx.Row) (Number, error) {
	var n Number
	err := row.Scan(&n.ID, &n.EntityType, &n.EntityID, &n.DocType, &n.Value, &n.DeletedAt, &n.DeletedBy, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Number{}, ErrDocumentNotFound
	}
	return n, err
}

func (r *txRepository) InsertDocument(ctx context.Context, n Number) (Number, error) {
	out, err := scanDocument(r.tx.QueryRow(ctx, `INSERT INTO document_numbers (entity_type, entity_id, doc_type, document_number, created_at)
VALUES ($1,$2,$3,$4,$5) RETURNING `+documentColumns, n.EntityType, n.EntityID, n.DocType, n.Value, n.CreatedAt))
	if db.IsUniqueViolation(err, "document_numbers_live_entity_key") {
		return Number{}, ErrAlreadyAssigned
	}
	return out, db.MapError(err)
}

func (r *txRepository) LockDocument(ctx context.Context, id int64) (Number, error) {
	return scanDocument(r.tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM document_numbers WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) FindLiveDocument(ctx context.Context, entityType string, entityID int64) (Number, error) {
	return scanDocument(r.tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM document_numbers
WHERE entity_type=$1 AND entity_id=$2 AND deleted_at IS NULL`, entityType, entityID))
}

func (r *txRepository) FindLatestDocument(ctx context.Context, entityType string, entityID int64) (Number, error) {
	return scanDocument(r.tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM document_numbers
WHERE entity_type=$1 AND entity_id=$2 ORDER BY id DESC LIMIT 1`, entityType, entityID))
}

func (r *txRepository) UpdateDocumentDeletion(ctx context.Context, n Number) error {
	tag, err := r.tx.Exec(ctx, `UPDATE document_numbers SET deleted_at=$2, deleted_by=$3 WHERE id=$1`, n.ID, n.DeletedAt, n.DeletedBy)
	if err != nil {
		if db.IsUniqueViolation(err, "document_numbers_live_entity_key") {
			return ErrAlreadyAssigned
		}
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (r *txRepository) GetDocumentSettings(ctx context.Context) (Settings, error) {
	var s Settings
	err := r.tx.QueryRow(ctx, `SELECT starting_number, updated_at FROM document_settings WHERE id=1`).Scan(&s.StartingNumber, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Settings{StartingNumber: 1}, nil
	}
	return s, err
}

func (r *txRepository) SaveDocumentSettings(ctx context.Context, s Settings) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO document_settings (id, starting_number, updated_at) VALUES (1,$1,$2)
ON CONFLICT (id) DO UPDATE SET starting_number=EXCLUDED.starting_number, updated_at=EXCLUDED.updated_at`, s.StartingNumber, s.UpdatedAt)
	return err
}

func (r *txRepository) CountDocuments(ctx context.Context) (int, int, error) {
	var total, deleted int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE deleted_at IS NOT NULL) FROM document_numbers`).Scan(&total, &deleted)
	return total, deleted, err
}
