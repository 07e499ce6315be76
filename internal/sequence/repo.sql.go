package sequence

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type txRepository struct {
	tx pgx.Tx
}

// NewTxStore binds the allocator store to an open transaction.
func NewTxStore(tx pgx.Tx) Store {
	return &txRepository{tx: tx}
}

func (r *txRepository) LockCounter(ctx context.Context, scope string) (int64, error) {
	if _, err := r.tx.Exec(ctx, `INSERT INTO sequence_counters (scope, last_value) VALUES ($1, 0)
ON CONFLICT (scope) DO NOTHING`, scope); err != nil {
		return 0, err
	}
	var last int64
	err := r.tx.QueryRow(ctx, `SELECT last_value FROM sequence_counters WHERE scope=$1 FOR UPDATE`, scope).Scan(&last)
	return last, err
}

func (r *txRepository) SetCounter(ctx context.Context, scope string, value int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE sequence_counters SET last_value=$2, updated_at=NOW() WHERE scope=$1`, scope, value)
	return err
}
