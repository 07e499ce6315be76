package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ordercash/internal/shared"
)

// TxOptions tunes how ledger transactions acquire locks.
type TxOptions struct {
	// LockTimeout bounds every row lock wait inside the transaction.
	LockTimeout time.Duration
	// Retries is the number of extra attempts after a contention failure.
	Retries int
}

// DefaultTxOptions returns the settings used when none are configured.
func DefaultTxOptions() TxOptions {
	return TxOptions{LockTimeout: 2 * time.Second, Retries: 3}
}

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
func WithTx(ctx context.Context, pool *pgxpool.Pool, opts TxOptions, fn func(pgx.Tx) error) error {
	return Retry(ctx, opts.Retries, func() error {
		return runTx(ctx, pool, opts, fn)
	})
}

func runTx(ctx context.Context, pool *pgxpool.Pool, opts TxOptions, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", MapError(err))
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if opts.LockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", opts.LockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("platform/db: set lock timeout: %w", MapError(err))
		}
	}

	if err := fn(tx); err != nil {
		return MapError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", MapError(err))
	}

	return nil
}

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
)

// MapError converts PostgreSQL lock and constraint failures to the shared taxonomy.
// Errors already carrying a taxonomy sentinel pass through unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		if errors.Is(err, shared.ErrContention) {
			return err
		}
		return fmt.Errorf("%w: %s", shared.ErrContention, pgErr.Message)
	case codeUniqueViolation:
		if errors.Is(err, shared.ErrConflict) {
			return err
		}
		return fmt.Errorf("%w: %s", shared.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

// IsUniqueViolation reports whether err is a unique violation on the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeUniqueViolation && (constraint == "" || pgErr.ConstraintName == constraint)
}

// Retry runs fn again while it fails with shared.ErrContention, at most retries extra times.
func Retry(ctx context.Context, retries int, fn func() error) error {
	backoff := 20 * time.Millisecond
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !shared.IsRetryable(err) || attempt >= retries {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
