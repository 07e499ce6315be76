package funds

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ordercash/internal/platform/cache"
	"github.com/odyssey-erp/ordercash/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service exposes fund maintenance and the reconciliation strategies.
type Service struct {
	repo   RepositoryPort
	cache  *cache.Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the fund service. cache may be nil.
func NewService(repo RepositoryPort, reportCache *cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: reportCache, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateFund registers a money pool.
func (s *Service) CreateFund(ctx context.Context, in FundInput) (Fund, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Fund{}, err
	}
	if in.InitialBalance.IsNegative() {
		return Fund{}, shared.Validation("initial balance cannot be negative")
	}
	fund := Fund{
		Name:           strings.TrimSpace(in.Name),
		Kind:           in.Kind,
		BankName:       strings.TrimSpace(in.BankName),
		AccountNumber:  shared.NormalizeDigits(in.AccountNumber),
		InitialBalance: in.InitialBalance,
		CurrentBalance: in.InitialBalance,
		IsDefault:      in.IsDefault,
		IsActive:       true,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		fund, err = tx.InsertFund(ctx, fund)
		return err
	})
	return fund, err
}

// GetFund loads one fund.
func (s *Service) GetFund(ctx context.Context, id int64) (Fund, error) {
	var fund Fund
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		fund, err = tx.GetFund(ctx, id)
		return err
	})
	return fund, err
}

// ListFunds lists funds ordered by id.
func (s *Service) ListFunds(ctx context.Context, activeOnly bool) ([]Fund, error) {
	var out []Fund
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListFunds(ctx, activeOnly)
		return err
	})
	return out, err
}

// RebuildStatements replaces the fund's statement rows.
func (s *Service) RebuildStatements(ctx context.Context, fundID int64) (decimal.Decimal, error) {
	var final decimal.Decimal
	var rows int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockFund(ctx, fundID); err != nil {
			return err
		}
		var err error
		final, rows, err = RebuildStatements(ctx, tx, fundID)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	s.logger.Info("fund statements rebuilt", slog.Int64("fund_id", fundID), slog.Int("rows", rows), slog.String("final", final.String()))
	s.invalidate(ctx)
	return final, nil
}

// RecalculateBalance recomputes and persists the fund's balance.
func (s *Service) RecalculateBalance(ctx context.Context, fundID int64) (Reconciliation, error) {
	var rec Reconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		rec, err = RecalculateBalance(ctx, tx, fundID, s.now())
		return err
	})
	if err != nil {
		s.LogDrift(err)
		return rec, err
	}
	s.invalidate(ctx)
	return rec, nil
}

// Reconcile compares the three strategies without writing.
func (s *Service) Reconcile(ctx context.Context, fundID int64) (Reconciliation, error) {
	var rec Reconciliation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		rec, err = Reconcile(ctx, tx, fundID, s.now())
		return err
	})
	return rec, err
}

// CachedReconciliation serves the last report computed since the most recent
// ledger write, computing it on a miss.
func (s *Service) CachedReconciliation(ctx context.Context, fundID int64) (Reconciliation, error) {
	key, err := s.cache.BuildKey(ctx, "ledger", "reconcile", "fund", strconv.FormatInt(fundID, 10))
	if err != nil {
		return s.Reconcile(ctx, fundID)
	}
	var rec Reconciliation
	err = s.cache.FetchJSON(ctx, key, &rec, func(ctx context.Context) (any, error) {
		return s.Reconcile(ctx, fundID)
	})
	return rec, err
}

// StoreReconciliation caches a freshly computed report.
func (s *Service) StoreReconciliation(ctx context.Context, rec Reconciliation) error {
	key, err := s.cache.BuildKey(ctx, "ledger", "reconcile", "fund", strconv.FormatInt(rec.FundID, 10))
	if err != nil {
		return err
	}
	return s.cache.PutJSON(ctx, key, rec)
}

// Statements returns the materialised statement rows of the fund.
func (s *Service) Statements(ctx context.Context, fundID int64) ([]Statement, error) {
	var out []Statement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetFund(ctx, fundID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListFundStatements(ctx, fundID)
		return err
	})
	return out, err
}

// History returns the balance change log of the fund.
func (s *Service) History(ctx context.Context, fundID int64) ([]BalanceHistory, error) {
	var out []BalanceHistory
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListBalanceHistory(ctx, fundID)
		return err
	})
	return out, err
}

// LogDrift reports a drift error with every computed value.
func (s *Service) LogDrift(err error) {
	var drift *shared.DriftError
	if !errors.As(err, &drift) {
		return
	}
	s.logger.Error("fund reconciliation drift",
		slog.Int64("fund_id", drift.FundID),
		slog.String("stored", drift.Stored.String()),
		slog.String("from_transactions", drift.FromTransactions.String()),
		slog.String("from_operations", drift.FromOperations.String()),
		slog.String("from_statements", drift.FromStatements.String()))
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump ledger cache", slog.Any("error", err))
	}
}
