package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/ordercash/internal/accounting/reports"
	"github.com/odyssey-erp/ordercash/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes chart maintenance, standalone postings and reports.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	logger   *slog.Logger
	currency string
	now      func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger, currency string) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, currency: currency, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// InitChart creates the standard chart of accounts.
func (s *Service) InitChart(ctx context.Context) ([]Account, error) {
	var created []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = InitChart(ctx, tx, s.currency)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(created) > 0 {
		s.logger.Info("standard chart initialised", slog.Int("accounts", len(created)))
	}
	return created, nil
}

// OpenFiscalYear registers an active fiscal year.
func (s *Service) OpenFiscalYear(ctx context.Context, year int, start, end time.Time) (FiscalYear, error) {
	if year <= 0 || end.Before(start) {
		return FiscalYear{}, shared.Validation("invalid fiscal year bounds")
	}
	var fy FiscalYear
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.ListFiscalYears(ctx)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.Year == year || (!start.After(e.EndDate) && !end.Before(e.StartDate)) {
				return ErrFiscalYearOverlap
			}
		}
		fy, err = tx.InsertFiscalYear(ctx, FiscalYear{Year: year, StartDate: truncateDay(start), EndDate: truncateDay(end), IsActive: true})
		return err
	})
	return fy, err
}

// ListAccounts returns the chart ordered by code.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccounts(ctx)
		return err
	})
	return accounts, err
}

// ResolveAccount returns the account of role, creating it if needed.
func (s *Service) ResolveAccount(ctx context.Context, role Role) (Account, error) {
	var acc Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		acc, err = ResolveOrCreate(ctx, tx, LedgerContext{Currency: s.currency, Now: s.now()}, role)
		return err
	})
	return acc, err
}

// Post writes a standalone voucher for events that have no financial
// operation of their own, such as invoices raised by the order workflow.
func (s *Service) Post(ctx context.Context, actorID int64, req PostingRequest) (Voucher, error) {
	var voucher Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lc, err := NewLedgerContext(ctx, tx, req.Date, s.currency, actorID, s.now())
		if err != nil {
			return err
		}
		voucher, err = Post(ctx, tx, lc, req)
		return err
	})
	if err != nil {
		s.logPostingFailure(req, err)
		return Voucher{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "voucher.post",
			Entity:   "voucher",
			EntityID: fmt.Sprintf("%d", voucher.ID),
			Meta: map[string]any{
				"number":      voucher.Number,
				"event":       string(req.Event),
				"source_type": req.SourceType,
				"source_id":   req.SourceID.String(),
			},
			At: s.now(),
		})
	}
	return voucher, nil
}

func (s *Service) logPostingFailure(req PostingRequest, err error) {
	if !isInvariantBreach(err) {
		return
	}
	s.logger.Error("unbalanced posting",
		slog.String("event", string(req.Event)),
		slog.String("amount", req.Amount.String()),
		slog.String("source_id", req.SourceID.String()),
		slog.Any("error", err))
}

// TrialBalance summarises voucher totals per account for a fiscal year.
func (s *Service) TrialBalance(ctx context.Context, fiscalYearID int64) (reports.TrialBalance, error) {
	balances, err := s.accountTotals(ctx, fiscalYearID)
	if err != nil {
		return reports.TrialBalance{}, err
	}
	return reports.BuildTrialBalance(balances), nil
}

// ProfitAndLoss summarises revenue and expense accounts for a fiscal year.
func (s *Service) ProfitAndLoss(ctx context.Context, fiscalYearID int64) (reports.ProfitAndLoss, error) {
	balances, err := s.accountTotals(ctx, fiscalYearID)
	if err != nil {
		return reports.ProfitAndLoss{}, err
	}
	return reports.BuildProfitAndLoss(balances), nil
}

func (s *Service) accountTotals(ctx context.Context, fiscalYearID int64) ([]reports.AccountBalance, error) {
	var totals []AccountBalance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		totals, err = tx.ListAccountTotals(ctx, fiscalYearID)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]reports.AccountBalance, 0, len(totals))
	for _, t := range totals {
		out = append(out, reports.AccountBalance{
			Code:   t.Account.Code,
			Name:   t.Account.Name,
			Type:   string(t.Account.Type),
			Debit:  t.Debit,
			Credit: t.Credit,
		})
	}
	return out, nil
}

func isInvariantBreach(err error) bool {
	return err != nil && errors.Is(err, shared.ErrUnbalancedPosting)
}
