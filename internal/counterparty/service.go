package counterparty

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ordercash/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service manages customers and recomputes their balances.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the counterparty service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateCustomer registers a counterparty.
func (s *Service) CreateCustomer(ctx context.Context, in CustomerInput) (Customer, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Customer{}, err
	}
	var out Customer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.InsertCustomer(ctx, Customer{
			Name:  strings.TrimSpace(in.Name),
			Phone: shared.NormalizeDigits(strings.TrimSpace(in.Phone)),
		})
		return err
	})
	return out, err
}

// GetCustomer loads one customer.
func (s *Service) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var out Customer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.GetCustomer(ctx, id)
		return err
	})
	return out, err
}

// Balance returns the stored balance, or a zero balance when none was
// computed yet.
func (s *Service) Balance(ctx context.Context, customerID int64) (Balance, error) {
	var out Balance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetCustomer(ctx, customerID); err != nil {
			return err
		}
		b, ok, err := tx.GetCustomerBalance(ctx, customerID)
		if err != nil {
			return err
		}
		if !ok {
			b = Balance{CustomerID: customerID, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero, Current: decimal.Zero}
		}
		out = b
		return nil
	})
	return out, err
}

// Recompute rebuilds one customer balance.
func (s *Service) Recompute(ctx context.Context, customerID int64) (Balance, error) {
	var out Balance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = Recompute(ctx, tx, customerID, s.now())
		return err
	})
	return out, err
}

// RecomputeAll rebuilds every customer balance, one transaction per
// customer, and returns how many were rebuilt.
func (s *Service) RecomputeAll(ctx context.Context) (int, error) {
	var customers []Customer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		customers, err = tx.ListCustomers(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	done := 0
	for _, c := range customers {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if _, err := s.Recompute(ctx, c.ID); err != nil {
			s.logger.Error("recompute customer balance", slog.Int64("customer_id", c.ID), slog.Any("error", err))
			return done, err
		}
		done++
	}
	return done, nil
}
