package instruments

import (
	"context"
	"log/slog"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service exposes instrument queries. Transitions go through the operations
// orchestrator so they share the transaction of the operation they belong to.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService constructs the instrument service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// BookSummary counts the leaves of a book per status.
type BookSummary struct {
	Book     CheckBook           `json:"book"`
	ByStatus map[CheckStatus]int `json:"by_status"`
}

// Summarize returns the book with its leaf count per status.
func (s *Service) Summarize(ctx context.Context, bookID int64) (BookSummary, error) {
	var out BookSummary
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		book, err := tx.GetCheckBook(ctx, bookID)
		if err != nil {
			return err
		}
		leaves, err := tx.ListChecks(ctx, bookID)
		if err != nil {
			return err
		}
		out = BookSummary{Book: book, ByStatus: make(map[CheckStatus]int)}
		for _, c := range leaves {
			out.ByStatus[c.Status]++
		}
		return nil
	})
	return out, err
}

// ListChecks returns the leaves of a book ordered by number.
func (s *Service) ListChecks(ctx context.Context, bookID int64) ([]Check, error) {
	var out []Check
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetCheckBook(ctx, bookID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListChecks(ctx, bookID)
		return err
	})
	return out, err
}

// GetCheck loads one leaf.
func (s *Service) GetCheck(ctx context.Context, id int64) (Check, error) {
	var out Check
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.GetCheck(ctx, id)
		return err
	})
	return out, err
}

// ListCheques returns live received cheques matching f.
func (s *Service) ListCheques(ctx context.Context, f ChequeFilter) ([]ReceivedCheque, error) {
	var out []ReceivedCheque
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListCheques(ctx, f)
		return err
	})
	return out, err
}

// GetCheque loads one received cheque, hiding soft-deleted rows.
func (s *Service) GetCheque(ctx context.Context, id int64) (ReceivedCheque, error) {
	var out ReceivedCheque
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.GetCheque(ctx, id)
		if err == nil && out.DeletedAt != nil {
			return ErrChequeNotFound
		}
		return err
	})
	return out, err
}

// History returns the status change trail of an instrument.
func (s *Service) History(ctx context.Context, kind Kind, id int64) ([]StatusChange, error) {
	var out []StatusChange
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListStatusChanges(ctx, kind, id)
		return err
	})
	return out, err
}
