package documents

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/ordercash/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records registry changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes the document registry.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the registry service. audit may be nil.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Assign issues a number to an entity. A second call for the same entity
// fails with shared.ErrConflict.
func (s *Service) Assign(ctx context.Context, in AssignInput) (Number, error) {
	var out Number
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = Assign(ctx, tx, in, s.now())
		return err
	})
	if err != nil {
		return Number{}, err
	}
	s.record(ctx, "document.assign", out)
	return out, nil
}

// Get returns the live number of an entity.
func (s *Service) Get(ctx context.Context, entityType string, entityID int64) (Number, error) {
	var out Number
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = Get(ctx, tx, entityType, entityID)
		return err
	})
	return out, err
}

// SoftDelete marks a number deleted.
func (s *Service) SoftDelete(ctx context.Context, id int64) (Number, error) {
	actor := shared.ActorFromContext(ctx)
	var out Number
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = SoftDelete(ctx, tx, id, actor, s.now())
		return err
	})
	if err != nil {
		return Number{}, err
	}
	s.record(ctx, "document.delete", out)
	return out, nil
}

// Restore revives a soft-deleted number.
func (s *Service) Restore(ctx context.Context, id int64) (Number, error) {
	var out Number
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = Restore(ctx, tx, id)
		return err
	})
	if err != nil {
		return Number{}, err
	}
	s.record(ctx, "document.restore", out)
	return out, nil
}

// SetStartingNumber moves the floor of future numbers.
func (s *Service) SetStartingNumber(ctx context.Context, start int64) (Settings, error) {
	var out Settings
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = SetStartingNumber(ctx, tx, start, s.now())
		return err
	})
	if err != nil {
		return Settings{}, err
	}
	s.logger.Info("document starting number changed", slog.Int64("starting_number", out.StartingNumber))
	return out, nil
}

// Statistics reports counter position and row counts.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	var out Statistics
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = Stats(ctx, tx)
		return err
	})
	return out, err
}

func (s *Service) record(ctx context.Context, action string, n Number) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "document_number",
		EntityID: strconv.FormatInt(n.ID, 10),
		Meta: map[string]any{
			"entity_type":     n.EntityType,
			"entity_id":       n.EntityID,
			"document_number": n.Value,
		},
		At: s.now(),
	})
	if err != nil {
		s.logger.Warn("audit document change", slog.String("action", action), slog.Any("error", err))
	}
}
