// Package documents binds globally unique, monotonic document numbers to
// entities of any type.
package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/ordercash/internal/sequence"
	"github.com/odyssey-erp/ordercash/internal/shared"
)

// Number is a document number bound to one entity.
type Number struct {
	ID         int64      `json:"id"`
	EntityType string     `json:"entity_type"`
	EntityID   int64      `json:"entity_id"`
	DocType    string     `json:"doc_type"`
	Value      int64      `json:"document_number"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	DeletedBy  *int64     `json:"deleted_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Settings holds the registry configuration.
type Settings struct {
	StartingNumber int64     `json:"starting_number"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Statistics summarises the registry.
type Statistics struct {
	Current        int64 `json:"current"`
	Next           int64 `json:"next"`
	StartingNumber int64 `json:"starting_number"`
	Total          int   `json:"total"`
	Deleted        int   `json:"deleted"`
}

// AssignInput names the entity receiving a number.
type AssignInput struct {
	EntityType string `json:"entity_type" validate:"required,max=64"`
	EntityID   int64  `json:"entity_id" validate:"required,gt=0"`
	DocType    string `json:"doc_type" validate:"required,max=64"`
}

var (
	// ErrDocumentNotFound indicates missing document number.
	ErrDocumentNotFound = fmt.Errorf("documents: document number %w", shared.ErrNotFound)
	// ErrAlreadyAssigned indicates the entity already holds a live number.
	ErrAlreadyAssigned = fmt.Errorf("%w: entity already has a document number", shared.ErrConflict)
)

// TxRepository exposes transactional registry persistence.
type TxRepository interface {
	sequence.Store
	InsertDocument(ctx context.Context, n Number) (Number, error)
	LockDocument(ctx context.Context, id int64) (Number, error)
	FindLiveDocument(ctx context.Context, entityType string, entityID int64) (Number, error)
	FindLatestDocument(ctx context.Context, entityType string, entityID int64) (Number, error)
	UpdateDocumentDeletion(ctx context.Context, n Number) error
	GetDocumentSettings(ctx context.Context) (Settings, error)
	SaveDocumentSettings(ctx context.Context, s Settings) error
	CountDocuments(ctx context.Context) (total, deleted int, err error)
}

// Assign issues the next number to an entity that holds none.
func Assign(ctx context.Context, st TxRepository, in AssignInput, now time.Time) (Number, error) {
	in.EntityType = strings.TrimSpace(in.EntityType)
	in.DocType = strings.TrimSpace(in.DocType)
	if err := shared.ValidateStruct(in); err != nil {
		return Number{}, err
	}
	if _, err := st.FindLiveDocument(ctx, in.EntityType, in.EntityID); err == nil {
		return Number{}, ErrAlreadyAssigned
	} else if !errors.Is(err, ErrDocumentNotFound) {
		return Number{}, err
	}
	settings, err := st.GetDocumentSettings(ctx)
	if err != nil {
		return Number{}, err
	}
	value, err := sequence.NextAtLeast(ctx, st, sequence.Global(sequence.KindDocument), settings.StartingNumber)
	if err != nil {
		return Number{}, err
	}
	return st.InsertDocument(ctx, Number{
		EntityType: in.EntityType,
		EntityID:   in.EntityID,
		DocType:    in.DocType,
		Value:      value,
		CreatedAt:  now,
	})
}

// Get returns the live number of an entity.
func Get(ctx context.Context, st TxRepository, entityType string, entityID int64) (Number, error) {
	return st.FindLiveDocument(ctx, strings.TrimSpace(entityType), entityID)
}

// Latest returns the most recent number of an entity, deleted or not.
func Latest(ctx context.Context, st TxRepository, entityType string, entityID int64) (Number, error) {
	return st.FindLatestDocument(ctx, strings.TrimSpace(entityType), entityID)
}

// SoftDelete marks a number deleted without releasing it.
func SoftDelete(ctx context.Context, st TxRepository, id, actorID int64, now time.Time) (Number, error) {
	n, err := st.LockDocument(ctx, id)
	if err != nil {
		return Number{}, err
	}
	if n.DeletedAt != nil {
		return Number{}, fmt.Errorf("%w: document number %d already deleted", shared.ErrInvalidTransition, n.Value)
	}
	n.DeletedAt = &now
	n.DeletedBy = &actorID
	if err := st.UpdateDocumentDeletion(ctx, n); err != nil {
		return Number{}, err
	}
	return n, nil
}

// Restore revives a soft-deleted number with its original value.
func Restore(ctx context.Context, st TxRepository, id int64) (Number, error) {
	n, err := st.LockDocument(ctx, id)
	if err != nil {
		return Number{}, err
	}
	if n.DeletedAt == nil {
		return Number{}, fmt.Errorf("%w: document number %d is not deleted", shared.ErrInvalidTransition, n.Value)
	}
	if _, err := st.FindLiveDocument(ctx, n.EntityType, n.EntityID); err == nil {
		return Number{}, ErrAlreadyAssigned
	} else if !errors.Is(err, ErrDocumentNotFound) {
		return Number{}, err
	}
	n.DeletedAt = nil
	n.DeletedBy = nil
	if err := st.UpdateDocumentDeletion(ctx, n); err != nil {
		return Number{}, err
	}
	return n, nil
}

// SetStartingNumber moves the floor of future numbers. It cannot move below
// a number already issued.
func SetStartingNumber(ctx context.Context, st TxRepository, start int64, now time.Time) (Settings, error) {
	if start <= 0 {
		return Settings{}, shared.Validation("starting number must be positive")
	}
	current, err := sequence.Current(ctx, st, sequence.Global(sequence.KindDocument))
	if err != nil {
		return Settings{}, err
	}
	if start <= current {
		return Settings{}, shared.Validation("starting number must exceed last issued number %d", current)
	}
	s := Settings{StartingNumber: start, UpdatedAt: now}
	if err := st.SaveDocumentSettings(ctx, s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Stats reports the counter position and row counts.
func Stats(ctx context.Context, st TxRepository) (Statistics, error) {
	settings, err := st.GetDocumentSettings(ctx)
	if err != nil {
		return Statistics{}, err
	}
	current, err := sequence.Current(ctx, st, sequence.Global(sequence.KindDocument))
	if err != nil {
		return Statistics{}, err
	}
	total, deleted, err := st.CountDocuments(ctx)
	if err != nil {
		return Statistics{}, err
	}
	next := current + 1
	if next < settings.StartingNumber {
		next = settings.StartingNumber
	}
	return Statistics{
		Current:        current,
		Next:           next,
		StartingNumber: settings.StartingNumber,
		Total:          total,
		Deleted:        deleted,
	}, nil
}
