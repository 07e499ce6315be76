package memstore

import (
	"context"
	"slices"

	"github.com/odyssey-erp/ordercash/internal/counterparty"
	"github.com/odyssey-erp/ordercash/internal/documents"
	"github.com/odyssey-erp/ordercash/internal/operations"
)

func (x *tx) InsertCustomer(_ context.Context, c counterparty.Customer) (counterparty.Customer, error) {
	c.ID = x.t.id()
	c.IsActive = true
	c.CreatedAt = x.now()
	x.t.customers[c.ID] = c
	return c, nil
}

func (x *tx) GetCustomer(_ context.Context, id int64) (counterparty.Customer, error) {
	c, ok := x.t.customers[id]
	if !ok {
		return counterparty.Customer{}, counterparty.ErrCustomerNotFound
	}
	return c, nil
}

func (x *tx) ListCustomers(_ context.Context) ([]counterparty.Customer, error) {
	return sorted(x.t.customers, nil), nil
}

func (x *tx) ListCustomerEntries(_ context.Context, customerID int64) ([]counterparty.Entry, error) {
	ops := sorted(x.t.operations, func(op operations.Operation) bool {
		return op.CustomerID != nil && *op.CustomerID == customerID &&
			op.Status == operations.StatusConfirmed && op.DeletedAt == nil
	})
	slices.SortStableFunc(ops, func(a, b operations.Operation) int { return a.Date.Compare(b.Date) })
	out := make([]counterparty.Entry, 0, len(ops))
	for _, op := range ops {
		out = append(out, counterparty.Entry{OperationID: op.ID, Type: op.Type, Amount: op.Amount, Date: op.Date})
	}
	return out, nil
}

func (x *tx) GetCustomerBalance(_ context.Context, customerID int64) (counterparty.Balance, bool, error) {
	b, ok := x.t.balances[customerID]
	return b, ok, nil
}

func (x *tx) UpsertCustomerBalance(_ context.Context, b counterparty.Balance) error {
	x.t.balances[b.CustomerID] = b
	return nil
}

func (x *tx) InsertDocument(_ context.Context, n documents.Number) (documents.Number, error) {
	for _, existing := range x.t.documents {
		if existing.DeletedAt == nil && existing.EntityType == n.EntityType && existing.EntityID == n.EntityID {
			return documents.Number{}, documents.ErrAlreadyAssigned
		}
	}
	n.ID = x.t.id()
	x.t.documents[n.ID] = n
	return n, nil
}

func (x *tx) LockDocument(_ context.Context, id int64) (documents.Number, error) {
	n, ok := x.t.documents[id]
	if !ok {
		return documents.Number{}, documents.ErrDocumentNotFound
	}
	return n, nil
}

func (x *tx) FindLiveDocument(_ context.Context, entityType string, entityID int64) (documents.Number, error) {
	for _, n := range x.t.documents {
		if n.DeletedAt == nil && n.EntityType == entityType && n.EntityID == entityID {
			return n, nil
		}
	}
	return documents.Number{}, documents.ErrDocumentNotFound
}

func (x *tx) FindLatestDocument(_ context.Context, entityType string, entityID int64) (documents.Number, error) {
	matches := sorted(x.t.documents, func(n documents.Number) bool {
		return n.EntityType == entityType && n.EntityID == entityID
	})
	if len(matches) == 0 {
		return documents.Number{}, documents.ErrDocumentNotFound
	}
	return matches[len(matches)-1], nil
}

func (x *tx) UpdateDocumentDeletion(_ context.Context, n documents.Number) error {
	stored, ok := x.t.documents[n.ID]
	if !ok {
		return documents.ErrDocumentNotFound
	}
	stored.DeletedAt = n.DeletedAt
	stored.DeletedBy = n.DeletedBy
	x.t.documents[n.ID] = stored
	return nil
}

func (x *tx) GetDocumentSettings(_ context.Context) (documents.Settings, error) {
	if x.t.settings == nil {
		return documents.Settings{StartingNumber: 1}, nil
	}
	return *x.t.settings, nil
}

func (x *tx) SaveDocumentSettings(_ context.Context, s documents.Settings) error {
	x.t.settings = &s
	return nil
}

func (x *tx) CountDocuments(_ context.Context) (int, int, error) {
	deleted := 0
	for _, n := range x.t.documents {
		if n.DeletedAt != nil {
			deleted++
		}
	}
	return len(x.t.documents), deleted, nil
}

func (x *tx) InsertOperation(_ context.Context, op operations.Operation) (operations.Operation, error) {
	op.ID = x.t.id()
	op.UpdatedAt = op.CreatedAt
	x.t.operations[op.ID] = op
	return op, nil
}

func (x *tx) GetOperation(_ context.Context, id int64) (operations.Operation, error) {
	op, ok := x.t.operations[id]
	if !ok {
		return operations.Operation{}, operations.ErrOperationNotFound
	}
	return op, nil
}

func (x *tx) LockOperation(ctx context.Context, id int64) (operations.Operation, error) {
	return x.GetOperation(ctx, id)
}

func (x *tx) UpdateOperation(_ context.Context, op operations.Operation) error {
	stored, ok := x.t.operations[op.ID]
	if !ok {
		return operations.ErrOperationNotFound
	}
	stored.Status = op.Status
	stored.DeletedAt = op.DeletedAt
	stored.ConfirmedAt = op.ConfirmedAt
	stored.UpdatedAt = op.UpdatedAt
	x.t.operations[op.ID] = stored
	return nil
}

func (x *tx) DeleteOperation(_ context.Context, id int64) error {
	if _, ok := x.t.operations[id]; !ok {
		return operations.ErrOperationNotFound
	}
	delete(x.t.operations, id)
	return nil
}

func (x *tx) ListOperations(_ context.Context, f operations.Filter) ([]operations.Operation, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	out := sorted(x.t.operations, func(op operations.Operation) bool {
		switch {
		case f.Type != "" && op.Type != f.Type:
			return false
		case f.Status != "" && op.Status != f.Status:
			return false
		case f.CustomerID != 0 && (op.CustomerID == nil || *op.CustomerID != f.CustomerID):
			return false
		case f.From != nil && op.Date.Before(*f.From):
			return false
		case f.To != nil && op.Date.After(*f.To):
			return false
		case !f.IncludeDeleted && op.DeletedAt != nil:
			return false
		}
		return true
	})
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b operations.Operation) int { return b.Date.Compare(a.Date) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (x *tx) InsertPettyCash(_ context.Context, p operations.PettyCashOperation) (operations.PettyCashOperation, error) {
	p.ID = x.t.id()
	x.t.petty[p.ID] = p
	return p, nil
}

func (x *tx) LockPettyCash(_ context.Context, id int64) (operations.PettyCashOperation, error) {
	p, ok := x.t.petty[id]
	if !ok {
		return operations.PettyCashOperation{}, operations.ErrPettyCashNotFound
	}
	return p, nil
}

func (x *tx) UpdatePettyCash(_ context.Context, p operations.PettyCashOperation) error {
	stored, ok := x.t.petty[p.ID]
	if !ok {
		return operations.ErrPettyCashNotFound
	}
	stored.DeletedAt = p.DeletedAt
	x.t.petty[p.ID] = stored
	return nil
}

func (x *tx) ListPettyCash(_ context.Context, fundID int64) ([]operations.PettyCashOperation, error) {
	out := sorted(x.t.petty, func(p operations.PettyCashOperation) bool {
		return p.DeletedAt == nil && (p.PettyFundID == fundID || (p.SourceFundID != nil && *p.SourceFundID == fundID))
	})
	slices.SortStableFunc(out, func(a, b operations.PettyCashOperation) int { return a.Date.Compare(b.Date) })
	return out, nil
}
