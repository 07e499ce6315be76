package memstore

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/ordercash/internal/instruments"
	"github.com/odyssey-erp/ordercash/internal/shared"
)

func (x *tx) InsertCheckBook(_ context.Context, b instruments.CheckBook) (instruments.CheckBook, error) {
	for _, existing := range x.t.books {
		if existing.FundID == b.FundID && existing.Serial == b.Serial {
			return instruments.CheckBook{}, fmt.Errorf("%w: check_books_fund_serial_key", shared.ErrConflict)
		}
	}
	b.ID = x.t.id()
	x.t.books[b.ID] = b
	return b, nil
}

func (x *tx) GetCheckBook(_ context.Context, id int64) (instruments.CheckBook, error) {
	b, ok := x.t.books[id]
	if !ok {
		return instruments.CheckBook{}, instruments.ErrCheckBookNotFound
	}
	return b, nil
}

func (x *tx) ListCheckBooks(_ context.Context, fundID int64) ([]instruments.CheckBook, error) {
	return sorted(x.t.books, func(b instruments.CheckBook) bool { return fundID == 0 || b.FundID == fundID }), nil
}

func (x *tx) InsertChecks(_ context.Context, leaves []instruments.Check) error {
	for _, c := range leaves {
		c.ID = x.t.id()
		x.t.checks[c.ID] = c
	}
	return nil
}

func (x *tx) GetCheck(_ context.Context, id int64) (instruments.Check, error) {
	c, ok := x.t.checks[id]
	if !ok {
		return instruments.Check{}, instruments.ErrCheckNotFound
	}
	return c, nil
}

func (x *tx) LockCheck(ctx context.Context, id int64) (instruments.Check, error) {
	return x.GetCheck(ctx, id)
}

func (x *tx) LockCheckByNumber(_ context.Context, bookID, number int64) (instruments.Check, error) {
	for _, c := range x.t.checks {
		if c.CheckBookID == bookID && c.Number == number {
			return c, nil
		}
	}
	return instruments.Check{}, instruments.ErrCheckNotFound
}

func (x *tx) UpdateCheck(_ context.Context, c instruments.Check) error {
	if _, ok := x.t.checks[c.ID]; !ok {
		return instruments.ErrCheckNotFound
	}
	x.t.checks[c.ID] = c
	return nil
}

func (x *tx) ListChecks(_ context.Context, bookID int64) ([]instruments.Check, error) {
	return sorted(x.t.checks, func(c instruments.Check) bool { return c.CheckBookID == bookID }), nil
}

func (x *tx) InsertCheque(_ context.Context, c instruments.ReceivedCheque) (instruments.ReceivedCheque, error) {
	for _, existing := range x.t.cheques {
		if existing.SayadiID == c.SayadiID {
			return instruments.ReceivedCheque{}, instruments.ErrDuplicateSayadi
		}
	}
	c.ID = x.t.id()
	c.UpdatedAt = c.CreatedAt
	c.RecipientName = ""
	x.t.cheques[c.ID] = c
	return c, nil
}

func (x *tx) GetCheque(_ context.Context, id int64) (instruments.ReceivedCheque, error) {
	c, ok := x.t.cheques[id]
	if !ok {
		return instruments.ReceivedCheque{}, instruments.ErrChequeNotFound
	}
	return c, nil
}

func (x *tx) LockCheque(ctx context.Context, id int64) (instruments.ReceivedCheque, error) {
	return x.GetCheque(ctx, id)
}

func (x *tx) GetChequeBySayadi(_ context.Context, sayadiID string) (instruments.ReceivedCheque, error) {
	for _, c := range x.t.cheques {
		if c.SayadiID == sayadiID {
			return c, nil
		}
	}
	return instruments.ReceivedCheque{}, instruments.ErrChequeNotFound
}

func (x *tx) UpdateCheque(_ context.Context, c instruments.ReceivedCheque) error {
	if _, ok := x.t.cheques[c.ID]; !ok {
		return instruments.ErrChequeNotFound
	}
	x.t.cheques[c.ID] = c
	return nil
}

func (x *tx) ListCheques(_ context.Context, f instruments.ChequeFilter) ([]instruments.ReceivedCheque, error) {
	return sorted(x.t.cheques, func(c instruments.ReceivedCheque) bool {
		switch {
		case c.DeletedAt != nil:
			return false
		case f.Status != "" && c.Status != f.Status:
			return false
		case f.CustomerID != 0 && c.CustomerID != f.CustomerID:
			return false
		case f.DueBefore != nil && c.DueDate.After(*f.DueBefore):
			return false
		}
		return true
	}), nil
}

func (x *tx) InsertStatusChange(_ context.Context, sc instruments.StatusChange) error {
	sc.ID = x.t.id()
	x.t.changes = append(x.t.changes, sc)
	return nil
}

func (x *tx) ListStatusChanges(_ context.Context, kind instruments.Kind, instrumentID int64) ([]instruments.StatusChange, error) {
	var out []instruments.StatusChange
	for _, sc := range x.t.changes {
		if sc.Kind == kind && sc.InstrumentID == instrumentID {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (x *tx) InsertInstrumentLink(_ context.Context, l instruments.Link) (instruments.Link, error) {
	l.ID = x.t.id()
	x.t.links[l.ID] = l
	return l, nil
}

func (x *tx) ListInstrumentLinks(_ context.Context, operationID int64) ([]instruments.Link, error) {
	return sorted(x.t.links, func(l instruments.Link) bool { return l.OperationID == operationID }), nil
}

func (x *tx) ListInstrumentLinksByInstrument(_ context.Context, kind instruments.Kind, instrumentID int64) ([]instruments.Link, error) {
	return sorted(x.t.links, func(l instruments.Link) bool {
		return l.Kind == kind && l.InstrumentID == instrumentID
	}), nil
}

func (x *tx) UpdateInstrumentLink(_ context.Context, l instruments.Link) error {
	if _, ok := x.t.links[l.ID]; ok {
		x.t.links[l.ID] = l
	}
	return nil
}

func (x *tx) DeleteInstrumentLinks(_ context.Context, operationID int64) error {
	for id, l := range x.t.links {
		if l.OperationID == operationID {
			delete(x.t.links, id)
		}
	}
	return nil
}
