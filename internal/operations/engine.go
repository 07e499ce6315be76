package operations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/ordercash/internal/accounting"
	"github.com/odyssey-erp/ordercash/internal/counterparty"
	"github.com/odyssey-erp/ordercash/internal/documents"
	"github.com/odyssey-erp/ordercash/internal/funds"
	"github.com/odyssey-erp/ordercash/internal/instruments"
	"github.com/odyssey-erp/ordercash/internal/sequence"
	"github.com/odyssey-erp/ordercash/internal/shared"
)

// work is one unit of work bound to a transaction. It remembers the funds
// and customers it touched so settle can recompute them once at the end.
type work struct {
	ctx       context.Context
	tx        TxRepository
	currency  string
	actor     int64
	now       time.Time
	funds     map[int64]struct{}
	customers map[int64]struct{}
}

func newWork(ctx context.Context, tx TxRepository, currency string, now time.Time) *work {
	return &work{
		ctx:       ctx,
		tx:        tx,
		currency:  currency,
		actor:     shared.ActorFromContext(ctx),
		now:       now,
		funds:     make(map[int64]struct{}),
		customers: make(map[int64]struct{}),
	}
}

func (w *work) today() time.Time {
	y, m, d := w.now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (w *work) meta(op *Operation) instruments.Meta {
	m := instruments.Meta{ActorID: w.actor, At: w.now}
	if op != nil {
		id := op.ID
		m.OperationID = &id
	}
	return m
}

func (w *work) touchFund(id *int64) {
	if id != nil {
		w.funds[*id] = struct{}{}
	}
}

func (w *work) touchCustomer(id *int64) {
	if id != nil {
		w.customers[*id] = struct{}{}
	}
}

func sortedKeys(m map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// settle rebuilds every touched fund and customer balance. A fund whose
// strategies disagree aborts the whole unit.
func (w *work) settle() error {
	for _, id := range sortedKeys(w.funds) {
		if _, err := funds.RecalculateBalance(w.ctx, w.tx.Funds(), id, w.now); err != nil {
			return err
		}
	}
	for _, id := range sortedKeys(w.customers) {
		if _, err := counterparty.Recompute(w.ctx, w.tx.Balances(), id, w.now); err != nil {
			return err
		}
	}
	return nil
}

func (w *work) bankFund(id *int64) (*funds.Fund, error) {
	if id == nil {
		return nil, nil
	}
	f, err := w.tx.Funds().GetFund(w.ctx, *id)
	if err != nil {
		return nil, err
	}
	if f.Kind != funds.KindBank {
		return nil, shared.Validation("fund %d is not a bank account", f.ID)
	}
	if !f.IsActive {
		return nil, funds.ErrFundInactive
	}
	return &f, nil
}

func (w *work) cashFund(id *int64) (int64, error) {
	if id != nil {
		f, err := w.tx.Funds().GetFund(w.ctx, *id)
		if err != nil {
			return 0, err
		}
		if f.Kind != funds.KindCash {
			return 0, shared.Validation("fund %d is not a cash register", f.ID)
		}
		return f.ID, nil
	}
	f, err := w.tx.Funds().FindDefaultFund(w.ctx, funds.KindCash)
	if errors.Is(err, shared.ErrNotFound) {
		return 0, shared.Validation("no active cash fund")
	}
	if err != nil {
		return 0, err
	}
	return f.ID, nil
}

func requireBank(bank *funds.Fund) (int64, error) {
	if bank == nil {
		return 0, shared.Validation("bank fund required")
	}
	return bank.ID, nil
}

// resolveFunds picks the fund the event moves and the counter fund that
// moves the other way.
func (w *work) resolveFunds(t shared.OperationType, method shared.PaymentMethod, cashID *int64, bank *funds.Fund) (*int64, *int64, error) {
	if _, moves := funds.Classify(t); !moves {
		return nil, nil, nil
	}
	switch t {
	case shared.OpReceiveFromBank, shared.OpCashWithdrawal, shared.OpPayToBank:
		bankID, err := requireBank(bank)
		if err != nil {
			return nil, nil, err
		}
		cash, err := w.cashFund(cashID)
		if err != nil {
			return nil, nil, err
		}
		return &cash, &bankID, nil
	}
	switch {
	case method.UsesInstrument():
		return nil, nil, nil
	case method.UsesBank():
		bankID, err := requireBank(bank)
		if err != nil {
			return nil, nil, err
		}
		return &bankID, nil, nil
	}
	cash, err := w.cashFund(cashID)
	if err != nil {
		return nil, nil, err
	}
	return &cash, nil, nil
}

// create validates and stores a DRAFT operation with its number and document.
func (w *work) create(in OperationInput) (Operation, error) {
	if in.PaymentMethod == "" {
		in.PaymentMethod = shared.PaymentCash
	}
	if err := shared.ValidateStruct(in); err != nil {
		return Operation{}, err
	}
	if err := shared.ValidateMoney("amount", in.Amount); err != nil {
		return Operation{}, err
	}
	if !in.Type.Valid() {
		return Operation{}, shared.Validation("unknown operation type %q", in.Type)
	}
	if !in.PaymentMethod.Valid() {
		return Operation{}, shared.Validation("unknown payment method %q", in.PaymentMethod)
	}
	if in.Type.RequiresCustomer() && in.CustomerID == nil {
		return Operation{}, shared.Validation("%s requires a customer", in.Type)
	}
	if in.CustomerID != nil {
		if _, err := w.tx.Balances().GetCustomer(w.ctx, *in.CustomerID); err != nil {
			return Operation{}, err
		}
	}
	bank, err := w.bankFund(in.BankFundID)
	if err != nil {
		return Operation{}, err
	}
	date := truncateDay(in.Date)
	op := Operation{
		SourceID:      uuid.New(),
		Type:          in.Type,
		Status:        StatusDraft,
		Amount:        in.Amount,
		Date:          date,
		PaymentMethod: in.PaymentMethod,
		CustomerID:    in.CustomerID,
		Description:   strings.TrimSpace(in.Description),
		CreatedBy:     w.actor,
		CreatedAt:     w.now,
		UpdatedAt:     w.now,
	}
	if bank != nil {
		op.BankFundID = &bank.ID
	}
	if op.FundID, op.CounterFundID, err = w.resolveFunds(in.Type, in.PaymentMethod, in.FundID, bank); err != nil {
		return Operation{}, err
	}
	if _, _, err := accounting.ResolveRoles(op.Type, w.parties(op, "", bank)); err != nil {
		return Operation{}, err
	}
	if op.Number, err = sequence.NextDaily(w.ctx, w.tx, sequence.KindOperation, "", date); err != nil {
		return Operation{}, err
	}
	if op, err = w.tx.InsertOperation(w.ctx, op); err != nil {
		return Operation{}, err
	}
	if _, err := documents.Assign(w.ctx, w.tx.Documents(), documents.AssignInput{
		EntityType: SourceOperation,
		EntityID:   op.ID,
		DocType:    string(op.Type),
	}, w.now); err != nil {
		return Operation{}, err
	}
	return op, nil
}

func (w *work) parties(op Operation, customerName string, bank *funds.Fund) accounting.Parties {
	p := accounting.Parties{PaymentMethod: op.PaymentMethod, CustomerName: customerName}
	if op.CustomerID != nil {
		p.CustomerID = *op.CustomerID
	}
	if bank != nil {
		p.BankName = bank.BankName
		p.BankAccountNumber = bank.AccountNumber
		if p.BankName == "" {
			p.BankName = bank.Name
		}
	}
	return p
}

func (w *work) loadParties(op Operation) (accounting.Parties, error) {
	name := ""
	if op.CustomerID != nil {
		c, err := w.tx.Balances().GetCustomer(w.ctx, *op.CustomerID)
		if err != nil {
			return accounting.Parties{}, err
		}
		name = c.Name
	}
	var bank *funds.Fund
	if op.BankFundID != nil {
		f, err := w.tx.Funds().GetFund(w.ctx, *op.BankFundID)
		if err != nil {
			return accounting.Parties{}, err
		}
		bank = &f
	}
	return w.parties(op, name, bank), nil
}

func movementOf(op Operation) funds.Movement {
	return funds.Movement{
		RefType:       funds.RefFinancialOperation,
		RefID:         op.ID,
		Number:        op.Number,
		Type:          op.Type,
		FundID:        op.FundID,
		CounterFundID: op.CounterFundID,
		Amount:        op.Amount,
		Date:          op.Date,
	}
}

// moveFunds appends one transaction per leg of m, flipped when reverse is set.
func (w *work) moveFunds(m funds.Movement, reverse bool, description string) error {
	legs := m.Legs()
	ids := make([]int64, 0, len(legs))
	for id := range legs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		dir := legs[id]
		if reverse {
			dir = dir.Opposite()
		}
		if _, err := funds.AddTransaction(w.ctx, w.tx.Funds(), funds.TransactionInput{
			FundID:      id,
			Direction:   dir,
			Amount:      m.Amount,
			Date:        m.Date,
			Description: description,
			RefType:     m.RefType,
			RefID:       m.RefID,
		}, w.now); err != nil {
			return err
		}
		fundID := id
		w.touchFund(&fundID)
	}
	return nil
}

func (w *work) ledgerContext(date time.Time) (accounting.LedgerContext, error) {
	return accounting.NewLedgerContext(w.ctx, w.tx.Ledger(), date, w.currency, w.actor, w.now)
}

// confirm applies the effects of op: instruments first when re-confirming,
// then the voucher, the fund legs and the customer.
func (w *work) confirm(op Operation) (Outcome, error) {
	wasCancelled := op.Status == StatusCancelled
	op, err := Transition(op, StatusConfirmed, w.now)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{}
	if wasCancelled {
		if out.Instruments, err = instruments.ReapplyLinks(w.ctx, w.tx.Instruments(), op.ID, w.meta(&op)); err != nil {
			return Outcome{}, err
		}
		if err := w.restoreDocument(op); err != nil {
			return Outcome{}, err
		}
	}
	parties, err := w.loadParties(op)
	if err != nil {
		return Outcome{}, err
	}
	lc, err := w.ledgerContext(op.Date)
	if err != nil {
		return Outcome{}, err
	}
	voucher, err := accounting.Post(w.ctx, w.tx.Ledger(), lc, accounting.PostingRequest{
		Event:       op.Type,
		Amount:      op.Amount,
		Date:        op.Date,
		Parties:     parties,
		Description: op.Description,
		Reference:   op.Number,
		SourceType:  SourceOperation,
		SourceID:    op.SourceID,
	})
	if err != nil {
		return Outcome{}, err
	}
	if err := w.tx.UpdateOperation(w.ctx, op); err != nil {
		return Outcome{}, err
	}
	if err := w.moveFunds(movementOf(op), false, "Operation "+op.Number); err != nil {
		return Outcome{}, err
	}
	w.touchCustomer(op.CustomerID)
	out.Operation = op
	out.VoucherID = voucher.ID
	return out, nil
}

// cancel soft-deletes op and compensates every effect it had.
func (w *work) cancel(op Operation) (Outcome, error) {
	wasConfirmed := op.Status == StatusConfirmed
	op, err := Transition(op, StatusCancelled, w.now)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{}
	if wasConfirmed {
		if out.Instruments, err = instruments.RevertLinks(w.ctx, w.tx.Instruments(), op.ID, w.meta(&op)); err != nil {
			return Outcome{}, err
		}
		lc, err := w.ledgerContext(op.Date)
		if err != nil {
			return Outcome{}, err
		}
		v, _, err := accounting.Reverse(w.ctx, w.tx.Ledger(), lc, SourceOperation, op.SourceID, op.Date, "Cancellation of operation "+op.Number)
		if err != nil {
			return Outcome{}, err
		}
		out.VoucherID = v.ID
		if err := w.moveFunds(movementOf(op), true, "Cancellation of operation "+op.Number); err != nil {
			return Outcome{}, err
		}
		w.touchCustomer(op.CustomerID)
	}
	if err := w.tx.UpdateOperation(w.ctx, op); err != nil {
		return Outcome{}, err
	}
	if err := w.retireDocument(op); err != nil {
		return Outcome{}, err
	}
	out.Operation = op
	return out, nil
}

// remove purges op with everything derived from it.
func (w *work) remove(op Operation) (Outcome, error) {
	out := Outcome{Operation: op}
	active, err := w.activeLinks(op.ID)
	if err != nil {
		return Outcome{}, err
	}
	if err := instruments.DeleteLinks(w.ctx, w.tx.Instruments(), op.ID, w.meta(&op)); err != nil {
		return Outcome{}, err
	}
	out.Instruments = active
	if _, err := accounting.DeleteBySource(w.ctx, w.tx.Ledger(), SourceOperation, op.SourceID); err != nil {
		return Outcome{}, err
	}
	fundIDs, err := funds.RemoveTransactions(w.ctx, w.tx.Funds(), funds.RefFinancialOperation, op.ID)
	if err != nil {
		return Outcome{}, err
	}
	for i := range fundIDs {
		w.touchFund(&fundIDs[i])
	}
	w.touchFund(op.FundID)
	w.touchFund(op.CounterFundID)
	w.touchCustomer(op.CustomerID)
	if err := w.retireDocument(op); err != nil {
		return Outcome{}, err
	}
	if err := w.tx.DeleteOperation(w.ctx, op.ID); err != nil {
		return Outcome{}, err
	}
	return out, nil
}

func (w *work) activeLinks(opID int64) (int, error) {
	links, err := w.tx.Instruments().ListInstrumentLinks(w.ctx, opID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, l := range links {
		if l.RevertedAt == nil {
			n++
		}
	}
	return n, nil
}

func (w *work) retireDocument(op Operation) error {
	n, err := documents.Get(w.ctx, w.tx.Documents(), SourceOperation, op.ID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = documents.SoftDelete(w.ctx, w.tx.Documents(), n.ID, w.actor, w.now)
	return err
}

func (w *work) restoreDocument(op Operation) error {
	n, err := documents.Latest(w.ctx, w.tx.Documents(), SourceOperation, op.ID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	if err != nil || n.DeletedAt == nil {
		return err
	}
	_, err = documents.Restore(w.ctx, w.tx.Documents(), n.ID)
	return err
}

// derived creates and confirms an operation caused by an instrument event.
func (w *work) derived(in OperationInput) (Operation, error) {
	op, err := w.create(in)
	if err != nil {
		return Operation{}, err
	}
	out, err := w.confirm(op)
	if err != nil {
		return Operation{}, err
	}
	return out.Operation, nil
}

func (w *work) createPetty(in PettyCashInput) (PettyCashOperation, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return PettyCashOperation{}, err
	}
	if err := shared.ValidateMoney("amount", in.Amount); err != nil {
		return PettyCashOperation{}, err
	}
	petty, err := w.tx.Funds().GetFund(w.ctx, in.PettyFundID)
	if err != nil {
		return PettyCashOperation{}, err
	}
	if petty.Kind != funds.KindPettyCash {
		return PettyCashOperation{}, shared.Validation("fund %d is not a petty cash box", petty.ID)
	}
	parties := accounting.Parties{}
	var sourceID *int64
	if in.Direction == PettyAdd {
		source, err := w.tx.Funds().GetFund(w.ctx, *in.SourceFundID)
		if err != nil {
			return PettyCashOperation{}, err
		}
		switch source.Kind {
		case funds.KindBank:
			parties.SourceIsBank = true
			parties.BankName = source.BankName
			parties.BankAccountNumber = source.AccountNumber
		case funds.KindCash:
		default:
			return PettyCashOperation{}, shared.Validation("petty cash can only be funded from cash or bank")
		}
		sourceID = &source.ID
	}
	date := truncateDay(in.Date)
	p := PettyCashOperation{
		SourceID:     uuid.New(),
		Direction:    in.Direction,
		PettyFundID:  petty.ID,
		SourceFundID: sourceID,
		Amount:       in.Amount,
		Date:         date,
		Reason:       strings.TrimSpace(in.Reason),
		CreatedBy:    w.actor,
		CreatedAt:    w.now,
	}
	if p.Number, err = sequence.NextDaily(w.ctx, w.tx, sequence.KindPettyCash, "PC", date); err != nil {
		return PettyCashOperation{}, err
	}
	if p, err = w.tx.InsertPettyCash(w.ctx, p); err != nil {
		return PettyCashOperation{}, err
	}
	lc, err := w.ledgerContext(date)
	if err != nil {
		return PettyCashOperation{}, err
	}
	if _, err := accounting.Post(w.ctx, w.tx.Ledger(), lc, accounting.PostingRequest{
		Event:       in.Direction.EventType(),
		Amount:      p.Amount,
		Date:        date,
		Parties:     parties,
		Description: p.Reason,
		Reference:   p.Number,
		SourceType:  SourcePettyCash,
		SourceID:    p.SourceID,
	}); err != nil {
		return PettyCashOperation{}, err
	}
	if err := w.moveFunds(pettyMovement(p), false, "Petty cash "+p.Number); err != nil {
		return PettyCashOperation{}, err
	}
	return p, nil
}

func (w *work) deletePetty(id int64) (PettyCashOperation, error) {
	p, err := w.tx.LockPettyCash(w.ctx, id)
	if err != nil {
		return PettyCashOperation{}, err
	}
	if p.DeletedAt != nil {
		return PettyCashOperation{}, fmt.Errorf("%w: petty cash operation %s already deleted", shared.ErrInvalidTransition, p.Number)
	}
	at := w.now
	p.DeletedAt = &at
	if err := w.tx.UpdatePettyCash(w.ctx, p); err != nil {
		return PettyCashOperation{}, err
	}
	lc, err := w.ledgerContext(p.Date)
	if err != nil {
		return PettyCashOperation{}, err
	}
	if _, _, err := accounting.Reverse(w.ctx, w.tx.Ledger(), lc, SourcePettyCash, p.SourceID, p.Date, "Deletion of petty cash "+p.Number); err != nil {
		return PettyCashOperation{}, err
	}
	if err := w.moveFunds(pettyMovement(p), true, "Deletion of petty cash "+p.Number); err != nil {
		return PettyCashOperation{}, err
	}
	return p, nil
}

func pettyMovement(p PettyCashOperation) funds.Movement {
	petty := p.PettyFundID
	return funds.Movement{
		RefType:       funds.RefPettyCash,
		RefID:         p.ID,
		Number:        p.Number,
		Type:          p.Direction.EventType(),
		FundID:        &petty,
		CounterFundID: p.SourceFundID,
		Amount:        p.Amount,
		Date:          p.Date,
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
