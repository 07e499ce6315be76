package instruments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ordercash/internal/shared"
)

type checkRule struct {
	from []CheckStatus
	to   CheckStatus
}

type chequeRule struct {
	from []ChequeStatus
	to   ChequeStatus
}

var checkRules = map[Transition]checkRule{
	TrIssue:   {from: []CheckStatus{CheckUnused}, to: CheckIssued},
	TrClear:   {from: []CheckStatus{CheckIssued}, to: CheckCleared},
	TrBounce:  {from: []CheckStatus{CheckIssued}, to: CheckBounced},
	TrVoid:    {from: []CheckStatus{CheckUnused, CheckIssued}, to: CheckVoid},
	TrReset:   {from: []CheckStatus{CheckBounced, CheckCleared}, to: CheckIssued},
	TrUnissue: {from: []CheckStatus{CheckIssued}, to: CheckUnused},
}

var chequeRules = map[Transition]chequeRule{
	TrDeposit:     {from: []ChequeStatus{ChequeReceived}, to: ChequeDeposited},
	TrClear:       {from: []ChequeStatus{ChequeDeposited}, to: ChequeCleared},
	TrManualClear: {from: []ChequeStatus{ChequeReceived}, to: ChequeManuallyCleared},
	TrSpend:       {from: []ChequeStatus{ChequeReceived}, to: ChequeSpent},
	TrReturn:      {from: []ChequeStatus{ChequeSpent}, to: ChequeReturned},
	TrRespend:     {from: []ChequeStatus{ChequeReturned}, to: ChequeSpent},
	TrBounce: {from: []ChequeStatus{
		ChequeReceived, ChequeDeposited, ChequeCleared, ChequeManuallyCleared, ChequeSpent, ChequeReturned,
	}, to: ChequeBounced},
}

// checkCompensation names the transition that undoes a linked check
// transition.
var checkCompensation = map[Transition]Transition{
	TrIssue:  TrUnissue,
	TrClear:  TrReset,
	TrBounce: TrReset,
}

// NextCheckStatus applies tr to an issued check state.
func NextCheckStatus(cur CheckStatus, tr Transition) (CheckStatus, error) {
	rule, ok := checkRules[tr]
	if !ok {
		return "", fmt.Errorf("%w: check cannot %s", shared.ErrInvalidTransition, tr)
	}
	for _, from := range rule.from {
		if from == cur {
			return rule.to, nil
		}
	}
	return "", fmt.Errorf("%w: check %s cannot %s", shared.ErrInvalidTransition, cur, tr)
}

// NextChequeStatus applies tr to a received cheque state.
func NextChequeStatus(cur ChequeStatus, tr Transition) (ChequeStatus, error) {
	rule, ok := chequeRules[tr]
	if !ok {
		return "", fmt.Errorf("%w: received cheque cannot %s", shared.ErrInvalidTransition, tr)
	}
	for _, from := range rule.from {
		if from == cur {
			return rule.to, nil
		}
	}
	return "", fmt.Errorf("%w: received cheque %s cannot %s", shared.ErrInvalidTransition, cur, tr)
}

// RegisterCheckBook stores a book and one UNUSED leaf per number in range.
func RegisterCheckBook(ctx context.Context, st TxRepository, in CheckBookInput, now time.Time) (CheckBook, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return CheckBook{}, err
	}
	if in.EndNumber-in.StartNumber >= 1000 {
		return CheckBook{}, shared.Validation("check book cannot exceed 1000 leaves")
	}
	book, err := st.InsertCheckBook(ctx, CheckBook{
		FundID:      in.FundID,
		Serial:      strings.TrimSpace(in.Serial),
		StartNumber: in.StartNumber,
		EndNumber:   in.EndNumber,
		IsActive:    true,
		CreatedAt:   now,
	})
	if err != nil {
		return CheckBook{}, err
	}
	leaves := make([]Check, 0, in.EndNumber-in.StartNumber+1)
	for n := in.StartNumber; n <= in.EndNumber; n++ {
		leaves = append(leaves, Check{
			CheckBookID: book.ID,
			Number:      n,
			Status:      CheckUnused,
			Amount:      decimal.Zero,
			UpdatedAt:   now,
		})
	}
	if err := st.InsertChecks(ctx, leaves); err != nil {
		return CheckBook{}, err
	}
	return book, nil
}

// IssueCheck fills a blank leaf and moves it to ISSUED.
func IssueCheck(ctx context.Context, st TxRepository, in IssueInput, meta Meta) (Check, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Check{}, err
	}
	if err := shared.ValidateMoney("amount", in.Amount); err != nil {
		return Check{}, err
	}
	book, err := st.GetCheckBook(ctx, in.CheckBookID)
	if err != nil {
		return Check{}, err
	}
	if !book.IsActive {
		return Check{}, shared.Validation("check book %d is inactive", book.ID)
	}
	check, err := st.LockCheckByNumber(ctx, in.CheckBookID, in.Number)
	if err != nil {
		return Check{}, err
	}
	return applyCheck(ctx, st, check, TrIssue, meta, func(c *Check) {
		issue, due := truncateDay(in.IssueDate), truncateDay(in.DueDate)
		c.Amount = in.Amount
		c.Payee = strings.TrimSpace(in.Payee)
		c.CustomerID = in.CustomerID
		c.IssueDate = &issue
		c.DueDate = &due
		c.Description = strings.TrimSpace(in.Description)
	})
}

// TransitionCheck moves an issued check along the lifecycle.
func TransitionCheck(ctx context.Context, st TxRepository, checkID int64, tr Transition, meta Meta) (Check, error) {
	if tr == TrIssue {
		return Check{}, shared.Validation("use IssueCheck to issue a leaf")
	}
	check, err := st.LockCheck(ctx, checkID)
	if err != nil {
		return Check{}, err
	}
	var mutate func(*Check)
	if tr == TrUnissue {
		mutate = (*Check).clearIssuance
	}
	return applyCheck(ctx, st, check, tr, meta, mutate)
}

func applyCheck(ctx context.Context, st TxRepository, check Check, tr Transition, meta Meta, mutate func(*Check)) (Check, error) {
	next, err := NextCheckStatus(check.Status, tr)
	if err != nil {
		return Check{}, err
	}
	before := check
	after := check
	if mutate != nil {
		mutate(&after)
	}
	after.Status = next
	after.UpdatedAt = meta.At
	if err := st.UpdateCheck(ctx, after); err != nil {
		return Check{}, err
	}
	if err := recordCheck(ctx, st, before, after, tr, meta); err != nil {
		return Check{}, err
	}
	if meta.OperationID != nil {
		if err := link(ctx, st, meta, KindCheck, check.ID, tr, before, after); err != nil {
			return Check{}, err
		}
	}
	return after, nil
}

// ReceiveCheque registers a cheque in RECEIVED state.
func ReceiveCheque(ctx context.Context, st TxRepository, in ReceiveInput, meta Meta) (ReceivedCheque, error) {
	in.SayadiID = shared.NormalizeDigits(strings.TrimSpace(in.SayadiID))
	if err := shared.ValidateStruct(in); err != nil {
		return ReceivedCheque{}, err
	}
	if err := shared.ValidateMoney("amount", in.Amount); err != nil {
		return ReceivedCheque{}, err
	}
	if _, err := st.GetChequeBySayadi(ctx, in.SayadiID); err == nil {
		return ReceivedCheque{}, ErrDuplicateSayadi
	} else if !errors.Is(err, shared.ErrNotFound) {
		return ReceivedCheque{}, err
	}
	cheque, err := st.InsertCheque(ctx, ReceivedCheque{
		SayadiID:     in.SayadiID,
		Serial:       strings.TrimSpace(in.Serial),
		BankName:     strings.TrimSpace(in.BankName),
		CustomerID:   in.CustomerID,
		Amount:       in.Amount,
		DueDate:      truncateDay(in.DueDate),
		ReceivedDate: truncateDay(in.ReceivedDate),
		Status:       ChequeReceived,
		Description:  strings.TrimSpace(in.Description),
		CreatedAt:    meta.At,
		UpdatedAt:    meta.At,
	})
	if err != nil {
		return ReceivedCheque{}, err
	}
	due := cheque.DueDate
	if err := st.InsertStatusChange(ctx, StatusChange{
		Kind:         KindReceivedCheque,
		InstrumentID: cheque.ID,
		Transition:   TrReceive,
		NewStatus:    string(ChequeReceived),
		OldAmount:    decimal.Zero,
		NewAmount:    cheque.Amount,
		NewDueDate:   &due,
		ActorID:      meta.ActorID,
		OperationID:  meta.OperationID,
		At:           meta.At,
	}); err != nil {
		return ReceivedCheque{}, err
	}
	if meta.OperationID != nil {
		if err := link(ctx, st, meta, KindReceivedCheque, cheque.ID, TrReceive, nil, cheque); err != nil {
			return ReceivedCheque{}, err
		}
	}
	return cheque, nil
}

// TransitionCheque moves a received cheque along the lifecycle and sets the
// fields the target state carries.
func TransitionCheque(ctx context.Context, st TxRepository, chequeID int64, tr Transition, change ChequeChange, meta Meta) (ReceivedCheque, error) {
	cheque, err := st.LockCheque(ctx, chequeID)
	if err != nil {
		return ReceivedCheque{}, err
	}
	if cheque.DeletedAt != nil {
		return ReceivedCheque{}, ErrChequeNotFound
	}
	next, err := NextChequeStatus(cheque.Status, tr)
	if err != nil {
		return ReceivedCheque{}, err
	}
	before := cheque
	after := cheque
	switch tr {
	case TrDeposit:
		if change.DepositFundID == nil {
			return ReceivedCheque{}, shared.Validation("deposit requires a bank fund")
		}
		after.DepositedFundID = change.DepositFundID
	case TrClear, TrManualClear:
		at := meta.At
		after.ClearedAt = &at
	case TrSpend, TrRespend:
		if change.RecipientCustomerID == nil && strings.TrimSpace(change.RecipientName) == "" {
			return ReceivedCheque{}, shared.Validation("spending a cheque requires a recipient")
		}
		after.RecipientCustomerID = change.RecipientCustomerID
		after.RecipientName = strings.TrimSpace(change.RecipientName)
	case TrReturn:
		after.RecipientCustomerID = nil
		after.RecipientName = ""
	}
	after.Status = next
	after.UpdatedAt = meta.At
	if err := st.UpdateCheque(ctx, after); err != nil {
		return ReceivedCheque{}, err
	}
	if err := recordCheque(ctx, st, before, after, tr, meta); err != nil {
		return ReceivedCheque{}, err
	}
	if meta.OperationID != nil {
		if err := link(ctx, st, meta, KindReceivedCheque, cheque.ID, tr, before, after); err != nil {
			return ReceivedCheque{}, err
		}
	}
	return after, nil
}

// RevertLinks undoes every active instrument transition of the operation,
// newest first. A transition whose instrument has since moved on cannot be
// undone and fails with ErrInvalidTransition.
func RevertLinks(ctx context.Context, st TxRepository, operationID int64, meta Meta) (int, error) {
	links, err := st.ListInstrumentLinks(ctx, operationID)
	if err != nil {
		return 0, err
	}
	meta.OperationID = &operationID
	reverted := 0
	for i := len(links) - 1; i >= 0; i-- {
		l := links[i]
		if l.RevertedAt != nil {
			continue
		}
		switch l.Kind {
		case KindCheck:
			err = revertCheck(ctx, st, l, meta)
		case KindReceivedCheque:
			err = revertCheque(ctx, st, l, meta)
		default:
			err = fmt.Errorf("instruments: unknown link kind %q", l.Kind)
		}
		if err != nil {
			return reverted, err
		}
		at := meta.At
		l.RevertedAt = &at
		if err := st.UpdateInstrumentLink(ctx, l); err != nil {
			return reverted, err
		}
		reverted++
	}
	return reverted, nil
}

// ReapplyLinks replays reverted transitions of the operation, oldest first.
func ReapplyLinks(ctx context.Context, st TxRepository, operationID int64, meta Meta) (int, error) {
	links, err := st.ListInstrumentLinks(ctx, operationID)
	if err != nil {
		return 0, err
	}
	meta.OperationID = &operationID
	reapplied := 0
	for _, l := range links {
		if l.RevertedAt == nil {
			continue
		}
		switch l.Kind {
		case KindCheck:
			err = reapplyCheck(ctx, st, l, meta)
		case KindReceivedCheque:
			err = reapplyCheque(ctx, st, l, meta)
		default:
			err = fmt.Errorf("instruments: unknown link kind %q", l.Kind)
		}
		if err != nil {
			return reapplied, err
		}
		l.RevertedAt = nil
		if err := st.UpdateInstrumentLink(ctx, l); err != nil {
			return reapplied, err
		}
		reapplied++
	}
	return reapplied, nil
}

// DeleteLinks reverts what is still active and drops the link rows.
func DeleteLinks(ctx context.Context, st TxRepository, operationID int64, meta Meta) error {
	if _, err := RevertLinks(ctx, st, operationID, meta); err != nil {
		return err
	}
	return st.DeleteInstrumentLinks(ctx, operationID)
}

// IssuedBy returns the operation an issued check is linked to, if any.
func IssuedBy(ctx context.Context, st TxRepository, checkID int64) (int64, bool, error) {
	links, err := st.ListInstrumentLinksByInstrument(ctx, KindCheck, checkID)
	if err != nil {
		return 0, false, err
	}
	for i := len(links) - 1; i >= 0; i-- {
		if links[i].Transition == TrIssue && links[i].RevertedAt == nil {
			return links[i].OperationID, true, nil
		}
	}
	return 0, false, nil
}

// requireNewest refuses to touch l while a newer active link from another
// transition still depends on the instrument state l produced.
func requireNewest(ctx context.Context, st TxRepository, l Link) error {
	links, err := st.ListInstrumentLinksByInstrument(ctx, l.Kind, l.InstrumentID)
	if err != nil {
		return err
	}
	for _, other := range links {
		if other.ID > l.ID && other.RevertedAt == nil {
			return fmt.Errorf("%w: %s %d was moved on by operation %d; cancel it first",
				shared.ErrInvalidTransition, l.Kind, l.InstrumentID, other.OperationID)
		}
	}
	return nil
}

func revertCheck(ctx context.Context, st TxRepository, l Link, meta Meta) error {
	var before, after Check
	if err := decodeSnapshots(l, &before, &after); err != nil {
		return err
	}
	if err := requireNewest(ctx, st, l); err != nil {
		return err
	}
	current, err := st.LockCheck(ctx, l.InstrumentID)
	if err != nil {
		return err
	}
	if current.Status != after.Status {
		return fmt.Errorf("%w: check %d is %s, expected %s", shared.ErrInvalidTransition, current.ID, current.Status, after.Status)
	}
	comp, ok := checkCompensation[l.Transition]
	if !ok {
		return fmt.Errorf("%w: check %s cannot be undone", shared.ErrInvalidTransition, l.Transition)
	}
	next, err := NextCheckStatus(current.Status, comp)
	if err != nil {
		return err
	}
	if next != before.Status {
		return fmt.Errorf("%w: check %d cannot return to %s", shared.ErrInvalidTransition, current.ID, before.Status)
	}
	restored := before
	restored.ID = current.ID
	restored.UpdatedAt = meta.At
	if err := st.UpdateCheck(ctx, restored); err != nil {
		return err
	}
	return recordCheck(ctx, st, current, restored, comp, meta)
}

func reapplyCheck(ctx context.Context, st TxRepository, l Link, meta Meta) error {
	var before, after Check
	if err := decodeSnapshots(l, &before, &after); err != nil {
		return err
	}
	if err := requireNewest(ctx, st, l); err != nil {
		return err
	}
	current, err := st.LockCheck(ctx, l.InstrumentID)
	if err != nil {
		return err
	}
	next, err := NextCheckStatus(current.Status, l.Transition)
	if err != nil {
		return err
	}
	if current.Status != before.Status || next != after.Status {
		return fmt.Errorf("%w: check %d is %s, expected %s", shared.ErrInvalidTransition, current.ID, current.Status, before.Status)
	}
	restored := after
	restored.ID = current.ID
	restored.UpdatedAt = meta.At
	if err := st.UpdateCheck(ctx, restored); err != nil {
		return err
	}
	return recordCheck(ctx, st, current, restored, l.Transition, meta)
}

func revertCheque(ctx context.Context, st TxRepository, l Link, meta Meta) error {
	var before, after ReceivedCheque
	if err := decodeSnapshots(l, &before, &after); err != nil {
		return err
	}
	if err := requireNewest(ctx, st, l); err != nil {
		return err
	}
	current, err := st.LockCheque(ctx, l.InstrumentID)
	if err != nil {
		return err
	}
	if current.DeletedAt != nil || current.Status != after.Status {
		return fmt.Errorf("%w: received cheque %d is %s, expected %s", shared.ErrInvalidTransition, current.ID, current.Status, after.Status)
	}
	restored := before
	if l.Transition == TrReceive {
		restored = current
		at := meta.At
		restored.DeletedAt = &at
	}
	restored.ID = current.ID
	restored.UpdatedAt = meta.At
	if err := st.UpdateCheque(ctx, restored); err != nil {
		return err
	}
	return recordCheque(ctx, st, current, restored, TrRevert, meta)
}

func reapplyCheque(ctx context.Context, st TxRepository, l Link, meta Meta) error {
	var before, after ReceivedCheque
	if err := decodeSnapshots(l, &before, &after); err != nil {
		return err
	}
	if err := requireNewest(ctx, st, l); err != nil {
		return err
	}
	current, err := st.LockCheque(ctx, l.InstrumentID)
	if err != nil {
		return err
	}
	if l.Transition == TrReceive {
		if current.DeletedAt == nil {
			return fmt.Errorf("%w: received cheque %d is already registered", shared.ErrInvalidTransition, current.ID)
		}
	} else if current.DeletedAt != nil || current.Status != before.Status {
		return fmt.Errorf("%w: received cheque %d is %s, expected %s", shared.ErrInvalidTransition, current.ID, current.Status, before.Status)
	}
	restored := after
	restored.ID = current.ID
	restored.DeletedAt = nil
	restored.UpdatedAt = meta.At
	if err := st.UpdateCheque(ctx, restored); err != nil {
		return err
	}
	return recordCheque(ctx, st, current, restored, TrReapply, meta)
}

func recordCheck(ctx context.Context, st TxRepository, before, after Check, tr Transition, meta Meta) error {
	return st.InsertStatusChange(ctx, StatusChange{
		Kind:         KindCheck,
		InstrumentID: after.ID,
		Transition:   tr,
		OldStatus:    string(before.Status),
		NewStatus:    string(after.Status),
		OldAmount:    before.Amount,
		NewAmount:    after.Amount,
		OldDueDate:   before.DueDate,
		NewDueDate:   after.DueDate,
		ActorID:      meta.ActorID,
		OperationID:  meta.OperationID,
		At:           meta.At,
	})
}

func recordCheque(ctx context.Context, st TxRepository, before, after ReceivedCheque, tr Transition, meta Meta) error {
	oldDue, newDue := before.DueDate, after.DueDate
	return st.InsertStatusChange(ctx, StatusChange{
		Kind:         KindReceivedCheque,
		InstrumentID: after.ID,
		Transition:   tr,
		OldStatus:    string(before.Status),
		NewStatus:    string(after.Status),
		OldAmount:    before.Amount,
		NewAmount:    after.Amount,
		OldDueDate:   &oldDue,
		NewDueDate:   &newDue,
		ActorID:      meta.ActorID,
		OperationID:  meta.OperationID,
		At:           meta.At,
	})
}

func link(ctx context.Context, st TxRepository, meta Meta, kind Kind, id int64, tr Transition, before, after any) error {
	var beforeJSON json.RawMessage
	if before != nil {
		raw, err := json.Marshal(before)
		if err != nil {
			return err
		}
		beforeJSON = raw
	}
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return err
	}
	_, err = st.InsertInstrumentLink(ctx, Link{
		OperationID:  *meta.OperationID,
		Kind:         kind,
		InstrumentID: id,
		Transition:   tr,
		Before:       beforeJSON,
		After:        afterJSON,
		CreatedAt:    meta.At,
	})
	return err
}

func decodeSnapshots(l Link, before, after any) error {
	if len(l.Before) > 0 {
		if err := json.Unmarshal(l.Before, before); err != nil {
			return fmt.Errorf("instruments: decode link %d before: %w", l.ID, err)
		}
	}
	if err := json.Unmarshal(l.After, after); err != nil {
		return fmt.Errorf("instruments: decode link %d after: %w", l.ID, err)
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
