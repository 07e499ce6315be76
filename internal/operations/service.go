package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ordercash/internal/instruments"
	"github.com/odyssey-erp/ordercash/internal/platform/cache"
	"github.com/odyssey-erp/ordercash/internal/platform/db"
	"github.com/odyssey-erp/ordercash/internal/shared"
)

// AuditPort records orchestrator events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config tunes the orchestrator.
type Config struct {
	Currency string
	Retries  int
}

// Service is the entry point for every business event.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	cache  *cache.Cache
	logger *slog.Logger
	cfg    Config
	now    func() time.Time
}

// NewService constructs the orchestrator. audit and reportCache may be nil.
func NewService(repo RepositoryPort, audit AuditPort, reportCache *cache.Cache, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return &Service{repo: repo, audit: audit, cache: reportCache, logger: logger, cfg: cfg, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// InstrumentResult is returned by instrument calls: the instruments moved
// and the operation the move created, if any.
type InstrumentResult struct {
	Check     *instruments.Check           `json:"check,omitempty"`
	Cheques   []instruments.ReceivedCheque `json:"cheques,omitempty"`
	Operation *Operation                   `json:"operation,omitempty"`
}

// run executes fn as one retried unit of work and settles the balances it
// touched before commit.
func (s *Service) run(ctx context.Context, action string, fn func(w *work) error) error {
	var touched bool
	err := db.Retry(ctx, s.cfg.Retries, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			w := newWork(ctx, tx, s.cfg.Currency, s.now())
			if err := fn(w); err != nil {
				return err
			}
			touched = len(w.funds) > 0
			return w.settle()
		})
	})
	if err != nil {
		s.logFailure(action, err)
		return err
	}
	if touched {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("bump ledger cache", slog.Any("error", err))
		}
	}
	return nil
}

func (s *Service) logFailure(action string, err error) {
	var drift *shared.DriftError
	switch {
	case errors.As(err, &drift):
		s.logger.Error("operation aborted by fund drift",
			slog.String("action", action),
			slog.Int64("fund_id", drift.FundID),
			slog.String("stored", drift.Stored.String()),
			slog.String("from_transactions", drift.FromTransactions.String()),
			slog.String("from_operations", drift.FromOperations.String()),
			slog.String("from_statements", drift.FromStatements.String()))
	case errors.Is(err, shared.ErrUnbalancedPosting):
		s.logger.Error("operation aborted by unbalanced posting", slog.String("action", action), slog.Any("error", err))
	case errors.Is(err, shared.ErrContention):
		s.logger.Warn("operation contention", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, action string, op Operation, extra map[string]any) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{
		"number": op.Number,
		"type":   string(op.Type),
		"amount": op.Amount.String(),
		"status": string(op.Status),
	}
	for k, v := range extra {
		meta[k] = v
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   SourceOperation,
		EntityID: strconv.FormatInt(op.ID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit operation", slog.String("action", action), slog.Any("error", err))
	}
}

// CreateOperation stores a DRAFT operation, confirming it when asked.
func (s *Service) CreateOperation(ctx context.Context, in OperationInput) (Outcome, error) {
	var out Outcome
	err := s.run(ctx, "operation.create", func(w *work) error {
		op, err := w.create(in)
		if err != nil {
			return err
		}
		out = Outcome{Operation: op}
		if in.Confirm {
			if out, err = w.confirm(op); err != nil {
				return err
			}
		}
		out.Funds = sortedKeys(w.funds)
		out.Customers = sortedKeys(w.customers)
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	s.record(ctx, "operation.create", out.Operation, nil)
	return out, nil
}

// ConfirmOperation confirms a DRAFT operation or re-confirms a cancelled one.
func (s *Service) ConfirmOperation(ctx context.Context, id int64) (Outcome, error) {
	return s.transition(ctx, "operation.confirm", id, (*work).confirm)
}

// CancelOperation soft-deletes an operation and compensates its effects.
func (s *Service) CancelOperation(ctx context.Context, id int64) (Outcome, error) {
	return s.transition(ctx, "operation.cancel", id, (*work).cancel)
}

// DeleteOperation purges an operation and recomputes what depended on it.
func (s *Service) DeleteOperation(ctx context.Context, id int64) (Outcome, error) {
	return s.transition(ctx, "operation.delete", id, (*work).remove)
}

func (s *Service) transition(ctx context.Context, action string, id int64, step func(*work, Operation) (Outcome, error)) (Outcome, error) {
	var out Outcome
	err := s.run(ctx, action, func(w *work) error {
		op, err := w.tx.LockOperation(w.ctx, id)
		if err != nil {
			return err
		}
		if out, err = step(w, op); err != nil {
			return err
		}
		out.Funds = sortedKeys(w.funds)
		out.Customers = sortedKeys(w.customers)
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	s.logger.Info("operation "+strings.TrimPrefix(action, "operation."),
		slog.Int64("operation_id", out.Operation.ID),
		slog.String("number", out.Operation.Number),
		slog.Int("instruments", out.Instruments))
	s.record(ctx, action, out.Operation, map[string]any{"voucher_id": out.VoucherID})
	return out, nil
}

// GetOperation loads one operation, deleted or not.
func (s *Service) GetOperation(ctx context.Context, id int64) (Operation, error) {
	var op Operation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		op, err = tx.GetOperation(ctx, id)
		return err
	})
	return op, err
}

// ListOperations lists operations matching f, newest first.
func (s *Service) ListOperations(ctx context.Context, f Filter) ([]Operation, error) {
	var out []Operation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListOperations(ctx, f)
		return err
	})
	return out, err
}

// RegisterCheckBook stores a book of blank leaves for a bank fund.
func (s *Service) RegisterCheckBook(ctx context.Context, in instruments.CheckBookInput) (instruments.CheckBook, error) {
	var book instruments.CheckBook
	err := s.run(ctx, "checkbook.register", func(w *work) error {
		if _, err := w.bankFund(&in.FundID); err != nil {
			return err
		}
		var err error
		book, err = instruments.RegisterCheckBook(w.ctx, w.tx.Instruments(), in, w.now)
		return err
	})
	if err != nil {
		return instruments.CheckBook{}, err
	}
	s.logger.Info("check book registered", slog.Int64("book_id", book.ID), slog.Int64("fund_id", book.FundID),
		slog.Int64("leaves", book.EndNumber-book.StartNumber+1))
	return book, nil
}

// IssueCheck fills a blank leaf. Naming a customer also records the payment
// as a PAY_TO_CUSTOMER operation linked to the issuance.
func (s *Service) IssueCheck(ctx context.Context, in IssueCheckInput) (InstrumentResult, error) {
	var res InstrumentResult
	err := s.run(ctx, "check.issue", func(w *work) error {
		if err := shared.ValidateStruct(in); err != nil {
			return err
		}
		book, err := w.tx.Instruments().GetCheckBook(w.ctx, in.CheckBookID)
		if err != nil {
			return err
		}
		meta := w.meta(nil)
		if in.CustomerID != nil {
			op, err := w.derived(OperationInput{
				Type:          shared.OpPayToCustomer,
				Amount:        in.Amount,
				Date:          in.IssueDate,
				PaymentMethod: shared.PaymentCheque,
				CustomerID:    in.CustomerID,
				BankFundID:    &book.FundID,
				Description:   fmt.Sprintf("Check %d to %s", in.Number, strings.TrimSpace(in.Payee)),
			})
			if err != nil {
				return err
			}
			res.Operation = &op
			meta = w.meta(&op)
		}
		check, err := instruments.IssueCheck(w.ctx, w.tx.Instruments(), instruments.IssueInput{
			CheckBookID: in.CheckBookID,
			Number:      in.Number,
			Payee:       in.Payee,
			CustomerID:  in.CustomerID,
			Amount:      in.Amount,
			IssueDate:   in.IssueDate,
			DueDate:     in.DueDate,
			Description: in.Description,
		}, meta)
		if err != nil {
			return err
		}
		res.Check = &check
		return nil
	})
	return res, err
}

// ClearCheck marks an issued check as paid by the bank.
func (s *Service) ClearCheck(ctx context.Context, id int64) (InstrumentResult, error) {
	return s.checkStep(ctx, "check.clear", id, instruments.TrClear)
}

// ResetCheck returns a bounced or cleared check to ISSUED.
func (s *Service) ResetCheck(ctx context.Context, id int64) (InstrumentResult, error) {
	return s.checkStep(ctx, "check.reset", id, instruments.TrReset)
}

// VoidCheck voids a leaf. An issuance still backed by a confirmed payment
// must be cancelled through its operation first.
func (s *Service) VoidCheck(ctx context.Context, id int64) (InstrumentResult, error) {
	var res InstrumentResult
	err := s.run(ctx, "check.void", func(w *work) error {
		opID, linked, err := instruments.IssuedBy(w.ctx, w.tx.Instruments(), id)
		if err != nil {
			return err
		}
		if linked {
			op, err := w.tx.GetOperation(w.ctx, opID)
			if err != nil && !errors.Is(err, shared.ErrNotFound) {
				return err
			}
			if err == nil && op.Status == StatusConfirmed {
				return fmt.Errorf("%w: check %d is paid by operation %s; cancel it first", shared.ErrInvalidTransition, id, op.Number)
			}
		}
		check, err := instruments.TransitionCheck(w.ctx, w.tx.Instruments(), id, instruments.TrVoid, w.meta(nil))
		if err != nil {
			return err
		}
		res.Check = &check
		return nil
	})
	return res, err
}

// BounceCheck marks an issued check as bounced. When the issuance named a
// customer an ISSUED_CHECK_BOUNCE operation credits them back.
func (s *Service) BounceCheck(ctx context.Context, id int64) (InstrumentResult, error) {
	var res InstrumentResult
	err := s.run(ctx, "check.bounce", func(w *work) error {
		check, err := w.tx.Instruments().GetCheck(w.ctx, id)
		if err != nil {
			return err
		}
		meta := w.meta(nil)
		if check.CustomerID != nil && check.Status == instruments.CheckIssued {
			book, err := w.tx.Instruments().GetCheckBook(w.ctx, check.CheckBookID)
			if err != nil {
				return err
			}
			op, err := w.derived(OperationInput{
				Type:          shared.OpIssuedCheckBounce,
				Amount:        check.Amount,
				Date:          w.today(),
				PaymentMethod: shared.PaymentCheque,
				CustomerID:    check.CustomerID,
				BankFundID:    &book.FundID,
				Description:   fmt.Sprintf("Bounce of check %d", check.Number),
			})
			if err != nil {
				return err
			}
			res.Operation = &op
			meta = w.meta(&op)
		}
		check, err = instruments.TransitionCheck(w.ctx, w.tx.Instruments(), id, instruments.TrBounce, meta)
		if err != nil {
			return err
		}
		res.Check = &check
		return nil
	})
	return res, err
}

func (s *Service) checkStep(ctx context.Context, action string, id int64, tr instruments.Transition) (InstrumentResult, error) {
	var res InstrumentResult
	err := s.run(ctx, action, func(w *work) error {
		check, err := instruments.TransitionCheck(w.ctx, w.tx.Instruments(), id, tr, w.meta(nil))
		if err != nil {
			return err
		}
		res.Check = &check
		return nil
	})
	return res, err
}

// ReceiveCheque records a cheque from a customer together with the
// RECEIVE_FROM_CUSTOMER operation it settles.
func (s *Service) ReceiveCheque(ctx context.Context, in ReceiveChequeInput) (InstrumentResult, error) {
	var res InstrumentResult
	err := s.run(ctx, "cheque.receive", func(w *work) error {
		if err := shared.ValidateStruct(in); err != nil {
			return err
		}
		customerID := in.CustomerID
		op, err := w.derived(OperationInput{
			Type:          shared.OpReceiveFromCustomer,
			Amount:        in.Amount,
			Date:          in.ReceivedDate,
			PaymentMethod: shared.PaymentCheque,
			CustomerID:    &customerID,
			Description:   strings.TrimSpace("Cheque " + in.SayadiID + " " + in.Description),
		})
		if err != nil {
			return err
		}
		cheque, err := instruments.ReceiveCheque(w.ctx, w.tx.Instruments(), instruments.ReceiveInput{
			SayadiID:     in.SayadiID,
			Serial:       in.Serial,
			BankName:     in.BankName,
			CustomerID:   in.CustomerID,
			Amount:       in.Amount,
			DueDate:      in.DueDate,
			ReceivedDate: in.ReceivedDate,
			Description:  in.Description,
		}, w.meta(&op))
		if err != nil {
			return err
		}
		res.Operation = &op
		res.Cheques = []instruments.ReceivedCheque{cheque}
		return nil
	})
	return res, err
}

// DepositReceivedCheques hands cheques to a bank account for collection.
func (s *Service) DepositReceivedCheques(ctx context.Context, bankFundID int64, chequeIDs []int64) (InstrumentResult, error) {
	var res InstrumentResult
	err := s.run(ctx, "cheque.deposit", func(w *work) error {
		if len(chequeIDs) == 0 {
			return shared.Validation("no cheques selected")
		}
		bank, err := w.bankFund(&bankFundID)
		if err != nil {
			return err
		}
		for _, id := range chequeIDs {
			c, err := instruments.TransitionCheque(w.ctx, w.tx.Instruments(), id, instruments.TrDeposit,
				instruments.ChequeChange{DepositFundID: &bank.ID}, w.meta(nil))
			if err != nil {
				return err
			}
			res.Cheques = append(res.Cheques, c)
		}
		return nil
	})
	return res, err
}

// ClearReceivedCheque records that a deposited cheque was collected.
func (s *Service) ClearReceivedCheque(ctx context.Context, id int64) (InstrumentResult, error) {
	return s.chequeStep(ctx, "cheque.clear", id, instruments.TrClear)
}

// ManuallyClearReceivedCheque settles a cheque outside the bank.
func (s *Service) ManuallyClearReceivedCheque(ctx context.Context, id int64) (InstrumentResult, error) {
	return s.chequeStep(ctx, "cheque.manual_clear", id, instruments.TrManualClear)
}

func (s *Service) chequeStep(ctx context.Context, action string, id int64, tr instruments.Transition) (InstrumentResult, error) {
	var res InstrumentResult
	err := s.run(ctx, action, func(w *work) error {
		c, err := instruments.TransitionCheque(w.ctx, w.tx.Instruments(), id, tr, instruments.ChequeChange{}, w.meta(nil))
		if err != nil {
			return err
		}
		res.Cheques = []instruments.ReceivedCheque{c}
		return nil
	})
	return res, err
}

// BounceReceivedCheque bounces a cheque and charges its drawer back with a
// CHECK_BOUNCE operation.
func (s *Service) BounceReceivedCheque(ctx context.Context, id int64) (InstrumentResult, error) {
	var res InstrumentResult
	err := s.run(ctx, "cheque.bounce", func(w *work) error {
		cheque, err := w.tx.Instruments().GetCheque(w.ctx, id)
		if err != nil {
			return err
		}
		if cheque.DeletedAt != nil {
			return instruments.ErrChequeNotFound
		}
		if _, err := instruments.NextChequeStatus(cheque.Status, instruments.TrBounce); err != nil {
			return err
		}
		drawer := cheque.CustomerID
		op, err := w.derived(OperationInput{
			Type:          shared.OpCheckBounce,
			Amount:        cheque.Amount,
			Date:          w.today(),
			PaymentMethod: shared.PaymentCheque,
			CustomerID:    &drawer,
			Description:   "Bounce of cheque " + cheque.SayadiID,
		})
		if err != nil {
			return err
		}
		c, err := instruments.TransitionCheque(w.ctx, w.tx.Instruments(), id, instruments.TrBounce, instruments.ChequeChange{}, w.meta(&op))
		if err != nil {
			return err
		}
		res.Operation = &op
		res.Cheques = []instruments.ReceivedCheque{c}
		return nil
	})
	return res, err
}

// SpendReceivedCheques pays a customer with received cheques through one
// aggregated PAY_TO_CUSTOMER operation. Returned cheques are spent again.
func (s *Service) SpendReceivedCheques(ctx context.Context, in SpendInput) (InstrumentResult, error) {
	var res InstrumentResult
	err := s.run(ctx, "cheque.spend", func(w *work) error {
		if err := shared.ValidateStruct(in); err != nil {
			return err
		}
		if in.RecipientCustomerID == nil {
			return shared.Validation("recipient customer required")
		}
		recipient, err := w.tx.Balances().GetCustomer(w.ctx, *in.RecipientCustomerID)
		if err != nil {
			return err
		}
		total := decimal.Zero
		steps := make(map[int64]instruments.Transition, len(in.ChequeIDs))
		for _, id := range in.ChequeIDs {
			if _, dup := steps[id]; dup {
				return shared.Validation("cheque %d selected twice", id)
			}
			c, err := w.tx.Instruments().LockCheque(w.ctx, id)
			if err != nil {
				return err
			}
			if c.DeletedAt != nil {
				return instruments.ErrChequeNotFound
			}
			switch c.Status {
			case instruments.ChequeReceived:
				steps[id] = instruments.TrSpend
			case instruments.ChequeReturned:
				steps[id] = instruments.TrRespend
			default:
				return fmt.Errorf("%w: received cheque %d is %s", shared.ErrInvalidTransition, id, c.Status)
			}
			total = total.Add(c.Amount)
		}
		op, err := w.derived(OperationInput{
			Type:          shared.OpPayToCustomer,
			Amount:        total,
			Date:          in.Date,
			PaymentMethod: shared.PaymentSpendCheque,
			CustomerID:    in.RecipientCustomerID,
			Description:   strings.TrimSpace(fmt.Sprintf("%d cheque(s) spent %s", len(in.ChequeIDs), in.Description)),
		})
		if err != nil {
			return err
		}
		name := strings.TrimSpace(in.RecipientName)
		if name == "" {
			name = recipient.Name
		}
		for _, id := range in.ChequeIDs {
			c, err := instruments.TransitionCheque(w.ctx, w.tx.Instruments(), id, steps[id], instruments.ChequeChange{
				RecipientCustomerID: in.RecipientCustomerID,
				RecipientName:       name,
			}, w.meta(&op))
			if err != nil {
				return err
			}
			res.Cheques = append(res.Cheques, c)
		}
		res.Operation = &op
		return nil
	})
	return res, err
}

// ReturnSpentCheque takes back a spent cheque from its recipient, crediting
// them with a SPENT_CHEQUE_RETURN operation.
func (s *Service) ReturnSpentCheque(ctx context.Context, id int64) (InstrumentResult, error) {
	var res InstrumentResult
	err := s.run(ctx, "cheque.return", func(w *work) error {
		cheque, err := w.tx.Instruments().GetCheque(w.ctx, id)
		if err != nil {
			return err
		}
		if cheque.Status != instruments.ChequeSpent {
			return fmt.Errorf("%w: received cheque %d is %s", shared.ErrInvalidTransition, id, cheque.Status)
		}
		meta := w.meta(nil)
		if cheque.RecipientCustomerID != nil {
			op, err := w.derived(OperationInput{
				Type:          shared.OpSpentChequeReturn,
				Amount:        cheque.Amount,
				Date:          w.today(),
				PaymentMethod: shared.PaymentSpendCheque,
				CustomerID:    cheque.RecipientCustomerID,
				Description:   "Return of cheque " + cheque.SayadiID,
			})
			if err != nil {
				return err
			}
			res.Operation = &op
			meta = w.meta(&op)
		}
		c, err := instruments.TransitionCheque(w.ctx, w.tx.Instruments(), id, instruments.TrReturn, instruments.ChequeChange{}, meta)
		if err != nil {
			return err
		}
		res.Cheques = []instruments.ReceivedCheque{c}
		return nil
	})
	return res, err
}

// CreatePettyCash records a petty cash top-up or expense.
func (s *Service) CreatePettyCash(ctx context.Context, in PettyCashInput) (PettyCashOperation, error) {
	var out PettyCashOperation
	err := s.run(ctx, "petty_cash.create", func(w *work) error {
		var err error
		out, err = w.createPetty(in)
		return err
	})
	if err != nil {
		return PettyCashOperation{}, err
	}
	s.logger.Info("petty cash recorded", slog.String("number", out.Number), slog.String("direction", string(out.Direction)),
		slog.String("amount", out.Amount.String()))
	return out, nil
}

// DeletePettyCash soft-deletes a petty cash movement and compensates it.
func (s *Service) DeletePettyCash(ctx context.Context, id int64) (PettyCashOperation, error) {
	var out PettyCashOperation
	err := s.run(ctx, "petty_cash.delete", func(w *work) error {
		var err error
		out, err = w.deletePetty(id)
		return err
	})
	return out, err
}

// PettyCashOf lists live petty cash movements touching a fund.
func (s *Service) PettyCashOf(ctx context.Context, fundID int64) ([]PettyCashOperation, error) {
	var out []PettyCashOperation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.Funds().GetFund(ctx, fundID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListPettyCash(ctx, fundID)
		return err
	})
	return out, err
}
