package operationshttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ordercash/internal/counterparty"
	"github.com/odyssey-erp/ordercash/internal/documents"
	"github.com/odyssey-erp/ordercash/internal/funds"
	"github.com/odyssey-erp/ordercash/internal/instruments"
	"github.com/odyssey-erp/ordercash/internal/operations"
	"github.com/odyssey-erp/ordercash/internal/platform/httpx"
	"github.com/odyssey-erp/ordercash/internal/shared"
)

type operationService interface {
	CreateOperation(ctx context.Context, in operations.OperationInput) (operations.Outcome, error)
	ConfirmOperation(ctx context.Context, id int64) (operations.Outcome, error)
	CancelOperation(ctx context.Context, id int64) (operations.Outcome, error)
	DeleteOperation(ctx context.Context, id int64) (operations.Outcome, error)
	GetOperation(ctx context.Context, id int64) (operations.Operation, error)
	ListOperations(ctx context.Context, f operations.Filter) ([]operations.Operation, error)
	RegisterCheckBook(ctx context.Context, in instruments.CheckBookInput) (instruments.CheckBook, error)
	IssueCheck(ctx context.Context, in operations.IssueCheckInput) (operations.InstrumentResult, error)
	ClearCheck(ctx context.Context, id int64) (operations.InstrumentResult, error)
	BounceCheck(ctx context.Context, id int64) (operations.InstrumentResult, error)
	VoidCheck(ctx context.Context, id int64) (operations.InstrumentResult, error)
	ResetCheck(ctx context.Context, id int64) (operations.InstrumentResult, error)
	ReceiveCheque(ctx context.Context, in operations.ReceiveChequeInput) (operations.InstrumentResult, error)
	DepositReceivedCheques(ctx context.Context, bankFundID int64, chequeIDs []int64) (operations.InstrumentResult, error)
	ClearReceivedCheque(ctx context.Context, id int64) (operations.InstrumentResult, error)
	ManuallyClearReceivedCheque(ctx context.Context, id int64) (operations.InstrumentResult, error)
	BounceReceivedCheque(ctx context.Context, id int64) (operations.InstrumentResult, error)
	SpendReceivedCheques(ctx context.Context, in operations.SpendInput) (operations.InstrumentResult, error)
	ReturnSpentCheque(ctx context.Context, id int64) (operations.InstrumentResult, error)
	CreatePettyCash(ctx context.Context, in operations.PettyCashInput) (operations.PettyCashOperation, error)
	DeletePettyCash(ctx context.Context, id int64) (operations.PettyCashOperation, error)
}

type fundService interface {
	CreateFund(ctx context.Context, in funds.FundInput) (funds.Fund, error)
	ListFunds(ctx context.Context, activeOnly bool) ([]funds.Fund, error)
	Statements(ctx context.Context, fundID int64) ([]funds.Statement, error)
	RebuildStatements(ctx context.Context, fundID int64) (decimal.Decimal, error)
	RecalculateBalance(ctx context.Context, fundID int64) (funds.Reconciliation, error)
	CachedReconciliation(ctx context.Context, fundID int64) (funds.Reconciliation, error)
}

type customerService interface {
	CreateCustomer(ctx context.Context, in counterparty.CustomerInput) (counterparty.Customer, error)
	Balance(ctx context.Context, customerID int64) (counterparty.Balance, error)
	Recompute(ctx context.Context, customerID int64) (counterparty.Balance, error)
}

type documentService interface {
	Assign(ctx context.Context, in documents.AssignInput) (documents.Number, error)
	Get(ctx context.Context, entityType string, entityID int64) (documents.Number, error)
	SoftDelete(ctx context.Context, id int64) (documents.Number, error)
	Restore(ctx context.Context, id int64) (documents.Number, error)
	SetStartingNumber(ctx context.Context, start int64) (documents.Settings, error)
	Statistics(ctx context.Context) (documents.Statistics, error)
}

type chequeQueries interface {
	ListCheques(ctx context.Context, f instruments.ChequeFilter) ([]instruments.ReceivedCheque, error)
	History(ctx context.Context, kind instruments.Kind, id int64) ([]instruments.StatusChange, error)
	Summarize(ctx context.Context, bookID int64) (instruments.BookSummary, error)
}

// Services groups the collaborators the handler exposes.
type Services struct {
	Operations operationService
	Funds      fundService
	Customers  customerService
	Documents  documentService
	Cheques    chequeQueries
}

// Handler exposes the engine calls as JSON endpoints.
type Handler struct {
	logger *slog.Logger
	svc    Services
}

// NewHandler constructs the operations HTTP handler.
func NewHandler(logger *slog.Logger, svc Services) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, svc: svc}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/operations", func(r chi.Router) {
		r.Get("/", h.listOperations)
		r.Post("/", h.createOperation)
		r.Get("/{id}", h.getOperation)
		r.Post("/{id}/confirm", h.confirmOperation)
		r.Post("/{id}/cancel", h.cancelOperation)
		r.Delete("/{id}", h.deleteOperation)
	})
	r.Route("/check-books", func(r chi.Router) {
		r.Post("/", h.registerCheckBook)
		r.Get("/{id}", h.checkBookSummary)
	})
	r.Route("/checks", func(r chi.Router) {
		r.Post("/", h.issueCheck)
		r.Post("/{id}/clear", h.checkStep(operationService.ClearCheck))
		r.Post("/{id}/bounce", h.checkStep(operationService.BounceCheck))
		r.Post("/{id}/void", h.checkStep(operationService.VoidCheck))
		r.Post("/{id}/reset", h.checkStep(operationService.ResetCheck))
		r.Get("/{id}/history", h.history(instruments.KindCheck))
	})
	r.Route("/cheques", func(r chi.Router) {
		r.Get("/", h.listCheques)
		r.Post("/", h.receiveCheque)
		r.Post("/deposit", h.depositCheques)
		r.Post("/spend", h.spendCheques)
		r.Post("/{id}/clear", h.checkStep(operationService.ClearReceivedCheque))
		r.Post("/{id}/manual-clear", h.checkStep(operationService.ManuallyClearReceivedCheque))
		r.Post("/{id}/bounce", h.checkStep(operationService.BounceReceivedCheque))
		r.Post("/{id}/return", h.checkStep(operationService.ReturnSpentCheque))
		r.Get("/{id}/history", h.history(instruments.KindReceivedCheque))
	})
	r.Route("/petty-cash", func(r chi.Router) {
		r.Post("/", h.createPettyCash)
		r.Delete("/{id}", h.deletePettyCash)
	})
	r.Route("/funds", func(r chi.Router) {
		r.Get("/", h.listFunds)
		r.Post("/", h.createFund)
		r.Get("/{id}/statements", h.statements)
		r.Post("/{id}/statements/rebuild", h.rebuildStatements)
		r.Post("/{id}/balance/recalculate", h.recalculateBalance)
		r.Get("/{id}/reconciliation", h.reconciliation)
	})
	r.Route("/customers", func(r chi.Router) {
		r.Post("/", h.createCustomer)
		r.Get("/{id}/balance", h.customerBalance)
		r.Post("/{id}/balance/recompute", h.recomputeBalance)
	})
	r.Route("/documents", func(r chi.Router) {
		r.Get("/", h.getDocument)
		r.Post("/", h.assignDocument)
		r.Get("/statistics", h.documentStatistics)
		r.Put("/settings", h.documentSettings)
		r.Post("/{id}/delete", h.deleteDocument)
		r.Post("/{id}/restore", h.restoreDocument)
	})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validation("invalid id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	level := slog.LevelWarn
	if status := httpx.StatusOf(err); status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "ledger request failed", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}
