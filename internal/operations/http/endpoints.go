package operationshttp

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/ordercash/internal/counterparty"
	"github.com/odyssey-erp/ordercash/internal/documents"
	"github.com/odyssey-erp/ordercash/internal/funds"
	"github.com/odyssey-erp/ordercash/internal/instruments"
	"github.com/odyssey-erp/ordercash/internal/operations"
	"github.com/odyssey-erp/ordercash/internal/platform/httpx"
	"github.com/odyssey-erp/ordercash/internal/shared"
)

func (h *Handler) createOperation(w http.ResponseWriter, r *http.Request) {
	var in operations.OperationInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.svc.Operations.CreateOperation(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) listOperations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := operations.Filter{
		Type:           shared.OperationType(strings.ToUpper(q.Get("type"))),
		Status:         operations.Status(strings.ToUpper(q.Get("status"))),
		IncludeDeleted: q.Get("include_deleted") == "true",
	}
	if v := q.Get("customer_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.RespondError(w, shared.Validation("invalid customer_id"))
			return
		}
		f.CustomerID = id
	}
	for key, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if v := q.Get(key); v != "" {
			d, err := time.Parse(time.DateOnly, v)
			if err != nil {
				httpx.RespondError(w, shared.Validation("invalid %s date", key))
				return
			}
			*dst = &d
		}
	}
	if v := q.Get("limit"); v != "" {
		f.Limit, _ = strconv.Atoi(v)
	}
	ops, err := h.svc.Operations.ListOperations(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ops)
}

func (h *Handler) getOperation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	op, err := h.svc.Operations.GetOperation(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, op)
}

func (h *Handler) confirmOperation(w http.ResponseWriter, r *http.Request) {
	h.operationStep(w, r, h.svc.Operations.ConfirmOperation)
}

func (h *Handler) cancelOperation(w http.ResponseWriter, r *http.Request) {
	h.operationStep(w, r, h.svc.Operations.CancelOperation)
}

func (h *Handler) deleteOperation(w http.ResponseWriter, r *http.Request) {
	h.operationStep(w, r, h.svc.Operations.DeleteOperation)
}

func (h *Handler) operationStep(w http.ResponseWriter, r *http.Request, step func(context.Context, int64) (operations.Outcome, error)) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := step(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) registerCheckBook(w http.ResponseWriter, r *http.Request) {
	var in instruments.CheckBookInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	book, err := h.svc.Operations.RegisterCheckBook(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, book)
}

func (h *Handler) checkBookSummary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.svc.Cheques.Summarize(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) issueCheck(w http.ResponseWriter, r *http.Request) {
	var in operations.IssueCheckInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.svc.Operations.IssueCheck(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

// checkStep binds an instrument step to the service on each request so
// routes mount even when Operations is not wired.
func (h *Handler) checkStep(step func(operationService, context.Context, int64) (operations.InstrumentResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		res, err := step(h.svc.Operations, r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, res)
	}
}

func (h *Handler) history(kind instruments.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		rows, err := h.svc.Cheques.History(r.Context(), kind, id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, rows)
	}
}

func (h *Handler) listCheques(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := instruments.ChequeFilter{Status: instruments.ChequeStatus(strings.ToUpper(q.Get("status")))}
	if v := q.Get("customer_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.RespondError(w, shared.Validation("invalid customer_id"))
			return
		}
		f.CustomerID = id
	}
	if v := q.Get("due_before"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			httpx.RespondError(w, shared.Validation("invalid due_before date"))
			return
		}
		f.DueBefore = &d
	}
	cheques, err := h.svc.Cheques.ListCheques(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cheques)
}

func (h *Handler) receiveCheque(w http.ResponseWriter, r *http.Request) {
	var in operations.ReceiveChequeInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.svc.Operations.ReceiveCheque(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

type depositRequest struct {
	BankFundID int64   `json:"bank_fund_id" validate:"required,gt=0"`
	ChequeIDs  []int64 `json:"cheque_ids" validate:"required,min=1,dive,gt=0"`
}

func (h *Handler) depositCheques(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.svc.Operations.DepositReceivedCheques(r.Context(), req.BankFundID, req.ChequeIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) spendCheques(w http.ResponseWriter, r *http.Request) {
	var in operations.SpendInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.svc.Operations.SpendReceivedCheques(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) createPettyCash(w http.ResponseWriter, r *http.Request) {
	var in operations.PettyCashInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.svc.Operations.CreatePettyCash(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) deletePettyCash(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.svc.Operations.DeletePettyCash(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) listFunds(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Funds.ListFunds(r.Context(), r.URL.Query().Get("all") != "true")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) createFund(w http.ResponseWriter, r *http.Request) {
	var in funds.FundInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	fund, err := h.svc.Funds.CreateFund(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, fund)
}

func (h *Handler) statements(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.svc.Funds.Statements(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) rebuildStatements(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	final, err := h.svc.Funds.RebuildStatements(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"fund_id": id, "final_balance": final})
}

func (h *Handler) recalculateBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.svc.Funds.RecalculateBalance(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) reconciliation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.svc.Funds.CachedReconciliation(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"report": rec, "consistent": rec.Consistent()})
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var in counterparty.CustomerInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.svc.Customers.CreateCustomer(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) customerBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.svc.Customers.Balance(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) recomputeBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.svc.Customers.Recompute(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) assignDocument(w http.ResponseWriter, r *http.Request) {
	var in documents.AssignInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	n, err := h.svc.Documents.Assign(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, n)
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entityID, err := strconv.ParseInt(q.Get("entity_id"), 10, 64)
	if err != nil || q.Get("entity_type") == "" {
		httpx.RespondError(w, shared.Validation("entity_type and entity_id required"))
		return
	}
	n, err := h.svc.Documents.Get(r.Context(), q.Get("entity_type"), entityID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, n)
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	h.documentStep(w, r, h.svc.Documents.SoftDelete)
}

func (h *Handler) restoreDocument(w http.ResponseWriter, r *http.Request) {
	h.documentStep(w, r, h.svc.Documents.Restore)
}

func (h *Handler) documentStep(w http.ResponseWriter, r *http.Request, step func(context.Context, int64) (documents.Number, error)) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	n, err := step(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, n)
}

type settingsRequest struct {
	StartingNumber int64 `json:"starting_number" validate:"required,gt=0"`
}

func (h *Handler) documentSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	s, err := h.svc.Documents.SetStartingNumber(r.Context(), req.StartingNumber)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) documentStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Documents.Statistics(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}
