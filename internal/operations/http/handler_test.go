package operationshttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ordercash/internal/documents"
	"github.com/odyssey-erp/ordercash/internal/funds"
	"github.com/odyssey-erp/ordercash/internal/instruments"
	"github.com/odyssey-erp/ordercash/internal/operations"
	"github.com/odyssey-erp/ordercash/internal/shared"
)

type stubOperations struct {
	operationService
	createFn  func(ctx context.Context, in operations.OperationInput) (operations.Outcome, error)
	cancelFn  func(ctx context.Context, id int64) (operations.Outcome, error)
	bounceFn  func(ctx context.Context, id int64) (operations.InstrumentResult, error)
	depositFn func(ctx context.Context, bankFundID int64, ids []int64) (operations.InstrumentResult, error)
}

func (s *stubOperations) CreateOperation(ctx context.Context, in operations.OperationInput) (operations.Outcome, error) {
	return s.createFn(ctx, in)
}

func (s *stubOperations) CancelOperation(ctx context.Context, id int64) (operations.Outcome, error) {
	return s.cancelFn(ctx, id)
}

func (s *stubOperations) BounceCheck(ctx context.Context, id int64) (operations.InstrumentResult, error) {
	return s.bounceFn(ctx, id)
}

func (s *stubOperations) DepositReceivedCheques(ctx context.Context, bankFundID int64, ids []int64) (operations.InstrumentResult, error) {
	return s.depositFn(ctx, bankFundID, ids)
}

type stubFunds struct {
	fundService
	rebuildFn func(ctx context.Context, fundID int64) (decimal.Decimal, error)
	cachedFn  func(ctx context.Context, fundID int64) (funds.Reconciliation, error)
}

func (s *stubFunds) RebuildStatements(ctx context.Context, fundID int64) (decimal.Decimal, error) {
	return s.rebuildFn(ctx, fundID)
}

func (s *stubFunds) CachedReconciliation(ctx context.Context, fundID int64) (funds.Reconciliation, error) {
	return s.cachedFn(ctx, fundID)
}

type stubDocuments struct {
	documentService
	restoreFn func(ctx context.Context, id int64) (documents.Number, error)
}

func (s *stubDocuments) Restore(ctx context.Context, id int64) (documents.Number, error) {
	return s.restoreFn(ctx, id)
}

func newTestRouter(svc Services) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	NewHandler(logger, svc).MountRoutes(r)
	return r
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCreateOperationDecodesInput(t *testing.T) {
	var captured operations.OperationInput
	ops := &stubOperations{createFn: func(ctx context.Context, in operations.OperationInput) (operations.Outcome, error) {
		captured = in
		return operations.Outcome{Operation: operations.Operation{ID: 9, Number: "20240101-001"}}, nil
	}}
	router := newTestRouter(Services{Operations: ops})

	rr := serve(t, router, http.MethodPost, "/operations", `{"type":"RECEIVE_FROM_CUSTOMER","amount":"500000","date":"2024-01-01T00:00:00Z","customer_id":3,"confirm":true}`)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, shared.OpReceiveFromCustomer, captured.Type)
	require.True(t, captured.Amount.Equal(decimal.NewFromInt(500000)))
	require.True(t, captured.Confirm)
	var out operations.Outcome
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, int64(9), out.Operation.ID)
}

func TestCreateOperationRejectsUnknownFields(t *testing.T) {
	ops := &stubOperations{createFn: func(ctx context.Context, in operations.OperationInput) (operations.Outcome, error) {
		t.Fatal("service must not be called")
		return operations.Outcome{}, nil
	}}
	router := newTestRouter(Services{Operations: ops})

	rr := serve(t, router, http.MethodPost, "/operations", `{"kind":"x"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCancelMapsInvalidTransition(t *testing.T) {
	ops := &stubOperations{cancelFn: func(ctx context.Context, id int64) (operations.Outcome, error) {
		require.Equal(t, int64(42), id)
		return operations.Outcome{}, shared.ErrInvalidTransition
	}}
	router := newTestRouter(Services{Operations: ops})

	rr := serve(t, router, http.MethodPost, "/operations/42/cancel", "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestInvalidPathIDIsRejected(t *testing.T) {
	router := newTestRouter(Services{Operations: &stubOperations{}})

	rr := serve(t, router, http.MethodPost, "/operations/abc/cancel", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBounceCheckContentionSetsRetryAfter(t *testing.T) {
	ops := &stubOperations{bounceFn: func(ctx context.Context, id int64) (operations.InstrumentResult, error) {
		return operations.InstrumentResult{}, shared.ErrContention
	}}
	router := newTestRouter(Services{Operations: ops})

	rr := serve(t, router, http.MethodPost, "/checks/7/bounce", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "1", rr.Header().Get("Retry-After"))
}

func TestRoutesMountWithPartialServices(t *testing.T) {
	for name, svc := range map[string]Services{
		"empty":     {},
		"funds":     {Funds: &stubFunds{}},
		"documents": {Documents: &stubDocuments{}},
	} {
		t.Run(name, func(t *testing.T) {
			require.NotPanics(t, func() { newTestRouter(svc) })
		})
	}
}

func TestDepositValidatesRequest(t *testing.T) {
	called := false
	ops := &stubOperations{depositFn: func(ctx context.Context, bankFundID int64, ids []int64) (operations.InstrumentResult, error) {
		called = true
		require.Equal(t, int64(2), bankFundID)
		require.Equal(t, []int64{5, 6}, ids)
		return operations.InstrumentResult{Cheques: []instruments.ReceivedCheque{{ID: 5}, {ID: 6}}}, nil
	}}
	router := newTestRouter(Services{Operations: ops})

	rr := serve(t, router, http.MethodPost, "/cheques/deposit", `{"bank_fund_id":2,"cheque_ids":[]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.False(t, called)

	rr = serve(t, router, http.MethodPost, "/cheques/deposit", `{"bank_fund_id":2,"cheque_ids":[5,6]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, called)
}

func TestRebuildStatementsReturnsFinalBalance(t *testing.T) {
	fs := &stubFunds{rebuildFn: func(ctx context.Context, fundID int64) (decimal.Decimal, error) {
		return decimal.NewFromInt(1250), nil
	}}
	router := newTestRouter(Services{Funds: fs})

	rr := serve(t, router, http.MethodPost, "/funds/4/statements/rebuild", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"final_balance":"1250"`)
}

func TestReconciliationDriftConflict(t *testing.T) {
	fs := &stubFunds{cachedFn: func(ctx context.Context, fundID int64) (funds.Reconciliation, error) {
		return funds.Reconciliation{}, &shared.DriftError{FundID: fundID}
	}}
	router := newTestRouter(Services{Funds: fs})

	rr := serve(t, router, http.MethodGet, "/funds/4/reconciliation", "")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "Reconciliation Drift")
}

func TestRestoreDocumentConflict(t *testing.T) {
	docs := &stubDocuments{restoreFn: func(ctx context.Context, id int64) (documents.Number, error) {
		return documents.Number{}, documents.ErrAlreadyAssigned
	}}
	router := newTestRouter(Services{Documents: docs})

	rr := serve(t, router, http.MethodPost, "/documents/3/restore", "")
	require.Equal(t, http.StatusConflict, rr.Code)
}
