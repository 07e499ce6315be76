package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/ordercash/internal/jobs"
)

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	run := jobs.Track("ledger:fund:reconcile")
	run.Processed(3)
	require.NoError(t, run.End(nil))

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `ledger_jobs_total{job="ledger:fund:reconcile",outcome="ok"} 1`)
	require.Contains(t, rr.Body.String(), `ledger_job_items_total{job="ledger:fund:reconcile"} 3`)
	require.Contains(t, rr.Body.String(), `ledger_job_last_success_timestamp_seconds{job="ledger:fund:reconcile"}`)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/operations/{id}/cancel")

	req := httptest.NewRequest(http.MethodPost, "/operations/4/cancel", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusConflict, rr.Code)

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := metricsRR.Body.String()
	require.Contains(t, body, `ledger_http_requests_total{code="409",method="POST",route="/operations/{id}/cancel"} 1`)
	require.Contains(t, body, `ledger_http_request_duration_seconds_bucket{route="/operations/{id}/cancel"`)
	require.Contains(t, body, "ledger_http_requests_in_flight 0")
}
