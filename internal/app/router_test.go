package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ordercash/internal/shared"
	_ "github.com/odyssey-erp/ordercash/internal/testing/guard"
)

func testConfig() *Config {
	return &Config{AppEnv: "test", APIRateLimit: 1000, DefaultCurrency: "IRR"}
}

func TestGuardEnablesTestMode(t *testing.T) {
	RefreshTestMode()
	require.True(t, InTestMode())
}

func TestReadinessReportsFailingDependency(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: testConfig(),
		Readiness: map[string]Pinger{
			"postgres": PingerFunc(func(context.Context) error { return nil }),
			"redis":    PingerFunc(func(context.Context) error { return errors.New("dial tcp: refused") }),
		},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.JSONEq(t, `{"postgres":"ok","redis":"unavailable"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestActorMiddleware(t *testing.T) {
	var seen int64
	handler := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/operations", nil)
	req.Header.Set(ActorHeader, "42")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, int64(42), seen)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/operations", nil)
	req.Header.Set(ActorHeader, "abc")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUnknownRouteIsProblem(t *testing.T) {
	router := NewRouter(RouterParams{Config: testConfig(), Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/nowhere", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestTxOptionsFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.ContentionRetries = 5
	opts := cfg.TxOptions()
	require.Equal(t, 5, opts.Retries)
	require.Equal(t, 2*time.Second, opts.LockTimeout)
}
