package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/ordercash/internal/accounting"
	"github.com/odyssey-erp/ordercash/internal/counterparty"
	"github.com/odyssey-erp/ordercash/internal/documents"
	"github.com/odyssey-erp/ordercash/internal/funds"
	"github.com/odyssey-erp/ordercash/internal/instruments"
	"github.com/odyssey-erp/ordercash/internal/operations"
	operationshttp "github.com/odyssey-erp/ordercash/internal/operations/http"
	"github.com/odyssey-erp/ordercash/internal/platform/cache"
	"github.com/odyssey-erp/ordercash/internal/shared"
)

// Services holds every ledger service wired on PostgreSQL and Redis.
type Services struct {
	Accounting  *accounting.Service
	Funds       *funds.Service
	Instruments *instruments.Service
	Customers   *counterparty.Service
	Documents   *documents.Service
	Operations  *operations.Service
}

// NewServices builds the services sharing one pool, one report cache and one audit logger.
func NewServices(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *slog.Logger) *Services {
	opts := cfg.TxOptions()
	reportCache := cache.NewCache(redisClient, cfg.ReportCacheTTL)
	audit := shared.NewAuditLogger(pool)
	// The orchestrator retries whole units of work itself.
	unitOpts := opts
	unitOpts.Retries = 0
	return &Services{
		Accounting:  accounting.NewService(accounting.NewRepository(pool, opts), audit, logger, cfg.DefaultCurrency),
		Funds:       funds.NewService(funds.NewRepository(pool, opts), reportCache, logger),
		Instruments: instruments.NewService(instruments.NewRepository(pool, opts), logger),
		Customers:   counterparty.NewService(counterparty.NewRepository(pool, opts), logger),
		Documents:   documents.NewService(documents.NewRepository(pool, opts), audit, logger),
		Operations: operations.NewService(operations.NewRepository(pool, unitOpts), audit, reportCache, logger, operations.Config{
			Currency: cfg.DefaultCurrency,
			Retries:  cfg.ContentionRetries,
		}),
	}
}

// HTTP exposes the services through the JSON adapter.
func (s *Services) HTTP(logger *slog.Logger) *operationshttp.Handler {
	return operationshttp.NewHandler(logger, operationshttp.Services{
		Operations: s.Operations,
		Funds:      s.Funds,
		Customers:  s.Customers,
		Documents:  s.Documents,
		Cheques:    s.Instruments,
	})
}

// AccountingHTTP exposes chart, fiscal year and report endpoints.
func (s *Services) AccountingHTTP(logger *slog.Logger) *accounting.Handler {
	return accounting.NewHandler(logger, s.Accounting)
}
