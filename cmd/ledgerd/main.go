package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ordercash/internal/app"
	"github.com/odyssey-erp/ordercash/internal/observability"
	"github.com/odyssey-erp/ordercash/internal/platform/cache"
	"github.com/odyssey-erp/ordercash/internal/platform/db"
	"github.com/odyssey-erp/ordercash/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "ledgerd")

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	services := app.NewServices(cfg, pool, redisClient, logger)
	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	redisPinger := app.PingerFunc(func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AccountingHandler: services.AccountingHTTP(logger),
		LedgerHandler:     services.HTTP(logger),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
		Readiness: map[string]app.Pinger{
			"postgres": pool,
			"redis":    redisPinger,
		},
	})

	if err := app.Serve(ctx, app.NewServer(cfg, router), logger); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
