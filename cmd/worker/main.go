package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/ordercash/internal/app"
	jobmetrics "github.com/odyssey-erp/ordercash/internal/jobs"
	"github.com/odyssey-erp/ordercash/internal/platform/cache"
	"github.com/odyssey-erp/ordercash/internal/platform/db"
	"github.com/odyssey-erp/ordercash/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "worker")

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
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
	locker := redislock.New(redisClient)
	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)

	reconcileJob := jobs.NewFundReconcileJob(services.Funds, locker, logger, metrics, cfg.ReconcileConcurrency)
	rebuildJob := jobs.NewCustomerRebuildJob(services.Customers, locker, logger, metrics)

	reconcileTask, err := jobs.NewFundReconcileTask(jobs.FundReconcilePayload{})
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}
	rebuildTask, err := jobs.NewCustomerRebuildTask(jobs.CustomerRebuildPayload{})
	if err != nil {
		logger.Error("build rebuild task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskFundReconcile, Handler: reconcileJob.Handle},
			{Type: jobs.TaskCustomerRebuild, Handler: rebuildJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReconcileCron, Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.CustomerRebuildCron, Task: rebuildTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := app.NewServer(cfg, mux)
		srv.Addr = cfg.WorkerMetricsAddr
		go func() {
			if err := app.Serve(ctx, srv, logger); err != nil {
				logger.Warn("metrics server", slog.Any("error", err))
			}
		}()
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
