package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ordercash/internal/counterparty"
	jobmetrics "github.com/odyssey-erp/ordercash/internal/jobs"
	"github.com/odyssey-erp/ordercash/internal/shared"
)

// BalanceService recomputes customer balances from operations.
type BalanceService interface {
	Recompute(ctx context.Context, customerID int64) (counterparty.Balance, error)
	RecomputeAll(ctx context.Context) (int, error)
}

// CustomerRebuildJob rebuilds customer balances under a redis lock.
type CustomerRebuildJob struct {
	Balances BalanceService
	Locker   *redislock.Client
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	LockTTL  time.Duration
}

// NewCustomerRebuildJob constructs the job handler. locker may be nil.
func NewCustomerRebuildJob(service BalanceService, locker *redislock.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *CustomerRebuildJob {
	return &CustomerRebuildJob{Balances: service, Locker: locker, Logger: logger, Metrics: metrics, LockTTL: 5 * time.Minute}
}

// Handle executes the rebuild.
func (j *CustomerRebuildJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Balances == nil {
		return errors.New("customer rebuild: dependencies not configured")
	}
	var payload CustomerRebuildPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.CustomerID < 0 {
		return fmt.Errorf("customer id must be positive: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskCustomerRebuild)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	key := shared.CustomerRebuildLockKey
	if payload.CustomerID > 0 {
		key = shared.CustomerLockKey(payload.CustomerID)
	}
	release, ok, err := j.lock(ctx, key)
	if err != nil {
		resultErr = err
		j.log().Error("obtain lock", slog.String("key", key), slog.Any("error", err))
		return resultErr
	}
	if !ok {
		j.metrics().AddSkipped(TaskCustomerRebuild, 1)
		j.log().Info("rebuild already running", slog.String("key", key))
		return resultErr
	}
	defer release()

	if payload.CustomerID > 0 {
		bal, err := j.Balances.Recompute(ctx, payload.CustomerID)
		if err != nil {
			resultErr = err
			j.log().Error("recompute customer", slog.Int64("customer_id", payload.CustomerID), slog.Any("error", err))
			return resultErr
		}
		tracker.Processed(1)
		j.log().Info("customer balance rebuilt", slog.Int64("customer_id", payload.CustomerID), slog.String("current", bal.Current.String()))
		return resultErr
	}
	done, err := j.Balances.RecomputeAll(ctx)
	if err != nil {
		resultErr = err
		j.log().Error("recompute customers", slog.Int("done", done), slog.Any("error", err))
		return resultErr
	}
	tracker.Processed(done)
	j.log().Info("customer balances rebuilt", slog.Int("customers", done))
	return resultErr
}

func (j *CustomerRebuildJob) lock(ctx context.Context, key string) (func(), bool, error) {
	if j.Locker == nil {
		return func() {}, true, nil
	}
	ttl := j.LockTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	lock, err := j.Locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return func() { _ = lock.Release(context.WithoutCancel(ctx)) }, true, nil
}

func (j *CustomerRebuildJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CustomerRebuildJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCustomerRebuild))
	}
	return slog.Default().With(slog.String("job", TaskCustomerRebuild))
}
