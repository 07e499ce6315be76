package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/ordercash/internal/funds"
	jobmetrics "github.com/odyssey-erp/ordercash/internal/jobs"
	"github.com/odyssey-erp/ordercash/internal/shared"
)

// FundService describes the fund ledger behaviour the drift scan needs.
type FundService interface {
	ListFunds(ctx context.Context, activeOnly bool) ([]funds.Fund, error)
	Reconcile(ctx context.Context, fundID int64) (funds.Reconciliation, error)
	RecalculateBalance(ctx context.Context, fundID int64) (funds.Reconciliation, error)
	StoreReconciliation(ctx context.Context, rec funds.Reconciliation) error
}

// ScanReport summarises one drift scan.
type ScanReport struct {
	Checked int     `json:"checked"`
	Skipped int     `json:"skipped"`
	Drifted []int64 `json:"drifted"`
}

type scanOutcome int

const (
	outcomeConsistent scanOutcome = iota
	outcomeDrift
	outcomeSkipped
)

// FundReconcileJob compares the balance derivations of every fund, one runner per fund.
type FundReconcileJob struct {
	Funds       FundService
	Locker      *redislock.Client
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
	LockTTL     time.Duration
	clock       func() time.Time
}

// NewFundReconcileJob constructs the job handler. locker may be nil when a
// single worker runs.
func NewFundReconcileJob(service FundService, locker *redislock.Client, logger *slog.Logger, metrics *jobmetrics.Metrics, concurrency int) *FundReconcileJob {
	return &FundReconcileJob{
		Funds:       service,
		Locker:      locker,
		Logger:      logger,
		Metrics:     metrics,
		Concurrency: concurrency,
		LockTTL:     30 * time.Second,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the drift scan.
func (j *FundReconcileJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Funds == nil {
		return errors.New("fund reconcile: dependencies not configured")
	}
	var payload FundReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskFundReconcile)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	ids, err := j.resolveFunds(ctx, payload.FundID)
	if err != nil {
		resultErr = err
		j.log().Error("resolve funds", slog.Int64("fund_id", payload.FundID), slog.Any("error", err))
		return resultErr
	}
	if len(ids) == 0 {
		j.log().Info("no funds to reconcile")
		return resultErr
	}

	start := j.now()
	report, err := j.Scan(ctx, ids, payload.Repair)
	if err != nil {
		resultErr = err
		j.log().Error("fund scan", slog.Any("error", err))
		return resultErr
	}
	tracker.Processed(report.Checked)
	j.log().Info("fund scan finished",
		slog.Int("checked", report.Checked),
		slog.Int("skipped", report.Skipped),
		slog.Int("drifted", len(report.Drifted)),
		slog.Bool("repair", payload.Repair),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

// Scan reconciles the given funds with bounded concurrency. Drift is
// reported, not returned; only infrastructure failures abort the scan.
func (j *FundReconcileJob) Scan(ctx context.Context, ids []int64, repair bool) (ScanReport, error) {
	var (
		mu     sync.Mutex
		report ScanReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency())
	for _, id := range ids {
		g.Go(func() error {
			outcome, err := j.scanFund(gctx, id, repair)
			if err != nil {
				return fmt.Errorf("fund %d: %w", id, err)
			}
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeSkipped:
				report.Skipped++
			case outcomeDrift:
				report.Checked++
				report.Drifted = append(report.Drifted, id)
			default:
				report.Checked++
			}
			return nil
		})
	}
	err := g.Wait()
	slices.Sort(report.Drifted)
	j.metrics().AddSkipped(TaskFundReconcile, report.Skipped)
	return report, err
}

func (j *FundReconcileJob) scanFund(ctx context.Context, id int64, repair bool) (scanOutcome, error) {
	if j.Locker != nil {
		lock, err := j.Locker.Obtain(ctx, shared.FundLockKey(id), j.lockTTL(), nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			j.log().Info("fund locked elsewhere", slog.Int64("fund_id", id))
			return outcomeSkipped, nil
		}
		if err != nil {
			return outcomeSkipped, fmt.Errorf("obtain lock: %w", err)
		}
		defer func() {
			_ = lock.Release(context.WithoutCancel(ctx))
		}()
	}

	var (
		rec funds.Reconciliation
		err error
	)
	if repair {
		rec, err = j.Funds.RecalculateBalance(ctx, id)
	} else {
		rec, err = j.Funds.Reconcile(ctx, id)
	}
	if err != nil && !errors.Is(err, shared.ErrReconciliationDrift) {
		return outcomeSkipped, err
	}
	if rec.FundID != 0 {
		if err := j.Funds.StoreReconciliation(ctx, rec); err != nil {
			j.log().Warn("cache reconciliation", slog.Int64("fund_id", id), slog.Any("error", err))
		}
	}
	if err == nil && rec.Consistent() {
		return outcomeConsistent, nil
	}
	j.metrics().AddDrift(id)
	j.log().Error("fund balance drift",
		slog.Int64("fund_id", id),
		slog.String("stored", rec.Stored.String()),
		slog.String("from_transactions", rec.FromTransactions.String()),
		slog.String("from_operations", rec.FromOperations.String()),
		slog.String("from_statements", rec.FromStatements.String()))
	return outcomeDrift, nil
}

func (j *FundReconcileJob) resolveFunds(ctx context.Context, fundID int64) ([]int64, error) {
	if fundID < 0 {
		return nil, fmt.Errorf("fund id must be positive")
	}
	if fundID > 0 {
		return []int64{fundID}, nil
	}
	list, err := j.Funds.ListFunds(ctx, true)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(list))
	for _, f := range list {
		ids = append(ids, f.ID)
	}
	return ids, nil
}

func (j *FundReconcileJob) concurrency() int {
	if j.Concurrency > 0 {
		return j.Concurrency
	}
	return 4
}

func (j *FundReconcileJob) lockTTL() time.Duration {
	if j.LockTTL > 0 {
		return j.LockTTL
	}
	return 30 * time.Second
}

func (j *FundReconcileJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *FundReconcileJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskFundReconcile))
	}
	return slog.Default().With(slog.String("job", TaskFundReconcile))
}

func (j *FundReconcileJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *FundReconcileJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
