package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ordercash/internal/counterparty"
	"github.com/odyssey-erp/ordercash/internal/funds"
	jobmetrics "github.com/odyssey-erp/ordercash/internal/jobs"
	"github.com/odyssey-erp/ordercash/internal/shared"
)

type fundStub struct {
	mu       sync.Mutex
	list     []funds.Fund
	drifting map[int64]bool
	stored   []int64
	repaired []int64
}

func (s *fundStub) ListFunds(context.Context, bool) ([]funds.Fund, error) {
	return s.list, nil
}

func (s *fundStub) report(id int64) funds.Reconciliation {
	rec := funds.Reconciliation{
		FundID:           id,
		Stored:           decimal.NewFromInt(100),
		FromTransactions: decimal.NewFromInt(100),
		FromOperations:   decimal.NewFromInt(100),
		FromStatements:   decimal.NewFromInt(100),
	}
	if s.drifting[id] {
		rec.FromOperations = decimal.NewFromInt(90)
	}
	return rec
}

func (s *fundStub) Reconcile(_ context.Context, id int64) (funds.Reconciliation, error) {
	return s.report(id), nil
}

func (s *fundStub) RecalculateBalance(_ context.Context, id int64) (funds.Reconciliation, error) {
	s.mu.Lock()
	s.repaired = append(s.repaired, id)
	s.mu.Unlock()
	rec := s.report(id)
	return rec, rec.Err()
}

func (s *fundStub) StoreReconciliation(_ context.Context, rec funds.Reconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = append(s.stored, rec.FundID)
	return nil
}

func newLocker(t *testing.T) *redislock.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redislock.New(client)
}

func TestFundScanReportsDrift(t *testing.T) {
	stub := &fundStub{
		list:     []funds.Fund{{ID: 1}, {ID: 2}, {ID: 3}},
		drifting: map[int64]bool{2: true},
	}
	registry := prometheus.NewRegistry()
	job := NewFundReconcileJob(stub, newLocker(t), nil, jobmetrics.NewMetrics(registry), 2)

	task, err := NewFundReconcileTask(FundReconcilePayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.ElementsMatch(t, []int64{1, 2, 3}, stub.stored)
	require.Empty(t, stub.repaired)

	report, err := job.Scan(context.Background(), []int64{1, 2, 3}, true)
	require.NoError(t, err)
	require.Equal(t, 3, report.Checked)
	require.Equal(t, []int64{2}, report.Drifted)
	require.ElementsMatch(t, []int64{1, 2, 3}, stub.repaired)

	series, err := testutil.GatherAndCount(registry, "ledger_fund_drift_total")
	require.NoError(t, err)
	require.Equal(t, 1, series)
}

func TestFundScanSkipsLockedFunds(t *testing.T) {
	locker := newLocker(t)
	held, err := locker.Obtain(context.Background(), shared.FundLockKey(7), time.Minute, nil)
	require.NoError(t, err)
	defer func() { _ = held.Release(context.Background()) }()

	stub := &fundStub{}
	job := NewFundReconcileJob(stub, locker, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()), 1)
	report, err := job.Scan(context.Background(), []int64{7, 8}, false)
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, 1, report.Checked)
	require.Equal(t, []int64{8}, stub.stored)
}

func TestFundReconcileRejectsBadPayload(t *testing.T) {
	job := NewFundReconcileJob(&fundStub{}, nil, nil, nil, 1)
	err := job.Handle(context.Background(), asynq.NewTask(TaskFundReconcile, []byte("{")))
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

type balanceStub struct {
	single []int64
	all    int
}

func (s *balanceStub) Recompute(_ context.Context, id int64) (counterparty.Balance, error) {
	s.single = append(s.single, id)
	return counterparty.Balance{CustomerID: id}, nil
}

func (s *balanceStub) RecomputeAll(context.Context) (int, error) {
	s.all++
	return 4, nil
}

func TestCustomerRebuildHonoursLock(t *testing.T) {
	locker := newLocker(t)
	stub := &balanceStub{}
	job := NewCustomerRebuildJob(stub, locker, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewCustomerRebuildTask(CustomerRebuildPayload{CustomerID: 5})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []int64{5}, stub.single)

	held, err := locker.Obtain(context.Background(), shared.CustomerRebuildLockKey, time.Minute, nil)
	require.NoError(t, err)
	all, err := NewCustomerRebuildTask(CustomerRebuildPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), all))
	require.Zero(t, stub.all)

	require.NoError(t, held.Release(context.Background()))
	require.NoError(t, job.Handle(context.Background(), all))
	require.Equal(t, 1, stub.all)
}
