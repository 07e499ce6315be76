package cli

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ordercash/jobs"
)

// JobsCLI enqueues ledger tasks and reads queue state.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI connects the client and inspector to redisAddr.
func NewJobsCLI(redisAddr string) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: jobs.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	return errors.Join(c.inspector.Close(), c.client.Close())
}

// TriggerOptions scopes a manually enqueued job.
type TriggerOptions struct {
	FundID     int64
	CustomerID int64
	Repair     bool
}

// BuildTask prepares the named job with the given scope.
func BuildTask(name string, opts TriggerOptions) (*asynq.Task, error) {
	return jobs.TaskFor(name, jobs.TaskScope{FundID: opts.FundID, CustomerID: opts.CustomerID, Repair: opts.Repair})
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, opts TriggerOptions) (*asynq.TaskInfo, error) {
	task, err := BuildTask(name, opts)
	if err != nil {
		return nil, err
	}
	info, err := c.client.Enqueue(ctx, task)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil, errors.New("an identical task is already queued")
	}
	return info, err
}

// InspectQueue reports every ledger queue.
func (c *JobsCLI) InspectQueue() ([]jobs.QueueStats, error) {
	return jobs.InspectQueues(c.inspector)
}
