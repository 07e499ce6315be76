package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/ordercash/internal/jobs"
)

const (
	// QueueDefault carries maintenance work such as balance rebuilds.
	QueueDefault = "default"
	// QueueCritical carries drift scans, polled ahead of the default queue.
	QueueCritical = "ledger-critical"
	// TaskFundReconcile scans funds for balance drift.
	TaskFundReconcile = "ledger:fund:reconcile"
	// TaskCustomerRebuild recomputes customer balances from operations.
	TaskCustomerRebuild = "ledger:customer:rebuild"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// FundReconcilePayload scopes a drift scan. A zero FundID scans every active fund.
// Repair persists the recomputed balance where the derivations agree.
type FundReconcilePayload struct {
	FundID int64 `json:"fund_id,omitempty"`
	Repair bool  `json:"repair,omitempty"`
}

// CustomerRebuildPayload scopes a balance rebuild. A zero CustomerID rebuilds all.
type CustomerRebuildPayload struct {
	CustomerID int64 `json:"customer_id,omitempty"`
}

// NewFundReconcileTask constructs an Asynq task for the drift scan.
func NewFundReconcileTask(payload FundReconcilePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFundReconcile, body, asynq.Queue(QueueCritical)), nil
}

// NewCustomerRebuildTask constructs an Asynq task for the balance rebuild.
func NewCustomerRebuildTask(payload CustomerRebuildPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCustomerRebuild, body, asynq.Queue(QueueDefault)), nil
}

// TaskScope carries the identifiers a manually triggered task is limited to.
type TaskScope struct {
	FundID     int64
	CustomerID int64
	Repair     bool
}

// TaskFor builds the task registered under name. The short aliases
// "reconcile" and "customers" are accepted for operator use.
func TaskFor(name string, scope TaskScope) (*asynq.Task, error) {
	switch name {
	case TaskFundReconcile, "reconcile":
		return NewFundReconcileTask(FundReconcilePayload{FundID: scope.FundID, Repair: scope.Repair})
	case TaskCustomerRebuild, "customers":
		return NewCustomerRebuildTask(CustomerRebuildPayload{CustomerID: scope.CustomerID})
	default:
		return nil, fmt.Errorf("jobs: unsupported task %q", name)
	}
}
