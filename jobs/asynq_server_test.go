package jobs

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type inspectorStub struct {
	infos map[string]*asynq.QueueInfo
	err   error
}

func (s inspectorStub) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	info, ok := s.infos[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestTaskForRoutesQueues(t *testing.T) {
	task, err := TaskFor("reconcile", TaskScope{FundID: 4})
	require.NoError(t, err)
	require.Equal(t, TaskFundReconcile, task.Type())
	require.JSONEq(t, `{"fund_id":4}`, string(task.Payload()))

	task, err = TaskFor("customers", TaskScope{CustomerID: 9})
	require.NoError(t, err)
	require.Equal(t, TaskCustomerRebuild, task.Type())

	_, err = TaskFor("ledger:unknown", TaskScope{})
	require.Error(t, err)
}

func TestInspectQueuesTreatsMissingQueueAsEmpty(t *testing.T) {
	stats, err := InspectQueues(inspectorStub{infos: map[string]*asynq.QueueInfo{
		QueueDefault: {Queue: QueueDefault, Pending: 2, Retry: 1},
	}})
	require.NoError(t, err)
	require.Equal(t, []QueueStats{
		{Queue: QueueCritical},
		{Queue: QueueDefault, Pending: 2, Retry: 1},
	}, stats)
}

func TestJobsHealthEndpoint(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(inspectorStub{infos: map[string]*asynq.QueueInfo{
		QueueCritical: {Queue: QueueCritical, Active: 1},
	}}, nil).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Queues []QueueStats `json:"queues"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Queues, 2)
	require.Equal(t, 1, body.Queues[0].Active)

	r = chi.NewRouter()
	NewHandler(inspectorStub{err: errors.New("redis down")}, nil).MountRoutes(r)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{})
	require.Error(t, err)
}
