package jobmetrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

// Metrics exposes Prometheus collectors for the ledger's background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	items       *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	drifts      *prometheus.CounterVec
	skipped     *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors on registerer, or once on the default
// registerer when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return buildMetrics(registerer)
	}
	defaultOnce.Do(func() {
		defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// Tracker instruments one job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
	items   int
}

// Track starts a run of job. A nil Metrics yields a tracker that records nothing.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// Processed adds n to the entities handled by this run.
func (t *Tracker) Processed(n int) {
	if t != nil && n > 0 {
		t.items += n
	}
}

// End records the run outcome and hands err back unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	m := t.metrics
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
		m.failures.WithLabelValues(t.job).Inc()
	} else {
		m.lastSuccess.WithLabelValues(t.job).SetToCurrentTime()
	}
	m.runs.WithLabelValues(t.job, outcome).Inc()
	m.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	if t.items > 0 {
		m.items.WithLabelValues(t.job).Add(float64(t.items))
	}
	return err
}

// AddDrift counts a fund whose balance derivations disagreed.
func (m *Metrics) AddDrift(fundID int64) {
	if m == nil {
		return
	}
	m.drifts.WithLabelValues(strconv.FormatInt(fundID, 10)).Inc()
}

// AddSkipped counts entities a job left alone because another runner held their lock.
func (m *Metrics) AddSkipped(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.skipped.WithLabelValues(job).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_jobs_total",
			Help: "Job runs by outcome.",
		}, []string{"job", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_jobs_failures_total",
			Help: "Job runs that returned an error.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_job_duration_seconds",
			Help:    "Job run duration.",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_job_items_total",
			Help: "Funds or customers processed by job runs.",
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledger_job_last_success_timestamp_seconds",
			Help: "Unix time of the last run that finished without error.",
		}, []string{"job"}),
		drifts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_fund_drift_total",
			Help: "Funds whose stored balance disagreed with a recomputation.",
		}, []string{"fund"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_jobs_lock_skipped_total",
			Help: "Entities skipped because their lock was held elsewhere.",
		}, []string{"job"}),
	}
	registerer.MustRegister(m.runs, m.failures, m.duration, m.items, m.lastSuccess, m.drifts, m.skipped)
	return m
}
