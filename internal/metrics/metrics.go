package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "salmontrack"

// Metrics groups the service counters. A nil *Metrics records nothing.
type Metrics struct {
	LedgerOperations  *prometheus.CounterVec
	StatusChanges     *prometheus.CounterVec
	SnapshotPublishes *prometheus.CounterVec
	SnapshotFetches   *prometheus.CounterVec
	JobRuns           *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LedgerOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Allocation ledger operations by operation and result.",
		}, []string{"operation", "result"}),
		StatusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_changes_total",
			Help:      "Lot status changes by target status.",
		}, []string{"status"}),
		SnapshotPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_publishes_total",
			Help:      "Snapshot publishes to the remote tracking table by result.",
		}, []string{"result"}),
		SnapshotFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_fetches_total",
			Help:      "Snapshot fetches by source and result.",
		}, []string{"source", "result"}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Background job runs by job and result.",
		}, []string{"job", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.LedgerOperations, m.StatusChanges, m.SnapshotPublishes, m.SnapshotFetches, m.JobRuns)
	}
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ObserveLedger(operation string, err error) {
	if m == nil {
		return
	}
	m.LedgerOperations.WithLabelValues(operation, result(err)).Inc()
}

func (m *Metrics) ObserveStatusChange(status string) {
	if m == nil {
		return
	}
	m.StatusChanges.WithLabelValues(status).Inc()
}

func (m *Metrics) ObservePublish(err error) {
	if m == nil {
		return
	}
	m.SnapshotPublishes.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) ObserveFetch(source string, err error) {
	if m == nil {
		return
	}
	m.SnapshotFetches.WithLabelValues(source, result(err)).Inc()
}

func (m *Metrics) ObserveJob(job string, err error) {
	if m == nil {
		return
	}
	m.JobRuns.WithLabelValues(job, result(err)).Inc()
}
