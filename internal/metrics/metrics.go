// Package metrics holds the Prometheus instruments for the registry service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailure  = "failure"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ImportsTotal      *prometheus.CounterVec
	ImportDuration    prometheus.Histogram
	ImportRows        prometheus.Counter
	SkippedRowsTotal  *prometheus.CounterVec
	LocalWritesTotal  *prometheus.CounterVec
	MirrorPushesTotal *prometheus.CounterVec
	MirrorDirty       prometheus.Gauge
	RegistryMembers   prometheus.Gauge
	RegistryAccounts  prometheus.Gauge
	ImportsInFlight   prometheus.Gauge
}

// New creates the metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in binaries and a fresh prometheus.NewRegistry()
// in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ImportsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registrysync_imports_total",
			Help: "Imports attempted, by mode and outcome",
		}, []string{"mode", "outcome"}),
		ImportDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "registrysync_import_duration_seconds",
			Help:    "Time to build, reconcile and persist one import",
			Buckets: prometheus.DefBuckets,
		}),
		ImportRows: f.NewCounter(prometheus.CounterOpts{
			Name: "registrysync_import_rows_total",
			Help: "Data rows read from accepted imports",
		}),
		SkippedRowsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registrysync_import_skipped_rows_total",
			Help: "Rows excluded from imports, by reason",
		}, []string{"reason"}),
		LocalWritesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registrysync_local_writes_total",
			Help: "Local snapshot writes, by outcome",
		}, []string{"outcome"}),
		MirrorPushesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registrysync_mirror_pushes_total",
			Help: "Remote mirror pushes, by outcome",
		}, []string{"outcome"}),
		MirrorDirty: f.NewGauge(prometheus.GaugeOpts{
			Name: "registrysync_mirror_dirty",
			Help: "1 while the remote mirror is behind the local state",
		}),
		RegistryMembers: f.NewGauge(prometheus.GaugeOpts{
			Name: "registrysync_registry_members",
			Help: "Members in the live registry",
		}),
		RegistryAccounts: f.NewGauge(prometheus.GaugeOpts{
			Name: "registrysync_registry_accounts",
			Help: "Property accounts in the live registry",
		}),
		ImportsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "registrysync_imports_in_flight",
			Help: "Imports currently holding an import slot",
		}),
	}
}

func (m *Metrics) ObserveImport(mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ImportsTotal.WithLabelValues(mode, outcome).Inc()
	m.ImportDuration.Observe(d.Seconds())
}

func (m *Metrics) AddImportRows(rows int) {
	if m == nil {
		return
	}
	m.ImportRows.Add(float64(rows))
}

func (m *Metrics) AddSkippedRows(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.SkippedRowsTotal.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) IncrementLocalWrites(outcome string) {
	if m == nil {
		return
	}
	m.LocalWritesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementMirrorPushes(outcome string) {
	if m == nil {
		return
	}
	m.MirrorPushesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetMirrorDirty(dirty bool) {
	if m == nil {
		return
	}
	if dirty {
		m.MirrorDirty.Set(1)
		return
	}
	m.MirrorDirty.Set(0)
}

// SetRegistrySize records the live collection sizes.
func (m *Metrics) SetRegistrySize(members, accounts int) {
	if m == nil {
		return
	}
	m.RegistryMembers.Set(float64(members))
	m.RegistryAccounts.Set(float64(accounts))
}

func (m *Metrics) SetImportsInFlight(n int) {
	if m == nil {
		return
	}
	m.ImportsInFlight.Set(float64(n))
}
