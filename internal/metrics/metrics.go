// Package metrics exposes catch-up counters in Prometheus format.
//
// All methods are nil-safe so callers can pass a nil *Metrics when
// metrics are disabled.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Announcement results.
const (
	ResultPosted  = "posted"
	ResultRefused = "refused"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

type Metrics struct {
	reg *prometheus.Registry

	accountsScanned prometheus.Counter
	scanFailures    prometheus.Counter
	postsFetched    prometheus.Counter
	postsQueued     prometheus.Counter
	announcements   *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	runs            *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		accountsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crossbot", Name: "accounts_scanned_total",
			Help: "Accounts whose posts were fetched without error.",
		}),
		scanFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crossbot", Name: "scan_failures_total",
			Help: "Scan phases aborted by a fetch error.",
		}),
		postsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crossbot", Name: "posts_fetched_total",
			Help: "Posts returned by the source.",
		}),
		postsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crossbot", Name: "posts_queued_total",
			Help: "Cross-company posts added to the announcement queue.",
		}),
		announcements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crossbot", Name: "announcements_total",
			Help: "Announcement attempts by result.",
		}, []string{"result"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crossbot", Name: "queue_pending",
			Help: "Posts waiting to be announced.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crossbot", Name: "runs_total",
			Help: "Catch-up runs by final state.",
		}, []string{"state"}),
	}
	m.reg.MustRegister(
		m.accountsScanned, m.scanFailures, m.postsFetched, m.postsQueued,
		m.announcements, m.queueDepth, m.runs,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) AccountScanned(fetched int) {
	if m == nil {
		return
	}
	m.accountsScanned.Inc()
	m.postsFetched.Add(float64(fetched))
}

func (m *Metrics) ScanFailed() {
	if m == nil {
		return
	}
	m.scanFailures.Inc()
}

func (m *Metrics) Queued() {
	if m == nil {
		return
	}
	m.postsQueued.Inc()
}

func (m *Metrics) Announced(result string) {
	if m == nil {
		return
	}
	m.announcements.WithLabelValues(result).Inc()
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) RunFinished(state string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(state).Inc()
}
