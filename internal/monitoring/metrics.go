package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the crawl engine.
type Metrics struct {
	PagesTotal        prometheus.Counter
	BytesTotal        prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	EscalationsTotal  prometheus.Counter
	RobotsDeniedTotal prometheus.Counter
	RetriesTotal      prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		PagesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crawler_pages_total",
			Help: "The total number of pages processed",
		}),
		BytesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crawler_bytes_total",
			Help: "The total size of fetched page bodies in bytes",
		}),
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_errors_total",
			Help: "The total number of errors encountered",
		}, []string{"type"}), // e.g. 'fetch_failed', 'db_save_failed', 'render_failed'
		EscalationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crawler_render_escalations_total",
			Help: "The total number of pages escalated to the headless renderer",
		}),
		RobotsDeniedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crawler_robots_denied_total",
			Help: "The total number of URLs skipped by robots.txt rules",
		}),
		RetriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crawler_retries_total",
			Help: "The total number of locally retried fetches",
		}),
	}
}

// The increment helpers tolerate a nil receiver so the engine can run
// without a metrics registry (tests, library embedding).

func (m *Metrics) IncPages() {
	if m != nil {
		m.PagesTotal.Inc()
	}
}

func (m *Metrics) AddBytes(n int) {
	if m != nil {
		m.BytesTotal.Add(float64(n))
	}
}

func (m *Metrics) IncErrors(errorType string) {
	if m != nil {
		m.ErrorsTotal.WithLabelValues(errorType).Inc()
	}
}

func (m *Metrics) IncEscalations() {
	if m != nil {
		m.EscalationsTotal.Inc()
	}
}

func (m *Metrics) IncRobotsDenied() {
	if m != nil {
		m.RobotsDeniedTotal.Inc()
	}
}

func (m *Metrics) IncRetries() {
	if m != nil {
		m.RetriesTotal.Inc()
	}
}
