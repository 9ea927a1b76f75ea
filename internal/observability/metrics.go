package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "keyword_collector"

// Metrics are the collector's Prometheus instruments. A nil *Metrics is a no-op.
type Metrics struct {
	stageDuration  *prometheus.HistogramVec
	collections    *prometheus.CounterVec
	extractedRows  *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

// NewMetrics registers the collector metrics on reg, reusing collectors that
// are already registered. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of collection pipeline stages.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage", "outcome"}),
		collections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "collections_total",
			Help:      "Completed collection runs by status and filtering method.",
		}, []string{"status", "filtering_method"}),
		extractedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "extracted_rows_total",
			Help:      "Spreadsheet rows seen by the extractor, kept or rejected.",
		}, []string{"result"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_browser_sessions",
			Help:      "Browser sessions currently open.",
		}),
	}

	var err error
	if m.stageDuration, err = register(reg, m.stageDuration); err != nil {
		return nil, err
	}
	if m.collections, err = register(reg, m.collections); err != nil {
		return nil, err
	}
	if m.extractedRows, err = register(reg, m.extractedRows); err != nil {
		return nil, err
	}
	if m.activeSessions, err = register(reg, m.activeSessions); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return c, fmt.Errorf("register metric: %w", err)
		}
		existing, ok := are.ExistingCollector.(C)
		if !ok {
			return c, fmt.Errorf("register metric: %w", err)
		}
		return existing, nil
	}
	return c, nil
}

// ObserveStage records how long a stage took and whether it succeeded.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.stageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

// CountCollection records a finished run.
func (m *Metrics) CountCollection(status, filteringMethod string) {
	if m == nil {
		return
	}
	if filteringMethod == "" {
		filteringMethod = "none"
	}
	m.collections.WithLabelValues(status, filteringMethod).Inc()
}

// AddRows records extractor row outcomes.
func (m *Metrics) AddRows(kept, rejected int) {
	if m == nil {
		return
	}
	m.extractedRows.WithLabelValues("kept").Add(float64(kept))
	m.extractedRows.WithLabelValues("rejected").Add(float64(rejected))
}

// SessionOpened and SessionClosed track live browsers.
func (m *Metrics) SessionOpened() {
	if m != nil {
		m.activeSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.activeSessions.Dec()
	}
}
