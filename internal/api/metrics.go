package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/model"
)

// Metrics holds the collectors exposed on /metrics.
type Metrics struct {
	registry     *prometheus.Registry
	requests     *prometheus.CounterVec
	tensorRows   *prometheus.CounterVec
	flows        *prometheus.CounterVec
	extractedRow *prometheus.CounterVec
}

// NewMetrics registers the API collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etc_api_requests_total",
			Help: "API requests by route and status code.",
		}, []string{"route", "code"}),
		tensorRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etc_api_tensor_rows_total",
			Help: "Rows served as tensors by split.",
		}, []string{"split"}),
		flows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etc_extract_flows_total",
			Help: "Capture files reported by extraction runs, by status.",
		}, []string{"status"}),
		extractedRow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etc_extract_rows_total",
			Help: "Feature rows reported by extraction runs, by label.",
		}, []string{"label"}),
	}
	m.registry.MustRegister(m.requests, m.tensorRows, m.flows, m.extractedRow)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveProgress records an extraction progress event.
func (m *Metrics) ObserveProgress(event model.ProgressEvent) {
	m.flows.WithLabelValues(event.Status).Inc()
	if event.Rows > 0 {
		m.extractedRow.WithLabelValues(event.Label).Add(float64(event.Rows))
	}
}
