package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	costsTotal      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

var (
	// promauto panics on duplicate registration, so the recorder is a singleton.
	promInstance *PrometheusRecorder //nolint:gochecknoglobals
	promOnce     sync.Once           //nolint:gochecknoglobals
)

// NewPrometheusRecorder returns the Prometheus-based metrics recorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	promOnce.Do(func() {
		promInstance = &PrometheusRecorder{
			requestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_requests_total",
					Help: "Total number of LLM requests by model, component, and status",
				},
				[]string{"model", "component", "status", "error_type"},
			),
			tokensTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_tokens_total",
					Help: "Total number of tokens used in LLM requests",
				},
				[]string{"model", "component", "type"},
			),
			costsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_costs_total",
					Help: "Total cost in USD for LLM requests",
				},
				[]string{"model", "component"},
			),
			requestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "llm_request_duration_seconds",
					Help:    "Duration of LLM requests in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"model", "component"},
			),
		}
	})
	return promInstance
}

// ObserveRequest records metrics for a completed LLM request.
func (p *PrometheusRecorder) ObserveRequest(
	model, component string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := statusSuccess
	if !success {
		status = statusError
	}

	p.requestsTotal.WithLabelValues(model, component, status, errorType).Inc()

	if promptTokens > 0 {
		p.tokensTotal.WithLabelValues(model, component, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		p.tokensTotal.WithLabelValues(model, component, "completion").Add(float64(completionTokens))
	}
	if cost > 0 {
		p.costsTotal.WithLabelValues(model, component).Add(cost)
	}

	p.requestDuration.WithLabelValues(model, component).Observe(duration.Seconds())
}
