// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gustavo_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gustavo_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ProviderCallDuration tracks LLM provider calls.
	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gustavo_provider_call_duration_seconds",
			Help:    "LLM provider call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "operation", "status"},
	)

	// ToolInvocationsTotal counts tool runs. status is "ok", "error" (result carried an error key) or "not_found".
	ToolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gustavo_tool_invocations_total",
			Help: "Total tool invocations",
		},
		[]string{"tool", "status"},
	)

	// OutcomesTotal counts finished orchestrations by the path they took.
	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gustavo_chat_outcomes_total",
			Help: "Chat orchestrations by final path",
		},
		[]string{"path"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordProviderCall records one LLM call.
func RecordProviderCall(provider, operation string, err error, duration float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ProviderCallDuration.WithLabelValues(provider, operation, status).Observe(duration)
}

// UnknownTool labels calls to tools that are not registered.
const UnknownTool = "unknown"

// RecordTool records one tool invocation.
func RecordTool(tool, status string) {
	ToolInvocationsTotal.WithLabelValues(tool, status).Inc()
}

// RecordOutcome records how an orchestration ended.
func RecordOutcome(path string) {
	OutcomesTotal.WithLabelValues(path).Inc()
}
