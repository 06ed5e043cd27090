package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the gateway.
//
// Token usage and call latency are both Prometheus Histograms:
// TokenUsage observes one sample per (operation, system, token_type,
// request_model, response_model, server_address) tuple per turn.
// OperationDuration observes call latency under the same tags minus
// token_type; ToolDuration is labelled by tool_name only and
// SearchDuration by vector_store_id only.
type Metrics struct {
	TokenUsage        *prometheus.HistogramVec
	OperationDuration *prometheus.HistogramVec
	ToolDuration      *prometheus.HistogramVec
	ToolExecutions    *prometheus.CounterVec
	SearchDuration    *prometheus.HistogramVec
	RequestCounter    *prometheus.CounterVec
}

// NewMetrics registers and returns the gateway's metric collectors. Call
// once at startup; registering twice against the default registry panics.
func NewMetrics() *Metrics {
	return &Metrics{
		TokenUsage: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_token_usage",
				Help:    "Token usage per turn by operation, system, and token type",
				Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 20000, 100000},
			},
			[]string{"operation_name", "system", "token_type", "request_model", "response_model", "server_address"},
		),
		OperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_operation_duration_seconds",
				Help:    "Duration of a chat orchestration operation",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"operation_name", "system", "request_model", "response_model", "server_address"},
		),
		ToolDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_tool_duration_seconds",
				Help:    "Duration of a native tool execution",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),
		ToolExecutions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_tool_executions_total",
				Help: "Total native tool executions by outcome",
			},
			[]string{"tool_name", "status"},
		),
		SearchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_vector_search_duration_seconds",
				Help:    "Duration of a vector_store_search operation",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"vector_store_id"},
		),
		RequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Total /v1/responses and /v1/chat/completions requests by status",
			},
			[]string{"endpoint", "status"},
		),
	}
}

// TokenUsageTags holds the label values for one TokenUsage Histogram
// observation.
type TokenUsageTags struct {
	System        string
	RequestModel  string
	ResponseModel string
	ServerAddress string
}

// RecordUsage observes input/output token counts as two Histogram samples.
func (m *Metrics) RecordUsage(tags TokenUsageTags, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.TokenUsage.WithLabelValues("chat", tags.System, "input", tags.RequestModel, tags.ResponseModel, tags.ServerAddress).Observe(float64(inputTokens))
	m.TokenUsage.WithLabelValues("chat", tags.System, "output", tags.RequestModel, tags.ResponseModel, tags.ServerAddress).Observe(float64(outputTokens))
}

// RecordOperationDuration observes the wall time of one chat turn.
func (m *Metrics) RecordOperationDuration(tags TokenUsageTags, d time.Duration) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues("chat", tags.System, tags.RequestModel, tags.ResponseModel, tags.ServerAddress).Observe(d.Seconds())
}

// RecordToolExecution observes one native tool call's duration and outcome.
func (m *Metrics) RecordToolExecution(toolName string, d time.Duration, isError bool) {
	if m == nil {
		return
	}
	m.ToolDuration.WithLabelValues(toolName).Observe(d.Seconds())
	status := "success"
	if isError {
		status = "error"
	}
	m.ToolExecutions.WithLabelValues(toolName, status).Inc()
}

// RecordSearch observes one vector_store_search call's duration.
func (m *Metrics) RecordSearch(vectorStoreID string, d time.Duration) {
	if m == nil {
		return
	}
	m.SearchDuration.WithLabelValues(vectorStoreID).Observe(d.Seconds())
}

// RecordRequest increments the request counter for an HTTP endpoint.
func (m *Metrics) RecordRequest(endpoint, status string) {
	if m == nil {
		return
	}
	m.RequestCounter.WithLabelValues(endpoint, status).Inc()
}
