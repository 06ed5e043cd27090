package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestMetrics builds a Metrics against a private registry so tests don't
// collide with each other on Prometheus's default registry (promauto
// registers there by default; NewMetrics is only ever called once at
// startup in production).
func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return &Metrics{
		TokenUsage: prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "t_token_usage"},
			[]string{"operation_name", "system", "token_type", "request_model", "response_model", "server_address"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "t_operation_duration"},
			[]string{"operation_name", "system", "request_model", "response_model", "server_address"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "t_tool_duration"}, []string{"tool_name"}),
		ToolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "t_tool_executions"},
			[]string{"tool_name", "status"}),
		SearchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "t_search_duration"}, []string{"vector_store_id"}),
		RequestCounter: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "t_requests"}, []string{"endpoint", "status"}),
	}
}

func TestRecordUsage(t *testing.T) {
	m := newTestMetrics(t)
	tags := TokenUsageTags{System: "openai", RequestModel: "gpt-4o-mini", ResponseModel: "gpt-4o-mini", ServerAddress: "api.openai.com"}

	m.RecordUsage(tags, 10, 15)

	if count := testutil.CollectAndCount(m.TokenUsage); count != 2 {
		t.Errorf("CollectAndCount = %d, want 2 (input + output samples)", count)
	}
}

func TestRecordToolExecution(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordToolExecution("file_search", 50*time.Millisecond, false)
	m.RecordToolExecution("file_search", 75*time.Millisecond, true)

	successCount := testutil.ToFloat64(m.ToolExecutions.WithLabelValues("file_search", "success"))
	errorCount := testutil.ToFloat64(m.ToolExecutions.WithLabelValues("file_search", "error"))
	if successCount != 1 {
		t.Errorf("success count = %v, want 1", successCount)
	}
	if errorCount != 1 {
		t.Errorf("error count = %v, want 1", errorCount)
	}
}

func TestRecordRequest(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRequest("/v1/responses", "completed")
	m.RecordRequest("/v1/responses", "completed")
	m.RecordRequest("/v1/responses", "failed")

	completed := testutil.ToFloat64(m.RequestCounter.WithLabelValues("/v1/responses", "completed"))
	if completed != 2 {
		t.Errorf("completed count = %v, want 2", completed)
	}
}

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	// Must not panic when telemetry is disabled.
	m.RecordUsage(TokenUsageTags{}, 1, 1)
	m.RecordToolExecution("x", time.Millisecond, false)
	m.RecordSearch("vs_1", time.Millisecond)
	m.RecordRequest("/v1/responses", "completed")
	m.RecordOperationDuration(TokenUsageTags{}, time.Millisecond)
}
