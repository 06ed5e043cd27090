package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

func TestNewTracer_NoEndpointIsNoop(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "test"})
	defer shutdown(context.Background())

	temp := 0.5
	ctx, span := tracer.StartChat(context.Background(), ChatSpanAttrs{
		System: "openai", RequestModel: "gpt-4o-mini", RequestTemp: &temp,
	})
	if ctx == nil {
		t.Fatal("StartChat returned nil context")
	}

	EndChat(span, &models.Response{ID: "resp_1", Model: "gpt-4o-mini", Status: models.ResponseStatusCompleted}, nil)
}

func TestEndChat_RecordsError(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "test"})
	defer shutdown(context.Background())

	_, span := tracer.StartChat(context.Background(), ChatSpanAttrs{System: "openai", RequestModel: "gpt-4o-mini"})
	// Must not panic when given an error instead of a response.
	EndChat(span, nil, errors.New("upstream failed"))
}

func TestStartToolExecAndVectorSearch(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "test"})
	defer shutdown(context.Background())

	_, toolSpan := tracer.StartToolExec(context.Background(), "file_search", "search indexed files", "call_1")
	EndToolExec(toolSpan, nil)

	_, searchSpan := tracer.StartVectorSearch(context.Background(), "vs_1")
	EndVectorSearch(searchSpan, []models.SearchHit{{FileID: "file_1", Score: 0.9}}, nil)
}
