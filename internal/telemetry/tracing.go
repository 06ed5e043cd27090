package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// TraceConfig configures the OTLP exporter used by Tracer. If Endpoint is
// empty, Tracer exports nowhere but still produces valid no-op spans.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	SamplingRate   float64
	Insecure       bool
}

// Tracer wraps an OpenTelemetry tracer and supplies the span-shape helpers
// the orchestrator, tool handler, and vector search need.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer builds a Tracer and a shutdown func that must be deferred by the
// caller. A zero-value Endpoint yields a tracer taken from the global otel
// provider (a no-op unless the process installed one) that exports nothing.
func NewTracer(cfg TraceConfig) (*Tracer, func(context.Context) error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "open-responses-gateway"
	}
	if cfg.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, func(context.Context) error { return nil }
	}
	if cfg.SamplingRate == 0 {
		cfg.SamplingRate = 1.0
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	if err != nil {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, func(context.Context) error { return nil }
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		res = resource.Default()
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SamplingRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return &Tracer{tracer: provider.Tracer(cfg.ServiceName)}, provider.Shutdown
}

// ChatSpanAttrs holds the attribute set a "chat" span carries.
type ChatSpanAttrs struct {
	System          string
	RequestModel    string
	RequestTemp     *float64
	RequestTopP     *float64
	RequestMaxTok   int
}

// StartChat opens the per-turn "chat" span.
func (t *Tracer) StartChat(ctx context.Context, a ChatSpanAttrs) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("operation_name", "chat"),
		attribute.String("system", a.System),
		attribute.String("request_model", a.RequestModel),
	}
	if a.RequestTemp != nil {
		attrs = append(attrs, attribute.Float64("request_temperature", *a.RequestTemp))
	}
	if a.RequestTopP != nil {
		attrs = append(attrs, attribute.Float64("request_top_p", *a.RequestTopP))
	}
	if a.RequestMaxTok > 0 {
		attrs = append(attrs, attribute.Int("request_max_tokens", a.RequestMaxTok))
	}
	return t.tracer.Start(ctx, "chat", trace.WithAttributes(attrs...))
}

// EndChat finalizes a "chat" span with the response it produced, recording
// the response id/model, usage, and finish reasons. Called exactly
// once per turn, after the terminal event is known (success or error).
func EndChat(span trace.Span, resp *models.Response, err error) {
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	if resp == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("response_id", resp.ID),
		attribute.String("response_model", resp.Model),
		attribute.String("output_type", "response"),
	}
	if resp.Usage != nil {
		attrs = append(attrs,
			attribute.Int("usage_input_tokens", resp.Usage.InputTokens),
			attribute.Int("usage_output_tokens", resp.Usage.OutputTokens),
		)
	}
	var finishReasons []string
	for _, o := range resp.Output {
		if o.Type == models.OutputItemMessage {
			finishReasons = append(finishReasons, string(resp.Status))
		}
	}
	if len(finishReasons) > 0 {
		attrs = append(attrs, attribute.StringSlice("response_finish_reasons", finishReasons))
	}
	span.SetAttributes(attrs...)
	if resp.Status == models.ResponseStatusFailed {
		span.SetStatus(codes.Error, "response failed")
	}
}

// MessageEvent records a gen_ai.*.message event on the span, mirroring each
// input message the orchestrator sends upstream.
func MessageEvent(span trace.Span, role string, payloadJSON string) {
	name := "gen_ai.user.message"
	switch role {
	case "system", "developer":
		name = "gen_ai.system.message"
	case "assistant":
		name = "gen_ai.assistant.message"
	}
	span.AddEvent(name, trace.WithAttributes(attribute.String("payload", payloadJSON)))
}

// StartToolExec opens the "execute_tool" span for one native tool call.
func (t *Tracer) StartToolExec(ctx context.Context, toolName, toolDescription, toolCallID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "execute_tool", trace.WithAttributes(
		attribute.String("operation_name", "execute_tool"),
		attribute.String("tool_name", toolName),
		attribute.String("tool_description", toolDescription),
		attribute.String("tool_call_id", toolCallID),
	))
}

// EndToolExec closes a tool-execution span, tagging error.type on failure.
func EndToolExec(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		return
	}
	span.SetAttributes(attribute.String("error.type", "tool_execution_error"))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// StartVectorSearch opens the "vector_store_search" span.
func (t *Tracer) StartVectorSearch(ctx context.Context, vectorStoreID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "vector_store_search", trace.WithAttributes(
		attribute.String("vector_store_id", vectorStoreID),
	))
}

// EndVectorSearch records result counts/ids/scores and closes the span.
func EndVectorSearch(span trace.Span, hits []models.SearchHit, err error) {
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	var docIDs []string
	var scores []string
	for _, h := range hits {
		docIDs = append(docIDs, h.FileID)
		scores = append(scores, attribute.Float64Value(float64(h.Score)).Emit())
	}
	span.SetAttributes(
		attribute.Int("results_count", len(hits)),
		attribute.StringSlice("document_ids", docIDs),
		attribute.StringSlice("scores", scores),
	)
}
