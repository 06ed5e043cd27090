package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/masaic-ai-platform/open-responses-sub001/internal/convert"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/gatewayerrors"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/streamrecon"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/telemetry"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/toolhandler"
	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// CreateResponse runs one buffered orchestration: an iterative
// turn loop, expressed as an explicit for-loop over turnState rather than
// recursion, so depth is bounded only by the MAX_TOOL_CALLS check, never
// by call-stack depth.
func (o *Orchestrator) CreateResponse(ctx context.Context, req *Request) (*models.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	aliasMap, mcpMap, storeIDsMap := toolLookupMaps(o.Tools, req.Tools)
	ts := &turnState{inputItems: append([]models.InputItem(nil), req.Input...)}
	var lastSearchOutput models.InputItem
	var haveLastSearchOutput bool

	for {
		upstream := o.resolveUpstream(req)
		prov := o.Router.Resolve(upstream.System)
		params := o.responseParams(req)

		spanCtx, span := o.Tracer.StartChat(ctx, telemetry.ChatSpanAttrs{
			System:        upstream.System,
			RequestModel:  upstream.Model,
			RequestTemp:   req.Temperature,
			RequestTopP:   req.TopP,
			RequestMaxTok: req.MaxOutputTokens,
		})
		o.emitMessageEvents(span, ts.inputItems)

		creq := o.buildCompletionRequest(req, upstream, ts.inputItems)
		start := time.Now()
		chunks, err := prov.Complete(spanCtx, creq)
		if err != nil {
			telemetry.EndChat(span, nil, err)
			return nil, fmt.Errorf("orchestrator: %w: %v", gatewayerrors.ErrUpstream, err)
		}

		completion, err := streamrecon.Drain(spanCtx, chunks, upstream.Model)
		if err != nil {
			telemetry.EndChat(span, nil, err)
			return nil, fmt.Errorf("orchestrator: %w: %v", gatewayerrors.ErrUpstream, err)
		}
		ensureCompletionID(completion)
		o.recordUsage(upstream, req.Model, completion, time.Since(start))

		if !completion.AnyToolCalls() {
			resp := convert.ToCanonicalResponse(completion, params)
			if haveLastSearchOutput {
				convert.AttachFileCitations(resp, lastSearchOutput, true)
			}
			telemetry.EndChat(span, resp, nil)
			o.persist(ctx, req, resp, ts.inputItems)
			return resp, nil
		}
		telemetry.EndChat(span, convert.ToCanonicalResponse(completion, params), nil)

		outcome, err := o.ToolHandler.Handle(ctx, toolhandler.Params{
			Completion:            completion,
			Credential:            req.Credential,
			AliasMap:              aliasMap,
			MCPServerForTool:      mcpMap,
			VectorStoreIDsForTool: storeIDsMap,
		})
		if err != nil {
			return nil, err
		}

		switch outcome.Kind {
		case toolhandler.OutcomeTerminate:
			resp := buildTerminalImageResponse(completion, params, time.Now().UTC(), outcome.TerminalItem)
			o.persist(ctx, req, resp, ts.inputItems)
			return resp, nil

		default:
			ts.inputItems = append(ts.inputItems, outcome.Items...)
			if out, ok := lastSearchToolOutput(ts.inputItems); ok {
				lastSearchOutput, haveLastSearchOutput = out, true
			} else {
				haveLastSearchOutput = false
			}

			if outcome.HasUnresolvedClientTools {
				resp := buildInterimResponse(completion, params, time.Now().UTC())
				o.persist(ctx, req, resp, ts.inputItems)
				return resp, nil
			}

			if err := checkToolLimit(ts.inputItems, o.MaxToolCallsBuffered); err != nil {
				return nil, err
			}
			ts.turnCount++
			continue
		}
	}
}

// emitMessageEvents mirrors each input message onto span as a
// gen_ai.*.message event.
func (o *Orchestrator) emitMessageEvents(span trace.Span, items []models.InputItem) {
	for _, item := range convert.ToMessages(items) {
		telemetry.MessageEvent(span, item.Role, messagePayload(item))
	}
}
