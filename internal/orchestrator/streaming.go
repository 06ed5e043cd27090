package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/masaic-ai-platform/open-responses-sub001/internal/convert"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/sse"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/streamrecon"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/telemetry"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/toolhandler"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/toolservice"
	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// eventBufferSize bounds the SSE channel so back-pressure from a slow
// client is explicit and observable rather than an unbounded goroutine
// buildup.
const eventBufferSize = 64

// StreamResponse is the streaming counterpart of CreateResponse. It
// validates req synchronously, then returns a channel of canonical SSE
// events and spawns the turn loop in its own goroutine; the channel is
// closed after the terminal event.
func (o *Orchestrator) StreamResponse(ctx context.Context, req *Request) (<-chan sse.Event, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	out := make(chan sse.Event, eventBufferSize)
	go o.runStream(ctx, req, out)
	return out, nil
}

func (o *Orchestrator) runStream(parentCtx context.Context, req *Request, out chan<- sse.Event) {
	defer close(out)

	ctx, cancel := context.WithTimeout(parentCtx, o.deadline())
	defer cancel()

	seq := &sse.Sequencer{}
	emitter := sse.NewEmitter(seq, out)

	responseID := "resp_" + uuid.NewString()
	params := o.responseParams(req)

	created := &models.Response{
		ID:         responseID,
		CreatedAt:  time.Now().UTC(),
		Model:      req.Model,
		Status:     models.ResponseStatusInProgress,
		ToolChoice: params.ToolChoice,
		Tools:      params.Tools,
		Params:     params.GenerationParams,
		Metadata:   params.Metadata,
		Store:      params.Store,
	}
	emitter.Emit(sse.EventCreated, sse.CreatedData{Response: created})

	aliasMap, mcpMap, storeIDsMap := toolLookupMaps(o.Tools, req.Tools)
	suppressNativeArgs := func(toolName string) bool {
		if toolName == "" {
			return false
		}
		_, native := o.Tools.GetFunctionTool(toolservice.ResolveAlias(aliasMap, toolName), nil)
		return native
	}
	ts := &turnState{inputItems: append([]models.InputItem(nil), req.Input...)}
	var lastSearchOutput models.InputItem
	var haveLastSearchOutput bool
	inProgressSent := false
	outputIndex := 0

	for {
		if ctx.Err() != nil {
			o.emitTimeout(emitter, ctx.Err())
			return
		}

		upstream := o.resolveUpstream(req)
		prov := o.Router.Resolve(upstream.System)

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
			o.emitUpstreamError(emitter, ctx, err)
			return
		}

		if !inProgressSent {
			emitter.Emit(sse.EventInProgress, sse.CreatedData{Response: created})
			inProgressSent = true
		}

		itemID := itemIDForTurn(responseID, ts.turnCount)
		emitter.Emit(sse.EventOutputItemAdded, sse.OutputItemData{
			OutputIndex: outputIndex,
			Item:        models.OutputItem{Type: models.OutputItemMessage, Role: "assistant", ID: itemID},
		})

		completion, err := streamrecon.Forward(ctx, chunks, upstream.Model, emitter, outputIndex, itemID, suppressNativeArgs)
		if err != nil {
			telemetry.EndChat(span, nil, err)
			o.emitUpstreamError(emitter, ctx, err)
			return
		}
		ensureCompletionID(completion)
		o.recordUsage(upstream, req.Model, completion, time.Since(start))

		preview := convert.ToCanonicalResponse(completion, params)
		telemetry.EndChat(span, preview, nil)

		if !completion.AnyToolCalls() {
			resp := preview
			resp.ID = responseID
			if haveLastSearchOutput {
				convert.AttachFileCitations(resp, lastSearchOutput, true)
			}
			if len(resp.Output) > 0 {
				emitter.Emit(sse.EventOutputItemDone, sse.OutputItemData{OutputIndex: outputIndex, Item: resp.Output[0]})
			}
			o.persist(ctx, req, resp, ts.inputItems)
			o.emitTerminal(emitter, resp)
			return
		}

		outcome, err := o.ToolHandler.Handle(ctx, toolhandler.Params{
			Completion:            completion,
			Credential:            req.Credential,
			AliasMap:              aliasMap,
			MCPServerForTool:      mcpMap,
			VectorStoreIDsForTool: storeIDsMap,
			Emitter:               emitter,
			OutputIndexBase:       outputIndex + 1,
		})
		if err != nil {
			o.emitUpstreamError(emitter, ctx, err)
			return
		}

		switch outcome.Kind {
		case toolhandler.OutcomeTerminate:
			resp := buildTerminalImageResponse(completion, params, time.Now().UTC(), outcome.TerminalItem)
			resp.ID = responseID
			o.persist(ctx, req, resp, ts.inputItems)
			emitter.Emit(sse.EventCompleted, sse.TerminalData{Response: resp})
			return

		default:
			ts.inputItems = append(ts.inputItems, outcome.Items...)
			if o2, ok := lastSearchToolOutput(ts.inputItems); ok {
				lastSearchOutput, haveLastSearchOutput = o2, true
			} else {
				haveLastSearchOutput = false
			}

			if outcome.HasUnresolvedClientTools {
				resp := buildInterimResponse(completion, params, time.Now().UTC())
				resp.ID = responseID
				o.persist(ctx, req, resp, ts.inputItems)
				emitter.Emit(sse.EventCompleted, sse.TerminalData{Response: resp})
				return
			}

			if err := checkToolLimit(ts.inputItems, o.MaxToolCallsStreaming); err != nil {
				emitter.Emit(sse.EventError, sse.ErrorData{Code: "too_many_tool_calls", Message: err.Error()})
				return
			}

			outputIndex += len(completion.Choices[0].Message.ToolCalls) + 1
			ts.turnCount++
			continue
		}
	}
}

func (o *Orchestrator) deadline() time.Duration {
	if o.StreamingTimeout <= 0 {
		return 300 * time.Second
	}
	return o.StreamingTimeout
}

func (o *Orchestrator) emitTimeout(emitter *sse.Emitter, err error) {
	emitter.Emit(sse.EventError, sse.ErrorData{Code: "timeout", Message: err.Error()})
}

func (o *Orchestrator) emitUpstreamError(emitter *sse.Emitter, ctx context.Context, err error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		o.emitTimeout(emitter, ctx.Err())
		return
	}
	emitter.Emit(sse.EventError, sse.ErrorData{Code: "server_error", Message: err.Error()})
}

// emitTerminal emits the status-appropriate terminal event for resp and,
// for a content-filter failure, folds the error into the event payload:
// status=failed plus an error with code=server_error.
func (o *Orchestrator) emitTerminal(emitter *sse.Emitter, resp *models.Response) {
	switch resp.Status {
	case models.ResponseStatusIncomplete:
		emitter.Emit(sse.EventIncomplete, sse.TerminalData{Response: resp})
	case models.ResponseStatusFailed:
		code, msg := "server_error", "response failed"
		if resp.Error != nil {
			code, msg = resp.Error.Code, resp.Error.Message
		}
		emitter.Emit(sse.EventError, sse.ErrorData{Code: code, Message: msg})
	default:
		emitter.Emit(sse.EventCompleted, sse.TerminalData{Response: resp})
	}
}

func itemIDForTurn(responseID string, turnCount int) string {
	return responseID + "_msg" + intSuffix(turnCount)
}

func intSuffix(n int) string {
	if n == 0 {
		return ""
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return "_" + string(digits)
}
