// Package toolhandler implements the classification and dispatch of a
// reconstructed ChatCompletion's tool calls into native executions,
// terminal results, or client-side parking. Given one completion, it
// returns a single Outcome the orchestrator matches on exhaustively.
package toolhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/trace"

	"github.com/masaic-ai-platform/open-responses-sub001/internal/mcpclient"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/sse"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/telemetry"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/toolservice"
	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// defaultMaxConcurrentTools bounds the tool-execution worker pool when a
// Handler doesn't configure one explicitly.
const defaultMaxConcurrentTools = 4

// OutcomeKind tags Outcome's variant.
type OutcomeKind string

const (
	// OutcomeTerminate means a terminal tool (image_generation) succeeded;
	// TerminalItem carries the final answer and the orchestration ends.
	OutcomeTerminate OutcomeKind = "terminate"

	// OutcomeContinue means every tool call was either resolved natively
	// or parked for the client; Items carries the FunctionCall(/Output)
	// pairs to append to the running input list.
	OutcomeContinue OutcomeKind = "continue"
)

// Outcome is the result of handling one completion's tool calls.
type Outcome struct {
	Kind OutcomeKind

	// Items are the FunctionCall (and, where resolved, FunctionCallOutput)
	// InputItems produced by this call, in the order the provider emitted
	// the tool calls.
	Items []models.InputItem

	// TerminalItem is set only when Kind == OutcomeTerminate.
	TerminalItem *models.OutputItem

	// HasUnresolvedClientTools is true when at least one call could not be
	// resolved server-side, so the orchestrator must stop recursing and
	// return the interim Response to the client.
	HasUnresolvedClientTools bool
}

// Handler dispatches tool calls per the native/terminal/client-side
// classification.
type Handler struct {
	Tools   *toolservice.Service
	MCP     *mcpclient.Client
	Tracer  *telemetry.Tracer
	Metrics *telemetry.Metrics

	// MaxConcurrentTools bounds the worker pool Handle dispatches native
	// tool calls onto. Zero uses defaultMaxConcurrentTools.
	MaxConcurrentTools int
}

// New builds a Handler. tracer/metrics may be nil in tests.
func New(tools *toolservice.Service, mcp *mcpclient.Client, tracer *telemetry.Tracer, metrics *telemetry.Metrics) *Handler {
	return &Handler{Tools: tools, MCP: mcp, Tracer: tracer, Metrics: metrics, MaxConcurrentTools: defaultMaxConcurrentTools}
}

// Params carries everything one Handle call needs beyond the completion
// itself.
type Params struct {
	Completion *models.ChatCompletion
	Credential string

	// AliasMap resolves client-declared tool-name aliases back to the
	// canonical native tool they dispatch to.
	AliasMap map[string]string

	// MCPServerForTool maps a tool's declared name to the MCP server label
	// that serves it, built from the client's type=mcp tool declarations.
	MCPServerForTool map[string]string

	// VectorStoreIDsForTool maps a declared retrieval tool's name to the
	// vector_store_ids the client attached to that declaration.
	VectorStoreIDsForTool map[string][]string

	// Emitter is non-nil only in streaming mode; when set, Handle posts
	// the per-tool lifecycle events into it.
	Emitter *sse.Emitter

	// OutputIndexBase is the output_index the first tool call's lifecycle
	// events should carry; subsequent calls increment from it.
	OutputIndexBase int
}

// dispatchResult is one tool call's outcome, kept positional so the
// concurrent dispatch in Handle can restore provider emission order before
// building the final Outcome.
type dispatchResult struct {
	terminalItem *models.OutputItem
	items        []models.InputItem
	unresolved   bool
	err          error
}

// Handle classifies every tool call on params.Completion's first choice
// and executes the native/MCP ones concurrently on a bounded worker pool,
// then restores call order and returns a single exhaustive Outcome.
// Client-side calls need no dispatch and are resolved inline.
func (h *Handler) Handle(ctx context.Context, params Params) (*Outcome, error) {
	if params.Completion == nil || len(params.Completion.Choices) == 0 {
		return &Outcome{Kind: OutcomeContinue}, nil
	}

	calls := params.Completion.Choices[0].Message.ToolCalls
	results := make([]dispatchResult, len(calls))

	limit := h.MaxConcurrentTools
	if limit <= 0 {
		limit = defaultMaxConcurrentTools
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for i, tc := range calls {
		canonical := toolservice.ResolveAlias(params.AliasMap, tc.Name)
		storeIDs := params.VectorStoreIDsForTool[tc.Name]
		if storeIDs == nil {
			storeIDs = params.VectorStoreIDsForTool[canonical]
		}
		ft, isNative := h.Tools.GetFunctionTool(canonical, &toolservice.ToolContext{
			Credential:     params.Credential,
			VectorStoreIDs: storeIDs,
		})
		serverLabel, isMCP := params.MCPServerForTool[tc.Name]

		switch {
		case isNative:
			i, tc, ft := i, tc, ft
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = h.dispatch(ctx, tc, params.OutputIndexBase+i, ft, false, params.Emitter)
			}()

		case isMCP && h.MCP != nil:
			i, tc := i, tc
			mcpTool := mcpFunctionTool(h.MCP, serverLabel, tc.Name)
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = h.dispatch(ctx, tc, params.OutputIndexBase+i, mcpTool, true, params.Emitter)
			}()

		default:
			// Client-side tool: record the FunctionCall only, no output,
			// no dispatch needed.
			results[i] = dispatchResult{
				items: []models.InputItem{{
					Type:      models.InputItemFunctionCall,
					CallID:    tc.ID,
					Name:      tc.Name,
					Arguments: tc.Arguments,
				}},
				unresolved: true,
			}
		}
	}
	wg.Wait()

	var errs *multierror.Error
	out := &Outcome{Kind: OutcomeContinue}
	for i, r := range results {
		if r.err != nil {
			errs = multierror.Append(errs, fmt.Errorf("tool call %q: %w", calls[i].Name, r.err))
			continue
		}
		if r.terminalItem != nil && out.Kind != OutcomeTerminate {
			out.Kind = OutcomeTerminate
			out.TerminalItem = r.terminalItem
			continue
		}
		out.Items = append(out.Items, r.items...)
		if r.unresolved {
			out.HasUnresolvedClientTools = true
		}
	}
	if errs.ErrorOrNil() != nil {
		return nil, errs.ErrorOrNil()
	}
	return out, nil
}

// dispatch wraps executeNative with panic recovery so one misbehaving tool
// never takes down the whole worker pool; a recovered panic becomes a
// dispatchResult error, aggregated by Handle via go-multierror.
func (h *Handler) dispatch(ctx context.Context, tc models.ChatToolCall, outputIndex int, ft *toolservice.FunctionTool, isMCP bool, emitter *sse.Emitter) (res dispatchResult) {
	defer func() {
		if r := recover(); r != nil {
			res = dispatchResult{err: fmt.Errorf("tool handler: panic in %q: %v", ft.Name, r)}
		}
	}()
	terminalItem, items, err := h.executeNative(ctx, tc, outputIndex, ft, isMCP, emitter)
	return dispatchResult{terminalItem: terminalItem, items: items, err: err}
}

// mcpFunctionTool adapts an MCP call into the same *toolservice.FunctionTool
// shape executeNative expects, so MCP and builtin tools share one execution
// and telemetry path.
func mcpFunctionTool(client *mcpclient.Client, serverLabel, toolName string) *toolservice.FunctionTool {
	return &toolservice.FunctionTool{
		Name: toolName,
		Execute: func(ctx context.Context, args json.RawMessage) (string, error) {
			return client.ExecuteTool(ctx, serverLabel, toolName, args)
		},
	}
}

// executeNative runs one native (or MCP) tool call end to end: schema
// validation, the execute_tool telemetry span, progress events, and error
// embedding. It returns a non-nil terminalItem only for a successful
// terminal tool; otherwise the returned InputItem slice carries the
// FunctionCall(+Output) pair to append.
func (h *Handler) executeNative(ctx context.Context, tc models.ChatToolCall, outputIndex int, ft *toolservice.FunctionTool, isMCP bool, emitter *sse.Emitter) (*models.OutputItem, []models.InputItem, error) {
	itemID := tc.ID
	if itemID == "" {
		itemID = "fc_" + uuid.NewString()
	}

	h.emitLifecycle(emitter, ft.Name, isMCP, sse.ToolInProgress, itemID, outputIndex, "")
	h.emitLifecycle(emitter, ft.Name, isMCP, sse.ToolExecuting, itemID, outputIndex, "")
	if ft.Terminal {
		h.emitLifecycle(emitter, ft.Name, isMCP, sse.ToolGenerating, itemID, outputIndex, "")
	}

	var span trace.Span
	spanCtx := ctx
	if h.Tracer != nil {
		spanCtx, span = h.Tracer.StartToolExec(ctx, ft.Name, ft.Description, tc.ID)
	}

	start := time.Now()
	args := json.RawMessage(tc.Arguments)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	var execErr error
	if err := ft.Validate(args); err != nil {
		execErr = err
	}
	var output string
	if execErr == nil {
		output, execErr = ft.Execute(spanCtx, args)
	}
	duration := time.Since(start)

	if h.Metrics != nil {
		h.Metrics.RecordToolExecution(ft.Name, duration, execErr != nil)
	}
	if h.Tracer != nil && span != nil {
		telemetry.EndToolExec(span, execErr)
	}

	if execErr != nil {
		h.emitLifecycle(emitter, ft.Name, isMCP, sse.ToolCompleted, itemID, outputIndex, execErr.Error())
		call, callOut := models.FunctionCallOutputFor(tc.ID, tc.Name, tc.Arguments, fmt.Sprintf("error: %s", execErr.Error()))
		return nil, []models.InputItem{call, callOut}, nil
	}

	h.emitLifecycle(emitter, ft.Name, isMCP, sse.ToolCompleted, itemID, outputIndex, "")

	if ft.Terminal {
		return &models.OutputItem{
			Type:       models.OutputItemImageGenerationCall,
			CallID:     tc.ID,
			ResultB64:  output,
			CallStatus: models.FunctionCallCompleted,
		}, nil, nil
	}

	call, callOut := models.FunctionCallOutputFor(tc.ID, tc.Name, tc.Arguments, output)
	return nil, []models.InputItem{call, callOut}, nil
}

func (h *Handler) emitLifecycle(emitter *sse.Emitter, toolName string, isMCP bool, stage sse.ToolLifecycleStage, itemID string, outputIndex int, errMsg string) {
	if emitter == nil {
		return
	}
	emitter.Emit(sse.ToolEventType(toolName, isMCP, stage), sse.ToolLifecycleData{
		ItemID:      itemID,
		OutputIndex: outputIndex,
		Error:       errMsg,
	})
}
