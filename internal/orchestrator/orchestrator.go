package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/masaic-ai-platform/open-responses-sub001/internal/config"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/convert"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/gatewayerrors"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/provider"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/store"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/telemetry"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/toolhandler"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/toolservice"
	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// Orchestrator owns the iterative turn loop behind /v1/responses. One
// instance is shared across every request; all per-request state lives in
// the turnState value each call builds, never on the Orchestrator itself,
// so concurrent requests never interfere.
type Orchestrator struct {
	Router      *Router
	Tools       *toolservice.Service
	ToolHandler *toolhandler.Handler
	Responses   store.ResponseStore
	Tracer      *telemetry.Tracer
	Metrics     *telemetry.Metrics
	Logger      *slog.Logger

	ProviderBaseURLs      map[string]string
	EnvDefaultBaseURL     string
	MaxToolCallsBuffered  int
	MaxToolCallsStreaming int
	StreamingTimeout      time.Duration
}

// New builds an Orchestrator wired against its collaborators.
func New(router *Router, tools *toolservice.Service, handler *toolhandler.Handler, responses store.ResponseStore, tracer *telemetry.Tracer, metrics *telemetry.Metrics, logger *slog.Logger, cfg *config.Config) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		Router:                router,
		Tools:                 tools,
		ToolHandler:           handler,
		Responses:             responses,
		Tracer:                tracer,
		Metrics:               metrics,
		Logger:                logger,
		ProviderBaseURLs:      cfg.Providers,
		EnvDefaultBaseURL:     cfg.Providers["default"],
		MaxToolCallsBuffered:  cfg.Tools.MaxToolCallsBuffered,
		MaxToolCallsStreaming: cfg.Tools.MaxToolCallsStreaming,
		StreamingTimeout:      cfg.Tools.StreamingTimeout,
	}
}

// turnState is the explicit, stack-safe loop state each orchestration
// carries in place of recursion: every iteration of the outer loop reads
// and rewrites exactly this value.
type turnState struct {
	inputItems []models.InputItem
	turnCount  int
}

// resolveUpstream applies the provider@model grammar to one request.
func (o *Orchestrator) resolveUpstream(req *Request) config.Upstream {
	return config.ResolveUpstream(req.HeaderProvider, req.Model, o.ProviderBaseURLs, o.EnvDefaultBaseURL)
}

// toolLookupMaps builds the lookup tables toolhandler.Handle needs: the
// builtin alias map, a tool-name -> MCP-server-label map drawn from the
// client's type=mcp tool declarations, and a tool-name -> vector_store_ids
// map scoping the retrieval builtins.
func toolLookupMaps(tools *toolservice.Service, defs []models.ToolDefinition) (map[string]string, map[string]string, map[string][]string) {
	aliasMap := tools.BuildAliasMap(defs)
	mcpServerForTool := make(map[string]string)
	storeIDsForTool := make(map[string][]string)
	for _, d := range defs {
		if d.Type == "mcp" && d.Name != "" && d.ServerLabel != "" {
			mcpServerForTool[d.Name] = d.ServerLabel
		}
		if len(d.VectorStoreIDs) > 0 {
			name := d.Name
			if name == "" {
				name = d.Type
			}
			storeIDsForTool[name] = d.VectorStoreIDs
		}
	}
	return aliasMap, mcpServerForTool, storeIDsForTool
}

// buildCompletionRequest translates one turn's state into the
// provider-agnostic request shape.
func (o *Orchestrator) buildCompletionRequest(req *Request, upstream config.Upstream, items []models.InputItem) *provider.CompletionRequest {
	return &provider.CompletionRequest{
		BaseURL:     upstream.BaseURL,
		APIKey:      req.Credential,
		Model:       upstream.Model,
		System:      req.Instructions,
		Messages:    convert.ToMessages(items),
		Tools:       convert.ToolsToDefinitions(req.Tools),
		ToolChoice:  req.ToolChoice,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxOutputTokens,
		Stream:      true,
	}
}

// responseParams projects the request into the fields convert needs to
// stamp onto every canonical Response it builds this orchestration.
func (o *Orchestrator) responseParams(req *Request) convert.ResponseParams {
	return convert.ResponseParams{
		Model:              req.Model,
		ToolChoice:         req.ToolChoice,
		Tools:              req.Tools,
		GenerationParams:   req.GenerationParams(),
		PreviousResponseID: req.PreviousResponseID,
		Metadata:           req.Metadata,
		Store:              req.Store,
	}
}

// recordUsage observes token-usage and duration metrics for one turn.
func (o *Orchestrator) recordUsage(upstream config.Upstream, requestModel string, completion *models.ChatCompletion, elapsed time.Duration) {
	if o.Metrics == nil || completion == nil {
		return
	}
	tags := telemetry.TokenUsageTags{
		System:        upstream.System,
		RequestModel:  requestModel,
		ResponseModel: completion.Model,
		ServerAddress: upstream.BaseURL,
	}
	if completion.Usage != nil {
		o.Metrics.RecordUsage(tags, completion.Usage.InputTokens, completion.Usage.OutputTokens)
	}
	o.Metrics.RecordOperationDuration(tags, elapsed)
}

// persist writes resp/items to the ResponseStore unless the client opted
// out with store=false. Storage failures are logged and swallowed so the
// user-visible response path never breaks on a bad write.
func (o *Orchestrator) persist(ctx context.Context, req *Request, resp *models.Response, items []models.InputItem) {
	if !req.Store || o.Responses == nil {
		return
	}
	if err := o.Responses.Put(ctx, resp, items); err != nil {
		o.Logger.Error("orchestrator: failed to persist response", "response_id", resp.ID, "error", err)
	}
}

// ensureCompletionID synthesizes a UUID-based id when the upstream didn't
// supply one.
func ensureCompletionID(c *models.ChatCompletion) {
	if c != nil && c.ID == "" {
		c.ID = "chatcmpl_" + uuid.NewString()
	}
}

// checkToolLimit enforces that the cumulative FunctionCall count in items
// must not exceed max.
func checkToolLimit(items []models.InputItem, max int) error {
	if max > 0 && models.CountFunctionCalls(items) > max {
		return fmt.Errorf("orchestrator: %w: too many tool calls (limit %d)", gatewayerrors.ErrToolLimitExceeded, max)
	}
	return nil
}

// lastSearchToolOutput reports whether the last element of items is a
// FunctionCallOutput produced by file_search or agentic_search, returning
// that item if so.
func lastSearchToolOutput(items []models.InputItem) (models.InputItem, bool) {
	if len(items) == 0 {
		return models.InputItem{}, false
	}
	last := items[len(items)-1]
	if last.Type != models.InputItemFunctionCallOutput {
		return models.InputItem{}, false
	}
	for i := len(items) - 2; i >= 0; i-- {
		if items[i].Type == models.InputItemFunctionCall && items[i].CallID == last.CallID {
			if items[i].Name == "file_search" || items[i].Name == "agentic_search" {
				return last, true
			}
			return models.InputItem{}, false
		}
	}
	return models.InputItem{}, false
}

// buildInterimResponse builds the "tools requested" interim Response the
// loop stops at: status=completed, Output carries one FunctionCall item
// per tool call the model requested this turn, resolved or not.
func buildInterimResponse(completion *models.ChatCompletion, params convert.ResponseParams, createdAt time.Time) *models.Response {
	resp := &models.Response{
		ID:                 completion.ID,
		CreatedAt:          createdAt,
		Model:              params.Model,
		Status:             models.ResponseStatusCompleted,
		ToolChoice:         params.ToolChoice,
		Tools:              params.Tools,
		Params:             params.GenerationParams,
		PreviousResponseID: params.PreviousResponseID,
		Metadata:           params.Metadata,
		Store:              params.Store,
	}
	if len(completion.Choices) == 0 {
		return resp
	}
	for _, tc := range completion.Choices[0].Message.ToolCalls {
		resp.Output = append(resp.Output, models.OutputItem{
			Type:       models.OutputItemFunctionCall,
			CallID:     tc.ID,
			Name:       tc.Name,
			Arguments:  tc.Arguments,
			CallStatus: models.FunctionCallInProgress,
		})
	}
	return resp
}

// buildTerminalImageResponse packages the Terminate outcome:
// a successful image_generation call's output becomes the whole Response.
func buildTerminalImageResponse(completion *models.ChatCompletion, params convert.ResponseParams, createdAt time.Time, item *models.OutputItem) *models.Response {
	resp := &models.Response{
		ID:                 completion.ID,
		CreatedAt:          createdAt,
		Model:              params.Model,
		Status:             models.ResponseStatusCompleted,
		Output:             []models.OutputItem{*item},
		ToolChoice:         params.ToolChoice,
		Tools:              params.Tools,
		Params:             params.GenerationParams,
		PreviousResponseID: params.PreviousResponseID,
		Metadata:           params.Metadata,
		Store:              params.Store,
	}
	return resp
}

// messagePayload renders a minimal JSON payload for a gen_ai.*.message
// telemetry event.
func messagePayload(msg models.ChatMessage) string {
	data, err := json.Marshal(struct {
		Role    string `json:"role"`
		Content string `json:"content,omitempty"`
	}{Role: msg.Role, Content: msg.Content})
	if err != nil {
		return "{}"
	}
	return string(data)
}
