// Package provider wraps upstream LLM backends (OpenAI, Anthropic, Gemini,
// and any OpenAI-compatible endpoint resolved by config.ResolveUpstream)
// behind a single streaming interface, so the orchestrator never branches on
// which vendor it is talking to.
package provider

import (
	"context"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// LLMProvider is implemented once per upstream wire format. Complete always
// streams, even for buffered callers: the orchestrator's CreateResponse drains the channel and
// assembles the ChatCompletion itself (see internal/streamrecon).
//
// Implementations must be safe for concurrent use; the orchestrator may hold
// many in-flight turns against the same provider instance.
type LLMProvider interface {
	// Complete sends one chat-completions-shaped request upstream and
	// streams the response back as a sequence of Chunks. The channel is
	// closed after a chunk with Done set to true, or after a chunk
	// carrying a non-nil Error.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *Chunk, error)

	// Name is the provider tag used for telemetry's "system" attribute
	// and for routing diagnostics ("openai", "anthropic", "gemini", ...).
	Name() string

	// SupportsTools reports whether this provider accepts tool/function
	// definitions on CompletionRequest.Tools.
	SupportsTools() bool
}

// CompletionRequest is the provider-agnostic request shape built by
// internal/convert from a turn's canonical InputItems.
type CompletionRequest struct {
	BaseURL     string
	APIKey      string
	Model       string
	System      string
	Messages    []models.ChatMessage
	Tools       []models.ToolDefinition
	ToolChoice  *models.ToolChoice
	Temperature *float64
	TopP        *float64
	MaxTokens   int
	Stream      bool
}

// Chunk is a single streamed fragment of a provider response. Several fields
// may be set on one chunk (for example FinishReason and Usage together with
// Done); callers check each field rather than assume only one carries
// information.
type Chunk struct {
	// ChoiceIndex identifies which parallel choice this fragment belongs
	// to; almost always 0, since the gateway requests n=1 upstream.
	ChoiceIndex int

	// Text is a fragment of assistant-visible output text.
	Text string

	// Reasoning is a fragment of model "thinking" text, surfaced
	// separately from Text so internal/convert can decide whether to
	// fold it into a <think> block or drop it.
	Reasoning string

	// ToolCallDelta is set when the upstream is emitting (possibly
	// partial) tool-call data. internal/streamrecon accumulates deltas
	// keyed by ToolCallDelta.Index.
	ToolCallDelta *ToolCallDelta

	// FinishReason is set on the final chunk for a choice.
	FinishReason string

	// Usage is set once, typically on the terminal chunk, when the
	// upstream reports token accounting.
	Usage *models.Usage

	// Done marks the end of the stream. No further chunks follow.
	Done bool

	// Error terminates the stream; Done is implied.
	Error error
}

// ToolCallDelta is a fragment of a tool call as it streams in. Index
// disambiguates multiple concurrent tool calls within one choice; ID and
// Name are usually only populated on the first fragment, with Arguments
// arriving incrementally afterward.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}
