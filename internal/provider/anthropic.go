package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// maxEmptyStreamEvents bounds how many consecutive content-free SSE events
// processAnthropicStream tolerates before treating the upstream as
// malformed and aborting the turn.
const maxEmptyStreamEvents = 50

// AnthropicProvider implements LLMProvider against the Messages API,
// including its content-block based streaming protocol and <think> block
// surfacing for extended-thinking models.
type AnthropicProvider struct {
	apiKey     string
	maxRetries int
	retryDelay time.Duration
}

func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{apiKey: apiKey, maxRetries: 3, retryDelay: time.Second}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) SupportsTools() bool { return true }

func (p *AnthropicProvider) client(req *CompletionRequest) anthropic.Client {
	key := req.APIKey
	if key == "" {
		key = p.apiKey
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if req.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(req.BaseURL))
	}
	return anthropic.NewClient(opts...)
}

// Complete opens a Messages streaming request with exponential-backoff
// retries on transient failures, then relays content-block events as
// Chunks. Reasoning text ("thinking" blocks) is surfaced on Chunk.Reasoning
// so the converter can fold it into a <think> block on the canonical side.
func (p *AnthropicProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *Chunk, error) {
	out := make(chan *Chunk)

	go func() {
		defer close(out)

		client := p.client(req)
		messages, err := convertToAnthropicMessages(req.Messages)
		if err != nil {
			out <- &Chunk{Error: fmt.Errorf("anthropic: %w", err), Done: true}
			return
		}

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(modelOrDefault(req.Model, "claude-sonnet-4-20250514")),
			Messages:  messages,
			MaxTokens: int64(maxTokensOrDefault(req.MaxTokens)),
		}
		if req.System != "" {
			params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
		}
		if len(req.Tools) > 0 {
			tools, err := convertToAnthropicTools(req.Tools)
			if err != nil {
				out <- &Chunk{Error: fmt.Errorf("anthropic: %w", err), Done: true}
				return
			}
			params.Tools = tools
		}

		var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
		for attempt := 0; attempt <= p.maxRetries; attempt++ {
			stream = client.Messages.NewStreaming(ctx, params)
			if stream.Err() == nil {
				break
			}
			if !isRetryableError(stream.Err()) {
				out <- &Chunk{Error: fmt.Errorf("anthropic: non-retryable error: %w", stream.Err()), Done: true}
				return
			}
			if attempt == p.maxRetries {
				out <- &Chunk{Error: fmt.Errorf("anthropic: max retries exceeded: %w", stream.Err()), Done: true}
				return
			}
			backoff := p.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				out <- &Chunk{Error: ctx.Err(), Done: true}
				return
			case <-time.After(backoff):
			}
		}

		processAnthropicStream(stream, out)
	}()

	return out, nil
}

func processAnthropicStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- *Chunk) {
	var currentToolCall *ToolCallDelta
	var toolIndex int
	emptyEvents := 0

	var usage models.Usage

	for stream.Next() {
		event := stream.Current()
		processed := false

		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			if start.Message.Usage.InputTokens > 0 {
				usage.InputTokens = int(start.Message.Usage.InputTokens)
			}
			processed = true

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				currentToolCall = &ToolCallDelta{Index: toolIndex, ID: toolUse.ID, Name: toolUse.Name}
				toolIndex++
				processed = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					out <- &Chunk{Text: delta.Text}
					processed = true
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					out <- &Chunk{Reasoning: delta.Thinking}
					processed = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" && currentToolCall != nil {
					out <- &Chunk{ToolCallDelta: &ToolCallDelta{
						Index: currentToolCall.Index, ID: currentToolCall.ID, Name: currentToolCall.Name, Arguments: delta.PartialJSON,
					}}
					currentToolCall.Name, currentToolCall.ID = "", ""
					processed = true
				}
			}

		case "content_block_stop":
			currentToolCall = nil
			processed = true

		case "message_delta":
			delta := event.AsMessageDelta()
			if delta.Usage.OutputTokens > 0 {
				usage.OutputTokens = int(delta.Usage.OutputTokens)
			}
			if string(delta.Delta.StopReason) != "" {
				out <- &Chunk{FinishReason: mapAnthropicStopReason(string(delta.Delta.StopReason))}
			}
			processed = true

		case "message_stop":
			usage.TotalTokens = usage.InputTokens + usage.OutputTokens
			out <- &Chunk{Done: true, Usage: &usage}
			return

		case "error":
			out <- &Chunk{Error: errors.New("anthropic: stream error"), Done: true}
			return
		}

		if processed {
			emptyEvents = 0
		} else {
			emptyEvents++
			if emptyEvents >= maxEmptyStreamEvents {
				out <- &Chunk{Error: fmt.Errorf("anthropic: stream appears malformed after %d empty events", emptyEvents), Done: true}
				return
			}
		}
	}

	if err := stream.Err(); err != nil {
		out <- &Chunk{Error: fmt.Errorf("anthropic: %w", err), Done: true}
	}
}

func mapAnthropicStopReason(reason string) string {
	switch reason {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	default:
		return "stop"
	}
}

func convertToAnthropicMessages(messages []models.ChatMessage) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		if msg.Role == "tool" {
			content = append(content, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if tc.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
					return nil, fmt.Errorf("invalid tool call arguments for %s: %w", tc.Name, err)
				}
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}

		if msg.Role == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}

	return result, nil
}

func convertToAnthropicTools(tools []models.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		schemaBytes, err := json.Marshal(map[string]any(tool.Parameters))
		if err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(schemaBytes, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool != nil {
			toolParam.OfTool.Description = anthropic.String(tool.Description)
		}
		result = append(result, toolParam)
	}
	return result, nil
}

func modelOrDefault(model, def string) string {
	if model == "" {
		return def
	}
	return model
}

func maxTokensOrDefault(maxTokens int) int {
	if maxTokens <= 0 {
		return 4096
	}
	return maxTokens
}
