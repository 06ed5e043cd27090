package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// OpenAIProvider implements LLMProvider for OpenAI's chat-completions API
// and for any upstream that speaks the same wire format (Groq, Together,
// DeepSeek, local Ollama, and custom base URLs all resolve here).
type OpenAIProvider struct {
	apiKey     string
	maxRetries int
	retryDelay time.Duration
}

// NewOpenAIProvider creates an OpenAI-compatible provider. The base URL is
// supplied per-request via CompletionRequest.BaseURL (resolved upstream by
// config.ResolveUpstream), so a single instance serves every OpenAI-shaped
// backend.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{apiKey: apiKey, maxRetries: 3, retryDelay: time.Second}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) SupportsTools() bool { return true }

func (p *OpenAIProvider) client(req *CompletionRequest) *openai.Client {
	key := req.APIKey
	if key == "" {
		key = p.apiKey
	}
	cfg := openai.DefaultConfig(key)
	if req.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(req.BaseURL, "/")
	}
	return openai.NewClientWithConfig(cfg)
}

// Complete streams a chat completion upstream, retrying transient failures
// before the stream opens (once bytes are flowing, a mid-stream error is
// surfaced to the caller rather than silently retried, since any partial
// output already emitted cannot be un-sent).
func (p *OpenAIProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *Chunk, error) {
	client := p.client(req)

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: convertToOpenAIMessages(req.Messages, req.System),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		chatReq.TopP = float32(*req.TopP)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToOpenAITools(req.Tools)
	}
	if req.ToolChoice != nil {
		chatReq.ToolChoice = convertToOpenAIToolChoice(*req.ToolChoice)
	}

	var stream *openai.ChatCompletionStream
	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
		}

		stream, lastErr = client.CreateChatCompletionStream(ctx, chatReq)
		if lastErr == nil {
			break
		}
		if !isRetryableError(lastErr) {
			return nil, fmt.Errorf("openai: non-retryable error: %w", lastErr)
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("openai: max retries exceeded: %w", lastErr)
	}

	chunks := make(chan *Chunk)
	go processOpenAIStream(ctx, stream, chunks)
	return chunks, nil
}

func processOpenAIStream(ctx context.Context, stream *openai.ChatCompletionStream, out chan<- *Chunk) {
	defer close(out)
	defer stream.Close()

	for {
		select {
		case <-ctx.Done():
			out <- &Chunk{Error: ctx.Err(), Done: true}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				out <- &Chunk{Done: true}
				return
			}
			out <- &Chunk{Error: err, Done: true}
			return
		}

		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			out <- &Chunk{ChoiceIndex: choice.Index, Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			out <- &Chunk{
				ChoiceIndex: choice.Index,
				ToolCallDelta: &ToolCallDelta{
					Index:     index,
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}

		if choice.FinishReason != "" {
			var usage *models.Usage
			if resp.Usage != nil {
				usage = &models.Usage{
					InputTokens:  resp.Usage.PromptTokens,
					OutputTokens: resp.Usage.CompletionTokens,
					TotalTokens:  resp.Usage.TotalTokens,
				}
			}
			out <- &Chunk{ChoiceIndex: choice.Index, FinishReason: string(choice.FinishReason), Usage: usage}
		}
	}
}

func convertToOpenAIMessages(messages []models.ChatMessage, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content, ToolCallID: msg.ToolCallID}
		if len(msg.ToolCalls) > 0 {
			oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls[i] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
		}
		result = append(result, oaiMsg)
	}
	return result
}

func convertToOpenAITools(tools []models.ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		schema := map[string]any(tool.Parameters)
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		}
	}
	return result
}

func convertToOpenAIToolChoice(tc models.ToolChoice) any {
	switch tc.Mode {
	case "none", "auto", "required":
		return tc.Mode
	case "function":
		return openai.ToolChoice{Type: openai.ToolTypeFunction, Function: openai.ToolFunction{Name: tc.Function}}
	default:
		return nil
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
