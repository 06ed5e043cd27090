package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// GeminiProvider wraps the Google Generative AI SDK. Gemini differs from the
// two chat-completions-shaped providers enough to warrant its own adapter:
// system prompt via SystemInstruction, a "model" role instead of
// "assistant", parts-based content, and an iterator rather than an SSE
// stream.
type GeminiProvider struct {
	apiKey string
}

func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{apiKey: apiKey}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) SupportsTools() bool { return true }

func (p *GeminiProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *Chunk, error) {
	key := req.APIKey
	if key == "" {
		key = p.apiKey
	}

	opts := []option.ClientOption{option.WithAPIKey(key)}
	if req.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(req.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}

	model := client.GenerativeModel(req.Model)
	configureGeminiModel(model, req)

	parts := convertToGeminiParts(req.Messages)

	out := make(chan *Chunk)
	go func() {
		defer close(out)
		defer client.Close()

		iter := model.GenerateContentStream(ctx, parts...)
		var usage models.Usage

		for {
			chunk, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				out <- &Chunk{Error: fmt.Errorf("gemini: stream error: %w", err), Done: true}
				return
			}

			if len(chunk.Candidates) == 0 {
				continue
			}
			candidate := chunk.Candidates[0]
			if candidate.Content == nil {
				continue
			}

			for toolIndex, part := range candidate.Content.Parts {
				switch v := part.(type) {
				case genai.Text:
					if string(v) != "" {
						out <- &Chunk{Text: string(v)}
					}
				case genai.FunctionCall:
					args, _ := json.Marshal(v.Args)
					out <- &Chunk{ToolCallDelta: &ToolCallDelta{
						Index: toolIndex, Name: v.Name, Arguments: string(args),
					}}
				}
			}

			if candidate.FinishReason != genai.FinishReasonUnspecified {
				out <- &Chunk{FinishReason: mapGeminiFinishReason(candidate.FinishReason)}
			}

			if chunk.UsageMetadata != nil {
				usage = models.Usage{
					InputTokens:  int(chunk.UsageMetadata.PromptTokenCount),
					OutputTokens: int(chunk.UsageMetadata.CandidatesTokenCount),
					TotalTokens:  int(chunk.UsageMetadata.TotalTokenCount),
				}
			}
		}

		out <- &Chunk{Done: true, Usage: &usage}
	}()

	return out, nil
}

func configureGeminiModel(model *genai.GenerativeModel, req *CompletionRequest) {
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		if temp > 1.0 {
			temp = 1.0
		}
		model.SetTemperature(temp)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.TopP != nil {
		model.SetTopP(float32(*req.TopP))
	}
	if len(req.Tools) > 0 {
		model.Tools = convertToGeminiTools(req.Tools)
	}
}

// convertToGeminiParts flattens chat history into Gemini parts. Gemini's
// API expects the running conversation as parts rather than a role-tagged
// message array, so the non-empty Content of user and assistant messages
// becomes plain text parts in arrival order. System messages, tool calls
// and tool results are not included.
func convertToGeminiParts(messages []models.ChatMessage) []genai.Part {
	parts := make([]genai.Part, 0, len(messages))
	for _, msg := range messages {
		if (msg.Role == "user" || msg.Role == "assistant") && msg.Content != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
	}
	return parts
}

func convertToGeminiTools(tools []models.ToolDefinition) []*genai.Tool {
	result := make([]*genai.Tool, 0, len(tools))
	for _, tool := range tools {
		schema := jsonSchemaToGenaiSchema(tool.Parameters)
		result = append(result, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			}},
		})
	}
	return result
}

func jsonSchemaToGenaiSchema(params models.JSONObject) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeObject}
	properties, _ := params["properties"].(map[string]any)
	if len(properties) == 0 {
		return schema
	}
	schema.Properties = make(map[string]*genai.Schema, len(properties))
	for name, raw := range properties {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		schema.Properties[name] = &genai.Schema{
			Type:        genaiTypeFor(prop["type"]),
			Description: fmt.Sprint(prop["description"]),
		}
	}
	if required, ok := params["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

func genaiTypeFor(jsonType any) genai.Type {
	switch jsonType {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func mapGeminiFinishReason(reason genai.FinishReason) string {
	switch reason {
	case genai.FinishReasonStop:
		return "stop"
	case genai.FinishReasonMaxTokens:
		return "length"
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return "content_filter"
	default:
		return "stop"
	}
}
