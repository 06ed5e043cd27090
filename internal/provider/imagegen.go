package provider

import (
	"context"
	"encoding/base64"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIImageGenerator backs the image_generation terminal tool with an
// OpenAI-compatible images endpoint. It satisfies toolservice.ImageGenerator.
type OpenAIImageGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIImageGenerator builds a generator against baseURL (empty for
// api.openai.com) and model (empty for dall-e-3).
func NewOpenAIImageGenerator(apiKey, baseURL, model string) *OpenAIImageGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.CreateImageModelDallE3
	}
	return &OpenAIImageGenerator{client: openai.NewClientWithConfig(cfg), model: model}
}

// Generate renders prompt into raw image bytes. The upstream is asked for
// base64 so no second fetch is needed.
func (g *OpenAIImageGenerator) Generate(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          g.model,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: image generation request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("provider: image generation returned no data")
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("provider: image generation returned malformed base64: %w", err)
	}
	return data, nil
}
