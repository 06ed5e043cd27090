package vectorstore

import (
	"context"
	"fmt"
	"hash/fnv"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder calls the embeddings endpoint of an OpenAI-compatible
// upstream, reusing the same client library the chat provider does.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
}

func NewOpenAIEmbedder(apiKey, baseURL, model string, dim int) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dim <= 0 {
		dim = 1536
	}
	return &OpenAIEmbedder{client: openai.NewClientWithConfig(cfg), model: model, dim: dim}
}

func (e *OpenAIEmbedder) Dimension() int { return e.dim }

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embeddings request failed: %w", err)
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// HashEmbedder is a deterministic, API-free Embedder used in tests and in
// local runs without an embeddings provider configured. It hashes text into
// a fixed-dimension pseudo-vector; it carries no semantic meaning beyond
// giving identical text identical vectors and differing text differing
// ones, which is enough to exercise the ANN path end to end.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 64
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dimension() int { return h.dim }

func (h *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = h.embedOne(text)
	}
	return out, nil
}

func (h *HashEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, h.dim)
	hasher := fnv.New64a()
	for i := 0; i < h.dim; i++ {
		hasher.Reset()
		hasher.Write([]byte(text))
		hasher.Write([]byte{byte(i)})
		sum := hasher.Sum64()
		vec[i] = float32(sum%2000)/1000.0 - 1.0
	}
	return vec
}
