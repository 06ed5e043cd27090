package toolservice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/masaic-ai-platform/open-responses-sub001/internal/vectorstore"
	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// fileSearchArgs is the argument shape the model supplies to file_search
// and agentic_search: a single natural-language query plus an optional
// structured filter.
type fileSearchArgs struct {
	Query  string        `json:"query"`
	Filter *models.Filter `json:"filter,omitempty"`
}

// fileSearchResponse is the JSON payload a file_search/agentic_search call
// returns, the shape internal/convert parses back out to attach
// file_citation annotations.
type fileSearchResponse struct {
	Results []fileCitationResult `json:"results"`
}

type fileCitationResult struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Score    float32 `json:"score"`
	Content  string `json:"content"`
}

// RegisterFileSearch wires the file_search builtin tool against a single
// searcher shared by every vector store. The stores actually searched come
// from the ToolContext's VectorStoreIDs, which the tool handler fills from
// the client's tool declaration; an empty list means "no stores attached",
// which always returns no results.
func (s *Service) RegisterFileSearch(searcher *vectorstore.Searcher, maxResults int) {
	s.RegisterContextual("file_search", func(tctx *ToolContext) *FunctionTool {
		return &FunctionTool{
			Name:        "file_search",
			Description: "Search attached vector stores for relevant document chunks.",
			Schema: models.JSONObject{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
				"required":   []any{"query"},
			},
			Native: true,
			Execute: func(ctx context.Context, args json.RawMessage) (string, error) {
				return runSearch(ctx, searcher, tctx.VectorStoreIDs, maxResults, args)
			},
		}
	})
}

// RegisterAgenticSearch wires the agentic_search builtin: same retrieval
// path as file_search but documented for multi-hop, model-driven querying;
// the gateway's server-side behavior is identical.
func (s *Service) RegisterAgenticSearch(searcher *vectorstore.Searcher, maxResults int) {
	s.RegisterContextual("agentic_search", func(tctx *ToolContext) *FunctionTool {
		return &FunctionTool{
			Name:        "agentic_search",
			Description: "Iteratively search attached vector stores, refining the query across turns.",
			Schema: models.JSONObject{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
				"required":   []any{"query"},
			},
			Native: true,
			Execute: func(ctx context.Context, args json.RawMessage) (string, error) {
				return runSearch(ctx, searcher, tctx.VectorStoreIDs, maxResults, args)
			},
		}
	})
}

func runSearch(ctx context.Context, searcher *vectorstore.Searcher, vectorStoreIDs []string, maxResults int, raw json.RawMessage) (string, error) {
	var args fileSearchArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("toolservice: invalid file_search arguments: %w", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return marshalSearchResponse(nil)
	}

	filter := models.Filter{}
	if args.Filter != nil {
		filter = *args.Filter
	}

	var all []models.SearchHit
	for _, storeID := range vectorStoreIDs {
		hits, err := searcher.Search(ctx, storeID, args.Query, filter, models.RankingOptions{}, maxResults)
		if err != nil {
			return "", fmt.Errorf("toolservice: file_search against %s failed: %w", storeID, err)
		}
		all = append(all, hits...)
	}
	return marshalSearchResponse(all)
}

func marshalSearchResponse(hits []models.SearchHit) (string, error) {
	resp := fileSearchResponse{Results: make([]fileCitationResult, 0, len(hits))}
	for _, h := range hits {
		content := ""
		if len(h.Content) > 0 {
			content = strings.Join(h.Content, "\n\n")
		}
		resp.Results = append(resp.Results, fileCitationResult{
			FileID:   h.FileID,
			Filename: h.Filename,
			Score:    h.Score,
			Content:  content,
		})
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("toolservice: failed to encode search response: %w", err)
	}
	return string(data), nil
}

// ImageGenerator produces raw image bytes for a prompt; the
// image_generation tool base64-encodes them. The
// concrete backend (a provider's image endpoint) is supplied by the
// caller; this package only defines the tool contract.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

type imageGenerationArgs struct {
	Prompt string `json:"prompt"`
}

// RegisterImageGeneration wires the image_generation terminal tool: its
// success output is itself the final answer, never fed back upstream
func (s *Service) RegisterImageGeneration(gen ImageGenerator) {
	s.Register(&FunctionTool{
		Name:        "image_generation",
		Description: "Generate an image from a text prompt.",
		Schema: models.JSONObject{
			"type":       "object",
			"properties": map[string]any{"prompt": map[string]any{"type": "string"}},
			"required":   []any{"prompt"},
		},
		Native:   true,
		Terminal: true,
		Execute: func(ctx context.Context, args json.RawMessage) (string, error) {
			var a imageGenerationArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return "", fmt.Errorf("toolservice: invalid image_generation arguments: %w", err)
			}
			data, err := gen.Generate(ctx, a.Prompt)
			if err != nil {
				return "", fmt.Errorf("toolservice: image generation failed: %w", err)
			}
			return base64.StdEncoding.EncodeToString(data), nil
		},
	})
}
