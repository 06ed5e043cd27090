package toolservice

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masaic-ai-platform/open-responses-sub001/internal/vectorstore"
	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

func TestBuildAliasMap(t *testing.T) {
	s := New()
	defs := []models.ToolDefinition{
		{Type: "file_search", Name: "docs_search", VectorStoreIDs: []string{"vs_1"}},
		{Type: "file_search", Name: "wiki_search", VectorStoreIDs: []string{"vs_2"}},
		{Type: "image_generation"},
		{Type: "function", Name: "book_flight"},
	}

	aliases := s.BuildAliasMap(defs)

	assert.Equal(t, "file_search", aliases["docs_search"])
	assert.Equal(t, "file_search", aliases["wiki_search"])
	// Bare builtins and client functions never alias.
	assert.NotContains(t, aliases, "image_generation")
	assert.NotContains(t, aliases, "book_flight")
}

func TestResolveAlias(t *testing.T) {
	aliases := map[string]string{"docs_search": "file_search"}
	assert.Equal(t, "file_search", ResolveAlias(aliases, "docs_search"))
	assert.Equal(t, "get_weather", ResolveAlias(aliases, "get_weather"))
	assert.Equal(t, "x", ResolveAlias(nil, "x"))
}

func TestFunctionTool_Validate(t *testing.T) {
	tool := &FunctionTool{
		Name: "strict",
		Schema: models.JSONObject{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}},
			"required":   []any{"query"},
		},
	}

	assert.NoError(t, tool.Validate(json.RawMessage(`{"query":"hello"}`)))
	assert.Error(t, tool.Validate(json.RawMessage(`{}`)))
	assert.Error(t, tool.Validate(json.RawMessage(`{"query":`)))

	// No schema means no validation.
	assert.NoError(t, (&FunctionTool{Name: "loose"}).Validate(json.RawMessage(`{"anything":1}`)))
}

func TestGetFunctionTool_ContextualBindsStoreIDs(t *testing.T) {
	repo := vectorstore.NewMemoryRepository()
	embedder := vectorstore.NewHashEmbedder(32)
	searcher := vectorstore.NewSearcher(repo, embedder, 0)
	indexer := vectorstore.NewIndexer(repo, embedder)

	ctx := context.Background()
	require.NoError(t, repo.CreateStore(ctx, &models.VectorStore{ID: "vs_a", Name: "a", Status: models.VectorStoreInProgress}))
	file := vectorstore.NewPendingFile("vs_a", "notes.txt", 10, nil)
	require.NoError(t, repo.PutFile(ctx, file))
	require.NoError(t, indexer.IndexFile(ctx, file, "reindeer migrate north in spring", models.DefaultChunkingStrategy()))

	s := New()
	s.RegisterFileSearch(searcher, 5)

	// Scoped to the indexed store, the search finds the chunk.
	tool, ok := s.GetFunctionTool("file_search", &ToolContext{VectorStoreIDs: []string{"vs_a"}})
	require.True(t, ok)
	out, err := tool.Execute(ctx, json.RawMessage(`{"query":"reindeer"}`))
	require.NoError(t, err)
	assert.Contains(t, out, file.ID)

	// With no stores attached, the same tool returns no results.
	tool, ok = s.GetFunctionTool("file_search", &ToolContext{})
	require.True(t, ok)
	out, err = tool.Execute(ctx, json.RawMessage(`{"query":"reindeer"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"results":[]}`, out)
}

func TestGetFunctionTool_UnknownName(t *testing.T) {
	_, ok := New().GetFunctionTool("book_flight", &ToolContext{})
	assert.False(t, ok)
}

func TestRegisterImageGeneration_Terminal(t *testing.T) {
	s := New()
	s.RegisterImageGeneration(stubImageGen{})

	tool, ok := s.GetFunctionTool("image_generation", nil)
	require.True(t, ok)
	assert.True(t, tool.Terminal)

	out, err := tool.Execute(context.Background(), json.RawMessage(`{"prompt":"a boat"}`))
	require.NoError(t, err)
	// Output is base64 of the generated bytes.
	assert.Equal(t, "aW1n", out)
}

type stubImageGen struct{}

func (stubImageGen) Generate(context.Context, string) ([]byte, error) { return []byte("img"), nil }
