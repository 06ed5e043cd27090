package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masaic-ai-platform/open-responses-sub001/internal/orchestrator"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/provider"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/store"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/telemetry"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/toolhandler"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/toolservice"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/vectorstore"
	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// testMetrics is shared across tests: Prometheus collectors register
// against the default registry exactly once per process.
var (
	testMetrics     *telemetry.Metrics
	testMetricsOnce sync.Once
)

func metricsForTest() *telemetry.Metrics {
	testMetricsOnce.Do(func() { testMetrics = telemetry.NewMetrics() })
	return testMetrics
}

// scriptedProvider replays fixed chunk scripts, one per upstream call.
type scriptedProvider struct {
	mu      sync.Mutex
	calls   int
	scripts [][]provider.Chunk
}

func (p *scriptedProvider) Complete(context.Context, *provider.CompletionRequest) (<-chan *provider.Chunk, error) {
	p.mu.Lock()
	i := p.calls
	p.calls++
	p.mu.Unlock()
	if i >= len(p.scripts) {
		i = len(p.scripts) - 1
	}
	script := p.scripts[i]
	ch := make(chan *provider.Chunk, len(script))
	for j := range script {
		ch <- &script[j]
	}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Name() string        { return "openai" }
func (p *scriptedProvider) SupportsTools() bool { return true }

// newTestServer wires a full router over in-memory collaborators and the
// given provider script.
func newTestServer(t *testing.T, scripts [][]provider.Chunk) (*httptest.Server, *Deps) {
	t.Helper()

	tracer, _ := telemetry.NewTracer(telemetry.TraceConfig{})
	metrics := metricsForTest()
	tools := toolservice.New()
	responses := store.NewMemoryResponseStore(16)

	repo := vectorstore.NewMemoryRepository()
	embedder := vectorstore.NewHashEmbedder(32)

	blobs, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)

	orch := &orchestrator.Orchestrator{
		Router:                orchestrator.NewRouter(&scriptedProvider{scripts: scripts}, nil, nil),
		Tools:                 tools,
		ToolHandler:           toolhandler.New(tools, nil, tracer, nil),
		Responses:             responses,
		Tracer:                tracer,
		MaxToolCallsBuffered:  25,
		MaxToolCallsStreaming: 30,
	}

	deps := &Deps{
		Orchestrator: orch,
		Responses:    responses,
		Completions:  store.NewMemoryCompletionStore(16),
		VectorRepo:   repo,
		Searcher:     vectorstore.NewSearcher(repo, embedder, 0),
		Indexer:      vectorstore.NewIndexer(repo, embedder),
		Blobs:        blobs,
		Tracer:       tracer,
		Metrics:      metrics,

		DefaultChunkSizeTokens:    200,
		DefaultChunkOverlapTokens: 20,
	}

	server := httptest.NewServer(NewRouter(deps))
	t.Cleanup(server.Close)
	return server, deps
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer sk-test")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func stopScript(text string) [][]provider.Chunk {
	return [][]provider.Chunk{{
		{Text: text},
		{FinishReason: "stop", Done: true},
	}}
}

func TestCreateResponse_EndToEnd(t *testing.T) {
	server, _ := newTestServer(t, stopScript("the answer"))

	resp := postJSON(t, server.URL+"/v1/responses", map[string]any{
		"model": "openai@gpt-4o-mini",
		"input": "a question",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got models.Response
	decodeBody(t, resp, &got)
	assert.Equal(t, models.ResponseStatusCompleted, got.Status)
	require.Len(t, got.Output, 1)
	assert.Equal(t, "the answer", got.Output[0].TextContent())

	// The stored record is retrievable and deletable.
	getResp, err := http.Get(server.URL + "/v1/responses/" + got.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, getResp.StatusCode)
	getResp.Body.Close()

	itemsResp, err := http.Get(server.URL + "/v1/responses/" + got.ID + "/input_items")
	require.NoError(t, err)
	var items inputItemsResponse
	decodeBody(t, itemsResp, &items)
	require.NotEmpty(t, items.Data)
	assert.Equal(t, models.InputItemUserMessage, items.Data[0].Type)

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/v1/responses/"+got.ID, nil)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, delResp.StatusCode)
	delResp.Body.Close()
}

func TestCreateResponse_MissingCredential(t *testing.T) {
	server, _ := newTestServer(t, stopScript("x"))

	data, _ := json.Marshal(map[string]any{"model": "gpt-4o", "input": "hi"})
	resp, err := http.Post(server.URL+"/v1/responses", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetResponse_Unknown(t *testing.T) {
	server, _ := newTestServer(t, stopScript("x"))

	resp, err := http.Get(server.URL + "/v1/responses/resp_missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateResponse_Streaming(t *testing.T) {
	server, _ := newTestServer(t, stopScript("streamed text"))

	resp := postJSON(t, server.URL+"/v1/responses", map[string]any{
		"model":  "openai@gpt-4o-mini",
		"input":  "a question",
		"stream": true,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	body := buf.String()

	assert.Contains(t, body, "event: response.created\n")
	assert.Contains(t, body, "event: response.output_text.delta\n")
	assert.Contains(t, body, "event: response.completed\n")
	// Terminal event is last on the wire.
	idx := strings.LastIndex(body, "event: ")
	assert.True(t, strings.HasPrefix(body[idx:], "event: response.completed"))
}

func TestChatCompletions_EndToEnd(t *testing.T) {
	server, _ := newTestServer(t, stopScript("pong"))

	resp := postJSON(t, server.URL+"/v1/chat/completions", map[string]any{
		"model":    "openai@gpt-4o-mini",
		"messages": []map[string]any{{"role": "user", "content": "ping"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got models.ChatCompletion
	decodeBody(t, resp, &got)
	require.Len(t, got.Choices, 1)
	assert.Equal(t, "pong", got.Choices[0].Message.Content)
	assert.Equal(t, models.FinishStop, got.Choices[0].FinishReason)
}

func TestVectorStores_CreateSearchLifecycle(t *testing.T) {
	server, deps := newTestServer(t, stopScript("x"))

	// Create a store.
	resp := postJSON(t, server.URL+"/v1/vector_stores", map[string]any{"name": "docs"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var vs models.VectorStore
	decodeBody(t, resp, &vs)
	assert.True(t, strings.HasPrefix(vs.ID, "vs_"))
	assert.Equal(t, models.VectorStoreInProgress, vs.Status)

	// Upload a blob, attach it, and index synchronously for the test.
	meta, err := deps.Blobs.Put("assistants", "notes.txt", []byte("wombats dig extensive burrow systems"))
	require.NoError(t, err)

	file := vectorstore.NewPendingFile(vs.ID, meta.Filename, meta.Bytes, nil)
	file.ID = meta.ID
	require.NoError(t, deps.VectorRepo.PutFile(context.Background(), file))
	require.NoError(t, deps.Indexer.IndexFile(context.Background(), file,
		"wombats dig extensive burrow systems", models.DefaultChunkingStrategy()))

	// Search finds the indexed chunk.
	resp = postJSON(t, server.URL+"/v1/vector_stores/"+vs.ID+"/search", map[string]any{
		"query": "wombats",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var searchBody struct {
		Data []models.SearchHit `json:"data"`
	}
	decodeBody(t, resp, &searchBody)
	require.NotEmpty(t, searchBody.Data)
	assert.Equal(t, meta.ID, searchBody.Data[0].FileID)

	// Unknown store searches 404.
	resp = postJSON(t, server.URL+"/v1/vector_stores/vs_missing/search", map[string]any{"query": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestFiles_UploadDownloadDelete(t *testing.T) {
	server, _ := newTestServer(t, stopScript("x"))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "hello.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("hello blob"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("purpose", "assistants"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(server.URL+"/v1/files", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var meta FileMeta
	decodeBody(t, resp, &meta)
	assert.Equal(t, "hello.txt", meta.Filename)
	assert.Equal(t, int64(10), meta.Bytes)

	// Content round-trips.
	contentResp, err := http.Get(fmt.Sprintf("%s/v1/files/%s/content", server.URL, meta.ID))
	require.NoError(t, err)
	var content bytes.Buffer
	_, err = content.ReadFrom(contentResp.Body)
	contentResp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello blob", content.String())

	// Delete then 404.
	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/v1/files/"+meta.ID, nil)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, delResp.StatusCode)
	delResp.Body.Close()

	getResp, err := http.Get(server.URL + "/v1/files/" + meta.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
	getResp.Body.Close()
}

func TestBearerCredential(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer sk-abc")
	assert.Equal(t, "sk-abc", bearerCredential(r))

	r.Header.Set("Authorization", "raw-token")
	assert.Equal(t, "raw-token", bearerCredential(r))
}

func TestParseInput(t *testing.T) {
	items, err := parseInput(json.RawMessage(`"just text"`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.InputItemUserMessage, items[0].Type)

	items, err = parseInput(json.RawMessage(`[{"type":"user_message","text":"hi"}]`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "hi", items[0].Text)

	_, err = parseInput(json.RawMessage(`12345`))
	assert.Error(t, err)
}
