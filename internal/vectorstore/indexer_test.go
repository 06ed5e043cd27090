package vectorstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

func newStoreForIndexing(t *testing.T, repo *MemoryRepository, id string) {
	t.Helper()
	require.NoError(t, repo.CreateStore(context.Background(), &models.VectorStore{
		ID:        id,
		Name:      id,
		CreatedAt: time.Now().UTC(),
		Status:    models.VectorStoreInProgress,
	}))
}

func TestIndexFile_CompletesAndAggregates(t *testing.T) {
	repo := NewMemoryRepository()
	newStoreForIndexing(t, repo, "vs_i")
	indexer := NewIndexer(repo, NewHashEmbedder(16))
	ctx := context.Background()

	file := NewPendingFile("vs_i", "doc.txt", 48, nil)
	require.NoError(t, repo.PutFile(ctx, file))
	require.NoError(t, indexer.IndexFile(ctx, file, "a short document about otters", models.DefaultChunkingStrategy()))

	got, err := repo.GetFile(ctx, "vs_i", file.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VectorStoreFileCompleted, got.Status)
	assert.Nil(t, got.LastError)

	chunks, err := repo.ChunksForFile(ctx, "vs_i", file.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, file.ID, c.FileID)
		assert.Len(t, c.Embedding, 16)
	}

	store, err := repo.GetStore(ctx, "vs_i")
	require.NoError(t, err)
	assert.Equal(t, models.VectorStoreCompleted, store.Status)
	assert.Equal(t, 1, store.FileCounts.Completed)
	assert.Equal(t, 1, store.FileCounts.Total)
	assert.Equal(t, int64(48), store.Bytes)
}

func TestIndexFile_SiblingInProgressKeepsStoreInProgress(t *testing.T) {
	repo := NewMemoryRepository()
	newStoreForIndexing(t, repo, "vs_m")
	indexer := NewIndexer(repo, NewHashEmbedder(16))
	ctx := context.Background()

	first := NewPendingFile("vs_m", "first.txt", 10, nil)
	second := NewPendingFile("vs_m", "second.txt", 10, nil)
	require.NoError(t, repo.PutFile(ctx, first))
	require.NoError(t, repo.PutFile(ctx, second))

	// Finishing the first file must not complete the store while the
	// second is still indexing.
	require.NoError(t, indexer.IndexFile(ctx, first, "text for the first file", models.DefaultChunkingStrategy()))

	store, err := repo.GetStore(ctx, "vs_m")
	require.NoError(t, err)
	assert.Equal(t, models.VectorStoreInProgress, store.Status)
	assert.Equal(t, 1, store.FileCounts.InProgress)
	assert.Equal(t, 1, store.FileCounts.Completed)

	require.NoError(t, indexer.IndexFile(ctx, second, "text for the second file", models.DefaultChunkingStrategy()))

	store, err = repo.GetStore(ctx, "vs_m")
	require.NoError(t, err)
	assert.Equal(t, models.VectorStoreCompleted, store.Status)
	assert.Equal(t, 0, store.FileCounts.InProgress)
	assert.Equal(t, 2, store.FileCounts.Completed)
}

func TestIndexFile_EmptyTextFails(t *testing.T) {
	repo := NewMemoryRepository()
	newStoreForIndexing(t, repo, "vs_e")
	indexer := NewIndexer(repo, NewHashEmbedder(16))
	ctx := context.Background()

	file := NewPendingFile("vs_e", "empty.txt", 0, nil)
	require.NoError(t, repo.PutFile(ctx, file))
	err := indexer.IndexFile(ctx, file, "   ", models.DefaultChunkingStrategy())

	require.Error(t, err)
	got, gerr := repo.GetFile(ctx, "vs_e", file.ID)
	require.NoError(t, gerr)
	assert.Equal(t, models.VectorStoreFileFailed, got.Status)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "empty_document", got.LastError.Code)

	store, serr := repo.GetStore(ctx, "vs_e")
	require.NoError(t, serr)
	assert.Equal(t, 1, store.FileCounts.Failed)
}

// failingEmbedder errors on every call, exercising the embedding_failed
// transition.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("quota exhausted")
}
func (failingEmbedder) Dimension() int { return 16 }

func TestIndexFile_EmbeddingFailureRecorded(t *testing.T) {
	repo := NewMemoryRepository()
	newStoreForIndexing(t, repo, "vs_q")
	indexer := NewIndexer(repo, failingEmbedder{})
	ctx := context.Background()

	file := NewPendingFile("vs_q", "doc.txt", 10, nil)
	require.NoError(t, repo.PutFile(ctx, file))
	err := indexer.IndexFile(ctx, file, "some text", models.DefaultChunkingStrategy())

	require.Error(t, err)
	got, gerr := repo.GetFile(ctx, "vs_q", file.ID)
	require.NoError(t, gerr)
	assert.Equal(t, models.VectorStoreFileFailed, got.Status)
	assert.Equal(t, "embedding_failed", got.LastError.Code)
}

func TestNewPendingFile(t *testing.T) {
	strategy := &models.ChunkingStrategy{MaxChunkSizeTokens: 100, ChunkOverlapTokens: 10}
	f := NewPendingFile("vs_p", "notes.md", 512, strategy)

	assert.Equal(t, models.VectorStoreFileInProgress, f.Status)
	assert.Equal(t, "vs_p", f.VectorStoreID)
	assert.Equal(t, int64(512), f.UsageBytes)
	assert.Equal(t, "notes.md", f.Attributes["filename"])
	assert.Equal(t, strategy, f.Chunking)
	assert.NotEmpty(t, f.ID)
}
