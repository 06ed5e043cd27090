package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

func TestSweepOnce_MarksExpiredStores(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.CreateStore(ctx, &models.VectorStore{
		ID:           "vs_old",
		Name:         "old",
		Status:       models.VectorStoreCompleted,
		LastActiveAt: past.Add(-24 * time.Hour),
		Expiration:   &models.ExpirationPolicy{Anchor: "last_active_at", Days: 1},
		ExpiresAt:    &past,
	}))
	future := time.Now().UTC().Add(24 * time.Hour)
	require.NoError(t, repo.CreateStore(ctx, &models.VectorStore{
		ID:        "vs_new",
		Name:      "new",
		Status:    models.VectorStoreCompleted,
		ExpiresAt: &future,
	}))

	sweeper := NewSweeper(repo, nil)
	require.NoError(t, sweeper.SweepOnce(ctx))

	old, err := repo.GetStore(ctx, "vs_old")
	require.NoError(t, err)
	assert.Equal(t, models.VectorStoreExpired, old.Status)

	fresh, err := repo.GetStore(ctx, "vs_new")
	require.NoError(t, err)
	assert.Equal(t, models.VectorStoreCompleted, fresh.Status)
}

func TestSweepOnce_RemovesDanglingFiles(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateStore(ctx, &models.VectorStore{
		ID:     "vs_g",
		Name:   "g",
		Status: models.VectorStoreCompleted,
	}))

	// A completed file with no chunks has lost its backing blob.
	dangling := NewPendingFile("vs_g", "lost.txt", 100, nil)
	dangling.Status = models.VectorStoreFileCompleted
	require.NoError(t, repo.PutFile(ctx, dangling))

	// A freshly attached in_progress file must survive the sweep.
	pending := NewPendingFile("vs_g", "uploading.txt", 50, nil)
	require.NoError(t, repo.PutFile(ctx, pending))

	sweeper := NewSweeper(repo, nil)
	require.NoError(t, sweeper.SweepOnce(ctx))

	_, err := repo.GetFile(ctx, "vs_g", dangling.ID)
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = repo.GetFile(ctx, "vs_g", pending.ID)
	assert.NoError(t, err)

	store, err := repo.GetStore(ctx, "vs_g")
	require.NoError(t, err)
	assert.Equal(t, 1, store.FileCounts.Total)
	assert.Equal(t, 1, store.FileCounts.InProgress)
	assert.Equal(t, int64(50), store.Bytes)
}

func TestSweepOnce_CompletesStoreWithNoInProgressFiles(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateStore(ctx, &models.VectorStore{
		ID:     "vs_ip",
		Name:   "ip",
		Status: models.VectorStoreInProgress,
	}))

	file := NewPendingFile("vs_ip", "done.txt", 10, nil)
	require.NoError(t, repo.PutFile(ctx, file))
	indexer := NewIndexer(repo, NewHashEmbedder(8))
	require.NoError(t, indexer.IndexFile(ctx, file, "finished content", models.DefaultChunkingStrategy()))

	// Force the store back to in_progress to simulate a crash between
	// indexing and the status transition; the sweeper repairs it.
	store, err := repo.GetStore(ctx, "vs_ip")
	require.NoError(t, err)
	store.Status = models.VectorStoreInProgress
	require.NoError(t, repo.UpdateStore(ctx, store))

	sweeper := NewSweeper(repo, nil)
	require.NoError(t, sweeper.SweepOnce(ctx))

	store, err = repo.GetStore(ctx, "vs_ip")
	require.NoError(t, err)
	assert.Equal(t, models.VectorStoreCompleted, store.Status)
}

func TestExpiresAtFor(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got := models.ExpiresAtFor(now, &models.ExpirationPolicy{Anchor: "last_active_at", Days: 3})
	require.NotNil(t, got)
	assert.Equal(t, now.Add(3*24*time.Hour), *got)

	assert.Nil(t, models.ExpiresAtFor(now, nil))
}
