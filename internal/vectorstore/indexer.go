package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// Indexer runs the async index path: a VectorStoreFile is created
// in_progress and returned immediately; IndexFile does the actual
// chunk-embed-write work in the caller's goroutine (internal/httpapi
// spawns it so the HTTP handler itself returns right away). Physical blob
// storage is out of scope; callers hand IndexFile the text to index, and
// no text extraction is done here (internal/httpapi passes the uploaded
// file's stored bytes as-is).
type Indexer struct {
	repo     Repository
	embedder Embedder
}

func NewIndexer(repo Repository, embedder Embedder) *Indexer {
	return &Indexer{repo: repo, embedder: embedder}
}

// NewPendingFile builds the in_progress VectorStoreFile record the index path
// creates synchronously, before indexing starts.
func NewPendingFile(storeID, filename string, size int64, strategy *models.ChunkingStrategy) *models.VectorStoreFile {
	return &models.VectorStoreFile{
		ID:            "file_" + uuid.NewString(),
		VectorStoreID: storeID,
		Status:        models.VectorStoreFileInProgress,
		UsageBytes:    size,
		Attributes:    map[string]any{"filename": filename},
		Chunking:      strategy,
		CreatedAt:     time.Now().UTC(),
	}
}

// IndexFile runs the index path for one file: chunk the text by the file's
// chunking strategy (or the caller-supplied default), embed every chunk, write
// chunks to the repository, then transition the file to completed/failed
// and re-aggregate the parent store's file_counts and bytes. file must already be persisted in_progress via repo.PutFile.
func (ix *Indexer) IndexFile(ctx context.Context, file *models.VectorStoreFile, text string, defaultStrategy models.ChunkingStrategy) error {
	strategy := defaultStrategy
	if file.Chunking != nil {
		strategy = *file.Chunking
	}

	spans := Chunk(text, strategy)
	if len(spans) == 0 {
		return ix.fail(ctx, file, "empty_document", "no text extracted from file")
	}

	embeddings, err := ix.embedder.Embed(ctx, spans)
	if err != nil {
		return ix.fail(ctx, file, "embedding_failed", err.Error())
	}

	chunks := make([]models.Chunk, len(spans))
	for i, span := range spans {
		chunks[i] = models.Chunk{
			ChunkID:       fmt.Sprintf("%s_%d", file.ID, i),
			FileID:        file.ID,
			VectorStoreID: file.VectorStoreID,
			ChunkIndex:    i,
			Text:          span,
			Embedding:     embeddings[i],
		}
	}
	if err := ix.repo.PutChunks(ctx, chunks); err != nil {
		return ix.fail(ctx, file, "storage_failed", err.Error())
	}

	file.Status = models.VectorStoreFileCompleted
	file.LastError = nil
	if err := ix.repo.PutFile(ctx, file); err != nil {
		return fmt.Errorf("vectorstore: failed to persist completed file %s: %w", file.ID, err)
	}
	return ix.recomputeCounts(ctx, file.VectorStoreID)
}

// fail marks file failed with last_error set and never retries
// automatically.
func (ix *Indexer) fail(ctx context.Context, file *models.VectorStoreFile, code, message string) error {
	file.Status = models.VectorStoreFileFailed
	file.LastError = &models.LastError{Code: code, Message: message}
	if err := ix.repo.PutFile(ctx, file); err != nil {
		return fmt.Errorf("vectorstore: failed to persist failed file %s: %w", file.ID, err)
	}
	_ = ix.recomputeCounts(ctx, file.VectorStoreID)
	return fmt.Errorf("vectorstore: indexing %s failed: %s", file.ID, message)
}

// recomputeCounts re-aggregates a store's file_counts and bytes from its
// current file set, the same cleanup a search-time consistency pass
// performs.
func (ix *Indexer) recomputeCounts(ctx context.Context, storeID string) error {
	store, err := ix.repo.GetStore(ctx, storeID)
	if err != nil {
		return err
	}
	files, err := ix.repo.ListFiles(ctx, storeID)
	if err != nil {
		return err
	}

	var counts models.FileCounts
	var bytes int64
	for _, f := range files {
		counts.Total++
		bytes += f.UsageBytes
		switch f.Status {
		case models.VectorStoreFileInProgress:
			counts.InProgress++
		case models.VectorStoreFileCompleted:
			counts.Completed++
		case models.VectorStoreFileFailed:
			counts.Failed++
		case models.VectorStoreFileCancelled:
			counts.Cancelled++
		}
	}

	store.FileCounts = counts
	store.Bytes = bytes
	store.LastActiveAt = time.Now().UTC()
	store.ExpiresAt = models.ExpiresAtFor(store.LastActiveAt, store.Expiration)
	// The store flips to completed only once no files remain in_progress;
	// while siblings are still indexing it stays in_progress.
	if store.Status != models.VectorStoreExpired && counts.InProgress == 0 {
		store.Status = models.VectorStoreCompleted
	}
	return ix.repo.UpdateStore(ctx, store)
}
