package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// FileRepository is a Repository that survives restarts: all reads are
// served by an in-memory MemoryRepository, and every mutation writes
// through to disk. Store and file metadata live under
// {rootDir}/vector_stores/{storeId}.json; a file's chunk embeddings live
// under {rootDir}/embeddings/{fileId}.json.
type FileRepository struct {
	rootDir string
	mem     *MemoryRepository
}

// storeRecord is the on-disk shape of one vector store and its files.
type storeRecord struct {
	Store *models.VectorStore       `json:"store"`
	Files []*models.VectorStoreFile `json:"files"`
}

// embeddingRecord is the on-disk shape of one file's chunk set.
type embeddingRecord struct {
	FileID   string         `json:"fileId"`
	Metadata map[string]any `json:"metadata"`
	Chunks   []chunkRecord  `json:"chunks"`
}

type chunkRecord struct {
	FileID        string         `json:"fileId"`
	ChunkID       string         `json:"chunkId"`
	Content       string         `json:"content"`
	Embedding     []float32      `json:"embedding"`
	ChunkMetadata map[string]any `json:"chunkMetadata"`
}

// NewFileRepository roots persistence at rootDir, creating the layout if
// needed and loading any previously written state into memory.
func NewFileRepository(rootDir string) (*FileRepository, error) {
	r := &FileRepository{rootDir: rootDir, mem: NewMemoryRepository()}
	for _, dir := range []string{r.storesDir(), r.embeddingsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("vectorstore: failed to create %s: %w", dir, err)
		}
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRepository) storesDir() string     { return filepath.Join(r.rootDir, "vector_stores") }
func (r *FileRepository) embeddingsDir() string { return filepath.Join(r.rootDir, "embeddings") }

func (r *FileRepository) storePath(storeID string) string {
	return filepath.Join(r.storesDir(), storeID+".json")
}

func (r *FileRepository) embeddingPath(fileID string) string {
	return filepath.Join(r.embeddingsDir(), fileID+".json")
}

// load replays the on-disk records into the in-memory index at startup.
func (r *FileRepository) load() error {
	ctx := context.Background()

	entries, err := os.ReadDir(r.storesDir())
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.storesDir(), e.Name()))
		if err != nil {
			continue
		}
		var rec storeRecord
		if err := json.Unmarshal(data, &rec); err != nil || rec.Store == nil {
			continue
		}
		if err := r.mem.CreateStore(ctx, rec.Store); err != nil {
			return err
		}
		for _, f := range rec.Files {
			if err := r.mem.PutFile(ctx, f); err != nil {
				return err
			}
			chunks, err := r.readEmbeddings(f.VectorStoreID, f.ID)
			if err != nil {
				continue
			}
			if len(chunks) > 0 {
				if err := r.mem.PutChunks(ctx, chunks); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// persistStore rewrites one store's metadata record from the in-memory
// state.
func (r *FileRepository) persistStore(ctx context.Context, storeID string) error {
	store, err := r.mem.GetStore(ctx, storeID)
	if err != nil {
		return err
	}
	files, err := r.mem.ListFiles(ctx, storeID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(storeRecord{Store: store, Files: files})
	if err != nil {
		return err
	}
	return os.WriteFile(r.storePath(storeID), data, 0o644)
}

func (r *FileRepository) readEmbeddings(storeID, fileID string) ([]models.Chunk, error) {
	data, err := os.ReadFile(r.embeddingPath(fileID))
	if err != nil {
		return nil, err
	}
	var rec embeddingRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	chunks := make([]models.Chunk, 0, len(rec.Chunks))
	for _, c := range rec.Chunks {
		idx := 0
		if v, ok := c.ChunkMetadata["chunk_index"].(float64); ok {
			idx = int(v)
		}
		chunks = append(chunks, models.Chunk{
			ChunkID:       c.ChunkID,
			FileID:        c.FileID,
			VectorStoreID: storeID,
			ChunkIndex:    idx,
			Text:          c.Content,
			Embedding:     c.Embedding,
		})
	}
	return chunks, nil
}

func (r *FileRepository) writeEmbeddings(ctx context.Context, storeID, fileID string) error {
	chunks, err := r.mem.ChunksForFile(ctx, storeID, fileID)
	if err != nil {
		return err
	}
	rec := embeddingRecord{
		FileID:   fileID,
		Metadata: map[string]any{"vector_store_id": storeID},
		Chunks:   make([]chunkRecord, 0, len(chunks)),
	}
	for _, c := range chunks {
		rec.Chunks = append(rec.Chunks, chunkRecord{
			FileID:    c.FileID,
			ChunkID:   c.ChunkID,
			Content:   c.Text,
			Embedding: c.Embedding,
			ChunkMetadata: map[string]any{
				"chunk_index":  c.ChunkIndex,
				"total_chunks": len(chunks),
			},
		})
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return os.WriteFile(r.embeddingPath(fileID), data, 0o644)
}

func (r *FileRepository) CreateStore(ctx context.Context, vs *models.VectorStore) error {
	if err := r.mem.CreateStore(ctx, vs); err != nil {
		return err
	}
	return r.persistStore(ctx, vs.ID)
}

func (r *FileRepository) GetStore(ctx context.Context, id string) (*models.VectorStore, error) {
	return r.mem.GetStore(ctx, id)
}

func (r *FileRepository) ListStores(ctx context.Context) ([]*models.VectorStore, error) {
	return r.mem.ListStores(ctx)
}

func (r *FileRepository) UpdateStore(ctx context.Context, vs *models.VectorStore) error {
	if err := r.mem.UpdateStore(ctx, vs); err != nil {
		return err
	}
	return r.persistStore(ctx, vs.ID)
}

func (r *FileRepository) DeleteStore(ctx context.Context, id string) error {
	files, _ := r.mem.ListFiles(ctx, id)
	if err := r.mem.DeleteStore(ctx, id); err != nil {
		return err
	}
	for _, f := range files {
		_ = os.Remove(r.embeddingPath(f.ID))
	}
	_ = os.Remove(r.storePath(id))
	return nil
}

func (r *FileRepository) PutFile(ctx context.Context, f *models.VectorStoreFile) error {
	if err := r.mem.PutFile(ctx, f); err != nil {
		return err
	}
	return r.persistStore(ctx, f.VectorStoreID)
}

func (r *FileRepository) GetFile(ctx context.Context, storeID, fileID string) (*models.VectorStoreFile, error) {
	return r.mem.GetFile(ctx, storeID, fileID)
}

func (r *FileRepository) ListFiles(ctx context.Context, storeID string) ([]*models.VectorStoreFile, error) {
	return r.mem.ListFiles(ctx, storeID)
}

func (r *FileRepository) DeleteFile(ctx context.Context, storeID, fileID string) error {
	if err := r.mem.DeleteFile(ctx, storeID, fileID); err != nil {
		return err
	}
	_ = os.Remove(r.embeddingPath(fileID))
	return r.persistStore(ctx, storeID)
}

func (r *FileRepository) PutChunks(ctx context.Context, chunks []models.Chunk) error {
	if err := r.mem.PutChunks(ctx, chunks); err != nil {
		return err
	}
	// One write per (store, file) pair present in the batch.
	type key struct{ storeID, fileID string }
	seen := make(map[key]struct{})
	for _, c := range chunks {
		k := key{c.VectorStoreID, c.FileID}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		if err := r.writeEmbeddings(ctx, k.storeID, k.fileID); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileRepository) ChunksForFile(ctx context.Context, storeID, fileID string) ([]models.Chunk, error) {
	return r.mem.ChunksForFile(ctx, storeID, fileID)
}

func (r *FileRepository) AllChunks(ctx context.Context, storeID string) ([]models.Chunk, error) {
	return r.mem.AllChunks(ctx, storeID)
}

func (r *FileRepository) DeleteChunksForFile(ctx context.Context, storeID, fileID string) error {
	if err := r.mem.DeleteChunksForFile(ctx, storeID, fileID); err != nil {
		return err
	}
	_ = os.Remove(r.embeddingPath(fileID))
	return nil
}
