package vectorstore

import (
	"context"
	"sync"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// MemoryRepository is the default Repository: everything lives in process
// memory, guarded by a single mutex since the gateway's write volume (a
// handful of indexing operations per upload, one search per tool call)
// never justifies finer-grained locking.
type MemoryRepository struct {
	mu sync.RWMutex

	stores map[string]*models.VectorStore
	files  map[string]map[string]*models.VectorStoreFile // storeID -> fileID -> file
	chunks map[string]map[string][]models.Chunk           // storeID -> fileID -> chunks
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		stores: make(map[string]*models.VectorStore),
		files:  make(map[string]map[string]*models.VectorStoreFile),
		chunks: make(map[string]map[string][]models.Chunk),
	}
}

func (r *MemoryRepository) CreateStore(_ context.Context, vs *models.VectorStore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[vs.ID] = vs
	r.files[vs.ID] = make(map[string]*models.VectorStoreFile)
	r.chunks[vs.ID] = make(map[string][]models.Chunk)
	return nil
}

func (r *MemoryRepository) GetStore(_ context.Context, id string) (*models.VectorStore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vs, ok := r.stores[id]
	if !ok {
		return nil, ErrStoreNotFound
	}
	return vs, nil
}

func (r *MemoryRepository) ListStores(_ context.Context) ([]*models.VectorStore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.VectorStore, 0, len(r.stores))
	for _, vs := range r.stores {
		out = append(out, vs)
	}
	return out, nil
}

func (r *MemoryRepository) UpdateStore(_ context.Context, vs *models.VectorStore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stores[vs.ID]; !ok {
		return ErrStoreNotFound
	}
	r.stores[vs.ID] = vs
	return nil
}

func (r *MemoryRepository) DeleteStore(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stores, id)
	delete(r.files, id)
	delete(r.chunks, id)
	return nil
}

func (r *MemoryRepository) PutFile(_ context.Context, f *models.VectorStoreFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[f.VectorStoreID]; !ok {
		r.files[f.VectorStoreID] = make(map[string]*models.VectorStoreFile)
	}
	r.files[f.VectorStoreID][f.ID] = f
	return nil
}

func (r *MemoryRepository) GetFile(_ context.Context, storeID, fileID string) (*models.VectorStoreFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.files[storeID][fileID]
	if !ok {
		return nil, ErrFileNotFound
	}
	return f, nil
}

func (r *MemoryRepository) ListFiles(_ context.Context, storeID string) ([]*models.VectorStoreFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.VectorStoreFile, 0, len(r.files[storeID]))
	for _, f := range r.files[storeID] {
		out = append(out, f)
	}
	return out, nil
}

func (r *MemoryRepository) DeleteFile(_ context.Context, storeID, fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files[storeID], fileID)
	delete(r.chunks[storeID], fileID)
	return nil
}

func (r *MemoryRepository) PutChunks(_ context.Context, chunks []models.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range chunks {
		if _, ok := r.chunks[c.VectorStoreID]; !ok {
			r.chunks[c.VectorStoreID] = make(map[string][]models.Chunk)
		}
		r.chunks[c.VectorStoreID][c.FileID] = append(r.chunks[c.VectorStoreID][c.FileID], c)
	}
	return nil
}

func (r *MemoryRepository) ChunksForFile(_ context.Context, storeID, fileID string) ([]models.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Chunk(nil), r.chunks[storeID][fileID]...), nil
}

// AllChunks returns every chunk in the store belonging to a file that still
// exists, silently dropping chunks whose file was deleted out from under
// them: the consistency sweep is this filter applied at read time, so no separate
// background deletion pass is required for search correctness.
func (r *MemoryRepository) AllChunks(_ context.Context, storeID string) ([]models.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	files := r.files[storeID]
	byFile := r.chunks[storeID]
	var out []models.Chunk
	for fileID, chunks := range byFile {
		if _, ok := files[fileID]; !ok {
			continue
		}
		out = append(out, chunks...)
	}
	return out, nil
}

func (r *MemoryRepository) DeleteChunksForFile(_ context.Context, storeID, fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chunks[storeID], fileID)
	return nil
}
