// Package vectorstore implements the gateway's retrieval subsystem: chunking,
// embedding, a hybrid ANN + lexical search with a structured filter AST, and
// a consistency sweeper that expires stale stores.
package vectorstore

import (
	"context"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// Embedder turns text into a fixed-dimension vector. Swappable so tests can
// use a deterministic stub instead of calling an embeddings API.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Repository persists VectorStores, their files, and embedded chunks. A
// single implementation backs both the in-memory default and any durable
// storage the operator configures.
type Repository interface {
	CreateStore(ctx context.Context, vs *models.VectorStore) error
	GetStore(ctx context.Context, id string) (*models.VectorStore, error)
	ListStores(ctx context.Context) ([]*models.VectorStore, error)
	UpdateStore(ctx context.Context, vs *models.VectorStore) error
	DeleteStore(ctx context.Context, id string) error

	PutFile(ctx context.Context, f *models.VectorStoreFile) error
	GetFile(ctx context.Context, storeID, fileID string) (*models.VectorStoreFile, error)
	ListFiles(ctx context.Context, storeID string) ([]*models.VectorStoreFile, error)
	DeleteFile(ctx context.Context, storeID, fileID string) error

	PutChunks(ctx context.Context, chunks []models.Chunk) error
	ChunksForFile(ctx context.Context, storeID, fileID string) ([]models.Chunk, error)
	AllChunks(ctx context.Context, storeID string) ([]models.Chunk, error)
	DeleteChunksForFile(ctx context.Context, storeID, fileID string) error
}
