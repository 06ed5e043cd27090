package httpapi

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BlobStore persists uploaded file bytes under
// {rootDir}/{purpose}/{fileId} with a sibling {fileId}.metadata JSON
// sidecar. The core orchestrator never touches physical file storage;
// this is the boundary implementation the HTTP surface needs to have
// something real behind /v1/files.
type BlobStore struct {
	rootDir string
	mu      sync.RWMutex
}

// FileMeta is one uploaded file's catalog entry.
type FileMeta struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Purpose   string    `json:"purpose"`
	Bytes     int64     `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// NewBlobStore roots blob storage at dir, creating it if necessary.
func NewBlobStore(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("httpapi: failed to create blob root %s: %w", dir, err)
	}
	return &BlobStore{rootDir: dir}, nil
}

func (b *BlobStore) purposeDir(purpose string) string {
	return filepath.Join(b.rootDir, purpose)
}

func (b *BlobStore) blobPath(purpose, id string) string {
	return filepath.Join(b.purposeDir(purpose), id)
}

func (b *BlobStore) metaPath(purpose, id string) string {
	return filepath.Join(b.purposeDir(purpose), id+".metadata")
}

// Put stores data under a freshly generated file id and returns its
// catalog entry.
func (b *BlobStore) Put(purpose, filename string, data []byte) (*FileMeta, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	meta := &FileMeta{
		ID:        "file_" + uuid.NewString(),
		Filename:  filename,
		Purpose:   purpose,
		Bytes:     int64(len(data)),
		CreatedAt: time.Now().UTC(),
	}
	if err := os.MkdirAll(b.purposeDir(purpose), 0o755); err != nil {
		return nil, fmt.Errorf("httpapi: failed to create purpose dir: %w", err)
	}
	if err := os.WriteFile(b.blobPath(purpose, meta.ID), data, 0o644); err != nil {
		return nil, fmt.Errorf("httpapi: failed to write blob: %w", err)
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(b.metaPath(purpose, meta.ID), metaBytes, 0o644); err != nil {
		return nil, fmt.Errorf("httpapi: failed to write blob metadata: %w", err)
	}
	return meta, nil
}

// Get returns a file's bytes and catalog entry, searching every purpose
// subdirectory since the caller only has the id.
func (b *BlobStore) Get(id string) ([]byte, *FileMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	meta, purpose, err := b.findMeta(id)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(b.blobPath(purpose, id))
	if err != nil {
		return nil, nil, fmt.Errorf("httpapi: blob not found: %s", id)
	}
	return data, meta, nil
}

// Meta returns a file's catalog entry without reading its bytes.
func (b *BlobStore) Meta(id string) (*FileMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	meta, _, err := b.findMeta(id)
	return meta, err
}

// List enumerates every catalog entry across all purposes.
func (b *BlobStore) List() ([]*FileMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries, err := os.ReadDir(b.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var metas []*FileMeta
	for _, purposeEntry := range entries {
		if !purposeEntry.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(b.rootDir, purposeEntry.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			if filepath.Ext(f.Name()) != ".metadata" {
				continue
			}
			data, err := os.ReadFile(filepath.Join(b.rootDir, purposeEntry.Name(), f.Name()))
			if err != nil {
				continue
			}
			var meta FileMeta
			if err := json.Unmarshal(data, &meta); err == nil {
				metas = append(metas, &meta)
			}
		}
	}
	return metas, nil
}

// Delete removes both the blob and its metadata sidecar.
func (b *BlobStore) Delete(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, purpose, err := b.findMeta(id)
	if err != nil {
		return err
	}
	_ = os.Remove(b.blobPath(purpose, id))
	_ = os.Remove(b.metaPath(purpose, id))
	return nil
}

func (b *BlobStore) findMeta(id string) (*FileMeta, string, error) {
	entries, err := os.ReadDir(b.rootDir)
	if err != nil {
		return nil, "", fmt.Errorf("httpapi: file not found: %s", id)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(b.metaPath(e.Name(), id))
		if err != nil {
			continue
		}
		var meta FileMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		return &meta, e.Name(), nil
	}
	return nil, "", fmt.Errorf("httpapi: file not found: %s", id)
}
