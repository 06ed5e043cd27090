package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/masaic-ai-platform/open-responses-sub001/internal/gatewayerrors"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/telemetry"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/vectorstore"
	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

type vectorStoreCreateBody struct {
	Name             string                   `json:"name"`
	ExpiresAfter     *models.ExpirationPolicy `json:"expires_after,omitempty"`
	ChunkingStrategy *models.ChunkingStrategy `json:"chunking_strategy,omitempty"`
}

// createVectorStore implements POST /v1/vector_stores.
func (h *handlers) createVectorStore(w http.ResponseWriter, r *http.Request) {
	var body vectorStoreCreateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: malformed JSON body", gatewayerrors.ErrInvalidRequest))
		return
	}

	now := time.Now().UTC()
	vs := &models.VectorStore{
		ID:           "vs_" + newID(),
		Name:         body.Name,
		CreatedAt:    now,
		LastActiveAt: now,
		Status:       models.VectorStoreInProgress,
		Expiration:   body.ExpiresAfter,
		ExpiresAt:    models.ExpiresAtFor(now, body.ExpiresAfter),
	}
	if err := h.d.VectorRepo.CreateStore(r.Context(), vs); err != nil {
		writeError(w, fmt.Errorf("%w: %v", gatewayerrors.ErrStorage, err))
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

// listVectorStores implements GET /v1/vector_stores.
func (h *handlers) listVectorStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.d.VectorRepo.ListStores(r.Context())
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", gatewayerrors.ErrStorage, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": stores})
}

// getVectorStore implements GET /v1/vector_stores/{id}.
func (h *handlers) getVectorStore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	vs, err := h.d.VectorRepo.GetStore(r.Context(), id)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %s", gatewayerrors.ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

// deleteVectorStore implements DELETE /v1/vector_stores/{id}.
func (h *handlers) deleteVectorStore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.d.VectorRepo.DeleteStore(r.Context(), id); err != nil {
		writeError(w, fmt.Errorf("%w: %s", gatewayerrors.ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

type vectorStoreSearchBody struct {
	Query      string                `json:"query"`
	Filter     models.Filter         `json:"filter,omitempty"`
	MaxResults int                   `json:"max_num_results,omitempty"`
	Ranking    models.RankingOptions `json:"ranking_options,omitempty"`
}

// searchVectorStore implements POST /v1/vector_stores/{id}/search, wiring
// the vector_store_search span pair and the search duration metric.
func (h *handlers) searchVectorStore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body vectorStoreSearchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: malformed JSON body", gatewayerrors.ErrInvalidRequest))
		return
	}
	maxResults := body.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	ctx, span := h.d.Tracer.StartVectorSearch(r.Context(), id)
	start := time.Now()
	hits, err := h.d.Searcher.Search(ctx, id, body.Query, body.Filter, body.Ranking, maxResults)
	telemetry.EndVectorSearch(span, hits, err)
	h.d.Metrics.RecordSearch(id, time.Since(start))
	if err != nil {
		if errors.Is(err, vectorstore.ErrStoreNotFound) {
			writeError(w, fmt.Errorf("%w: %s", gatewayerrors.ErrNotFound, id))
			return
		}
		writeError(w, fmt.Errorf("%w: %v", gatewayerrors.ErrStorage, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": hits})
}

// attachFile implements POST /v1/vector_stores/{id}/files: accept a
// previously uploaded file_id, create the in_progress VectorStoreFile
// synchronously, and index the file's stored bytes in the background. The
// bytes are indexed as plain text; no PDF or docx extraction is done.
func (h *handlers) attachFile(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "id")
	var body struct {
		FileID   string                   `json:"file_id"`
		Chunking *models.ChunkingStrategy `json:"chunking_strategy,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: malformed JSON body", gatewayerrors.ErrInvalidRequest))
		return
	}
	data, meta, err := h.d.Blobs.Get(body.FileID)
	if err != nil {
		writeError(w, fmt.Errorf("%w: file %s", gatewayerrors.ErrNotFound, body.FileID))
		return
	}

	file := vectorstore.NewPendingFile(storeID, meta.Filename, meta.Bytes, body.Chunking)
	file.ID = body.FileID
	if err := h.d.VectorRepo.PutFile(r.Context(), file); err != nil {
		writeError(w, fmt.Errorf("%w: %v", gatewayerrors.ErrStorage, err))
		return
	}

	defaultStrategy := models.ChunkingStrategy{
		MaxChunkSizeTokens: h.d.DefaultChunkSizeTokens,
		ChunkOverlapTokens: h.d.DefaultChunkOverlapTokens,
	}
	text := string(data)
	go func() {
		ctx := h.d.backgroundContext()
		if err := h.d.Indexer.IndexFile(ctx, file, text, defaultStrategy); err != nil {
			h.d.Logger.Error("httpapi: background indexing failed", "file_id", file.ID, "error", err)
		}
	}()

	writeJSON(w, http.StatusOK, file)
}

// listVectorStoreFiles implements GET /v1/vector_stores/{id}/files.
func (h *handlers) listVectorStoreFiles(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "id")
	files, err := h.d.VectorRepo.ListFiles(r.Context(), storeID)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", gatewayerrors.ErrStorage, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": files})
}

// detachFile implements DELETE /v1/vector_stores/{id}/files/{fileId}.
func (h *handlers) detachFile(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "id")
	fileID := chi.URLParam(r, "fileId")
	if err := h.d.VectorRepo.DeleteChunksForFile(r.Context(), storeID, fileID); err != nil {
		writeError(w, fmt.Errorf("%w: %v", gatewayerrors.ErrStorage, err))
		return
	}
	if err := h.d.VectorRepo.DeleteFile(r.Context(), storeID, fileID); err != nil {
		writeError(w, fmt.Errorf("%w: %s", gatewayerrors.ErrNotFound, fileID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": fileID, "deleted": true})
}
