package httpapi

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/masaic-ai-platform/open-responses-sub001/internal/gatewayerrors"
)

const maxUploadBytes = 64 << 20 // 64MiB, matching a conservative multipart cap

// createFile implements POST /v1/files: a multipart upload with a "file"
// part and a "purpose" field.
func (h *handlers) createFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, fmt.Errorf("%w: %v", gatewayerrors.ErrInvalidRequest, err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, fmt.Errorf("%w: missing file part", gatewayerrors.ErrInvalidRequest))
		return
	}
	defer file.Close()

	purpose := r.FormValue("purpose")
	if purpose == "" {
		purpose = "assistants"
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", gatewayerrors.ErrInvalidRequest, err))
		return
	}

	meta, err := h.d.Blobs.Put(purpose, header.Filename, data)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", gatewayerrors.ErrStorage, err))
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// listFiles implements GET /v1/files.
func (h *handlers) listFiles(w http.ResponseWriter, r *http.Request) {
	metas, err := h.d.Blobs.List()
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", gatewayerrors.ErrStorage, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": metas})
}

// getFile implements GET /v1/files/{id}.
func (h *handlers) getFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	meta, err := h.d.Blobs.Meta(id)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %s", gatewayerrors.ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// deleteFile implements DELETE /v1/files/{id}.
func (h *handlers) deleteFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.d.Blobs.Delete(id); err != nil {
		writeError(w, fmt.Errorf("%w: %s", gatewayerrors.ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

// getFileContent implements GET /v1/files/{id}/content.
func (h *handlers) getFileContent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, meta, err := h.d.Blobs.Get(id)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %s", gatewayerrors.ErrNotFound, id))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, meta.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
