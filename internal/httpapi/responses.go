package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/masaic-ai-platform/open-responses-sub001/internal/gatewayerrors"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/orchestrator"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/sse"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/store"
	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// createResponse implements POST /v1/responses: parse the
// body into an orchestrator.Request, merge any previous_response_id's
// persisted input history, then dispatch to the buffered or
// streaming orchestrator depending on stream.
func (h *handlers) createResponse(w http.ResponseWriter, r *http.Request) {
	var body responseCreateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: malformed JSON body", gatewayerrors.ErrInvalidRequest))
		return
	}

	items, err := parseInput(body.Input)
	if err != nil {
		writeError(w, err)
		return
	}

	if body.PreviousResponseID != "" {
		_, prevItems, err := h.d.Responses.Get(r.Context(), body.PreviousResponseID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			writeError(w, fmt.Errorf("%w: %v", gatewayerrors.ErrStorage, err))
			return
		}
		if err == nil {
			items = models.MergeInputItems(prevItems, items)
		}
	}

	storeFlag := true
	if body.Store != nil {
		storeFlag = *body.Store
	}

	req := &orchestrator.Request{
		Credential:         bearerCredential(r),
		Model:              body.Model,
		HeaderProvider:     r.Header.Get("x-model-provider"),
		Input:              items,
		Instructions:       body.Instructions,
		Tools:              body.Tools,
		ToolChoice:         body.ToolChoice,
		Temperature:        body.Temperature,
		TopP:               body.TopP,
		MaxOutputTokens:    body.MaxOutputTokens,
		Store:              storeFlag,
		Stream:             body.Stream,
		PreviousResponseID: body.PreviousResponseID,
		Metadata:           body.Metadata,
	}

	if body.Stream {
		h.streamResponse(w, r, req)
		return
	}

	resp, err := h.d.Orchestrator.CreateResponse(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	h.d.Metrics.RecordRequest("/v1/responses", "completed")
	writeJSON(w, http.StatusOK, resp)
}

// streamResponse serves the text/event-stream body of a stream=true
// request.
func (h *handlers) streamResponse(w http.ResponseWriter, r *http.Request, req *orchestrator.Request) {
	events, err := h.d.Orchestrator.StreamResponse(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for ev := range events {
		if err := sse.Write(w, ev); err != nil {
			h.d.Logger.Warn("httpapi: failed to write SSE event", "error", err)
			return
		}
	}
	h.d.Metrics.RecordRequest("/v1/responses", "completed")
}

// getResponse implements GET /v1/responses/{id}.
func (h *handlers) getResponse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	resp, _, err := h.d.Responses.Get(r.Context(), id)
	if err != nil {
		writeError(w, translateNotFound(id, err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// deleteResponse implements DELETE /v1/responses/{id}.
func (h *handlers) deleteResponse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.d.Responses.Delete(r.Context(), id); err != nil {
		writeError(w, translateNotFound(id, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

// listInputItems implements GET /v1/responses/{id}/input_items.
func (h *handlers) listInputItems(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, items, err := h.d.Responses.Get(r.Context(), id)
	if err != nil {
		writeError(w, translateNotFound(id, err))
		return
	}
	writeJSON(w, http.StatusOK, inputItemsResponse{Data: items})
}

// translateNotFound converts the store's sentinel into
// gatewayerrors.ErrNotFound at the HTTP boundary (internal/store's own doc
// comment on ErrNotFound asks for exactly this).
func translateNotFound(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", gatewayerrors.ErrNotFound, id)
	}
	return fmt.Errorf("%w: %v", gatewayerrors.ErrStorage, err)
}
