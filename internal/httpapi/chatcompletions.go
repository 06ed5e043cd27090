package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/masaic-ai-platform/open-responses-sub001/internal/convert"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/gatewayerrors"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/orchestrator"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/sse"
)

// chatCompletions implements POST /v1/chat/completions: translate the
// conventional messages array into the canonical InputItem log, run it
// through the same orchestrator, and translate a buffered result back into
// ChatCompletion shape. A stream=true request is answered with the same
// canonical Response event stream /v1/responses emits.
func (h *handlers) chatCompletions(w http.ResponseWriter, r *http.Request) {
	var body chatCompletionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: malformed JSON body", gatewayerrors.ErrInvalidRequest))
		return
	}

	req := &orchestrator.Request{
		Credential:      bearerCredential(r),
		Model:           body.Model,
		HeaderProvider:  r.Header.Get("x-model-provider"),
		Input:           messagesToInputItems(body.Messages),
		Tools:           body.Tools,
		Temperature:     body.Temperature,
		TopP:            body.TopP,
		MaxOutputTokens: body.MaxTokens,
		Store:           false,
		Stream:          body.Stream,
	}

	if body.Stream {
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
		h.d.Metrics.RecordRequest("/v1/chat/completions", "completed")
		return
	}

	resp, err := h.d.Orchestrator.CreateResponse(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	h.d.Metrics.RecordRequest("/v1/chat/completions", "completed")
	writeJSON(w, http.StatusOK, convert.ToChatCompletion(resp))
}
