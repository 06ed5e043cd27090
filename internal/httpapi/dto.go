package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/masaic-ai-platform/open-responses-sub001/internal/gatewayerrors"
	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// responseCreateBody is the wire body of POST /v1/responses. Input
// accepts either a bare string (shorthand for one user message) or a list
// of InputItem objects in the gateway's own canonical shape.
type responseCreateBody struct {
	Model              string                  `json:"model"`
	Input              json.RawMessage         `json:"input"`
	Instructions       string                  `json:"instructions,omitempty"`
	MaxOutputTokens    int                     `json:"max_output_tokens,omitempty"`
	Tools              []models.ToolDefinition `json:"tools,omitempty"`
	Temperature        *float64                `json:"temperature,omitempty"`
	TopP               *float64                `json:"top_p,omitempty"`
	ToolChoice         *models.ToolChoice      `json:"tool_choice,omitempty"`
	Store              *bool                   `json:"store,omitempty"`
	Stream             bool                    `json:"stream,omitempty"`
	PreviousResponseID string                  `json:"previous_response_id,omitempty"`
	Metadata           map[string]string       `json:"metadata,omitempty"`
}

// parseInput decodes the input field's two accepted shapes.
func parseInput(raw json.RawMessage) ([]models.InputItem, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return []models.InputItem{models.NewUserText(asString)}, nil
	}
	var items []models.InputItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: input must be a string or a list of input items", gatewayerrors.ErrInvalidRequest)
	}
	return items, nil
}

// bearerCredential extracts the pass-through credential from the
// Authorization header.
func bearerCredential(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return auth
}

// writeJSON encodes v as the response body with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto its HTTP status via gatewayerrors and writes
// an OpenAI-style {"error": {...}} body.
func writeError(w http.ResponseWriter, err error) {
	status := gatewayerrors.HTTPStatus(err)
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    string(gatewayerrors.Classify(err)),
			"message": err.Error(),
		},
	})
}

// inputItemsResponse is the body of GET /v1/responses/{id}/input_items.
type inputItemsResponse struct {
	Data []models.InputItem `json:"data"`
}

// chatCompletionBody is the wire body of POST /v1/chat/completions, the
// conventional OpenAI chat-completions request shape.
type chatCompletionBody struct {
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	Tools       []models.ToolDefinition `json:"tools,omitempty"`
	Temperature *float64                `json:"temperature,omitempty"`
	TopP        *float64                `json:"top_p,omitempty"`
	MaxTokens   int                     `json:"max_tokens,omitempty"`
	Stream      bool                    `json:"stream,omitempty"`
}

// messagesToInputItems translates a chat-completions messages array into
// the canonical InputItem log the orchestrator expects, the inverse of
// internal/convert.ToMessages.
func messagesToInputItems(messages []models.ChatMessage) []models.InputItem {
	items := make([]models.InputItem, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			items = append(items, models.InputItem{Type: models.InputItemSystemMessage, Text: m.Content})
		case "user":
			items = append(items, models.InputItem{Type: models.InputItemUserMessage, Text: m.Content})
		case "assistant":
			if m.Content != "" {
				items = append(items, models.InputItem{Type: models.InputItemAssistantMessage, Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				items = append(items, models.InputItem{
					Type: models.InputItemFunctionCall, CallID: tc.ID, Name: tc.Name, Arguments: tc.Arguments,
				})
			}
		case "tool":
			items = append(items, models.InputItem{
				Type: models.InputItemFunctionCallOutput, CallID: m.ToolCallID, Output: m.Content,
			})
		}
	}
	return items
}
