// Package convert implements the bidirectional translation between the
// client-facing canonical Response/InputItem shape and the provider-facing
// ChatCompletion shape. Nothing here calls upstream or persists
// anything; both directions are pure functions of their inputs, which is
// what makes round-trip conversion checkable as a unit test.
package convert

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// ToMessages translates the Response-style InputItem log into the
// provider's messages array. System/developer/user/
// assistant message items map to their matching ChatMessage role;
// FunctionCall items become assistant messages carrying tool_calls;
// FunctionCallOutput items become role="tool" messages keyed by
// tool_call_id.
func ToMessages(items []models.InputItem) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(items))

	var pendingCalls []models.ChatToolCall
	flushPending := func() {
		if len(pendingCalls) == 0 {
			return
		}
		out = append(out, models.ChatMessage{Role: "assistant", ToolCalls: pendingCalls})
		pendingCalls = nil
	}

	for _, item := range items {
		switch item.Type {
		case models.InputItemUserMessage:
			flushPending()
			out = append(out, models.ChatMessage{Role: "user", Content: renderContent(item)})
		case models.InputItemSystemMessage:
			flushPending()
			out = append(out, models.ChatMessage{Role: "system", Content: renderContent(item)})
		case models.InputItemDeveloperMessage:
			flushPending()
			out = append(out, models.ChatMessage{Role: "system", Content: renderContent(item)})
		case models.InputItemAssistantMessage:
			flushPending()
			out = append(out, models.ChatMessage{Role: "assistant", Content: renderContent(item)})
		case models.InputItemFunctionCall:
			pendingCalls = append(pendingCalls, models.ChatToolCall{
				ID:        item.CallID,
				Name:      item.Name,
				Arguments: item.Arguments,
			})
		case models.InputItemFunctionCallOutput:
			flushPending()
			out = append(out, models.ChatMessage{Role: "tool", Content: item.Output, ToolCallID: item.CallID})
		case models.InputItemReasoning, models.InputItemImageGenerationCall:
			// Neither is replayed as upstream context: reasoning is
			// provider-private and an image result has no text form a
			// chat message can carry.
		}
	}
	flushPending()
	return out
}

// renderContent flattens a message-shaped InputItem's content parts into
// the plain string a ChatMessage carries. input_text parts concatenate
// directly; input_image/input_file parts are rendered as a bracketed
// placeholder, since the provider-agnostic ChatMessage.Content is text-only
// — providers that accept native multimodal parts are built on top of this
// in their own request translation (internal/provider).
func renderContent(item models.InputItem) string {
	if item.Text != "" {
		return item.Text
	}
	var b strings.Builder
	for _, c := range item.Content {
		switch c.Type {
		case models.InputContentText:
			b.WriteString(c.Text)
		case models.InputContentImage:
			b.WriteString(fmt.Sprintf("[image: %s]", c.ImageURL))
		case models.InputContentFile:
			name := c.Filename
			if name == "" {
				name = c.FileID
			}
			b.WriteString(fmt.Sprintf("[file: %s]", name))
		}
	}
	return b.String()
}

// ToolsToDefinitions is a passthrough today (ToolDefinition already carries
// the provider-agnostic schema internal/provider needs); kept as a named
// seam so a future provider-specific tool-shape translation has a home
// without touching call sites.
func ToolsToDefinitions(tools []models.ToolDefinition) []models.ToolDefinition { return tools }

// ToCanonicalResponse builds a terminal or interim canonical Response
// from one ChatCompletion. params supplies the
// fields a Response must echo back to the client (model, tool config,
// generation params) that a ChatCompletion does not itself carry.
func ToCanonicalResponse(c *models.ChatCompletion, params ResponseParams) *models.Response {
	resp := &models.Response{
		ID:                 c.ID,
		CreatedAt:          params.CreatedAt,
		Model:              params.Model,
		ToolChoice:         params.ToolChoice,
		Tools:              params.Tools,
		Params:             params.GenerationParams,
		PreviousResponseID: params.PreviousResponseID,
		Metadata:           params.Metadata,
		Store:              params.Store,
	}

	if c.ID == "" {
		resp.ID = "resp_" + uuid.NewString()
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now().UTC()
	}

	if len(c.Choices) == 0 {
		resp.Status = models.ResponseStatusFailed
		resp.Error = &models.ResponseError{Code: "server_error", Message: "upstream returned no choices"}
		return resp
	}

	choice := c.Choices[0]
	resp.Output = choiceToOutputItems(choice)

	if c.Usage != nil {
		u := *c.Usage
		if u.TotalTokens == 0 {
			u.TotalTokens = u.InputTokens + u.OutputTokens
		}
		resp.Usage = &u
	}

	switch choice.FinishReason {
	case models.FinishLength:
		resp.Status = models.ResponseStatusIncomplete
		resp.IncompleteReason = models.IncompleteMaxOutputTokens
	case models.FinishContentFilter:
		// content_filter always maps to a failed Response carrying an
		// error; the incomplete_reason is kept for clients that key off
		// it.
		resp.Status = models.ResponseStatusFailed
		resp.IncompleteReason = models.IncompleteContentFilter
		resp.Error = &models.ResponseError{Code: "server_error", Message: "content filtered by upstream"}
	default:
		resp.Status = models.ResponseStatusCompleted
	}

	return resp
}

// ResponseParams carries the request-scoped fields a ChatCompletion cannot
// supply on its own but that every canonical Response must echo. A zero
// CreatedAt is stamped with the current time by ToCanonicalResponse.
type ResponseParams struct {
	Model              string
	ToolChoice         *models.ToolChoice
	Tools              []models.ToolDefinition
	GenerationParams   models.GenerationParams
	PreviousResponseID string
	Metadata           map[string]string
	Store              bool
	CreatedAt          time.Time
}

// choiceToOutputItems implements the reasoning/text/tool-call split and
// annotation attachment path.
func choiceToOutputItems(choice models.ChatChoice) []models.OutputItem {
	var items []models.OutputItem

	reasoning, text := splitReasoning(choice.Message.Content)
	if reasoning != "" {
		items = append(items, models.OutputItem{Type: models.OutputItemReasoning, Summary: reasoning})
	}
	if text != "" {
		msg := models.NewMessageItem(text)
		if annotations := urlCitationsFrom(choice.Message.Content); len(annotations) > 0 && len(msg.Content) > 0 {
			msg.Content[0].Annotations = append(msg.Content[0].Annotations, annotations...)
		}
		items = append(items, msg)
	}

	for _, tc := range choice.Message.ToolCalls {
		items = append(items, models.OutputItem{
			Type:       models.OutputItemFunctionCall,
			CallID:     tc.ID,
			Name:       tc.Name,
			Arguments:  tc.Arguments,
			CallStatus: models.FunctionCallInProgress,
		})
	}

	return items
}

// splitReasoning pulls <think>...</think> content out of assistant text,
// returning the reasoning summary separately from the remaining visible
// text.
func splitReasoning(content string) (reasoning, remaining string) {
	const open, close = "<think>", "</think>"
	start := strings.Index(content, open)
	if start < 0 {
		return "", content
	}
	end := strings.Index(content[start:], close)
	if end < 0 {
		return strings.TrimSpace(content[start+len(open):]), strings.TrimSpace(content[:start])
	}
	end += start
	reasoning = strings.TrimSpace(content[start+len(open) : end])
	remaining = strings.TrimSpace(content[:start] + content[end+len(close):])
	return reasoning, remaining
}

// urlCitationsFrom is a narrow heuristic extractor for markdown-style
// links the assistant emitted inline, translated into url_citation
// annotations.
func urlCitationsFrom(content string) []models.Annotation {
	var annotations []models.Annotation
	idx := 0
	for {
		open := strings.Index(content[idx:], "](")
		if open < 0 {
			break
		}
		open += idx
		titleStart := strings.LastIndex(content[:open], "[")
		if titleStart < 0 {
			idx = open + 2
			continue
		}
		closeParen := strings.Index(content[open:], ")")
		if closeParen < 0 {
			break
		}
		closeParen += open
		title := content[titleStart+1 : open]
		url := content[open+2 : closeParen]
		if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
			annotations = append(annotations, models.Annotation{
				Type:  models.AnnotationURLCitation,
				URL:   url,
				Title: title,
				Index: titleStart,
			})
		}
		idx = closeParen + 1
	}
	return annotations
}

// fileSearchResult mirrors the JSON shape toolservice's file_search /
// agentic_search tools emit, kept private here since only AttachFileCitations
// needs to parse it back.
type fileSearchResult struct {
	Results []struct {
		FileID   string  `json:"file_id"`
		Filename string  `json:"filename"`
		Score    float32 `json:"score"`
	} `json:"results"`
}

// AttachFileCitations handles the retrieval-tool case: when the
// last InputItem supplied to this turn is a FunctionCallOutput produced by
// file_search or agentic_search, parse its JSON payload and attach
// file_citation annotations to the last text ContentPart of resp.Output.
// A malformed payload is logged and otherwise ignored.
func AttachFileCitations(resp *models.Response, lastInput models.InputItem, lastInputWasSearchTool bool) {
	if !lastInputWasSearchTool || lastInput.Type != models.InputItemFunctionCallOutput {
		return
	}
	var parsed fileSearchResult
	if err := json.Unmarshal([]byte(lastInput.Output), &parsed); err != nil {
		slog.Default().Warn("convert: ignoring unparseable search tool output", "call_id", lastInput.CallID, "error", err)
		return
	}

	lastTextIdx := -1
	for i, item := range resp.Output {
		if item.Type == models.OutputItemMessage && len(item.Content) > 0 {
			lastTextIdx = i
		}
	}
	if lastTextIdx < 0 {
		return
	}

	for i, r := range parsed.Results {
		resp.Output[lastTextIdx].Content[0].Annotations = append(resp.Output[lastTextIdx].Content[0].Annotations, models.Annotation{
			Type:     models.AnnotationFileCitation,
			FileID:   r.FileID,
			Filename: r.Filename,
			Index:    i,
		})
	}
}

// ToChatCompletion is the reverse of ToCanonicalResponse:
// given a canonical Response, reconstruct the ChatCompletion shape that
// would have produced it. Used only by tests and by /v1/chat/completions
// when it needs to echo a Response-flavored result in completions shape.
func ToChatCompletion(resp *models.Response) *models.ChatCompletion {
	c := &models.ChatCompletion{ID: resp.ID, Model: resp.Model}
	if resp.Usage != nil {
		u := *resp.Usage
		c.Usage = &u
	}

	var content strings.Builder
	var toolCalls []models.ChatToolCall
	for _, item := range resp.Output {
		switch item.Type {
		case models.OutputItemReasoning:
			content.WriteString("<think>")
			content.WriteString(item.Summary)
			content.WriteString("</think>")
		case models.OutputItemMessage:
			content.WriteString(item.TextContent())
		case models.OutputItemFunctionCall:
			toolCalls = append(toolCalls, models.ChatToolCall{ID: item.CallID, Name: item.Name, Arguments: item.Arguments})
		}
	}

	finish := models.FinishStop
	switch resp.Status {
	case models.ResponseStatusIncomplete:
		finish = models.FinishLength
	case models.ResponseStatusFailed:
		finish = models.FinishContentFilter
	}
	if len(toolCalls) > 0 {
		finish = models.FinishToolCalls
	}

	c.Choices = []models.ChatChoice{{
		Index:        0,
		Message:      models.ChatMessage{Role: "assistant", Content: content.String(), ToolCalls: toolCalls},
		FinishReason: finish,
	}}
	return c
}
