package models

import "encoding/json"

// InputItemType tags the variant carried by an InputItem. InputItems are the
// conversation log replayed as context on every recursive orchestration turn.
type InputItemType string

const (
	InputItemUserMessage         InputItemType = "user_message"
	InputItemSystemMessage       InputItemType = "system_message"
	InputItemDeveloperMessage    InputItemType = "developer_message"
	InputItemAssistantMessage    InputItemType = "assistant_message"
	InputItemFunctionCall        InputItemType = "function_call"
	InputItemFunctionCallOutput  InputItemType = "function_call_output"
	InputItemReasoning           InputItemType = "reasoning"
	InputItemImageGenerationCall InputItemType = "image_generation_call"
)

// InputContentType tags a single content element of a message-shaped InputItem.
type InputContentType string

const (
	InputContentText  InputContentType = "input_text"
	InputContentImage InputContentType = "input_image"
	InputContentFile  InputContentType = "input_file"
)

// InputContent is one element of a message-shaped InputItem's content list.
type InputContent struct {
	Type     InputContentType `json:"type"`
	Text     string           `json:"text,omitempty"`
	ImageURL string           `json:"image_url,omitempty"`
	Detail   string           `json:"detail,omitempty"`
	FileData string           `json:"file_data,omitempty"`
	FileID   string           `json:"file_id,omitempty"`
	Filename string           `json:"filename,omitempty"`
}

// InputItem is a tagged variant mirroring OutputItem plus the client-only
// role variants (user/system/developer) and function_call_output.
type InputItem struct {
	Type InputItemType `json:"type"`

	// Message payload (user/system/developer/assistant).
	Content []InputContent `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"` // shorthand for a single text part

	// FunctionCall payload.
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// FunctionCallOutput payload.
	Output string `json:"output,omitempty"`

	// Reasoning payload.
	Summary string `json:"summary,omitempty"`

	// ImageGenerationCall payload.
	ResultB64 string `json:"result,omitempty"`
}

// NewUserText builds a plain text user InputItem, the common case for a
// bare-string /v1/responses "input" field.
func NewUserText(text string) InputItem {
	return InputItem{
		Type:    InputItemUserMessage,
		Content: []InputContent{{Type: InputContentText, Text: text}},
	}
}

// PlainText concatenates the text parts of a message-shaped InputItem.
func (i InputItem) PlainText() string {
	if i.Text != "" {
		return i.Text
	}
	var out string
	for _, c := range i.Content {
		if c.Type == InputContentText {
			out += c.Text
		}
	}
	return out
}

// IsMessage reports whether the item is one of the four message roles.
func (i InputItem) IsMessage() bool {
	switch i.Type {
	case InputItemUserMessage, InputItemSystemMessage, InputItemDeveloperMessage, InputItemAssistantMessage:
		return true
	}
	return false
}

// FunctionCallOutputFor returns the FunctionCall + FunctionCallOutput pair
// for a resolved tool call, in the order they are stored.
func FunctionCallOutputFor(callID, name, arguments, output string) (InputItem, InputItem) {
	call := InputItem{Type: InputItemFunctionCall, CallID: callID, Name: name, Arguments: arguments}
	out := InputItem{Type: InputItemFunctionCallOutput, CallID: callID, Output: output}
	return call, out
}

// CountFunctionCalls returns the number of FunctionCall items in the list,
// used to enforce MAX_TOOL_CALLS.
func CountFunctionCalls(items []InputItem) int {
	n := 0
	for _, it := range items {
		if it.Type == InputItemFunctionCall {
			n++
		}
	}
	return n
}

// UnresolvedFunctionCalls returns call_ids present as FunctionCall but
// lacking a matching FunctionCallOutput anywhere in the list.
func UnresolvedFunctionCalls(items []InputItem) []string {
	resolved := make(map[string]bool)
	for _, it := range items {
		if it.Type == InputItemFunctionCallOutput {
			resolved[it.CallID] = true
		}
	}
	var unresolved []string
	seen := make(map[string]bool)
	for _, it := range items {
		if it.Type == InputItemFunctionCall && !resolved[it.CallID] && !seen[it.CallID] {
			unresolved = append(unresolved, it.CallID)
			seen[it.CallID] = true
		}
	}
	return unresolved
}

// MergeInputItems implements the Store's set-union-by-structural-equality
// merge: every item of b not already present in a (by value
// equality) is appended, preserving first-seen order.
func MergeInputItems(a, b []InputItem) []InputItem {
	seen := make(map[string]struct{}, len(a))
	key := func(i InputItem) string {
		data, _ := json.Marshal(i)
		return string(data)
	}
	out := make([]InputItem, 0, len(a)+len(b))
	for _, it := range a {
		out = append(out, it)
		seen[key(it)] = struct{}{}
	}
	for _, it := range b {
		k := key(it)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

// ProjectFunctionCallOutputItem converts an OutputItem of type FunctionCall
// into its InputItem projection for storage.
func ProjectFunctionCallOutputItem(o OutputItem) InputItem {
	return InputItem{
		Type:      InputItemFunctionCall,
		CallID:    o.CallID,
		Name:      o.Name,
		Arguments: o.Arguments,
	}
}
