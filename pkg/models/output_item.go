package models

// OutputItemType tags the variant carried by an OutputItem.
type OutputItemType string

const (
	OutputItemMessage             OutputItemType = "message"
	OutputItemReasoning           OutputItemType = "reasoning"
	OutputItemFunctionCall        OutputItemType = "function_call"
	OutputItemFunctionCallOutput  OutputItemType = "function_call_output"
	OutputItemImageGenerationCall OutputItemType = "image_generation_call"
)

// FunctionCallStatus tracks whether a requested call has been resolved.
type FunctionCallStatus string

const (
	FunctionCallInProgress FunctionCallStatus = "in_progress"
	FunctionCallCompleted  FunctionCallStatus = "completed"
)

// AnnotationType tags the variant carried by an Annotation.
type AnnotationType string

const (
	AnnotationFileCitation AnnotationType = "file_citation"
	AnnotationURLCitation  AnnotationType = "url_citation"
)

// Annotation attaches a citation to a ContentPart.
type Annotation struct {
	Type     AnnotationType `json:"type"`
	FileID   string         `json:"file_id,omitempty"`
	Filename string         `json:"filename,omitempty"`
	Index    int            `json:"index,omitempty"`
	URL      string         `json:"url,omitempty"`
	Title    string         `json:"title,omitempty"`
}

// ContentPartType tags the variant of a ContentPart.
type ContentPartType string

const (
	ContentPartOutputText ContentPartType = "output_text"
	ContentPartText       ContentPartType = "text"
)

// ContentPart is one element of a Message's ordered content list.
type ContentPart struct {
	Type        ContentPartType `json:"type"`
	Text        string          `json:"text"`
	Annotations []Annotation    `json:"annotations,omitempty"`
}

// OutputItem is a tagged variant over the kinds of output an orchestration
// turn can produce. Exactly one of the payload fields below is populated,
// matching the Type discriminator.
type OutputItem struct {
	Type OutputItemType `json:"type"`

	ID string `json:"id,omitempty"`

	// Message payload.
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`

	// Reasoning payload.
	Summary string `json:"summary,omitempty"`

	// FunctionCall payload.
	CallID     string             `json:"call_id,omitempty"`
	Name       string             `json:"name,omitempty"`
	Arguments  string             `json:"arguments,omitempty"`
	CallStatus FunctionCallStatus `json:"status,omitempty"`

	// FunctionCallOutput payload.
	Output string `json:"output,omitempty"`

	// ImageGenerationCall payload.
	ResultB64 string `json:"result,omitempty"`
}

// NewMessageItem builds a Message OutputItem from plain text, the common
// case for a single text choice with no citations.
func NewMessageItem(text string) OutputItem {
	item := OutputItem{Type: OutputItemMessage, Role: "assistant"}
	if text != "" {
		item.Content = []ContentPart{{Type: ContentPartOutputText, Text: text}}
	}
	return item
}

// TextContent concatenates the text of every content part of a Message item,
// whatever the part's type.
func (o OutputItem) TextContent() string {
	var out string
	for _, c := range o.Content {
		out += c.Text
	}
	return out
}
