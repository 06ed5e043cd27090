package convert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

func TestToMessages_RoleMapping(t *testing.T) {
	items := []models.InputItem{
		{Type: models.InputItemSystemMessage, Text: "be terse"},
		models.NewUserText("hello"),
		{Type: models.InputItemAssistantMessage, Text: "hi there"},
	}

	messages := ToMessages(items)

	require.Len(t, messages, 3)
	assert.Equal(t, "system", messages[0].Role)
	assert.Equal(t, "be terse", messages[0].Content)
	assert.Equal(t, "user", messages[1].Role)
	assert.Equal(t, "hello", messages[1].Content)
	assert.Equal(t, "assistant", messages[2].Role)
}

func TestToMessages_FunctionCallPairing(t *testing.T) {
	call, out := models.FunctionCallOutputFor("call_1", "get_weather", `{"city":"nyc"}`, `{"temp":72}`)
	items := []models.InputItem{
		models.NewUserText("what's the weather"),
		call,
		out,
	}

	messages := ToMessages(items)

	require.Len(t, messages, 3)
	assert.Equal(t, "user", messages[0].Role)

	assert.Equal(t, "assistant", messages[1].Role)
	require.Len(t, messages[1].ToolCalls, 1)
	assert.Equal(t, "call_1", messages[1].ToolCalls[0].ID)
	assert.Equal(t, "get_weather", messages[1].ToolCalls[0].Name)

	assert.Equal(t, "tool", messages[2].Role)
	assert.Equal(t, "call_1", messages[2].ToolCallID)
	assert.Equal(t, `{"temp":72}`, messages[2].Content)
}

func TestToMessages_ConsecutiveCallsFlushAsOneMessage(t *testing.T) {
	callA, outA := models.FunctionCallOutputFor("call_a", "fn_a", "{}", "1")
	callB, outB := models.FunctionCallOutputFor("call_b", "fn_b", "{}", "2")
	items := []models.InputItem{callA, callB, outA, outB}

	messages := ToMessages(items)

	require.Len(t, messages, 3)
	require.Len(t, messages[0].ToolCalls, 2)
	assert.Equal(t, "call_a", messages[0].ToolCalls[0].ID)
	assert.Equal(t, "call_b", messages[0].ToolCalls[1].ID)
}

func TestToCanonicalResponse_EmptyChoicesFails(t *testing.T) {
	c := &models.ChatCompletion{ID: "chatcmpl_1"}

	resp := ToCanonicalResponse(c, ResponseParams{Model: "gpt-4o"})

	assert.Equal(t, models.ResponseStatusFailed, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "server_error", resp.Error.Code)
}

func TestToCanonicalResponse_Completed(t *testing.T) {
	c := &models.ChatCompletion{
		ID: "chatcmpl_2",
		Choices: []models.ChatChoice{{
			Index:        0,
			Message:      models.ChatMessage{Role: "assistant", Content: "the answer is 42"},
			FinishReason: models.FinishStop,
		}},
		Usage: &models.Usage{InputTokens: 10, OutputTokens: 5},
	}

	resp := ToCanonicalResponse(c, ResponseParams{Model: "gpt-4o", CreatedAt: time.Unix(1000, 0).UTC()})

	assert.Equal(t, models.ResponseStatusCompleted, resp.Status)
	require.Len(t, resp.Output, 1)
	assert.Equal(t, models.OutputItemMessage, resp.Output[0].Type)
	assert.Equal(t, "the answer is 42", resp.Output[0].TextContent())
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, time.Unix(1000, 0).UTC(), resp.CreatedAt)
}

func TestToCanonicalResponse_LengthIsIncomplete(t *testing.T) {
	c := &models.ChatCompletion{
		ID: "chatcmpl_3",
		Choices: []models.ChatChoice{{
			Message:      models.ChatMessage{Role: "assistant", Content: "truncated"},
			FinishReason: models.FinishLength,
		}},
	}

	resp := ToCanonicalResponse(c, ResponseParams{Model: "gpt-4o"})

	assert.Equal(t, models.ResponseStatusIncomplete, resp.Status)
	assert.Equal(t, models.IncompleteMaxOutputTokens, resp.IncompleteReason)
}

func TestToCanonicalResponse_ContentFilterNormalizesToFailed(t *testing.T) {
	c := &models.ChatCompletion{
		ID: "chatcmpl_4",
		Choices: []models.ChatChoice{{
			Message:      models.ChatMessage{Role: "assistant", Content: "blocked"},
			FinishReason: models.FinishContentFilter,
		}},
	}

	resp := ToCanonicalResponse(c, ResponseParams{Model: "gpt-4o"})

	assert.Equal(t, models.ResponseStatusFailed, resp.Status)
	assert.Equal(t, models.IncompleteContentFilter, resp.IncompleteReason)
	require.NotNil(t, resp.Error)
}

func TestToCanonicalResponse_ToolCalls(t *testing.T) {
	c := &models.ChatCompletion{
		ID: "chatcmpl_5",
		Choices: []models.ChatChoice{{
			Message: models.ChatMessage{
				Role: "assistant",
				ToolCalls: []models.ChatToolCall{
					{ID: "call_1", Name: "get_weather", Arguments: `{"city":"nyc"}`},
				},
			},
			FinishReason: models.FinishToolCalls,
		}},
	}

	resp := ToCanonicalResponse(c, ResponseParams{Model: "gpt-4o"})

	require.Len(t, resp.Output, 1)
	assert.Equal(t, models.OutputItemFunctionCall, resp.Output[0].Type)
	assert.Equal(t, "call_1", resp.Output[0].CallID)
	assert.Equal(t, models.FunctionCallInProgress, resp.Output[0].CallStatus)
}

func TestSplitReasoning(t *testing.T) {
	reasoning, remaining := splitReasoning("<think>step one, step two</think>final answer")
	assert.Equal(t, "step one, step two", reasoning)
	assert.Equal(t, "final answer", remaining)

	reasoning, remaining = splitReasoning("plain text, no reasoning block")
	assert.Empty(t, reasoning)
	assert.Equal(t, "plain text, no reasoning block", remaining)
}

func TestChoiceToOutputItems_SplitsReasoningFromText(t *testing.T) {
	choice := models.ChatChoice{
		Message: models.ChatMessage{Role: "assistant", Content: "<think>thinking it through</think>the result"},
	}

	items := choiceToOutputItems(choice)

	require.Len(t, items, 2)
	assert.Equal(t, models.OutputItemReasoning, items[0].Type)
	assert.Equal(t, "thinking it through", items[0].Summary)
	assert.Equal(t, models.OutputItemMessage, items[1].Type)
	assert.Equal(t, "the result", items[1].TextContent())
}

func TestURLCitationsFrom(t *testing.T) {
	content := "see [the docs](https://example.com/docs) for more"

	annotations := urlCitationsFrom(content)

	require.Len(t, annotations, 1)
	assert.Equal(t, models.AnnotationURLCitation, annotations[0].Type)
	assert.Equal(t, "https://example.com/docs", annotations[0].URL)
	assert.Equal(t, "the docs", annotations[0].Title)
}

func TestAttachFileCitations(t *testing.T) {
	resp := &models.Response{
		Output: []models.OutputItem{models.NewMessageItem("42 degrees in nyc")},
	}
	_, searchOutput := models.FunctionCallOutputFor("call_1", "file_search", "{}",
		`{"results":[{"file_id":"file_abc","filename":"weather.txt","score":0.9}]}`)

	AttachFileCitations(resp, searchOutput, true)

	require.Len(t, resp.Output[0].Content[0].Annotations, 1)
	ann := resp.Output[0].Content[0].Annotations[0]
	assert.Equal(t, models.AnnotationFileCitation, ann.Type)
	assert.Equal(t, "file_abc", ann.FileID)
	assert.Equal(t, "weather.txt", ann.Filename)
}

func TestAttachFileCitations_NoopWhenNotSearchTool(t *testing.T) {
	resp := &models.Response{Output: []models.OutputItem{models.NewMessageItem("hi")}}
	_, out := models.FunctionCallOutputFor("call_1", "some_other_tool", "{}", `{"results":[]}`)

	AttachFileCitations(resp, out, false)

	assert.Empty(t, resp.Output[0].Content[0].Annotations)
}

// TestRoundTrip_PreservesObservableFields exercises the idempotent
// re-conversion invariant: a ChatCompletion converted to a canonical
// Response and back should preserve finish reason, text, and tool calls,
// and converting the result again should give the same status and item
// count.
func TestRoundTrip_PreservesObservableFields(t *testing.T) {
	original := &models.ChatCompletion{
		ID: "chatcmpl_6",
		Choices: []models.ChatChoice{{
			Message: models.ChatMessage{
				Role:    "assistant",
				Content: "here is the answer",
				ToolCalls: []models.ChatToolCall{
					{ID: "call_1", Name: "lookup", Arguments: `{"q":"x"}`},
				},
			},
			FinishReason: models.FinishToolCalls,
		}},
	}

	resp := ToCanonicalResponse(original, ResponseParams{Model: "gpt-4o", CreatedAt: time.Unix(1, 0).UTC()})
	back := ToChatCompletion(resp)

	require.Len(t, back.Choices, 1)
	assert.Equal(t, models.FinishToolCalls, back.Choices[0].FinishReason)
	require.Len(t, back.Choices[0].Message.ToolCalls, 1)
	assert.Equal(t, "lookup", back.Choices[0].Message.ToolCalls[0].Name)
	assert.Contains(t, back.Choices[0].Message.Content, "here is the answer")

	resp2 := ToCanonicalResponse(back, ResponseParams{Model: "gpt-4o", CreatedAt: resp.CreatedAt})
	assert.Equal(t, resp.Status, resp2.Status)
	assert.Equal(t, len(resp.Output), len(resp2.Output))
}
