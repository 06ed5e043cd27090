// Package streamrecon reconstructs a complete models.ChatCompletion from a
// provider's chunk stream, and separately drives the SSE event
// sequence a streaming client sees, so the same accumulation logic backs
// both a buffered turn (drain to completion, discard the channel) and a
// streaming turn (drain while forwarding deltas).
package streamrecon

import (
	"context"
	"fmt"
	"sort"

	"github.com/masaic-ai-platform/open-responses-sub001/internal/provider"
	"github.com/masaic-ai-platform/open-responses-sub001/internal/sse"
	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// toolCallAccumulator collects one tool call's id/name/arguments as they
// arrive across possibly many chunks.
type toolCallAccumulator struct {
	index     int
	id        string
	name      string
	arguments string
}

// Accumulator assembles one choice's worth of streamed output: visible
// text, reasoning text, and any tool calls, keyed by ToolCallDelta.Index so
// interleaved deltas for multiple concurrent calls never cross-contaminate
type Accumulator struct {
	text         string
	reasoning    string
	finishReason models.FinishReason
	usage        *models.Usage

	toolOrder []int
	toolCalls map[int]*toolCallAccumulator
}

// NewAccumulator returns an empty Accumulator ready to consume chunks for
// one choice.
func NewAccumulator() *Accumulator {
	return &Accumulator{toolCalls: make(map[int]*toolCallAccumulator)}
}

// Add folds one chunk into the accumulator. Chunks for other choice
// indexes are the caller's concern to filter before calling Add (the
// gateway only ever requests a single choice, so callers pass ChoiceIndex
// 0 chunks here without filtering in practice).
func (a *Accumulator) Add(c *provider.Chunk) {
	if c.Text != "" {
		a.text += c.Text
	}
	if c.Reasoning != "" {
		a.reasoning += c.Reasoning
	}
	if c.FinishReason != "" {
		a.finishReason = models.FinishReason(c.FinishReason)
	}
	if c.Usage != nil {
		a.usage = c.Usage
	}
	if c.ToolCallDelta != nil {
		d := c.ToolCallDelta
		tc, ok := a.toolCalls[d.Index]
		if !ok {
			tc = &toolCallAccumulator{index: d.Index}
			a.toolCalls[d.Index] = tc
			a.toolOrder = append(a.toolOrder, d.Index)
		}
		if d.ID != "" {
			tc.id = d.ID
		}
		if d.Name != "" {
			tc.name = d.Name
		}
		tc.arguments += d.Arguments
	}
}

// ToolCalls returns the accumulated tool calls in ascending Index order.
func (a *Accumulator) ToolCalls() []models.ChatToolCall {
	calls, _ := a.toolCallsWithIndex()
	return calls
}

// toolCallsWithIndex returns the accumulated tool calls alongside the
// ToolCallDelta.Index each was keyed by, so callers emitting per-call SSE
// events can address the right item_id.
func (a *Accumulator) toolCallsWithIndex() ([]models.ChatToolCall, []int) {
	if len(a.toolOrder) == 0 {
		return nil, nil
	}
	order := append([]int(nil), a.toolOrder...)
	sort.Ints(order)
	calls := make([]models.ChatToolCall, 0, len(order))
	for _, idx := range order {
		tc := a.toolCalls[idx]
		calls = append(calls, models.ChatToolCall{ID: tc.id, Name: tc.name, Arguments: tc.arguments})
	}
	return calls, order
}

// Text returns the accumulated visible output text.
func (a *Accumulator) Text() string { return a.text }

// Reasoning returns the accumulated reasoning text.
func (a *Accumulator) Reasoning() string { return a.reasoning }

// renderedContent folds Reasoning back into a <think> block ahead of Text,
// matching the shape internal/convert.splitReasoning expects to parse back
// out of ChatMessage.Content.
func (a *Accumulator) renderedContent() string {
	if a.reasoning == "" {
		return a.text
	}
	return "<think>" + a.reasoning + "</think>" + a.text
}

// Drain consumes chunks until the channel closes or ctx is canceled,
// folding every chunk into the accumulator, and returns the assembled
// ChatCompletion. Used by the buffered orchestration path, where no
// SSE deltas are forwarded.
func Drain(ctx context.Context, chunks <-chan *provider.Chunk, model string) (*models.ChatCompletion, error) {
	acc := NewAccumulator()
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("streamrecon: %w", ctx.Err())
		case c, ok := <-chunks:
			if !ok {
				return acc.toChatCompletion(model), nil
			}
			if c.Error != nil {
				return nil, fmt.Errorf("streamrecon: upstream stream error: %w", c.Error)
			}
			acc.Add(c)
			if c.Done {
				return acc.toChatCompletion(model), nil
			}
		}
	}
}

func (a *Accumulator) toChatCompletion(model string) *models.ChatCompletion {
	finish := a.finishReason
	if finish == "" {
		finish = models.FinishStop
	}
	toolCalls := a.ToolCalls()
	if len(toolCalls) > 0 {
		finish = models.FinishToolCalls
	}
	return &models.ChatCompletion{
		Model: model,
		Choices: []models.ChatChoice{{
			Index:        0,
			Message:      models.ChatMessage{Role: "assistant", Content: a.renderedContent(), ToolCalls: toolCalls},
			FinishReason: finish,
		}},
		Usage: a.usage,
	}
}

// Forward consumes chunks, emitting response.output_text.delta and
// response.function_call_arguments.delta events through emitter as they
// arrive, and returns the assembled ChatCompletion once the stream ends.
// outputIndex/itemID are fixed for the lifetime of one Forward call: the
// orchestrator allocates a fresh Accumulator (and a new output_item.added
// event) per assistant turn.
//
// suppressArgs, when non-nil, is consulted per tool call once its name is
// known: calls whose name it reports true for get no argument delta/done
// events, so clients never see partial arguments of tools the gateway
// executes itself. A nil suppressArgs forwards everything.
func Forward(ctx context.Context, chunks <-chan *provider.Chunk, model string, emitter *sse.Emitter, outputIndex int, itemID string, suppressArgs func(toolName string) bool) (*models.ChatCompletion, error) {
	acc := NewAccumulator()
	toolItemIDs := make(map[int]string)
	toolNames := make(map[int]string)

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("streamrecon: %w", ctx.Err())
		case c, ok := <-chunks:
			if !ok {
				return finishForward(acc, model, emitter, outputIndex, itemID, suppressArgs)
			}
			if c.Error != nil {
				emitter.Emit(sse.EventError, sse.ErrorData{Code: "upstream_error", Message: c.Error.Error()})
				return nil, fmt.Errorf("streamrecon: upstream stream error: %w", c.Error)
			}

			if c.Text != "" {
				emitter.Emit(sse.EventOutputTextDelta, sse.OutputTextDeltaData{OutputIndex: outputIndex, Delta: c.Text})
			}
			if c.ToolCallDelta != nil {
				d := c.ToolCallDelta
				toolItemID, ok := toolItemIDs[d.Index]
				if !ok {
					toolItemID = itemIDForToolCall(itemID, d.Index)
					toolItemIDs[d.Index] = toolItemID
				}
				if d.Name != "" {
					toolNames[d.Index] = d.Name
				}
				suppressed := suppressArgs != nil && suppressArgs(toolNames[d.Index])
				if !suppressed && d.Arguments != "" {
					emitter.Emit(sse.EventFunctionCallArgsDelta, sse.FunctionCallArgsDeltaData{
						OutputIndex: outputIndex,
						ItemID:      toolItemID,
						Delta:       d.Arguments,
					})
				}
			}
			acc.Add(c)

			if c.Done {
				return finishForward(acc, model, emitter, outputIndex, itemID, suppressArgs)
			}
		}
	}
}

// finishForward emits the terminal .done events for whatever accumulated
// in acc, then returns the assembled ChatCompletion.
func finishForward(acc *Accumulator, model string, emitter *sse.Emitter, outputIndex int, itemID string, suppressArgs func(toolName string) bool) (*models.ChatCompletion, error) {
	if acc.Text() != "" {
		emitter.Emit(sse.EventOutputTextDone, sse.OutputTextDoneData{OutputIndex: outputIndex, Text: acc.Text()})
	}
	calls, indexes := acc.toolCallsWithIndex()
	for i, tc := range calls {
		if suppressArgs != nil && suppressArgs(tc.Name) {
			continue
		}
		emitter.Emit(sse.EventFunctionCallArgsDone, sse.FunctionCallArgsDoneData{
			OutputIndex: outputIndex,
			ItemID:      itemIDForToolCall(itemID, indexes[i]),
			Arguments:   tc.Arguments,
		})
	}
	return acc.toChatCompletion(model), nil
}

func itemIDForToolCall(baseItemID string, index int) string {
	return fmt.Sprintf("%s_tc%d", baseItemID, index)
}
