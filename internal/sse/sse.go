// Package sse defines the canonical streaming event schema emitted by
// internal/orchestrator's streaming path and encodes it onto the
// wire in the `event: <type>\ndata: <json>\n\n` envelope. Every event
// carries a monotonically non-decreasing sequence_number; Sequencer
// is the single source of that counter for one streamed response.
package sse

import (
	"fmt"
	"io"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// fastJSON trades strict encoding/json compatibility for throughput on the
// streaming hot path; every delta event goes through this.
var fastJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Sequencer hands out strictly increasing sequence numbers for one
// streamed response. Safe for concurrent use, though in practice a single
// orchestration goroutine owns it.
type Sequencer struct {
	n int64
}

// Next returns the next sequence number, starting at 0.
func (s *Sequencer) Next() int64 {
	return atomic.AddInt64(&s.n, 1) - 1
}

// EventType names one of the canonical streaming events.
type EventType string

const (
	EventCreated               EventType = "response.created"
	EventInProgress            EventType = "response.in_progress"
	EventOutputTextDelta       EventType = "response.output_text.delta"
	EventOutputTextDone        EventType = "response.output_text.done"
	EventFunctionCallArgsDelta EventType = "response.function_call_arguments.delta"
	EventFunctionCallArgsDone  EventType = "response.function_call_arguments.done"
	EventOutputItemAdded       EventType = "response.output_item.added"
	EventOutputItemDone        EventType = "response.output_item.done"
	EventCompleted             EventType = "response.completed"
	EventIncomplete            EventType = "response.incomplete"
	EventError                 EventType = "response.error"
)

// ToolLifecycleStage is one of the four stages a native tool call passes
// through in strict order.
type ToolLifecycleStage string

const (
	ToolInProgress ToolLifecycleStage = "in_progress"
	ToolExecuting  ToolLifecycleStage = "executing"
	ToolGenerating ToolLifecycleStage = "generating" // image_generation only
	ToolCompleted  ToolLifecycleStage = "completed"
)

// ToolEventType renders the "response.<tool>.<stage>" or, for MCP-backed
// tools, "response.mcp_call.<tool>.<stage>" event name.
func ToolEventType(toolName string, isMCP bool, stage ToolLifecycleStage) EventType {
	if isMCP {
		return EventType(fmt.Sprintf("response.mcp_call.%s.%s", toolName, stage))
	}
	return EventType(fmt.Sprintf("response.%s.%s", toolName, stage))
}

// Event is one canonical streaming event. Data holds the JSON payload
// specific to Type; every payload also repeats Type and SequenceNumber so a
// client parsing `data` alone sees both.
type Event struct {
	Type           EventType `json:"type"`
	SequenceNumber int64     `json:"sequence_number"`
	Data           any       `json:"-"`
}

// MarshalJSON flattens Data's fields alongside Type/SequenceNumber so the
// wire payload is one object, not a nested "data" field.
func (e Event) MarshalJSON() ([]byte, error) {
	payload := map[string]any{
		"type":            e.Type,
		"sequence_number": e.SequenceNumber,
	}
	if e.Data != nil {
		extra, err := fastJSON.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		var m map[string]any
		if err := fastJSON.Unmarshal(extra, &m); err != nil {
			return nil, err
		}
		for k, v := range m {
			payload[k] = v
		}
	}
	return fastJSON.Marshal(payload)
}

// Write encodes ev in the `event: <type>\ndata: <json>\n\n` envelope and
// flushes it, respecting the caller's Flusher if present.
func Write(w io.Writer, ev Event) error {
	data, err := fastJSON.Marshal(ev)
	if err != nil {
		return fmt.Errorf("sse: failed to encode event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return fmt.Errorf("sse: failed to write event: %w", err)
	}
	if f, ok := w.(interface{ Flush() }); ok {
		f.Flush()
	}
	return nil
}

// CreatedData is the payload of response.created / response.in_progress.
type CreatedData struct {
	Response *models.Response `json:"response"`
}

// OutputTextDeltaData is the payload of response.output_text.delta.
type OutputTextDeltaData struct {
	OutputIndex int    `json:"output_index"`
	Delta       string `json:"delta"`
}

// OutputTextDoneData is the payload of response.output_text.done.
type OutputTextDoneData struct {
	OutputIndex int    `json:"output_index"`
	Text        string `json:"text"`
}

// FunctionCallArgsDeltaData is the payload of
// response.function_call_arguments.delta.
type FunctionCallArgsDeltaData struct {
	OutputIndex int    `json:"output_index"`
	ItemID      string `json:"item_id"`
	Delta       string `json:"delta"`
}

// FunctionCallArgsDoneData is the payload of
// response.function_call_arguments.done.
type FunctionCallArgsDoneData struct {
	OutputIndex int    `json:"output_index"`
	ItemID      string `json:"item_id"`
	Arguments   string `json:"arguments"`
}

// OutputItemData is the payload of response.output_item.added/.done.
type OutputItemData struct {
	OutputIndex int              `json:"output_index"`
	Item        models.OutputItem `json:"item"`
}

// ToolLifecycleData is the payload of a per-tool lifecycle event.
type ToolLifecycleData struct {
	ItemID      string `json:"item_id"`
	OutputIndex int    `json:"output_index"`
	Error       string `json:"error,omitempty"`
}

// TerminalData is the payload of response.completed / .incomplete.
type TerminalData struct {
	Response *models.Response `json:"response"`
}

// ErrorData is the payload of response.error.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Emitter is the bounded channel the orchestrator owns and the tool
// handler posts progress events into. The emitter is a channel, not a
// captured closure, so back-pressure is explicit and no hidden goroutine
// context leaks across the orchestrator/tool-handler boundary.
type Emitter struct {
	seq *Sequencer
	out chan<- Event
}

// NewEmitter wraps out with seq so every Emit call stamps the next
// sequence number.
func NewEmitter(seq *Sequencer, out chan<- Event) *Emitter {
	return &Emitter{seq: seq, out: out}
}

// Emit sends one event, blocking on back-pressure from out. Emitter has no
// context, keeping it a pure channel wrapper; callers check ctx before
// invoking this.
func (e *Emitter) Emit(eventType EventType, data any) {
	e.out <- Event{Type: eventType, SequenceNumber: e.seq.Next(), Data: data}
}
