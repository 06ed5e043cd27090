package sse

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequencer_Monotone(t *testing.T) {
	seq := &Sequencer{}
	prev := int64(-1)
	for i := 0; i < 100; i++ {
		n := seq.Next()
		assert.Greater(t, n, prev)
		prev = n
	}
}

func TestEventMarshal_FlattensPayload(t *testing.T) {
	ev := Event{
		Type:           EventOutputTextDelta,
		SequenceNumber: 7,
		Data:           OutputTextDeltaData{OutputIndex: 2, Delta: "hel"},
	}

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "response.output_text.delta", m["type"])
	assert.Equal(t, float64(7), m["sequence_number"])
	assert.Equal(t, "hel", m["delta"])
	assert.Equal(t, float64(2), m["output_index"])
	// Payload fields sit alongside type/sequence_number, not nested.
	assert.NotContains(t, m, "data")
}

func TestWrite_Envelope(t *testing.T) {
	var sb strings.Builder
	ev := Event{Type: EventCreated, SequenceNumber: 0, Data: nil}

	require.NoError(t, Write(&sb, ev))

	out := sb.String()
	assert.True(t, strings.HasPrefix(out, "event: response.created\ndata: "))
	assert.True(t, strings.HasSuffix(out, "\n\n"))
}

func TestToolEventType(t *testing.T) {
	assert.Equal(t, EventType("response.file_search.in_progress"),
		ToolEventType("file_search", false, ToolInProgress))
	assert.Equal(t, EventType("response.image_generation.generating"),
		ToolEventType("image_generation", false, ToolGenerating))
	assert.Equal(t, EventType("response.mcp_call.lookup.completed"),
		ToolEventType("lookup", true, ToolCompleted))
}

func TestEmitter_StampsSequence(t *testing.T) {
	out := make(chan Event, 4)
	emitter := NewEmitter(&Sequencer{}, out)

	emitter.Emit(EventCreated, nil)
	emitter.Emit(EventInProgress, nil)
	close(out)

	first := <-out
	second := <-out
	assert.Equal(t, int64(0), first.SequenceNumber)
	assert.Equal(t, int64(1), second.SequenceNumber)
}
