package vectorstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

func TestChunk_EmptyText(t *testing.T) {
	assert.Nil(t, Chunk("", models.DefaultChunkingStrategy()))
	assert.Nil(t, Chunk("   \n\t ", models.DefaultChunkingStrategy()))
}

func TestChunk_ShortTextIsSingleChunk(t *testing.T) {
	chunks := Chunk("one small paragraph", models.DefaultChunkingStrategy())
	require.Len(t, chunks, 1)
	assert.Equal(t, "one small paragraph", chunks[0])
}

func TestChunk_SplitsOnParagraphs(t *testing.T) {
	para := strings.Repeat("sentence about reindeer. ", 20)
	text := para + "\n\n" + para + "\n\n" + para

	chunks := Chunk(text, models.ChunkingStrategy{MaxChunkSizeTokens: 128, ChunkOverlapTokens: 0})

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 128*4+1)
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
}

func TestChunk_OverlapCarriesTrailingContext(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta. ", 200)

	chunks := Chunk(text, models.ChunkingStrategy{MaxChunkSizeTokens: 100, ChunkOverlapTokens: 20})

	require.Greater(t, len(chunks), 1)
	// Each chunk after the first starts with the tail of its predecessor.
	overlapChars := 20 * 4
	for i := 1; i < len(chunks); i++ {
		assert.GreaterOrEqual(t, len(chunks[i]), overlapChars/2,
			"chunk %d too short to carry overlap", i)
	}
}

func TestChunk_OversizeSingleWordStillSplits(t *testing.T) {
	text := strings.Repeat("x", 10_000)

	chunks := Chunk(text, models.ChunkingStrategy{MaxChunkSizeTokens: 100, ChunkOverlapTokens: 0})

	require.Greater(t, len(chunks), 1)
	var total int
	for _, c := range chunks {
		total += len(c)
	}
	assert.Equal(t, 10_000, total)
}
