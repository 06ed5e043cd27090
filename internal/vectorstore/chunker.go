package vectorstore

import (
	"strings"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// defaultSeparators is the splitting hierarchy tried in order, from largest
// semantic unit to smallest, so a chunk boundary falls on a paragraph break
// whenever the text allows it.
var defaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", "; ", ": ", ", ", " ", ""}

// charsPerToken approximates the token count of a text span without
// depending on a model-specific tokenizer.
const charsPerToken = 4

// Chunk splits text into overlapping spans sized by strategy, in character
// units scaled from tokens. It recursively tries larger separators first
// and only descends to finer-grained ones when a span still exceeds the
// target size.
func Chunk(text string, strategy models.ChunkingStrategy) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	maxChars := strategy.MaxChunkSizeTokens * charsPerToken
	overlapChars := strategy.ChunkOverlapTokens * charsPerToken
	if maxChars <= 0 {
		maxChars = 800 * charsPerToken
	}
	if overlapChars < 0 || overlapChars >= maxChars {
		overlapChars = maxChars / 5
	}

	raw := splitText(text, defaultSeparators, maxChars)
	return mergeWithOverlap(raw, maxChars, overlapChars)
}

func splitText(text string, separators []string, maxChars int) []string {
	if len(text) == 0 {
		return nil
	}

	separator := ""
	for _, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			separator = sep
			break
		}
	}

	var splits []string
	if separator == "" {
		splits = strings.Split(text, "")
	} else {
		splits = strings.SplitAfter(text, separator)
	}

	var result []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
			result = append(result, trimmed)
		}
		current.Reset()
	}

	for _, piece := range splits {
		if current.Len() > 0 && current.Len()+len(piece) > maxChars {
			flush()
		}
		if len(piece) > maxChars && len(separators) > 1 {
			flush()
			result = append(result, splitText(piece, separators[1:], maxChars)...)
			continue
		}
		current.WriteString(piece)
	}
	flush()

	return result
}

// mergeWithOverlap prepends the trailing overlapChars of each chunk onto
// the next one, so retrieval near a chunk boundary still has surrounding
// context.
func mergeWithOverlap(chunks []string, maxChars, overlapChars int) []string {
	if len(chunks) <= 1 || overlapChars <= 0 {
		return chunks
	}

	result := make([]string, 0, len(chunks))
	for i, c := range chunks {
		if i == 0 {
			result = append(result, c)
			continue
		}
		prev := chunks[i-1]
		overlapStart := len(prev) - overlapChars
		if overlapStart < 0 {
			overlapStart = 0
		}
		merged := prev[overlapStart:] + c
		if len(merged) > maxChars+overlapChars {
			merged = merged[:maxChars+overlapChars]
		}
		result = append(result, merged)
	}
	return result
}
