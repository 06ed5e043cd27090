package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/masaic-ai-platform/open-responses-sub001/pkg/models"
)

// Searcher runs the hybrid ANN + lexical search behind file_search
// and agentic_search.
type Searcher struct {
	repo     Repository
	embedder Embedder
	minScore float32
}

// NewSearcher builds a Searcher. minScore is the score threshold applied
// whenever a caller's ranking options don't carry one, so the tool path
// and the direct search endpoint honor the same configured default.
func NewSearcher(repo Repository, embedder Embedder, minScore float32) *Searcher {
	return &Searcher{repo: repo, embedder: embedder, minScore: minScore}
}

// Search runs one query end to end: compile and apply the attribute
// filter, embed the query, score every surviving chunk by a blend of
// cosine similarity and lexical overlap, then group by file and apply the
// ranking options' score threshold.
func (s *Searcher) Search(ctx context.Context, storeID, query string, filter models.Filter, ranking models.RankingOptions, maxResults int) ([]models.SearchHit, error) {
	if _, err := s.repo.GetStore(ctx, storeID); err != nil {
		return nil, err
	}

	compiled, err := CompileFilter(filter)
	if err != nil {
		return nil, err
	}

	files, err := s.repo.ListFiles(ctx, storeID)
	if err != nil {
		return nil, err
	}
	allowedFiles := make(map[string]*models.VectorStoreFile, len(files))
	for _, f := range files {
		if f.Status != models.VectorStoreFileCompleted {
			continue
		}
		matched, err := compiled.Matches(f.Attributes)
		if err != nil {
			return nil, err
		}
		if matched {
			allowedFiles[f.ID] = f
		}
	}
	if len(allowedFiles) == 0 {
		return nil, nil
	}

	chunks, err := s.repo.AllChunks(ctx, storeID)
	if err != nil {
		return nil, err
	}

	embeddings, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: failed to embed query: %w", err)
	}
	queryVec := embeddings[0]
	queryTerms := lexicalTerms(query)

	type scoredChunk struct {
		chunk models.Chunk
		score float32
	}
	var scored []scoredChunk
	for _, c := range chunks {
		if _, ok := allowedFiles[c.FileID]; !ok {
			continue
		}
		semantic := cosineSimilarity(queryVec, c.Embedding)
		lexical := lexicalOverlap(queryTerms, c.Text)
		combined := 0.7*semantic + 0.3*lexical
		scored = append(scored, scoredChunk{chunk: c, score: combined})
	}

	threshold := s.minScore
	if ranking.ScoreThreshold != nil {
		threshold = *ranking.ScoreThreshold
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	byFile := make(map[string]*models.SearchHit)
	var order []string
	for _, sc := range scored {
		if sc.score < threshold {
			continue
		}
		hit, ok := byFile[sc.chunk.FileID]
		if !ok {
			f := allowedFiles[sc.chunk.FileID]
			hit = &models.SearchHit{FileID: sc.chunk.FileID, Filename: f.Filename(), Attributes: f.Attributes, Score: sc.score}
			byFile[sc.chunk.FileID] = hit
			order = append(order, sc.chunk.FileID)
		}
		hit.Content = append(hit.Content, sc.chunk.Text)
		if sc.score > hit.Score {
			hit.Score = sc.score
		}
	}

	hits := make([]models.SearchHit, 0, len(order))
	for _, fileID := range order {
		hits = append(hits, *byFile[fileID])
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if maxResults > 0 && len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	return hits, nil
}

// cosineSimilarity returns the cosine similarity of a and b, or 0 if either
// vector has zero magnitude (an empty/unembedded chunk should rank last,
// not divide by zero).
func cosineSimilarity(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}

	af := make([]float64, n)
	bf := make([]float64, n)
	for i := 0; i < n; i++ {
		af[i] = float64(a[i])
		bf[i] = float64(b[i])
	}

	dot := floats.Dot(af, bf)
	normA := floats.Norm(af, 2)
	normB := floats.Norm(bf, 2)
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (normA * normB))
}

// lexicalOverlap scores the fraction of query terms present in text,
// the lexical half of the hybrid score.
func lexicalOverlap(queryTerms map[string]struct{}, text string) float32 {
	if len(queryTerms) == 0 {
		return 0
	}
	textLower := strings.ToLower(text)
	matched := 0
	for term := range queryTerms {
		if strings.Contains(textLower, term) {
			matched++
		}
	}
	return float32(matched) / float32(len(queryTerms))
}

func lexicalTerms(query string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if word != "" {
			terms[word] = struct{}{}
		}
	}
	return terms
}
