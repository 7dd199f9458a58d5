package engine

import (
	"context"
	"log"
	"sort"
	"strings"

	"github.com/engramdb/engram/internal/embedding"
	"github.com/engramdb/engram/pkg/types"
)

// Status multipliers for retrieval scoring. Verified memories outrank
// unverified ones at equal similarity; rejected memories never surface.
var statusMultipliers = map[types.MemoryStatus]float64{
	types.StatusConfirmed: 1.2,
	types.StatusCorrected: 1.1,
	types.StatusPending:   1.0,
}

func statusMultiplier(status types.MemoryStatus) float64 {
	if mul, ok := statusMultipliers[status]; ok {
		return mul
	}
	return 1.0
}

// RetrieveOptions configures a relevance query.
type RetrieveOptions struct {
	// Limit caps the number of results (default: 5).
	Limit int

	// MinImportance filters out trivia (default: 0.3).
	MinImportance float64

	// ActiveContexts boost memories tagged with matching contexts. When
	// empty, contexts are detected from the query text.
	ActiveContexts []string
}

// ScoredMemory is one retrieval result with its score breakdown.
type ScoredMemory struct {
	Memory     *types.MemoryRecord `json:"memory"`
	Score      float64             `json:"score"`
	Similarity float64             `json:"similarity"`
}

// Relevant returns the memories most relevant to the query text, ranked by
// similarity weighted with importance, relevance, verification status and
// context match. Returned memories have their access recorded.
//
// When the embedder is unavailable the query degrades to keyword matching
// instead of failing, so retrieval keeps working without the LLM.
func (s *Service) Relevant(ctx context.Context, userID, query string, opts RetrieveOptions) ([]ScoredMemory, error) {
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	if opts.MinImportance <= 0 {
		opts.MinImportance = 0.3
	}
	if len(opts.ActiveContexts) == 0 {
		opts.ActiveContexts = DetectContexts(query)
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("query embedding failed, falling back to keyword relevance: %v", err)
		queryVec = nil
	}

	all, err := s.store.AllForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	scored := make([]ScoredMemory, 0, len(all))
	for _, m := range all {
		// Superseded memories stay in: their forced-low relevance keeps
		// them at the bottom without hiding them from direct queries.
		if m.Status == types.StatusRejected {
			continue
		}
		if m.Importance < opts.MinImportance {
			continue
		}

		var similarity float64
		if len(queryVec) > 0 && m.HasEmbedding() {
			similarity = embedding.Similarity(queryVec, m.Embedding)
		} else {
			similarity = keywordRelevance(query, m)
			if similarity == 0 {
				continue
			}
		}

		contextMultiplier := 1.0 + 0.15*float64(m.ContextOverlap(opts.ActiveContexts))
		score := similarity * m.Importance * m.RelevanceScore * statusMultiplier(m.Status) * contextMultiplier

		scored = append(scored, ScoredMemory{Memory: m, Score: score, Similarity: similarity})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Memory.CreatedAt.After(scored[j].Memory.CreatedAt)
	})
	if len(scored) > opts.Limit {
		scored = scored[:opts.Limit]
	}

	now := s.now()
	for _, sm := range scored {
		if err := s.store.RecordAccess(ctx, userID, sm.Memory.ID, now); err != nil {
			log.Printf("access tracking failed for memory %s: %v", sm.Memory.ID, err)
			continue
		}
		sm.Memory.AccessCount++
		sm.Memory.LastAccessed = &now
	}

	return scored, nil
}

// keywordRelevance scores a memory against the query without embeddings.
// An exact substring match scores 1.0; otherwise the score is the share
// of query words found in the memory's content or tags.
func keywordRelevance(query string, m *types.MemoryRecord) float64 {
	queryLower := strings.ToLower(strings.TrimSpace(query))
	if queryLower == "" {
		return 0
	}

	contentLower := strings.ToLower(m.Content)
	if strings.Contains(contentLower, queryLower) {
		return 1.0
	}

	memWords := make(map[string]bool)
	for _, w := range strings.Fields(contentLower) {
		memWords[w] = true
	}
	for _, t := range m.Tags {
		for _, w := range strings.Fields(strings.ToLower(t)) {
			memWords[w] = true
		}
	}

	queryWords := make(map[string]bool)
	for _, w := range strings.Fields(queryLower) {
		queryWords[w] = true
	}
	matches := 0
	for w := range queryWords {
		if memWords[w] {
			matches++
		}
	}
	return float64(matches) / float64(len(queryWords))
}
