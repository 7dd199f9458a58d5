package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/engramdb/engram/internal/embedding"
	"github.com/engramdb/engram/internal/storage"
	"github.com/engramdb/engram/pkg/types"
)

// Consolidate merges two or more memories into one. The merged memory
// takes its type and category from the strongest source, unions tags and
// contexts, and starts confirmed. The originals are marked superseded and
// drop out of retrieval, but remain stored for audit.
//
// content overrides the generated summary when non-empty.
func (s *Service) Consolidate(ctx context.Context, userID string, ids []string, content string) (*types.MemoryRecord, error) {
	if len(ids) < 2 {
		return nil, fmt.Errorf("%w: consolidation needs at least 2 memories", storage.ErrInvalidInput)
	}

	memories := make([]*types.MemoryRecord, 0, len(ids))
	for _, id := range ids {
		mem, err := s.store.Get(ctx, userID, id)
		if err != nil {
			return nil, fmt.Errorf("consolidation source %s: %w", id, err)
		}
		memories = append(memories, mem)
	}

	sort.SliceStable(memories, func(i, j int) bool {
		if memories[i].Importance != memories[j].Importance {
			return memories[i].Importance > memories[j].Importance
		}
		return memories[i].Confidence > memories[j].Confidence
	})
	base := memories[0]

	if content == "" {
		contents := make([]string, len(memories))
		for i, m := range memories {
			contents[i] = m.Content
		}
		content = "Consolidated: " + strings.Join(contents, "; ")
	}

	var confidenceSum float64
	tags := make([]string, 0)
	contexts := make([]string, 0)
	seenTags := make(map[string]bool)
	seenContexts := make(map[string]bool)
	for _, m := range memories {
		confidenceSum += m.Confidence
		for _, t := range m.Tags {
			if !seenTags[t] {
				seenTags[t] = true
				tags = append(tags, t)
			}
		}
		for _, c := range m.Contexts {
			if !seenContexts[c] {
				seenContexts[c] = true
				contexts = append(contexts, c)
			}
		}
	}

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		log.Printf("embedding failed for consolidated memory: %v", err)
		vec = nil
	}

	now := s.now()
	merged := &types.MemoryRecord{
		ID:                 uuid.NewString(),
		UserID:             userID,
		Content:            content,
		MemoryType:         base.MemoryType,
		Category:           base.Category,
		Embedding:          vec,
		Importance:         types.Clamp01(base.Importance + 0.1),
		Confidence:         confidenceSum / float64(len(memories)),
		Tags:               tags,
		Contexts:           contexts,
		Status:             types.StatusConfirmed,
		ExtractionMethod:   types.MethodConsolidation,
		IsConsolidated:     true,
		ConsolidationCount: len(memories),
		ConsolidatedFrom:   ids,
	}
	merged.ApplyDefaults(now)

	if err := s.store.Create(ctx, merged); err != nil {
		return nil, err
	}

	for _, m := range memories {
		if err := s.store.MarkSuperseded(ctx, userID, m.ID, merged.ID, s.tuning.DecayFloor); err != nil {
			return nil, fmt.Errorf("superseding %s: %w", m.ID, err)
		}
	}

	log.Printf("consolidated %d memories into %s for user %s", len(memories), merged.ID, userID)
	return merged, nil
}

// ConsolidationSuggestion is a cluster of memories similar enough to
// merge into one.
type ConsolidationSuggestion struct {
	Memories   []*types.MemoryRecord `json:"memories"`
	Similarity float64               `json:"similarity"`
}

// SuggestConsolidations clusters the user's active memories by embedding
// similarity and returns clusters worth merging. Clustering is greedy:
// each memory seeds at most one cluster, collecting every later memory at
// or above the consolidation threshold.
func (s *Service) SuggestConsolidations(ctx context.Context, userID string) ([]ConsolidationSuggestion, error) {
	all, err := s.store.AllForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var active []*types.MemoryRecord
	for _, m := range all {
		if m.Status == types.StatusRejected || m.IsSuperseded() || m.IsConsolidated || !m.HasEmbedding() {
			continue
		}
		active = append(active, m)
	}

	var suggestions []ConsolidationSuggestion
	clustered := make(map[string]bool)
	for i, seed := range active {
		if clustered[seed.ID] {
			continue
		}

		cluster := []*types.MemoryRecord{seed}
		var simSum float64
		for _, other := range active[i+1:] {
			if clustered[other.ID] {
				continue
			}
			sim := embedding.Similarity(seed.Embedding, other.Embedding)
			if sim >= s.tuning.ConsolidationThreshold {
				cluster = append(cluster, other)
				simSum += sim
			}
		}
		if len(cluster) < 2 {
			continue
		}

		for _, m := range cluster {
			clustered[m.ID] = true
		}
		suggestions = append(suggestions, ConsolidationSuggestion{
			Memories:   cluster,
			Similarity: simSum / float64(len(cluster)-1),
		})
	}

	return suggestions, nil
}
