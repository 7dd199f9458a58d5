package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/engramdb/engram/internal/embedding"
	"github.com/engramdb/engram/internal/storage"
	"github.com/engramdb/engram/pkg/types"
)

// Link creates a typed edge between two memories. When bidirectional,
// the reverse type is stored on the target as well, so traversal works
// from either side.
func (s *Service) Link(ctx context.Context, userID, sourceID, targetID, relType string, strength float64, bidirectional bool) error {
	if sourceID == targetID {
		return fmt.Errorf("%w: cannot link a memory to itself", storage.ErrInvalidInput)
	}
	if !types.IsValidRelType(relType) {
		return fmt.Errorf("%w: unknown relationship type %q", storage.ErrInvalidInput, relType)
	}

	source, err := s.store.Get(ctx, userID, sourceID)
	if err != nil {
		return err
	}
	if _, err := s.store.Get(ctx, userID, targetID); err != nil {
		return err
	}

	// An edge of the same type to the same target is not duplicated.
	for _, rel := range source.Relationships {
		if rel.TargetID == targetID && rel.Type == relType {
			return nil
		}
	}

	now := s.now()
	strength = types.Clamp01(strength)

	forward := types.Relationship{TargetID: targetID, Type: relType, Strength: strength, CreatedAt: now}
	if err := s.store.AppendRelationship(ctx, userID, sourceID, forward); err != nil {
		return err
	}
	if !bidirectional {
		return nil
	}

	reverse := types.Relationship{TargetID: sourceID, Type: types.ReverseRelType(relType), Strength: strength, CreatedAt: now}
	return s.store.AppendRelationship(ctx, userID, targetID, reverse)
}

// AutoLink connects a new memory to its most similar existing memories.
// Similarity at or above the similar threshold links as similar_to, the
// band below it as relates_to. At most MaxAutoLinks edges are created.
// Returns the number of memories linked.
func (s *Service) AutoLink(ctx context.Context, userID string, mem *types.MemoryRecord) (int, error) {
	if !mem.HasEmbedding() {
		return 0, nil
	}

	all, err := s.store.AllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	type candidate struct {
		id         string
		similarity float64
	}
	var candidates []candidate
	for _, other := range all {
		if other.ID == mem.ID || other.Status == types.StatusRejected || other.IsSuperseded() || !other.HasEmbedding() {
			continue
		}
		sim := embedding.Similarity(mem.Embedding, other.Embedding)
		if sim >= s.tuning.AutoLinkRelated {
			candidates = append(candidates, candidate{id: other.ID, similarity: sim})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].similarity > candidates[j].similarity
	})
	if len(candidates) > s.tuning.MaxAutoLinks {
		candidates = candidates[:s.tuning.MaxAutoLinks]
	}

	linked := 0
	for _, c := range candidates {
		relType := types.RelRelatesTo
		if c.similarity >= s.tuning.AutoLinkSimilar {
			relType = types.RelSimilarTo
		}
		if err := s.Link(ctx, userID, mem.ID, c.id, relType, c.similarity, true); err != nil {
			return linked, err
		}
		linked++
	}
	return linked, nil
}

// GraphNode is one memory in a graph traversal result.
type GraphNode struct {
	ID         string             `json:"id"`
	Content    string             `json:"content"`
	MemoryType types.MemoryType   `json:"memory_type"`
	Status     types.MemoryStatus `json:"status"`
	Importance float64            `json:"importance"`
	Depth      int                `json:"depth"`
}

// GraphEdge is one relationship in a graph traversal result.
type GraphEdge struct {
	SourceID string  `json:"source_id"`
	TargetID string  `json:"target_id"`
	Type     string  `json:"type"`
	Strength float64 `json:"strength"`
}

// MemoryGraph is the neighborhood of a memory up to a traversal depth.
type MemoryGraph struct {
	RootID string      `json:"root_id"`
	Nodes  []GraphNode `json:"nodes"`
	Edges  []GraphEdge `json:"edges"`
}

// Graph walks the relationship graph breadth-first from rootID up to
// maxDepth hops (default: 2). Cycles are traversed once; edges pointing
// at deleted memories are skipped.
func (s *Service) Graph(ctx context.Context, userID, rootID string, maxDepth int) (*MemoryGraph, error) {
	if maxDepth <= 0 {
		maxDepth = 2
	}

	root, err := s.store.Get(ctx, userID, rootID)
	if err != nil {
		return nil, err
	}

	graph := &MemoryGraph{RootID: rootID}
	visited := map[string]bool{rootID: true}

	type queued struct {
		mem   *types.MemoryRecord
		depth int
	}
	queue := []queued{{mem: root, depth: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		graph.Nodes = append(graph.Nodes, GraphNode{
			ID:         cur.mem.ID,
			Content:    cur.mem.Content,
			MemoryType: cur.mem.MemoryType,
			Status:     cur.mem.Status,
			Importance: cur.mem.Importance,
			Depth:      cur.depth,
		})
		if cur.depth >= maxDepth {
			continue
		}

		for _, rel := range cur.mem.Relationships {
			graph.Edges = append(graph.Edges, GraphEdge{
				SourceID: cur.mem.ID,
				TargetID: rel.TargetID,
				Type:     rel.Type,
				Strength: rel.Strength,
			})
			if visited[rel.TargetID] {
				continue
			}
			visited[rel.TargetID] = true

			target, err := s.store.Get(ctx, userID, rel.TargetID)
			if err != nil {
				if IsNotFound(err) {
					continue
				}
				return nil, err
			}
			queue = append(queue, queued{mem: target, depth: cur.depth + 1})
		}
	}

	return graph, nil
}

// Related returns the memories directly linked to id, optionally filtered
// by relationship type and minimum edge strength.
func (s *Service) Related(ctx context.Context, userID, id, relType string, minStrength float64) ([]*types.MemoryRecord, error) {
	mem, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	var related []*types.MemoryRecord
	seen := make(map[string]bool)
	for _, rel := range mem.Relationships {
		if relType != "" && rel.Type != relType {
			continue
		}
		if rel.Strength < minStrength {
			continue
		}
		if seen[rel.TargetID] {
			continue
		}
		seen[rel.TargetID] = true

		target, err := s.store.Get(ctx, userID, rel.TargetID)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		related = append(related, target)
	}
	return related, nil
}
