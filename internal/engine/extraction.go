package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/engramdb/engram/pkg/types"
)

// ExtractionResult summarizes one extraction run over a conversation.
type ExtractionResult struct {
	Candidates int                   `json:"candidates"`
	Created    []*types.MemoryRecord `json:"created"`
	Reinforced []*types.MemoryRecord `json:"reinforced"`
	Failed     int                   `json:"failed"`
}

// ExtractFromConversation asks the LLM for candidate memories in the
// conversation and stores the new ones as pending, awaiting the user's
// verification. Candidates duplicating existing memories reinforce them
// instead. Extraction is best-effort background enrichment: an extractor
// failure logs and yields an empty result, and individual candidate
// failures skip the candidate rather than aborting the whole run.
func (s *Service) ExtractFromConversation(ctx context.Context, userID, sessionID string, messages []types.ConversationMessage) (*ExtractionResult, error) {
	if s.extractor == nil {
		return nil, fmt.Errorf("no extractor configured")
	}

	candidates, err := s.extractor.Extract(ctx, messages)
	if err != nil {
		log.Printf("extraction failed for user %s: %v", userID, err)
		return &ExtractionResult{}, nil
	}

	result := &ExtractionResult{Candidates: len(candidates)}
	timeContext := timeContextFor(s.now())

	// One batched round trip for the whole candidate set. On failure the
	// candidates are stored without embeddings and stay reachable through
	// keyword retrieval.
	contents := make([]string, len(candidates))
	for i, c := range candidates {
		contents[i] = c.Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		log.Printf("batch embedding failed for user %s: %v", userID, err)
		vectors = make([][]float32, len(candidates))
	}

	for i, c := range candidates {
		req := CreateRequest{
			Content:         c.Content,
			MemoryType:      c.MemoryType,
			Category:        c.Category,
			Importance:      c.Importance,
			Confidence:      c.Confidence,
			Tags:            c.Tags,
			Contexts:        c.Contexts,
			LocationContext: c.LocationContext,
			SourceSessionID: sessionID,
		}
		mem, reinforced, err := s.createEmbedded(ctx, userID, req, types.MethodAIExtraction, timeContext, vectors[i])
		if err != nil {
			log.Printf("storing extracted memory failed for user %s: %v", userID, err)
			result.Failed++
			continue
		}
		if reinforced {
			result.Reinforced = append(result.Reinforced, mem)
		} else {
			result.Created = append(result.Created, mem)
		}
	}

	log.Printf("extraction for user %s: %d candidates, %d created, %d reinforced, %d failed",
		userID, result.Candidates, len(result.Created), len(result.Reinforced), result.Failed)
	return result, nil
}

// timeContextFor buckets a timestamp into the daily-routine vocabulary.
func timeContextFor(t time.Time) string {
	switch hour := t.Hour(); {
	case hour >= 5 && hour < 9:
		return "morning_routine"
	case hour >= 9 && hour < 17:
		return "work_hours"
	case hour >= 17 && hour < 22:
		return "evening"
	default:
		return "night"
	}
}
