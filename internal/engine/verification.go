package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/engramdb/engram/internal/storage"
	"github.com/engramdb/engram/pkg/types"
)

// Verification actions.
const (
	ActionConfirm = "confirm"
	ActionReject  = "reject"
	ActionCorrect = "correct"
)

// VerifyRequest carries the user's verdict on a memory.
type VerifyRequest struct {
	Action   string `json:"action"`
	Feedback string `json:"feedback,omitempty"`

	// Correction fields, used only with ActionCorrect.
	CorrectedContent    string   `json:"corrected_content,omitempty"`
	CorrectedImportance *float64 `json:"corrected_importance,omitempty"`
	CorrectedTags       []string `json:"corrected_tags,omitempty"`
}

// Verify records the user's verdict on a memory.
//
// Confirming raises confidence to certainty and strengthens relevance.
// Rejecting zeroes both, which removes the memory from retrieval while
// keeping it for audit. Correcting replaces the content, regenerates the
// embedding and keeps the old content in the verification history.
func (s *Service) Verify(ctx context.Context, userID, id string, req VerifyRequest) (*types.MemoryRecord, error) {
	mem, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	update := storage.VerificationUpdate{
		VerifiedAt: now,
		Entry: types.VerificationEntry{
			Timestamp: now,
			Action:    req.Action,
			Feedback:  req.Feedback,
		},
	}

	switch req.Action {
	case ActionConfirm:
		update.Status = types.StatusConfirmed
		update.Confidence = 1.0
		update.RelevanceScore = types.Clamp01(mem.RelevanceScore + 0.2)

	case ActionReject:
		update.Status = types.StatusRejected
		update.Confidence = 0
		update.RelevanceScore = 0

	case ActionCorrect:
		if req.CorrectedContent == "" {
			return nil, fmt.Errorf("%w: corrected content is required", storage.ErrInvalidInput)
		}
		update.Status = types.StatusCorrected
		update.Confidence = 0.9
		update.RelevanceScore = mem.RelevanceScore
		update.Content = req.CorrectedContent
		update.Entry.PreviousContent = mem.Content

		vec, err := s.embedder.Embed(ctx, req.CorrectedContent)
		if err != nil {
			log.Printf("embedding failed for corrected memory %s: %v", id, err)
			vec = nil
		}
		update.Embedding = vec

	default:
		return nil, fmt.Errorf("%w: unknown verification action %q", storage.ErrInvalidInput, req.Action)
	}

	if err := s.store.ApplyVerification(ctx, userID, id, update); err != nil {
		return nil, err
	}

	mem.Status = update.Status
	mem.Confidence = update.Confidence
	mem.RelevanceScore = update.RelevanceScore
	mem.VerifiedAt = &now
	mem.VerificationHistory = append(mem.VerificationHistory, update.Entry)
	mem.UpdatedAt = now
	if req.Action == ActionCorrect {
		mem.Content = update.Content
		mem.Embedding = update.Embedding
	}

	if req.Action == ActionCorrect && (req.CorrectedImportance != nil || req.CorrectedTags != nil) {
		if req.CorrectedImportance != nil {
			mem.Importance = types.Clamp01(*req.CorrectedImportance)
		}
		if req.CorrectedTags != nil {
			mem.Tags = req.CorrectedTags
		}
		if err := s.store.Update(ctx, mem); err != nil {
			return nil, err
		}
	}

	log.Printf("memory %s %sed by user %s", id, req.Action, userID)
	return mem, nil
}
