package engine

import (
	"context"
	"log"
)

// ApplyDecay lowers the relevance of memories that have gone unused.
// A memory decays when it was last accessed more than DecayAfterDays ago,
// or never accessed at all, and its relevance is still above the floor.
// Returns the number of memories decayed.
func (s *Service) ApplyDecay(ctx context.Context, userID string) (int, error) {
	all, err := s.store.AllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().AddDate(0, 0, -s.tuning.DecayAfterDays)
	decayed := 0
	for _, m := range all {
		if m.RelevanceScore <= s.tuning.DecayFloor {
			continue
		}
		if m.LastAccessed != nil && m.LastAccessed.After(cutoff) {
			continue
		}

		m.RelevanceScore -= s.tuning.DecayRate
		if m.RelevanceScore < 0 {
			m.RelevanceScore = 0
		}
		m.UpdatedAt = s.now()
		if err := s.store.Update(ctx, m); err != nil {
			return decayed, err
		}
		decayed++
	}

	if decayed > 0 {
		log.Printf("decayed relevance of %d memories for user %s", decayed, userID)
	}
	return decayed, nil
}
