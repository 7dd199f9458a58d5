package engine

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/engramdb/engram/internal/config"
	"github.com/engramdb/engram/pkg/types"
)

// Phrases that suggest a memory describes a short-lived state.
var temporaryPhrases = []string{
	"currently", "right now", "this week", "this month",
	"temporary", "for now", "trying out", "testing",
}

// Phrases that tie a memory to a season or year.
var seasonalPhrases = []string{
	"this year", "this quarter", "this season",
	"spring", "summer", "fall", "winter", "holiday",
}

// classifyExpiration sets the expiration type and expiry from temporal
// phrases in the content. Only permanent memories are reclassified;
// explicit temporary or seasonal markings are left alone. Seasonal
// phrasing wins over temporary phrasing when both appear.
func classifyExpiration(m *types.MemoryRecord, tuning config.TuningConfig, now time.Time) bool {
	if m.ExpirationType != types.ExpirationPermanent {
		return false
	}

	content := strings.ToLower(m.Content)

	classified := false
	for _, phrase := range temporaryPhrases {
		if strings.Contains(content, phrase) {
			m.ExpirationType = types.ExpirationTemporary
			expires := now.AddDate(0, 0, tuning.TemporaryTTLDays)
			m.ExpiresAt = &expires
			classified = true
			break
		}
	}
	for _, phrase := range seasonalPhrases {
		if strings.Contains(content, phrase) {
			m.ExpirationType = types.ExpirationSeasonal
			expires := now.AddDate(0, 0, tuning.SeasonalTTLDays)
			m.ExpiresAt = &expires
			classified = true
			break
		}
	}
	return classified
}

// ClassifyExpirations reclassifies the user's permanent memories whose
// content carries temporal phrasing. Returns the number reclassified.
func (s *Service) ClassifyExpirations(ctx context.Context, userID string) (int, error) {
	all, err := s.store.AllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	now := s.now()
	reclassified := 0
	for _, m := range all {
		if !classifyExpiration(m, s.tuning, now) {
			continue
		}
		m.UpdatedAt = now
		if err := s.store.Update(ctx, m); err != nil {
			return reclassified, err
		}
		reclassified++
	}

	if reclassified > 0 {
		log.Printf("reclassified expiration of %d memories for user %s", reclassified, userID)
	}
	return reclassified, nil
}

// PurgeExpired deletes memories whose expiry has passed. Returns the
// number deleted.
func (s *Service) PurgeExpired(ctx context.Context, userID string) (int, error) {
	all, err := s.store.AllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	now := s.now()
	var ids []string
	for _, m := range all {
		if m.ExpiresAt != nil && m.ExpiresAt.Before(now) {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	deleted, err := s.store.DeleteMany(ctx, userID, ids)
	if err != nil {
		return 0, err
	}
	log.Printf("purged %d expired memories for user %s", deleted, userID)
	return deleted, nil
}
