package engine

import (
	"context"
	"log"
	"regexp"
	"strings"

	"github.com/engramdb/engram/internal/embedding"
	"github.com/engramdb/engram/pkg/types"
)

// ConflictPair reports two memories that appear to contradict each other.
type ConflictPair struct {
	MemoryA    *types.MemoryRecord `json:"memory_a"`
	MemoryB    *types.MemoryRecord `json:"memory_b"`
	Similarity float64             `json:"similarity"`
}

// negationPairs lists assertion patterns whose co-occurrence across two
// memories about the same subject signals a contradiction. Each pair is
// checked in both directions.
var negationPairs = []struct {
	a, b *regexp.Regexp
}{
	{regexp.MustCompile(`\bprefers?\b`), regexp.MustCompile(`\b(dislikes?|hates?|avoids?)\b`)},
	{regexp.MustCompile(`\blikes?\b`), regexp.MustCompile(`\b(dislikes?|hates?)\b`)},
	{regexp.MustCompile(`\buses?\b`), regexp.MustCompile(`\b(doesn't use|never uses?)\b`)},
	{regexp.MustCompile(`\bworks? (at|for)\b`), regexp.MustCompile(`\b(left|quit|fired from)\b`)},
	{regexp.MustCompile(`\bexpert (in|at)\b`), regexp.MustCompile(`\b(beginner|new to|learning)\b`)},
	{regexp.MustCompile(`\byes\b`), regexp.MustCompile(`\bno\b`)},
	{regexp.MustCompile(`\btrue\b`), regexp.MustCompile(`\bfalse\b`)},
	{regexp.MustCompile(`\balways\b`), regexp.MustCompile(`\bnever\b`)},
}

// DetectConflicts finds contradicting memory pairs: pairs similar enough
// to be about the same subject, below the near-duplicate threshold, whose
// contents assert opposing things. Both sides of each pair are flagged in
// the store. A non-empty memoryID restricts the scan to pairs involving
// that memory. Returns the conflict pairs found in this run.
func (s *Service) DetectConflicts(ctx context.Context, userID, memoryID string) ([]ConflictPair, error) {
	all, err := s.store.AllForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var active []*types.MemoryRecord
	for _, m := range all {
		if m.Status == types.StatusRejected || m.IsSuperseded() || !m.HasEmbedding() {
			continue
		}
		active = append(active, m)
	}

	now := s.now()
	var conflicts []ConflictPair
	for i := 0; i < len(active); i++ {
		if memoryID != "" && active[i].ID != memoryID {
			continue
		}
		for j := 0; j < len(active); j++ {
			// Full-scan mode visits each pair once; single-memory mode
			// compares the chosen memory against everything else.
			if memoryID == "" && j <= i {
				continue
			}
			if j == i {
				continue
			}
			a, b := active[i], active[j]

			sim := embedding.Similarity(a.Embedding, b.Embedding)
			if sim < s.tuning.ConflictLow || sim >= s.tuning.ConflictHigh {
				continue
			}
			if !contentsContradict(a.Content, b.Content) {
				continue
			}

			if err := s.store.FlagConflict(ctx, userID, a.ID, b.ID, now); err != nil {
				return conflicts, err
			}
			conflicts = append(conflicts, ConflictPair{MemoryA: a, MemoryB: b, Similarity: sim})
		}
	}

	log.Printf("detected %d conflicts for user %s", len(conflicts), userID)
	return conflicts, nil
}

// contentsContradict reports whether the two contents hit opposite sides
// of a negation pair.
func contentsContradict(contentA, contentB string) bool {
	a := strings.ToLower(contentA)
	b := strings.ToLower(contentB)
	for _, pair := range negationPairs {
		if pair.a.MatchString(a) && pair.b.MatchString(b) {
			return true
		}
		if pair.b.MatchString(a) && pair.a.MatchString(b) {
			return true
		}
	}
	return false
}
