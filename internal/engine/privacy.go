package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/engramdb/engram/internal/storage"
	"github.com/engramdb/engram/pkg/types"
)

// SetPrivacy marks the given memories private or shared. When sharedWith
// is non-nil it replaces the share list. Missing IDs are skipped.
// Returns the number of memories updated.
func (s *Service) SetPrivacy(ctx context.Context, userID string, ids []string, isPrivate bool, sharedWith []string) (int, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: no memory ids given", storage.ErrInvalidInput)
	}

	updated := 0
	for _, id := range ids {
		mem, err := s.store.Get(ctx, userID, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return updated, err
		}

		mem.IsPrivate = isPrivate
		if sharedWith != nil {
			mem.SharedWith = sharedWith
		}
		mem.UpdatedAt = s.now()
		if err := s.store.Update(ctx, mem); err != nil {
			return updated, err
		}
		updated++
	}

	log.Printf("updated privacy of %d memories for user %s (private: %v)", updated, userID, isPrivate)
	return updated, nil
}

// BulkDeleteFilter restricts a bulk delete to matching memories. Empty
// fields match everything.
type BulkDeleteFilter struct {
	Status     types.MemoryStatus `json:"status,omitempty"`
	MemoryType types.MemoryType   `json:"memory_type,omitempty"`
	Category   string             `json:"category,omitempty"`
}

func (f BulkDeleteFilter) isZero() bool {
	return f.Status == "" && f.MemoryType == "" && f.Category == ""
}

func (f BulkDeleteFilter) matches(m *types.MemoryRecord) bool {
	if f.Status != "" && m.Status != f.Status {
		return false
	}
	if f.MemoryType != "" && m.MemoryType != f.MemoryType {
		return false
	}
	if f.Category != "" && m.Category != f.Category {
		return false
	}
	return true
}

// BulkDelete removes memories by explicit IDs, by filter, or both
// combined. At least one of the two must be given. Returns the number
// deleted.
func (s *Service) BulkDelete(ctx context.Context, userID string, ids []string, filter BulkDeleteFilter) (int, error) {
	if len(ids) == 0 && filter.isZero() {
		return 0, fmt.Errorf("%w: bulk delete needs ids or a filter", storage.ErrInvalidInput)
	}

	var targets []string
	if filter.isZero() {
		targets = ids
	} else {
		idSet := make(map[string]bool, len(ids))
		for _, id := range ids {
			idSet[id] = true
		}

		all, err := s.store.AllForUser(ctx, userID)
		if err != nil {
			return 0, err
		}
		for _, m := range all {
			if len(ids) > 0 && !idSet[m.ID] {
				continue
			}
			if filter.matches(m) {
				targets = append(targets, m.ID)
			}
		}
	}
	if len(targets) == 0 {
		return 0, nil
	}

	deleted, err := s.store.DeleteMany(ctx, userID, targets)
	if err != nil {
		return 0, err
	}
	log.Printf("bulk deleted %d memories for user %s", deleted, userID)
	return deleted, nil
}
