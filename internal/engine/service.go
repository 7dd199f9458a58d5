// Package engine implements the memory engine: creation with
// deduplication and capacity enforcement, embedding-based retrieval,
// the verification lifecycle, the relationship graph, and the
// maintenance jobs that keep a user's collection healthy over time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/engramdb/engram/internal/config"
	"github.com/engramdb/engram/internal/embedding"
	"github.com/engramdb/engram/internal/storage"
	"github.com/engramdb/engram/pkg/types"
)

// CandidateExtractor produces candidate memories from a conversation.
// llm.Extractor is the production implementation.
type CandidateExtractor interface {
	Extract(ctx context.Context, messages []types.ConversationMessage) ([]types.CandidateMemory, error)
}

// Service coordinates stores, embeddings and extraction into the memory
// engine API. All methods are safe for concurrent use as long as the
// underlying store is.
type Service struct {
	store     storage.MemoryStore
	embedder  *embedding.Provider
	extractor CandidateExtractor
	tuning    config.TuningConfig

	now func() time.Time
}

// NewService creates a Service. The extractor may be nil when extraction
// is not needed (maintenance-only deployments); ExtractFromConversation
// then returns an error.
func NewService(store storage.MemoryStore, embedder *embedding.Provider, extractor CandidateExtractor, tuning config.TuningConfig) *Service {
	return &Service{
		store:     store,
		embedder:  embedder,
		extractor: extractor,
		tuning:    tuning,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequest carries the caller-supplied fields of a new memory.
type CreateRequest struct {
	Content         string           `json:"content"`
	MemoryType      types.MemoryType `json:"memory_type"`
	Category        string           `json:"category,omitempty"`
	Importance      float64          `json:"importance,omitempty"`
	Confidence      float64          `json:"confidence,omitempty"`
	Tags            []string         `json:"tags,omitempty"`
	Contexts        []string         `json:"contexts,omitempty"`
	LocationContext string           `json:"location_context,omitempty"`
	SourceSessionID string           `json:"source_session_id,omitempty"`
	IsPrivate       bool             `json:"is_private,omitempty"`
}

// Create stores a new memory for the user. Duplicates reinforce the
// existing memory instead of inserting a second copy, and creates beyond
// the hard capacity limit fail with storage.ErrCapacityExceeded.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*types.MemoryRecord, error) {
	mem, _, err := s.create(ctx, userID, req, types.MethodManual, "")
	return mem, err
}

// create is the shared insert path for manual creates and imports. It
// embeds the content itself; the extraction pipeline batch-embeds its
// candidates and goes through createEmbedded directly.
func (s *Service) create(ctx context.Context, userID string, req CreateRequest, method types.ExtractionMethod, timeContext string) (*types.MemoryRecord, bool, error) {
	var vec []float32
	if req.Content != "" {
		v, err := s.embedder.Embed(ctx, req.Content)
		if err != nil {
			// A memory without an embedding still participates in keyword
			// retrieval, so creation proceeds.
			log.Printf("embedding failed for new memory (user %s): %v", userID, err)
			v = nil
		}
		vec = v
	}
	return s.createEmbedded(ctx, userID, req, method, timeContext, vec)
}

// createEmbedded inserts a memory whose embedding was already generated
// (or could not be). It returns reinforced=true when the content
// deduplicated against an existing memory, which is then the returned
// record.
func (s *Service) createEmbedded(ctx context.Context, userID string, req CreateRequest, method types.ExtractionMethod, timeContext string, vec []float32) (*types.MemoryRecord, bool, error) {
	if userID == "" || req.Content == "" {
		return nil, false, fmt.Errorf("%w: user id and content are required", storage.ErrInvalidInput)
	}
	if req.MemoryType != "" && !types.IsValidMemoryType(req.MemoryType) {
		return nil, false, fmt.Errorf("%w: unknown memory type %q", storage.ErrInvalidInput, req.MemoryType)
	}

	count, err := s.store.CountForUser(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("capacity check failed: %w", err)
	}
	if count >= s.tuning.HardLimit {
		return nil, false, fmt.Errorf("%w: %d memories at hard limit %d", storage.ErrCapacityExceeded, count, s.tuning.HardLimit)
	}
	if count >= s.tuning.SoftLimit {
		log.Printf("user %s approaching memory limit: %d/%d", userID, count, s.tuning.SoftLimit)
	}

	if existing, err := s.findDuplicate(ctx, userID, req.Content, vec); err != nil {
		return nil, false, err
	} else if existing != nil {
		reinforced, err := s.reinforce(ctx, existing)
		if err != nil {
			return nil, false, err
		}
		return reinforced, true, nil
	}

	now := s.now()
	importance := req.Importance
	if importance == 0 {
		importance = 0.5
	}
	confidence := req.Confidence
	if confidence == 0 {
		confidence = 0.8
	}

	mem := &types.MemoryRecord{
		ID:               uuid.NewString(),
		UserID:           userID,
		Content:          req.Content,
		MemoryType:       req.MemoryType,
		Category:         req.Category,
		Embedding:        vec,
		Importance:       importance,
		Confidence:       confidence,
		Tags:             req.Tags,
		Contexts:         req.Contexts,
		TimeContext:      timeContext,
		LocationContext:  req.LocationContext,
		SourceSessionID:  req.SourceSessionID,
		ExtractionMethod: method,
		IsPrivate:        req.IsPrivate,
	}
	mem.ApplyDefaults(now)
	classifyExpiration(mem, s.tuning, now)

	if err := s.store.Create(ctx, mem); err != nil {
		return nil, false, err
	}

	if n, err := s.AutoLink(ctx, userID, mem); err != nil {
		log.Printf("auto-link failed for memory %s: %v", mem.ID, err)
	} else if n > 0 {
		log.Printf("auto-linked memory %s to %d existing memories", mem.ID, n)
	}

	return mem, false, nil
}

// findDuplicate returns an existing memory the new content duplicates:
// either an exact content match, or an embedding at or above the
// duplicate threshold created within the duplicate window.
func (s *Service) findDuplicate(ctx context.Context, userID, content string, vec []float32) (*types.MemoryRecord, error) {
	exact, err := s.store.FindByContent(ctx, userID, content)
	if err != nil {
		return nil, fmt.Errorf("duplicate check failed: %w", err)
	}
	for _, m := range exact {
		if m.Status != types.StatusRejected && !m.IsSuperseded() {
			return m, nil
		}
	}

	if len(vec) == 0 {
		return nil, nil
	}

	all, err := s.store.AllForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("duplicate check failed: %w", err)
	}

	cutoff := s.now().AddDate(0, 0, -s.tuning.DuplicateWindowDays)
	for _, m := range all {
		if m.Status == types.StatusRejected || m.IsSuperseded() || !m.HasEmbedding() {
			continue
		}
		if m.CreatedAt.Before(cutoff) {
			continue
		}
		if embedding.Similarity(vec, m.Embedding) >= s.tuning.DuplicateThreshold {
			return m, nil
		}
	}
	return nil, nil
}

// reinforce bumps a memory's relevance for being restated and returns
// the updated record.
func (s *Service) reinforce(ctx context.Context, mem *types.MemoryRecord) (*types.MemoryRecord, error) {
	now := s.now()
	relevance := types.Clamp01(mem.RelevanceScore + 0.1)
	if err := s.store.Reinforce(ctx, mem.UserID, mem.ID, relevance, now); err != nil {
		return nil, err
	}
	mem.RelevanceScore = relevance
	mem.LastReinforced = &now
	mem.LastAccessed = &now
	mem.AccessCount++
	return mem, nil
}

// Reinforce strengthens a memory that proved useful again.
func (s *Service) Reinforce(ctx context.Context, userID, id string) (*types.MemoryRecord, error) {
	mem, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.reinforce(ctx, mem)
}

// Get retrieves a memory and records the access.
func (s *Service) Get(ctx context.Context, userID, id string) (*types.MemoryRecord, error) {
	mem, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.store.RecordAccess(ctx, userID, id, now); err != nil {
		return nil, err
	}
	mem.AccessCount++
	mem.LastAccessed = &now
	return mem, nil
}

// UpdateRequest carries a partial update. Nil fields are left unchanged.
type UpdateRequest struct {
	Content    *string  `json:"content,omitempty"`
	Importance *float64 `json:"importance,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Category   *string  `json:"category,omitempty"`
}

// Update applies a partial update. Changing the content regenerates the
// embedding so retrieval keeps matching the new text.
func (s *Service) Update(ctx context.Context, userID, id string, req UpdateRequest) (*types.MemoryRecord, error) {
	mem, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if req.Content != nil && *req.Content != mem.Content {
		if *req.Content == "" {
			return nil, fmt.Errorf("%w: content cannot be empty", storage.ErrInvalidInput)
		}
		mem.Content = *req.Content
		vec, err := s.embedder.Embed(ctx, mem.Content)
		if err != nil {
			log.Printf("embedding regeneration failed for memory %s: %v", id, err)
			vec = nil
		}
		mem.Embedding = vec
	}
	if req.Importance != nil {
		mem.Importance = types.Clamp01(*req.Importance)
	}
	if req.Confidence != nil {
		mem.Confidence = types.Clamp01(*req.Confidence)
	}
	if req.Tags != nil {
		mem.Tags = req.Tags
	}
	if req.Category != nil {
		mem.Category = *req.Category
	}
	mem.UpdatedAt = s.now()

	if err := s.store.Update(ctx, mem); err != nil {
		return nil, err
	}
	return mem, nil
}

// Delete permanently removes a memory.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return s.store.Delete(ctx, userID, id)
}

// List returns a page of the user's memories.
func (s *Service) List(ctx context.Context, userID string, opts storage.ListOptions) (*storage.PaginatedResult[types.MemoryRecord], error) {
	return s.store.List(ctx, userID, opts)
}

// Pending returns the newest memories awaiting verification.
func (s *Service) Pending(ctx context.Context, userID string, limit int) ([]*types.MemoryRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	res, err := s.store.List(ctx, userID, storage.ListOptions{
		Status:    types.StatusPending,
		SortBy:    "created_at",
		SortOrder: "desc",
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}

	memories := make([]*types.MemoryRecord, len(res.Items))
	for i := range res.Items {
		memories[i] = &res.Items[i]
	}
	return memories, nil
}

// Limit status values reported by Summary.
const (
	LimitHealthy  = "healthy"
	LimitWarning  = "warning"
	LimitExceeded = "exceeded"
)

// LimitStatus describes where a user's collection stands against the
// capacity limits.
type LimitStatus struct {
	Count          int     `json:"count"`
	SoftLimit      int     `json:"soft_limit"`
	HardLimit      int     `json:"hard_limit"`
	PercentageUsed float64 `json:"percentage_used"`
	Status         string  `json:"status"`
	Message        string  `json:"message,omitempty"`
}

// Summary combines collection aggregates with the capacity status.
type Summary struct {
	Stats *storage.SummaryStats `json:"stats"`
	Limit LimitStatus           `json:"limit"`
}

// Summary aggregates the user's collection and reports capacity headroom.
func (s *Service) Summary(ctx context.Context, userID string) (*Summary, error) {
	stats, err := s.store.Summary(ctx, userID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	limit := LimitStatus{
		Count:          count,
		SoftLimit:      s.tuning.SoftLimit,
		HardLimit:      s.tuning.HardLimit,
		PercentageUsed: float64(count) / float64(s.tuning.SoftLimit) * 100,
		Status:         LimitHealthy,
	}
	switch {
	case count >= s.tuning.HardLimit:
		limit.Status = LimitExceeded
		limit.Message = "Hard limit reached. Cannot create new memories."
	case count >= s.tuning.SoftLimit:
		limit.Status = LimitWarning
		limit.Message = "Approaching limit. Consider cleaning up old memories."
	}

	return &Summary{Stats: stats, Limit: limit}, nil
}

// Cleanup deletes low-value memories beyond the keep count. Memories are
// ranked by relevance, importance and usage; the top keepCount survive
// unconditionally, and of the rest only those below minImportance are
// removed. Returns the number deleted.
func (s *Service) Cleanup(ctx context.Context, userID string, keepCount int, minImportance float64) (int, error) {
	if keepCount <= 0 {
		keepCount = 500
	}
	if minImportance <= 0 {
		minImportance = 0.3
	}

	all, err := s.store.AllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(all) <= keepCount {
		return 0, nil
	}

	score := func(m *types.MemoryRecord) float64 {
		return m.RelevanceScore * m.Importance * float64(m.AccessCount)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return score(all[i]) > score(all[j])
	})

	var ids []string
	for _, m := range all[keepCount:] {
		if m.Importance < minImportance {
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
	log.Printf("cleanup removed %d low-value memories for user %s", deleted, userID)
	return deleted, nil
}

// IsNotFound reports whether err means the memory does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
