package types

import "time"

// MemoryRecord is a single stored fact, preference or topic about a user.
// Every field has an explicit default; there is no "missing key means
// default" lookup at read time.
type MemoryRecord struct {
	// Identity
	ID     string `json:"id" bson:"_id"`
	UserID string `json:"user_id" bson:"user_id"`

	// Content
	Content    string     `json:"content" bson:"content"`
	MemoryType MemoryType `json:"memory_type" bson:"memory_type"`
	Category   string     `json:"category,omitempty" bson:"category,omitempty"`

	// Retrieval fields. Embedding is either nil or exactly the embedder's
	// dimension; a zero-length non-nil vector is never stored.
	Embedding      []float32  `json:"embedding,omitempty" bson:"embedding,omitempty"`
	Importance     float64    `json:"importance" bson:"importance"`
	Confidence     float64    `json:"confidence" bson:"confidence"`
	RelevanceScore float64    `json:"relevance_score" bson:"relevance_score"`
	AccessCount    int        `json:"access_count" bson:"access_count"`
	LastAccessed   *time.Time `json:"last_accessed,omitempty" bson:"last_accessed,omitempty"`
	LastReinforced *time.Time `json:"last_reinforced,omitempty" bson:"last_reinforced,omitempty"`

	// Contextual tags
	Tags            []string `json:"tags,omitempty" bson:"tags,omitempty"`
	Contexts        []string `json:"contexts,omitempty" bson:"contexts,omitempty"`
	TimeContext     string   `json:"time_context,omitempty" bson:"time_context,omitempty"`
	LocationContext string   `json:"location_context,omitempty" bson:"location_context,omitempty"`

	// Verification lifecycle
	Status              MemoryStatus        `json:"status" bson:"status"`
	VerifiedAt          *time.Time          `json:"verified_at,omitempty" bson:"verified_at,omitempty"`
	VerificationHistory []VerificationEntry `json:"verification_history,omitempty" bson:"verification_history,omitempty"`

	// Provenance
	SourceSessionID  string           `json:"source_session_id,omitempty" bson:"source_session_id,omitempty"`
	SourceMessageID  string           `json:"source_message_id,omitempty" bson:"source_message_id,omitempty"`
	ExtractionMethod ExtractionMethod `json:"extraction_method" bson:"extraction_method"`

	// Temporal policy
	ExpirationType ExpirationType `json:"expiration_type" bson:"expiration_type"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty" bson:"expires_at,omitempty"`

	// Graph
	Relationships []Relationship `json:"relationships,omitempty" bson:"relationships,omitempty"`
	SupersededBy  string         `json:"superseded_by,omitempty" bson:"superseded_by,omitempty"`

	// Consolidation bookkeeping
	IsConsolidated     bool     `json:"is_consolidated" bson:"is_consolidated"`
	ConsolidationCount int      `json:"consolidation_count" bson:"consolidation_count"`
	ConsolidatedFrom   []string `json:"consolidated_from,omitempty" bson:"consolidated_from,omitempty"`

	// Conflict bookkeeping
	ConflictDetected  bool       `json:"conflict_detected" bson:"conflict_detected"`
	ConflictIDs       []string   `json:"conflict_ids,omitempty" bson:"conflict_ids,omitempty"`
	LastConflictCheck *time.Time `json:"last_conflict_check,omitempty" bson:"last_conflict_check,omitempty"`

	// Privacy
	IsPrivate  bool     `json:"is_private" bson:"is_private"`
	SharedWith []string `json:"shared_with,omitempty" bson:"shared_with,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// VerificationEntry is one immutable entry in a memory's verification
// history. Entries are append-only.
type VerificationEntry struct {
	Timestamp       time.Time `json:"timestamp" bson:"timestamp"`
	Action          string    `json:"action" bson:"action"`
	Feedback        string    `json:"feedback,omitempty" bson:"feedback,omitempty"`
	PreviousContent string    `json:"previous_content,omitempty" bson:"previous_content,omitempty"`
}

// ApplyDefaults fills zero-valued lifecycle fields with their documented
// defaults and clamps all scores to [0,1].
func (m *MemoryRecord) ApplyDefaults(now time.Time) {
	if m.MemoryType == "" {
		m.MemoryType = TypeFact
	}
	if m.Status == "" {
		m.Status = StatusPending
	}
	if m.ExtractionMethod == "" {
		m.ExtractionMethod = MethodManual
	}
	if m.ExpirationType == "" {
		m.ExpirationType = ExpirationPermanent
	}
	if m.RelevanceScore == 0 {
		m.RelevanceScore = 1.0
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now
	}
	m.Importance = Clamp01(m.Importance)
	m.Confidence = Clamp01(m.Confidence)
	m.RelevanceScore = Clamp01(m.RelevanceScore)
	if len(m.Embedding) == 0 {
		m.Embedding = nil
	}
}

// HasEmbedding reports whether the record carries a semantic embedding.
func (m *MemoryRecord) HasEmbedding() bool {
	return len(m.Embedding) > 0
}

// IsSuperseded reports whether a consolidation has replaced this record.
func (m *MemoryRecord) IsSuperseded() bool {
	return m.SupersededBy != ""
}

// HasContext reports whether the record is tagged with the given context.
func (m *MemoryRecord) HasContext(ctx string) bool {
	for _, c := range m.Contexts {
		if c == ctx {
			return true
		}
	}
	return false
}

// ContextOverlap counts how many of the active contexts the record shares.
func (m *MemoryRecord) ContextOverlap(active []string) int {
	n := 0
	for _, c := range active {
		if m.HasContext(c) {
			n++
		}
	}
	return n
}
