// Package storage provides the storage contracts for the Engram memory
// system. Backends implement MemoryStore; the engine depends only on the
// interface, so sqlite, postgres and mongo implementations are
// interchangeable.
package storage

import (
	"context"
	"time"

	"github.com/engramdb/engram/pkg/types"
)

// MemoryStore provides persistence for memory records.
//
// Scoring, deduplication and graph decisions live in the engine; the store
// only persists records and performs the atomic field updates the engine
// asks for. Similarity search over embeddings is done engine-side against
// AllForUser, except where a backend offers native vector search.
type MemoryStore interface {
	// Create inserts a new memory. Returns ErrInvalidInput if the record
	// has no ID, user or content.
	Create(ctx context.Context, memory *types.MemoryRecord) error

	// Get retrieves a memory by user and ID.
	// Returns ErrNotFound if it doesn't exist or belongs to another user.
	Get(ctx context.Context, userID, id string) (*types.MemoryRecord, error)

	// Update replaces an existing memory's mutable fields.
	// Returns ErrNotFound if the memory doesn't exist.
	Update(ctx context.Context, memory *types.MemoryRecord) error

	// Delete permanently removes a memory.
	// Returns ErrNotFound if the memory doesn't exist.
	Delete(ctx context.Context, userID, id string) error

	// DeleteMany permanently removes a set of memories and returns the
	// number actually deleted. Missing IDs are skipped, not an error.
	DeleteMany(ctx context.Context, userID string, ids []string) (int, error)

	// List retrieves memories with pagination and filtering.
	List(ctx context.Context, userID string, opts ListOptions) (*PaginatedResult[types.MemoryRecord], error)

	// AllForUser returns every memory for the user, superseded ones
	// included. Backends keep per-user collections small enough (hard
	// capacity limit) that full scans stay cheap.
	AllForUser(ctx context.Context, userID string) ([]*types.MemoryRecord, error)

	// CountForUser returns the number of non-superseded memories.
	CountForUser(ctx context.Context, userID string) (int, error)

	// FindByContent returns memories whose content exactly equals content.
	FindByContent(ctx context.Context, userID, content string) ([]*types.MemoryRecord, error)

	// RecordAccess atomically increments access_count and sets
	// last_accessed. Returns ErrNotFound if the memory doesn't exist.
	RecordAccess(ctx context.Context, userID, id string, at time.Time) error

	// Reinforce atomically bumps relevance to the given value and records
	// an access. Returns ErrNotFound if the memory doesn't exist.
	Reinforce(ctx context.Context, userID, id string, relevance float64, at time.Time) error

	// AppendRelationship adds an edge to a memory's relationship list.
	// Returns ErrNotFound if the memory doesn't exist.
	AppendRelationship(ctx context.Context, userID, id string, rel types.Relationship) error

	// ApplyVerification applies a verification outcome and appends its
	// history entry in one update.
	// Returns ErrNotFound if the memory doesn't exist.
	ApplyVerification(ctx context.Context, userID, id string, update VerificationUpdate) error

	// FlagConflict marks both memories as conflicting with each other and
	// stamps last_conflict_check.
	FlagConflict(ctx context.Context, userID, idA, idB string, at time.Time) error

	// MarkSuperseded points a memory at its consolidated replacement and
	// drops its relevance to floor so it leaves retrieval rankings.
	MarkSuperseded(ctx context.Context, userID, id, supersededBy string, relevance float64) error

	// Summary aggregates the user's collection.
	Summary(ctx context.Context, userID string) (*SummaryStats, error)

	// Close releases any resources held by the store.
	Close() error
}
