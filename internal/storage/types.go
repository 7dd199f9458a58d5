package storage

import (
	"errors"
	"time"

	"github.com/engramdb/engram/pkg/types"
)

var (
	// ErrNotFound indicates that the requested memory was not found.
	ErrNotFound = errors.New("memory not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCapacityExceeded indicates the user is at the hard memory limit.
	ErrCapacityExceeded = errors.New("memory capacity exceeded")

	// ErrUnavailable indicates a transient backend failure. Callers may
	// retry; all other storage errors are permanent.
	ErrUnavailable = errors.New("storage unavailable")
)

// PaginatedResult represents a paginated result set.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page.
	Items []T

	// Total is the total number of items across all pages.
	Total int

	// Page is the current page number (1-indexed).
	Page int

	// PageSize is the number of items per page.
	PageSize int

	// HasMore indicates whether there are more pages available.
	HasMore bool
}

// NewPaginatedResult assembles a page from the full match count.
func NewPaginatedResult[T any](items []T, total int, opts ListOptions) *PaginatedResult[T] {
	return &PaginatedResult[T]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}
}

// ListOptions provides pagination and filtering options for list operations.
type ListOptions struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// Limit is the number of items per page (default: 20, max: 100).
	Limit int

	// SortBy specifies the field to sort by (default: "created_at").
	SortBy string

	// SortOrder specifies the sort direction ("asc" or "desc", default: "desc").
	SortOrder string

	// MemoryType filters by memory type. Empty means no filter.
	MemoryType types.MemoryType

	// Status filters by verification status. Empty means no filter.
	Status types.MemoryStatus

	// Category filters by category. Empty means no filter.
	Category string

	// Context filters to memories tagged with this context.
	Context string

	// Tags filters to memories carrying any of these tags.
	Tags []string

	// Query filters to memories whose content contains this substring,
	// case-insensitively.
	Query string

	// MinImportance filters to memories with importance >= this value.
	// Zero means no minimum.
	MinImportance float64

	// MinConfidence filters to memories with confidence >= this value.
	// Zero means no minimum.
	MinConfidence float64

	// CreatedAfter filters to memories created strictly after this time.
	// Zero value means no lower bound.
	CreatedAfter time.Time

	// CreatedBefore filters to memories created strictly before this time.
	// Zero value means no upper bound.
	CreatedBefore time.Time

	// IncludeSuperseded includes memories replaced by consolidation.
	// By default they are excluded from all listings.
	IncludeSuperseded bool

	// MinRelevance filters to memories with relevance_score >= this value.
	// Zero means no minimum.
	MinRelevance float64
}

// Normalize applies defaults and validates the ListOptions.
func (o *ListOptions) Normalize() {
	// Whitelist validation for SortBy to prevent SQL injection
	allowedSortFields := map[string]bool{
		"created_at":      true,
		"updated_at":      true,
		"importance":      true,
		"relevance_score": true,
		"access_count":    true,
		"last_accessed":   true,
	}

	if !allowedSortFields[o.SortBy] {
		o.SortBy = "created_at"
	}

	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc"
	}

	if o.Page < 1 {
		o.Page = 1
	}

	if o.Limit < 1 {
		o.Limit = 20
	}

	if o.Limit > 100 {
		o.Limit = 100
	}
}

// Offset calculates the offset for queries based on page and limit.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// SummaryStats aggregates a user's memory collection for dashboards and
// capacity checks.
type SummaryStats struct {
	Total         int                        `json:"total"`
	ByType        map[types.MemoryType]int   `json:"by_type"`
	ByStatus      map[types.MemoryStatus]int `json:"by_status"`
	Superseded    int                        `json:"superseded"`
	WithConflicts int                        `json:"with_conflicts"`
	Private       int                        `json:"private"`
}

// VerificationUpdate carries the field changes a verification action makes
// to a memory, applied atomically together with the history append.
type VerificationUpdate struct {
	Status         types.MemoryStatus
	Confidence     float64
	RelevanceScore float64
	VerifiedAt     time.Time

	// Content and Embedding are set only for corrections.
	Content   string
	Embedding []float32

	Entry types.VerificationEntry
}
