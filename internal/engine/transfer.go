package engine

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/engramdb/engram/internal/storage"
	"github.com/engramdb/engram/pkg/types"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ExportOptions selects what to export and how.
type ExportOptions struct {
	Format string `json:"format"`

	// IncludeRelationships keeps graph edges in JSON exports.
	IncludeRelationships bool `json:"include_relationships"`

	// IncludeEmbeddings keeps raw vectors in JSON exports. They dominate
	// the export size, so they are off by default.
	IncludeEmbeddings bool `json:"include_embeddings"`

	Statuses []types.MemoryStatus `json:"statuses,omitempty"`
	Types    []types.MemoryType   `json:"types,omitempty"`
	Contexts []string             `json:"contexts,omitempty"`
}

// Export is the result of an export run. Memories is populated for JSON
// exports and CSV for CSV exports.
type Export struct {
	Format     string                `json:"format"`
	Count      int                   `json:"count"`
	ExportedAt time.Time             `json:"exported_at"`
	Options    ExportOptions         `json:"filters"`
	Memories   []*types.MemoryRecord `json:"memories,omitempty"`
	CSV        string                `json:"csv,omitempty"`
}

// Export serializes the user's memories, optionally filtered by status,
// type and context, newest first.
func (s *Service) Export(ctx context.Context, userID string, opts ExportOptions) (*Export, error) {
	if opts.Format == "" {
		opts.Format = FormatJSON
	}
	if opts.Format != FormatJSON && opts.Format != FormatCSV {
		return nil, fmt.Errorf("%w: unsupported export format %q", storage.ErrInvalidInput, opts.Format)
	}

	all, err := s.store.AllForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var memories []*types.MemoryRecord
	for _, m := range all {
		if !matchesExportFilters(m, opts) {
			continue
		}
		memories = append(memories, m)
	}
	sort.SliceStable(memories, func(i, j int) bool {
		return memories[i].CreatedAt.After(memories[j].CreatedAt)
	})

	export := &Export{
		Format:     opts.Format,
		Count:      len(memories),
		ExportedAt: s.now(),
		Options:    opts,
	}

	if opts.Format == FormatCSV {
		csvData, err := memoriesToCSV(memories)
		if err != nil {
			return nil, err
		}
		export.CSV = csvData
		return export, nil
	}

	for _, m := range memories {
		record := *m
		if !opts.IncludeRelationships {
			record.Relationships = nil
		}
		if !opts.IncludeEmbeddings {
			record.Embedding = nil
		}
		export.Memories = append(export.Memories, &record)
	}
	return export, nil
}

func matchesExportFilters(m *types.MemoryRecord, opts ExportOptions) bool {
	if len(opts.Statuses) > 0 && !containsStatus(opts.Statuses, m.Status) {
		return false
	}
	if len(opts.Types) > 0 && !containsType(opts.Types, m.MemoryType) {
		return false
	}
	if len(opts.Contexts) > 0 {
		matched := false
		for _, c := range opts.Contexts {
			if m.HasContext(c) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func containsStatus(haystack []types.MemoryStatus, needle types.MemoryStatus) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsType(haystack []types.MemoryType, needle types.MemoryType) bool {
	for _, t := range haystack {
		if t == needle {
			return true
		}
	}
	return false
}

// csvHeader is the fixed column layout of CSV exports. Multi-valued
// fields are joined with "|".
var csvHeader = []string{
	"id", "content", "type", "importance", "confidence",
	"tags", "category", "contexts", "status", "expiration_type",
	"access_count", "relevance_score", "created_at",
}

func memoriesToCSV(memories []*types.MemoryRecord) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)

	if err := w.Write(csvHeader); err != nil {
		return "", fmt.Errorf("csv export failed: %w", err)
	}
	for _, m := range memories {
		row := []string{
			m.ID,
			m.Content,
			string(m.MemoryType),
			strconv.FormatFloat(m.Importance, 'g', -1, 64),
			strconv.FormatFloat(m.Confidence, 'g', -1, 64),
			strings.Join(m.Tags, "|"),
			m.Category,
			strings.Join(m.Contexts, "|"),
			string(m.Status),
			string(m.ExpirationType),
			strconv.Itoa(m.AccessCount),
			strconv.FormatFloat(m.RelevanceScore, 'g', -1, 64),
			m.CreatedAt.Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("csv export failed: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("csv export failed: %w", err)
	}
	return b.String(), nil
}

// Merge strategies for Import.
const (
	MergeSkipDuplicates = "skip_duplicates"
	MergeUpdate         = "update"
	MergeCreateNew      = "create_new"
)

// ImportEntry is one memory in an import payload. Zero importance and
// confidence take the creation defaults.
type ImportEntry struct {
	Content         string           `json:"content"`
	MemoryType      types.MemoryType `json:"memory_type"`
	Importance      float64          `json:"importance,omitempty"`
	Confidence      float64          `json:"confidence,omitempty"`
	Tags            []string         `json:"tags,omitempty"`
	Category        string           `json:"category,omitempty"`
	Contexts        []string         `json:"contexts,omitempty"`
	TimeContext     string           `json:"time_context,omitempty"`
	LocationContext string           `json:"location_context,omitempty"`
	Embedding       []float32        `json:"embedding,omitempty"`
}

// ImportStats summarizes an import run.
type ImportStats struct {
	Imported       int      `json:"imported"`
	Updated        int      `json:"updated"`
	Skipped        int      `json:"skipped"`
	Errors         []string `json:"errors,omitempty"`
	TotalProcessed int      `json:"total_processed"`
}

// Import stores external memories for the user. Entries whose content
// already exists are handled per the merge strategy: skipped, merged into
// the existing memory, or created as new copies. Imported memories start
// confirmed since they come from a trusted export. Invalid entries are
// reported in the stats without aborting the run.
func (s *Service) Import(ctx context.Context, userID string, entries []ImportEntry, mergeStrategy string) (*ImportStats, error) {
	if mergeStrategy == "" {
		mergeStrategy = MergeSkipDuplicates
	}
	if mergeStrategy != MergeSkipDuplicates && mergeStrategy != MergeUpdate && mergeStrategy != MergeCreateNew {
		return nil, fmt.Errorf("%w: unknown merge strategy %q", storage.ErrInvalidInput, mergeStrategy)
	}

	stats := &ImportStats{TotalProcessed: len(entries)}
	for i, entry := range entries {
		if entry.Content == "" {
			stats.Errors = append(stats.Errors, fmt.Sprintf("row %d: missing content", i))
			stats.Skipped++
			continue
		}
		if entry.MemoryType == "" {
			stats.Errors = append(stats.Errors, fmt.Sprintf("row %d: missing memory_type", i))
			stats.Skipped++
			continue
		}
		if !types.IsValidMemoryType(entry.MemoryType) {
			stats.Errors = append(stats.Errors, fmt.Sprintf("row %d: unknown memory_type %q", i, entry.MemoryType))
			stats.Skipped++
			continue
		}

		existing, err := s.store.FindByContent(ctx, userID, entry.Content)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("row %d: %v", i, err))
			stats.Skipped++
			continue
		}

		if len(existing) > 0 && mergeStrategy != MergeCreateNew {
			if mergeStrategy == MergeSkipDuplicates {
				stats.Skipped++
				continue
			}

			target := existing[0]
			if entry.Importance > 0 {
				target.Importance = types.Clamp01(entry.Importance)
			}
			if entry.Confidence > 0 {
				target.Confidence = types.Clamp01(entry.Confidence)
			}
			if entry.Tags != nil {
				target.Tags = entry.Tags
			}
			target.UpdatedAt = s.now()
			if err := s.store.Update(ctx, target); err != nil {
				stats.Errors = append(stats.Errors, fmt.Sprintf("row %d: %v", i, err))
				stats.Skipped++
				continue
			}
			stats.Updated++
			continue
		}

		vec := entry.Embedding
		if len(vec) == 0 {
			vec, err = s.embedder.Embed(ctx, entry.Content)
			if err != nil {
				log.Printf("embedding failed for imported memory (row %d): %v", i, err)
				vec = nil
			}
		}

		importance := entry.Importance
		if importance == 0 {
			importance = 0.5
		}
		confidence := entry.Confidence
		if confidence == 0 {
			confidence = 0.8
		}

		now := s.now()
		mem := &types.MemoryRecord{
			ID:               uuid.NewString(),
			UserID:           userID,
			Content:          entry.Content,
			MemoryType:       entry.MemoryType,
			Category:         entry.Category,
			Embedding:        vec,
			Importance:       importance,
			Confidence:       confidence,
			Tags:             entry.Tags,
			Contexts:         entry.Contexts,
			TimeContext:      entry.TimeContext,
			LocationContext:  entry.LocationContext,
			Status:           types.StatusConfirmed,
			ExtractionMethod: types.MethodImport,
		}
		mem.ApplyDefaults(now)

		if err := s.store.Create(ctx, mem); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("row %d: %v", i, err))
			stats.Skipped++
			continue
		}
		stats.Imported++
	}

	log.Printf("import for user %s: %d imported, %d updated, %d skipped, %d errors",
		userID, stats.Imported, stats.Updated, stats.Skipped, len(stats.Errors))
	return stats, nil
}
