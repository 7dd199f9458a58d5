// Package postgres implements storage.MemoryStore on PostgreSQL with the
// pgvector extension. Embeddings live in a vector column so future
// deployments can push similarity search into the database; all other
// structured fields use JSONB.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/engramdb/engram/internal/storage"
	"github.com/engramdb/engram/pkg/types"
)

// Schema creates the memories table with a pgvector embedding column.
// The dimension placeholder is filled in at store creation.
const schemaTemplate = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	content TEXT NOT NULL,
	memory_type TEXT NOT NULL DEFAULT 'fact',
	category TEXT,
	embedding vector(%d),
	importance DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0.8,
	relevance_score DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	access_count INTEGER NOT NULL DEFAULT 0,
	last_accessed TIMESTAMPTZ,
	last_reinforced TIMESTAMPTZ,
	tags JSONB,
	contexts JSONB,
	time_context TEXT,
	location_context TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	verified_at TIMESTAMPTZ,
	verification_history JSONB,
	source_session_id TEXT,
	source_message_id TEXT,
	extraction_method TEXT NOT NULL DEFAULT 'manual',
	expiration_type TEXT NOT NULL DEFAULT 'permanent',
	expires_at TIMESTAMPTZ,
	relationships JSONB,
	superseded_by TEXT,
	is_consolidated BOOLEAN NOT NULL DEFAULT FALSE,
	consolidation_count INTEGER NOT NULL DEFAULT 0,
	consolidated_from JSONB,
	conflict_detected BOOLEAN NOT NULL DEFAULT FALSE,
	conflict_ids JSONB,
	last_conflict_check TIMESTAMPTZ,
	is_private BOOLEAN NOT NULL DEFAULT FALSE,
	shared_with JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
CREATE INDEX IF NOT EXISTS idx_memories_user_status ON memories(user_id, status);
CREATE INDEX IF NOT EXISTS idx_memories_user_type ON memories(user_id, memory_type);
`

// MemoryStore implements storage.MemoryStore using PostgreSQL.
type MemoryStore struct {
	db        *sql.DB
	dimension int
}

// NewMemoryStore connects to PostgreSQL and ensures the schema exists.
func NewMemoryStore(dsn string, dimension int) (*MemoryStore, error) {
	if dimension <= 0 {
		dimension = 384
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: %w: %v", storage.ErrUnavailable, err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf(schemaTemplate, dimension)); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to create schema: %w", err)
	}

	return &MemoryStore{db: db, dimension: dimension}, nil
}

const memoryColumns = `id, user_id, content, memory_type, category, embedding,
	importance, confidence, relevance_score, access_count, last_accessed, last_reinforced,
	tags, contexts, time_context, location_context,
	status, verified_at, verification_history,
	source_session_id, source_message_id, extraction_method,
	expiration_type, expires_at,
	relationships, superseded_by,
	is_consolidated, consolidation_count, consolidated_from,
	conflict_detected, conflict_ids, last_conflict_check,
	is_private, shared_with,
	created_at, updated_at`

// Create inserts a new memory record.
func (s *MemoryStore) Create(ctx context.Context, memory *types.MemoryRecord) error {
	if err := validate(memory); err != nil {
		return err
	}

	args, err := insertArgs(memory)
	if err != nil {
		return err
	}

	placeholders := make([]string, len(args))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := `INSERT INTO memories (` + memoryColumns + `) VALUES (` + strings.Join(placeholders, ", ") + `)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: failed to insert memory: %w", err)
	}
	return nil
}

// Get retrieves a memory by user and ID.
func (s *MemoryStore) Get(ctx context.Context, userID, id string) (*types.MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE user_id = $1 AND id = $2`, userID, id)

	memory, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get memory: %w", err)
	}
	return memory, nil
}

// Update replaces an existing memory's mutable fields.
func (s *MemoryStore) Update(ctx context.Context, memory *types.MemoryRecord) error {
	if err := validate(memory); err != nil {
		return err
	}

	tagsJSON, err := marshalJSON(memory.Tags)
	if err != nil {
		return err
	}
	contextsJSON, err := marshalJSON(memory.Contexts)
	if err != nil {
		return err
	}
	historyJSON, err := marshalJSON(memory.VerificationHistory)
	if err != nil {
		return err
	}
	relsJSON, err := marshalJSON(memory.Relationships)
	if err != nil {
		return err
	}
	fromJSON, err := marshalJSON(memory.ConsolidatedFrom)
	if err != nil {
		return err
	}
	conflictJSON, err := marshalJSON(memory.ConflictIDs)
	if err != nil {
		return err
	}
	sharedJSON, err := marshalJSON(memory.SharedWith)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE memories SET
			content = $1, memory_type = $2, category = $3, embedding = $4,
			importance = $5, confidence = $6, relevance_score = $7,
			access_count = $8, last_accessed = $9, last_reinforced = $10,
			tags = $11, contexts = $12, time_context = $13, location_context = $14,
			status = $15, verified_at = $16, verification_history = $17,
			expiration_type = $18, expires_at = $19,
			relationships = $20, superseded_by = $21,
			is_consolidated = $22, consolidation_count = $23, consolidated_from = $24,
			conflict_detected = $25, conflict_ids = $26, last_conflict_check = $27,
			is_private = $28, shared_with = $29,
			updated_at = $30
		WHERE user_id = $31 AND id = $32`,
		memory.Content, string(memory.MemoryType), nullString(memory.Category), embeddingValue(memory.Embedding),
		memory.Importance, memory.Confidence, memory.RelevanceScore,
		memory.AccessCount, nullTime(memory.LastAccessed), nullTime(memory.LastReinforced),
		tagsJSON, contextsJSON, nullString(memory.TimeContext), nullString(memory.LocationContext),
		string(memory.Status), nullTime(memory.VerifiedAt), historyJSON,
		string(memory.ExpirationType), nullTime(memory.ExpiresAt),
		relsJSON, nullString(memory.SupersededBy),
		memory.IsConsolidated, memory.ConsolidationCount, fromJSON,
		memory.ConflictDetected, conflictJSON, nullTime(memory.LastConflictCheck),
		memory.IsPrivate, sharedJSON,
		memory.UpdatedAt,
		memory.UserID, memory.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to update memory: %w", err)
	}
	return requireRow(result)
}

// Delete permanently removes a memory.
func (s *MemoryStore) Delete(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete memory: %w", err)
	}
	return requireRow(result)
}

// DeleteMany removes a set of memories, skipping missing IDs.
func (s *MemoryStore) DeleteMany(ctx context.Context, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, userID)
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE user_id = $1 AND id IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to delete memories: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to read rows affected: %w", err)
	}
	return int(affected), nil
}

// List retrieves memories with pagination and filtering.
func (s *MemoryStore) List(ctx context.Context, userID string, opts storage.ListOptions) (*storage.PaginatedResult[types.MemoryRecord], error) {
	opts.Normalize()

	where := []string{"user_id = $1"}
	args := []interface{}{userID}
	next := 2

	add := func(clause string, value interface{}) {
		where = append(where, fmt.Sprintf(clause, next))
		args = append(args, value)
		next++
	}

	if opts.MemoryType != "" {
		add("memory_type = $%d", string(opts.MemoryType))
	}
	if opts.Status != "" {
		add("status = $%d", string(opts.Status))
	}
	if opts.Category != "" {
		add("category = $%d", opts.Category)
	}
	if opts.Context != "" {
		add("contexts @> $%d", fmt.Sprintf(`["%s"]`, opts.Context))
	}
	if len(opts.Tags) > 0 {
		tagClauses := make([]string, len(opts.Tags))
		for i, tag := range opts.Tags {
			tagClauses[i] = fmt.Sprintf("tags @> $%d", next)
			args = append(args, fmt.Sprintf(`["%s"]`, tag))
			next++
		}
		where = append(where, "("+strings.Join(tagClauses, " OR ")+")")
	}
	if opts.Query != "" {
		add("content ILIKE $%d", "%"+opts.Query+"%")
	}
	if opts.MinImportance > 0 {
		add("importance >= $%d", opts.MinImportance)
	}
	if opts.MinConfidence > 0 {
		add("confidence >= $%d", opts.MinConfidence)
	}
	if !opts.CreatedAfter.IsZero() {
		add("created_at > $%d", opts.CreatedAfter)
	}
	if !opts.CreatedBefore.IsZero() {
		add("created_at < $%d", opts.CreatedBefore)
	}
	if !opts.IncludeSuperseded {
		where = append(where, "(superseded_by IS NULL OR superseded_by = '')")
	}
	if opts.MinRelevance > 0 {
		add("relevance_score >= $%d", opts.MinRelevance)
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE `+whereClause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("postgres: failed to count memories: %w", err)
	}

	// SortBy is whitelist-validated by Normalize, safe to interpolate.
	query := fmt.Sprintf(`SELECT %s FROM memories WHERE %s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		memoryColumns, whereClause, opts.SortBy, strings.ToUpper(opts.SortOrder), next, next+1)
	args = append(args, opts.Limit, opts.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list memories: %w", err)
	}
	defer rows.Close()

	items, err := collectMemories(rows)
	if err != nil {
		return nil, err
	}

	values := make([]types.MemoryRecord, len(items))
	for i, m := range items {
		values[i] = *m
	}
	return storage.NewPaginatedResult(values, total, opts), nil
}

// AllForUser returns every memory for the user.
func (s *MemoryStore) AllForUser(ctx context.Context, userID string) ([]*types.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to load memories: %w", err)
	}
	defer rows.Close()
	return collectMemories(rows)
}

// MostSimilar returns up to limit memories ordered by cosine distance to
// the query vector, computed by pgvector inside the database. Superseded
// and rejected memories are excluded.
func (s *MemoryStore) MostSimilar(ctx context.Context, userID string, query []float32, limit int) ([]*types.MemoryRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE user_id = $1 AND embedding IS NOT NULL
			AND status != 'rejected'
			AND (superseded_by IS NULL OR superseded_by = '')
		ORDER BY embedding <=> $2 LIMIT $3`,
		userID, pgvector.NewVector(query), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: similarity query failed: %w", err)
	}
	defer rows.Close()
	return collectMemories(rows)
}

// CountForUser returns the number of non-superseded memories.
func (s *MemoryStore) CountForUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE user_id = $1 AND (superseded_by IS NULL OR superseded_by = '')`,
		userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to count memories: %w", err)
	}
	return count, nil
}

// FindByContent returns memories whose content exactly equals content.
func (s *MemoryStore) FindByContent(ctx context.Context, userID, content string) ([]*types.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE user_id = $1 AND content = $2`, userID, content)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to find memories by content: %w", err)
	}
	defer rows.Close()
	return collectMemories(rows)
}

// RecordAccess atomically increments access_count and sets last_accessed.
func (s *MemoryStore) RecordAccess(ctx context.Context, userID, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE memories SET access_count = access_count + 1, last_accessed = $1, updated_at = $2
		WHERE user_id = $3 AND id = $4`, at, at, userID, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to record access: %w", err)
	}
	return requireRow(result)
}

// Reinforce bumps relevance and records an access in one statement.
func (s *MemoryStore) Reinforce(ctx context.Context, userID, id string, relevance float64, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE memories SET relevance_score = $1, access_count = access_count + 1,
			last_accessed = $2, last_reinforced = $3, updated_at = $4
		WHERE user_id = $5 AND id = $6`, relevance, at, at, at, userID, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to reinforce memory: %w", err)
	}
	return requireRow(result)
}

// AppendRelationship adds an edge to a memory's relationship list.
func (s *MemoryStore) AppendRelationship(ctx context.Context, userID, id string, rel types.Relationship) error {
	relJSON, err := json.Marshal(rel)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal relationship: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE memories SET relationships = COALESCE(relationships, '[]'::jsonb) || $1::jsonb, updated_at = $2
		WHERE user_id = $3 AND id = $4`, string(relJSON), time.Now().UTC(), userID, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to append relationship: %w", err)
	}
	return requireRow(result)
}

// ApplyVerification applies a verification outcome and appends its history
// entry in one statement.
func (s *MemoryStore) ApplyVerification(ctx context.Context, userID, id string, update storage.VerificationUpdate) error {
	entryJSON, err := json.Marshal(update.Entry)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal verification entry: %w", err)
	}

	query := `
		UPDATE memories SET
			status = $1, confidence = $2, relevance_score = $3, verified_at = $4,
			verification_history = COALESCE(verification_history, '[]'::jsonb) || $5::jsonb,
			updated_at = $4`
	args := []interface{}{
		string(update.Status), update.Confidence, update.RelevanceScore,
		update.VerifiedAt, string(entryJSON),
	}

	if update.Content != "" {
		query += `, content = $6, embedding = $7 WHERE user_id = $8 AND id = $9`
		args = append(args, update.Content, embeddingValue(update.Embedding), userID, id)
	} else {
		query += ` WHERE user_id = $6 AND id = $7`
		args = append(args, userID, id)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: failed to apply verification: %w", err)
	}
	return requireRow(result)
}

// FlagConflict marks both memories as conflicting with each other.
func (s *MemoryStore) FlagConflict(ctx context.Context, userID, idA, idB string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, pair := range [][2]string{{idA, idB}, {idB, idA}} {
		otherJSON := fmt.Sprintf(`["%s"]`, pair[1])
		result, err := tx.ExecContext(ctx, `
			UPDATE memories SET
				conflict_detected = TRUE,
				conflict_ids = CASE
					WHEN COALESCE(conflict_ids, '[]'::jsonb) @> $1::jsonb THEN conflict_ids
					ELSE COALESCE(conflict_ids, '[]'::jsonb) || $1::jsonb
				END,
				last_conflict_check = $2, updated_at = $2
			WHERE user_id = $3 AND id = $4`, otherJSON, at, userID, pair[0])
		if err != nil {
			return fmt.Errorf("postgres: failed to flag conflict: %w", err)
		}
		if err := requireRow(result); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// MarkSuperseded points a memory at its consolidated replacement.
func (s *MemoryStore) MarkSuperseded(ctx context.Context, userID, id, supersededBy string, relevance float64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE memories SET superseded_by = $1, relevance_score = $2, updated_at = $3
		WHERE user_id = $4 AND id = $5`, supersededBy, relevance, time.Now().UTC(), userID, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to mark memory superseded: %w", err)
	}
	return requireRow(result)
}

// Summary aggregates the user's collection.
func (s *MemoryStore) Summary(ctx context.Context, userID string) (*storage.SummaryStats, error) {
	stats := &storage.SummaryStats{
		ByType:   make(map[types.MemoryType]int),
		ByStatus: make(map[types.MemoryStatus]int),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_type, status, COALESCE(superseded_by, ''), conflict_detected, is_private, COUNT(*)
		FROM memories WHERE user_id = $1
		GROUP BY memory_type, status, superseded_by, conflict_detected, is_private`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to summarize memories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			memType, status, supersededBy string
			conflict, private             bool
			count                         int
		)
		if err := rows.Scan(&memType, &status, &supersededBy, &conflict, &private, &count); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan summary row: %w", err)
		}

		stats.Total += count
		stats.ByType[types.MemoryType(memType)] += count
		stats.ByStatus[types.MemoryStatus(status)] += count
		if supersededBy != "" {
			stats.Superseded += count
		}
		if conflict {
			stats.WithConflicts += count
		}
		if private {
			stats.Private += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: summary iteration failed: %w", err)
	}

	return stats, nil
}

// Close releases the database handle.
func (s *MemoryStore) Close() error {
	return s.db.Close()
}

func validate(memory *types.MemoryRecord) error {
	if memory == nil {
		return storage.ErrInvalidInput
	}
	if memory.ID == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}
	if memory.UserID == "" {
		return fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}
	if memory.Content == "" {
		return fmt.Errorf("%w: memory content is required", storage.ErrInvalidInput)
	}
	return nil
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func insertArgs(memory *types.MemoryRecord) ([]interface{}, error) {
	tagsJSON, err := marshalJSON(memory.Tags)
	if err != nil {
		return nil, err
	}
	contextsJSON, err := marshalJSON(memory.Contexts)
	if err != nil {
		return nil, err
	}
	historyJSON, err := marshalJSON(memory.VerificationHistory)
	if err != nil {
		return nil, err
	}
	relsJSON, err := marshalJSON(memory.Relationships)
	if err != nil {
		return nil, err
	}
	fromJSON, err := marshalJSON(memory.ConsolidatedFrom)
	if err != nil {
		return nil, err
	}
	conflictJSON, err := marshalJSON(memory.ConflictIDs)
	if err != nil {
		return nil, err
	}
	sharedJSON, err := marshalJSON(memory.SharedWith)
	if err != nil {
		return nil, err
	}

	return []interface{}{
		memory.ID, memory.UserID, memory.Content, string(memory.MemoryType), nullString(memory.Category),
		embeddingValue(memory.Embedding),
		memory.Importance, memory.Confidence, memory.RelevanceScore,
		memory.AccessCount, nullTime(memory.LastAccessed), nullTime(memory.LastReinforced),
		tagsJSON, contextsJSON, nullString(memory.TimeContext), nullString(memory.LocationContext),
		string(memory.Status), nullTime(memory.VerifiedAt), historyJSON,
		nullString(memory.SourceSessionID), nullString(memory.SourceMessageID), string(memory.ExtractionMethod),
		string(memory.ExpirationType), nullTime(memory.ExpiresAt),
		relsJSON, nullString(memory.SupersededBy),
		memory.IsConsolidated, memory.ConsolidationCount, fromJSON,
		memory.ConflictDetected, conflictJSON, nullTime(memory.LastConflictCheck),
		memory.IsPrivate, sharedJSON,
		memory.CreatedAt, memory.UpdatedAt,
	}, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (*types.MemoryRecord, error) {
	var (
		m                                        types.MemoryRecord
		memType, status, extraction, expiration  string
		category, timeCtx, locationCtx           sql.NullString
		sourceSession, sourceMessage, superseded sql.NullString
		embedding                                pgvector.Vector
		embeddingValid                           bool
		lastAccessed, lastReinforced             sql.NullTime
		verifiedAt, expiresAt, lastConflict      sql.NullTime
		tagsJSON, contextsJSON, historyJSON      sql.NullString
		relsJSON, fromJSON, conflictJSON         sql.NullString
		sharedJSON                               sql.NullString
	)

	err := row.Scan(
		&m.ID, &m.UserID, &m.Content, &memType, &category, &nullVector{&embedding, &embeddingValid},
		&m.Importance, &m.Confidence, &m.RelevanceScore,
		&m.AccessCount, &lastAccessed, &lastReinforced,
		&tagsJSON, &contextsJSON, &timeCtx, &locationCtx,
		&status, &verifiedAt, &historyJSON,
		&sourceSession, &sourceMessage, &extraction,
		&expiration, &expiresAt,
		&relsJSON, &superseded,
		&m.IsConsolidated, &m.ConsolidationCount, &fromJSON,
		&m.ConflictDetected, &conflictJSON, &lastConflict,
		&m.IsPrivate, &sharedJSON,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.MemoryType = types.MemoryType(memType)
	m.Status = types.MemoryStatus(status)
	m.ExtractionMethod = types.ExtractionMethod(extraction)
	m.ExpirationType = types.ExpirationType(expiration)
	m.Category = category.String
	m.TimeContext = timeCtx.String
	m.LocationContext = locationCtx.String
	m.SourceSessionID = sourceSession.String
	m.SourceMessageID = sourceMessage.String
	m.SupersededBy = superseded.String
	if embeddingValid {
		m.Embedding = embedding.Slice()
	}
	m.LastAccessed = timePtr(lastAccessed)
	m.LastReinforced = timePtr(lastReinforced)
	m.VerifiedAt = timePtr(verifiedAt)
	m.ExpiresAt = timePtr(expiresAt)
	m.LastConflictCheck = timePtr(lastConflict)

	if err := unmarshalInto(tagsJSON, &m.Tags); err != nil {
		return nil, err
	}
	if err := unmarshalInto(contextsJSON, &m.Contexts); err != nil {
		return nil, err
	}
	if err := unmarshalInto(historyJSON, &m.VerificationHistory); err != nil {
		return nil, err
	}
	if err := unmarshalInto(relsJSON, &m.Relationships); err != nil {
		return nil, err
	}
	if err := unmarshalInto(fromJSON, &m.ConsolidatedFrom); err != nil {
		return nil, err
	}
	if err := unmarshalInto(conflictJSON, &m.ConflictIDs); err != nil {
		return nil, err
	}
	if err := unmarshalInto(sharedJSON, &m.SharedWith); err != nil {
		return nil, err
	}

	return &m, nil
}

// nullVector scans a nullable pgvector column.
type nullVector struct {
	vec   *pgvector.Vector
	valid *bool
}

func (n *nullVector) Scan(src interface{}) error {
	if src == nil {
		*n.valid = false
		return nil
	}
	*n.valid = true
	return n.vec.Scan(src)
}

func collectMemories(rows *sql.Rows) ([]*types.MemoryRecord, error) {
	var memories []*types.MemoryRecord
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan memory: %w", err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: row iteration failed: %w", err)
	}
	return memories, nil
}

func embeddingValue(vec []float32) interface{} {
	if len(vec) == 0 {
		return nil
	}
	return pgvector.NewVector(vec)
}

func marshalJSON(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to marshal value: %w", err)
	}
	if string(data) == "null" {
		return nil, nil
	}
	return string(data), nil
}

func unmarshalInto(src sql.NullString, dst interface{}) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(src.String), dst); err != nil {
		return fmt.Errorf("postgres: failed to unmarshal value: %w", err)
	}
	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

var _ storage.MemoryStore = (*MemoryStore)(nil)
