// Package sqlite implements storage.MemoryStore on SQLite via the pure-Go
// modernc.org/sqlite driver. It is the default backend for single-node
// deployments: no server to run, one file per database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/engramdb/engram/internal/storage"
	"github.com/engramdb/engram/pkg/types"
)

// MemoryStore implements storage.MemoryStore using SQLite.
type MemoryStore struct {
	db *sql.DB
}

// NewMemoryStore opens a SQLite database, configures WAL mode, and creates
// the schema.
func NewMemoryStore(dsn string) (*MemoryStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open
	// connection serialises writes and avoids SQLITE_BUSY errors under
	// concurrent load. WAL mode lets readers proceed without blocking
	// the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &MemoryStore{db: db}, nil
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

	query := `INSERT INTO memories (` + memoryColumns + `) VALUES (` +
		strings.TrimSuffix(strings.Repeat("?, ", 36), ", ") + `)`

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite: failed to insert memory: %w", err)
	}
	return nil
}

// Get retrieves a memory by user and ID.
func (s *MemoryStore) Get(ctx context.Context, userID, id string) (*types.MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE user_id = ? AND id = ?`, userID, id)

	memory, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get memory: %w", err)
	}
	return memory, nil
}

// Update replaces an existing memory's mutable fields.
func (s *MemoryStore) Update(ctx context.Context, memory *types.MemoryRecord) error {
	if err := validate(memory); err != nil {
		return err
	}

	tagsJSON, err := marshalStrings(memory.Tags)
	if err != nil {
		return err
	}
	contextsJSON, err := marshalStrings(memory.Contexts)
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
	fromJSON, err := marshalStrings(memory.ConsolidatedFrom)
	if err != nil {
		return err
	}
	conflictJSON, err := marshalStrings(memory.ConflictIDs)
	if err != nil {
		return err
	}
	sharedJSON, err := marshalStrings(memory.SharedWith)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE memories SET
			content = ?, memory_type = ?, category = ?, embedding = ?,
			importance = ?, confidence = ?, relevance_score = ?,
			access_count = ?, last_accessed = ?, last_reinforced = ?,
			tags = ?, contexts = ?, time_context = ?, location_context = ?,
			status = ?, verified_at = ?, verification_history = ?,
			expiration_type = ?, expires_at = ?,
			relationships = ?, superseded_by = ?,
			is_consolidated = ?, consolidation_count = ?, consolidated_from = ?,
			conflict_detected = ?, conflict_ids = ?, last_conflict_check = ?,
			is_private = ?, shared_with = ?,
			updated_at = ?
		WHERE user_id = ? AND id = ?`,
		memory.Content, string(memory.MemoryType), nullString(memory.Category), encodeEmbedding(memory.Embedding),
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
		return fmt.Errorf("sqlite: failed to update memory: %w", err)
	}
	return requireRow(result)
}

// Delete permanently removes a memory.
func (s *MemoryStore) Delete(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete memory: %w", err)
	}
	return requireRow(result)
}

// DeleteMany removes a set of memories, skipping missing IDs.
func (s *MemoryStore) DeleteMany(ctx context.Context, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE user_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to delete memories: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to read rows affected: %w", err)
	}
	return int(affected), nil
}

// List retrieves memories with pagination and filtering.
func (s *MemoryStore) List(ctx context.Context, userID string, opts storage.ListOptions) (*storage.PaginatedResult[types.MemoryRecord], error) {
	opts.Normalize()

	where := []string{"user_id = ?"}
	args := []interface{}{userID}

	if opts.MemoryType != "" {
		where = append(where, "memory_type = ?")
		args = append(args, string(opts.MemoryType))
	}
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(opts.Status))
	}
	if opts.Category != "" {
		where = append(where, "category = ?")
		args = append(args, opts.Category)
	}
	if opts.Context != "" {
		// Contexts are stored as a JSON array of strings.
		where = append(where, "contexts LIKE ?")
		args = append(args, `%"`+opts.Context+`"%`)
	}
	if len(opts.Tags) > 0 {
		tagClauses := make([]string, len(opts.Tags))
		for i, tag := range opts.Tags {
			tagClauses[i] = "tags LIKE ?"
			args = append(args, `%"`+tag+`"%`)
		}
		where = append(where, "("+strings.Join(tagClauses, " OR ")+")")
	}
	if opts.Query != "" {
		// LIKE is case-insensitive for ASCII in sqlite.
		where = append(where, "content LIKE ?")
		args = append(args, "%"+opts.Query+"%")
	}
	if opts.MinImportance > 0 {
		where = append(where, "importance >= ?")
		args = append(args, opts.MinImportance)
	}
	if opts.MinConfidence > 0 {
		where = append(where, "confidence >= ?")
		args = append(args, opts.MinConfidence)
	}
	if !opts.CreatedAfter.IsZero() {
		where = append(where, "created_at > ?")
		args = append(args, opts.CreatedAfter)
	}
	if !opts.CreatedBefore.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, opts.CreatedBefore)
	}
	if !opts.IncludeSuperseded {
		where = append(where, "(superseded_by IS NULL OR superseded_by = '')")
	}
	if opts.MinRelevance > 0 {
		where = append(where, "relevance_score >= ?")
		args = append(args, opts.MinRelevance)
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE `+whereClause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: failed to count memories: %w", err)
	}

	// SortBy is whitelist-validated by Normalize, safe to interpolate.
	query := fmt.Sprintf(`SELECT %s FROM memories WHERE %s ORDER BY %s %s LIMIT ? OFFSET ?`,
		memoryColumns, whereClause, opts.SortBy, strings.ToUpper(opts.SortOrder))
	args = append(args, opts.Limit, opts.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list memories: %w", err)
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
		`SELECT `+memoryColumns+` FROM memories WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load memories: %w", err)
	}
	defer rows.Close()
	return collectMemories(rows)
}

// CountForUser returns the number of non-superseded memories.
func (s *MemoryStore) CountForUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE user_id = ? AND (superseded_by IS NULL OR superseded_by = '')`,
		userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to count memories: %w", err)
	}
	return count, nil
}

// FindByContent returns memories whose content exactly equals content.
func (s *MemoryStore) FindByContent(ctx context.Context, userID, content string) ([]*types.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE user_id = ? AND content = ?`, userID, content)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to find memories by content: %w", err)
	}
	defer rows.Close()
	return collectMemories(rows)
}

// RecordAccess atomically increments access_count and sets last_accessed.
func (s *MemoryStore) RecordAccess(ctx context.Context, userID, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE memories SET access_count = access_count + 1, last_accessed = ?, updated_at = ?
		WHERE user_id = ? AND id = ?`, at, at, userID, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to record access: %w", err)
	}
	return requireRow(result)
}

// Reinforce bumps relevance and records an access in one statement.
func (s *MemoryStore) Reinforce(ctx context.Context, userID, id string, relevance float64, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE memories SET relevance_score = ?, access_count = access_count + 1,
			last_accessed = ?, last_reinforced = ?, updated_at = ?
		WHERE user_id = ? AND id = ?`, relevance, at, at, at, userID, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to reinforce memory: %w", err)
	}
	return requireRow(result)
}

// AppendRelationship adds an edge to a memory's relationship list.
func (s *MemoryStore) AppendRelationship(ctx context.Context, userID, id string, rel types.Relationship) error {
	return s.withMemory(ctx, userID, id, func(m *types.MemoryRecord) {
		m.Relationships = append(m.Relationships, rel)
	})
}

// ApplyVerification applies a verification outcome and appends its history
// entry in one transaction.
func (s *MemoryStore) ApplyVerification(ctx context.Context, userID, id string, update storage.VerificationUpdate) error {
	return s.withMemory(ctx, userID, id, func(m *types.MemoryRecord) {
		m.Status = update.Status
		m.Confidence = update.Confidence
		m.RelevanceScore = update.RelevanceScore
		verifiedAt := update.VerifiedAt
		m.VerifiedAt = &verifiedAt
		if update.Content != "" {
			m.Content = update.Content
			m.Embedding = update.Embedding
		}
		m.VerificationHistory = append(m.VerificationHistory, update.Entry)
		m.UpdatedAt = update.VerifiedAt
	})
}

// FlagConflict marks both memories as conflicting with each other.
func (s *MemoryStore) FlagConflict(ctx context.Context, userID, idA, idB string, at time.Time) error {
	if err := s.withMemory(ctx, userID, idA, func(m *types.MemoryRecord) {
		flagConflict(m, idB, at)
	}); err != nil {
		return err
	}
	return s.withMemory(ctx, userID, idB, func(m *types.MemoryRecord) {
		flagConflict(m, idA, at)
	})
}

// MarkSuperseded points a memory at its consolidated replacement.
func (s *MemoryStore) MarkSuperseded(ctx context.Context, userID, id, supersededBy string, relevance float64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE memories SET superseded_by = ?, relevance_score = ?, updated_at = ?
		WHERE user_id = ? AND id = ?`, supersededBy, relevance, time.Now().UTC(), userID, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to mark memory superseded: %w", err)
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
		SELECT memory_type, status, superseded_by, conflict_detected, is_private, COUNT(*)
		FROM memories WHERE user_id = ?
		GROUP BY memory_type, status, superseded_by, conflict_detected, is_private`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to summarize memories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			memType, status string
			supersededBy    sql.NullString
			conflict        bool
			private         bool
			count           int
		)
		if err := rows.Scan(&memType, &status, &supersededBy, &conflict, &private, &count); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan summary row: %w", err)
		}

		stats.Total += count
		stats.ByType[types.MemoryType(memType)] += count
		stats.ByStatus[types.MemoryStatus(status)] += count
		if supersededBy.Valid && supersededBy.String != "" {
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
		return nil, fmt.Errorf("sqlite: summary iteration failed: %w", err)
	}

	return stats, nil
}

// Close releases the database handle.
func (s *MemoryStore) Close() error {
	return s.db.Close()
}

// withMemory runs a read-modify-write cycle on a single record inside a
// transaction. The single-connection pool makes this serializable.
func (s *MemoryStore) withMemory(ctx context.Context, userID, id string, fn func(*types.MemoryRecord)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE user_id = ? AND id = ?`, userID, id)
	memory, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("sqlite: failed to load memory: %w", err)
	}

	fn(memory)

	historyJSON, err := marshalJSON(memory.VerificationHistory)
	if err != nil {
		return err
	}
	relsJSON, err := marshalJSON(memory.Relationships)
	if err != nil {
		return err
	}
	conflictJSON, err := marshalStrings(memory.ConflictIDs)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE memories SET
			content = ?, embedding = ?, status = ?, confidence = ?, relevance_score = ?,
			verified_at = ?, verification_history = ?, relationships = ?,
			conflict_detected = ?, conflict_ids = ?, last_conflict_check = ?, updated_at = ?
		WHERE user_id = ? AND id = ?`,
		memory.Content, encodeEmbedding(memory.Embedding), string(memory.Status),
		memory.Confidence, memory.RelevanceScore,
		nullTime(memory.VerifiedAt), historyJSON, relsJSON,
		memory.ConflictDetected, conflictJSON, nullTime(memory.LastConflictCheck), memory.UpdatedAt,
		userID, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update memory: %w", err)
	}

	return tx.Commit()
}

func flagConflict(m *types.MemoryRecord, otherID string, at time.Time) {
	m.ConflictDetected = true
	for _, existing := range m.ConflictIDs {
		if existing == otherID {
			m.LastConflictCheck = &at
			m.UpdatedAt = at
			return
		}
	}
	m.ConflictIDs = append(m.ConflictIDs, otherID)
	m.LastConflictCheck = &at
	m.UpdatedAt = at
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
		return fmt.Errorf("sqlite: failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func insertArgs(memory *types.MemoryRecord) ([]interface{}, error) {
	tagsJSON, err := marshalStrings(memory.Tags)
	if err != nil {
		return nil, err
	}
	contextsJSON, err := marshalStrings(memory.Contexts)
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
	fromJSON, err := marshalStrings(memory.ConsolidatedFrom)
	if err != nil {
		return nil, err
	}
	conflictJSON, err := marshalStrings(memory.ConflictIDs)
	if err != nil {
		return nil, err
	}
	sharedJSON, err := marshalStrings(memory.SharedWith)
	if err != nil {
		return nil, err
	}

	return []interface{}{
		memory.ID, memory.UserID, memory.Content, string(memory.MemoryType), nullString(memory.Category),
		encodeEmbedding(memory.Embedding),
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
		embedding                                []byte
		lastAccessed, lastReinforced             sql.NullTime
		verifiedAt, expiresAt, lastConflict      sql.NullTime
		tagsJSON, contextsJSON, historyJSON      sql.NullString
		relsJSON, fromJSON, conflictJSON         sql.NullString
		sharedJSON                               sql.NullString
	)

	err := row.Scan(
		&m.ID, &m.UserID, &m.Content, &memType, &category, &embedding,
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
	m.Embedding = decodeEmbedding(embedding)
	m.LastAccessed = timePtr(lastAccessed)
	m.LastReinforced = timePtr(lastReinforced)
	m.VerifiedAt = timePtr(verifiedAt)
	m.ExpiresAt = timePtr(expiresAt)
	m.LastConflictCheck = timePtr(lastConflict)

	if err := unmarshalStrings(tagsJSON, &m.Tags); err != nil {
		return nil, err
	}
	if err := unmarshalStrings(contextsJSON, &m.Contexts); err != nil {
		return nil, err
	}
	if err := unmarshalInto(historyJSON, &m.VerificationHistory); err != nil {
		return nil, err
	}
	if err := unmarshalInto(relsJSON, &m.Relationships); err != nil {
		return nil, err
	}
	if err := unmarshalStrings(fromJSON, &m.ConsolidatedFrom); err != nil {
		return nil, err
	}
	if err := unmarshalStrings(conflictJSON, &m.ConflictIDs); err != nil {
		return nil, err
	}
	if err := unmarshalStrings(sharedJSON, &m.SharedWith); err != nil {
		return nil, err
	}

	return &m, nil
}

func collectMemories(rows *sql.Rows) ([]*types.MemoryRecord, error) {
	var memories []*types.MemoryRecord
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan memory: %w", err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: row iteration failed: %w", err)
	}
	return memories, nil
}

// encodeEmbedding packs a float32 vector as little-endian bytes for BLOB
// storage. Nil or empty vectors encode as NULL.
func encodeEmbedding(vec []float32) interface{} {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

func marshalStrings(values []string) (interface{}, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to marshal strings: %w", err)
	}
	return string(data), nil
}

func marshalJSON(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to marshal value: %w", err)
	}
	if string(data) == "null" {
		return nil, nil
	}
	return string(data), nil
}

func unmarshalStrings(src sql.NullString, dst *[]string) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(src.String), dst); err != nil {
		return fmt.Errorf("sqlite: failed to unmarshal strings: %w", err)
	}
	return nil
}

func unmarshalInto(src sql.NullString, dst interface{}) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(src.String), dst); err != nil {
		return fmt.Errorf("sqlite: failed to unmarshal value: %w", err)
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
