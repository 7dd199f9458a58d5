package sqlite

// Schema creates the memories table and its indexes. Applied on every
// open; all statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	content TEXT NOT NULL,
	memory_type TEXT NOT NULL DEFAULT 'fact',
	category TEXT,
	embedding BLOB,
	importance REAL NOT NULL DEFAULT 0.5,
	confidence REAL NOT NULL DEFAULT 0.8,
	relevance_score REAL NOT NULL DEFAULT 1.0,
	access_count INTEGER NOT NULL DEFAULT 0,
	last_accessed TIMESTAMP,
	last_reinforced TIMESTAMP,
	tags TEXT,
	contexts TEXT,
	time_context TEXT,
	location_context TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	verified_at TIMESTAMP,
	verification_history TEXT,
	source_session_id TEXT,
	source_message_id TEXT,
	extraction_method TEXT NOT NULL DEFAULT 'manual',
	expiration_type TEXT NOT NULL DEFAULT 'permanent',
	expires_at TIMESTAMP,
	relationships TEXT,
	superseded_by TEXT,
	is_consolidated INTEGER NOT NULL DEFAULT 0,
	consolidation_count INTEGER NOT NULL DEFAULT 0,
	consolidated_from TEXT,
	conflict_detected INTEGER NOT NULL DEFAULT 0,
	conflict_ids TEXT,
	last_conflict_check TIMESTAMP,
	is_private INTEGER NOT NULL DEFAULT 0,
	shared_with TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
CREATE INDEX IF NOT EXISTS idx_memories_user_status ON memories(user_id, status);
CREATE INDEX IF NOT EXISTS idx_memories_user_type ON memories(user_id, memory_type);
CREATE INDEX IF NOT EXISTS idx_memories_user_superseded ON memories(user_id, superseded_by);
CREATE INDEX IF NOT EXISTS idx_memories_user_content ON memories(user_id, content);
`
