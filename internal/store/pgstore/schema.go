package pgstore

import (
	"context"
	"fmt"
)

// schema mirrors the SQLite migrations. created_at carries a server default
// so rows imported without a timestamp still get one.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id              BIGSERIAL PRIMARY KEY,
    username        TEXT NOT NULL UNIQUE CHECK (length(username) > 0),
    hashed_password TEXT NOT NULL,
    pin_hash        TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS memories (
    id         BIGSERIAL PRIMARY KEY,
    title      TEXT NOT NULL CHECK (length(title) > 0),
    note       TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    owner_id   BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE
)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_owner_created ON memories (owner_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS memory_images (
    id        BIGSERIAL PRIMARY KEY,
    url       TEXT NOT NULL CHECK (length(url) > 0),
    memory_id BIGINT NOT NULL REFERENCES memories(id) ON DELETE CASCADE
)`,
	`CREATE INDEX IF NOT EXISTS idx_images_memory ON memory_images (memory_id)`,
	// Databases created by older deployments lack these.
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS pin_hash TEXT NOT NULL DEFAULT ''`,
	`ALTER TABLE memories ALTER COLUMN created_at SET DEFAULT NOW()`,
}

// EnsureSchema creates tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgstore: schema step %d: %w", i+1, err)
		}
	}
	return nil
}
