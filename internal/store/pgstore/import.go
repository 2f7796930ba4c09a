package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lazypower/memkeeper/internal/store"
)

// sequenceTables lists the tables whose id sequences must follow imported ids.
var sequenceTables = []string{"users", "memories", "memory_images"}

// ImportStats counts rows actually inserted (conflicts are skipped).
type ImportStats struct {
	Users    int64
	Memories int64
	Images   int64
}

// Import copies a snapshot in one transaction, keeping row ids.
// Rows whose id already exists are left alone. Sequences are reset before
// commit so later inserts do not collide with imported ids.
func (s *Store) Import(ctx context.Context, snap *store.Snapshot) (ImportStats, error) {
	var stats ImportStats

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return stats, fmt.Errorf("pgstore: begin import: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	for _, u := range snap.Users {
		tag, err := tx.Exec(ctx, `
			INSERT INTO users (id, username, hashed_password, pin_hash, created_at)
			VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
			ON CONFLICT (id) DO NOTHING`,
			u.ID, u.Username, u.HashedPassword, u.PINHash, nullTime(u.CreatedAt))
		if err != nil {
			return stats, fmt.Errorf("pgstore: import user %d: %w", u.ID, err)
		}
		stats.Users += tag.RowsAffected()
	}

	for _, m := range snap.Memories {
		tag, err := tx.Exec(ctx, `
			INSERT INTO memories (id, title, note, created_at, owner_id)
			VALUES ($1, $2, $3, COALESCE($4, NOW()), $5)
			ON CONFLICT (id) DO NOTHING`,
			m.ID, m.Title, m.Note, nullTime(m.CreatedAt), m.OwnerID)
		if err != nil {
			return stats, fmt.Errorf("pgstore: import memory %d: %w", m.ID, err)
		}
		stats.Memories += tag.RowsAffected()
	}

	for _, m := range snap.Memories {
		for _, img := range m.Images {
			tag, err := tx.Exec(ctx, `
				INSERT INTO memory_images (id, url, memory_id)
				VALUES ($1, $2, $3)
				ON CONFLICT (id) DO NOTHING`,
				img.ID, img.URL, m.ID)
			if err != nil {
				return stats, fmt.Errorf("pgstore: import image %d: %w", img.ID, err)
			}
			stats.Images += tag.RowsAffected()
		}
	}

	if err := resetSequences(ctx, tx); err != nil {
		return stats, err
	}

	if err := tx.Commit(ctx); err != nil {
		return stats, fmt.Errorf("pgstore: commit import: %w", err)
	}
	return stats, nil
}

// ResetSequences points every id sequence just past the current max id.
func (s *Store) ResetSequences(ctx context.Context) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgstore: begin reset sequences: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := resetSequences(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgstore: commit reset sequences: %w", err)
	}
	return nil
}

func resetSequences(ctx context.Context, tx pgx.Tx) error {
	for _, table := range sequenceTables {
		ident := pgx.Identifier{table}.Sanitize()
		query := fmt.Sprintf(
			`SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE(MAX(id), 0) + 1, false) FROM %s`,
			table, ident)
		if _, err := tx.Exec(ctx, query); err != nil {
			return fmt.Errorf("pgstore: reset sequence for %s: %w", table, err)
		}
	}
	return nil
}
