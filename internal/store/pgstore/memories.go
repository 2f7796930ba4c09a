package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lazypower/memkeeper/internal/store"
)

const memoryColumns = `id, title, note, created_at, owner_id`

func scanMemory(row pgx.Row) (*store.Memory, error) {
	var m store.Memory
	if err := row.Scan(&m.ID, &m.Title, &m.Note, &m.CreatedAt, &m.OwnerID); err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func insertImages(ctx context.Context, tx pgx.Tx, memoryID int64, urls []string) ([]store.Image, error) {
	images := make([]store.Image, 0, len(urls))
	for _, u := range store.CleanURLs(urls) {
		img := store.Image{URL: u, MemoryID: memoryID}
		err := tx.QueryRow(ctx,
			`INSERT INTO memory_images (url, memory_id) VALUES ($1, $2) RETURNING id`,
			u, memoryID).Scan(&img.ID)
		if err != nil {
			return nil, fmt.Errorf("pgstore: insert image: %w", err)
		}
		images = append(images, img)
	}
	return images, nil
}

// CreateMemory inserts a memory and its images in one transaction.
func (s *Store) CreateMemory(ctx context.Context, ownerID int64, title string, note *string, imageURLs []string) (*store.Memory, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgstore: begin create memory: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	m := store.Memory{Title: title, Note: note, OwnerID: ownerID}
	err = tx.QueryRow(ctx, `
		INSERT INTO memories (title, note, owner_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`, title, note, ownerID).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("pgstore: insert memory: %w", err)
	}
	m.CreatedAt = m.CreatedAt.UTC()

	if m.Images, err = insertImages(ctx, tx, m.ID, imageURLs); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("pgstore: commit create memory: %w", err)
	}
	return &m, nil
}

// GetMemory returns a memory with its images if it is owned by ownerID.
func (s *Store) GetMemory(ctx context.Context, ownerID, memoryID int64) (*store.Memory, error) {
	m, err := scanMemory(s.db.QueryRow(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = $1 AND owner_id = $2`, memoryID, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get memory: %w", err)
	}

	memories := []store.Memory{*m}
	if err := s.attachImages(ctx, memories); err != nil {
		return nil, err
	}
	return &memories[0], nil
}

// ListMemories returns a page of the owner's memories, newest first.
func (s *Store) ListMemories(ctx context.Context, ownerID int64, skip, limit int) ([]store.Memory, error) {
	skip, limit = store.ClampPage(skip, limit)

	rows, err := s.db.Query(ctx, `
		SELECT `+memoryColumns+` FROM memories WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, ownerID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list memories: %w", err)
	}

	memories := []store.Memory{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("pgstore: scan memory: %w", err)
		}
		memories = append(memories, *m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: list memories: %w", err)
	}

	if err := s.attachImages(ctx, memories); err != nil {
		return nil, err
	}
	return memories, nil
}

func (s *Store) attachImages(ctx context.Context, memories []store.Memory) error {
	if len(memories) == 0 {
		return nil
	}

	index := make(map[int64]int, len(memories))
	ids := make([]int64, len(memories))
	for i := range memories {
		memories[i].Images = []store.Image{}
		index[memories[i].ID] = i
		ids[i] = memories[i].ID
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, url, memory_id FROM memory_images
		WHERE memory_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("pgstore: load images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var img store.Image
		if err := rows.Scan(&img.ID, &img.URL, &img.MemoryID); err != nil {
			return fmt.Errorf("pgstore: scan image: %w", err)
		}
		i := index[img.MemoryID]
		memories[i].Images = append(memories[i].Images, img)
	}
	return rows.Err()
}

// UpdateMemory applies a partial update and appends images.
func (s *Store) UpdateMemory(ctx context.Context, ownerID, memoryID int64, upd store.MemoryUpdate) (*store.Memory, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgstore: begin update memory: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	// COALESCE keeps the current value when a field is not being updated.
	tag, err := tx.Exec(ctx, `
		UPDATE memories SET title = COALESCE($1, title), note = COALESCE($2, note)
		WHERE id = $3 AND owner_id = $4`, upd.Title, upd.Note, memoryID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: update memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrNotFound
	}

	if _, err := insertImages(ctx, tx, memoryID, upd.ImageURLs); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("pgstore: commit update memory: %w", err)
	}
	return s.GetMemory(ctx, ownerID, memoryID)
}

// DeleteMemory removes a memory; its images cascade.
func (s *Store) DeleteMemory(ctx context.Context, ownerID, memoryID int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM memories WHERE id = $1 AND owner_id = $2`, memoryID, ownerID)
	if err != nil {
		return fmt.Errorf("pgstore: delete memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteImage removes a single image if its memory is owned by ownerID.
func (s *Store) DeleteImage(ctx context.Context, ownerID, imageID int64) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM memory_images i USING memories m
		WHERE i.id = $1 AND i.memory_id = m.id AND m.owner_id = $2`, imageID, ownerID)
	if err != nil {
		return fmt.Errorf("pgstore: delete image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ImageURLs returns every stored image URL.
func (s *Store) ImageURLs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT url FROM memory_images`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list image urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("pgstore: scan image url: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}
