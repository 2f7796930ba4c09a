package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxListLimit caps a single page of ListMemories.
const MaxListLimit = 100

// ClampPage normalizes skip/limit query values.
func ClampPage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	return skip, limit
}

// CreateMemory inserts a memory and its images in one transaction.
func (db *DB) CreateMemory(ctx context.Context, ownerID int64, title string, note *string, imageURLs []string) (*Memory, error) {
	now := time.Now().UTC()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create memory: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO memories (title, note, created_at, owner_id)
		VALUES (?, ?, ?, ?)
	`, title, note, now.UnixMilli(), ownerID)
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}
	id, _ := result.LastInsertId()

	images, err := insertImages(ctx, tx, id, imageURLs)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create memory: %w", err)
	}

	return &Memory{
		ID:        id,
		Title:     title,
		Note:      note,
		CreatedAt: time.UnixMilli(now.UnixMilli()).UTC(),
		OwnerID:   ownerID,
		Images:    images,
	}, nil
}

func insertImages(ctx context.Context, tx *sql.Tx, memoryID int64, urls []string) ([]Image, error) {
	images := make([]Image, 0, len(urls))
	for _, u := range CleanURLs(urls) {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO memory_images (url, memory_id) VALUES (?, ?)`, u, memoryID)
		if err != nil {
			return nil, fmt.Errorf("insert image: %w", err)
		}
		id, _ := result.LastInsertId()
		images = append(images, Image{ID: id, URL: u, MemoryID: memoryID})
	}
	return images, nil
}

func scanMemory(row interface{ Scan(...any) error }) (*Memory, error) {
	var m Memory
	var note sql.NullString
	var createdAt int64
	if err := row.Scan(&m.ID, &m.Title, &note, &createdAt, &m.OwnerID); err != nil {
		return nil, err
	}
	if note.Valid {
		m.Note = &note.String
	}
	m.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &m, nil
}

// GetMemory returns a memory with its images if it is owned by ownerID.
func (db *DB) GetMemory(ctx context.Context, ownerID, memoryID int64) (*Memory, error) {
	m, err := scanMemory(db.QueryRowContext(ctx, `
		SELECT id, title, note, created_at, owner_id
		FROM memories WHERE id = ? AND owner_id = ?
	`, memoryID, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}

	memories := []Memory{*m}
	if err := db.attachImages(ctx, memories); err != nil {
		return nil, err
	}
	return &memories[0], nil
}

// ListMemories returns a page of the owner's memories, newest first.
func (db *DB) ListMemories(ctx context.Context, ownerID int64, skip, limit int) ([]Memory, error) {
	skip, limit = ClampPage(skip, limit)

	rows, err := db.QueryContext(ctx, `
		SELECT id, title, note, created_at, owner_id
		FROM memories WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, ownerID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	memories := []Memory{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := db.attachImages(ctx, memories); err != nil {
		return nil, err
	}
	return memories, nil
}

// attachImages loads images for all given memories in a single query.
func (db *DB) attachImages(ctx context.Context, memories []Memory) error {
	if len(memories) == 0 {
		return nil
	}

	index := make(map[int64]int, len(memories))
	args := make([]any, len(memories))
	for i := range memories {
		memories[i].Images = []Image{}
		index[memories[i].ID] = i
		args[i] = memories[i].ID
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(memories)), ",")
	rows, err := db.QueryContext(ctx, `
		SELECT id, url, memory_id FROM memory_images
		WHERE memory_id IN (`+placeholders+`) ORDER BY id
	`, args...)
	if err != nil {
		return fmt.Errorf("load images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.ID, &img.URL, &img.MemoryID); err != nil {
			return fmt.Errorf("scan image: %w", err)
		}
		i := index[img.MemoryID]
		memories[i].Images = append(memories[i].Images, img)
	}
	return rows.Err()
}

// UpdateMemory applies a partial update and appends images.
func (db *DB) UpdateMemory(ctx context.Context, ownerID, memoryID int64, upd MemoryUpdate) (*Memory, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update memory: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE id = ? AND owner_id = ?`, memoryID, ownerID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check memory: %w", err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	if upd.Title != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE memories SET title = ? WHERE id = ?`, *upd.Title, memoryID); err != nil {
			return nil, fmt.Errorf("update title: %w", err)
		}
	}
	if upd.Note != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE memories SET note = ? WHERE id = ?`, *upd.Note, memoryID); err != nil {
			return nil, fmt.Errorf("update note: %w", err)
		}
	}
	if _, err := insertImages(ctx, tx, memoryID, upd.ImageURLs); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update memory: %w", err)
	}
	return db.GetMemory(ctx, ownerID, memoryID)
}

// DeleteMemory removes a memory; its images cascade.
func (db *DB) DeleteMemory(ctx context.Context, ownerID, memoryID int64) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM memories WHERE id = ? AND owner_id = ?`, memoryID, ownerID)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteImage removes a single image if its memory is owned by ownerID.
func (db *DB) DeleteImage(ctx context.Context, ownerID, imageID int64) error {
	result, err := db.ExecContext(ctx, `
		DELETE FROM memory_images
		WHERE id = ? AND memory_id IN (SELECT id FROM memories WHERE owner_id = ?)
	`, imageID, ownerID)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ImageURLs returns every stored image URL.
func (db *DB) ImageURLs(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT url FROM memory_images`)
	if err != nil {
		return nil, fmt.Errorf("list image urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan image url: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// Export reads the whole database into a Snapshot.
func (db *DB) Export(ctx context.Context) (*Snapshot, error) {
	users, err := db.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, title, note, created_at, owner_id FROM memories ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("export memories: %w", err)
	}
	defer rows.Close()

	var memories []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	// Batch to stay under SQLite's bound-parameter limit.
	const batch = 500
	for start := 0; start < len(memories); start += batch {
		end := min(start+batch, len(memories))
		if err := db.attachImages(ctx, memories[start:end]); err != nil {
			return nil, err
		}
	}

	return &Snapshot{Users: users, Memories: memories}, nil
}
