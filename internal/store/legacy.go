package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"
)

// ExportFile reads the SQLite file at path into a Snapshot.
//
// Files written by memkeeper carry a schema_versions table and are opened
// with Open. Anything else is read as the previous backend's layout
// (SQLAlchemy tables, DATETIME text timestamps, nullable columns) without
// touching its schema.
func ExportFile(ctx context.Context, path string) (*Snapshot, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("source database: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	defer sqlDB.Close()

	var versioned int
	err = sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_versions'`).Scan(&versioned)
	if err != nil {
		return nil, fmt.Errorf("inspect source: %w", err)
	}

	if versioned > 0 {
		sqlDB.Close()
		db, err := Open(path)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return db.Export(ctx)
	}
	return exportLegacy(ctx, sqlDB)
}

func exportLegacy(ctx context.Context, db *sql.DB) (*Snapshot, error) {
	snap := &Snapshot{}

	rows, err := db.QueryContext(ctx, `SELECT id, username, hashed_password FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("legacy users: %w", err)
	}
	owners := make(map[int64]bool)
	for rows.Next() {
		var u User
		var name, hash sql.NullString
		if err := rows.Scan(&u.ID, &name, &hash); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan legacy user: %w", err)
		}
		if strings.TrimSpace(name.String) == "" {
			snap.Skipped++
			continue
		}
		u.Username, u.HashedPassword = name.String, hash.String
		owners[u.ID] = true
		snap.Users = append(snap.Users, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("legacy users: %w", err)
	}

	rows, err = db.QueryContext(ctx, `SELECT id, title, note, created_at, owner_id FROM memories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("legacy memories: %w", err)
	}
	index := make(map[int64]int)
	for rows.Next() {
		var m Memory
		var title, note sql.NullString
		var created any
		var owner sql.NullInt64
		if err := rows.Scan(&m.ID, &title, &note, &created, &owner); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan legacy memory: %w", err)
		}
		if !owner.Valid || !owners[owner.Int64] {
			snap.Skipped++
			continue
		}
		m.OwnerID = owner.Int64
		m.Title = strings.TrimSpace(title.String)
		if m.Title == "" {
			m.Title = "Untitled"
		}
		if note.Valid {
			m.Note = &note.String
		}
		m.CreatedAt = legacyTime(created)
		m.Images = []Image{}
		index[m.ID] = len(snap.Memories)
		snap.Memories = append(snap.Memories, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("legacy memories: %w", err)
	}

	rows, err = db.QueryContext(ctx, `SELECT id, url, memory_id FROM memory_images ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("legacy images: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var img Image
		var url sql.NullString
		var memoryID sql.NullInt64
		if err := rows.Scan(&img.ID, &url, &memoryID); err != nil {
			return nil, fmt.Errorf("scan legacy image: %w", err)
		}
		i, ok := index[memoryID.Int64]
		img.URL = strings.TrimSpace(url.String)
		if !memoryID.Valid || !ok || img.URL == "" {
			snap.Skipped++
			continue
		}
		img.MemoryID = memoryID.Int64
		snap.Memories[i].Images = append(snap.Memories[i].Images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("legacy images: %w", err)
	}
	return snap, nil
}

// legacyTimeLayouts covers what SQLAlchemy writes for a naive UTC DATETIME.
var legacyTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02",
}

// legacyTime converts a DATETIME cell to UTC. NULL and unparseable values
// yield the zero time, which the Postgres import replaces with NOW().
func legacyTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case int64:
		return time.Unix(t, 0).UTC()
	case []byte:
		return parseLegacyTime(string(t))
	case string:
		return parseLegacyTime(t)
	default:
		return time.Time{}
	}
}

func parseLegacyTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range legacyTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
