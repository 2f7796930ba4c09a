package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

// SQLAlchemy's create_all output for the previous backend's models.
const legacySchema = `
CREATE TABLE users (
	id INTEGER NOT NULL,
	username VARCHAR,
	hashed_password VARCHAR,
	PRIMARY KEY (id)
);
CREATE UNIQUE INDEX ix_users_username ON users (username);
CREATE TABLE memories (
	id INTEGER NOT NULL,
	title VARCHAR,
	note TEXT,
	created_at DATETIME,
	owner_id INTEGER,
	PRIMARY KEY (id),
	FOREIGN KEY(owner_id) REFERENCES users (id)
);
CREATE TABLE memory_images (
	id INTEGER NOT NULL,
	url VARCHAR,
	memory_id INTEGER,
	PRIMARY KEY (id),
	FOREIGN KEY(memory_id) REFERENCES memories (id)
);
INSERT INTO users (id, username, hashed_password) VALUES
	(1, 'ann', '$2b$12$hash'),
	(2, NULL, NULL),
	(5, 'bob', '$2b$12$other');
INSERT INTO memories (id, title, note, created_at, owner_id) VALUES
	(1, 'Beach', 'sunny', '2024-03-01 12:30:45.123456', 1),
	(2, NULL, NULL, NULL, 5),
	(3, 'Orphan', NULL, '2024-03-02 08:00:00', NULL),
	(4, 'Hike', '', '2024-03-03T09:15:00', 5);
INSERT INTO memory_images (id, url, memory_id) VALUES
	(1, 'https://res.cloudinary.com/demo/a.jpg', 1),
	(2, 'https://res.cloudinary.com/demo/b.jpg', 1),
	(3, NULL, 4),
	(4, 'https://res.cloudinary.com/demo/c.jpg', 3),
	(7, 'https://res.cloudinary.com/demo/d.jpg', 4);
`

func legacyFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sql_app.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(legacySchema); err != nil {
		t.Fatalf("seed legacy schema: %v", err)
	}
	return path
}

func TestExportFileLegacy(t *testing.T) {
	path := legacyFile(t)

	snap, err := ExportFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ExportFile: %v", err)
	}

	if len(snap.Users) != 2 {
		t.Fatalf("users = %d, want 2", len(snap.Users))
	}
	if snap.Users[0].Username != "ann" || snap.Users[0].HashedPassword != "$2b$12$hash" {
		t.Errorf("user 1 = %+v", snap.Users[0])
	}
	if snap.Users[1].ID != 5 || !snap.Users[1].CreatedAt.IsZero() {
		t.Errorf("user 5 = %+v", snap.Users[1])
	}

	if len(snap.Memories) != 3 {
		t.Fatalf("memories = %d, want 3", len(snap.Memories))
	}
	beach, untitled, hike := snap.Memories[0], snap.Memories[1], snap.Memories[2]

	want := time.Date(2024, 3, 1, 12, 30, 45, 123456000, time.UTC)
	if !beach.CreatedAt.Equal(want) {
		t.Errorf("beach created_at = %v, want %v", beach.CreatedAt, want)
	}
	if beach.Note == nil || *beach.Note != "sunny" {
		t.Errorf("beach note = %v", beach.Note)
	}
	if len(beach.Images) != 2 || beach.Images[1].ID != 2 {
		t.Errorf("beach images = %+v", beach.Images)
	}

	if untitled.ID != 2 || untitled.Title != "Untitled" || untitled.Note != nil {
		t.Errorf("memory 2 = %+v", untitled)
	}
	if !untitled.CreatedAt.IsZero() {
		t.Errorf("NULL created_at = %v, want zero", untitled.CreatedAt)
	}

	if !hike.CreatedAt.Equal(time.Date(2024, 3, 3, 9, 15, 0, 0, time.UTC)) {
		t.Errorf("hike created_at = %v", hike.CreatedAt)
	}
	if len(hike.Images) != 1 || hike.Images[0].ID != 7 {
		t.Errorf("hike images = %+v", hike.Images)
	}

	// user 2, memory 3, images 3 and 4
	if snap.Skipped != 4 {
		t.Errorf("Skipped = %d, want 4", snap.Skipped)
	}
}

func TestExportFileLeavesLegacySchema(t *testing.T) {
	path := legacyFile(t)

	if _, err := ExportFile(context.Background(), path); err != nil {
		t.Fatalf("ExportFile: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'schema_versions'`).Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 0 {
		t.Error("schema_versions created in legacy source")
	}
}

func TestExportFileCurrentSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memkeeper.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	u, err := db.CreateUser(ctx, "ann", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := db.CreateMemory(ctx, u.ID, "Beach", nil, []string{"/uploads/a.png"}); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	db.Close()

	snap, err := ExportFile(ctx, path)
	if err != nil {
		t.Fatalf("ExportFile: %v", err)
	}
	if len(snap.Users) != 1 || len(snap.Memories) != 1 || snap.ImageCount() != 1 {
		t.Errorf("snapshot = %d users, %d memories, %d images",
			len(snap.Users), len(snap.Memories), snap.ImageCount())
	}
	if snap.Skipped != 0 {
		t.Errorf("Skipped = %d, want 0", snap.Skipped)
	}
}

func TestExportFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.db")
	if _, err := ExportFile(context.Background(), path); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestLegacyTime(t *testing.T) {
	cases := []struct {
		in   any
		want time.Time
	}{
		{"2024-03-01 12:30:45", time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)},
		{[]byte("2024-03-01 12:30:45.5"), time.Date(2024, 3, 1, 12, 30, 45, 500000000, time.UTC)},
		{"2024-03-01T12:30:45Z", time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)},
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"garbage", time.Time{}},
		{nil, time.Time{}},
	}
	for _, tc := range cases {
		if got := legacyTime(tc.in); !got.Equal(tc.want) {
			t.Errorf("legacyTime(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
