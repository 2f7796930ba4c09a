package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a row does not exist or is not owned by
	// the requesting user. Callers cannot tell the two apart.
	ErrNotFound = errors.New("not found")

	// ErrUsernameTaken is returned by CreateUser on a duplicate username.
	ErrUsernameTaken = errors.New("username already registered")
)

// User is a registered account.
type User struct {
	ID             int64
	Username       string
	HashedPassword string
	PINHash        string // bcrypt hash of the edit PIN, empty when unset
	CreatedAt      time.Time
}

// HasPIN reports whether edits by this user are PIN-gated.
func (u *User) HasPIN() bool {
	return u.PINHash != ""
}

// Image is a picture attached to a memory, uploaded or linked by URL.
type Image struct {
	ID       int64
	URL      string
	MemoryID int64
}

// Memory is a journal entry owned by a single user.
type Memory struct {
	ID        int64
	Title     string
	Note      *string
	CreatedAt time.Time
	OwnerID   int64
	Images    []Image
}

// MemoryUpdate carries a partial update. Nil fields are left untouched;
// ImageURLs are appended to the existing images.
type MemoryUpdate struct {
	Title     *string
	Note      *string
	ImageURLs []string
}

// Snapshot is a full copy of a database, used to move data between drivers.
type Snapshot struct {
	Users    []User
	Memories []Memory // with Images populated

	// Skipped counts legacy rows that cannot be carried over: users without
	// a username, memories without an owner, images without a memory or URL.
	Skipped int
}

// ImageCount returns the number of images across all memories.
func (s *Snapshot) ImageCount() int {
	n := 0
	for _, m := range s.Memories {
		n += len(m.Images)
	}
	return n
}

// Store is the persistence contract the HTTP layer depends on. Both the
// SQLite DB and the Postgres pgstore implement it.
type Store interface {
	CreateUser(ctx context.Context, username, hashedPassword string) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	SetPINHash(ctx context.Context, userID int64, pinHash string) error

	CreateMemory(ctx context.Context, ownerID int64, title string, note *string, imageURLs []string) (*Memory, error)
	GetMemory(ctx context.Context, ownerID, memoryID int64) (*Memory, error)
	ListMemories(ctx context.Context, ownerID int64, skip, limit int) ([]Memory, error)
	UpdateMemory(ctx context.Context, ownerID, memoryID int64, upd MemoryUpdate) (*Memory, error)
	DeleteMemory(ctx context.Context, ownerID, memoryID int64) error
	DeleteImage(ctx context.Context, ownerID, imageID int64) error
	ImageURLs(ctx context.Context) ([]string, error)

	Ping(ctx context.Context) error
	Driver() string
	Close() error
}

// CleanURLs trims each URL and drops empties.
func CleanURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
