package pgstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/lazypower/memkeeper/internal/store"
)

func testSnapshot() *store.Snapshot {
	note := "n"
	return &store.Snapshot{
		Users: []store.User{
			{ID: 1, Username: "ann", HashedPassword: "h1", CreatedAt: time.Now()},
			{ID: 2, Username: "bob", HashedPassword: "h2"},
		},
		Memories: []store.Memory{
			{ID: 1, Title: "a", Note: &note, OwnerID: 1, CreatedAt: time.Now(), Images: []store.Image{
				{ID: 1, URL: "u1", MemoryID: 1},
				{ID: 2, URL: "u2", MemoryID: 1},
			}},
			{ID: 2, Title: "b", OwnerID: 2},
		},
	}
}

func expectSequenceReset(mock pgxmock.PgxPoolIface) {
	for range sequenceTables {
		mock.ExpectExec("SELECT setval").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	}
}

// TestImport verifies rows are inserted with their ids, conflicts are
// counted as skipped, and sequences are reset before commit.
func TestImport(t *testing.T) {
	mock, s := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").
		WithArgs(int64(1), "ann", "h1", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO users").
		WithArgs(int64(2), "bob", "h2", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0)) // already present
	mock.ExpectExec("INSERT INTO memories").
		WithArgs(int64(1), "a", pgxmock.AnyArg(), pgxmock.AnyArg(), int64(1)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO memories").
		WithArgs(int64(2), "b", pgxmock.AnyArg(), pgxmock.AnyArg(), int64(2)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO memory_images").
		WithArgs(int64(1), "u1", int64(1)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO memory_images").
		WithArgs(int64(2), "u2", int64(1)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectSequenceReset(mock)
	mock.ExpectCommit()

	stats, err := s.Import(context.Background(), testSnapshot())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if stats.Users != 1 || stats.Memories != 2 || stats.Images != 2 {
		t.Errorf("stats = %+v, want {1 2 2}", stats)
	}
	verify(t, mock)
}

// TestImport_RollsBack verifies a failed insert aborts the whole import.
func TestImport_RollsBack(t *testing.T) {
	mock, s := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").
		WithArgs(int64(1), "ann", "h1", "", pgxmock.AnyArg()).
		WillReturnError(fmt.Errorf("connection reset"))
	mock.ExpectRollback()

	if _, err := s.Import(context.Background(), testSnapshot()); err == nil {
		t.Fatal("expected error, got nil")
	}
	verify(t, mock)
}

func TestResetSequences(t *testing.T) {
	mock, s := newMock(t)

	mock.ExpectBegin()
	expectSequenceReset(mock)
	mock.ExpectCommit()

	if err := s.ResetSequences(context.Background()); err != nil {
		t.Fatalf("ResetSequences: %v", err)
	}
	verify(t, mock)
}

func TestNullTime(t *testing.T) {
	if nullTime(time.Time{}) != nil {
		t.Error("zero time should map to nil")
	}
	now := time.Now()
	if got := nullTime(now); got == nil || !got.Equal(now) {
		t.Errorf("nullTime(now) = %v, want %v", got, now)
	}
}
