package images

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLocal(t *testing.T, baseURL string, max int64) *Local {
	t.Helper()
	l, err := NewLocal(filepath.Join(t.TempDir(), "uploads"), baseURL, max)
	require.NoError(t, err)
	return l
}

func TestLocalSave(t *testing.T) {
	l := testLocal(t, "", 1<<20)
	data := pngBytes(1000)

	url, err := l.Save(context.Background(), "beach.PNG", bytes.NewReader(data))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/uploads/"), url)
	assert.True(t, strings.HasSuffix(url, ".png"), url)

	name := l.FileName(url)
	require.NotEmpty(t, name)
	got, err := os.ReadFile(filepath.Join(l.Dir(), name))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	entries, err := os.ReadDir(l.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be renamed, not left behind")
}

func TestLocalSave_UniqueNames(t *testing.T) {
	l := testLocal(t, "", 1<<20)
	a, err := l.Save(context.Background(), "a.png", bytes.NewReader(pngBytes(64)))
	require.NoError(t, err)
	b, err := l.Save(context.Background(), "a.png", bytes.NewReader(pngBytes(64)))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestLocalSave_BaseURL(t *testing.T) {
	l := testLocal(t, "https://memories.example.com/", 1<<20)
	url, err := l.Save(context.Background(), "a.png", bytes.NewReader(pngBytes(64)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://memories.example.com/uploads/"), url)
	assert.NotEmpty(t, l.FileName(url))
}

func TestLocalSave_Rejects(t *testing.T) {
	l := testLocal(t, "", 100)

	_, err := l.Save(context.Background(), "a.txt", strings.NewReader("just some text"))
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = l.Save(context.Background(), "big.png", bytes.NewReader(pngBytes(1000)))
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(l.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected uploads leave no files")
}

func TestLocalSave_Canceled(t *testing.T) {
	l := testLocal(t, "", 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Save(ctx, "a.png", bytes.NewReader(pngBytes(10)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalFileName(t *testing.T) {
	l := testLocal(t, "", 0)
	assert.Equal(t, "x.png", l.FileName("/uploads/x.png"))
	assert.Equal(t, "", l.FileName("https://res.cloudinary.com/x.png"))
	assert.Equal(t, "", l.FileName("/uploads/../etc/passwd"))
	assert.Equal(t, "", l.FileName("/uploads/"))
	assert.Equal(t, "", l.FileName("/uploads/.."))
	assert.Equal(t, "x.png", l.FileName("https://old.example.com/uploads/x.png"))
	assert.Equal(t, "x.png", l.FileName("http://localhost:8000/uploads/x.png?v=1"))
	assert.Equal(t, "x.png", l.FileName("https://example.com/app/uploads/x.png"))
}

func TestNewLocal_EmptyDir(t *testing.T) {
	_, err := NewLocal("", "", 0)
	assert.Error(t, err)
}
