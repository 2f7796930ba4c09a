package images

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// URLPrefix is the path local uploads are served under.
const URLPrefix = "/uploads/"

// Local writes uploads to a directory on disk.
type Local struct {
	dir     string
	baseURL string
	max     int64
}

// NewLocal creates dir if needed. baseURL is prepended to URLPrefix in
// returned URLs; empty yields root-relative URLs.
func NewLocal(dir, baseURL string, maxBytes int64) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), max: maxBytes}, nil
}

// Dir returns the upload directory.
func (l *Local) Dir() string { return l.dir }

func (l *Local) Name() string { return "local" }

// Save sniffs the stream, then writes it under a fresh uuid name. The
// client's filename only contributes its extension when sniffing gives none.
func (l *Local) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ctype, body, err := Sniff(Limit(r, l.max))
	if err != nil {
		return "", err
	}

	ext := extFor(ctype)
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(filepath.Base(filename)))
	}
	name := uuid.NewString() + ext

	tmp, err := os.CreateTemp(l.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after rename

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(l.dir, name)); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}

	return l.baseURL + path.Join(URLPrefix, name), nil
}

// FileName returns the stored file name for a URL pointing at an upload,
// or "" if the URL points elsewhere. Only the path is compared, so URLs
// saved under an earlier public base URL still resolve.
func (l *Local) FileName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	i := strings.LastIndex(u.Path, URLPrefix)
	if i < 0 {
		return ""
	}
	rest := u.Path[i+len(URLPrefix):]
	if rest == "" || rest == "." || rest == ".." || strings.ContainsAny(rest, `/\`) {
		return ""
	}
	return rest
}
