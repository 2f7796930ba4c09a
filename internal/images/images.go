// Package images stores uploaded pictures and hands back their public URLs.
package images

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrNotImage is returned when the upload does not sniff as an image.
	ErrNotImage = errors.New("file is not an image")

	// ErrTooLarge is returned when the upload exceeds the size limit.
	ErrTooLarge = errors.New("file too large")
)

// Uploader persists one image and returns the URL it will be served from.
type Uploader interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	Name() string
}

// Sniff peeks at the start of r and reports the detected content type.
// The returned reader still yields the full stream.
func Sniff(r io.Reader) (string, io.Reader, error) {
	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", nil, fmt.Errorf("sniff: %w", err)
	}
	if len(head) == 0 {
		return "", nil, ErrNotImage
	}
	ctype := http.DetectContentType(head)
	if !strings.HasPrefix(ctype, "image/") {
		return ctype, nil, ErrNotImage
	}
	return ctype, br, nil
}

// extFor maps a sniffed content type to a file extension.
func extFor(ctype string) string {
	switch ctype {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "image/x-icon":
		return ".ico"
	default:
		return ""
	}
}

// limitReader fails with ErrTooLarge once more than n bytes are read.
type limitReader struct {
	r io.Reader
	n int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.n <= 0 {
		var one [1]byte
		if k, _ := l.r.Read(one[:]); k > 0 {
			return 0, ErrTooLarge
		}
		return 0, io.EOF
	}
	if int64(len(p)) > l.n {
		p = p[:l.n]
	}
	k, err := l.r.Read(p)
	l.n -= int64(k)
	return k, err
}

// Limit wraps r so reading past max bytes fails with ErrTooLarge.
// A non-positive max disables the limit.
func Limit(r io.Reader, max int64) io.Reader {
	if max <= 0 {
		return r
	}
	return &limitReader{r: r, n: max}
}
