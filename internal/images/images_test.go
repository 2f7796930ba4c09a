package images

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func pngBytes(size int) []byte {
	b := make([]byte, size)
	copy(b, pngHeader)
	return b
}

func TestSniff(t *testing.T) {
	data := pngBytes(2048)
	ctype, r, err := Sniff(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "image/png", ctype)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got, "sniffing must not consume the stream")
}

func TestSniff_ShortImage(t *testing.T) {
	ctype, r, err := Sniff(strings.NewReader("GIF89a"))
	require.NoError(t, err)
	assert.Equal(t, "image/gif", ctype)
	got, _ := io.ReadAll(r)
	assert.Equal(t, "GIF89a", string(got))
}

func TestSniff_NotImage(t *testing.T) {
	_, _, err := Sniff(strings.NewReader("<html><body>hi</body></html>"))
	assert.ErrorIs(t, err, ErrNotImage)

	_, _, err = Sniff(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestLimit(t *testing.T) {
	got, err := io.ReadAll(Limit(strings.NewReader("12345"), 5))
	require.NoError(t, err)
	assert.Equal(t, "12345", string(got))

	_, err = io.ReadAll(Limit(strings.NewReader("123456"), 5))
	assert.ErrorIs(t, err, ErrTooLarge)

	got, err = io.ReadAll(Limit(strings.NewReader("123456"), 0))
	require.NoError(t, err)
	assert.Equal(t, "123456", string(got))
}

func TestExtFor(t *testing.T) {
	assert.Equal(t, ".jpg", extFor("image/jpeg"))
	assert.Equal(t, ".png", extFor("image/png"))
	assert.Equal(t, "", extFor("image/svg+xml"))
}
