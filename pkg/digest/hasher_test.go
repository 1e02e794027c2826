package digest

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0644))
	return p
}

func TestNew(t *testing.T) {
	h, err := New(Options{})
	require.NoError(t, err)
	assert.Equal(t, SHA256, h.Algorithm())
	assert.Equal(t, int64(DefaultPartialSize), h.PartialSize())

	h, err = New(Options{Algorithm: MD5, PartialSize: 16})
	require.NoError(t, err)
	assert.Equal(t, MD5, h.Algorithm())
	assert.Equal(t, int64(16), h.PartialSize())

	_, err = New(Options{Algorithm: "crc32"})
	assert.Error(t, err)
}

func TestHasher_Full(t *testing.T) {
	dir := t.TempDir()
	data := bytes.Repeat([]byte("tfm"), 50000)
	path := writeFile(t, dir, "big.bin", data)

	t.Run("sha256", func(t *testing.T) {
		h, err := New(Options{BufferSize: 4096})
		require.NoError(t, err)
		sum, err := h.Full(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("%x", sha256.Sum256(data)), sum)
	})

	t.Run("md5", func(t *testing.T) {
		h, err := New(Options{Algorithm: MD5})
		require.NoError(t, err)
		sum, err := h.Full(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("%x", md5.Sum(data)), sum)
	})
}

func TestHasher_Partial(t *testing.T) {
	dir := t.TempDir()
	h, err := New(Options{PartialSize: 10, BufferSize: 4096})
	require.NoError(t, err)
	ctx := context.Background()

	a := writeFile(t, dir, "a", []byte("0123456789-tail-a"))
	b := writeFile(t, dir, "b", []byte("0123456789-tail-b"))

	pa, err := h.Partial(ctx, a)
	require.NoError(t, err)
	pb, err := h.Partial(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, pa, pb, "same prefix")
	assert.Equal(t, fmt.Sprintf("%x", sha256.Sum256([]byte("0123456789"))), pa)

	fa, err := h.Full(ctx, a)
	require.NoError(t, err)
	fb, err := h.Full(ctx, b)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fb)

	small := writeFile(t, dir, "small", []byte("short"))
	ps, err := h.Partial(ctx, small)
	require.NoError(t, err)
	fs, err := h.Full(ctx, small)
	require.NoError(t, err)
	assert.Equal(t, fs, ps, "prefix covers the whole file")

	partial, full := h.Counts()
	assert.Equal(t, int64(3), partial)
	assert.Equal(t, int64(3), full)
}

func TestHasher_Errors(t *testing.T) {
	h, err := New(Options{})
	require.NoError(t, err)

	_, err = h.Full(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := writeFile(t, t.TempDir(), "f", []byte("data"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Full(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)

	partial, full := h.Counts()
	assert.Zero(t, partial)
	assert.Zero(t, full)
}

type countingCloser struct {
	io.ReadCloser
	wrapped *int
}

func TestHasher_OpenAndWrap(t *testing.T) {
	wrapped := 0
	h, err := New(Options{
		Open: func(ctx context.Context, path string) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("content of " + path)), nil
		},
		Wrap: func(ctx context.Context, r io.ReadCloser) io.ReadCloser {
			wrapped++
			return countingCloser{ReadCloser: r, wrapped: &wrapped}
		},
	})
	require.NoError(t, err)

	sum, err := h.Full(context.Background(), "virtual")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%x", sha256.Sum256([]byte("content of virtual"))), sum)
	assert.Equal(t, 1, wrapped)

	readerSum, err := h.Reader(context.Background(), strings.NewReader("content of virtual"))
	require.NoError(t, err)
	assert.Equal(t, sum, readerSum)
}
