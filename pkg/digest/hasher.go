// Package digest computes content fingerprints for duplicate detection
// and for verifying cross-device moves.
package digest

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// Algorithm names a supported hash function
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	MD5    Algorithm = "md5"
)

// DefaultPartialSize is the prefix length hashed by Partial (64KB)
const DefaultPartialSize = 64 * 1024

// ReaderWrapper wraps readers before hashing (e.g., for rate limiting)
type ReaderWrapper func(ctx context.Context, r io.ReadCloser) io.ReadCloser

// OpenFunc opens a file for hashing
type OpenFunc func(ctx context.Context, path string) (io.ReadCloser, error)

// Hasher computes partial and full digests of files. It is safe for
// concurrent use; buffers are pooled.
type Hasher struct {
	algorithm     Algorithm
	newHash       func() hash.Hash
	partialSize   int64
	bufferPool    *sync.Pool
	open          OpenFunc
	readerWrapper ReaderWrapper

	partialCount atomic.Int64
	fullCount    atomic.Int64
}

// Options configures a Hasher
type Options struct {
	Algorithm   Algorithm
	BufferSize  int
	PartialSize int64
	Open        OpenFunc
	Wrap        ReaderWrapper
}

// New creates a Hasher. Zero values select sha256, a 64KB buffer and a
// 64KB partial prefix.
func New(opts Options) (*Hasher, error) {
	h := &Hasher{
		algorithm:     opts.Algorithm,
		partialSize:   opts.PartialSize,
		open:          opts.Open,
		readerWrapper: opts.Wrap,
	}

	switch h.algorithm {
	case "", SHA256:
		h.algorithm = SHA256
		h.newHash = sha256.New
	case MD5:
		h.newHash = md5.New
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %q", opts.Algorithm)
	}

	if h.partialSize <= 0 {
		h.partialSize = DefaultPartialSize
	}

	bufferSize := opts.BufferSize
	if bufferSize < 4096 {
		bufferSize = 64 * 1024
	}
	h.bufferPool = &sync.Pool{
		New: func() interface{} {
			buf := make([]byte, bufferSize)
			return &buf
		},
	}

	if h.open == nil {
		h.open = openFile
	}

	return h, nil
}

func openFile(ctx context.Context, path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Algorithm returns the configured hash function name
func (h *Hasher) Algorithm() Algorithm {
	return h.algorithm
}

// PartialSize returns the prefix length hashed by Partial
func (h *Hasher) PartialSize() int64 {
	return h.partialSize
}

// Counts returns how many partial and full digests were computed
func (h *Hasher) Counts() (partial, full int64) {
	return h.partialCount.Load(), h.fullCount.Load()
}

// Partial hashes the first PartialSize bytes of a file. For files no
// larger than the prefix the result equals the full digest.
func (h *Hasher) Partial(ctx context.Context, path string) (string, error) {
	sum, err := h.hashFile(ctx, path, h.partialSize)
	if err == nil {
		h.partialCount.Add(1)
	}
	return sum, err
}

// Full hashes the entire file
func (h *Hasher) Full(ctx context.Context, path string) (string, error) {
	sum, err := h.hashFile(ctx, path, -1)
	if err == nil {
		h.fullCount.Add(1)
	}
	return sum, err
}

// Reader hashes everything r yields, without using the opener
func (h *Hasher) Reader(ctx context.Context, r io.Reader) (string, error) {
	return h.sum(ctx, r, -1)
}

func (h *Hasher) hashFile(ctx context.Context, path string, limit int64) (string, error) {
	reader, err := h.open(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	if h.readerWrapper != nil {
		reader = h.readerWrapper(ctx, reader)
	}

	return h.sum(ctx, reader, limit)
}

// sum streams r through the hash, stopping after limit bytes when
// limit >= 0. Cancellation is checked between reads.
func (h *Hasher) sum(ctx context.Context, r io.Reader, limit int64) (string, error) {
	hasher := h.newHash()

	bufPtr := h.bufferPool.Get().(*[]byte)
	buffer := *bufPtr
	defer h.bufferPool.Put(bufPtr)

	var totalRead int64
	for limit < 0 || totalRead < limit {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		chunk := buffer
		if limit >= 0 && int64(len(chunk)) > limit-totalRead {
			chunk = chunk[:limit-totalRead]
		}

		n, err := r.Read(chunk)
		if n > 0 {
			hasher.Write(chunk[:n])
			totalRead += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}
