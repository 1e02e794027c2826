package dedupe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/sdejongh/tfm/pkg/digest"
	"github.com/sdejongh/tfm/pkg/models"
)

// Verifier compares files byte-by-byte before a removal. Digests only
// describe the files at scan time; a file edited since then must not be
// removed as a duplicate of the one kept.
type Verifier struct {
	bufferPool    *sync.Pool
	readerWrapper digest.ReaderWrapper
}

// NewVerifier creates a verifier. wrap may be nil.
func NewVerifier(bufferSize int, wrap digest.ReaderWrapper) *Verifier {
	if bufferSize < 4096 {
		bufferSize = 4096
	}
	return &Verifier{
		bufferPool: &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, bufferSize)
				return &buf
			},
		},
		readerWrapper: wrap,
	}
}

// Check compares every removal of d with the kept file and fails with
// ErrContentMismatch on the first one that differs
func (v *Verifier) Check(ctx context.Context, d *Decision) error {
	if d.Pending {
		return models.ErrDecisionPending
	}
	for _, path := range d.Remove {
		reason, err := v.Compare(ctx, d.Keep, path)
		if err != nil {
			return err
		}
		if reason != "" {
			return models.NewOperationError(models.KindDelete, path, models.ErrContentMismatch, fmt.Errorf("%s", reason))
		}
	}
	return nil
}

// Compare reads a and b side by side. It returns an empty reason when the
// contents match, otherwise a description of the first difference.
func (v *Verifier) Compare(ctx context.Context, a, b string) (string, error) {
	infoA, err := os.Stat(a)
	if err != nil {
		return "", accessError(a, err)
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return "", accessError(b, err)
	}

	// Quick check: if sizes differ, files are different
	if infoA.Size() != infoB.Size() {
		return fmt.Sprintf("size mismatch: %d and %d bytes", infoA.Size(), infoB.Size()), nil
	}

	ra, err := v.open(ctx, a)
	if err != nil {
		return "", err
	}
	defer ra.Close()

	rb, err := v.open(ctx, b)
	if err != nil {
		return "", err
	}
	defer rb.Close()

	bufA := v.bufferPool.Get().(*[]byte)
	defer v.bufferPool.Put(bufA)
	bufB := v.bufferPool.Get().(*[]byte)
	defer v.bufferPool.Put(bufB)

	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		// ReadFull keeps both sides aligned even on short reads
		na, errA := io.ReadFull(ra, *bufA)
		nb, errB := io.ReadFull(rb, *bufB)

		if na != nb {
			return fmt.Sprintf("length differs after byte offset %d", offset+int64(min(na, nb))), nil
		}
		if !bytes.Equal((*bufA)[:na], (*bufB)[:nb]) {
			for i := 0; i < na; i++ {
				if (*bufA)[i] != (*bufB)[i] {
					return fmt.Sprintf("content differs at byte offset %d", offset+int64(i)), nil
				}
			}
		}
		offset += int64(na)

		doneA := errA == io.EOF || errA == io.ErrUnexpectedEOF
		doneB := errB == io.EOF || errB == io.ErrUnexpectedEOF
		switch {
		case errA != nil && !doneA:
			return "", fmt.Errorf("failed to read %s: %w", a, errA)
		case errB != nil && !doneB:
			return "", fmt.Errorf("failed to read %s: %w", b, errB)
		case doneA && doneB:
			return "", nil
		case doneA != doneB:
			return fmt.Sprintf("length differs after byte offset %d", offset), nil
		}
	}
}

func (v *Verifier) open(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, accessError(path, err)
	}
	if v.readerWrapper != nil {
		return v.readerWrapper(ctx, f), nil
	}
	return f, nil
}

func accessError(path string, err error) error {
	sentinel := models.ErrPermissionDenied
	if errors.Is(err, fs.ErrNotExist) {
		sentinel = models.ErrPathNotFound
	}
	return models.NewOperationError(models.KindDelete, path, sentinel, err)
}
