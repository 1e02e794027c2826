package ops

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sdejongh/tfm/pkg/ratelimit"
)

// copyEntry copies a file, symlink or directory tree from src to dst.
// dst must not exist. Modes and modification times are preserved.
func (e *Executor) copyEntry(ctx context.Context, src, dst string, info fs.FileInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		return os.Symlink(target, dst)
	case info.IsDir():
		return e.copyDir(ctx, src, dst, info)
	case info.Mode().IsRegular():
		return e.copyFile(ctx, src, dst, info)
	default:
		return fmt.Errorf("%s: unsupported file type %s", src, info.Mode().Type())
	}
}

func (e *Executor) copyDir(ctx context.Context, src, dst string, info fs.FileInfo) error {
	// owner write is needed while children are created; the real mode is set last
	if err := os.Mkdir(dst, info.Mode().Perm()|0700); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		childInfo, err := entry.Info()
		if err != nil {
			return err
		}
		if err := e.copyEntry(ctx, filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name()), childInfo); err != nil {
			return err
		}
	}

	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

func (e *Executor) copyFile(ctx context.Context, src, dst string, info fs.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}

	bufPtr := e.bufferPool.Get().(*[]byte)
	defer e.bufferPool.Put(bufPtr)

	reader := ratelimit.NewReader(ctx, &contextReader{ctx: ctx, r: in}, e.limiter)
	written, err := io.CopyBuffer(writerOnly{out}, reader, *bufPtr)
	if err != nil {
		out.Close()
		return err
	}
	if written != info.Size() {
		out.Close()
		return fmt.Errorf("incomplete copy of %s: expected %d bytes, wrote %d", src, info.Size(), written)
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// verifyCopy checks that dst mirrors src: same tree shape, same sizes and
// same content digests for every regular file.
func (e *Executor) verifyCopy(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		srcInfo, err := d.Info()
		if err != nil {
			return err
		}
		dstInfo, err := os.Lstat(target)
		if err != nil {
			return fmt.Errorf("missing in destination: %w", err)
		}
		if srcInfo.Mode().Type() != dstInfo.Mode().Type() {
			return fmt.Errorf("%s: type mismatch", rel)
		}

		if !srcInfo.Mode().IsRegular() {
			return nil
		}
		if srcInfo.Size() != dstInfo.Size() {
			return fmt.Errorf("%s: size mismatch (%d != %d)", rel, srcInfo.Size(), dstInfo.Size())
		}

		srcSum, err := e.hasher.Full(ctx, p)
		if err != nil {
			return err
		}
		dstSum, err := e.hasher.Full(ctx, target)
		if err != nil {
			return err
		}
		if srcSum != dstSum {
			return fmt.Errorf("%s: content hash mismatch", rel)
		}
		return nil
	})
}

// contextReader stops a copy once ctx is cancelled
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// writerOnly hides ReadFrom so io.CopyBuffer goes through our reader
type writerOnly struct {
	io.Writer
}
