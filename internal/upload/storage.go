package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Storage persists uploaded images under a flat namespace of filenames.
type Storage interface {
	// Put stores r under name, replacing any previous file, and returns
	// where it was written.
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
	// Check reports whether the backend is usable.
	Check(ctx context.Context) error
}

// DiskStorage writes uploads into a directory, normally <public>/uploads so
// they are reachable under /static/uploads.
type DiskStorage struct {
	Dir string
}

// NewDiskStorage creates dir if needed.
func NewDiskStorage(dir string) (*DiskStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStorage{Dir: dir}, nil
}

// Put writes to a temp file in the same directory and renames it into
// place, so readers never see a partially written image.
func (d *DiskStorage) Put(ctx context.Context, name string, r io.Reader, _ int64, _ string) (string, error) {
	if name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid upload name %q", name)
	}

	tmp, err := os.CreateTemp(d.Dir, ".upload-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, readerWithContext(ctx, r)); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return "", err
	}

	dst := filepath.Join(d.Dir, name)
	if err := os.Rename(tmpName, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// Check verifies the directory exists and is a directory.
func (d *DiskStorage) Check(context.Context) error {
	info, err := os.Stat(d.Dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", d.Dir)
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
