// Package local writes blobs to a directory on disk. It backs the dashboard
// export when no object store is configured.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Writer implements domain.BlobWriter under a root directory. Files are
// written to a temp file and renamed so readers never see a partial document.
type Writer struct {
	root string
}

// NewWriter creates the root directory if needed.
func NewWriter(root string) (*Writer, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("local: create %s: %w", root, err)
	}
	return &Writer{root: root}, nil
}

// Put writes data to root/path. contentType is ignored.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := w.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("local: create dir for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return fmt.Errorf("local: temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return fmt.Errorf("local: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("local: close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("local: rename %s: %w", path, err)
	}
	return nil
}

// PutMultipart is Put; a local file has no part size.
func (w *Writer) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, "")
}

func (w *Writer) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash("/" + path))
	dst := filepath.Join(w.root, clean)
	rel, err := filepath.Rel(w.root, dst)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("local: invalid path %q", path)
	}
	return dst, nil
}
