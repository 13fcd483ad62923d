package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const localTmpDir = ".tmp"

// LocalDir stores blobs as flat files in one local directory.
type LocalDir struct {
	root string
	now  func() time.Time
}

// NewLocalDir creates a local blob directory rooted at root.
func NewLocalDir(root string) (*LocalDir, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, localTmpDir), 0o755); err != nil {
		return nil, err
	}
	return &LocalDir{root: abs, now: time.Now}, nil
}

// Root returns the absolute directory holding blobs.
func (d *LocalDir) Root() string {
	if d == nil {
		return ""
	}
	return d.root
}

// Put streams r into a temp file and links it under a freshly generated name.
func (d *LocalDir) Put(ctx context.Context, r io.Reader, filenameHint string) (string, error) {
	if d == nil {
		return "", fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return "", fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Join(d.root, localTmpDir), "put-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// os.Link refuses to replace an existing file, so a name collision
	// surfaces as ErrExist instead of clobbering another upload.
	for attempt := 0; attempt < maxPutAttempts; attempt++ {
		name := NewObjectName(filenameHint, d.now())
		err := os.Link(tmpPath, filepath.Join(d.root, name))
		if err == nil {
			return LocatorFor(name), nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("could not allocate a unique blob name after %d attempts", maxPutAttempts)
}

// Open returns a reader for the blob at locator.
func (d *LocalDir) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	if d == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := d.pathFromLocator(locator)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", locator, ErrNotFound)
	}
	return f, err
}

// Delete removes the blob at locator.
func (d *LocalDir) Delete(ctx context.Context, locator string) error {
	if d == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := d.pathFromLocator(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", locator, ErrNotFound)
		}
		return err
	}
	return nil
}

func (d *LocalDir) pathFromLocator(locator string) (string, error) {
	name, err := ObjectName(locator)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.root, name), nil
}
