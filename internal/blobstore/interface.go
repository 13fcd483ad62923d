package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound reports that no blob exists at a locator.
var ErrNotFound = errors.New("blob not found")

// BlobStore is the byte-storage abstraction used by the upload flow.
// Put returns a fresh locator and never overwrites an existing blob.
type BlobStore interface {
	Put(ctx context.Context, r io.Reader, filenameHint string) (string, error)
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
	Delete(ctx context.Context, locator string) error
}
