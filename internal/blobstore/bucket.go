package blobstore

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

// Bucket stores blobs in a gocloud.dev bucket (file:// or mem://).
type Bucket struct {
	bucket *blob.Bucket
	now    func() time.Time
}

// OpenBucket opens the bucket named by rawURL.
func OpenBucket(ctx context.Context, rawURL string) (*Bucket, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("bucket url is required")
	}
	b, err := blob.OpenBucket(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", rawURL, err)
	}
	return &Bucket{bucket: b, now: time.Now}, nil
}

// Close releases the bucket.
func (b *Bucket) Close() error {
	if b == nil || b.bucket == nil {
		return nil
	}
	return b.bucket.Close()
}

// Put writes r under a freshly generated key. Existing keys are never reused.
func (b *Bucket) Put(ctx context.Context, r io.Reader, filenameHint string) (string, error) {
	if b == nil || b.bucket == nil {
		return "", fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return "", fmt.Errorf("reader is required")
	}

	var name string
	for attempt := 0; ; attempt++ {
		if attempt == maxPutAttempts {
			return "", fmt.Errorf("could not allocate a unique blob name after %d attempts", maxPutAttempts)
		}
		name = NewObjectName(filenameHint, b.now())
		exists, err := b.bucket.Exists(ctx, LocatorFor(name))
		if err != nil {
			return "", err
		}
		if !exists {
			break
		}
	}

	key := LocatorFor(name)
	opts := &blob.WriterOptions{ContentType: mime.TypeByExtension(path.Ext(name))}
	if opts.ContentType == "" {
		opts.ContentType = "application/octet-stream"
	}
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w, err := b.bucket.NewWriter(writeCtx, key, opts)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(w, r); err != nil {
		// Canceling the writer context before Close discards the partial object.
		cancel()
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return key, nil
}

// Open returns a reader for the blob at locator.
func (b *Bucket) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	if b == nil || b.bucket == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if _, err := ObjectName(locator); err != nil {
		return nil, err
	}
	rd, err := b.bucket.NewReader(ctx, locator, nil)
	if err != nil {
		return nil, mapBucketError(locator, err)
	}
	return rd, nil
}

// Delete removes the blob at locator.
func (b *Bucket) Delete(ctx context.Context, locator string) error {
	if b == nil || b.bucket == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if _, err := ObjectName(locator); err != nil {
		return err
	}
	return mapBucketError(locator, b.bucket.Delete(ctx, locator))
}

func mapBucketError(locator string, err error) error {
	if err == nil {
		return nil
	}
	if gcerrors.Code(err) == gcerrors.NotFound {
		return fmt.Errorf("%s: %w", locator, ErrNotFound)
	}
	return err
}
