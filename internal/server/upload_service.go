package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"imgshelf/internal/blobstore"
	"imgshelf/internal/models"
	"imgshelf/internal/store"
)

const (
	// DefaultMaxUploadBytes caps a single uploaded file.
	DefaultMaxUploadBytes int64 = 5 << 20
	sniffLen                    = 512
)

// UploadService coordinates the blob write and the record insert of one upload.
// A record is only ever visible when its blob exists; when the insert fails the
// blob is deleted again.
type UploadService struct {
	records  store.RecordStore
	blobs    blobstore.BlobStore
	maxBytes int64
	logger   *slog.Logger
}

// UploadInput describes one uploaded file. Size is -1 when unknown.
type UploadInput struct {
	Content     io.Reader
	Filename    string
	ContentType string
	Size        int64
	Name        string
}

// NewUploadService creates an upload coordinator. maxBytes <= 0 selects the default cap.
func NewUploadService(records store.RecordStore, blobs blobstore.BlobStore, maxBytes int64, logger *slog.Logger) *UploadService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadService{records: records, blobs: blobs, maxBytes: maxBytes, logger: logger}
}

// MaxBytes reports the per-file size cap.
func (s *UploadService) MaxBytes() int64 {
	if s == nil {
		return DefaultMaxUploadBytes
	}
	return s.maxBytes
}

// Upload validates in, stores its bytes, and records the image.
func (s *UploadService) Upload(ctx context.Context, in UploadInput) (models.Image, error) {
	var zero models.Image
	if s == nil || s.records == nil || s.blobs == nil {
		return zero, internalError(fmt.Errorf("upload service is not configured"))
	}
	if in.Content == nil {
		return zero, validationError(msgNoFile, ErrCodeMissingFile)
	}

	name, err := models.ParseImageName(in.Name)
	if err != nil {
		return zero, makeAPIError(http.StatusBadRequest, KindValidation, ErrCodeInvalidName, err.Error(), nil)
	}
	if in.Size > s.maxBytes {
		return zero, validationError(msgFileTooLarge, ErrCodeFileTooLarge)
	}

	content := bufio.NewReaderSize(in.Content, sniffLen)
	peek, _ := content.Peek(sniffLen)
	mediaType, ok := resolveMediaType(in.ContentType, peek)
	if !ok {
		return zero, validationError(msgOnlyImages, ErrCodeUnsupportedMediaType)
	}

	var body io.Reader = content
	if in.Size < 0 {
		buffered, err := io.ReadAll(io.LimitReader(content, s.maxBytes+1))
		if err != nil {
			return zero, storageError(fmt.Errorf("read upload: %w", err))
		}
		if int64(len(buffered)) > s.maxBytes {
			return zero, validationError(msgFileTooLarge, ErrCodeFileTooLarge)
		}
		body = bytes.NewReader(buffered)
	}

	counter := &countingReader{r: io.LimitReader(body, s.maxBytes+1)}
	locator, err := s.blobs.Put(ctx, counter, storageNameHint(in.Filename, mediaType))
	if err != nil {
		return zero, storageError(err)
	}
	if counter.n > s.maxBytes {
		s.discardBlob(ctx, locator, "oversize")
		return zero, validationError(msgFileTooLarge, ErrCodeFileTooLarge)
	}

	inserted, err := s.records.Insert(ctx, name, locator)
	if err != nil {
		s.discardBlob(ctx, locator, "insert failed")
		return zero, persistenceError(msgUploadFailed, ErrCodePersistenceFailure, err)
	}
	if inserted == nil {
		s.discardBlob(ctx, locator, "insert returned no record")
		return zero, persistenceError(msgUploadFailed, ErrCodePersistenceFailure, fmt.Errorf("insert returned no record"))
	}

	stored, err := s.records.GetByID(ctx, inserted.ID)
	switch {
	case err != nil:
		s.logger.Warn("read back image record", "id", inserted.ID, "error", err)
		return *inserted, nil
	case stored == nil:
		s.logger.Warn("image record missing after insert", "id", inserted.ID)
		return *inserted, nil
	}
	return *stored, nil
}

// discardBlob makes one delete attempt; it outlives request cancellation.
func (s *UploadService) discardBlob(ctx context.Context, locator, reason string) {
	if err := s.blobs.Delete(context.WithoutCancel(ctx), locator); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		s.logger.Error("discard orphaned blob", "locator", locator, "reason", reason, "error", err)
		return
	}
	s.logger.Debug("discarded blob", "locator", locator, "reason", reason)
}

// resolveMediaType prefers the declared type and falls back to sniffing
// when the client sent nothing useful.
func resolveMediaType(declared string, peek []byte) (string, bool) {
	if mediaType, ok := models.ParseImageMediaType(declared); ok {
		return mediaType, true
	}
	if !isOpaqueMediaType(declared) {
		return "", false
	}
	return models.ParseImageMediaType(http.DetectContentType(peek))
}

func isOpaqueMediaType(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return true
	}
	mediaType, _ := models.ParseImageMediaType(raw)
	return mediaType == "application/octet-stream"
}

// storageNameHint keeps the client's extension only when it names an image
// type; otherwise the extension is derived from the accepted media type.
func storageNameHint(filename, mediaType string) string {
	ext := strings.ToLower(filepath.Ext(strings.ReplaceAll(filename, `\`, "/")))
	if _, ok := models.ParseImageMediaType(mime.TypeByExtension(ext)); ok {
		return "upload" + ext
	}
	return "upload" + extensionForMediaType(mediaType)
}

func extensionForMediaType(mediaType string) string {
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	// Prefer the extension spelled like the subtype (".jpeg" over ".jfif").
	_, subtype, _ := strings.Cut(mediaType, "/")
	for _, ext := range exts {
		if ext == "."+subtype {
			return ext
		}
	}
	return exts[0]
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
