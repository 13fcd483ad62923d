package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"imgshelf/internal/api"
	"imgshelf/internal/blobstore"
	"imgshelf/internal/models"
)

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	images, err := s.records.ListAll(r.Context())
	if err != nil {
		s.writeError(w, r, persistenceError(msgFetchFailed, ErrCodeListFailed, err))
		return
	}
	if images == nil {
		images = []models.Image{}
	}
	s.writeJSON(w, http.StatusOK, images)
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.uploads.MaxBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(s.multipartMaxMemory); err != nil {
		s.writeError(w, r, classifyMultipartError(err))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	for field, headers := range r.MultipartForm.File {
		if field != api.UploadFileField || len(headers) > 1 {
			s.writeError(w, r, validationError(msgUnexpectedField, ErrCodeUnexpectedField))
			return
		}
	}
	headers := r.MultipartForm.File[api.UploadFileField]
	if len(headers) == 0 {
		s.writeError(w, r, validationError(msgNoFile, ErrCodeMissingFile))
		return
	}
	header := headers[0]

	file, err := header.Open()
	if err != nil {
		s.writeError(w, r, storageError(fmt.Errorf("open uploaded part: %w", err)))
		return
	}
	defer file.Close()

	image, err := s.uploads.Upload(r.Context(), UploadInput{
		Content:     file,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Name:        firstFormValue(r.MultipartForm, api.UploadNameField),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.log().Info("image uploaded", "id", image.ID, "name", image.Name, "path", image.ImagePath, "bytes", header.Size)
	s.writeJSON(w, http.StatusCreated, image)
}

// firstFormValue reads a multipart text field, ignoring the query string.
func firstFormValue(form *multipart.Form, field string) string {
	if form == nil {
		return ""
	}
	if values := form.Value[field]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func classifyMultipartError(err error) error {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return validationError(msgFileTooLarge, ErrCodeFileTooLarge)
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
		return validationError(msgNoFile, ErrCodeMissingFile)
	default:
		return makeAPIError(http.StatusBadRequest, KindValidation, ErrCodeInvalidMultipart, "Invalid multipart body", nil)
	}
}

func (s *Server) handleServeUpload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := blobstore.ValidateObjectName(name); err != nil {
		s.handleNotFound(w, r)
		return
	}

	rc, err := s.blobs.Open(r.Context(), blobstore.LocatorFor(name))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			s.writeError(w, r, makeAPIError(http.StatusNotFound, KindNotFound, ErrCodeBlobNotFound, msgNotFound, nil))
			return
		}
		s.writeError(w, r, makeAPIError(http.StatusInternalServerError, KindStorage, ErrCodeStorageFailure, msgSomethingWrong, err))
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", servedContentType(name))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.log().Warn("stream upload", "name", name, "error", err)
	}
}

// servedContentType only ever reports an image type, so a blob can never be
// rendered as a document on the API origin.
func servedContentType(name string) string {
	if mediaType, ok := models.ParseImageMediaType(mime.TypeByExtension(filepath.Ext(name))); ok {
		return mediaType
	}
	return "application/octet-stream"
}
