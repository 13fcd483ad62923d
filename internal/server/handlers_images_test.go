package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"imgshelf/internal/models"
)

func TestUploadThenListAndFetch(t *testing.T) {
	env := newTestEnv(t, nil)
	content := pngBytes(2048)

	w := doUpload(t, env.srv, "Sunset", uploadPart{field: "image", filename: "sunset.PNG", contentType: "image/png", content: content})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	var created models.Image
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode image: %v", err)
	}
	if created.ID <= 0 || created.Name != "Sunset" || created.CreatedAt.IsZero() {
		t.Fatalf("unexpected created image %#v", created)
	}
	if !strings.HasPrefix(created.ImagePath, "uploads/") || !strings.HasSuffix(created.ImagePath, ".png") {
		t.Fatalf("expected uploads/*.png locator, got %q", created.ImagePath)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/images", nil)
	w = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var list []models.Image
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID || list[0].ImagePath != created.ImagePath {
		t.Fatalf("unexpected list %#v", list)
	}

	req = httptest.NewRequest(http.MethodGet, "/"+created.ImagePath, nil)
	w = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching blob, got %d", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), content) {
		t.Fatal("served bytes differ from uploaded bytes")
	}
	if got := w.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("expected image/png, got %q", got)
	}
}

func TestListEmptyReturnsArray(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/images", nil)
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Fatalf("expected empty array, got %q", got)
	}
}

func TestListNewestFirst(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, name := range []string{"first", "second", "third"} {
		w := doUpload(t, env.srv, name, uploadPart{field: "image", filename: name + ".png", contentType: "image/png", content: pngBytes(64)})
		if w.Code != http.StatusCreated {
			t.Fatalf("upload %s: %d (%s)", name, w.Code, w.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/images", nil)
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	var list []models.Image
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 3 || list[0].Name != "third" || list[2].Name != "first" {
		t.Fatalf("expected newest first, got %#v", list)
	}
}

func TestListFailure(t *testing.T) {
	srv, err := New(Options{
		Records: &fakeRecords{listErr: errors.New("database is locked")},
		Blobs:   newMemBlobs(),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/images", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	resp := decodeErrorBody(t, w)
	if resp.Message != "Failed to fetch images" || !strings.Contains(resp.Error, "database is locked") {
		t.Fatalf("unexpected body %#v", resp)
	}
}

func TestUploadDefaultsNameAndSniffsType(t *testing.T) {
	env := newTestEnv(t, nil)

	w := doUpload(t, env.srv, "   ", uploadPart{field: "image", filename: "photo.png", contentType: "application/octet-stream", content: pngBytes(128)})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	var created models.Image
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode image: %v", err)
	}
	if created.Name != models.DefaultImageName {
		t.Fatalf("expected default name, got %q", created.Name)
	}
}

func TestUploadValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		parts   []uploadPart
		message string
		errCode int
	}{
		{
			name:    "no file",
			message: "No file uploaded",
			errCode: ErrCodeMissingFile,
		},
		{
			name:    "not an image",
			parts:   []uploadPart{{field: "image", filename: "notes.txt", contentType: "text/plain", content: []byte("hello")}},
			message: "Only image files are allowed!",
			errCode: ErrCodeUnsupportedMediaType,
		},
		{
			name:    "octet stream that is not an image",
			parts:   []uploadPart{{field: "image", filename: "blob.bin", contentType: "application/octet-stream", content: []byte("plain text bytes")}},
			message: "Only image files are allowed!",
			errCode: ErrCodeUnsupportedMediaType,
		},
		{
			name:    "wrong field",
			parts:   []uploadPart{{field: "photo", filename: "a.png", contentType: "image/png", content: pngBytes(32)}},
			message: "Unexpected field",
			errCode: ErrCodeUnexpectedField,
		},
		{
			name: "two files",
			parts: []uploadPart{
				{field: "image", filename: "a.png", contentType: "image/png", content: pngBytes(32)},
				{field: "image", filename: "b.png", contentType: "image/png", content: pngBytes(32)},
			},
			message: "Unexpected field",
			errCode: ErrCodeUnexpectedField,
		},
		{
			name:    "too large",
			parts:   []uploadPart{{field: "image", filename: "big.png", contentType: "image/png", content: pngBytes(4096)}},
			message: "File too large",
			errCode: ErrCodeFileTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(o *Options) { o.MaxUploadBytes = 1024 })
			w := doUpload(t, env.srv, "", tt.parts...)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d (%s)", w.Code, w.Body.String())
			}
			resp := decodeErrorBody(t, w)
			if resp.Message != tt.message || resp.ErrorCode != tt.errCode {
				t.Fatalf("expected %q/%d, got %#v", tt.message, tt.errCode, resp)
			}
			if resp.Error != "" {
				t.Fatalf("validation errors should not carry detail, got %q", resp.Error)
			}
			assertNoImages(t, env)
		})
	}
}

func TestUploadBodyOverLimit(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.MaxUploadBytes = 16 })
	w := doUpload(t, env.srv, "", uploadPart{field: "image", filename: "huge.png", contentType: "image/png", content: pngBytes(int(multipartOverhead) + 4096)})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", w.Code, w.Body.String())
	}
	if resp := decodeErrorBody(t, w); resp.Message != "File too large" {
		t.Fatalf("unexpected body %#v", resp)
	}
	assertNoImages(t, env)
}

func TestUploadNotMultipart(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(`{"name":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if resp := decodeErrorBody(t, w); resp.Message != "No file uploaded" {
		t.Fatalf("unexpected body %#v", resp)
	}
}

func TestUploadInsertFailureRemovesBlob(t *testing.T) {
	blobs := newMemBlobs()
	srv, err := New(Options{
		Records: &fakeRecords{insertErr: errors.New("constraint failed")},
		Blobs:   blobs,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	w := doUpload(t, srv, "x", uploadPart{field: "image", filename: "a.png", contentType: "image/png", content: pngBytes(64)})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d (%s)", w.Code, w.Body.String())
	}
	resp := decodeErrorBody(t, w)
	if resp.Message != "Upload failed" || !strings.Contains(resp.Error, "constraint failed") {
		t.Fatalf("unexpected body %#v", resp)
	}
	if resp.Code != string(KindPersistence) {
		t.Fatalf("expected persistence_error, got %q", resp.Code)
	}
	if blobs.deleteCalls != 1 || blobs.count() != 0 {
		t.Fatalf("expected one compensating delete, got %d calls and %d blobs", blobs.deleteCalls, blobs.count())
	}
}

func TestUploadStorageFailure(t *testing.T) {
	records := &fakeRecords{}
	blobs := newMemBlobs()
	blobs.putErr = errors.New("no space left on device")
	srv, err := New(Options{Records: records, Blobs: blobs, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	w := doUpload(t, srv, "", uploadPart{field: "image", filename: "a.png", contentType: "image/png", content: pngBytes(64)})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	resp := decodeErrorBody(t, w)
	if resp.Message != "Upload failed" || resp.Code != string(KindStorage) {
		t.Fatalf("unexpected body %#v", resp)
	}
	if len(records.images) != 0 {
		t.Fatal("expected no record after storage failure")
	}
}

func TestServeUploadMissingAndTraversal(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/uploads/1-missing.png", "/uploads/..%2Fimgshelf.db", "/uploads/.tmp"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		env.srv.Handler().ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, w.Code)
		}
	}
}

func TestConcurrentUploads(t *testing.T) {
	env := newTestEnv(t, nil)
	const n = 12

	type upload struct {
		body        *bytes.Buffer
		contentType string
	}
	uploads := make([]upload, n)
	for i := range uploads {
		body, contentType := multipartBody(t, "", uploadPart{field: "image", filename: "same.png", contentType: "image/png", content: pngBytes(256)})
		uploads[i] = upload{body: body, contentType: contentType}
	}

	var wg sync.WaitGroup
	codes := make(chan int, n)
	for _, u := range uploads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/upload", u.body)
			req.Header.Set("Content-Type", u.contentType)
			w := httptest.NewRecorder()
			env.srv.Handler().ServeHTTP(w, req)
			codes <- w.Code
		}()
	}
	wg.Wait()
	close(codes)
	for code := range codes {
		if code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", code)
		}
	}

	images, err := env.store.ListAll(t.Context())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(images) != n {
		t.Fatalf("expected %d images, got %d", n, len(images))
	}
	seen := make(map[string]struct{}, n)
	for _, image := range images {
		if _, dup := seen[image.ImagePath]; dup {
			t.Fatalf("duplicate locator %q", image.ImagePath)
		}
		seen[image.ImagePath] = struct{}{}
		if _, err := os.Stat(filepath.Join(filepath.Dir(env.blobs.Root()), image.ImagePath)); err != nil {
			t.Fatalf("blob for %q missing: %v", image.ImagePath, err)
		}
	}
}

func TestUploadRateLimit(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.UploadsPerSecond = 0.001
		o.UploadBurst = 1
	})

	w := doUpload(t, env.srv, "", uploadPart{field: "image", filename: "a.png", contentType: "image/png", content: pngBytes(64)})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected first upload to pass, got %d", w.Code)
	}
	w = doUpload(t, env.srv, "", uploadPart{field: "image", filename: "a.png", contentType: "image/png", content: pngBytes(64)})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if resp := decodeErrorBody(t, w); resp.ErrorCode != ErrCodeRateLimited {
		t.Fatalf("unexpected body %#v", resp)
	}
}

func assertNoImages(t *testing.T, env testEnv) {
	t.Helper()
	images, err := env.store.ListAll(t.Context())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(images) != 0 {
		t.Fatalf("expected no images, got %d", len(images))
	}
	entries, err := os.ReadDir(env.blobs.Root())
	if err != nil {
		t.Fatalf("read blob dir: %v", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			t.Fatalf("expected no blobs, found %q", entry.Name())
		}
	}
}

func TestUploadWithNonImageExtensionIsServedAsImage(t *testing.T) {
	env := newTestEnv(t, nil)
	body := []byte("<script>alert(document.cookie)</script>")

	w := doUpload(t, env.srv, "", uploadPart{field: "image", filename: "evil.html", contentType: "image/png", content: body})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	var created models.Image
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode image: %v", err)
	}
	if !strings.HasSuffix(created.ImagePath, ".png") {
		t.Fatalf("expected extension derived from image/png, got %q", created.ImagePath)
	}

	req := httptest.NewRequest(http.MethodGet, "/"+created.ImagePath, nil)
	w = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); !strings.HasPrefix(got, "image/") {
		t.Fatalf("expected an image content type, got %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff, got %q", got)
	}
	if got := w.Header().Get("Content-Security-Policy"); !strings.Contains(got, "sandbox") {
		t.Fatalf("expected sandboxing policy, got %q", got)
	}
}

func TestServedContentType(t *testing.T) {
	tests := map[string]string{
		"1-a.png":  "image/png",
		"1-a.JPG":  "image/jpeg",
		"1-a.svg":  "image/svg+xml",
		"1-a.html": "application/octet-stream",
		"1-a.txt":  "application/octet-stream",
		"1-a":      "application/octet-stream",
	}
	for name, want := range tests {
		if got := servedContentType(name); got != want {
			t.Fatalf("servedContentType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestUploadNameIgnoresQueryString(t *testing.T) {
	env := newTestEnv(t, nil)
	body, contentType := multipartBody(t, "", uploadPart{field: "image", filename: "a.png", contentType: "image/png", content: pngBytes(64)})
	req := httptest.NewRequest(http.MethodPost, "/api/upload?name=fromquery", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	var created models.Image
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode image: %v", err)
	}
	if created.Name != models.DefaultImageName {
		t.Fatalf("expected query string to be ignored, got name %q", created.Name)
	}
}

func TestUploadRateLimitIgnoresForwardedHeaders(t *testing.T) {
	upload := func(t *testing.T, srv *Server, forwardedFor string) int {
		body, contentType := multipartBody(t, "", uploadPart{field: "image", filename: "a.png", contentType: "image/png", content: pngBytes(64)})
		req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("X-Forwarded-For", forwardedFor)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		return w.Code
	}

	t.Run("untrusted by default", func(t *testing.T) {
		env := newTestEnv(t, func(o *Options) {
			o.UploadsPerSecond = 0.001
			o.UploadBurst = 1
		})
		if code := upload(t, env.srv, "198.51.100.1"); code != http.StatusCreated {
			t.Fatalf("expected first upload to pass, got %d", code)
		}
		if code := upload(t, env.srv, "198.51.100.2"); code != http.StatusTooManyRequests {
			t.Fatalf("expected rotated header to stay limited, got %d", code)
		}
	})

	t.Run("trusted behind a proxy", func(t *testing.T) {
		env := newTestEnv(t, func(o *Options) {
			o.UploadsPerSecond = 0.001
			o.UploadBurst = 1
			o.TrustProxyHeaders = true
		})
		if code := upload(t, env.srv, "198.51.100.1"); code != http.StatusCreated {
			t.Fatalf("expected first client to pass, got %d", code)
		}
		if code := upload(t, env.srv, "198.51.100.2"); code != http.StatusCreated {
			t.Fatalf("expected second client to have its own bucket, got %d", code)
		}
		if code := upload(t, env.srv, "198.51.100.1"); code != http.StatusTooManyRequests {
			t.Fatalf("expected first client to be limited, got %d", code)
		}
	})
}
