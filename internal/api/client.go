package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"imgshelf/internal/models"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	httpTimeoutEnvKey  = "IMGSHELF_HTTP_TIMEOUT"
)

// Client is a simple HTTP client for the imgshelf API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: httpTimeoutFromEnv()},
	}
}

// Health fetches the server health report.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, "/api/health", nil, "", &resp)
	return resp, err
}

// ListImages returns every image record, newest first.
func (c *Client) ListImages(ctx context.Context) ([]models.Image, error) {
	var resp []models.Image
	err := c.do(ctx, http.MethodGet, "/api/images", nil, "", &resp)
	return resp, err
}

// UploadRequest describes one image upload.
type UploadRequest struct {
	Filename    string
	ContentType string
	Name        string
	Content     io.Reader
}

// UploadImage streams content as a multipart upload.
func (c *Client) UploadImage(ctx context.Context, req UploadRequest) (models.Image, error) {
	var resp models.Image
	if req.Content == nil {
		return resp, fmt.Errorf("content is required")
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadBody(mw, req))
	}()

	err := c.do(ctx, http.MethodPost, "/api/upload", pr, mw.FormDataContentType(), &resp)
	_ = pr.Close()
	return resp, err
}

func writeUploadBody(mw *multipart.Writer, req UploadRequest) error {
	if req.Name != "" {
		if err := mw.WriteField(UploadNameField, req.Name); err != nil {
			return err
		}
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = DefaultUploadContentType
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, UploadFileField, filepath.Base(req.Filename)))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, req.Content); err != nil {
		return err
	}
	return mw.Close()
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Message != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Message
		apiErr.Detail = errResp.Error
		return apiErr
	}
	apiErr.Message = fmt.Sprintf("api error: %s", resp.Status)
	return apiErr
}

// ParseBaseURL validates a base API URL.
func ParseBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid api url %q", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
