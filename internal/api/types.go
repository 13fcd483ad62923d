package api

import "time"

// ErrorResponse is the JSON error body returned by every endpoint.
// Error carries the underlying detail and is only set for server-side failures.
type ErrorResponse struct {
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"errorCode,omitempty"`
}

// HealthResponse reports process and database status.
type HealthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	HealthStatusUp           = "up"
	DatabaseConnected        = "connected"
	DatabaseDisconnected     = "disconnected"
	UploadFileField          = "image"
	UploadNameField          = "name"
	DefaultUploadContentType = "application/octet-stream"
)
