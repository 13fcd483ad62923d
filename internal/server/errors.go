package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"imgshelf/internal/api"
)

// ErrorKind classifies failures surfaced by the API.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation_error"
	KindStorage     ErrorKind = "storage_error"
	KindPersistence ErrorKind = "persistence_error"
	KindNotFound    ErrorKind = "not_found"
	KindRateLimited ErrorKind = "rate_limited"
	KindInternal    ErrorKind = "internal"
)

const (
	msgNoFile           = "No file uploaded"
	msgOnlyImages       = "Only image files are allowed!"
	msgFileTooLarge     = "File too large"
	msgUnexpectedField  = "Unexpected field"
	msgUploadFailed     = "Upload failed"
	msgFetchFailed      = "Failed to fetch images"
	msgSomethingWrong   = "Something went wrong"
	msgNotFound         = "Not found"
	msgMethodNotAllowed = "Method not allowed"
	msgTooManyRequests  = "Too many uploads, slow down"
)

type apiError struct {
	status  int
	kind    ErrorKind
	errCode int
	message string
	err     error
}

func (e apiError) Error() string {
	if e.err == nil {
		return e.message
	}
	if e.message == "" {
		return e.err.Error()
	}
	return e.message + ": " + e.err.Error()
}

func (e apiError) Unwrap() error {
	return e.err
}

func makeAPIError(status int, kind ErrorKind, errCode int, message string, err error) error {
	var existing apiError
	if errors.As(err, &existing) && existing.status != 0 {
		return existing
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return apiError{status: status, kind: kind, errCode: errCode, message: message, err: err}
}

func validationError(message string, errCode int) error {
	return makeAPIError(http.StatusBadRequest, KindValidation, errCode, message, nil)
}

func storageError(err error) error {
	return makeAPIError(http.StatusInternalServerError, KindStorage, ErrCodeStorageFailure, msgUploadFailed, err)
}

func persistenceError(message string, errCode int, err error) error {
	return makeAPIError(http.StatusInternalServerError, KindPersistence, errCode, message, err)
}

func internalError(err error) error {
	return makeAPIError(http.StatusInternalServerError, KindInternal, ErrCodeInternal, msgSomethingWrong, err)
}

// KindOf reports the kind of err; unclassified errors are internal.
func KindOf(err error) ErrorKind {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.kind != "" {
		return apiErr.kind
	}
	return KindInternal
}

func httpStatusFromError(err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.status != 0 {
		return apiErr.status
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		err = internalError(errors.New("unknown error"))
	}
	var apiErr apiError
	if !errors.As(err, &apiErr) {
		apiErr = internalError(err).(apiError)
	}

	status := apiErr.status
	errCode := apiErr.errCode
	if errCode == 0 {
		errCode = defaultErrorCodeByStatus(status)
	}

	fields := []any{"status", status, "code", apiErr.kind, "error_code", errCode}
	if apiErr.err != nil {
		fields = append(fields, "error", apiErr.err)
	} else {
		fields = append(fields, "message", apiErr.message)
	}
	if r != nil {
		fields = append(fields, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	}

	resp := api.ErrorResponse{Message: apiErr.message, Code: string(apiErr.kind), ErrorCode: errCode}
	switch {
	case status >= 500:
		s.log().Error("request error", fields...)
		if apiErr.err != nil {
			resp.Error = apiErr.err.Error()
		}
	case status == http.StatusTooManyRequests:
		s.log().Warn("request rejected", fields...)
	default:
		s.log().Debug("request rejected", fields...)
	}

	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write json response", "status", status, "error", err)
	}
}
