package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"imgshelf/internal/blobstore"
	"imgshelf/internal/store"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second
	healthTimeout     = 2 * time.Second

	// DefaultMultipartMaxMemory bounds the in-memory part of a parsed form.
	DefaultMultipartMaxMemory int64 = 8 << 20
	// multipartOverhead leaves room for boundaries and the name field.
	multipartOverhead int64 = 1 << 20
)

// Options configures a Server.
type Options struct {
	Addr               string
	Records            store.RecordStore
	Blobs              blobstore.BlobStore
	MaxUploadBytes     int64
	MultipartMaxMemory int64
	AllowedOrigins     []string
	AllowCredentials   bool
	UploadsPerSecond   float64
	UploadBurst        int
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Only enable it behind a proxy that overwrites them.
	TrustProxyHeaders  bool
	Logger             *slog.Logger
}

// Server wraps HTTP handlers for the imgshelf API.
type Server struct {
	addr               string
	records            store.RecordStore
	blobs              blobstore.BlobStore
	uploads            *UploadService
	multipartMaxMemory int64
	allowedOrigins     []string
	allowCredentials   bool
	uploadLimiter      *uploadRateLimiter
	trustProxyHeaders  bool
	logger             *slog.Logger
	handler            http.Handler
}

// New creates a new server instance.
func New(opts Options) (*Server, error) {
	if opts.Records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if opts.Blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MultipartMaxMemory <= 0 {
		opts.MultipartMaxMemory = DefaultMultipartMaxMemory
	}

	s := &Server{
		addr:               opts.Addr,
		records:            opts.Records,
		blobs:              opts.Blobs,
		uploads:            NewUploadService(opts.Records, opts.Blobs, opts.MaxUploadBytes, logger),
		multipartMaxMemory: opts.MultipartMaxMemory,
		allowedOrigins:     opts.AllowedOrigins,
		allowCredentials:   opts.AllowCredentials,
		uploadLimiter:      newUploadRateLimiter(opts.UploadsPerSecond, opts.UploadBurst),
		trustProxyHeaders:  opts.TrustProxyHeaders,
		logger:             logger,
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log().Info("starting server", "addr", s.addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
