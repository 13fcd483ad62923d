package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if s.trustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(s.withRecovery)
	r.Use(s.withRequestLogging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: s.allowCredentials,
		MaxAge:           300,
	}))

	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleMethodNotAllowed)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/images", s.handleListImages)
		r.With(s.withUploadRateLimit).Post("/upload", s.handleUploadImage)
	})

	// Blobs are served read-only under their locator.
	r.Get("/uploads/{name}", s.handleServeUpload)

	return r
}
