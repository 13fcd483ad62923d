package server

import (
	"context"
	"net/http"
	"time"

	"imgshelf/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{
		Status:    api.HealthStatusUp,
		Database:  api.DatabaseConnected,
		Timestamp: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := s.records.Ping(ctx); err != nil {
		s.log().Warn("health check database ping failed", "error", err)
		resp.Database = api.DatabaseDisconnected
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, makeAPIError(http.StatusNotFound, KindNotFound, ErrCodeRouteNotFound, msgNotFound, nil))
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, makeAPIError(http.StatusMethodNotAllowed, KindNotFound, ErrCodeMethodNotAllowed, msgMethodNotAllowed, nil))
}
