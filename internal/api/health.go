package api

import (
	"net/http"
	"time"

	"cascade/internal/version"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	Version          string    `json:"version"`
	Uptime           string    `json:"uptime"`
	Artifacts        int       `json:"artifacts"`
	Edges            int       `json:"edges"`
	GraphVersion     uint64    `json:"graphVersion"`
	WeakArtifacts    int       `json:"weakArtifacts"`
	ActiveExecutions int       `json:"activeExecutions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.Graph().Stats()
	WriteJSON(w, HealthResponse{
		Status:           "healthy",
		Timestamp:        time.Now().UTC(),
		Version:          version.Version,
		Uptime:           time.Since(s.started).Round(time.Second).String(),
		Artifacts:        stats.Nodes,
		Edges:            stats.Edges,
		GraphVersion:     s.engine.Graph().Version(),
		WeakArtifacts:    s.engine.Index().Len(),
		ActiveExecutions: len(s.engine.ActiveExecutions()),
	}, http.StatusOK)
}
