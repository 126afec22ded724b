package api

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.Handle("GET /metrics", promhttp.Handler())

	// Weakness index and planning
	s.router.HandleFunc("GET /weaknesses", s.handleWeaknesses)
	s.router.HandleFunc("GET /cascade/{seed...}", s.handlePlan) // seed ids contain slashes
	s.router.HandleFunc("GET /reports/{id}", s.handleGetReport)
	s.router.HandleFunc("POST /scan", s.handleScan)

	// Executions
	s.router.HandleFunc("GET /executions", s.handleListExecutions)
	s.router.HandleFunc("POST /executions", s.handleStartExecution)
	s.router.HandleFunc("GET /executions/{id}", s.handleGetExecution)
	s.router.HandleFunc("POST /executions/{id}/execute", s.handleExecuteWave)
	s.router.HandleFunc("POST /executions/{id}/approve", s.handleApprove)
	s.router.HandleFunc("POST /executions/{id}/abort", s.handleAbort)

	s.router.HandleFunc("GET /history", s.handleHistory)
}
