package api

import (
	"context"
	"net/http"

	"cascade/internal/confidence"
	"cascade/internal/execution"
	"cascade/internal/history"
	"cascade/internal/planner"
	"cascade/internal/scan"
	"cascade/internal/weakness"
)

// WeaknessesResponse lists the weakest artifacts.
type WeaknessesResponse struct {
	Weaknesses []*weakness.Score `json:"weaknesses"`
	Count      int               `json:"count"`
}

// StartExecutionRequest starts executing a planned report.
type StartExecutionRequest struct {
	ReportID string `json:"reportId"`
}

// StartExecutionResponse carries the new execution and any staleness warnings.
type StartExecutionResponse struct {
	ExecutionID string           `json:"executionId"`
	Warnings    []string         `json:"warnings"`
	State       *execution.State `json:"state"`
}

// AbortRequest optionally explains an abort.
type AbortRequest struct {
	Reason string `json:"reason"`
}

// ExecuteWaveResponse is the scored wave plus the execution after it.
type ExecuteWaveResponse struct {
	Wave  *confidence.WaveConfidence `json:"wave"`
	State *execution.State           `json:"state"`
}

// GET /weaknesses?limit=N
func (s *Server) handleWeaknesses(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 20)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	top := s.engine.TopWeaknesses(limit)
	WriteJSON(w, WeaknessesResponse{Weaknesses: top, Count: len(top)}, http.StatusOK)
}

// GET /cascade/{seed...}
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.PlanCascade(r.PathValue("seed"))
	if err != nil {
		WriteSchedulerError(w, err)
		return
	}
	WriteJSON(w, report, http.StatusOK)
}

// GET /reports/{id}
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Report(r.PathValue("id"))
	if err != nil {
		WriteSchedulerError(w, err)
		return
	}
	WriteJSON(w, struct {
		*planner.Report
		Tasks []planner.Task `json:"tasks"`
	}{report, report.Tasks()}, http.StatusOK)
}

// POST /scan with a JSON, YAML or TOML manifest body.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	m, err := scan.Parse(body, scan.FormatFromContentType(r.Header.Get("Content-Type")))
	if err != nil {
		WriteSchedulerError(w, err)
		return
	}
	res, err := s.engine.Apply(m)
	if err != nil {
		WriteSchedulerError(w, err)
		return
	}
	WriteJSON(w, res, http.StatusOK)
}

// GET /executions
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	ids := s.engine.ActiveExecutions()
	states := make([]*execution.State, 0, len(ids))
	for _, id := range ids {
		st, err := s.engine.ExecutionState(id)
		if err != nil {
			// Finished between listing and lookup.
			continue
		}
		states = append(states, st)
	}
	WriteJSON(w, map[string]interface{}{"executions": states, "count": len(states)}, http.StatusOK)
}

// POST /executions
func (s *Server) handleStartExecution(w http.ResponseWriter, r *http.Request) {
	var req StartExecutionRequest
	if err := decodeBody(w, r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if req.ReportID == "" {
		BadRequest(w, "reportId is required")
		return
	}
	st, err := s.engine.StartExecutionByID(req.ReportID)
	if err != nil {
		WriteSchedulerError(w, err)
		return
	}
	warnings := st.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	WriteJSON(w, StartExecutionResponse{ExecutionID: st.ID, Warnings: warnings, State: st}, http.StatusCreated)
}

// GET /executions/{id}
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.ExecutionState(r.PathValue("id"))
	if err != nil {
		WriteSchedulerError(w, err)
		return
	}
	WriteJSON(w, st, http.StatusOK)
}

// POST /executions/{id}/execute blocks until the wave has been scored.
func (s *Server) handleExecuteWave(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	// A dropped connection must not fail the wave; only abort cancels it.
	ctx := context.WithoutCancel(r.Context())
	wc, err := s.engine.ExecuteWave(ctx, id)
	if err != nil {
		WriteSchedulerError(w, err)
		return
	}
	st, err := s.engine.ExecutionState(id)
	if err != nil {
		WriteSchedulerError(w, err)
		return
	}
	WriteJSON(w, ExecuteWaveResponse{Wave: wc, State: st}, http.StatusOK)
}

// POST /executions/{id}/approve
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Approve(r.PathValue("id"))
	if err != nil {
		WriteSchedulerError(w, err)
		return
	}
	WriteJSON(w, st, http.StatusOK)
}

// POST /executions/{id}/abort
func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	var req AbortRequest
	if err := decodeBody(w, r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if req.Reason == "" {
		req.Reason = "aborted via API"
	}
	st, err := s.engine.Abort(r.PathValue("id"), req.Reason)
	if err != nil {
		WriteSchedulerError(w, err)
		return
	}
	WriteJSON(w, st, http.StatusOK)
}

// GET /history?limit=N&offset=N&seed=ID&outcome=completed|aborted
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 20)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	q := r.URL.Query()
	records, err := s.engine.History(history.ListOptions{
		SeedID:  q.Get("seed"),
		Outcome: q.Get("outcome"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		WriteSchedulerError(w, err)
		return
	}
	WriteJSON(w, map[string]interface{}{"executions": records, "count": len(records)}, http.StatusOK)
}
