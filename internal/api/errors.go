package api

import (
	"encoding/json"
	"net/http"

	"cascade/internal/errors"
)

// ErrorResponse represents an HTTP error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

// WriteError writes an error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err error, status int) {
	resp := ErrorResponse{
		Error: err.Error(),
		Code:  string(errors.CodeOf(err)),
	}
	if se, ok := err.(*errors.SchedulerError); ok {
		resp.Details = se.Details
	}
	WriteJSON(w, resp, status)
}

// WriteSchedulerError writes err with the status its code maps to.
func WriteSchedulerError(w http.ResponseWriter, err error) {
	WriteError(w, err, StatusFor(errors.CodeOf(err)))
}

// StatusFor maps scheduler error codes to HTTP status codes
func StatusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ReportNotFound, errors.ExecutionNotFound:
		return http.StatusNotFound // 404
	case errors.InvalidTransition, errors.ReentrantExecution:
		return http.StatusConflict // 409
	case errors.InvalidArgument:
		return http.StatusBadRequest // 400
	default:
		return http.StatusInternalServerError // 500
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// BadRequest writes a 400 Bad Request error
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, errors.Newf(errors.InvalidArgument, "%s", message), http.StatusBadRequest)
}

// InternalError writes a 500 Internal Server Error
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, errors.Newf(errors.InternalError, "%s", message), http.StatusInternalServerError)
}
