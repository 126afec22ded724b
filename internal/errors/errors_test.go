package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("underlying error")
	err := New(StoreError, "failed to save record", cause)

	if err.Code != StoreError {
		t.Errorf("Code = %v, want %v", err.Code, StoreError)
	}
	if err.Message != "failed to save record" {
		t.Errorf("Message = %q, want %q", err.Message, "failed to save record")
	}
	if !errors.Is(err, cause) {
		t.Error("expected error chain to contain cause")
	}
}

func TestSchedulerError_Error(t *testing.T) {
	tests := []struct {
		name      string
		err       *SchedulerError
		wantParts []string
	}{
		{
			name:      "with cause",
			err:       New(StoreError, "write failed", errors.New("disk full")),
			wantParts: []string{"STORE_ERROR", "write failed", "disk full"},
		},
		{
			name:      "without cause",
			err:       Newf(ExecutionNotFound, "execution %q not found", "abc"),
			wantParts: []string{"EXECUTION_NOT_FOUND", `execution "abc" not found`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, missing %q", got, part)
				}
			}
		})
	}
}

func TestHasCode(t *testing.T) {
	base := Newf(InvalidTransition, "cannot approve")
	wrapped := fmt.Errorf("approve: %w", base)

	if !HasCode(wrapped, InvalidTransition) {
		t.Error("HasCode() should find code through wrapping")
	}
	if HasCode(wrapped, ReentrantExecution) {
		t.Error("HasCode() matched the wrong code")
	}
	if HasCode(errors.New("plain"), InvalidTransition) {
		t.Error("HasCode() matched a plain error")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(fmt.Errorf("x: %w", Newf(ReportNotFound, "missing"))); got != ReportNotFound {
		t.Errorf("CodeOf() = %v, want %v", got, ReportNotFound)
	}
	if got := CodeOf(errors.New("plain")); got != InternalError {
		t.Errorf("CodeOf(plain) = %v, want %v", got, InternalError)
	}
}

func TestWithDetails(t *testing.T) {
	err := Newf(InvalidArgument, "bad limit").WithDetails(map[string]int{"limit": -1})
	if err.Details == nil {
		t.Error("Details should be set")
	}
}
