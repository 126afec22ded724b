// Package regen provides regeneration executors the scheduler can dispatch
// wave members to.
package regen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"cascade/internal/confidence"
	"cascade/internal/errors"
	"cascade/internal/planner"
	"cascade/internal/slogutil"
)

// Command runs an external program once per task. The task is written to
// stdin as JSON and exposed through CASCADE_* environment variables; the
// program must print a JSON verification bundle on stdout. A non-zero exit
// is a failed regeneration.
type Command struct {
	args    []string
	dir     string
	timeout time.Duration
	logger  *slog.Logger
}

// NewCommand parses command into program and arguments. A zero timeout
// means no limit beyond the caller's context.
func NewCommand(command, dir string, timeout time.Duration, logger *slog.Logger) (*Command, error) {
	args := strings.Fields(command)
	if len(args) == 0 {
		return nil, errors.Newf(errors.InvalidArgument, "empty regeneration command")
	}
	return &Command{
		args:    args,
		dir:     dir,
		timeout: timeout,
		logger:  slogutil.OrDiscard(logger),
	}, nil
}

// Regenerate implements execution.Regenerator.
func (c *Command) Regenerate(ctx context.Context, task planner.Task) (confidence.Verification, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	input, err := json.Marshal(task)
	if err != nil {
		return confidence.Verification{}, fmt.Errorf("failed to encode task: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.args[0], c.args[1:]...)
	cmd.Dir = c.dir
	cmd.Env = append(os.Environ(),
		"CASCADE_TASK_ID="+task.ID,
		"CASCADE_ARTIFACT="+task.ArtifactID,
		"CASCADE_SEED="+task.SeedID,
		"CASCADE_WAVE="+strconv.Itoa(task.Wave),
		"CASCADE_MODE="+string(task.Mode),
	)
	cmd.Stdin = bytes.NewReader(input)
	// Grandchildren holding stdout open must not outlive a cancellation.
	cmd.WaitDelay = 2 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return confidence.Verification{}, fmt.Errorf("regeneration of %s cancelled: %w", task.ArtifactID, ctx.Err())
		}
		return confidence.Verification{}, fmt.Errorf("regeneration of %s failed: %v (%s)",
			task.ArtifactID, err, strings.TrimSpace(stderr.String()))
	}

	var v confidence.Verification
	dec := json.NewDecoder(&stdout)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return confidence.Verification{}, fmt.Errorf("regeneration of %s returned an invalid verification bundle: %w",
			task.ArtifactID, err)
	}

	c.logger.Debug("Regenerated artifact",
		"artifact", task.ArtifactID,
		"wave", task.Wave,
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)
	return v, nil
}

// Static returns a fixed verification for every task and remembers what it
// was asked to do. It backs dry runs.
type Static struct {
	Verification confidence.Verification
	// Failures maps artifact ids to errors returned instead of the bundle.
	Failures map[string]error

	mu    sync.Mutex
	tasks []planner.Task
}

// NewStatic returns a Static reporting every check as passing.
func NewStatic() *Static {
	return &Static{Verification: confidence.Passing()}
}

// Regenerate implements execution.Regenerator.
func (s *Static) Regenerate(ctx context.Context, task planner.Task) (confidence.Verification, error) {
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return confidence.Verification{}, err
	}
	if err, ok := s.Failures[task.ArtifactID]; ok {
		return confidence.Verification{}, err
	}
	return s.Verification, nil
}

// Tasks returns the tasks seen so far.
func (s *Static) Tasks() []planner.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]planner.Task(nil), s.tasks...)
}
