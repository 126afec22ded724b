package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"cascade/internal/cascade"
	"cascade/internal/execution"
)

var regenCommandFlag string

var runCmd = &cobra.Command{
	Use:   "run <artifact>",
	Short: "Plan and execute a cascade, wave by wave",
	Long: `Plan the cascade for an artifact and execute it. Each wave's artifacts
are regenerated concurrently by the configured regeneration command; after
every wave the scored result is shown and the next wave only starts once you
approve it. Declining, closing stdin or pressing Ctrl+C aborts.

The command receives the task as JSON on stdin and CASCADE_TASK_ID,
CASCADE_ARTIFACT, CASCADE_SEED, CASCADE_WAVE and CASCADE_MODE in its
environment, and prints a verification result as JSON on stdout.

Examples:
  cascade run internal/store/db.go --manifest scan.json --command ./regen.sh`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&regenCommandFlag, "command", "", "Regeneration command (overrides scheduler.regenCommand)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := openSession(newLogger(), true)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.engine.PlanCascade(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, formatReportHuman(report))
	fmt.Fprintln(os.Stderr)

	st, err := s.engine.StartExecution(report)
	if err != nil {
		return err
	}
	for _, w := range st.Warnings {
		fmt.Fprintln(os.Stderr, "Warning: "+w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	release := abortOnInterrupt(ctx, s.engine, st.ID, func() {
		// drive may be blocked on stdin, so exit from here.
		fmt.Fprintln(os.Stderr, "\nInterrupted; execution aborted.")
		s.Close()
		os.Exit(130)
	})

	final, err := drive(context.Background(), s.engine, st.ID, os.Stdin, os.Stderr)
	release()
	if err != nil {
		return err
	}
	return printResponse(final)
}

// abortOnInterrupt aborts execution id once ctx is done and then calls
// interrupted. The returned release stops watching and waits until the
// watcher has exited; after it returns, cancelling ctx has no effect.
func abortOnInterrupt(ctx context.Context, engine *cascade.Engine, id string, interrupted func()) (release func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-done:
		case <-ctx.Done():
			if _, err := engine.Abort(id, "interrupted"); err == nil {
				interrupted()
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

// drive executes waves until the execution finishes, asking on in whether to
// continue after each one. Prompts and wave summaries go to out.
func drive(ctx context.Context, engine *cascade.Engine, id string, in io.Reader, out io.Writer) (*execution.State, error) {
	lines := bufio.NewScanner(in)
	for {
		wc, err := engine.ExecuteWave(ctx, id)
		if err != nil {
			// Aborted while the wave ran.
			if st, serr := engine.ExecutionState(id); serr == nil && st.Terminal() {
				return st, nil
			}
			return nil, err
		}
		fmt.Fprintln(out, formatWaveHuman(wc))

		st, err := engine.ExecutionState(id)
		if err != nil {
			return nil, err
		}
		if st.EscalatedToHuman {
			fmt.Fprintf(out, "Confidence has stayed below %.2f for %d consecutive waves; review the changes before approving.\n",
				execution.EscalationThreshold, execution.EscalationWindow)
		}

		total := len(st.Report.Waves)
		approved, reason := confirm(lines, out, fmt.Sprintf("Approve wave %d of %d?", st.CurrentWave+1, total))
		if !approved {
			return engine.Abort(id, reason)
		}
		st, err = engine.Approve(id)
		if err != nil {
			return nil, err
		}
		if st.Terminal() {
			return st, nil
		}
	}
}

// confirm asks until it gets a yes or no. End of input counts as no.
func confirm(lines *bufio.Scanner, out io.Writer, question string) (bool, string) {
	for {
		fmt.Fprintf(out, "%s [y/n] ", question)
		if !lines.Scan() {
			fmt.Fprintln(out)
			return false, "input closed before approval"
		}
		switch strings.ToLower(strings.TrimSpace(lines.Text())) {
		case "y", "yes":
			return true, ""
		case "n", "no":
			return false, "declined by operator"
		}
	}
}
