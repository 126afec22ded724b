package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cascade/internal/api"
	"cascade/internal/config"
	"cascade/internal/slogutil"
)

var (
	serveAddr  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP API server",
	Long: `Start the scheduler's HTTP API. Manifests and the SCIP index named in the
config or on the command line are loaded at startup; further scans can be
posted to /scan. With --watch, changed inputs are reloaded automatically.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload scan inputs when they change (overrides scan.watch)")
	serveCmd.Flags().StringVar(&regenCommandFlag, "command", "", "Regeneration command (overrides scheduler.regenCommand)")
	rootCmd.AddCommand(serveCmd)
}

// serveLogger logs to the configured rotating file, or stderr. The closer is
// nil for stderr.
func serveLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	level := slogutil.LevelFromString(cfg.Logging.Level)
	if verbosity > 0 || quietFlag {
		level = slogutil.LevelFromVerbosity(verbosity, quietFlag)
	}
	if path := cfg.LogFile(); path != "" {
		return slogutil.NewFileLogger(path, level, cfg.Logging.MaxSize, cfg.Logging.MaxBackups)
	}
	return slogutil.NewLogger(os.Stderr, level), nil, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	logger, closer, err := serveLogger(cfg)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	s, err := openSession(logger, true)
	if err != nil {
		return err
	}
	defer s.Close()

	addr := serveAddr
	if addr == "" {
		addr = s.cfg.Server.Addr
	}
	server := api.NewServer(addr, s.engine, logger)

	if serveWatch || s.cfg.Scan.Watch {
		stop := s.watch()
		defer stop()
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		fmt.Printf("cascade API listening on http://%s\n", addr)
		fmt.Println("Press Ctrl+C to stop")
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server error", "error", err.Error())
			return err
		}
	case sig := <-shutdown:
		logger.Info("Received shutdown signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		for _, id := range s.engine.ActiveExecutions() {
			_, _ = s.engine.Abort(id, "server shutting down")
		}
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Error during shutdown", "error", err.Error())
			return err
		}
		logger.Info("Server stopped gracefully")
	}

	return nil
}
