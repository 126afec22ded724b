package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cascade/internal/cascade"
	"cascade/internal/config"
	"cascade/internal/history"
	"cascade/internal/regen"
	"cascade/internal/scan"
	"cascade/internal/watcher"
)

// session is a loaded engine plus what must be closed with it.
type session struct {
	cfg    *config.Config
	engine *cascade.Engine
	store  *history.Store
	logger *slog.Logger
}

func (s *session) Close() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

// repoRoot returns --root or the working directory.
func repoRoot() (string, error) {
	if rootFlag != "" {
		return filepath.Abs(rootFlag)
	}
	return os.Getwd()
}

// loadConfig reads and validates the repository config.
func loadConfig(root string) (*config.Config, error) {
	cfg, err := config.LoadConfig(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Root = root
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openSession builds an engine from config and flags and loads every
// configured input. withHistory opens the execution history store.
func openSession(logger *slog.Logger, withHistory bool) (*session, error) {
	root, err := repoRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, err
	}

	ignore, err := scan.NewIgnore(cfg.Scan.Ignore)
	if err != nil {
		return nil, fmt.Errorf("invalid scan.ignore: %w", err)
	}

	s := &session{cfg: cfg, logger: logger}
	if withHistory {
		s.store, err = history.Open(cfg.DataDir(), logger)
		if err != nil {
			return nil, err
		}
		if cfg.Storage.RetentionDays > 0 {
			if _, err := s.store.Cleanup(time.Duration(cfg.Storage.RetentionDays) * 24 * time.Hour); err != nil {
				logger.Warn("History cleanup failed", "error", err.Error())
			}
		}
	}

	opts := cascade.Options{
		History:     s.store,
		MaxParallel: cfg.Scheduler.MaxParallel,
		MaxRetained: cfg.Scheduler.MaxRetained,
		Ignore:      ignore,
		Logger:      logger,
	}
	if regenCommandFlag != "" {
		cfg.Scheduler.RegenCommand = regenCommandFlag
	}
	if cfg.Scheduler.RegenCommand != "" {
		timeout := time.Duration(cfg.Scheduler.RegenTimeoutSeconds) * time.Second
		cmd, err := regen.NewCommand(cfg.Scheduler.RegenCommand, root, timeout, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		opts.Regenerator = cmd
	}
	s.engine = cascade.New(opts)

	if err := s.load(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// inputs returns the SCIP index (if any) and the manifests to load. Config
// paths are relative to the repository root; flag paths are used as given.
func (s *session) inputs() (scipPath string, manifests []string) {
	scipPath = scipFlag
	if scipPath == "" && s.cfg.Scan.ScipIndex != "" {
		scipPath = s.resolve(s.cfg.Scan.ScipIndex)
	}
	manifests = make([]string, 0, len(s.cfg.Scan.Manifests)+len(manifestFlags))
	for _, path := range s.cfg.Scan.Manifests {
		manifests = append(manifests, s.resolve(path))
	}
	manifests = append(manifests, manifestFlags...)
	return scipPath, manifests
}

// load applies the SCIP index first, then manifests, so manifest imports
// win for artifacts both describe.
func (s *session) load() error {
	scipPath, manifests := s.inputs()
	if scipPath != "" {
		if err := s.reload(scipPath, true); err != nil {
			return err
		}
	}
	for _, path := range manifests {
		if err := s.reload(path, false); err != nil {
			return err
		}
	}
	return nil
}

// reload applies one scan input to the engine.
func (s *session) reload(path string, isSCIP bool) error {
	if isSCIP {
		m, err := scan.LoadSCIP(path)
		if err != nil {
			return err
		}
		res, err := s.engine.ApplyGraph(m)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		s.logger.Info("Loaded SCIP index", "path", path, "artifacts", res.Updated)
		return nil
	}

	m, err := scan.LoadFile(path)
	if err != nil {
		return err
	}
	res, err := s.engine.Apply(m)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	s.logger.Info("Loaded manifest",
		"path", path,
		"artifacts", res.Updated,
		"weak", res.Weak,
		"removed", res.Removed,
	)
	return nil
}

// watch reloads scan inputs as they change until the returned stop is called.
func (s *session) watch() (stop func()) {
	scipPath, manifests := s.inputs()
	w := watcher.New(watcher.Config{
		PollInterval: time.Duration(s.cfg.Scan.PollIntervalMs) * time.Millisecond,
		Debounce:     time.Duration(s.cfg.Scan.WatchDebounceMs) * time.Millisecond,
	}, s.logger, func(path string) {
		if err := s.reload(path, path == scipPath); err != nil {
			s.logger.Error("Failed to reload scan input", "path", path, "error", err.Error())
		}
	})
	if scipPath != "" {
		w.Watch(scipPath)
	}
	for _, path := range manifests {
		w.Watch(path)
	}
	w.Start()
	return w.Stop
}

func (s *session) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.cfg.Root, path)
}
