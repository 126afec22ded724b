// Package watcher polls scan inputs and reports when they change.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"cascade/internal/slogutil"
)

// ChangeHandler is called with the path of a file that changed. Calls for
// one path never overlap; calls for different paths may.
type ChangeHandler func(path string)

// Config contains watcher configuration
type Config struct {
	PollInterval time.Duration
	Debounce     time.Duration
}

// DefaultConfig returns the default watcher configuration
func DefaultConfig() Config {
	return Config{
		PollInterval: 2 * time.Second,
		Debounce:     500 * time.Millisecond,
	}
}

// Watcher polls a fixed set of files for modification.
type Watcher struct {
	config  Config
	logger  *slog.Logger
	handler ChangeHandler

	mu     sync.Mutex
	files  map[string]*fileWatch
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type fileWatch struct {
	path      string
	stamp     stamp
	debouncer *Debouncer
	// running serialises handler calls for this path
	running sync.Mutex
}

// stamp is what a poll compares; a missing file has the zero stamp.
type stamp struct {
	modTime time.Time
	size    int64
}

func statStamp(path string) stamp {
	info, err := os.Stat(path)
	if err != nil {
		return stamp{}
	}
	return stamp{modTime: info.ModTime(), size: info.Size()}
}

// New creates a watcher. Nothing is polled until Start.
func New(config Config, logger *slog.Logger, handler ChangeHandler) *Watcher {
	def := DefaultConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.Debounce < 0 {
		config.Debounce = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		config:  config,
		logger:  slogutil.OrDiscard(logger),
		handler: handler,
		files:   make(map[string]*fileWatch),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Watch adds path, remembering its current state so only later changes
// are reported.
func (w *Watcher) Watch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.files[path]; exists {
		return
	}
	w.files[path] = &fileWatch{
		path:      path,
		stamp:     statStamp(path),
		debouncer: NewDebouncer(w.config.Debounce),
	}
	w.logger.Debug("Watching scan input", "path", path)
}

// Watched returns the watched paths, sorted.
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Start begins polling in the background.
func (w *Watcher) Start() {
	w.logger.Info("Starting scan input watcher",
		"files", len(w.Watched()),
		"pollInterval", w.config.PollInterval.String(),
	)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.config.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.Poll()
			case <-w.ctx.Done():
				return
			}
		}
	}()
}

// Stop stops polling and drops pending notifications.
func (w *Watcher) Stop() {
	w.cancel()
	w.wg.Wait()

	w.mu.Lock()
	for _, fw := range w.files {
		fw.debouncer.Cancel()
	}
	w.mu.Unlock()
	w.logger.Info("Scan input watcher stopped")
}

// Poll checks every file once. Deleted files are not reported; a file that
// reappears is.
func (w *Watcher) Poll() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, fw := range w.files {
		current := statStamp(fw.path)
		if current == fw.stamp {
			continue
		}
		fw.stamp = current
		if current.modTime.IsZero() {
			w.logger.Warn("Watched scan input disappeared", "path", fw.path)
			continue
		}

		fw.debouncer.Trigger(func() {
			if w.ctx.Err() != nil || w.handler == nil {
				return
			}
			fw.running.Lock()
			defer fw.running.Unlock()
			w.logger.Info("Scan input changed", "path", fw.path)
			w.handler(fw.path)
		})
	}
}
