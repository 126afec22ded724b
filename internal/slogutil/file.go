package slogutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// RotatingWriter appends to a log file and rolls it over to path.1,
// path.2, ... once it would exceed maxBytes. A zero maxBytes never rotates.
type RotatingWriter struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	keep     int
	f        *os.File
	written  int64
}

// OpenRotating opens path for appending, creating parent directories.
func OpenRotating(path string, maxBytes int64, keep int) (*RotatingWriter, error) {
	w := &RotatingWriter{path: path, maxBytes: maxBytes, keep: keep}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.f = f
	w.written = info.Size()
	return nil
}

// Write rotates first when p would push the file past its limit. A failed
// rotation keeps writing to the current file.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.maxBytes > 0 && w.written > 0 && w.written+int64(len(p)) > w.maxBytes {
		_ = w.rotate()
	}
	n, err := w.f.Write(p)
	w.written += int64(n)
	return n, err
}

// Close closes the current file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func (w *RotatingWriter) rotate() error {
	if err := w.f.Close(); err != nil {
		return err
	}
	if w.keep <= 0 {
		_ = os.Remove(w.path)
	} else {
		_ = os.Remove(w.backup(w.keep))
		for i := w.keep - 1; i >= 1; i-- {
			_ = os.Rename(w.backup(i), w.backup(i+1))
		}
		_ = os.Rename(w.path, w.backup(1))
	}
	return w.open()
}

func (w *RotatingWriter) backup(n int) string {
	return w.path + "." + strconv.Itoa(n)
}

// ParseSize reads sizes like "512", "64KB", "10MB" or "1GB". Invalid input
// yields 0.
func ParseSize(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0
	}
	mult := int64(1)
	for _, u := range []struct {
		suffix string
		mult   int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}} {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			mult = u.mult
			break
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return int64(v * float64(mult))
}

// NewFileLogger returns a logger writing to a rotating file at path.
func NewFileLogger(path string, level slog.Level, maxSize string, keep int) (*slog.Logger, io.Closer, error) {
	w, err := OpenRotating(path, ParseSize(maxSize), keep)
	if err != nil {
		return nil, nil, err
	}
	return NewLogger(w, level), w, nil
}
