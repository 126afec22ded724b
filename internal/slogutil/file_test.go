package slogutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"", 0},
		{"invalid", 0},
		{"-5", 0},
		{"100", 100},
		{"100B", 100},
		{"1kb", 1024},
		{"10KB", 10240},
		{"10MB", 10 << 20},
		{"1GB", 1 << 30},
		{"1.5MB", int64(1.5 * (1 << 20))},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseSize(tt.input); got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestRotatingWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "serve.log")
	w, err := OpenRotating(path, 30, 2)
	if err != nil {
		t.Fatalf("OpenRotating() error = %v", err)
	}
	defer w.Close()

	line := []byte("0123456789abcdefghij\n") // 21 bytes
	for i := 0; i < 4; i++ {
		if _, err := w.Write(line); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	for _, p := range []string{path, path + ".1", path + ".2"} {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("ReadFile(%s) error = %v", p, err)
		}
		if string(data) != string(line) {
			t.Errorf("%s = %q, want one line", filepath.Base(p), data)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("backup beyond keep limit exists: %v", err)
	}
}

func TestRotatingWriter_NoLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.log")
	w, err := OpenRotating(path, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		_, _ = w.Write([]byte("line\n"))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("rotated without a size limit")
	}
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.log")
	logger, closer, err := NewFileLogger(path, slog.LevelInfo, "1MB", 3)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	logger.Info("Wave approved", "execution", "e-1")
	logger.Debug("hidden")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, "[info] Wave approved") || !strings.Contains(out, "execution=e-1") {
		t.Errorf("log file = %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug line written at info level")
	}
}
