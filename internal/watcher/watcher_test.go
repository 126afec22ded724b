package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDebouncer_CoalescesTriggers(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var calls, last atomic.Int32

	for i := 1; i <= 5; i++ {
		i := int32(i)
		d.Trigger(func() {
			calls.Add(1)
			last.Store(i)
		})
	}
	time.Sleep(100 * time.Millisecond)

	if calls.Load() != 1 || last.Load() != 5 {
		t.Errorf("calls = %d, last = %d, want 1 call of the final trigger", calls.Load(), last.Load())
	}
}

func TestDebouncer_CancelAndFlush(t *testing.T) {
	d := NewDebouncer(time.Hour)
	var calls atomic.Int32

	d.Trigger(func() { calls.Add(1) })
	d.Cancel()
	d.Flush()
	if calls.Load() != 0 {
		t.Errorf("cancelled function ran %d times", calls.Load())
	}

	d.Trigger(func() { calls.Add(1) })
	d.Flush()
	d.Flush()
	if calls.Load() != 1 {
		t.Errorf("flushed function ran %d times, want 1", calls.Load())
	}
}

// touch rewrites path with content and pushes its mtime forward so
// coarse filesystem timestamps still register a change.
func touch(t *testing.T, path, content string, at time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, at, at); err != nil {
		t.Fatal(err)
	}
}

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) handle(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func TestWatcher_Poll(t *testing.T) {
	dir := t.TempDir()
	scanPath := filepath.Join(dir, "scan.json")
	otherPath := filepath.Join(dir, "other.yaml")
	base := time.Now().Add(-time.Hour)
	touch(t, scanPath, `{"artifacts":[]}`, base)
	touch(t, otherPath, "artifacts: []", base)

	rec := &recorder{}
	w := New(Config{PollInterval: time.Hour, Debounce: 0}, nil, rec.handle)
	w.Watch(scanPath)
	w.Watch(otherPath)
	w.Watch(scanPath)

	if diff := cmp.Diff([]string{otherPath, scanPath}, w.Watched()); diff != "" {
		t.Errorf("Watched() mismatch (-want +got):\n%s", diff)
	}

	// Unchanged files are not reported.
	w.Poll()
	time.Sleep(50 * time.Millisecond)
	if got := rec.got(); len(got) != 0 {
		t.Fatalf("unchanged poll reported %v", got)
	}

	touch(t, scanPath, `{"artifacts":[{"id":"a.go"}]}`, base.Add(time.Minute))
	w.Poll()
	time.Sleep(50 * time.Millisecond)
	if diff := cmp.Diff([]string{scanPath}, rec.got()); diff != "" {
		t.Errorf("reported paths mismatch (-want +got):\n%s", diff)
	}

	// Removal is not a change to reload; reappearance is.
	if err := os.Remove(scanPath); err != nil {
		t.Fatal(err)
	}
	w.Poll()
	time.Sleep(50 * time.Millisecond)
	if got := len(rec.got()); got != 1 {
		t.Errorf("removal reported; %d reports", got)
	}
	touch(t, scanPath, `{"artifacts":[]}`, base.Add(2*time.Minute))
	w.Poll()
	time.Sleep(50 * time.Millisecond)
	if got := len(rec.got()); got != 2 {
		t.Errorf("reappearance not reported; %d reports", got)
	}
}

func TestWatcher_StartStop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.json")
	touch(t, path, "{}", time.Now().Add(-time.Hour))

	changed := make(chan string, 1)
	w := New(Config{PollInterval: 10 * time.Millisecond, Debounce: 10 * time.Millisecond}, nil, func(p string) {
		select {
		case changed <- p:
		default:
		}
	})
	w.Watch(path)
	w.Start()
	defer w.Stop()

	touch(t, path, `{"artifacts":[]}`, time.Now())

	select {
	case got := <-changed:
		if got != path {
			t.Errorf("changed = %q, want %q", got, path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("change not reported")
	}
}
