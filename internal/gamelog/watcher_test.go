package gamelog

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// pollingWatcher builds a Watcher in polling mode without going through
// fsnotify.
func pollingWatcher(path string, interval time.Duration) *Watcher {
	w := &Watcher{
		path:         path,
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		pollInterval: interval,
	}
	w.startPolling()
	return w
}

func expectEvent(t *testing.T, w *Watcher, within time.Duration) {
	t.Helper()
	select {
	case <-w.Events():
	case <-time.After(within):
		t.Fatal("timed out waiting for watcher event")
	}
}

func expectNoEvent(t *testing.T, w *Watcher, within time.Duration) {
	t.Helper()
	select {
	case <-w.Events():
		t.Fatal("unexpected watcher event")
	case <-time.After(within):
	}
}

// ///////////////////////////////////////////////
// NewWatcher
// ///////////////////////////////////////////////

func TestNewWatcher_AppendTriggersEvent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow watcher test in short mode")
	}
	path := writeLog(t, "start\n")

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	time.Sleep(100 * time.Millisecond)
	appendLog(t, path, heroLevel+"\n")
	expectEvent(t, w, 5*time.Second)
}

func TestNewWatcher_IgnoresSiblingFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow watcher test in short mode")
	}
	path := writeLog(t, "start\n")

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()
	if w.Polling() {
		t.Skip("fsnotify unavailable")
	}

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "KickRecords.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectNoEvent(t, w, 300*time.Millisecond)
}

func TestNewWatcher_MissingFileInExistingDir(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "Client.txt"))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestWatcher_CloseIdempotent(t *testing.T) {
	w, err := NewWatcher(writeLog(t, ""))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

// ///////////////////////////////////////////////
// Polling
// ///////////////////////////////////////////////

func TestPoll_DetectsGrowth(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow polling test in short mode")
	}
	path := writeLog(t, "start\n")
	w := pollingWatcher(path, 20*time.Millisecond)
	defer w.Close()

	if !w.Polling() {
		t.Error("Polling() = false for a polling watcher")
	}
	time.Sleep(60 * time.Millisecond)
	appendLog(t, path, "more\n")
	expectEvent(t, w, 3*time.Second)
}

func TestPoll_CoalescesBursts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow polling test in short mode")
	}
	path := writeLog(t, "")
	w := pollingWatcher(path, 20*time.Millisecond)
	defer w.Close()

	time.Sleep(60 * time.Millisecond)
	for range 5 {
		appendLog(t, path, "line\n")
		time.Sleep(30 * time.Millisecond)
	}
	expectEvent(t, w, 3*time.Second)
	if len(w.events) > 1 {
		t.Errorf("%d events buffered, want at most 1", len(w.events))
	}
}

func TestPoll_MissingFileNoEvent(t *testing.T) {
	w := pollingWatcher(filepath.Join(t.TempDir(), "Client.txt"), 20*time.Millisecond)
	defer w.Close()
	expectNoEvent(t, w, 150*time.Millisecond)
}

func TestPoll_StopsOnClose(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow polling test in short mode")
	}
	path := writeLog(t, "start\n")
	w := pollingWatcher(path, 20*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	w.Close()
	time.Sleep(60 * time.Millisecond)

	appendLog(t, path, "after close\n")
	expectNoEvent(t, w, 200*time.Millisecond)
}
