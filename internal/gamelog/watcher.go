package gamelog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher signals when the game log grows or is replaced. It watches the
// log's parent directory with fsnotify so rotation is seen, and falls back to
// polling the file's size and modification time when fsnotify is unavailable.
type Watcher struct {
	// path is the absolute path of the log file.
	path string
	// events delivers a signal per change. Buffered to 1 so bursts of writes
	// coalesce into a single wake-up.
	events chan struct{}
	// done is closed by [Watcher.Close].
	done chan struct{}
	// fsw is the native watcher; nil when polling.
	fsw *fsnotify.Watcher
	// once makes [Watcher.Close] idempotent.
	once sync.Once
	// polling is true once the watcher has fallen back to stat polling.
	polling atomic.Bool
	// pollInterval is the stat interval in polling mode.
	pollInterval time.Duration
}

// NewWatcher starts watching the log file at path.
func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving log path: %w", err)
	}
	w := &Watcher{
		path:         abs,
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		pollInterval: time.Second,
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Info("fsnotify unavailable, falling back to polling", "error", err)
		w.startPolling()
		return w, nil
	}

	w.fsw = fsw
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		slog.Info("cannot watch log directory, falling back to polling", "path", abs, "error", err)
		fsw.Close()
		w.fsw = nil
		w.startPolling()
		return w, nil
	}

	go w.watch(fsw)
	return w, nil
}

// Polling reports whether the watcher is using polling instead of fsnotify.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Events returns a channel that receives a signal when the log changes.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		if w.fsw != nil {
			if closeErr := w.fsw.Close(); closeErr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", closeErr)
			}
		}
	})
	return err
}

// watch forwards fsnotify events for the log file. On a watcher error it
// switches to polling for the rest of the session.
func (w *Watcher) watch(fsw *fsnotify.Watcher) {
	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Op&relevant != 0 && filepath.Clean(event.Name) == w.path {
				w.notify()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Info("fsnotify error, switching to polling", "error", err)
			w.startPolling()
			return
		}
	}
}

func (w *Watcher) startPolling() {
	w.polling.Store(true)
	go w.poll()
}

// poll stats the log file and signals when its size or modification time
// changes.
func (w *Watcher) poll() {
	var lastSize int64
	var lastMod time.Time
	if info, err := os.Stat(w.path); err == nil {
		lastSize, lastMod = info.Size(), info.ModTime()
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			if info.Size() != lastSize || !info.ModTime().Equal(lastMod) {
				lastSize, lastMod = info.Size(), info.ModTime()
				w.notify()
			}
		}
	}
}

// notify sends a single signal, dropping it when one is already pending.
func (w *Watcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}
