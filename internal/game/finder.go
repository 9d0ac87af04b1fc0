// Package game locates the running game client and its log file.
package game

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/shirou/gopsutil/v4/process"
	"tools.zach/dev/exilecord/internal/paths"
)

// DefaultInterval is the process table polling interval.
const DefaultInterval = 3 * time.Second

// Process is the subset of *process.Process the finder reads.
type Process interface {
	NameWithContext(ctx context.Context) (string, error)
	ExeWithContext(ctx context.Context) (string, error)
	CreateTimeWithContext(ctx context.Context) (int64, error)
}

// Lister snapshots the process table.
type Lister func(ctx context.Context) ([]Process, error)

// SystemProcesses lists the processes of the local machine.
func SystemProcesses(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}
	out := make([]Process, len(procs))
	for i, p := range procs {
		out[i] = p
	}
	return out, nil
}

// Match is a running game client.
type Match struct {
	Name    string
	Exe     string
	Started time.Time // zero when the OS did not report it
}

// LogPath returns the client log next to the matched executable.
func (m Match) LogPath() string {
	return paths.GameLog(m.Exe)
}

// ///////////////////////////////////////////////
// Finder
// ///////////////////////////////////////////////

// Finder polls the process table for a client whose name matches one of
// Patterns. Patterns are doublestar globs compared case-insensitively.
type Finder struct {
	Patterns []string
	Interval time.Duration
	List     Lister

	match *Match
}

// NewFinder returns a Finder over the local process table.
func NewFinder(patterns []string, interval time.Duration) *Finder {
	return &Finder{Patterns: patterns, Interval: interval, List: SystemProcesses}
}

// Find scans the process table once. Processes whose name or executable
// cannot be read (exited, access denied) are skipped.
func (f *Finder) Find(ctx context.Context) (Match, bool, error) {
	procs, err := f.List(ctx)
	if err != nil {
		return Match{}, false, err
	}
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || !f.matches(name) {
			continue
		}
		exe, err := p.ExeWithContext(ctx)
		if err != nil || exe == "" {
			slog.Debug("matching process has no readable executable", "name", name, "error", err)
			continue
		}
		m := Match{Name: name, Exe: exe}
		if ms, err := p.CreateTimeWithContext(ctx); err == nil && ms > 0 {
			m.Started = time.UnixMilli(ms)
		}
		f.match = &m
		return m, true, nil
	}
	return Match{}, false, nil
}

// WaitForLog blocks until a matching client is running and returns its log
// path. It returns ctx.Err() when ctx is cancelled first. Scan errors are
// logged and retried.
func (f *Finder) WaitForLog(ctx context.Context) (string, error) {
	interval := f.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	waiting := false
	for {
		m, ok, err := f.Find(ctx)
		switch {
		case err != nil:
			slog.Warn("process scan failed", "error", err)
		case ok:
			slog.Info("game client found", "name", m.Name, "exe", m.Exe)
			return m.LogPath(), nil
		case !waiting:
			slog.Info("waiting for game client", "patterns", strings.Join(f.Patterns, ","))
			waiting = true
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// StartTime returns when the game client started: the matched process's
// creation time, found by a fresh scan if nothing matched yet. It falls back
// to now.
func (f *Finder) StartTime(ctx context.Context) time.Time {
	if f.match == nil {
		if _, _, err := f.Find(ctx); err != nil {
			slog.Debug("process scan for start time failed", "error", err)
		}
	}
	if f.match != nil && !f.match.Started.IsZero() {
		return f.match.Started
	}
	return time.Now()
}

func (f *Finder) matches(name string) bool {
	name = strings.ToLower(name)
	for _, pattern := range f.Patterns {
		if ok, err := doublestar.Match(strings.ToLower(pattern), name); err == nil && ok {
			return true
		}
	}
	return false
}
