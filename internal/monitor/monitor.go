// Package monitor runs the presence loop: it seeds the status from the log
// history, then tails the log, folds new events and pushes the rendered
// presence on a fixed cadence.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	"tools.zach/dev/exilecord/internal/discord"
	"tools.zach/dev/exilecord/internal/gamelog"
	"tools.zach/dev/exilecord/internal/logger"
)

// DefaultInterval is the push cadence.
const DefaultInterval = 5 * time.Second

// Presence receives rendered activities. *discord.Client implements it.
type Presence interface {
	Connect() error
	Connected() bool
	SetActivity(*discord.Activity) error
}

// Options configures a [Monitor].
type Options struct {
	// LogPath is the game log to follow.
	LogPath string
	// Parser extracts events from log lines.
	Parser *gamelog.Parser
	// Renderer synthesizes presentations; nil uses a zero Renderer.
	Renderer *gamelog.Renderer
	// Presence receives every push.
	Presence Presence
	// Interval is the push cadence; zero uses DefaultInterval.
	Interval time.Duration
	// Started is the activity start timestamp, fixed for the session.
	Started time.Time
	// LargeImage and LargeText are the static large asset. Empty omits them.
	LargeImage string
	LargeText  string
	// ReconnectEvery throttles reconnect attempts while Presence is
	// disconnected. Zero never reconnects.
	ReconnectEvery time.Duration
}

// Monitor owns the status snapshot and the log cursor. It is driven by a
// single goroutine.
type Monitor struct {
	opts      Options
	renderer  *gamelog.Renderer
	status    gamelog.Status
	tail      *gamelog.Tail
	reconnect *rate.Limiter
}

// New returns a Monitor for opts. Call [Monitor.Seed] before [Monitor.Run].
func New(opts Options) *Monitor {
	m := &Monitor{opts: opts, renderer: opts.Renderer}
	if m.renderer == nil {
		m.renderer = &gamelog.Renderer{}
	}
	if m.opts.Interval <= 0 {
		m.opts.Interval = DefaultInterval
	}
	if opts.ReconnectEvery > 0 {
		m.reconnect = rate.NewLimiter(rate.Every(opts.ReconnectEvery), 1)
	}
	return m
}

// Status returns a copy of the current snapshot.
func (m *Monitor) Status() gamelog.Status {
	return m.status
}

// ///////////////////////////////////////////////
// Phases
// ///////////////////////////////////////////////

// Seed positions the cursor at the end of the log, then scans the existing
// content backward for the last level-up. When one is found it becomes the
// status and a seed presentation is pushed. Lines appended after the cursor
// was placed are picked up by the first read.
func (m *Monitor) Seed() error {
	tail, err := gamelog.OpenTail(m.opts.LogPath)
	if err != nil {
		return err
	}
	if err := tail.SeekEnd(); err != nil {
		tail.Close()
		return err
	}
	m.tail = tail

	lu, ok, err := gamelog.LastLevelUp(m.opts.LogPath, m.opts.Parser)
	if err != nil {
		return fmt.Errorf("scanning log history: %w", err)
	}
	if !ok {
		slog.Info("no level-up in log history, waiting for one", "path", m.opts.LogPath)
		return nil
	}

	m.status.Level = &lu
	slog.Info("seeded from log history", "user", lu.Username, "class", lu.BaseClass, "level", lu.Level)
	m.push(m.renderer.RenderSeed(lu))
	return nil
}

// Read folds lines appended since the last read without pushing.
func (m *Monitor) Read() {
	lines, err := m.tail.ReadLines()
	if err != nil {
		slog.Warn("reading game log failed", "error", err)
	}
	if len(lines) == 0 {
		return
	}
	changed := m.status.FoldLines(m.opts.Parser, lines)
	logger.Trace("folded log lines", "lines", len(lines), "changed", changed)
}

// Tick reads and folds new lines, then renders and pushes the status. The
// push happens on every tick, new lines or not, so the AFK blink and flavor
// draw keep moving.
func (m *Monitor) Tick() {
	m.Read()
	p, ok := m.renderer.Render(&m.status)
	if !ok {
		return
	}
	m.push(p)
}

// Run ticks every interval until ctx is cancelled. Signals on wake fold new
// lines early without pushing. Run closes the log on return.
func (m *Monitor) Run(ctx context.Context, wake <-chan struct{}) error {
	if m.tail == nil {
		return errors.New("monitor not seeded")
	}
	defer m.tail.Close()

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	slog.Info("following game log", "path", m.opts.LogPath, "interval", m.opts.Interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-wake:
			m.Read()
		case <-ticker.C:
			m.Tick()
		}
	}
}

// ///////////////////////////////////////////////
// Presence
// ///////////////////////////////////////////////

// activity builds the Discord payload for p.
func (m *Monitor) activity(p gamelog.Presentation) *discord.Activity {
	a := &discord.Activity{
		Details: p.Details,
		State:   p.State,
		Assets: &discord.Assets{
			LargeImage: m.opts.LargeImage,
			LargeText:  m.opts.LargeText,
			SmallImage: p.SmallImage,
		},
	}
	if !m.opts.Started.IsZero() {
		a.Timestamps = &discord.Timestamps{Start: m.opts.Started.Unix()}
	}
	return a
}

// push sends p. Failures are logged and never change the status.
func (m *Monitor) push(p gamelog.Presentation) {
	presence := m.opts.Presence
	if !presence.Connected() && m.reconnect != nil && m.reconnect.Allow() {
		if err := presence.Connect(); err != nil {
			slog.Debug("discord reconnect failed", "error", err)
		} else {
			slog.Info("reconnected to discord")
		}
	}

	err := presence.SetActivity(m.activity(p))
	switch {
	case err == nil:
		slog.Debug("presence updated", "details", p.Details, "state", p.State)
	case errors.Is(err, discord.ErrNotConnected):
		slog.Debug("presence not updated, discord not connected")
	default:
		slog.Warn("presence update failed", "error", err)
	}
}
