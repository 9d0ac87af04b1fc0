// Package logger provides structured logging with custom levels and formatting
// for the exilecord daemon.
//
// Log output format:
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | key=value, key2="two words"
//
// Custom levels beyond the standard slog set:
//   - LevelTrace (-8): per-line parser and tail diagnostics
//   - LevelFail  (12): errors that end the daemon
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ///////////////////////////////////////////////
// Custom Levels
// ///////////////////////////////////////////////

const (
	LevelTrace slog.Level = -8
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
	LevelFail  slog.Level = 12
)

var levelNames = []struct {
	max  slog.Level
	name string
}{
	{LevelTrace, "TRACE"},
	{LevelDebug, "DEBUG"},
	{LevelInfo, "INFO"},
	{LevelWarn, "WARN"},
	{LevelError, "ERROR"},
}

// levelName returns the display name for a log level. Levels between two
// named ones take the higher name.
func levelName(l slog.Level) string {
	for _, n := range levelNames {
		if l <= n.max {
			return n.name
		}
	}
	return "FAIL"
}

// ParseLevel converts a level string to slog.Level, case-insensitively.
// Unrecognized strings yield LevelInfo.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	case "fail":
		return LevelFail
	default:
		return LevelInfo
	}
}

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

// lineEnding is CRLF on Windows, LF elsewhere.
var lineEnding = "\n"

func init() {
	if runtime.GOOS == "windows" {
		lineEnding = "\r\n"
	}
}

// Handler is a slog.Handler that writes one line per record:
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | key=value, ...
//
// Values containing spaces, quotes or separators are quoted so area and
// character names stay readable.
type Handler struct {
	w     io.Writer
	mu    *sync.Mutex // shared by handlers derived via WithAttrs/WithGroup
	level slog.Leveler
	attrs []slog.Attr
	group string
}

// NewHandler creates a Handler that writes to w, filtering records below level.
func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	return &Handler{w: w, level: level, mu: &sync.Mutex{}}
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and writes a log record.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(r.Time.UTC().Format("2006-01-02T15:04:05.000Z"))
	buf.WriteString(" [")
	buf.WriteString(levelName(r.Level))
	buf.WriteString("] ")
	buf.WriteString(r.Message)

	sep := " | "
	write := func(a slog.Attr) {
		a.Value = a.Value.Resolve()
		if a.Equal(slog.Attr{}) {
			return
		}
		buf.WriteString(sep)
		sep = ", "
		if h.group != "" {
			buf.WriteString(h.group)
			buf.WriteByte('.')
		}
		buf.WriteString(a.Key)
		buf.WriteByte('=')
		buf.WriteString(formatValue(a.Value))
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		write(a)
		return true
	})

	buf.WriteString(lineEnding)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, buf.String())
	return err
}

// formatValue renders v, quoting strings that would be ambiguous unquoted.
func formatValue(v slog.Value) string {
	s := v.String()
	if v.Kind() != slog.KindString && v.Kind() != slog.KindAny {
		return s
	}
	if s == "" || strings.ContainsAny(s, " \t\r\n\",=|") {
		return strconv.Quote(s)
	}
	return s
}

// WithAttrs returns a new Handler with the given attributes pre-applied.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	newAttrs = append(newAttrs, h.attrs...)
	newAttrs = append(newAttrs, attrs...)
	return &Handler{w: h.w, mu: h.mu, level: h.level, attrs: newAttrs, group: h.group}
}

// WithGroup returns a new Handler whose attribute keys are prefixed with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	if h.group != "" {
		name = h.group + "." + name
	}
	return &Handler{w: h.w, mu: h.mu, level: h.level, attrs: h.attrs, group: name}
}

// ///////////////////////////////////////////////
// Logger Constructor
// ///////////////////////////////////////////////

// NewLogger creates a slog.Logger that writes to a rotating log file and,
// when mirror is non-nil, to mirror as well. The returned io.Closer must be
// closed to flush pending writes.
func NewLogger(logPath string, minLevel slog.Level, maxSizeMB int, mirror io.Writer) (*slog.Logger, io.Closer, error) {
	if logPath == "" {
		return nil, nil, fmt.Errorf("log path must not be empty")
	}
	lj := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    maxSizeMB,
		MaxBackups: 3,
		MaxAge:     28,
	}

	var w io.Writer = lj
	if mirror != nil {
		w = io.MultiWriter(lj, mirror)
	}
	return slog.New(NewHandler(w, minLevel)), lj, nil
}

// ///////////////////////////////////////////////
// Helper Functions
// ///////////////////////////////////////////////

// Trace logs a message at LevelTrace on the default logger.
func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}

// Fail logs a message at LevelFail on the default logger.
func Fail(msg string, args ...any) {
	slog.Log(context.Background(), LevelFail, msg, args...)
}
