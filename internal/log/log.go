package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Logger is the single leveled logger shared by every package, matching
// the daemon's "one line per notable event with microsecond-resolution
// timestamp" requirement (spec.md s7).
type Logger struct {
	h     *slog.Logger
	level *slog.LevelVar
}

var std = New(LevelInfo)

// Default returns the process-wide logger. CCND_DEBUG (see config) calls
// SetLevel on it at startup.
func Default() *Logger { return std }

// New builds a Logger writing microsecond-timestamped lines to stderr.
func New(level Level) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(slog.Level(level))
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lv,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format("15:04:05.000000"))
			}
			return a
		},
	})
	return &Logger{h: slog.New(h), level: lv}
}

// SetLevel adjusts the minimum level emitted, e.g. from CCND_DEBUG.
func (l *Logger) SetLevel(level Level) { l.level.Set(slog.Level(level)) }

// module stringifies the "component" argument the way the teacher's
// core.Log.* helpers did (an object implementing String()).
func module(m any) string {
	if s, ok := m.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", m)
}

func (l *Logger) log(ctx context.Context, level Level, m any, msg string, args ...any) {
	args = append([]any{"component", module(m)}, args...)
	l.h.Log(ctx, slog.Level(level), msg, args...)
}

func (l *Logger) Trace(m any, msg string, args ...any) { l.log(context.Background(), LevelTrace, m, msg, args...) }
func (l *Logger) Debug(m any, msg string, args ...any) { l.log(context.Background(), LevelDebug, m, msg, args...) }
func (l *Logger) Info(m any, msg string, args ...any)  { l.log(context.Background(), LevelInfo, m, msg, args...) }
func (l *Logger) Warn(m any, msg string, args ...any)  { l.log(context.Background(), LevelWarn, m, msg, args...) }
func (l *Logger) Error(m any, msg string, args ...any) { l.log(context.Background(), LevelError, m, msg, args...) }

// Fatal logs at FATAL and exits the process. ccndd uses it for startup
// failures: configuration loading, daemon construction and opening
// listeners.
func (l *Logger) Fatal(m any, msg string, args ...any) {
	l.log(context.Background(), LevelFatal, m, msg, args...)
	os.Exit(1)
}

// Now returns the current monotonic wall clock at microsecond resolution,
// the scheduler's time source (spec.md s4.1).
func Now() time.Time { return time.Now() }
