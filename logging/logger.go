package logging

import (
	"io"
	"log"
	"strings"
)

// Level controls which lines a Logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel maps a config string to a Level. Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is a small leveled wrapper over the standard logger. A nil *Logger
// is valid and drops everything.
type Logger struct {
	base   *log.Logger
	level  Level
	prefix string
}

// New writes timestamped lines to w.
func New(w io.Writer, level Level) *Logger {
	return &Logger{
		base:  log.New(w, "", log.LstdFlags),
		level: level,
	}
}

// Discard returns a logger that never writes.
func Discard() *Logger {
	return New(io.Discard, LevelError+1)
}

// Named returns a copy that tags every line with "[name]".
func (l *Logger) Named(name string) *Logger {
	if l == nil {
		return nil
	}
	cp := *l
	cp.prefix = "[" + name + "] "
	return &cp
}

// Enabled reports whether lines at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return l != nil && level >= l.level
}

func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

func (l *Logger) logf(level Level, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	l.base.Printf(level.String()+" "+l.prefix+format, args...)
}
