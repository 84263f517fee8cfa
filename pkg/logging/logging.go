package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// LogLevel is the severity of an entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levels = [...]struct {
	name string
	slog slog.Level
}{
	LevelDebug: {"DEBUG", slog.LevelDebug},
	LevelInfo:  {"INFO", slog.LevelInfo},
	LevelWarn:  {"WARN", slog.LevelWarn},
	LevelError: {"ERROR", slog.LevelError},
}

func (l LogLevel) valid() bool { return l >= 0 && int(l) < len(levels) }

func (l LogLevel) String() string {
	if !l.valid() {
		return "UNKNOWN"
	}
	return levels[l].name
}

// SlogLevel maps l onto slog. Unknown levels log at info.
func (l LogLevel) SlogLevel() slog.Level {
	if !l.valid() {
		return slog.LevelInfo
	}
	return levels[l].slog
}

// ParseLevel reads a level name case-insensitively. "warning" is accepted
// for warn and anything unknown is info.
func ParseLevel(s string) LogLevel {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "WARNING" {
		s = "WARN"
	}
	for i, lv := range levels {
		if lv.name == s {
			return LogLevel(i)
		}
	}
	return LevelInfo
}

// Format selects the slog handler used for output.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
)

// Init replaces the process logger. It also becomes slog's default so
// libraries logging through slog end up in the same stream.
func Init(level LogLevel, format Format, output io.Writer) {
	opts := &slog.HandlerOptions{Level: level.SlogLevel()}
	var h slog.Handler = slog.NewTextHandler(output, opts)
	if format == FormatJSON {
		h = slog.NewJSONHandler(output, opts)
	}
	logger := slog.New(h)

	mu.Lock()
	defaultLogger = logger
	mu.Unlock()
	slog.SetDefault(logger)
}

// InitForCLI initializes the logging system with the text handler.
func InitForCLI(filterLevel LogLevel, output io.Writer) {
	Init(filterLevel, FormatText, output)
}

// Logger returns the slog logger backing this package, scoped to a
// subsystem. Useful for libraries that accept a *slog.Logger.
func Logger(subsystem string) *slog.Logger {
	return current().With(slog.String("subsystem", subsystem))
}

func current() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l == nil {
		return slog.Default()
	}
	return l
}

func logInternal(level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	logger := current()
	if !logger.Enabled(context.Background(), level.SlogLevel()) {
		return
	}

	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	var slogAttrs []slog.Attr
	slogAttrs = append(slogAttrs, slog.String("subsystem", subsystem))
	if err != nil {
		slogAttrs = append(slogAttrs, slog.String("error", err.Error()))
	}

	logger.LogAttrs(context.Background(), level.SlogLevel(), msg, slogAttrs...)
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, messageFmt, args...)
}

// Audit logs a security-relevant event under the SECURITY_AUDIT subsystem.
// Values passed here must never contain token material.
func Audit(event string, attrs ...slog.Attr) {
	logger := current()
	all := append([]slog.Attr{slog.String("subsystem", "SECURITY_AUDIT"), slog.String("event", event)}, attrs...)
	logger.LogAttrs(context.Background(), slog.LevelInfo, "security audit", all...)
}

// TruncateSessionID shortens a session id for log output.
func TruncateSessionID(sessionID string) string {
	if len(sessionID) <= 8 {
		return sessionID
	}
	return sessionID[:8] + "..."
}
