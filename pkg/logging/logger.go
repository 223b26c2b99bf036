// Package logging provides structured logging for the spacerace simulator.
// It wraps Go's standard slog package. Entries logged with a context carry
// the session ID and tick stored in it, sensitive attributes are redacted,
// and errors keep their cause when wrapped.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Environment variables read by NewLogger
const (
	LevelEnv  = "SPACERACE_LOG_LEVEL"
	FormatEnv = "SPACERACE_LOG_FORMAT"
)

// Format selects the handler used to encode entries
type Format int

const (
	FormatJSON Format = iota
	FormatText
)

func (f Format) String() string {
	if f == FormatText {
		return "text"
	}
	return "json"
}

// ParseFormat accepts "json" or "text". Anything else is JSON.
func ParseFormat(name string) Format {
	if strings.EqualFold(strings.TrimSpace(name), "text") {
		return FormatText
	}
	return FormatJSON
}

// ParseLevel converts a level name into a slog level, defaulting to INFO
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger is a slog.Logger whose level methods take a context and pull the
// session fields out of it
type Logger struct {
	*slog.Logger
}

// NewLogger writes to stderr, leaving stdout to the terminal renderer. Level
// and format come from SPACERACE_LOG_LEVEL and SPACERACE_LOG_FORMAT.
func NewLogger() *Logger {
	return New(os.Stderr, ParseLevel(os.Getenv(LevelEnv)), ParseFormat(os.Getenv(FormatEnv)))
}

// New creates a logger writing entries of the given format to w
func New(w io.Writer, level slog.Level, format Format) *Logger {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: redact}
	var handler slog.Handler
	if format == FormatText {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return &Logger{slog.New(handler)}
}

// NewLoggerWithWriter creates a JSON logger writing to w
func NewLoggerWithWriter(w io.Writer, level slog.Level) *Logger {
	return New(w, level, FormatJSON)
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *Logger {
	return New(io.Discard, slog.LevelError, FormatJSON)
}

// With returns a logger that adds args to every entry
func (l *Logger) With(args ...any) *Logger {
	return &Logger{l.Logger.With(args...)}
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args []any) {
	if !l.Enabled(ctx, level) {
		return
	}
	if id := SessionID(ctx); id != "" {
		args = append(args, "session", id)
	}
	if tick, ok := Tick(ctx); ok {
		args = append(args, "tick", tick)
	}
	l.Log(ctx, level, msg, args...)
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args)
}

// Error logs msg with err under the "error" key. A nil err is omitted.
func (l *Logger) Error(ctx context.Context, msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.log(ctx, slog.LevelError, msg, args)
}

type sessionKey struct{}

type tickKey struct{}

// WithSession stores a session ID in ctx. An empty id gets a new one.
func WithSession(ctx context.Context, id string) context.Context {
	if id == "" {
		id = NewSessionID()
	}
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionID returns the session stored in ctx, or ""
func SessionID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// WithTick stores the current simulation tick in ctx
func WithTick(ctx context.Context, tick uint64) context.Context {
	return context.WithValue(ctx, tickKey{}, tick)
}

// Tick returns the tick stored in ctx
func Tick(ctx context.Context) (uint64, bool) {
	if ctx == nil {
		return 0, false
	}
	tick, ok := ctx.Value(tickKey{}).(uint64)
	return tick, ok
}

// NewSessionID returns a random UUID
func NewSessionID() string {
	return uuid.NewString()
}

// redactedKeys are matched as substrings of lower-cased attribute keys
var redactedKeys = []string{
	"password", "passwd", "pwd",
	"token", "auth", "secret",
	"apikey", "api_key", "private", "cookie",
}

func redact(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, sensitive := range redactedKeys {
		if strings.Contains(key, sensitive) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}
	return a
}

// WrapError prefixes err with a formatted message, keeping it unwrappable.
// A nil err stays nil.
func WrapError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if len(args) > 0 {
		format = fmt.Sprintf(format, args...)
	}
	return fmt.Errorf("%s: %w", format, err)
}
