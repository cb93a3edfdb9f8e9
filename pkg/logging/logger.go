package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	requestIDKey contextKey = "requestID"
	sessionKey   contextKey = "session"
)

// LevelTrace is below debug; used for per-edge traversal detail
const LevelTrace = slog.LevelDebug - 4

var current atomic.Pointer[slog.Logger]

func init() {
	// Initialize with compact handler for readable console output
	// Can be replaced with JSON handler for production
	Configure(Options{Level: slog.LevelInfo})
}

// Options selects the output format and minimum level
type Options struct {
	Level  slog.Level
	JSON   bool
	Writer io.Writer // defaults to stdout
}

// Configure replaces the process logger
func Configure(opts Options) {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	if opts.JSON {
		current.Store(slog.New(slog.NewJSONHandler(w, handlerOpts)))
		return
	}
	current.Store(slog.New(NewCompactHandler(w, handlerOpts)))
}

// SetLevel changes the logging level
func SetLevel(level slog.Level) {
	Configure(Options{Level: level})
}

// SetJSONOutput switches to JSON format output
func SetJSONOutput(level slog.Level) {
	Configure(Options{Level: level, JSON: true})
}

// ParseLevel accepts trace, debug, info, warn and error
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// ResolveLevel combines an explicit level name with a -v count.
// The name wins when set; otherwise -v means debug and -vv trace.
func ResolveLevel(verbosity string, verbose int) (slog.Level, error) {
	if verbosity != "" {
		return ParseLevel(verbosity)
	}
	switch {
	case verbose >= 2:
		return LevelTrace, nil
	case verbose == 1:
		return slog.LevelDebug, nil
	}
	return slog.LevelInfo, nil
}

// New returns a logger that tags every record with component. It follows
// later calls to Configure.
func New(component string) *slog.Logger {
	return slog.New(&componentHandler{attrs: []slog.Attr{slog.String("component", component)}})
}

// componentHandler forwards to whatever logger is current at call time
type componentHandler struct {
	attrs []slog.Attr
}

func (h *componentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return current.Load().Handler().Enabled(ctx, level)
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	return current.Load().Handler().WithAttrs(h.attrs).Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &componentHandler{attrs: merged}
}

func (h *componentHandler) WithGroup(string) slog.Handler {
	return h
}

// WithSession tags the context with the notebook session being served
func WithSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// GetSession retrieves the session from context
func GetSession(ctx context.Context) string {
	if session, ok := ctx.Value(sessionKey).(string); ok {
		return session
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// Helper function to add request ID and session to log attributes if present
func withRequestID(ctx context.Context, args []any) []any {
	if session := GetSession(ctx); session != "" {
		args = append([]any{"session", session}, args...)
	}
	requestID := GetRequestID(ctx)
	if requestID != "" {
		return append([]any{"requestID", requestID}, args...)
	}
	return args
}

// Trace logs at TRACE level (very verbose, debug-time only)
func Trace(msg string, args ...any) {
	current.Load().Log(context.Background(), LevelTrace, msg, args...)
}

// TraceContext logs at TRACE level with context
func TraceContext(ctx context.Context, msg string, args ...any) {
	current.Load().Log(ctx, LevelTrace, msg, withRequestID(ctx, args)...)
}

// Debug logs at DEBUG level (internal component behavior)
func Debug(msg string, args ...any) {
	current.Load().Debug(msg, args...)
}

// DebugContext logs at DEBUG level with context
func DebugContext(ctx context.Context, msg string, args ...any) {
	current.Load().DebugContext(ctx, msg, withRequestID(ctx, args)...)
}

// Info logs at INFO level (user-facing operations)
func Info(msg string, args ...any) {
	current.Load().Info(msg, args...)
}

// InfoContext logs at INFO level with context
func InfoContext(ctx context.Context, msg string, args ...any) {
	current.Load().InfoContext(ctx, msg, withRequestID(ctx, args)...)
}

// Warn logs at WARN level (should be monitored)
func Warn(msg string, args ...any) {
	current.Load().Warn(msg, args...)
}

// WarnContext logs at WARN level with context
func WarnContext(ctx context.Context, msg string, args ...any) {
	current.Load().WarnContext(ctx, msg, withRequestID(ctx, args)...)
}

// Error logs at ERROR level (logical bugs that shouldn't happen)
func Error(msg string, args ...any) {
	current.Load().Error(msg, args...)
}

// ErrorContext logs at ERROR level with context
func ErrorContext(ctx context.Context, msg string, args ...any) {
	current.Load().ErrorContext(ctx, msg, withRequestID(ctx, args)...)
}

// Fatal logs at ERROR level and exits (unrecoverable bugs)
func Fatal(msg string, args ...any) {
	current.Load().Error(msg, args...)
	os.Exit(1)
}

// FatalContext logs at ERROR level with context and exits
func FatalContext(ctx context.Context, msg string, args ...any) {
	current.Load().ErrorContext(ctx, msg, withRequestID(ctx, args)...)
	os.Exit(1)
}
