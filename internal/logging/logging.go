// Package logging configures the process-wide slog logger and carries safe
// request attributes through contexts.
package logging

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/mdobak/go-xerrors"
)

// SecurityEvent represents a security-related event type
type SecurityEvent string

const (
	SecurityEventMissingToken   SecurityEvent = "missing_token"
	SecurityEventInvalidToken   SecurityEvent = "invalid_token"
	SecurityEventUnknownRoom    SecurityEvent = "unknown_room"
	SecurityEventRateLimited    SecurityEvent = "rate_limited"
	SecurityEventBadRoomKey     SecurityEvent = "bad_room_key"
	SecurityEventBadOperatorKey SecurityEvent = "bad_operator_key"
)

// RequestAttrs holds safe request context for logging
type RequestAttrs struct {
	RequestID string
	Method    string
	Path      string
	IP        string
	RoomKey   string
	Role      string
}

type contextKey string

const requestAttrsKey contextKey = "requestAttrs"

// stackFrame represents a single frame in a stack trace
type stackFrame struct {
	Func   string `json:"func"`
	Source string `json:"source"`
	Line   int    `json:"line"`
}

// Initialize sets up the global slog with JSON handler and error formatting.
// It reads the log level from the LOGGING_LEVEL environment variable.
// Valid values: debug, info, warn, error (defaults to info)
func Initialize() {
	level := decodeLogLevel(strings.ToLower(os.Getenv("LOGGING_LEVEL")))
	slog.SetDefault(slog.New(NewHandler(os.Stdout, level)))
}

// NewHandler returns the JSON handler used by the process. Records logged
// with a context carrying RequestAttrs get the request fields attached.
func NewHandler(w io.Writer, level slog.Level) slog.Handler {
	return contextHandler{slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr,
	})}
}

type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, rec slog.Record) error {
	if ctx != nil {
		rec.AddAttrs(requestFields(ctx)...)
	}
	return h.Handler.Handle(ctx, rec)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

// decodeLogLevel converts a string to slog.Level
func decodeLogLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const maxStackFrames = 32

// replaceAttr renders error values as {msg, trace}
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindAny {
		return a
	}
	if err, ok := a.Value.Any().(error); ok {
		a.Value = fmtErr(err)
	}
	return a
}

// marshalStack extracts stack frames from the error, skipping runtime frames
func marshalStack(err error) []stackFrame {
	trace := xerrors.StackTrace(err)
	if len(trace) == 0 {
		return nil
	}

	var s []stackFrame
	for _, v := range trace.Frames() {
		if strings.HasPrefix(v.Function, "runtime.") {
			continue
		}
		s = append(s, stackFrame{
			Source: filepath.Join(filepath.Base(filepath.Dir(v.File)), filepath.Base(v.File)),
			Func:   filepath.Base(v.Function),
			Line:   v.Line,
		})
		if len(s) == maxStackFrames {
			break
		}
	}
	return s
}

// fmtErr returns a slog.Value with keys `msg` and `trace`
func fmtErr(err error) slog.Value {
	var groupValues []slog.Attr

	groupValues = append(groupValues, slog.String("msg", err.Error()))

	frames := marshalStack(err)
	if frames != nil {
		groupValues = append(groupValues, slog.Any("trace", frames))
	}

	return slog.GroupValue(groupValues...)
}

// WrapError wraps an error with a message and captures stack trace
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	// Wrap with stack trace, then create a new error with the combined message
	wrapped := xerrors.WithStackTrace(err, 1)
	return xerrors.Newf("%s: %v", msg, wrapped)
}

// WithRequestAttrs adds request attributes to context
func WithRequestAttrs(ctx context.Context, attrs *RequestAttrs) context.Context {
	return context.WithValue(ctx, requestAttrsKey, attrs)
}

// GetRequestAttrs retrieves request attributes from context
func GetRequestAttrs(ctx context.Context) *RequestAttrs {
	attrs, _ := ctx.Value(requestAttrsKey).(*RequestAttrs)
	return attrs
}

// UpdateRequestAttrs records the resolved room and caller role
func UpdateRequestAttrs(ctx context.Context, roomKey, role string) context.Context {
	updated := RequestAttrs{}
	if attrs := GetRequestAttrs(ctx); attrs != nil {
		updated = *attrs
	}
	updated.RoomKey = roomKey
	updated.Role = role
	return WithRequestAttrs(ctx, &updated)
}

func requestFields(ctx context.Context) []slog.Attr {
	attrs := GetRequestAttrs(ctx)
	if attrs == nil {
		return nil
	}

	fields := []slog.Attr{
		slog.String("method", attrs.Method),
		slog.String("path", attrs.Path),
		slog.String("ip", attrs.IP),
	}
	if attrs.RequestID != "" {
		fields = append(fields, slog.String("request_id", attrs.RequestID))
	}
	if attrs.RoomKey != "" {
		fields = append(fields, slog.String("room_key", attrs.RoomKey))
	}
	if attrs.Role != "" {
		fields = append(fields, slog.String("role", attrs.Role))
	}
	return fields
}

// ExtractClientIP returns the client IP from RemoteAddr. Forwarded headers
// are resolved earlier by the real-IP middleware, only for trusted proxies.
func ExtractClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// LogSecurityEvent logs a WARN-level security event with context
func LogSecurityEvent(ctx context.Context, event SecurityEvent, msg string) {
	slog.WarnContext(ctx, msg, slog.String("security_event", string(event)))
}

// LogErrorWithStatus logs an ERROR-level message with context, status, and error
func LogErrorWithStatus(ctx context.Context, status int, msg string, err error) {
	args := []any{slog.Int("status", status)}
	if err != nil {
		args = append(args, slog.Any("error", err))
	}
	slog.ErrorContext(ctx, msg, args...)
}
