// Package observability sets up logging, metrics and tracing for dapbridge.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

const (
	attrTraceID = "trace_id"
	attrSpanID  = "span_id"
	attrService = "service"
	attrSession = "session"
)

// ServiceName is attached to every log record and span.
const ServiceName = "dapbridge"

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLevel parses a level name. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoggerConfig configures NewLogger.
type LoggerConfig struct {
	Level  string
	Format string
	Output io.Writer
}

// NewLogger builds a logger that writes text or JSON records to cfg.Output
// through a ContextHandler.
func NewLogger(cfg LoggerConfig) (*slog.Logger, error) {
	if cfg.Output == nil {
		cfg.Output = io.Discard
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var inner slog.Handler
	switch cfg.Format {
	case "", FormatText:
		inner = slog.NewTextHandler(cfg.Output, opts)
	case FormatJSON:
		inner = slog.NewJSONHandler(cfg.Output, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return slog.New(NewContextHandler(inner)), nil
}

type sessionKey struct{}

// WithSession returns a copy of ctx that tags log records with a DAP session id.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionFromContext returns the session id set by WithSession.
func SessionFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionKey{}).(string)
	return id, ok && id != ""
}

// ContextHandler is an [slog.Handler] that copies request-scoped values
// from the record's context: the DAP session id and the active span.
type ContextHandler struct {
	next slog.Handler
}

// NewContextHandler wraps next. Every record carries the service name.
func NewContextHandler(next slog.Handler) *ContextHandler {
	return &ContextHandler{next: next.WithAttrs([]slog.Attr{slog.String(attrService, ServiceName)})}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := SessionFromContext(ctx); ok {
		r.AddAttrs(slog.String(attrSession, id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(slog.String(attrTraceID, sc.TraceID().String()), slog.String(attrSpanID, sc.SpanID().String()))
	}
	return h.next.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name)}
}
