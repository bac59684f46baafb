// Package adapter serves one DAP client over a debugger back end.
//
// Threads, stack frames, scopes and structured variables are named on the
// wire by handles from a handles.Tree. Every time the debuggee stops the
// session advances the tree and rebuilds it lazily as the client asks for
// threads, stack traces, scopes and variables. Objects that are still at the
// same position keep their handle; references into the old generation that
// have no counterpart fail with "invalid reference".
package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/dapbridge/internal/backend"
	"github.com/dshills/dapbridge/internal/dap"
	"github.com/dshills/dapbridge/internal/handles"
	"github.com/dshills/dapbridge/internal/observability"
)

type handlerFunc func(ctx context.Context, req *dap.Request) (any, error)

type pendingEvent struct {
	event string
	body  any
}

// Session is one client connection. It is driven by a single goroutine
// inside Serve.
type Session struct {
	id      string
	conn    *dap.Conn
	engine  backend.Engine
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer

	handlers map[string]handlerFunc
	events   []pendingEvent

	tree     *handles.Tree[*node]
	snapshot *backend.Snapshot
	stopped  backend.Stop

	launched   bool
	configured bool
	pending    *backend.Stop
	exited     bool
	done       bool

	nextBreakpointID int
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithMetrics records handle and request activity.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithTracer sets the tracer used for request spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) {
		s.tracer = t
	}
}

// NewSession creates a session serving conn with engine.
func NewSession(conn *dap.Conn, engine backend.Engine, opts ...Option) *Session {
	s := &Session{
		id:     uuid.NewString(),
		conn:   conn,
		engine: engine,
		logger: slog.New(slog.DiscardHandler),
		tracer: observability.Tracer(),
		tree:   handles.New[*node](),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "adapter")

	s.handlers = map[string]handlerFunc{
		dap.CommandInitialize:        s.onInitialize,
		dap.CommandLaunch:            s.onLaunch,
		dap.CommandAttach:            s.onLaunch,
		dap.CommandConfigurationDone: s.onConfigurationDone,
		dap.CommandSetBreakpoints:    s.onSetBreakpoints,
		dap.CommandThreads:           s.onThreads,
		dap.CommandStackTrace:        s.onStackTrace,
		dap.CommandScopes:            s.onScopes,
		dap.CommandVariables:         s.onVariables,
		dap.CommandEvaluate:          s.onEvaluate,
		dap.CommandContinue:          s.onContinue,
		dap.CommandNext:              s.onStep(backend.StepOver),
		dap.CommandStepIn:            s.onStep(backend.StepIn),
		dap.CommandStepOut:           s.onStep(backend.StepOut),
		dap.CommandDisconnect:        s.onDisconnect,
		dap.CommandTerminate:         s.onTerminate,
	}
	return s
}

// Serve handles requests until the client disconnects, the connection
// closes or ctx is done. A client that hangs up is not an error.
func (s *Session) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.Close()
	})
	defer stop()

	ctx = observability.WithSession(ctx, s.id)
	s.logger.InfoContext(ctx, "session started")
	defer s.logger.InfoContext(ctx, "session ended")

	for !s.done {
		req, err := s.conn.ReadRequest()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return fmt.Errorf("read request: %w", err)
		}

		if err := s.handle(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// handle answers one request and flushes the events it queued. Only
// transport failures are returned.
func (s *Session) handle(ctx context.Context, req *dap.Request) error {
	ctx, span := s.tracer.Start(ctx, "dap."+req.Command, trace.WithAttributes(
		attribute.Int("dap.seq", req.Seq),
		attribute.String("dap.command", req.Command),
		attribute.String("dap.session", s.id),
		attribute.Int64("handles.generation", int64(s.tree.Generation())),
	))
	defer span.End()

	s.logger.DebugContext(ctx, "request", "command", req.Command, "seq", req.Seq)

	var body any
	var err error
	if h, ok := s.handlers[req.Command]; ok {
		body, err = h(ctx, req)
	} else {
		err = fmt.Errorf("%w: %s", ErrUnsupportedCommand, req.Command)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.Request(req.Command, false)

		var refErr *ReferenceError
		if errors.As(err, &refErr) {
			s.metrics.StaleReference()
		}
		s.logger.WarnContext(ctx, "request failed", "command", req.Command, "seq", req.Seq, "error", err)

		s.events = s.events[:0]
		return s.conn.RespondError(req, errorID(err), err)
	}

	s.metrics.Request(req.Command, true)
	if err := s.conn.Respond(req, body); err != nil {
		return err
	}
	return s.flush()
}

// emit queues an event to follow the current response.
func (s *Session) emit(event string, body any) {
	s.events = append(s.events, pendingEvent{event: event, body: body})
}

func (s *Session) flush() error {
	for _, e := range s.events {
		if err := s.conn.SendEvent(e.event, e.body); err != nil {
			s.events = s.events[:0]
			return err
		}
	}
	s.events = s.events[:0]
	return nil
}
