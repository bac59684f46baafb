package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/dapbridge/internal/adapter"
	"github.com/dshills/dapbridge/internal/backend"
	"github.com/dshills/dapbridge/internal/backend/luascript"
	"github.com/dshills/dapbridge/internal/backend/replay"
	"github.com/dshills/dapbridge/internal/config"
	"github.com/dshills/dapbridge/internal/dap"
	"github.com/dshills/dapbridge/internal/observability"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the debug adapter",
		Long: "Serve DAP on stdin/stdout, or on a TCP address with --listen.\n" +
			"TCP connections are served one at a time.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.String("listen", "", `"stdio" or a TCP address such as 127.0.0.1:4711`)
	f.String("engine", "", "debugger back end: replay or lua")
	f.String("engine-path", "", "fixture or script the engine loads")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")
	_ = a.v.BindPFlag(config.KeyListen, f.Lookup("listen"))
	_ = a.v.BindPFlag(config.KeyEngineKind, f.Lookup("engine"))
	_ = a.v.BindPFlag(config.KeyEnginePath, f.Lookup("engine-path"))
	_ = a.v.BindPFlag(config.KeyMetricsAddr, f.Lookup("metrics-addr"))

	return cmd
}

func (a *app) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	if addr := a.cfg.Metrics.Addr; addr != "" {
		go func() {
			if err := observability.ServeMetrics(ctx, addr, metrics); err != nil {
				a.logger.Error("metrics server failed", "addr", addr, "error", err)
			}
		}()
		a.logger.Info("serving metrics", "addr", addr)
	}

	if a.cfg.Trace.Stdout {
		shutdown, err := observability.InitTracing(out)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				a.logger.Warn("trace shutdown failed", "error", err)
			}
		}()
	}

	if a.cfg.UsesStdio() {
		a.logger.Info("serving on stdio", "engine", a.cfg.Engine.Kind)
		return a.runSession(ctx, dap.NewConn(dap.NewStreamTransport(in, out)), metrics)
	}

	ln, err := net.Listen("tcp", a.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Listen, err)
	}
	return a.serveListener(ctx, ln, metrics)
}

// serveListener accepts connections until ctx is done and serves them one
// at a time. A failed session is logged and the next client is accepted.
func (a *app) serveListener(ctx context.Context, ln net.Listener, metrics *observability.Metrics) error {
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()
	defer ln.Close()

	a.logger.Info("listening", "addr", ln.Addr().String(), "engine", a.cfg.Engine.Kind)
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		transport := dap.NewSocketTransport(c)
		a.logger.Info("client connected", "remote", transport.RemoteAddr())
		if err := a.runSession(ctx, dap.NewConn(transport), metrics); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.logger.Error("session failed", "remote", transport.RemoteAddr(), "error", err)
		}
	}
}

func (a *app) runSession(ctx context.Context, conn *dap.Conn, metrics *observability.Metrics) error {
	defer conn.Close()

	engine, err := newEngine(a.cfg.Engine)
	if err != nil {
		return err
	}
	s := adapter.NewSession(conn, engine,
		adapter.WithLogger(a.logger),
		adapter.WithMetrics(metrics),
	)
	return s.Serve(ctx)
}

func newEngine(cfg config.EngineConfig) (backend.Engine, error) {
	switch cfg.Kind {
	case config.EngineReplay:
		return replay.New(cfg.Path), nil
	case config.EngineLua:
		return luascript.New(cfg.Path), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownEngine, cfg.Kind)
	}
}
