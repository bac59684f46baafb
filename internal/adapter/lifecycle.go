package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/dshills/dapbridge/internal/backend"
	"github.com/dshills/dapbridge/internal/dap"
)

func (s *Session) onInitialize(ctx context.Context, req *dap.Request) (any, error) {
	var args dap.InitializeRequestArguments
	if err := req.DecodeArguments(&args); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "client connected", "client", args.ClientName, "adapter_id", args.AdapterID)

	s.emit(dap.EventInitialized, nil)
	return dap.Capabilities{
		SupportsConfigurationDoneRequest: true,
		SupportsEvaluateForHovers:        true,
		SupportsTerminateRequest:         true,
	}, nil
}

// onLaunch serves both launch and attach. The engine is positioned on its
// first stop, which is reported once configuration is done.
func (s *Session) onLaunch(ctx context.Context, req *dap.Request) (any, error) {
	if s.launched {
		return nil, ErrAlreadyLaunched
	}

	cfg, err := launchConfig(req)
	if err != nil {
		return nil, err
	}

	stop, err := s.engine.Launch(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("launch: %w", err)
	}
	s.launched = true
	s.logger.InfoContext(ctx, "debuggee launched", "program", cfg.Program, "fixture", cfg.Fixture, "stop_on_entry", cfg.StopOnEntry)

	if s.configured {
		return nil, s.report(ctx, stop)
	}
	s.pending = &stop
	return nil, nil
}

func launchConfig(req *dap.Request) (backend.LaunchConfig, error) {
	cfg := backend.LaunchConfig{Raw: req.Arguments}
	if len(req.Arguments) == 0 {
		return cfg, nil
	}
	if !gjson.ValidBytes(req.Arguments) {
		return cfg, fmt.Errorf("decode %s arguments: invalid JSON", req.Command)
	}

	args := gjson.ParseBytes(req.Arguments)
	cfg.Program = args.Get("program").String()
	cfg.Fixture = args.Get("fixture").String()
	cfg.StopOnEntry = args.Get("stopOnEntry").Bool()
	return cfg, nil
}

func (s *Session) onConfigurationDone(ctx context.Context, req *dap.Request) (any, error) {
	s.configured = true
	if s.pending == nil {
		return nil, nil
	}
	stop := *s.pending
	s.pending = nil
	return nil, s.report(ctx, stop)
}

// onSetBreakpoints acknowledges breakpoints without binding them. The
// bundled engines stop where their script or recording says.
func (s *Session) onSetBreakpoints(ctx context.Context, req *dap.Request) (any, error) {
	var args dap.SetBreakpointsArguments
	if err := req.DecodeArguments(&args); err != nil {
		return nil, err
	}

	lines := args.Lines
	if len(args.Breakpoints) > 0 {
		lines = lines[:0:0]
		for _, bp := range args.Breakpoints {
			lines = append(lines, bp.Line)
		}
	}

	source := args.Source
	body := dap.SetBreakpointsResponseBody{Breakpoints: make([]dap.Breakpoint, 0, len(lines))}
	for _, line := range lines {
		s.nextBreakpointID++
		body.Breakpoints = append(body.Breakpoints, dap.Breakpoint{
			ID:       s.nextBreakpointID,
			Verified: false,
			Message:  "breakpoints are not bound by this engine",
			Source:   &source,
			Line:     line,
		})
	}
	return body, nil
}

func (s *Session) onDisconnect(ctx context.Context, req *dap.Request) (any, error) {
	var args dap.DisconnectArguments
	if err := req.DecodeArguments(&args); err != nil {
		return nil, err
	}
	s.done = true
	return nil, s.terminate(ctx)
}

func (s *Session) onTerminate(ctx context.Context, req *dap.Request) (any, error) {
	if err := s.terminate(ctx); err != nil {
		return nil, err
	}
	s.emit(dap.EventTerminated, nil)
	return nil, nil
}

// terminate ends the debuggee if it is still running and retires every
// handle.
func (s *Session) terminate(ctx context.Context) error {
	if !s.launched || s.exited {
		return nil
	}
	s.exited = true
	s.pending = nil
	s.retire()
	if err := s.engine.Terminate(ctx); err != nil && !errors.Is(err, backend.ErrExited) {
		return fmt.Errorf("terminate: %w", err)
	}
	s.logger.InfoContext(ctx, "debuggee terminated")
	return nil
}
