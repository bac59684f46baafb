package adapter

import (
	"context"
	"fmt"

	"github.com/dshills/dapbridge/internal/backend"
	"github.com/dshills/dapbridge/internal/dap"
)

func (s *Session) onContinue(ctx context.Context, req *dap.Request) (any, error) {
	var args dap.ContinueArguments
	if err := req.DecodeArguments(&args); err != nil {
		return nil, err
	}
	if err := s.resume(ctx, args.ThreadID, backend.StepContinue); err != nil {
		return nil, err
	}
	return dap.ContinueResponseBody{AllThreadsContinued: true}, nil
}

func (s *Session) onStep(mode backend.StepMode) handlerFunc {
	return func(ctx context.Context, req *dap.Request) (any, error) {
		var args dap.StepArguments
		if err := req.DecodeArguments(&args); err != nil {
			return nil, err
		}
		return nil, s.resume(ctx, args.ThreadID, mode)
	}
}

func (s *Session) resume(ctx context.Context, threadID int, mode backend.StepMode) error {
	if !s.launched || s.pending != nil {
		return ErrNotStopped
	}
	if s.exited {
		return backend.ErrExited
	}

	stop, err := s.engine.Resume(ctx, threadID, mode)
	if err != nil {
		return fmt.Errorf("%s: %w", mode, err)
	}
	return s.report(ctx, stop)
}

// report starts a new handle generation for stop and queues the events the
// client needs to hear about it.
func (s *Session) report(ctx context.Context, stop backend.Stop) error {
	if stop.Output != "" {
		s.emit(dap.EventOutput, dap.OutputEventBody{Category: "stdout", Output: stop.Output})
	}

	if stop.Exited {
		s.exited = true
		s.retire()
		s.logger.InfoContext(ctx, "debuggee exited", "exit_code", stop.ExitCode)
		s.emit(dap.EventExited, dap.ExitedEventBody{ExitCode: stop.ExitCode})
		s.emit(dap.EventTerminated, nil)
		return nil
	}

	s.retire()
	snap, err := s.engine.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	s.snapshot = snap
	s.stopped = stop

	s.logger.DebugContext(ctx, "debuggee stopped",
		"reason", stop.Reason,
		"thread", stop.ThreadID,
		"generation", s.tree.Generation(),
	)
	s.emit(dap.EventStopped, dap.StoppedEventBody{
		Reason:            stop.Reason,
		ThreadID:          stop.ThreadID,
		AllThreadsStopped: true,
	})
	return nil
}

// retire closes the current generation. Handles issued so far resolve
// again only when their paths are re-created in the next one.
func (s *Session) retire() {
	s.metrics.ObserveGeneration(s.tree.Stats())
	s.tree = s.tree.Advance()
	s.snapshot = nil
}
