package adapter

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"slices"

	"github.com/dshills/dapbridge/internal/backend"
	"github.com/dshills/dapbridge/internal/dap"
	"github.com/dshills/dapbridge/internal/handles"
)

func (s *Session) onThreads(ctx context.Context, req *dap.Request) (any, error) {
	body := dap.ThreadsResponseBody{Threads: []dap.Thread{}}
	if s.snapshot == nil {
		return body, nil
	}

	for i := range s.snapshot.Threads {
		th := &s.snapshot.Threads[i]
		if _, err := s.createThread(th); err != nil {
			return nil, err
		}
		body.Threads = append(body.Threads, dap.Thread{ID: th.ID, Name: th.Name})
	}
	s.metrics.ObserveLive(s.tree.Len())
	return body, nil
}

func (s *Session) onStackTrace(ctx context.Context, req *dap.Request) (any, error) {
	var args dap.StackTraceArguments
	if err := req.DecodeArguments(&args); err != nil {
		return nil, err
	}
	if s.snapshot == nil {
		return nil, ErrNotStopped
	}

	th, ok := s.snapshot.Thread(args.ThreadID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownThread, args.ThreadID)
	}
	threadHandle, err := s.createThread(th)
	if err != nil {
		return nil, err
	}

	start, end := page(len(th.Frames), args.StartFrame, args.Levels)
	body := dap.StackTraceResponseBody{
		StackFrames: make([]dap.StackFrame, 0, end-start),
		TotalFrames: len(th.Frames),
	}
	for i := start; i < end; i++ {
		h, err := s.createFrame(threadHandle, th, i)
		if err != nil {
			return nil, err
		}
		f := &th.Frames[i]
		body.StackFrames = append(body.StackFrames, dap.StackFrame{
			ID:     int(h),
			Name:   f.Name,
			Source: source(f.Source),
			Line:   f.Line,
			Column: max(f.Column, 1),
		})
	}
	s.metrics.ObserveLive(s.tree.Len())
	return body, nil
}

func (s *Session) onScopes(ctx context.Context, req *dap.Request) (any, error) {
	var args dap.ScopesArguments
	if err := req.DecodeArguments(&args); err != nil {
		return nil, err
	}

	frameHandle, n, err := s.resolve(args.FrameID, kindFrame)
	if err != nil {
		return nil, err
	}

	keys := ScopeKeys(n.frame.Scopes)
	body := dap.ScopesResponseBody{Scopes: make([]dap.Scope, 0, len(n.frame.Scopes))}
	for i := range n.frame.Scopes {
		sc := &n.frame.Scopes[i]
		h, err := s.tree.Create(frameHandle, keys[i], &node{kind: kindScope, scope: sc})
		if err != nil {
			return nil, err
		}
		body.Scopes = append(body.Scopes, dap.Scope{
			Name:               sc.Name,
			PresentationHint:   sc.Hint,
			VariablesReference: int(h),
			NamedVariables:     len(sc.Variables),
			Expensive:          sc.Expensive,
		})
	}
	s.metrics.ObserveLive(s.tree.Len())
	return body, nil
}

func (s *Session) onVariables(ctx context.Context, req *dap.Request) (any, error) {
	var args dap.VariablesArguments
	if err := req.DecodeArguments(&args); err != nil {
		return nil, err
	}

	parent, n, err := s.resolve(args.VariablesReference, kindScope, kindVariable)
	if err != nil {
		return nil, err
	}

	body := dap.VariablesResponseBody{Variables: []dap.Variable{}}
	// Children are all named; there is nothing to page by index.
	if args.Filter == "indexed" {
		return body, nil
	}

	vars := n.children()
	start, end := page(len(vars), args.Start, args.Count)
	keys := VariableKeys(vars, start, end)
	for i := start; i < end; i++ {
		v := &vars[i]
		evalName := joinEvalName(n.evalName, v.Name)

		var ref handles.Handle
		if v.HasChildren() {
			ref, err = s.tree.Create(parent, keys[i-start], &node{kind: kindVariable, variable: v, evalName: evalName})
			if err != nil {
				return nil, err
			}
		}
		body.Variables = append(body.Variables, dap.Variable{
			Name:               v.Name,
			Value:              v.Value,
			Type:               v.Type,
			EvaluateName:       evalName,
			VariablesReference: int(ref),
			NamedVariables:     len(v.Children),
		})
	}
	s.metrics.ObserveLive(s.tree.Len())
	return body, nil
}

// onEvaluate resolves dotted variable names such as "cfg.addr" in a frame.
// Without a frameId it uses the innermost frame of the stopped thread.
func (s *Session) onEvaluate(ctx context.Context, req *dap.Request) (any, error) {
	var args dap.EvaluateArguments
	if err := req.DecodeArguments(&args); err != nil {
		return nil, err
	}

	var frameHandle handles.Handle
	var frame *backend.Frame
	if args.FrameID != 0 {
		h, n, err := s.resolve(args.FrameID, kindFrame)
		if err != nil {
			return nil, err
		}
		frameHandle, frame = h, n.frame
	} else {
		h, f, err := s.topFrame()
		if err != nil {
			return nil, err
		}
		frameHandle, frame = h, f
	}

	v, ok := frame.Lookup(args.Expression)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCannotEvaluate, args.Expression)
	}

	body := dap.EvaluateResponseBody{
		Result:         v.Value,
		Type:           v.Type,
		NamedVariables: len(v.Children),
	}
	if v.HasChildren() {
		h, err := s.tree.Create(frameHandle, EvalKey(args.Expression), &node{
			kind:     kindVariable,
			variable: v,
			evalName: args.Expression,
		})
		if err != nil {
			return nil, err
		}
		body.VariablesReference = int(h)
	}
	s.metrics.ObserveLive(s.tree.Len())
	return body, nil
}

func (s *Session) createThread(th *backend.Thread) (handles.Handle, error) {
	return s.tree.Create(handles.NoHandle, ThreadKey(th.ID), &node{kind: kindThread, thread: th})
}

func (s *Session) createFrame(threadHandle handles.Handle, th *backend.Thread, i int) (handles.Handle, error) {
	f := &th.Frames[i]
	depth := len(th.Frames) - 1 - i
	return s.tree.Create(threadHandle, FrameKey(depth, f.Name), &node{kind: kindFrame, thread: th, frame: f})
}

func (s *Session) topFrame() (handles.Handle, *backend.Frame, error) {
	if s.snapshot == nil {
		return handles.NoHandle, nil, ErrNotStopped
	}
	th, ok := s.snapshot.Thread(s.stopped.ThreadID)
	if !ok {
		return handles.NoHandle, nil, fmt.Errorf("%w: %d", ErrUnknownThread, s.stopped.ThreadID)
	}
	if len(th.Frames) == 0 {
		return handles.NoHandle, nil, fmt.Errorf("%w: thread %d has no frames", ErrCannotEvaluate, th.ID)
	}

	threadHandle, err := s.createThread(th)
	if err != nil {
		return handles.NoHandle, nil, err
	}
	h, err := s.createFrame(threadHandle, th, 0)
	if err != nil {
		return handles.NoHandle, nil, err
	}
	return h, &th.Frames[0], nil
}

// resolve looks up a handle the client echoed back. Handles from an earlier
// generation, or of the wrong kind, are reported as invalid references.
func (s *Session) resolve(ref int, kinds ...nodeKind) (handles.Handle, *node, error) {
	if ref <= 0 || int64(ref) > math.MaxUint32 {
		return handles.NoHandle, nil, &ReferenceError{Ref: ref}
	}
	h := handles.Handle(ref)
	n, ok := s.tree.Get(h)
	if !ok || !slices.Contains(kinds, n.kind) {
		return handles.NoHandle, nil, &ReferenceError{Ref: ref}
	}
	return h, n, nil
}

// page clamps a start/count window to n items. A count of zero means all.
func page(n, start, count int) (int, int) {
	start = min(max(start, 0), n)
	end := n
	if count > 0 {
		end = min(start+count, n)
	}
	return start, end
}

func source(path string) *dap.Source {
	if path == "" {
		return nil
	}
	return &dap.Source{Name: filepath.Base(path), Path: path}
}
