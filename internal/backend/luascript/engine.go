package luascript

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/dapbridge/internal/backend"
)

// DefaultCallTimeout bounds a single call into the script.
const DefaultCallTimeout = 5 * time.Second

// Engine runs a Lua-simulated debuggee. Engine is safe for concurrent use;
// the Lua state itself is only touched under the mutex.
type Engine struct {
	mu      sync.Mutex
	path    string
	source  string
	timeout time.Duration

	L       *lua.LState
	n       int
	current *backend.Snapshot
	running bool
	exited  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithCallTimeout sets how long a single stop(n) call may run.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithSource runs the given script text instead of a file.
func WithSource(code string) Option {
	return func(e *Engine) {
		e.source = code
	}
}

// New creates an engine that loads the script at path on launch. The launch
// request's fixture attribute takes precedence over path.
func New(path string, opts ...Option) *Engine {
	e := &Engine{
		path:    path,
		timeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Launch loads the script and asks it for stop 0.
func (e *Engine) Launch(ctx context.Context, cfg backend.LaunchConfig) (backend.Stop, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return backend.Stop{}, err
	}

	L, err := e.load(cfg.Fixture)
	if err != nil {
		return backend.Stop{}, err
	}
	if e.L != nil {
		e.L.Close()
	}
	e.L = L
	e.n = 0
	e.running = true
	e.exited = false

	stop, err := e.fetch(ctx, "entry")
	if err != nil {
		return backend.Stop{}, err
	}
	if stop.Exited || cfg.StopOnEntry {
		return stop, nil
	}
	e.n++
	return e.fetch(ctx, "step")
}

func (e *Engine) load(override string) (*lua.LState, error) {
	L, err := newSandbox()
	if err != nil {
		return nil, err
	}

	switch {
	case override != "":
		err = L.DoFile(override)
	case e.source != "":
		err = L.DoString(e.source)
	case e.path != "":
		err = L.DoFile(e.path)
	default:
		err = errors.New("no script configured")
	}
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("load script: %w", err)
	}
	return L, nil
}

// Snapshot returns the state the script reported for the current stop.
func (e *Engine) Snapshot(ctx context.Context) (*backend.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.check(ctx); err != nil {
		return nil, err
	}
	return e.current, nil
}

// Resume asks the script for the next stop. Every step mode behaves the same.
func (e *Engine) Resume(ctx context.Context, threadID int, mode backend.StepMode) (backend.Stop, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.check(ctx); err != nil {
		return backend.Stop{}, err
	}
	e.n++
	return e.fetch(ctx, "step")
}

// Terminate closes the Lua state.
func (e *Engine) Terminate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.L != nil {
		e.L.Close()
		e.L = nil
	}
	e.running = false
	e.exited = true
	e.current = nil
	return nil
}

func (e *Engine) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !e.running {
		if e.exited {
			return backend.ErrExited
		}
		return backend.ErrNotLaunched
	}
	return nil
}

// fetch calls stop(n) and records the result.
func (e *Engine) fetch(ctx context.Context, fallback string) (backend.Stop, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ret, err := callGlobal(callCtx, e.L, "stop", lua.LNumber(e.n))
	if err != nil {
		return backend.Stop{}, err
	}

	if ret == lua.LNil {
		e.running = false
		e.exited = true
		e.current = nil
		code := 0
		if n, ok := e.L.GetGlobal("exit_code").(lua.LNumber); ok {
			code = int(n)
		}
		return backend.Stop{Exited: true, ExitCode: code}, nil
	}

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return backend.Stop{}, fmt.Errorf("stop(%d) returned %s, want table or nil", e.n, ret.Type())
	}

	stop, snap, err := decodeStop(tbl)
	if err != nil {
		return backend.Stop{}, fmt.Errorf("stop(%d): %w", e.n, err)
	}
	if stop.Reason == "" {
		stop.Reason = fallback
	}
	if stop.ThreadID == 0 && len(snap.Threads) > 0 {
		stop.ThreadID = snap.Threads[0].ID
	}
	e.current = snap
	return stop, nil
}
