// Package replay implements a debugger back end that plays back a recorded
// sequence of stops from a YAML fixture.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dshills/dapbridge/internal/backend"
)

// ErrNoStops is returned when a fixture records no stops.
var ErrNoStops = errors.New("fixture has no stops")

// Fixture is a recorded debug session.
type Fixture struct {
	// Stops are the debuggee states in order. The first is the entry stop.
	Stops []RecordedStop `yaml:"stops"`

	// ExitCode is reported when the debuggee runs past the last stop.
	ExitCode int `yaml:"exitCode"`
}

// RecordedStop is one stop of a fixture.
type RecordedStop struct {
	Reason   string `yaml:"reason"`
	ThreadID int    `yaml:"thread"`
	Output   string `yaml:"output"`

	backend.Snapshot `yaml:",inline"`
}

// Decode reads a fixture from r.
func Decode(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	if len(f.Stops) == 0 {
		return nil, ErrNoStops
	}
	return &f, nil
}

// Load reads a fixture file.
func Load(path string) (*Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer file.Close()

	f, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Engine plays back a Fixture.
type Engine struct {
	mu      sync.Mutex
	path    string
	fixture *Fixture
	pos     int
	running bool
	exited  bool
}

// New creates an engine that loads its fixture from path at launch. The
// launch request's fixture attribute takes precedence over path.
func New(path string) *Engine {
	return &Engine{path: path}
}

// NewFromFixture creates an engine over an already loaded fixture.
func NewFromFixture(f *Fixture) *Engine {
	return &Engine{fixture: f}
}

// Launch loads the fixture and positions on the entry stop. Without
// StopOnEntry the debuggee runs on to the following stop.
func (e *Engine) Launch(ctx context.Context, cfg backend.LaunchConfig) (backend.Stop, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return backend.Stop{}, err
	}

	path := e.path
	if cfg.Fixture != "" {
		path = cfg.Fixture
	}
	if e.fixture == nil || cfg.Fixture != "" {
		if path == "" {
			return backend.Stop{}, errors.New("no fixture configured")
		}
		f, err := Load(path)
		if err != nil {
			return backend.Stop{}, err
		}
		e.fixture = f
	}

	e.pos = 0
	e.running = true
	e.exited = false

	if !cfg.StopOnEntry {
		return e.advance(), nil
	}
	return e.stopAt(0, "entry"), nil
}

// Snapshot returns the state recorded for the current stop.
func (e *Engine) Snapshot(ctx context.Context) (*backend.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.check(ctx); err != nil {
		return nil, err
	}
	snap := e.fixture.Stops[e.pos].Snapshot
	return &snap, nil
}

// Resume moves to the next recorded stop. Every step mode behaves the same.
func (e *Engine) Resume(ctx context.Context, threadID int, mode backend.StepMode) (backend.Stop, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.check(ctx); err != nil {
		return backend.Stop{}, err
	}
	return e.advance(), nil
}

// Terminate ends playback.
func (e *Engine) Terminate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.running = false
	e.exited = true
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

func (e *Engine) advance() backend.Stop {
	if e.pos+1 >= len(e.fixture.Stops) {
		e.running = false
		e.exited = true
		return backend.Stop{Exited: true, ExitCode: e.fixture.ExitCode}
	}
	e.pos++
	return e.stopAt(e.pos, "step")
}

func (e *Engine) stopAt(i int, fallback string) backend.Stop {
	rec := e.fixture.Stops[i]
	stop := backend.Stop{
		Reason:   rec.Reason,
		ThreadID: rec.ThreadID,
		Output:   rec.Output,
	}
	if stop.Reason == "" {
		stop.Reason = fallback
	}
	if stop.ThreadID == 0 && len(rec.Threads) > 0 {
		stop.ThreadID = rec.Threads[0].ID
	}
	return stop
}
