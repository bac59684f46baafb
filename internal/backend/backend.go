// Package backend defines the debugger back end the adapter talks to and the
// snapshot model it reports the debuggee's state in.
//
// An Engine owns the debuggee. The adapter only asks it to launch, report
// what the debuggee looks like right now, and resume. Everything else about
// the engine is opaque to the adapter.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Errors returned by engines.
var (
	// ErrNotLaunched is returned when the engine is used before Launch.
	ErrNotLaunched = errors.New("debuggee not launched")
	// ErrExited is returned when the debuggee has already exited.
	ErrExited = errors.New("debuggee exited")
)

// StepMode selects how far Resume runs the debuggee.
type StepMode int

const (
	// StepContinue runs until the next stop.
	StepContinue StepMode = iota
	// StepOver runs to the next line in the current frame.
	StepOver
	// StepIn steps into a call.
	StepIn
	// StepOut runs until the current frame returns.
	StepOut
)

// String returns a string representation of the step mode.
func (m StepMode) String() string {
	switch m {
	case StepContinue:
		return "continue"
	case StepOver:
		return "next"
	case StepIn:
		return "stepIn"
	case StepOut:
		return "stepOut"
	default:
		return "unknown"
	}
}

// LaunchConfig is what the adapter hands the engine from a launch or attach
// request.
type LaunchConfig struct {
	// Raw holds the request arguments untouched.
	Raw json.RawMessage

	// Program is the debuggee path, if the client sent one.
	Program string

	// Fixture overrides the engine's configured script or fixture path.
	Fixture string

	// StopOnEntry stops the debuggee before it runs.
	StopOnEntry bool
}

// Stop describes why the debuggee stopped, or that it exited.
type Stop struct {
	Reason   string
	ThreadID int
	Output   string
	Exited   bool
	ExitCode int
}

// Engine drives a debuggee.
type Engine interface {
	// Launch starts the debuggee and reports its first stop.
	Launch(ctx context.Context, cfg LaunchConfig) (Stop, error)

	// Snapshot returns the debuggee's state at the current stop.
	Snapshot(ctx context.Context) (*Snapshot, error)

	// Resume runs the debuggee until it stops again or exits.
	Resume(ctx context.Context, threadID int, mode StepMode) (Stop, error)

	// Terminate ends the debuggee.
	Terminate(ctx context.Context) error
}

// Snapshot is the debuggee's state at one stop.
type Snapshot struct {
	Threads []Thread `yaml:"threads"`
}

// Thread is a debuggee thread.
type Thread struct {
	ID     int     `yaml:"id"`
	Name   string  `yaml:"name"`
	Frames []Frame `yaml:"frames"`
}

// Frame is a stack frame, innermost first within a thread.
type Frame struct {
	Name   string  `yaml:"name"`
	Source string  `yaml:"source"`
	Line   int     `yaml:"line"`
	Column int     `yaml:"column"`
	Scopes []Scope `yaml:"scopes"`
}

// Scope groups the variables visible in a frame.
type Scope struct {
	Name      string     `yaml:"name"`
	Hint      string     `yaml:"hint"`
	Expensive bool       `yaml:"expensive"`
	Variables []Variable `yaml:"variables"`
}

// Variable is a named value. Values with children are structured.
type Variable struct {
	Name     string     `yaml:"name"`
	Value    string     `yaml:"value"`
	Type     string     `yaml:"type"`
	Children []Variable `yaml:"children"`
}

// Thread returns the thread with the given id.
func (s *Snapshot) Thread(id int) (*Thread, bool) {
	for i := range s.Threads {
		if s.Threads[i].ID == id {
			return &s.Threads[i], true
		}
	}
	return nil, false
}

// HasChildren reports whether v is structured.
func (v *Variable) HasChildren() bool {
	return len(v.Children) > 0
}

// Lookup resolves a dotted path such as "a.b" below v.
func (v *Variable) Lookup(path string) (*Variable, bool) {
	cur := v
	for _, name := range strings.Split(path, ".") {
		next, ok := child(cur.Children, name)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Lookup resolves a dotted expression against the frame's scopes in order.
// The first segment names a variable in some scope; the rest walk its
// children.
func (f *Frame) Lookup(expr string) (*Variable, bool) {
	head, rest, nested := strings.Cut(strings.TrimSpace(expr), ".")
	if head == "" {
		return nil, false
	}
	for i := range f.Scopes {
		v, ok := child(f.Scopes[i].Variables, head)
		if !ok {
			continue
		}
		if !nested {
			return v, true
		}
		return v.Lookup(rest)
	}
	return nil, false
}

func child(vars []Variable, name string) (*Variable, bool) {
	for i := range vars {
		if vars[i].Name == name {
			return &vars[i], true
		}
	}
	return nil, false
}
