package luascript

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/dapbridge/internal/backend"
)

const counterScript = `
function stop(n)
  if n > 2 then return nil end
  local reason = "step"
  if n == 0 then reason = "entry" end
  return {
    reason = reason,
    output = "tick " .. n .. "\n",
    threads = {
      { id = 1, name = "main", frames = {
        { name = "main", source = "main.lua", line = 10 + n, scopes = {
          { name = "Locals", hint = "locals", variables = {
            { name = "i", type = "int", value = n },
            { name = "t", type = "table", value = "{...}", children = {
              { name = "x", value = "1" },
            } },
          } },
        } },
      } },
    },
  }
end

exit_code = 7
`

func TestEngine_Stops(t *testing.T) {
	ctx := context.Background()
	e := New("", WithSource(counterScript))

	stop, err := e.Launch(ctx, backend.LaunchConfig{StopOnEntry: true})
	require.NoError(t, err)
	assert.Equal(t, "entry", stop.Reason)
	assert.Equal(t, 1, stop.ThreadID)
	assert.Equal(t, "tick 0\n", stop.Output)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Threads, 1)
	frame := snap.Threads[0].Frames[0]
	assert.Equal(t, 10, frame.Line)
	assert.Equal(t, "locals", frame.Scopes[0].Hint)
	vars := frame.Scopes[0].Variables
	require.Len(t, vars, 2)
	assert.Equal(t, "0", vars[0].Value)
	require.Len(t, vars[1].Children, 1)
	assert.Equal(t, "x", vars[1].Children[0].Name)

	stop, err = e.Resume(ctx, 1, backend.StepOver)
	require.NoError(t, err)
	assert.Equal(t, "step", stop.Reason)

	snap, err = e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 11, snap.Threads[0].Frames[0].Line)

	_, err = e.Resume(ctx, 1, backend.StepContinue)
	require.NoError(t, err)
	stop, err = e.Resume(ctx, 1, backend.StepContinue)
	require.NoError(t, err)
	assert.True(t, stop.Exited)
	assert.Equal(t, 7, stop.ExitCode)

	_, err = e.Snapshot(ctx)
	assert.ErrorIs(t, err, backend.ErrExited)
}

func TestEngine_LaunchRunsToFirstStop(t *testing.T) {
	e := New("", WithSource(counterScript))

	stop, err := e.Launch(context.Background(), backend.LaunchConfig{})
	require.NoError(t, err)
	assert.Equal(t, "step", stop.Reason)

	snap, err := e.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 11, snap.Threads[0].Frames[0].Line)
}

func TestEngine_ScriptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debuggee.lua")
	require.NoError(t, os.WriteFile(path, []byte(counterScript), 0o600))

	e := New("")
	stop, err := e.Launch(context.Background(), backend.LaunchConfig{StopOnEntry: true, Fixture: path})
	require.NoError(t, err)
	assert.Equal(t, "entry", stop.Reason)

	require.NoError(t, e.Terminate(context.Background()))
	_, err = e.Resume(context.Background(), 1, backend.StepContinue)
	assert.ErrorIs(t, err, backend.ErrExited)
}

func TestEngine_Errors(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"syntax error", "function stop(n"},
		{"no stop function", "x = 1"},
		{"runtime error", "function stop(n) error('boom') end"},
		{"wrong return type", "function stop(n) return 5 end"},
		{"thread without id", "function stop(n) return { threads = { { name = 'x' } } } end"},
		{"variable without name", `function stop(n) return { threads = { { id = 1, frames = {
			{ name = "f", scopes = { { name = "L", variables = { { value = "1" } } } } } } } } } end`},
		{"threads not a table", "function stop(n) return { threads = 3 } end"},
		{"sandboxed io", "function stop(n) io.write('x') return nil end"},
		{"sandboxed dofile", "dofile('/etc/passwd')"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New("", WithSource(tt.script))
			_, err := e.Launch(context.Background(), backend.LaunchConfig{StopOnEntry: true})
			assert.Error(t, err)
		})
	}
}

func TestEngine_NoScript(t *testing.T) {
	_, err := New("").Launch(context.Background(), backend.LaunchConfig{})
	assert.Error(t, err)
}

func TestEngine_CallTimeout(t *testing.T) {
	e := New("", WithSource("function stop(n) while true do end end"), WithCallTimeout(50*time.Millisecond))

	done := make(chan error, 1)
	go func() {
		_, err := e.Launch(context.Background(), backend.LaunchConfig{StopOnEntry: true})
		done <- err
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("script was not interrupted")
	}
}

func TestEngine_NotLaunched(t *testing.T) {
	_, err := New("", WithSource(counterScript)).Snapshot(context.Background())
	assert.ErrorIs(t, err, backend.ErrNotLaunched)
}
