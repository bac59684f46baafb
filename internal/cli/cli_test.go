package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/dapbridge/internal/backend"
	"github.com/dshills/dapbridge/internal/backend/luascript"
	"github.com/dshills/dapbridge/internal/backend/replay"
	"github.com/dshills/dapbridge/internal/config"
	"github.com/dshills/dapbridge/internal/dap"
	"github.com/dshills/dapbridge/internal/observability"
)

const fixturePath = "../backend/replay/testdata/session.yaml"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(BuildInfo{Version: "1.2.3", Commit: "abc123", Date: "2026-01-02"})
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func frame(t *testing.T, seq int, command string, args any) string {
	t.Helper()
	req := map[string]any{"seq": seq, "type": "request", "command": command}
	if args != nil {
		req["arguments"] = args
	}
	content, err := json.Marshal(req)
	require.NoError(t, err)
	return fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(content), content)
}

func testApp(t *testing.T) *app {
	t.Helper()
	cfg := config.Default()
	cfg.Engine.Path = fixturePath
	return &app{cfg: cfg, logger: slog.New(slog.DiscardHandler)}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dapbridge 1.2.3\ncommit: abc123\nbuilt: 2026-01-02\n", out)
}

func TestRoot_InvalidConfig(t *testing.T) {
	t.Setenv("DAPBRIDGE_ENGINE_KIND", "gdb")
	_, err := execute(t, "version")
	assert.ErrorIs(t, err, config.ErrUnknownEngine)
}

// replayRows splits walkFixture output into stops, each holding its path
// lines with whitespace collapsed.
func replayRows(out string) [][]string {
	var stops [][]string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		switch {
		case len(fields) > 0 && fields[0] == "stop":
			stops = append(stops, []string{line})
		case len(fields) == 4 && len(stops) > 0:
			stops[len(stops)-1] = append(stops[len(stops)-1], strings.Join(fields, " "))
		case len(fields) > 0 && len(stops) > 0:
			stops[len(stops)-1] = append(stops[len(stops)-1], strings.TrimSpace(line))
		}
	}
	return stops
}

func TestReplay(t *testing.T) {
	out, err := execute(t, "replay", fixturePath)
	require.NoError(t, err)

	stops := replayRows(out)
	require.Len(t, stops, 3)

	assert.Equal(t, "stop 0: entry (generation 0)", stops[0][0])
	assert.Contains(t, stops[0], "1001 new - thread:1")
	assert.Contains(t, stops[0], "1002 new 1001 0:main.main")
	assert.Contains(t, stops[0], "1004 new 1003 cfg")
	assert.Contains(t, stops[0], "4 live, 4 new, 0 reused")
	assert.Contains(t, out, "  1002   new    1001     0:main.main\n")

	assert.Equal(t, "stop 1: breakpoint (generation 1)", stops[1][0])
	assert.Contains(t, stops[1], "1002 reused 1001 0:main.main")
	assert.Contains(t, stops[1], "1004 reused 1003 cfg")
	assert.Contains(t, stops[1], "1005 new 1001 1:main.run")
	assert.Contains(t, stops[1], "1007 new - thread:2")
	assert.Contains(t, stops[1], "9 live, 5 new, 4 reused")

	assert.Equal(t, "stop 2: step (generation 2)", stops[2][0])
	assert.Contains(t, stops[2], "4 live, 0 new, 4 reused")
	assert.NotContains(t, strings.Join(stops[2], "\n"), "main.run")
}

func TestWalkFixture_SiblingsAndRepeats(t *testing.T) {
	stop := replay.RecordedStop{Reason: "entry"}
	stop.Threads = []backend.Thread{
		{ID: 1, Frames: []backend.Frame{{
			Name: "f",
			Scopes: []backend.Scope{{Name: "Locals", Variables: []backend.Variable{
				{Name: "x", Children: []backend.Variable{{Name: "a"}}},
				{Name: "x", Children: []backend.Variable{{Name: "b"}}},
			}}},
		}}},
		{ID: 1},
	}

	var buf bytes.Buffer
	require.NoError(t, walkFixture(&buf, &replay.Fixture{Stops: []replay.RecordedStop{stop}}))

	stops := replayRows(buf.String())
	require.Len(t, stops, 1)
	assert.Equal(t, []string{
		"stop 0: entry (generation 0)",
		"1001 new - thread:1",
		"1002 new 1001 0:f",
		"1003 new 1002 Locals",
		"1004 new 1003 x",
		"1005 new 1003 x#1",
		"1001 again - thread:1",
		"5 live, 5 new, 0 reused",
	}, stops[0])
}

func TestReplay_Errors(t *testing.T) {
	_, err := execute(t, "replay", "does-not-exist.yaml")
	assert.Error(t, err)

	_, err = execute(t, "replay")
	assert.Error(t, err)
}

func TestServe_Stdio(t *testing.T) {
	in := strings.NewReader(
		frame(t, 1, dap.CommandInitialize, map[string]any{"adapterID": "dapbridge"}) +
			frame(t, 2, dap.CommandDisconnect, nil),
	)
	var out bytes.Buffer

	require.NoError(t, testApp(t).serve(context.Background(), in, &out))
	assert.Contains(t, out.String(), `"command":"initialize"`)
	assert.Contains(t, out.String(), `"event":"initialized"`)
	assert.Contains(t, out.String(), `"command":"disconnect"`)
	assert.NotContains(t, out.String(), `"success":false`)
}

func TestServeListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := testApp(t)
	done := make(chan error, 1)
	go func() { done <- a.serveListener(ctx, ln, observability.NewMetrics()) }()

	// Two clients in a row are both served.
	for range 2 {
		conn, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		tr := dap.NewSocketTransport(conn)

		_, err = conn.Write([]byte(frame(t, 1, dap.CommandInitialize, nil)))
		require.NoError(t, err)
		msg, err := tr.Receive()
		require.NoError(t, err)

		var resp dap.Response
		require.NoError(t, json.Unmarshal(msg.Content, &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, dap.CommandInitialize, resp.Command)

		require.NoError(t, conn.Close())
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestNewEngine(t *testing.T) {
	e, err := newEngine(config.EngineConfig{Kind: config.EngineReplay, Path: fixturePath})
	require.NoError(t, err)
	assert.IsType(t, &replay.Engine{}, e)

	e, err = newEngine(config.EngineConfig{Kind: config.EngineLua})
	require.NoError(t, err)
	assert.IsType(t, &luascript.Engine{}, e)

	_, err = newEngine(config.EngineConfig{Kind: "gdb"})
	assert.ErrorIs(t, err, config.ErrUnknownEngine)
}
