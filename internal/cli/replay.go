package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/dapbridge/internal/adapter"
	"github.com/dshills/dapbridge/internal/backend"
	"github.com/dshills/dapbridge/internal/backend/replay"
	"github.com/dshills/dapbridge/internal/handles"
)

func newReplayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <fixture>",
		Short: "Show the handles a recorded session is assigned",
		Long: "Walk every stop of a replay fixture as a client that expands\n" +
			"everything would, and print the handle of every path as a tree.\n" +
			"Handles carried over from the previous stop are marked reused.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := replay.Load(args[0])
			if err != nil {
				return err
			}
			a.logger.Debug("fixture loaded", "path", args[0], "stops", len(f.Stops))
			return walkFixture(cmd.OutOrStdout(), f)
		},
	}
}

// walkFixture assigns handles for each stop of f in its own generation and
// writes one line per path: handle, how it was obtained, the parent's
// handle, and the last key indented by depth.
func walkFixture(w io.Writer, f *replay.Fixture) error {
	tree := handles.New[struct{}]()
	for i := range f.Stops {
		if i > 0 {
			tree = tree.Advance()
		}
		stop := &f.Stops[i]
		fmt.Fprintf(w, "stop %d: %s (generation %d)\n", i, stop.Reason, tree.Generation())

		rw := &recordWriter{w: w, tree: tree}
		for ti := range stop.Threads {
			rw.thread(&stop.Threads[ti])
		}
		if rw.err != nil {
			return rw.err
		}

		st := tree.Stats()
		fmt.Fprintf(w, "  %d live, %d new, %d reused\n", st.Live, st.Minted, st.Reused)
	}
	return nil
}

type recordWriter struct {
	w    io.Writer
	tree *handles.Tree[struct{}]
	err  error
}

func (rw *recordWriter) create(parent handles.Handle, key string) handles.Handle {
	if rw.err != nil {
		return handles.NoHandle
	}
	before := rw.tree.Stats()
	h, err := rw.tree.Create(parent, key, struct{}{})
	if err != nil {
		rw.err = err
		return handles.NoHandle
	}

	after := rw.tree.Stats()
	mark := "again"
	switch {
	case after.Minted > before.Minted:
		mark = "new"
	case after.Reused > before.Reused:
		mark = "reused"
	}

	_, path, _ := rw.tree.GetWithPath(h)
	under := "-"
	if p := path.Parent(); p != nil {
		if ph, ok := rw.tree.Lookup(p); ok {
			under = strconv.FormatUint(uint64(ph), 10)
		}
	}
	indent := strings.Repeat("  ", path.Depth()-1)
	fmt.Fprintf(rw.w, "  %-6d %-6s %-6s %s%s\n", h, mark, under, indent, path.Key())
	return h
}

func (rw *recordWriter) thread(th *backend.Thread) {
	th0 := rw.create(handles.NoHandle, adapter.ThreadKey(th.ID))
	for i := range th.Frames {
		f := &th.Frames[i]
		fh := rw.create(th0, adapter.FrameKey(len(th.Frames)-1-i, f.Name))
		for si, key := range adapter.ScopeKeys(f.Scopes) {
			rw.variables(rw.create(fh, key), f.Scopes[si].Variables)
		}
	}
}

func (rw *recordWriter) variables(parent handles.Handle, vars []backend.Variable) {
	for i, key := range adapter.VariableKeys(vars, 0, len(vars)) {
		if vars[i].HasChildren() {
			rw.variables(rw.create(parent, key), vars[i].Children)
		}
	}
}
