package luascript

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/dapbridge/internal/backend"
)

// decodeStop converts a table returned by stop(n).
func decodeStop(t *lua.LTable) (backend.Stop, *backend.Snapshot, error) {
	stop := backend.Stop{
		Reason:   str(t, "reason"),
		ThreadID: num(t, "thread"),
		Output:   str(t, "output"),
	}

	snap := &backend.Snapshot{}
	err := each(t, "threads", func(i int, th *lua.LTable) error {
		thread := backend.Thread{
			ID:   num(th, "id"),
			Name: str(th, "name"),
		}
		if thread.ID == 0 {
			return fmt.Errorf("threads[%d]: missing id", i)
		}
		err := each(th, "frames", func(_ int, fr *lua.LTable) error {
			frame, err := decodeFrame(fr)
			if err != nil {
				return err
			}
			thread.Frames = append(thread.Frames, frame)
			return nil
		})
		if err != nil {
			return fmt.Errorf("threads[%d]: %w", i, err)
		}
		snap.Threads = append(snap.Threads, thread)
		return nil
	})
	if err != nil {
		return backend.Stop{}, nil, err
	}
	return stop, snap, nil
}

func decodeFrame(t *lua.LTable) (backend.Frame, error) {
	frame := backend.Frame{
		Name:   str(t, "name"),
		Source: str(t, "source"),
		Line:   num(t, "line"),
		Column: num(t, "column"),
	}
	err := each(t, "scopes", func(_ int, sc *lua.LTable) error {
		scope := backend.Scope{
			Name:      str(sc, "name"),
			Hint:      str(sc, "hint"),
			Expensive: lua.LVAsBool(sc.RawGetString("expensive")),
		}
		vars, err := decodeVariables(sc, "variables")
		if err != nil {
			return fmt.Errorf("scope %q: %w", scope.Name, err)
		}
		scope.Variables = vars
		frame.Scopes = append(frame.Scopes, scope)
		return nil
	})
	return frame, err
}

func decodeVariables(t *lua.LTable, field string) ([]backend.Variable, error) {
	var vars []backend.Variable
	err := each(t, field, func(i int, vt *lua.LTable) error {
		v := backend.Variable{
			Name:  str(vt, "name"),
			Value: str(vt, "value"),
			Type:  str(vt, "type"),
		}
		if v.Name == "" {
			return fmt.Errorf("%s[%d]: missing name", field, i)
		}
		children, err := decodeVariables(vt, "children")
		if err != nil {
			return fmt.Errorf("%s: %w", v.Name, err)
		}
		v.Children = children
		vars = append(vars, v)
		return nil
	})
	return vars, err
}

// each calls fn for every table in the array t[field]. A missing field is
// an empty array.
func each(t *lua.LTable, field string, fn func(i int, item *lua.LTable) error) error {
	v := t.RawGetString(field)
	if v == lua.LNil {
		return nil
	}
	arr, ok := v.(*lua.LTable)
	if !ok {
		return fmt.Errorf("%s: want table, got %s", field, v.Type())
	}
	for i := 1; i <= arr.Len(); i++ {
		item, ok := arr.RawGetInt(i).(*lua.LTable)
		if !ok {
			return fmt.Errorf("%s[%d]: want table", field, i)
		}
		if err := fn(i, item); err != nil {
			return err
		}
	}
	return nil
}

func str(t *lua.LTable, field string) string {
	v := t.RawGetString(field)
	if v == lua.LNil {
		return ""
	}
	return v.String()
}

func num(t *lua.LTable, field string) int {
	if n, ok := t.RawGetString(field).(lua.LNumber); ok {
		return int(n)
	}
	return 0
}
