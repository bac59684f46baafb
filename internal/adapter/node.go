package adapter

import (
	"fmt"

	"github.com/dshills/dapbridge/internal/backend"
)

type nodeKind int

const (
	kindThread nodeKind = iota
	kindFrame
	kindScope
	kindVariable
)

func (k nodeKind) String() string {
	switch k {
	case kindThread:
		return "thread"
	case kindFrame:
		return "frame"
	case kindScope:
		return "scope"
	case kindVariable:
		return "variable"
	default:
		return "unknown"
	}
}

// node is what a handle stands for. It points into the snapshot of the
// generation that created it.
type node struct {
	kind     nodeKind
	thread   *backend.Thread
	frame    *backend.Frame
	scope    *backend.Scope
	variable *backend.Variable

	// evalName is the dotted expression that reaches a variable.
	evalName string
}

// children returns the variables listed under a scope or structured variable.
func (n *node) children() []backend.Variable {
	switch n.kind {
	case kindScope:
		return n.scope.Variables
	case kindVariable:
		return n.variable.Children
	default:
		return nil
	}
}

// ThreadKey is the root path key of a thread.
func ThreadKey(id int) string {
	return fmt.Sprintf("thread:%d", id)
}

// FrameKey is the path key of a frame below its thread. depth counts from
// the outermost frame, so callers keep their handles when a call is pushed
// on top of them.
func FrameKey(depth int, name string) string {
	return fmt.Sprintf("%d:%s", depth, name)
}

// EvalKey is the path key of an evaluate result below its frame.
func EvalKey(expr string) string {
	return "[eval]" + expr
}

func joinEvalName(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// ScopeKeys returns the path keys of a frame's scopes.
func ScopeKeys(scopes []backend.Scope) []string {
	return siblingKeys(scopes, 0, len(scopes), func(sc *backend.Scope) string { return sc.Name })
}

// VariableKeys returns the path keys of vars[start:end]. Keys are assigned
// over the whole list so a page gets the same keys as a full listing.
func VariableKeys(vars []backend.Variable, start, end int) []string {
	return siblingKeys(vars, start, end, func(v *backend.Variable) string { return v.Name })
}

// siblingKeys keys items by name. A name seen earlier in the list, as with
// shadowed locals, gets "#<n>" appended until the key is unused.
func siblingKeys[T any](items []T, start, end int, name func(*T) string) []string {
	keys := make([]string, 0, end-start)
	used := make(map[string]bool, end)
	next := make(map[string]int)
	for i := 0; i < end; i++ {
		n := name(&items[i])
		key := n
		for c := next[n]; ; c++ {
			if c > 0 {
				key = fmt.Sprintf("%s#%d", n, c)
			}
			if !used[key] {
				next[n] = c + 1
				break
			}
		}
		used[key] = true
		if i >= start {
			keys = append(keys, key)
		}
	}
	return keys
}
