// Package handles assigns small, stable integer handles to objects that live
// in a tree which is rebuilt from scratch over and over.
//
// A debug adapter sees the debuggee's threads, stack frames, scopes and
// variables as a fresh hierarchy every time the program stops. The client on
// the other end of the protocol holds on to the integers it was given
// (frame ids, variable references) and sends them back later. Tree keeps
// those integers stable: an object reached by the same sequence of keys as
// in the previous stop gets the same handle again.
//
// # Paths
//
// A VPath is the identity of a tree position. It is a chain of string keys
// from a root to a leaf, compared by value:
//
//	a := handles.Root("thread:1").Extend("0:main.main")
//	b := handles.Root("thread:1").Extend("0:main.main")
//	a.Equal(b) // true
//
// Children share their parent, so extending a path never copies it.
//
// # Generations
//
// A Tree holds the handles of one generation plus the path to handle map of
// the generation before it:
//
//	tree := handles.New[*Node]()
//	th, _ := tree.Create(handles.NoHandle, "thread:1", threadNode)
//	fh, _ := tree.Create(th, "0:main.main", frameNode)
//
//	// debuggee stopped again
//	tree = tree.Advance()
//	th2, _ := tree.Create(handles.NoHandle, "thread:1", threadNode) // th2 == th
//
// Handles whose path does not come back are retired for good. A handle from
// two generations ago no longer resolves even when its path reappears.
//
// Tree is not safe for concurrent use. Advance hands ownership to the
// returned tree; the old one panics with ErrRetired if it is used again.
package handles
