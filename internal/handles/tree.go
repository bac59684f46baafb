package handles

import (
	"fmt"
	"math"
)

// Handle is an opaque non-zero identifier for an object in a Tree.
type Handle uint32

// NoHandle is never issued. It stands for "no parent" in Create and for
// "no reference" on the wire.
const NoHandle Handle = 0

// FirstHandle is the floor of the handle counter. Minted handles start
// above it so callers can keep the range below for their own sentinels.
const FirstHandle Handle = 1000

// entry is what a handle resolves to in the current generation.
type entry[V any] struct {
	value V
	path  *VPath
}

// Stats counts handle activity.
type Stats struct {
	// Live is the number of handles in the current generation.
	Live int
	// Minted and Reused count Create calls in the current generation that
	// produced a new handle or recovered one from the previous generation.
	Minted int
	Reused int
	// TotalMinted counts every handle minted over the tree's lifetime.
	TotalMinted uint64
	// Generation is the number of Advance calls that led to this tree.
	Generation uint64
}

// Tree maps handles to values for one generation of a rebuilt hierarchy
// and remembers the previous generation's handles by path.
type Tree[V any] struct {
	byHandle   map[Handle]entry[V]
	byPath     *pathMap
	prevByPath *pathMap
	last       Handle
	generation uint64

	minted      int
	reused      int
	totalMinted uint64

	retired bool
}

// New returns an empty tree at generation zero.
func New[V any]() *Tree[V] {
	return &Tree[V]{
		byHandle:   make(map[Handle]entry[V]),
		byPath:     newPathMap(),
		prevByPath: newPathMap(),
		last:       FirstHandle,
	}
}

// Advance starts the next generation. The returned tree has no values and
// takes over t's storage; handles of t's paths are recovered by Create on
// the returned tree. t must not be used afterwards.
func (t *Tree[V]) Advance() *Tree[V] {
	t.live()

	clear(t.byHandle)
	t.prevByPath.reset()

	next := &Tree[V]{
		byHandle:    t.byHandle,
		byPath:      t.prevByPath,
		prevByPath:  t.byPath,
		last:        t.last,
		generation:  t.generation + 1,
		totalMinted: t.totalMinted,
	}

	t.byHandle = nil
	t.byPath = nil
	t.prevByPath = nil
	t.retired = true

	return next
}

// Create records value at the path formed by parent's path and key, and
// returns its handle. Pass NoHandle as parent for a root. A path already
// created in this generation keeps its handle and gets the new value. A path
// seen in the previous generation gets its old handle back.
func (t *Tree[V]) Create(parent Handle, key string, value V) (Handle, error) {
	t.live()

	var path *VPath
	if parent == NoHandle {
		path = Root(key)
	} else {
		pe, ok := t.byHandle[parent]
		if !ok {
			return NoHandle, &ParentError{Parent: parent, Key: key, Generation: t.generation}
		}
		path = pe.path.Extend(key)
	}

	h, ok := t.byPath.get(path)
	if !ok {
		if h, ok = t.prevByPath.get(path); ok {
			t.reused++
		} else {
			if t.last == math.MaxUint32 {
				return NoHandle, fmt.Errorf("create %q: %w", path, ErrExhausted)
			}
			t.last++
			h = t.last
			t.minted++
			t.totalMinted++
		}
		t.byPath.put(path, h)
	}

	t.byHandle[h] = entry[V]{value: value, path: path}
	return h, nil
}

// MustCreate is like Create but panics if the parent is unknown.
func (t *Tree[V]) MustCreate(parent Handle, key string, value V) Handle {
	h, err := t.Create(parent, key, value)
	if err != nil {
		panic(err)
	}
	return h
}

// Get returns the value for h in the current generation.
func (t *Tree[V]) Get(h Handle) (V, bool) {
	t.live()
	e, ok := t.byHandle[h]
	return e.value, ok
}

// GetWithPath returns the value and path for h in the current generation.
func (t *Tree[V]) GetWithPath(h Handle) (V, *VPath, bool) {
	t.live()
	e, ok := t.byHandle[h]
	return e.value, e.path, ok
}

// Lookup returns the current handle of path.
func (t *Tree[V]) Lookup(path *VPath) (Handle, bool) {
	t.live()
	if path == nil {
		return NoHandle, false
	}
	return t.byPath.get(path)
}

// Len returns the number of handles in the current generation.
func (t *Tree[V]) Len() int {
	t.live()
	return len(t.byHandle)
}

// Generation returns how many times Advance led to this tree.
func (t *Tree[V]) Generation() uint64 {
	t.live()
	return t.generation
}

// Stats returns handle counters for the current generation.
func (t *Tree[V]) Stats() Stats {
	t.live()
	return Stats{
		Live:        len(t.byHandle),
		Minted:      t.minted,
		Reused:      t.reused,
		TotalMinted: t.totalMinted,
		Generation:  t.generation,
	}
}

func (t *Tree[V]) live() {
	if t.retired {
		panic(ErrRetired)
	}
}
