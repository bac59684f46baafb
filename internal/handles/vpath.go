package handles

import (
	"encoding/binary"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// VPath identifies a position in a tree by the keys leading to it from a
// root. Paths are immutable. Two paths are equal when their full key
// sequences are equal, regardless of how they were built.
type VPath struct {
	key    string
	parent *VPath
	depth  int
	hash   uint64
}

// Root returns a path with a single segment and no parent.
func Root(key string) *VPath {
	return &VPath{
		key:   key,
		depth: 1,
		hash:  chainHash(0, key),
	}
}

// Extend returns a child path of p. The parent is shared, not copied.
func (p *VPath) Extend(key string) *VPath {
	return &VPath{
		key:    key,
		parent: p,
		depth:  p.depth + 1,
		hash:   chainHash(p.hash, key),
	}
}

// chainHash folds a key into its parent's hash so that the hash of a path
// covers every segment without walking the chain.
func chainHash(parent uint64, key string) uint64 {
	var prefix [8]byte
	binary.LittleEndian.PutUint64(prefix[:], parent)

	d := xxhash.New()
	_, _ = d.Write(prefix[:])
	_, _ = d.WriteString(key)
	return d.Sum64()
}

// Key returns the last segment of the path.
func (p *VPath) Key() string {
	return p.key
}

// Parent returns the parent path, or nil for a root.
func (p *VPath) Parent() *VPath {
	return p.parent
}

// Depth returns the number of segments.
func (p *VPath) Depth() int {
	return p.depth
}

// Hash returns the structural hash of the path.
func (p *VPath) Hash() uint64 {
	return p.hash
}

// Equal reports whether p and other have the same key sequence.
func (p *VPath) Equal(other *VPath) bool {
	for p != other {
		if p == nil || other == nil {
			return false
		}
		if p.hash != other.hash || p.depth != other.depth || p.key != other.key {
			return false
		}
		p, other = p.parent, other.parent
	}
	return true
}

// Segments returns the keys from the root to p.
func (p *VPath) Segments() []string {
	segs := make([]string, p.depth)
	for n := p; n != nil; n = n.parent {
		segs[n.depth-1] = n.key
	}
	return segs
}

// String returns the segments joined with "/".
func (p *VPath) String() string {
	if p == nil {
		return ""
	}
	return strings.Join(p.Segments(), "/")
}

// pathMap is a hash map keyed by path value rather than by pointer.
type pathMap struct {
	buckets map[uint64][]pathSlot
	size    int
}

type pathSlot struct {
	path   *VPath
	handle Handle
}

func newPathMap() *pathMap {
	return &pathMap{buckets: make(map[uint64][]pathSlot)}
}

func (m *pathMap) get(p *VPath) (Handle, bool) {
	for _, slot := range m.buckets[p.Hash()] {
		if slot.path.Equal(p) {
			return slot.handle, true
		}
	}
	return NoHandle, false
}

func (m *pathMap) put(p *VPath, h Handle) {
	bucket := m.buckets[p.Hash()]
	for i := range bucket {
		if bucket[i].path.Equal(p) {
			bucket[i] = pathSlot{path: p, handle: h}
			return
		}
	}
	m.buckets[p.Hash()] = append(bucket, pathSlot{path: p, handle: h})
	m.size++
}

func (m *pathMap) len() int {
	return m.size
}

// reset empties the map but keeps its storage.
func (m *pathMap) reset() {
	clear(m.buckets)
	m.size = 0
}
