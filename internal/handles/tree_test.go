package handles

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTree_ReuseAcrossGenerations(t *testing.T) {
	tree := New[int]()
	a1 := tree.MustCreate(NoHandle, "1", 0xa1)
	a2 := tree.MustCreate(NoHandle, "2", 0xa2)
	a11 := tree.MustCreate(a1, "1.1", 0xa11)
	a12 := tree.MustCreate(a1, "1.2", 0xa12)
	a121 := tree.MustCreate(a12, "1.2.1", 0xa121)
	a21 := tree.MustCreate(a2, "2.1", 0xa21)

	for h, want := range map[Handle]int{a1: 0xa1, a12: 0xa12, a121: 0xa121} {
		got, ok := tree.Get(h)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	tree = tree.Advance()
	b1 := tree.MustCreate(NoHandle, "1", 0xb1)
	b3 := tree.MustCreate(NoHandle, "3", 0xb3)
	b11 := tree.MustCreate(b1, "1.1", 0xb11)
	b12 := tree.MustCreate(b1, "1.2", 0xb12)
	b13 := tree.MustCreate(b1, "1.3", 0xb13)
	b121 := tree.MustCreate(b12, "1.2.1", 0xb121)
	b122 := tree.MustCreate(b12, "1.2.2", 0xb122)

	_, ok := tree.Get(a2)
	assert.False(t, ok)
	_, ok = tree.Get(a21)
	assert.False(t, ok)

	assert.Equal(t, a1, b1)
	assert.Equal(t, a11, b11)
	assert.Equal(t, a12, b12)
	assert.Equal(t, a121, b121)

	for _, fresh := range []Handle{b3, b13, b122} {
		assert.NotContains(t, []Handle{a1, a2, a11, a12, a121, a21}, fresh)
	}

	v, ok := tree.Get(b1)
	require.True(t, ok)
	assert.Equal(t, 0xb1, v)
	v, ok = tree.Get(b122)
	require.True(t, ok)
	assert.Equal(t, 0xb122, v)
}

func TestTree_HandlesStartAboveFloor(t *testing.T) {
	tree := New[string]()
	h1 := tree.MustCreate(NoHandle, "a", "a")
	h2 := tree.MustCreate(NoHandle, "b", "b")

	assert.Equal(t, FirstHandle+1, h1)
	assert.Equal(t, FirstHandle+2, h2)
	assert.NotEqual(t, NoHandle, h1)
}

func TestTree_DistinctPathsDistinctHandles(t *testing.T) {
	tree := New[int]()
	seen := make(map[Handle]string)

	root := tree.MustCreate(NoHandle, "r", 0)
	seen[root] = "r"
	for _, key := range []string{"a", "b", "c", "d"} {
		h := tree.MustCreate(root, key, 0)
		_, dup := seen[h]
		require.False(t, dup, "handle %d reissued", h)
		seen[h] = key

		leaf := tree.MustCreate(h, key, 0)
		_, dup = seen[leaf]
		require.False(t, dup, "handle %d reissued", leaf)
		seen[leaf] = key + "/" + key
	}
	assert.Equal(t, len(seen), tree.Len())
}

func TestTree_DuplicateKeyOverwrites(t *testing.T) {
	tree := New[string]()
	root := tree.MustCreate(NoHandle, "root", "root")
	first := tree.MustCreate(root, "x", "first")
	second := tree.MustCreate(root, "x", "second")

	assert.Equal(t, first, second)
	assert.Equal(t, 2, tree.Len())

	v, ok := tree.Get(first)
	require.True(t, ok)
	assert.Equal(t, "second", v)

	stats := tree.Stats()
	assert.Equal(t, 2, stats.Minted)
}

func TestTree_UnknownParent(t *testing.T) {
	tree := New[int]()
	h1 := tree.MustCreate(NoHandle, "12345", 12345)

	_, err := tree.Create(h1+1, "12345", 12345)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownParent))

	var perr *ParentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, h1+1, perr.Parent)
	assert.Equal(t, 1, tree.Len(), "failed create must not record anything")

	assert.PanicsWithError(t, perr.Error(), func() {
		tree.MustCreate(h1+1, "12345", 12345)
	})
}

func TestTree_StaleParentRejected(t *testing.T) {
	tree := New[int]()
	old := tree.MustCreate(NoHandle, "root", 1)

	tree = tree.Advance()
	_, err := tree.Create(old, "child", 2)
	assert.ErrorIs(t, err, ErrUnknownParent)

	// Once the root is recreated the same handle is a valid parent again.
	root := tree.MustCreate(NoHandle, "root", 1)
	require.Equal(t, old, root)
	_, err = tree.Create(root, "child", 2)
	assert.NoError(t, err)
}

func TestTree_RetiredHandleNeverReassigned(t *testing.T) {
	tree := New[int]()
	gone := tree.MustCreate(NoHandle, "gone", 1)

	for range 3 {
		tree = tree.Advance()
		_, ok := tree.Get(gone)
		assert.False(t, ok)
		for _, key := range []string{"a", "b", "c"} {
			h := tree.MustCreate(NoHandle, key, 0)
			assert.NotEqual(t, gone, h)
		}
	}
}

func TestTree_TwoGenerationWindow(t *testing.T) {
	tree := New[int]()
	g0 := tree.MustCreate(NoHandle, "p", 0)

	tree = tree.Advance() // p absent in generation 1
	other := tree.MustCreate(NoHandle, "q", 1)
	_, ok := tree.Get(g0)
	assert.False(t, ok)

	tree = tree.Advance() // p reappears in generation 2
	g2 := tree.MustCreate(NoHandle, "p", 2)
	assert.NotEqual(t, g0, g2)
	assert.NotEqual(t, other, g2)
	_, ok = tree.Get(g0)
	assert.False(t, ok)

	tree = tree.Advance() // p present again in generation 3
	g3 := tree.MustCreate(NoHandle, "p", 3)
	assert.Equal(t, g2, g3)
}

func TestTree_ReusedSurvivesConsecutiveGenerations(t *testing.T) {
	tree := New[int]()
	h := tree.MustCreate(NoHandle, "p", 0)

	for gen := 1; gen <= 5; gen++ {
		tree = tree.Advance()
		got := tree.MustCreate(NoHandle, "p", gen)
		require.Equal(t, h, got)
		assert.Equal(t, uint64(gen), tree.Generation())
	}
}

func TestTree_GetWithPath(t *testing.T) {
	tree := New[string]()
	root := tree.MustCreate(NoHandle, "thread:1", "t")
	frame := tree.MustCreate(root, "0:main", "f")

	v, path, ok := tree.GetWithPath(frame)
	require.True(t, ok)
	assert.Equal(t, "f", v)
	assert.True(t, path.Equal(Root("thread:1").Extend("0:main")))

	h, ok := tree.Lookup(Root("thread:1").Extend("0:main"))
	require.True(t, ok)
	assert.Equal(t, frame, h)

	_, ok = tree.Lookup(nil)
	assert.False(t, ok)

	_, path, ok = tree.GetWithPath(NoHandle)
	assert.False(t, ok)
	assert.Nil(t, path)

	_, ok = tree.Get(Handle(42))
	assert.False(t, ok)
}

func TestTree_AdvanceDropsValues(t *testing.T) {
	tree := New[int]()
	root := tree.MustCreate(NoHandle, "root", 1)
	tree.MustCreate(root, "child", 2)

	tree = tree.Advance()
	assert.Equal(t, 0, tree.Len())
	_, ok := tree.Lookup(Root("root"))
	assert.False(t, ok, "previous generation paths are not current")
}

func TestTree_UseAfterAdvancePanics(t *testing.T) {
	old := New[int]()
	h := old.MustCreate(NoHandle, "root", 1)
	_ = old.Advance()

	assert.PanicsWithValue(t, ErrRetired, func() { old.Get(h) })
	assert.PanicsWithValue(t, ErrRetired, func() { _, _ = old.Create(NoHandle, "x", 1) })
	assert.PanicsWithValue(t, ErrRetired, func() { old.Advance() })
}

func TestTree_Stats(t *testing.T) {
	tree := New[int]()
	root := tree.MustCreate(NoHandle, "root", 0)
	tree.MustCreate(root, "a", 0)
	tree.MustCreate(root, "b", 0)

	stats := tree.Stats()
	assert.Equal(t, Stats{Live: 3, Minted: 3, Reused: 0, TotalMinted: 3, Generation: 0}, stats)

	tree = tree.Advance()
	root = tree.MustCreate(NoHandle, "root", 0)
	tree.MustCreate(root, "a", 0)
	tree.MustCreate(root, "c", 0)

	stats = tree.Stats()
	assert.Equal(t, Stats{Live: 3, Minted: 1, Reused: 2, TotalMinted: 4, Generation: 1}, stats)
}

func TestTree_Exhausted(t *testing.T) {
	tree := New[int]()
	tree.last = math.MaxUint32 - 1

	h := tree.MustCreate(NoHandle, "last", 0)
	assert.Equal(t, Handle(math.MaxUint32), h)

	_, err := tree.Create(NoHandle, "overflow", 0)
	assert.ErrorIs(t, err, ErrExhausted)

	// Reuse still works when nothing has to be minted.
	again, err := tree.Create(NoHandle, "last", 1)
	require.NoError(t, err)
	assert.Equal(t, h, again)
}
