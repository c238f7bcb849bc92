package bptree

import (
	"math/rand"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bptree/internal/base"
	"bptree/internal/buffer"
)

// setup builds a tree over a fresh pool. Scenario tests use small page
// capacities so splits and merges trigger with a handful of keys.
func setup(t *testing.T, opts ...Option) (*BPlusTree[uint64, RID], *buffer.Pool) {
	t.Helper()

	disk, err := buffer.OpenDisk(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	pool, err := buffer.NewPool(disk)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	hg, headerID, err := pool.NewPage()
	require.NoError(t, err)
	hg.Drop()

	tree, err := New[uint64, RID]("test_index", headerID, pool, Ordered[uint64](), opts...)
	require.NoError(t, err)
	return tree, pool
}

func setupSmall(t *testing.T) (*BPlusTree[uint64, RID], *buffer.Pool) {
	t.Helper()
	return setup(t, WithLeafMaxSize(4), WithInternalMaxSize(4))
}

func rid(k uint64) RID {
	return RID{PageID: PageID(k), Slot: uint32(k)}
}

func mustInsert(t *testing.T, tree *BPlusTree[uint64, RID], keys ...uint64) {
	t.Helper()
	for _, k := range keys {
		ok, err := tree.Insert(k, rid(k), nil)
		require.NoError(t, err, "insert %d", k)
		require.True(t, ok, "insert %d reported duplicate", k)
	}
}

// scan walks the iterator from Begin and returns all keys in order.
func scan(t *testing.T, tree *BPlusTree[uint64, RID]) []uint64 {
	t.Helper()
	var keys []uint64
	it, err := tree.Begin()
	require.NoError(t, err)
	for !it.IsEnd() {
		k, v, err := it.Entry()
		require.NoError(t, err)
		require.Equal(t, rid(k), v, "value mismatch at key %d", k)
		keys = append(keys, k)
		require.NoError(t, it.Next())
	}
	return keys
}

// subtreeShape is what verifySubtree reports upward for structure checks.
type subtreeShape struct {
	keys    []uint64
	depth   int
	leafIDs []base.PageID
}

// verifySubtree walks the page at id and checks, for every page below it:
// strictly ascending keys, occupancy bounds on non-root pages, uniform leaf
// depth, and that each separator equals the minimum key of its subtree.
func verifySubtree(t *testing.T, tree *BPlusTree[uint64, RID], id base.PageID, isRoot bool) subtreeShape {
	t.Helper()

	g, err := tree.pool.FetchRead(id)
	require.NoError(t, err)

	if g.Page().Header().Type == base.PageTypeLeaf {
		leaf := base.AsLeaf[uint64, RID](g.Page())
		size := leaf.Size()
		if !isRoot {
			require.GreaterOrEqual(t, size, leaf.MinSize(), "leaf %d under min", id)
		}
		require.LessOrEqual(t, size, leaf.MaxSize(), "leaf %d over max", id)
		keys := make([]uint64, size)
		for i := 0; i < size; i++ {
			keys[i] = leaf.KeyAt(i)
			if i > 0 {
				require.Less(t, keys[i-1], keys[i], "leaf %d keys not ascending", id)
			}
		}
		g.Drop()
		return subtreeShape{keys: keys, depth: 1, leafIDs: []base.PageID{id}}
	}

	node := base.AsInternal[uint64](g.Page())
	size := node.Size()
	if !isRoot {
		require.GreaterOrEqual(t, size, node.MinSize(), "internal %d under min", id)
	} else {
		require.GreaterOrEqual(t, size, 2, "root internal %d too small", id)
	}
	require.LessOrEqual(t, size, node.MaxSize(), "internal %d over max", id)

	seps := make([]uint64, size)
	children := make([]base.PageID, size)
	for i := 0; i < size; i++ {
		seps[i] = node.KeyAt(i)
		children[i] = node.ValueAt(i)
		if i > 1 {
			require.Less(t, seps[i-1], seps[i], "internal %d separators not ascending", id)
		}
	}
	g.Drop()

	shape := subtreeShape{depth: 0}
	for i, child := range children {
		sub := verifySubtree(t, tree, child, false)
		if i == 0 {
			shape.depth = sub.depth + 1
		} else {
			require.Equal(t, shape.depth, sub.depth+1, "leaves at uneven depth under %d", id)
			require.NotEmpty(t, sub.keys, "empty subtree under %d", id)
			require.Equal(t, seps[i], sub.keys[0],
				"separator %d of internal %d is not its subtree's minimum", i, id)
			require.Less(t, shape.keys[len(shape.keys)-1], seps[i],
				"subtree %d of internal %d overlaps separator", i, id)
		}
		shape.keys = append(shape.keys, sub.keys...)
		shape.leafIDs = append(shape.leafIDs, sub.leafIDs...)
	}
	return shape
}

// verifyTree checks the structural invariants of the whole tree and returns
// all keys in order. The leaf chain is cross-checked against the recursive
// in-order walk, and the pool must hold no pins afterwards.
func verifyTree(t *testing.T, tree *BPlusTree[uint64, RID]) []uint64 {
	t.Helper()

	root, err := tree.GetRootPageID()
	require.NoError(t, err)
	if root == InvalidPageID {
		empty, err := tree.IsEmpty()
		require.NoError(t, err)
		require.True(t, empty)
		return nil
	}

	shape := verifySubtree(t, tree, root, true)

	for i := 1; i < len(shape.keys); i++ {
		require.Less(t, shape.keys[i-1], shape.keys[i], "in-order keys not ascending")
	}

	// The sibling chain from the leftmost leaf must visit exactly the leaves
	// the recursive walk saw, in the same order.
	var chain []base.PageID
	next := shape.leafIDs[0]
	for next != base.InvalidPageID {
		chain = append(chain, next)
		g, err := tree.pool.FetchRead(next)
		require.NoError(t, err)
		next = base.AsLeaf[uint64, RID](g.Page()).NextPageID()
		g.Drop()
	}
	require.Equal(t, shape.leafIDs, chain, "leaf chain disagrees with tree order")

	require.Equal(t, 0, tree.pool.PinnedPages(), "pin leak")
	return shape.keys
}

// Scenario: a single insert is visible through every read surface.
func TestSingleInsert(t *testing.T) {
	t.Parallel()
	tree, _ := setupSmall(t)

	mustInsert(t, tree, 5)

	var result []RID
	found, err := tree.GetValue(5, &result)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []RID{rid(5)}, result)

	empty, err := tree.IsEmpty()
	require.NoError(t, err)
	assert.False(t, empty)

	assert.Equal(t, []uint64{5}, scan(t, tree))
	verifyTree(t, tree)
}

// Scenario: the fifth insert overflows a 4-entry root leaf into [1 2] and
// [3 4 5] under a fresh internal root routing on 3.
func TestFirstLeafSplit(t *testing.T) {
	t.Parallel()
	tree, pool := setupSmall(t)

	mustInsert(t, tree, 1, 2, 3, 4)
	root, err := tree.GetRootPageID()
	require.NoError(t, err)
	g, err := pool.FetchRead(root)
	require.NoError(t, err)
	assert.Equal(t, base.PageTypeLeaf, g.Page().Header().Type)
	g.Drop()

	mustInsert(t, tree, 5)

	root, err = tree.GetRootPageID()
	require.NoError(t, err)
	g, err = pool.FetchRead(root)
	require.NoError(t, err)
	require.Equal(t, base.PageTypeInternal, g.Page().Header().Type)
	node := base.AsInternal[uint64](g.Page())
	require.Equal(t, 2, node.Size())
	assert.Equal(t, uint64(3), node.KeyAt(1))
	left, right := node.ValueAt(0), node.ValueAt(1)
	g.Drop()

	lg, err := pool.FetchRead(left)
	require.NoError(t, err)
	lp := base.AsLeaf[uint64, RID](lg.Page())
	assert.Equal(t, 2, lp.Size())
	assert.Equal(t, right, lp.NextPageID())
	lg.Drop()

	rg, err := pool.FetchRead(right)
	require.NoError(t, err)
	rp := base.AsLeaf[uint64, RID](rg.Page())
	assert.Equal(t, 3, rp.Size())
	assert.Equal(t, uint64(3), rp.KeyAt(0))
	assert.Equal(t, InvalidPageID, rp.NextPageID())
	rg.Drop()

	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, verifyTree(t, tree))
}

// Scenario: sequential inserts build a three-level tree and range scans
// start at the requested key.
func TestThreeLevelTree(t *testing.T) {
	t.Parallel()
	tree, _ := setupSmall(t)

	var want []uint64
	for k := uint64(1); k <= 16; k++ {
		mustInsert(t, tree, k)
		want = append(want, k)
	}

	root, err := tree.GetRootPageID()
	require.NoError(t, err)
	shape := verifySubtree(t, tree, root, true)
	assert.Equal(t, 3, shape.depth)
	assert.Equal(t, want, verifyTree(t, tree))
	assert.Equal(t, want, scan(t, tree))

	it, err := tree.BeginAt(7)
	require.NoError(t, err)
	k, v, err := it.Entry()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), k)
	assert.Equal(t, rid(7), v)
}

// Scenario: removing the leftmost key underflows its leaf; repair keeps all
// invariants and the remaining keys.
func TestRemoveLeftmostUnderflow(t *testing.T) {
	t.Parallel()
	tree, _ := setupSmall(t)

	for k := uint64(1); k <= 16; k++ {
		mustInsert(t, tree, k)
	}
	require.NoError(t, tree.Remove(1, nil))

	want := make([]uint64, 0, 15)
	for k := uint64(2); k <= 16; k++ {
		want = append(want, k)
	}
	assert.Equal(t, want, verifyTree(t, tree))
}

// Scenario: draining the tree in reverse collapses it back to empty.
func TestRemoveAllReverse(t *testing.T) {
	t.Parallel()
	tree, _ := setupSmall(t)

	for k := uint64(1); k <= 16; k++ {
		mustInsert(t, tree, k)
	}
	for k := uint64(16); k >= 1; k-- {
		require.NoError(t, tree.Remove(k, nil))
		verifyTree(t, tree)
	}

	empty, err := tree.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
	root, err := tree.GetRootPageID()
	require.NoError(t, err)
	assert.Equal(t, InvalidPageID, root)
}

// Scenario: duplicate inserts fail without touching the stored value.
func TestDuplicateInsert(t *testing.T) {
	t.Parallel()
	tree, _ := setupSmall(t)

	mustInsert(t, tree, 10, 20, 30)

	ok, err := tree.Insert(20, RID{PageID: 999, Slot: 999}, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	var result []RID
	found, err := tree.GetValue(20, &result)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []RID{rid(20)}, result)
	verifyTree(t, tree)
}

func TestRemoveAbsentIsNoOp(t *testing.T) {
	t.Parallel()
	tree, _ := setupSmall(t)

	require.NoError(t, tree.Remove(7, nil)) // empty tree
	mustInsert(t, tree, 1, 2, 3)
	require.NoError(t, tree.Remove(7, nil)) // absent key
	assert.Equal(t, []uint64{1, 2, 3}, verifyTree(t, tree))
}

func TestGetValueMisses(t *testing.T) {
	t.Parallel()
	tree, _ := setupSmall(t)

	found, err := tree.GetValue(1, nil)
	require.NoError(t, err)
	assert.False(t, found)

	mustInsert(t, tree, 2, 4, 6)
	for _, k := range []uint64{1, 3, 5, 7} {
		found, err := tree.GetValue(k, nil)
		require.NoError(t, err)
		assert.False(t, found, "key %d", k)
	}
	assert.Equal(t, 0, tree.pool.PinnedPages())
}

// A non-splitting insert followed by removing the same key restores the
// previous tree shape exactly.
func TestInsertRemoveRoundTrip(t *testing.T) {
	t.Parallel()
	tree, _ := setupSmall(t)

	mustInsert(t, tree, 10, 20, 30)
	before, err := tree.Dump()
	require.NoError(t, err)

	mustInsert(t, tree, 15)
	require.NoError(t, tree.Remove(15, nil))

	after, err := tree.Dump()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

// Any insertion order yields the same sorted scan.
func TestPermutationsScanEqual(t *testing.T) {
	t.Parallel()

	const n = 200
	want := make([]uint64, n)
	for i := range want {
		want[i] = uint64(i + 1)
	}

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 3; trial++ {
		tree, _ := setupSmall(t)
		perm := rng.Perm(n)
		for _, i := range perm {
			mustInsert(t, tree, uint64(i+1))
		}
		assert.Equal(t, want, verifyTree(t, tree))
		assert.Equal(t, want, scan(t, tree))
	}
}

// Randomized insert/remove workload with a model map; invariants checked
// along the way.
func TestRandomWorkload(t *testing.T) {
	t.Parallel()
	tree, _ := setupSmall(t)

	rng := rand.New(rand.NewSource(7))
	model := map[uint64]bool{}

	for step := 0; step < 2000; step++ {
		k := uint64(rng.Intn(300) + 1)
		if rng.Intn(2) == 0 {
			ok, err := tree.Insert(k, rid(k), nil)
			require.NoError(t, err)
			assert.Equal(t, !model[k], ok, "insert %d at step %d", k, step)
			model[k] = true
		} else {
			require.NoError(t, tree.Remove(k, nil))
			delete(model, k)
		}
		if step%250 == 0 {
			verifyTree(t, tree)
		}
	}

	keys := verifyTree(t, tree)
	assert.Len(t, keys, len(model))
	for _, k := range keys {
		assert.True(t, model[k], "key %d in tree but not model", k)
	}
}

// Default page capacities hold over a hundred fixed-width entries, so a larger
// workload exercises multi-level structure at full page sizes too.
func TestDefaultPageSizes(t *testing.T) {
	t.Parallel()
	tree, _ := setup(t)

	const n = 5000
	rng := rand.New(rand.NewSource(11))
	for _, i := range rng.Perm(n) {
		mustInsert(t, tree, uint64(i+1))
	}
	keys := verifyTree(t, tree)
	require.Len(t, keys, n)

	for k := uint64(1); k <= n; k += 371 {
		found, err := tree.GetValue(k, nil)
		require.NoError(t, err)
		assert.True(t, found, "key %d", k)
	}
}

func TestConstructorValidation(t *testing.T) {
	t.Parallel()

	disk, err := buffer.OpenDisk(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	pool, err := buffer.NewPool(disk)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	hg, headerID, err := pool.NewPage()
	require.NoError(t, err)
	hg.Drop()

	_, err = New[uint64, RID]("bad", headerID, pool, Ordered[uint64](), WithLeafMaxSize(1))
	assert.ErrorIs(t, err, ErrInvalidMaxSize)

	_, err = New[uint64, RID]("bad", headerID, pool, Ordered[uint64](), WithInternalMaxSize(2))
	assert.ErrorIs(t, err, ErrInvalidMaxSize)

	_, err = New[uint64, RID]("bad", headerID, pool, Ordered[uint64](), WithLeafMaxSize(100000))
	assert.ErrorIs(t, err, ErrPageCapacity)
}

// Concurrent writers on disjoint ranges with readers mixed in; the final
// tree must contain exactly the union.
func TestConcurrentInserts(t *testing.T) {
	t.Parallel()
	tree, _ := setup(t)

	const (
		writers = 4
		perW    = 250
	)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			lo := uint64(w*perW + 1)
			for k := lo; k < lo+perW; k++ {
				ok, err := tree.Insert(k, rid(k), nil)
				assert.NoError(t, err)
				assert.True(t, ok)
			}
		}(w)
	}
	// Readers probe while writers run; hits are not asserted (keys may not
	// be inserted yet), errors are.
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				_, err := tree.GetValue(uint64(i%1000+1), nil)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	keys := verifyTree(t, tree)
	require.Len(t, keys, writers*perW)
	assert.Equal(t, uint64(1), keys[0])
	assert.Equal(t, uint64(writers*perW), keys[len(keys)-1])
}

func TestConcurrentRemoves(t *testing.T) {
	t.Parallel()
	tree, _ := setup(t)

	const n = 800
	for k := uint64(1); k <= n; k++ {
		mustInsert(t, tree, k)
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for k := uint64(2*w + 2); k <= n; k += 8 {
				assert.NoError(t, tree.Remove(k, nil))
			}
		}(w)
	}
	wg.Wait()

	keys := verifyTree(t, tree)
	require.Len(t, keys, n/2)
	for _, k := range keys {
		assert.Equal(t, uint64(1), k%2, "even key %d survived", k)
	}
}

func TestDumpRendersTree(t *testing.T) {
	t.Parallel()
	tree, _ := setupSmall(t)

	out, err := tree.Dump()
	require.NoError(t, err)
	assert.Equal(t, "(empty)\n", out)

	mustInsert(t, tree, 1, 2, 3, 4, 5)
	out, err = tree.Dump()
	require.NoError(t, err)
	assert.Contains(t, out, "internal")
	assert.Contains(t, out, "leaf")
	assert.Equal(t, 0, tree.pool.PinnedPages())
}
