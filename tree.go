package bptree

import (
	"cmp"
	"fmt"

	"bptree/internal/base"
	"bptree/internal/buffer"
)

// PageID is a handle into the buffer pool; zero means "no page".
type PageID = base.PageID

// InvalidPageID is the sentinel for "no page".
const InvalidPageID = base.InvalidPageID

// Comparator is a total order over keys: negative for a < b, zero for equal,
// positive for a > b.
type Comparator[K any] func(a, b K) int

// Ordered returns a Comparator for any naturally ordered key type.
func Ordered[K cmp.Ordered]() Comparator[K] {
	return func(a, b K) int { return cmp.Compare(a, b) }
}

// Transaction is an opaque handle threaded through Insert and Remove. The
// tree does not interpret it; it exists so callers can associate index
// mutations with their transaction machinery.
type Transaction struct {
	id uint64
}

// NewTransaction wraps a caller-chosen id.
func NewTransaction(id uint64) *Transaction {
	return &Transaction{id: id}
}

// ID returns the caller-chosen transaction id.
func (t *Transaction) ID() uint64 {
	return t.id
}

// BPlusTree is a disk-resident B+ tree index mapping fixed-width keys to
// fixed-width values through a paged buffer pool. Keys are unique. K and V
// must be bit-copyable types with no interior pointers; they are stored
// verbatim in page bytes.
//
// All operations are safe for concurrent use. Readers descend latch-free
// (one page latched at a time); writers crab down the tree holding exclusive
// latches, releasing everything above a page as soon as that page cannot
// split or underflow.
type BPlusTree[K, V any] struct {
	name            string
	headerPageID    base.PageID
	pool            *buffer.Pool
	cmp             Comparator[K]
	leafMaxSize     int
	internalMaxSize int
	log             Logger
}

// New creates an index over pool. headerPageID must be a page the caller
// allocated for the index's root pointer; it is formatted here, so the tree
// starts empty.
func New[K, V any](name string, headerPageID PageID, pool *buffer.Pool, cmp Comparator[K], opts ...Option) (*BPlusTree[K, V], error) {
	o := options{log: DiscardLogger{}}
	for _, opt := range opts {
		opt(&o)
	}

	leafCap := base.LeafCapacity[K, V]()
	internalCap := base.InternalCapacity[K]()
	if o.leafMaxSize == 0 {
		o.leafMaxSize = defaultMaxSize(leafCap)
	}
	if o.internalMaxSize == 0 {
		o.internalMaxSize = defaultMaxSize(internalCap)
	}
	if o.leafMaxSize < 2 {
		return nil, fmt.Errorf("bptree %s: leaf max size %d: %w", name, o.leafMaxSize, ErrInvalidMaxSize)
	}
	if o.internalMaxSize < 3 {
		return nil, fmt.Errorf("bptree %s: internal max size %d: %w", name, o.internalMaxSize, ErrInvalidMaxSize)
	}
	if transientEntries(o.leafMaxSize) > leafCap {
		return nil, fmt.Errorf("bptree %s: leaf max size %d: %w", name, o.leafMaxSize, ErrPageCapacity)
	}
	if transientEntries(o.internalMaxSize) > internalCap {
		return nil, fmt.Errorf("bptree %s: internal max size %d: %w", name, o.internalMaxSize, ErrPageCapacity)
	}

	t := &BPlusTree[K, V]{
		name:            name,
		headerPageID:    headerPageID,
		pool:            pool,
		cmp:             cmp,
		leafMaxSize:     o.leafMaxSize,
		internalMaxSize: o.internalMaxSize,
		log:             o.log,
	}

	hg, err := pool.FetchWrite(headerPageID)
	if err != nil {
		return nil, err
	}
	base.InitHeader(hg.Page(), headerPageID)
	hg.Drop()
	return t, nil
}

// transientEntries is the worst-case occupancy a page reaches mid-operation:
// max+1 after an overflowing insert, max+min-1 while a merge concatenates
// two siblings before deciding to re-split.
func transientEntries(maxSize int) int {
	n := maxSize + base.MinSize(maxSize) - 1
	if m := maxSize + 1; m > n {
		n = m
	}
	return n
}

// defaultMaxSize finds the largest logical capacity whose transient
// occupancy still fits in capacity physical slots.
func defaultMaxSize(capacity int) int {
	lo, hi := 2, capacity
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if transientEntries(mid) <= capacity {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// leafSearch returns the largest slot whose key is <= key, or -1 if every
// key in the page is greater. Callers confirm equality with a second
// compare.
func (t *BPlusTree[K, V]) leafSearch(leaf *base.LeafPage[K, V], key K) int {
	lo, hi := 0, leaf.Size()-1
	for lo < hi {
		mid := (lo + hi + 1) >> 1
		if t.cmp(leaf.KeyAt(mid), key) <= 0 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if hi >= 0 && t.cmp(leaf.KeyAt(hi), key) > 0 {
		return -1
	}
	return hi
}

// internalSearch returns the slot whose subtree must contain key: the
// largest slot i >= 1 with Key[i] <= key, or 0 when no such slot exists.
func (t *BPlusTree[K, V]) internalSearch(page *base.InternalPage[K], key K) int {
	lo, hi := 1, page.Size()-1
	for lo < hi {
		mid := (lo + hi + 1) >> 1
		if t.cmp(page.KeyAt(mid), key) <= 0 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if hi < 1 || t.cmp(page.KeyAt(hi), key) > 0 {
		return 0
	}
	return hi
}

// rootPageID loads the current root id under a header read latch.
func (t *BPlusTree[K, V]) rootPageID() (base.PageID, error) {
	hg, err := t.pool.FetchRead(t.headerPageID)
	if err != nil {
		return base.InvalidPageID, err
	}
	root := base.AsHeader(hg.Page()).RootPageID()
	hg.Drop()
	return root, nil
}

// IsEmpty reports whether the tree holds no keys.
func (t *BPlusTree[K, V]) IsEmpty() (bool, error) {
	root, err := t.rootPageID()
	return root == base.InvalidPageID, err
}

// GetRootPageID returns the current root page id, or InvalidPageID for an
// empty tree.
func (t *BPlusTree[K, V]) GetRootPageID() (PageID, error) {
	return t.rootPageID()
}

// GetValue performs a point lookup. On a hit the value is appended to
// *result (which may be nil) and true is returned.
//
// The descent holds one read latch at a time: the parent is released before
// the child is fetched. Writers hold exclusive latches on every page they
// mutate, so each page a reader inspects is internally consistent.
func (t *BPlusTree[K, V]) GetValue(key K, result *[]V) (bool, error) {
	root, err := t.rootPageID()
	if err != nil {
		return false, err
	}
	if root == base.InvalidPageID {
		return false, nil
	}

	g, err := t.pool.FetchRead(root)
	if err != nil {
		return false, err
	}
	for !g.Page().Header().IsLeaf() {
		node := base.AsInternal[K](g.Page())
		child := node.ValueAt(t.internalSearch(node, key))
		g.Drop()
		if g, err = t.pool.FetchRead(child); err != nil {
			return false, err
		}
	}

	leaf := base.AsLeaf[K, V](g.Page())
	slot := t.leafSearch(leaf, key)
	found := slot >= 0 && t.cmp(leaf.KeyAt(slot), key) == 0
	if found && result != nil {
		*result = append(*result, leaf.ValueAt(slot))
	}
	g.Drop()
	return found, nil
}

// pathLevel is one write-latched page on the descent path plus the parent
// slot followed to reach it (-1 for the root).
type pathLevel struct {
	g    *buffer.WriteGuard
	slot int
}

// writePath carries the exclusive latches a writer crabs down with. The
// header guard is the root's "parent": it is released together with the
// ancestors once the pages below it are known safe.
type writePath struct {
	header *buffer.WriteGuard
	levels []pathLevel
}

func (p *writePath) push(g *buffer.WriteGuard, slot int) {
	p.levels = append(p.levels, pathLevel{g: g, slot: slot})
}

func (p *writePath) depth() int {
	return len(p.levels)
}

func (p *writePath) top() *pathLevel {
	return &p.levels[len(p.levels)-1]
}

func (p *writePath) parent() *pathLevel {
	return &p.levels[len(p.levels)-2]
}

// popDrop releases the deepest guard and removes its level.
func (p *writePath) popDrop() {
	p.top().g.Drop()
	p.levels = p.levels[:len(p.levels)-1]
}

// releaseAncestors drops the header guard and every guard above the deepest
// level. Called when the deepest page is proven safe for the operation.
func (p *writePath) releaseAncestors() {
	if p.header != nil {
		p.header.Drop()
		p.header = nil
	}
	n := len(p.levels)
	for i := 0; i < n-1; i++ {
		p.levels[i].g.Drop()
	}
	if n > 1 {
		p.levels[0] = p.levels[n-1]
		p.levels = p.levels[:1]
	}
}

// releaseAll drops every guard still held. Drop is idempotent, so this is
// safe as a deferred backstop on every write-path exit.
func (p *writePath) releaseAll() {
	if p.header != nil {
		p.header.Drop()
		p.header = nil
	}
	for i := range p.levels {
		p.levels[i].g.Drop()
	}
	p.levels = p.levels[:0]
}
