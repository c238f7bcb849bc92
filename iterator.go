package bptree

import (
	"bptree/internal/base"
)

// Iterator is a forward cursor over the tree's leaves: a (page id, slot)
// pair that walks sibling pointers in ascending key order. It holds no latch
// between calls; each dereference pins the current leaf just long enough to
// read it. Iteration is not isolated from concurrent writers.
type Iterator[K, V any] struct {
	tree   *BPlusTree[K, V]
	pageID base.PageID
	slot   int
}

// End returns the past-the-end cursor.
func (t *BPlusTree[K, V]) End() *Iterator[K, V] {
	return &Iterator[K, V]{tree: t, pageID: base.InvalidPageID, slot: -1}
}

// Begin positions a cursor on the first key in the tree, or End for an
// empty tree.
func (t *BPlusTree[K, V]) Begin() (*Iterator[K, V], error) {
	root, err := t.rootPageID()
	if err != nil {
		return nil, err
	}
	if root == base.InvalidPageID {
		return t.End(), nil
	}

	g, err := t.pool.FetchRead(root)
	if err != nil {
		return nil, err
	}
	for !g.Page().Header().IsLeaf() {
		node := base.AsInternal[K](g.Page())
		child := node.ValueAt(0)
		g.Drop()
		if g, err = t.pool.FetchRead(child); err != nil {
			return nil, err
		}
	}
	id := g.PageID()
	g.Drop()
	return &Iterator[K, V]{tree: t, pageID: id, slot: 0}, nil
}

// BeginAt positions a cursor on the largest key <= key, routing by key down
// to its leaf. End is returned when that leaf has no such slot.
func (t *BPlusTree[K, V]) BeginAt(key K) (*Iterator[K, V], error) {
	root, err := t.rootPageID()
	if err != nil {
		return nil, err
	}
	if root == base.InvalidPageID {
		return t.End(), nil
	}

	g, err := t.pool.FetchRead(root)
	if err != nil {
		return nil, err
	}
	for !g.Page().Header().IsLeaf() {
		node := base.AsInternal[K](g.Page())
		child := node.ValueAt(t.internalSearch(node, key))
		g.Drop()
		if g, err = t.pool.FetchRead(child); err != nil {
			return nil, err
		}
	}
	leaf := base.AsLeaf[K, V](g.Page())
	slot := t.leafSearch(leaf, key)
	id := g.PageID()
	g.Drop()
	if slot < 0 {
		return t.End(), nil
	}
	return &Iterator[K, V]{tree: t, pageID: id, slot: slot}, nil
}

// IsEnd reports whether the cursor is past the last entry.
func (it *Iterator[K, V]) IsEnd() bool {
	return it.pageID == base.InvalidPageID
}

// Entry reads the (key, value) pair under the cursor, pinning the leaf for
// the duration of the read.
func (it *Iterator[K, V]) Entry() (K, V, error) {
	var k K
	var v V
	if it.IsEnd() {
		return k, v, ErrInvalidIterator
	}
	g, err := it.tree.pool.FetchRead(it.pageID)
	if err != nil {
		return k, v, err
	}
	leaf := base.AsLeaf[K, V](g.Page())
	if it.slot >= leaf.Size() {
		g.Drop()
		return k, v, ErrInvalidIterator
	}
	k = leaf.KeyAt(it.slot)
	v = leaf.ValueAt(it.slot)
	g.Drop()
	return k, v, nil
}

// Next advances the cursor one entry, following the sibling pointer across
// leaf boundaries. Advancing past the last entry turns the cursor into End.
func (it *Iterator[K, V]) Next() error {
	if it.IsEnd() {
		return nil
	}
	g, err := it.tree.pool.FetchRead(it.pageID)
	if err != nil {
		return err
	}
	leaf := base.AsLeaf[K, V](g.Page())
	if it.slot+1 < leaf.Size() {
		it.slot++
		g.Drop()
		return nil
	}
	next := leaf.NextPageID()
	g.Drop()
	if next == base.InvalidPageID {
		it.pageID = base.InvalidPageID
		it.slot = -1
		return nil
	}
	it.pageID = next
	it.slot = 0
	return nil
}
