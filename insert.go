package bptree

import (
	"bptree/internal/base"
	"bptree/internal/buffer"
)

// Insert adds a key/value pair. It returns false without mutating anything
// when the key is already present.
//
// The descent crabs down under exclusive latches: the header and every
// ancestor are released as soon as the current page has room for one more
// entry, so the retained suffix of the path is exactly the set of pages a
// split can reach. Pages for splits (and a grown root) are allocated before
// any entry is shifted, so an allocation failure surfaces with the tree
// untouched.
func (t *BPlusTree[K, V]) Insert(key K, value V, _ *Transaction) (bool, error) {
	hg, err := t.pool.FetchWrite(t.headerPageID)
	if err != nil {
		return false, err
	}
	path := &writePath{header: hg}
	defer path.releaseAll()
	hdr := base.AsHeader(hg.Page())

	if hdr.RootPageID() == base.InvalidPageID {
		g, id, err := t.pool.NewPage()
		if err != nil {
			return false, err
		}
		base.InitLeaf[K, V](g.Page(), id, t.leafMaxSize)
		hdr.SetRootPageID(id)
		t.log.Info("created root leaf", "index", t.name, "page", id)
		path.push(g, -1)
	} else {
		g, err := t.pool.FetchWrite(hdr.RootPageID())
		if err != nil {
			return false, err
		}
		path.push(g, -1)
	}

	for {
		g := path.top().g
		h := g.Page().Header()
		if h.Size < h.MaxSize {
			path.releaseAncestors()
		}
		if h.IsLeaf() {
			break
		}
		node := base.AsInternal[K](g.Page())
		idx := t.internalSearch(node, key)
		child, err := t.pool.FetchWrite(node.ValueAt(idx))
		if err != nil {
			return false, err
		}
		path.push(child, idx)
	}

	leafLevel := path.top()
	leaf := base.AsLeaf[K, V](leafLevel.g.Page())

	// Insertion slot: first key strictly greater than key. An equal key, if
	// any, sits immediately to the left.
	pos := leaf.Size()
	for j := 0; j < leaf.Size(); j++ {
		if t.cmp(leaf.KeyAt(j), key) > 0 {
			pos = j
			break
		}
	}
	if pos > 0 && t.cmp(leaf.KeyAt(pos-1), key) == 0 {
		return false, nil
	}

	newG, newID, rootG, rootID, err := t.allocForSplit(leaf.Size() == leaf.MaxSize(), leafLevel.slot == -1)
	if err != nil {
		return false, err
	}

	leaf.IncreaseSize(1)
	for j := leaf.Size() - 1; j > pos; j-- {
		leaf.SetKeyAt(j, leaf.KeyAt(j-1))
		leaf.SetValueAt(j, leaf.ValueAt(j-1))
	}
	leaf.SetKeyAt(pos, key)
	leaf.SetValueAt(pos, value)

	if newG == nil {
		return true, nil
	}

	// Leaf split: the new sibling takes the upper half and inherits the old
	// forward pointer.
	right := base.InitLeaf[K, V](newG.Page(), newID, t.leafMaxSize)
	right.SetNextPageID(leaf.NextPageID())
	leaf.SetNextPageID(newID)
	size := leaf.Size()
	half := size / 2
	for j := half; j < size; j++ {
		right.SetKeyAt(j-half, leaf.KeyAt(j))
		right.SetValueAt(j-half, leaf.ValueAt(j))
	}
	right.SetSize(size - half)
	leaf.SetSize(half)

	promKey := right.KeyAt(0)
	promChild := newID
	splitFirst := leaf.KeyAt(0)
	splitID := leafLevel.g.PageID()
	t.log.Info("leaf split", "index", t.name, "page", splitID, "sibling", newID)
	newG.Drop()
	path.popDrop()

	// Walk the retained ancestors, inserting the promoted separator and
	// splitting further as needed.
	for {
		if path.depth() == 0 {
			// The split page was the root; the header latch is still held
			// and the replacement root was allocated up front.
			t.growRoot(hdr, rootG, rootID, splitFirst, splitID, promKey, promChild)
			return true, nil
		}

		level := path.top()
		node := base.AsInternal[K](level.g.Page())

		newG, newID, rootG, rootID, err = t.allocForSplit(node.Size() == node.MaxSize(), level.slot == -1)
		if err != nil {
			return false, err
		}

		// Promotion slot among the routing keys [1, size).
		pos := node.Size()
		for j := 1; j < node.Size(); j++ {
			if t.cmp(node.KeyAt(j), promKey) > 0 {
				pos = j
				break
			}
		}
		node.IncreaseSize(1)
		for j := node.Size() - 1; j > pos; j-- {
			node.SetKeyAt(j, node.KeyAt(j-1))
			node.SetValueAt(j, node.ValueAt(j-1))
		}
		node.SetKeyAt(pos, promKey)
		node.SetValueAt(pos, promChild)

		if newG == nil {
			return true, nil
		}

		right := base.InitInternal[K](newG.Page(), newID, t.internalMaxSize)
		size := node.Size()
		half := size / 2
		for j := half; j < size; j++ {
			right.SetKeyAt(j-half, node.KeyAt(j))
			right.SetValueAt(j-half, node.ValueAt(j))
		}
		right.SetSize(size - half)
		node.SetSize(half)

		promKey = right.KeyAt(0)
		promChild = newID
		splitFirst = node.KeyAt(0)
		splitID = level.g.PageID()
		t.log.Info("internal split", "index", t.name, "page", splitID, "sibling", newID)
		newG.Drop()
		path.popDrop()
	}
}

// allocForSplit acquires the pages a split needs before anything is shifted:
// the new sibling, plus a replacement root when the splitting page is the
// root itself. Nothing is allocated when the page has room.
func (t *BPlusTree[K, V]) allocForSplit(splits, isRoot bool) (newG *buffer.WriteGuard, newID base.PageID, rootG *buffer.WriteGuard, rootID base.PageID, err error) {
	if !splits {
		return nil, base.InvalidPageID, nil, base.InvalidPageID, nil
	}
	newG, newID, err = t.pool.NewPage()
	if err != nil {
		return nil, base.InvalidPageID, nil, base.InvalidPageID, err
	}
	if isRoot {
		rootG, rootID, err = t.pool.NewPage()
		if err != nil {
			newG.Drop()
			_ = t.pool.DeletePage(newID)
			return nil, base.InvalidPageID, nil, base.InvalidPageID, err
		}
	}
	return newG, newID, rootG, rootID, nil
}

// growRoot formats the pre-allocated page as the new internal root over a
// freshly split old root. Slot 0's separator is never consulted for routing;
// the old root's first key is stored there by convention.
func (t *BPlusTree[K, V]) growRoot(hdr *base.HeaderPage, rg *buffer.WriteGuard, rid base.PageID, leftFirst K, leftID base.PageID, rightFirst K, rightID base.PageID) {
	root := base.InitInternal[K](rg.Page(), rid, t.internalMaxSize)
	root.SetSize(2)
	root.SetKeyAt(0, leftFirst)
	root.SetValueAt(0, leftID)
	root.SetKeyAt(1, rightFirst)
	root.SetValueAt(1, rightID)
	hdr.SetRootPageID(rid)
	rg.Drop()
	t.log.Info("root grew", "index", t.name, "root", rid, "left", leftID, "right", rightID)
}
