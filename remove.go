package bptree

import (
	"bptree/internal/base"
)

// Remove deletes the entry for key. Removing an absent key is a silent
// no-op.
//
// The descent mirrors Insert's crabbing with the delete-side safety rule:
// ancestors are released once the current page can lose an entry without
// underflowing. When a page does underflow, it is repaired against a sibling
// under the already-held parent latch — merged if the combined entries fit,
// re-split evenly otherwise — and a merge propagates the separator removal
// upward.
func (t *BPlusTree[K, V]) Remove(key K, _ *Transaction) error {
	hg, err := t.pool.FetchWrite(t.headerPageID)
	if err != nil {
		return err
	}
	path := &writePath{header: hg}
	defer path.releaseAll()
	hdr := base.AsHeader(hg.Page())

	if hdr.RootPageID() == base.InvalidPageID {
		return nil
	}
	g, err := t.pool.FetchWrite(hdr.RootPageID())
	if err != nil {
		return err
	}
	path.push(g, -1)

	for {
		top := path.top()
		h := top.g.Page().Header()
		if t.deleteSafe(h, top.slot == -1) {
			path.releaseAncestors()
		}
		if h.IsLeaf() {
			break
		}
		node := base.AsInternal[K](top.g.Page())
		idx := t.internalSearch(node, key)
		child, err := t.pool.FetchWrite(node.ValueAt(idx))
		if err != nil {
			return err
		}
		path.push(child, idx)
	}

	leaf := base.AsLeaf[K, V](path.top().g.Page())
	slot := t.leafSearch(leaf, key)
	if slot < 0 || t.cmp(leaf.KeyAt(slot), key) != 0 {
		return nil
	}

	removeSlot := slot
	for {
		level := path.top()
		h := level.g.Page().Header()
		isRoot := level.slot == -1

		if h.Type == base.PageTypeLeaf {
			l := base.AsLeaf[K, V](level.g.Page())
			for j := removeSlot; j < l.Size()-1; j++ {
				l.SetKeyAt(j, l.KeyAt(j+1))
				l.SetValueAt(j, l.ValueAt(j+1))
			}
			l.IncreaseSize(-1)
		} else {
			n := base.AsInternal[K](level.g.Page())
			for j := removeSlot; j < n.Size()-1; j++ {
				n.SetKeyAt(j, n.KeyAt(j+1))
				n.SetValueAt(j, n.ValueAt(j+1))
			}
			n.IncreaseSize(-1)
		}

		if isRoot {
			t.collapseRoot(hdr, path)
			return nil
		}
		if int(h.Size) >= base.MinSize(int(h.MaxSize)) {
			return nil
		}

		// Underflow. The parent latch is still held: this page was not
		// delete-safe on the way down, so nothing above it was released.
		parent := base.AsInternal[K](path.parent().g.Page())
		pos := level.slot

		var freed base.PageID
		var parentSlot int
		var merged bool
		if h.Type == base.PageTypeLeaf {
			freed, parentSlot, merged, err = t.repairLeaf(parent, base.AsLeaf[K, V](level.g.Page()), pos)
		} else {
			freed, parentSlot, merged, err = t.repairInternal(parent, base.AsInternal[K](level.g.Page()), pos)
		}
		if err != nil {
			return err
		}
		if !merged {
			return nil
		}
		path.popDrop()
		t.deletePage(freed)
		removeSlot = parentSlot
	}
}

// deleteSafe reports whether a page can lose one entry without structural
// repair: above the occupancy floor, or a root that will not collapse.
func (t *BPlusTree[K, V]) deleteSafe(h *base.PageHeader, isRoot bool) bool {
	if isRoot {
		if h.Type == base.PageTypeLeaf {
			return h.Size > 1
		}
		return h.Size > 2
	}
	return int(h.Size) > base.MinSize(int(h.MaxSize))
}

// collapseRoot applies the root occupancy policy after a deletion: an empty
// root leaf empties the tree, a root internal page with a single child
// promotes that child. The header latch is held by the caller.
func (t *BPlusTree[K, V]) collapseRoot(hdr *base.HeaderPage, path *writePath) {
	level := path.top()
	h := level.g.Page().Header()
	switch {
	case h.Type == base.PageTypeLeaf && h.Size == 0:
		old := level.g.PageID()
		hdr.SetRootPageID(base.InvalidPageID)
		path.popDrop()
		t.deletePage(old)
		t.log.Info("root collapsed to empty", "index", t.name, "page", old)
	case h.Type == base.PageTypeInternal && h.Size == 1:
		node := base.AsInternal[K](level.g.Page())
		only := node.ValueAt(0)
		old := level.g.PageID()
		hdr.SetRootPageID(only)
		path.popDrop()
		t.deletePage(old)
		t.log.Info("root collapsed", "index", t.name, "page", old, "new_root", only)
	}
}

// repairLeaf fixes an underflowing leaf against a sibling. With a left
// sibling the leaf's entries are appended to it; at slot 0 the right sibling
// is absorbed instead. If the concatenation fits it becomes a merge and the
// freed page id plus the parent slot to remove are returned; otherwise the
// entries are re-split evenly and the parent separator is refreshed.
func (t *BPlusTree[K, V]) repairLeaf(parent *base.InternalPage[K], cur *base.LeafPage[K, V], pos int) (base.PageID, int, bool, error) {
	if pos != 0 {
		sg, err := t.pool.FetchWrite(parent.ValueAt(pos - 1))
		if err != nil {
			return base.InvalidPageID, 0, false, err
		}
		sib := base.AsLeaf[K, V](sg.Page())

		dst := sib.Size()
		for j := 0; j < cur.Size(); j++ {
			sib.SetKeyAt(dst+j, cur.KeyAt(j))
			sib.SetValueAt(dst+j, cur.ValueAt(j))
		}
		total := dst + cur.Size()

		if total <= sib.MaxSize() {
			sib.SetSize(total)
			sib.SetNextPageID(cur.NextPageID())
			freed := cur.PageID()
			t.log.Info("leaf merge", "index", t.name, "page", freed, "into", sib.PageID())
			sg.Drop()
			return freed, pos, true, nil
		}

		sib.SetSize(total)
		half := total / 2
		for j := half; j < total; j++ {
			cur.SetKeyAt(j-half, sib.KeyAt(j))
			cur.SetValueAt(j-half, sib.ValueAt(j))
		}
		cur.SetSize(total - half)
		sib.SetSize(half)
		parent.SetKeyAt(pos, cur.KeyAt(0))
		sg.Drop()
		return base.InvalidPageID, 0, false, nil
	}

	// Leftmost child: absorb from the right sibling.
	sg, err := t.pool.FetchWrite(parent.ValueAt(1))
	if err != nil {
		return base.InvalidPageID, 0, false, err
	}
	sib := base.AsLeaf[K, V](sg.Page())

	dst := cur.Size()
	for j := 0; j < sib.Size(); j++ {
		cur.SetKeyAt(dst+j, sib.KeyAt(j))
		cur.SetValueAt(dst+j, sib.ValueAt(j))
	}
	total := dst + sib.Size()

	if total <= cur.MaxSize() {
		cur.SetSize(total)
		cur.SetNextPageID(sib.NextPageID())
		freed := sib.PageID()
		t.log.Info("leaf merge", "index", t.name, "page", freed, "into", cur.PageID())
		sg.Drop()
		return freed, 1, true, nil
	}

	cur.SetSize(total)
	half := total / 2
	for j := half; j < total; j++ {
		sib.SetKeyAt(j-half, cur.KeyAt(j))
		sib.SetValueAt(j-half, cur.ValueAt(j))
	}
	sib.SetSize(total - half)
	cur.SetSize(half)
	parent.SetKeyAt(1, sib.KeyAt(0))
	sg.Drop()
	return base.InvalidPageID, 0, false, nil
}

// repairInternal is the internal-page counterpart of repairLeaf. The parent
// separator between the two pages is pulled down into the concatenation;
// destination indices are computed from the pre-merge sizes.
func (t *BPlusTree[K, V]) repairInternal(parent *base.InternalPage[K], cur *base.InternalPage[K], pos int) (base.PageID, int, bool, error) {
	if pos != 0 {
		sg, err := t.pool.FetchWrite(parent.ValueAt(pos - 1))
		if err != nil {
			return base.InvalidPageID, 0, false, err
		}
		sib := base.AsInternal[K](sg.Page())

		dst := sib.Size()
		sib.SetKeyAt(dst, parent.KeyAt(pos))
		sib.SetValueAt(dst, cur.ValueAt(0))
		for j := 1; j < cur.Size(); j++ {
			sib.SetKeyAt(dst+j, cur.KeyAt(j))
			sib.SetValueAt(dst+j, cur.ValueAt(j))
		}
		total := dst + cur.Size()

		if total <= sib.MaxSize() {
			sib.SetSize(total)
			freed := cur.PageID()
			t.log.Info("internal merge", "index", t.name, "page", freed, "into", sib.PageID())
			sg.Drop()
			return freed, pos, true, nil
		}

		sib.SetSize(total)
		half := total / 2
		for j := half; j < total; j++ {
			cur.SetKeyAt(j-half, sib.KeyAt(j))
			cur.SetValueAt(j-half, sib.ValueAt(j))
		}
		cur.SetSize(total - half)
		sib.SetSize(half)
		parent.SetKeyAt(pos, cur.KeyAt(0))
		sg.Drop()
		return base.InvalidPageID, 0, false, nil
	}

	// Leftmost child: absorb from the right sibling, pulling the separator
	// at parent slot 1 down between the two halves.
	sg, err := t.pool.FetchWrite(parent.ValueAt(1))
	if err != nil {
		return base.InvalidPageID, 0, false, err
	}
	sib := base.AsInternal[K](sg.Page())

	dst := cur.Size()
	cur.SetKeyAt(dst, parent.KeyAt(1))
	cur.SetValueAt(dst, sib.ValueAt(0))
	for j := 1; j < sib.Size(); j++ {
		cur.SetKeyAt(dst+j, sib.KeyAt(j))
		cur.SetValueAt(dst+j, sib.ValueAt(j))
	}
	total := dst + sib.Size()

	if total <= cur.MaxSize() {
		cur.SetSize(total)
		freed := sib.PageID()
		t.log.Info("internal merge", "index", t.name, "page", freed, "into", cur.PageID())
		sg.Drop()
		return freed, 1, true, nil
	}

	cur.SetSize(total)
	half := total / 2
	for j := half; j < total; j++ {
		sib.SetKeyAt(j-half, cur.KeyAt(j))
		sib.SetValueAt(j-half, cur.ValueAt(j))
	}
	sib.SetSize(total - half)
	cur.SetSize(half)
	parent.SetKeyAt(1, sib.KeyAt(0))
	sg.Drop()
	return base.InvalidPageID, 0, false, nil
}

// deletePage returns id to the pool, tolerating a racing reader that still
// holds a pin. The id stays allocated in that case; the tree remains
// consistent because the page is already unlinked.
func (t *BPlusTree[K, V]) deletePage(id base.PageID) {
	if err := t.pool.DeletePage(id); err != nil {
		t.log.Warn("page not freed", "index", t.name, "page", id, "error", err)
	}
}
