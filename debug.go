package bptree

import (
	"fmt"
	"strings"

	"bptree/internal/base"
)

// Dump renders the tree page by page for inspection, one line per page,
// indented by depth. Not safe against concurrent writers; intended for tests
// and debugging.
func (t *BPlusTree[K, V]) Dump() (string, error) {
	root, err := t.rootPageID()
	if err != nil {
		return "", err
	}
	if root == base.InvalidPageID {
		return "(empty)\n", nil
	}
	var sb strings.Builder
	if err := t.dumpPage(&sb, root, 0); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (t *BPlusTree[K, V]) dumpPage(sb *strings.Builder, id base.PageID, depth int) error {
	g, err := t.pool.FetchRead(id)
	if err != nil {
		return err
	}
	indent := strings.Repeat("  ", depth)

	if g.Page().Header().IsLeaf() {
		leaf := base.AsLeaf[K, V](g.Page())
		keys := make([]string, leaf.Size())
		for i := 0; i < leaf.Size(); i++ {
			keys[i] = fmt.Sprintf("%v", leaf.KeyAt(i))
		}
		fmt.Fprintf(sb, "%sleaf %d size=%d next=%d [%s]\n",
			indent, id, leaf.Size(), leaf.NextPageID(), strings.Join(keys, " "))
		g.Drop()
		return nil
	}

	node := base.AsInternal[K](g.Page())
	parts := make([]string, node.Size())
	children := make([]base.PageID, node.Size())
	for i := 0; i < node.Size(); i++ {
		children[i] = node.ValueAt(i)
		if i == 0 {
			parts[i] = fmt.Sprintf("*:%d", children[i])
		} else {
			parts[i] = fmt.Sprintf("%v:%d", node.KeyAt(i), children[i])
		}
	}
	fmt.Fprintf(sb, "%sinternal %d size=%d [%s]\n",
		indent, id, node.Size(), strings.Join(parts, " "))
	g.Drop()

	for _, child := range children {
		if err := t.dumpPage(sb, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}
