package base

import (
	"fmt"
	"unsafe"
)

const internalEntriesOff = PageHeaderSize

// InternalEntry is one fixed-width (separator key, child page id) pair in an
// internal page. The key at slot 0 is never used for routing; the slot acts
// as the leftmost child pointer.
type InternalEntry[K any] struct {
	Key   K
	Child PageID
}

// InternalPage is a typed view over a pinned page interpreting it as an
// array of (separator key, child page id) entries. For every slot i >= 1,
// keys in the subtree at slot i are >= Key[i] and keys in the subtree at
// slot i-1 are < Key[i].
type InternalPage[K any] struct {
	p *Page
}

// InternalCapacity reports how many entries physically fit in an internal
// page for the given key width.
func InternalCapacity[K any]() int {
	return (UsableSize - internalEntriesOff) / int(unsafe.Sizeof(InternalEntry[K]{}))
}

// InitInternal formats p as an empty internal page with the given logical
// capacity.
func InitInternal[K any](p *Page, id PageID, maxSize int) *InternalPage[K] {
	h := p.Header()
	h.PageID = id
	h.Type = PageTypeInternal
	h.Size = 0
	h.MaxSize = uint32(maxSize)
	return &InternalPage[K]{p: p}
}

// AsInternal reinterprets p as an internal page. Panics on a type mismatch.
func AsInternal[K any](p *Page) *InternalPage[K] {
	if t := p.Header().Type; t != PageTypeInternal {
		panic(fmt.Sprintf("base: page %d is %s, expected internal", p.Header().PageID, t))
	}
	return &InternalPage[K]{p: p}
}

func (n *InternalPage[K]) entries() []InternalEntry[K] {
	ptr := unsafe.Pointer(&n.p.Data[internalEntriesOff])
	return unsafe.Slice((*InternalEntry[K])(ptr), InternalCapacity[K]())
}

func (n *InternalPage[K]) PageID() PageID { return n.p.Header().PageID }

func (n *InternalPage[K]) Size() int { return int(n.p.Header().Size) }

func (n *InternalPage[K]) SetSize(s int) { n.p.Header().Size = uint32(s) }

func (n *InternalPage[K]) IncreaseSize(d int) {
	n.p.Header().Size = uint32(int(n.p.Header().Size) + d)
}

func (n *InternalPage[K]) MaxSize() int { return int(n.p.Header().MaxSize) }

func (n *InternalPage[K]) MinSize() int { return MinSize(n.MaxSize()) }

func (n *InternalPage[K]) KeyAt(i int) K { return n.entries()[i].Key }

func (n *InternalPage[K]) SetKeyAt(i int, k K) { n.entries()[i].Key = k }

// ValueAt returns the child page id stored at slot i.
func (n *InternalPage[K]) ValueAt(i int) PageID { return n.entries()[i].Child }

func (n *InternalPage[K]) SetValueAt(i int, id PageID) { n.entries()[i].Child = id }
