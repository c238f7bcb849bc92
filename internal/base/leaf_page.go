package base

import (
	"fmt"
	"unsafe"
)

const (
	leafNextOff    = PageHeaderSize
	leafEntriesOff = PageHeaderSize + 8
)

// LeafEntry is one fixed-width (key, value) pair in a leaf page. K and V must
// be bit-copyable types with no interior pointers; they are stored verbatim
// in the page bytes.
type LeafEntry[K, V any] struct {
	Key   K
	Value V
}

// LeafPage is a typed view over a pinned page interpreting it as a sorted
// array of (key, value) entries plus a forward sibling pointer. The view is
// only valid while the underlying page is latched.
type LeafPage[K, V any] struct {
	p *Page
}

// LeafCapacity reports how many entries physically fit in a leaf page for
// the given key/value widths.
func LeafCapacity[K, V any]() int {
	return (UsableSize - leafEntriesOff) / int(unsafe.Sizeof(LeafEntry[K, V]{}))
}

// InitLeaf formats p as an empty leaf with the given logical capacity.
func InitLeaf[K, V any](p *Page, id PageID, maxSize int) *LeafPage[K, V] {
	h := p.Header()
	h.PageID = id
	h.Type = PageTypeLeaf
	h.Size = 0
	h.MaxSize = uint32(maxSize)
	l := &LeafPage[K, V]{p: p}
	l.SetNextPageID(InvalidPageID)
	return l
}

// AsLeaf reinterprets p as a leaf page. Panics on a type mismatch.
func AsLeaf[K, V any](p *Page) *LeafPage[K, V] {
	if t := p.Header().Type; t != PageTypeLeaf {
		panic(fmt.Sprintf("base: page %d is %s, expected leaf", p.Header().PageID, t))
	}
	return &LeafPage[K, V]{p: p}
}

// entries exposes the full physical entry array. Slots beyond Size hold
// scratch space used transiently by splits and merges.
func (l *LeafPage[K, V]) entries() []LeafEntry[K, V] {
	ptr := unsafe.Pointer(&l.p.Data[leafEntriesOff])
	return unsafe.Slice((*LeafEntry[K, V])(ptr), LeafCapacity[K, V]())
}

func (l *LeafPage[K, V]) PageID() PageID { return l.p.Header().PageID }

func (l *LeafPage[K, V]) Size() int { return int(l.p.Header().Size) }

func (l *LeafPage[K, V]) SetSize(n int) { l.p.Header().Size = uint32(n) }

func (l *LeafPage[K, V]) IncreaseSize(d int) {
	l.p.Header().Size = uint32(int(l.p.Header().Size) + d)
}

func (l *LeafPage[K, V]) MaxSize() int { return int(l.p.Header().MaxSize) }

func (l *LeafPage[K, V]) MinSize() int { return MinSize(l.MaxSize()) }

func (l *LeafPage[K, V]) KeyAt(i int) K { return l.entries()[i].Key }

func (l *LeafPage[K, V]) SetKeyAt(i int, k K) { l.entries()[i].Key = k }

func (l *LeafPage[K, V]) ValueAt(i int) V { return l.entries()[i].Value }

func (l *LeafPage[K, V]) SetValueAt(i int, v V) { l.entries()[i].Value = v }

func (l *LeafPage[K, V]) NextPageID() PageID {
	return *(*PageID)(unsafe.Pointer(&l.p.Data[leafNextOff]))
}

func (l *LeafPage[K, V]) SetNextPageID(id PageID) {
	*(*PageID)(unsafe.Pointer(&l.p.Data[leafNextOff])) = id
}
