package base

import (
	"encoding/binary"
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

const (
	PageSize = 4096

	// ChecksumSize bytes at the end of every page hold an xxhash of the
	// payload, written by the disk layer on flush and verified on load.
	ChecksumSize = 8

	// UsableSize is the portion of a page available to typed views.
	UsableSize = PageSize - ChecksumSize

	// PageHeaderSize is the fixed header shared by all typed pages.
	// Layout: [PageID: 8][Type: 4][Size: 4][MaxSize: 4][Reserved: 4]
	PageHeaderSize = 24
)

// PageType discriminates how a page's payload is interpreted. Typed views are
// produced by checked downcast on this tag; a mismatch means a bug or disk
// corruption and panics.
type PageType uint32

const (
	PageTypeInvalid PageType = iota
	PageTypeHeader
	PageTypeLeaf
	PageTypeInternal
)

func (t PageType) String() string {
	switch t {
	case PageTypeHeader:
		return "header"
	case PageTypeLeaf:
		return "leaf"
	case PageTypeInternal:
		return "internal"
	}
	return "invalid"
}

// PageID is a handle into the buffer pool. IDs start at 1; zero is the
// sentinel for "no page".
type PageID uint64

const InvalidPageID PageID = 0

// Page is a raw disk page (4096 bytes).
//
// COMMON LAYOUT:
// ┌─────────────────────────────────────────────────────────────────────┐
// │ PageHeader (24 bytes)                                               │
// │ PageID, Type, Size, MaxSize, Reserved                               │
// ├─────────────────────────────────────────────────────────────────────┤
// │ typed payload (header / leaf / internal view)                       │
// ├─────────────────────────────────────────────────────────────────────┤
// │ checksum trailer (8 bytes, owned by the disk layer)                 │
// └─────────────────────────────────────────────────────────────────────┘
//
// LEAF PAYLOAD (fixed-width entries):
// ┌─────────────────────────────────────────────────────────────────────┐
// │ NextPageID (8 bytes) — sibling pointer, InvalidPageID on rightmost  │
// ├─────────────────────────────────────────────────────────────────────┤
// │ entry[0] { Key K, Value V }                                         │
// │ entry[1] ...                                                        │
// └─────────────────────────────────────────────────────────────────────┘
//
// INTERNAL PAYLOAD:
// ┌─────────────────────────────────────────────────────────────────────┐
// │ entry[0] { Key K, Child PageID } — slot 0's key is not a routing key│
// │ entry[1] ...                                                        │
// └─────────────────────────────────────────────────────────────────────┘
type Page struct {
	_    [0]uint64 // keeps Data 8-byte aligned for the unsafe views below
	Data [PageSize]byte
}

// PageHeader is the fixed-size header at the start of each typed page.
type PageHeader struct {
	PageID   PageID   // 8 bytes
	Type     PageType // 4 bytes
	Size     uint32   // 4 bytes: number of entries currently stored
	MaxSize  uint32   // 4 bytes: logical capacity set at init
	Reserved uint32   // 4 bytes
}

// Header returns the page header decoded in place from the page bytes.
func (p *Page) Header() *PageHeader {
	return (*PageHeader)(unsafe.Pointer(&p.Data[0]))
}

// IsLeaf reports whether the page is a leaf.
func (h *PageHeader) IsLeaf() bool {
	return h.Type == PageTypeLeaf
}

// Zero clears the page, including the checksum trailer.
func (p *Page) Zero() {
	p.Data = [PageSize]byte{}
}

// Checksum computes the xxhash of the usable payload.
func (p *Page) Checksum() uint64 {
	return xxhash.Sum64(p.Data[:UsableSize])
}

// WriteChecksum stamps the trailer with the current payload hash.
func (p *Page) WriteChecksum() {
	binary.LittleEndian.PutUint64(p.Data[UsableSize:], p.Checksum())
}

// VerifyChecksum recomputes the payload hash and compares it to the trailer.
func (p *Page) VerifyChecksum() error {
	stored := binary.LittleEndian.Uint64(p.Data[UsableSize:])
	if stored != p.Checksum() {
		return ErrChecksum
	}
	return nil
}

// MinSize returns the occupancy floor for a page of capacity maxSize:
// ceil(maxSize/2). Root pages are exempt.
func MinSize(maxSize int) int {
	return (maxSize + 1) / 2
}
