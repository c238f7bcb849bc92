package bptree

import (
	"errors"

	"bptree/internal/base"
)

var (
	ErrInvalidMaxSize  = errors.New("page max size out of range")
	ErrInvalidIterator = errors.New("iterator is not positioned on an entry")

	ErrChecksum      = base.ErrChecksum
	ErrCorruption    = base.ErrCorruption
	ErrPageCapacity  = base.ErrPageCapacity
	ErrInvalidPageID = base.ErrInvalidPageID
	ErrShortRead     = base.ErrShortRead
	ErrPoolExhausted = base.ErrPoolExhausted
	ErrPagePinned    = base.ErrPagePinned
	ErrPoolClosed    = base.ErrPoolClosed
)
