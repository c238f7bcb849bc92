package base

import "errors"

var (
	ErrChecksum      = errors.New("page checksum mismatch")
	ErrCorruption    = errors.New("page corruption detected")
	ErrPageCapacity  = errors.New("page capacity exceeded for key/value width")
	ErrInvalidPageID = errors.New("invalid page id")
	ErrShortRead     = errors.New("short page read")
	ErrPoolExhausted = errors.New("buffer pool exhausted: all frames pinned")
	ErrPagePinned    = errors.New("page has outstanding pins")
	ErrPoolClosed    = errors.New("buffer pool is closed")
)
