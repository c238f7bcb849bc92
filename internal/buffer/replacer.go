package buffer

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"
)

// replacer tracks evictable frames in LRU order. A frame enters when its pin
// count drops to zero and leaves when it is pinned again; Victim hands back
// the least recently released frame.
//
// The pool's mutex serializes all access, so the non-synchronized LRU is
// used directly.
type replacer struct {
	lru *freelru.LRU[int, struct{}]
}

func hashFrameID(id int) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(id))
	return uint32(xxhash.Sum64(b[:]))
}

func newReplacer(capacity int) (*replacer, error) {
	lru, err := freelru.New[int, struct{}](uint32(capacity), hashFrameID)
	if err != nil {
		return nil, err
	}
	return &replacer{lru: lru}, nil
}

// Record marks a frame evictable (or refreshes its recency).
func (r *replacer) Record(frameID int) {
	r.lru.Add(frameID, struct{}{})
}

// Remove takes a frame out of the evictable set.
func (r *replacer) Remove(frameID int) {
	r.lru.Remove(frameID)
}

// Victim removes and returns the least recently released frame.
func (r *replacer) Victim() (int, bool) {
	id, _, ok := r.lru.RemoveOldest()
	return id, ok
}

func (r *replacer) Len() int {
	return r.lru.Len()
}
