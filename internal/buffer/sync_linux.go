//go:build linux

package buffer

import "golang.org/x/sys/unix"

// Sync flushes written pages to stable storage. Data-only sync is enough
// here: the file length only grows page-at-a-time and metadata lag is
// harmless for a cache file.
func (d *DiskManager) Sync() error {
	return unix.Fdatasync(int(d.file.Fd()))
}
