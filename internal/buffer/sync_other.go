//go:build !linux

package buffer

// Sync flushes written pages to stable storage.
func (d *DiskManager) Sync() error {
	return d.file.Sync()
}
