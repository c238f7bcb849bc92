package bptree

// Option configures a tree using the functional options pattern.
type Option func(*options)

type options struct {
	leafMaxSize     int
	internalMaxSize int
	log             Logger
}

// WithLeafMaxSize sets the logical entry capacity of leaf pages. Zero (the
// default) derives the largest capacity the page geometry allows for the
// tree's key and value widths.
func WithLeafMaxSize(n int) Option {
	return func(o *options) {
		o.leafMaxSize = n
	}
}

// WithInternalMaxSize sets the logical entry capacity of internal pages.
// Zero derives it from the page geometry, as with WithLeafMaxSize.
func WithInternalMaxSize(n int) Option {
	return func(o *options) {
		o.internalMaxSize = n
	}
}

// WithLogger routes structural events (root changes, splits, merges) to l.
func WithLogger(l Logger) Option {
	return func(o *options) {
		o.log = l
	}
}
