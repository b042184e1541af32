package dedupe

// Option configures an in-memory deduper.
type Option func(*inMemoryDeduper)

// WithMaxSize bounds how many ids are kept; the oldest is evicted first.
// Zero or negative disables eviction.
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryDeduper) {
		d.maxSize = maxSize
	}
}
