package dedupe

// Option applies a configuration option to the deduper.
type Option func(*windowDeduper)

// WithMaxSize sets how many recent IDs are remembered. Non-positive values
// keep the default.
func WithMaxSize(maxSize int) Option {
	return func(d *windowDeduper) {
		d.maxSize = maxSize
	}
}
