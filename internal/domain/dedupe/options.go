package dedupe

import "github.com/okian/aggregator/pkg/logger"

// FilterOption applies a configuration option to Filtered.
type FilterOption func(*Filtered)

// WithCapacity sets the expected number of keys the filter is sized for.
func WithCapacity(n uint) FilterOption {
	return func(f *Filtered) {
		if n > 0 {
			f.capacity = n
		}
	}
}

// WithFalsePositiveRate sets the target false positive rate, in (0, 1).
func WithFalsePositiveRate(p float64) FilterOption {
	return func(f *Filtered) {
		if p > 0 && p < 1 {
			f.fpRate = p
		}
	}
}

// WithLogger sets a custom logger for the filter.
func WithLogger(l logger.Logger) FilterOption {
	return func(f *Filtered) {
		if l != nil {
			f.logger = l
		}
	}
}
