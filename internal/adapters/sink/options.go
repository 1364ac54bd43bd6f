package sink

import (
	"time"

	"github.com/okian/aggregator/pkg/logger"
)

// Option applies a configuration option to the Elastic sink.
type Option func(*Elastic)

// WithIndex sets the target index name.
func WithIndex(index string) Option {
	return func(s *Elastic) {
		if index != "" {
			s.index = index
		}
	}
}

// WithTimeout bounds each HTTP request to Elasticsearch.
func WithTimeout(d time.Duration) Option {
	return func(s *Elastic) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets a custom logger for the sink.
func WithLogger(l logger.Logger) Option {
	return func(s *Elastic) {
		if l != nil {
			s.logger = l
		}
	}
}
