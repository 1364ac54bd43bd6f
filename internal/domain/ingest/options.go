package ingest

import "github.com/okian/aggregator/pkg/logger"

// Option applies a configuration option to the Gateway.
type Option func(*Gateway)

// WithLogger sets a custom logger for the gateway.
func WithLogger(l logger.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}
