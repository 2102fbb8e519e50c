// Package feed carries world notifications between a world source and
// minimap clients over websockets.
package feed

import (
	"golang.org/x/time/rate"

	"voxelmap.ai/internal/logger"
	"voxelmap.ai/internal/metrics"
)

type options struct {
	log     logger.Logger
	metrics *metrics.Metrics
	tap     func([]byte)
	queue   int

	joinRate  rate.Limit
	joinBurst int
	maxSubs   int
}

type Option func(*options)

func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTap sees every raw message a client reads, before validation.
func WithTap(fn func([]byte)) Option {
	return func(o *options) { o.tap = fn }
}

// WithQueue sets the per-subscriber outbound buffer of a Hub.
func WithQueue(n int) Option {
	return func(o *options) { o.queue = n }
}

// WithJoinLimit throttles HELLO handshakes on a Hub. Clients over the limit
// get E_BUSY.
func WithJoinLimit(r rate.Limit, burst int) Option {
	return func(o *options) {
		o.joinRate = r
		o.joinBurst = burst
	}
}

// WithMaxSubscribers caps concurrent subscribers on a Hub. Zero means no cap.
func WithMaxSubscribers(n int) Option {
	return func(o *options) { o.maxSubs = n }
}

func buildOptions(opts []Option) options {
	o := options{queue: 256}
	for _, fn := range opts {
		fn(&o)
	}
	o.log = logger.OrNop(o.log)
	if o.queue <= 0 {
		o.queue = 1
	}
	if o.queue > 4096 {
		o.queue = 4096
	}
	if o.joinBurst < 1 {
		o.joinBurst = 1
	}
	return o
}
