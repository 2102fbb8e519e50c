// Package client is the minimap side of a feed: a single loop that owns the
// world model and the atlas, and the session that feeds it.
package client

import (
	"voxelmap.ai/internal/logger"
	"voxelmap.ai/internal/metrics"
	"voxelmap.ai/internal/minimap/mapcolor"
	"voxelmap.ai/internal/minimap/router"
)

type options struct {
	log      logger.Logger
	metrics  *metrics.Metrics
	recorder router.Recorder
	palette  *mapcolor.Palette
	id       string
}

type Option func(*options)

func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithRecorder receives every routed invalidation and world change.
func WithRecorder(r router.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

func WithPalette(p *mapcolor.Palette) Option {
	return func(o *options) { o.palette = p }
}

// WithSessionID fixes the session id instead of generating one.
func WithSessionID(id string) Option {
	return func(o *options) { o.id = id }
}

func buildOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	o.log = logger.OrNop(o.log)
	if o.palette == nil {
		o.palette = mapcolor.DefaultPalette()
	}
	return o
}
