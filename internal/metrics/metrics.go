package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recolor causes.
const (
	CauseBind    = "bind"
	CauseSouth   = "south"
	CauseRefresh = "refresh"
)

// Metrics groups every collector the client exports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	BoundSlots prometheus.Gauge
	Binds      prometheus.Counter
	Evictions  prometheus.Counter
	Clears     prometheus.Counter
	Recolors   *prometheus.CounterVec

	Notifications     *prometheus.CounterVec
	Refreshes         prometheus.Counter
	DedupedPositions  prometheus.Counter
	FeedMessages      *prometheus.CounterVec
	FeedRejected      prometheus.Counter
	LoopTasks         prometheus.Counter
	FrameDuration     prometheus.Histogram
	IndexDropped      prometheus.Counter
	EventLogFailures  prometheus.Counter
	FeedSubscribers   prometheus.Gauge
	FeedBroadcastDrop prometheus.Counter
	MirrorUploads     *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BoundSlots: f.NewGauge(prometheus.GaugeOpts{
			Name: "minimap_atlas_bound_slots",
			Help: "Number of atlas slots currently bound to a chunk",
		}),
		Binds: f.NewCounter(prometheus.CounterOpts{
			Name: "minimap_atlas_binds_total",
			Help: "Total number of chunks bound to an atlas slot",
		}),
		Evictions: f.NewCounter(prometheus.CounterOpts{
			Name: "minimap_atlas_evictions_total",
			Help: "Total number of atlas slots freed because their chunk left the window",
		}),
		Clears: f.NewCounter(prometheus.CounterOpts{
			Name: "minimap_atlas_clears_total",
			Help: "Total number of full slot table clears",
		}),
		Recolors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "minimap_atlas_recolors_total",
			Help: "Total number of chunk rasters computed",
		}, []string{"cause"}),

		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "minimap_router_notifications_total",
			Help: "Total number of mutation notifications received",
		}, []string{"kind"}),
		Refreshes: f.NewCounter(prometheus.CounterOpts{
			Name: "minimap_router_refreshes_total",
			Help: "Total number of chunk refreshes forwarded to the atlas",
		}),
		DedupedPositions: f.NewCounter(prometheus.CounterOpts{
			Name: "minimap_router_deduped_positions_total",
			Help: "Total number of positions folded into an already-scheduled chunk refresh",
		}),
		FeedMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "minimap_feed_messages_total",
			Help: "Total number of feed messages decoded",
		}, []string{"type"}),
		FeedRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "minimap_feed_rejected_total",
			Help: "Total number of feed messages dropped as malformed",
		}),
		LoopTasks: f.NewCounter(prometheus.CounterOpts{
			Name: "minimap_loop_tasks_total",
			Help: "Total number of tasks run on the client loop",
		}),
		FrameDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "minimap_loop_frame_seconds",
			Help:    "Duration of one client frame in seconds",
			Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		IndexDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "minimap_indexdb_dropped_total",
			Help: "Total number of index records dropped because the writer fell behind",
		}),
		EventLogFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "minimap_eventlog_failures_total",
			Help: "Total number of feed messages the event log failed to write",
		}),
		FeedSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "minimap_feed_subscribers",
			Help: "Number of connected feed subscribers",
		}),
		FeedBroadcastDrop: f.NewCounter(prometheus.CounterOpts{
			Name: "minimap_feed_broadcast_dropped_total",
			Help: "Total number of feed messages dropped for slow subscribers",
		}),
		MirrorUploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "minimap_mirror_uploads_total",
			Help: "Object store mirror uploads by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) ObserveBind() {
	if m == nil {
		return
	}
	m.Binds.Inc()
	m.BoundSlots.Inc()
}

func (m *Metrics) ObserveEvict() {
	if m == nil {
		return
	}
	m.Evictions.Inc()
	m.BoundSlots.Dec()
}

func (m *Metrics) ObserveClear() {
	if m == nil {
		return
	}
	m.Clears.Inc()
	m.BoundSlots.Set(0)
}

func (m *Metrics) ObserveRecolor(cause string) {
	if m == nil {
		return
	}
	m.Recolors.WithLabelValues(cause).Inc()
}

func (m *Metrics) ObserveNotification(kind string, positions, chunks int) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(kind).Inc()
	if positions > chunks {
		m.DedupedPositions.Add(float64(positions - chunks))
	}
}

func (m *Metrics) ObserveRefresh() {
	if m == nil {
		return
	}
	m.Refreshes.Inc()
}

func (m *Metrics) ObserveFeedMessage(typ string) {
	if m == nil {
		return
	}
	m.FeedMessages.WithLabelValues(typ).Inc()
}

func (m *Metrics) ObserveFeedRejected() {
	if m == nil {
		return
	}
	m.FeedRejected.Inc()
}

func (m *Metrics) ObserveTasks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LoopTasks.Add(float64(n))
}

func (m *Metrics) ObserveFrame(seconds float64) {
	if m == nil {
		return
	}
	m.FrameDuration.Observe(seconds)
}

func (m *Metrics) ObserveIndexDrop() {
	if m == nil {
		return
	}
	m.IndexDropped.Inc()
}

func (m *Metrics) ObserveEventLogFailure() {
	if m == nil {
		return
	}
	m.EventLogFailures.Inc()
}

func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.FeedSubscribers.Set(float64(n))
}

func (m *Metrics) ObserveBroadcastDrop() {
	if m == nil {
		return
	}
	m.FeedBroadcastDrop.Inc()
}

// ObserveMirror counts one mirror upload outcome: "ok", "fail" or "drop".
func (m *Metrics) ObserveMirror(result string) {
	if m == nil {
		return
	}
	m.MirrorUploads.WithLabelValues(result).Inc()
}
