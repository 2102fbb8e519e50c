// Package router turns world mutation notifications into atlas refreshes.
//
// Notifications arrive on I/O goroutines. The router never touches the
// world or the atlas from there: Receive hands the mutation to the client
// loop, which applies it to the world and only then asks the atlas to
// recolor the affected chunks.
package router

import (
	"fmt"
	"time"

	"voxelmap.ai/internal/logger"
	"voxelmap.ai/internal/mathx"
	"voxelmap.ai/internal/metrics"
)

type Kind uint8

const (
	BlockChange Kind = iota + 1
	MultiBlockChange
	Explosion
	// ChunkData replaces a whole column; its single position is the
	// column's block origin.
	ChunkData
)

func (k Kind) String() string {
	switch k {
	case BlockChange:
		return "BLOCK_CHANGE"
	case MultiBlockChange:
		return "MULTI_BLOCK_CHANGE"
	case Explosion:
		return "EXPLOSION"
	case ChunkData:
		return "CHUNK_DATA"
	default:
		return fmt.Sprintf("KIND_%d", uint8(k))
	}
}

type BlockPos struct {
	X, Y, Z int
}

func (p BlockPos) Chunk() ChunkPos {
	return ChunkPos{X: mathx.FloorDiv(p.X, 16), Z: mathx.FloorDiv(p.Z, 16)}
}

type ChunkPos struct {
	X, Z int
}

// Mutation is one notification from the world. Blocks, when present, is
// parallel to Positions and holds the new block states. Explosions carry no
// states; every position becomes air.
type Mutation struct {
	Kind      Kind
	Positions []BlockPos
	Blocks    []uint16
	// Sections is the payload of a ChunkData mutation: 16 sections of 4096
	// states indexed y<<8|z<<4|x, nil where a section is empty.
	Sections [][]uint16
}

// Invalidation is what the router records about each processed mutation.
type Invalidation struct {
	Kind      Kind
	Positions int
	Chunks    []ChunkPos
	At        time.Time
}

// Target is the atlas side of the router.
type Target interface {
	RefreshChunk(x, z int)
	Clear()
}

// Scheduler runs tasks on the single mutating context.
type Scheduler interface {
	Schedule(fn func())
}

// Applier applies a mutation to the host world model.
type Applier interface {
	ApplyMutation(m Mutation) error
	// ResetWorld discards every loaded chunk.
	ResetWorld()
}

// Recorder observes invalidations after they are routed.
type Recorder interface {
	RecordInvalidation(inv Invalidation)
	RecordWorldChange(worldID string)
}

type Router struct {
	sched   Scheduler
	world   Applier
	target  Target
	rec     Recorder
	log     logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Router)

func WithRecorder(rec Recorder) Option {
	return func(r *Router) { r.rec = rec }
}

func WithLogger(l logger.Logger) Option {
	return func(r *Router) { r.log = logger.OrNop(l) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

func New(sched Scheduler, world Applier, target Target, opts ...Option) *Router {
	r := &Router{
		sched:  sched,
		world:  world,
		target: target,
		log:    logger.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetTarget swaps the atlas the router refreshes. Call from the loop.
func (r *Router) SetTarget(t Target) { r.target = t }

// Receive may be called from any goroutine.
func (r *Router) Receive(m Mutation) {
	r.sched.Schedule(func() { r.Process(m) })
}

// Process runs on the loop. The world is updated first; the refresh task is
// scheduled from here, so it runs after the mutation is visible.
func (r *Router) Process(m Mutation) {
	if err := r.world.ApplyMutation(m); err != nil {
		r.log.Warn("mutation rejected", "kind", m.Kind.String(), "positions", len(m.Positions), "error", err)
		return
	}
	chunks := Chunks(m.Positions)
	r.metrics.ObserveNotification(m.Kind.String(), len(m.Positions), len(chunks))
	if len(chunks) == 0 {
		return
	}
	r.sched.Schedule(func() { r.refresh(chunks) })

	if r.rec != nil {
		r.rec.RecordInvalidation(Invalidation{
			Kind:      m.Kind,
			Positions: len(m.Positions),
			Chunks:    chunks,
			At:        r.now(),
		})
	}
}

func (r *Router) refresh(chunks []ChunkPos) {
	if r.target == nil {
		return
	}
	for _, c := range chunks {
		r.target.RefreshChunk(c.X, c.Z)
		r.metrics.ObserveRefresh()
	}
}

// WorldChanged may be called from any goroutine. The loop drops every
// loaded chunk and unbinds the atlas.
func (r *Router) WorldChanged(worldID string) {
	r.sched.Schedule(func() {
		r.world.ResetWorld()
		if r.target != nil {
			r.target.Clear()
		}
		r.log.Info("world changed", "world", worldID)
		if r.rec != nil {
			r.rec.RecordWorldChange(worldID)
		}
	})
}

// Chunks maps block positions to the chunks containing them, keeping the
// first occurrence of each chunk in input order.
func Chunks(positions []BlockPos) []ChunkPos {
	if len(positions) == 0 {
		return nil
	}
	out := make([]ChunkPos, 0, 1)
	seen := make(map[ChunkPos]struct{}, 1)
	for _, p := range positions {
		c := p.Chunk()
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
