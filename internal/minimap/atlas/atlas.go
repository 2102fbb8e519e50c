// Package atlas keeps a bounded square window of terrain chunks resident in
// a packed raster surface, one 16×16 block per chunk, and recomputes each
// block's map colors when its chunk is bound or reported changed.
//
// An Atlas is not safe for concurrent use. All calls must come from the
// client loop that also mutates the world it reads from.
package atlas

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"voxelmap.ai/internal/logger"
	"voxelmap.ai/internal/mathx"
	"voxelmap.ai/internal/metrics"
	"voxelmap.ai/internal/minimap/mapcolor"
	"voxelmap.ai/internal/minimap/surface"
)

var (
	// ErrSlotTableFull is the panic value raised when a chunk must be bound
	// but every slot is taken. Eviction keeps this unreachable.
	ErrSlotTableFull = errors.New("atlas: chunk slot table full")

	ErrSurfaceTooSmall = errors.New("atlas: surface limit leaves no room for a window")
)

// World answers residency questions about the host world.
type World interface {
	// LoadedChunk returns the chunk column at (cx, cz) if it is loaded and
	// not empty. It must never trigger loading or generation.
	LoadedChunk(cx, cz int) (Column, bool)
}

// Column is a loaded chunk in local block coordinates (0..15 on x and z).
type Column interface {
	// TopFilledSegment is the base y of the highest non-empty 16-block
	// section, or 0 when the column is empty.
	TopFilledSegment() int
	// Material at a local position. Positions below 0 or above the column
	// must report air.
	Material(x, y, z int) mapcolor.Material
}

type ChunkPos struct {
	X, Z int
}

// Tile is one bound slot as seen by the renderer.
type Tile struct {
	ChunkX, ChunkZ int
	Offset         int
}

// Layout is the slot geometry derived from a requested radius and the
// platform's surface limit.
type Layout struct {
	Radius   int
	Capacity int // slot count, 4·Radius² ≤ Capacity
	Width    int // surface width in pixels
	Height   int // surface height in pixels
	SpanL2   int // log2 of slots per surface row
}

// Stride is the number of slots in one surface row.
func (l Layout) Stride() int { return 1 << l.SpanL2 }

// Downgraded reports whether the platform limit shrank the window.
func (l Layout) Downgraded(maxRadius int) bool { return l.Radius < maxRadius }

// ComputeLayout sizes the surface for a (2·maxRadius)² window. When the
// surface would exceed limit on either edge, width is traded for height
// first and the slot count is cut to what fits. A limit of 0 means
// unlimited.
func ComputeLayout(maxRadius, limit int) Layout {
	if maxRadius < 1 {
		maxRadius = 1
	}
	maxChunks := maxRadius * maxRadius * 4

	texWidth := mathx.HighestOneBit(maxChunks-1) << 5
	texHeight := surface.BlockSize

	if limit > 0 {
		for texWidth > limit {
			texWidth >>= 1
			texHeight <<= 1
		}
		for texHeight > limit {
			texHeight >>= 1
		}
	}

	capacity := texWidth * texHeight >> 8
	if capacity < maxChunks {
		maxChunks = capacity
	}

	return Layout{
		Radius:   int(math.Sqrt(float64(maxChunks >> 2))),
		Capacity: maxChunks,
		Width:    texWidth,
		Height:   texHeight,
		SpanL2:   bits.TrailingZeros(uint(texWidth >> 4)),
	}
}

type Option func(*Atlas)

func WithLogger(l logger.Logger) Option {
	return func(a *Atlas) { a.log = logger.OrNop(l) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Atlas) { a.metrics = m }
}

type slot struct {
	pos   ChunkPos
	bound bool
}

type Atlas struct {
	layout Layout
	world  World
	surf   surface.Surface

	slots []slot
	index map[ChunkPos]int

	// scratch
	present []bool
	pixels  surface.Block
	north   [16]int

	log     logger.Logger
	metrics *metrics.Metrics
	closed  bool
}

// New allocates the surface and an empty slot table. The effective radius
// may be smaller than maxRadius on platforms with a small surface limit.
func New(maxRadius int, platform surface.Platform, world World, opts ...Option) (*Atlas, error) {
	if platform == nil {
		return nil, fmt.Errorf("atlas: nil platform")
	}
	if world == nil {
		return nil, fmt.Errorf("atlas: nil world")
	}
	layout := ComputeLayout(maxRadius, platform.MaxSurfaceSize())
	if layout.Radius < 1 {
		return nil, fmt.Errorf("%w (limit %d)", ErrSurfaceTooSmall, platform.MaxSurfaceSize())
	}

	a := &Atlas{
		layout: layout,
		world:  world,
		log:    logger.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}

	surf, err := platform.Allocate(layout.Width, layout.Height)
	if err != nil {
		return nil, fmt.Errorf("atlas: allocate %dx%d surface: %w", layout.Width, layout.Height, err)
	}
	a.surf = surf
	a.slots = make([]slot, layout.Capacity)
	a.index = make(map[ChunkPos]int, layout.Capacity)
	a.present = make([]bool, 4*layout.Radius*layout.Radius)

	if layout.Downgraded(maxRadius) {
		a.log.Warn("atlas radius reduced to fit surface limit",
			"requested", maxRadius, "radius", layout.Radius, "limit", platform.MaxSurfaceSize())
	}
	a.log.Info("atlas ready",
		"radius", layout.Radius, "slots", layout.Capacity,
		"surface", fmt.Sprintf("%dx%d", layout.Width, layout.Height), "handle", surf.Handle())
	return a, nil
}

func (a *Atlas) Layout() Layout { return a.layout }

// Radius is the effective half-width of the window in chunks.
func (a *Atlas) Radius() int { return a.layout.Radius }

func (a *Atlas) Capacity() int { return a.layout.Capacity }

func (a *Atlas) Stride() int { return a.layout.Stride() }

func (a *Atlas) Surface() surface.Surface { return a.surf }

// Handle is the surface handle the renderer binds before drawing tiles.
func (a *Atlas) Handle() uint32 {
	if a.surf == nil {
		return 0
	}
	return a.surf.Handle()
}

// SpriteWidth is the normalized width of one slot on the surface.
func (a *Atlas) SpriteWidth() float64 {
	return float64(surface.BlockSize) / float64(a.layout.Width)
}

// SpriteHeight is the normalized height of one slot on the surface.
func (a *Atlas) SpriteHeight() float64 {
	return float64(surface.BlockSize) / float64(a.layout.Height)
}

// SpriteX is the normalized x of the slot's top-left corner.
func (a *Atlas) SpriteX(offset int) float64 {
	return float64(offset&(a.layout.Stride()-1)) * a.SpriteWidth()
}

// SpriteY is the normalized y of the slot's top-left corner.
func (a *Atlas) SpriteY(offset int) float64 {
	return float64(offset>>a.layout.SpanL2) * a.SpriteHeight()
}

// Region is the normalized (u, v, w, h) rectangle the slot occupies.
func (a *Atlas) Region(offset int) (u, v, w, h float64) {
	return a.SpriteX(offset), a.SpriteY(offset), a.SpriteWidth(), a.SpriteHeight()
}

// blockOrigin is the pixel position of the slot's top-left corner.
func (a *Atlas) blockOrigin(offset int) (x, y int) {
	return (offset & (a.layout.Stride() - 1)) << 4, (offset >> a.layout.SpanL2) << 4
}

// Close releases the surface. The atlas must not be used afterwards.
func (a *Atlas) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.clearSlots()
	if a.surf == nil {
		return nil
	}
	a.log.Debug("atlas surface released", "handle", a.surf.Handle())
	return a.surf.Close()
}
