package client

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"voxelmap.ai/internal/minimap/atlas"
	"voxelmap.ai/internal/minimap/router"
	"voxelmap.ai/internal/minimap/surface"
	"voxelmap.ai/internal/minimap/view"
	snapv1 "voxelmap.ai/internal/persistence/snapshot"
	"voxelmap.ai/internal/protocol"
	"voxelmap.ai/internal/sim/encoding"
	"voxelmap.ai/internal/sim/terrain/store"
)

// tickInterval is the feed's position update period.
const tickInterval = 50 * time.Millisecond

type SessionConfig struct {
	ViewRadius int
	Clip       view.Clip
}

// Session ties a feed connection to one loop, one world model and one
// atlas. HandleMessage runs on the feed goroutine; everything it touches
// is deferred to the loop.
type Session struct {
	id       string
	cfg      SessionConfig
	opts     options
	loop     *Loop
	platform surface.Platform

	// Owned by the loop.
	store       *store.ChunkStore
	world       store.View
	atlas       *atlas.Atlas
	router      *router.Router
	observer    view.Observer
	hasObserver bool
	observerY   float64
	lastMove    time.Time
	worldID     string
	seed        int64
	seaLevel    int

	frame atomic.Pointer[view.Frame]
}

func NewSession(loop *Loop, platform surface.Platform, cfg SessionConfig, opts ...Option) *Session {
	o := buildOptions(opts)
	if cfg.ViewRadius < 1 {
		cfg.ViewRadius = 1
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	s := &Session{
		id:       o.id,
		cfg:      cfg,
		opts:     o,
		loop:     loop,
		platform: platform,
		store:    store.NewChunkStore(nil),
	}
	s.world = store.View{Store: s.store, Palette: o.palette}
	s.router = router.New(loop, s.store, nil,
		router.WithLogger(o.log),
		router.WithMetrics(o.metrics),
		router.WithRecorder(o.recorder),
	)
	return s
}

func (s *Session) ID() string { return s.id }

// Router is exposed for sources that produce mutations directly rather
// than through feed messages.
func (s *Session) Router() *router.Router { return s.router }

// InitAtlas creates the atlas on first use. Call from the loop.
func (s *Session) InitAtlas() error {
	if s.atlas != nil {
		return nil
	}
	a, err := atlas.New(s.cfg.ViewRadius, s.platform, s.world,
		atlas.WithLogger(s.opts.log),
		atlas.WithMetrics(s.opts.metrics),
	)
	if err != nil {
		return fmt.Errorf("init atlas: %w", err)
	}
	s.atlas = a
	s.router.SetTarget(a)
	return nil
}

// Atlas is nil until InitAtlas succeeds. Call from the loop.
func (s *Session) Atlas() *atlas.Atlas { return s.atlas }

// HandleMessage is a feed.Handler.
func (s *Session) HandleMessage(msg any) {
	switch m := msg.(type) {
	case *protocol.WelcomeMsg:
		s.loop.Schedule(func() {
			s.worldID, s.seed, s.seaLevel = m.WorldID, m.Seed, m.SeaLevel
		})
	case *protocol.ChunkDataMsg:
		sections, err := encoding.DecodeSections(m.Mask, m.Data)
		if err != nil {
			s.opts.log.Warn("bad chunk data", "cx", m.CX, "cz", m.CZ, "error", err)
			return
		}
		s.router.Receive(router.Mutation{
			Kind:      router.ChunkData,
			Positions: []router.BlockPos{{X: m.CX << 4, Z: m.CZ << 4}},
			Sections:  sections,
		})
	case *protocol.ChunkUnloadMsg:
		// The atlas keeps the tile until it leaves the window.
		s.loop.Schedule(func() { s.store.Unload(m.CX, m.CZ) })
	case *protocol.BlockChangeMsg:
		s.router.Receive(router.Mutation{
			Kind:      router.BlockChange,
			Positions: []router.BlockPos{{X: m.X, Y: m.Y, Z: m.Z}},
			Blocks:    []uint16{m.Block},
		})
	case *protocol.MultiBlockChangeMsg:
		mut := router.Mutation{
			Kind:      router.MultiBlockChange,
			Positions: make([]router.BlockPos, len(m.Records)),
			Blocks:    make([]uint16, len(m.Records)),
		}
		for i, r := range m.Records {
			mut.Positions[i] = router.BlockPos{X: m.CX<<4 + r.X, Y: r.Y, Z: m.CZ<<4 + r.Z}
			mut.Blocks[i] = r.Block
		}
		s.router.Receive(mut)
	case *protocol.ExplosionMsg:
		mut := router.Mutation{Kind: router.Explosion, Positions: make([]router.BlockPos, len(m.Records))}
		for i, r := range m.Records {
			mut.Positions[i] = router.BlockPos{X: r.X, Y: r.Y, Z: r.Z}
		}
		s.router.Receive(mut)
	case *protocol.PositionMsg:
		s.loop.Schedule(func() { s.move(m.X, m.Y, m.Z, m.Yaw) })
	case *protocol.RespawnMsg:
		s.router.WorldChanged(m.WorldID)
		s.loop.Schedule(func() {
			s.worldID = m.WorldID
			s.hasObserver = false
		})
	case *protocol.ErrorMsg:
		s.opts.log.Warn("feed error", "code", m.Code, "message", m.Message)
	default:
		s.opts.log.Debug("ignoring feed message", "type", fmt.Sprintf("%T", msg))
	}
}

func (s *Session) move(x, y, z, yaw float64) {
	if !s.hasObserver {
		s.observer.Teleport(x, z, yaw)
		s.hasObserver = true
	} else {
		s.observer.Move(x, z, yaw)
	}
	s.observerY = y
	s.lastMove = time.Now()
}

// Frame brings the atlas window to the observer and publishes a new draw
// list. It runs on the loop once per frame and does nothing until the
// observer position is known.
func (s *Session) Frame(now time.Time) {
	if !s.hasObserver {
		return
	}
	if err := s.InitAtlas(); err != nil {
		s.opts.log.Error("atlas unavailable", "error", err)
		return
	}
	partial := float64(now.Sub(s.lastMove)) / float64(tickInterval)
	partial = min(max(partial, 0), 1)
	x, z, yaw := s.observer.At(partial)
	cx, cz := view.ObserverChunk(x, z)
	s.atlas.EnsureResidency(cx, cz)
	f := view.Build(s.atlas, x, z, yaw, s.cfg.Clip)
	s.frame.Store(&f)
}

// LastFrame may be called from any goroutine.
func (s *Session) LastFrame() (view.Frame, bool) {
	f := s.frame.Load()
	if f == nil {
		return view.Frame{}, false
	}
	return *f, true
}

// Snapshot captures the loaded world. Call from the loop.
func (s *Session) Snapshot(savedAt time.Time) snapv1.SnapshotV1 {
	return snapv1.SnapshotV1{
		Header: snapv1.Header{
			WorldID:   s.worldID,
			SessionID: s.id,
			SavedAt:   savedAt.UTC().Format(time.RFC3339),
		},
		Seed:     s.seed,
		SeaLevel: s.seaLevel,
		Observer: snapv1.ObserverV1{X: s.observer.X, Y: s.observerY, Z: s.observer.Z, Yaw: s.observer.Yaw},
		Chunks:   store.ExportLoadedChunks(s.store.Chunks, s.store.LoadedChunkKeys()),
	}
}

// Restore replaces the world model with a snapshot. Call from the loop.
func (s *Session) Restore(snap snapv1.SnapshotV1) error {
	restored, err := store.ImportChunks(nil, snap.Chunks)
	if err != nil {
		return err
	}
	s.store.Reset()
	for _, ch := range restored.Chunks {
		s.store.Load(ch)
	}
	if s.atlas != nil {
		s.atlas.Clear()
	}
	s.worldID, s.seed, s.seaLevel = snap.Header.WorldID, snap.Seed, snap.SeaLevel
	s.observer.Teleport(snap.Observer.X, snap.Observer.Z, snap.Observer.Yaw)
	s.observerY = snap.Observer.Y
	s.hasObserver = true
	return nil
}

// Close releases the atlas. Call from the loop after it stops.
func (s *Session) Close() error {
	if s.atlas == nil {
		return nil
	}
	return s.atlas.Close()
}
