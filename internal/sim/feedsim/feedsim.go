// Package feedsim is a synthetic world feed: a walker crossing generated
// terrain while blocks change and explode around it. It exists so the
// minimap can run without a game server.
package feedsim

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"voxelmap.ai/internal/logger"
	"voxelmap.ai/internal/mathx"
	mc "voxelmap.ai/internal/minimap/mapcolor"
	"voxelmap.ai/internal/protocol"
	"voxelmap.ai/internal/sim/encoding"
	"voxelmap.ai/internal/sim/terrain/gen"
	"voxelmap.ai/internal/sim/terrain/store"
)

const eyeHeight = 1.62

// Broadcaster delivers a message to every subscriber without blocking.
type Broadcaster interface {
	Broadcast(v any) error
}

type Config struct {
	WorldID     string
	Seed        int64
	SeaLevel    int
	Radius      int
	TickRateHz  int
	WalkSpeed   float64 // blocks per second
	EditsPerSec float64
	// RespawnEvery switches to a fresh world this often; zero disables it.
	RespawnEvery time.Duration
}

type Sim struct {
	cfg Config
	out Broadcaster
	log logger.Logger

	mu          sync.Mutex
	worldID     string
	seed        int64
	worlds      int
	terrain     *gen.Terrain
	store       *store.ChunkStore
	rng         *rand.Rand
	x, z, yaw   float64
	tick        uint64
	editBudget  float64
	respawnTick uint64
}

func New(cfg Config, out Broadcaster, log logger.Logger) *Sim {
	if cfg.Radius < 1 {
		cfg.Radius = 1
	}
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 20
	}
	if cfg.WorldID == "" {
		cfg.WorldID = "overworld"
	}
	s := &Sim{
		cfg: cfg,
		out: out,
		log: logger.OrNop(log),
		rng: rand.New(rand.NewPCG(uint64(cfg.Seed), 0x6d696e696d6170)),
	}
	s.resetWorld(cfg.WorldID, cfg.Seed)
	return s
}

func (s *Sim) resetWorld(worldID string, seed int64) {
	tc := gen.DefaultConfig(seed)
	if s.cfg.SeaLevel > 0 {
		tc.SeaLevel = s.cfg.SeaLevel
	}
	s.worldID = worldID
	s.seed = seed
	s.terrain = gen.New(tc)
	s.store = store.NewChunkStore(s.terrain)
	s.x, s.z = 0.5, 0.5
	s.yaw = s.rng.Float64() * 360
	s.respawnTick = s.tick
}

// Welcome implements feed.Source.
func (s *Sim) Welcome(hello protocol.HelloMsg, sessionID string) protocol.WelcomeMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Info("viewer connected", "client", hello.ClientName, "session", sessionID)
	return protocol.WelcomeMsg{
		WorldID:  s.worldID,
		Seed:     s.seed,
		SeaLevel: s.terrain.Config().SeaLevel,
	}
}

// Initial implements feed.Source: every loaded column, then the walker.
func (s *Sim) Initial(protocol.HelloMsg) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.store.LoadedChunkKeys()
	out := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		ch, _ := s.store.Chunk(k.CX, k.CZ)
		out = append(out, chunkData(ch))
	}
	out = append(out, s.position())
	return out
}

// Position reports where the walker is.
func (s *Sim) Position() (x, z, yaw float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.x, s.z, s.yaw
}

func (s *Sim) WorldID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.worldID
}

func (s *Sim) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.TickRateHz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Step()
		}
	}
}

// Step advances one tick and broadcasts what changed.
func (s *Sim) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick++

	if s.cfg.RespawnEvery > 0 {
		every := uint64(s.cfg.RespawnEvery.Seconds() * float64(s.cfg.TickRateHz))
		if every > 0 && s.tick-s.respawnTick >= every {
			s.worlds++
			id := fmt.Sprintf("%s-%d", s.cfg.WorldID, s.worlds)
			s.resetWorld(id, s.cfg.Seed+int64(s.worlds))
			s.send(protocol.RespawnMsg{Type: protocol.TypeRespawn, WorldID: id})
			s.log.Info("world switched", "world", id, "seed", s.seed)
		}
	}

	s.walk()
	s.streamChunks()
	s.send(s.position())

	s.editBudget += s.cfg.EditsPerSec / float64(s.cfg.TickRateHz)
	for s.editBudget >= 1 {
		s.editBudget--
		s.edit()
	}
}

func (s *Sim) send(v any) {
	if s.out == nil {
		return
	}
	if err := s.out.Broadcast(v); err != nil {
		s.log.Warn("broadcast failed", "error", err)
	}
}

func (s *Sim) walk() {
	s.yaw += s.rng.NormFloat64() * 4
	s.yaw = math.Mod(s.yaw+360, 360)
	step := s.cfg.WalkSpeed / float64(s.cfg.TickRateHz)
	rad := s.yaw * math.Pi / 180
	s.x += -math.Sin(rad) * step
	s.z += math.Cos(rad) * step
}

func (s *Sim) position() protocol.PositionMsg {
	y := float64(s.terrain.HeightAt(mathx.FloorInt(s.x), mathx.FloorInt(s.z))+1) + eyeHeight
	return protocol.PositionMsg{Type: protocol.TypePosition, X: s.x, Y: y, Z: s.z, Yaw: s.yaw}
}

func (s *Sim) walkerChunk() (int, int) {
	return mathx.FloorInt(s.x) >> 4, mathx.FloorInt(s.z) >> 4
}

// streamChunks loads the walker's square of chunks and unloads anything
// more than one chunk beyond it.
func (s *Sim) streamChunks() {
	cx, cz := s.walkerChunk()
	r := s.cfg.Radius
	for _, k := range s.store.LoadedChunkKeys() {
		if mathx.AbsInt(k.CX-cx) > r+1 || mathx.AbsInt(k.CZ-cz) > r+1 {
			s.store.Unload(k.CX, k.CZ)
			s.send(protocol.ChunkUnloadMsg{Type: protocol.TypeChunkUnload, CX: k.CX, CZ: k.CZ})
		}
	}
	for dz := -r; dz <= r; dz++ {
		for dx := -r; dx <= r; dx++ {
			if _, ok := s.store.Chunk(cx+dx, cz+dz); ok {
				continue
			}
			s.send(chunkData(s.store.GetOrGenChunk(cx+dx, cz+dz)))
		}
	}
}

func chunkData(ch *store.Chunk) protocol.ChunkDataMsg {
	mask, data := encoding.EncodeSections(ch.SectionStates())
	return protocol.ChunkDataMsg{Type: protocol.TypeChunkData, CX: ch.CX, CZ: ch.CZ, Mask: mask, Data: data}
}

// surfaceY is the highest non-air block at (x, z), or -1.
func (s *Sim) surfaceY(x, z int) int {
	ch, ok := s.store.Chunk(mathx.FloorDiv(x, 16), mathx.FloorDiv(z, 16))
	if !ok {
		return -1
	}
	lx, lz := mathx.Mod(x, 16), mathx.Mod(z, 16)
	for y := ch.TopFilledSegment() + 15; y >= 0; y-- {
		if ch.Get(lx, y, lz) != 0 {
			return y
		}
	}
	return -1
}

func (s *Sim) edit() {
	span := (s.cfg.Radius*16 + 15) * 2
	x := mathx.FloorInt(s.x) + s.rng.IntN(span) - span/2
	z := mathx.FloorInt(s.z) + s.rng.IntN(span) - span/2
	y := s.surfaceY(x, z)
	if y < 0 || y >= store.Height-2 {
		return
	}
	switch s.rng.IntN(3) {
	case 0:
		b := mc.State(mc.BlockWool, uint8(s.rng.IntN(16)))
		if err := s.store.SetBlock(x, y+1, z, b); err != nil {
			return
		}
		s.send(protocol.BlockChangeMsg{Type: protocol.TypeBlockChange, X: x, Y: y + 1, Z: z, Block: b})
	case 1:
		s.pave(x, z)
	default:
		s.explode(x, y, z, 2+s.rng.IntN(2))
	}
}

// pave lays a 3x3 cobblestone patch on the surface, clipped to one chunk.
func (s *Sim) pave(x, z int) {
	cx, cz := mathx.FloorDiv(x, 16), mathx.FloorDiv(z, 16)
	msg := protocol.MultiBlockChangeMsg{Type: protocol.TypeMultiBlockChange, CX: cx, CZ: cz}
	b := mc.State(mc.BlockCobblestone, 0)
	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			wx, wz := x+dx, z+dz
			if mathx.FloorDiv(wx, 16) != cx || mathx.FloorDiv(wz, 16) != cz {
				continue
			}
			y := s.surfaceY(wx, wz)
			if y < 0 {
				continue
			}
			if err := s.store.SetBlock(wx, y, wz, b); err != nil {
				continue
			}
			msg.Records = append(msg.Records, protocol.BlockRecord{X: mathx.Mod(wx, 16), Y: y, Z: mathx.Mod(wz, 16), Block: b})
		}
	}
	if len(msg.Records) > 0 {
		s.send(msg)
	}
}

func (s *Sim) explode(x, y, z, radius int) {
	msg := protocol.ExplosionMsg{
		Type:     protocol.TypeExplosion,
		X:        float64(x) + 0.5,
		Y:        float64(y) + 0.5,
		Z:        float64(z) + 0.5,
		Strength: float64(radius),
	}
	for dy := -radius; dy <= radius; dy++ {
		for dz := -radius; dz <= radius; dz++ {
			for dx := -radius; dx <= radius; dx++ {
				if dx*dx+dy*dy+dz*dz > radius*radius {
					continue
				}
				wx, wy, wz := x+dx, y+dy, z+dz
				if wy < 1 || wy >= store.Height {
					continue
				}
				b := s.store.GetBlock(wx, wy, wz)
				if b == 0 || mc.BlockID(b) == mc.BlockBedrock {
					continue
				}
				if err := s.store.SetBlock(wx, wy, wz, 0); err != nil {
					continue
				}
				msg.Records = append(msg.Records, protocol.Pos{X: wx, Y: wy, Z: wz})
			}
		}
	}
	if len(msg.Records) > 0 {
		s.send(msg)
	}
}
