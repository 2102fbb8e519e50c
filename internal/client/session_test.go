package client

import (
	"testing"
	"time"

	"voxelmap.ai/internal/minimap/mapcolor"
	"voxelmap.ai/internal/minimap/router"
	"voxelmap.ai/internal/minimap/surface"
	"voxelmap.ai/internal/protocol"
	"voxelmap.ai/internal/sim/encoding"
	"voxelmap.ai/internal/sim/terrain/store"
)

type journal struct {
	invalidations []router.Invalidation
	worlds        []string
}

func (j *journal) RecordInvalidation(inv router.Invalidation) {
	j.invalidations = append(j.invalidations, inv)
}

func (j *journal) RecordWorldChange(id string) { j.worlds = append(j.worlds, id) }

func chunkDataMsg(cx, cz, height int) *protocol.ChunkDataMsg {
	ch := store.NewChunk(cx, cz)
	for x := 0; x < 16; x++ {
		for z := 0; z < 16; z++ {
			for y := 0; y < height; y++ {
				ch.Set(x, y, z, mapcolor.State(mapcolor.BlockStone, 0))
			}
		}
	}
	mask, data := encoding.EncodeSections(ch.SectionStates())
	return &protocol.ChunkDataMsg{Type: protocol.TypeChunkData, CX: cx, CZ: cz, Mask: mask, Data: data}
}

func newTestSession(t *testing.T) (*Session, *Loop, *journal) {
	t.Helper()
	loop := NewLoop(60)
	j := &journal{}
	s := NewSession(loop, surface.NewMemoryPlatform(256), SessionConfig{ViewRadius: 2}, WithRecorder(j))
	t.Cleanup(func() { _ = s.Close() })
	return s, loop, j
}

func TestSessionFrameBindsLoadedChunks(t *testing.T) {
	s, loop, _ := newTestSession(t)

	s.HandleMessage(chunkDataMsg(0, 0, 64))
	s.HandleMessage(chunkDataMsg(-1, 0, 64))
	loop.RunPending()
	s.Frame(time.Now())
	if _, ok := s.LastFrame(); ok {
		t.Fatalf("frame published before the observer was known")
	}

	s.HandleMessage(&protocol.PositionMsg{Type: protocol.TypePosition, X: 8, Y: 70, Z: 8, Yaw: 0})
	loop.RunPending()
	s.Frame(time.Now())

	f, ok := s.LastFrame()
	if !ok {
		t.Fatalf("no frame")
	}
	if len(f.Quads) != 2 {
		t.Fatalf("quads=%d", len(f.Quads))
	}
	if s.Atlas().Bound() != 2 {
		t.Fatalf("bound=%d", s.Atlas().Bound())
	}
	if len(f.Labels) != 4 || f.Labels[0].Text != "N" {
		t.Fatalf("labels %+v", f.Labels)
	}
}

func TestSessionBlockChangeRecolorsTile(t *testing.T) {
	s, loop, j := newTestSession(t)
	s.HandleMessage(chunkDataMsg(0, 0, 64))
	s.HandleMessage(&protocol.PositionMsg{Type: protocol.TypePosition, X: 8, Y: 70, Z: 8})
	loop.RunPending()
	s.Frame(time.Now())

	mem := s.Atlas().Surface().(*surface.Memory)
	before := mem.Writes()
	s.HandleMessage(&protocol.MultiBlockChangeMsg{
		Type: protocol.TypeMultiBlockChange,
		CX:   0,
		CZ:   0,
		Records: []protocol.BlockRecord{
			{X: 3, Y: 64, Z: 3, Block: mapcolor.State(mapcolor.BlockGrass, 0)},
			{X: 4, Y: 64, Z: 3, Block: mapcolor.State(mapcolor.BlockGrass, 0)},
		},
	})
	loop.RunPending()

	// One upload for the chunk itself; its southern neighbour is not bound.
	if got := mem.Writes() - before; got != 1 {
		t.Fatalf("writes=%d", got)
	}
	last := j.invalidations[len(j.invalidations)-1]
	if last.Kind != router.MultiBlockChange || last.Positions != 2 || len(last.Chunks) != 1 {
		t.Fatalf("invalidation %+v", last)
	}
}

func TestSessionRespawnClearsWorld(t *testing.T) {
	s, loop, j := newTestSession(t)
	s.HandleMessage(chunkDataMsg(0, 0, 64))
	s.HandleMessage(&protocol.PositionMsg{Type: protocol.TypePosition, X: 8, Y: 70, Z: 8})
	loop.RunPending()
	s.Frame(time.Now())

	s.HandleMessage(&protocol.RespawnMsg{Type: protocol.TypeRespawn, WorldID: "nether"})
	loop.RunPending()
	if s.Atlas().Bound() != 0 {
		t.Fatalf("atlas still holds %d chunks", s.Atlas().Bound())
	}
	if len(s.store.Chunks) != 0 {
		t.Fatalf("store kept %d chunks", len(s.store.Chunks))
	}
	if len(j.worlds) != 1 || j.worlds[0] != "nether" {
		t.Fatalf("world changes %v", j.worlds)
	}
}

func TestSessionSnapshotRestore(t *testing.T) {
	s, loop, _ := newTestSession(t)
	s.HandleMessage(&protocol.WelcomeMsg{Type: protocol.TypeWelcome, WorldID: "overworld", Seed: 9})
	s.HandleMessage(chunkDataMsg(2, -1, 10))
	s.HandleMessage(&protocol.PositionMsg{Type: protocol.TypePosition, X: 40, Y: 12, Z: -8, Yaw: 30})
	loop.RunPending()

	snap := s.Snapshot(time.Unix(0, 0))
	if snap.Header.WorldID != "overworld" || snap.Seed != 9 || len(snap.Chunks) != 1 {
		t.Fatalf("snapshot %+v", snap.Header)
	}

	other, loop2, _ := newTestSession(t)
	if err := other.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	other.Frame(time.Now())
	loop2.RunPending()
	f, ok := other.LastFrame()
	if !ok || len(f.Quads) != 1 || f.Quads[0].ChunkX != 2 || f.Quads[0].ChunkZ != -1 {
		t.Fatalf("restored frame %+v", f)
	}
}
