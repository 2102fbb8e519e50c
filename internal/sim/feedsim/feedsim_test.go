package feedsim

import (
	"testing"
	"time"

	"voxelmap.ai/internal/protocol"
	"voxelmap.ai/internal/sim/encoding"
	"voxelmap.ai/internal/sim/terrain/store"
)

type recorder struct{ msgs []any }

func (r *recorder) Broadcast(v any) error {
	r.msgs = append(r.msgs, v)
	return nil
}

// mirror rebuilds a world from broadcast messages the way a viewer would.
func mirror(t *testing.T, msgs []any) *store.ChunkStore {
	t.Helper()
	s := store.NewChunkStore(nil)
	for _, m := range msgs {
		switch m := m.(type) {
		case protocol.ChunkDataMsg:
			sections, err := encoding.DecodeSections(m.Mask, m.Data)
			if err != nil {
				t.Fatalf("decode chunk (%d,%d): %v", m.CX, m.CZ, err)
			}
			ch := store.NewChunk(m.CX, m.CZ)
			ch.SetSections(sections)
			s.Load(ch)
		case protocol.ChunkUnloadMsg:
			s.Unload(m.CX, m.CZ)
		case protocol.BlockChangeMsg:
			_ = s.SetBlock(m.X, m.Y, m.Z, m.Block)
		case protocol.MultiBlockChangeMsg:
			for _, r := range m.Records {
				_ = s.SetBlock(m.CX*16+r.X, r.Y, m.CZ*16+r.Z, r.Block)
			}
		case protocol.ExplosionMsg:
			for _, p := range m.Records {
				_ = s.SetBlock(p.X, p.Y, p.Z, 0)
			}
		case protocol.RespawnMsg:
			s.Reset()
		}
	}
	return s
}

func TestFirstStepStreamsWindowThenPosition(t *testing.T) {
	out := &recorder{}
	s := New(Config{Seed: 3, Radius: 1, TickRateHz: 20}, out, nil)
	s.Step()

	if len(out.msgs) != 10 {
		t.Fatalf("messages=%d", len(out.msgs))
	}
	for i := 0; i < 9; i++ {
		if _, ok := out.msgs[i].(protocol.ChunkDataMsg); !ok {
			t.Fatalf("message %d is %T", i, out.msgs[i])
		}
	}
	pos, ok := out.msgs[9].(protocol.PositionMsg)
	if !ok || pos.Y <= 0 {
		t.Fatalf("last message %#v", out.msgs[9])
	}

	init := s.Initial(protocol.HelloMsg{})
	if len(init) != 10 {
		t.Fatalf("initial messages=%d", len(init))
	}
}

func TestBroadcastsReproduceWorld(t *testing.T) {
	out := &recorder{}
	s := New(Config{Seed: 11, Radius: 2, TickRateHz: 10, WalkSpeed: 40, EditsPerSec: 30}, out, nil)
	for i := 0; i < 60; i++ {
		s.Step()
	}

	kinds := map[string]bool{}
	for _, m := range out.msgs {
		switch m.(type) {
		case protocol.BlockChangeMsg:
			kinds["block"] = true
		case protocol.MultiBlockChangeMsg:
			kinds["multi"] = true
		case protocol.ExplosionMsg:
			kinds["explosion"] = true
		case protocol.ChunkUnloadMsg:
			kinds["unload"] = true
		}
	}
	for _, k := range []string{"block", "multi", "explosion", "unload"} {
		if !kinds[k] {
			t.Fatalf("no %s message in %d broadcasts", k, len(out.msgs))
		}
	}

	view := mirror(t, out.msgs)
	keys := s.store.LoadedChunkKeys()
	if got := len(view.LoadedChunkKeys()); got != len(keys) {
		t.Fatalf("viewer has %d chunks, sim has %d", got, len(keys))
	}
	for _, k := range keys {
		want, _ := s.store.Chunk(k.CX, k.CZ)
		got, ok := view.Chunk(k.CX, k.CZ)
		if !ok {
			t.Fatalf("viewer missing chunk (%d,%d)", k.CX, k.CZ)
		}
		if got.Digest() != want.Digest() {
			t.Fatalf("chunk (%d,%d) diverged", k.CX, k.CZ)
		}
	}
}

func TestRespawnSwitchesWorld(t *testing.T) {
	out := &recorder{}
	s := New(Config{WorldID: "w", Seed: 1, Radius: 1, TickRateHz: 10, RespawnEvery: time.Second}, out, nil)
	for i := 0; i < 10; i++ {
		s.Step()
	}
	if s.WorldID() != "w-1" {
		t.Fatalf("world id %q", s.WorldID())
	}
	var respawns int
	for _, m := range out.msgs {
		if r, ok := m.(protocol.RespawnMsg); ok {
			respawns++
			if r.WorldID != "w-1" {
				t.Fatalf("respawn to %q", r.WorldID)
			}
		}
	}
	if respawns != 1 {
		t.Fatalf("respawns=%d", respawns)
	}
	w := s.Welcome(protocol.HelloMsg{ClientName: "t"}, "sid")
	if w.WorldID != "w-1" || w.Seed != 2 {
		t.Fatalf("welcome %+v", w)
	}
}
