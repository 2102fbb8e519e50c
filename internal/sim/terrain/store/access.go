package store

import (
	"errors"
	"fmt"
	"sort"

	"voxelmap.ai/internal/mathx"
	"voxelmap.ai/internal/minimap/router"
)

var ErrNotLoaded = errors.New("chunk not loaded")

func (s *ChunkStore) Chunk(cx, cz int) (*Chunk, bool) {
	ch, ok := s.Chunks[ChunkKey{CX: cx, CZ: cz}]
	return ch, ok
}

func (s *ChunkStore) Load(ch *Chunk) {
	s.Chunks[ChunkKey{CX: ch.CX, CZ: ch.CZ}] = ch
}

func (s *ChunkStore) Unload(cx, cz int) bool {
	k := ChunkKey{CX: cx, CZ: cz}
	if _, ok := s.Chunks[k]; !ok {
		return false
	}
	delete(s.Chunks, k)
	return true
}

// Reset drops every loaded chunk.
func (s *ChunkStore) Reset() {
	clear(s.Chunks)
}

func (s *ChunkStore) LoadedChunkKeys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.Chunks))
	for k := range s.Chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

// GetBlock reads a world position. Unloaded chunks read as air.
func (s *ChunkStore) GetBlock(x, y, z int) uint16 {
	ch, ok := s.Chunk(mathx.FloorDiv(x, 16), mathx.FloorDiv(z, 16))
	if !ok {
		return 0
	}
	return ch.Get(mathx.Mod(x, 16), y, mathx.Mod(z, 16))
}

// SetBlock writes a world position. Writes to unloaded chunks fail.
func (s *ChunkStore) SetBlock(x, y, z int, b uint16) error {
	ch, ok := s.Chunk(mathx.FloorDiv(x, 16), mathx.FloorDiv(z, 16))
	if !ok {
		return ErrNotLoaded
	}
	ch.Set(mathx.Mod(x, 16), y, mathx.Mod(z, 16), b)
	return nil
}

// GetOrGenChunk returns the loaded chunk, generating it first if needed.
func (s *ChunkStore) GetOrGenChunk(cx, cz int) *Chunk {
	k := ChunkKey{CX: cx, CZ: cz}
	if ch, ok := s.Chunks[k]; ok {
		return ch
	}
	ch := NewChunk(cx, cz)
	if s.Gen != nil {
		s.Gen.Generate(ch)
	}
	_ = ch.Digest()
	s.Chunks[k] = ch
	return ch
}

// ApplyMutation updates the store for one feed notification. Block changes
// that land in unloaded chunks are dropped, the same as a client that was
// sent a change for a chunk it never received.
func (s *ChunkStore) ApplyMutation(m router.Mutation) error {
	switch m.Kind {
	case router.BlockChange, router.MultiBlockChange:
		if len(m.Blocks) != len(m.Positions) {
			return fmt.Errorf("%s: %d positions but %d blocks", m.Kind, len(m.Positions), len(m.Blocks))
		}
		for i, p := range m.Positions {
			_ = s.SetBlock(p.X, p.Y, p.Z, m.Blocks[i])
		}
	case router.Explosion:
		for _, p := range m.Positions {
			_ = s.SetBlock(p.X, p.Y, p.Z, 0)
		}
	case router.ChunkData:
		if len(m.Positions) != 1 {
			return fmt.Errorf("%s: want 1 origin, got %d", m.Kind, len(m.Positions))
		}
		o := m.Positions[0]
		ch := NewChunk(mathx.FloorDiv(o.X, 16), mathx.FloorDiv(o.Z, 16))
		ch.SetSections(m.Sections)
		s.Load(ch)
	default:
		return fmt.Errorf("unknown mutation kind %s", m.Kind)
	}
	return nil
}

// ResetWorld satisfies router.Applier.
func (s *ChunkStore) ResetWorld() { s.Reset() }
