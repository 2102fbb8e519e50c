package store

import (
	"voxelmap.ai/internal/minimap/atlas"
	"voxelmap.ai/internal/minimap/mapcolor"
)

// View exposes a store to the atlas, resolving block states through a
// palette.
type View struct {
	Store   *ChunkStore
	Palette *mapcolor.Palette
}

var _ atlas.World = View{}

// LoadedChunk never generates; empty columns are reported as absent.
func (v View) LoadedChunk(cx, cz int) (atlas.Column, bool) {
	ch, ok := v.Store.Chunk(cx, cz)
	if !ok || ch.Empty() {
		return nil, false
	}
	return column{ch: ch, palette: v.Palette}, true
}

type column struct {
	ch      *Chunk
	palette *mapcolor.Palette
}

func (c column) TopFilledSegment() int { return c.ch.TopFilledSegment() }

func (c column) Material(x, y, z int) mapcolor.Material {
	return c.palette.Lookup(c.ch.Get(x, y, z))
}
