package atlas

import (
	"fmt"
	"iter"

	"voxelmap.ai/internal/metrics"
)

// EnsureResidency makes the window centred on chunk (cx, cz) resident. It
// frees every slot whose chunk left [-R, R) on either axis, then binds and
// colors every loaded chunk in the window that has no slot yet. Rows are
// visited south to north and columns east to west, and each newly bound
// chunk recolors its southern neighbour so that neighbour's top row is
// shaded against the new north reference.
func (a *Atlas) EnsureResidency(cx, cz int) {
	if a.closed {
		return
	}
	r := a.layout.Radius
	span := r * 2

	clear(a.present)
	evicted := 0
	for i := range a.slots {
		s := &a.slots[i]
		if !s.bound {
			continue
		}
		offsX := s.pos.X - cx
		offsZ := s.pos.Z - cz
		if offsX < -r || r <= offsX || offsZ < -r || r <= offsZ {
			a.unbind(i)
			evicted++
			continue
		}
		a.present[(offsX+r)+(offsZ+r)*span] = true
	}

	bound := 0
	for relZ := span - 1; relZ >= 0; relZ-- {
		for relX := span - 1; relX >= 0; relX-- {
			if a.present[relX+relZ*span] {
				continue
			}
			x := cx + relX - r
			z := cz + relZ - r
			col, ok := a.world.LoadedChunk(x, z)
			if !ok {
				continue
			}
			a.bind(x, z, col)
			bound++
			a.recolor(x, z+1, metrics.CauseSouth)
		}
	}

	if evicted > 0 || bound > 0 {
		a.log.Debug("atlas residency pass", "cx", cx, "cz", cz, "evicted", evicted, "bound", bound, "resident", len(a.index))
	}
}

// RefreshChunk recolors (x, z) and its southern neighbour (x, z+1). Chunks
// that are unbound or not loaded are skipped.
func (a *Atlas) RefreshChunk(x, z int) {
	if a.closed {
		return
	}
	a.recolor(x, z, metrics.CauseRefresh)
	a.recolor(x, z+1, metrics.CauseSouth)
}

// Clear unbinds every slot. Surface pixels are left as they are; they are
// never read while their slot is free.
func (a *Atlas) Clear() {
	if a.closed {
		return
	}
	n := len(a.index)
	a.clearSlots()
	a.metrics.ObserveClear()
	a.log.Debug("atlas cleared", "unbound", n)
}

func (a *Atlas) clearSlots() {
	for i := range a.slots {
		a.slots[i] = slot{}
	}
	clear(a.index)
}

// Lookup returns the slot bound to chunk (x, z).
func (a *Atlas) Lookup(x, z int) (int, bool) {
	i, ok := a.index[ChunkPos{X: x, Z: z}]
	return i, ok
}

// Bound is the number of occupied slots.
func (a *Atlas) Bound() int { return len(a.index) }

// Tiles yields every bound slot in slot order. The atlas must not be
// mutated while iterating.
func (a *Atlas) Tiles() iter.Seq[Tile] {
	return func(yield func(Tile) bool) {
		for i, s := range a.slots {
			if !s.bound {
				continue
			}
			if !yield(Tile{ChunkX: s.pos.X, ChunkZ: s.pos.Z, Offset: i}) {
				return
			}
		}
	}
}

func (a *Atlas) firstFree() int {
	for i := range a.slots {
		if !a.slots[i].bound {
			return i
		}
	}
	return -1
}

func (a *Atlas) bind(x, z int, col Column) {
	pos := ChunkPos{X: x, Z: z}
	if _, dup := a.index[pos]; dup {
		panic(fmt.Errorf("atlas: chunk (%d,%d) already bound", x, z))
	}
	i := a.firstFree()
	if i < 0 {
		panic(fmt.Errorf("%w: binding chunk (%d,%d) with %d slots", ErrSlotTableFull, x, z, len(a.slots)))
	}
	a.slots[i] = slot{pos: pos, bound: true}
	a.index[pos] = i
	a.metrics.ObserveBind()
	a.upload(i, x, z, col, metrics.CauseBind)
}

func (a *Atlas) unbind(i int) {
	delete(a.index, a.slots[i].pos)
	a.slots[i] = slot{}
	a.metrics.ObserveEvict()
}

func (a *Atlas) recolor(x, z int, cause string) {
	i, ok := a.index[ChunkPos{X: x, Z: z}]
	if !ok {
		return
	}
	col, ok := a.world.LoadedChunk(x, z)
	if !ok {
		return
	}
	a.upload(i, x, z, col, cause)
}

func (a *Atlas) upload(i, x, z int, col Column, cause string) {
	a.computeColors(x, z, col)
	px, py := a.blockOrigin(i)
	a.surf.ReplaceBlock(px, py, &a.pixels)
	a.metrics.ObserveRecolor(cause)
}
