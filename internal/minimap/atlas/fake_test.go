package atlas

import (
	"testing"

	"voxelmap.ai/internal/minimap/mapcolor"
	"voxelmap.ai/internal/minimap/surface"
)

var (
	stone = mapcolor.Material{Color: mapcolor.Stone, Solid: true}
	water = mapcolor.Material{Color: mapcolor.Water}
	air   = mapcolor.Material{}
)

// fakeColumn is stone up to a per-column height with optional water on top.
type fakeColumn struct {
	ground [256]int
	water  [256]int
}

func flatColumn(h int) *fakeColumn {
	c := &fakeColumn{}
	for i := range c.ground {
		c.ground[i] = h
	}
	return c
}

func (c *fakeColumn) withWater(depth int) *fakeColumn {
	for i := range c.water {
		c.water[i] = depth
	}
	return c
}

func (c *fakeColumn) TopFilledSegment() int {
	top := 0
	for i := range c.ground {
		if h := c.ground[i] + c.water[i]; h > top {
			top = h
		}
	}
	return top &^ 15
}

func (c *fakeColumn) Material(x, y, z int) mapcolor.Material {
	if y < 0 || x < 0 || x > 15 || z < 0 || z > 15 {
		return air
	}
	i := x | z<<4
	switch {
	case y <= c.ground[i]:
		return stone
	case y <= c.ground[i]+c.water[i]:
		return water
	default:
		return air
	}
}

type fakeWorld struct {
	chunks map[ChunkPos]*fakeColumn
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{chunks: map[ChunkPos]*fakeColumn{}}
}

// fill loads flat chunks over [x0, x1) × [z0, z1).
func (w *fakeWorld) fill(x0, z0, x1, z1, h int) {
	for x := x0; x < x1; x++ {
		for z := z0; z < z1; z++ {
			w.chunks[ChunkPos{X: x, Z: z}] = flatColumn(h)
		}
	}
}

func (w *fakeWorld) LoadedChunk(cx, cz int) (Column, bool) {
	c, ok := w.chunks[ChunkPos{X: cx, Z: cz}]
	if !ok {
		return nil, false
	}
	return c, true
}

func newTestAtlas(t testing.TB, radius, limit int, w World) (*Atlas, *surface.Memory) {
	t.Helper()
	a, err := New(radius, surface.NewMemoryPlatform(limit), w)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, a.Surface().(*surface.Memory)
}

// pixel reads the atlas pixel for local column (x, z) of chunk (cx, cz).
func pixel(a *Atlas, m *surface.Memory, cx, cz, x, z int) (uint32, bool) {
	i, ok := a.Lookup(cx, cz)
	if !ok {
		return 0, false
	}
	px, py := a.blockOrigin(i)
	return m.Pixel(px+x, py+z), true
}
