package atlas

import (
	"testing"

	"voxelmap.ai/internal/minimap/mapcolor"
)

func TestSouthNeighbourShadedAgainstNewNorth(t *testing.T) {
	w := newFakeWorld()
	w.chunks[ChunkPos{X: 0, Z: 0}] = flatColumn(10)
	w.chunks[ChunkPos{X: 0, Z: 1}] = flatColumn(5)
	a, m := newTestAtlas(t, 2, 0, w)

	a.EnsureResidency(0, 0)

	// (0,1) is bound first, then recolored once (0,0) exists north of it.
	got, ok := pixel(a, m, 0, 1, 3, 0)
	if !ok {
		t.Fatalf("(0,1) not bound")
	}
	if want := mapcolor.Stone.Shaded(mapcolor.Dark); got != want {
		t.Fatalf("top row: got %#x want dark %#x", got, want)
	}
	got, _ = pixel(a, m, 0, 1, 3, 1)
	if want := mapcolor.Stone.Shaded(mapcolor.Normal); got != want {
		t.Fatalf("second row: got %#x want normal %#x", got, want)
	}

	// Lower the north chunk and report it; the south top row turns light.
	w.chunks[ChunkPos{X: 0, Z: 0}] = flatColumn(3)
	a.RefreshChunk(0, 0)
	got, _ = pixel(a, m, 0, 1, 3, 0)
	if want := mapcolor.Stone.Shaded(mapcolor.Light); got != want {
		t.Fatalf("after refresh: got %#x want light %#x", got, want)
	}
}

func TestNorthReferenceRequiresResidency(t *testing.T) {
	w := newFakeWorld()
	w.chunks[ChunkPos{X: 0, Z: 0}] = flatColumn(10)
	w.chunks[ChunkPos{X: 0, Z: 1}] = flatColumn(5)
	a, m := newTestAtlas(t, 1, 0, w)

	// Window z ∈ [1, 3): (0,0) is loaded but never resident.
	a.EnsureResidency(0, 2)

	got, ok := pixel(a, m, 0, 1, 0, 0)
	if !ok {
		t.Fatalf("(0,1) not bound")
	}
	if want := mapcolor.Stone.Shaded(mapcolor.Normal); got != want {
		t.Fatalf("got %#x want flat %#x", got, want)
	}
}

func TestRisingTerrainIsLight(t *testing.T) {
	c := flatColumn(20)
	for x := 0; x < 16; x++ {
		c.ground[x|5<<4] = 30
		c.ground[x|6<<4] = 25
	}
	w := newFakeWorld()
	w.chunks[ChunkPos{X: 0, Z: 0}] = c
	a, m := newTestAtlas(t, 1, 0, w)
	a.EnsureResidency(0, 0)

	cases := []struct {
		z    int
		want mapcolor.Shade
	}{
		{0, mapcolor.Normal},
		{4, mapcolor.Normal},
		{5, mapcolor.Light},
		{6, mapcolor.Dark},
		{7, mapcolor.Dark},
		{8, mapcolor.Normal},
	}
	for _, tc := range cases {
		got, _ := pixel(a, m, 0, 0, 2, tc.z)
		if want := mapcolor.Stone.Shaded(tc.want); got != want {
			t.Fatalf("z=%d: got %#x want %v %#x", tc.z, got, tc.want, want)
		}
	}
}

func TestWaterDepthDither(t *testing.T) {
	w := newFakeWorld()
	w.chunks[ChunkPos{X: 0, Z: 0}] = flatColumn(40).withWater(2)
	w.chunks[ChunkPos{X: 1, Z: 0}] = flatColumn(40).withWater(8)
	a, m := newTestAtlas(t, 2, 0, w)
	a.EnsureResidency(0, 0)

	// Shallow: depth 2 → dither 2 or 4, both light.
	for _, xz := range [][2]int{{0, 0}, {1, 0}} {
		got, _ := pixel(a, m, 0, 0, xz[0], xz[1])
		if want := mapcolor.Water.Shaded(mapcolor.Light); got != want {
			t.Fatalf("shallow %v: got %#x want %#x", xz, got, want)
		}
	}

	// Deep: depth 8 → dither 8 keeps normal, dither 10 goes dark.
	got, _ := pixel(a, m, 1, 0, 2, 2)
	if want := mapcolor.Water.Shaded(mapcolor.Normal); got != want {
		t.Fatalf("deep even: got %#x want %#x", got, want)
	}
	got, _ = pixel(a, m, 1, 0, 3, 2)
	if want := mapcolor.Water.Shaded(mapcolor.Dark); got != want {
		t.Fatalf("deep odd: got %#x want %#x", got, want)
	}
}

func TestEmptyColumnsUseVoidPattern(t *testing.T) {
	w := newFakeWorld()
	w.chunks[ChunkPos{X: 0, Z: 0}] = flatColumn(0)
	a, m := newTestAtlas(t, 1, 0, w)
	a.EnsureResidency(0, 0)

	cases := []struct {
		x, z int
		want uint32
	}{
		{0, 0, mapcolor.VoidLight},
		{4, 0, mapcolor.VoidLight},
		{1, 0, mapcolor.VoidDark},
		{2, 0, mapcolor.VoidDark},
		{1, 1, mapcolor.VoidLight},
		{3, 1, mapcolor.VoidDark},
	}
	for _, tc := range cases {
		got, _ := pixel(a, m, 0, 0, tc.x, tc.z)
		if got != tc.want {
			t.Fatalf("(%d,%d): got %#x want %#x", tc.x, tc.z, got, tc.want)
		}
	}
}

func TestTopColored(t *testing.T) {
	c := flatColumn(33)
	if got := topColored(c, 0, 0); got != 33 {
		t.Fatalf("topColored=%d want 33", got)
	}
	c.withWater(4)
	if got := topColored(c, 0, 0); got != 37 {
		t.Fatalf("topColored with water=%d want 37", got)
	}
	if got := topColored(flatColumn(0), 5, 5); got != 0 {
		t.Fatalf("empty column=%d", got)
	}
}
