package view

import (
	"iter"
	"math"
	"testing"

	"voxelmap.ai/internal/minimap/atlas"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestLerpAndObserver(t *testing.T) {
	if got := Lerp(10, 20, 0.25); got != 12.5 {
		t.Fatalf("Lerp=%v", got)
	}
	var o Observer
	o.Teleport(100, -40, 90)
	o.Move(104, -40, 100)
	x, z, yaw := o.At(0.5)
	if x != 102 || z != -40 || yaw != 95 {
		t.Fatalf("At(0.5)=%v,%v,%v", x, z, yaw)
	}
}

func TestObserverChunkFloors(t *testing.T) {
	cases := []struct {
		x, z   float64
		cx, cz int
	}{
		{0, 0, 0, 0},
		{15.9, 16, 0, 1},
		{-0.5, -16, -1, -1},
		{-16.01, 31.99, -2, 1},
	}
	for _, c := range cases {
		cx, cz := ObserverChunk(c.x, c.z)
		if cx != c.cx || cz != c.cz {
			t.Fatalf("ObserverChunk(%v,%v)=%d,%d want %d,%d", c.x, c.z, cx, cz, c.cx, c.cz)
		}
	}
}

func TestCardinalDistance(t *testing.T) {
	if got := CardinalDistance(50, 0); !near(got, 50) {
		t.Fatalf("0°: %v", got)
	}
	if got := CardinalDistance(50, 45); !near(got, 50*math.Sqrt2) {
		t.Fatalf("45°: %v", got)
	}
	// Folding: 135°, -45° and 405° all sit on a corner.
	for _, a := range []float64{135, -45, 405} {
		if got := CardinalDistance(50, a); !near(got, 50*math.Sqrt2) {
			t.Fatalf("%v°: %v", a, got)
		}
	}
	if a, b := CardinalDistance(50, 30), CardinalDistance(50, 60); !near(a, b) {
		t.Fatalf("30° and 60° differ: %v %v", a, b)
	}
}

func TestWindowRadius(t *testing.T) {
	if got := WindowRadius(5); got != 64 {
		t.Fatalf("WindowRadius(5)=%d", got)
	}
	if got := ScissorRadius(5); !near(got, math.Sqrt(2048)) {
		t.Fatalf("ScissorRadius(5)=%v", got)
	}
}

type fakeSource struct {
	tiles []atlas.Tile
}

func (fakeSource) Radius() int    { return 5 }
func (fakeSource) Handle() uint32 { return 7 }
func (s fakeSource) Tiles() iter.Seq[atlas.Tile] {
	return func(yield func(atlas.Tile) bool) {
		for _, t := range s.tiles {
			if !yield(t) {
				return
			}
		}
	}
}
func (fakeSource) Region(offset int) (float64, float64, float64, float64) {
	return float64(offset) * 0.0625, 0, 0.0625, 0.125
}

func TestBuildQuadsAndLabels(t *testing.T) {
	src := fakeSource{tiles: []atlas.Tile{{ChunkX: 2, ChunkZ: -1, Offset: 3}}}
	f := Build(src, 40, -8, 0, ClipStencil)

	if f.Handle != 7 || f.Rotation != 180 || len(f.Quads) != 1 {
		t.Fatalf("frame %+v", f)
	}
	q := f.Quads[0]
	if q.MinX != -8 || q.MinY != -8 || q.MaxX != 8 || q.MaxY != 8 {
		t.Fatalf("quad bounds %+v", q)
	}
	if q.U0 != 0.1875 || q.U1 != 0.25 || q.V1 != 0.125 {
		t.Fatalf("quad uv %+v", q)
	}

	if len(f.Labels) != 4 || f.Labels[0].Text != "N" || f.Labels[3].Text != "E" {
		t.Fatalf("labels %+v", f.Labels)
	}
	// yaw 0: N straight down-screen at mask+4.
	if !near(f.Labels[0].X, 0) || !near(f.Labels[0].Y, 68) {
		t.Fatalf("N at %v,%v", f.Labels[0].X, f.Labels[0].Y)
	}
	if !near(f.Labels[1].X, 68) || !near(f.Labels[1].Y, 0) {
		t.Fatalf("W at %v,%v", f.Labels[1].X, f.Labels[1].Y)
	}
}

func TestBuildScissorLabelsTrackSquare(t *testing.T) {
	f := Build(fakeSource{}, 0, 0, 45, ClipScissor)
	want := (ScissorRadius(5) + 4) * math.Sqrt2
	for _, l := range f.Labels {
		if d := math.Hypot(l.X, l.Y); !near(d, want) {
			t.Fatalf("label %s at distance %v want %v", l.Text, d, want)
		}
	}
	if f.Clip != "scissor" {
		t.Fatalf("clip %q", f.Clip)
	}
}
