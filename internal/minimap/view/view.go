// Package view turns atlas state into the draw list a renderer submits each
// frame: one textured quad per bound tile plus the four cardinal labels.
package view

import (
	"iter"
	"math"

	"voxelmap.ai/internal/mathx"
	"voxelmap.ai/internal/minimap/atlas"
)

// Lerp interpolates between the previous and current tick's value.
func Lerp(prev, cur, partial float64) float64 {
	return prev + (cur-prev)*partial
}

// ObserverChunk is the chunk containing world position (x, z).
func ObserverChunk(x, z float64) (cx, cz int) {
	return mathx.FloorInt(x) >> 4, mathx.FloorInt(z) >> 4
}

// Observer holds the last two ticks of observer state.
type Observer struct {
	PrevX, PrevZ, PrevYaw float64
	X, Z, Yaw             float64
}

// Move shifts the current state into the previous slot.
func (o *Observer) Move(x, z, yaw float64) {
	o.PrevX, o.PrevZ, o.PrevYaw = o.X, o.Z, o.Yaw
	o.X, o.Z, o.Yaw = x, z, yaw
}

// Teleport sets both ticks, so there is nothing to interpolate.
func (o *Observer) Teleport(x, z, yaw float64) {
	o.PrevX, o.PrevZ, o.PrevYaw = x, z, yaw
	o.X, o.Z, o.Yaw = x, z, yaw
}

func (o Observer) At(partial float64) (x, z, yaw float64) {
	return Lerp(o.PrevX, o.X, partial), Lerp(o.PrevZ, o.Z, partial), Lerp(o.PrevYaw, o.Yaw, partial)
}

// Clip selects how the map is masked on screen.
type Clip uint8

const (
	// ClipStencil masks with an octagon that rotates with the map.
	ClipStencil Clip = iota
	// ClipScissor masks with a screen-aligned square.
	ClipScissor
)

func (c Clip) String() string {
	if c == ClipScissor {
		return "scissor"
	}
	return "stencil"
}

// WindowRadius is the on-screen radius, in blocks, of the map mask. One
// chunk ring is held back so the mask never shows the unfilled window edge.
func WindowRadius(chunkRadius int) int {
	return (chunkRadius - 1) << 4
}

// ScissorRadius is the half-edge of the largest screen-aligned square that
// fits the rotated window.
func ScissorRadius(chunkRadius int) float64 {
	d := WindowRadius(chunkRadius)
	return math.Sqrt(float64(d * d >> 1))
}

// CardinalDistance keeps a label on the edge of a square mask of the given
// half-edge while the map rotates beneath it.
func CardinalDistance(windowRadius, angle float64) float64 {
	angle = math.Mod(angle, 360)
	if angle < 0 {
		angle += 360
	}
	angle = math.Mod(angle, 90)
	if angle > 45 {
		angle = 90 - angle
	}
	t := math.Tan(angle * math.Pi / 180)
	return math.Sqrt((t*t + 1) * windowRadius * windowRadius)
}

// Source is what a frame is built from; *atlas.Atlas satisfies it.
type Source interface {
	Radius() int
	Handle() uint32
	Tiles() iter.Seq[atlas.Tile]
	Region(offset int) (u, v, w, h float64)
}

// Quad is one tile in camera-relative block space with its surface UVs.
type Quad struct {
	ChunkX int     `json:"cx"`
	ChunkZ int     `json:"cz"`
	Offset int     `json:"offset"`
	MinX   float64 `json:"min_x"`
	MinY   float64 `json:"min_y"`
	MaxX   float64 `json:"max_x"`
	MaxY   float64 `json:"max_y"`
	U0     float64 `json:"u0"`
	V0     float64 `json:"v0"`
	U1     float64 `json:"u1"`
	V1     float64 `json:"v1"`
}

type Label struct {
	Text string  `json:"text"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type Frame struct {
	Handle   uint32  `json:"handle"`
	CamX     float64 `json:"cam_x"`
	CamZ     float64 `json:"cam_z"`
	Yaw      float64 `json:"yaw"`
	Rotation float64 `json:"rotation"` // degrees applied to the tile layer
	Clip     string  `json:"clip"`
	Mask     float64 `json:"mask_radius"`
	Quads    []Quad  `json:"quads"`
	Labels   []Label `json:"labels"`
}

var cardinals = [4]string{"N", "W", "S", "E"}

// Build lays out the frame for a camera at (camX, camZ) facing yaw degrees.
func Build(src Source, camX, camZ, yaw float64, clip Clip) Frame {
	f := Frame{
		Handle:   src.Handle(),
		CamX:     camX,
		CamZ:     camZ,
		Yaw:      yaw,
		Rotation: 180 - yaw,
		Clip:     clip.String(),
	}

	for t := range src.Tiles() {
		u, v, w, h := src.Region(t.Offset)
		x := float64(t.ChunkX<<4) - camX
		y := float64(t.ChunkZ<<4) - camZ
		f.Quads = append(f.Quads, Quad{
			ChunkX: t.ChunkX,
			ChunkZ: t.ChunkZ,
			Offset: t.Offset,
			MinX:   x,
			MinY:   y,
			MaxX:   x + 16,
			MaxY:   y + 16,
			U0:     u,
			V0:     v,
			U1:     u + w,
			V1:     v + h,
		})
	}

	var dist float64
	switch clip {
	case ClipScissor:
		f.Mask = ScissorRadius(src.Radius())
		dist = CardinalDistance(f.Mask+4, yaw)
	default:
		f.Mask = float64(WindowRadius(src.Radius()))
		dist = f.Mask + 4
	}
	for i, c := range cardinals {
		rad := (yaw + float64(i)*90) * math.Pi / 180
		f.Labels = append(f.Labels, Label{
			Text: c,
			X:    dist * math.Sin(rad),
			Y:    dist * math.Cos(rad),
		})
	}
	return f
}
