package atlas

import "voxelmap.ai/internal/minimap/mapcolor"

// computeColors fills a.pixels with the shaded map colors of chunk (cx, cz).
//
// Each column is shaded against the column to its north: darker when the
// north column is higher, lighter when it is lower. The first row compares
// against row 15 of the chunk to the north when that chunk is loaded and
// resident; otherwise it has no reference and is drawn flat. Columns topped
// by a non-solid block are shaded by how deep the non-solid run goes,
// dithered in a checker pattern.
func (a *Atlas) computeColors(cx, cz int, col Column) {
	for i := range a.north {
		a.north[i] = -1
	}
	if _, resident := a.index[ChunkPos{X: cx, Z: cz - 1}]; resident {
		if north, ok := a.world.LoadedChunk(cx, cz-1); ok {
			for x := 0; x < 16; x++ {
				a.north[x] = topColored(north, x, 15)
			}
		}
	}

	for x := 0; x < 16; x++ {
		northHeight := a.north[x]

		for z := 0; z < 16; z++ {
			height := topColored(col, x, z)
			m := col.Material(x, height, z)

			shade := mapcolor.Normal
			if northHeight > height {
				shade = mapcolor.Dark
			} else if northHeight >= 0 && northHeight < height {
				shade = mapcolor.Light
			}

			depth := 0
			for y, cur := height, m; y >= 0 && !cur.Solid; depth++ {
				y--
				cur = col.Material(x, y, z)
			}
			if depth > 0 {
				dither := depth + (((x ^ z) & 1) << 1)
				if dither < 5 {
					shade = mapcolor.Light
				} else if dither > 9 {
					shade = mapcolor.Dark
				}
			}

			var argb uint32
			switch {
			case height > 0:
				argb = m.Color.Shaded(shade)
			case (x^z)&3 == 0:
				argb = mapcolor.VoidLight
			default:
				argb = mapcolor.VoidDark
			}

			northHeight = height
			a.pixels[x|z<<4] = argb
		}
	}
}

// topColored returns the y of the highest block in column (x, z) whose map
// color is not transparent, or 0 if there is none.
func topColored(col Column, x, z int) int {
	y := col.TopFilledSegment() + 15
	for ; y > 0; y-- {
		if !col.Material(x, y, z).Color.Transparent() {
			break
		}
	}
	return y
}
