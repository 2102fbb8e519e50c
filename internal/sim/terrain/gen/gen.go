package gen

import "voxelmap.ai/internal/mathx"

const (
	BiomePlains = "PLAINS"
	BiomeForest = "FOREST"
	BiomeDesert = "DESERT"
)

func BiomeFrom(noise uint64) string {
	switch noise % 3 {
	case 0:
		return BiomePlains
	case 1:
		return BiomeForest
	default:
		return BiomeDesert
	}
}

func BiomeAt(seed int64, x, z, regionSize int) string {
	if regionSize <= 0 {
		regionSize = 1
	}
	rx := mathx.FloorDiv(x, regionSize)
	rz := mathx.FloorDiv(z, regionSize)
	return BiomeFrom(mathx.Hash2(seed, rx, rz))
}

// InCluster reports whether (x, z) falls within radius of a cluster centre.
// One candidate centre is placed per grid cell with probability
// probPermille/1000.
func InCluster(seed int64, x, z, grid, radius int, probPermille uint64) bool {
	if grid <= 0 || radius <= 0 || probPermille == 0 {
		return false
	}
	gx := mathx.FloorDiv(x, grid)
	gz := mathx.FloorDiv(z, grid)
	r2 := radius * radius

	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			cgx := gx + dx
			cgz := gz + dz
			h := mathx.Hash2(seed, cgx, cgz)
			if h%1000 >= probPermille {
				continue
			}

			ox := int((h >> 10) % uint64(grid))
			oz := int((h >> 20) % uint64(grid))
			cx := cgx*grid + ox
			cz := cgz*grid + oz

			ddx := x - cx
			ddz := z - cz
			if ddx*ddx+ddz*ddz <= r2 {
				return true
			}
		}
	}
	return false
}

// valueNoise is bilinearly interpolated lattice noise in [0, 1).
func valueNoise(seed int64, x, z, cell int) float64 {
	gx := mathx.FloorDiv(x, cell)
	gz := mathx.FloorDiv(z, cell)
	fx := float64(mathx.Mod(x, cell)) / float64(cell)
	fz := float64(mathx.Mod(z, cell)) / float64(cell)
	fx = fx * fx * (3 - 2*fx)
	fz = fz * fz * (3 - 2*fz)

	v00 := mathx.Unit(mathx.Hash2(seed, gx, gz))
	v10 := mathx.Unit(mathx.Hash2(seed, gx+1, gz))
	v01 := mathx.Unit(mathx.Hash2(seed, gx, gz+1))
	v11 := mathx.Unit(mathx.Hash2(seed, gx+1, gz+1))

	a := v00 + (v10-v00)*fx
	b := v01 + (v11-v01)*fx
	return a + (b-a)*fz
}
