package gen

import (
	"voxelmap.ai/internal/mathx"
	mc "voxelmap.ai/internal/minimap/mapcolor"
	"voxelmap.ai/internal/sim/terrain/store"
)

type Config struct {
	Seed            int64 `yaml:"seed"`
	SeaLevel        int   `yaml:"sea_level"`
	BaseHeight      int   `yaml:"base_height"`
	Amplitude       int   `yaml:"amplitude"`
	BiomeRegionSize int   `yaml:"biome_region_size"`
	SnowLine        int   `yaml:"snow_line"`
}

func DefaultConfig(seed int64) Config {
	return Config{
		Seed:            seed,
		SeaLevel:        62,
		BaseHeight:      58,
		Amplitude:       28,
		BiomeRegionSize: 160,
		SnowLine:        84,
	}
}

// Terrain is a deterministic height-map world with water below sea level.
type Terrain struct {
	cfg Config
}

var _ store.Generator = (*Terrain)(nil)

func New(cfg Config) *Terrain {
	if cfg.SeaLevel <= 0 {
		cfg.SeaLevel = 62
	}
	if cfg.BiomeRegionSize <= 0 {
		cfg.BiomeRegionSize = 160
	}
	return &Terrain{cfg: cfg}
}

func (t *Terrain) Config() Config { return t.cfg }

// HeightAt is the y of the top ground block at world (x, z).
func (t *Terrain) HeightAt(x, z int) int {
	n := valueNoise(t.cfg.Seed, x, z, 64)*0.7 + valueNoise(t.cfg.Seed+17, x, z, 16)*0.3
	h := t.cfg.BaseHeight + int(float64(t.cfg.Amplitude)*(n*2-1))
	if h < 1 {
		h = 1
	}
	if h > store.Height-8 {
		h = store.Height - 8
	}
	return h
}

func (t *Terrain) BiomeAt(x, z int) string {
	return BiomeAt(t.cfg.Seed+5, x, z, t.cfg.BiomeRegionSize)
}

func (t *Terrain) Generate(ch *store.Chunk) {
	var heights [16][16]int
	for z := 0; z < 16; z++ {
		for x := 0; x < 16; x++ {
			wx := ch.CX*16 + x
			wz := ch.CZ*16 + z
			h := t.HeightAt(wx, wz)
			heights[x][z] = h
			t.fillColumn(ch, x, z, h, t.BiomeAt(wx, wz))
		}
	}
	t.decorate(ch, &heights)
}

func (t *Terrain) fillColumn(ch *store.Chunk, x, z, h int, biome string) {
	sea := t.cfg.SeaLevel
	top, filler := mc.State(mc.BlockGrass, 0), mc.State(mc.BlockDirt, 0)
	switch {
	case biome == BiomeDesert:
		top, filler = mc.State(mc.BlockSand, 0), mc.State(mc.BlockSandstone, 0)
	case h <= sea+1:
		top, filler = mc.State(mc.BlockSand, 0), mc.State(mc.BlockSand, 0)
	case t.cfg.SnowLine > 0 && h >= t.cfg.SnowLine:
		top = mc.State(mc.BlockSnow, 0)
	}

	ch.Set(x, 0, z, mc.State(mc.BlockBedrock, 0))
	for y := 1; y < h; y++ {
		b := mc.State(mc.BlockStone, 0)
		if y >= h-3 {
			b = filler
		}
		ch.Set(x, y, z, b)
	}
	ch.Set(x, h, z, top)
	for y := h + 1; y <= sea; y++ {
		ch.Set(x, y, z, mc.State(mc.BlockWater, 0))
	}
}

// decorate places plants and trees fully inside the chunk so generation
// never depends on a neighbour.
func (t *Terrain) decorate(ch *store.Chunk, heights *[16][16]int) {
	for z := 1; z < 15; z++ {
		for x := 1; x < 15; x++ {
			h := heights[x][z]
			if h <= t.cfg.SeaLevel {
				continue
			}
			wx := ch.CX*16 + x
			wz := ch.CZ*16 + z
			roll := mathx.Hash2(t.cfg.Seed+999, wx, wz) % 1000
			switch t.BiomeAt(wx, wz) {
			case BiomeForest:
				switch {
				case roll < 12 && x >= 2 && x < 14 && z >= 2 && z < 14:
					placeTree(ch, x, h+1, z)
				case roll < 200:
					setIfAir(ch, x, h+1, z, mc.State(mc.BlockTallGrass, 1))
				}
			case BiomeDesert:
				switch {
				case roll < 6:
					setIfAir(ch, x, h+1, z, mc.State(mc.BlockCactus, 0))
					setIfAir(ch, x, h+2, z, mc.State(mc.BlockCactus, 0))
				case roll < 14:
					setIfAir(ch, x, h+1, z, mc.State(mc.BlockDeadBush, 0))
				}
			default:
				switch {
				case roll < 120:
					setIfAir(ch, x, h+1, z, mc.State(mc.BlockTallGrass, 1))
				case roll < 135:
					setIfAir(ch, x, h+1, z, mc.State(mc.BlockFlower, 0))
				}
			}
		}
	}
}

func placeTree(ch *store.Chunk, x, y, z int) {
	for dy := 3; dy <= 5; dy++ {
		r := 2
		if dy == 5 {
			r = 1
		}
		for dz := -r; dz <= r; dz++ {
			for dx := -r; dx <= r; dx++ {
				setIfAir(ch, x+dx, y+dy, z+dz, mc.State(mc.BlockLeaves, 0))
			}
		}
	}
	for dy := 0; dy < 5; dy++ {
		ch.Set(x, y+dy, z, mc.State(mc.BlockLog, 0))
	}
}

func setIfAir(ch *store.Chunk, x, y, z int, b uint16) {
	if ch.Get(x, y, z) == 0 {
		ch.Set(x, y, z, b)
	}
}
