package mapcolor

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Block ids used by the default palette and the terrain generator. A block
// state is id<<4 | meta.
const (
	BlockAir          uint16 = 0
	BlockStone        uint16 = 1
	BlockGrass        uint16 = 2
	BlockDirt         uint16 = 3
	BlockCobblestone  uint16 = 4
	BlockPlanks       uint16 = 5
	BlockSapling      uint16 = 6
	BlockBedrock      uint16 = 7
	BlockFlowingWater uint16 = 8
	BlockWater        uint16 = 9
	BlockFlowingLava  uint16 = 10
	BlockLava         uint16 = 11
	BlockSand         uint16 = 12
	BlockGravel       uint16 = 13
	BlockGoldOre      uint16 = 14
	BlockIronOre      uint16 = 15
	BlockCoalOre      uint16 = 16
	BlockLog          uint16 = 17
	BlockLeaves       uint16 = 18
	BlockGlass        uint16 = 20
	BlockSandstone    uint16 = 24
	BlockTallGrass    uint16 = 31
	BlockDeadBush     uint16 = 32
	BlockWool         uint16 = 35
	BlockFlower       uint16 = 37
	BlockRose         uint16 = 38
	BlockTNT          uint16 = 46
	BlockObsidian     uint16 = 49
	BlockTorch        uint16 = 50
	BlockSnowLayer    uint16 = 78
	BlockIce          uint16 = 79
	BlockSnow         uint16 = 80
	BlockCactus       uint16 = 81
	BlockClay         uint16 = 82
	BlockReeds        uint16 = 83
	BlockNetherrack   uint16 = 87
	BlockVine         uint16 = 106
	BlockWaterlily    uint16 = 111
	BlockHardenedClay uint16 = 172
)

func State(id uint16, meta uint8) uint16 { return id<<4 | uint16(meta&0xF) }

func BlockID(state uint16) uint16 { return state >> 4 }

// Palette maps block states to materials. Entries keyed by full state win
// over entries keyed by block id; anything unknown is solid stone.
type Palette struct {
	byID    map[uint16]Material
	byState map[uint16]Material
}

func NewPalette() *Palette {
	return &Palette{
		byID:    map[uint16]Material{},
		byState: map[uint16]Material{},
	}
}

var (
	fallback = Material{Color: Stone, Solid: true}

	sharedOnce    sync.Once
	sharedDefault *Palette
)

// Lookup resolves a state. A nil palette behaves like DefaultPalette.
func (p *Palette) Lookup(state uint16) Material {
	if p == nil {
		sharedOnce.Do(func() { sharedDefault = DefaultPalette() })
		p = sharedDefault
	}
	if m, ok := p.byState[state]; ok {
		return m
	}
	if m, ok := p.byID[state>>4]; ok {
		return m
	}
	return fallback
}

func (p *Palette) SetBlock(id uint16, m Material) { p.byID[id] = m }

func (p *Palette) SetState(state uint16, m Material) { p.byState[state] = m }

func (p *Palette) Len() int { return len(p.byID) + len(p.byState) }

// DefaultPalette covers the common overworld blocks.
func DefaultPalette() *Palette {
	p := NewPalette()
	solid := func(c ID, ids ...uint16) {
		for _, id := range ids {
			p.SetBlock(id, Material{Color: c, Solid: true})
		}
	}
	open := func(c ID, ids ...uint16) {
		for _, id := range ids {
			p.SetBlock(id, Material{Color: c})
		}
	}

	open(Air, BlockAir, BlockTorch, 55, 65, 66, 69, 70, 72, 75, 76, 77)
	solid(Air, BlockGlass, 102)
	solid(Stone, BlockStone, BlockCobblestone, BlockBedrock, BlockGravel, BlockGoldOre, BlockIronOre,
		BlockCoalOre, 21, 43, 44, 48, 56, 61, 62, 67, 73, 74, 98, 129, 139)
	solid(Grass, BlockGrass)
	solid(Dirt, BlockDirt, 60, 99, 100)
	solid(Wood, BlockPlanks, BlockLog, 47, 53, 54, 58, 64, 85, 107, 162)
	open(Foliage, BlockSapling, BlockTallGrass, BlockFlower, BlockRose, 39, 40, 59, 83, BlockVine, BlockWaterlily, 175)
	open(Wood, BlockDeadBush)
	solid(Foliage, BlockLeaves, BlockCactus, 161)
	open(Water, BlockFlowingWater, BlockWater)
	open(TNT, BlockFlowingLava, BlockLava, 51)
	solid(TNT, BlockTNT, 152)
	solid(Sand, BlockSand, BlockSandstone, 89, 121, 128)
	solid(Yellow, 19)
	solid(Cloth, 30)
	solid(Gold, 41)
	solid(Iron, 42)
	solid(Red, 45)
	solid(Black, BlockObsidian, 173)
	solid(Diamond, 57)
	open(Snow, BlockSnowLayer)
	solid(Snow, BlockSnow)
	solid(Ice, BlockIce, 174)
	solid(Clay, BlockClay)
	solid(Adobe, 86, 91, 159, BlockHardenedClay)
	solid(Netherrack, BlockNetherrack, 112)
	solid(Brown, 88)
	solid(Lime, 103)
	solid(Purple, 110)
	solid(Emerald, 133)
	solid(Quartz, 155)
	solid(Lapis, 22)

	wool := [16]ID{Snow, Adobe, Magenta, LightBlue, Yellow, Lime, Pink, Gray, Silver, Cyan, Purple, Blue, Brown, Green, Red, Black}
	for meta, c := range wool {
		p.SetState(State(BlockWool, uint8(meta)), Material{Color: c, Solid: true})
	}
	return p
}

type paletteFile struct {
	Blocks map[string]materialYAML `yaml:"blocks"`
}

type materialYAML struct {
	Color string `yaml:"color"`
	Solid *bool  `yaml:"solid"`
}

// LoadPalette reads overrides from a YAML file on top of DefaultPalette.
// Keys are "id" or "id:meta".
func LoadPalette(path string) (*Palette, error) {
	p := DefaultPalette()
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return nil, err
	}
	if err := p.Merge(b); err != nil {
		return nil, fmt.Errorf("palette %s: %w", path, err)
	}
	return p, nil
}

// Merge applies YAML overrides to the palette.
func (p *Palette) Merge(b []byte) error {
	var f paletteFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return err
	}
	for key, v := range f.Blocks {
		c, err := ParseID(v.Color)
		if err != nil {
			return fmt.Errorf("block %q: %w", key, err)
		}
		m := Material{Color: c, Solid: true}
		if v.Solid != nil {
			m.Solid = *v.Solid
		}
		id, meta, hasMeta, err := parseKey(key)
		if err != nil {
			return err
		}
		if hasMeta {
			p.SetState(State(id, meta), m)
		} else {
			p.SetBlock(id, m)
		}
	}
	return nil
}

func parseKey(key string) (id uint16, meta uint8, hasMeta bool, err error) {
	idPart, metaPart, found := strings.Cut(strings.TrimSpace(key), ":")
	n, err := strconv.ParseUint(idPart, 10, 12)
	if err != nil {
		return 0, 0, false, fmt.Errorf("bad block id %q", key)
	}
	if !found {
		return uint16(n), 0, false, nil
	}
	m, err := strconv.ParseUint(metaPart, 10, 4)
	if err != nil {
		return 0, 0, false, fmt.Errorf("bad block meta %q", key)
	}
	return uint16(n), uint8(m), true, nil
}
