// Package mapcolor holds the fixed map color table and the block → material
// palette the atlas colors chunks with.
package mapcolor

import "fmt"

// ID indexes the map color table. ID 0 is transparent.
type ID uint8

const (
	Air ID = iota
	Grass
	Sand
	Cloth
	TNT
	Ice
	Iron
	Foliage
	Snow
	Clay
	Dirt
	Stone
	Water
	Wood
	Quartz
	Adobe
	Magenta
	LightBlue
	Yellow
	Lime
	Pink
	Gray
	Silver
	Cyan
	Purple
	Blue
	Brown
	Green
	Red
	Black
	Gold
	Diamond
	Lapis
	Emerald
	Obsidian
	Netherrack

	numColors
)

var baseRGB = [numColors]uint32{
	Air:        0x000000,
	Grass:      0x7FB238,
	Sand:       0xF7E9A3,
	Cloth:      0xC7C7C7,
	TNT:        0xFF0000,
	Ice:        0xA0A0FF,
	Iron:       0xA7A7A7,
	Foliage:    0x007C00,
	Snow:       0xFFFFFF,
	Clay:       0xA4A8B8,
	Dirt:       0x976D4D,
	Stone:      0x707070,
	Water:      0x4040FF,
	Wood:       0x8F7748,
	Quartz:     0xFFFCF5,
	Adobe:      0xD87F33,
	Magenta:    0xB24CD8,
	LightBlue:  0x6699D8,
	Yellow:     0xE5E533,
	Lime:       0x7FCC19,
	Pink:       0xF27FA5,
	Gray:       0x4C4C4C,
	Silver:     0x999999,
	Cyan:       0x4C7F99,
	Purple:     0x7F3FB2,
	Blue:       0x334CB2,
	Brown:      0x664C33,
	Green:      0x667F33,
	Red:        0x993333,
	Black:      0x191919,
	Gold:       0xFAEE4D,
	Diamond:    0x5CDBD5,
	Lapis:      0x4A80FF,
	Emerald:    0x00D93A,
	Obsidian:   0x815631,
	Netherrack: 0x700200,
}

var names = [numColors]string{
	"air", "grass", "sand", "cloth", "tnt", "ice", "iron", "foliage", "snow", "clay",
	"dirt", "stone", "water", "wood", "quartz", "adobe", "magenta", "lightBlue", "yellow",
	"lime", "pink", "gray", "silver", "cyan", "purple", "blue", "brown", "green", "red",
	"black", "gold", "diamond", "lapis", "emerald", "obsidian", "netherrack",
}

// Void colors fill columns with no colored block.
const (
	VoidLight uint32 = 0xFF2D2D5A
	VoidDark  uint32 = 0xFF1E1E3C
)

// Shade selects the brightness a column is drawn with.
type Shade uint8

const (
	Dark Shade = iota
	Normal
	Light
	Darkest
)

var multipliers = [...]uint32{Dark: 180, Normal: 220, Light: 255, Darkest: 135}

func (s Shade) String() string {
	switch s {
	case Dark:
		return "dark"
	case Normal:
		return "normal"
	case Light:
		return "light"
	case Darkest:
		return "darkest"
	default:
		return fmt.Sprintf("shade(%d)", uint8(s))
	}
}

func (id ID) Valid() bool { return id < numColors }

func (id ID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("color(%d)", uint8(id))
	}
	return names[id]
}

// Transparent reports whether the column scan should look past this color.
func (id ID) Transparent() bool { return id == Air }

// RGB is the unshaded 0xRRGGBB value.
func (id ID) RGB() uint32 {
	if !id.Valid() {
		return 0
	}
	return baseRGB[id]
}

// Shaded returns the opaque ARGB value of the color at the given brightness.
// Air is fully transparent regardless of shade.
func (id ID) Shaded(s Shade) uint32 {
	if id == Air || !id.Valid() {
		return 0
	}
	m := multipliers[Normal]
	if int(s) < len(multipliers) {
		m = multipliers[s]
	}
	rgb := baseRGB[id]
	r := (rgb >> 16 & 0xFF) * m / 255
	g := (rgb >> 8 & 0xFF) * m / 255
	b := (rgb & 0xFF) * m / 255
	return 0xFF000000 | r<<16 | g<<8 | b
}

// ParseID resolves a color by name.
func ParseID(name string) (ID, error) {
	for i, n := range names {
		if n == name {
			return ID(i), nil
		}
	}
	return 0, fmt.Errorf("unknown map color %q", name)
}

// Material is the part of a block the map cares about.
type Material struct {
	Color ID
	Solid bool
}
