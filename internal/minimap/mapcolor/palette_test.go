package mapcolor

import (
	"os"
	"path/filepath"
	"testing"
)

func TestShadedMultipliers(t *testing.T) {
	// 0xFFFFFF scaled by 180/220/255.
	if got := Snow.Shaded(Dark); got != 0xFFB4B4B4 {
		t.Fatalf("dark snow: got %#x", got)
	}
	if got := Snow.Shaded(Normal); got != 0xFFDCDCDC {
		t.Fatalf("normal snow: got %#x", got)
	}
	if got := Snow.Shaded(Light); got != 0xFFFFFFFF {
		t.Fatalf("light snow: got %#x", got)
	}
	if got := Air.Shaded(Light); got != 0 {
		t.Fatalf("air must be transparent, got %#x", got)
	}
	// 0x7F * 220 / 255 = 109 (0x6D)
	if got := Grass.Shaded(Normal) >> 16 & 0xFF; got != 0x6D {
		t.Fatalf("grass red channel: got %#x", got)
	}
}

func TestParseID(t *testing.T) {
	id, err := ParseID("lightBlue")
	if err != nil || id != LightBlue {
		t.Fatalf("ParseID: id=%v err=%v", id, err)
	}
	if _, err := ParseID("mauve"); err == nil {
		t.Fatalf("expected error for unknown color")
	}
}

func TestDefaultPaletteLookup(t *testing.T) {
	p := DefaultPalette()
	if m := p.Lookup(State(BlockWater, 0)); m.Color != Water || m.Solid {
		t.Fatalf("water: %+v", m)
	}
	if m := p.Lookup(State(BlockGrass, 0)); m.Color != Grass || !m.Solid {
		t.Fatalf("grass: %+v", m)
	}
	if m := p.Lookup(State(BlockWool, 14)); m.Color != Red {
		t.Fatalf("red wool: %+v", m)
	}
	if m := p.Lookup(State(BlockAir, 0)); !m.Color.Transparent() || m.Solid {
		t.Fatalf("air: %+v", m)
	}
	// Unknown ids fall back to solid stone.
	if m := p.Lookup(State(4000, 0)); m.Color != Stone || !m.Solid {
		t.Fatalf("fallback: %+v", m)
	}
}

func TestLoadPaletteOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "palette.yaml")
	body := []byte("blocks:\n  \"1\": {color: red}\n  \"9\": {color: ice, solid: true}\n  \"35:3\": {color: cyan}\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, err := LoadPalette(path)
	if err != nil {
		t.Fatalf("LoadPalette: %v", err)
	}
	if m := p.Lookup(State(BlockStone, 0)); m.Color != Red || !m.Solid {
		t.Fatalf("stone override: %+v", m)
	}
	if m := p.Lookup(State(BlockWater, 0)); m.Color != Ice || !m.Solid {
		t.Fatalf("water override: %+v", m)
	}
	if m := p.Lookup(State(BlockWool, 3)); m.Color != Cyan {
		t.Fatalf("wool override: %+v", m)
	}
	if m := p.Lookup(State(BlockGrass, 0)); m.Color != Grass {
		t.Fatalf("defaults lost: %+v", m)
	}
}

func TestLoadPaletteMissingFileUsesDefaults(t *testing.T) {
	p, err := LoadPalette(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadPalette: %v", err)
	}
	if p.Len() == 0 {
		t.Fatalf("expected default entries")
	}
}

func TestLoadPaletteRejectsUnknownColor(t *testing.T) {
	p := NewPalette()
	if err := p.Merge([]byte("blocks:\n  \"1\": {color: mauve}\n")); err == nil {
		t.Fatalf("expected error")
	}
	if err := p.Merge([]byte("blocks:\n  \"x\": {color: red}\n")); err == nil {
		t.Fatalf("expected error for bad key")
	}
}
