package store

import (
	"crypto/sha256"
	"encoding/binary"
)

const (
	SectionCount  = 16
	SectionVolume = 16 * 16 * 16
	Height        = SectionCount * 16
)

type ChunkKey struct {
	CX int
	CZ int
}

// Section is a 16×16×16 cube of block states indexed y<<8 | z<<4 | x.
type Section struct {
	Blocks [SectionVolume]uint16
	nonAir int
}

// Chunk is a full-height column. Sections that hold only air are nil.
type Chunk struct {
	CX, CZ   int
	Sections [SectionCount]*Section

	dirty bool
	hash  [32]byte
}

func NewChunk(cx, cz int) *Chunk {
	return &Chunk{CX: cx, CZ: cz, dirty: true}
}

func sectionIndex(x, y, z int) int {
	return (y&15)<<8 | z<<4 | x
}

func inColumn(x, y, z int) bool {
	return x >= 0 && x < 16 && z >= 0 && z < 16 && y >= 0 && y < Height
}

// Get returns the state at a local position; anything outside the column
// is air.
func (c *Chunk) Get(x, y, z int) uint16 {
	if !inColumn(x, y, z) {
		return 0
	}
	s := c.Sections[y>>4]
	if s == nil {
		return 0
	}
	return s.Blocks[sectionIndex(x, y, z)]
}

func (c *Chunk) Set(x, y, z int, b uint16) {
	if !inColumn(x, y, z) {
		return
	}
	s := c.Sections[y>>4]
	if s == nil {
		if b == 0 {
			return
		}
		s = &Section{}
		c.Sections[y>>4] = s
	}
	i := sectionIndex(x, y, z)
	old := s.Blocks[i]
	if old == b {
		return
	}
	s.Blocks[i] = b
	switch {
	case old == 0:
		s.nonAir++
	case b == 0:
		s.nonAir--
	}
	if s.nonAir == 0 {
		c.Sections[y>>4] = nil
	}
	c.dirty = true
}

// TopFilledSegment is the base y of the highest non-empty section, or 0.
func (c *Chunk) TopFilledSegment() int {
	for i := SectionCount - 1; i >= 0; i-- {
		if c.Sections[i] != nil {
			return i << 4
		}
	}
	return 0
}

func (c *Chunk) Empty() bool {
	for _, s := range c.Sections {
		if s != nil {
			return false
		}
	}
	return true
}

// SectionStates returns the sections as plain slices, nil where empty.
func (c *Chunk) SectionStates() [][]uint16 {
	out := make([][]uint16, SectionCount)
	for i, s := range c.Sections {
		if s == nil {
			continue
		}
		b := make([]uint16, SectionVolume)
		copy(b, s.Blocks[:])
		out[i] = b
	}
	return out
}

// SetSections replaces the column contents. Short or missing sections are
// treated as air.
func (c *Chunk) SetSections(sections [][]uint16) {
	for i := range c.Sections {
		c.Sections[i] = nil
		if i >= len(sections) || len(sections[i]) == 0 {
			continue
		}
		s := &Section{}
		n := copy(s.Blocks[:], sections[i])
		for _, b := range s.Blocks[:n] {
			if b != 0 {
				s.nonAir++
			}
		}
		if s.nonAir > 0 {
			c.Sections[i] = s
		}
	}
	c.dirty = true
}

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [2]byte
		for i, s := range c.Sections {
			if s == nil {
				continue
			}
			h.Write([]byte{byte(i)})
			for _, v := range s.Blocks {
				binary.LittleEndian.PutUint16(tmp[:], v)
				h.Write(tmp[:])
			}
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

// Generator fills a freshly created chunk.
type Generator interface {
	Generate(ch *Chunk)
}

// ChunkStore holds the loaded columns of one world. It is not safe for
// concurrent use; the client loop owns it.
type ChunkStore struct {
	Gen    Generator
	Chunks map[ChunkKey]*Chunk
}

func NewChunkStore(gen Generator) *ChunkStore {
	return &ChunkStore{
		Gen:    gen,
		Chunks: map[ChunkKey]*Chunk{},
	}
}
