// Package surface is the raster upload contract between the atlas and
// whatever owns pixel memory (a GPU texture in a windowed client, a plain
// buffer in the headless one).
package surface

import (
	"errors"
	"fmt"
)

// BlockSize is the edge length of one slot block in pixels.
const BlockSize = 16

// Block is one slot's pixels, indexed x | z<<4, packed ARGB.
type Block [BlockSize * BlockSize]uint32

var ErrTooLarge = errors.New("surface exceeds platform limit")

// Platform allocates surfaces and reports the largest edge it supports.
type Platform interface {
	MaxSurfaceSize() int
	Allocate(w, h int) (Surface, error)
}

// Surface is a fixed-size raster that is only ever written one whole block
// at a time.
type Surface interface {
	Handle() uint32
	Size() (w, h int)
	// ReplaceBlock overwrites the 16×16 region whose top-left pixel is (x, y).
	ReplaceBlock(x, y int, px *Block)
	Close() error
}

func checkSize(w, h, limit int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("invalid surface size %dx%d", w, h)
	}
	if w%BlockSize != 0 || h%BlockSize != 0 {
		return fmt.Errorf("surface size %dx%d is not a multiple of %d", w, h, BlockSize)
	}
	if limit > 0 && (w > limit || h > limit) {
		return fmt.Errorf("%w: %dx%d > %d", ErrTooLarge, w, h, limit)
	}
	return nil
}
