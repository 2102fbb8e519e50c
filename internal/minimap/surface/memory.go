package surface

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"sync/atomic"
)

// MemoryPlatform hands out CPU-side surfaces. The headless client and the
// replay tool render into these.
type MemoryPlatform struct {
	limit int
	next  atomic.Uint32
	last  atomic.Pointer[Memory]
}

func NewMemoryPlatform(limit int) *MemoryPlatform {
	return &MemoryPlatform{limit: limit}
}

func (p *MemoryPlatform) MaxSurfaceSize() int { return p.limit }

func (p *MemoryPlatform) Allocate(w, h int) (Surface, error) {
	if err := checkSize(w, h, p.limit); err != nil {
		return nil, err
	}
	m := &Memory{
		handle: p.next.Add(1),
		w:      w,
		h:      h,
		pix:    make([]uint32, w*h),
	}
	p.last.Store(m)
	return m, nil
}

// Last is the most recently allocated surface, or nil. Safe from any
// goroutine.
func (p *MemoryPlatform) Last() *Memory { return p.last.Load() }

type Memory struct {
	handle uint32
	w, h   int

	mu     sync.RWMutex
	pix    []uint32
	closed bool
	writes uint64
}

func (m *Memory) Handle() uint32 { return m.handle }

func (m *Memory) Size() (int, int) { return m.w, m.h }

func (m *Memory) ReplaceBlock(x, y int, px *Block) {
	if px == nil || x < 0 || y < 0 || x+BlockSize > m.w || y+BlockSize > m.h {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for z := 0; z < BlockSize; z++ {
		row := (y+z)*m.w + x
		copy(m.pix[row:row+BlockSize], px[z<<4:z<<4+BlockSize])
	}
	m.writes++
}

// Writes counts ReplaceBlock calls that reached the buffer.
func (m *Memory) Writes() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Pixel returns the packed ARGB value at (x, y), or 0 outside the surface.
func (m *Memory) Pixel(x, y int) uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed || x < 0 || y < 0 || x >= m.w || y >= m.h {
		return 0
	}
	return m.pix[y*m.w+x]
}

// Image copies the surface into an NRGBA image. A closed surface yields an
// empty image.
func (m *Memory) Image() *image.NRGBA {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return image.NewNRGBA(image.Rect(0, 0, 0, 0))
	}
	img := image.NewNRGBA(image.Rect(0, 0, m.w, m.h))
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			v := m.pix[y*m.w+x]
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(v >> 16),
				G: uint8(v >> 8),
				B: uint8(v),
				A: uint8(v >> 24),
			})
		}
	}
	return img
}

func (m *Memory) WritePNG(w io.Writer) error {
	return png.Encode(w, m.Image())
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.pix = nil
	return nil
}
