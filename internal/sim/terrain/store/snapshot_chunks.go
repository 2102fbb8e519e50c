package store

import (
	"encoding/hex"
	"fmt"

	snapv1 "voxelmap.ai/internal/persistence/snapshot"
	"voxelmap.ai/internal/sim/encoding"
)

// ExportLoadedChunks converts loaded chunk data into snapshot chunks.
func ExportLoadedChunks(chunks map[ChunkKey]*Chunk, keys []ChunkKey) []snapv1.ChunkV1 {
	out := make([]snapv1.ChunkV1, 0, len(keys))
	for _, k := range keys {
		ch := chunks[k]
		if ch == nil {
			continue
		}
		mask, data := encoding.EncodeSections(ch.SectionStates())
		d := ch.Digest()
		out = append(out, snapv1.ChunkV1{
			CX:     k.CX,
			CZ:     k.CZ,
			Mask:   mask,
			Data:   data,
			Digest: hex.EncodeToString(d[:]),
		})
	}
	return out
}

// ImportChunks rebuilds a chunk store from snapshot chunks. A chunk whose
// decoded contents do not match its recorded digest is rejected.
func ImportChunks(gen Generator, chunks []snapv1.ChunkV1) (*ChunkStore, error) {
	store := NewChunkStore(gen)
	for _, sc := range chunks {
		sections, err := encoding.DecodeSections(sc.Mask, sc.Data)
		if err != nil {
			return nil, fmt.Errorf("snapshot chunk (%d,%d): %w", sc.CX, sc.CZ, err)
		}
		c := NewChunk(sc.CX, sc.CZ)
		c.SetSections(sections)
		if sc.Digest != "" {
			d := c.Digest()
			if got := hex.EncodeToString(d[:]); got != sc.Digest {
				return nil, fmt.Errorf("snapshot chunk (%d,%d) digest mismatch", sc.CX, sc.CZ)
			}
		}
		store.Load(c)
	}
	return store, nil
}
