package encoding

import (
	"encoding/base64"
	"fmt"
)

const (
	sectionCount  = 16
	sectionVolume = 4096
)

// EncodeSections packs a column's sections into a presence mask and one
// base64 RLE stream. Bit i of the mask is set when section i is present; the stream
// holds the present sections back to back, lowest first.
func EncodeSections(sections [][]uint16) (mask uint16, data string) {
	all := make([]uint16, 0, sectionVolume*2)
	for i := 0; i < sectionCount && i < len(sections); i++ {
		s := sections[i]
		if len(s) == 0 {
			continue
		}
		mask |= 1 << i
		if len(s) >= sectionVolume {
			all = append(all, s[:sectionVolume]...)
			continue
		}
		// short sections are padded with air
		all = append(all, s...)
		all = append(all, make([]uint16, sectionVolume-len(s))...)
	}
	return mask, base64.StdEncoding.EncodeToString(AppendRLE(nil, all))
}

func DecodeSections(mask uint16, data string) ([][]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("encoding: %w", err)
	}
	present := 0
	for m := mask; m != 0; m &= m - 1 {
		present++
	}
	ids, err := DecodeRLE(raw, present*sectionVolume)
	if err != nil {
		return nil, err
	}
	if len(ids) != present*sectionVolume {
		return nil, fmt.Errorf("section data length %d, want %d for mask %#04x", len(ids), present*sectionVolume, mask)
	}
	out := make([][]uint16, sectionCount)
	off := 0
	for i := 0; i < sectionCount; i++ {
		if mask&(1<<i) == 0 {
			continue
		}
		out[i] = ids[off : off+sectionVolume : off+sectionVolume]
		off += sectionVolume
	}
	return out, nil
}
