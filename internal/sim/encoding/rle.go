package encoding

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrTooLong = errors.New("encoding: run-length data expands past limit")

// AppendRLE appends ids to dst as uvarint (state, run) pairs.
func AppendRLE(dst []byte, ids []uint16) []byte {
	for i := 0; i < len(ids); {
		state := ids[i]
		j := i + 1
		for j < len(ids) && ids[j] == state {
			j++
		}
		dst = binary.AppendUvarint(dst, uint64(state))
		dst = binary.AppendUvarint(dst, uint64(j-i))
		i = j
	}
	return dst
}

// DecodeRLE expands pairs written by AppendRLE. Feed data is untrusted, so
// expansion stops with ErrTooLong once more than limit ids would be produced.
func DecodeRLE(raw []byte, limit int) ([]uint16, error) {
	var out []uint16
	for i := 0; i < len(raw); {
		state, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("encoding: bad state varint at byte %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("encoding: bad run varint at byte %d", i)
		}
		i += n
		if state > 0xFFFF {
			return nil, fmt.Errorf("encoding: block state %d out of range", state)
		}
		if run == 0 {
			return nil, fmt.Errorf("encoding: empty run at byte %d", i)
		}
		if run > uint64(limit-len(out)) {
			return nil, ErrTooLong
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(state))
		}
	}
	return out, nil
}
