package gpu

import (
	"encoding/binary"

	"github.com/gogpu/turbonerf"
)

// expandSpans flattens a task's span list into the little-endian u32 ray
// index table uploaded to the device. Entry i is the frame-global ray index
// of the task's i-th ray, so the kernel indexes the table by dispatch slot.
// Indices fit in u32 because request validation caps a request at
// MaxUint32 rays.
func expandSpans(spans []turbonerf.Span) []byte {
	var total uint64
	for _, s := range spans {
		total += s.Count
	}
	buf := make([]byte, total*rayIndexBytes)
	off := 0
	for _, s := range spans {
		for r := s.Start; r < s.End(); r++ {
			binary.LittleEndian.PutUint32(buf[off:], uint32(r))
			off += 4
		}
	}
	return buf
}
