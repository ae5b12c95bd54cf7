package gpu

import (
	"encoding/binary"
	"testing"

	"github.com/gogpu/turbonerf"
)

func TestExpandSpans(t *testing.T) {
	raw := expandSpans([]turbonerf.Span{
		{Start: 10, Count: 3},
		{Start: 100, Count: 2},
	})

	want := []uint32{10, 11, 12, 100, 101}
	if len(raw) != len(want)*4 {
		t.Fatalf("encoded %d bytes, want %d", len(raw), len(want)*4)
	}
	for i, w := range want {
		if got := binary.LittleEndian.Uint32(raw[i*4:]); got != w {
			t.Errorf("index %d = %d, want %d", i, got, w)
		}
	}
}

func TestExpandSpansEmpty(t *testing.T) {
	if got := expandSpans(nil); len(got) != 0 {
		t.Errorf("expandSpans(nil) produced %d bytes", len(got))
	}
}
