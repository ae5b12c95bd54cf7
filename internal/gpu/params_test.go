package gpu

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gogpu/turbonerf"
)

func TestKernelParamsEncoding(t *testing.T) {
	req := turbonerf.NewRenderRequest(1920, 1080, turbonerf.Camera{
		Transform: [12]float32{1, 0, 0, 0.5, 0, 1, 0, -1.5, 0, 0, 1, 4},
		FocalX:    1111.1,
		FocalY:    1111.1,
	})

	p := newKernelParams(req)
	p.RayBase = 262144
	p.RayCount = 4096
	raw := p.toBytes()

	if len(raw) != paramsEncodedBytes {
		t.Fatalf("encoded %d bytes, want %d", len(raw), paramsEncodedBytes)
	}
	if len(raw)%16 != 0 {
		t.Errorf("encoded size %d is not 16-byte aligned", len(raw))
	}

	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(raw[off:]) }
	f32 := func(off int) float32 { return math.Float32frombits(u32(off)) }

	// Layout mirrors the Params struct in the shader: 3 vec4 transform rows,
	// vec2 focal, then the u32 block.
	if got := f32(3 * 4); got != 0.5 {
		t.Errorf("transform row 0 w = %v, want 0.5", got)
	}
	if got := f32(12 * 4); got != float32(1111.1) {
		t.Errorf("focal x = %v, want 1111.1", got)
	}
	if got := u32(14 * 4); got != 1920 {
		t.Errorf("width = %d, want 1920", got)
	}
	if got := u32(15 * 4); got != 1080 {
		t.Errorf("height = %d, want 1080", got)
	}
	if got := u32(16 * 4); got != turbonerf.DefaultSamplesPerRay {
		t.Errorf("samples = %d, want %d", got, turbonerf.DefaultSamplesPerRay)
	}
	if got := u32(17 * 4); got != 262144 {
		t.Errorf("ray base = %d, want 262144", got)
	}
	if got := u32(18 * 4); got != 4096 {
		t.Errorf("ray count = %d, want 4096", got)
	}
}
