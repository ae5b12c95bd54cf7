package gpu

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/turbonerf"
)

// kernelParams is the raymarch kernel's uniform block.
// Must match the Params struct in shaders/raymarch.wgsl exactly.
type kernelParams struct {
	// Transform is the row-major 3x4 camera-to-world matrix, uploaded as
	// three vec4<f32> rows.
	Transform [12]float32

	// FocalX, FocalY are the focal lengths in pixels.
	FocalX float32
	FocalY float32

	// Width, Height are the frame dimensions.
	Width  uint32
	Height uint32

	// SamplesPerRay is the march sample count.
	SamplesPerRay uint32

	// RayBase is the offset into the ray-index buffer for this dispatch.
	RayBase uint32

	// RayCount is the number of rays covered by this dispatch.
	RayCount uint32

	// Pad aligns the struct to a 16-byte boundary.
	Pad uint32
}

// paramsEncodedBytes is the wire size of kernelParams.
const paramsEncodedBytes = 12*4 + 2*4 + 6*4

// newKernelParams builds the uniform block for one task of req.
func newKernelParams(req *turbonerf.RenderRequest) kernelParams {
	return kernelParams{
		Transform:     req.Camera.Transform,
		FocalX:        req.Camera.FocalX,
		FocalY:        req.Camera.FocalY,
		Width:         req.Width,
		Height:        req.Height,
		SamplesPerRay: req.SamplesPerRay,
	}
}

// toBytes encodes the params little-endian for queue upload.
func (p kernelParams) toBytes() []byte {
	buf := make([]byte, paramsEncodedBytes)
	off := 0
	putF32 := func(v float32) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}
	putU32 := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[off:], v)
		off += 4
	}

	for _, v := range p.Transform {
		putF32(v)
	}
	putF32(p.FocalX)
	putF32(p.FocalY)
	putU32(p.Width)
	putU32(p.Height)
	putU32(p.SamplesPerRay)
	putU32(p.RayBase)
	putU32(p.RayCount)
	putU32(p.Pad)
	return buf
}
