package turbonerf

import (
	"fmt"
	"math"
)

// DefaultSamplesPerRay is the ray-march sample count used when a request
// does not specify one.
const DefaultSamplesPerRay = 128

// Camera describes the viewpoint of a render request.
type Camera struct {
	// Transform is the row-major 3x4 camera-to-world matrix.
	Transform [12]float32

	// FocalX and FocalY are the focal lengths in pixels.
	FocalX float32
	FocalY float32
}

// RenderRequest describes the work to be rendered.
//
// A request is shared by pointer between the caller and the controller.
// Once accepted by Submit, its fields must not be mutated until the request
// is observed cancelled or superseded; submit a fresh RenderRequest per
// frame instead of reusing one.
type RenderRequest struct {
	// Width and Height are the output dimensions in pixels. One primary
	// ray is traced per pixel, so Width*Height is the request's workload.
	Width  uint32
	Height uint32

	// SamplesPerRay is the number of ray-march samples per primary ray.
	SamplesPerRay uint32

	// Camera is the viewpoint to render from.
	Camera Camera
}

// NewRenderRequest creates a request for a width x height frame with the
// default sample count.
func NewRenderRequest(width, height uint32, cam Camera) *RenderRequest {
	return &RenderRequest{
		Width:         width,
		Height:        height,
		SamplesPerRay: DefaultSamplesPerRay,
		Camera:        cam,
	}
}

// RayCount returns the total number of primary rays in the request.
func (r *RenderRequest) RayCount() uint64 {
	return uint64(r.Width) * uint64(r.Height)
}

// validate reports whether the request can be rendered at all, independent
// of pattern and batch size. Ray indices travel to the device as u32, so a
// request may hold at most MaxUint32 rays.
func (r *RenderRequest) validate() error {
	if r.Width == 0 || r.Height == 0 {
		return fmt.Errorf("%w: empty target %dx%d", ErrInvalidRequest, r.Width, r.Height)
	}
	if r.SamplesPerRay == 0 {
		return fmt.Errorf("%w: zero samples per ray", ErrInvalidRequest)
	}
	if r.RayCount() > math.MaxUint32 {
		return fmt.Errorf("%w: %dx%d target exceeds the %d-ray limit",
			ErrInvalidRequest, r.Width, r.Height, uint64(math.MaxUint32))
	}
	return nil
}
