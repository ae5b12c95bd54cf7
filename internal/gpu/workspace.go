//go:build !nogpu

package gpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/turbonerf"
	"github.com/gogpu/wgpu/hal"
)

// workspace holds the device buffers for exactly one task. It implements
// turbonerf.Workspace.
type workspace struct {
	eng  *Engine
	size uint64

	// rayIndex is the uploaded u32 ray index table, one entry per ray.
	rayIndex hal.Buffer

	// scratch is the per-ray march state, written only on the device.
	scratch hal.Buffer

	// radiance is the per-ray rgba output.
	radiance hal.Buffer

	// params is the kernel uniform block, rewritten per dispatch batch.
	params hal.Buffer

	releaseOnce sync.Once
}

// newWorkspace reserves budget and allocates the task's buffers. On any
// failure, everything allocated so far is destroyed and the budget is
// returned, so no partial allocation outlives the error.
func (e *Engine) newWorkspace(task turbonerf.RenderTask) (*workspace, error) {
	size := workspaceBytes(task.Rays)
	if err := e.budget.reserve(size); err != nil {
		return nil, err
	}

	w := &workspace{eng: e, size: size}

	specs := []struct {
		target *hal.Buffer
		label  string
		bytes  uint64
		usage  gputypes.BufferUsage
	}{
		{&w.rayIndex, "nerf_ray_index", align4(task.Rays * rayIndexBytes),
			gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst},
		{&w.scratch, "nerf_ray_scratch", align4(task.Rays * rayScratchBytes),
			gputypes.BufferUsageStorage},
		{&w.radiance, "nerf_radiance", align4(task.Rays * radianceBytes),
			gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc},
		{&w.params, "nerf_params", paramsBufferBytes,
			gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst},
	}

	for _, s := range specs {
		buf, err := e.device.CreateBuffer(&hal.BufferDescriptor{
			Label: s.label,
			Size:  s.bytes,
			Usage: s.usage,
		})
		if err != nil {
			w.destroyBuffers()
			e.budget.release(size)
			return nil, fmt.Errorf("%w: create %s (%d bytes): %w",
				turbonerf.ErrResourceExhausted, s.label, s.bytes, err)
		}
		*s.target = buf
	}

	slogger().Debug("workspace allocated", "rays", task.Rays, "bytes", size)
	return w, nil
}

// Size returns the workspace size in bytes.
func (w *workspace) Size() uint64 { return w.size }

// Release destroys the buffers and returns the memory to the budget.
// Safe to call more than once.
func (w *workspace) Release() {
	w.releaseOnce.Do(func() {
		w.destroyBuffers()
		w.eng.budget.release(w.size)
	})
}

// destroyBuffers frees whichever buffers have been created.
func (w *workspace) destroyBuffers() {
	for _, buf := range []hal.Buffer{w.rayIndex, w.scratch, w.radiance, w.params} {
		if buf != nil {
			w.eng.device.DestroyBuffer(buf)
		}
	}
	w.rayIndex, w.scratch, w.radiance, w.params = nil, nil, nil, nil
}
