// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"context"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/turbonerf"
	"github.com/gogpu/wgpu/hal"
)

const (
	// workgroupSize must match @workgroup_size in shaders/raymarch.wgsl.
	workgroupSize = 256

	// raysPerDispatch bounds one command buffer so cancellation is checked
	// between submissions rather than only at task boundaries.
	raysPerDispatch = 1 << 18

	// fenceTimeout is the maximum time to wait for one dispatch batch.
	fenceTimeout = 5 * time.Second
)

// executor runs raymarch tasks for one pool slot on the engine's shared
// device. It implements turbonerf.Executor.
type executor struct {
	slot int
	eng  *Engine
}

// Reserve allocates the device workspace for task under the engine budget.
func (x *executor) Reserve(task turbonerf.RenderTask) (turbonerf.Workspace, error) {
	return x.eng.newWorkspace(task)
}

// Execute uploads the task's ray index table and runs the raymarch kernel
// over it in cancellation-sized batches. Returns ctx.Err() when cancelled
// between batches; device faults wrap turbonerf.ErrDeviceExecution or
// turbonerf.ErrDeviceLost.
func (x *executor) Execute(ctx context.Context, task turbonerf.RenderTask, ws turbonerf.Workspace) error {
	w, ok := ws.(*workspace)
	if !ok {
		return fmt.Errorf("%w: workspace not owned by this engine", turbonerf.ErrDeviceExecution)
	}

	x.eng.queue.WriteBuffer(w.rayIndex, 0, expandSpans(task.Spans))

	bindGroup, err := x.eng.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "nerf_raymarch_bg",
		Layout: x.eng.pipeline.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: w.params.NativeHandle(), Offset: 0, Size: 0}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: w.rayIndex.NativeHandle(), Offset: 0, Size: 0}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: w.scratch.NativeHandle(), Offset: 0, Size: 0}},
			{Binding: 3, Resource: gputypes.BufferBinding{Buffer: w.radiance.NativeHandle(), Offset: 0, Size: 0}},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: create bind group: %w", turbonerf.ErrDeviceExecution, err)
	}
	defer x.eng.device.DestroyBindGroup(bindGroup)

	params := newKernelParams(task.Request)

	for base := uint64(0); base < task.Rays; base += raysPerDispatch {
		if err := ctx.Err(); err != nil {
			return err
		}

		count := task.Rays - base
		if count > raysPerDispatch {
			count = raysPerDispatch
		}

		params.RayBase = uint32(base)
		params.RayCount = uint32(count)
		x.eng.queue.WriteBuffer(w.params, 0, params.toBytes())

		if err := x.dispatchBatch(bindGroup, uint32((count+workgroupSize-1)/workgroupSize)); err != nil {
			return err
		}

		slogger().Debug("raymarch batch done",
			"slot", x.slot, "base", base, "rays", count)
	}
	return nil
}

// dispatchBatch encodes, submits and waits for one kernel batch.
func (x *executor) dispatchBatch(bindGroup hal.BindGroup, workgroups uint32) error {
	encoder, err := x.eng.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "nerf_raymarch",
	})
	if err != nil {
		return fmt.Errorf("%w: create command encoder: %w", turbonerf.ErrDeviceExecution, err)
	}
	if err := encoder.BeginEncoding("nerf_raymarch"); err != nil {
		return fmt.Errorf("%w: begin encoding: %w", turbonerf.ErrDeviceExecution, err)
	}

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "nerf_raymarch"})
	pass.SetPipeline(x.eng.pipeline.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Dispatch(workgroups, 1, 1)
	pass.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("%w: end encoding: %w", turbonerf.ErrDeviceExecution, err)
	}
	defer x.eng.device.FreeCommandBuffer(cmdBuf)

	fence, err := x.eng.device.CreateFence()
	if err != nil {
		return fmt.Errorf("%w: create fence: %w", turbonerf.ErrDeviceExecution, err)
	}
	defer x.eng.device.DestroyFence(fence)

	if err := x.eng.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("%w: submit: %w", turbonerf.ErrDeviceLost, err)
	}

	ok, err := x.eng.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("%w: wait: %w", turbonerf.ErrDeviceLost, err)
	}
	if !ok {
		return fmt.Errorf("%w: timeout after %v", turbonerf.ErrDeviceExecution, fenceTimeout)
	}
	return nil
}

// Close releases executor resources. The device and pipeline are engine
// owned, so there is nothing per slot to free.
func (x *executor) Close() {}
