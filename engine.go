package turbonerf

import (
	"context"

	"github.com/gogpu/gpucontext"
)

// DeviceHandle provides GPU device access from a host application.
//
// The dispatcher RECEIVES a device from the host when one is available; it
// does not require creating its own. A host application (e.g., a gogpu.App)
// implements DeviceHandle and passes it via WithDeviceProvider, allowing the
// execution engine to share the host's GPU device instead of opening a
// second one.
//
// DeviceHandle is an alias for gpucontext.DeviceProvider, providing a
// turbonerf-specific name while maintaining full compatibility with the
// gpucontext ecosystem.
type DeviceHandle = gpucontext.DeviceProvider

// Workspace is device memory reserved for exactly one task.
//
// A Workspace is created by Executor.Reserve, lives for the duration of one
// task, and must be released exactly once. After Release the memory is
// returned to the engine's budget and the workspace must not be used.
type Workspace interface {
	// Size returns the workspace size in bytes.
	Size() uint64

	// Release frees all device memory held by the workspace.
	Release()
}

// Executor is the opaque execution primitive behind one execution context.
//
// The dispatcher never looks inside a task's execution: it reserves device
// memory, runs the task to completion or cancellation, and releases the
// memory. Implementations are provided by engine packages (internal/gpu for
// wgpu/hal); tests substitute fakes.
//
// Executors are driven from a single context goroutine at a time and need
// not be safe for concurrent use.
type Executor interface {
	// Reserve allocates device memory for the task. It returns an error
	// wrapping ErrResourceExhausted when the engine's memory budget or the
	// device cannot satisfy the allocation; no partial allocation remains
	// in that case.
	Reserve(task RenderTask) (Workspace, error)

	// Execute runs the task against the reserved workspace, blocking until
	// the task completes, faults, or ctx is cancelled. Cancellation is
	// cooperative at kernel-dispatch granularity: in-flight device work is
	// not interrupted mid-operation, but no further work is issued once
	// ctx is done, and Execute returns ctx.Err().
	//
	// Faults are reported as errors wrapping ErrDeviceExecution, or
	// ErrDeviceLost when the device itself is gone.
	Execute(ctx context.Context, task RenderTask, ws Workspace) error

	// Close releases per-context resources. The workspace of an in-flight
	// task must have been released before Close.
	Close()
}

// Engine creates the per-slot executors backing a controller's context pool.
//
// Only one engine is active per controller. The engine owns the GPU device
// and the shared memory budget; executors borrow from both.
type Engine interface {
	// NewExecutor creates the executor for pool slot i. Construction-time
	// device memory reservation happens here; an error wrapping
	// ErrResourceExhausted aborts pool creation entirely.
	NewExecutor(slot int) (Executor, error)

	// DefaultBatchSize reports the context count the engine considers
	// appropriate for the available device resources. Used when the
	// caller leaves the batch size at zero.
	DefaultBatchSize() int

	// Close releases the engine's device resources.
	Close()
}

// DeviceProviderAware is an optional interface for engines that can share a
// GPU device with an external provider instead of opening their own.
type DeviceProviderAware interface {
	SetDeviceProvider(handle DeviceHandle) error
}

// TaskResult is the per-task completion signal delivered on the
// controller's Completions channel.
//
// Err is nil on success, wraps ErrDeviceExecution on a context fault, and
// wraps ErrDeviceLost when the device failed fatally. Cancelled tasks
// produce no TaskResult at all.
type TaskResult struct {
	// Slot is the pool index of the context that ran the task.
	Slot int

	// Task is the task that completed.
	Task RenderTask

	// Err is the execution outcome.
	Err error
}
