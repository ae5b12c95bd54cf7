// Package turbonerf dispatches neural-scene (NeRF) rendering work across a
// fixed pool of GPU execution contexts.
//
// # Overview
//
// A caller constructs a NeRFRenderingController with a chunking pattern and a
// batch size, then submits RenderRequests. The controller partitions each
// request into up to batchSize RenderTasks according to the active
// RenderPattern, hands one task to each execution context, and returns
// without blocking while the GPU makes progress. At most one request is
// active at a time: submitting a new request implicitly cancels the previous
// one, and Cancel tears down all in-flight work and releases every byte of
// device memory tied to the current request.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/turbonerf"
//	    _ "github.com/gogpu/turbonerf/gpu" // enable the wgpu execution engine
//	)
//
//	ctrl, err := turbonerf.New(
//	    turbonerf.WithPattern(turbonerf.LinearChunks),
//	    turbonerf.WithBatchSize(4),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctrl.Close()
//
//	req := turbonerf.NewRenderRequest(1920, 1080, camera)
//	if err := ctrl.Submit(req); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Per-context device memory, in pool order:
//	fmt.Println(ctrl.DeviceMemoryAllocated())
//
// # Execution engines
//
// The low-level kernel invocation is an opaque primitive behind the Engine
// and Executor interfaces. Importing the gpu subpackage registers the
// wgpu/hal compute engine; tests and CPU-only builds may inject their own
// engine with WithEngine.
//
// # Thread safety
//
// Submit, Cancel and Close may be called from any goroutine and are
// serialized internally. DeviceMemoryAllocated is lock-free and safe to call
// concurrently with all other methods.
package turbonerf
