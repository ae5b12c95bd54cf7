// Package gpu provides the wgpu/hal execution engine for turbonerf.
//
// The engine owns one GPU device and a shared memory budget. Each pool slot
// gets an executor that reserves a per-task workspace (ray index, scratch
// and radiance buffers) from the budget, runs the embedded raymarch compute
// kernel over the task's spans, and releases the workspace when the task
// completes, faults, or is cancelled.
//
// Import github.com/gogpu/turbonerf/gpu to register this engine as the
// default.
package gpu
