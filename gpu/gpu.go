//go:build !nogpu

// Package gpu registers the wgpu/hal execution engine as the default engine
// for rendering controllers.
//
// Import this package to run render tasks on a GPU compute device. The
// engine compiles the raymarch kernel with naga and executes it through the
// wgpu HAL Vulkan backend. Device bring-up is deferred until the first
// controller is constructed, so the import itself is cheap.
//
// Usage:
//
//	import _ "github.com/gogpu/turbonerf/gpu" // enable GPU execution
//
// Builds tagged nogpu skip the registration entirely; controllers then
// require an explicit turbonerf.WithEngine.
package gpu

import (
	"github.com/gogpu/turbonerf"
	gpuimpl "github.com/gogpu/turbonerf/internal/gpu"
)

func init() {
	if err := turbonerf.RegisterEngine(gpuimpl.New(gpuimpl.DefaultConfig())); err != nil {
		turbonerf.Logger().Warn("GPU engine not available", "err", err)
	}
}
