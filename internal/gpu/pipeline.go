// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	_ "embed"
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/raymarch.wgsl
var raymarchWGSL string

// raymarchPipeline holds the compiled raymarch kernel and its layouts. One
// instance is shared by all executors on a device; per-task bind groups are
// created against bindLayout.
type raymarchPipeline struct {
	module     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	layout     hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

// newRaymarchPipeline compiles the WGSL kernel to SPIR-V and builds the
// compute pipeline. On any failure, whatever was created so far is destroyed
// before returning.
func newRaymarchPipeline(device hal.Device) (*raymarchPipeline, error) {
	spirv, err := compileWGSL(raymarchWGSL)
	if err != nil {
		return nil, fmt.Errorf("compile raymarch shader: %w", err)
	}

	p := &raymarchPipeline{}
	fail := func(stage string, err error) (*raymarchPipeline, error) {
		p.destroy(device)
		return nil, fmt.Errorf("%s: %w", stage, err)
	}

	p.module, err = device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "nerf_raymarch",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fail("create shader module", err)
	}

	storageRW := gputypes.BufferBindingTypeStorage
	p.bindLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "nerf_raymarch_bgl",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
			},
			{
				Binding:    2,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: storageRW},
			},
			{
				Binding:    3,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: storageRW},
			},
		},
	})
	if err != nil {
		return fail("create bind group layout", err)
	}

	p.layout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "nerf_raymarch_pl",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return fail("create pipeline layout", err)
	}

	p.pipeline, err = device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  "nerf_raymarch",
		Layout: p.layout,
		Compute: hal.ComputeState{
			Module:     p.module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return fail("create compute pipeline", err)
	}

	slogger().Debug("raymarch pipeline ready", "spirvWords", len(spirv))
	return p, nil
}

// destroy releases the pipeline objects. Safe on a partially built pipeline.
func (p *raymarchPipeline) destroy(device hal.Device) {
	if device == nil {
		return
	}
	if p.pipeline != nil {
		device.DestroyComputePipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.layout != nil {
		device.DestroyPipelineLayout(p.layout)
		p.layout = nil
	}
	if p.bindLayout != nil {
		device.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	if p.module != nil {
		device.DestroyShaderModule(p.module)
		p.module = nil
	}
}

// compileWGSL translates WGSL to SPIR-V words via naga. The Vulkan backend
// consumes SPIR-V only.
func compileWGSL(src string) ([]uint32, error) {
	data, err := naga.Compile(src)
	if err != nil {
		return nil, err
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("naga returned %d bytes, not word aligned", len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return words, nil
}
