// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/turbonerf"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// Config holds engine configuration.
type Config struct {
	// BudgetMB is the device memory budget for task workspaces in
	// megabytes. Defaults to DefaultBudgetMB if <= 0.
	BudgetMB int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{BudgetMB: DefaultBudgetMB}
}

// Engine is the wgpu/hal execution engine. It owns one GPU device, the
// raymarch compute pipeline, and the workspace memory budget shared by all
// executors.
//
// Device initialization is deferred until the first executor is created or
// until SetDeviceProvider supplies a shared device, so that registering the
// engine at program start does not bring up a standalone device that a host
// application's device would then have to coexist with.
type Engine struct {
	mu sync.Mutex

	budget *budget

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	pipeline *raymarchPipeline

	// externalDevice is true when using a shared device (don't destroy
	// on Close).
	externalDevice bool
	gpuReady       bool
}

// Interface compliance checks.
var (
	_ turbonerf.Engine              = (*Engine)(nil)
	_ turbonerf.DeviceProviderAware = (*Engine)(nil)
)

// New creates an engine with the given configuration. No GPU resources are
// touched until the first NewExecutor call.
func New(cfg Config) *Engine {
	return &Engine{budget: newBudget(cfg.BudgetMB)}
}

// SetLogger sets the logger for the engine and its internal helpers.
// Called by turbonerf.SetLogger to propagate logging configuration.
func (e *Engine) SetLogger(l *slog.Logger) {
	setLogger(l)
}

// DefaultBatchSize reports the context count appropriate for the workspace
// budget: one context per full-HD workspace the budget can hold, clamped to
// [1, 16].
func (e *Engine) DefaultBatchSize() int {
	return autoBatchSize(e.budget.total)
}

// NewExecutor creates the executor for pool slot i, bringing up the device
// and compute pipeline on first use. Errors wrap
// turbonerf.ErrResourceExhausted when the workspace budget cannot back a
// pool this large, or when device bring-up fails for lack of resources.
func (e *Engine) NewExecutor(slot int) (turbonerf.Executor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// The budget commits one reference workspace per slot up front, so an
	// oversized pool fails at construction with zero contexts rather than
	// at first dispatch.
	if capacity := poolCapacity(e.budget.total); slot >= capacity {
		return nil, fmt.Errorf("%w: context %d exceeds the %d-context capacity of %s",
			turbonerf.ErrResourceExhausted, slot, capacity, e.budget)
	}

	if !e.gpuReady {
		if err := e.initGPULocked(); err != nil {
			return nil, err
		}
	}
	return &executor{slot: slot, eng: e}, nil
}

// SetDeviceProvider switches the engine to a shared GPU device from an
// external provider. The provider must also expose HAL access via
// HalDevice() any and HalQueue() any (the gpucontext.HalProvider contract).
func (e *Engine) SetDeviceProvider(handle turbonerf.DeviceHandle) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := handle.(halProvider)
	if !ok {
		return fmt.Errorf("gpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("gpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("gpu: provider HalQueue is not hal.Queue")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Drop our own resources if we created them.
	if e.pipeline != nil {
		e.pipeline.destroy(e.device)
		e.pipeline = nil
	}
	if !e.externalDevice && e.device != nil {
		e.device.Destroy()
	}
	if e.instance != nil {
		e.instance.Destroy()
		e.instance = nil
	}

	e.device = device
	e.queue = queue
	e.externalDevice = true

	pipeline, err := newRaymarchPipeline(device)
	if err != nil {
		e.gpuReady = false
		return fmt.Errorf("gpu: pipeline init on shared device: %w", err)
	}
	e.pipeline = pipeline
	e.gpuReady = true

	slogger().Debug("gpu: switched to shared device")
	return nil
}

// Close releases all GPU resources held by the engine.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pipeline != nil {
		e.pipeline.destroy(e.device)
		e.pipeline = nil
	}
	if !e.externalDevice {
		if e.device != nil {
			e.device.Destroy()
			e.device = nil
		}
		if e.instance != nil {
			e.instance.Destroy()
			e.instance = nil
		}
	} else {
		// Shared resources are not ours to destroy.
		e.device = nil
		e.instance = nil
	}
	e.queue = nil
	e.gpuReady = false
	e.externalDevice = false
}

// initGPULocked creates a standalone Vulkan device for compute-only use.
// This is the fallback path when no external device was provided via
// SetDeviceProvider. Caller must hold mu.
func (e *Engine) initGPULocked() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("%w: vulkan backend not available", turbonerf.ErrResourceExhausted)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("%w: create instance: %w", turbonerf.ErrResourceExhausted, err)
	}
	e.instance = instance

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		e.instance = nil
		return fmt.Errorf("%w: no GPU adapters found", turbonerf.ErrResourceExhausted)
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		e.instance = nil
		return fmt.Errorf("%w: open device: %w", turbonerf.ErrResourceExhausted, err)
	}
	e.device = openDev.Device
	e.queue = openDev.Queue

	pipeline, err := newRaymarchPipeline(e.device)
	if err != nil {
		e.device.Destroy()
		e.device = nil
		instance.Destroy()
		e.instance = nil
		return fmt.Errorf("gpu: pipeline init: %w", err)
	}
	e.pipeline = pipeline

	e.gpuReady = true
	slogger().Info("gpu: device initialized", "adapter", selected.Info.Name)
	return nil
}
