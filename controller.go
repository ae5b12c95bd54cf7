package turbonerf

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// completionGrace is how long a task result is held for a lagging consumer
// when the completions channel is full before it is dropped. Blocking here
// delays only the reporting goroutine; the context is already idle.
const completionGrace = time.Second

// NeRFRenderingController orchestrates the submit/cancel lifecycle of render
// requests over a fixed pool of GPU execution contexts.
//
// The controller holds at most one unresolved request at a time. Submit
// partitions the request into up to batchSize tasks per the active pattern,
// dispatches one task per context, and returns without blocking; Cancel
// stops all in-flight work and releases every byte of device memory tied to
// the current request.
//
// Submit, Cancel and Close are serialized by an internal mutex and may be
// called from any goroutine. DeviceMemoryAllocated takes no lock.
type NeRFRenderingController struct {
	pattern   RenderPattern
	batchSize int
	renderer  *Renderer

	// completions carries per-task results to the caller. Buffered; a
	// full channel drops the result rather than stalling a stream.
	completions chan TaskResult

	// mu serializes submit/cancel/close and guards request and tasks.
	mu      sync.Mutex
	request *RenderRequest
	tasks   []RenderTask
	closed  bool
}

// New constructs a controller.
//
// The defaults are LinearChunks and a batch size of zero, which lets the
// engine pick a context count appropriate to the available device resources
// (see Engine.DefaultBatchSize). The context pool is provisioned eagerly:
// construction fails with an error wrapping ErrResourceExhausted, and
// allocates zero contexts, when the requested batch size cannot be satisfied
// by available device memory.
//
// Without WithEngine, the registered engine is used (import the gpu
// subpackage); New returns ErrNoEngine when neither is present.
func New(opts ...Option) (*NeRFRenderingController, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if !o.pattern.Valid() {
		return nil, fmt.Errorf("turbonerf: unknown render pattern %v", o.pattern)
	}
	if o.batchSize < 0 {
		return nil, fmt.Errorf("turbonerf: negative batch size %d", o.batchSize)
	}

	engine := o.engine
	if engine == nil {
		engine = activeEngine()
	}
	if engine == nil {
		return nil, ErrNoEngine
	}

	if o.provider != nil {
		aware, ok := engine.(DeviceProviderAware)
		if !ok {
			return nil, fmt.Errorf("turbonerf: engine %T cannot share an external device", engine)
		}
		if err := aware.SetDeviceProvider(o.provider); err != nil {
			return nil, fmt.Errorf("turbonerf: shared device rejected: %w", err)
		}
	}

	batch := o.batchSize
	if batch == 0 {
		batch = engine.DefaultBatchSize()
		if batch < 1 {
			batch = 1
		}
		Logger().Debug("auto-sized context pool", "contexts", batch)
	}

	renderer, err := NewRenderer(engine, batch)
	if err != nil {
		return nil, err
	}

	buffer := o.completionBuffer
	if buffer <= 0 {
		buffer = 2 * batch
	}

	return &NeRFRenderingController{
		pattern:     o.pattern,
		batchSize:   batch,
		renderer:    renderer,
		completions: make(chan TaskResult, buffer),
	}, nil
}

// Pattern returns the active chunking pattern.
func (c *NeRFRenderingController) Pattern() RenderPattern { return c.pattern }

// BatchSize returns the fixed number of execution contexts.
func (c *NeRFRenderingController) BatchSize() int { return c.batchSize }

// ActiveRequest returns the request currently being rendered, or nil.
func (c *NeRFRenderingController) ActiveRequest() *RenderRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.request
}

// Tasks returns a copy of the task list derived from the active request.
func (c *NeRFRenderingController) Tasks() []RenderTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RenderTask, len(c.tasks))
	copy(out, c.tasks)
	return out
}

// Completions returns the per-task completion channel. Each dispatched task
// that runs to completion or faults delivers exactly one TaskResult;
// cancelled tasks deliver none.
//
// The channel is buffered (see WithCompletionBuffer). When it is full, a
// result is held for up to one second for a lagging consumer and then
// dropped with a warning log — fault results included. Callers that must
// observe every fault should drain the channel promptly or size the buffer
// to the submission rate. Device loss does not depend on delivery: the
// controller tears itself down on ErrDeviceLost regardless.
func (c *NeRFRenderingController) Completions() <-chan TaskResult {
	return c.completions
}

// Submit replaces any currently active request with req.
//
// The request is validated and partitioned first: an ErrInvalidRequest
// failure leaves the controller untouched, including a previously active
// request. Only then is the previous request cancelled and drained, after
// which one task is dispatched per context in pool order. Dispatch does not
// block on execution; Submit returns while the GPU makes progress.
//
// If a context cannot reserve device memory for its task, every context
// dispatched before it is unwound and Submit returns an error wrapping
// ErrResourceExhausted with the controller request-free: a failed Submit
// never leaves a partial batch running.
func (c *NeRFRenderingController) Submit(req *RenderRequest) error {
	if req == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrControllerClosed
	}

	tasks, err := c.pattern.Partition(req, c.batchSize)
	if err != nil {
		return err
	}

	// The new request only supersedes the old one once partitioning has
	// succeeded; drain the previous submission before issuing new work so
	// no two requests ever execute concurrently.
	c.cancelLocked()

	contexts := c.renderer.Contexts()
	for i := range tasks {
		if err := contexts[tasks[i].Slot].Run(tasks[i], c.report); err != nil {
			c.unwindLocked(tasks[:i])
			Logger().Warn("dispatch failed, batch unwound",
				"slot", tasks[i].Slot, "dispatched", i, "err", err)
			return err
		}
	}

	c.request = req
	c.tasks = tasks
	Logger().Debug("request dispatched",
		"pattern", c.pattern, "tasks", len(tasks), "rays", req.RayCount())
	return nil
}

// Cancel stops all in-flight work for the active request, releases the
// device memory tied to it, and clears the active request and task list.
// Cancel blocks only until every context has drained. Calling Cancel with
// no active request is a no-op.
func (c *NeRFRenderingController) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
}

// cancelLocked implements Cancel. Caller must hold mu.
func (c *NeRFRenderingController) cancelLocked() {
	if c.request == nil {
		return
	}

	contexts := c.renderer.Contexts()
	for _, ctx := range contexts {
		ctx.Cancel()
	}
	for _, ctx := range contexts {
		ctx.Wait()
	}

	c.request = nil
	c.tasks = nil
	Logger().Debug("request cancelled")
}

// unwindLocked cancels and drains the given already-dispatched tasks after a
// mid-batch dispatch failure, leaving the controller request-free. Caller
// must hold mu.
func (c *NeRFRenderingController) unwindLocked(dispatched []RenderTask) {
	contexts := c.renderer.Contexts()
	for _, t := range dispatched {
		contexts[t.Slot].Cancel()
	}
	for _, t := range dispatched {
		contexts[t.Slot].Wait()
	}
	c.request = nil
	c.tasks = nil
}

// DeviceMemoryAllocated returns the device memory held by each execution
// context, in pool order, with exactly BatchSize entries.
//
// The reading is a best-effort snapshot: each entry is an atomic read (never
// torn), but there is no cross-context atomicity, and a context mid-way
// between tasks may report either the old or the new allocation. Safe to
// call concurrently with Submit and Cancel.
func (c *NeRFRenderingController) DeviceMemoryAllocated() []uint64 {
	contexts := c.renderer.Contexts()
	out := make([]uint64, len(contexts))
	for i, ctx := range contexts {
		out[i] = ctx.AllocatedBytes()
	}
	return out
}

// Close cancels any active request and releases the context pool. The
// controller must not be used afterwards; the engine stays open for its
// owner. Close is idempotent.
func (c *NeRFRenderingController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.cancelLocked()
	c.closed = true
	c.mu.Unlock()

	c.renderer.Close()
}

// report is the completion callback handed to every context. It runs on the
// context's stream goroutine without holding the controller mutex.
func (c *NeRFRenderingController) report(res TaskResult) {
	if res.Err != nil {
		Logger().Warn("task faulted", "slot", res.Slot, "err", res.Err)
	}

	select {
	case c.completions <- res:
	default:
		// Channel full: hold the result for a lagging consumer before
		// giving it up.
		t := time.NewTimer(completionGrace)
		select {
		case c.completions <- res:
			t.Stop()
		case <-t.C:
			Logger().Warn("completion dropped: channel full", "slot", res.Slot, "err", res.Err)
		}
	}

	// Device loss is fatal to every context; tear the controller down.
	if errors.Is(res.Err, ErrDeviceLost) {
		go c.Close()
	}
}
