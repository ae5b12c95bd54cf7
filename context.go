package turbonerf

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ContextState is the lifecycle state of an execution context.
type ContextState int

const (
	// ContextIdle means the context holds no device memory and can accept
	// a task.
	ContextIdle ContextState = iota

	// ContextDispatching means device memory is being reserved for a task
	// that has not started executing.
	ContextDispatching

	// ContextRunning means a task is executing on the context's stream.
	ContextRunning

	// ContextCancelling means cancellation was requested and the context
	// is draining back to idle.
	ContextCancelling
)

// String returns the state name.
func (s ContextState) String() string {
	switch s {
	case ContextIdle:
		return "Idle"
	case ContextDispatching:
		return "Dispatching"
	case ContextRunning:
		return "Running"
	case ContextCancelling:
		return "Cancelling"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Context is one GPU execution slot. It owns device memory while a task is
// in flight and runs exactly one task at a time on its own stream goroutine.
//
// State machine:
//
//	Idle -> Dispatching -> Running -> Idle
//	                \          \
//	                 \          Cancelling -> Idle
//	                  Cancelling -> Idle
//
// The invariant maintained across all paths: a context's device memory is
// fully released before the context reports idle, so a reused context never
// carries allocation from an aborted task.
type Context struct {
	slot int
	exec Executor

	// mu guards state transitions and the cancel/done handles.
	mu     sync.Mutex
	state  ContextState
	cancel context.CancelFunc
	done   chan struct{}

	// allocated is the workspace size of the in-flight task. Read
	// lock-free by memory telemetry; a mid-transition read observes
	// either the old or the new allocation, never a torn value.
	allocated atomic.Uint64
}

// newContext creates an idle context for pool slot i backed by exec.
func newContext(slot int, exec Executor) *Context {
	return &Context{slot: slot, exec: exec}
}

// Slot returns the context's pool index.
func (c *Context) Slot() int { return c.slot }

// State returns the current lifecycle state.
func (c *Context) State() ContextState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AllocatedBytes returns the device memory currently held by the context.
// Safe to call concurrently with Run and Cancel.
func (c *Context) AllocatedBytes() uint64 {
	return c.allocated.Load()
}

// Run reserves device memory for the task and starts executing it on the
// context's stream goroutine. Run returns once the task is dispatched; it
// does not wait for completion.
//
// When the task finishes, faults, or is cancelled, the workspace is released
// before the context returns to idle. Completed and faulted tasks are
// delivered to report; cancelled tasks produce no result.
//
// Run fails with ErrContextBusy if the context has not drained its previous
// task, and passes through Reserve errors (wrapping ErrResourceExhausted)
// with the context left idle and nothing allocated.
func (c *Context) Run(task RenderTask, report func(TaskResult)) error {
	c.mu.Lock()
	if c.state != ContextIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: context %d is %s", ErrContextBusy, c.slot, state)
	}
	c.state = ContextDispatching
	c.mu.Unlock()

	ws, err := c.exec.Reserve(task)
	if err != nil {
		c.mu.Lock()
		c.state = ContextIdle
		c.mu.Unlock()
		return fmt.Errorf("context %d: %w", c.slot, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	if c.state == ContextCancelling {
		// Cancelled between dispatch and run: never start, leak nothing.
		c.state = ContextIdle
		c.mu.Unlock()
		cancel()
		ws.Release()
		return nil
	}
	c.state = ContextRunning
	c.cancel = cancel
	c.done = done
	c.allocated.Store(ws.Size())
	c.mu.Unlock()

	go c.stream(runCtx, cancel, done, task, ws, report)
	return nil
}

// stream is the context's execution goroutine for one task.
func (c *Context) stream(runCtx context.Context, cancel context.CancelFunc,
	done chan struct{}, task RenderTask, ws Workspace, report func(TaskResult)) {

	err := c.exec.Execute(runCtx, task, ws)

	// Memory is reclaimed before the context reports idle, so telemetry
	// never shows a reusable context with residual allocation.
	ws.Release()
	c.allocated.Store(0)

	c.mu.Lock()
	c.state = ContextIdle
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()
	cancel()
	close(done)

	if report != nil && !errors.Is(err, context.Canceled) {
		report(TaskResult{Slot: c.slot, Task: task, Err: err})
	}
}

// Cancel requests termination of the in-flight task. It returns immediately;
// use Wait to block until the context has drained and released its memory.
// Cancelling an idle context is a no-op.
func (c *Context) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case ContextDispatching, ContextRunning:
		c.state = ContextCancelling
		if c.cancel != nil {
			c.cancel()
		}
	}
}

// Wait blocks until the in-flight task (if any) has fully drained: execution
// stopped and device memory released. Waiting on an idle context returns
// immediately.
func (c *Context) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// close cancels any in-flight work, drains, and releases the executor.
func (c *Context) close() {
	c.Cancel()
	c.Wait()
	c.exec.Close()
}
