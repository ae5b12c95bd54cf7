package turbonerf

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// fakeWorkspace counts releases so tests can verify memory accounting.
type fakeWorkspace struct {
	size     uint64
	released atomic.Int32
}

func (w *fakeWorkspace) Size() uint64 { return w.size }
func (w *fakeWorkspace) Release()     { w.released.Add(1) }

// fakeExecutor runs tasks through its engine's run hook. The default hook
// blocks until the task context is cancelled, which keeps memory allocated
// for telemetry assertions.
type fakeExecutor struct {
	slot int
	eng  *fakeEngine

	closed atomic.Bool
}

func (x *fakeExecutor) Reserve(task RenderTask) (Workspace, error) {
	x.eng.mu.Lock()
	defer x.eng.mu.Unlock()

	x.eng.reserves++
	if x.slot == x.eng.failReserveSlot {
		return nil, fmt.Errorf("fake reserve: %w", ErrResourceExhausted)
	}
	ws := &fakeWorkspace{size: task.Rays}
	x.eng.workspaces = append(x.eng.workspaces, ws)
	return ws, nil
}

func (x *fakeExecutor) Execute(ctx context.Context, task RenderTask, ws Workspace) error {
	x.eng.mu.Lock()
	run := x.eng.run
	x.eng.mu.Unlock()
	if run != nil {
		return run(ctx, x.slot, task)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (x *fakeExecutor) Close() { x.closed.Store(true) }

// fakeEngine provisions fakeExecutors and records everything the controller
// does to it.
type fakeEngine struct {
	mu sync.Mutex

	defaultBatch    int
	failNewSlot     int // NewExecutor fails at this slot; -1 never
	failReserveSlot int // Reserve fails at this slot; -1 never

	// run, when set, replaces the default block-until-cancel behavior.
	run func(ctx context.Context, slot int, task RenderTask) error

	executors  []*fakeExecutor
	workspaces []*fakeWorkspace
	reserves   int
	closed     bool
	provider   DeviceHandle
}

func newFakeEngine(defaultBatch int) *fakeEngine {
	return &fakeEngine{
		defaultBatch:    defaultBatch,
		failNewSlot:     -1,
		failReserveSlot: -1,
	}
}

func (e *fakeEngine) NewExecutor(slot int) (Executor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if slot == e.failNewSlot {
		return nil, fmt.Errorf("fake executor %d: %w", slot, ErrResourceExhausted)
	}
	x := &fakeExecutor{slot: slot, eng: e}
	e.executors = append(e.executors, x)
	return x, nil
}

func (e *fakeEngine) DefaultBatchSize() int { return e.defaultBatch }

func (e *fakeEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

func (e *fakeEngine) SetDeviceProvider(h DeviceHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.provider = h
	return nil
}

func (e *fakeEngine) reserveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reserves
}

// releasedAll reports whether every workspace handed out so far has been
// released at least once, and none more than once.
func (e *fakeEngine) releasedAll() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ws := range e.workspaces {
		if ws.released.Load() != 1 {
			return false
		}
	}
	return true
}
