package turbonerf

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

const testWait = 5 * time.Second

func newTestController(t *testing.T, eng *fakeEngine, opts ...Option) *NeRFRenderingController {
	t.Helper()
	c, err := New(append([]Option{WithEngine(eng)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestNewDefaults(t *testing.T) {
	eng := newFakeEngine(3)
	c := newTestController(t, eng)

	if c.Pattern() != LinearChunks {
		t.Errorf("Pattern = %v, want LinearChunks", c.Pattern())
	}
	if c.BatchSize() != 3 {
		t.Errorf("BatchSize = %d, want engine default 3", c.BatchSize())
	}
	if got := cap(c.completions); got != 6 {
		t.Errorf("completion buffer = %d, want 2*batch = 6", got)
	}
	if len(eng.executors) != 3 {
		t.Errorf("engine created %d executors, want 3", len(eng.executors))
	}
}

func TestNewExplicitOptions(t *testing.T) {
	eng := newFakeEngine(3)
	c := newTestController(t, eng,
		WithPattern(RectangularTiles),
		WithBatchSize(8),
		WithCompletionBuffer(32),
	)

	if c.Pattern() != RectangularTiles {
		t.Errorf("Pattern = %v, want RectangularTiles", c.Pattern())
	}
	if c.BatchSize() != 8 {
		t.Errorf("BatchSize = %d, want 8", c.BatchSize())
	}
	if got := cap(c.completions); got != 32 {
		t.Errorf("completion buffer = %d, want 32", got)
	}
}

func TestNewValidation(t *testing.T) {
	eng := newFakeEngine(3)

	if _, err := New(WithEngine(eng), WithPattern(RenderPattern(99))); err == nil {
		t.Error("unknown pattern accepted")
	}
	if _, err := New(WithEngine(eng), WithBatchSize(-1)); err == nil {
		t.Error("negative batch size accepted")
	}
}

func TestNewNoEngine(t *testing.T) {
	engineMu.Lock()
	saved := defaultEngine
	defaultEngine = nil
	engineMu.Unlock()
	defer func() {
		engineMu.Lock()
		defaultEngine = saved
		engineMu.Unlock()
	}()

	if _, err := New(); !errors.Is(err, ErrNoEngine) {
		t.Errorf("got %v, want ErrNoEngine", err)
	}
}

func TestNewUsesRegisteredEngine(t *testing.T) {
	engineMu.Lock()
	saved := defaultEngine
	engineMu.Unlock()
	defer func() {
		engineMu.Lock()
		defaultEngine = saved
		engineMu.Unlock()
	}()

	eng := newFakeEngine(2)
	if err := RegisterEngine(eng); err != nil {
		t.Fatalf("RegisterEngine: %v", err)
	}
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if c.BatchSize() != 2 {
		t.Errorf("BatchSize = %d, want 2 from registered engine", c.BatchSize())
	}
}

func TestNewPoolFailureAllOrNothing(t *testing.T) {
	eng := newFakeEngine(4)
	eng.failNewSlot = 2

	_, err := New(WithEngine(eng), WithBatchSize(4))
	if !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("got %v, want ErrResourceExhausted", err)
	}
	// Executors 0 and 1 were created and must be closed again.
	if len(eng.executors) != 2 {
		t.Fatalf("engine created %d executors before failing, want 2", len(eng.executors))
	}
	for _, x := range eng.executors {
		if !x.closed.Load() {
			t.Errorf("executor %d not closed after pool failure", x.slot)
		}
	}
}

func TestNewDeviceProvider(t *testing.T) {
	eng := newFakeEngine(2)
	provider := struct{ DeviceHandle }{}

	c, err := New(WithEngine(eng), WithBatchSize(1), WithDeviceProvider(provider))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if eng.provider != provider {
		t.Error("provider not forwarded to engine")
	}
}

func TestSubmitMemoryTelemetry(t *testing.T) {
	eng := newFakeEngine(4)
	c := newTestController(t, eng, WithBatchSize(4))

	req := NewRenderRequest(64, 64, testCamera())
	if err := c.Submit(req); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	mem := c.DeviceMemoryAllocated()
	if len(mem) != 4 {
		t.Fatalf("got %d readings, want 4", len(mem))
	}
	for i, m := range mem {
		if m != 1024 { // fake workspace size is the task's ray count
			t.Errorf("context %d holds %d bytes, want 1024", i, m)
		}
	}

	c.Cancel()

	for i, m := range c.DeviceMemoryAllocated() {
		if m != 0 {
			t.Errorf("context %d holds %d bytes after cancel, want 0", i, m)
		}
	}
	if !eng.releasedAll() {
		t.Error("not every workspace was released exactly once")
	}
}

func TestSubmitReplacesActive(t *testing.T) {
	eng := newFakeEngine(4)
	c := newTestController(t, eng, WithBatchSize(4))

	a := NewRenderRequest(64, 64, testCamera())
	b := NewRenderRequest(128, 128, testCamera())

	if err := c.Submit(a); err != nil {
		t.Fatalf("Submit a: %v", err)
	}
	if err := c.Submit(b); err != nil {
		t.Fatalf("Submit b: %v", err)
	}

	if got := c.ActiveRequest(); got != b {
		t.Errorf("ActiveRequest = %p, want second request %p", got, b)
	}
	if got := eng.reserveCount(); got != 8 {
		t.Errorf("reserve count = %d, want 8 (4 per submission)", got)
	}
	// Only the second request's workloads may hold memory.
	for i, m := range c.DeviceMemoryAllocated() {
		if m != 4096 {
			t.Errorf("context %d holds %d bytes, want 4096 from second request", i, m)
		}
	}
}

func TestSubmitInvalidKeepsActiveRequest(t *testing.T) {
	eng := newFakeEngine(4)
	c := newTestController(t, eng, WithBatchSize(4))

	a := NewRenderRequest(64, 64, testCamera())
	if err := c.Submit(a); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := c.Submit(NewRenderRequest(0, 0, testCamera())); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("got %v, want ErrInvalidRequest", err)
	}
	if err := c.Submit(nil); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("got %v, want ErrInvalidRequest", err)
	}

	if got := c.ActiveRequest(); got != a {
		t.Error("rejected submission disturbed the active request")
	}
	for i, m := range c.DeviceMemoryAllocated() {
		if m == 0 {
			t.Errorf("context %d lost its allocation after a rejected submission", i)
		}
	}
}

func TestSubmitReserveFailureUnwinds(t *testing.T) {
	eng := newFakeEngine(4)
	eng.failReserveSlot = 2
	c := newTestController(t, eng, WithBatchSize(4))

	err := c.Submit(NewRenderRequest(64, 64, testCamera()))
	if !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("got %v, want ErrResourceExhausted", err)
	}

	if c.ActiveRequest() != nil {
		t.Error("controller kept a request after a failed submission")
	}
	if got := len(c.Tasks()); got != 0 {
		t.Errorf("controller kept %d tasks after a failed submission", got)
	}
	for i, m := range c.DeviceMemoryAllocated() {
		if m != 0 {
			t.Errorf("context %d holds %d bytes after unwind, want 0", i, m)
		}
	}
	if !eng.releasedAll() {
		t.Error("dispatched workspaces not released during unwind")
	}
}

func TestCancelIdleIsNoop(t *testing.T) {
	eng := newFakeEngine(4)
	c := newTestController(t, eng, WithBatchSize(2))

	c.Cancel()
	c.Cancel()

	if got := eng.reserveCount(); got != 0 {
		t.Errorf("idle cancel touched the engine: %d reserves", got)
	}
}

func TestResubmitAfterCancel(t *testing.T) {
	eng := newFakeEngine(4)
	c := newTestController(t, eng, WithBatchSize(4))

	req := NewRenderRequest(64, 64, testCamera())
	if err := c.Submit(req); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	c.Cancel()
	if err := c.Submit(req); err != nil {
		t.Fatalf("Submit after cancel: %v", err)
	}
	if c.ActiveRequest() != req {
		t.Error("resubmission not active")
	}
}

func TestCompletionsDelivered(t *testing.T) {
	eng := newFakeEngine(4)
	eng.run = func(ctx context.Context, slot int, task RenderTask) error {
		return nil
	}
	c := newTestController(t, eng, WithBatchSize(4))

	if err := c.Submit(NewRenderRequest(64, 64, testCamera())); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	seen := make(map[int]bool)
	for i := 0; i < 4; i++ {
		select {
		case res := <-c.Completions():
			if res.Err != nil {
				t.Errorf("slot %d: unexpected error %v", res.Slot, res.Err)
			}
			if seen[res.Slot] {
				t.Errorf("slot %d reported twice", res.Slot)
			}
			seen[res.Slot] = true
		case <-time.After(testWait):
			t.Fatalf("only %d of 4 completions arrived", i)
		}
	}
}

func TestCompletionsCarryFaults(t *testing.T) {
	eng := newFakeEngine(4)
	eng.run = func(ctx context.Context, slot int, task RenderTask) error {
		if slot == 1 {
			return fmt.Errorf("%w: kernel fault", ErrDeviceExecution)
		}
		return nil
	}
	c := newTestController(t, eng, WithBatchSize(2))

	if err := c.Submit(NewRenderRequest(64, 64, testCamera())); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var faulted bool
	for i := 0; i < 2; i++ {
		select {
		case res := <-c.Completions():
			if res.Slot == 1 {
				faulted = errors.Is(res.Err, ErrDeviceExecution)
			}
		case <-time.After(testWait):
			t.Fatal("completions did not arrive")
		}
	}
	if !faulted {
		t.Error("slot 1 result does not wrap ErrDeviceExecution")
	}
}

func TestCompletionsHeldForSlowConsumer(t *testing.T) {
	eng := newFakeEngine(2)
	eng.run = func(ctx context.Context, slot int, task RenderTask) error {
		return nil
	}
	// Buffer of 1 with 2 tasks: the second result only arrives if a full
	// channel holds the result instead of dropping it outright.
	c := newTestController(t, eng, WithBatchSize(2), WithCompletionBuffer(1))

	if err := c.Submit(NewRenderRequest(64, 64, testCamera())); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	seen := make(map[int]bool)
	for i := 0; i < 2; i++ {
		select {
		case res := <-c.Completions():
			seen[res.Slot] = true
		case <-time.After(testWait):
			t.Fatalf("only %d of 2 completions arrived; full channel dropped a result", i)
		}
	}
	if len(seen) != 2 {
		t.Errorf("received slots %v, want both", seen)
	}
}

func TestCancelledTasksProduceNoResult(t *testing.T) {
	eng := newFakeEngine(4)
	c := newTestController(t, eng, WithBatchSize(2))

	if err := c.Submit(NewRenderRequest(64, 64, testCamera())); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	c.Cancel()

	select {
	case res := <-c.Completions():
		t.Errorf("cancelled task delivered a result: %+v", res)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDeviceLostClosesController(t *testing.T) {
	eng := newFakeEngine(4)
	eng.run = func(ctx context.Context, slot int, task RenderTask) error {
		return fmt.Errorf("%w: device removed", ErrDeviceLost)
	}
	c := newTestController(t, eng, WithBatchSize(1))

	if err := c.Submit(NewRenderRequest(64, 64, testCamera())); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(testWait)
	for {
		err := c.Submit(NewRenderRequest(64, 64, testCamera()))
		if errors.Is(err, ErrControllerClosed) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("controller did not close after device loss")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCloseIdempotent(t *testing.T) {
	eng := newFakeEngine(4)
	c := newTestController(t, eng, WithBatchSize(2))

	if err := c.Submit(NewRenderRequest(64, 64, testCamera())); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	c.Close()
	c.Close()

	if err := c.Submit(NewRenderRequest(64, 64, testCamera())); !errors.Is(err, ErrControllerClosed) {
		t.Errorf("got %v, want ErrControllerClosed", err)
	}
	for _, x := range eng.executors {
		if !x.closed.Load() {
			t.Errorf("executor %d not closed", x.slot)
		}
	}
	if eng.closed {
		t.Error("controller closed the engine; the engine's owner is responsible for it")
	}
	if !eng.releasedAll() {
		t.Error("in-flight workspaces not released on close")
	}
}
