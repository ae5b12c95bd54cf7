package turbonerf

import "errors"

// Package errors for turbonerf.
//
// Submit and construction report failures synchronously through these
// sentinels; execution-time faults surface asynchronously in TaskResult.Err.
// Use errors.Is to classify wrapped values.
var (
	// ErrInvalidRequest is returned when a request cannot be partitioned
	// under the active pattern and batch size. The controller state is
	// unchanged: a previously active request keeps running.
	ErrInvalidRequest = errors.New("turbonerf: request cannot be partitioned under the active pattern")

	// ErrResourceExhausted is returned when device memory is insufficient,
	// either at construction (the context pool is not created at all) or
	// during dispatch (already-dispatched tasks are unwound and the
	// controller is left request-free).
	ErrResourceExhausted = errors.New("turbonerf: insufficient device memory")

	// ErrDeviceExecution is reported in a TaskResult when a context's GPU
	// execution faults. The affected context is returned to idle; other
	// contexts are unaffected.
	ErrDeviceExecution = errors.New("turbonerf: device execution fault")

	// ErrDeviceLost is reported when a fault is fatal to the device.
	// The controller cancels all work and closes itself.
	ErrDeviceLost = errors.New("turbonerf: device lost")

	// ErrControllerClosed is returned by Submit after Close.
	ErrControllerClosed = errors.New("turbonerf: controller closed")

	// ErrNoEngine is returned by New when no execution engine was injected
	// and none has been registered (import the gpu subpackage, or pass
	// WithEngine).
	ErrNoEngine = errors.New("turbonerf: no execution engine available")

	// ErrContextBusy is returned when a task is dispatched to a context
	// that has not drained its previous task.
	ErrContextBusy = errors.New("turbonerf: execution context busy")
)
