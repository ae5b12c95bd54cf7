package turbonerf

import "fmt"

// Renderer owns the fixed-size pool of execution contexts.
//
// The pool is provisioned eagerly at construction so device resources are
// reserved once and reused across submissions, avoiding per-request
// allocation churn. The pool never grows or shrinks; context i keeps pool
// index i for the renderer's lifetime.
type Renderer struct {
	engine   Engine
	contexts []*Context
}

// NewRenderer creates batchSize execution contexts backed by the engine.
//
// Construction is all-or-nothing: if the engine cannot provision a context,
// every context created so far is closed and the error (wrapping
// ErrResourceExhausted for memory failures) is returned with zero contexts
// allocated.
func NewRenderer(engine Engine, batchSize int) (*Renderer, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("turbonerf: batch size must be at least 1, got %d", batchSize)
	}

	contexts := make([]*Context, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		exec, err := engine.NewExecutor(i)
		if err != nil {
			for _, c := range contexts {
				c.close()
			}
			return nil, fmt.Errorf("turbonerf: context %d of %d: %w", i, batchSize, err)
		}
		contexts = append(contexts, newContext(i, exec))
	}

	Logger().Info("context pool created", "contexts", batchSize)
	return &Renderer{engine: engine, contexts: contexts}, nil
}

// BatchSize returns the number of contexts in the pool.
func (r *Renderer) BatchSize() int { return len(r.contexts) }

// Contexts returns the pool in slot order. The slice is shared, not copied;
// callers must not modify it.
func (r *Renderer) Contexts() []*Context { return r.contexts }

// Close cancels all in-flight work, drains every context, and releases the
// executors. The engine itself is not closed; its owner remains responsible
// for it.
func (r *Renderer) Close() {
	for _, c := range r.contexts {
		c.Cancel()
	}
	for _, c := range r.contexts {
		c.close()
	}
}
