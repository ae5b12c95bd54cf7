package turbonerf

// Span is a contiguous range of ray indices, [Start, Start+Count).
// Ray index i addresses pixel (i % width, i / width) of the request.
type Span struct {
	Start uint64
	Count uint64
}

// End returns the exclusive upper bound of the span.
func (s Span) End() uint64 { return s.Start + s.Count }

// RenderTask is one partitioned, dispatchable unit of a render request.
//
// Tasks are derived by RenderPattern.Partition and consumed by exactly one
// execution context. A task's spans are ordered ascending by Start and are
// pairwise disjoint; together with its siblings they cover every ray of the
// request exactly once.
type RenderTask struct {
	// Slot is the pool index of the context this task is assigned to.
	// Partitioning assigns slot i to the i-th task, so the assignment
	// order is part of the pattern's contract.
	Slot int

	// Request is the request this task was derived from.
	Request *RenderRequest

	// Spans are the ray index ranges this task renders.
	Spans []Span

	// Rays is the total ray count across Spans.
	Rays uint64
}
