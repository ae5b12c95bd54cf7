package turbonerf

import "fmt"

// RenderPattern selects the chunking strategy used to split a request into
// tasks. Patterns are a closed set: each value dispatches to a pure
// partition function, so partitioning is deterministic for a given
// (request, pattern, batchSize) triple.
type RenderPattern int

const (
	// LinearChunks splits the ray index range into batchSize contiguous
	// chunks. Chunk i maps to context i; the last chunk absorbs the
	// remainder. This is the default pattern.
	LinearChunks RenderPattern = iota

	// InterleavedLines assigns scanline r to context r % batchSize.
	// Contexts finish at similar times on scenes whose cost varies
	// vertically, at the price of scattered output writes.
	InterleavedLines

	// RectangularTiles splits the frame into a cols x rows grid of tiles
	// with cols*rows == batchSize, assigned row-major. Tiles preserve
	// spatial locality for view-dependent caching.
	RectangularTiles
)

// String returns the pattern name.
func (p RenderPattern) String() string {
	switch p {
	case LinearChunks:
		return "LinearChunks"
	case InterleavedLines:
		return "InterleavedLines"
	case RectangularTiles:
		return "RectangularTiles"
	default:
		return fmt.Sprintf("Unknown(%d)", int(p))
	}
}

// Valid reports whether p is a known pattern.
func (p RenderPattern) Valid() bool {
	return p >= LinearChunks && p <= RectangularTiles
}

// Partition slices the request into exactly batchSize tasks, one per pool
// slot, in assignment order. It is a pure function: identical inputs yield
// an identical task list.
//
// Partition returns an error wrapping ErrInvalidRequest when the request is
// empty, when the workload cannot fill one chunk per context, or when a
// pattern-specific constraint is violated (InterleavedLines needs at least
// batchSize scanlines; RectangularTiles needs a frame at least as large as
// its tile grid).
func (p RenderPattern) Partition(req *RenderRequest, batchSize int) ([]RenderTask, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("%w: batch size %d", ErrInvalidRequest, batchSize)
	}
	if req.RayCount() < uint64(batchSize) {
		return nil, fmt.Errorf("%w: %d rays cannot fill %d chunks",
			ErrInvalidRequest, req.RayCount(), batchSize)
	}

	switch p {
	case LinearChunks:
		return partitionLinear(req, batchSize), nil
	case InterleavedLines:
		return partitionInterleaved(req, batchSize)
	case RectangularTiles:
		return partitionTiles(req, batchSize)
	default:
		return nil, fmt.Errorf("%w: unknown pattern %d", ErrInvalidRequest, int(p))
	}
}

// partitionLinear splits [0, rayCount) into batchSize contiguous chunks.
// The last chunk takes the remainder so coverage is exact.
func partitionLinear(req *RenderRequest, batchSize int) []RenderTask {
	rays := req.RayCount()
	chunk := rays / uint64(batchSize)

	tasks := make([]RenderTask, batchSize)
	for i := range tasks {
		start := uint64(i) * chunk
		count := chunk
		if i == batchSize-1 {
			count = rays - start
		}
		tasks[i] = RenderTask{
			Slot:    i,
			Request: req,
			Spans:   []Span{{Start: start, Count: count}},
			Rays:    count,
		}
	}
	return tasks
}

// partitionInterleaved assigns scanline r to task r % batchSize. Each
// scanline is one contiguous span of width rays.
func partitionInterleaved(req *RenderRequest, batchSize int) ([]RenderTask, error) {
	height := int(req.Height)
	if height < batchSize {
		return nil, fmt.Errorf("%w: %d scanlines cannot interleave across %d contexts",
			ErrInvalidRequest, height, batchSize)
	}

	width := uint64(req.Width)
	tasks := make([]RenderTask, batchSize)
	for i := range tasks {
		rows := height / batchSize
		if i < height%batchSize {
			rows++
		}
		spans := make([]Span, 0, rows)
		var rays uint64
		for r := i; r < height; r += batchSize {
			spans = append(spans, Span{Start: uint64(r) * width, Count: width})
			rays += width
		}
		tasks[i] = RenderTask{Slot: i, Request: req, Spans: spans, Rays: rays}
	}
	return tasks, nil
}

// partitionTiles splits the frame into a cols x rows tile grid with
// cols*rows == batchSize, tiles assigned row-major. Edge tiles absorb the
// pixel remainders.
func partitionTiles(req *RenderRequest, batchSize int) ([]RenderTask, error) {
	cols, rows := tileGrid(batchSize)
	if uint32(cols) > req.Width || uint32(rows) > req.Height {
		return nil, fmt.Errorf("%w: %dx%d frame is smaller than the %dx%d tile grid",
			ErrInvalidRequest, req.Width, req.Height, cols, rows)
	}

	width := uint64(req.Width)
	tileW := int(req.Width) / cols
	tileH := int(req.Height) / rows

	tasks := make([]RenderTask, 0, batchSize)
	for ty := 0; ty < rows; ty++ {
		y0 := ty * tileH
		y1 := y0 + tileH
		if ty == rows-1 {
			y1 = int(req.Height)
		}
		for tx := 0; tx < cols; tx++ {
			x0 := tx * tileW
			x1 := x0 + tileW
			if tx == cols-1 {
				x1 = int(req.Width)
			}

			spans := make([]Span, 0, y1-y0)
			var rays uint64
			for y := y0; y < y1; y++ {
				spans = append(spans, Span{
					Start: uint64(y)*width + uint64(x0),
					Count: uint64(x1 - x0),
				})
				rays += uint64(x1 - x0)
			}
			tasks = append(tasks, RenderTask{
				Slot:    len(tasks),
				Request: req,
				Spans:   spans,
				Rays:    rays,
			})
		}
	}
	return tasks, nil
}

// tileGrid factors n into cols x rows with cols >= rows, keeping the grid
// as square as possible. A prime n degenerates to n x 1.
func tileGrid(n int) (cols, rows int) {
	rows = 1
	for r := intSqrt(n); r >= 1; r-- {
		if n%r == 0 {
			rows = r
			break
		}
	}
	return n / rows, rows
}

// intSqrt returns floor(sqrt(n)) for small positive n.
func intSqrt(n int) int {
	r := 0
	for (r+1)*(r+1) <= n {
		r++
	}
	return r
}
