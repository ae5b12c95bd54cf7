package gpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/turbonerf"
)

// Default memory limits.
const (
	// DefaultBudgetMB is the default device memory budget for task
	// workspaces (512 MB).
	DefaultBudgetMB = 512

	// MinBudgetMB is the minimum allowed budget (16 MB).
	MinBudgetMB = 16
)

// budget tracks device memory reserved for task workspaces and enforces the
// engine-wide limit. Every workspace reserves before allocating and releases
// after destroying its buffers, so usedBytes never understates live device
// memory.
//
// budget is safe for concurrent use.
type budget struct {
	mu    sync.Mutex
	total uint64
	used  uint64
}

// newBudget creates a budget of megabytes MB. Configurations below
// MinBudgetMB fall back to DefaultBudgetMB.
func newBudget(megabytes int) *budget {
	if megabytes < MinBudgetMB {
		megabytes = DefaultBudgetMB
	}
	return &budget{total: uint64(megabytes) * 1024 * 1024}
}

// reserve claims n bytes from the budget. It fails with an error wrapping
// turbonerf.ErrResourceExhausted when the claim does not fit; the budget is
// unchanged in that case.
func (b *budget) reserve(n uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > b.total-b.used {
		return fmt.Errorf("%w: need %d bytes, %d of %d in use",
			turbonerf.ErrResourceExhausted, n, b.used, b.total)
	}
	b.used += n
	return nil
}

// release returns n bytes to the budget.
func (b *budget) release(n uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > b.used {
		// Accounting drift would mask leaks; clamp and complain.
		slogger().Warn("budget release exceeds usage", "release", n, "used", b.used)
		n = b.used
	}
	b.used -= n
}

// inUse returns the bytes currently reserved.
func (b *budget) inUse() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// String returns a human-readable summary.
func (b *budget) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("Budget[%d/%d MB in use]", b.used/(1024*1024), b.total/(1024*1024))
}
