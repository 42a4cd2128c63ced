// Package dispatch hands out round-robin indices into a test's dispatch list.
package dispatch

import (
	"errors"
	"sync"
)

// ErrNoEntries is returned when a distributor is built over an empty list.
var ErrNoEntries = errors.New("dispatch list has no entries")

// Distributor owns the cursor into a fixed-length dispatch list.
// Safe for concurrent use by all workers of a test.
type Distributor struct {
	mu     sync.Mutex
	cursor int
	n      int
	passes uint64
}

// NewDistributor creates a distributor over a list of n entries.
func NewDistributor(n int) (*Distributor, error) {
	if n <= 0 {
		return nil, ErrNoEntries
	}
	return &Distributor{n: n}, nil
}

// Next returns the index to dispatch and advances the cursor. When the
// advance wraps the cursor back to 0, passComplete is true for exactly the
// caller that caused the wrap.
func (d *Distributor) Next() (index int, passComplete bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	index = d.cursor
	d.cursor++
	if d.cursor >= d.n {
		d.cursor = 0
		d.passes++
		passComplete = true
	}
	return index, passComplete
}

// Len returns the length of the dispatch list.
func (d *Distributor) Len() int {
	return d.n
}

// Passes returns the number of completed passes.
func (d *Distributor) Passes() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.passes
}
