package collector

import (
	"sync"
	"time"

	"stresstest/internal/core"
)

// Summary is the final report of one test run.
type Summary struct {
	Name        string          `json:"name"`
	Endpoint    string          `json:"endpoint"`
	Calls       int             `json:"calls"`
	Duration    time.Duration   `json:"duration"`
	SuccessRate float64         `json:"successRate"`
	AvgMillis   float64         `json:"avgMs"`
	Latency     DurationMetrics `json:"latency"`
	Error       string          `json:"error,omitempty"`
}

// Collector is the append-only result log of one test run plus the marker
// of what has already been reported in a window. Safe for concurrent use.
type Collector struct {
	name       string
	endpoint   string
	exclude404 bool
	clock      core.Clock

	mu        sync.Mutex
	results   []core.Result
	reported  int
	startTime time.Time
	passStart time.Time
	endTime   time.Time
}

// NewCollector creates a collector and starts its run and pass clocks.
func NewCollector(name, endpoint string, exclude404 bool, clock core.Clock) *Collector {
	if clock == nil {
		clock = core.RealClock{}
	}
	now := clock.Now()
	return &Collector{
		name:       name,
		endpoint:   endpoint,
		exclude404: exclude404,
		clock:      clock,
		results:    make([]core.Result, 0, 1024),
		startTime:  now,
		passStart:  now,
	}
}

// Start restarts the run and pass clocks. A runner calls it when its
// workers start, which may be long after the collector was created.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	c.startTime = now
	c.passStart = now
	c.endTime = time.Time{}
}

// Report appends a result. Thread-safe; never drops.
func (c *Collector) Report(r core.Result) {
	c.mu.Lock()
	c.results = append(c.results, r)
	c.mu.Unlock()
}

// Flush closes the current window: it computes statistics over every result
// appended since the previous Flush, restarts the pass clock and advances the
// reported marker. No result is counted in two windows.
func (c *Collector) Flush() Window {
	c.mu.Lock()
	now := c.clock.Now()
	elapsed := now.Sub(c.passStart)
	c.passStart = now
	// Results are never mutated after append, so the window slice stays
	// stable after the lock is released.
	window := c.results[c.reported:len(c.results):len(c.results)]
	c.reported = len(c.results)
	c.mu.Unlock()

	return ComputeWindow(window, elapsed, c.exclude404)
}

// Close stamps the end of the run. Later calls are no-ops.
func (c *Collector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.endTime.IsZero() {
		c.endTime = c.clock.Now()
	}
}

// Len returns the number of results appended so far.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// Results returns a copy of the result log.
func (c *Collector) Results() []core.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Result, len(c.results))
	copy(out, c.results)
	return out
}

// Duration returns the run duration. If the collector is closed, it is the
// time from start to close; otherwise from start to now.
func (c *Collector) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.endTime.IsZero() {
		return c.endTime.Sub(c.startTime)
	}
	return c.clock.Since(c.startTime)
}

// Summary computes the final report over the full log.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	all := c.results[:len(c.results):len(c.results)]
	c.mu.Unlock()

	w := ComputeWindow(all, 0, c.exclude404)
	return Summary{
		Name:        c.name,
		Endpoint:    c.endpoint,
		Calls:       w.Calls,
		Duration:    c.Duration(),
		SuccessRate: w.SuccessRate,
		AvgMillis:   w.AvgMillis,
		Latency:     w.Latency,
	}
}
