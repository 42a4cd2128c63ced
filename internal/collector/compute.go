// Package collector provides metrics computation for stress test results.
package collector

import (
	"net/http"
	"sort"
	"time"

	"stresstest/internal/core"
)

// Window holds the statistics of a contiguous span of results.
type Window struct {
	Calls       int             `json:"calls"`
	Successes   int             `json:"successes"`
	SuccessRate float64         `json:"successRate"` // percent
	AvgMillis   float64         `json:"avgMs"`
	CallsPerSec float64         `json:"callsPerSec"`
	Elapsed     time.Duration   `json:"elapsed"`
	Latency     DurationMetrics `json:"latency"`
}

// DurationMetrics contains latency statistics.
type DurationMetrics struct {
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
	Avg time.Duration `json:"avg"`
	P50 time.Duration `json:"p50"`
	P90 time.Duration `json:"p90"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`
}

// IsSuccess classifies a status code. Anything below 300 succeeds; 404 also
// succeeds when exclude404 is set.
func IsSuccess(status int, exclude404 bool) bool {
	return status < http.StatusMultipleChoices || (exclude404 && status == http.StatusNotFound)
}

// SuccessRate returns the percentage of successful results, 0 for none.
func SuccessRate(results []core.Result, exclude404 bool) float64 {
	if len(results) == 0 {
		return 0
	}
	ok := 0
	for _, r := range results {
		if IsSuccess(r.StatusCode, exclude404) {
			ok++
		}
	}
	return float64(ok) / float64(len(results)) * 100
}

// ComputeWindow computes statistics over results collected during elapsed.
// Pure function; empty input and zero elapsed time yield zeros.
func ComputeWindow(results []core.Result, elapsed time.Duration, exclude404 bool) Window {
	w := Window{Calls: len(results), Elapsed: elapsed}
	if len(results) == 0 {
		return w
	}

	durations := make([]time.Duration, 0, len(results))
	var total time.Duration
	for _, r := range results {
		if IsSuccess(r.StatusCode, exclude404) {
			w.Successes++
		}
		total += r.Elapsed
		durations = append(durations, r.Elapsed)
	}

	w.SuccessRate = float64(w.Successes) / float64(w.Calls) * 100
	w.AvgMillis = float64(total) / float64(w.Calls) / float64(time.Millisecond)
	if elapsed > 0 {
		w.CallsPerSec = float64(w.Calls) / elapsed.Seconds()
	}
	w.Latency = ComputeDurationMetrics(durations)
	return w
}

// ComputeDurationMetrics computes min/max/avg/percentiles. The input is not
// modified.
func ComputeDurationMetrics(durations []time.Duration) DurationMetrics {
	if len(durations) == 0 {
		return DurationMetrics{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	return DurationMetrics{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: total / time.Duration(len(sorted)),
		P50: ComputePercentile(sorted, 0.50),
		P90: ComputePercentile(sorted, 0.90),
		P95: ComputePercentile(sorted, 0.95),
		P99: ComputePercentile(sorted, 0.99),
	}
}

// ComputePercentile returns the nearest-rank percentile from a sorted slice.
// p is between 0 and 1 (e.g., 0.95 for p95).
func ComputePercentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted))*p+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
