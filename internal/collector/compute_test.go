package collector

import (
	"math"
	"testing"
	"time"

	"stresstest/internal/core"
)

func results(codes ...int) []core.Result {
	out := make([]core.Result, len(codes))
	for i, c := range codes {
		out[i] = core.Result{StatusCode: c, Elapsed: 10 * time.Millisecond}
	}
	return out
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.01
}

func TestIsSuccess(t *testing.T) {
	tests := []struct {
		status     int
		exclude404 bool
		want       bool
	}{
		{200, false, true},
		{204, false, true},
		{299, false, true},
		{300, false, false},
		{404, false, false},
		{404, true, true},
		{500, true, false},
		{1, false, true}, // below 300
	}
	for _, tt := range tests {
		if got := IsSuccess(tt.status, tt.exclude404); got != tt.want {
			t.Errorf("IsSuccess(%d, %v) = %v, expected %v", tt.status, tt.exclude404, got, tt.want)
		}
	}
}

func TestSuccessRate_Exclude404(t *testing.T) {
	set := results(200, 404, 500)

	if got := SuccessRate(set, false); !almostEqual(got, 33.33) {
		t.Errorf("expected 33.33%%, got %.2f", got)
	}
	if got := SuccessRate(set, true); !almostEqual(got, 66.67) {
		t.Errorf("expected 66.67%%, got %.2f", got)
	}
}

func TestSuccessRate_Idempotent(t *testing.T) {
	set := results(200, 201, 500, 404, 302)
	first := SuccessRate(set, true)
	for i := 0; i < 10; i++ {
		if got := SuccessRate(set, true); got != first {
			t.Fatalf("run %d: expected %v, got %v", i, first, got)
		}
	}
}

func TestComputeWindow_Empty(t *testing.T) {
	w := ComputeWindow(nil, 0, false)
	if w.Calls != 0 || w.AvgMillis != 0 || w.SuccessRate != 0 || w.CallsPerSec != 0 {
		t.Errorf("expected zero window, got %+v", w)
	}
	if math.IsNaN(w.AvgMillis) || math.IsNaN(w.SuccessRate) {
		t.Error("empty window must not produce NaN")
	}
}

func TestComputeWindow_ZeroElapsed(t *testing.T) {
	w := ComputeWindow(results(200, 200), 0, false)
	if w.CallsPerSec != 0 {
		t.Errorf("expected 0 calls/s for zero elapsed, got %v", w.CallsPerSec)
	}
	if w.Calls != 2 {
		t.Errorf("expected 2 calls, got %d", w.Calls)
	}
}

func TestComputeWindow_Stats(t *testing.T) {
	set := []core.Result{
		{StatusCode: 200, Elapsed: 10 * time.Millisecond},
		{StatusCode: 200, Elapsed: 20 * time.Millisecond},
		{StatusCode: 500, Elapsed: 30 * time.Millisecond},
		{StatusCode: 201, Elapsed: 40 * time.Millisecond},
	}
	w := ComputeWindow(set, 2*time.Second, false)

	if w.Calls != 4 || w.Successes != 3 {
		t.Errorf("expected 4 calls / 3 successes, got %d / %d", w.Calls, w.Successes)
	}
	if !almostEqual(w.AvgMillis, 25) {
		t.Errorf("expected 25ms average, got %v", w.AvgMillis)
	}
	if !almostEqual(w.SuccessRate, 75) {
		t.Errorf("expected 75%%, got %v", w.SuccessRate)
	}
	if !almostEqual(w.CallsPerSec, 2) {
		t.Errorf("expected 2 calls/s, got %v", w.CallsPerSec)
	}
	if w.Latency.Min != 10*time.Millisecond || w.Latency.Max != 40*time.Millisecond {
		t.Errorf("unexpected min/max %v/%v", w.Latency.Min, w.Latency.Max)
	}
}

func TestComputePercentile(t *testing.T) {
	durations := []time.Duration{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	if p50 := ComputePercentile(durations, 0.50); p50 != 50 {
		t.Errorf("expected p50=50, got %d", p50)
	}
	if p90 := ComputePercentile(durations, 0.90); p90 != 90 {
		t.Errorf("expected p90=90, got %d", p90)
	}
	if p := ComputePercentile(nil, 0.5); p != 0 {
		t.Errorf("expected 0 for empty input, got %d", p)
	}
}

func TestComputeDurationMetrics_DoesNotModifyInput(t *testing.T) {
	in := []time.Duration{30, 10, 20}
	ComputeDurationMetrics(in)
	if in[0] != 30 || in[1] != 10 || in[2] != 20 {
		t.Errorf("input was modified: %v", in)
	}
}

func BenchmarkComputeWindow(b *testing.B) {
	set := make([]core.Result, 10000)
	for i := range set {
		set[i] = core.Result{StatusCode: 200 + i%3*100, Elapsed: time.Duration(i) * time.Microsecond}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ComputeWindow(set, time.Second, true)
	}
}
