package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"stresstest/internal/core"
)

func TestStatusClass(t *testing.T) {
	tests := map[int]string{200: "2xx", 204: "2xx", 301: "3xx", 404: "4xx", 500: "5xx", 0: "other", 700: "other"}
	for code, want := range tests {
		if got := StatusClass(code); got != want {
			t.Errorf("StatusClass(%d) = %q, expected %q", code, got, want)
		}
	}
}

func TestRecorder_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.Observe("orders", core.Result{StatusCode: 200, Elapsed: 5 * time.Millisecond})
	r.Observe("orders", core.Result{StatusCode: 201, Elapsed: 7 * time.Millisecond})
	r.Observe("orders", core.Result{StatusCode: 500, Elapsed: 9 * time.Millisecond})

	if got := testutil.ToFloat64(r.calls.WithLabelValues("orders", "2xx")); got != 2 {
		t.Errorf("expected 2 2xx calls, got %v", got)
	}
	if got := testutil.ToFloat64(r.calls.WithLabelValues("orders", "5xx")); got != 1 {
		t.Errorf("expected 1 5xx call, got %v", got)
	}
	if n := testutil.CollectAndCount(r.latency); n != 1 {
		t.Errorf("expected one latency series, got %d", n)
	}
}

func TestRecorder_ForTest(t *testing.T) {
	r := NewRecorder(nil)
	rep := r.ForTest("search")
	rep.Report(core.Result{StatusCode: 404})

	if got := testutil.ToFloat64(r.calls.WithLabelValues("search", "4xx")); got != 1 {
		t.Errorf("expected 1 4xx call, got %v", got)
	}
}

func TestRecorder_Workers(t *testing.T) {
	r := NewRecorder(nil)
	r.WorkerStarted("a")
	r.WorkerStarted("a")
	r.WorkerStopped("a")

	if got := testutil.ToFloat64(r.workers.WithLabelValues("a")); got != 1 {
		t.Errorf("expected 1 active worker, got %v", got)
	}
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	r.Observe("x", core.Result{StatusCode: 200})
	r.WorkerStarted("x")
	r.WorkerStopped("x")
	r.ForTest("x").Report(core.Result{})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("expected 404 from nil recorder, got %d", rec.Code)
	}
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder(nil)
	r.Observe("health", core.Result{StatusCode: 200, Elapsed: time.Millisecond})

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`stresstest_calls_total{class="2xx",test="health"} 1`,
		"stresstest_call_duration_seconds_bucket",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected %q in exposition:\n%s", want, body)
		}
	}
}
