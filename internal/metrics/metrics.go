// Package metrics exports per-test call counters and latency histograms in
// the Prometheus format.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stresstest/internal/core"
)

// Recorder holds the collectors of one run. A nil *Recorder drops every
// observation.
type Recorder struct {
	gatherer prometheus.Gatherer

	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
	workers *prometheus.GaugeVec
}

// NewRecorder registers the run's collectors with reg. A nil reg uses a
// fresh registry so recorders never collide across runs.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &Recorder{
		gatherer: reg,
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stresstest_calls_total",
			Help: "Calls issued, by test and status class.",
		}, []string{"test", "class"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stresstest_call_duration_seconds",
			Help:    "Call latency distribution.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"test"}),
		workers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stresstest_active_workers",
			Help: "Workers currently running.",
		}, []string{"test"}),
	}
	reg.MustRegister(r.calls, r.latency, r.workers)
	return r
}

// Observe records one call result under test.
func (r *Recorder) Observe(test string, res core.Result) {
	if r == nil {
		return
	}
	r.calls.WithLabelValues(test, StatusClass(res.StatusCode)).Inc()
	r.latency.WithLabelValues(test).Observe(res.Elapsed.Seconds())
}

// WorkerStarted and WorkerStopped track the live worker count of a test.
func (r *Recorder) WorkerStarted(test string) {
	if r == nil {
		return
	}
	r.workers.WithLabelValues(test).Inc()
}

func (r *Recorder) WorkerStopped(test string) {
	if r == nil {
		return
	}
	r.workers.WithLabelValues(test).Dec()
}

// ForTest binds the recorder to one test so it can be used as a reporter.
func (r *Recorder) ForTest(test string) core.Reporter {
	return testReporter{r: r, test: test}
}

// Handler serves the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

type testReporter struct {
	r    *Recorder
	test string
}

func (t testReporter) Report(res core.Result) { t.r.Observe(t.test, res) }

// StatusClass buckets a status code as "2xx", "4xx" and so on.
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}
