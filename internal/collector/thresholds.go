package collector

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Thresholds defines pass/fail criteria applied to every test summary.
type Thresholds struct {
	MinSuccessRate string        `yaml:"minSuccessRate"` // e.g. "99.5%"
	MaxAvgLatency  time.Duration `yaml:"maxAvgLatency"`
	MaxP95Latency  time.Duration `yaml:"maxP95Latency"`
	MaxP99Latency  time.Duration `yaml:"maxP99Latency"`
}

// ThresholdResult represents the outcome of a single threshold check.
type ThresholdResult struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Threshold string `json:"threshold"`
	Actual    string `json:"actual"`
}

// ThresholdResults contains all threshold check results.
type ThresholdResults struct {
	Passed  bool              `json:"passed"`
	Results []ThresholdResult `json:"results"`
}

// Check evaluates all thresholds against each summary. Tests that did not
// run are skipped; they are reported separately.
func (t *Thresholds) Check(summaries []Summary) *ThresholdResults {
	if t == nil {
		return &ThresholdResults{Passed: true, Results: nil}
	}

	results := &ThresholdResults{
		Passed:  true,
		Results: make([]ThresholdResult, 0),
	}

	for _, s := range summaries {
		if s.Error != "" {
			continue
		}
		label := s.Name
		if label == "" {
			label = s.Endpoint
		}
		if t.MinSuccessRate != "" {
			results.checkSuccessRate(label, t.MinSuccessRate, s.SuccessRate)
		}
		results.checkLatency(label+" avg", t.MaxAvgLatency, time.Duration(s.AvgMillis*float64(time.Millisecond)))
		results.checkLatency(label+" p95", t.MaxP95Latency, s.Latency.P95)
		results.checkLatency(label+" p99", t.MaxP99Latency, s.Latency.P99)
	}

	return results
}

func (r *ThresholdResults) checkLatency(name string, threshold, actual time.Duration) {
	if threshold == 0 {
		return
	}
	passed := actual < threshold
	if !passed {
		r.Passed = false
	}
	r.Results = append(r.Results, ThresholdResult{
		Name:      name,
		Passed:    passed,
		Threshold: "< " + FormatDuration(threshold),
		Actual:    FormatDuration(actual),
	})
}

func (r *ThresholdResults) checkSuccessRate(name, threshold string, actual float64) {
	minRate, err := parsePercentage(threshold)
	if err != nil {
		return
	}
	passed := actual >= minRate
	if !passed {
		r.Passed = false
	}
	r.Results = append(r.Results, ThresholdResult{
		Name:      name + " success",
		Passed:    passed,
		Threshold: ">= " + threshold,
		Actual:    fmt.Sprintf("%.2f%%", actual),
	})
}

// parsePercentage parses "99.5%" into 99.5.
func parsePercentage(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "%") {
		return 0, fmt.Errorf("invalid percentage format: %s", s)
	}
	s = strings.TrimSuffix(s, "%")
	return strconv.ParseFloat(s, 64)
}

// ValidatePercentage reports whether s is a percentage Check can use.
func ValidatePercentage(s string) error {
	_, err := parsePercentage(s)
	return err
}

// Violations returns only the failed threshold results.
func (r *ThresholdResults) Violations() []ThresholdResult {
	violations := make([]ThresholdResult, 0)
	for _, result := range r.Results {
		if !result.Passed {
			violations = append(violations, result)
		}
	}
	return violations
}
