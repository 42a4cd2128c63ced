package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// endpointSuffixLen is how much of the endpoint a progress line shows.
const endpointSuffixLen = 20

// FormatProgress renders a window as a one-line progress report.
func FormatProgress(endpoint string, w Window) string {
	return fmt.Sprintf("Current Progress '...%s' - %.2fms average   %.2f%% success with %.0f calls/s",
		endpointSuffix(endpoint), w.AvgMillis, w.SuccessRate, w.CallsPerSec)
}

// FormatSummary renders the final one-line report of a test.
func FormatSummary(s Summary) string {
	if s.Error != "" {
		return fmt.Sprintf("%s did not run: %s", s.Endpoint, s.Error)
	}
	return fmt.Sprintf("%s was ran %s times for %.2f Minutes and had %.2f%% success with average %.2f ms average call time.",
		s.Endpoint, formatNumber(s.Calls), s.Duration.Minutes(), s.SuccessRate, s.AvgMillis)
}

// FormatText writes every summary line followed by threshold results.
func FormatText(w io.Writer, summaries []Summary, thresholds *ThresholdResults) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No tests ran")
		return
	}

	fmt.Fprintln(w, "")
	for _, s := range summaries {
		fmt.Fprintln(w, FormatSummary(s))
		if s.Error == "" && s.Calls > 0 {
			fmt.Fprintf(w, "  latency min=%s p50=%s p95=%s p99=%s max=%s\n",
				FormatDuration(s.Latency.Min),
				FormatDuration(s.Latency.P50),
				FormatDuration(s.Latency.P95),
				FormatDuration(s.Latency.P99),
				FormatDuration(s.Latency.Max))
		}
	}

	if thresholds != nil && len(thresholds.Results) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Thresholds:")
		for _, result := range thresholds.Results {
			symbol := "✓"
			if !result.Passed {
				symbol = "✗"
			}
			fmt.Fprintf(w, "  %s %s %s (actual: %s)\n",
				symbol, result.Name, result.Threshold, result.Actual)
		}
	}
}

// FormatJSON writes summaries in JSON format.
func FormatJSON(w io.Writer, summaries []Summary, thresholds *ThresholdResults) {
	output := struct {
		Tests      []jsonSummary     `json:"tests"`
		Thresholds *ThresholdResults `json:"thresholds,omitempty"`
	}{
		Tests:      make([]jsonSummary, 0, len(summaries)),
		Thresholds: thresholds,
	}

	for _, s := range summaries {
		output.Tests = append(output.Tests, jsonSummary{
			Name:        s.Name,
			Endpoint:    s.Endpoint,
			Calls:       s.Calls,
			Duration:    s.Duration.Round(time.Millisecond).String(),
			SuccessRate: s.SuccessRate,
			AvgMillis:   s.AvgMillis,
			Latency:     toJSONDurationMetrics(s.Latency),
			Error:       s.Error,
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(output) // stdout errors are unrecoverable
}

type jsonSummary struct {
	Name        string              `json:"name,omitempty"`
	Endpoint    string              `json:"endpoint"`
	Calls       int                 `json:"calls"`
	Duration    string              `json:"duration"`
	SuccessRate float64             `json:"successRate"`
	AvgMillis   float64             `json:"avgMs"`
	Latency     jsonDurationMetrics `json:"latency"`
	Error       string              `json:"error,omitempty"`
}

type jsonDurationMetrics struct {
	Min string `json:"min"`
	Max string `json:"max"`
	P50 string `json:"p50"`
	P90 string `json:"p90"`
	P95 string `json:"p95"`
	P99 string `json:"p99"`
}

func toJSONDurationMetrics(d DurationMetrics) jsonDurationMetrics {
	return jsonDurationMetrics{
		Min: FormatDuration(d.Min),
		Max: FormatDuration(d.Max),
		P50: FormatDuration(d.P50),
		P90: FormatDuration(d.P90),
		P95: FormatDuration(d.P95),
		P99: FormatDuration(d.P99),
	}
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

func endpointSuffix(endpoint string) string {
	if len(endpoint) <= endpointSuffixLen {
		return endpoint
	}
	return endpoint[len(endpoint)-endpointSuffixLen:]
}

func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	if n < 0 || len(s) <= 3 {
		return s
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return string(out)
}
