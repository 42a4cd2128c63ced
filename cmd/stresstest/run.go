package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"stresstest/internal/collector"
	"stresstest/internal/config"
	"stresstest/internal/coordinator"
	httpx "stresstest/internal/http"
	"stresstest/internal/metrics"
	"stresstest/internal/progress"
	"stresstest/internal/runner"
	"stresstest/internal/token"
)

type runOptions struct {
	configPath  string
	output      string
	quiet       bool
	verbose     bool
	metricsAddr string
}

// runStress loads the configuration, runs every test and writes the report.
// The returned code comes from exitCode once the report is written; setup
// problems come back as errors.
func runStress(ctx context.Context, opts runOptions, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	if opts.output != "text" && opts.output != "json" {
		return ExitError, fmt.Errorf("--output must be 'text' or 'json', got %q", opts.output)
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return ExitError, err
	}
	if err := cfg.Validate(); err != nil {
		return ExitError, fmt.Errorf("invalid config %s: %w", opts.configPath, err)
	}

	// JSON reports keep stdout machine readable.
	console := stdout
	if opts.output == "json" {
		console = stderr
	}
	printer := progress.NewPrinter(console, opts.quiet)

	metricsAddr := cfg.MetricsAddr
	if opts.metricsAddr != "" {
		metricsAddr = opts.metricsAddr
	}
	var recorder *metrics.Recorder
	if metricsAddr != "" {
		recorder = metrics.NewRecorder(nil)
		_, shutdown, err := serveMetrics(metricsAddr, recorder)
		if err != nil {
			return ExitError, err
		}
		defer shutdown()
	}

	var debug *httpx.DebugLogger
	if opts.verbose {
		debug = httpx.NewDebugLoggerFrom(log.Logger)
	}

	deps := runner.Deps{
		Caller:          httpx.NewExecutor(&http.Client{}, cfg.CallTimeout, debug),
		Tokens:          token.NewService(nil),
		Printer:         printer,
		Metrics:         recorder,
		Threads:         cfg.Threads,
		Exclude404:      cfg.Exclude404,
		FailOnAuthError: cfg.FailOnAuthError,
	}
	tests := make([]coordinator.Test, 0, len(cfg.Tests))
	var errs []error
	for _, spec := range cfg.Tests {
		r, err := runner.New(spec, deps)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tests = append(tests, r)
	}
	if err := errors.Join(errs...); err != nil {
		return ExitError, err
	}

	mode := "Sequentially"
	if cfg.Parallel() {
		mode = "in Parallel"
	}
	printer.Printf("Detected %d Test(s) to Run in %d Threads %s.", len(tests), cfg.Threads, mode)

	keys := watchKeys(stdin)
	coord := coordinator.NewCoordinator()
	var summaries []collector.Summary
	if cfg.Parallel() {
		printer.Print("Press Enter to conclude the test.")
		summaries, err = coord.RunParallel(ctx, tests, keys.next(ctx))
	} else {
		summaries, err = coord.RunSequential(ctx, tests, func(testCtx context.Context, i int, t coordinator.Test) <-chan struct{} {
			printer.Printf("Running %s. Press Enter to conclude the test.", t.Name())
			return keys.next(testCtx)
		})
	}
	if err != nil {
		log.Error().Err(err).Msg("run finished with errors")
	}

	var thresholds *collector.ThresholdResults
	if cfg.Thresholds != nil {
		thresholds = cfg.Thresholds.Check(summaries)
	}
	if opts.output == "json" {
		collector.FormatJSON(stdout, summaries, thresholds)
	} else {
		collector.FormatText(stdout, summaries, thresholds)
	}

	return exitCode(err, thresholds), nil
}

// exitCode maps a finished run to the process exit code. A panicked test
// outranks threshold results, since its numbers are incomplete.
func exitCode(runErr error, thresholds *collector.ThresholdResults) int {
	if errors.Is(runErr, coordinator.ErrPanic) {
		return ExitError
	}
	if thresholds != nil && !thresholds.Passed {
		log.Warn().Int("violations", len(thresholds.Violations())).Msg("threshold check failed")
		return ExitThresholdFailed
	}
	return ExitSuccess
}

// serveMetrics exposes the recorder on addr until the returned func is
// called. It returns the bound address.
func serveMetrics(addr string, rec *metrics.Recorder) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("serving metrics on /metrics")

	return ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx) // best effort on exit
	}, nil
}

// keypress turns lines read from the operator's terminal into stop signals.
// A line goes to the most recent waiter still live; with none, it is dropped.
type keypress struct {
	mu        sync.Mutex
	waiter    chan struct{}
	waiterCtx context.Context
}

func watchKeys(r io.Reader) *keypress {
	k := &keypress{}
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			k.fire()
		}
		// EOF leaves signals as the only way to stop.
	}()
	return k
}

// next returns a channel closed by the next line read after the call. It
// replaces any earlier waiter and withdraws once ctx is done, so a test that
// has already ended never takes a line meant for the one after it.
func (k *keypress) next(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{})
	k.mu.Lock()
	k.waiter, k.waiterCtx = ch, ctx
	k.mu.Unlock()
	return ch
}

func (k *keypress) fire() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.waiter == nil {
		return
	}
	if k.waiterCtx.Err() == nil {
		close(k.waiter)
	}
	k.waiter, k.waiterCtx = nil, nil
}
