// Package runner drives one configured test: a fixed pool of workers that
// cycle through the test's entries until the run context is cancelled.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"stresstest/internal/collector"
	"stresstest/internal/config"
	"stresstest/internal/core"
	"stresstest/internal/dispatch"
	"stresstest/internal/metrics"
	"stresstest/internal/progress"
	"stresstest/internal/ratelimit"
	"stresstest/internal/token"
)

// ErrAuthentication is the summary error of a test whose first token
// acquisition failed while failOnAuthError is set.
var ErrAuthentication = errors.New("token acquisition failed")

// Deps are the collaborators shared by every runner of a run.
type Deps struct {
	Caller  core.Caller
	Tokens  *token.Service // nil disables OAuth tests
	Clock   core.Clock
	Printer *progress.Printer
	Metrics *metrics.Recorder

	Threads         int // default worker count
	Exclude404      bool
	FailOnAuthError bool
}

// Runner runs one test.
type Runner struct {
	name     string
	endpoint string
	workers  int

	entries   core.Dispatch
	dist      *dispatch.Distributor
	tokens    core.TokenSource
	oauth     *token.Cache
	limiter   *ratelimit.RateLimiter
	collector *collector.Collector
	reporter  core.Reporter

	caller          core.Caller
	printer         *progress.Printer
	metrics         *metrics.Recorder
	failOnAuthError bool

	panicOnce sync.Once
	panicked  error
}

// New resolves a test's dispatch list and token source. It fails when the
// test has nothing to send.
func New(spec config.TestSpec, deps Deps) (*Runner, error) {
	if deps.Caller == nil {
		return nil, errors.New("runner: nil caller")
	}
	entries, err := spec.Dispatch()
	if err != nil {
		return nil, fmt.Errorf("test %q: %w", spec.Label(), err)
	}
	dist, err := dispatch.NewDistributor(entries.Len())
	if err != nil {
		return nil, fmt.Errorf("test %q: %w", spec.Label(), err)
	}
	workers := spec.WorkerCount(deps.Threads)
	if workers < 1 {
		return nil, fmt.Errorf("test %q: threads must be at least 1, got %d", spec.Label(), workers)
	}
	clock := deps.Clock
	if clock == nil {
		clock = core.RealClock{}
	}

	r := &Runner{
		name:            spec.Label(),
		endpoint:        spec.EndPoint,
		workers:         workers,
		entries:         entries,
		dist:            dist,
		limiter:         ratelimit.NewRateLimiter(spec.RPS),
		collector:       collector.NewCollector(spec.Label(), spec.EndPoint, deps.Exclude404, clock),
		caller:          deps.Caller,
		printer:         deps.Printer,
		metrics:         deps.Metrics,
		failOnAuthError: deps.FailOnAuthError,
	}

	switch {
	case spec.Token != "":
		r.tokens = core.StaticToken(spec.Token)
	case spec.UsesOAuth():
		if deps.Tokens == nil {
			return nil, fmt.Errorf("test %q: client credentials configured without a token service", spec.Label())
		}
		r.oauth = token.NewCache(deps.Tokens, spec.Credentials(), clock)
		r.tokens = r.oauth
	}

	r.reporter = core.Reporters{r.collector, deps.Metrics.ForTest(r.name)}
	return r, nil
}

func (r *Runner) Name() string     { return r.name }
func (r *Runner) Endpoint() string { return r.endpoint }
func (r *Runner) Workers() int     { return r.workers }

// Collector exposes the result log, mainly for tests and reporting.
func (r *Runner) Collector() *collector.Collector { return r.collector }

// Run starts the workers and blocks until ctx is cancelled and every
// in-flight call has completed. It returns the test summary. A panicking
// worker stops the other workers, and Run then panics with an error naming
// that worker, so the panic reaches the caller's goroutine.
func (r *Runner) Run(ctx context.Context) collector.Summary {
	logger := log.With().Str("test", r.name).Logger()

	if r.oauth != nil {
		tok := r.oauth.Token(ctx)
		if !tok.Usable() {
			logger.Warn().Str("code", tok.ErrorCode).Str("reason", tok.ErrorMessage).Msg("initial token acquisition failed")
			if r.failOnAuthError {
				r.collector.Start()
				r.collector.Close()
				s := r.collector.Summary()
				s.Error = fmt.Sprintf("%v: %s", ErrAuthentication, tok.ErrorMessage)
				return s
			}
		}
	}

	logger.Info().
		Str("endpoint", r.endpoint).
		Int("workers", r.workers).
		Int("entries", r.entries.Len()).
		Str("kind", r.entries.Kind().String()).
		Float64("rps", r.limiter.Limit()).
		Msg("test started")

	workCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	r.collector.Start()
	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			defer r.recoverWorker(id, stopWorkers, logger)
			r.work(core.ContextWithWorkerID(workCtx, id))
		}(i + 1)
	}
	wg.Wait()
	r.collector.Close()
	if r.panicked != nil {
		panic(r.panicked)
	}

	s := r.collector.Summary()
	logger.Info().
		Int("calls", s.Calls).
		Float64("success", s.SuccessRate).
		Dur("duration", s.Duration).
		Msg("test stopped")
	return s
}

// recoverWorker keeps the first worker panic and stops the remaining workers.
func (r *Runner) recoverWorker(id int, stop context.CancelFunc, logger zerolog.Logger) {
	p := recover()
	if p == nil {
		return
	}
	logger.Error().
		Int("worker", id).
		Str("stack", string(debug.Stack())).
		Msgf("worker panicked: %v", p)
	r.panicOnce.Do(func() {
		r.panicked = fmt.Errorf("worker %d: %v", id, p)
	})
	stop()
}

// work is one worker's loop. Cancellation is checked between calls only; a
// call already issued runs to completion (or to the executor's timeout).
func (r *Runner) work(ctx context.Context) {
	r.metrics.WorkerStarted(r.name)
	defer r.metrics.WorkerStopped(r.name)

	callCtx := context.WithoutCancel(ctx)
	for ctx.Err() == nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return
		}

		i, passComplete := r.dist.Next()
		if passComplete {
			r.printer.Window(r.endpoint, r.collector.Flush())
		}

		var bearer string
		if r.tokens != nil {
			bearer = r.tokens.Bearer(callCtx)
		}
		r.reporter.Report(r.caller.Call(callCtx, r.endpoint, r.entries.Entry(i), bearer))
	}
}
