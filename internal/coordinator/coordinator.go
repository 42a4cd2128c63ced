// Package coordinator runs tests either all at once or one after another,
// stopping each on an operator signal.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"stresstest/internal/collector"
)

// ErrPanic marks a test that stopped by panicking.
var ErrPanic = errors.New("test panicked")

// Test is one runnable workload. *runner.Runner satisfies it.
type Test interface {
	Name() string
	Endpoint() string
	Run(ctx context.Context) collector.Summary
}

// StopFunc returns the signal that ends the i-th test of a sequential run.
// It is called just before the test starts. ctx is done once that test has
// returned, however it ended, so anything waiting on the operator's behalf
// must give up then and leave the next signal to the next test.
type StopFunc func(ctx context.Context, i int, t Test) <-chan struct{}

// Coordinator owns the lifecycle of a run's tests.
type Coordinator struct {
	logger zerolog.Logger
}

// NewCoordinator creates a coordinator logging through the global logger.
func NewCoordinator() *Coordinator {
	return &Coordinator{logger: log.Logger}
}

// RunParallel starts every test at once and stops them all when stop fires
// or ctx is done. A test whose Run panics gets an error summary and stops the
// others too. Only the goroutine calling Run is covered: a test that starts
// goroutines of its own must carry their panics back to Run, as
// runner.Runner does. Summaries are in test order.
func (c *Coordinator) RunParallel(ctx context.Context, tests []Test, stop <-chan struct{}) ([]collector.Summary, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go cancelOn(runCtx, stop, cancel)

	summaries := make([]collector.Summary, len(tests))
	g, gctx := errgroup.WithContext(runCtx)
	for i, t := range tests {
		g.Go(func() error {
			var err error
			summaries[i], err = c.run(gctx, t)
			return err
		})
	}
	err := g.Wait()
	return summaries, err
}

// RunSequential runs tests one at a time; each runs until the channel that
// stopFor returns for it fires. Cancelling ctx stops the current test and
// skips the rest, so fewer summaries than tests may come back.
func (c *Coordinator) RunSequential(ctx context.Context, tests []Test, stopFor StopFunc) ([]collector.Summary, error) {
	summaries := make([]collector.Summary, 0, len(tests))
	var errs []error
	for i, t := range tests {
		if ctx.Err() != nil {
			c.logger.Info().Int("skipped", len(tests)-i).Msg("run cancelled, remaining tests skipped")
			break
		}

		runCtx, cancel := context.WithCancel(ctx)
		var stop <-chan struct{}
		if stopFor != nil {
			stop = stopFor(runCtx, i, t)
		}
		go cancelOn(runCtx, stop, cancel)

		s, err := c.run(runCtx, t)
		cancel()
		summaries = append(summaries, s)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return summaries, errors.Join(errs...)
}

func (c *Coordinator) run(ctx context.Context, t Test) (s collector.Summary, err error) {
	defer c.recoverPanic(t, &s, &err)
	return t.Run(ctx), nil
}

// recoverPanic turns a panicking test into an error summary.
func (c *Coordinator) recoverPanic(t Test, s *collector.Summary, err *error) {
	r := recover()
	if r == nil {
		return
	}
	c.logger.Error().
		Str("test", t.Name()).
		Str("stack", string(debug.Stack())).
		Msgf("test panicked: %v", r)
	*s = collector.Summary{
		Name:     t.Name(),
		Endpoint: t.Endpoint(),
		Error:    fmt.Sprintf("panic: %v", r),
	}
	*err = fmt.Errorf("%w: %s: %v", ErrPanic, t.Name(), r)
}

// cancelOn calls cancel once stop fires. A nil stop never fires, leaving
// ctx as the only way out.
func cancelOn(ctx context.Context, stop <-chan struct{}, cancel context.CancelFunc) {
	select {
	case <-stop:
		cancel()
	case <-ctx.Done():
	}
}
