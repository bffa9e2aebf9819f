// Package poll waits for eventually-consistent state to converge.
//
// Until evaluates a check immediately and then once per interval until the
// check is satisfied or the timeout elapses. The timeout is a hard ceiling:
// the last wait is clipped to the deadline, so a timed out poll returns at
// the deadline and never retries past it.
package poll

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/go-cmp/cmp"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/failure"
)

const (
	DefaultTimeout  = 20 * time.Second
	DefaultInterval = 2 * time.Second
)

// Check observes the state once and reports whether the predicate holds for it.
// The observed value is kept so a timeout can report what was last seen.
type Check[T any] func(ctx context.Context) (observed T, satisfied bool, err error)

// Options configure a poll.
type Options struct {
	timeout     time.Duration
	interval    time.Duration
	clock       clock.Clock
	description string
}

// Option configures a poll.
type Option func(*Options)

// WithTimeout sets the hard ceiling of the poll.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.timeout = timeout
	}
}

// WithInterval sets the wait between two observations.
func WithInterval(interval time.Duration) Option {
	return func(o *Options) {
		o.interval = interval
	}
}

// WithClock replaces the real clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(o *Options) {
		o.clock = c
	}
}

// WithDescription names the predicate in logs and timeout failures.
func WithDescription(format string, args ...any) Option {
	return func(o *Options) {
		o.description = fmt.Sprintf(format, args...)
	}
}

func defaultOptions() *Options {
	return &Options{
		timeout:     DefaultTimeout,
		interval:    DefaultInterval,
		clock:       clock.RealClock{},
		description: "condition",
	}
}

func (o *Options) validate() error {
	switch {
	case o.timeout <= 0:
		return fmt.Errorf("poll timeout must be positive, got %s", o.timeout)
	case o.interval <= 0:
		return fmt.Errorf("poll interval must be positive, got %s", o.interval)
	case o.interval > o.timeout:
		return fmt.Errorf("poll interval %s exceeds timeout %s", o.interval, o.timeout)
	}
	return nil
}

// Outcome is the result of a poll: either Satisfied with the value that
// satisfied the check, or timed out with the last value observed.
type Outcome[T any] struct {
	Satisfied bool
	Value     T
	// LastErr is the error of the last observation, if it failed.
	LastErr  error
	Attempts int
	Elapsed  time.Duration

	description string
}

// TimedOut reports whether the deadline elapsed before the check held.
func (o Outcome[T]) TimedOut() bool {
	return !o.Satisfied
}

// Err returns nil when the poll was satisfied, and a ConvergenceTimeout
// failure naming the predicate and the last observed value otherwise.
func (o Outcome[T]) Err() error {
	if o.Satisfied {
		return nil
	}
	var last any = o.Value
	if o.LastErr != nil && reflect.ValueOf(&o.Value).Elem().IsZero() {
		last = nil
	}
	return failure.New(failure.ConvergenceTimeout, fmt.Sprintf("%s within %s", o.description, o.Elapsed.Round(time.Millisecond)), last, o.LastErr)
}

type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// Terminal marks an observation error that must stop the poll immediately
// instead of being retried on the next tick.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// exportAll lets cmp compare observations holding unexported fields.
var exportAll = cmp.Exporter(func(reflect.Type) bool { return true })

// Until polls check until it is satisfied or the timeout elapses. A timeout
// is not an error: it is reported through the returned Outcome. The error is
// non-nil only for invalid options, a Terminal observation error or a
// cancelled context.
func Until[T any](ctx context.Context, check Check[T], opts ...Option) (Outcome[T], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	out := Outcome[T]{description: o.description}
	if err := o.validate(); err != nil {
		return out, err
	}

	logger := klog.FromContext(ctx).WithValues("objective", o.description)
	logger.V(1).Info("Waiting", "timeout", o.timeout, "interval", o.interval)

	start := o.clock.Now()
	var previous any
	observedOnce := false
	for {
		observed, satisfied, err := check(ctx)
		out.Attempts++
		out.Elapsed = o.clock.Since(start)

		if err != nil {
			var terminal *terminalError
			if errors.As(err, &terminal) {
				return out, terminal.err
			}
			if out.LastErr == nil || out.LastErr.Error() != err.Error() {
				logger.V(2).Info("Observation failed", "attempt", out.Attempts, "err", err)
			}
			out.LastErr = err
		} else {
			out.Value, out.LastErr = observed, nil
			if !observedOnce || !cmp.Equal(previous, any(observed), exportAll) {
				logger.V(2).Info("Observed", "attempt", out.Attempts, "elapsed", out.Elapsed, "satisfied", satisfied, "value", observed)
			}
			previous, observedOnce = observed, true
			if satisfied {
				out.Satisfied = true
				logger.V(1).Info("Converged", "attempts", out.Attempts, "elapsed", out.Elapsed)
				return out, nil
			}
		}

		remaining := o.timeout - out.Elapsed
		if remaining <= 0 {
			logger.Info("Timed out", "attempts", out.Attempts, "elapsed", out.Elapsed, "lastObserved", out.Value, "lastErr", out.LastErr)
			return out, nil
		}
		timer := o.clock.NewTimer(min(o.interval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return out, ctx.Err()
		case <-timer.C():
		}
	}
}

// Gone polls until exists reports false, the "row disappears" transition.
func Gone(ctx context.Context, exists func(ctx context.Context) (bool, error), opts ...Option) (Outcome[bool], error) {
	return Until(ctx, func(ctx context.Context) (bool, bool, error) {
		present, err := exists(ctx)
		return present, err == nil && !present, err
	}, opts...)
}
