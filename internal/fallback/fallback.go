// Package fallback runs an ordered list of strategies until one succeeds.
//
// Host automation often needs several ways of doing the same thing because
// any single path may silently fail. The order of those paths is data here:
// a Chain is a slice of named strategies, and FirstSuccess walks it.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Strategy is one named way of producing a T.
type Strategy[T any] struct {
	// Name identifies the strategy in logs, errors and relay events.
	Name string

	// Run performs the attempt.
	Run func(ctx context.Context) (T, error)
}

// Attempt records the outcome of running one strategy.
type Attempt struct {
	Strategy string
	Err      error
	Elapsed  time.Duration
}

// Succeeded reports whether the attempt produced a result.
func (a Attempt) Succeeded() bool { return a.Err == nil }

// ExhaustedError is returned when every strategy failed.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Strategy, a.Err))
	}
	return "all strategies failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes every attempt error to errors.Is and errors.As.
func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// Names returns the attempted strategy names in order.
func (e *ExhaustedError) Names() []string {
	return Names(e.Attempts)
}

// Names returns the strategy names of a list of attempts.
func Names(attempts []Attempt) []string {
	names := make([]string, 0, len(attempts))
	for _, a := range attempts {
		names = append(names, a.Strategy)
	}
	return names
}

// ErrNoStrategies is returned when a chain is empty.
var ErrNoStrategies = errors.New("no strategies configured")

// Option configures FirstSuccess.
type Option func(*options)

type options struct {
	onAttempt func(Attempt)
}

// OnAttempt registers a hook called after every attempt, in order.
func OnAttempt(fn func(Attempt)) Option {
	return func(o *options) { o.onAttempt = fn }
}

// FirstSuccess runs strategies in order and returns the first result
// that is produced without error, together with every attempt made.
// A cancelled context stops the walk; the context error is returned as is.
func FirstSuccess[T any](ctx context.Context, strategies []Strategy[T], opts ...Option) (T, []Attempt, error) {
	var zero T
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if len(strategies) == 0 {
		return zero, nil, ErrNoStrategies
	}

	attempts := make([]Attempt, 0, len(strategies))
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return zero, attempts, err
		}

		start := time.Now()
		result, err := s.Run(ctx)
		attempt := Attempt{Strategy: s.Name, Err: err, Elapsed: time.Since(start)}
		attempts = append(attempts, attempt)
		if o.onAttempt != nil {
			o.onAttempt(attempt)
		}

		if err == nil {
			return result, attempts, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, attempts, ctxErr
		}
	}

	return zero, attempts, &ExhaustedError{Attempts: attempts}
}
