package concurrence

import (
	"context"
	"errors"
	"time"
)

// Thunk is a unit of work. It receives the run's context so it can observe
// external cancellation itself; the runner never cancels it.
type Thunk[T any] func(ctx context.Context) (T, error)

// Entry pairs a task with its key. Use a slice of entries with [RunEntries]
// when keyed tasks must be admitted in a specific order.
type Entry[T any] struct {
	Key  string
	Task Thunk[T]
}

// Result holds the outcome of a completed run.
//
// R is []T for [Run] and map[string]T for [RunMap] and [RunEntries].
// Results contains only tasks that ultimately succeeded.
type Result[R any] struct {
	// RunID identifies the run in logs and spans.
	RunID string

	Results R

	// Errors holds one [*TaskError] per failed task, in the order the
	// failures happened.
	Errors []error

	Succeeded int
	Failed    int

	// Duration is the wall-clock time since the run started.
	Duration time.Duration

	Latency LatencyStats
}

// Err joins every captured task error via [errors.Join].
// It returns nil when no task failed.
func (r *Result[R]) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	return errors.Join(r.Errors...)
}
