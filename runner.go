package concurrence

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Run executes tasks with bounded concurrency and returns the values of the
// tasks that succeeded, in submission order.
//
// Failures are collected into [Result.Errors] unless [WithFailFast] is set,
// in which case the first task to exhaust its attempts is returned as a
// [*TaskError] and the result is nil. A run that exceeds [WithTimeout]
// returns a [*TimeoutError]. Cancelling ctx is not an error: workers stop
// claiming new tasks and the result reports whatever finished.
//
//	res, err := concurrence.Run(ctx, []concurrence.Thunk[string]{fetchA, fetchB},
//	    concurrence.WithConcurrency(4), concurrence.WithRetry(2))
//
// Run panics if any task is nil.
func Run[T any](ctx context.Context, tasks []Thunk[T], opts ...Option) (*Result[[]T], error) {
	entries := make([]Entry[T], len(tasks))
	for i, task := range tasks {
		entries[i] = Entry[T]{Key: strconv.Itoa(i), Task: task}
	}

	r, err := execute(ctx, entries, opts)
	if err != nil {
		return nil, err
	}

	// Completion order is irrelevant for slice output.
	slices.SortFunc(r.records, func(a, b record[T]) int {
		return cmp.Compare(a.index, b.index)
	})
	values := make([]T, 0, len(r.records))
	for _, rec := range r.records {
		values = append(values, rec.val)
	}
	return newResult(r, values), nil
}

// RunMap executes keyed tasks with bounded concurrency and returns a map of
// the keys that succeeded. Keys are admitted in sorted order; use
// [RunEntries] to control admission order. Semantics otherwise match [Run].
func RunMap[T any](ctx context.Context, tasks map[string]Thunk[T], opts ...Option) (*Result[map[string]T], error) {
	keys := make([]string, 0, len(tasks))
	for k := range tasks {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	entries := make([]Entry[T], len(keys))
	for i, k := range keys {
		entries[i] = Entry[T]{Key: k, Task: tasks[k]}
	}
	return RunEntries(ctx, entries, opts...)
}

// RunEntries executes keyed tasks in the given admission order and returns
// a map of the keys that succeeded. Semantics otherwise match [Run].
//
// RunEntries panics if a key repeats or a task is nil.
func RunEntries[T any](ctx context.Context, entries []Entry[T], opts ...Option) (*Result[map[string]T], error) {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Key]; dup {
			panic(fmt.Sprintf("concurrence: duplicate entry key %q", e.Key))
		}
		seen[e.Key] = struct{}{}
	}

	r, err := execute(ctx, entries, opts)
	if err != nil {
		return nil, err
	}

	values := make(map[string]T, len(r.records))
	for _, rec := range r.records {
		values[rec.key] = rec.val
	}
	return newResult(r, values), nil
}

type record[T any] struct {
	index int
	key   string
	val   T
}

// run is the state of a single invocation. It is discarded once the
// caller has its answer.
type run[T any] struct {
	id      string
	cfg     config
	log     *slog.Logger
	entries []Entry[T]
	cursor  atomic.Int64
	latency *latencyRecorder
	elapsed time.Duration

	mu        sync.Mutex
	stopped   bool
	abandoned bool // the caller got a timeout; late outcomes are dropped
	succeeded int
	failed    int
	records   []record[T]
	errs      []error
	firstErr  *TaskError
}

func newResult[T, R any](r *run[T], values R) *Result[R] {
	return &Result[R]{
		RunID:     r.id,
		Results:   values,
		Errors:    r.errs,
		Succeeded: r.succeeded,
		Failed:    r.failed,
		Duration:  r.elapsed,
		Latency:   r.latency.stats(),
	}
}

// execute drives the worker pool over entries and returns the settled run
// state, or the error that escalated (timeout or fail-fast).
func execute[T any](ctx context.Context, entries []Entry[T], opts []Option) (*run[T], error) {
	for i, e := range entries {
		if e.Task == nil {
			panic(fmt.Sprintf("concurrence: task[%d] (%q) must not be nil", i, e.Key))
		}
	}

	cfg := newConfig(opts)
	r := &run[T]{
		id:      uuid.NewString(),
		cfg:     cfg,
		entries: entries,
		latency: newLatencyRecorder(),
		errs:    []error{},
	}
	r.log = cfg.logger.With(slog.String("run_id", r.id))

	if len(entries) == 0 {
		return r, nil
	}

	workers := len(entries)
	if cfg.concurrency > 0 && cfg.concurrency < workers {
		workers = cfg.concurrency
	}

	ctx, span := cfg.tracer.Start(ctx, "concurrence.run", trace.WithAttributes(
		attribute.String("concurrence.run_id", r.id),
		attribute.Int("concurrence.entries", len(entries)),
		attribute.Int("concurrence.workers", workers),
	))
	defer span.End()

	start := time.Now()
	r.log.Debug("run started",
		slog.Int("entries", len(entries)),
		slog.Int("workers", workers),
		slog.Int("retry", cfg.retry),
	)

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			r.worker(ctx)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if cfg.timeout > 0 {
		timer := time.NewTimer(cfg.timeout)
		defer timer.Stop()

		select {
		case <-done:
		case <-timer.C:
			r.mu.Lock()
			r.stopped = true
			r.abandoned = true
			r.mu.Unlock()

			err := &TimeoutError{Timeout: cfg.timeout}
			r.log.Warn("run timed out", slog.Duration("timeout", cfg.timeout))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	} else {
		<-done
	}

	r.elapsed = time.Since(start)
	span.SetAttributes(
		attribute.Int("concurrence.succeeded", r.succeeded),
		attribute.Int("concurrence.failed", r.failed),
	)
	r.log.Info("run finished",
		slog.Int("succeeded", r.succeeded),
		slog.Int("failed", r.failed),
		slog.Duration("duration", r.elapsed),
	)

	if cfg.failFast && !cfg.ignoreErrs && r.firstErr != nil {
		span.RecordError(r.firstErr)
		span.SetStatus(codes.Error, r.firstErr.Error())
		return nil, r.firstErr
	}
	return r, nil
}

// worker claims entries until the cursor runs past the end or the run stops.
func (r *run[T]) worker(ctx context.Context) {
	for {
		if r.isStopped() {
			return
		}
		if ctx.Err() != nil {
			r.stop("cancelled before claim")
			return
		}

		i := int(r.cursor.Add(1) - 1)
		if i >= len(r.entries) {
			return
		}
		r.runTask(ctx, i)
	}
}

// runTask attempts one entry up to retry+1 times.
func (r *run[T]) runTask(ctx context.Context, index int) {
	e := r.entries[index]

	for attempt := 0; attempt <= r.cfg.retry; attempt++ {
		info := TaskInfo{Key: e.Key, Index: index, Attempt: attempt}

		// A stopped run lets the current attempt finish but never retries.
		if attempt > 0 && r.isStopped() {
			return
		}
		var val T
		err := r.pace(ctx)
		if err != nil && ctx.Err() != nil {
			r.stop("cancelled while pacing")
			return
		}
		if err == nil {
			val, err = r.attempt(ctx, info, e.Task)
		}
		if err == nil {
			r.succeed(index, e.Key, val)
			return
		}

		if attempt == r.cfg.retry {
			r.fail(&TaskError{Task: info, Attempts: attempt + 1, Err: err})
			return
		}

		if r.isStopped() {
			return
		}
		r.log.Debug("task attempt failed, retrying",
			slog.String("key", e.Key),
			slog.Int("attempt", attempt),
			slog.Duration("delay", r.cfg.retryDelay),
			slog.Any("error", err),
		)
		if r.cfg.retryDelay > 0 {
			if Delay(ctx, r.cfg.retryDelay) != nil {
				r.stop("cancelled during retry delay")
				return
			}
		}
	}
}

// pace blocks until the limiter admits one attempt. Unlike rate.Limiter.Wait
// it keeps waiting when the token lands after ctx's deadline; only ctx
// itself ends the wait. A limiter that can never admit a task yields an
// error that is charged to the attempt.
func (r *run[T]) pace(ctx context.Context) error {
	if r.cfg.limiter == nil {
		return nil
	}

	res := r.cfg.limiter.Reserve()
	if !res.OK() {
		return fmt.Errorf("concurrence: rate limiter with burst %d cannot admit a task", r.cfg.limiter.Burst())
	}
	if err := Delay(ctx, res.Delay()); err != nil {
		res.Cancel()
		return err
	}
	return nil
}

// attempt invokes fn once, converting a panic into a *PanicError.
func (r *run[T]) attempt(ctx context.Context, info TaskInfo, fn Thunk[T]) (val T, err error) {
	ctx, span := r.cfg.tracer.Start(ctx, "concurrence.task", trace.WithAttributes(
		attribute.String("concurrence.run_id", r.id),
		attribute.String("concurrence.key", info.Key),
		attribute.Int("concurrence.attempt", info.Attempt),
	))

	if r.cfg.onStart != nil {
		r.cfg.onStart(info)
	}

	start := time.Now()
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = newPanicError(p)
			}
		}()
		val, err = fn(ctx)
	}()
	elapsed := time.Since(start)
	r.latency.record(elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	if r.cfg.onDone != nil {
		r.cfg.onDone(info, err, elapsed)
	}
	return val, err
}

func (r *run[T]) succeed(index int, key string, val T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.abandoned {
		return
	}
	r.records = append(r.records, record[T]{index: index, key: key, val: val})
	r.succeeded++
}

func (r *run[T]) fail(te *TaskError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.abandoned {
		return
	}
	r.errs = append(r.errs, te)
	r.failed++

	r.log.Debug("task failed",
		slog.String("key", te.Task.Key),
		slog.Int("attempts", te.Attempts),
		slog.Any("error", te.Err),
	)

	if r.cfg.failFast && !r.cfg.ignoreErrs && r.firstErr == nil {
		r.firstErr = te
		r.stopped = true
	}
}

func (r *run[T]) stop(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.stopped {
		r.log.Debug("run stopping", slog.String("reason", reason))
	}
	r.stopped = true
}

func (r *run[T]) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stopped
}
