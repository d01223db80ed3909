package concurrence

import (
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"
)

// TaskInfo provides metadata about a task attempt.
// It is passed to observability hooks registered via [WithOnStart] and [WithOnDone].
type TaskInfo struct {
	// Key is the entry key: the stringified index for slice input,
	// the mapping key otherwise.
	Key string

	// Index is the entry's position in submission order.
	Index int

	// Attempt is zero-based; 0 is the first try.
	Attempt int
}

type config struct {
	concurrency int
	timeout     time.Duration
	retry       int
	retryDelay  time.Duration
	failFast    bool
	ignoreErrs  bool

	limiter *rate.Limiter
	logger  *slog.Logger
	tracer  trace.Tracer

	onStart func(TaskInfo)
	onDone  func(TaskInfo, error, time.Duration)
}

// Option configures a run.
type Option func(*config)

func defaultConfig() config {
	return config{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer: noop.NewTracerProvider().Tracer("concurrence"),
	}
}

func newConfig(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithConcurrency sets the maximum number of tasks in flight at once.
//
// A limit of zero (the default) means unbounded: one worker per task.
// WithConcurrency panics if n is negative.
func WithConcurrency(n int) Option {
	return func(c *config) {
		if n < 0 {
			panic("concurrence: concurrency must be non-negative")
		}
		c.concurrency = n
	}
}

// WithTimeout bounds the wall-clock time of the whole run. When it elapses
// the run returns a [*TimeoutError]; tasks already executing are not
// interrupted, their results are discarded.
//
// Zero (the default) disables the timeout. Panics if d is negative.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d < 0 {
			panic("concurrence: timeout must be non-negative")
		}
		c.timeout = d
	}
}

// WithRetry sets how many extra attempts a failing task gets.
// Each task is invoked at most n+1 times. Panics if n is negative.
func WithRetry(n int) Option {
	return func(c *config) {
		if n < 0 {
			panic("concurrence: retry must be non-negative")
		}
		c.retry = n
	}
}

// WithRetryDelay sets the pause between attempts of the same task.
// The pause ends early when the run's context is cancelled.
// Panics if d is negative.
func WithRetryDelay(d time.Duration) Option {
	return func(c *config) {
		if d < 0 {
			panic("concurrence: retry delay must be non-negative")
		}
		c.retryDelay = d
	}
}

// WithFailFast stops admitting new tasks after the first task exhausts its
// attempts, and makes the run return that task's [*TaskError] instead of a
// [Result]. Has no effect together with [WithIgnoreErrors].
func WithFailFast() Option {
	return func(c *config) {
		c.failFast = true
	}
}

// WithIgnoreErrors records failures in [Result.Errors] but never escalates
// them, overriding [WithFailFast].
func WithIgnoreErrors() Option {
	return func(c *config) {
		c.ignoreErrs = true
	}
}

// WithRateLimit paces task attempts across all workers to rps per second
// with the given burst. Panics if rps <= 0 or burst <= 0.
func WithRateLimit(rps float64, burst int) Option {
	if rps <= 0 {
		panic("concurrence: WithRateLimit requires rps > 0")
	}
	if burst <= 0 {
		panic("concurrence: WithRateLimit requires burst > 0")
	}
	return func(c *config) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLimiter paces task attempts with a caller-owned limiter, which may be
// shared between runs. A nil limiter disables pacing.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *config) {
		c.limiter = l
	}
}

// WithLogger sets the logger used for run diagnostics.
// By default nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracer records a span for the run and one per task attempt.
func WithTracer(t trace.Tracer) Option {
	return func(c *config) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithOnStart registers a hook invoked before each task attempt.
// The hook runs on the worker goroutine.
func WithOnStart(fn func(TaskInfo)) Option {
	return func(c *config) {
		c.onStart = fn
	}
}

// WithOnDone registers a hook invoked after each task attempt.
// The hook receives the attempt's error (nil on success) and wall-clock duration.
func WithOnDone(fn func(TaskInfo, error, time.Duration)) Option {
	return func(c *config) {
		c.onDone = fn
	}
}
