// Package concurrence runs batches of tasks with bounded concurrency.
//
// A batch is either a slice of [Thunk] values or a set of keyed tasks.
// A fixed number of worker goroutines claim tasks in submission order
// from a shared cursor, so no task runs twice and no more than the
// configured number are in flight at once.
//
// # Running Tasks
//
// [Run] takes a slice and returns the successful values in submission
// order, regardless of which finished first:
//
//	res, err := concurrence.Run(ctx, []concurrence.Thunk[int]{a, b, c},
//	    concurrence.WithConcurrency(2))
//	// res.Results holds the values of a, b and c that succeeded, in that order.
//
// [RunMap] and [RunEntries] take keyed tasks and return a map holding
// only the keys that succeeded. RunMap admits keys in sorted order;
// RunEntries admits them in the order given.
//
// # Failures
//
// By default a failing task does not affect its siblings. Its last error
// is wrapped in a [*TaskError] and collected in [Result.Errors], and
// [Result.Succeeded] plus [Result.Failed] equals the number of tasks.
// A panicking task fails with a [*PanicError].
//
//   - [WithRetry] gives each task extra attempts; [WithRetryDelay] pauses
//     between them.
//   - [WithFailFast] stops admitting tasks after the first terminal
//     failure and returns that [*TaskError] instead of a result.
//   - [WithIgnoreErrors] keeps failures in the result even when fail-fast
//     is requested.
//
// Use [IsTaskError], [TaskOf], [CauseOf] and [AllTaskErrors] to inspect
// task errors.
//
// # Timeout and Cancellation
//
// [WithTimeout] bounds the whole run. When it elapses the run returns a
// [*TimeoutError] (matching [ErrTimeout]) without waiting for tasks that
// are still executing; their outcomes are discarded.
//
// Cancelling the run's context is not an error. Workers stop claiming
// tasks and retry delays end early, and the result reports whatever
// finished. Tasks receive the same context and may observe it themselves;
// the runner never interrupts a task in progress.
//
// # Observability
//
//   - [WithLogger]: structured diagnostics via [log/slog].
//   - [WithTracer]: an OpenTelemetry span per run and per attempt.
//   - [WithOnStart], [WithOnDone]: per-attempt hooks.
//   - [Result.Latency]: attempt latency percentiles.
//
// [WithRateLimit] and [WithLimiter] pace attempts across all workers.
package concurrence
