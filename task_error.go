package concurrence

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout matches every [*TimeoutError] via [errors.Is].
var ErrTimeout = errors.New("concurrence: timeout")

// TaskError is the normalized form of a task failure. It records which entry
// failed and how many attempts it consumed.
type TaskError struct {
	Task     TaskInfo
	Attempts int
	Err      error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %q failed after %d attempt(s): %v", e.Task.Key, e.Attempts, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned when a run exceeds the budget set with [WithTimeout].
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("concurrence: run timed out after %s", e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// asTaskError returns the outermost *TaskError in err's chain, or nil.
func asTaskError(err error) *TaskError {
	var te *TaskError
	if err != nil && errors.As(err, &te) {
		return te
	}
	return nil
}

// IsTaskError reports whether err carries a task failure, either directly,
// wrapped, or as one branch of an [errors.Join] such as [Result.Err].
func IsTaskError(err error) bool {
	return asTaskError(err) != nil
}

// TaskOf returns the entry that produced the first task failure in err:
// its key, its position in the admitted input and the zero-based attempt
// that failed last. The attempt count is err's [TaskError.Attempts].
func TaskOf(err error) (TaskInfo, bool) {
	if te := asTaskError(err); te != nil {
		return te.Task, true
	}
	return TaskInfo{}, false
}

// CauseOf strips the task framing from err and returns what the task itself
// returned (or a [*PanicError]). Errors that carry no task failure, such as
// a [*TimeoutError], come back unchanged.
func CauseOf(err error) error {
	if te := asTaskError(err); te != nil {
		return te.Err
	}
	return err
}

// AllTaskErrors flattens err into the task failures it carries, walking
// joined and wrapped errors depth first. A TaskError whose cause is itself
// a TaskError is reported once, as the outer one.
func AllTaskErrors(err error) []*TaskError {
	var out []*TaskError
	var walk func(error)
	walk = func(err error) {
		switch e := err.(type) {
		case nil:
		case *TaskError:
			out = append(out, e)
		case interface{ Unwrap() []error }:
			for _, sub := range e.Unwrap() {
				walk(sub)
			}
		case interface{ Unwrap() error }:
			walk(e.Unwrap())
		}
	}
	walk(err)
	return out
}
