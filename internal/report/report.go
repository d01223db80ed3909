// Package report renders run summaries for the concurrence CLI.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/baxromumarov/concurrence"
)

// Outcome is a job that succeeded.
type Outcome struct {
	Name   string
	Output string
}

// Failure is a job that exhausted its attempts.
type Failure struct {
	Name     string
	Attempts int
	Err      error
}

// Summary is everything the reporter prints about one run.
type Summary struct {
	Total     int
	Succeeded []Outcome
	Failed    []Failure
	Duration  time.Duration
	Latency   concurrence.LatencyStats
}

// Skipped is the number of jobs that never reached an outcome, which
// happens when the run is cancelled.
func (s Summary) Skipped() int {
	return s.Total - len(s.Succeeded) - len(s.Failed)
}

type Console struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type Option func(*Console)

func NewConsole(opts ...Option) *Console {
	c := &Console{writer: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// paint returns a sprint func for attr. Colour is switched off per Console,
// leaving fatih/color's terminal detection untouched for other writers.
func (c *Console) paint(attr color.Attribute) func(a ...interface{}) string {
	col := color.New(attr)
	if c.noColor {
		col.DisableColor()
	}
	return col.SprintFunc()
}

func WithWriter(w io.Writer) Option {
	return func(c *Console) {
		c.writer = w
	}
}

// WithVerbose prints each successful job's output.
func WithVerbose(v bool) Option {
	return func(c *Console) {
		c.verbose = v
	}
}

func WithNoColor(nc bool) Option {
	return func(c *Console) {
		c.noColor = nc
	}
}

func (c *Console) Summary(s Summary) {
	green := c.paint(color.FgGreen)
	red := c.paint(color.FgRed)
	yellow := c.paint(color.FgYellow)
	cyan := c.paint(color.FgCyan)

	fmt.Fprintln(c.writer)
	for _, o := range s.Succeeded {
		fmt.Fprintf(c.writer, "  %s %s\n", green("✓"), o.Name)
		if c.verbose && o.Output != "" {
			for _, line := range strings.Split(o.Output, "\n") {
				fmt.Fprintf(c.writer, "      %s\n", line)
			}
		}
	}
	for _, f := range s.Failed {
		fmt.Fprintf(c.writer, "  %s %s %s\n", red("✗"), f.Name,
			red(fmt.Sprintf("(%d attempt(s): %v)", f.Attempts, concurrence.CauseOf(f.Err))))
	}

	fmt.Fprintln(c.writer)
	fmt.Fprintf(c.writer, "Jobs:    ")
	if n := len(s.Succeeded); n > 0 {
		fmt.Fprintf(c.writer, "%s, ", green(fmt.Sprintf("%d succeeded", n)))
	}
	if n := len(s.Failed); n > 0 {
		fmt.Fprintf(c.writer, "%s, ", red(fmt.Sprintf("%d failed", n)))
	}
	if n := s.Skipped(); n > 0 {
		fmt.Fprintf(c.writer, "%s, ", yellow(fmt.Sprintf("%d skipped", n)))
	}
	fmt.Fprintf(c.writer, "%d total\n", s.Total)
	fmt.Fprintf(c.writer, "Time:    %s\n", s.Duration.Round(time.Millisecond))
	if s.Latency.Count > 0 {
		fmt.Fprintf(c.writer, "Latency: %s\n", cyan(fmt.Sprintf("p50 %s  p90 %s  p99 %s  max %s",
			s.Latency.P50.Round(time.Millisecond),
			s.Latency.P90.Round(time.Millisecond),
			s.Latency.P99.Round(time.Millisecond),
			s.Latency.Max.Round(time.Millisecond))))
	}
	fmt.Fprintln(c.writer)
}

func (c *Console) Error(err error) {
	red := c.paint(color.FgRed)
	fmt.Fprintf(c.writer, "%s %v\n", red("Error:"), err)
}
