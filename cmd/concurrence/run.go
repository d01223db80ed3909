package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/baxromumarov/concurrence"
	"github.com/baxromumarov/concurrence/internal/config"
	"github.com/baxromumarov/concurrence/internal/jobfile"
	"github.com/baxromumarov/concurrence/internal/report"
)

var errJobsFailed = errors.New("one or more jobs failed")

func newRunCmd() *cobra.Command {
	var (
		verbose bool
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "run <jobfile>",
		Short: "Run the jobs in a YAML job file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			jobs, err := jobfile.Load(args[0])
			if err != nil {
				return err
			}

			logger := config.NewLogger(cfg.Logger, cmd.ErrOrStderr())
			console := report.NewConsole(
				report.WithWriter(cmd.OutOrStdout()),
				report.WithVerbose(verbose),
				report.WithNoColor(noColor),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, err := runJobs(ctx, cfg, jobs, logger)
			if err != nil {
				console.Error(err)
				return err
			}
			console.Summary(summary)
			if len(summary.Failed) > 0 {
				return errJobsFailed
			}
			return nil
		},
	}

	config.RegisterFlags(cmd.Flags())
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print each job's output")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable coloured output")
	return cmd
}

type jobResult struct {
	name   string
	output string
}

// runJobs runs a list-shaped file through Run and a mapping-shaped one
// through RunEntries so results keep the file's shape and order.
func runJobs(ctx context.Context, cfg *config.Config, f *jobfile.File, logger *slog.Logger) (report.Summary, error) {
	opts := cfg.Options(logger)
	s := report.Summary{Total: len(f.Jobs)}

	var (
		results []jobResult
		errs    []error
	)
	switch f.Shape {
	case jobfile.Keyed:
		entries := make([]concurrence.Entry[jobResult], len(f.Jobs))
		for i, job := range f.Jobs {
			entries[i] = concurrence.Entry[jobResult]{Key: job.Name, Task: shellTask(cfg.Shell, job)}
		}
		res, err := concurrence.RunEntries(ctx, entries, opts...)
		if err != nil {
			return s, err
		}
		for _, job := range f.Jobs {
			if r, ok := res.Results[job.Name]; ok {
				results = append(results, r)
			}
		}
		errs, s.Duration, s.Latency = res.Errors, res.Duration, res.Latency

	default:
		tasks := make([]concurrence.Thunk[jobResult], len(f.Jobs))
		for i, job := range f.Jobs {
			tasks[i] = shellTask(cfg.Shell, job)
		}
		res, err := concurrence.Run(ctx, tasks, opts...)
		if err != nil {
			return s, err
		}
		results = res.Results
		errs, s.Duration, s.Latency = res.Errors, res.Duration, res.Latency
	}

	for _, r := range results {
		s.Succeeded = append(s.Succeeded, report.Outcome{Name: r.name, Output: r.output})
	}
	for _, err := range errs {
		var te *concurrence.TaskError
		if !errors.As(err, &te) {
			continue
		}
		s.Failed = append(s.Failed, report.Failure{
			Name:     f.Jobs[te.Task.Index].Name,
			Attempts: te.Attempts,
			Err:      err,
		})
	}
	return s, nil
}

// shellTask runs job.Command through shell -c. The command is killed if
// ctx is cancelled.
func shellTask(shell string, job jobfile.Job) concurrence.Thunk[jobResult] {
	return func(ctx context.Context) (jobResult, error) {
		cmd := exec.CommandContext(ctx, shell, "-c", job.Command)
		cmd.WaitDelay = 5 * time.Second

		out, err := cmd.CombinedOutput()
		output := strings.TrimSpace(string(out))
		if err != nil {
			if output != "" {
				return jobResult{}, fmt.Errorf("%w: %s", err, lastLine(output))
			}
			return jobResult{}, err
		}
		return jobResult{name: job.Name, output: output}, nil
	}
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
