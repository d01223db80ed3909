package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "concurrence",
		Short: "Run shell jobs with bounded concurrency.",
		Long: `concurrence runs the jobs listed in a YAML file, at most N at a time,
retrying failures and stopping on timeout, fail-fast or Ctrl-C.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "concurrence %s (built %s)\n", version, buildTime)
		},
	}
}
