// Command concurrence runs the shell commands listed in a YAML job file
// with bounded concurrency, retries and an optional timeout.
package main

import (
	"os"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
