// Package jobfile parses YAML job files for the concurrence CLI.
//
// A job file holds a "jobs" key that is either a list or a mapping:
//
//	jobs:
//	  - echo one
//	  - name: build
//	    command: make build
//
//	jobs:
//	  lint: golangci-lint run
//	  test: go test ./...
//
// List jobs are named by their command unless a name is given. Mapping jobs
// keep the document order of their keys.
package jobfile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Shape records which form the jobs were written in.
type Shape int

const (
	// Indexed jobs came from a YAML sequence.
	Indexed Shape = iota
	// Keyed jobs came from a YAML mapping.
	Keyed
)

// Job is a single shell command to run.
type Job struct {
	Name    string `yaml:"name"`
	Command string `yaml:"command"`
}

// File is a parsed job file.
type File struct {
	Shape Shape
	Jobs  []Job
}

// ErrNoJobs is returned when a job file declares no jobs.
var ErrNoJobs = errors.New("jobfile: no jobs defined")

// Load reads and parses the job file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jobfile: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse parses job file contents.
func Parse(data []byte) (*File, error) {
	var doc struct {
		Jobs yaml.Node `yaml:"jobs"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("jobfile: %w", err)
	}

	switch doc.Jobs.Kind {
	case yaml.SequenceNode:
		return parseSequence(&doc.Jobs)
	case yaml.MappingNode:
		return parseMapping(&doc.Jobs)
	case 0:
		return nil, ErrNoJobs
	default:
		return nil, fmt.Errorf("jobfile: line %d: jobs must be a list or a mapping", doc.Jobs.Line)
	}
}

func parseSequence(n *yaml.Node) (*File, error) {
	f := &File{Shape: Indexed}
	for _, item := range n.Content {
		var job Job
		switch item.Kind {
		case yaml.ScalarNode:
			job.Command = item.Value
		case yaml.MappingNode:
			if err := item.Decode(&job); err != nil {
				return nil, fmt.Errorf("jobfile: line %d: %w", item.Line, err)
			}
		default:
			return nil, fmt.Errorf("jobfile: line %d: job must be a command or a name/command mapping", item.Line)
		}

		job.Command = strings.TrimSpace(job.Command)
		if job.Command == "" {
			return nil, fmt.Errorf("jobfile: line %d: empty command", item.Line)
		}
		if job.Name == "" {
			job.Name = job.Command
		}
		f.Jobs = append(f.Jobs, job)
	}
	if len(f.Jobs) == 0 {
		return nil, ErrNoJobs
	}
	return f, nil
}

func parseMapping(n *yaml.Node) (*File, error) {
	f := &File{Shape: Keyed}
	seen := make(map[string]int, len(n.Content)/2)

	// Content alternates key and value nodes.
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		if first, dup := seen[key.Value]; dup {
			return nil, fmt.Errorf("jobfile: line %d: job %q already defined on line %d", key.Line, key.Value, first)
		}
		seen[key.Value] = key.Line

		if val.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("jobfile: line %d: job %q must be a command string", val.Line, key.Value)
		}
		cmd := strings.TrimSpace(val.Value)
		if cmd == "" {
			return nil, fmt.Errorf("jobfile: line %d: job %q has an empty command", val.Line, key.Value)
		}
		f.Jobs = append(f.Jobs, Job{Name: key.Value, Command: cmd})
	}
	if len(f.Jobs) == 0 {
		return nil, ErrNoJobs
	}
	return f, nil
}
