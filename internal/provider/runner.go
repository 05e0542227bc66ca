package provider

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner abstracts the delegated CLI client so adapter probes can be
// exercised without the real binary.
type CommandRunner interface {
	// LookPath reports whether the named binary is installed.
	LookPath(file string) (string, error)
	// Run executes the command and returns its combined stdout.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return out, fmt.Errorf("%s %s: %s", name, strings.Join(args, " "), strings.TrimSpace(string(ee.Stderr)))
		}
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}
