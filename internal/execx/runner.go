// Package execx abstracts subprocess invocation so the volume lifecycle
// can be unit-tested without cryptsetup, fsck, or mount present.
package execx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Runner executes external commands. Implementations must respect
// context cancellation.
type Runner interface {
	// Run executes the command and waits for it. A non-zero exit
	// status is returned as an error carrying the command name and
	// its stderr output.
	Run(ctx context.Context, name string, args ...string) error

	// RunInput is Run with data supplied on the child's stdin. Used to
	// feed key material to cryptsetup without ever writing it to disk.
	RunInput(ctx context.Context, stdin []byte, name string, args ...string) error
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	return run(ctx, nil, name, args...)
}

func (ExecRunner) RunInput(ctx context.Context, stdin []byte, name string, args ...string) error {
	return run(ctx, stdin, name, args...)
}

func run(ctx context.Context, stdin []byte, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	cmd.Stdout = io.Discard

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
