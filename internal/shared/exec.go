package shared

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// CommandRunner runs an external program and returns its standard output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecCommand runs name with [exec.CommandContext]. On a non-zero exit the returned error
// carries the truncated stderr and the stdout collected so far is still returned.
func ExecCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, fmt.Errorf("%s: %w: %s", name, err, Truncate(string(exitErr.Stderr), 512))
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}
