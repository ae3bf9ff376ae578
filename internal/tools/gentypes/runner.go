package gentypes

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"time"
)

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr string, err error)
}

// ExecCommandRunner implements CommandRunner using exec.CommandContext.
type ExecCommandRunner struct {
	Timeout time.Duration
}

func (r *ExecCommandRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) (string, string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	if stdin != nil {
		cmd.Stdin = stdin
	}

	err := cmd.Run()
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		err = context.DeadlineExceeded
	}
	return stdoutBuf.String(), stderrBuf.String(), err
}
