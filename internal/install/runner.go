// Package install executes resolved actions: copying payloads out of disk
// images, running pre/post scripts under a permission gate, and supervising
// child jobs through launchd.
package install

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"gomunki/internal/logx"
)

// RunOptions configures one subprocess invocation.
type RunOptions struct {
	Dir string
	// Env entries are appended to the inherited environment.
	Env []string
	// Stdout and Stderr, when set, receive the stream live in addition to
	// the capture buffers.
	Stdout io.Writer
	Stderr io.Writer
}

// RunResult carries the captured output of a finished subprocess. Output is
// captured even on failure so callers can surface it.
type RunResult struct {
	Stdout []byte
	Stderr []byte
}

// Runner abstracts subprocess execution so the executor stays testable with
// an in-process fake.
type Runner interface {
	Run(ctx context.Context, command string, args []string, opts RunOptions) (RunResult, error)
}

// CmdRunner executes commands via os/exec and logs every invocation with its
// duration at debug level.
type CmdRunner struct{}

var _ Runner = CmdRunner{}

var execLog = logx.Component("exec")

func (CmdRunner) Run(ctx context.Context, command string, args []string, opts RunOptions) (RunResult, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = teeTo(&stdout, opts.Stdout)
	cmd.Stderr = teeTo(&stderr, opts.Stderr)

	started := time.Now()
	err := cmd.Run()
	execLog.WithFields(map[string]any{
		"command":  command,
		"duration": time.Since(started).Round(time.Millisecond).String(),
	}).Debug("subprocess finished")

	result := RunResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return result, fmt.Errorf("%s: %w", command, ctx.Err())
	}
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		return result, fmt.Errorf("%s exited with status %d", command, exit.ExitCode())
	}
	return result, fmt.Errorf("%s: %w", command, err)
}

func teeTo(buf *bytes.Buffer, live io.Writer) io.Writer {
	if live == nil {
		return buf
	}
	return io.MultiWriter(buf, live)
}
