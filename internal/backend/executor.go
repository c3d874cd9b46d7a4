package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// CommandRunner is the interface for running commands.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr []byte, err error)
}

// ExecCommandRunner uses os/exec.
type ExecCommandRunner struct{}

// Run runs a command.
func (ExecCommandRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// Executor runs commands.
type Executor struct {
	runner     CommandRunner
	binaryPath string
	baseArgs   []string
	timeout    time.Duration
}

// NewExecutor creates an executor. The binary is looked up in PATH when it
// is not a path.
func NewExecutor(binaryPath string, baseArgs []string, timeout time.Duration) (*Executor, error) {
	resolved, err := exec.LookPath(binaryPath)
	if err != nil {
		return nil, fmt.Errorf("binary not found: %w", err)
	}

	return NewExecutorWithRunner(resolved, baseArgs, timeout, ExecCommandRunner{}), nil
}

// NewExecutorWithRunner creates an executor with a custom runner.
func NewExecutorWithRunner(binaryPath string, baseArgs []string, timeout time.Duration, runner CommandRunner) *Executor {
	return &Executor{
		binaryPath: binaryPath,
		baseArgs:   baseArgs,
		timeout:    timeout,
		runner:     runner,
	}
}

// Execute runs the command and returns output.
func (e *Executor) Execute(ctx context.Context, args []string, stdin io.Reader) (stdout, stderr []byte, err error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	full := make([]string, 0, len(e.baseArgs)+len(args))
	full = append(full, e.baseArgs...)
	full = append(full, args...)

	return e.runner.Run(ctx, e.binaryPath, full, stdin)
}
