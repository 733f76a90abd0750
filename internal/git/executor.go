package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// ErrGitOperationFailed indicates a git command returned an error.
var ErrGitOperationFailed = errors.New("git operation failed")

// GitError represents an error that occurred during a git operation.
// It captures the command details, underlying error, and command output.
type GitError struct {
	Operation string
	Args      []string
	Err       error
	Output    string
}

// Error implements the error interface with a detailed, user-friendly error message.
func (e *GitError) Error() string {
	msg := fmt.Sprintf("git %s failed", e.Operation)
	if e.Output != "" {
		msg = fmt.Sprintf("%s: %s", msg, strings.TrimSpace(e.Output))
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *GitError) Unwrap() error {
	return e.Err
}

// CommandExecutor defines an interface for executing git commands.
type CommandExecutor interface {
	// Run executes git with args in dir and returns its standard output.
	Run(ctx context.Context, dir string, args ...string) (string, error)

	// Stream starts git with args in dir and returns its standard output as a stream.
	// Closing the stream waits for the process and reports its exit status.
	Stream(ctx context.Context, dir string, args ...string) (io.ReadCloser, error)
}

// ExecExecutor is the default implementation of CommandExecutor
// that delegates to the os/exec package.
type ExecExecutor struct {
	// Binary is the git executable; "git" when empty.
	Binary string
	// Redact lists secrets that must never appear in returned errors.
	Redact []string
}

// NewExecExecutor creates a new ExecExecutor.
func NewExecExecutor(redact ...string) *ExecExecutor {
	return &ExecExecutor{Binary: "git", Redact: redact}
}

// Run implements CommandExecutor.Run.
func (e *ExecExecutor) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := e.command(ctx, dir, args)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", e.newError(args, err, stderr.String())
	}
	return stdout.String(), nil
}

// Stream implements CommandExecutor.Stream.
func (e *ExecExecutor) Stream(ctx context.Context, dir string, args ...string) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := e.command(ctx, dir, args)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, e.newError(args, err, "")
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, e.newError(args, err, stderr.String())
	}
	return &processStream{ReadCloser: stdout, cmd: cmd, cancel: cancel, stderr: stderr, executor: e, args: args}, nil
}

func (e *ExecExecutor) command(ctx context.Context, dir string, args []string) *exec.Cmd {
	binary := e.Binary
	if binary == "" {
		binary = "git"
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	return cmd
}

func (e *ExecExecutor) newError(args []string, err error, output string) *GitError {
	operation, rest := operationOf(args)
	clean := make([]string, len(rest))
	for i, a := range rest {
		clean[i] = e.redact(a)
	}
	return &GitError{
		Operation: operation,
		Args:      clean,
		Err:       fmt.Errorf("%w: %s", ErrGitOperationFailed, e.redact(err.Error())),
		Output:    e.redact(output),
	}
}

func (e *ExecExecutor) redact(s string) string {
	for _, secret := range e.Redact {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, "***")
		}
	}
	return s
}

// operationOf returns the git subcommand, skipping leading "-c key=value" and "-C dir" options.
func operationOf(args []string) (string, []string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-c", "-C":
			i++
		default:
			return args[i], args[i+1:]
		}
	}
	return "", nil
}

// processStream ties the lifetime of a running git process to its stdout pipe.
type processStream struct {
	io.ReadCloser
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	stderr   *bytes.Buffer
	executor *ExecExecutor
	args     []string
	eof      bool
}

func (p *processStream) Read(b []byte) (int, error) {
	n, err := p.ReadCloser.Read(b)
	if errors.Is(err, io.EOF) {
		p.eof = true
	}
	return n, err
}

// Close waits for the process. A process whose output was not read to the end is
// killed, and only a failure it reported on its own is returned.
func (p *processStream) Close() error {
	defer p.cancel()
	if !p.eof {
		p.cancel()
	}
	err := p.cmd.Wait()
	state := p.cmd.ProcessState
	if err == nil || (state != nil && state.Success()) {
		return nil
	}
	if !p.eof && (state == nil || !state.Exited()) {
		return nil
	}
	return p.executor.newError(p.args, err, p.stderr.String())
}
