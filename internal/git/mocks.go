package git

import (
	"context"
	"io"
	"strings"
	"sync"
)

// Call records one invocation of MockCommandExecutor.
type Call struct {
	Dir  string
	Args []string
}

// MockCommandExecutor is a simple mock of the CommandExecutor interface
// that doesn't actually execute anything but just records calls.
type MockCommandExecutor struct {
	mu       sync.Mutex
	Calls    []Call
	Output   string
	RunFn    func(ctx context.Context, dir string, args ...string) (string, error)
	StreamFn func(ctx context.Context, dir string, args ...string) (io.ReadCloser, error)
}

// NewMockCommandExecutor creates a new mock executor.
func NewMockCommandExecutor() *MockCommandExecutor {
	return &MockCommandExecutor{Calls: make([]Call, 0)}
}

// Run implements the CommandExecutor interface.
func (m *MockCommandExecutor) Run(ctx context.Context, dir string, args ...string) (string, error) {
	m.record(dir, args)
	if m.RunFn != nil {
		return m.RunFn(ctx, dir, args...)
	}
	return m.Output, nil
}

// Stream implements the CommandExecutor interface.
func (m *MockCommandExecutor) Stream(ctx context.Context, dir string, args ...string) (io.ReadCloser, error) {
	m.record(dir, args)
	if m.StreamFn != nil {
		return m.StreamFn(ctx, dir, args...)
	}
	return io.NopCloser(strings.NewReader(m.Output)), nil
}

// Operations returns the git subcommand of every recorded call, in order.
func (m *MockCommandExecutor) Operations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ops := make([]string, 0, len(m.Calls))
	for _, c := range m.Calls {
		op, _ := operationOf(c.Args)
		ops = append(ops, op)
	}
	return ops
}

func (m *MockCommandExecutor) record(dir string, args []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{Dir: dir, Args: append([]string(nil), args...)})
}
