package execx

import (
	"context"
	"fmt"
	"sync"
)

// FakeRunner records commands instead of running them. Handlers keyed by
// tool name decide the result; tools without a handler succeed silently.
type FakeRunner struct {
	mu       sync.Mutex
	Commands []Command
	Handlers map[string]func(Command) (*Result, error)
}

// NewFakeRunner creates an empty FakeRunner
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Handlers: make(map[string]func(Command) (*Result, error))}
}

// On registers a handler for a tool name
func (f *FakeRunner) On(name string, h func(Command) (*Result, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Handlers[name] = h
}

// Run implements Runner
func (f *FakeRunner) Run(ctx context.Context, c Command) (*Result, error) {
	f.mu.Lock()
	f.Commands = append(f.Commands, c)
	h := f.Handlers[c.Name]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h == nil {
		return &Result{Command: c}, nil
	}
	return h(c)
}

// Called returns the recorded invocations of a tool
func (f *FakeRunner) Called(name string) []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Command
	for _, c := range f.Commands {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Fail builds a handler result for a command exiting with code
func Fail(c Command, code int, stderr string) (*Result, error) {
	res := &Result{Command: c, ExitCode: code, Stderr: stderr}
	return res, &ToolError{Result: res, Err: fmt.Errorf("exit status %d", code)}
}
