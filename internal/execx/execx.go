// Package execx runs external tools and reports their outcome as values.
//
// A non-zero exit status is returned as a *ToolError that carries the
// captured output, never as a bare *exec.ExitError.
package execx

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Command describes one invocation of an external tool
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string

	// Stream forwards output lines to the logger while the tool runs
	Stream bool
}

// String renders the command line for logs
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a finished command
type Result struct {
	Command  Command
	ExitCode int
	Stdout   string
	Stderr   string
}

// FirstLine returns the first non-empty line of stdout
func (r *Result) FirstLine() string {
	for _, line := range strings.Split(r.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// ToolError is returned when a command could not be started or exited non-zero
type ToolError struct {
	Result *Result
	Err    error
}

// Error implements the error interface
func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Result.Command.Name, e.Err)
	if stderr := tail(e.Result.Stderr, 10); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// Unwrap returns the wrapped error
func (e *ToolError) Unwrap() error {
	return e.Err
}

// Runner executes commands
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands on the host with os/exec
type ExecRunner struct {
	logger *logrus.Logger
}

// NewExecRunner creates a runner that streams through the standard logger
func NewExecRunner() *ExecRunner {
	return &ExecRunner{logger: logrus.StandardLogger()}
}

// Run starts the command and waits for it to exit
func (r *ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	logrus.Debugf("Running: %s", c)

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	var wg sync.WaitGroup
	if c.Stream {
		outW := r.lineWriter(&wg, &stdout, logrus.InfoLevel, c.Name)
		errW := r.lineWriter(&wg, &stderr, logrus.InfoLevel, c.Name)
		cmd.Stdout = outW
		cmd.Stderr = errW
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	if c.Stream {
		cmd.Stdout.(io.Closer).Close()
		cmd.Stderr.(io.Closer).Close()
		wg.Wait()
	}

	result := &Result{
		Command: c,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		return result, &ToolError{Result: result, Err: err}
	}

	return result, nil
}

// lineWriter returns a pipe whose lines are logged and copied into buf
func (r *ExecRunner) lineWriter(wg *sync.WaitGroup, buf *bytes.Buffer, level logrus.Level, tool string) io.WriteCloser {
	pr, pw := io.Pipe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			buf.WriteString(line)
			buf.WriteByte('\n')
			r.logger.WithField("tool", tool).Log(level, line)
		}
		// drain so the writer never blocks if the scanner gave up
		io.Copy(io.Discard, pr)
	}()
	return pw
}

// LookPath reports whether a tool is available in PATH
func LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// tail returns the last n non-empty lines of s joined by "; "
func tail(s string, n int) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
