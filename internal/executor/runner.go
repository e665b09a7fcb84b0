// Package executor hands a generated Makefile to make and reports the outcome.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds a build when the request sets none.
const DefaultTimeout = 30 * time.Minute

// maxOutputLen caps how much make output a failed Result retains.
const maxOutputLen = 8000

// Result holds the outcome of one make invocation.
type Result struct {
	Passed     bool   `json:"passed"`
	UpToDate   bool   `json:"up_to_date"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int    `json:"duration_ms"`
	Command    string `json:"command"`
	Summary    string `json:"summary"`
	Output     string `json:"output,omitempty"`
}

// Request describes a build.
type Request struct {
	Makefile string
	Dir      string
	// Targets are make goals; empty builds the default goal.
	Targets []string
	DryRun  bool
	Jobs    int
	Timeout time.Duration
	// MakeBin is the make executable; defaults to "make".
	MakeBin string
}

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, name string, args ...string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner with os/exec.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			exitCode = exitErr.ExitCode()
		} else {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec %s: %w", name, err)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// Runner runs make builds.
type Runner struct {
	cmd CommandRunner
}

// NewRunner creates a Runner with the given command runner.
func NewRunner(cmd CommandRunner) *Runner {
	return &Runner{cmd: cmd}
}

// Args returns the make arguments for req.
func Args(req Request) []string {
	var args []string
	if req.Makefile != "" {
		args = append(args, "-f", req.Makefile)
	}
	if req.DryRun {
		args = append(args, "-n")
	}
	if req.Jobs > 0 {
		args = append(args, "-j", strconv.Itoa(req.Jobs))
	}
	return append(args, req.Targets...)
}

// Build runs make for req. A non-zero exit or a timeout is reported as a
// failed Result, not an error; errors mean make could not be run at all.
func (r *Runner) Build(ctx context.Context, req Request) (*Result, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	bin := req.MakeBin
	if bin == "" {
		bin = "make"
	}
	args := Args(req)
	command := strings.TrimSpace(bin + " " + strings.Join(args, " "))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, exitCode, err := r.cmd.Run(ctx, req.Dir, bin, args...)
	durationMs := int(time.Since(start).Milliseconds())

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &Result{
				Passed:     false,
				ExitCode:   -1,
				DurationMs: durationMs,
				Command:    command,
				Summary:    fmt.Sprintf("timeout after %s", timeout),
				Output:     tail(combine(stdout, stderr)),
			}, nil
		}
		return nil, fmt.Errorf("run %q: %w", command, err)
	}

	res := &Result{
		Passed:     exitCode == 0,
		ExitCode:   exitCode,
		DurationMs: durationMs,
		Command:    command,
	}
	switch {
	case exitCode != 0:
		res.Summary = fmt.Sprintf("make failed (exit code %d)", exitCode)
		res.Output = tail(combine(stdout, stderr))
	case upToDate(stdout, req.DryRun):
		res.UpToDate = true
		res.Summary = "up to date"
	case req.DryRun:
		res.Summary = "dry run"
		res.Output = stdout
	default:
		res.Summary = "passed (exit code 0)"
	}
	return res, nil
}

// upToDate recognizes make's messages for goals that need no work. A dry run
// that prints no commands is up to date as well.
func upToDate(stdout string, dryRun bool) bool {
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.Contains(line, "is up to date") && !strings.Contains(line, "Nothing to be done") {
			return false
		}
	}
	return strings.TrimSpace(stdout) != "" || dryRun
}

func combine(stdout, stderr string) string {
	if stderr == "" {
		return stdout
	}
	if stdout == "" {
		return stderr
	}
	return stdout + "\n" + stderr
}

// tail keeps the end of s; make reports the failing rule last.
func tail(s string) string {
	if len(s) > maxOutputLen {
		return "…(truncated)\n" + s[len(s)-maxOutputLen:]
	}
	return s
}
