package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// mockCmd records calls and returns configured results.
type mockCmd struct {
	calls   []mockCall
	results []mockResult
	callIdx int
}

type mockCall struct {
	Dir  string
	Name string
	Args []string
}

type mockResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
	// Block waits for the context to end before returning.
	Block bool
}

func (m *mockCmd) Run(ctx context.Context, dir string, name string, args ...string) (string, string, int, error) {
	m.calls = append(m.calls, mockCall{Dir: dir, Name: name, Args: args})
	if m.callIdx >= len(m.results) {
		return "", "", 0, nil
	}
	r := m.results[m.callIdx]
	m.callIdx++
	if r.Block {
		<-ctx.Done()
		return r.Stdout, r.Stderr, -1, ctx.Err()
	}
	return r.Stdout, r.Stderr, r.ExitCode, r.Err
}

func TestRunner_Build_HappyPath(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{Stdout: "cargo run --bin example\n", ExitCode: 0}}}
	runner := NewRunner(mock)

	result, err := runner.Build(context.Background(), Request{Makefile: "Makefile", Dir: "/tmp/work"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Passed {
		t.Error("expected passed=true")
	}
	if result.UpToDate {
		t.Error("expected up_to_date=false")
	}
	if result.Command != "make -f Makefile" {
		t.Errorf("Command = %q", result.Command)
	}
	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(mock.calls))
	}
	want := mockCall{Dir: "/tmp/work", Name: "make", Args: []string{"-f", "Makefile"}}
	if diff := cmp.Diff(want, mock.calls[0]); diff != "" {
		t.Errorf("call mismatch (-want +got):\n%s", diff)
	}
}

func TestRunner_Build_Failed(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{
		Stdout:   "cat RANDOM_NUMBERS | sort -n > OUTPUT_SORTED\n",
		Stderr:   "make: *** [Makefile:12: OUTPUT_SORTED] Error 1\n",
		ExitCode: 2,
	}}}
	result, err := NewRunner(mock).Build(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Passed {
		t.Error("expected passed=false")
	}
	if result.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", result.ExitCode)
	}
	if !strings.Contains(result.Output, "Error 1") {
		t.Errorf("Output missing stderr: %q", result.Output)
	}
	if !strings.Contains(result.Summary, "exit code 2") {
		t.Errorf("Summary = %q", result.Summary)
	}
}

func TestRunner_Build_UpToDate(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		dryRun bool
		want   bool
	}{
		{"gnu quotes", "make: 'OUTPUT_SORTED' is up to date.\n", false, true},
		{"nothing to do", "make: Nothing to be done for `all'.\n", false, true},
		{"work done", "cargo run --bin example\n", false, false},
		{"empty real build", "", false, false},
		{"empty dry run", "", true, true},
		{"dry run with commands", "cat a > b\n", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockCmd{results: []mockResult{{Stdout: tt.stdout}}}
			result, err := NewRunner(mock).Build(context.Background(), Request{DryRun: tt.dryRun})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.UpToDate != tt.want {
				t.Errorf("UpToDate = %v, want %v", result.UpToDate, tt.want)
			}
		})
	}
}

func TestRunner_Build_DryRunKeepsCommands(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{Stdout: "cat a > b\n"}}}
	result, err := NewRunner(mock).Build(context.Background(), Request{DryRun: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Summary != "dry run" || result.Output != "cat a > b\n" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestRunner_Build_Timeout(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{Stdout: "partial", Block: true}}}
	result, err := NewRunner(mock).Build(context.Background(), Request{Timeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Passed {
		t.Error("expected passed=false on timeout")
	}
	if result.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", result.ExitCode)
	}
	if !strings.Contains(result.Summary, "timeout") {
		t.Errorf("Summary = %q, want timeout", result.Summary)
	}
	if result.Output != "partial" {
		t.Errorf("Output = %q", result.Output)
	}
}

func TestRunner_Build_ExecError(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{ExitCode: -1, Err: errors.New("executable file not found")}}}
	_, err := NewRunner(mock).Build(context.Background(), Request{MakeBin: "gmake"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "gmake") {
		t.Errorf("error does not name the command: %v", err)
	}
	if mock.calls[0].Name != "gmake" {
		t.Errorf("Name = %q, want gmake", mock.calls[0].Name)
	}
}

func TestRunner_Build_OutputTruncated(t *testing.T) {
	long := strings.Repeat("x", maxOutputLen+500) + "LAST"
	mock := &mockCmd{results: []mockResult{{Stderr: long, ExitCode: 2}}}
	result, err := NewRunner(mock).Build(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(result.Output, "…(truncated)\n") {
		t.Errorf("expected truncation marker, got prefix %q", result.Output[:20])
	}
	if !strings.HasSuffix(result.Output, "LAST") {
		t.Error("expected tail of output to be kept")
	}
}

func TestArgs(t *testing.T) {
	tests := []struct {
		req  Request
		want []string
	}{
		{Request{}, nil},
		{Request{Makefile: "build.mk"}, []string{"-f", "build.mk"}},
		{Request{Makefile: "Makefile", DryRun: true, Jobs: 4, Targets: []string{"OUTPUT_SORTED"}},
			[]string{"-f", "Makefile", "-n", "-j", "4", "OUTPUT_SORTED"}},
		{Request{Jobs: -1, Targets: []string{"a", "b"}}, []string{"a", "b"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, Args(tt.req)); diff != "" {
			t.Errorf("Args(%+v) mismatch (-want +got):\n%s", tt.req, diff)
		}
	}
}
