package cli

import (
	"errors"

	"github.com/lucasnoah/pipeconfig/internal/compiler"
	"github.com/lucasnoah/pipeconfig/internal/config"
	"github.com/lucasnoah/pipeconfig/internal/emit"
	"github.com/lucasnoah/pipeconfig/internal/fileutil"
	"github.com/lucasnoah/pipeconfig/internal/graph"
	"github.com/lucasnoah/pipeconfig/internal/metrics"
	"github.com/lucasnoah/pipeconfig/internal/render"
)

// Process exit statuses.
const (
	ExitOK         = 0
	ExitError      = 1
	ExitUsage      = 2
	ExitParse      = 3
	ExitValidation = 4
	ExitCycle      = 5
	ExitIO         = 6
)

// ExitCode maps an error returned by Execute to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var (
		usage      *UsageError
		parseErr   *config.ParseError
		verrs      config.ValidationErrors
		unresolved *graph.UnresolvedReferenceError
		ruleErr    *emit.RuleError
		tmplErr    *render.Error
		cycle      *graph.CycleError
		ioErr      *fileutil.IOError
	)
	switch {
	case errors.As(err, &usage):
		return ExitUsage
	case errors.As(err, &parseErr):
		return ExitParse
	case errors.As(err, &verrs), errors.As(err, &unresolved), errors.As(err, &ruleErr), errors.As(err, &tmplErr):
		return ExitValidation
	case errors.As(err, &cycle):
		return ExitCycle
	case errors.As(err, &ioErr):
		return ExitIO
	default:
		return ExitError
	}
}

// outcome is the history and metrics label for a compile error.
func outcome(err error) string {
	var usage *UsageError
	if errors.As(err, &usage) {
		return metrics.OutcomeUsage
	}
	return compiler.Outcome(err)
}
