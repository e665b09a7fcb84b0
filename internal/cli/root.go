package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	logLevel  string
	logFormat string

	// logger is configured from the persistent flags before any command runs.
	logger = slog.New(slog.DiscardHandler)
)

var rootCmd = &cobra.Command{
	Use:   "pipeconfig",
	Short: "Compile declarative pipelines into Makefiles",
	Long: `pipeconfig reads a pipeline description (JSON, JSONC or YAML) naming stages,
their dependencies and shell commands, and compiles it into a Makefile that
builds the declared targets in dependency order.

The configuration is taken from the command line, --file, $PIPELINE_CONFIG or
the first of pipeline.json, pipeline.jsonc, pipeline.yaml, pipeline.yml in the
working directory. Compile history is kept in ~/.pipeconfig/history.db.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = newLogger(logLevel, logFormat, cmd.ErrOrStderr())
	},
}

// Execute runs the command tree. Use ExitCode to map the error to a status.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && strings.HasPrefix(err.Error(), "unknown command") {
		return &UsageError{Err: err}
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
}

// UsageError reports a malformed command line.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

func usageErrorf(format string, args ...any) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// maxArgs is cobra.MaximumNArgs reporting a UsageError. Arguments after "--"
// are not counted.
func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if dash := cmd.ArgsLenAtDash(); dash >= 0 {
			args = args[:dash]
		}
		if len(args) > n {
			return usageErrorf("accepts at most %d arg(s), received %d", n, len(args))
		}
		return nil
	}
}
