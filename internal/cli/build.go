package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/pipeconfig/internal/executor"
	"github.com/lucasnoah/pipeconfig/internal/history"
	"github.com/lucasnoah/pipeconfig/internal/metrics"
)

var (
	buildOpts    compileFlags
	buildDryRun  bool
	buildJobs    int
	buildTimeout time.Duration
	buildMake    string
)

// newCommandRunner is replaced in tests.
var newCommandRunner = func() executor.CommandRunner { return &executor.ExecRunner{} }

// BuildError reports a make run that finished unsuccessfully.
type BuildError struct {
	Result *executor.Result
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed: %s", e.Result.Summary)
}

var buildCmd = &cobra.Command{
	Use:   "build [CONFIG] [-- TARGET...]",
	Short: "Compile the pipeline and run make",
	Long: `Build compiles the pipeline exactly like compile, then runs make on the
generated Makefile in the working directory. Targets after "--" are passed to
make; without them the default goal builds every pipeline target.`,
	Args: maxArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m := metrics.New()
		defer writeMetrics(buildOpts.metricsFile, m)

		run, err := compilePipeline(cmd, &buildOpts, args, false, m)
		if err != nil {
			return err
		}

		var targets []string
		if dash := cmd.ArgsLenAtDash(); dash >= 0 {
			targets = args[dash:]
		}
		req := executor.Request{
			Makefile: buildOpts.output,
			Targets:  targets,
			DryRun:   buildDryRun,
			Jobs:     buildJobs,
			Timeout:  buildTimeout,
			MakeBin:  buildMake,
		}
		logger.Info("running make", "makefile", req.Makefile, "targets", targets, "dry_run", req.DryRun)

		res, err := executor.NewRunner(newCommandRunner()).Build(cmd.Context(), req)
		if err != nil {
			return err
		}
		m.ObserveBuild(res.Passed, res.UpToDate, time.Duration(res.DurationMs)*time.Millisecond)
		if buildOpts.record {
			recordBuild(run, res)
		}

		if !res.Passed {
			if res.Output != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), res.Output)
			}
			return &BuildError{Result: res}
		}
		if buildDryRun && res.Output != "" {
			cmd.Print(res.Output)
		}
		cmd.Printf("%s: %s (%dms)\n", res.Command, res.Summary, res.DurationMs)
		return nil
	},
}

func recordBuild(run *compileRun, res *executor.Result) {
	err := withHistory(buildOpts.historyDB, func(db *history.DB) error {
		_, err := db.RecordBuild(history.BuildRun{
			CompileID:  run.historyID,
			Makefile:   buildOpts.output,
			Command:    res.Command,
			Passed:     res.Passed,
			UpToDate:   res.UpToDate,
			ExitCode:   res.ExitCode,
			DurationMs: res.DurationMs,
			Summary:    res.Summary,
		})
		return err
	})
	if err != nil {
		logger.Warn("could not record build", "error", err)
	}
}

func init() {
	buildOpts.AddFlags(buildCmd.Flags())
	buildCmd.Flags().BoolVarP(&buildDryRun, "dry-run", "n", false, "print the commands make would run without running them")
	buildCmd.Flags().IntVarP(&buildJobs, "jobs", "j", 0, "number of make jobs to run simultaneously")
	buildCmd.Flags().DurationVar(&buildTimeout, "timeout", executor.DefaultTimeout, "abort the build after this long")
	buildCmd.Flags().StringVar(&buildMake, "make", "make", "make executable")
}
