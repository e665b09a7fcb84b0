package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/pipeconfig/internal/compiler"
	"github.com/lucasnoah/pipeconfig/internal/history"
	"github.com/lucasnoah/pipeconfig/internal/metrics"
)

var (
	compileOpts   compileFlags
	compileStdout bool
)

var compileCmd = &cobra.Command{
	Use:   "compile [CONFIG]",
	Short: "Compile a pipeline configuration into a Makefile",
	Long: `Compile validates the pipeline, resolves every dependency to a stage or a
plain file, orders the stages and writes one Makefile rule per stage.

The Makefile is replaced atomically and left untouched when compilation fails.`,
	Args: maxArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m := metrics.New()
		run, err := compilePipeline(cmd, &compileOpts, args, compileStdout, m)
		writeMetrics(compileOpts.metricsFile, m)
		if err != nil {
			return err
		}
		if !compileStdout {
			cmd.Printf("Wrote %s (%d rules).\n", compileOpts.output, len(run.result.Rules))
		}
		return nil
	},
}

// compileRun is a finished compilation and its history row, if recorded.
type compileRun struct {
	configPath string
	result     *compiler.Result
	historyID  *int64
}

// compilePipeline loads, compiles and either writes the Makefile to the
// output path or prints it. Every attempt that got as far as a configuration
// path is observed in m and, with --record, in the history database.
func compilePipeline(cmd *cobra.Command, f *compileFlags, args []string, toStdout bool, m *metrics.Metrics) (*compileRun, error) {
	params, err := parseParams(f.params)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	cfg, path, err := loadConfig(positional(args, cmd.ArgsLenAtDash()), f.file)
	if err != nil {
		observeCompile(f, m, path, params, nil, err, time.Since(start))
		return nil, err
	}

	c := compiler.New(compiler.Options{
		ConfigPath: path,
		OutputPath: f.output,
		Strict:     f.strict,
		Params:     params,
		Logger:     logger.With("config", path),
	})
	var res *compiler.Result
	if toStdout {
		res, err = c.Compile(cfg)
		if err == nil {
			_, err = cmd.OutOrStdout().Write(res.Makefile)
		}
	} else {
		res, err = c.Run(cfg)
	}
	id := observeCompile(f, m, path, params, res, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return &compileRun{configPath: path, result: res, historyID: id}, nil
}

func observeCompile(f *compileFlags, m *metrics.Metrics, path string, params map[string]string, res *compiler.Result, err error, d time.Duration) *int64 {
	var stages, files, rules int
	if res != nil {
		stages, files, rules = len(res.Order), len(res.Graph.Files()), len(res.Rules)
	}
	m.ObserveCompile(outcome(err), d, stages, files, rules)

	if !f.record || path == "" {
		return nil
	}
	row := history.CompileRun{
		ConfigPath: path,
		Outcome:    outcome(err),
		Params:     params,
		Stages:     stages,
		Rules:      rules,
		DurationMs: int(d.Milliseconds()),
	}
	if err != nil {
		row.Error = err.Error()
	} else {
		row.Fingerprint = res.Fingerprint
		row.OutputPath = f.output
	}

	var id int64
	recErr := withHistory(f.historyDB, func(db *history.DB) error {
		var err error
		id, err = db.RecordCompile(row)
		return err
	})
	if recErr != nil {
		logger.Warn("could not record compile", "error", recErr)
		return nil
	}
	return &id
}

// withHistory opens and migrates the history database for fn.
func withHistory(path string, fn func(*history.DB) error) error {
	if path == "" {
		var err error
		if path, err = history.DefaultDBPath(); err != nil {
			return err
		}
	}
	db, err := history.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate history: %w", err)
	}
	return fn(db)
}

func writeMetrics(path string, m *metrics.Metrics) {
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		logger.Warn("could not write metrics", "path", path, "error", err)
	}
}

func init() {
	compileOpts.AddFlags(compileCmd.Flags())
	compileCmd.Flags().BoolVar(&compileStdout, "stdout", false, "print the Makefile instead of writing it")
}
