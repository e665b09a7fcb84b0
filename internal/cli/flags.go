package cli

import (
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/lucasnoah/pipeconfig/internal/config"
)

// compileFlags are shared by the commands that compile a pipeline.
type compileFlags struct {
	file        string
	output      string
	strict      bool
	params      []string
	record      bool
	historyDB   string
	metricsFile string
}

// AddFlags registers the compile flags on flagSet.
func (f *compileFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&f.file, "file", "f", "", "path to pipeline config file")
	flagSet.StringVarP(&f.output, "output", "o", "Makefile", "path of the generated Makefile")
	flagSet.BoolVar(&f.strict, "strict", false, "require every plain file dependency to exist")
	flagSet.StringArrayVar(&f.params, "param", nil, "override a parameter as `key=value` (repeatable)")
	flagSet.BoolVar(&f.record, "record", false, "record the run in the history database")
	flagSet.StringVar(&f.historyDB, "history-db", "", "history database path (default ~/.pipeconfig/history.db)")
	flagSet.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
}

// parseParams turns key=value pairs into an override map. A later pair for
// the same key wins.
func parseParams(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, usageErrorf("invalid --param %q: want key=value", p)
		}
		out[k] = v
	}
	return out, nil
}

// loadConfig resolves and loads the pipeline configuration from the
// positional argument, --file, $PIPELINE_CONFIG or the default file names,
// in that order.
func loadConfig(args []string, file string) (*config.PipelineConfig, string, error) {
	path := file
	if len(args) > 0 {
		if file != "" && file != args[0] {
			return nil, "", usageErrorf("config given both as argument (%s) and --file (%s)", args[0], file)
		}
		path = args[0]
	}
	if path == "" {
		return config.LoadDefault(".", os.Getenv)
	}
	cfg, err := config.Load(path)
	return cfg, path, err
}

// positional drops arguments after "--".
func positional(cmdArgs []string, dash int) []string {
	if dash >= 0 {
		return cmdArgs[:dash]
	}
	return cmdArgs
}
