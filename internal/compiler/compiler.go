// Package compiler drives one pipeline configuration through validation,
// reference resolution, ordering and Makefile emission.
package compiler

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/lucasnoah/pipeconfig/internal/config"
	"github.com/lucasnoah/pipeconfig/internal/emit"
	"github.com/lucasnoah/pipeconfig/internal/fileutil"
	"github.com/lucasnoah/pipeconfig/internal/graph"
	"github.com/lucasnoah/pipeconfig/internal/metrics"
	"github.com/lucasnoah/pipeconfig/internal/render"
)

// Options configures a Compiler. The zero value compiles in memory with
// non-strict resolution and no logging.
type Options struct {
	// ConfigPath names the source in the generated header.
	ConfigPath string
	// OutputPath is where Run writes the Makefile.
	OutputPath string
	// BaseDir anchors relative file dependencies for the strict check.
	BaseDir string
	Strict  bool
	// Params override pipeline and stage parameters for every stage.
	Params map[string]string
	Logger *slog.Logger
	// Stat replaces os.Stat in strict mode.
	Stat func(string) (fs.FileInfo, error)
}

// Result is a successful compilation.
type Result struct {
	Rules       []emit.Rule
	Order       []string
	Makefile    []byte
	Fingerprint string
	Graph       *graph.Graph
	// Unused lists stages no target depends on. They are still emitted.
	Unused []string
}

// Compiler compiles pipeline configurations. A Compiler runs one compilation
// at a time; separate Compilers are independent and may run concurrently.
type Compiler struct {
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	state State
}

// New returns a Compiler in the Idle state.
func New(opts Options) *Compiler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compiler{opts: opts, logger: logger}
}

// State returns the phase of the current or last compilation.
func (c *Compiler) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Compiler) transition(to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !isAllowedTransition(c.state, to) {
		return fmt.Errorf("compiler: disallowed transition %s -> %s", c.state, to)
	}
	c.state = to
	return nil
}

// begin starts a new run from Idle, whatever the previous run ended in.
func (c *Compiler) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle && !IsTerminal(c.state) {
		return fmt.Errorf("compiler: compilation already in progress (%s)", c.state)
	}
	c.state = Idle
	return nil
}

// fail moves the run to Failed and returns err unchanged.
func (c *Compiler) fail(err error) error {
	if terr := c.transition(Failed); terr != nil {
		return errors.Join(err, terr)
	}
	return err
}

// Compile turns cfg into Makefile text without touching the filesystem,
// apart from existence checks in strict mode.
func (c *Compiler) Compile(cfg *config.PipelineConfig) (*Result, error) {
	return c.run(cfg, nil)
}

// Run compiles cfg and atomically writes the Makefile to OutputPath. Nothing
// is written when any phase fails.
func (c *Compiler) Run(cfg *config.PipelineConfig) (*Result, error) {
	if c.opts.OutputPath == "" {
		return nil, errors.New("compiler: no output path")
	}
	return c.run(cfg, func(res *Result) error {
		if err := fileutil.WriteAtomic(c.opts.OutputPath, res.Makefile); err != nil {
			return err
		}
		c.logger.Info("wrote makefile", "path", c.opts.OutputPath, "bytes", len(res.Makefile))
		return nil
	})
}

func (c *Compiler) run(cfg *config.PipelineConfig, write func(*Result) error) (*Result, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	if err := c.transition(Validating); err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, c.fail(errors.New("compiler: nil configuration"))
	}
	c.logger.Debug("validating", "config", c.opts.ConfigPath, "stages", cfg.Stages.Len())
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, c.fail(errs)
	}
	c.warnUnknownParams(cfg)

	if err := c.transition(Resolving); err != nil {
		return nil, err
	}
	g, err := graph.Build(cfg, graph.Options{
		Strict:  c.opts.Strict,
		BaseDir: c.opts.BaseDir,
		Stat:    c.opts.Stat,
	})
	if err != nil {
		return nil, c.fail(err)
	}
	c.logger.Debug("resolved references", "files", len(g.Files()), "edges", len(g.Edges()))

	if err := c.transition(Ordering); err != nil {
		return nil, err
	}
	nodes, err := g.TopologicalOrder()
	if err != nil {
		return nil, c.fail(err)
	}
	order := make([]string, len(nodes))
	for i, n := range nodes {
		order[i] = n.ID
	}
	unused := g.Unused()
	for _, name := range unused {
		c.logger.Warn("stage is not needed by any target", "stage", name)
	}

	if err := c.transition(Emitting); err != nil {
		return nil, err
	}
	rules, err := emit.Rules(g, nodes, c.opts.Params)
	if err != nil {
		return nil, c.fail(err)
	}
	fp, err := Fingerprint(cfg, c.opts.Params)
	if err != nil {
		return nil, c.fail(err)
	}
	res := &Result{
		Rules:       rules,
		Order:       order,
		Fingerprint: fp,
		Graph:       g,
		Unused:      unused,
		Makefile: emit.Makefile(rules, emit.Goals(g), emit.Header{
			Source:      c.opts.ConfigPath,
			Fingerprint: fp,
		}),
	}
	if write != nil {
		if err := write(res); err != nil {
			return nil, c.fail(err)
		}
	}

	if err := c.transition(Done); err != nil {
		return nil, err
	}
	c.logger.Info("compiled pipeline", "stages", len(order), "rules", len(rules), "fingerprint", fp[:12])
	return res, nil
}

// warnUnknownParams logs overrides that no stage declares.
func (c *Compiler) warnUnknownParams(cfg *config.PipelineConfig) {
	if len(c.opts.Params) == 0 {
		return
	}
	known := make(map[string]bool)
	for k := range cfg.Params.All() {
		known[k] = true
	}
	for _, s := range cfg.Stages.All() {
		for k := range s.Params.All() {
			known[k] = true
		}
		for _, k := range render.Conditions(s.Command) {
			known[k] = true
		}
	}
	var unknown []string
	for k := range c.opts.Params {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		c.logger.Warn("parameter override not declared by the pipeline", "param", k)
	}
}

// Fingerprint returns the hex BLAKE3-256 digest of cfg's JSON encoding
// followed by the parameter overrides, which also shape the recipes. Key
// order follows declaration order and overrides are hashed sorted by name, so
// equal inputs hash equally. No overrides hashes the config alone.
func Fingerprint(cfg *config.PipelineConfig, overrides map[string]string) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encoding config for fingerprint: %w", err)
	}
	if len(overrides) > 0 {
		// encoding/json writes map keys in sorted order.
		params, err := json.Marshal(overrides)
		if err != nil {
			return "", fmt.Errorf("encoding params for fingerprint: %w", err)
		}
		data = append(append(data, 0), params...)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Outcome labels err for metrics and history: ok, parse, validation, cycle,
// io or error.
func Outcome(err error) string {
	var (
		parseErr   *config.ParseError
		verrs      config.ValidationErrors
		unresolved *graph.UnresolvedReferenceError
		ruleErr    *emit.RuleError
		cycle      *graph.CycleError
		ioErr      *fileutil.IOError
	)
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.As(err, &parseErr):
		return metrics.OutcomeParse
	case errors.As(err, &verrs), errors.As(err, &unresolved), errors.As(err, &ruleErr):
		return metrics.OutcomeValidation
	case errors.As(err, &cycle):
		return metrics.OutcomeCycle
	case errors.As(err, &ioErr):
		return metrics.OutcomeIO
	default:
		return metrics.OutcomeError
	}
}
