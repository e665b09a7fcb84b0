package config

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/pipeconfig/internal/fileutil"
)

// EnvConfigPath names the environment variable consulted for the pipeline
// config path when none is given explicitly.
const EnvConfigPath = "PIPELINE_CONFIG"

// DefaultCandidates are the file names searched, in order, in the working
// directory when neither an explicit path nor PIPELINE_CONFIG is set.
var DefaultCandidates = []string{"pipeline.json", "pipeline.jsonc", "pipeline.yaml", "pipeline.yml"}

// Format identifies the syntax of a pipeline document.
type Format string

const (
	// FormatJSON accepts JSON with comments and trailing commas (JSONC).
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the document format from a file extension.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ParseError reports a document that is not well-formed for its format.
type ParseError struct {
	Path   string
	Format Format
	Err    error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parsing pipeline %s: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("parsing %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes a pipeline document and applies pipeline-level defaults.
// It checks syntax only; call Validate for schema checks.
func Parse(data []byte, format Format) (*PipelineConfig, error) {
	var cfg PipelineConfig
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, &ParseError{Format: format, Err: err}
		}
	case FormatJSON, "":
		format = FormatJSON
		if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
			return nil, &ParseError{Format: format, Err: err}
		}
	default:
		return nil, &ParseError{Format: format, Err: fmt.Errorf("unsupported format %q", format)}
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Load reads and parses the pipeline document at path. The format is chosen
// from the file extension.
func Load(path string) (*PipelineConfig, error) {
	data, err := fileutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data, FormatForPath(path))
	if err != nil {
		if perr, ok := err.(*ParseError); ok {
			perr.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

// Locate resolves which pipeline document to use when the caller did not name
// one: the value of PIPELINE_CONFIG if set, otherwise the first of
// DefaultCandidates that exists in dir. getenv is usually os.Getenv.
func Locate(dir string, getenv func(string) string) (string, error) {
	if getenv != nil {
		if p := getenv(EnvConfigPath); p != "" {
			return p, nil
		}
	}

	for _, name := range DefaultCandidates {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", &fileutil.IOError{
		Op:   "locate pipeline config in",
		Path: dir,
		Err:  fmt.Errorf("%w (searched %s and $%s)", fs.ErrNotExist, strings.Join(DefaultCandidates, ", "), EnvConfigPath),
	}
}

// LoadDefault locates and loads the pipeline document for dir.
func LoadDefault(dir string, getenv func(string) string) (*PipelineConfig, string, error) {
	path, err := Locate(dir, getenv)
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// applyDefaults merges pipeline-level params into stages that don't set their
// own value for a key.
func applyDefaults(cfg *PipelineConfig) {
	if cfg.Params.Len() == 0 {
		return
	}
	for _, name := range cfg.Stages.Keys() {
		s, _ := cfg.Stages.Get(name)
		merged := OrderedMap[string]{}
		for k, v := range s.Params.All() {
			merged.Set(k, v)
		}
		merged.dups = s.Params.dups
		for k, v := range cfg.Params.All() {
			if !merged.Has(k) {
				merged.Set(k, v)
			}
		}
		s.Params = merged
		cfg.Stages.Set(name, s)
	}
}
