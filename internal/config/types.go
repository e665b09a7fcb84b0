package config

// PipelineConfig is the top-level pipeline document.
type PipelineConfig struct {
	// Targets are the stages whose outputs are the pipeline's deliverables.
	// Order is significant: it is the order the default goal builds them in.
	Targets []string `json:"targets" yaml:"targets"`

	// Params are pipeline-wide parameter defaults. A stage's own params
	// take precedence.
	Params OrderedMap[string] `json:"params,omitzero" yaml:"params,omitempty"`

	Stages OrderedMap[StageDef] `json:"stages" yaml:"stages"`
}

// StageDef declares a single stage: what it consumes, how it is
// parameterised and the command that produces its output.
type StageDef struct {
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Output is the path of the artifact the stage builds. When empty the
	// stage name is used.
	Output string `json:"output,omitempty" yaml:"output,omitempty"`

	// Dependencies maps a local alias to either a stage name or a file path.
	Dependencies OrderedMap[string] `json:"dependencies,omitzero" yaml:"dependencies,omitempty"`

	Params OrderedMap[string] `json:"params,omitzero" yaml:"params,omitempty"`

	Command string `json:"command" yaml:"command"`
}

// Stage returns the definition of the named stage.
func (c *PipelineConfig) Stage(name string) (StageDef, bool) {
	return c.Stages.Get(name)
}

// OutputOf returns the cleaned output path of the named stage: its explicit
// output, or the stage name when none is declared.
func (c *PipelineConfig) OutputOf(name string) string {
	if s, ok := c.Stages.Get(name); ok && s.Output != "" {
		return CleanPath(s.Output)
	}
	return CleanPath(name)
}
