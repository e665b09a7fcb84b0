package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/lucasnoah/pipeconfig/internal/render"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is the full list of issues found in a config.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "no validation errors"
	case 1:
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("%d validation errors: %s", len(e), strings.Join(msgs, "; "))
}

// defaultGoal is the phony target the emitted Makefile declares itself.
const defaultGoal = "all"

// Reserved reports whether p names a target make treats specially: the
// generated default goal or a special target such as .PHONY or .ONESHELL.
// GNU make reserves every name of a dot followed by an upper-case letter.
func Reserved(p string) bool {
	if p == defaultGoal {
		return true
	}
	return len(p) > 1 && p[0] == '.' && unicode.IsUpper(rune(p[1]))
}

// pathSpecials are characters make cannot carry in a plain target or
// prerequisite name.
const pathSpecials = `:;=#%$*?[]\"'`

// CleanPath returns the canonical form make matches targets by, so that
// "./out.txt" and "out.txt" name the same file.
func CleanPath(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}

// PlausiblePath reports whether s can name a file in a generated Makefile.
func PlausiblePath(s string) bool {
	if s == "" || s[0] == '~' {
		return false
	}
	if c := filepath.Clean(s); c == "." || c == ".." {
		return false
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) || strings.ContainsRune(pathSpecials, r) {
			return false
		}
	}
	return true
}

// Validate checks a PipelineConfig for structural and semantic errors.
// It returns all validation errors found (empty if valid).
func Validate(cfg *PipelineConfig) ValidationErrors {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Stages.Len() == 0 {
		add("stages", "at least one stage is required")
	}
	for _, dup := range cfg.Stages.Duplicates() {
		add("stages", "duplicate stage name %q", dup)
	}
	for _, dup := range cfg.Params.Duplicates() {
		add("params", "duplicate param %q", dup)
	}

	// Targets
	if len(cfg.Targets) == 0 {
		add("targets", "at least one target is required")
	}
	seenTargets := make(map[string]bool, len(cfg.Targets))
	for i, t := range cfg.Targets {
		field := fmt.Sprintf("targets[%d]", i)
		switch {
		case t == "":
			add(field, "is empty")
		case !cfg.Stages.Has(t):
			add(field, "references undeclared stage %q", t)
		case seenTargets[t]:
			add(field, "duplicate target %q", t)
		}
		seenTargets[t] = true
	}

	// Stage names and outputs
	lowerNames := make(map[string]string, cfg.Stages.Len())
	for _, name := range cfg.Stages.Keys() {
		lowerNames[strings.ToLower(name)] = name
	}
	outputs := make(map[string]string, cfg.Stages.Len())
	for _, name := range cfg.Stages.Keys() {
		prefix := "stages." + name
		if strings.TrimSpace(name) == "" || strings.IndexFunc(name, unicode.IsSpace) >= 0 {
			add(prefix, "stage name %q must be non-empty and contain no whitespace", name)
			continue
		}

		out := cfg.OutputOf(name)
		switch {
		case !PlausiblePath(out):
			add(prefix+".output", "%q is not a usable file path", out)
		case Reserved(out):
			add(prefix+".output", "%q is reserved in the generated Makefile", out)
		case outputs[out] != "":
			add(prefix+".output", "output %q is also produced by stage %q", out, outputs[out])
		case out != name && cfg.Stages.Has(out):
			add(prefix+".output", "output %q collides with the name of stage %q", out, out)
		}
		outputs[out] = name
	}

	// Per-stage dependencies, params and command
	for name, s := range cfg.Stages.All() {
		prefix := "stages." + name

		for _, dup := range s.Dependencies.Duplicates() {
			add(prefix+".dependencies", "duplicate dependency alias %q", dup)
		}
		for _, dup := range s.Params.Duplicates() {
			add(prefix+".params", "duplicate param %q", dup)
		}

		for alias, ref := range s.Dependencies.All() {
			field := prefix + ".dependencies." + alias
			if alias == "" {
				add(prefix+".dependencies", "dependency alias must not be empty")
			}
			validateReference(cfg, field, ref, lowerNames, outputs, add)
		}

		if strings.TrimSpace(s.Command) == "" {
			add(prefix+".command", "is required")
			continue
		}
		// {{#if}} conditions may stay undeclared; an absent one is false.
		for _, p := range render.Placeholders(s.Command) {
			if !s.Params.Has(p) && !cfg.Params.Has(p) {
				add(prefix+".command", "references undeclared param %q", p)
			}
		}
		if render.UsesPrerequisites(s.Command) && s.Dependencies.Len() == 0 {
			add(prefix+".command", "uses $< or $^ but the stage has no dependencies")
		}
	}

	return errs
}

// validateReference checks one dependency reference. A reference that is not a
// declared stage or another stage's output is a file path and must be usable
// as one; a reference that only differs from a stage name by case is almost
// certainly a typo.
func validateReference(cfg *PipelineConfig, field, ref string, lowerNames, outputs map[string]string, add func(string, string, ...any)) {
	if cfg.Stages.Has(ref) {
		return
	}
	if strings.TrimSpace(ref) == "" {
		add(field, "dependency reference is empty")
		return
	}
	clean := CleanPath(ref)
	if cfg.Stages.Has(clean) {
		return
	}
	if Reserved(clean) {
		add(field, "%q is reserved in the generated Makefile", ref)
		return
	}
	if _, ok := outputs[clean]; ok {
		return
	}
	if stage, ok := lowerNames[strings.ToLower(clean)]; ok {
		add(field, "references undeclared stage %q (did you mean %q?)", ref, stage)
		return
	}
	if !PlausiblePath(ref) {
		add(field, "references undeclared stage or unusable file path %q", ref)
	}
}
