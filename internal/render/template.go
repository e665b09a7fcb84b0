// Package render expands stage command templates.
//
// A template may reference make-style automatic variables and stage
// parameters:
//
//	$<            first prerequisite (declaration order)
//	$^            all prerequisites, space separated
//	$@            the rule's own target
//	{{name}}      parameter value
//	{{#if name}}…{{/if}}  kept only when the parameter is non-empty
//
// Substitution is a single left-to-right pass, so values are inserted
// verbatim and never rescanned for further placeholders.
package render

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	tokenRe    = regexp.MustCompile(`\$<|\$\^|\$@|\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)
	varRe      = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)
	ifOpenRe   = regexp.MustCompile(`\{\{#if\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)
	ifCloseStr = "{{/if}}"
)

// Vars is a map of parameter names to values for template rendering.
type Vars map[string]string

// Auto holds the values of the automatic variables for one rule.
type Auto struct {
	Target        string
	Prerequisites []string
}

// Error describes why a template could not be rendered.
type Error struct {
	Missing []string
	Reason  string
}

func (e *Error) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing template parameters: %s", strings.Join(e.Missing, ", "))
	}
	return e.Reason
}

// Render expands tmpl with the given parameters and automatic variables.
// Every {{name}} must have a value in vars; $< and $^ require at least one
// prerequisite.
func Render(tmpl string, vars Vars, auto Auto) (string, error) {
	result, err := processConditionals(tmpl, vars)
	if err != nil {
		return "", err
	}

	var missing []string
	var noPrereq string
	expanded := tokenRe.ReplaceAllStringFunc(result, func(match string) string {
		switch match {
		case "$@":
			return auto.Target
		case "$<":
			if len(auto.Prerequisites) == 0 {
				noPrereq = match
				return match
			}
			return auto.Prerequisites[0]
		case "$^":
			if len(auto.Prerequisites) == 0 {
				noPrereq = match
				return match
			}
			return strings.Join(auto.Prerequisites, " ")
		}
		name := match[2 : len(match)-2]
		if val, ok := vars[name]; ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", &Error{Missing: missing}
	}
	if noPrereq != "" {
		return "", &Error{Reason: fmt.Sprintf("%s used but the rule has no prerequisites", noPrereq)}
	}
	return expanded, nil
}

// Placeholders returns the sorted, de-duplicated {{name}} parameters
// referenced by tmpl. Names used only as {{#if}} conditions are not included;
// see Conditions.
func Placeholders(tmpl string) []string {
	return uniqueSorted(varRe.FindAllStringSubmatch(tmpl, -1))
}

// Conditions returns the sorted, de-duplicated names tested by {{#if}}
// blocks. An absent condition is false, so these need no declaration.
func Conditions(tmpl string) []string {
	return uniqueSorted(ifOpenRe.FindAllStringSubmatch(tmpl, -1))
}

func uniqueSorted(matches [][]string) []string {
	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}

// UsesPrerequisites reports whether tmpl references $< or $^ outside any
// {{#if}} block. Uses inside a block are checked when the block is rendered.
func UsesPrerequisites(tmpl string) bool {
	if stripped, err := processConditionals(tmpl, nil); err == nil {
		tmpl = stripped
	}
	return strings.Contains(tmpl, "$<") || strings.Contains(tmpl, "$^")
}

// processConditionals handles {{#if var}}...{{/if}} blocks, supporting nesting.
// It processes innermost blocks first by finding the last {{#if before each {{/if}}.
func processConditionals(tmpl string, vars Vars) (string, error) {
	result := tmpl
	for {
		closeIdx := strings.Index(result, ifCloseStr)
		if closeIdx == -1 {
			break
		}

		prefix := result[:closeIdx]
		openLocs := ifOpenRe.FindAllStringIndex(prefix, -1)
		if openLocs == nil {
			return "", &Error{Reason: "dangling {{/if}} without matching {{#if}}"}
		}

		lastOpen := openLocs[len(openLocs)-1]
		openStart, openEnd := lastOpen[0], lastOpen[1]

		m := ifOpenRe.FindStringSubmatch(prefix[openStart:openEnd])
		varName := m[1]

		body := result[openEnd:closeIdx]
		closeEnd := closeIdx + len(ifCloseStr)

		var replacement string
		if val, ok := vars[varName]; ok && val != "" {
			replacement = body
		}

		result = result[:openStart] + replacement + result[closeEnd:]
	}

	if loc := ifOpenRe.FindString(result); loc != "" {
		return "", &Error{Reason: fmt.Sprintf("unclosed conditional block: %s", loc)}
	}

	return result, nil
}
