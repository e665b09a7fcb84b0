// Package emit renders ordered pipeline stages into build rules and writes
// them out as a Makefile.
package emit

import (
	"fmt"

	"github.com/lucasnoah/pipeconfig/internal/graph"
	"github.com/lucasnoah/pipeconfig/internal/render"
)

// Rule is one build step: make Target from Prerequisites by running Command.
type Rule struct {
	Stage         string
	Target        string
	Prerequisites []string
	Command       string
	Description   string
}

// RuleError reports a stage whose command could not be rendered.
type RuleError struct {
	Stage string
	Err   error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("stage %q: %v", e.Stage, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// Rules renders one rule per stage node, in the order given. order is expected
// to be g's topological order.
//
// Prerequisites are the paths of the stage's dependencies in declared order,
// repeated paths dropped. $< is the first of them. Parameters come from the
// stage (pipeline defaults already merged) with overrides taking precedence.
func Rules(g *graph.Graph, order []*graph.Node, overrides map[string]string) ([]Rule, error) {
	rules := make([]Rule, 0, len(order))
	for _, n := range order {
		if n.Kind != graph.KindStage {
			continue
		}

		prereqs := make([]string, 0, len(n.Prerequisites))
		seen := make(map[string]bool, len(n.Prerequisites))
		for _, id := range n.Prerequisites {
			p, ok := g.Node(id)
			if !ok {
				return nil, &RuleError{Stage: n.ID, Err: fmt.Errorf("unknown prerequisite %q", id)}
			}
			if seen[p.Path] {
				continue
			}
			seen[p.Path] = true
			prereqs = append(prereqs, p.Path)
		}

		vars := make(render.Vars, n.Stage.Params.Len()+len(overrides))
		for k, v := range n.Stage.Params.All() {
			vars[k] = v
		}
		for k, v := range overrides {
			vars[k] = v
		}

		cmd, err := render.Render(n.Stage.Command, vars, render.Auto{Target: n.Path, Prerequisites: prereqs})
		if err != nil {
			return nil, &RuleError{Stage: n.ID, Err: err}
		}

		rules = append(rules, Rule{
			Stage:         n.ID,
			Target:        n.Path,
			Prerequisites: prereqs,
			Command:       cmd,
			Description:   n.Stage.Description,
		})
	}
	return rules, nil
}

// Goals returns the output paths of g's targets, in declared order.
func Goals(g *graph.Graph) []string {
	targets := g.Targets()
	goals := make([]string, 0, len(targets))
	for _, t := range targets {
		if n, ok := g.Node(t); ok {
			goals = append(goals, n.Path)
		}
	}
	return goals
}
