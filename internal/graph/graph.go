package graph

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/lucasnoah/pipeconfig/internal/config"
)

// Kind distinguishes stage nodes from file leaves.
type Kind int

const (
	KindFile Kind = iota
	KindStage
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindStage:
		return "stage"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Node is a vertex of the dependency graph.
type Node struct {
	// ID is the stage name for stage nodes and the path for file nodes.
	ID   string
	Kind Kind
	// Path is the file the node stands for: a stage's output or the file itself.
	Path string
	// Stage is the producing definition; nil for file nodes.
	Stage *config.StageDef
	// Prerequisites are the resolved node IDs of the stage's dependencies, in
	// declared order, parallel to Aliases.
	Prerequisites []string
	Aliases       []string
}

// Edge represents a dependency relation: To depends on From.
type Edge struct {
	From string
	To   string
}

// Options controls reference resolution.
type Options struct {
	// Strict requires every file node to exist on disk.
	Strict bool
	// BaseDir anchors relative file paths for the strict check.
	BaseDir string
	// Stat replaces os.Stat, for tests.
	Stat func(string) (fs.FileInfo, error)
}

// Graph is an immutable dependency graph over stages and files.
type Graph struct {
	nodes      map[string]*Node
	order      []string // stage nodes in declaration order, then files as first seen
	stages     []string
	targets    []string
	dependents map[string][]string
}

// Build resolves every dependency of cfg into a graph. cfg must already have
// passed config.Validate.
//
// A reference that names a declared stage binds to that stage. A reference
// equal to some stage's output path binds to that stage as well. Anything
// else is a file node, created on first use and shared by later references.
// Paths are compared in cleaned form, the way make matches targets, so
// "./out.txt" and "out.txt" are the same node.
func Build(cfg *config.PipelineConfig, opts Options) (*Graph, error) {
	stat := opts.Stat
	if stat == nil {
		stat = os.Stat
	}

	g := &Graph{
		nodes:      make(map[string]*Node, cfg.Stages.Len()),
		targets:    append([]string(nil), cfg.Targets...),
		dependents: make(map[string][]string),
	}

	byOutput := make(map[string]string, cfg.Stages.Len())
	for name, def := range cfg.Stages.All() {
		g.nodes[name] = &Node{ID: name, Kind: KindStage, Path: cfg.OutputOf(name), Stage: &def}
		g.order = append(g.order, name)
		g.stages = append(g.stages, name)
		byOutput[cfg.OutputOf(name)] = name
	}

	for _, name := range g.stages {
		n := g.nodes[name]
		for alias, ref := range n.Stage.Dependencies.All() {
			id, ok := resolveStage(cfg, byOutput, ref)
			if !ok {
				id = config.CleanPath(ref)
				if _, seen := g.nodes[id]; !seen {
					if opts.Strict {
						if err := checkExists(stat, opts.BaseDir, id); err != nil {
							return nil, &UnresolvedReferenceError{Stage: name, Alias: alias, Reference: ref, Err: err}
						}
					}
					g.nodes[id] = &Node{ID: id, Kind: KindFile, Path: id}
					g.order = append(g.order, id)
				}
			}
			n.Prerequisites = append(n.Prerequisites, id)
			n.Aliases = append(n.Aliases, alias)
			if !contains(g.dependents[id], name) {
				g.dependents[id] = append(g.dependents[id], name)
			}
		}
	}

	return g, nil
}

func resolveStage(cfg *config.PipelineConfig, byOutput map[string]string, ref string) (string, bool) {
	if cfg.Stages.Has(ref) {
		return ref, true
	}
	clean := config.CleanPath(ref)
	if name, ok := byOutput[clean]; ok {
		return name, true
	}
	if cfg.Stages.Has(clean) {
		return clean, true
	}
	return "", false
}

func checkExists(stat func(string) (fs.FileInfo, error), baseDir, ref string) error {
	path := ref
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	_, err := stat(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return err
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes: stages in declaration order, then files in the
// order they were first referenced.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Stages returns the stage nodes in declaration order.
func (g *Graph) Stages() []*Node {
	out := make([]*Node, 0, len(g.stages))
	for _, id := range g.stages {
		out = append(out, g.nodes[id])
	}
	return out
}

// Files returns the file nodes in first-referenced order.
func (g *Graph) Files() []*Node {
	var out []*Node
	for _, id := range g.order {
		if n := g.nodes[id]; n.Kind == KindFile {
			out = append(out, n)
		}
	}
	return out
}

// Targets returns the deliverable stage names in declared order.
func (g *Graph) Targets() []string {
	return append([]string(nil), g.targets...)
}

// Dependents returns the stages that consume the node, in declaration order.
func (g *Graph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// Edges returns each distinct dependency relation once, grouped by consuming
// stage in declaration order.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, id := range g.stages {
		n := g.nodes[id]
		var seen []string
		for _, p := range n.Prerequisites {
			if contains(seen, p) {
				continue
			}
			seen = append(seen, p)
			out = append(out, Edge{From: p, To: id})
		}
	}
	return out
}

// Unused returns stages that no target needs, directly or transitively.
func (g *Graph) Unused() []string {
	needed := make(map[string]bool, len(g.stages))
	var mark func(id string)
	mark = func(id string) {
		if needed[id] {
			return
		}
		needed[id] = true
		for _, p := range g.nodes[id].Prerequisites {
			if g.nodes[p].Kind == KindStage {
				mark(p)
			}
		}
	}
	for _, t := range g.targets {
		if n, ok := g.nodes[t]; ok && n.Kind == KindStage {
			mark(t)
		}
	}

	var out []string
	for _, id := range g.stages {
		if !needed[id] {
			out = append(out, id)
		}
	}
	return out
}
