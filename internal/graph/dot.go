package graph

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// WriteDOT renders the graph in Graphviz DOT syntax. Stages are boxes, files
// are ellipses and targets are drawn with a double border. Output is stable
// for a given graph.
func (g *Graph) WriteDOT(w io.Writer) error {
	bw := bufio.NewWriter(w)
	isTarget := make(map[string]bool, len(g.targets))
	for _, t := range g.targets {
		isTarget[t] = true
	}

	fmt.Fprintln(bw, "digraph pipeline {")
	fmt.Fprintln(bw, "  rankdir=LR;")
	for _, n := range g.Nodes() {
		attrs := "shape=ellipse"
		if n.Kind == KindStage {
			attrs = "shape=box"
			if isTarget[n.ID] {
				attrs += ", peripheries=2"
			}
			if n.Path != n.ID {
				attrs += ", tooltip=" + strconv.Quote(n.Path)
			}
		}
		fmt.Fprintf(bw, "  %s [%s];\n", strconv.Quote(n.ID), attrs)
	}
	for _, e := range g.Edges() {
		fmt.Fprintf(bw, "  %s -> %s;\n", strconv.Quote(e.From), strconv.Quote(e.To))
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}
