package graph

const (
	white = iota // unvisited
	grey         // on the current DFS path
	black        // finished
)

// TopologicalOrder returns the stage nodes ordered so that every stage comes
// after all stages it depends on.
//
// The walk is a depth-first search from each stage in declaration order,
// following prerequisites in declared order and emitting a stage once all of
// its prerequisites are done. Stages with no ordering constraint between them
// therefore keep first-seen order, and identical input always yields the same
// order. Meeting a stage that is still on the DFS path means a loop; the
// path from that stage down to the current one is returned as a CycleError.
func (g *Graph) TopologicalOrder() ([]*Node, error) {
	color := make(map[string]int, len(g.stages))
	stack := make([]string, 0, len(g.stages))
	order := make([]*Node, 0, len(g.stages))

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = grey
		stack = append(stack, id)

		n := g.nodes[id]
		for _, p := range n.Prerequisites {
			if g.nodes[p].Kind != KindStage {
				continue
			}
			switch color[p] {
			case grey:
				return &CycleError{Path: cyclePath(stack, p)}
			case white:
				if err := visit(p); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
		order = append(order, n)
		return nil
	}

	for _, id := range g.stages {
		if color[id] != white {
			continue
		}
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// StageOrder is TopologicalOrder reduced to stage names.
func (g *Graph) StageOrder() ([]string, error) {
	nodes, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.ID
	}
	return names, nil
}

// cyclePath returns the suffix of stack starting at start.
func cyclePath(stack []string, start string) []string {
	for i, id := range stack {
		if id == start {
			return append([]string(nil), stack[i:]...)
		}
	}
	return append([]string(nil), stack...)
}
