package exec

import "fmt"

// dependencyGraph is the executor's own dependency-ordering substrate: the
// plan's node ids plus the edges implied by each NodeSpec.DependsOn. It
// replaces a standalone DAG library with the one thing the executor
// actually needs — grouping nodes into levels it can run concurrently.
type dependencyGraph struct {
	nodeIDs map[string]struct{}
	edges   []dependencyEdge
}

// dependencyEdge records that "to" reads "from"'s output.
type dependencyEdge struct {
	from string
	to   string
}

func newDependencyGraph(ids []string) *dependencyGraph {
	g := &dependencyGraph{nodeIDs: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		g.nodeIDs[id] = struct{}{}
	}
	return g
}

func (g *dependencyGraph) addEdge(from, to string) {
	g.edges = append(g.edges, dependencyEdge{from: from, to: to})
}

// levels groups node ids by dependency depth via Kahn's algorithm: level 0
// holds every node with no unresolved upstream, level 1 holds nodes whose
// upstreams are all in level 0, and so on. Nodes within a level have no
// dependency on one another and the executor runs them concurrently.
// Returns an error if spec.DependsOn describes a cycle or an unknown node.
func (g *dependencyGraph) levels() ([][]string, error) {
	inDegree := make(map[string]int, len(g.nodeIDs))
	dependents := make(map[string][]string)

	for id := range g.nodeIDs {
		inDegree[id] = 0
	}
	for _, e := range g.edges {
		if _, ok := g.nodeIDs[e.from]; !ok {
			return nil, fmt.Errorf("plan edge references unknown node %q", e.from)
		}
		if _, ok := g.nodeIDs[e.to]; !ok {
			return nil, fmt.Errorf("plan edge references unknown node %q", e.to)
		}
		inDegree[e.to]++
		dependents[e.from] = append(dependents[e.from], e.to)
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	var levels [][]string
	visited := 0
	for len(queue) > 0 {
		levels = append(levels, queue)
		visited += len(queue)

		var next []string
		for _, id := range queue {
			for _, dep := range dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		queue = next
	}

	if visited != len(g.nodeIDs) {
		return nil, fmt.Errorf("plan graph has a cycle: scheduled %d of %d nodes", visited, len(g.nodeIDs))
	}
	return levels, nil
}
