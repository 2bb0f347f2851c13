package pipeline

import (
	"container/heap"
	"context"
	"fmt"
	"strings"

	apperrors "github.com/harunnryd/autopdf/internal/errors"
)

// StepFunc runs one node of a run against the shared run state.
type StepFunc func(ctx context.Context, st *runState) error

type Node struct {
	Name string
	Run  StepFunc
}

// Edge declares that To depends on From.
type Edge struct {
	From string
	To   string
}

// Graph is an immutable, validated DAG of steps. Node order of declaration
// breaks ties, so the execution order is stable.
type Graph struct {
	nodes    []Node
	index    map[string]int
	outgoing [][]int
	incoming [][]int
	order    []int
}

// NewGraph validates nodes and edges. It rejects empty or duplicate names,
// unknown endpoints, self-loops, duplicate edges and cycles.
func NewGraph(nodes []Node, edges []Edge) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, invalidf("no nodes")
	}

	g := &Graph{
		nodes:    nodes,
		index:    make(map[string]int, len(nodes)),
		outgoing: make([][]int, len(nodes)),
		incoming: make([][]int, len(nodes)),
	}
	for i, n := range nodes {
		if n.Name == "" {
			return nil, invalidf("node name is required")
		}
		if n.Run == nil {
			return nil, invalidf("node %q has no step", n.Name)
		}
		if _, exists := g.index[n.Name]; exists {
			return nil, invalidf("duplicate node name: %q", n.Name)
		}
		g.index[n.Name] = i
	}

	seen := make(map[[2]int]struct{}, len(edges))
	for _, e := range edges {
		from, okFrom := g.index[e.From]
		to, okTo := g.index[e.To]
		if !okFrom {
			return nil, invalidf("edge references unknown node (from): %q", e.From)
		}
		if !okTo {
			return nil, invalidf("edge references unknown node (to): %q", e.To)
		}
		if from == to {
			return nil, invalidf("self-loop: %q -> %q", e.From, e.To)
		}
		pair := [2]int{from, to}
		if _, exists := seen[pair]; exists {
			return nil, invalidf("duplicate edge: %q -> %q", e.From, e.To)
		}
		seen[pair] = struct{}{}
		g.outgoing[from] = append(g.outgoing[from], to)
		g.incoming[to] = append(g.incoming[to], from)
	}

	g.order = g.topoOrder()
	if len(g.order) != len(nodes) {
		return nil, invalidf("cycle detected among: %s", strings.Join(g.unordered(), ", "))
	}
	return g, nil
}

// TopologicalOrder returns node names in execution order.
func (g *Graph) TopologicalOrder() []string {
	out := make([]string, 0, len(g.order))
	for _, i := range g.order {
		out = append(out, g.nodes[i].Name)
	}
	return out
}

// Dependencies returns the direct predecessors of name.
func (g *Graph) Dependencies(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.incoming[i]))
	for _, p := range g.incoming[i] {
		out = append(out, g.nodes[p].Name)
	}
	return out
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrder is Kahn's algorithm with a min-heap ready queue.
func (g *Graph) topoOrder() []int {
	indeg := make([]int, len(g.nodes))
	for i := range g.incoming {
		indeg[i] = len(g.incoming[i])
	}

	ready := &intMinHeap{}
	for i, d := range indeg {
		if d == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range g.outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

func (g *Graph) unordered() []string {
	placed := make(map[int]bool, len(g.order))
	for _, i := range g.order {
		placed[i] = true
	}
	var names []string
	for i, n := range g.nodes {
		if !placed[i] {
			names = append(names, n.Name)
		}
	}
	return names
}

func invalidf(format string, args ...any) error {
	return apperrors.InvalidInput("invalid pipeline graph: " + fmt.Sprintf(format, args...))
}
