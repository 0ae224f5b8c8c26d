// internal/conflict/graph.go
package conflict

import (
	"sort"
)

// Edge is an unordered pair of conflicting agents, stored with A < B.
type Edge struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Graph is the undirected conflict graph of one tick.
type Graph struct {
	nodes map[string]struct{}
	adj   map[string]map[string]struct{}
}

// NewGraph returns a graph holding the given agents and no edges.
func NewGraph(nodes ...string) *Graph {
	g := &Graph{
		nodes: make(map[string]struct{}, len(nodes)),
		adj:   make(map[string]map[string]struct{}),
	}
	for _, n := range nodes {
		g.AddNode(n)
	}
	return g
}

// AddNode adds an agent without conflicts.
func (g *Graph) AddNode(id string) {
	g.nodes[id] = struct{}{}
}

// AddEdge records a conflict between a and b. Endpoints are not checked
// against the node set here; the resolver rejects dangling edges.
func (g *Graph) AddEdge(a, b string) {
	if a == b {
		return
	}
	if g.adj[a] == nil {
		g.adj[a] = make(map[string]struct{})
	}
	if g.adj[b] == nil {
		g.adj[b] = make(map[string]struct{})
	}
	g.adj[a][b] = struct{}{}
	g.adj[b][a] = struct{}{}
}

// HasNode reports whether id is an agent of this tick.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// HasEdge reports whether a and b conflict.
func (g *Graph) HasEdge(a, b string) bool {
	_, ok := g.adj[a][b]
	return ok
}

// Len is the number of agents.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes returns the agents sorted by id.
func (g *Graph) Nodes() []string {
	out := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Neighbors returns the agents conflicting with id, sorted.
func (g *Graph) Neighbors(id string) []string {
	out := make([]string, 0, len(g.adj[id]))
	for n := range g.adj[id] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Edges returns every conflict once, sorted.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for a, ns := range g.adj {
		for b := range ns {
			if a < b {
				out = append(out, Edge{A: a, B: b})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// Endpoints lists every id that appears on an edge, sorted.
func (g *Graph) Endpoints() []string {
	out := make([]string, 0, len(g.adj))
	for n := range g.adj {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
