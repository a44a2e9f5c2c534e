// Package graph implements the directed weighted topology graph used by the
// routing engine: adjacency-list storage plus a binary-heap Dijkstra that
// records predecessors during relaxation.
//
// No graph or shortest-path library exists anywhere in the reference corpus
// this module was built from, so this package is hand-written rather than
// grounded on a specific file — directed weighted graph with O(E log V)
// shortest path and incident-edge iteration is all the routing engine
// needs.
package graph

import (
	"math"

	"github.com/dsantoro/wgnet/core"
)

// MaxWeight is the saturation ceiling for edge weights.
const MaxWeight uint32 = math.MaxUint32

// Graph is a directed graph with positive uint32 edge weights.
type Graph struct {
	adj map[core.NodeId]map[core.NodeId]uint32
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{adj: make(map[core.NodeId]map[core.NodeId]uint32)}
}

// AddNode ensures id is present in the graph, even with no edges.
func (g *Graph) AddNode(id core.NodeId) {
	if _, ok := g.adj[id]; !ok {
		g.adj[id] = make(map[core.NodeId]uint32)
	}
}

// HasNode reports whether id has been added to the graph.
func (g *Graph) HasNode(id core.NodeId) bool {
	_, ok := g.adj[id]
	return ok
}

// RemoveNode deletes id and every edge incident to it (as either endpoint).
func (g *Graph) RemoveNode(id core.NodeId) {
	delete(g.adj, id)
	for _, edges := range g.adj {
		delete(edges, id)
	}
}

// AddEdge inserts or overwrites the directed edge from->to with the given
// weight. Weight 0 is rewritten to 1 (weights must be strictly positive).
// Both endpoints are implicitly added as nodes.
func (g *Graph) AddEdge(from, to core.NodeId, weight uint32) {
	if weight == 0 {
		weight = 1
	}
	g.AddNode(from)
	g.AddNode(to)
	g.adj[from][to] = weight
}

// HasEdge reports whether a directed edge from->to exists.
func (g *Graph) HasEdge(from, to core.NodeId) bool {
	edges, ok := g.adj[from]
	if !ok {
		return false
	}
	_, ok = edges[to]
	return ok
}

// Weight returns the weight of edge from->to and whether it exists.
func (g *Graph) Weight(from, to core.NodeId) (uint32, bool) {
	edges, ok := g.adj[from]
	if !ok {
		return 0, false
	}
	w, ok := edges[to]
	return w, ok
}

// Neighbors returns the directed out-neighbors of id.
func (g *Graph) Neighbors(id core.NodeId) map[core.NodeId]uint32 {
	return g.adj[id]
}

// Nodes returns every node currently in the graph.
func (g *Graph) Nodes() []core.NodeId {
	nodes := make([]core.NodeId, 0, len(g.adj))
	for id := range g.adj {
		nodes = append(nodes, id)
	}
	return nodes
}

// EdgeCount returns the total number of directed edges in the graph.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, edges := range g.adj {
		n += len(edges)
	}
	return n
}

// IncrementWeightAround adjusts the weight of every edge incident to id
// (as either endpoint) by delta. Positive delta saturates at MaxWeight;
// negative delta floors the result at 1.
func (g *Graph) IncrementWeightAround(id core.NodeId, delta int64) {
	adjust := func(w uint32) uint32 {
		if delta >= 0 {
			d := uint64(delta)
			nw := uint64(w) + d
			if nw > uint64(MaxWeight) {
				return MaxWeight
			}
			return uint32(nw)
		}
		d := uint64(-delta)
		if uint64(w) <= d {
			return 1
		}
		return w - uint32(d)
	}

	if edges, ok := g.adj[id]; ok {
		for to, w := range edges {
			edges[to] = adjust(w)
		}
	}
	for from, edges := range g.adj {
		if from == id {
			continue
		}
		if w, ok := edges[id]; ok {
			edges[id] = adjust(w)
		}
	}
}
