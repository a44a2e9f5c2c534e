package graph

import (
	"container/heap"
	"errors"

	"github.com/dsantoro/wgnet/core"
)

// ErrCycleDetected is returned by ReconstructPath when predecessor data is
// inconsistent (a node is revisited before reaching the start), which
// should not happen for predecessors recorded during a correct Dijkstra run
// but is guarded against defensively.
var ErrCycleDetected = errors.New("graph: cycle detected in predecessor chain")

// ShortestPaths is the result of a single-source Dijkstra run: distances
// and predecessors recorded during relaxation (not reconstructed by a
// post-hoc search).
type ShortestPaths struct {
	Dist map[core.NodeId]uint64
	Prev map[core.NodeId]core.NodeId
}

type heapItem struct {
	id   core.NodeId
	dist uint64
}

type minHeap []heapItem

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Dijkstra computes shortest distances and predecessors from start to every
// reachable node. Predecessors are recorded at relaxation time, so path
// reconstruction never needs to re-search the graph.
func (g *Graph) Dijkstra(start core.NodeId) ShortestPaths {
	dist := make(map[core.NodeId]uint64)
	prev := make(map[core.NodeId]core.NodeId)
	visited := make(map[core.NodeId]bool)

	if !g.HasNode(start) {
		return ShortestPaths{Dist: dist, Prev: prev}
	}

	dist[start] = 0
	pq := &minHeap{{id: start, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(heapItem)
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true

		for to, w := range g.adj[cur.id] {
			if visited[to] {
				continue
			}
			nd := cur.dist + uint64(w)
			if existing, ok := dist[to]; !ok || nd < existing {
				dist[to] = nd
				prev[to] = cur.id
				heap.Push(pq, heapItem{id: to, dist: nd})
			}
		}
	}

	return ShortestPaths{Dist: dist, Prev: prev}
}

// ReconstructPath walks the predecessor chain from target back to start and
// returns it reversed (start..target). It returns ErrCycleDetected if a
// node is revisited before reaching start, and ok=false if target is
// unreachable from start.
func (sp ShortestPaths) ReconstructPath(start, target core.NodeId) (path []core.NodeId, ok bool, err error) {
	if target == start {
		return []core.NodeId{start}, true, nil
	}
	if _, reachable := sp.Dist[target]; !reachable {
		return nil, false, nil
	}

	seen := map[core.NodeId]bool{target: true}
	rev := []core.NodeId{target}
	cur := target
	for cur != start {
		p, ok := sp.Prev[cur]
		if !ok {
			return nil, false, nil
		}
		if seen[p] && p != start {
			return nil, false, ErrCycleDetected
		}
		seen[p] = true
		rev = append(rev, p)
		cur = p
	}

	path = make([]core.NodeId, len(rev))
	for i, id := range rev {
		path[len(rev)-1-i] = id
	}
	return path, true, nil
}
