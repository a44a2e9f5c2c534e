package graph

import (
	"reflect"
	"testing"

	"github.com/dsantoro/wgnet/core"
)

func TestAddEdge_ZeroWeightRewritten(t *testing.T) {
	g := New()
	g.AddEdge(1, 2, 0)
	w, ok := g.Weight(1, 2)
	if !ok || w != 1 {
		t.Errorf("Weight = %d, %v, want 1, true", w, ok)
	}
}

func TestRemoveNode_RemovesIncidentEdges(t *testing.T) {
	g := New()
	g.AddEdge(1, 2, 5)
	g.AddEdge(2, 1, 5)
	g.AddEdge(2, 3, 1)

	g.RemoveNode(2)

	if g.HasNode(2) {
		t.Error("node 2 still present")
	}
	if g.HasEdge(1, 2) {
		t.Error("edge 1->2 still present")
	}
}

func TestIncrementWeightAround_Saturates(t *testing.T) {
	g := New()
	g.AddEdge(1, 2, MaxWeight-1)
	g.IncrementWeightAround(1, 5)
	w, _ := g.Weight(1, 2)
	if w != MaxWeight {
		t.Errorf("weight = %d, want %d (saturated)", w, MaxWeight)
	}
}

func TestIncrementWeightAround_FloorsAtOne(t *testing.T) {
	g := New()
	g.AddEdge(1, 2, 2)
	g.IncrementWeightAround(1, -10)
	w, _ := g.Weight(1, 2)
	if w != 1 {
		t.Errorf("weight = %d, want 1 (floored)", w)
	}
}

func TestIncrementWeightAround_BothDirections(t *testing.T) {
	g := New()
	g.AddEdge(1, 2, 3)
	g.AddEdge(3, 2, 3)
	g.IncrementWeightAround(2, 1)

	w1, _ := g.Weight(1, 2)
	w2, _ := g.Weight(3, 2)
	if w1 != 4 || w2 != 4 {
		t.Errorf("w1=%d w2=%d, want both 4", w1, w2)
	}
}

func TestDijkstra_SimplePath(t *testing.T) {
	g := New()
	g.AddEdge(10, 0, 1)
	g.AddEdge(0, 1, 1)
	g.AddEdge(1, 11, 1)

	sp := g.Dijkstra(10)
	path, ok, err := sp.ReconstructPath(10, 11)
	if err != nil {
		t.Fatalf("ReconstructPath() error = %v", err)
	}
	if !ok {
		t.Fatal("ReconstructPath() ok = false, want true")
	}
	want := []core.NodeId{10, 0, 1, 11}
	if !reflect.DeepEqual(path, want) {
		t.Errorf("path = %v, want %v", path, want)
	}
}

func TestDijkstra_PrefersLowerWeight(t *testing.T) {
	g := New()
	// Two parallel paths C(1)-A(2)-S(3) and C(1)-B(4)-S(3), both weight 1.
	g.AddEdge(1, 2, 1)
	g.AddEdge(2, 3, 1)
	g.AddEdge(1, 4, 1)
	g.AddEdge(4, 3, 1)

	g.IncrementWeightAround(2, 3)

	sp := g.Dijkstra(1)
	path, ok, err := sp.ReconstructPath(1, 3)
	if err != nil || !ok {
		t.Fatalf("ReconstructPath() = %v, %v, %v", path, ok, err)
	}
	want := []core.NodeId{1, 4, 3}
	if !reflect.DeepEqual(path, want) {
		t.Errorf("path = %v, want %v", path, want)
	}
}

func TestDijkstra_Unreachable(t *testing.T) {
	g := New()
	g.AddNode(1)
	g.AddNode(2)

	sp := g.Dijkstra(1)
	_, ok, err := sp.ReconstructPath(1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected ok = false for unreachable target")
	}
}

func TestDijkstra_StartEqualsTarget(t *testing.T) {
	g := New()
	g.AddNode(1)
	sp := g.Dijkstra(1)
	path, ok, err := sp.ReconstructPath(1, 1)
	if err != nil || !ok {
		t.Fatalf("path=%v ok=%v err=%v", path, ok, err)
	}
	if len(path) != 1 || path[0] != 1 {
		t.Errorf("path = %v, want [1]", path)
	}
}
