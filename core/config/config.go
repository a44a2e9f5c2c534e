// Package config loads and validates the pre-validated topology descriptor
// described in spec.md §6: the drones, clients, and servers an overlay
// simulation run starts with, their connections, and per-drone packet-drop
// rates. Validation happens once at startup; per "only startup-time
// configuration errors are fatal" (spec.md §7), a malformed or disconnected
// descriptor is reported here and never reaches the routing engine.
//
// Grounded on crates/initializer/src/lib.rs's parse-then-validate shape
// (parse_config / is_connected), restated with encoding/json in place of
// the original's toml decoding, matching the rest of this module's JSON
// wire format.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dsantoro/wgnet/core"
)

// DroneDescriptor is one drone in the topology: its id, the node ids (of
// any type) it is directly connected to, and its packet-drop rate.
type DroneDescriptor struct {
	Id               core.NodeId   `json:"id"`
	ConnectedNodeIds []core.NodeId `json:"connected_node_ids"`
	Pdr              float64       `json:"pdr"`
}

// ClientDescriptor is one client: its id and the drones it connects through
// (1 or 2, per spec.md §6).
type ClientDescriptor struct {
	Id                core.NodeId   `json:"id"`
	ConnectedDroneIds []core.NodeId `json:"connected_drone_ids"`
}

// ServerDescriptor is one server: its id and the drones it connects through
// (2 or more, per spec.md §6).
type ServerDescriptor struct {
	Id                core.NodeId   `json:"id"`
	ConnectedDroneIds []core.NodeId `json:"connected_drone_ids"`
}

// Topology is a fully parsed, not-yet-validated topology descriptor.
type Topology struct {
	Drones  []DroneDescriptor  `json:"drones"`
	Clients []ClientDescriptor `json:"clients"`
	Servers []ServerDescriptor `json:"servers"`
}

// ValidationError reports a single defect found while validating a
// Topology, naming the offending node id for context.
type ValidationError struct {
	NodeId core.NodeId
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: node %d: %s", e.NodeId, e.Reason)
}

// Load parses and validates a topology descriptor from r.
func Load(r io.Reader) (*Topology, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return Parse(data)
}

// LoadFile parses and validates a topology descriptor read from path.
func LoadFile(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a topology descriptor from raw JSON bytes.
func Parse(data []byte) (*Topology, error) {
	var t Topology
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := Validate(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks every structural invariant spec.md §6 places on a
// topology descriptor: per-node degree bounds, pdr range, and graph
// connectivity (undirected DFS from any node must reach every node).
func Validate(t *Topology) error {
	seen := make(map[core.NodeId]bool)
	for _, d := range t.Drones {
		if seen[d.Id] {
			return &ValidationError{NodeId: d.Id, Reason: "duplicate node id"}
		}
		seen[d.Id] = true
		if d.Pdr < 0 || d.Pdr > 1 {
			return &ValidationError{NodeId: d.Id, Reason: fmt.Sprintf("pdr %v out of range [0,1]", d.Pdr)}
		}
	}
	for _, c := range t.Clients {
		if seen[c.Id] {
			return &ValidationError{NodeId: c.Id, Reason: "duplicate node id"}
		}
		seen[c.Id] = true
		if n := len(c.ConnectedDroneIds); n < 1 || n > 2 {
			return &ValidationError{NodeId: c.Id, Reason: fmt.Sprintf("client must connect to 1 or 2 drones, has %d", n)}
		}
	}
	for _, s := range t.Servers {
		if seen[s.Id] {
			return &ValidationError{NodeId: s.Id, Reason: "duplicate node id"}
		}
		seen[s.Id] = true
		if n := len(s.ConnectedDroneIds); n < 2 {
			return &ValidationError{NodeId: s.Id, Reason: fmt.Sprintf("server must connect to at least 2 drones, has %d", n)}
		}
	}

	adjacency := buildAdjacency(t)
	for id, neighbors := range adjacency {
		for _, n := range neighbors {
			if !seen[n] {
				return &ValidationError{NodeId: id, Reason: fmt.Sprintf("connects to unknown node %d", n)}
			}
		}
	}

	if len(seen) == 0 {
		return nil
	}
	if !isConnected(seen, adjacency) {
		return fmt.Errorf("config: topology is not connected")
	}
	return nil
}

// buildAdjacency unifies every descriptor's connection list into a single
// undirected adjacency map, exactly as crates/initializer/src/lib.rs's
// is_connected does before its DFS.
func buildAdjacency(t *Topology) map[core.NodeId][]core.NodeId {
	adj := make(map[core.NodeId][]core.NodeId)
	add := func(a, b core.NodeId) {
		adj[a] = append(adj[a], b)
		adj[b] = append(adj[b], a)
	}
	for _, d := range t.Drones {
		for _, n := range d.ConnectedNodeIds {
			add(d.Id, n)
		}
	}
	for _, c := range t.Clients {
		for _, n := range c.ConnectedDroneIds {
			add(c.Id, n)
		}
	}
	for _, s := range t.Servers {
		for _, n := range s.ConnectedDroneIds {
			add(s.Id, n)
		}
	}
	return adj
}

// isConnected runs an undirected DFS from an arbitrary node in nodes and
// reports whether every node in nodes was reached.
func isConnected(nodes map[core.NodeId]bool, adjacency map[core.NodeId][]core.NodeId) bool {
	var start core.NodeId
	for id := range nodes {
		start = id
		break
	}

	visited := make(map[core.NodeId]bool)
	stack := []core.NodeId{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, n := range adjacency[cur] {
			if !visited[n] {
				stack = append(stack, n)
			}
		}
	}

	return len(visited) == len(nodes)
}

// NodeType reports the declared type of id within t. The second return
// value is false if id is not part of the topology.
func (t *Topology) NodeType(id core.NodeId) (core.NodeType, bool) {
	for _, d := range t.Drones {
		if d.Id == id {
			return core.NodeTypeDrone, true
		}
	}
	for _, c := range t.Clients {
		if c.Id == id {
			return core.NodeTypeClient, true
		}
	}
	for _, s := range t.Servers {
		if s.Id == id {
			return core.NodeTypeServer, true
		}
	}
	return 0, false
}
