// Package storage provides the in-memory property-graph store that backs the
// interpreted execution backend.
//
// The store keeps nodes and edges in a flat id namespace (a node id is unique
// across all labels) and maintains adjacency indexes in insertion order. The
// ordering is a hard guarantee, not an implementation detail: hierarchy
// operations treat "the parent" as the first outgoing hierarchy edge, and
// subtree cloning depends on deterministic enumeration. Every index is an
// order-preserving slice; nothing iterates a Go map where order can leak into
// results.
//
// Ownership note: the store does NOT verify that an edge's endpoints exist.
// Referential integrity belongs to the command layer above it (see
// pkg/engine), which checks endpoints before calling CreateEdge. The store
// only guarantees id uniqueness and ordering.
//
// Transactions are cooperative: Begin snapshots all state, Commit discards the
// snapshot, Rollback restores it, and exactly one transaction may be open at a
// time. Mutations outside a transaction apply immediately (autocommit). The
// internal mutex protects map integrity for concurrent readers; it does not
// provide transactional isolation, and concurrent writers must be serialized
// by the caller.
//
// Example:
//
//	store := storage.New()
//	_ = store.CreateNode(&storage.Node{
//		ID:    "user-1",
//		Label: "user",
//		Properties: map[string]any{"name": "Ada"},
//	})
//
//	tx, _ := store.Begin()
//	_ = store.CreateNode(&storage.Node{ID: "user-2", Label: "user"})
//	_ = tx.Rollback() // user-2 is gone, user-1 survives
package storage

import (
	"time"
)

// Node is a labeled property-graph vertex.
//
// IDs live in a single flat namespace: two nodes may never share an id even
// when their labels differ. Properties hold JSON-compatible scalars, dates
// (time.Time) and arrays. The JSON shape matches the store snapshot format
// consumed by export/import and the snapshot repository.
type Node struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Edge is a directed, typed relationship between two nodes.
//
// FromID and ToID are expected to reference existing nodes, but the store does
// not enforce that; the mutation layer owns endpoint checks (see the package
// comment).
type Edge struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	FromID     string         `json:"fromId"`
	ToID       string         `json:"toId"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Snapshot is a full point-in-time export of the store. Arrays are in
// insertion order, and Import rebuilds insertion order from array order, so an
// export/import round-trip preserves every ordering guarantee.
type Snapshot struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// Stats summarizes store contents. Labels and EdgeTypes are sorted so repeated
// calls yield identical output.
type Stats struct {
	Nodes     int64    `json:"nodes"`
	Edges     int64    `json:"edges"`
	Labels    []string `json:"labels"`
	EdgeTypes []string `json:"edgeTypes"`
}

// Clone returns a deep copy of the node. The property map and any nested
// slices/maps are copied, so mutating the clone never affects the original.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	return &Node{
		ID:         n.ID,
		Label:      n.Label,
		Properties: cloneProps(n.Properties),
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
	}
}

// Clone returns a deep copy of the edge.
func (e *Edge) Clone() *Edge {
	if e == nil {
		return nil
	}
	return &Edge{
		ID:         e.ID,
		Type:       e.Type,
		FromID:     e.FromID,
		ToID:       e.ToID,
		Properties: cloneProps(e.Properties),
		CreatedAt:  e.CreatedAt,
	}
}

// cloneProps deep-copies a property map one value at a time. Supported value
// shapes are scalars, time.Time, []any, []string, []int64, []float64 and
// nested map[string]any.
func cloneProps(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = cloneValue(item)
		}
		return cp
	case []string:
		cp := make([]string, len(val))
		copy(cp, val)
		return cp
	case []int64:
		cp := make([]int64, len(val))
		copy(cp, val)
		return cp
	case []float64:
		cp := make([]float64, len(val))
		copy(cp, val)
		return cp
	case map[string]any:
		return cloneProps(val)
	default:
		// Scalars and time.Time are value types.
		return v
	}
}
