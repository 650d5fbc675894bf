// Pattern steps: match, traversal and reachability over the adjacency
// indexes.

package engine

import (
	"github.com/biplanedb/biplane/pkg/plan"
	"github.com/biplanedb/biplane/pkg/storage"
)

// hop is one adjacency expansion: the edge taken and the node reached.
type hop struct {
	edge *storage.Edge
	node *storage.Node
}

// adjacency lists the hops available from a node, in edge insertion
// order. DirectionBoth lists outgoing first, then incoming, counting a
// self-loop once.
func (ex *exec) adjacency(node *storage.Node, types []string, dir plan.Direction) []hop {
	var hops []hop
	appendHops := func(edges []*storage.Edge, incoming bool) {
		for _, edge := range edges {
			targetID := edge.ToID
			if incoming {
				targetID = edge.FromID
			}
			target, err := ex.eng.store.GetNode(targetID)
			if err != nil {
				continue // dangling edge, skip
			}
			hops = append(hops, hop{edge: edge, node: target})
		}
	}

	switch dir {
	case plan.DirectionIn:
		appendHops(ex.eng.store.IncomingEdges(node.ID, types...), true)
	case plan.DirectionBoth:
		appendHops(ex.eng.store.OutgoingEdges(node.ID, types...), false)
		for _, edge := range ex.eng.store.IncomingEdges(node.ID, types...) {
			if edge.FromID == edge.ToID {
				continue // self-loop already listed as outgoing
			}
			if from, err := ex.eng.store.GetNode(edge.FromID); err == nil {
				hops = append(hops, hop{edge: edge, node: from})
			}
		}
	default:
		appendHops(ex.eng.store.OutgoingEdges(node.ID, types...), false)
	}
	return hops
}

func (ex *exec) execMatch(m *plan.MatchStep) {
	var matches []*storage.Node
	switch {
	case m.ID != "":
		if node, err := ex.eng.store.GetNode(m.ID); err == nil {
			if m.Label == "" || node.Label == m.Label {
				matches = []*storage.Node{node}
			}
		}
	case m.Label != "":
		matches = ex.eng.store.NodesByLabel(m.Label)
	default:
		matches = ex.eng.store.AllNodes()
	}

	out := make([]binding, 0, len(ex.rows)*len(matches))
	for _, row := range ex.rows {
		for _, node := range matches {
			nr := row.clone()
			nr[m.Alias] = node
			out = append(out, nr)
		}
	}
	ex.rows = out
}

// execTraversal expands each row along the step's edges. Single hops
// bind the edge; variable-length hops bind the edge list and enumerate
// one row per simple path within bounds, exactly as the compiled
// pattern enumerates paths. Optional traversals keep unmatched rows
// alive with null bindings.
func (ex *exec) execTraversal(t *plan.TraversalStep) error {
	var out []binding
	for _, row := range ex.rows {
		src := row.node(t.FromAlias)
		if src == nil {
			if t.Optional {
				out = append(out, nullExtend(row, t.EdgeAlias, t.ToAlias, t.PathAlias))
			}
			continue
		}

		matched := false
		emit := func(nodes []*storage.Node, edges []*storage.Edge) error {
			target := nodes[len(nodes)-1]
			if len(t.ToLabels) > 0 && !labelIn(target.Label, t.ToLabels) {
				return nil
			}
			nr := row.clone()
			if t.VarLength != nil {
				nr[t.EdgeAlias] = append([]*storage.Edge(nil), edges...)
			} else if len(edges) > 0 {
				nr[t.EdgeAlias] = edges[0]
			}
			nr[t.ToAlias] = target
			if t.PathAlias != "" {
				nr[t.PathAlias] = &Path{
					Nodes: append([]*storage.Node(nil), nodes...),
					Edges: append([]*storage.Edge(nil), edges...),
				}
			}
			if len(t.EdgeWhere) > 0 {
				for _, edge := range edges {
					ok, err := ex.evalEdgeConditions(nr, t.EdgeWhere, edge)
					if err != nil {
						return err
					}
					if !ok {
						return nil
					}
				}
			}
			matched = true
			out = append(out, nr)
			return nil
		}

		var err error
		if t.VarLength != nil {
			err = ex.walkPaths(src, t.Edges, t.Direction, t.VarLength.Min, t.VarLength.Max, emit)
		} else {
			for _, h := range ex.adjacency(src, t.Edges, t.Direction) {
				if err = emit([]*storage.Node{src, h.node}, []*storage.Edge{h.edge}); err != nil {
					break
				}
			}
		}
		if err != nil {
			return err
		}
		if !matched && t.Optional {
			out = append(out, nullExtend(row, t.EdgeAlias, t.ToAlias, t.PathAlias))
		}
	}
	ex.rows = out
	return nil
}

// walkPaths enumerates every simple path from src within [min, max]
// hops, depth-first in adjacency order. Uniqueness is per path: a node
// is marked visited on the way down and unmarked on the way back, so
// cycles terminate but distinct paths may revisit a node. max 0 leaves
// the walk unbounded; the visited set still bounds it by graph size.
func (ex *exec) walkPaths(src *storage.Node, types []string, dir plan.Direction, min, max int, fn func(nodes []*storage.Node, edges []*storage.Edge) error) error {
	visited := map[string]bool{src.ID: true}

	var walk func(node *storage.Node, nodes []*storage.Node, edges []*storage.Edge) error
	walk = func(node *storage.Node, nodes []*storage.Node, edges []*storage.Edge) error {
		if len(edges) >= min {
			if err := fn(nodes, edges); err != nil {
				return err
			}
		}
		if max > 0 && len(edges) >= max {
			return nil
		}
		for _, h := range ex.adjacency(node, types, dir) {
			if visited[h.node.ID] {
				continue
			}
			visited[h.node.ID] = true
			nextNodes := append(append([]*storage.Node{}, nodes...), h.node)
			nextEdges := append(append([]*storage.Edge{}, edges...), h.edge)
			err := walk(h.node, nextNodes, nextEdges)
			visited[h.node.ID] = false
			if err != nil {
				return err
			}
		}
		return nil
	}
	return walk(src, []*storage.Node{src}, nil)
}

// execReachable binds every node reachable from the source within the
// hop bounds. Results are distinct by node: the first path to reach a
// node claims it, later paths are ignored, matching the always-DISTINCT
// compiled form.
func (ex *exec) execReachable(r *plan.ReachableStep) {
	ex.distinct = true

	var out []binding
	for _, row := range ex.rows {
		src := row.node(r.FromAlias)
		if src == nil {
			continue
		}
		seen := make(map[string]bool)
		_ = ex.walkPaths(src, r.Edges, r.Direction, r.MinHops, r.MaxHops, func(nodes []*storage.Node, edges []*storage.Edge) error {
			target := nodes[len(nodes)-1]
			if seen[target.ID] {
				return nil
			}
			seen[target.ID] = true
			nr := row.clone()
			nr[r.ToAlias] = target
			out = append(out, nr)
			return nil
		})
	}
	ex.rows = out
}

func nullExtend(row binding, aliases ...string) binding {
	nr := row.clone()
	for _, a := range aliases {
		if a != "" {
			nr[a] = nil
		}
	}
	return nr
}

func labelIn(label string, labels []string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}
