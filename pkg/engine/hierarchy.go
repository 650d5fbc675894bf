// Hierarchy navigation: the step interpreter and the named operations
// the mutation layer consumes. The hierarchy edge points child to
// parent, so parent and ancestors read outward, children and
// descendants read inward.

package engine

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/biplanedb/biplane/pkg/plan"
	"github.com/biplanedb/biplane/pkg/storage"
)

func (ex *exec) execHierarchy(h *plan.HierarchyStep) {
	if h.DepthAlias != "" {
		ex.depthCols = append(ex.depthCols, h.DepthAlias)
	}

	var out []binding
	for _, row := range ex.rows {
		src := row.node(h.FromAlias)
		if src == nil {
			continue
		}

		emit := func(nodes []*storage.Node, edges []*storage.Edge) error {
			nr := row.clone()
			nr[h.ToAlias] = nodes[len(nodes)-1]
			if len(nodes) == 3 && h.SiblingVia != "" {
				nr[h.SiblingVia] = nodes[1]
			}
			if h.PathAlias != "" {
				nr[h.PathAlias] = &Path{
					Nodes: append([]*storage.Node(nil), nodes...),
					Edges: append([]*storage.Edge(nil), edges...),
				}
			}
			if h.DepthAlias != "" {
				nr[h.DepthAlias] = int64(len(edges))
			}
			out = append(out, nr)
			return nil
		}

		et := []string{h.EdgeType}
		switch h.Mode {
		case plan.HierarchyChildren:
			for _, hp := range ex.adjacency(src, et, plan.DirectionIn) {
				_ = emit([]*storage.Node{src, hp.node}, []*storage.Edge{hp.edge})
			}

		case plan.HierarchyAncestors:
			min, max := depthBounds(h)
			_ = ex.walkPaths(src, et, plan.DirectionOut, min, max, emit)

		case plan.HierarchyDescendants:
			min, max := depthBounds(h)
			_ = ex.walkPaths(src, et, plan.DirectionIn, min, max, emit)

		case plan.HierarchySiblings:
			// Two hops through each shared parent, excluding the node
			// itself; one row per edge pair, as the compiled pattern
			// enumerates.
			for _, up := range ex.adjacency(src, et, plan.DirectionOut) {
				for _, down := range ex.adjacency(up.node, et, plan.DirectionIn) {
					if down.node.ID == src.ID {
						continue
					}
					_ = emit(
						[]*storage.Node{src, up.node, down.node},
						[]*storage.Edge{up.edge, down.edge},
					)
				}
			}

		case plan.HierarchyRoot:
			_ = ex.walkPaths(src, et, plan.DirectionOut, 0, 0, func(nodes []*storage.Node, edges []*storage.Edge) error {
				end := nodes[len(nodes)-1]
				if len(ex.eng.store.OutgoingEdges(end.ID, h.EdgeType)) > 0 {
					return nil
				}
				return emit(nodes, edges)
			})

		default: // HierarchyParent
			for _, hp := range ex.adjacency(src, et, plan.DirectionOut) {
				_ = emit([]*storage.Node{src, hp.node}, []*storage.Edge{hp.edge})
			}
		}
	}
	ex.rows = out
}

// depthBounds applies the ancestors/descendants range rules: include-
// self lowers the minimum to zero, an unset maximum leaves the walk
// unbounded.
func depthBounds(h *plan.HierarchyStep) (int, int) {
	min := h.MinDepth
	if h.IncludeSelf {
		min = 0
	} else if min < 1 {
		min = 1
	}
	max := h.MaxDepth
	if max < 0 {
		max = 0
	}
	return min, max
}

// SubtreeEntry is one node of a subtree enumeration, tagged with its
// depth below the root and its original label.
type SubtreeEntry struct {
	Node  *storage.Node `json:"node"`
	Depth int           `json:"depth"`
	Label string        `json:"label"`
}

// Parent returns the node's parent: the target of the first outgoing
// hierarchy edge, in insertion order. Returns nil without error when
// the node is a root. Edges whose target no longer exists are skipped.
func (e *Engine) Parent(nodeID, edgeType string) (*storage.Node, error) {
	if _, err := e.store.GetNode(nodeID); err != nil {
		return nil, err
	}
	for _, edge := range e.store.OutgoingEdges(nodeID, edgeType) {
		if parent, err := e.store.GetNode(edge.ToID); err == nil {
			return parent, nil
		}
	}
	return nil, nil
}

// Children returns the node's children in edge insertion order.
func (e *Engine) Children(nodeID, edgeType string) ([]*storage.Node, error) {
	if _, err := e.store.GetNode(nodeID); err != nil {
		return nil, err
	}
	var out []*storage.Node
	for _, edge := range e.store.IncomingEdges(nodeID, edgeType) {
		if child, err := e.store.GetNode(edge.FromID); err == nil {
			out = append(out, child)
		}
	}
	return out, nil
}

// AncestorPath walks parent links from the node to its root, excluding
// the node itself: the immediate parent first, the root last. On a
// malformed cyclic hierarchy the walk stops at the first repeat and
// returns the partial path.
func (e *Engine) AncestorPath(nodeID, edgeType string) ([]*storage.Node, error) {
	if _, err := e.store.GetNode(nodeID); err != nil {
		return nil, err
	}

	var path []*storage.Node
	visited := map[string]bool{nodeID: true}
	current := nodeID
	for {
		parent := e.firstParent(current, edgeType)
		if parent == nil || visited[parent.ID] {
			return path, nil
		}
		visited[parent.ID] = true
		path = append(path, parent)
		current = parent.ID
	}
}

// Root returns the top of the node's ancestor chain; the node itself
// when it has no parent. On a cyclic hierarchy it returns the last
// ancestor reached before the cycle closed.
func (e *Engine) Root(nodeID, edgeType string) (*storage.Node, error) {
	path, err := e.AncestorPath(nodeID, edgeType)
	if err != nil {
		return nil, err
	}
	if len(path) == 0 {
		return e.store.GetNode(nodeID)
	}
	return path[len(path)-1], nil
}

// Subtree enumerates the node and all its descendants breadth-first,
// each entry tagged with its depth. Depths are non-decreasing with the
// root (depth 0) first; subtree cloning depends on parents preceding
// their children. A visited guard keeps malformed cyclic hierarchies
// from looping.
func (e *Engine) Subtree(rootID, edgeType string) ([]SubtreeEntry, error) {
	root, err := e.store.GetNode(rootID)
	if err != nil {
		return nil, err
	}

	entries := []SubtreeEntry{{Node: root, Depth: 0, Label: root.Label}}
	visited := map[string]bool{rootID: true}

	type item struct {
		id    string
		depth int
	}
	queue := []item{{id: rootID, depth: 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, edge := range e.store.IncomingEdges(cur.id, edgeType) {
			if visited[edge.FromID] {
				continue
			}
			visited[edge.FromID] = true
			child, err := e.store.GetNode(edge.FromID)
			if err != nil {
				continue
			}
			entries = append(entries, SubtreeEntry{Node: child, Depth: cur.depth + 1, Label: child.Label})
			queue = append(queue, item{id: child.ID, depth: cur.depth + 1})
		}
	}
	return entries, nil
}

// WouldCreateCycle reports whether relinking the node under newParent
// would close a loop: newParent is the node itself or one of its
// descendants.
func (e *Engine) WouldCreateCycle(nodeID, newParentID, edgeType string) (bool, error) {
	if _, err := e.store.GetNode(nodeID); err != nil {
		return false, err
	}
	if nodeID == newParentID {
		return true, nil
	}

	// DFS over child edges with a visited set.
	visited := map[string]bool{nodeID: true}
	stack := []string{nodeID}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, edge := range e.store.IncomingEdges(cur, edgeType) {
			if edge.FromID == newParentID {
				return true, nil
			}
			if visited[edge.FromID] {
				continue
			}
			visited[edge.FromID] = true
			stack = append(stack, edge.FromID)
		}
	}
	return false, nil
}

// Move relinks the node under a new parent: cycle-check first, then
// remove every existing parent edge (the delete-all policy covers
// parallel edges), then create the new link.
func (e *Engine) Move(nodeID, newParentID, edgeType string) error {
	if _, err := e.store.GetNode(newParentID); err != nil {
		return err
	}
	cycle, err := e.WouldCreateCycle(nodeID, newParentID, edgeType)
	if err != nil {
		return err
	}
	if cycle {
		return &CycleError{NodeID: nodeID, NewParentID: newParentID}
	}

	for _, edge := range e.store.OutgoingEdges(nodeID, edgeType) {
		if err := e.store.DeleteEdge(edge.ID); err != nil {
			return err
		}
	}
	err = e.store.CreateEdge(&storage.Edge{
		ID:     uuid.NewString(),
		Type:   edgeType,
		FromID: nodeID,
		ToID:   newParentID,
	})
	if err != nil {
		return err
	}

	log.Debug("hierarchy move", "node", nodeID, "parent", newParentID)
	return nil
}

// DeleteSubtree removes the node and all its descendants, deepest
// first so no child outlives its parent. Returns how many nodes were
// deleted.
func (e *Engine) DeleteSubtree(rootID, edgeType string) (int, error) {
	entries, err := e.Subtree(rootID, edgeType)
	if err != nil {
		return 0, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if err := e.store.DeleteNode(entries[i].Node.ID, true); err != nil {
			return len(entries) - 1 - i, err
		}
	}
	log.Debug("hierarchy delete subtree", "root", rootID, "nodes", len(entries))
	return len(entries), nil
}

// CloneSubtree copies the node and all its descendants under fresh ids,
// optionally linking the cloned root under a new parent. Nodes clone
// root-first so the id-remap table already holds every parent when the
// edges are re-created; only edges with both endpoints inside the
// subtree are copied. Returns the old-to-new id table.
func (e *Engine) CloneSubtree(rootID, newParentID, edgeType string) (map[string]string, error) {
	if newParentID != "" {
		if _, err := e.store.GetNode(newParentID); err != nil {
			return nil, err
		}
	}
	entries, err := e.Subtree(rootID, edgeType)
	if err != nil {
		return nil, err
	}

	remap := make(map[string]string, len(entries))
	for _, entry := range entries {
		clone := entry.Node.Clone()
		clone.ID = uuid.NewString()
		clone.CreatedAt = time.Time{}
		clone.UpdatedAt = time.Time{}
		if err := e.store.CreateNode(clone); err != nil {
			return nil, err
		}
		remap[entry.Node.ID] = clone.ID
	}

	for _, entry := range entries {
		for _, edge := range e.store.OutgoingEdges(entry.Node.ID) {
			newTo, internal := remap[edge.ToID]
			if !internal {
				continue
			}
			err := e.store.CreateEdge(&storage.Edge{
				ID:         uuid.NewString(),
				Type:       edge.Type,
				FromID:     remap[edge.FromID],
				ToID:       newTo,
				Properties: edge.Properties,
			})
			if err != nil {
				return nil, err
			}
		}
	}

	if newParentID != "" {
		err := e.store.CreateEdge(&storage.Edge{
			ID:     uuid.NewString(),
			Type:   edgeType,
			FromID: remap[rootID],
			ToID:   newParentID,
		})
		if err != nil {
			return nil, err
		}
	}

	log.Debug("hierarchy clone subtree", "root", rootID, "nodes", len(remap), "parent", newParentID)
	return remap, nil
}

// firstParent resolves the node's parent or nil, skipping dangling
// edges.
func (e *Engine) firstParent(nodeID, edgeType string) *storage.Node {
	for _, edge := range e.store.OutgoingEdges(nodeID, edgeType) {
		if parent, err := e.store.GetNode(edge.ToID); err == nil {
			return parent
		}
	}
	return nil
}
