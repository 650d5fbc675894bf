package biplane

import (
	"context"

	"github.com/biplanedb/biplane/pkg/engine"
	"github.com/biplanedb/biplane/pkg/storage"
)

// requiredChecker is the optional validator surface for required-
// property enforcement. The registry implements it; a minimal
// Validator does not have to.
type requiredChecker interface {
	MissingRequired(label string, props map[string]any) []string
}

// checkLabel rejects labels the attached schema does not define. No
// schema, or an empty label, passes.
func (db *DB) checkLabel(label string) error {
	if db.schema == nil || label == "" {
		return nil
	}
	if !db.schema.HasLabel(label) {
		return &UnknownLabelError{Label: label}
	}
	return nil
}

func (db *DB) checkEdgeType(edgeType string) error {
	if db.schema == nil || edgeType == "" {
		return nil
	}
	if !db.schema.HasEdgeType(edgeType) {
		return &UnknownEdgeTypeError{Type: edgeType}
	}
	return nil
}

// checkRequired enforces required properties on create. Updates are
// exempt: they merge into properties the node already carries.
func (db *DB) checkRequired(label string, props map[string]any) error {
	rc, ok := db.schema.(requiredChecker)
	if !ok || label == "" {
		return nil
	}
	if missing := rc.MissingRequired(label, props); len(missing) > 0 {
		return &RequiredPropertyError{Label: label, Missing: missing}
	}
	return nil
}

// CreateNode creates a node with a generated id and returns it with
// its timestamps set.
func (db *DB) CreateNode(ctx context.Context, label string, props map[string]any) (*storage.Node, error) {
	return db.CreateNodeWithID(ctx, "", label, props)
}

// CreateNodeWithID creates a node under a caller-chosen id. Ids live
// in one flat namespace across labels; a duplicate fails with
// storage.ErrAlreadyExists.
func (db *DB) CreateNodeWithID(ctx context.Context, id, label string, props map[string]any) (*storage.Node, error) {
	if err := db.checkLabel(label); err != nil {
		return nil, err
	}
	if err := db.checkRequired(label, props); err != nil {
		return nil, err
	}
	res, err := db.backend.Apply(ctx, engine.Command{
		Type:       engine.CmdCreateNode,
		ID:         id,
		Label:      label,
		Properties: props,
	})
	if err != nil {
		return nil, err
	}
	return res.Node, nil
}

// GetNode fetches one node by id.
func (db *DB) GetNode(ctx context.Context, id string) (*storage.Node, error) {
	res, err := db.backend.Apply(ctx, engine.Command{Type: engine.CmdQuery, Op: engine.OpGetByID, ID: id})
	if err != nil {
		return nil, err
	}
	return res.Node, nil
}

// NodesByLabel fetches every node with the label. On the memory
// backend the order is insertion order.
func (db *DB) NodesByLabel(ctx context.Context, label string) ([]*storage.Node, error) {
	if err := db.checkLabel(label); err != nil {
		return nil, err
	}
	res, err := db.backend.Apply(ctx, engine.Command{Type: engine.CmdQuery, Op: engine.OpGetByLabel, Label: label})
	if err != nil {
		return nil, err
	}
	return res.Nodes, nil
}

// NodeExists reports whether a node with the id exists.
func (db *DB) NodeExists(ctx context.Context, id string) (bool, error) {
	res, err := db.backend.Apply(ctx, engine.Command{Type: engine.CmdQuery, Op: engine.OpExists, ID: id})
	if err != nil {
		return false, err
	}
	return res.Bool, nil
}

// UpdateNode merges properties into a node. Nil values remove keys;
// the updatedAt stamp moves.
func (db *DB) UpdateNode(ctx context.Context, id string, props map[string]any) (*storage.Node, error) {
	res, err := db.backend.Apply(ctx, engine.Command{Type: engine.CmdUpdateNode, ID: id, Properties: props})
	if err != nil {
		return nil, err
	}
	return res.Node, nil
}

// DeleteNode removes a node. With detach the node's edges go with it;
// without, a node that still has edges fails on the driver backend and
// leaves dangling references on the memory one.
func (db *DB) DeleteNode(ctx context.Context, id string, detach bool) error {
	_, err := db.backend.Apply(ctx, engine.Command{Type: engine.CmdDeleteNode, ID: id, Detach: detach})
	return err
}

// CreateEdge links two existing nodes with a generated edge id. A
// missing endpoint fails with storage.ErrNotFound naming the node.
func (db *DB) CreateEdge(ctx context.Context, edgeType, fromID, toID string, props map[string]any) (*storage.Edge, error) {
	return db.CreateEdgeWithID(ctx, "", edgeType, fromID, toID, props)
}

// CreateEdgeWithID links two existing nodes under a caller-chosen edge
// id.
func (db *DB) CreateEdgeWithID(ctx context.Context, id, edgeType, fromID, toID string, props map[string]any) (*storage.Edge, error) {
	if err := db.checkEdgeType(edgeType); err != nil {
		return nil, err
	}
	res, err := db.backend.Apply(ctx, engine.Command{
		Type:       engine.CmdCreateEdge,
		ID:         id,
		EdgeType:   edgeType,
		FromID:     fromID,
		ToID:       toID,
		Properties: props,
	})
	if err != nil {
		return nil, err
	}
	return res.Edge, nil
}

// EdgeExists reports whether any edge of the type connects the two
// nodes. An empty type matches any.
func (db *DB) EdgeExists(ctx context.Context, fromID, toID, edgeType string) (bool, error) {
	res, err := db.backend.Apply(ctx, engine.Command{
		Type: engine.CmdQuery, Op: engine.OpEdgeExists,
		FromID: fromID, ToID: toID, EdgeType: edgeType,
	})
	if err != nil {
		return false, err
	}
	return res.Bool, nil
}

// UpdateEdge merges properties into an edge. Nil values remove keys.
func (db *DB) UpdateEdge(ctx context.Context, id string, props map[string]any) (*storage.Edge, error) {
	res, err := db.backend.Apply(ctx, engine.Command{Type: engine.CmdUpdateEdge, ID: id, Properties: props})
	if err != nil {
		return nil, err
	}
	return res.Edge, nil
}

// DeleteEdge removes one edge by id.
func (db *DB) DeleteEdge(ctx context.Context, id string) error {
	_, err := db.backend.Apply(ctx, engine.Command{Type: engine.CmdDeleteEdge, ID: id})
	return err
}

// Unlink removes every edge of the type between two nodes and returns
// how many went. Parallel edges all go together; an empty type matches
// any. Nothing matching is storage.ErrEdgeNotFound.
func (db *DB) Unlink(ctx context.Context, fromID, toID, edgeType string) (int, error) {
	res, err := db.backend.Apply(ctx, engine.Command{
		Type:     engine.CmdDeleteEdge,
		FromID:   fromID,
		ToID:     toID,
		EdgeType: edgeType,
	})
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

// Parent returns a node's parent over the configured hierarchy edge,
// nil when the node is a root.
func (db *DB) Parent(ctx context.Context, nodeID string) (*storage.Node, error) {
	res, err := db.backend.Apply(ctx, engine.Command{
		Type: engine.CmdQuery, Op: engine.OpGetParent,
		ID: nodeID, EdgeType: db.cfg.HierarchyEdgeType,
	})
	if err != nil {
		return nil, err
	}
	return res.Node, nil
}

// Children returns a node's children.
func (db *DB) Children(ctx context.Context, nodeID string) ([]*storage.Node, error) {
	res, err := db.backend.Apply(ctx, engine.Command{
		Type: engine.CmdQuery, Op: engine.OpGetChildren,
		ID: nodeID, EdgeType: db.cfg.HierarchyEdgeType,
	})
	if err != nil {
		return nil, err
	}
	return res.Nodes, nil
}

// Subtree enumerates a node and all its descendants, the root first
// and depths non-decreasing.
func (db *DB) Subtree(ctx context.Context, rootID string) ([]engine.SubtreeEntry, error) {
	res, err := db.backend.Apply(ctx, engine.Command{
		Type: engine.CmdQuery, Op: engine.OpGetSubtree,
		ID: rootID, EdgeType: db.cfg.HierarchyEdgeType,
	})
	if err != nil {
		return nil, err
	}
	return res.Subtree, nil
}

// AncestorPath walks parent links from the node to its root, nearest
// first, excluding the node itself.
func (db *DB) AncestorPath(ctx context.Context, nodeID string) ([]*storage.Node, error) {
	res, err := db.backend.Apply(ctx, engine.Command{
		Type: engine.CmdQuery, Op: engine.OpGetAncestorPath,
		ID: nodeID, EdgeType: db.cfg.HierarchyEdgeType,
	})
	if err != nil {
		return nil, err
	}
	return res.Nodes, nil
}

// Root returns the top of the node's ancestor chain; the node itself
// when it has no parent.
func (db *DB) Root(ctx context.Context, nodeID string) (*storage.Node, error) {
	path, err := db.AncestorPath(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if len(path) == 0 {
		return db.GetNode(ctx, nodeID)
	}
	return path[len(path)-1], nil
}

// WouldCreateCycle reports whether relinking the node under newParent
// would close a loop.
func (db *DB) WouldCreateCycle(ctx context.Context, nodeID, newParentID string) (bool, error) {
	res, err := db.backend.Apply(ctx, engine.Command{
		Type: engine.CmdQuery, Op: engine.OpWouldCreateCycle,
		ID: nodeID, TargetID: newParentID, EdgeType: db.cfg.HierarchyEdgeType,
	})
	if err != nil {
		return false, err
	}
	return res.Bool, nil
}

// Move relinks a node under a new parent: cycle-checked, all existing
// parent edges removed, one new link created. Multi-statement tree
// surgery needs the embedded store; on the driver backend this is
// ErrMemoryOnly.
func (db *DB) Move(ctx context.Context, nodeID, newParentID string) error {
	if db.eng == nil {
		return ErrMemoryOnly
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.eng.Move(nodeID, newParentID, db.cfg.HierarchyEdgeType)
}

// DeleteSubtree removes a node and all its descendants, deepest first.
// Returns how many nodes were deleted. Memory backend only.
func (db *DB) DeleteSubtree(ctx context.Context, rootID string) (int, error) {
	if db.eng == nil {
		return 0, ErrMemoryOnly
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return db.eng.DeleteSubtree(rootID, db.cfg.HierarchyEdgeType)
}

// CloneSubtree copies a node and all its descendants under fresh ids,
// optionally linking the cloned root under a new parent. Returns the
// old-to-new id table. Memory backend only.
func (db *DB) CloneSubtree(ctx context.Context, rootID, newParentID string) (map[string]string, error) {
	if db.eng == nil {
		return nil, ErrMemoryOnly
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return db.eng.CloneSubtree(rootID, newParentID, db.cfg.HierarchyEdgeType)
}
