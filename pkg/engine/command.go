// The command protocol: a tagged union the mutation layer sends to a
// backend without knowing whether it talks to compiled text or to this
// engine. Commands are structs passed by direct call; Type selects the
// mutation and Op selects the read.

package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/biplanedb/biplane/pkg/storage"
)

// CommandType selects the mutation or query a Command carries.
type CommandType string

const (
	CmdCreateNode CommandType = "createNode"
	CmdUpdateNode CommandType = "updateNode"
	CmdDeleteNode CommandType = "deleteNode"
	CmdCreateEdge CommandType = "createEdge"
	CmdUpdateEdge CommandType = "updateEdge"
	CmdDeleteEdge CommandType = "deleteEdge"
	CmdQuery      CommandType = "query"
)

// QueryOp selects the read operation of a query-typed command.
type QueryOp string

const (
	OpGetByID          QueryOp = "getById"
	OpGetByLabel       QueryOp = "getByLabel"
	OpExists           QueryOp = "exists"
	OpEdgeExists       QueryOp = "edgeExists"
	OpGetParent        QueryOp = "getParent"
	OpGetChildren      QueryOp = "getChildren"
	OpGetSubtree       QueryOp = "getSubtree"
	OpWouldCreateCycle QueryOp = "wouldCreateCycle"
	OpGetAncestorPath  QueryOp = "getAncestorPath"
)

// Command is one backend instruction. Type selects the variant; the
// remaining fields are read per variant:
//
//	createNode:  ID (generated when empty), Label, Properties
//	updateNode:  ID, Properties (nil values remove keys)
//	deleteNode:  ID, Detach
//	createEdge:  ID (generated when empty), EdgeType, FromID, ToID, Properties
//	updateEdge:  ID, Properties
//	deleteEdge:  ID, or FromID/ToID/EdgeType for delete-all-between
//	query:       Op plus the fields that operation reads
type Command struct {
	Type CommandType `json:"type"`
	Op   QueryOp     `json:"op,omitempty"`

	ID         string         `json:"id,omitempty"`
	Label      string         `json:"label,omitempty"`
	EdgeType   string         `json:"edgeType,omitempty"`
	FromID     string         `json:"fromId,omitempty"`
	ToID       string         `json:"toId,omitempty"`
	TargetID   string         `json:"targetId,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Detach     bool           `json:"detach,omitempty"`
}

// CommandResult carries the outcome of one command. Which fields are
// populated depends on the command: mutations return the written
// entity, reads return nodes or flags.
type CommandResult struct {
	Node    *storage.Node   `json:"node,omitempty"`
	Edge    *storage.Edge   `json:"edge,omitempty"`
	Nodes   []*storage.Node `json:"nodes,omitempty"`
	Subtree []SubtreeEntry  `json:"subtree,omitempty"`
	Bool    bool            `json:"bool,omitempty"`
	Count   int             `json:"count,omitempty"`
}

// Apply executes one command against the store. Edge creation verifies
// both endpoints exist; the store leaves that referential integrity to
// this layer.
func (e *Engine) Apply(ctx context.Context, cmd Command) (*CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cmd.Type {
	case CmdCreateNode:
		id := cmd.ID
		if id == "" {
			id = uuid.NewString()
		}
		node := &storage.Node{ID: id, Label: cmd.Label, Properties: cmd.Properties}
		if err := e.store.CreateNode(node); err != nil {
			return nil, err
		}
		created, err := e.store.GetNode(id)
		if err != nil {
			return nil, err
		}
		return &CommandResult{Node: created}, nil

	case CmdUpdateNode:
		node, err := e.store.UpdateNode(cmd.ID, cmd.Properties)
		if err != nil {
			return nil, err
		}
		return &CommandResult{Node: node}, nil

	case CmdDeleteNode:
		if err := e.store.DeleteNode(cmd.ID, cmd.Detach); err != nil {
			return nil, err
		}
		return &CommandResult{Count: 1}, nil

	case CmdCreateEdge:
		if !e.store.HasNode(cmd.FromID) {
			return nil, &storage.NodeNotFoundError{ID: cmd.FromID}
		}
		if !e.store.HasNode(cmd.ToID) {
			return nil, &storage.NodeNotFoundError{ID: cmd.ToID}
		}
		id := cmd.ID
		if id == "" {
			id = uuid.NewString()
		}
		edge := &storage.Edge{ID: id, Type: cmd.EdgeType, FromID: cmd.FromID, ToID: cmd.ToID, Properties: cmd.Properties}
		if err := e.store.CreateEdge(edge); err != nil {
			return nil, err
		}
		created, err := e.store.GetEdge(id)
		if err != nil {
			return nil, err
		}
		return &CommandResult{Edge: created}, nil

	case CmdUpdateEdge:
		edge, err := e.store.UpdateEdge(cmd.ID, cmd.Properties)
		if err != nil {
			return nil, err
		}
		return &CommandResult{Edge: edge}, nil

	case CmdDeleteEdge:
		if cmd.ID != "" {
			if err := e.store.DeleteEdge(cmd.ID); err != nil {
				return nil, err
			}
			return &CommandResult{Count: 1}, nil
		}
		n, err := e.store.UnlinkEdges(cmd.FromID, cmd.ToID, cmd.EdgeType)
		if err != nil {
			return nil, err
		}
		return &CommandResult{Count: n}, nil

	case CmdQuery:
		return e.applyQuery(cmd)

	default:
		return nil, fmt.Errorf("engine: unknown command type %q", cmd.Type)
	}
}

func (e *Engine) applyQuery(cmd Command) (*CommandResult, error) {
	switch cmd.Op {
	case OpGetByID:
		node, err := e.store.GetNode(cmd.ID)
		if err != nil {
			return nil, err
		}
		return &CommandResult{Node: node}, nil

	case OpGetByLabel:
		nodes := e.store.NodesByLabel(cmd.Label)
		return &CommandResult{Nodes: nodes, Count: len(nodes)}, nil

	case OpExists:
		return &CommandResult{Bool: e.store.HasNode(cmd.ID)}, nil

	case OpEdgeExists:
		edges := e.store.EdgesBetween(cmd.FromID, cmd.ToID, edgeTypeFilter(cmd.EdgeType)...)
		return &CommandResult{Bool: len(edges) > 0, Count: len(edges)}, nil

	case OpGetParent:
		parent, err := e.Parent(cmd.ID, cmd.EdgeType)
		if err != nil {
			return nil, err
		}
		return &CommandResult{Node: parent, Bool: parent != nil}, nil

	case OpGetChildren:
		children, err := e.Children(cmd.ID, cmd.EdgeType)
		if err != nil {
			return nil, err
		}
		return &CommandResult{Nodes: children, Count: len(children)}, nil

	case OpGetSubtree:
		entries, err := e.Subtree(cmd.ID, cmd.EdgeType)
		if err != nil {
			return nil, err
		}
		return &CommandResult{Subtree: entries, Count: len(entries)}, nil

	case OpWouldCreateCycle:
		cycle, err := e.WouldCreateCycle(cmd.ID, cmd.TargetID, cmd.EdgeType)
		if err != nil {
			return nil, err
		}
		return &CommandResult{Bool: cycle}, nil

	case OpGetAncestorPath:
		path, err := e.AncestorPath(cmd.ID, cmd.EdgeType)
		if err != nil {
			return nil, err
		}
		return &CommandResult{Nodes: path, Count: len(path)}, nil

	default:
		return nil, fmt.Errorf("engine: unknown query operation %q", cmd.Op)
	}
}

func edgeTypeFilter(t string) []string {
	if t == "" {
		return nil
	}
	return []string{t}
}
