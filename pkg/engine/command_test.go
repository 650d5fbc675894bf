package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biplanedb/biplane/pkg/storage"
)

func TestEngine_ApplyMutations(t *testing.T) {
	ctx := context.Background()

	t.Run("create_node_generates_an_id_when_missing", func(t *testing.T) {
		e := New(storage.New())

		res, err := e.Apply(ctx, Command{
			Type:       CmdCreateNode,
			Label:      "user",
			Properties: map[string]any{"name": "Ada"},
		})
		require.NoError(t, err)
		require.NotNil(t, res.Node)
		assert.NotEmpty(t, res.Node.ID)
		assert.Equal(t, "user", res.Node.Label)
		assert.False(t, res.Node.CreatedAt.IsZero())
	})

	t.Run("create_node_honors_a_caller_id", func(t *testing.T) {
		e := New(storage.New())

		res, err := e.Apply(ctx, Command{Type: CmdCreateNode, ID: "u1", Label: "user"})
		require.NoError(t, err)
		assert.Equal(t, "u1", res.Node.ID)

		_, err = e.Apply(ctx, Command{Type: CmdCreateNode, ID: "u1", Label: "user"})
		assert.ErrorIs(t, err, storage.ErrAlreadyExists)
	})

	t.Run("update_node_merges_properties", func(t *testing.T) {
		e, _ := socialGraph(t)

		res, err := e.Apply(ctx, Command{
			Type:       CmdUpdateNode,
			ID:         "u1",
			Properties: map[string]any{"age": int64(37)},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(37), res.Node.Properties["age"])
		assert.Equal(t, "Ada", res.Node.Properties["name"])
	})

	t.Run("delete_node_with_detach_drops_its_edges", func(t *testing.T) {
		e, s := socialGraph(t)

		_, err := e.Apply(ctx, Command{Type: CmdDeleteNode, ID: "u1", Detach: true})
		require.NoError(t, err)
		assert.False(t, s.HasNode("u1"))
		assert.Empty(t, s.IncomingEdges("p1", "authored"))
	})

	t.Run("create_edge_requires_both_endpoints", func(t *testing.T) {
		e, _ := socialGraph(t)

		_, err := e.Apply(ctx, Command{
			Type: CmdCreateEdge, EdgeType: "follows", FromID: "u1", ToID: "ghost",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		var nerr *storage.NodeNotFoundError
		require.ErrorAs(t, err, &nerr)
		assert.Equal(t, "ghost", nerr.ID)
	})

	t.Run("create_edge_generates_an_id", func(t *testing.T) {
		e, _ := socialGraph(t)

		res, err := e.Apply(ctx, Command{
			Type: CmdCreateEdge, EdgeType: "follows", FromID: "u3", ToID: "u1",
		})
		require.NoError(t, err)
		require.NotNil(t, res.Edge)
		assert.NotEmpty(t, res.Edge.ID)
		assert.Equal(t, "u3", res.Edge.FromID)
	})

	t.Run("delete_edge_by_id", func(t *testing.T) {
		e, s := socialGraph(t)

		res, err := e.Apply(ctx, Command{Type: CmdDeleteEdge, ID: "f1"})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Count)
		assert.Empty(t, s.OutgoingEdges("u1", "follows"))
	})

	t.Run("delete_edge_between_endpoints_removes_all_parallels", func(t *testing.T) {
		e, s := socialGraph(t)
		addEdge(t, s, "f1b", "follows", "u1", "u2", nil)

		res, err := e.Apply(ctx, Command{
			Type: CmdDeleteEdge, EdgeType: "follows", FromID: "u1", ToID: "u2",
		})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Count)
		assert.Empty(t, s.EdgesBetween("u1", "u2", "follows"))
	})

	t.Run("unknown_command_type_errors", func(t *testing.T) {
		e := New(storage.New())

		_, err := e.Apply(ctx, Command{Type: CommandType("upsertEverything")})
		assert.Error(t, err)
	})

	t.Run("cancelled_context_short_circuits", func(t *testing.T) {
		e := New(storage.New())
		cctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := e.Apply(cctx, Command{Type: CmdCreateNode, Label: "user"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestEngine_ApplyQueries(t *testing.T) {
	ctx := context.Background()

	t.Run("get_by_id_and_label", func(t *testing.T) {
		e, _ := socialGraph(t)

		byID, err := e.Apply(ctx, Command{Type: CmdQuery, Op: OpGetByID, ID: "u2"})
		require.NoError(t, err)
		assert.Equal(t, "Grace", byID.Node.Properties["name"])

		_, err = e.Apply(ctx, Command{Type: CmdQuery, Op: OpGetByID, ID: "ghost"})
		assert.ErrorIs(t, err, storage.ErrNotFound)

		byLabel, err := e.Apply(ctx, Command{Type: CmdQuery, Op: OpGetByLabel, Label: "post"})
		require.NoError(t, err)
		assert.Equal(t, 3, byLabel.Count)
		assert.Len(t, byLabel.Nodes, 3)
	})

	t.Run("existence_checks", func(t *testing.T) {
		e, _ := socialGraph(t)

		exists, err := e.Apply(ctx, Command{Type: CmdQuery, Op: OpExists, ID: "u1"})
		require.NoError(t, err)
		assert.True(t, exists.Bool)

		missing, err := e.Apply(ctx, Command{Type: CmdQuery, Op: OpExists, ID: "ghost"})
		require.NoError(t, err)
		assert.False(t, missing.Bool)

		edge, err := e.Apply(ctx, Command{
			Type: CmdQuery, Op: OpEdgeExists, FromID: "u1", ToID: "p1", EdgeType: "authored",
		})
		require.NoError(t, err)
		assert.True(t, edge.Bool)
		assert.Equal(t, 1, edge.Count)

		anyType, err := e.Apply(ctx, Command{Type: CmdQuery, Op: OpEdgeExists, FromID: "u1", ToID: "p1"})
		require.NoError(t, err)
		assert.True(t, anyType.Bool)
	})

	t.Run("hierarchy_operations_route_through_commands", func(t *testing.T) {
		e, _ := folderTree(t)

		parent, err := e.Apply(ctx, Command{Type: CmdQuery, Op: OpGetParent, ID: "f4", EdgeType: "childOf"})
		require.NoError(t, err)
		assert.True(t, parent.Bool)
		assert.Equal(t, "f2", parent.Node.ID)

		root, err := e.Apply(ctx, Command{Type: CmdQuery, Op: OpGetParent, ID: "f1", EdgeType: "childOf"})
		require.NoError(t, err)
		assert.False(t, root.Bool)
		assert.Nil(t, root.Node)

		children, err := e.Apply(ctx, Command{Type: CmdQuery, Op: OpGetChildren, ID: "f1", EdgeType: "childOf"})
		require.NoError(t, err)
		assert.Equal(t, 2, children.Count)

		subtree, err := e.Apply(ctx, Command{Type: CmdQuery, Op: OpGetSubtree, ID: "f1", EdgeType: "childOf"})
		require.NoError(t, err)
		assert.Equal(t, 4, subtree.Count)
		assert.Equal(t, "f1", subtree.Subtree[0].Node.ID)

		cycle, err := e.Apply(ctx, Command{
			Type: CmdQuery, Op: OpWouldCreateCycle, ID: "f1", TargetID: "f4", EdgeType: "childOf",
		})
		require.NoError(t, err)
		assert.True(t, cycle.Bool)

		ancestors, err := e.Apply(ctx, Command{Type: CmdQuery, Op: OpGetAncestorPath, ID: "f4", EdgeType: "childOf"})
		require.NoError(t, err)
		require.Equal(t, 2, ancestors.Count)
		assert.Equal(t, "f2", ancestors.Nodes[0].ID)
	})

	t.Run("unknown_query_op_errors", func(t *testing.T) {
		e := New(storage.New())

		_, err := e.Apply(ctx, Command{Type: CmdQuery, Op: QueryOp("walkEverywhere")})
		assert.Error(t, err)
	})
}
