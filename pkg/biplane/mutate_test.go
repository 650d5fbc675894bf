package biplane

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biplanedb/biplane/pkg/engine"
	"github.com/biplanedb/biplane/pkg/schema"
	"github.com/biplanedb/biplane/pkg/storage"
)

// blogSchema defines user and post labels joined by authored, plus a
// follows edge between users. user.name is required.
func blogSchema(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.DefineLabel(schema.LabelDef{
		Name: "user",
		Properties: []schema.PropertyDef{
			{Name: "name", Type: "string", Required: true},
			{Name: "age", Type: "int"},
		},
	}))
	require.NoError(t, reg.DefineLabel(schema.LabelDef{Name: "post", Properties: []schema.PropertyDef{
		{Name: "title", Type: "string"},
	}}))
	require.NoError(t, reg.DefineEdge(schema.EdgeDef{
		Type: "authored", From: "user", To: "post",
		Outbound: schema.Many, Inbound: schema.One,
	}))
	require.NoError(t, reg.DefineEdge(schema.EdgeDef{Type: "follows", From: "user", To: "user"}))
	return reg
}

// companyTree opens a memory DB holding acme above eng and sales, with
// core and infra under eng, linked by the default childOf edge.
func companyTree(t *testing.T) *DB {
	t.Helper()
	db := OpenMemory()
	ctx := context.Background()
	for _, id := range []string{"acme", "eng", "sales", "core", "infra"} {
		_, err := db.CreateNodeWithID(ctx, id, "team", map[string]any{"name": id})
		require.NoError(t, err)
	}
	for _, link := range [][2]string{{"eng", "acme"}, {"sales", "acme"}, {"core", "eng"}, {"infra", "eng"}} {
		_, err := db.CreateEdge(ctx, "childOf", link[0], link[1], nil)
		require.NoError(t, err)
	}
	return db
}

func nodeIDs(nodes []*storage.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func TestDB_NodeMutations(t *testing.T) {
	ctx := context.Background()

	t.Run("create_node_generates_an_id_and_timestamps", func(t *testing.T) {
		db := OpenMemory()

		node, err := db.CreateNode(ctx, "user", map[string]any{"name": "Ada"})
		require.NoError(t, err)
		assert.NotEmpty(t, node.ID)
		assert.Equal(t, "user", node.Label)
		assert.Equal(t, "Ada", node.Properties["name"])
		assert.False(t, node.CreatedAt.IsZero())
	})

	t.Run("create_node_with_id_rejects_duplicates", func(t *testing.T) {
		db := OpenMemory()

		_, err := db.CreateNodeWithID(ctx, "u1", "user", nil)
		require.NoError(t, err)

		_, err = db.CreateNodeWithID(ctx, "u1", "user", nil)
		assert.ErrorIs(t, err, storage.ErrAlreadyExists)
	})

	t.Run("schema_rejects_an_unknown_label", func(t *testing.T) {
		db := OpenMemory(WithSchema(blogSchema(t)))

		_, err := db.CreateNode(ctx, "gremlin", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, schema.ErrUnknownLabel)

		var uerr *UnknownLabelError
		require.ErrorAs(t, err, &uerr)
		assert.Equal(t, "gremlin", uerr.Label)
	})

	t.Run("schema_enforces_required_properties_on_create", func(t *testing.T) {
		db := OpenMemory(WithSchema(blogSchema(t)))

		_, err := db.CreateNode(ctx, "user", map[string]any{"age": int64(37)})
		require.Error(t, err)

		var rerr *RequiredPropertyError
		require.ErrorAs(t, err, &rerr)
		assert.Equal(t, "user", rerr.Label)
		assert.Equal(t, []string{"name"}, rerr.Missing)

		_, err = db.CreateNode(ctx, "user", map[string]any{"name": "Ada"})
		assert.NoError(t, err)
	})

	t.Run("updates_are_exempt_from_required_properties", func(t *testing.T) {
		db := OpenMemory(WithSchema(blogSchema(t)))

		node, err := db.CreateNode(ctx, "user", map[string]any{"name": "Ada"})
		require.NoError(t, err)

		updated, err := db.UpdateNode(ctx, node.ID, map[string]any{"age": int64(37)})
		require.NoError(t, err)
		assert.Equal(t, int64(37), updated.Properties["age"])
		assert.Equal(t, "Ada", updated.Properties["name"])
	})

	t.Run("get_node_round_trips", func(t *testing.T) {
		db := OpenMemory()

		created, err := db.CreateNodeWithID(ctx, "u1", "user", map[string]any{"name": "Ada"})
		require.NoError(t, err)

		got, err := db.GetNode(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "Ada", got.Properties["name"])
	})

	t.Run("get_node_misses_with_not_found", func(t *testing.T) {
		db := OpenMemory()

		_, err := db.GetNode(ctx, "ghost")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("nodes_by_label_keeps_insertion_order", func(t *testing.T) {
		db := OpenMemory()

		for _, id := range []string{"u1", "u2", "u3"} {
			_, err := db.CreateNodeWithID(ctx, id, "user", nil)
			require.NoError(t, err)
		}
		_, err := db.CreateNodeWithID(ctx, "p1", "post", nil)
		require.NoError(t, err)

		users, err := db.NodesByLabel(ctx, "user")
		require.NoError(t, err)
		assert.Equal(t, []string{"u1", "u2", "u3"}, nodeIDs(users))
	})

	t.Run("node_exists_reports_presence", func(t *testing.T) {
		db := OpenMemory()

		_, err := db.CreateNodeWithID(ctx, "u1", "user", nil)
		require.NoError(t, err)

		ok, err := db.NodeExists(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = db.NodeExists(ctx, "ghost")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("update_node_removes_keys_set_to_nil", func(t *testing.T) {
		db := OpenMemory()

		_, err := db.CreateNodeWithID(ctx, "u1", "user", map[string]any{"name": "Ada", "tmp": true})
		require.NoError(t, err)

		updated, err := db.UpdateNode(ctx, "u1", map[string]any{"tmp": nil})
		require.NoError(t, err)
		assert.NotContains(t, updated.Properties, "tmp")
		assert.Equal(t, "Ada", updated.Properties["name"])
	})

	t.Run("delete_node_with_detach_drops_edges", func(t *testing.T) {
		db := OpenMemory()

		_, err := db.CreateNodeWithID(ctx, "u1", "user", nil)
		require.NoError(t, err)
		_, err = db.CreateNodeWithID(ctx, "u2", "user", nil)
		require.NoError(t, err)
		_, err = db.CreateEdge(ctx, "follows", "u1", "u2", nil)
		require.NoError(t, err)

		require.NoError(t, db.DeleteNode(ctx, "u1", true))

		ok, err := db.NodeExists(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, ok)

		linked, err := db.EdgeExists(ctx, "u1", "u2", "follows")
		require.NoError(t, err)
		assert.False(t, linked)
	})
}

func TestDB_EdgeMutations(t *testing.T) {
	ctx := context.Background()

	pair := func(t *testing.T, opts ...Option) *DB {
		t.Helper()
		db := OpenMemory(opts...)
		for _, id := range []string{"u1", "u2"} {
			_, err := db.CreateNodeWithID(ctx, id, "user", map[string]any{"name": id})
			require.NoError(t, err)
		}
		return db
	}

	t.Run("create_edge_links_two_nodes", func(t *testing.T) {
		db := pair(t)

		edge, err := db.CreateEdge(ctx, "follows", "u1", "u2", map[string]any{"since": int64(2020)})
		require.NoError(t, err)
		assert.NotEmpty(t, edge.ID)
		assert.Equal(t, "follows", edge.Type)
		assert.Equal(t, "u1", edge.FromID)
		assert.Equal(t, "u2", edge.ToID)

		ok, err := db.EdgeExists(ctx, "u1", "u2", "follows")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("create_edge_requires_existing_endpoints", func(t *testing.T) {
		db := pair(t)

		_, err := db.CreateEdge(ctx, "follows", "u1", "ghost", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		var nerr *storage.NodeNotFoundError
		require.ErrorAs(t, err, &nerr)
		assert.Equal(t, "ghost", nerr.ID)
	})

	t.Run("schema_rejects_an_unknown_edge_type", func(t *testing.T) {
		db := pair(t, WithSchema(blogSchema(t)))

		_, err := db.CreateEdge(ctx, "bribed", "u1", "u2", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, schema.ErrUnknownEdgeType)

		var uerr *UnknownEdgeTypeError
		require.ErrorAs(t, err, &uerr)
		assert.Equal(t, "bribed", uerr.Type)
	})

	t.Run("update_edge_merges_properties", func(t *testing.T) {
		db := pair(t)

		edge, err := db.CreateEdge(ctx, "follows", "u1", "u2", map[string]any{"since": int64(2020)})
		require.NoError(t, err)

		updated, err := db.UpdateEdge(ctx, edge.ID, map[string]any{"muted": true})
		require.NoError(t, err)
		assert.Equal(t, true, updated.Properties["muted"])
		assert.Equal(t, int64(2020), updated.Properties["since"])
	})

	t.Run("delete_edge_by_id", func(t *testing.T) {
		db := pair(t)

		edge, err := db.CreateEdge(ctx, "follows", "u1", "u2", nil)
		require.NoError(t, err)

		require.NoError(t, db.DeleteEdge(ctx, edge.ID))
		assert.ErrorIs(t, db.DeleteEdge(ctx, edge.ID), storage.ErrEdgeNotFound)
	})

	t.Run("unlink_removes_every_parallel_edge", func(t *testing.T) {
		db := pair(t)

		_, err := db.CreateEdge(ctx, "follows", "u1", "u2", nil)
		require.NoError(t, err)
		_, err = db.CreateEdge(ctx, "follows", "u1", "u2", nil)
		require.NoError(t, err)

		n, err := db.Unlink(ctx, "u1", "u2", "follows")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		ok, err := db.EdgeExists(ctx, "u1", "u2", "")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unlink_with_nothing_to_remove_misses", func(t *testing.T) {
		db := pair(t)

		_, err := db.Unlink(ctx, "u1", "u2", "follows")
		assert.ErrorIs(t, err, storage.ErrEdgeNotFound)
	})

	t.Run("unlink_with_empty_type_matches_any", func(t *testing.T) {
		db := pair(t)

		_, err := db.CreateEdge(ctx, "follows", "u1", "u2", nil)
		require.NoError(t, err)
		_, err = db.CreateEdge(ctx, "blocks", "u1", "u2", nil)
		require.NoError(t, err)

		n, err := db.Unlink(ctx, "u1", "u2", "")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestDB_Hierarchy(t *testing.T) {
	ctx := context.Background()

	t.Run("parent_follows_the_configured_edge", func(t *testing.T) {
		db := companyTree(t)

		parent, err := db.Parent(ctx, "core")
		require.NoError(t, err)
		require.NotNil(t, parent)
		assert.Equal(t, "eng", parent.ID)
	})

	t.Run("parent_of_a_root_is_nil", func(t *testing.T) {
		db := companyTree(t)

		parent, err := db.Parent(ctx, "acme")
		require.NoError(t, err)
		assert.Nil(t, parent)
	})

	t.Run("children_keep_link_order", func(t *testing.T) {
		db := companyTree(t)

		kids, err := db.Children(ctx, "eng")
		require.NoError(t, err)
		assert.Equal(t, []string{"core", "infra"}, nodeIDs(kids))
	})

	t.Run("subtree_enumerates_root_first_by_depth", func(t *testing.T) {
		db := companyTree(t)

		entries, err := db.Subtree(ctx, "acme")
		require.NoError(t, err)
		require.Len(t, entries, 5)
		assert.Equal(t, "acme", entries[0].Node.ID)
		assert.Equal(t, 0, entries[0].Depth)

		depths := make(map[string]int, len(entries))
		for _, e := range entries {
			depths[e.Node.ID] = e.Depth
		}
		assert.Equal(t, map[string]int{"acme": 0, "eng": 1, "sales": 1, "core": 2, "infra": 2}, depths)
	})

	t.Run("ancestor_path_walks_nearest_first", func(t *testing.T) {
		db := companyTree(t)

		path, err := db.AncestorPath(ctx, "core")
		require.NoError(t, err)
		assert.Equal(t, []string{"eng", "acme"}, nodeIDs(path))
	})

	t.Run("root_of_a_root_is_itself", func(t *testing.T) {
		db := companyTree(t)

		root, err := db.Root(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "acme", root.ID)

		root, err = db.Root(ctx, "infra")
		require.NoError(t, err)
		assert.Equal(t, "acme", root.ID)
	})

	t.Run("would_create_cycle_detects_descendants_and_self", func(t *testing.T) {
		db := companyTree(t)

		cycle, err := db.WouldCreateCycle(ctx, "eng", "core")
		require.NoError(t, err)
		assert.True(t, cycle)

		cycle, err = db.WouldCreateCycle(ctx, "eng", "eng")
		require.NoError(t, err)
		assert.True(t, cycle)

		cycle, err = db.WouldCreateCycle(ctx, "core", "sales")
		require.NoError(t, err)
		assert.False(t, cycle)
	})

	t.Run("move_relinks_under_the_new_parent", func(t *testing.T) {
		db := companyTree(t)

		require.NoError(t, db.Move(ctx, "core", "sales"))

		parent, err := db.Parent(ctx, "core")
		require.NoError(t, err)
		assert.Equal(t, "sales", parent.ID)

		kids, err := db.Children(ctx, "eng")
		require.NoError(t, err)
		assert.Equal(t, []string{"infra"}, nodeIDs(kids))
	})

	t.Run("move_refuses_to_close_a_loop", func(t *testing.T) {
		db := companyTree(t)

		err := db.Move(ctx, "eng", "core")
		require.Error(t, err)
		assert.ErrorIs(t, err, engine.ErrCycle)
	})

	t.Run("delete_subtree_counts_removed_nodes", func(t *testing.T) {
		db := companyTree(t)

		n, err := db.DeleteSubtree(ctx, "eng")
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		kids, err := db.Children(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, []string{"sales"}, nodeIDs(kids))
	})

	t.Run("clone_subtree_remaps_ids_under_the_new_parent", func(t *testing.T) {
		db := companyTree(t)

		mapping, err := db.CloneSubtree(ctx, "eng", "sales")
		require.NoError(t, err)
		require.Len(t, mapping, 3)
		assert.NotEqual(t, "eng", mapping["eng"])

		parent, err := db.Parent(ctx, mapping["eng"])
		require.NoError(t, err)
		assert.Equal(t, "sales", parent.ID)

		kids, err := db.Children(ctx, mapping["eng"])
		require.NoError(t, err)
		assert.Len(t, kids, 2)

		// The originals are untouched.
		kids, err = db.Children(ctx, "eng")
		require.NoError(t, err)
		assert.Len(t, kids, 2)
	})
}
