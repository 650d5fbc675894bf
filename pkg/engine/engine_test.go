package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biplanedb/biplane/pkg/plan"
	"github.com/biplanedb/biplane/pkg/storage"
)

// socialGraph seeds the fixture most query tests share:
//
//	u1 "Ada"   -authored-> p1, p2; -follows-> u2
//	u2 "Grace" -authored-> p3;     -follows-> u3
//	u3 "Alan"  (no posts, no follows)
func socialGraph(t *testing.T) (*Engine, *storage.Store) {
	t.Helper()
	s := storage.New()

	addNode(t, s, "u1", "user", map[string]any{"name": "Ada", "age": int64(36)})
	addNode(t, s, "u2", "user", map[string]any{"name": "Grace", "age": int64(50)})
	addNode(t, s, "u3", "user", map[string]any{"name": "Alan"})
	addNode(t, s, "p1", "post", map[string]any{"title": "intro", "likes": int64(10), "draft": false})
	addNode(t, s, "p2", "post", map[string]any{"title": "deep dive", "likes": int64(5), "draft": true})
	addNode(t, s, "p3", "post", map[string]any{"title": "notes", "likes": int64(2), "draft": false})

	addEdge(t, s, "a1", "authored", "u1", "p1", nil)
	addEdge(t, s, "a2", "authored", "u1", "p2", nil)
	addEdge(t, s, "a3", "authored", "u2", "p3", nil)
	addEdge(t, s, "f1", "follows", "u1", "u2", map[string]any{"since": int64(2020)})
	addEdge(t, s, "f2", "follows", "u2", "u3", map[string]any{"since": int64(2023)})

	return New(s), s
}

func addNode(t *testing.T, s *storage.Store, id, label string, props map[string]any) {
	t.Helper()
	require.NoError(t, s.CreateNode(&storage.Node{ID: id, Label: label, Properties: props}))
}

func addEdge(t *testing.T, s *storage.Store, id, typ, from, to string, props map[string]any) {
	t.Helper()
	require.NoError(t, s.CreateEdge(&storage.Edge{ID: id, Type: typ, FromID: from, ToID: to, Properties: props}))
}

func mustPlan(t *testing.T, b plan.Builder) *plan.Plan {
	t.Helper()
	p, err := b.Plan()
	require.NoError(t, err)
	return p
}

func run(t *testing.T, e *Engine, b plan.Builder) *Result {
	t.Helper()
	res, err := e.Execute(context.Background(), mustPlan(t, b))
	require.NoError(t, err)
	return res
}

func nodeIDs(res *Result) []string {
	ids := make([]string, 0, res.Len())
	for _, n := range res.Nodes() {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestEngine_Match(t *testing.T) {
	t.Run("by_label_returns_nodes_in_insertion_order", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().Match("user"))
		assert.Equal(t, []string{"n0"}, res.Columns)
		assert.Equal(t, []string{"u1", "u2", "u3"}, nodeIDs(res))
		assert.Equal(t, plan.ResultCollection, res.ResultType)
	})

	t.Run("by_id_matches_one_node_across_labels", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().MatchByID("p2"))
		assert.Equal(t, []string{"p2"}, nodeIDs(res))
	})

	t.Run("by_id_with_label_mismatch_yields_no_rows", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().MatchByID("u1", "post"))
		assert.True(t, res.Empty())
	})

	t.Run("missing_id_yields_no_rows_not_an_error", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().MatchByID("ghost"))
		assert.True(t, res.Empty())
	})

	t.Run("cancelled_context_fails_fast", func(t *testing.T) {
		e, _ := socialGraph(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := e.Execute(ctx, mustPlan(t, plan.NewBuilder().Match("user")))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestEngine_Traversal(t *testing.T) {
	t.Run("outgoing_edges_in_insertion_order", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().
			MatchByID("u1").
			Traverse(plan.TraversalSpec{Edges: []string{"authored"}}))
		assert.Equal(t, []string{"n1"}, res.Columns)
		assert.Equal(t, []string{"p1", "p2"}, nodeIDs(res))
	})

	t.Run("incoming_direction_reverses_the_hop", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().
			MatchByID("p3").
			Traverse(plan.TraversalSpec{Edges: []string{"authored"}, Direction: plan.DirectionIn}))
		assert.Equal(t, []string{"u2"}, nodeIDs(res))
	})

	t.Run("both_directions_counts_each_edge_once", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().
			MatchByID("u2").
			Traverse(plan.TraversalSpec{Edges: []string{"follows"}, Direction: plan.DirectionBoth}))
		// u2 follows u3, u1 follows u2: outgoing first, then incoming.
		assert.Equal(t, []string{"u3", "u1"}, nodeIDs(res))
	})

	t.Run("any_edge_type_with_target_label_filter", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().
			MatchByID("u1").
			Traverse(plan.TraversalSpec{ToLabels: []string{"user"}}))
		assert.Equal(t, []string{"u2"}, nodeIDs(res))
	})

	t.Run("multi_label_filter_accepts_either", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().
			MatchByID("u1").
			Traverse(plan.TraversalSpec{ToLabels: []string{"post", "user"}}))
		assert.Equal(t, []string{"p1", "p2", "u2"}, nodeIDs(res))
	})

	t.Run("optional_traversal_keeps_unmatched_row_with_null", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().
			MatchByID("u3").
			Traverse(plan.TraversalSpec{Edges: []string{"authored"}, Cardinality: plan.CardinalityMaybe}))
		require.Equal(t, 1, res.Len())
		assert.Nil(t, res.Rows[0][0])
	})

	t.Run("required_traversal_drops_unmatched_row", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().
			MatchByID("u3").
			Traverse(plan.TraversalSpec{Edges: []string{"authored"}}))
		assert.True(t, res.Empty())
	})

	t.Run("edge_property_filter_scopes_to_the_edge", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().
			Match("user").
			Traverse(plan.TraversalSpec{
				Edges:     []string{"follows"},
				EdgeWhere: []plan.Condition{plan.Gte("since", 2023)},
			}))
		assert.Equal(t, []string{"u3"}, nodeIDs(res))
	})

	t.Run("variable_length_edge_filter_applies_to_every_hop", func(t *testing.T) {
		e, _ := socialGraph(t)

		// u1-[since 2020]->u2-[since 2023]->u3: the one-hop path passes,
		// the two-hop path dies on its second edge.
		res := run(t, e, plan.NewBuilder().
			MatchByID("u1").
			Traverse(plan.TraversalSpec{
				Edges:     []string{"follows"},
				VarLength: &plan.VarLength{Min: 1, Max: 2},
				EdgeWhere: []plan.Condition{plan.Lte("since", 2020)},
			}))
		assert.Equal(t, []string{"u2"}, nodeIDs(res))
	})

	t.Run("variable_length_yields_one_row_per_path", func(t *testing.T) {
		e, s := socialGraph(t)
		// Diamond: u3 -knows-> x1, x2; x1, x2 -knows-> x3.
		addNode(t, s, "x1", "user", nil)
		addNode(t, s, "x2", "user", nil)
		addNode(t, s, "x3", "user", nil)
		addEdge(t, s, "k1", "knows", "u3", "x1", nil)
		addEdge(t, s, "k2", "knows", "u3", "x2", nil)
		addEdge(t, s, "k3", "knows", "x1", "x3", nil)
		addEdge(t, s, "k4", "knows", "x2", "x3", nil)

		res := run(t, e, plan.NewBuilder().
			MatchByID("u3").
			Traverse(plan.TraversalSpec{Edges: []string{"knows"}, VarLength: &plan.VarLength{Min: 2, Max: 2}}))
		// Two distinct paths reach x3; each is its own row.
		assert.Equal(t, []string{"x3", "x3"}, nodeIDs(res))
	})

	t.Run("variable_length_min_zero_includes_source", func(t *testing.T) {
		e, s := socialGraph(t)
		addNode(t, s, "x1", "user", nil)
		addEdge(t, s, "k1", "knows", "u3", "x1", nil)

		res := run(t, e, plan.NewBuilder().
			MatchByID("u3").
			Traverse(plan.TraversalSpec{Edges: []string{"knows"}, VarLength: &plan.VarLength{Min: 0, Max: 1}}))
		assert.Equal(t, []string{"u3", "x1"}, nodeIDs(res))
	})

	t.Run("variable_length_terminates_on_cycles", func(t *testing.T) {
		e, s := socialGraph(t)
		addNode(t, s, "x1", "user", nil)
		addEdge(t, s, "k1", "knows", "u3", "x1", nil)
		addEdge(t, s, "k2", "knows", "x1", "u3", nil)

		res := run(t, e, plan.NewBuilder().
			MatchByID("u3").
			Traverse(plan.TraversalSpec{Edges: []string{"knows"}, VarLength: &plan.VarLength{Min: 1}}))
		// The walk may not revisit u3, so only x1 is reachable.
		assert.Equal(t, []string{"x1"}, nodeIDs(res))
	})

	t.Run("path_binding_captures_nodes_and_edges", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().
			MatchByID("u1").
			Traverse(plan.TraversalSpec{Edges: []string{"authored"}, PathName: "trail"}).
			Project(plan.Projection{Kind: plan.ProjectPath, Alias: "trail"}))
		assert.Equal(t, []string{"p0"}, res.Columns)
		require.Equal(t, 2, res.Len())

		path, ok := res.Rows[0][0].(*Path)
		require.True(t, ok)
		assert.Equal(t, 1, path.Len())
		assert.Equal(t, "u1", path.Start().ID)
		assert.Equal(t, "p1", path.End().ID)
	})
}

func TestEngine_Where(t *testing.T) {
	e, _ := socialGraph(t)

	users := func(conds ...plan.Condition) []string {
		return nodeIDs(run(t, e, plan.NewBuilder().Match("user").Where(conds...)))
	}

	t.Run("comparison_operators", func(t *testing.T) {
		assert.Equal(t, []string{"u1"}, users(plan.Eq("name", "Ada")))
		assert.Equal(t, []string{"u2"}, users(plan.Neq("name", "Ada")), "missing property does not match neq")
		assert.Equal(t, []string{"u2"}, users(plan.Gt("age", 36)))
		assert.Equal(t, []string{"u1", "u2"}, users(plan.Gte("age", 36)))
		assert.Equal(t, []string{"u1"}, users(plan.Lt("age", 50)))
		assert.Equal(t, []string{"u1", "u2"}, users(plan.In("name", []string{"Ada", "Grace"})))
		assert.Equal(t, []string{"u2"}, users(plan.Contains("name", "race")))
		assert.Equal(t, []string{"u1", "u3"}, users(plan.StartsWith("name", "A")))
		assert.Equal(t, []string{"u2"}, users(plan.EndsWith("name", "ce")))
		assert.Equal(t, []string{"u3"}, users(plan.IsNull("age")))
		assert.Equal(t, []string{"u1", "u2"}, users(plan.IsNotNull("age")))
	})

	t.Run("numbers_compare_across_int_and_float", func(t *testing.T) {
		assert.Equal(t, []string{"u1"}, users(plan.Eq("age", 36.0)))
		assert.Equal(t, []string{"u1"}, users(plan.Eq("age", 36)))
	})

	t.Run("string_never_equals_number", func(t *testing.T) {
		assert.Empty(t, users(plan.Eq("age", "36")))
	})

	t.Run("missing_property_fails_every_comparison_except_is_null", func(t *testing.T) {
		assert.NotContains(t, users(plan.Gt("age", 0)), "u3")
		assert.NotContains(t, users(plan.Neq("age", 99)), "u3")
		assert.Contains(t, users(plan.IsNull("age")), "u3")
	})

	t.Run("logical_operators", func(t *testing.T) {
		assert.Equal(t, []string{"u1"},
			users(plan.And(plan.Gte("age", 30), plan.Lt("age", 40))))
		assert.Equal(t, []string{"u1", "u3"},
			users(plan.Or(plan.Eq("name", "Ada"), plan.Eq("name", "Alan"))))
		assert.Equal(t, []string{"u2", "u3"},
			users(plan.Not(plan.Eq("name", "Ada"))))
	})

	t.Run("consecutive_where_steps_conjoin", func(t *testing.T) {
		res := run(t, e, plan.NewBuilder().
			Match("user").
			Where(plan.IsNotNull("age")).
			Where(plan.Gt("age", 40)))
		assert.Equal(t, []string{"u2"}, nodeIDs(res))
	})

	t.Run("condition_on_earlier_alias_via_user_name", func(t *testing.T) {
		res := run(t, e, plan.NewBuilder().
			Match("user").As("u").
			Traverse(plan.TraversalSpec{Edges: []string{"authored"}}).
			Where(plan.Eq("draft", false)).
			Where(plan.Eq("name", "Ada").On("u")))
		assert.Equal(t, []string{"p1"}, nodeIDs(res))
	})

	t.Run("has_edge_checks_existence_in_direction", func(t *testing.T) {
		assert.Equal(t, []string{"u1", "u2"}, users(plan.HasEdge("authored", plan.DirectionOut)))
		assert.Equal(t, []string{"u2", "u3"}, users(plan.HasEdge("follows", plan.DirectionIn)))
	})

	t.Run("connected_to_matches_edge_to_specific_id", func(t *testing.T) {
		assert.Equal(t, []string{"u1"}, users(plan.ConnectedTo("authored", plan.DirectionOut, "p2")))
		assert.Equal(t, []string{"u3"}, users(plan.ConnectedTo("follows", plan.DirectionIn, "u2")))
	})

	t.Run("not_requires_exactly_one_child", func(t *testing.T) {
		_, err := e.Execute(context.Background(), mustPlan(t, plan.NewBuilder().
			Match("user").
			Where(plan.Not(plan.Eq("a", 1), plan.Eq("b", 2)))))
		require.Error(t, err)

		var perr *PlanError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "not", perr.Op)
	})

	t.Run("nested_connected_to_is_rejected", func(t *testing.T) {
		for _, cond := range []plan.Condition{
			plan.And(plan.Eq("x", 1), plan.ConnectedTo("authored", plan.DirectionOut, "p1")),
			plan.Not(plan.ConnectedTo("authored", plan.DirectionOut, "p1")),
			plan.Or(plan.Eq("x", 1), plan.And(plan.ConnectedTo("authored", plan.DirectionOut, "p1"))),
		} {
			_, err := e.Execute(context.Background(), mustPlan(t, plan.NewBuilder().Match("user").Where(cond)))
			var perr *PlanError
			require.ErrorAs(t, err, &perr)
			assert.Contains(t, perr.Reason, "connectedTo")
		}
	})
}

func TestEngine_Tail(t *testing.T) {
	t.Run("order_by_ascending_puts_nulls_last", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().Match("user").OrderBy("", "age", false))
		assert.Equal(t, []string{"u1", "u2", "u3"}, nodeIDs(res))
	})

	t.Run("order_by_descending_puts_nulls_first", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().Match("user").OrderBy("", "age", true))
		assert.Equal(t, []string{"u3", "u2", "u1"}, nodeIDs(res))
	})

	t.Run("order_keys_compose_in_step_order", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().
			Match("post").
			OrderBy("", "draft", false).
			OrderBy("", "likes", true))
		assert.Equal(t, []string{"p1", "p3", "p2"}, nodeIDs(res))
	})

	t.Run("order_by_resolves_user_aliases", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().
			Match("user").As("u").
			Traverse(plan.TraversalSpec{Edges: []string{"authored"}}).
			OrderBy("u", "name", true).
			OrderBy("", "likes", false))
		assert.Equal(t, []string{"p3", "p2", "p1"}, nodeIDs(res))
	})

	t.Run("skip_and_limit_paginate_after_sort", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().
			Match("post").
			OrderBy("", "likes", true).
			Skip(1).
			Limit(1))
		assert.Equal(t, []string{"p2"}, nodeIDs(res))
	})

	t.Run("skip_past_the_end_empties", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().Match("user").Skip(10))
		assert.True(t, res.Empty())
	})

	t.Run("distinct_deduplicates_projected_rows", func(t *testing.T) {
		e, _ := socialGraph(t)

		authors := plan.NewBuilder().
			Match("post").
			Traverse(plan.TraversalSpec{Edges: []string{"authored"}, Direction: plan.DirectionIn})
		assert.Equal(t, []string{"u1", "u1", "u2"}, nodeIDs(run(t, e, authors)))
		assert.Equal(t, []string{"u1", "u2"}, nodeIDs(run(t, e, authors.Distinct())))
	})
}

func TestEngine_Reachable(t *testing.T) {
	t.Run("closure_is_distinct_by_node", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().
			MatchByID("u1").
			Reachable(plan.ReachableSpec{Edges: []string{"follows"}}))
		// Zero hops includes the source itself.
		assert.Equal(t, []string{"u1", "u2", "u3"}, nodeIDs(res))
	})

	t.Run("min_hops_excludes_the_source", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().
			MatchByID("u1").
			Reachable(plan.ReachableSpec{Edges: []string{"follows"}, MinHops: 1}))
		assert.Equal(t, []string{"u2", "u3"}, nodeIDs(res))
	})

	t.Run("max_hops_bounds_the_walk", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().
			MatchByID("u1").
			Reachable(plan.ReachableSpec{Edges: []string{"follows"}, MinHops: 1, MaxHops: 1}))
		assert.Equal(t, []string{"u2"}, nodeIDs(res))
	})

	t.Run("any_edge_type_in_either_direction", func(t *testing.T) {
		e, _ := socialGraph(t)

		res := run(t, e, plan.NewBuilder().
			MatchByID("p3").
			Reachable(plan.ReachableSpec{Direction: plan.DirectionBoth, MinHops: 1, MaxHops: 2}))
		// p3 <- u2, then everything one more hop from u2.
		assert.Equal(t, []string{"u2", "u3", "u1"}, nodeIDs(res))
	})
}
