package cypher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biplanedb/biplane/pkg/plan"
)

func TestCompile_Union(t *testing.T) {
	t.Run("arms_are_independent_subqueries_with_aligned_columns", func(t *testing.T) {
		q := mustCompile(t, plan.NewBuilder().Union(
			plan.NewBuilder().Match("user").Where(plan.Gt("age", 30)),
			plan.NewBuilder().Match("admin"),
		))
		assert.Equal(t,
			"MATCH (n0:user)\nWHERE n0.age > $p0\nRETURN n0 AS result\nUNION\nMATCH (n0:admin)\nRETURN n0 AS result",
			q.Cypher)
		assert.Equal(t, []string{"result"}, q.Meta.ReturnAliases)
		assert.Equal(t, 2, q.Meta.MatchCount)
	})

	t.Run("union_all_keeps_duplicates", func(t *testing.T) {
		q := mustCompile(t, plan.NewBuilder().UnionAll(
			plan.NewBuilder().Match("user"),
			plan.NewBuilder().Match("user"),
		))
		assert.Contains(t, q.Cypher, "\nUNION ALL\n")
		assert.NotContains(t, q.Cypher, "\nUNION\n")
	})

	t.Run("arm_distinct_applies_inside_the_arm", func(t *testing.T) {
		q := mustCompile(t, plan.NewBuilder().UnionAll(
			plan.NewBuilder().Match("user").Distinct(),
			plan.NewBuilder().Match("admin"),
		))
		assert.Contains(t, q.Cypher, "RETURN DISTINCT n0 AS result\nUNION ALL")
	})

	t.Run("params_stay_distinct_across_arms", func(t *testing.T) {
		q := mustCompile(t, plan.NewBuilder().Union(
			plan.NewBuilder().Match("user").Where(plan.Eq("name", "Ada")),
			plan.NewBuilder().Match("user").Where(plan.Eq("name", "Grace")),
		))
		assert.Equal(t, map[string]any{"p0": "Ada", "p1": "Grace"}, q.Params)
		assert.Contains(t, q.Cypher, "$p0")
		assert.Contains(t, q.Cypher, "$p1")
	})

	t.Run("three_arms_chain", func(t *testing.T) {
		q := mustCompile(t, plan.NewBuilder().Union(
			plan.NewBuilder().Match("a"),
			plan.NewBuilder().Match("b"),
			plan.NewBuilder().Match("c"),
		))
		assert.Equal(t, 2, strings.Count(q.Cypher, "UNION"))
	})
}

func TestCompile_Intersect(t *testing.T) {
	t.Run("chains_branches_behind_with_carrying_the_result", func(t *testing.T) {
		q := mustCompile(t, plan.NewBuilder().Intersect(
			plan.NewBuilder().Match("user").Where(plan.ConnectedTo("authored", plan.DirectionOut, "p-1")),
			plan.NewBuilder().Match("user").Where(plan.ConnectedTo("follows", plan.DirectionOut, "u-2")),
		))
		assert.Equal(t,
			"MATCH (n0:user)\n"+
				"MATCH (n0)-[:authored]->(ct0 {id: $p0})\n"+
				"WITH n0\n"+
				"MATCH (n0:user)\n"+
				"MATCH (n0)-[:follows]->(b1ct1 {id: $p1})\n"+
				"RETURN DISTINCT n0 AS result",
			q.Cypher)
	})

	t.Run("later_branch_aliases_get_prefixed_namespaces", func(t *testing.T) {
		q := mustCompile(t, plan.NewBuilder().Intersect(
			plan.NewBuilder().Match("user"),
			plan.NewBuilder().
				Match("post").
				Traverse(plan.TraversalSpec{Edges: []string{"authored"}, Direction: plan.DirectionIn}).
				Project(plan.Projection{Kind: plan.ProjectCollection, Alias: ""}),
		))
		// Branch 1 ends on its n1 (the traversal target), which unifies
		// onto the carried n0; its other aliases live under b1.
		assert.Contains(t, q.Cypher, "WITH n0")
		assert.Contains(t, q.Cypher, "MATCH (b1n0:post)<-[b1e0:authored]-(n0)")
		assert.Contains(t, q.Cypher, "RETURN DISTINCT n0 AS result")
	})

	t.Run("single_return_ends_the_chain", func(t *testing.T) {
		q := mustCompile(t, plan.NewBuilder().Intersect(
			plan.NewBuilder().Match("user"),
			plan.NewBuilder().Match("user"),
			plan.NewBuilder().Match("user"),
		))
		assert.Equal(t, 1, strings.Count(q.Cypher, "RETURN "))
		assert.Equal(t, 2, strings.Count(q.Cypher, "WITH n0"))
	})
}

func TestCompile_Fork(t *testing.T) {
	t.Run("branches_compile_optional_regardless_of_cardinality", func(t *testing.T) {
		q := mustCompile(t, plan.NewBuilder().
			Match("user").
			As("u").
			Fork(
				func(b plan.Builder) plan.Builder {
					return b.Traverse(plan.TraversalSpec{Edges: []string{"authored"}}).As("posts")
				},
				func(b plan.Builder) plan.Builder {
					return b.Traverse(plan.TraversalSpec{Edges: []string{"follows"}}).As("friends")
				},
			).
			Project(plan.Projection{
				Kind:           plan.ProjectMultiNode,
				Aliases:        []string{"u", "posts", "friends"},
				CollectAliases: []string{"posts", "friends"},
			}))
		assert.Equal(t,
			"MATCH (n0:user)\n"+
				"OPTIONAL MATCH (n0)-[e1000:authored]->(n1001)\n"+
				"OPTIONAL MATCH (n0)-[e2000:follows]->(n2001)\n"+
				"RETURN n0 AS u, collect(n1001) AS posts, collect(n2001) AS friends",
			q.Cypher)
		assert.True(t, q.Meta.HasAggregation)
		assert.Equal(t, []string{"u", "posts", "friends"}, q.Meta.ReturnAliases)
	})

	t.Run("branch_where_stays_in_the_optional_scope", func(t *testing.T) {
		q := mustCompile(t, plan.NewBuilder().
			Match("user").
			Fork(func(b plan.Builder) plan.Builder {
				return b.
					Traverse(plan.TraversalSpec{Edges: []string{"authored"}}).
					Where(plan.Eq("draft", false)).
					As("published")
			}))
		assert.Contains(t, q.Cypher, "OPTIONAL MATCH (n0)-[e1000:authored]->(n1001)\nWHERE n1001.draft = $p0")
	})

	t.Run("after_the_fork_focus_returns_to_the_source", func(t *testing.T) {
		q := mustCompile(t, plan.NewBuilder().
			Match("user").
			Fork(func(b plan.Builder) plan.Builder {
				return b.Traverse(plan.TraversalSpec{Edges: []string{"authored"}}).As("posts")
			}))
		require.True(t, strings.HasSuffix(q.Cypher, "RETURN n0"), q.Cypher)
	})
}
