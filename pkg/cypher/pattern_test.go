package cypher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/biplanedb/biplane/pkg/plan"
)

func hierarchyQuery(t *testing.T, spec plan.HierarchySpec) *CompiledQuery {
	t.Helper()
	return mustCompile(t, plan.NewBuilder().MatchByID("n-1").Hierarchy(spec))
}

func TestCompile_Hierarchy(t *testing.T) {
	t.Run("parent_is_a_single_outgoing_hop", func(t *testing.T) {
		q := hierarchyQuery(t, plan.HierarchySpec{Mode: plan.HierarchyParent, EdgeType: "childOf"})
		assert.Contains(t, q.Cypher, "MATCH (n0)-[:childOf]->(n1)")
		assert.False(t, q.Meta.HasVariableLengthPath)
	})

	t.Run("children_is_a_single_incoming_hop", func(t *testing.T) {
		q := hierarchyQuery(t, plan.HierarchySpec{Mode: plan.HierarchyChildren, EdgeType: "childOf"})
		assert.Contains(t, q.Cypher, "MATCH (n0)<-[:childOf]-(n1)")
	})

	t.Run("ancestors_walk_outward_variable_length", func(t *testing.T) {
		q := hierarchyQuery(t, plan.HierarchySpec{Mode: plan.HierarchyAncestors, EdgeType: "childOf"})
		assert.Contains(t, q.Cypher, "MATCH (n0)-[:childOf*1..]->(n1)")
		assert.True(t, q.Meta.HasVariableLengthPath)
	})

	t.Run("ancestors_honor_max_depth", func(t *testing.T) {
		q := hierarchyQuery(t, plan.HierarchySpec{Mode: plan.HierarchyAncestors, EdgeType: "childOf", MaxDepth: 3})
		assert.Contains(t, q.Cypher, "*1..3]->(n1)")
	})

	t.Run("include_self_lowers_the_minimum_to_zero", func(t *testing.T) {
		q := hierarchyQuery(t, plan.HierarchySpec{
			Mode: plan.HierarchyDescendants, EdgeType: "childOf", IncludeSelf: true, MaxDepth: 2,
		})
		assert.Contains(t, q.Cypher, "MATCH (n0)<-[:childOf*0..2]-(n1)")
	})

	t.Run("descendants_walk_inward", func(t *testing.T) {
		q := hierarchyQuery(t, plan.HierarchySpec{Mode: plan.HierarchyDescendants, EdgeType: "childOf"})
		assert.Contains(t, q.Cypher, "MATCH (n0)<-[:childOf*1..]-(n1)")
	})

	t.Run("siblings_share_a_parent_and_exclude_self", func(t *testing.T) {
		q := hierarchyQuery(t, plan.HierarchySpec{Mode: plan.HierarchySiblings, EdgeType: "childOf"})
		assert.Contains(t, q.Cypher, "MATCH (n0)-[:childOf]->(n2)<-[:childOf]-(n1)")
		assert.Contains(t, q.Cypher, "WHERE n1 <> n0")
	})

	t.Run("root_is_the_end_of_the_parent_chain", func(t *testing.T) {
		q := hierarchyQuery(t, plan.HierarchySpec{Mode: plan.HierarchyRoot, EdgeType: "childOf"})
		assert.Contains(t, q.Cypher, "MATCH (n0)-[:childOf*0..]->(n1)")
		assert.Contains(t, q.Cypher, "WHERE NOT (n1)-[:childOf]->()")
	})

	t.Run("depth_capture_binds_a_path_and_returns_its_length", func(t *testing.T) {
		q := hierarchyQuery(t, plan.HierarchySpec{
			Mode: plan.HierarchyDescendants, EdgeType: "childOf", DepthAlias: "depth",
		})
		assert.Contains(t, q.Cypher, "MATCH hp0 = (n0)<-[:childOf*1..]-(n1)")
		assert.Contains(t, q.Cypher, "RETURN n1, length(hp0) AS depth")
		assert.Equal(t, []string{"n1", "depth"}, q.Meta.ReturnAliases)
	})

	t.Run("named_path_takes_precedence_over_synthesis", func(t *testing.T) {
		q := mustCompile(t, plan.NewBuilder().
			MatchByID("n-1").
			Hierarchy(plan.HierarchySpec{
				Mode: plan.HierarchyAncestors, EdgeType: "childOf",
				PathName: "lineage", DepthAlias: "level",
			}))
		assert.Contains(t, q.Cypher, "MATCH p0 = (n0)-[:childOf*1..]->(n1)")
		assert.Contains(t, q.Cypher, "length(p0) AS level")
	})
}

func TestCompile_Reachable(t *testing.T) {
	t.Run("closure_is_open_ended_and_distinct_by_default", func(t *testing.T) {
		q := mustCompile(t, plan.NewBuilder().
			MatchByID("n-1").
			Reachable(plan.ReachableSpec{Edges: []string{"knows"}}))
		assert.Contains(t, q.Cypher, "MATCH (n0)-[:knows*0..]->(n1)")
		assert.Contains(t, q.Cypher, "RETURN DISTINCT n1")
		assert.True(t, q.Meta.HasVariableLengthPath)
	})

	t.Run("bounds_and_direction_apply", func(t *testing.T) {
		q := mustCompile(t, plan.NewBuilder().
			MatchByID("n-1").
			Reachable(plan.ReachableSpec{
				Edges: []string{"knows", "follows"}, Direction: plan.DirectionIn,
				MinHops: 1, MaxHops: 4,
			}))
		assert.Contains(t, q.Cypher, "MATCH (n0)<-[:knows|follows*1..4]-(n1)")
	})

	t.Run("any_edge_type_when_none_given", func(t *testing.T) {
		q := mustCompile(t, plan.NewBuilder().
			MatchByID("n-1").
			Reachable(plan.ReachableSpec{MaxHops: 2}))
		assert.Contains(t, q.Cypher, "MATCH (n0)-[*0..2]->(n1)")
	})
}
