package cypher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biplanedb/biplane/pkg/plan"
)

func TestCache(t *testing.T) {
	userPlan := func(t *testing.T, name string) *plan.Plan {
		return mustPlan(t, plan.NewBuilder().Match("user").Where(plan.Eq("name", name)))
	}

	t.Run("second_compile_hits_and_shares_the_result", func(t *testing.T) {
		c := NewCached(16)

		first, err := c.Compile(userPlan(t, "Ada"))
		require.NoError(t, err)
		second, err := c.Compile(userPlan(t, "Ada"))
		require.NoError(t, err)

		assert.Same(t, first, second)
		hits, misses, size := c.Cache().Stats()
		assert.Equal(t, int64(1), hits)
		assert.Equal(t, int64(1), misses)
		assert.Equal(t, 1, size)
	})

	t.Run("structurally_identical_plans_share_an_entry", func(t *testing.T) {
		c := NewCache(16)
		q, err := Compile(userPlan(t, "Ada"))
		require.NoError(t, err)
		c.Put(userPlan(t, "Ada"), q)

		got, ok := c.Get(userPlan(t, "Ada"))
		require.True(t, ok)
		assert.Same(t, q, got)
	})

	t.Run("different_parameter_values_are_different_entries", func(t *testing.T) {
		c := NewCache(16)
		q, err := Compile(userPlan(t, "Ada"))
		require.NoError(t, err)
		c.Put(userPlan(t, "Ada"), q)

		_, ok := c.Get(userPlan(t, "Grace"))
		assert.False(t, ok)
	})

	t.Run("capacity_evicts_least_recently_used", func(t *testing.T) {
		c := NewCache(2)
		plans := []*plan.Plan{userPlan(t, "a"), userPlan(t, "b"), userPlan(t, "c")}
		for _, p := range plans {
			q, err := Compile(p)
			require.NoError(t, err)
			c.Put(p, q)
		}

		_, _, size := c.Stats()
		assert.Equal(t, 2, size)
		_, ok := c.Get(plans[0])
		assert.False(t, ok, "oldest entry should have been evicted")
		_, ok = c.Get(plans[2])
		assert.True(t, ok)
	})

	t.Run("clear_empties_everything", func(t *testing.T) {
		c := NewCache(4)
		p := userPlan(t, "Ada")
		q, err := Compile(p)
		require.NoError(t, err)
		c.Put(p, q)

		c.Clear()
		_, _, size := c.Stats()
		assert.Equal(t, 0, size)
		_, ok := c.Get(p)
		assert.False(t, ok)
	})

	t.Run("uncached_compiler_has_no_cache", func(t *testing.T) {
		assert.Nil(t, New().Cache())
	})
}
