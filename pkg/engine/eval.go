// Condition evaluation. Every operator here must agree with the Cypher
// operator the compiler emits for the same condition, including the
// null rules: a missing property fails every comparison except isNull,
// and a null binding (an optional miss) fails everything but isNull.

package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/biplanedb/biplane/pkg/convert"
	"github.com/biplanedb/biplane/pkg/plan"
	"github.com/biplanedb/biplane/pkg/storage"
)

func (ex *exec) execWhere(w *plan.WhereStep) error {
	out := make([]binding, 0, len(ex.rows))
	for _, row := range ex.rows {
		keep := true
		for _, c := range w.Conditions {
			ok, err := ex.evalCondition(row, c, w.Alias)
			if err != nil {
				return err
			}
			if !ok {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, row)
		}
	}
	ex.rows = out
	return nil
}

// evalEdgeConditions evaluates a traversal's edge filter with the
// candidate edge as the implicit subject.
func (ex *exec) evalEdgeConditions(row binding, conds []plan.Condition, edge *storage.Edge) (bool, error) {
	for _, c := range conds {
		subject := any(edge)
		if c.Alias != "" {
			subject = row[ex.resolve(c.Alias)]
		}
		ok, err := ex.evalOn(row, c, subject)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (ex *exec) evalCondition(row binding, c plan.Condition, defaultAlias string) (bool, error) {
	alias := defaultAlias
	if c.Alias != "" {
		alias = c.Alias
	}
	return ex.evalOn(row, c, row[ex.resolve(alias)])
}

// evalOn evaluates one condition against an already-resolved subject
// value. Children re-resolve when they name their own alias.
func (ex *exec) evalOn(row binding, c plan.Condition, subject any) (bool, error) {
	switch c.Kind {
	case plan.CondCompare:
		left, present := propertyOf(subject, c.Compare.Property)
		return evalCompare(left, present, c.Compare), nil

	case plan.CondAnd, plan.CondOr:
		for _, child := range c.Children {
			if child.Kind == plan.CondConnectedTo {
				return false, errNestedConnectedTo(c.Kind.String())
			}
			ok, err := ex.evalChild(row, child, subject)
			if err != nil {
				return false, err
			}
			if c.Kind == plan.CondAnd && !ok {
				return false, nil
			}
			if c.Kind == plan.CondOr && ok {
				return true, nil
			}
		}
		return c.Kind == plan.CondAnd, nil

	case plan.CondNot:
		if len(c.Children) != 1 {
			return false, errNotArity(len(c.Children))
		}
		child := c.Children[0]
		if child.Kind == plan.CondConnectedTo {
			return false, errNestedConnectedTo("not")
		}
		ok, err := ex.evalChild(row, child, subject)
		if err != nil {
			return false, err
		}
		return !ok, nil

	case plan.CondHasEdge:
		node, _ := subject.(*storage.Node)
		if node == nil {
			return false, nil
		}
		return len(ex.adjacency(node, []string{c.Edge.Type}, c.Edge.Direction)) > 0, nil

	case plan.CondConnectedTo:
		node, _ := subject.(*storage.Node)
		if node == nil {
			return false, nil
		}
		for _, h := range ex.adjacency(node, []string{c.Edge.Type}, c.Edge.Direction) {
			if h.node.ID == c.Edge.NodeID {
				return true, nil
			}
		}
		return false, nil

	default:
		return false, &PlanError{Op: c.Kind.String(), Reason: "unknown condition kind"}
	}
}

func (ex *exec) evalChild(row binding, child plan.Condition, subject any) (bool, error) {
	if child.Alias != "" {
		subject = row[ex.resolve(child.Alias)]
	}
	return ex.evalOn(row, child, subject)
}

// propertyOf reads a named property from a node or edge binding. The id
// falls back to the entity id itself: the Cypher backend stores ids in
// the id property, and MatchByID filters on it, so both backends must
// see it even when the property map omits it.
func propertyOf(v any, name string) (value any, present bool) {
	switch val := v.(type) {
	case *storage.Node:
		if val == nil {
			return nil, false
		}
		if p, ok := val.Properties[name]; ok {
			return p, p != nil
		}
		if name == "id" {
			return val.ID, true
		}
	case *storage.Edge:
		if val == nil {
			return nil, false
		}
		if p, ok := val.Properties[name]; ok {
			return p, p != nil
		}
		if name == "id" {
			return val.ID, true
		}
	}
	return nil, false
}

func evalCompare(left any, present bool, cmp *plan.Compare) bool {
	switch cmp.Op {
	case plan.OpIsNull:
		return !present
	case plan.OpIsNotNull:
		return present
	}
	if !present {
		return false
	}

	switch cmp.Op {
	case plan.OpNeq:
		return !valuesEqual(left, cmp.Value)
	case plan.OpGt:
		c, ok := compareOrdered(left, cmp.Value)
		return ok && c > 0
	case plan.OpGte:
		c, ok := compareOrdered(left, cmp.Value)
		return ok && c >= 0
	case plan.OpLt:
		c, ok := compareOrdered(left, cmp.Value)
		return ok && c < 0
	case plan.OpLte:
		c, ok := compareOrdered(left, cmp.Value)
		return ok && c <= 0
	case plan.OpIn:
		members, ok := convert.ToSlice(cmp.Value)
		if !ok {
			return false
		}
		for _, m := range members {
			if valuesEqual(left, m) {
				return true
			}
		}
		return false
	case plan.OpContains:
		l, r, ok := bothStrings(left, cmp.Value)
		return ok && strings.Contains(l, r)
	case plan.OpStartsWith:
		l, r, ok := bothStrings(left, cmp.Value)
		return ok && strings.HasPrefix(l, r)
	case plan.OpEndsWith:
		l, r, ok := bothStrings(left, cmp.Value)
		return ok && strings.HasSuffix(l, r)
	default:
		return valuesEqual(left, cmp.Value)
	}
}

// valuesEqual compares two property values the way Cypher's = does:
// numbers compare numerically across int/float representations, but a
// string never equals a number and nothing equals null.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	if fa, fb, ok := bothNumeric(a, b); ok {
		return fa == fb
	}
	if sa, sb, ok := bothStrings(a, b); ok {
		return sa == sb
	}
	if ba, ok := a.(bool); ok {
		bb, ok2 := b.(bool)
		return ok2 && ba == bb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok2 := b.(time.Time)
		return ok2 && ta.Equal(tb)
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b) &&
		fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b)
}

// compareOrdered orders two values: numerics numerically, strings
// lexicographically, times chronologically. Mixed or unordered types
// return ok=false, which fails the comparison, matching the null
// outcome of the equivalent Cypher expression.
func compareOrdered(a, b any) (int, bool) {
	if fa, fb, ok := bothNumeric(a, b); ok {
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	if sa, sb, ok := bothStrings(a, b); ok {
		return strings.Compare(sa, sb), true
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok2 := b.(time.Time); ok2 {
			switch {
			case ta.Before(tb):
				return -1, true
			case ta.After(tb):
				return 1, true
			default:
				return 0, true
			}
		}
	}
	return 0, false
}

// bothNumeric coerces both values to float64 unless either is a string:
// int64(3) matches 3.0, but "3" never matches 3.
func bothNumeric(a, b any) (float64, float64, bool) {
	if _, isStr := a.(string); isStr {
		return 0, 0, false
	}
	if _, isStr := b.(string); isStr {
		return 0, 0, false
	}
	fa, ok := convert.ToFloat64(a)
	if !ok {
		return 0, 0, false
	}
	fb, ok := convert.ToFloat64(b)
	if !ok {
		return 0, 0, false
	}
	return fa, fb, true
}

func bothStrings(a, b any) (string, string, bool) {
	sa, ok := a.(string)
	if !ok {
		return "", "", false
	}
	sb, ok := b.(string)
	if !ok {
		return "", "", false
	}
	return sa, sb, true
}

// valueKey fingerprints a binding value for distinct checks and set
// operations. Nodes and edges key by id, paths by their id sequence.
func valueKey(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case *storage.Node:
		if val == nil {
			return "null"
		}
		return "n:" + val.ID
	case *storage.Edge:
		if val == nil {
			return "null"
		}
		return "e:" + val.ID
	case []*storage.Edge:
		ids := make([]string, len(val))
		for i, e := range val {
			ids[i] = e.ID
		}
		return "es:" + strings.Join(ids, ",")
	case *Path:
		if val == nil {
			return "null"
		}
		ids := make([]string, 0, len(val.Nodes)+len(val.Edges))
		for _, n := range val.Nodes {
			ids = append(ids, n.ID)
		}
		for _, e := range val.Edges {
			ids = append(ids, e.ID)
		}
		return "p:" + strings.Join(ids, ",")
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = valueKey(item)
		}
		return "l:" + strings.Join(parts, ",")
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}

// rowKey fingerprints a projected row for distinct checks.
func rowKey(row []any) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = valueKey(v)
	}
	return strings.Join(parts, "\x1f")
}

// compareForSort orders two values for OrderBy: nulls sort after
// everything ascending and before everything descending, matching the
// Cypher collation for the types both backends store.
func compareForSort(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return 1
	}
	if b == nil {
		return -1
	}
	if c, ok := compareOrdered(a, b); ok {
		return c
	}
	if ba, ok := a.(bool); ok {
		if bb, ok2 := b.(bool); ok2 {
			switch {
			case !ba && bb:
				return -1
			case ba && !bb:
				return 1
			}
		}
	}
	return 0
}

// sortPairs stably sorts pairs by the buffered order keys, in key
// order. Keys read properties off the source bindings, so user aliases
// resolved at buffering time sort compiled-identically.
func (ex *exec) sortPairs(pairs []rowPair) {
	if len(ex.orderKeys) == 0 {
		return
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		for _, k := range ex.orderKeys {
			av, _ := propertyOf(pairs[i].src[k.alias], k.property)
			bv, _ := propertyOf(pairs[j].src[k.alias], k.property)
			c := compareForSort(av, bv)
			if k.descending {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}
