// Pattern emission: MATCH clauses for match, traversal, hierarchy and
// reachability steps.

package cypher

import (
	"fmt"
	"strings"

	"github.com/biplanedb/biplane/pkg/plan"
)

func (st *state) matchKeyword(optional bool) string {
	if optional || st.forceOptional {
		return "OPTIONAL MATCH "
	}
	return "MATCH "
}

// nodePattern renders (alias:label {id: $pN}), omitting the parts that
// are empty. The id filter registers a parameter.
func (st *state) nodePattern(alias, label, id string) string {
	var b strings.Builder
	b.WriteByte('(')
	b.WriteString(st.alias(alias))
	if label != "" {
		b.WriteByte(':')
		b.WriteString(label)
	}
	if id != "" {
		b.WriteString(" {id: ")
		b.WriteString(st.sh.param(id))
		b.WriteByte('}')
	}
	b.WriteByte(')')
	return b.String()
}

// edgeBody renders [alias:T1|T2*min..max]. Alias, types and the
// variable-length suffix are each optional.
func edgeBody(alias string, types []string, suffix string) string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(alias)
	if len(types) > 0 {
		b.WriteByte(':')
		b.WriteString(strings.Join(types, "|"))
	}
	b.WriteString(suffix)
	b.WriteByte(']')
	return b.String()
}

// arrow wraps an edge body in direction-correct arrows.
func arrow(dir plan.Direction, edge string) string {
	switch dir {
	case plan.DirectionIn:
		return "<-" + edge + "-"
	case plan.DirectionBoth:
		return "-" + edge + "-"
	default:
		return "-" + edge + "->"
	}
}

// varLenSuffix renders *min..max; an unset max leaves the range open.
func varLenSuffix(v *plan.VarLength) string {
	if v == nil {
		return ""
	}
	if v.Max <= 0 {
		return fmt.Sprintf("*%d..", v.Min)
	}
	return fmt.Sprintf("*%d..%d", v.Min, v.Max)
}

func (st *state) emitMatch(m *plan.MatchStep) {
	st.sh.matchCount++
	st.clause(st.matchKeyword(false) + st.nodePattern(m.Alias, m.Label, m.ID))
}

func (st *state) emitTraversal(t *plan.TraversalStep) error {
	st.sh.matchCount++
	if t.VarLength != nil {
		st.sh.varLenCount++
	}

	edge := edgeBody(st.alias(t.EdgeAlias), t.Edges, varLenSuffix(t.VarLength))
	toLabel := ""
	if len(t.ToLabels) == 1 {
		toLabel = t.ToLabels[0]
	}
	pattern := "(" + st.alias(t.FromAlias) + ")" + arrow(t.Direction, edge) + st.nodePattern(t.ToAlias, toLabel, "")
	if t.PathAlias != "" {
		pattern = st.alias(t.PathAlias) + " = " + pattern
	}
	st.clause(st.matchKeyword(t.Optional) + pattern)

	var filters []string
	if len(t.ToLabels) > 1 {
		filters = append(filters, st.labelDisjunction(t.ToAlias, t.ToLabels))
	}
	if len(t.EdgeWhere) > 0 {
		// A variable-length alias binds a relationship list, so the filter
		// quantifies over it; every edge on the path must pass, the same
		// rule the interpreter applies.
		subject := t.EdgeAlias
		if t.VarLength != nil {
			subject = "x"
		}
		expr, err := st.renderConditions(t.EdgeWhere, subject, " AND ")
		if err != nil {
			return err
		}
		if t.VarLength != nil {
			expr = "ALL(" + st.alias(subject) + " IN " + st.alias(t.EdgeAlias) + " WHERE " + expr + ")"
		}
		filters = append(filters, expr)
	}
	if len(filters) > 0 {
		st.whereClause(strings.Join(filters, " AND "))
	}
	return nil
}

// labelDisjunction renders (n1:post OR n1:article) for traversals that
// accept several target labels; a single label goes inline in the node
// pattern instead.
func (st *state) labelDisjunction(alias string, labels []string) string {
	a := st.alias(alias)
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = a + ":" + l
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// emitHierarchy lowers tree navigation over the designated hierarchy
// edge type. The edge points child to parent, so parent and ancestors
// read outward and children and descendants read inward.
func (st *state) emitHierarchy(h *plan.HierarchyStep) {
	st.sh.matchCount++

	from := "(" + st.alias(h.FromAlias) + ")"
	to := "(" + st.alias(h.ToAlias) + ")"
	hop := edgeBody("", []string{h.EdgeType}, "")

	var pattern, filter string
	switch h.Mode {
	case plan.HierarchyChildren:
		pattern = from + arrow(plan.DirectionIn, hop) + to

	case plan.HierarchyAncestors:
		st.sh.varLenCount++
		pattern = from + arrow(plan.DirectionOut, edgeBody("", []string{h.EdgeType}, depthSuffix(h))) + to

	case plan.HierarchyDescendants:
		st.sh.varLenCount++
		pattern = from + arrow(plan.DirectionIn, edgeBody("", []string{h.EdgeType}, depthSuffix(h))) + to

	case plan.HierarchySiblings:
		via := "(" + st.alias(h.SiblingVia) + ")"
		pattern = from + arrow(plan.DirectionOut, hop) + via + arrow(plan.DirectionIn, hop) + to
		filter = st.alias(h.ToAlias) + " <> " + st.alias(h.FromAlias)

	case plan.HierarchyRoot:
		st.sh.varLenCount++
		pattern = from + arrow(plan.DirectionOut, edgeBody("", []string{h.EdgeType}, "*0..")) + to
		filter = "NOT " + to + arrow(plan.DirectionOut, hop) + "()"

	default: // HierarchyParent
		pattern = from + arrow(plan.DirectionOut, hop) + to
	}

	if h.PathAlias != "" || h.DepthAlias != "" {
		pathAlias := h.PathAlias
		if pathAlias == "" {
			pathAlias = fmt.Sprintf("hp%d", st.sh.pathSeq)
			st.sh.pathSeq++
		}
		pattern = st.alias(pathAlias) + " = " + pattern
		if h.DepthAlias != "" {
			st.depthCols = append(st.depthCols, depthCol{
				name: h.DepthAlias,
				expr: "length(" + st.alias(pathAlias) + ")",
			})
		}
	}

	st.clause(st.matchKeyword(false) + pattern)
	if filter != "" {
		st.whereClause(filter)
	}
}

// depthSuffix renders the variable-length bounds of an ancestors or
// descendants walk. Include-self lowers the minimum to zero; an unset
// maximum leaves the range open.
func depthSuffix(h *plan.HierarchyStep) string {
	min := h.MinDepth
	if h.IncludeSelf {
		min = 0
	} else if min < 1 {
		min = 1
	}
	if h.MaxDepth <= 0 {
		return fmt.Sprintf("*%d..", min)
	}
	return fmt.Sprintf("*%d..%d", min, h.MaxDepth)
}

// emitReachable lowers a transitive closure to an anonymous
// variable-length pattern. Multiple paths to one node would duplicate
// the binding, so the result is always DISTINCT.
func (st *state) emitReachable(r *plan.ReachableStep) {
	st.sh.matchCount++
	st.sh.varLenCount++

	var suffix string
	if r.MaxHops <= 0 {
		suffix = fmt.Sprintf("*%d..", r.MinHops)
	} else {
		suffix = fmt.Sprintf("*%d..%d", r.MinHops, r.MaxHops)
	}
	edge := edgeBody("", r.Edges, suffix)
	pattern := "(" + st.alias(r.FromAlias) + ")" + arrow(r.Direction, edge) + "(" + st.alias(r.ToAlias) + ")"

	st.clause(st.matchKeyword(false) + pattern)
	st.distinct = true
}
