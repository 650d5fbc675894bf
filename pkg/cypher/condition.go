// WHERE expression rendering and ConnectedTo promotion.

package cypher

import (
	"fmt"
	"strings"

	"github.com/biplanedb/biplane/pkg/plan"
)

// emitWhere lowers one (possibly merged) Where step. ConnectedTo
// conditions promote to their own MATCH clauses; everything else joins
// into a single AND-ed WHERE clause emitted after the promotions.
func (st *state) emitWhere(w *plan.WhereStep) error {
	var exprs []string
	for _, c := range w.Conditions {
		if c.Kind == plan.CondConnectedTo {
			st.emitConnectedTo(c, w.Alias)
			continue
		}
		expr, err := st.renderCondition(c, w.Alias)
		if err != nil {
			return err
		}
		exprs = append(exprs, expr)
	}
	if len(exprs) > 0 {
		st.whereClause(strings.Join(exprs, " AND "))
	}
	return nil
}

// emitConnectedTo promotes a connected-to-id condition to an explicit
// MATCH against a fresh ct-prefixed alias. An anonymous existential
// pattern in WHERE would force the target planner to scan; a MATCH with
// an id equality starts from an indexed lookup instead.
func (st *state) emitConnectedTo(c plan.Condition, subject string) {
	st.sh.matchCount++
	if c.Alias != "" {
		subject = st.resolve(c.Alias)
	}
	target := fmt.Sprintf("ct%d", st.sh.ctSeq)
	st.sh.ctSeq++

	edge := edgeBody("", []string{c.Edge.Type}, "")
	pattern := "(" + st.alias(subject) + ")" + arrow(c.Edge.Direction, edge) +
		"(" + st.alias(target) + " {id: " + st.sh.param(c.Edge.NodeID) + "})"
	st.clause(st.matchKeyword(false) + pattern)
}

// renderConditions renders a slice of conditions joined by sep, all
// scoped to the given subject alias unless a condition names its own.
func (st *state) renderConditions(conds []plan.Condition, subject, sep string) (string, error) {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		expr, err := st.renderCondition(c, subject)
		if err != nil {
			return "", err
		}
		parts = append(parts, expr)
	}
	return strings.Join(parts, sep), nil
}

func (st *state) renderCondition(c plan.Condition, subject string) (string, error) {
	if c.Alias != "" {
		subject = st.resolve(c.Alias)
	}

	switch c.Kind {
	case plan.CondCompare:
		return st.renderCompare(subject, c.Compare), nil

	case plan.CondAnd, plan.CondOr:
		sep := " AND "
		if c.Kind == plan.CondOr {
			sep = " OR "
		}
		parts := make([]string, 0, len(c.Children))
		for _, child := range c.Children {
			if child.Kind == plan.CondConnectedTo {
				return "", errNestedConnectedTo(c.Kind.String())
			}
			expr, err := st.renderCondition(child, subject)
			if err != nil {
				return "", err
			}
			parts = append(parts, expr)
		}
		return "(" + strings.Join(parts, sep) + ")", nil

	case plan.CondNot:
		if len(c.Children) != 1 {
			return "", errNotArity(len(c.Children))
		}
		child := c.Children[0]
		if child.Kind == plan.CondConnectedTo {
			return "", errNestedConnectedTo("not")
		}
		expr, err := st.renderCondition(child, subject)
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(expr, "(") {
			return "NOT " + expr, nil
		}
		return "NOT (" + expr + ")", nil

	case plan.CondHasEdge:
		edge := edgeBody("", []string{c.Edge.Type}, "")
		return "(" + st.alias(subject) + ")" + arrow(c.Edge.Direction, edge) + "()", nil

	case plan.CondConnectedTo:
		// Top-level occurrences are promoted before rendering; reaching
		// one here means it was nested.
		return "", errNestedConnectedTo("condition")

	default:
		return "", &CompileError{Op: c.Kind.String(), Reason: "unknown condition kind"}
	}
}

func (st *state) renderCompare(subject string, cmp *plan.Compare) string {
	prop := st.alias(subject) + "." + cmp.Property
	switch cmp.Op {
	case plan.OpNeq:
		return prop + " <> " + st.sh.param(cmp.Value)
	case plan.OpGt:
		return prop + " > " + st.sh.param(cmp.Value)
	case plan.OpGte:
		return prop + " >= " + st.sh.param(cmp.Value)
	case plan.OpLt:
		return prop + " < " + st.sh.param(cmp.Value)
	case plan.OpLte:
		return prop + " <= " + st.sh.param(cmp.Value)
	case plan.OpIn:
		return prop + " IN " + st.sh.param(cmp.Value)
	case plan.OpContains:
		return prop + " CONTAINS " + st.sh.param(cmp.Value)
	case plan.OpStartsWith:
		return prop + " STARTS WITH " + st.sh.param(cmp.Value)
	case plan.OpEndsWith:
		return prop + " ENDS WITH " + st.sh.param(cmp.Value)
	case plan.OpIsNull:
		return prop + " IS NULL"
	case plan.OpIsNotNull:
		return prop + " IS NOT NULL"
	default:
		return prop + " = " + st.sh.param(cmp.Value)
	}
}
