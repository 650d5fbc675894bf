// RETURN emission: the projection priority ladder.

package cypher

import (
	"strings"

	"github.com/biplanedb/biplane/pkg/plan"
)

// emitReturn lowers the projection. The rungs apply in priority order:
// count, exists, aggregate, multi-node, explicit fields, depth-
// inclusive, default single alias. Union plans already returned per
// arm, so nothing is emitted for them here.
func (st *state) emitReturn(proj *plan.Projection) error {
	if st.returnDone {
		return nil
	}

	subject := st.alias(st.subjectAlias(proj))
	dis := st.distinct || (proj != nil && proj.Distinct)

	switch {
	case proj != nil && proj.Kind == plan.ProjectCount:
		st.sh.aggregation = true
		arg := subject
		if dis {
			arg = "DISTINCT " + subject
		}
		st.returning("RETURN count("+arg+") AS count", "count")

	case proj != nil && proj.Kind == plan.ProjectExists:
		st.sh.aggregation = true
		st.returning("RETURN count("+subject+") > 0 AS exists", "exists")

	case proj != nil && proj.Kind == plan.ProjectAggregate && proj.Aggregate != nil:
		st.sh.aggregation = true
		agg := proj.Aggregate
		target := subject
		if agg.Alias != "" {
			target = st.alias(st.resolve(agg.Alias))
		}
		arg := target
		if agg.Property != "" {
			arg = target + "." + agg.Property
		}
		if dis {
			arg = "DISTINCT " + arg
		}
		st.returning("RETURN "+string(agg.Func)+"("+arg+") AS value", "value")

	case proj != nil && proj.Kind == plan.ProjectMultiNode && len(proj.Aliases) > 0:
		collected := make(map[string]bool, len(proj.CollectAliases))
		for _, name := range proj.CollectAliases {
			collected[name] = true
		}
		parts := make([]string, 0, len(proj.Aliases))
		cols := make([]string, 0, len(proj.Aliases))
		for _, name := range proj.Aliases {
			internal := st.alias(st.resolve(name))
			if collected[name] {
				st.sh.aggregation = true
				arg := internal
				if dis {
					arg = "DISTINCT " + internal
				}
				parts = append(parts, "collect("+arg+") AS "+name)
			} else {
				parts = append(parts, internal+" AS "+name)
			}
			cols = append(cols, name)
		}
		st.returning("RETURN "+strings.Join(parts, ", "), cols...)

	case proj != nil && proj.Kind == plan.ProjectPath:
		st.returning("RETURN "+distinctPrefix(dis)+subject, subject)

	case proj != nil && len(proj.Fields) > 0:
		parts := make([]string, len(proj.Fields))
		for i, f := range proj.Fields {
			parts[i] = subject + "." + f + " AS " + f
		}
		st.returning("RETURN "+distinctPrefix(dis)+strings.Join(parts, ", "), proj.Fields...)

	case len(st.depthCols) > 0:
		parts := []string{subject}
		cols := []string{st.resultColumn(subject)}
		if st.resultCol != "" {
			parts[0] = subject + " AS " + st.resultCol
		}
		for _, d := range st.depthCols {
			parts = append(parts, d.expr+" AS "+d.name)
			cols = append(cols, d.name)
		}
		st.returning("RETURN "+distinctPrefix(dis)+strings.Join(parts, ", "), cols...)

	default:
		out := subject
		if st.resultCol != "" {
			out += " AS " + st.resultCol
		}
		st.returning("RETURN "+distinctPrefix(dis)+out, st.resultColumn(subject))
	}
	return nil
}

func (st *state) returning(clause string, cols ...string) {
	st.clause(clause)
	st.returnAliases = cols
}

// resultColumn names the column a bare alias return produces: the
// forced set-op column when one is active, the alias itself otherwise.
func (st *state) resultColumn(subject string) string {
	if st.resultCol != "" {
		return st.resultCol
	}
	return subject
}

// subjectAlias picks the projection subject: the projected alias when
// named, else the plan's final node, else the alias carried out of an
// intersect chain.
func (st *state) subjectAlias(proj *plan.Projection) string {
	if proj != nil && proj.Alias != "" {
		return st.resolve(proj.Alias)
	}
	if st.plan.CurrentAlias != "" {
		return st.plan.CurrentAlias
	}
	if st.carried != "" {
		return st.carried
	}
	return "n0"
}

func distinctPrefix(dis bool) string {
	if dis {
		return "DISTINCT "
	}
	return ""
}
