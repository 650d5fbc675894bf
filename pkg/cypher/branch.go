// Set-operation emission: union, intersect and fork.

package cypher

import (
	"fmt"

	"github.com/biplanedb/biplane/pkg/plan"
)

func (st *state) emitBranch(b *plan.BranchStep) error {
	if b.Op == plan.BranchIntersect {
		return st.emitIntersect(b)
	}
	return st.emitUnion(b)
}

// emitUnion compiles each branch as a full independent sub-query with
// its own RETURN, joined by UNION or UNION ALL. Every arm returns its
// result alias under the shared column name "result" so the arms'
// columns line up.
func (st *state) emitUnion(b *plan.BranchStep) error {
	sep := "UNION ALL"
	if b.Distinct {
		sep = "UNION"
	}
	for i, bp := range b.Branches {
		if i > 0 {
			st.sh.branchExtra++
			st.clause(sep)
		}
		sub := &state{sh: st.sh, plan: bp, forceOptional: st.forceOptional}
		if err := sub.emitSteps(bp.Steps); err != nil {
			return err
		}
		ret := "RETURN "
		if sub.distinct {
			ret += "DISTINCT "
		}
		ret += sub.alias(branchResultAlias(bp)) + " AS result"
		sub.clause(ret)
		sub.emitTail()
		st.clauses = append(st.clauses, sub.clauses...)
	}
	st.returnDone = true
	st.returnAliases = []string{"result"}
	return nil
}

// emitIntersect emulates a set intersection, which Cypher has no native
// operator for. The first branch compiles as-is and its result alias is
// carried forward through a WITH clause; every later branch compiles
// with its aliases renamed under a b<i> prefix except its result alias,
// which is unified onto the carried alias. Re-matching a bound variable
// constrains it to the same node, so each chained branch filters the
// carried set down to its own matches. One RETURN ends the chain.
func (st *state) emitIntersect(b *plan.BranchStep) error {
	if len(b.Branches) < 2 {
		return errIntersectArity(len(b.Branches))
	}

	carried := ""
	for i, bp := range b.Branches {
		sub := &state{sh: st.sh, plan: bp, forceOptional: st.forceOptional}
		if i == 0 {
			carried = branchResultAlias(bp)
		} else {
			st.sh.branchExtra++
			st.clause("WITH " + st.alias(carried))
			sub.prefix = fmt.Sprintf("b%d", i)
			sub.unify = map[string]string{branchResultAlias(bp): st.alias(carried)}
		}
		if err := sub.emitSteps(bp.Steps); err != nil {
			return err
		}
		st.clauses = append(st.clauses, sub.clauses...)
	}

	st.carried = carried
	st.resultCol = "result"
	if b.Distinct {
		st.distinct = true
	}
	return nil
}

// branchResultAlias picks the alias a branch's rows stand for: its
// projection subject when one names an alias, otherwise the node the
// branch ended on.
func branchResultAlias(bp *plan.Plan) string {
	if bp.Projection != nil && bp.Projection.Alias != "" {
		if internal, ok := bp.Resolve(bp.Projection.Alias); ok {
			return internal
		}
	}
	if bp.CurrentAlias != "" {
		return bp.CurrentAlias
	}
	return "n0"
}

// emitFork compiles fan-out continuations. Every branch pattern becomes
// OPTIONAL regardless of its original optionality: the source row must
// survive even when a branch matches nothing. Branch aliases were
// merged into the parent plan when the fork was built, so the steps
// emit in the parent scope.
func (st *state) emitFork(f *plan.ForkStep) error {
	saved := st.forceOptional
	st.forceOptional = true
	defer func() { st.forceOptional = saved }()

	for _, br := range f.Branches {
		if err := st.emitSteps(br.Steps); err != nil {
			return err
		}
	}
	return nil
}
