// Set operations: union, intersect and fork.

package engine

import (
	"github.com/biplanedb/biplane/pkg/plan"
)

func (ex *exec) execBranch(b *plan.BranchStep) error {
	if b.Op == plan.BranchIntersect {
		return ex.execIntersect(b)
	}
	return ex.execUnion(b)
}

// execUnion runs each branch as a full independent plan and
// concatenates the branch results in branch order under the single
// "result" column, as the compiled UNION arms do. Distinct keeps the
// first occurrence of each value.
func (ex *exec) execUnion(b *plan.BranchStep) error {
	var values []any
	for _, bp := range b.Branches {
		sub := &exec{eng: ex.eng, plan: bp, rows: []binding{{}}}
		if err := sub.runSteps(bp.Steps); err != nil {
			return err
		}
		values = append(values, sub.branchValues(bp)...)
	}

	if b.Distinct {
		seen := make(map[string]bool, len(values))
		deduped := values[:0:0]
		for _, v := range values {
			key := valueKey(v)
			if seen[key] {
				continue
			}
			seen[key] = true
			deduped = append(deduped, v)
		}
		values = deduped
	}

	ex.unionRows = values
	ex.returnDone = true
	ex.rows = nil
	return nil
}

// branchValues projects a finished branch scope onto its result alias,
// applying the branch's own distinct, order, skip and limit the way a
// compiled arm's RETURN and tail do.
func (sub *exec) branchValues(bp *plan.Plan) []any {
	var pairs []rowPair
	if sub.returnDone {
		for _, v := range sub.unionRows {
			pairs = append(pairs, rowPair{src: binding{}, out: []any{v}})
		}
	} else {
		pairs = sub.projectAliases([]string{branchResultAlias(bp)})
	}
	pairs = sub.applyTail(pairs, sub.distinct)

	values := make([]any, len(pairs))
	for i, p := range pairs {
		values[i] = p.out[0]
	}
	return values
}

// execIntersect keeps the first branch's rows whose result value every
// later branch also produces. The compiled form re-matches the carried
// variable behind a WITH; re-matching a bound node keeps exactly the
// rows whose node the branch can reach, which is the same membership
// test this id-set intersection performs. First-branch order survives.
//
// OrderBy, skip and limit inside intersect branches are dropped, as the
// compiled form drops them.
func (ex *exec) execIntersect(b *plan.BranchStep) error {
	if len(b.Branches) < 2 {
		return errIntersectArity(len(b.Branches))
	}

	first := b.Branches[0]
	sub := &exec{eng: ex.eng, plan: first, rows: []binding{{}}}
	if err := sub.runSteps(first.Steps); err != nil {
		return err
	}
	carried := branchResultAlias(first)

	rows := make([]binding, 0, len(sub.rows))
	for _, row := range sub.rows {
		rows = append(rows, binding{carried: row[carried]})
	}

	for _, bp := range b.Branches[1:] {
		bsub := &exec{eng: ex.eng, plan: bp, rows: []binding{{}}}
		if err := bsub.runSteps(bp.Steps); err != nil {
			return err
		}
		alias := branchResultAlias(bp)
		member := make(map[string]bool, len(bsub.rows))
		for _, row := range bsub.rows {
			member[valueKey(row[alias])] = true
		}

		kept := rows[:0]
		for _, row := range rows {
			if member[valueKey(row[carried])] {
				kept = append(kept, row)
			}
		}
		rows = kept
	}

	ex.rows = rows
	ex.carried = carried
	ex.resultCol = "result"
	if b.Distinct {
		ex.distinct = true
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

// execFork expands each row through every branch in order. A branch
// either matches as a whole, multiplying the row by its matches, or
// contributes null bindings for every alias it allocates, so the source
// row always survives, matching the compiled all-OPTIONAL form. Later
// branches expand the rows earlier branches produced, so independent
// branch matches combine row-wise.
func (ex *exec) execFork(f *plan.ForkStep) error {
	for _, br := range f.Branches {
		ex.hoistTail(br.Steps)
		aliases := branchAliases(br.Steps)

		var out []binding
		for _, row := range ex.rows {
			sub := &exec{eng: ex.eng, plan: ex.plan, rows: []binding{row.clone()}}
			if err := sub.runSteps(br.Steps); err != nil {
				return err
			}
			if len(sub.rows) == 0 {
				out = append(out, nullExtend(row, aliases...))
				continue
			}
			out = append(out, sub.rows...)
		}
		ex.rows = out
	}
	return nil
}

// hoistTail lifts tail steps and depth captures found inside fork
// branch steps into the parent scope, where the compiler buffers them.
func (ex *exec) hoistTail(steps []plan.Step) {
	for _, s := range steps {
		switch s.Kind {
		case plan.StepOrderBy:
			ex.orderKeys = append(ex.orderKeys, orderKey{
				alias:      ex.resolve(s.OrderBy.Alias),
				property:   s.OrderBy.Property,
				descending: s.OrderBy.Descending,
			})
		case plan.StepLimit:
			ex.limit = s.Limit
		case plan.StepSkip:
			ex.skip = s.Skip
		case plan.StepDistinct:
			ex.distinct = true
		case plan.StepHierarchy:
			if s.Hierarchy.DepthAlias != "" {
				ex.depthCols = append(ex.depthCols, s.Hierarchy.DepthAlias)
			}
		case plan.StepFork:
			for _, nested := range s.Fork.Branches {
				ex.hoistTail(nested.Steps)
			}
		}
	}
}

// branchAliases lists every alias a fork branch's steps bind, for
// null-filling rows the branch cannot match.
func branchAliases(steps []plan.Step) []string {
	var out []string
	add := func(names ...string) {
		for _, n := range names {
			if n != "" {
				out = append(out, n)
			}
		}
	}
	for _, s := range steps {
		switch s.Kind {
		case plan.StepMatch:
			add(s.Match.Alias)
		case plan.StepTraversal:
			add(s.Traversal.EdgeAlias, s.Traversal.ToAlias, s.Traversal.PathAlias)
		case plan.StepHierarchy:
			add(s.Hierarchy.ToAlias, s.Hierarchy.SiblingVia, s.Hierarchy.PathAlias, s.Hierarchy.DepthAlias)
		case plan.StepReachable:
			add(s.Reachable.ToAlias)
		case plan.StepFork:
			for _, nested := range s.Fork.Branches {
				out = append(out, branchAliases(nested.Steps)...)
			}
		}
	}
	return out
}
