// Projection: turning the final row set into a Result. The ladder rungs
// and their priority mirror the compiler's RETURN emission exactly
// (count, exists, aggregate, multi-node, explicit fields, depth-inclusive,
// default), and the tail applies in the compiled clause order: project,
// distinct, sort, skip, limit.

package engine

import (
	"github.com/biplanedb/biplane/pkg/convert"
	"github.com/biplanedb/biplane/pkg/plan"
	"github.com/biplanedb/biplane/pkg/storage"
)

// rowPair keeps a projected row next to the bindings it came from, so
// the sort keys can still read properties after projection.
type rowPair struct {
	src binding
	out []any
}

func (ex *exec) finish(proj *plan.Projection) (*Result, error) {
	if ex.returnDone {
		return ex.finishUnion(), nil
	}

	subject := ex.subjectAlias(proj)
	dis := ex.distinct || (proj != nil && proj.Distinct)

	var columns []string
	var pairs []rowPair

	switch {
	case proj != nil && proj.Kind == plan.ProjectCount:
		columns = []string{"count"}
		pairs = []rowPair{{src: binding{}, out: []any{ex.countAlias(subject, dis)}}}
		dis = false

	case proj != nil && proj.Kind == plan.ProjectExists:
		columns = []string{"exists"}
		pairs = []rowPair{{src: binding{}, out: []any{ex.countAlias(subject, false) > 0}}}
		dis = false

	case proj != nil && proj.Kind == plan.ProjectAggregate && proj.Aggregate != nil:
		columns = []string{"value"}
		target := subject
		if proj.Aggregate.Alias != "" {
			target = ex.resolve(proj.Aggregate.Alias)
		}
		pairs = []rowPair{{src: binding{}, out: []any{ex.aggregate(proj.Aggregate, target, dis)}}}
		dis = false

	case proj != nil && proj.Kind == plan.ProjectMultiNode && len(proj.Aliases) > 0:
		columns = proj.Aliases
		pairs = ex.projectMultiNode(proj, dis)
		dis = false

	case proj != nil && proj.Kind == plan.ProjectPath:
		columns = []string{subject}
		pairs = ex.projectAliases([]string{subject})

	case proj != nil && len(proj.Fields) > 0:
		columns = proj.Fields
		pairs = make([]rowPair, len(ex.rows))
		for i, row := range ex.rows {
			out := make([]any, len(proj.Fields))
			for j, f := range proj.Fields {
				out[j], _ = propertyOf(row[subject], f)
			}
			pairs[i] = rowPair{src: row, out: out}
		}

	case len(ex.depthCols) > 0:
		columns = append([]string{ex.resultColumn(subject)}, ex.depthCols...)
		pairs = make([]rowPair, len(ex.rows))
		for i, row := range ex.rows {
			out := make([]any, 0, 1+len(ex.depthCols))
			out = append(out, row[subject])
			for _, name := range ex.depthCols {
				out = append(out, row[name])
			}
			pairs[i] = rowPair{src: row, out: out}
		}

	default:
		columns = []string{ex.resultColumn(subject)}
		pairs = ex.projectAliases([]string{subject})
	}

	pairs = ex.applyTail(pairs, dis)

	rows := make([][]any, len(pairs))
	for i, p := range pairs {
		rows[i] = p.out
	}
	return &Result{Columns: columns, Rows: rows, ResultType: ex.plan.ResultType()}, nil
}

// applyTail deduplicates, sorts and paginates projected rows in the
// compiled clause order.
func (ex *exec) applyTail(pairs []rowPair, dis bool) []rowPair {
	if dis {
		pairs = dedupePairs(pairs)
	}
	ex.sortPairs(pairs)
	return skipLimit(pairs, ex.skip, ex.limit)
}

func dedupePairs(pairs []rowPair) []rowPair {
	seen := make(map[string]bool, len(pairs))
	out := pairs[:0:0]
	for _, p := range pairs {
		key := rowKey(p.out)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

func skipLimit(pairs []rowPair, skip, limit *int64) []rowPair {
	if skip != nil {
		n := int(*skip)
		if n >= len(pairs) {
			pairs = nil
		} else if n > 0 {
			pairs = pairs[n:]
		}
	}
	if limit != nil && *limit >= 0 && int64(len(pairs)) > *limit {
		pairs = pairs[:int(*limit)]
	}
	return pairs
}

func (ex *exec) projectAliases(aliases []string) []rowPair {
	pairs := make([]rowPair, len(ex.rows))
	for i, row := range ex.rows {
		out := make([]any, len(aliases))
		for j, a := range aliases {
			out[j] = row[a]
		}
		pairs[i] = rowPair{src: row, out: out}
	}
	return pairs
}

// projectMultiNode renders one column per projected alias. Collected
// aliases aggregate into arrays grouped by the remaining columns, the
// way collect() groups in Cypher: nulls are skipped, and with distinct
// each array holds unique values.
func (ex *exec) projectMultiNode(proj *plan.Projection, dis bool) []rowPair {
	collected := make(map[string]bool, len(proj.CollectAliases))
	for _, name := range proj.CollectAliases {
		collected[name] = true
	}
	internals := make([]string, len(proj.Aliases))
	for i, name := range proj.Aliases {
		internals[i] = ex.resolve(name)
	}

	if len(proj.CollectAliases) == 0 {
		return ex.projectAliases(internals)
	}

	type group struct {
		src  binding
		out  []any
		seen []map[string]bool
	}
	var order []string
	groups := make(map[string]*group)

	for _, row := range ex.rows {
		key := ""
		for i, name := range proj.Aliases {
			if !collected[name] {
				key += valueKey(row[internals[i]]) + "\x1f"
			}
		}
		g, ok := groups[key]
		if !ok {
			g = &group{src: row, out: make([]any, len(proj.Aliases)), seen: make([]map[string]bool, len(proj.Aliases))}
			for i, name := range proj.Aliases {
				if collected[name] {
					g.out[i] = []any{}
					g.seen[i] = make(map[string]bool)
				} else {
					g.out[i] = row[internals[i]]
				}
			}
			groups[key] = g
			order = append(order, key)
		}
		for i, name := range proj.Aliases {
			if !collected[name] {
				continue
			}
			v := row[internals[i]]
			if v == nil {
				continue // collect() drops nulls
			}
			if dis {
				k := valueKey(v)
				if g.seen[i][k] {
					continue
				}
				g.seen[i][k] = true
			}
			g.out[i] = append(g.out[i].([]any), v)
		}
	}

	pairs := make([]rowPair, 0, len(order))
	for _, key := range order {
		g := groups[key]
		pairs = append(pairs, rowPair{src: g.src, out: g.out})
	}
	return pairs
}

// countAlias counts rows with a non-null binding for the alias,
// optionally distinct by value.
func (ex *exec) countAlias(alias string, distinct bool) int64 {
	if distinct {
		seen := make(map[string]bool)
		for _, row := range ex.rows {
			if v := row[alias]; !isNullValue(v) {
				seen[valueKey(v)] = true
			}
		}
		return int64(len(seen))
	}
	var n int64
	for _, row := range ex.rows {
		if !isNullValue(row[alias]) {
			n++
		}
	}
	return n
}

// aggregate computes one scalar over the target alias. Aggregates skip
// null inputs the way Cypher's do; sum of nothing is 0, every other
// function of nothing is null.
func (ex *exec) aggregate(spec *plan.AggregateSpec, target string, distinct bool) any {
	if spec.Func == plan.AggCount {
		return ex.countAlias(target, distinct)
	}

	var values []any
	seen := make(map[string]bool)
	for _, row := range ex.rows {
		v := row[target]
		if isNullValue(v) {
			continue
		}
		if spec.Property != "" {
			p, present := propertyOf(v, spec.Property)
			if !present {
				continue
			}
			v = p
		}
		if distinct {
			k := valueKey(v)
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		values = append(values, v)
	}

	switch spec.Func {
	case plan.AggCollect:
		if values == nil {
			return []any{}
		}
		return values
	case plan.AggSum:
		var sum float64
		for _, v := range values {
			if f, ok := convert.ToFloat64(v); ok {
				sum += f
			}
		}
		return sum
	case plan.AggAvg:
		var sum float64
		var n int
		for _, v := range values {
			if f, ok := convert.ToFloat64(v); ok {
				sum += f
				n++
			}
		}
		if n == 0 {
			return nil
		}
		return sum / float64(n)
	case plan.AggMin, plan.AggMax:
		return minMax(values, spec.Func == plan.AggMax)
	default:
		return nil
	}
}

// minMax picks the extreme value: numerically when the values coerce,
// lexicographically over the strings otherwise.
func minMax(values []any, max bool) any {
	var bestNum *float64
	var bestStr *string
	for _, v := range values {
		if f, ok := convert.ToFloat64(v); ok {
			if _, isStr := v.(string); !isStr {
				if bestNum == nil || (max && f > *bestNum) || (!max && f < *bestNum) {
					f := f
					bestNum = &f
				}
				continue
			}
		}
		if s, ok := v.(string); ok {
			if bestStr == nil || (max && s > *bestStr) || (!max && s < *bestStr) {
				s := s
				bestStr = &s
			}
		}
	}
	if bestNum != nil {
		return *bestNum
	}
	if bestStr != nil {
		return *bestStr
	}
	return nil
}

// finishUnion builds the result a union step already assembled: one
// "result" column, with the tail steps recorded after the branch step
// applied on top.
func (ex *exec) finishUnion() *Result {
	pairs := make([]rowPair, len(ex.unionRows))
	for i, v := range ex.unionRows {
		pairs[i] = rowPair{src: binding{}, out: []any{v}}
	}
	pairs = ex.applyTail(pairs, ex.distinct)

	rows := make([][]any, len(pairs))
	for i, p := range pairs {
		rows[i] = p.out
	}
	return &Result{Columns: []string{"result"}, Rows: rows, ResultType: ex.plan.ResultType()}
}

// subjectAlias picks the projection subject the way the compiler does:
// the projected alias when named, else the plan's final node, else the
// alias carried out of an intersect chain.
func (ex *exec) subjectAlias(proj *plan.Projection) string {
	if proj != nil && proj.Alias != "" {
		return ex.resolve(proj.Alias)
	}
	if ex.plan.CurrentAlias != "" {
		return ex.plan.CurrentAlias
	}
	if ex.carried != "" {
		return ex.carried
	}
	return "n0"
}

// resultColumn names the column a bare alias return produces: the
// forced set-op column when one is active, the alias itself otherwise.
func (ex *exec) resultColumn(subject string) string {
	if ex.resultCol != "" {
		return ex.resultCol
	}
	return subject
}

// isNullValue treats nil and typed-nil bindings as null.
func isNullValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case *storage.Node:
		return val == nil
	case *storage.Edge:
		return val == nil
	case *Path:
		return val == nil
	default:
		return false
	}
}
