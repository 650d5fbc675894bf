package engine

import (
	"github.com/biplanedb/biplane/pkg/plan"
	"github.com/biplanedb/biplane/pkg/storage"
)

// Result is the engine's answer to one plan: named columns and rows of
// values. Column names mirror the compiled query's RETURN clause:
// internal aliases for bare returns, user names for multi-node
// projections, and the fixed names "result", "count", "exists" and
// "value" for set operations and aggregates. Callers can consume either
// backend's output the same way.
//
// Row values are *storage.Node, *storage.Edge, *Path, scalars, or nil
// for optional misses.
type Result struct {
	Columns    []string        `json:"columns"`
	Rows       [][]any         `json:"rows"`
	ResultType plan.ResultType `json:"resultType"`
}

// Len returns the row count.
func (r *Result) Len() int {
	return len(r.Rows)
}

// Empty reports whether the result has no rows.
func (r *Result) Empty() bool {
	return len(r.Rows) == 0
}

// Column returns the index of the named column, -1 when absent.
func (r *Result) Column(name string) int {
	for i, c := range r.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// First returns the first row, nil when empty.
func (r *Result) First() []any {
	if len(r.Rows) == 0 {
		return nil
	}
	return r.Rows[0]
}

// Scalar returns the first value of the first row. The second return is
// false when the result is empty. Count, exists and aggregate results
// carry their value here.
func (r *Result) Scalar() (any, bool) {
	if len(r.Rows) == 0 || len(r.Rows[0]) == 0 {
		return nil, false
	}
	return r.Rows[0][0], true
}

// Nodes extracts the node values of the first column, skipping nulls
// and non-node values. This is the common read for single-alias plans.
func (r *Result) Nodes() []*storage.Node {
	out := make([]*storage.Node, 0, len(r.Rows))
	for _, row := range r.Rows {
		if len(row) == 0 {
			continue
		}
		if n, ok := row[0].(*storage.Node); ok {
			out = append(out, n)
		}
	}
	return out
}

// Path is a bound traversal path: the node sequence and the edges
// between them. Len (the edge count) is what a depth capture reports.
type Path struct {
	Nodes []*storage.Node `json:"nodes"`
	Edges []*storage.Edge `json:"edges"`
}

// Len returns the path length in edges.
func (p *Path) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Edges)
}

// Start returns the first node of the path, nil when empty.
func (p *Path) Start() *storage.Node {
	if p == nil || len(p.Nodes) == 0 {
		return nil
	}
	return p.Nodes[0]
}

// End returns the last node of the path, nil when empty.
func (p *Path) End() *storage.Node {
	if p == nil || len(p.Nodes) == 0 {
		return nil
	}
	return p.Nodes[len(p.Nodes)-1]
}
