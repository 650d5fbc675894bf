// Package engine interprets query plans directly against the in-memory
// graph store.
//
// The engine is the second execution backend: it consumes the identical
// plan the Cypher compiler consumes and must match the compiled
// backend's observable semantics for every step kind: traversal
// direction, variable-length and hierarchy bounds, cycle avoidance, set
// operations and the projection ladder. Where the two backends cannot
// agree (cross-backend row ordering without an explicit OrderBy), the
// divergence is documented rather than papered over.
//
// Execution is a row pipeline. A row is a set of bindings from internal
// alias to a node, edge, path or depth value; each step transforms the
// row set, and the projection ladder turns the final rows into a
// Result whose columns mirror the compiled query's RETURN clause.
//
// Everything completes synchronously. Execute takes a context purely
// for contract uniformity with the network-backed driver; there is no
// internal cancellation.
//
// Example:
//
//	p, _ := plan.NewBuilder().
//		MatchByID("u1").
//		Traverse(plan.TraversalSpec{Edges: []string{"authored"}}).
//		Plan()
//
//	eng := engine.New(store)
//	res, _ := eng.Execute(ctx, p)
//	for _, post := range res.Nodes() {
//		fmt.Println(post.ID)
//	}
package engine

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/biplanedb/biplane/pkg/plan"
	"github.com/biplanedb/biplane/pkg/storage"
)

// Engine executes plans against one store. It holds no mutable state of
// its own; concurrent Execute calls are as safe as the store's reads.
type Engine struct {
	store *storage.Store
}

// New returns an engine over the given store.
func New(store *storage.Store) *Engine {
	return &Engine{store: store}
}

// Store returns the underlying store.
func (e *Engine) Store() *storage.Store {
	return e.store
}

// Execute interprets one plan and returns its result. The plan must
// have passed builder validation; unknown aliases at this point read as
// null bindings rather than failing.
func (e *Engine) Execute(ctx context.Context, p *plan.Plan) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ex := &exec{eng: e, plan: p, rows: []binding{{}}}
	if err := ex.runSteps(p.Steps); err != nil {
		return nil, err
	}
	res, err := ex.finish(p.Projection)
	if err != nil {
		return nil, err
	}

	log.Debug("engine execute", "steps", len(p.Steps), "rows", len(res.Rows), "result", res.ResultType)
	return res, nil
}

// binding is one pipeline row: internal alias to its bound value. Values
// are *storage.Node, *storage.Edge, []*storage.Edge (variable-length
// hops), *Path, int64 (captured depths) or nil for optional misses.
type binding map[string]any

func (b binding) clone() binding {
	out := make(binding, len(b)+2)
	for k, v := range b {
		out[k] = v
	}
	return out
}

// orderKey is one buffered sort key; keys compose in step order.
type orderKey struct {
	alias      string
	property   string
	descending bool
}

// exec is one interpretation scope. Union arms and fork branches run in
// child scopes over the same store; the tail buffers (order keys, skip,
// limit, distinct) mirror the compiler's, applied after row production.
type exec struct {
	eng  *Engine
	plan *plan.Plan

	rows []binding

	orderKeys []orderKey
	skip      *int64
	limit     *int64
	distinct  bool

	// resultCol forces the output column name after a set operation,
	// mirroring the compiled "AS result".
	resultCol string
	// carried is the alias an intersect chain carried through.
	carried string

	// unionRows holds the single-column values a union step produced;
	// returnDone marks that the projection ladder must not run.
	unionRows  []any
	returnDone bool

	// depthCols lists depth column names registered by hierarchy steps,
	// in registration order.
	depthCols []string
}

func (ex *exec) runSteps(steps []plan.Step) error {
	for _, step := range steps {
		var err error
		switch step.Kind {
		case plan.StepMatch:
			ex.execMatch(step.Match)
		case plan.StepTraversal:
			err = ex.execTraversal(step.Traversal)
		case plan.StepWhere:
			err = ex.execWhere(step.Where)
		case plan.StepHierarchy:
			ex.execHierarchy(step.Hierarchy)
		case plan.StepReachable:
			ex.execReachable(step.Reachable)
		case plan.StepBranch:
			err = ex.execBranch(step.Branch)
		case plan.StepFork:
			err = ex.execFork(step.Fork)
		case plan.StepOrderBy:
			ex.orderKeys = append(ex.orderKeys, orderKey{
				alias:      ex.resolve(step.OrderBy.Alias),
				property:   step.OrderBy.Property,
				descending: step.OrderBy.Descending,
			})
		case plan.StepLimit:
			ex.limit = step.Limit
		case plan.StepSkip:
			ex.skip = step.Skip
		case plan.StepDistinct:
			ex.distinct = true
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// resolve maps a user alias to its internal alias. Unknown names pass
// through: validation ran at build time, so anything left is internal.
func (ex *exec) resolve(name string) string {
	if internal, ok := ex.plan.Resolve(name); ok {
		return internal
	}
	return name
}

// node reads a row's binding as a node, nil when unbound or not a node.
func (row binding) node(alias string) *storage.Node {
	n, _ := row[alias].(*storage.Node)
	return n
}
