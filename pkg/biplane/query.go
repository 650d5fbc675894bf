package biplane

import (
	"context"
	"fmt"

	"github.com/biplanedb/biplane/pkg/engine"
	"github.com/biplanedb/biplane/pkg/plan"
	"github.com/biplanedb/biplane/pkg/storage"
)

// Query is a fluent plan under construction. It is a value, like the
// builder underneath: every method returns a new Query and the receiver
// stays usable, so a base query can branch into variants.
//
// Construction errors are sticky. The first one (an unknown label, an
// edge type the schema rejects, a misplaced ByID) shelves the query;
// the terminal methods surface it.
type Query struct {
	db   *DB
	b    plan.Builder
	proj *plan.Projection

	// pending holds a Node/NodeByID start until the first step forces
	// the match, so ByID can still fold into it.
	pending bool
	label   string
	id      string

	err error
}

// Node starts a query at all nodes with the label. An empty label
// matches every node. With a schema attached, unknown labels fail the
// query at construction.
func (db *DB) Node(label string) Query {
	q := Query{db: db, b: plan.NewBuilder(), pending: true, label: label}
	if db.schema != nil && label != "" && !db.schema.HasLabel(label) {
		q.err = &UnknownLabelError{Label: label}
	}
	return q
}

// NodeByID starts a query at the single node with the id. Ids are
// globally unique, so no label is needed.
func (db *DB) NodeByID(id string) Query {
	return Query{db: db, b: plan.NewBuilder(), pending: true, id: id}
}

// ByID narrows a Node start to one id. It must directly follow Node.
func (q Query) ByID(id string) Query {
	if q.err != nil {
		return q
	}
	if !q.pending {
		q.err = fmt.Errorf("biplane: ByID must directly follow Node")
		return q
	}
	q.id = id
	return q
}

// flush emits the pending match step.
func (q Query) flush() Query {
	if !q.pending {
		return q
	}
	q.pending = false
	switch {
	case q.id != "" && q.label != "":
		q.b = q.b.MatchByID(q.id, q.label)
	case q.id != "":
		q.b = q.b.MatchByID(q.id)
	default:
		q.b = q.b.Match(q.label)
	}
	return q
}

// Where filters the current nodes. Conditions without an explicit
// target apply to the current alias.
func (q Query) Where(conds ...plan.Condition) Query {
	q = q.flush()
	if q.err != nil {
		return q
	}
	q.b = q.b.Where(conds...)
	return q
}

// As names the current node so projections and later conditions can
// reference it.
func (q Query) As(name string) Query {
	q = q.flush()
	if q.err != nil {
		return q
	}
	q.b = q.b.As(name)
	return q
}

// To traverses outgoing edges of the type to any number of targets.
// ToOne and ToMaybe are the one and zero-or-one forms; which applies
// follows from the edge's declared outbound cardinality.
//
// With a schema attached, an undefined edge type fails the query, and
// when no target label is given the edge definition's supplies one.
func (q Query) To(edgeType string, toLabel ...string) Query {
	return q.traverse(edgeType, plan.DirectionOut, plan.CardinalityMany, toLabel)
}

// ToOne traverses an outgoing edge declared to always exist: exactly
// one target per source.
func (q Query) ToOne(edgeType string, toLabel ...string) Query {
	return q.traverse(edgeType, plan.DirectionOut, plan.CardinalityOne, toLabel)
}

// ToMaybe traverses an outgoing edge that may be absent. Sources
// without the edge survive with a null binding.
func (q Query) ToMaybe(edgeType string, toLabel ...string) Query {
	return q.traverse(edgeType, plan.DirectionOut, plan.CardinalityMaybe, toLabel)
}

// In traverses incoming edges of the type: the nodes pointing at the
// current ones.
func (q Query) In(edgeType string, fromLabel ...string) Query {
	return q.traverse(edgeType, plan.DirectionIn, plan.CardinalityMany, fromLabel)
}

func (q Query) traverse(edgeType string, dir plan.Direction, card plan.Cardinality, labels []string) Query {
	q = q.flush()
	if q.err != nil {
		return q
	}
	spec := plan.TraversalSpec{
		Direction:   dir,
		Cardinality: card,
		ToLabels:    labels,
	}
	if edgeType != "" {
		spec.Edges = []string{edgeType}
	}
	if v := q.db.schema; v != nil && edgeType != "" {
		if !v.HasEdgeType(edgeType) {
			q.err = &UnknownEdgeTypeError{Type: edgeType}
			return q
		}
		if def, ok := v.EdgeDef(edgeType); ok && len(labels) == 0 {
			target := def.To
			if dir == plan.DirectionIn {
				target = def.From
			}
			if target != "" {
				spec.ToLabels = []string{target}
			}
		}
	}
	q.b = q.b.Traverse(spec)
	return q
}

// Traverse hops with full control over edges, direction, variable
// length, edge filters and path capture.
func (q Query) Traverse(spec plan.TraversalSpec) Query {
	q = q.flush()
	if q.err != nil {
		return q
	}
	q.b = q.b.Traverse(spec)
	return q
}

// Tree navigates the hierarchy with full control. An empty EdgeType
// uses the configured hierarchy edge; an unset MaxDepth takes the
// configured bound for ancestors and descendants walks.
func (q Query) Tree(spec plan.HierarchySpec) Query {
	q = q.flush()
	if q.err != nil {
		return q
	}
	if spec.EdgeType == "" {
		spec.EdgeType = q.db.cfg.HierarchyEdgeType
	}
	if spec.MaxDepth == 0 && q.db.cfg.MaxDepth > 0 {
		switch spec.Mode {
		case plan.HierarchyAncestors, plan.HierarchyDescendants:
			spec.MaxDepth = q.db.cfg.MaxDepth
		}
	}
	q.b = q.b.Hierarchy(spec)
	return q
}

// Parent steps to each current node's parent over the configured
// hierarchy edge.
func (q Query) Parent() Query {
	return q.Tree(plan.HierarchySpec{Mode: plan.HierarchyParent})
}

// Children steps to each current node's children.
func (q Query) Children() Query {
	return q.Tree(plan.HierarchySpec{Mode: plan.HierarchyChildren})
}

// Ancestors walks up to every ancestor of each current node.
func (q Query) Ancestors() Query {
	return q.Tree(plan.HierarchySpec{Mode: plan.HierarchyAncestors})
}

// Descendants walks down to every descendant of each current node.
func (q Query) Descendants() Query {
	return q.Tree(plan.HierarchySpec{Mode: plan.HierarchyDescendants})
}

// Siblings steps to the nodes sharing a parent with each current node.
func (q Query) Siblings() Query {
	return q.Tree(plan.HierarchySpec{Mode: plan.HierarchySiblings})
}

// Root steps to the top of each current node's ancestor chain.
func (q Query) Root() Query {
	return q.Tree(plan.HierarchySpec{Mode: plan.HierarchyRoot})
}

// Reachable steps to every node reachable within the spec's hop
// bounds. Results are distinct regardless of how many paths exist.
func (q Query) Reachable(spec plan.ReachableSpec) Query {
	q = q.flush()
	if q.err != nil {
		return q
	}
	q.b = q.b.Reachable(spec)
	return q
}

// Fork fans out from the current node into independent continuations.
// Each branch extends its own copy of the query; name branch results
// with As to select them afterwards.
func (q Query) Fork(branches ...func(Query) Query) Query {
	q = q.flush()
	if q.err != nil {
		return q
	}
	var branchErr error
	fns := make([]func(plan.Builder) plan.Builder, len(branches))
	for i, fn := range branches {
		fn := fn
		fns[i] = func(b plan.Builder) plan.Builder {
			out := fn(Query{db: q.db, b: b}).flush()
			if out.err != nil && branchErr == nil {
				branchErr = out.err
			}
			return out.b
		}
	}
	q.b = q.b.Fork(fns...)
	if branchErr != nil {
		q.err = branchErr
	}
	return q
}

// With hands the underlying plan builder to fn, for the few shapes the
// fluent surface has no method for.
func (q Query) With(fn func(plan.Builder) plan.Builder) Query {
	q = q.flush()
	if q.err != nil {
		return q
	}
	q.b = fn(q.b)
	return q
}

// OrderBy sorts final rows by a property of the current node,
// ascending. Repeated calls compose into one multi-key sort.
func (q Query) OrderBy(property string) Query {
	q = q.flush()
	if q.err != nil {
		return q
	}
	q.b = q.b.OrderBy("", property, false)
	return q
}

// OrderByDesc sorts final rows by a property of the current node,
// descending.
func (q Query) OrderByDesc(property string) Query {
	q = q.flush()
	if q.err != nil {
		return q
	}
	q.b = q.b.OrderBy("", property, true)
	return q
}

// Limit caps the number of final rows.
func (q Query) Limit(n int64) Query {
	q = q.flush()
	if q.err != nil {
		return q
	}
	q.b = q.b.Limit(n)
	return q
}

// Skip drops the first n final rows.
func (q Query) Skip(n int64) Query {
	q = q.flush()
	if q.err != nil {
		return q
	}
	q.b = q.b.Skip(n)
	return q
}

// Distinct deduplicates final rows.
func (q Query) Distinct() Query {
	q = q.flush()
	if q.err != nil {
		return q
	}
	q.b = q.b.Distinct()
	return q
}

// Project sets the full result shape, replacing any sugar the other
// projection methods applied.
func (q Query) Project(pr plan.Projection) Query {
	q.proj = &pr
	return q
}

// Select returns the named aliases per row instead of the current node.
func (q Query) Select(aliases ...string) Query {
	return q.editProj(func(pr *plan.Projection) {
		pr.Kind = plan.ProjectMultiNode
		pr.Aliases = aliases
	})
}

// Collect gathers the named aliases into arrays, grouped by the
// remaining selected aliases. Use together with Select.
func (q Query) Collect(aliases ...string) Query {
	return q.editProj(func(pr *plan.Projection) {
		pr.Kind = plan.ProjectMultiNode
		pr.CollectAliases = aliases
	})
}

// Fields limits result rows to the named properties of the current
// node.
func (q Query) Fields(fields ...string) Query {
	return q.editProj(func(pr *plan.Projection) {
		pr.Fields = fields
	})
}

// SelectPath returns the named captured path per row.
func (q Query) SelectPath(name string) Query {
	return q.editProj(func(pr *plan.Projection) {
		pr.Kind = plan.ProjectPath
		pr.Alias = name
	})
}

// editProj copies the pending projection before mutating, so earlier
// Query values never observe the change.
func (q Query) editProj(mutate func(*plan.Projection)) Query {
	var pr plan.Projection
	if q.proj != nil {
		pr = *q.proj
	}
	mutate(&pr)
	q.proj = &pr
	return q
}

// Err returns the first construction error recorded so far.
func (q Query) Err() error {
	if q.err != nil {
		return q.err
	}
	return q.b.Err()
}

// Plan validates and seals the query into an immutable plan.
func (q Query) Plan() (*plan.Plan, error) {
	q = q.flush()
	if q.err != nil {
		return nil, q.err
	}
	b := q.b
	if q.proj != nil {
		b = b.Project(*q.proj)
	}
	return b.Plan()
}

// Exec builds the plan and runs it on the DB's backend.
func (q Query) Exec(ctx context.Context) (*engine.Result, error) {
	p, err := q.Plan()
	if err != nil {
		return nil, err
	}
	return q.db.backend.Execute(ctx, p)
}

// All runs the query and returns the current-node column as nodes.
func (q Query) All(ctx context.Context) ([]*storage.Node, error) {
	res, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}
	return res.Nodes(), nil
}

// One runs the query and returns the single matched node. No match is
// storage.ErrNotFound.
func (q Query) One(ctx context.Context) (*storage.Node, error) {
	q = q.flush()
	if q.err != nil {
		return nil, q.err
	}
	p, err := q.b.Project(plan.Projection{Kind: plan.ProjectSingle}).Limit(1).Plan()
	if err != nil {
		return nil, err
	}
	res, err := q.db.backend.Execute(ctx, p)
	if err != nil {
		return nil, err
	}
	if res.Empty() {
		return nil, storage.ErrNotFound
	}
	node, ok := res.Rows[0][0].(*storage.Node)
	if !ok || node == nil {
		return nil, fmt.Errorf("biplane: result value is not a node")
	}
	return node, nil
}

// Count runs the query and returns how many rows matched. Combined
// with Distinct it counts distinct nodes.
func (q Query) Count(ctx context.Context) (int64, error) {
	q = q.flush()
	if q.err != nil {
		return 0, q.err
	}
	p, err := q.b.Project(plan.Projection{Kind: plan.ProjectCount}).Plan()
	if err != nil {
		return 0, err
	}
	res, err := q.db.backend.Execute(ctx, p)
	if err != nil {
		return 0, err
	}
	v, _ := res.Scalar()
	n, _ := v.(int64)
	return n, nil
}

// Exists reports whether the query matches at least one row.
func (q Query) Exists(ctx context.Context) (bool, error) {
	q = q.flush()
	if q.err != nil {
		return false, q.err
	}
	p, err := q.b.Project(plan.Projection{Kind: plan.ProjectExists}).Plan()
	if err != nil {
		return false, err
	}
	res, err := q.db.backend.Execute(ctx, p)
	if err != nil {
		return false, err
	}
	v, _ := res.Scalar()
	out, _ := v.(bool)
	return out, nil
}

// Aggregate computes one value over the query's rows. The result type
// follows the function: counts are int64, sums and averages numeric,
// collect an array.
func (q Query) Aggregate(ctx context.Context, spec plan.AggregateSpec) (any, error) {
	q = q.flush()
	if q.err != nil {
		return nil, q.err
	}
	p, err := q.b.Project(plan.Projection{Kind: plan.ProjectAggregate, Aggregate: &spec}).Plan()
	if err != nil {
		return nil, err
	}
	res, err := q.db.backend.Execute(ctx, p)
	if err != nil {
		return nil, err
	}
	v, _ := res.Scalar()
	return v, nil
}

// Union combines queries keeping one copy of duplicate rows. The
// result has a single "result" column.
func (db *DB) Union(queries ...Query) Query {
	return db.combine(plan.BranchUnion, true, queries)
}

// UnionAll combines queries keeping duplicate rows.
func (db *DB) UnionAll(queries ...Query) Query {
	return db.combine(plan.BranchUnion, false, queries)
}

// Intersect keeps only rows present in every query.
func (db *DB) Intersect(queries ...Query) Query {
	return db.combine(plan.BranchIntersect, true, queries)
}

func (db *DB) combine(op plan.BranchOp, distinct bool, queries []Query) Query {
	out := Query{db: db, b: plan.NewBuilder()}
	branches := make([]plan.Builder, 0, len(queries))
	for _, q := range queries {
		fq := q.flush()
		if fq.err != nil {
			out.err = fq.err
			return out
		}
		b := fq.b
		// A branch's projection picks the alias its rows stand for.
		if fq.proj != nil {
			b = b.Project(*fq.proj)
		}
		branches = append(branches, b)
	}
	out.b = out.b.Branch(op, distinct, branches...)
	return out
}
