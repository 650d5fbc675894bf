package biplane

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/biplanedb/biplane/pkg/cypher"
	"github.com/biplanedb/biplane/pkg/driver"
	"github.com/biplanedb/biplane/pkg/engine"
	"github.com/biplanedb/biplane/pkg/plan"
	"github.com/biplanedb/biplane/pkg/storage"
)

// boltBackend executes plans as compiled Cypher over a Bolt driver and
// translates commands to parameterized statements. Entity ids travel as
// an id property on every node and relationship, which is also what the
// compiler's id filters match, so both backends read the same graph the
// same way.
//
// Nodes matched by command text carry no label filter: ids are globally
// unique, a label would only narrow a lookup that already names one
// node.
type boltBackend struct {
	runner   driver.Runner
	drv      driver.Driver // nil when scoped to a transaction
	compiler *cypher.Compiler
}

func newBoltBackend(drv driver.Driver, compiler *cypher.Compiler) *boltBackend {
	return &boltBackend{runner: drv, drv: drv, compiler: compiler}
}

func (b *boltBackend) Execute(ctx context.Context, p *plan.Plan) (*engine.Result, error) {
	q, err := b.compiler.Compile(p)
	if err != nil {
		return nil, err
	}
	res, err := b.runner.Run(ctx, q.Cypher, q.Params)
	if err != nil {
		return nil, err
	}
	return toResult(res, q.ResultType), nil
}

// Transaction runs work in one managed write transaction. The scoped
// backend shares the compiler but routes every statement through the
// transaction. Nested calls fail the same way the store does.
func (b *boltBackend) Transaction(ctx context.Context, work func(tx Backend) error) error {
	if b.drv == nil {
		return storage.ErrTransactionActive
	}
	return b.drv.Transaction(ctx, driver.ModeWrite, func(tx driver.Runner) error {
		return work(&boltBackend{runner: tx, compiler: b.compiler})
	})
}

func (b *boltBackend) Close(ctx context.Context) error {
	if b.drv == nil {
		return nil
	}
	return b.drv.Close(ctx)
}

// Apply translates one command to Cypher. Mutations mirror the engine's
// semantics: ids are generated when absent, endpoint and existence
// misses come back as the storage error types, and nil property values
// remove keys. Server-side failures (constraint violations, connectivity)
// surface as driver errors.
func (b *boltBackend) Apply(ctx context.Context, cmd engine.Command) (*engine.CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cmd.Type {
	case engine.CmdCreateNode:
		return b.createNode(ctx, cmd)
	case engine.CmdUpdateNode:
		return b.updateNode(ctx, cmd)
	case engine.CmdDeleteNode:
		return b.deleteNode(ctx, cmd)
	case engine.CmdCreateEdge:
		return b.createEdge(ctx, cmd)
	case engine.CmdUpdateEdge:
		return b.updateEdge(ctx, cmd)
	case engine.CmdDeleteEdge:
		return b.deleteEdge(ctx, cmd)
	case engine.CmdQuery:
		return b.applyQuery(ctx, cmd)
	default:
		return nil, fmt.Errorf("biplane: unknown command type %q", cmd.Type)
	}
}

func (b *boltBackend) createNode(ctx context.Context, cmd engine.Command) (*engine.CommandResult, error) {
	id := cmd.ID
	if id == "" {
		id = uuid.NewString()
	} else {
		// Explicit ids can collide; generated ones do not. The check is
		// not atomic with the create; uniqueness under concurrent
		// writers belongs to a server-side constraint.
		exists, err := b.nodeExists(ctx, id)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, &storage.AlreadyExistsError{Kind: "node", ID: id}
		}
	}

	q := fmt.Sprintf(
		"CREATE (n%s {id: $id}) SET n += $props, n.createdAt = datetime(), n.updatedAt = datetime() RETURN n",
		labelFragment(cmd.Label),
	)
	res, err := b.runner.Run(ctx, q, map[string]any{"id": id, "props": nonNilProps(cmd.Properties)})
	if err != nil {
		return nil, err
	}
	node, err := nodeColumn(res, "n")
	if err != nil {
		return nil, err
	}
	return &engine.CommandResult{Node: node}, nil
}

func (b *boltBackend) updateNode(ctx context.Context, cmd engine.Command) (*engine.CommandResult, error) {
	q := "MATCH (n {id: $id}) SET n += $props, n.updatedAt = datetime() RETURN n"
	res, err := b.runner.Run(ctx, q, map[string]any{"id": cmd.ID, "props": nonNilProps(cmd.Properties)})
	if err != nil {
		return nil, err
	}
	if res.Len() == 0 {
		return nil, &storage.NodeNotFoundError{ID: cmd.ID}
	}
	node, err := nodeColumn(res, "n")
	if err != nil {
		return nil, err
	}
	return &engine.CommandResult{Node: node}, nil
}

func (b *boltBackend) deleteNode(ctx context.Context, cmd engine.Command) (*engine.CommandResult, error) {
	q := "MATCH (n {id: $id}) DELETE n RETURN count(n) AS count"
	if cmd.Detach {
		q = "MATCH (n {id: $id}) DETACH DELETE n RETURN count(n) AS count"
	}
	res, err := b.runner.Run(ctx, q, map[string]any{"id": cmd.ID})
	if err != nil {
		return nil, err
	}
	if countColumn(res) == 0 {
		return nil, &storage.NodeNotFoundError{ID: cmd.ID}
	}
	return &engine.CommandResult{Count: 1}, nil
}

// createEdge stamps the endpoint ids onto the relationship as fromId
// and toId properties. The conversion layer lifts them back into the
// Edge struct, so an edge read over Bolt names its endpoints by domain
// id exactly as the store does.
func (b *boltBackend) createEdge(ctx context.Context, cmd engine.Command) (*engine.CommandResult, error) {
	if cmd.EdgeType == "" {
		return nil, fmt.Errorf("biplane: createEdge requires an edge type")
	}
	id := cmd.ID
	if id == "" {
		id = uuid.NewString()
	} else {
		exists, err := b.edgeExistsByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, &storage.AlreadyExistsError{Kind: "edge", ID: id}
		}
	}

	q := fmt.Sprintf(
		"MATCH (a {id: $from}), (b {id: $to}) CREATE (a)-[r:%s {id: $id}]->(b) SET r += $props, r.fromId = $from, r.toId = $to, r.createdAt = datetime() RETURN r",
		cmd.EdgeType,
	)
	res, err := b.runner.Run(ctx, q, map[string]any{
		"from": cmd.FromID, "to": cmd.ToID, "id": id, "props": nonNilProps(cmd.Properties),
	})
	if err != nil {
		return nil, err
	}
	if res.Len() == 0 {
		// The MATCH found nothing. Probe each endpoint so the error
		// names the missing node, as the engine's check does.
		for _, nodeID := range []string{cmd.FromID, cmd.ToID} {
			ok, perr := b.nodeExists(ctx, nodeID)
			if perr != nil {
				return nil, perr
			}
			if !ok {
				return nil, &storage.NodeNotFoundError{ID: nodeID}
			}
		}
		return nil, fmt.Errorf("biplane: createEdge %q: no row returned", id)
	}
	edge, err := edgeColumn(res, "r")
	if err != nil {
		return nil, err
	}
	return &engine.CommandResult{Edge: edge}, nil
}

func (b *boltBackend) updateEdge(ctx context.Context, cmd engine.Command) (*engine.CommandResult, error) {
	q := "MATCH ()-[r {id: $id}]->() SET r += $props RETURN r"
	res, err := b.runner.Run(ctx, q, map[string]any{"id": cmd.ID, "props": nonNilProps(cmd.Properties)})
	if err != nil {
		return nil, err
	}
	if res.Len() == 0 {
		return nil, &storage.EdgeNotFoundError{ID: cmd.ID}
	}
	edge, err := edgeColumn(res, "r")
	if err != nil {
		return nil, err
	}
	return &engine.CommandResult{Edge: edge}, nil
}

func (b *boltBackend) deleteEdge(ctx context.Context, cmd engine.Command) (*engine.CommandResult, error) {
	if cmd.ID != "" {
		q := "MATCH ()-[r {id: $id}]->() DELETE r RETURN count(r) AS count"
		res, err := b.runner.Run(ctx, q, map[string]any{"id": cmd.ID})
		if err != nil {
			return nil, err
		}
		if countColumn(res) == 0 {
			return nil, &storage.EdgeNotFoundError{ID: cmd.ID}
		}
		return &engine.CommandResult{Count: 1}, nil
	}

	q := fmt.Sprintf(
		"MATCH ({id: $from})-[r%s]->({id: $to}) DELETE r RETURN count(r) AS count",
		typeFragment(cmd.EdgeType),
	)
	res, err := b.runner.Run(ctx, q, map[string]any{"from": cmd.FromID, "to": cmd.ToID})
	if err != nil {
		return nil, err
	}
	n := countColumn(res)
	if n == 0 {
		return nil, &storage.EdgeNotFoundError{FromID: cmd.FromID, ToID: cmd.ToID, Type: cmd.EdgeType}
	}
	return &engine.CommandResult{Count: int(n)}, nil
}

func (b *boltBackend) applyQuery(ctx context.Context, cmd engine.Command) (*engine.CommandResult, error) {
	switch cmd.Op {
	case engine.OpGetByID:
		res, err := b.runner.Run(ctx, "MATCH (n {id: $id}) RETURN n", map[string]any{"id": cmd.ID})
		if err != nil {
			return nil, err
		}
		if res.Len() == 0 {
			return nil, &storage.NodeNotFoundError{ID: cmd.ID}
		}
		node, err := nodeColumn(res, "n")
		if err != nil {
			return nil, err
		}
		return &engine.CommandResult{Node: node}, nil

	case engine.OpGetByLabel:
		if cmd.Label == "" {
			return &engine.CommandResult{}, nil
		}
		q := fmt.Sprintf("MATCH (n:%s) RETURN n", cmd.Label)
		res, err := b.runner.Run(ctx, q, nil)
		if err != nil {
			return nil, err
		}
		nodes, err := nodesColumn(res, "n")
		if err != nil {
			return nil, err
		}
		return &engine.CommandResult{Nodes: nodes, Count: len(nodes)}, nil

	case engine.OpExists:
		exists, err := b.nodeExists(ctx, cmd.ID)
		if err != nil {
			return nil, err
		}
		return &engine.CommandResult{Bool: exists}, nil

	case engine.OpEdgeExists:
		q := fmt.Sprintf(
			"MATCH ({id: $from})-[r%s]->({id: $to}) RETURN count(r) AS count",
			typeFragment(cmd.EdgeType),
		)
		res, err := b.runner.Run(ctx, q, map[string]any{"from": cmd.FromID, "to": cmd.ToID})
		if err != nil {
			return nil, err
		}
		n := countColumn(res)
		return &engine.CommandResult{Bool: n > 0, Count: int(n)}, nil

	case engine.OpGetParent:
		return b.getParent(ctx, cmd)
	case engine.OpGetChildren:
		return b.getChildren(ctx, cmd)
	case engine.OpGetSubtree:
		return b.getSubtree(ctx, cmd)
	case engine.OpWouldCreateCycle:
		return b.wouldCreateCycle(ctx, cmd)
	case engine.OpGetAncestorPath:
		return b.getAncestorPath(ctx, cmd)
	default:
		return nil, fmt.Errorf("biplane: unknown query operation %q", cmd.Op)
	}
}

// Hierarchy lookups compile the same plans the fluent layer would
// build, after an existence probe: an empty row set must mean "no
// parent", never "no such node".

func (b *boltBackend) getParent(ctx context.Context, cmd engine.Command) (*engine.CommandResult, error) {
	if err := b.mustNode(ctx, cmd.ID); err != nil {
		return nil, err
	}
	p, err := plan.NewBuilder().
		MatchByID(cmd.ID).
		Hierarchy(plan.HierarchySpec{Mode: plan.HierarchyParent, EdgeType: cmd.EdgeType}).
		Limit(1).
		Plan()
	if err != nil {
		return nil, err
	}
	res, err := b.Execute(ctx, p)
	if err != nil {
		return nil, err
	}
	nodes := res.Nodes()
	if len(nodes) == 0 {
		return &engine.CommandResult{}, nil
	}
	return &engine.CommandResult{Node: nodes[0], Bool: true}, nil
}

func (b *boltBackend) getChildren(ctx context.Context, cmd engine.Command) (*engine.CommandResult, error) {
	if err := b.mustNode(ctx, cmd.ID); err != nil {
		return nil, err
	}
	p, err := plan.NewBuilder().
		MatchByID(cmd.ID).
		Hierarchy(plan.HierarchySpec{Mode: plan.HierarchyChildren, EdgeType: cmd.EdgeType}).
		Plan()
	if err != nil {
		return nil, err
	}
	res, err := b.Execute(ctx, p)
	if err != nil {
		return nil, err
	}
	nodes := res.Nodes()
	return &engine.CommandResult{Nodes: nodes, Count: len(nodes)}, nil
}

func (b *boltBackend) getSubtree(ctx context.Context, cmd engine.Command) (*engine.CommandResult, error) {
	if err := b.mustNode(ctx, cmd.ID); err != nil {
		return nil, err
	}
	p, err := plan.NewBuilder().
		MatchByID(cmd.ID).
		Hierarchy(plan.HierarchySpec{
			Mode:        plan.HierarchyDescendants,
			EdgeType:    cmd.EdgeType,
			IncludeSelf: true,
			DepthAlias:  "depth",
		}).
		Plan()
	if err != nil {
		return nil, err
	}
	res, err := b.Execute(ctx, p)
	if err != nil {
		return nil, err
	}
	entries := subtreeEntries(res)
	return &engine.CommandResult{Subtree: entries, Count: len(entries)}, nil
}

func (b *boltBackend) wouldCreateCycle(ctx context.Context, cmd engine.Command) (*engine.CommandResult, error) {
	if err := b.mustNode(ctx, cmd.ID); err != nil {
		return nil, err
	}
	if cmd.ID == cmd.TargetID {
		return &engine.CommandResult{Bool: true}, nil
	}
	p, err := plan.NewBuilder().
		MatchByID(cmd.ID).
		Hierarchy(plan.HierarchySpec{Mode: plan.HierarchyDescendants, EdgeType: cmd.EdgeType}).
		Where(plan.Eq("id", cmd.TargetID)).
		Project(plan.Projection{Kind: plan.ProjectExists}).
		Plan()
	if err != nil {
		return nil, err
	}
	res, err := b.Execute(ctx, p)
	if err != nil {
		return nil, err
	}
	v, _ := res.Scalar()
	cycle, _ := v.(bool)
	return &engine.CommandResult{Bool: cycle}, nil
}

func (b *boltBackend) getAncestorPath(ctx context.Context, cmd engine.Command) (*engine.CommandResult, error) {
	if err := b.mustNode(ctx, cmd.ID); err != nil {
		return nil, err
	}
	p, err := plan.NewBuilder().
		MatchByID(cmd.ID).
		Hierarchy(plan.HierarchySpec{
			Mode:       plan.HierarchyAncestors,
			EdgeType:   cmd.EdgeType,
			DepthAlias: "depth",
		}).
		Plan()
	if err != nil {
		return nil, err
	}
	res, err := b.Execute(ctx, p)
	if err != nil {
		return nil, err
	}
	var nodes []*storage.Node
	for _, e := range subtreeEntries(res) {
		nodes = append(nodes, e.Node)
	}
	return &engine.CommandResult{Nodes: nodes, Count: len(nodes)}, nil
}

func (b *boltBackend) mustNode(ctx context.Context, id string) error {
	exists, err := b.nodeExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return &storage.NodeNotFoundError{ID: id}
	}
	return nil
}

func (b *boltBackend) nodeExists(ctx context.Context, id string) (bool, error) {
	res, err := b.runner.Run(ctx, "MATCH (n {id: $id}) RETURN count(n) > 0 AS exists", map[string]any{"id": id})
	if err != nil {
		return false, err
	}
	return boolColumn(res, "exists"), nil
}

func (b *boltBackend) edgeExistsByID(ctx context.Context, id string) (bool, error) {
	res, err := b.runner.Run(ctx, "MATCH ()-[r {id: $id}]->() RETURN count(r) > 0 AS exists", map[string]any{"id": id})
	if err != nil {
		return false, err
	}
	return boolColumn(res, "exists"), nil
}

func labelFragment(label string) string {
	if label == "" {
		return ""
	}
	return ":" + label
}

func typeFragment(edgeType string) string {
	if edgeType == "" {
		return ""
	}
	return ":" + edgeType
}

// nonNilProps keeps SET += from seeing a null map. Nil values inside
// the map stay: += with a null value removes the key, matching the
// store's update semantics.
func nonNilProps(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	return props
}

// subtreeEntries converts node+depth rows into depth-ordered entries.
// The compiled walk enumerates paths in the server's order; the stable
// sort restores the level order the engine's breadth-first walk
// guarantees. Sibling order within a level is the server's.
func subtreeEntries(res *engine.Result) []engine.SubtreeEntry {
	depthIdx := res.Column("depth")
	nodeIdx := 0
	if depthIdx == 0 {
		nodeIdx = 1
	}
	var entries []engine.SubtreeEntry
	for _, row := range res.Rows {
		if depthIdx < 0 || depthIdx >= len(row) || nodeIdx >= len(row) {
			continue
		}
		node, ok := row[nodeIdx].(*storage.Node)
		if !ok || node == nil {
			continue
		}
		depth, _ := row[depthIdx].(int64)
		entries = append(entries, engine.SubtreeEntry{Node: node, Depth: int(depth), Label: node.Label})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Depth < entries[j].Depth })
	return entries
}

// toResult converts a driver record set into the engine's result shape,
// lifting Bolt graph values into the store's types.
func toResult(res *driver.Result, rt plan.ResultType) *engine.Result {
	rows := make([][]any, 0, len(res.Records))
	for _, rec := range res.Records {
		row := make([]any, len(res.Columns))
		for i, col := range res.Columns {
			row[i] = fromBoltValue(rec[col])
		}
		rows = append(rows, row)
	}
	return &engine.Result{Columns: res.Columns, Rows: rows, ResultType: rt}
}

// fromBoltValue maps driver values onto the types the engine emits:
// nodes and relationships become the store's structs, paths become
// engine paths, lists convert element-wise, scalars pass through.
func fromBoltValue(v any) any {
	switch val := v.(type) {
	case dbtype.Node:
		return toNode(val)
	case dbtype.Relationship:
		return toEdge(val)
	case dbtype.Path:
		return toPath(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = fromBoltValue(item)
		}
		return out
	default:
		return val
	}
}

// toNode lifts a Bolt node. The id, createdAt and updatedAt properties
// move into struct fields; when no id property exists (data written
// outside this layer) the element id stands in.
func toNode(n dbtype.Node) *storage.Node {
	out := &storage.Node{Properties: make(map[string]any)}
	if len(n.Labels) > 0 {
		out.Label = n.Labels[0]
	}
	for k, v := range n.Props {
		switch k {
		case "id":
			if s, ok := v.(string); ok {
				out.ID = s
				continue
			}
		case "createdAt":
			if t, ok := v.(time.Time); ok {
				out.CreatedAt = t
				continue
			}
		case "updatedAt":
			if t, ok := v.(time.Time); ok {
				out.UpdatedAt = t
				continue
			}
		}
		out.Properties[k] = v
	}
	if out.ID == "" {
		out.ID = n.ElementId
	}
	return out
}

// toEdge lifts a Bolt relationship. The endpoint ids come from the
// fromId/toId properties createEdge stamps; relationships written
// outside this layer fall back to element ids.
func toEdge(r dbtype.Relationship) *storage.Edge {
	out := &storage.Edge{Type: r.Type, Properties: make(map[string]any)}
	for k, v := range r.Props {
		switch k {
		case "id":
			if s, ok := v.(string); ok {
				out.ID = s
				continue
			}
		case "fromId":
			if s, ok := v.(string); ok {
				out.FromID = s
				continue
			}
		case "toId":
			if s, ok := v.(string); ok {
				out.ToID = s
				continue
			}
		case "createdAt":
			if t, ok := v.(time.Time); ok {
				out.CreatedAt = t
				continue
			}
		}
		out.Properties[k] = v
	}
	if out.ID == "" {
		out.ID = r.ElementId
	}
	if out.FromID == "" {
		out.FromID = r.StartElementId
	}
	if out.ToID == "" {
		out.ToID = r.EndElementId
	}
	return out
}

func toPath(p dbtype.Path) *engine.Path {
	out := &engine.Path{
		Nodes: make([]*storage.Node, len(p.Nodes)),
		Edges: make([]*storage.Edge, len(p.Relationships)),
	}
	for i, n := range p.Nodes {
		out.Nodes[i] = toNode(n)
	}
	for i, r := range p.Relationships {
		out.Edges[i] = toEdge(r)
	}
	return out
}

// nodeColumn reads the single node the first row binds to the column.
func nodeColumn(res *driver.Result, column string) (*storage.Node, error) {
	rec, ok := res.First()
	if !ok {
		return nil, fmt.Errorf("biplane: empty result for column %q", column)
	}
	n, ok := rec[column].(dbtype.Node)
	if !ok {
		return nil, fmt.Errorf("biplane: column %q is not a node", column)
	}
	return toNode(n), nil
}

func nodesColumn(res *driver.Result, column string) ([]*storage.Node, error) {
	var out []*storage.Node
	for _, rec := range res.Records {
		n, ok := rec[column].(dbtype.Node)
		if !ok {
			return nil, fmt.Errorf("biplane: column %q is not a node", column)
		}
		out = append(out, toNode(n))
	}
	return out, nil
}

func edgeColumn(res *driver.Result, column string) (*storage.Edge, error) {
	rec, ok := res.First()
	if !ok {
		return nil, fmt.Errorf("biplane: empty result for column %q", column)
	}
	r, ok := rec[column].(dbtype.Relationship)
	if !ok {
		return nil, fmt.Errorf("biplane: column %q is not a relationship", column)
	}
	return toEdge(r), nil
}

func countColumn(res *driver.Result) int64 {
	rec, ok := res.First()
	if !ok {
		return 0
	}
	n, _ := rec["count"].(int64)
	return n
}

func boolColumn(res *driver.Result, column string) bool {
	rec, ok := res.First()
	if !ok {
		return false
	}
	v, _ := rec[column].(bool)
	return v
}

var (
	_ Backend = (*memoryBackend)(nil)
	_ Backend = (*boltBackend)(nil)
)
