// Package plan defines the query plan: an ordered sequence of typed
// steps plus a projection, built through an immutable builder.
//
// A plan is constructed once and never mutated afterwards. Two backends
// consume it: the Cypher compiler translates it to query text and the
// in-memory engine interprets it directly. Both must observe identical
// semantics for every step kind defined here.
//
// Usage:
//
//	p, err := plan.NewBuilder().
//		Match("user").
//		Where(plan.Eq("name", "Ada")).
//		As("u").
//		Traverse(plan.TraversalSpec{Edges: []string{"authored"}}).
//		As("posts").
//		Plan()
package plan

// StepKind identifies the step variant.
type StepKind int

const (
	StepMatch StepKind = iota
	StepTraversal
	StepWhere
	StepHierarchy
	StepReachable
	StepBranch
	StepFork
	StepOrderBy
	StepLimit
	StepSkip
	StepDistinct
)

// String returns the step kind name used in error messages and debug
// snapshots.
func (k StepKind) String() string {
	switch k {
	case StepMatch:
		return "match"
	case StepTraversal:
		return "traversal"
	case StepWhere:
		return "where"
	case StepHierarchy:
		return "hierarchy"
	case StepReachable:
		return "reachable"
	case StepBranch:
		return "branch"
	case StepFork:
		return "fork"
	case StepOrderBy:
		return "orderBy"
	case StepLimit:
		return "limit"
	case StepSkip:
		return "skip"
	case StepDistinct:
		return "distinct"
	default:
		return "unknown"
	}
}

// Step is a closed variant: Kind selects which payload pointer is
// populated. Limit and Skip carry their value directly.
type Step struct {
	Kind StepKind `json:"kind"`

	Match     *MatchStep     `json:"match,omitempty"`
	Traversal *TraversalStep `json:"traversal,omitempty"`
	Where     *WhereStep     `json:"where,omitempty"`
	Hierarchy *HierarchyStep `json:"hierarchy,omitempty"`
	Reachable *ReachableStep `json:"reachable,omitempty"`
	Branch    *BranchStep    `json:"branch,omitempty"`
	Fork      *ForkStep      `json:"fork,omitempty"`
	OrderBy   *OrderByStep   `json:"orderBy,omitempty"`
	Limit     *int64         `json:"limit,omitempty"`
	Skip      *int64         `json:"skip,omitempty"`
}

// MatchStep starts a pattern at a node. Label filters by label, ID pins
// the match to one node in the flat id namespace; at least one is set.
type MatchStep struct {
	Alias string `json:"alias"`
	Label string `json:"label,omitempty"`
	ID    string `json:"id,omitempty"`
}

// Direction orients an edge pattern relative to its source node.
type Direction int

const (
	// DirectionOut follows edges from source to target. The zero value:
	// traversals read outward by default.
	DirectionOut Direction = iota
	DirectionIn
	DirectionBoth
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionOut:
		return "out"
	case DirectionIn:
		return "in"
	case DirectionBoth:
		return "both"
	default:
		return "unknown"
	}
}

// Cardinality declares how many results a traversal yields per source
// row, per the schema edge definition. It selects the facade return
// shape; Maybe additionally makes the match optional.
type Cardinality int

const (
	CardinalityMany Cardinality = iota
	CardinalityOne
	CardinalityMaybe
)

// String returns the cardinality name.
func (c Cardinality) String() string {
	switch c {
	case CardinalityMany:
		return "many"
	case CardinalityOne:
		return "one"
	case CardinalityMaybe:
		return "maybe"
	default:
		return "unknown"
	}
}

// VarLength bounds a variable-length traversal. Min 0 includes the
// source node itself.
type VarLength struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// TraversalSpec configures a Traverse call. Zero value traverses any
// outgoing edge to any label with collection cardinality.
type TraversalSpec struct {
	// Edges lists acceptable edge types; empty means any type.
	Edges []string
	// Direction orients the hop; default outgoing.
	Direction Direction
	// ToLabels restricts target node labels; empty means any label.
	ToLabels []string
	// Cardinality declares the per-row result multiplicity. Maybe makes
	// the match optional: source rows without a matching edge survive
	// with a null binding.
	Cardinality Cardinality
	// VarLength makes the hop variable-length with the given bounds.
	VarLength *VarLength
	// EdgeWhere filters on edge properties, scoped to the edge alias.
	EdgeWhere []Condition
	// EdgeAlias binds a user alias to the traversed edge.
	EdgeAlias string
	// PathName binds a user alias to the whole traversed path.
	PathName string
	// Optional forces an optional match regardless of cardinality.
	Optional bool
}

// TraversalStep is a single- or variable-length hop from a source node
// alias to a freshly allocated target node alias.
type TraversalStep struct {
	FromAlias   string       `json:"fromAlias"`
	EdgeAlias   string       `json:"edgeAlias"`
	ToAlias     string       `json:"toAlias"`
	PathAlias   string       `json:"pathAlias,omitempty"`
	Edges       []string     `json:"edges,omitempty"`
	Direction   Direction    `json:"direction"`
	ToLabels    []string     `json:"toLabels,omitempty"`
	Cardinality Cardinality  `json:"cardinality"`
	VarLength   *VarLength   `json:"varLength,omitempty"`
	EdgeWhere   []Condition  `json:"edgeWhere,omitempty"`
	Optional    bool         `json:"optional,omitempty"`
}

// WhereStep filters rows. Alias is the subject for conditions that do
// not name their own target.
type WhereStep struct {
	Alias      string      `json:"alias"`
	Conditions []Condition `json:"conditions"`
}

// HierarchyMode selects a tree navigation relative to the current node.
// The hierarchy edge points child to parent.
type HierarchyMode int

const (
	HierarchyParent HierarchyMode = iota
	HierarchyChildren
	HierarchyAncestors
	HierarchyDescendants
	HierarchySiblings
	HierarchyRoot
)

// String returns the mode name.
func (m HierarchyMode) String() string {
	switch m {
	case HierarchyParent:
		return "parent"
	case HierarchyChildren:
		return "children"
	case HierarchyAncestors:
		return "ancestors"
	case HierarchyDescendants:
		return "descendants"
	case HierarchySiblings:
		return "siblings"
	case HierarchyRoot:
		return "root"
	default:
		return "unknown"
	}
}

// HierarchySpec configures a Hierarchy call.
type HierarchySpec struct {
	Mode HierarchyMode
	// EdgeType is the designated hierarchy edge type, e.g. "childOf".
	EdgeType string
	// MinDepth/MaxDepth bound ancestors/descendants walks. MaxDepth 0
	// means unbounded.
	MinDepth int
	MaxDepth int
	// IncludeSelf includes the start node in ancestors/descendants
	// results (lowers the variable-length minimum to 0).
	IncludeSelf bool
	// DepthAlias binds a user alias to the hop count of each result.
	DepthAlias string
	// PathName binds a user alias to the walked path.
	PathName string
}

// HierarchyStep navigates the designated hierarchy edge type from a
// source alias to a freshly allocated target alias. SiblingVia is only
// set for siblings mode: the synthesized shared-parent alias.
type HierarchyStep struct {
	Mode        HierarchyMode `json:"mode"`
	EdgeType    string        `json:"edgeType"`
	FromAlias   string        `json:"fromAlias"`
	ToAlias     string        `json:"toAlias"`
	SiblingVia  string        `json:"siblingVia,omitempty"`
	PathAlias   string        `json:"pathAlias,omitempty"`
	MinDepth    int           `json:"minDepth,omitempty"`
	MaxDepth    int           `json:"maxDepth,omitempty"`
	IncludeSelf bool          `json:"includeSelf,omitempty"`
	DepthAlias  string        `json:"depthAlias,omitempty"`
}

// ReachableSpec configures a Reachable call.
type ReachableSpec struct {
	// Edges lists edge types the closure may follow; empty means any.
	Edges []string
	// Direction orients each hop; default outgoing.
	Direction Direction
	// MinHops/MaxHops bound the closure. MinHops 0 includes the source
	// node. MaxHops 0 means unbounded.
	MinHops int
	MaxHops int
}

// ReachableStep computes the transitive closure from a source alias.
// Results are always distinct: multiple paths to one node yield one row.
type ReachableStep struct {
	FromAlias string    `json:"fromAlias"`
	ToAlias   string    `json:"toAlias"`
	Edges     []string  `json:"edges,omitempty"`
	Direction Direction `json:"direction"`
	MinHops   int       `json:"minHops,omitempty"`
	MaxHops   int       `json:"maxHops,omitempty"`
}

// BranchOp identifies the set operation combining branch sub-plans.
type BranchOp int

const (
	BranchUnion BranchOp = iota
	BranchIntersect
)

// String returns the operator name.
func (op BranchOp) String() string {
	switch op {
	case BranchUnion:
		return "union"
	case BranchIntersect:
		return "intersect"
	default:
		return "unknown"
	}
}

// BranchStep combines fully independent sub-plans with a set operator.
// Union with Distinct deduplicates (UNION); without it keeps duplicates
// (UNION ALL). Intersect requires at least two branches.
type BranchStep struct {
	Op       BranchOp `json:"op"`
	Branches []*Plan  `json:"branches"`
	Distinct bool     `json:"distinct,omitempty"`
}

// ForkBranch is one continuation captured by a Fork step: the steps it
// appended beyond the fork point and the alias it ended on.
type ForkBranch struct {
	Steps        []Step `json:"steps"`
	CurrentAlias string `json:"currentAlias"`
}

// ForkStep fans out from one source alias into independent
// continuations. Branch aliases are merged into the parent registry
// under distinct numeric offsets, so all branch results are selectable
// together. Branch patterns always match optionally: the source row
// survives even when a branch matches nothing.
type ForkStep struct {
	SourceAlias string       `json:"sourceAlias"`
	Branches    []ForkBranch `json:"branches"`
}

// OrderByStep sorts final rows by a property of the named alias. Empty
// Alias means the current alias at the time the step was added.
// Multiple OrderBy steps compose into one multi-key sort in step order.
type OrderByStep struct {
	Alias      string `json:"alias,omitempty"`
	Property   string `json:"property"`
	Descending bool   `json:"descending,omitempty"`
}

// AliasKind classifies a registry entry.
type AliasKind string

const (
	AliasNode AliasKind = "node"
	AliasEdge AliasKind = "edge"
	AliasPath AliasKind = "path"
)

// AliasInfo is the registry record for one internal alias.
type AliasInfo struct {
	Kind AliasKind `json:"kind"`
	// Label is the node label the alias was bound with, when known.
	Label string `json:"label,omitempty"`
	// UserAlias is the caller-facing name bound via As, when any.
	UserAlias string `json:"userAlias,omitempty"`
	// Step is the index of the step that allocated the alias.
	Step int `json:"step"`
}

// Plan is the sealed, immutable result of building: the full step
// sequence, the projection, and the alias registry. It doubles as the
// debug snapshot shape.
type Plan struct {
	Steps      []Step      `json:"steps"`
	Projection *Projection `json:"projection,omitempty"`
	// Aliases maps internal alias to its registry record.
	Aliases map[string]AliasInfo `json:"aliases"`
	// UserAliases maps caller-facing node names to internal aliases.
	UserAliases map[string]string `json:"userAliases"`
	// EdgeUserAliases maps caller-facing edge names to internal aliases.
	EdgeUserAliases map[string]string `json:"edgeUserAliases"`
	// CurrentAlias is the node alias the builder ended on.
	CurrentAlias string `json:"currentAlias"`
	// CurrentLabel is that alias's label, when known.
	CurrentLabel string `json:"currentLabel,omitempty"`
}

// Resolve maps a user alias to its internal alias. It also accepts an
// internal alias directly, so both naming levels work in projections
// and order keys.
func (p *Plan) Resolve(name string) (string, bool) {
	if internal, ok := p.UserAliases[name]; ok {
		return internal, true
	}
	if internal, ok := p.EdgeUserAliases[name]; ok {
		return internal, true
	}
	if _, ok := p.Aliases[name]; ok {
		return name, true
	}
	return "", false
}
