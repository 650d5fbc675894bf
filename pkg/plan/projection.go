package plan

// ProjectionKind identifies the result shape a plan produces.
type ProjectionKind int

const (
	// ProjectSingle returns one node bound to one alias.
	ProjectSingle ProjectionKind = iota
	// ProjectCollection returns all nodes bound to one alias.
	ProjectCollection
	// ProjectMultiNode returns several aliases per row, optionally
	// collecting some into arrays.
	ProjectMultiNode
	// ProjectAggregate returns one computed scalar.
	ProjectAggregate
	// ProjectCount returns the row count for one alias.
	ProjectCount
	// ProjectExists returns whether at least one row matched.
	ProjectExists
	// ProjectPath returns a captured path.
	ProjectPath
)

// String returns the projection kind name.
func (k ProjectionKind) String() string {
	switch k {
	case ProjectSingle:
		return "single"
	case ProjectCollection:
		return "collection"
	case ProjectMultiNode:
		return "multiNode"
	case ProjectAggregate:
		return "aggregate"
	case ProjectCount:
		return "count"
	case ProjectExists:
		return "exists"
	case ProjectPath:
		return "path"
	default:
		return "unknown"
	}
}

// AggregateFunc identifies an aggregate computation.
type AggregateFunc string

const (
	AggCount   AggregateFunc = "count"
	AggSum     AggregateFunc = "sum"
	AggAvg     AggregateFunc = "avg"
	AggMin     AggregateFunc = "min"
	AggMax     AggregateFunc = "max"
	AggCollect AggregateFunc = "collect"
)

// AggregateSpec computes one value over the rows of an alias.
// Property is empty for count.
type AggregateSpec struct {
	Func     AggregateFunc `json:"func"`
	Alias    string        `json:"alias"`
	Property string        `json:"property,omitempty"`
}

// Projection declares the result shape of a plan. All alias references
// use user aliases (or internal aliases directly) and are validated when
// the projection is set, not deferred to compile time.
type Projection struct {
	Kind ProjectionKind `json:"kind"`

	// Alias is the subject for single/collection/count/exists/path.
	// Empty means the plan's current alias.
	Alias string `json:"alias,omitempty"`

	// Fields limits single/collection results to named properties.
	// Empty returns whole nodes.
	Fields []string `json:"fields,omitempty"`

	// Aliases lists the aliases a multiNode projection returns per row.
	Aliases []string `json:"aliases,omitempty"`

	// CollectAliases names the subset of Aliases gathered into arrays
	// (one row per remaining alias combination).
	CollectAliases []string `json:"collectAliases,omitempty"`

	// Aggregate configures an aggregate projection.
	Aggregate *AggregateSpec `json:"aggregate,omitempty"`

	// Distinct deduplicates projected rows.
	Distinct bool `json:"distinct,omitempty"`
}

// referencedAliases returns every alias name the projection mentions,
// for validation.
func (pr *Projection) referencedAliases() []string {
	var refs []string
	if pr.Alias != "" {
		refs = append(refs, pr.Alias)
	}
	refs = append(refs, pr.Aliases...)
	refs = append(refs, pr.CollectAliases...)
	if pr.Aggregate != nil && pr.Aggregate.Alias != "" {
		refs = append(refs, pr.Aggregate.Alias)
	}
	return refs
}
