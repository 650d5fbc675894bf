package plan

// ResultType classifies the shape a plan's execution produces. Both
// backends derive it from the projection the same way, so callers can
// switch on it without knowing which backend ran.
type ResultType string

const (
	ResultSingle     ResultType = "single"
	ResultCollection ResultType = "collection"
	ResultMultiNode  ResultType = "multiNode"
	ResultPath       ResultType = "path"
	ResultAggregate  ResultType = "aggregate"
	ResultScalar     ResultType = "scalar"
	// ResultVoid marks mutation commands, which produce no rows. Query
	// plans never derive it.
	ResultVoid ResultType = "void"
)

// ResultType derives the result shape from the plan's projection. A
// missing projection defaults to a collection of the current alias.
func (p *Plan) ResultType() ResultType {
	if p.Projection == nil {
		return ResultCollection
	}
	switch p.Projection.Kind {
	case ProjectSingle:
		return ResultSingle
	case ProjectMultiNode:
		return ResultMultiNode
	case ProjectAggregate:
		return ResultAggregate
	case ProjectCount, ProjectExists:
		return ResultScalar
	case ProjectPath:
		return ResultPath
	default:
		return ResultCollection
	}
}
