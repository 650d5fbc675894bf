package plan

// Op identifies a comparison operator in a filter condition.
type Op string

// Comparison operators. Each maps to one Cypher operator and one
// in-memory evaluation rule; the two must agree.
const (
	OpEq         Op = "eq"
	OpNeq        Op = "neq"
	OpGt         Op = "gt"
	OpGte        Op = "gte"
	OpLt         Op = "lt"
	OpLte        Op = "lte"
	OpIn         Op = "in"
	OpContains   Op = "contains"
	OpStartsWith Op = "startsWith"
	OpEndsWith   Op = "endsWith"
	OpIsNull     Op = "isNull"
	OpIsNotNull  Op = "isNotNull"
)

// CondKind identifies the condition variant.
type CondKind int

const (
	CondCompare CondKind = iota
	CondAnd
	CondOr
	CondNot
	CondHasEdge
	CondConnectedTo
)

// String returns the condition kind name used in error messages.
func (k CondKind) String() string {
	switch k {
	case CondCompare:
		return "compare"
	case CondAnd:
		return "and"
	case CondOr:
		return "or"
	case CondNot:
		return "not"
	case CondHasEdge:
		return "hasEdge"
	case CondConnectedTo:
		return "connectedTo"
	default:
		return "unknown"
	}
}

// Condition is a closed variant: exactly one payload is populated based
// on Kind. Conditions are values; composing them never aliases mutable
// state between plans.
//
// Alias names the condition's subject by user alias. Empty means the
// subject of the Where step the condition is attached to.
type Condition struct {
	Kind  CondKind `json:"kind"`
	Alias string   `json:"alias,omitempty"`

	Compare  *Compare       `json:"compare,omitempty"`
	Children []Condition    `json:"children,omitempty"`
	Edge     *EdgePredicate `json:"edge,omitempty"`
}

// Compare is a property comparison against a literal value.
type Compare struct {
	Property string `json:"property"`
	Op       Op     `json:"op"`
	Value    any    `json:"value,omitempty"`
}

// EdgePredicate describes an edge-existence test. NodeID is empty for
// plain existence (hasEdge) and set for connected-to-id tests, which the
// compiler promotes to a dedicated MATCH clause.
type EdgePredicate struct {
	Type      string    `json:"type"`
	Direction Direction `json:"direction"`
	NodeID    string    `json:"nodeId,omitempty"`
}

// On returns a copy of the condition targeting the node bound to the
// given user alias instead of the current step subject.
func (c Condition) On(userAlias string) Condition {
	c.Alias = userAlias
	return c
}

func compare(prop string, op Op, value any) Condition {
	return Condition{Kind: CondCompare, Compare: &Compare{Property: prop, Op: op, Value: value}}
}

// Eq matches nodes whose property equals value.
func Eq(prop string, value any) Condition { return compare(prop, OpEq, value) }

// Neq matches nodes whose property does not equal value. Nodes missing
// the property do not match, on either backend.
func Neq(prop string, value any) Condition { return compare(prop, OpNeq, value) }

// Gt matches nodes whose property is numerically greater than value.
func Gt(prop string, value any) Condition { return compare(prop, OpGt, value) }

// Gte matches nodes whose property is greater than or equal to value.
func Gte(prop string, value any) Condition { return compare(prop, OpGte, value) }

// Lt matches nodes whose property is numerically less than value.
func Lt(prop string, value any) Condition { return compare(prop, OpLt, value) }

// Lte matches nodes whose property is less than or equal to value.
func Lte(prop string, value any) Condition { return compare(prop, OpLte, value) }

// In matches nodes whose property is a member of the given slice.
func In(prop string, values any) Condition { return compare(prop, OpIn, values) }

// Contains matches string properties containing the given substring.
func Contains(prop, substr string) Condition { return compare(prop, OpContains, substr) }

// StartsWith matches string properties with the given prefix.
func StartsWith(prop, prefix string) Condition { return compare(prop, OpStartsWith, prefix) }

// EndsWith matches string properties with the given suffix.
func EndsWith(prop, suffix string) Condition { return compare(prop, OpEndsWith, suffix) }

// IsNull matches nodes where the property is absent or null.
func IsNull(prop string) Condition { return compare(prop, OpIsNull, nil) }

// IsNotNull matches nodes where the property is present and non-null.
func IsNotNull(prop string) Condition { return compare(prop, OpIsNotNull, nil) }

// And combines conditions; all must hold.
func And(conds ...Condition) Condition {
	return Condition{Kind: CondAnd, Children: conds}
}

// Or combines conditions; at least one must hold.
func Or(conds ...Condition) Condition {
	return Condition{Kind: CondOr, Children: conds}
}

// Not negates exactly one condition. The compiler rejects any other
// child count.
func Not(conds ...Condition) Condition {
	return Condition{Kind: CondNot, Children: conds}
}

// HasEdge matches nodes with at least one edge of the given type in the
// given direction.
func HasEdge(edgeType string, dir Direction) Condition {
	return Condition{Kind: CondHasEdge, Edge: &EdgePredicate{Type: edgeType, Direction: dir}}
}

// ConnectedTo matches nodes with an edge of the given type to or from
// the node with the given id. Must appear at the top level of a Where
// step: nesting it inside And/Or/Not is a compile error because it
// lowers to its own MATCH clause, not to a WHERE expression.
func ConnectedTo(edgeType string, dir Direction, nodeID string) Condition {
	return Condition{Kind: CondConnectedTo, Edge: &EdgePredicate{Type: edgeType, Direction: dir, NodeID: nodeID}}
}

// hasConnectedTo reports whether any condition in the slice is a
// top-level ConnectedTo.
func hasConnectedTo(conds []Condition) bool {
	for _, c := range conds {
		if c.Kind == CondConnectedTo {
			return true
		}
	}
	return false
}

// nestedConnectedTo reports whether a ConnectedTo hides inside a logical
// operator anywhere in the tree.
func nestedConnectedTo(c Condition) bool {
	switch c.Kind {
	case CondAnd, CondOr, CondNot:
		for _, child := range c.Children {
			if child.Kind == CondConnectedTo || nestedConnectedTo(child) {
				return true
			}
		}
	}
	return false
}
