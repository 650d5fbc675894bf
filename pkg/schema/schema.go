// Package schema defines the graph's shape: which labels exist, which
// properties they carry, and which edge types connect them with what
// multiplicity. The query layer consults a Validator before building
// plans; the mutation layer consults it before writing. The registry is
// advisory; the store itself never enforces schema.
package schema

import (
	"errors"
	"fmt"
)

// Cardinality is the multiplicity of one endpoint of an edge type. An
// outbound cardinality of One means a source node links to exactly one
// target; Optional means zero or one; Many means any number.
type Cardinality string

const (
	One      Cardinality = "one"
	Many     Cardinality = "many"
	Optional Cardinality = "optional"
)

func (c Cardinality) valid() bool {
	switch c {
	case One, Many, Optional:
		return true
	}
	return false
}

// PropertyDef declares one property of a label. Type is informational
// ("string", "int", "float", "bool", "time"); Required marks properties
// a node of this label must carry.
type PropertyDef struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// LabelDef declares a node label and its properties.
type LabelDef struct {
	Name       string        `json:"name" yaml:"name"`
	Properties []PropertyDef `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// EdgeDef declares an edge type between two labels. Outbound is the
// multiplicity of targets per source node, Inbound the multiplicity of
// sources per target node. Empty cardinalities default to Many.
type EdgeDef struct {
	Type     string      `json:"type" yaml:"type"`
	From     string      `json:"from" yaml:"from"`
	To       string      `json:"to" yaml:"to"`
	Outbound Cardinality `json:"outbound,omitempty" yaml:"outbound,omitempty"`
	Inbound  Cardinality `json:"inbound,omitempty" yaml:"inbound,omitempty"`
}

// Validator is the read surface the query and mutation layers consume.
// Implementations must be safe for concurrent use.
type Validator interface {
	// HasLabel reports whether the label is defined.
	HasLabel(label string) bool
	// HasEdgeType reports whether the edge type is defined.
	HasEdgeType(edgeType string) bool
	// HasProperty reports whether the label defines the property.
	HasProperty(label, property string) bool
	// EdgeDef returns the definition of an edge type.
	EdgeDef(edgeType string) (EdgeDef, bool)
}

// Sentinel errors for registry definition failures and lookup misses.
// Typed errors wrap these so errors.Is works against the sentinel.
var (
	ErrUnknownLabel       = errors.New("unknown label")
	ErrUnknownEdgeType    = errors.New("unknown edge type")
	ErrDuplicateLabel     = errors.New("label already defined")
	ErrDuplicateEdge      = errors.New("edge type already defined")
	ErrInvalidCardinality = errors.New("invalid cardinality")
)

// DefinitionError reports a rejected label or edge definition.
type DefinitionError struct {
	Kind string // "label" or "edge"
	Name string
	Err  error
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("schema: %s %q: %v", e.Kind, e.Name, e.Err)
}

func (e *DefinitionError) Unwrap() error { return e.Err }
