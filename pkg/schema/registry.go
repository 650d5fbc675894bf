package schema

import (
	"sort"
	"sync"
)

// Registry is the in-memory Validator implementation. Definitions are
// added up front and read concurrently afterwards; a RWMutex keeps
// late definitions safe anyway.
type Registry struct {
	mu     sync.RWMutex
	labels map[string]LabelDef
	edges  map[string]EdgeDef
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		labels: make(map[string]LabelDef),
		edges:  make(map[string]EdgeDef),
	}
}

// DefineLabel registers a node label. Redefining a label fails.
func (r *Registry) DefineLabel(def LabelDef) error {
	if def.Name == "" {
		return &DefinitionError{Kind: "label", Name: def.Name, Err: ErrUnknownLabel}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.labels[def.Name]; exists {
		return &DefinitionError{Kind: "label", Name: def.Name, Err: ErrDuplicateLabel}
	}
	r.labels[def.Name] = def
	return nil
}

// DefineEdge registers an edge type. Both endpoint labels must already
// be defined; empty cardinalities default to Many.
func (r *Registry) DefineEdge(def EdgeDef) error {
	if def.Outbound == "" {
		def.Outbound = Many
	}
	if def.Inbound == "" {
		def.Inbound = Many
	}
	if !def.Outbound.valid() || !def.Inbound.valid() {
		return &DefinitionError{Kind: "edge", Name: def.Type, Err: ErrInvalidCardinality}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.edges[def.Type]; exists {
		return &DefinitionError{Kind: "edge", Name: def.Type, Err: ErrDuplicateEdge}
	}
	for _, label := range []string{def.From, def.To} {
		if _, ok := r.labels[label]; !ok {
			return &DefinitionError{Kind: "edge", Name: def.Type, Err: ErrUnknownLabel}
		}
	}
	r.edges[def.Type] = def
	return nil
}

// HasLabel reports whether the label is defined.
func (r *Registry) HasLabel(label string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.labels[label]
	return ok
}

// HasEdgeType reports whether the edge type is defined.
func (r *Registry) HasEdgeType(edgeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.edges[edgeType]
	return ok
}

// HasProperty reports whether the label defines the property. Unknown
// labels have no properties.
func (r *Registry) HasProperty(label, property string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.labels[label]
	if !ok {
		return false
	}
	for _, p := range def.Properties {
		if p.Name == property {
			return true
		}
	}
	return false
}

// EdgeDef returns the definition of an edge type.
func (r *Registry) EdgeDef(edgeType string) (EdgeDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.edges[edgeType]
	return def, ok
}

// Label returns a label definition.
func (r *Registry) Label(name string) (LabelDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.labels[name]
	return def, ok
}

// Labels lists defined label names, sorted.
func (r *Registry) Labels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.labels))
	for name := range r.labels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// EdgeTypes lists defined edge type names, sorted.
func (r *Registry) EdgeTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.edges))
	for t := range r.edges {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// EdgesFrom lists edge definitions whose From endpoint is the label,
// sorted by type name.
func (r *Registry) EdgesFrom(label string) []EdgeDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []EdgeDef
	for _, def := range r.edges {
		if def.From == label {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// MissingRequired lists the label's required properties absent from the
// given property map, sorted. An unknown label requires nothing.
func (r *Registry) MissingRequired(label string, props map[string]any) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.labels[label]
	if !ok {
		return nil
	}
	var missing []string
	for _, p := range def.Properties {
		if !p.Required {
			continue
		}
		if v, present := props[p.Name]; !present || v == nil {
			missing = append(missing, p.Name)
		}
	}
	sort.Strings(missing)
	return missing
}

var _ Validator = (*Registry)(nil)
