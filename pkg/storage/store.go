package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Store is the in-memory graph store.
//
// All indexes are order-preserving slices: nodeOrder/edgeOrder carry global
// insertion order (export determinism), nodesByLabel carries per-label
// insertion order, and outgoing/incoming carry per-node adjacency insertion
// order. "First outgoing edge" is therefore a well-defined, stable concept,
// which the hierarchy operations in pkg/engine rely on.
//
// Reads return deep copies; callers can never mutate stored state through a
// returned pointer.
type Store struct {
	mu sync.RWMutex

	nodes map[string]*Node
	edges map[string]*Edge

	nodeOrder []string // node ids, insertion order
	edgeOrder []string // edge ids, insertion order

	nodesByLabel map[string][]string // label -> node ids, insertion order
	outgoing     map[string][]string // node id -> edge ids, insertion order
	incoming     map[string][]string // node id -> edge ids, insertion order

	tx     *Tx // open transaction, nil when none
	closed bool
}

// New creates an empty store ready for use.
func New() *Store {
	return &Store{
		nodes:        make(map[string]*Node),
		edges:        make(map[string]*Edge),
		nodesByLabel: make(map[string][]string),
		outgoing:     make(map[string][]string),
		incoming:     make(map[string][]string),
	}
}

// Close marks the store closed. Further mutations fail with ErrStoreClosed;
// reads on a closed store return empty results.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// CreateNode inserts a new node. The node is deep-copied on the way in.
// CreatedAt/UpdatedAt are stamped when zero. Fails with AlreadyExistsError if
// the id is taken; the id namespace is flat across labels.
func (s *Store) CreateNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, exists := s.nodes[node.ID]; exists {
		return &AlreadyExistsError{Kind: "node", ID: node.ID}
	}

	stored := node.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}

	s.nodes[stored.ID] = stored
	s.nodeOrder = append(s.nodeOrder, stored.ID)
	s.nodesByLabel[stored.Label] = append(s.nodesByLabel[stored.Label], stored.ID)
	return nil
}

// GetNode returns a copy of the node, or NodeNotFoundError.
func (s *Store) GetNode(id string) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	node, exists := s.nodes[id]
	if !exists {
		return nil, &NodeNotFoundError{ID: id}
	}
	return node.Clone(), nil
}

// HasNode reports whether a node with the id exists.
func (s *Store) HasNode(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[id]
	return ok
}

// UpdateNode merges the given properties into an existing node and returns the
// updated copy. A nil property value removes the key, matching Cypher's
// `SET n += {k: null}` behavior so both backends agree. Fails with
// NodeNotFoundError when the id is absent.
func (s *Store) UpdateNode(id string, props map[string]any) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	node, exists := s.nodes[id]
	if !exists {
		return nil, &NodeNotFoundError{ID: id}
	}

	if node.Properties == nil && len(props) > 0 {
		node.Properties = make(map[string]any, len(props))
	}
	for k, v := range props {
		if v == nil {
			delete(node.Properties, k)
			continue
		}
		node.Properties[k] = cloneValue(v)
	}
	node.UpdatedAt = time.Now()
	return node.Clone(), nil
}

// DeleteNode removes a node. With detach=true all edges touching the node are
// removed too (cascade). With detach=false the edges are preserved; the store
// permits the resulting dangling references because endpoint integrity is the
// mutation layer's responsibility.
func (s *Store) DeleteNode(id string, detach bool) error {
	if id == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	node, exists := s.nodes[id]
	if !exists {
		return &NodeNotFoundError{ID: id}
	}

	if detach {
		// Copy the id slices first: deleteEdgeLocked mutates them.
		var doomed []string
		doomed = append(doomed, s.outgoing[id]...)
		for _, edgeID := range s.incoming[id] {
			if edge := s.edges[edgeID]; edge != nil && edge.FromID == edge.ToID {
				continue // self-loop already collected from outgoing
			}
			doomed = append(doomed, edgeID)
		}
		for _, edgeID := range doomed {
			s.deleteEdgeLocked(edgeID)
		}
		delete(s.outgoing, id)
		delete(s.incoming, id)
	}

	s.nodesByLabel[node.Label] = removeString(s.nodesByLabel[node.Label], id)
	if len(s.nodesByLabel[node.Label]) == 0 {
		delete(s.nodesByLabel, node.Label)
	}
	s.nodeOrder = removeString(s.nodeOrder, id)
	delete(s.nodes, id)
	return nil
}

// CreateEdge inserts a new edge. Endpoint existence is intentionally NOT
// checked here (see the package comment); only id uniqueness is enforced.
func (s *Store) CreateEdge(edge *Edge) error {
	if edge == nil {
		return ErrInvalidData
	}
	if edge.ID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, exists := s.edges[edge.ID]; exists {
		return &AlreadyExistsError{Kind: "edge", ID: edge.ID}
	}

	stored := edge.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	s.edges[stored.ID] = stored
	s.edgeOrder = append(s.edgeOrder, stored.ID)
	s.outgoing[stored.FromID] = append(s.outgoing[stored.FromID], stored.ID)
	s.incoming[stored.ToID] = append(s.incoming[stored.ToID], stored.ID)
	return nil
}

// GetEdge returns a copy of the edge, or EdgeNotFoundError.
func (s *Store) GetEdge(id string) (*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	edge, exists := s.edges[id]
	if !exists {
		return nil, &EdgeNotFoundError{ID: id}
	}
	return edge.Clone(), nil
}

// UpdateEdge merges properties into an existing edge, with the same nil-removes
// semantics as UpdateNode.
func (s *Store) UpdateEdge(id string, props map[string]any) (*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	edge, exists := s.edges[id]
	if !exists {
		return nil, &EdgeNotFoundError{ID: id}
	}

	if edge.Properties == nil && len(props) > 0 {
		edge.Properties = make(map[string]any, len(props))
	}
	for k, v := range props {
		if v == nil {
			delete(edge.Properties, k)
			continue
		}
		edge.Properties[k] = cloneValue(v)
	}
	return edge.Clone(), nil
}

// DeleteEdge removes an edge by id.
func (s *Store) DeleteEdge(id string) error {
	if id == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, exists := s.edges[id]; !exists {
		return &EdgeNotFoundError{ID: id}
	}
	s.deleteEdgeLocked(id)
	return nil
}

// UnlinkEdges removes every edge of the given type between two endpoints and
// returns how many were removed. Parallel edges all go together; both
// backends follow the same delete-all rule. An empty edgeType matches any
// type. Returns EdgeNotFoundError when nothing matched.
func (s *Store) UnlinkEdges(fromID, toID, edgeType string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var doomed []string
	for _, edgeID := range s.outgoing[fromID] {
		edge := s.edges[edgeID]
		if edge == nil || edge.ToID != toID {
			continue
		}
		if edgeType != "" && edge.Type != edgeType {
			continue
		}
		doomed = append(doomed, edgeID)
	}
	if len(doomed) == 0 {
		return 0, &EdgeNotFoundError{FromID: fromID, ToID: toID, Type: edgeType}
	}
	for _, edgeID := range doomed {
		s.deleteEdgeLocked(edgeID)
	}
	return len(doomed), nil
}

// deleteEdgeLocked removes an edge and its adjacency entries. Caller holds mu.
func (s *Store) deleteEdgeLocked(id string) {
	edge, exists := s.edges[id]
	if !exists {
		return
	}
	s.outgoing[edge.FromID] = removeString(s.outgoing[edge.FromID], id)
	s.incoming[edge.ToID] = removeString(s.incoming[edge.ToID], id)
	s.edgeOrder = removeString(s.edgeOrder, id)
	delete(s.edges, id)
}

// NodesByLabel returns copies of every node with the label, in insertion
// order. Label matching is case-sensitive, matching Cypher semantics.
func (s *Store) NodesByLabel(label string) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.nodesByLabel[label]
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		if node := s.nodes[id]; node != nil {
			out = append(out, node.Clone())
		}
	}
	return out
}

// AllNodes returns copies of every node in insertion order.
func (s *Store) AllNodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Node, 0, len(s.nodeOrder))
	for _, id := range s.nodeOrder {
		if node := s.nodes[id]; node != nil {
			out = append(out, node.Clone())
		}
	}
	return out
}

// AllEdges returns copies of every edge in insertion order.
func (s *Store) AllEdges() []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Edge, 0, len(s.edgeOrder))
	for _, id := range s.edgeOrder {
		if edge := s.edges[id]; edge != nil {
			out = append(out, edge.Clone())
		}
	}
	return out
}

// OutgoingEdges returns the node's outgoing edges in insertion order,
// optionally filtered to the given edge types. The first element is "the
// first outgoing edge" in the deterministic sense hierarchy code depends on.
func (s *Store) OutgoingEdges(nodeID string, types ...string) []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectEdges(s.outgoing[nodeID], types)
}

// IncomingEdges returns the node's incoming edges in insertion order,
// optionally filtered by type.
func (s *Store) IncomingEdges(nodeID string, types ...string) []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectEdges(s.incoming[nodeID], types)
}

// EdgesBetween returns directed edges fromID -> toID in insertion order,
// optionally filtered by type.
func (s *Store) EdgesBetween(fromID, toID string, types ...string) []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Edge
	for _, edgeID := range s.outgoing[fromID] {
		edge := s.edges[edgeID]
		if edge == nil || edge.ToID != toID {
			continue
		}
		if len(types) > 0 && !typeMatches(edge.Type, types) {
			continue
		}
		out = append(out, edge.Clone())
	}
	return out
}

func (s *Store) collectEdges(ids []string, types []string) []*Edge {
	out := make([]*Edge, 0, len(ids))
	for _, id := range ids {
		edge := s.edges[id]
		if edge == nil {
			continue
		}
		if len(types) > 0 && !typeMatches(edge.Type, types) {
			continue
		}
		out = append(out, edge.Clone())
	}
	return out
}

// Export produces a full snapshot in insertion order.
func (s *Store) Export() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exportLocked()
}

func (s *Store) exportLocked() *Snapshot {
	snap := &Snapshot{
		Nodes: make([]*Node, 0, len(s.nodeOrder)),
		Edges: make([]*Edge, 0, len(s.edgeOrder)),
	}
	for _, id := range s.nodeOrder {
		if node := s.nodes[id]; node != nil {
			snap.Nodes = append(snap.Nodes, node.Clone())
		}
	}
	for _, id := range s.edgeOrder {
		if edge := s.edges[id]; edge != nil {
			snap.Edges = append(snap.Edges, edge.Clone())
		}
	}
	return snap
}

// Import replaces all store state with the snapshot contents. Insertion order
// is rebuilt from array order. The swap is atomic: a duplicate id inside the
// snapshot fails the import and leaves current state untouched. Edge
// endpoints are not validated, consistent with CreateEdge.
func (s *Store) Import(snap *Snapshot) error {
	if snap == nil {
		return ErrInvalidData
	}

	nodes := make(map[string]*Node, len(snap.Nodes))
	edges := make(map[string]*Edge, len(snap.Edges))
	nodeOrder := make([]string, 0, len(snap.Nodes))
	edgeOrder := make([]string, 0, len(snap.Edges))
	nodesByLabel := make(map[string][]string)
	outgoing := make(map[string][]string)
	incoming := make(map[string][]string)

	for _, node := range snap.Nodes {
		if node == nil || node.ID == "" {
			return ErrInvalidData
		}
		if _, dup := nodes[node.ID]; dup {
			return &AlreadyExistsError{Kind: "node", ID: node.ID}
		}
		stored := node.Clone()
		nodes[stored.ID] = stored
		nodeOrder = append(nodeOrder, stored.ID)
		nodesByLabel[stored.Label] = append(nodesByLabel[stored.Label], stored.ID)
	}
	for _, edge := range snap.Edges {
		if edge == nil || edge.ID == "" {
			return ErrInvalidData
		}
		if _, dup := edges[edge.ID]; dup {
			return &AlreadyExistsError{Kind: "edge", ID: edge.ID}
		}
		stored := edge.Clone()
		edges[stored.ID] = stored
		edgeOrder = append(edgeOrder, stored.ID)
		outgoing[stored.FromID] = append(outgoing[stored.FromID], stored.ID)
		incoming[stored.ToID] = append(incoming[stored.ToID], stored.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	s.nodes = nodes
	s.edges = edges
	s.nodeOrder = nodeOrder
	s.edgeOrder = edgeOrder
	s.nodesByLabel = nodesByLabel
	s.outgoing = outgoing
	s.incoming = incoming

	log.Debug("store import", "nodes", len(nodeOrder), "edges", len(edgeOrder))
	return nil
}

// Stats returns counts and sorted distinct labels/edge types.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	labels := make([]string, 0, len(s.nodesByLabel))
	for label := range s.nodesByLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	typeSet := make(map[string]struct{})
	for _, edge := range s.edges {
		typeSet[edge.Type] = struct{}{}
	}
	types := make([]string, 0, len(typeSet))
	for t := range typeSet {
		types = append(types, t)
	}
	sort.Strings(types)

	return Stats{
		Nodes:     int64(len(s.nodes)),
		Edges:     int64(len(s.edges)),
		Labels:    labels,
		EdgeTypes: types,
	}
}

func typeMatches(edgeType string, allowed []string) bool {
	for _, t := range allowed {
		if t == edgeType {
			return true
		}
	}
	return false
}

// removeString removes the first occurrence of v, preserving order.
func removeString(list []string, v string) []string {
	for i, item := range list {
		if item == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
