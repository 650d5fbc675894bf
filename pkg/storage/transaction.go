package storage

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// TxStatus is the lifecycle state of a transaction.
type TxStatus string

const (
	TxActive     TxStatus = "active"
	TxCommitted  TxStatus = "committed"
	TxRolledBack TxStatus = "rolled_back"
)

// Tx is a cooperative snapshot transaction.
//
// Begin captures a deep copy of all store state. Mutations made while the
// transaction is open apply to live state immediately; Rollback restores the
// captured snapshot exactly, Commit discards it. Exactly one transaction may
// be open per store; a second Begin fails fast with ErrTransactionActive
// rather than silently clobbering the first snapshot.
type Tx struct {
	mu sync.Mutex

	ID        string
	StartedAt time.Time
	Status    TxStatus

	store *Store
	saved *txState
}

// txState is the captured store state restored on rollback.
type txState struct {
	nodes        map[string]*Node
	edges        map[string]*Edge
	nodeOrder    []string
	edgeOrder    []string
	nodesByLabel map[string][]string
	outgoing     map[string][]string
	incoming     map[string][]string
}

// Begin opens a transaction, snapshotting all current state. Fails with
// ErrTransactionActive while another transaction is open, and ErrStoreClosed
// on a closed store.
func (s *Store) Begin() (*Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if s.tx != nil {
		return nil, ErrTransactionActive
	}

	tx := &Tx{
		ID:        "tx-" + uuid.NewString(),
		StartedAt: time.Now(),
		Status:    TxActive,
		store:     s,
		saved:     s.captureLocked(),
	}
	s.tx = tx

	log.Debug("transaction begin", "tx", tx.ID, "nodes", len(tx.saved.nodeOrder), "edges", len(tx.saved.edgeOrder))
	return tx, nil
}

// InTransaction reports whether a transaction is currently open.
func (s *Store) InTransaction() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tx != nil
}

// Commit keeps every mutation made since Begin and discards the snapshot.
func (tx *Tx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.Status != TxActive {
		return ErrTransactionClosed
	}

	tx.store.mu.Lock()
	tx.store.tx = nil
	tx.store.mu.Unlock()

	tx.Status = TxCommitted
	tx.saved = nil
	log.Debug("transaction commit", "tx", tx.ID)
	return nil
}

// Rollback restores the store to the exact state captured at Begin.
func (tx *Tx) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.Status != TxActive {
		return ErrTransactionClosed
	}

	tx.store.mu.Lock()
	tx.store.restoreLocked(tx.saved)
	tx.store.tx = nil
	tx.store.mu.Unlock()

	tx.Status = TxRolledBack
	tx.saved = nil
	log.Debug("transaction rollback", "tx", tx.ID)
	return nil
}

// captureLocked deep-copies all store state. Caller holds mu.
func (s *Store) captureLocked() *txState {
	state := &txState{
		nodes:        make(map[string]*Node, len(s.nodes)),
		edges:        make(map[string]*Edge, len(s.edges)),
		nodeOrder:    append([]string(nil), s.nodeOrder...),
		edgeOrder:    append([]string(nil), s.edgeOrder...),
		nodesByLabel: cloneIndex(s.nodesByLabel),
		outgoing:     cloneIndex(s.outgoing),
		incoming:     cloneIndex(s.incoming),
	}
	for id, node := range s.nodes {
		state.nodes[id] = node.Clone()
	}
	for id, edge := range s.edges {
		state.edges[id] = edge.Clone()
	}
	return state
}

// restoreLocked swaps the captured state back in. Caller holds mu.
func (s *Store) restoreLocked(state *txState) {
	s.nodes = state.nodes
	s.edges = state.edges
	s.nodeOrder = state.nodeOrder
	s.edgeOrder = state.edgeOrder
	s.nodesByLabel = state.nodesByLabel
	s.outgoing = state.outgoing
	s.incoming = state.incoming
}

func cloneIndex(idx map[string][]string) map[string][]string {
	out := make(map[string][]string, len(idx))
	for k, v := range idx {
		out[k] = append([]string(nil), v...)
	}
	return out
}
