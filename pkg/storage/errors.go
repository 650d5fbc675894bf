package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks. The typed errors below wrap these so
// callers can branch on kind with errors.Is and still extract the offending
// id with errors.As.
var (
	ErrNotFound          = errors.New("not found")
	ErrEdgeNotFound      = errors.New("edge not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidData       = errors.New("invalid data")
	ErrStoreClosed       = errors.New("store closed")
	ErrTransactionActive = errors.New("transaction already active")
	ErrTransactionClosed = errors.New("transaction already closed")
)

// NodeNotFoundError reports a lookup, update or delete against a missing node.
type NodeNotFoundError struct {
	ID string
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("node %q: not found", e.ID)
}

// Is makes errors.Is(err, ErrNotFound) true for this error.
func (e *NodeNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// EdgeNotFoundError reports a missing edge, either by id or by endpoints.
// When the lookup was by endpoints, FromID/ToID/Type are set and ID is empty.
type EdgeNotFoundError struct {
	ID     string
	FromID string
	ToID   string
	Type   string
}

func (e *EdgeNotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("edge %q: not found", e.ID)
	}
	return fmt.Sprintf("edge %s-[%s]->%s: not found", e.FromID, e.Type, e.ToID)
}

// Is makes both errors.Is(err, ErrEdgeNotFound) and errors.Is(err, ErrNotFound)
// true: an edge miss is still a not-found condition.
func (e *EdgeNotFoundError) Is(target error) bool {
	return target == ErrEdgeNotFound || target == ErrNotFound
}

// AlreadyExistsError reports a create with a duplicate id. Kind is "node" or
// "edge".
type AlreadyExistsError struct {
	Kind string
	ID   string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %q: already exists", e.Kind, e.ID)
}

func (e *AlreadyExistsError) Is(target error) bool {
	return target == ErrAlreadyExists
}
