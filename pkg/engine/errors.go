package engine

import (
	"errors"
	"fmt"
)

// ErrCycle is the sentinel for hierarchy moves that would create a
// cycle. Match with errors.Is; the typed CycleError carries the ids.
var ErrCycle = errors.New("cycle detected")

// CycleError reports a rejected hierarchy move: NewParentID is the node
// itself or one of its descendants, so relinking would close a loop.
type CycleError struct {
	NodeID      string
	NewParentID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("moving %q under %q would create a cycle", e.NodeID, e.NewParentID)
}

// Is makes errors.Is(err, ErrCycle) true for this error.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}

// PlanError reports a plan construct the engine rejects. The engine
// refuses exactly what the compiler refuses (a NOT condition without
// exactly one child, a ConnectedTo nested inside a logical operator,
// an intersect with fewer than two branches), so a plan either runs on
// both backends or on neither.
type PlanError struct {
	Op     string
	Reason string
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("engine: cannot execute %s: %s", e.Op, e.Reason)
}

func errNotArity(n int) error {
	return &PlanError{Op: "not", Reason: fmt.Sprintf("requires exactly 1 child condition, got %d", n)}
}

func errNestedConnectedTo(parent string) error {
	return &PlanError{Op: parent, Reason: "connectedTo cannot nest inside logical operators"}
}

func errIntersectArity(n int) error {
	return &PlanError{Op: "intersect", Reason: fmt.Sprintf("requires at least 2 branches, got %d", n)}
}
