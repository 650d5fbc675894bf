package cypher

import "fmt"

// CompileError reports a plan construct the compiler rejects. Only
// three constructs are rejected: a NOT condition with other than one
// operand, a ConnectedTo condition nested inside a logical operator,
// and an intersect branch step with fewer than two branches. Everything
// else a validated plan can express compiles.
type CompileError struct {
	// Op is the offending operator: "not", "connectedTo" or "intersect".
	Op string
	// Reason describes what was wrong, with counts where relevant.
	Reason string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("cypher: cannot compile %s: %s", e.Op, e.Reason)
}

func errNotArity(n int) error {
	return &CompileError{Op: "not", Reason: fmt.Sprintf("requires exactly one operand, got %d", n)}
}

func errNestedConnectedTo(parent string) error {
	return &CompileError{Op: "connectedTo", Reason: fmt.Sprintf("nested inside %s; it lowers to its own MATCH clause and must sit at the top level of a Where step", parent)}
}

func errIntersectArity(n int) error {
	return &CompileError{Op: "intersect", Reason: fmt.Sprintf("requires at least two branches, got %d", n)}
}
