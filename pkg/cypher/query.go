// Package cypher compiles query plans to Cypher text for Biplane.
package cypher

import (
	"github.com/biplanedb/biplane/pkg/plan"
)

// CompiledQuery is the output of one compilation: the query text, the
// parameter table it references, the result shape the caller should
// expect, and summary metadata.
//
// The text references parameters as $p0, $p1, ...; Params carries their
// values under the bare keys "p0", "p1", ... as Bolt drivers expect.
// LIMIT and SKIP counts are emitted as literals, never parameters.
//
// Compiled queries may be shared (the compile cache hands the same
// pointer to every hit); treat them as immutable.
type CompiledQuery struct {
	Cypher     string          `json:"cypher"`
	Params     map[string]any  `json:"params"`
	ResultType plan.ResultType `json:"resultType"`
	Meta       Meta            `json:"meta"`
}

// Meta summarizes a compiled query for routing, caching and logging
// decisions without re-parsing the text.
type Meta struct {
	// Complexity scores the query: one point per MATCH clause and per
	// WHERE clause, two per variable-length pattern and per set-op
	// branch past the first, one when the query aggregates. The score
	// means nothing in absolute terms; it orders queries relative to
	// each other.
	Complexity int `json:"complexity"`
	// HasVariableLengthPath is set when any pattern carries a *min..max
	// hop range (ancestors, descendants, root, reachability, explicit
	// variable-length traversals).
	HasVariableLengthPath bool `json:"hasVariableLengthPath"`
	// HasAggregation is set when the RETURN clause computes an
	// aggregate (count, sum, avg, min, max, collect).
	HasAggregation bool `json:"hasAggregation"`
	// MatchCount counts MATCH and OPTIONAL MATCH clauses, including
	// clauses synthesized by ConnectedTo promotion and set-op branches.
	MatchCount int `json:"matchCount"`
	// ReturnAliases lists the column names of the RETURN clause in
	// emission order.
	ReturnAliases []string `json:"returnAliases,omitempty"`
}
