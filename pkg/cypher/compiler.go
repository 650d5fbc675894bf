package cypher

import (
	"fmt"
	"strings"

	"github.com/biplanedb/biplane/pkg/plan"
)

// Compiler translates validated plans into Cypher text.
//
// Compilation is a single pass over the step sequence with two rewrite
// passes: consecutive Where steps are AND-merged into one WHERE clause,
// and ConnectedTo conditions are promoted to their own MATCH clauses so
// the target planner can start from an id lookup. ORDER BY, SKIP and
// LIMIT are buffered and emitted after the RETURN clause regardless of
// where the steps appeared.
//
// Compile is pure: it never mutates the plan, and the same plan
// compiles to byte-identical output on every call.
//
// Example:
//
//	p, _ := plan.NewBuilder().
//		Match("user").
//		Where(plan.Eq("name", "Ada")).
//		Plan()
//
//	q, _ := cypher.New().Compile(p)
//	// q.Cypher == "MATCH (n0:user)\nWHERE n0.name = $p0\nRETURN n0"
//	// q.Params == map[string]any{"p0": "Ada"}
type Compiler struct {
	cache *Cache
}

// New returns a compiler without a cache.
func New() *Compiler {
	return &Compiler{}
}

// NewCached returns a compiler that memoizes compiled queries in an LRU
// cache with the given capacity.
func NewCached(maxSize int) *Compiler {
	return &Compiler{cache: NewCache(maxSize)}
}

// Cache exposes the compiler's cache, nil when uncached.
func (c *Compiler) Cache() *Cache {
	return c.cache
}

// Compile translates one plan to a Cypher query.
func (c *Compiler) Compile(p *plan.Plan) (*CompiledQuery, error) {
	if c.cache != nil {
		if q, ok := c.cache.Get(p); ok {
			return q, nil
		}
	}
	q, err := compile(p)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Put(p, q)
	}
	return q, nil
}

// Compile translates one plan with a throwaway uncached compiler.
func Compile(p *plan.Plan) (*CompiledQuery, error) {
	return compile(p)
}

// shared holds the counters and tables one compilation shares across
// set-op branch scopes: the parameter table and the alias/metadata
// counters must stay global so branches never collide.
type shared struct {
	params   map[string]any
	paramSeq int
	ctSeq    int
	pathSeq  int

	matchCount  int
	whereCount  int
	varLenCount int
	branchExtra int
	aggregation bool
}

// param registers a value and returns its $pN reference.
func (s *shared) param(v any) string {
	key := fmt.Sprintf("p%d", s.paramSeq)
	s.paramSeq++
	s.params[key] = v
	return "$" + key
}

type orderKey struct {
	alias      string
	property   string
	descending bool
}

type depthCol struct {
	name string
	expr string
}

// state is one emission scope. The top-level plan compiles in one
// state; union and intersect branches compile in sub-states that share
// the same counters but keep their own clause list, alias renames and
// buffered tail.
type state struct {
	sh   *shared
	plan *plan.Plan

	clauses []string

	// prefix renames every alias inside an intersect branch past the
	// first, keeping its namespace disjoint from the carried bindings.
	prefix string
	// unify maps a branch's result alias onto the carried alias so a
	// later MATCH re-binds the same variable, which is what makes the
	// chain an intersection.
	unify map[string]string
	// forceOptional compiles every pattern as OPTIONAL MATCH; set
	// inside fork branches.
	forceOptional bool

	distinct   bool
	resultCol  string
	carried    string
	returnDone bool

	orderKeys []orderKey
	skip      *int64
	limit     *int64

	depthCols     []depthCol
	returnAliases []string
}

func compile(p *plan.Plan) (*CompiledQuery, error) {
	sh := &shared{params: make(map[string]any)}
	st := &state{sh: sh, plan: p}

	if err := st.emitSteps(p.Steps); err != nil {
		return nil, err
	}
	if err := st.emitReturn(p.Projection); err != nil {
		return nil, err
	}
	st.emitTail()

	meta := Meta{
		Complexity:            sh.matchCount + sh.whereCount + 2*sh.varLenCount + 2*sh.branchExtra,
		HasVariableLengthPath: sh.varLenCount > 0,
		HasAggregation:        sh.aggregation,
		MatchCount:            sh.matchCount,
		ReturnAliases:         st.returnAliases,
	}
	if sh.aggregation {
		meta.Complexity++
	}

	return &CompiledQuery{
		Cypher:     strings.Join(st.clauses, "\n"),
		Params:     sh.params,
		ResultType: p.ResultType(),
		Meta:       meta,
	}, nil
}

func (st *state) clause(text string) {
	st.clauses = append(st.clauses, text)
}

func (st *state) whereClause(expr string) {
	st.sh.whereCount++
	st.clause("WHERE " + expr)
}

// alias renders an internal alias for the current scope, applying the
// intersect unification and prefix when set.
func (st *state) alias(a string) string {
	if st.unify != nil {
		if m, ok := st.unify[a]; ok {
			return m
		}
	}
	if st.prefix != "" {
		return st.prefix + a
	}
	return a
}

// resolve maps a user alias to its internal alias within this scope's
// plan. Unknown names pass through untouched: validation ran before
// compilation, so anything left is already internal.
func (st *state) resolve(name string) string {
	if internal, ok := st.plan.Resolve(name); ok {
		return internal
	}
	return name
}

func (st *state) emitSteps(steps []plan.Step) error {
	for _, step := range mergeWheres(steps) {
		var err error
		switch step.Kind {
		case plan.StepMatch:
			st.emitMatch(step.Match)
		case plan.StepTraversal:
			err = st.emitTraversal(step.Traversal)
		case plan.StepWhere:
			err = st.emitWhere(step.Where)
		case plan.StepHierarchy:
			st.emitHierarchy(step.Hierarchy)
		case plan.StepReachable:
			st.emitReachable(step.Reachable)
		case plan.StepBranch:
			err = st.emitBranch(step.Branch)
		case plan.StepFork:
			err = st.emitFork(step.Fork)
		case plan.StepOrderBy:
			st.orderKeys = append(st.orderKeys, orderKey{
				alias:      st.resolve(step.OrderBy.Alias),
				property:   step.OrderBy.Property,
				descending: step.OrderBy.Descending,
			})
		case plan.StepLimit:
			st.limit = step.Limit
		case plan.StepSkip:
			st.skip = step.Skip
		case plan.StepDistinct:
			st.distinct = true
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// mergeWheres AND-merges runs of consecutive Where steps into one step.
// A step carrying a ConnectedTo condition never merges: it lowers to a
// MATCH clause, which naturally separates the run. Merged conditions
// are stamped with their own step's subject so the combined clause
// filters each on the right alias.
func mergeWheres(steps []plan.Step) []plan.Step {
	out := make([]plan.Step, 0, len(steps))
	for _, s := range steps {
		if s.Kind != plan.StepWhere {
			out = append(out, s)
			continue
		}
		cur := &plan.WhereStep{Alias: s.Where.Alias, Conditions: stampSubjects(s.Where)}
		if n := len(out); n > 0 && out[n-1].Kind == plan.StepWhere &&
			!anyConnectedTo(out[n-1].Where.Conditions) && !anyConnectedTo(cur.Conditions) {
			prev := out[n-1].Where
			merged := make([]plan.Condition, 0, len(prev.Conditions)+len(cur.Conditions))
			merged = append(merged, prev.Conditions...)
			merged = append(merged, cur.Conditions...)
			out[n-1] = plan.Step{Kind: plan.StepWhere, Where: &plan.WhereStep{
				Alias:      prev.Alias,
				Conditions: merged,
			}}
			continue
		}
		out = append(out, plan.Step{Kind: plan.StepWhere, Where: cur})
	}
	return out
}

// stampSubjects copies the step's conditions with empty subjects filled
// in from the step, so merging steps with different subjects keeps each
// condition on its own alias. The originals stay untouched.
func stampSubjects(w *plan.WhereStep) []plan.Condition {
	conds := make([]plan.Condition, len(w.Conditions))
	for i, c := range w.Conditions {
		if c.Alias == "" {
			c.Alias = w.Alias
		}
		conds[i] = c
	}
	return conds
}

func anyConnectedTo(conds []plan.Condition) bool {
	for _, c := range conds {
		if c.Kind == plan.CondConnectedTo {
			return true
		}
	}
	return false
}

// emitTail flushes the buffered ORDER BY, SKIP and LIMIT clauses, in
// that order, after everything else.
func (st *state) emitTail() {
	if len(st.orderKeys) > 0 {
		parts := make([]string, len(st.orderKeys))
		for i, k := range st.orderKeys {
			s := st.alias(k.alias) + "." + k.property
			if k.descending {
				s += " DESC"
			}
			parts[i] = s
		}
		st.clause("ORDER BY " + strings.Join(parts, ", "))
	}
	if st.skip != nil {
		st.clause(fmt.Sprintf("SKIP %d", *st.skip))
	}
	if st.limit != nil {
		st.clause(fmt.Sprintf("LIMIT %d", *st.limit))
	}
}
