package plan

import (
	"fmt"
)

// aliasBlock is the numeric offset stride separating fork branch alias
// namespaces. Each branch allocates aliases at its own multiple of this
// stride, so merging branch registries back into the parent never
// collides as long as a single scope stays under aliasBlock aliases.
const aliasBlock = 1000

// arena is the shared append-only backing store behind builder cursors.
// A cursor never reads past its own lengths, so appends by a newer
// cursor are invisible to older ones. When a cursor appends while the
// arena has already grown past it (a diverging history), it first clones
// its visible prefix into a fresh arena.
type arena struct {
	steps    []Step
	aliases  []aliasEntry
	bindings []userBinding
	// blocks counts fork alias-offset blocks handed out in this arena's
	// history, including blocks consumed by nested forks.
	blocks int
}

type aliasEntry struct {
	alias string
	info  AliasInfo
}

type userBinding struct {
	name     string
	internal string
	kind     AliasKind
	step     int
}

// Builder accumulates plan steps. It is a value: every method returns a
// new Builder and the receiver stays valid, reusable, and independently
// sealable. Builders share step storage structurally but never observe
// each other's appends.
//
// Builders are not safe for concurrent use; plan construction is a
// synchronous, single-goroutine activity.
type Builder struct {
	ar        *arena
	nSteps    int
	nAliases  int
	nBindings int

	nodeSeq int
	edgeSeq int
	pathSeq int
	// offset shifts allocated alias numbers; non-zero inside fork
	// branches.
	offset int

	currentAlias string
	currentLabel string

	projection *Projection

	// err is sticky: the first construction error wins and surfaces
	// from Validate/Plan.
	err error
}

// NewBuilder returns an empty builder.
func NewBuilder() Builder {
	return Builder{ar: &arena{}}
}

// Err returns the first construction error recorded so far, if any.
func (b Builder) Err() error { return b.err }

// ensureOwned clones the visible prefix into a fresh arena when the
// shared arena has grown past this cursor. Appends after it are safe.
func (b *Builder) ensureOwned() {
	if b.nSteps == len(b.ar.steps) &&
		b.nAliases == len(b.ar.aliases) &&
		b.nBindings == len(b.ar.bindings) {
		return
	}
	b.ar = &arena{
		steps:    append(make([]Step, 0, b.nSteps+1), b.ar.steps[:b.nSteps]...),
		aliases:  append(make([]aliasEntry, 0, b.nAliases+1), b.ar.aliases[:b.nAliases]...),
		bindings: append(make([]userBinding, 0, b.nBindings), b.ar.bindings[:b.nBindings]...),
		blocks:   b.ar.blocks,
	}
}

func (b *Builder) appendStep(s Step) {
	b.ar.steps = append(b.ar.steps, s)
	b.nSteps++
}

func (b *Builder) allocNode(label string, step int) string {
	alias := fmt.Sprintf("n%d", b.offset+b.nodeSeq)
	b.nodeSeq++
	b.ar.aliases = append(b.ar.aliases, aliasEntry{alias, AliasInfo{Kind: AliasNode, Label: label, Step: step}})
	b.nAliases++
	return alias
}

func (b *Builder) allocEdge(step int) string {
	alias := fmt.Sprintf("e%d", b.offset+b.edgeSeq)
	b.edgeSeq++
	b.ar.aliases = append(b.ar.aliases, aliasEntry{alias, AliasInfo{Kind: AliasEdge, Step: step}})
	b.nAliases++
	return alias
}

func (b *Builder) allocPath(step int) string {
	alias := fmt.Sprintf("p%d", b.offset+b.pathSeq)
	b.pathSeq++
	b.ar.aliases = append(b.ar.aliases, aliasEntry{alias, AliasInfo{Kind: AliasPath, Step: step}})
	b.nAliases++
	return alias
}

func (b *Builder) bind(name, internal string, kind AliasKind) {
	b.ar.bindings = append(b.ar.bindings, userBinding{name: name, internal: internal, kind: kind, step: b.nSteps})
	b.nBindings++
}

// Match starts a pattern at nodes with the given label and makes the
// fresh alias current.
func (b Builder) Match(label string) Builder {
	if b.err != nil {
		return b
	}
	b.ensureOwned()
	step := b.nSteps
	alias := b.allocNode(label, step)
	b.appendStep(Step{Kind: StepMatch, Match: &MatchStep{Alias: alias, Label: label}})
	b.currentAlias = alias
	b.currentLabel = label
	return b
}

// MatchByID starts a pattern at the single node with the given id. Ids
// are globally unique across labels, so no label is required; an
// optional label narrows the pattern when known.
func (b Builder) MatchByID(id string, label ...string) Builder {
	if b.err != nil {
		return b
	}
	b.ensureOwned()
	lbl := ""
	if len(label) > 0 {
		lbl = label[0]
	}
	step := b.nSteps
	alias := b.allocNode(lbl, step)
	b.appendStep(Step{Kind: StepMatch, Match: &MatchStep{Alias: alias, Label: lbl, ID: id}})
	b.currentAlias = alias
	b.currentLabel = lbl
	return b
}

// Traverse hops from the current node along the spec's edges, allocates
// an edge alias and a target node alias, and makes the target current.
func (b Builder) Traverse(spec TraversalSpec) Builder {
	if b.err != nil {
		return b
	}
	b.ensureOwned()
	step := b.nSteps
	from := b.currentAlias

	edgeAlias := b.allocEdge(step)
	toLabel := ""
	if len(spec.ToLabels) == 1 {
		toLabel = spec.ToLabels[0]
	}
	toAlias := b.allocNode(toLabel, step)

	pathAlias := ""
	if spec.PathName != "" {
		pathAlias = b.allocPath(step)
		b.bind(spec.PathName, pathAlias, AliasPath)
	}
	if spec.EdgeAlias != "" {
		b.bind(spec.EdgeAlias, edgeAlias, AliasEdge)
	}

	b.appendStep(Step{Kind: StepTraversal, Traversal: &TraversalStep{
		FromAlias:   from,
		EdgeAlias:   edgeAlias,
		ToAlias:     toAlias,
		PathAlias:   pathAlias,
		Edges:       cloneStrings(spec.Edges),
		Direction:   spec.Direction,
		ToLabels:    cloneStrings(spec.ToLabels),
		Cardinality: spec.Cardinality,
		VarLength:   cloneVarLength(spec.VarLength),
		EdgeWhere:   cloneConditions(spec.EdgeWhere),
		Optional:    spec.Optional || spec.Cardinality == CardinalityMaybe,
	}})
	b.currentAlias = toAlias
	b.currentLabel = toLabel
	return b
}

// Where filters the current node rows. Conditions without an explicit
// target apply to the current alias.
func (b Builder) Where(conds ...Condition) Builder {
	if b.err != nil {
		return b
	}
	b.ensureOwned()
	b.appendStep(Step{Kind: StepWhere, Where: &WhereStep{
		Alias:      b.currentAlias,
		Conditions: cloneConditions(conds),
	}})
	return b
}

// As binds a caller-facing name to the current node alias. A node must
// be named before a projection can reference it.
func (b Builder) As(name string) Builder {
	if b.err != nil {
		return b
	}
	if b.currentAlias == "" {
		b.err = fmt.Errorf("plan: As(%q) requires a current node; call Match first", name)
		return b
	}
	b.ensureOwned()
	b.bind(name, b.currentAlias, AliasNode)
	return b
}

// Hierarchy navigates the designated hierarchy edge type from the
// current node and makes the result alias current. The hierarchy edge
// points child to parent.
func (b Builder) Hierarchy(spec HierarchySpec) Builder {
	if b.err != nil {
		return b
	}
	b.ensureOwned()
	step := b.nSteps
	from := b.currentAlias

	toAlias := b.allocNode("", step)
	siblingVia := ""
	if spec.Mode == HierarchySiblings {
		siblingVia = b.allocNode("", step)
	}
	pathAlias := ""
	if spec.PathName != "" {
		pathAlias = b.allocPath(step)
		b.bind(spec.PathName, pathAlias, AliasPath)
	}

	b.appendStep(Step{Kind: StepHierarchy, Hierarchy: &HierarchyStep{
		Mode:        spec.Mode,
		EdgeType:    spec.EdgeType,
		FromAlias:   from,
		ToAlias:     toAlias,
		SiblingVia:  siblingVia,
		PathAlias:   pathAlias,
		MinDepth:    spec.MinDepth,
		MaxDepth:    spec.MaxDepth,
		IncludeSelf: spec.IncludeSelf,
		DepthAlias:  spec.DepthAlias,
	}})
	b.currentAlias = toAlias
	b.currentLabel = ""
	return b
}

// Reachable computes the set of nodes reachable from the current node
// within the spec's hop bounds and makes the result alias current.
func (b Builder) Reachable(spec ReachableSpec) Builder {
	if b.err != nil {
		return b
	}
	b.ensureOwned()
	step := b.nSteps
	from := b.currentAlias
	toAlias := b.allocNode("", step)

	b.appendStep(Step{Kind: StepReachable, Reachable: &ReachableStep{
		FromAlias: from,
		ToAlias:   toAlias,
		Edges:     cloneStrings(spec.Edges),
		Direction: spec.Direction,
		MinHops:   spec.MinHops,
		MaxHops:   spec.MaxHops,
	}})
	b.currentAlias = toAlias
	b.currentLabel = ""
	return b
}

// Branch combines fully independent sub-plans with a set operator. The
// branches replace the current pattern: steps before the Branch do not
// scope them, so a set operation stands as its own query. Each branch
// is sealed and validated here; a branch error becomes this builder's
// error.
func (b Builder) Branch(op BranchOp, distinct bool, branches ...Builder) Builder {
	if b.err != nil {
		return b
	}
	plans := make([]*Plan, 0, len(branches))
	for i, br := range branches {
		p, err := br.Plan()
		if err != nil {
			b.err = fmt.Errorf("plan: branch %d: %w", i, err)
			return b
		}
		plans = append(plans, p)
	}
	b.ensureOwned()
	b.appendStep(Step{Kind: StepBranch, Branch: &BranchStep{
		Op:       op,
		Branches: plans,
		Distinct: distinct,
	}})
	// Branch results replace whatever was current; branches own their
	// aliases.
	b.currentAlias = ""
	b.currentLabel = ""
	return b
}

// Union combines branches keeping one copy of duplicate rows.
func (b Builder) Union(branches ...Builder) Builder {
	return b.Branch(BranchUnion, true, branches...)
}

// UnionAll combines branches keeping duplicate rows.
func (b Builder) UnionAll(branches ...Builder) Builder {
	return b.Branch(BranchUnion, false, branches...)
}

// Intersect keeps only rows present in every branch. Fewer than two
// branches is rejected at compile time.
func (b Builder) Intersect(branches ...Builder) Builder {
	return b.Branch(BranchIntersect, true, branches...)
}

// Fork fans out from the current node into independent continuations.
// Each function receives this builder positioned at the fork point with
// its own alias offset; the steps and aliases it adds are captured as a
// fork branch and merged back, so every branch's named results remain
// selectable on the merged plan.
func (b Builder) Fork(branches ...func(Builder) Builder) Builder {
	if b.err != nil {
		return b
	}
	b.ensureOwned()
	forkStep := b.nSteps
	source := b.currentAlias

	collected := make([]ForkBranch, 0, len(branches))
	maxBlocks := b.ar.blocks
	var merged []Builder
	for i, fn := range branches {
		b.ar.blocks++
		child := b
		child.offset = b.ar.blocks * aliasBlock
		out := fn(child)
		if out.err != nil {
			b.err = fmt.Errorf("plan: fork branch %d: %w", i, out.err)
			return b
		}
		steps := append([]Step(nil), out.ar.steps[b.nSteps:out.nSteps]...)
		collected = append(collected, ForkBranch{Steps: steps, CurrentAlias: out.currentAlias})
		if out.ar.blocks > maxBlocks {
			maxBlocks = out.ar.blocks
		}
		merged = append(merged, out)
	}

	// Appending the fork step diverges from the branch appends; the
	// clone below carries only the pre-fork prefix.
	b.ensureOwned()
	if b.ar.blocks < maxBlocks {
		b.ar.blocks = maxBlocks
	}

	// Merge every branch's registry additions into the parent. Their
	// originating step becomes the fork step itself.
	preAliases, preBindings := b.nAliases, b.nBindings
	for _, out := range merged {
		for _, e := range out.ar.aliases[preAliases:out.nAliases] {
			e.info.Step = forkStep
			b.ar.aliases = append(b.ar.aliases, e)
			b.nAliases++
		}
		for _, bind := range out.ar.bindings[preBindings:out.nBindings] {
			bind.step = forkStep
			b.ar.bindings = append(b.ar.bindings, bind)
			b.nBindings++
		}
	}

	b.appendStep(Step{Kind: StepFork, Fork: &ForkStep{
		SourceAlias: source,
		Branches:    collected,
	}})
	// Focus returns to the fork source; branch ends are reached via
	// their user aliases.
	b.currentAlias = source
	return b
}

// OrderBy sorts final rows by a property. Empty alias means the current
// node. Repeated calls compose into one multi-key sort.
func (b Builder) OrderBy(alias, property string, descending bool) Builder {
	if b.err != nil {
		return b
	}
	b.ensureOwned()
	if alias == "" {
		alias = b.currentAlias
	}
	b.appendStep(Step{Kind: StepOrderBy, OrderBy: &OrderByStep{
		Alias:      alias,
		Property:   property,
		Descending: descending,
	}})
	return b
}

// Limit caps the number of final rows.
func (b Builder) Limit(n int64) Builder {
	if b.err != nil {
		return b
	}
	b.ensureOwned()
	b.appendStep(Step{Kind: StepLimit, Limit: &n})
	return b
}

// Skip drops the first n final rows.
func (b Builder) Skip(n int64) Builder {
	if b.err != nil {
		return b
	}
	b.ensureOwned()
	b.appendStep(Step{Kind: StepSkip, Skip: &n})
	return b
}

// Distinct deduplicates final rows.
func (b Builder) Distinct() Builder {
	if b.err != nil {
		return b
	}
	b.ensureOwned()
	b.appendStep(Step{Kind: StepDistinct})
	return b
}

// Project sets the result shape. Alias references are checked here, at
// projection-set time: an unknown name records an error immediately
// rather than waiting for compilation.
func (b Builder) Project(pr Projection) Builder {
	if b.err != nil {
		return b
	}
	for _, ref := range pr.referencedAliases() {
		if _, ok := b.resolveName(ref, b.nSteps); !ok {
			b.err = &UnknownAliasError{Alias: ref, Step: b.nSteps}
			return b
		}
	}
	b.projection = cloneProjection(&pr)
	return b
}

// Snapshot seals the builder's current state into a Plan without
// validating it. Useful for debugging partial or broken plans; use Plan
// for anything that will be executed.
func (b Builder) Snapshot() *Plan {
	steps := append([]Step(nil), b.ar.steps[:b.nSteps]...)
	aliases := make(map[string]AliasInfo, b.nAliases)
	for _, e := range b.ar.aliases[:b.nAliases] {
		aliases[e.alias] = e.info
	}
	userAliases := make(map[string]string)
	edgeUserAliases := make(map[string]string)
	for _, bind := range b.ar.bindings[:b.nBindings] {
		if bind.kind == AliasEdge {
			edgeUserAliases[bind.name] = bind.internal
		} else {
			userAliases[bind.name] = bind.internal
		}
		if info, ok := aliases[bind.internal]; ok {
			info.UserAlias = bind.name
			aliases[bind.internal] = info
		}
	}
	return &Plan{
		Steps:           steps,
		Projection:      cloneProjection(b.projection),
		Aliases:         aliases,
		UserAliases:     userAliases,
		EdgeUserAliases: edgeUserAliases,
		CurrentAlias:    b.currentAlias,
		CurrentLabel:    b.currentLabel,
	}
}

// Plan validates and seals the builder into an immutable Plan.
func (b Builder) Plan() (*Plan, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b.Snapshot(), nil
}

// resolveName maps a user alias or internal alias visible at the given
// step to its internal alias.
func (b Builder) resolveName(name string, byStep int) (string, bool) {
	// Later bindings shadow earlier ones, so scan backwards.
	for i := b.nBindings - 1; i >= 0; i-- {
		bind := b.ar.bindings[i]
		if bind.name == name && bind.step <= byStep {
			return bind.internal, true
		}
	}
	if b.registeredAt(name, byStep) {
		return name, true
	}
	return "", false
}

// registeredAt reports whether an internal alias exists in the registry
// at or before the given step.
func (b Builder) registeredAt(alias string, byStep int) bool {
	for _, e := range b.ar.aliases[:b.nAliases] {
		if e.alias == alias && e.info.Step <= byStep {
			return true
		}
	}
	return false
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneVarLength(v *VarLength) *VarLength {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneConditions(in []Condition) []Condition {
	if len(in) == 0 {
		return nil
	}
	out := make([]Condition, len(in))
	for i, c := range in {
		out[i] = cloneCondition(c)
	}
	return out
}

func cloneCondition(c Condition) Condition {
	if c.Compare != nil {
		cp := *c.Compare
		c.Compare = &cp
	}
	if c.Edge != nil {
		ep := *c.Edge
		c.Edge = &ep
	}
	c.Children = cloneConditions(c.Children)
	return c
}

func cloneProjection(pr *Projection) *Projection {
	if pr == nil {
		return nil
	}
	c := *pr
	c.Fields = cloneStrings(pr.Fields)
	c.Aliases = cloneStrings(pr.Aliases)
	c.CollectAliases = cloneStrings(pr.CollectAliases)
	if pr.Aggregate != nil {
		agg := *pr.Aggregate
		c.Aggregate = &agg
	}
	return &c
}
