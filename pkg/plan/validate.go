package plan

import "fmt"

// UnknownAliasError reports a step or projection referencing an alias
// that is not registered at that point in the sequence.
type UnknownAliasError struct {
	// Alias is the offending name; empty when a step needed a current
	// node and none existed.
	Alias string
	// Step is the index of the referencing step (or the step count, for
	// projection references).
	Step int
}

func (e *UnknownAliasError) Error() string {
	if e.Alias == "" {
		return fmt.Sprintf("plan: step %d has no current node; call Match first", e.Step)
	}
	return fmt.Sprintf("plan: unknown alias %q referenced at step %d", e.Alias, e.Step)
}

// Validate checks that every traversal source, condition target, order
// key, and projection reference names an alias registered earlier in
// the sequence. It must pass before a plan is compiled or interpreted.
func (b Builder) Validate() error {
	if b.err != nil {
		return b.err
	}
	for i, step := range b.ar.steps[:b.nSteps] {
		if err := b.validateStep(step, i); err != nil {
			return err
		}
	}
	if b.projection != nil {
		for _, ref := range b.projection.referencedAliases() {
			if _, ok := b.resolveName(ref, b.nSteps); !ok {
				return &UnknownAliasError{Alias: ref, Step: b.nSteps}
			}
		}
	}
	return nil
}

func (b Builder) validateStep(step Step, idx int) error {
	switch step.Kind {
	case StepTraversal:
		t := step.Traversal
		if err := b.requireRegistered(t.FromAlias, idx); err != nil {
			return err
		}
		return b.validateConditions(t.EdgeWhere, idx)

	case StepWhere:
		w := step.Where
		if err := b.requireRegistered(w.Alias, idx); err != nil {
			return err
		}
		return b.validateConditions(w.Conditions, idx)

	case StepHierarchy:
		return b.requireRegistered(step.Hierarchy.FromAlias, idx)

	case StepReachable:
		return b.requireRegistered(step.Reachable.FromAlias, idx)

	case StepFork:
		f := step.Fork
		if err := b.requireRegistered(f.SourceAlias, idx); err != nil {
			return err
		}
		// Branch aliases were merged into the registry at this step, so
		// they resolve at idx like the parent's own.
		for _, branch := range f.Branches {
			for _, s := range branch.Steps {
				if err := b.validateStep(s, idx); err != nil {
					return err
				}
			}
		}
		return nil

	case StepOrderBy:
		o := step.OrderBy
		if o.Alias == "" {
			return &UnknownAliasError{Step: idx}
		}
		if _, ok := b.resolveName(o.Alias, idx); !ok {
			return &UnknownAliasError{Alias: o.Alias, Step: idx}
		}
		return nil

	default:
		// Match allocates, Branch seals pre-validated sub-plans, and
		// Limit/Skip/Distinct reference nothing.
		return nil
	}
}

func (b Builder) requireRegistered(alias string, idx int) error {
	if alias == "" {
		return &UnknownAliasError{Step: idx}
	}
	if !b.registeredAt(alias, idx) {
		return &UnknownAliasError{Alias: alias, Step: idx}
	}
	return nil
}

func (b Builder) validateConditions(conds []Condition, idx int) error {
	for _, c := range conds {
		if err := b.validateCondition(c, idx); err != nil {
			return err
		}
	}
	return nil
}

func (b Builder) validateCondition(c Condition, idx int) error {
	if c.Alias != "" {
		if _, ok := b.resolveName(c.Alias, idx); !ok {
			return &UnknownAliasError{Alias: c.Alias, Step: idx}
		}
	}
	return b.validateConditions(c.Children, idx)
}
