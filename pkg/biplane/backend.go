package biplane

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/biplanedb/biplane/pkg/engine"
	"github.com/biplanedb/biplane/pkg/plan"
)

// Backend executes plans and commands against one storage target. Both
// implementations answer with the same result shapes and the same error
// taxonomy, so everything above this seam stays backend-agnostic.
type Backend interface {
	// Execute runs one query plan.
	Execute(ctx context.Context, p *plan.Plan) (*engine.Result, error)
	// Apply runs one mutation or lookup command.
	Apply(ctx context.Context, cmd engine.Command) (*engine.CommandResult, error)
	// Transaction runs work atomically: everything inside commits or
	// rolls back together. The Backend handed to work is scoped to the
	// transaction; using the outer backend inside work escapes it.
	Transaction(ctx context.Context, work func(tx Backend) error) error
	// Close releases the backend's resources.
	Close(ctx context.Context) error
}

// memoryBackend interprets plans and commands directly against the
// in-memory store.
type memoryBackend struct {
	eng *engine.Engine
}

func newMemoryBackend(eng *engine.Engine) *memoryBackend {
	return &memoryBackend{eng: eng}
}

func (m *memoryBackend) Execute(ctx context.Context, p *plan.Plan) (*engine.Result, error) {
	return m.eng.Execute(ctx, p)
}

func (m *memoryBackend) Apply(ctx context.Context, cmd engine.Command) (*engine.CommandResult, error) {
	return m.eng.Apply(ctx, cmd)
}

// Transaction brackets work in a store snapshot. The store allows one
// open transaction, so a nested call fails fast with
// storage.ErrTransactionActive. A rollback failure is logged; the
// work's error is the one the caller sees.
func (m *memoryBackend) Transaction(ctx context.Context, work func(tx Backend) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := m.eng.Store().Begin()
	if err != nil {
		return err
	}
	if err := work(m); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Warn("transaction rollback failed", "tx", tx.ID, "err", rbErr)
		}
		return err
	}
	return tx.Commit()
}

func (m *memoryBackend) Close(ctx context.Context) error {
	return m.eng.Store().Close()
}
