// Package biplane is the typed query and mutation surface over a
// property graph. Callers describe traversals and filters as plans; the
// same plan executes against an embedded in-memory engine or compiles
// to Cypher text for a Bolt endpoint, with identical results and the
// same error taxonomy either way.
//
// The DB handle is the front door. OpenMemory embeds the interpreter;
// OpenBolt dials a server:
//
//	db := biplane.OpenMemory()
//	defer db.Close(ctx)
//
//	user, _ := db.CreateNode(ctx, "user", map[string]any{"name": "Ada"})
//	post, _ := db.CreateNode(ctx, "post", map[string]any{"title": "intro"})
//	db.CreateEdge(ctx, "authored", user.ID, post.ID, nil)
//
//	posts, _ := db.Node("user").ByID(user.ID).To("authored").All(ctx)
//
// Queries build immutable plans; the fluent methods on Query cover the
// common shapes and With opens the full plan builder. Mutations travel
// as commands, so both backends apply them through one protocol.
package biplane

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/biplanedb/biplane/pkg/config"
	"github.com/biplanedb/biplane/pkg/cypher"
	"github.com/biplanedb/biplane/pkg/driver"
	"github.com/biplanedb/biplane/pkg/engine"
	"github.com/biplanedb/biplane/pkg/plan"
	"github.com/biplanedb/biplane/pkg/schema"
	"github.com/biplanedb/biplane/pkg/snapshot"
	"github.com/biplanedb/biplane/pkg/storage"
)

// compileCacheSize bounds the Bolt backend's compiled-query cache.
const compileCacheSize = 256

// DB is a handle on one graph. Safe for concurrent readers; writers
// follow the backend's rules (the in-memory store serializes
// internally, Bolt servers coordinate their own).
type DB struct {
	backend Backend
	schema  schema.Validator
	cfg     config.EngineConfig

	// store and eng are set on the memory backend only, drv on the
	// driver backend only. Operations that need one check for nil and
	// fail with ErrMemoryOnly or ErrDriverOnly.
	store *storage.Store
	eng   *engine.Engine
	drv   driver.Driver
	snaps *snapshot.Repository
}

// Option configures a DB at open time.
type Option func(*DB)

// WithSchema attaches a schema validator. Query construction and
// mutations consult it: unknown labels and edge types fail fast, edge
// definitions supply target labels, and required properties are
// enforced on create.
func WithSchema(v schema.Validator) Option {
	return func(db *DB) { db.schema = v }
}

// WithSnapshots attaches a snapshot repository. The DB takes ownership
// and closes it on Close.
func WithSnapshots(repo *snapshot.Repository) Option {
	return func(db *DB) { db.snaps = repo }
}

// WithEngineConfig overrides the hierarchy edge type and depth bound.
func WithEngineConfig(cfg config.EngineConfig) Option {
	return func(db *DB) { db.cfg = cfg }
}

// OpenMemory opens a DB over a fresh in-memory store.
func OpenMemory(opts ...Option) *DB {
	store := storage.New()
	eng := engine.New(store)
	db := &DB{
		backend: newMemoryBackend(eng),
		cfg:     config.Default().Engine,
		store:   store,
		eng:     eng,
	}
	for _, opt := range opts {
		opt(db)
	}
	log.Debug("biplane open", "backend", "memory", "hierarchyEdge", db.cfg.HierarchyEdgeType)
	return db
}

// OpenBolt dials the configured Bolt endpoint and opens a DB over it.
// A nil config uses defaults.
func OpenBolt(ctx context.Context, cfg *config.Config, opts ...Option) (*DB, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	drv := driver.NewBolt(driver.Config{
		URI:            cfg.Driver.URI,
		Username:       cfg.Driver.Username,
		Password:       cfg.Driver.Password,
		Database:       cfg.Driver.Database,
		ConnectTimeout: cfg.Driver.ConnectTimeout,
		ConnectRetries: cfg.Driver.ConnectRetries,
		RetryBackoff:   cfg.Driver.RetryBackoff,
	})
	return OpenDriver(ctx, drv, append([]Option{WithEngineConfig(cfg.Engine)}, opts...)...)
}

// OpenDriver opens a DB over an already constructed driver, connecting
// it first when needed. OpenBolt is the config-driven form of this.
func OpenDriver(ctx context.Context, drv driver.Driver, opts ...Option) (*DB, error) {
	if !drv.IsConnected() {
		if err := drv.Connect(ctx); err != nil {
			return nil, err
		}
	}
	db := &DB{
		backend: newBoltBackend(drv, cypher.NewCached(compileCacheSize)),
		cfg:     config.Default().Engine,
		drv:     drv,
	}
	for _, opt := range opts {
		opt(db)
	}
	log.Debug("biplane open", "backend", "driver", "hierarchyEdge", db.cfg.HierarchyEdgeType)
	return db, nil
}

// Close releases the backend and, when one is attached, the snapshot
// repository. The backend error wins when both fail.
func (db *DB) Close(ctx context.Context) error {
	err := db.backend.Close(ctx)
	if db.snaps != nil {
		if serr := db.snaps.Close(); err == nil {
			err = serr
		}
	}
	return err
}

// Schema returns the attached validator, nil when none was configured.
func (db *DB) Schema() schema.Validator {
	return db.schema
}

// Execute runs a prebuilt plan. The fluent Query surface builds plans
// for the common cases; Execute is the direct path for composed or
// cached ones.
func (db *DB) Execute(ctx context.Context, p *plan.Plan) (*engine.Result, error) {
	return db.backend.Execute(ctx, p)
}

// Apply runs one command. The typed mutation methods wrap this; Apply
// is the open protocol for callers that build commands themselves.
func (db *DB) Apply(ctx context.Context, cmd engine.Command) (*engine.CommandResult, error) {
	return db.backend.Apply(ctx, cmd)
}

// Transaction runs work atomically. The scoped DB it receives shares
// the schema and configuration but routes every operation through the
// transaction; returning an error rolls everything back. Transactions
// do not nest.
func (db *DB) Transaction(ctx context.Context, work func(tx *DB) error) error {
	return db.backend.Transaction(ctx, func(b Backend) error {
		scoped := *db
		scoped.backend = b
		return work(&scoped)
	})
}

// Export copies the full graph out of the in-memory store.
func (db *DB) Export() (*storage.Snapshot, error) {
	if db.store == nil {
		return nil, ErrMemoryOnly
	}
	return db.store.Export(), nil
}

// Import replaces the in-memory store's contents with the snapshot.
func (db *DB) Import(snap *storage.Snapshot) error {
	if db.store == nil {
		return ErrMemoryOnly
	}
	return db.store.Import(snap)
}

// SaveSnapshot persists the current graph under a name in the attached
// snapshot repository.
func (db *DB) SaveSnapshot(name string) error {
	if db.snaps == nil {
		return ErrNoSnapshots
	}
	snap, err := db.Export()
	if err != nil {
		return err
	}
	return db.snaps.Save(name, snap)
}

// LoadSnapshot replaces the current graph with a named snapshot.
func (db *DB) LoadSnapshot(name string) error {
	if db.snaps == nil {
		return ErrNoSnapshots
	}
	if db.store == nil {
		return ErrMemoryOnly
	}
	snap, err := db.snaps.Load(name)
	if err != nil {
		return err
	}
	return db.store.Import(snap)
}

// ListSnapshots returns the names in the attached repository, sorted.
func (db *DB) ListSnapshots() ([]string, error) {
	if db.snaps == nil {
		return nil, ErrNoSnapshots
	}
	return db.snaps.List()
}

// DeleteSnapshot removes a named snapshot.
func (db *DB) DeleteSnapshot(name string) error {
	if db.snaps == nil {
		return ErrNoSnapshots
	}
	return db.snaps.Delete(name)
}

// Stats summarizes the in-memory store's contents.
func (db *DB) Stats() (storage.Stats, error) {
	if db.store == nil {
		return storage.Stats{}, ErrMemoryOnly
	}
	return db.store.Stats(), nil
}

// Metrics returns the driver's query counters.
func (db *DB) Metrics() (driver.Metrics, error) {
	if db.drv == nil {
		return driver.Metrics{}, ErrDriverOnly
	}
	return db.drv.Metrics(), nil
}
