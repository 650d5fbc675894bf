// Package snapshot persists named, full-store snapshots in BadgerDB.
//
// A Repository maps snapshot names to JSON-encoded storage.Snapshot values
// under "snapshot:<name>" keys. It is the only durable surface of the
// database: the store itself lives in memory, and persistence means saving
// or loading a complete export, never incremental writes.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/badger/v4"

	"github.com/biplanedb/biplane/pkg/storage"
)

const keyPrefix = "snapshot:"

// Sentinel errors for errors.Is checks.
var (
	// ErrNotFound reports a load or delete against an unknown snapshot name.
	ErrNotFound = errors.New("snapshot not found")

	// ErrClosed reports use of a repository after Close.
	ErrClosed = errors.New("snapshot repository closed")

	// ErrInvalidName rejects empty snapshot names.
	ErrInvalidName = errors.New("invalid snapshot name")
)

// NotFoundError carries the missing snapshot's name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("snapshot %q: not found", e.Name)
}

// Is makes errors.Is(err, ErrNotFound) true for this error.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Options configures the Badger database backing a Repository.
type Options struct {
	// Dir is the directory for Badger's data files. Ignored when InMemory
	// is set.
	Dir string

	// InMemory keeps everything in RAM; data is lost on Close. Meant for
	// tests.
	InMemory bool

	// SyncWrites forces an fsync after every save. Slower, more durable.
	SyncWrites bool
}

// Repository stores named snapshots. Safe for concurrent use.
type Repository struct {
	db     *badger.DB
	closed atomic.Bool
}

// Open opens (or creates) a snapshot repository.
func Open(opts Options) (*Repository, error) {
	badgerOpts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open snapshot repository: %w", err)
	}

	log.Debug("snapshot repository open", "dir", opts.Dir, "inMemory", opts.InMemory)
	return &Repository{db: db}, nil
}

// OpenInMemory opens a repository that keeps snapshots in RAM only.
func OpenInMemory() (*Repository, error) {
	return Open(Options{InMemory: true})
}

// Save stores a snapshot under name, overwriting any previous snapshot with
// the same name.
func (r *Repository) Save(name string, snap *storage.Snapshot) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if name == "" {
		return ErrInvalidName
	}
	if snap == nil {
		return fmt.Errorf("save snapshot %q: nil snapshot: %w", name, storage.ErrInvalidData)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %q: %w", name, err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(name), data)
	})
	if err != nil {
		return fmt.Errorf("save snapshot %q: %w", name, err)
	}

	log.Debug("snapshot saved", "name", name, "nodes", len(snap.Nodes), "edges", len(snap.Edges), "bytes", len(data))
	return nil
}

// Load returns the snapshot stored under name. Numeric property values come
// back as float64 and dates as strings; that is the JSON shape, and the
// engine's comparison rules are already cross-type.
func (r *Repository) Load(name string) (*storage.Snapshot, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	if name == "" {
		return nil, ErrInvalidName
	}

	var snap storage.Snapshot
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return &NotFoundError{Name: name}
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &snap); err != nil {
				return fmt.Errorf("decode snapshot %q: %w", name, err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Debug("snapshot loaded", "name", name, "nodes", len(snap.Nodes), "edges", len(snap.Edges))
	return &snap, nil
}

// List returns the names of all stored snapshots. Badger iterates in key
// order, so names come back lexically sorted.
func (r *Repository) List() ([]string, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}

	var names []string
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			names = append(names, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return names, nil
}

// Delete removes the snapshot stored under name, or reports NotFoundError.
func (r *Repository) Delete(name string) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if name == "" {
		return ErrInvalidName
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key(name)); errors.Is(err, badger.ErrKeyNotFound) {
			return &NotFoundError{Name: name}
		} else if err != nil {
			return err
		}
		return txn.Delete(key(name))
	})
	if err != nil {
		return err
	}

	log.Debug("snapshot deleted", "name", name)
	return nil
}

// Close releases the underlying database. Further calls on the repository
// fail with ErrClosed. Close is idempotent.
func (r *Repository) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	log.Debug("snapshot repository closed")
	return r.db.Close()
}

func key(name string) []byte {
	return []byte(keyPrefix + name)
}
