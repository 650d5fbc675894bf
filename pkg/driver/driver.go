// Package driver abstracts the network transport behind the Cypher
// backend. The concrete implementation speaks Bolt through the official
// neo4j driver; the interface keeps the facade testable without a
// server. Transport faults are wrapped so callers can tell them apart
// from domain errors with errors.Is(err, ErrTransport).
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AccessMode routes a transaction to a writer or a reader.
type AccessMode int

const (
	ModeWrite AccessMode = iota
	ModeRead
)

// String returns the mode name.
func (m AccessMode) String() string {
	if m == ModeRead {
		return "read"
	}
	return "write"
}

// Result is one query's record set. Columns preserve the RETURN order;
// each record maps column name to the returned value.
type Result struct {
	Columns []string         `json:"columns"`
	Records []map[string]any `json:"records"`
}

// Len returns the number of records.
func (r *Result) Len() int { return len(r.Records) }

// First returns the first record, or ok=false on an empty result.
func (r *Result) First() (map[string]any, bool) {
	if len(r.Records) == 0 {
		return nil, false
	}
	return r.Records[0], true
}

// Runner executes one query. Both the driver itself and the transaction
// handle passed to transactional work implement it.
type Runner interface {
	Run(ctx context.Context, query string, params map[string]any) (*Result, error)
}

// Driver is the transport contract the Cypher backend consumes.
type Driver interface {
	Runner

	// Connect dials and verifies the server. Run and Transaction fail
	// with ErrNotConnected until it succeeds.
	Connect(ctx context.Context) error
	// Close releases the connection; the driver can be re-connected.
	Close(ctx context.Context) error
	// IsConnected reports whether Connect has succeeded and Close has
	// not been called since.
	IsConnected() bool
	// Transaction runs work in a single managed transaction, committed
	// when work returns nil and rolled back otherwise.
	Transaction(ctx context.Context, mode AccessMode, work func(tx Runner) error) error
	// Metrics returns a snapshot of the driver's counters.
	Metrics() Metrics
}

// Metrics is a point-in-time snapshot of transport counters. Latency
// covers queries only, not connection management.
type Metrics struct {
	Queries      int64         `json:"queries"`
	Failures     int64         `json:"failures"`
	Retries      int64         `json:"retries"`
	TotalLatency time.Duration `json:"totalLatency"`
}

// AverageLatency returns the mean query latency, zero when no query ran.
func (m Metrics) AverageLatency() time.Duration {
	if m.Queries == 0 {
		return 0
	}
	return m.TotalLatency / time.Duration(m.Queries)
}

// Transport failure sentinels.
var (
	// ErrTransport marks any network or server fault. Domain errors
	// never wrap it.
	ErrTransport = errors.New("transport failure")
	// ErrNotConnected is returned by Run and Transaction before Connect.
	ErrNotConnected = errors.New("driver not connected")
)

// TransportError wraps a transport-level fault with the operation that
// hit it. It matches ErrTransport under errors.Is.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("driver: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is reports ErrTransport so callers can classify without knowing Op.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}
