package driver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	sdk "github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Config holds Bolt connection settings.
type Config struct {
	// URI is the bolt or neo4j scheme address, e.g. "bolt://localhost:7687".
	URI      string
	Username string
	Password string
	// Database defaults to "neo4j".
	Database string
	// ConnectTimeout bounds each connectivity check; defaults to 5s.
	ConnectTimeout time.Duration
	// ConnectRetries is how many extra verification attempts Connect
	// makes before giving up. Zero means a single attempt.
	ConnectRetries int
	// RetryBackoff separates connect attempts; defaults to 1s.
	RetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.Database == "" {
		c.Database = "neo4j"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	return c
}

// Bolt is the Driver implementation on the official neo4j driver. Safe
// for concurrent use once connected; the underlying driver pools
// connections itself.
type Bolt struct {
	cfg Config

	mu        sync.Mutex
	client    sdk.DriverWithContext
	connected atomic.Bool

	queries  atomic.Int64
	failures atomic.Int64
	retries  atomic.Int64
	latency  atomic.Int64 // nanoseconds
}

// NewBolt returns an unconnected driver; no I/O happens until Connect.
func NewBolt(cfg Config) *Bolt {
	return &Bolt{cfg: cfg.withDefaults()}
}

// Connect dials the server and verifies connectivity, retrying up to
// ConnectRetries times. Each extra attempt counts as a retry.
func (b *Bolt) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connected.Load() {
		return nil
	}
	if b.client == nil {
		client, err := sdk.NewDriverWithContext(b.cfg.URI, sdk.BasicAuth(b.cfg.Username, b.cfg.Password, ""))
		if err != nil {
			return transport("create driver", err)
		}
		b.client = client
	}

	for attempt := 0; ; attempt++ {
		vctx, cancel := context.WithTimeout(ctx, b.cfg.ConnectTimeout)
		err := b.client.VerifyConnectivity(vctx)
		cancel()
		if err == nil {
			break
		}
		if attempt >= b.cfg.ConnectRetries {
			return transport("verify connectivity", err)
		}
		b.retries.Add(1)
		log.Warn("bolt connect retry", "uri", b.cfg.URI, "attempt", attempt+1, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.cfg.RetryBackoff):
		}
	}

	b.connected.Store(true)
	log.Debug("bolt connected", "uri", b.cfg.URI, "database", b.cfg.Database)
	return nil
}

// Close releases the underlying driver. The Bolt value stays reusable:
// a later Connect dials again.
func (b *Bolt) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.connected.Store(false)
	if b.client == nil {
		return nil
	}
	err := b.client.Close(ctx)
	b.client = nil
	if err != nil {
		return transport("close", err)
	}
	log.Debug("bolt closed", "uri", b.cfg.URI)
	return nil
}

// IsConnected reports whether the driver is connected.
func (b *Bolt) IsConnected() bool { return b.connected.Load() }

// Run executes one auto-commit query in a write session and collects
// the full record set.
func (b *Bolt) Run(ctx context.Context, query string, params map[string]any) (*Result, error) {
	if !b.connected.Load() {
		return nil, ErrNotConnected
	}

	session := b.client.NewSession(ctx, sdk.SessionConfig{
		DatabaseName: b.cfg.Database,
		AccessMode:   sdk.AccessModeWrite,
	})
	defer session.Close(ctx)

	start := time.Now()
	res, err := session.Run(ctx, query, params)
	out, err := b.collect(ctx, res, err)
	b.observe(start, err)
	return out, err
}

// Transaction runs work inside one managed transaction. The work's
// Runner shares the transaction, so every query in it commits or rolls
// back together; returning an error rolls back.
func (b *Bolt) Transaction(ctx context.Context, mode AccessMode, work func(tx Runner) error) error {
	if !b.connected.Load() {
		return ErrNotConnected
	}

	am := sdk.AccessModeWrite
	if mode == ModeRead {
		am = sdk.AccessModeRead
	}
	session := b.client.NewSession(ctx, sdk.SessionConfig{
		DatabaseName: b.cfg.Database,
		AccessMode:   am,
	})
	defer session.Close(ctx)

	exec := session.ExecuteWrite
	if mode == ModeRead {
		exec = session.ExecuteRead
	}
	var workErr error
	_, err := exec(ctx, func(tx sdk.ManagedTransaction) (any, error) {
		workErr = work(&boltTx{bolt: b, tx: tx})
		return nil, workErr
	})
	if err != nil {
		// Errors raised by the work function pass through untouched;
		// only driver-level faults get the transport wrap.
		if workErr != nil && errors.Is(err, workErr) {
			return workErr
		}
		return transport("transaction", err)
	}
	log.Debug("bolt transaction committed", "mode", mode.String())
	return nil
}

// Metrics returns a snapshot of the counters.
func (b *Bolt) Metrics() Metrics {
	return Metrics{
		Queries:      b.queries.Load(),
		Failures:     b.failures.Load(),
		Retries:      b.retries.Load(),
		TotalLatency: time.Duration(b.latency.Load()),
	}
}

func (b *Bolt) observe(start time.Time, err error) {
	b.queries.Add(1)
	b.latency.Add(int64(time.Since(start)))
	if err != nil {
		b.failures.Add(1)
	}
}

// collect drains a result cursor into a Result. The cursor must be
// consumed before the session closes.
func (b *Bolt) collect(ctx context.Context, res sdk.ResultWithContext, err error) (*Result, error) {
	if err != nil {
		return nil, transport("run", err)
	}
	out := &Result{}
	if keys, kerr := res.Keys(); kerr == nil {
		out.Columns = keys
	}
	for res.Next(ctx) {
		out.Records = append(out.Records, res.Record().AsMap())
	}
	if err := res.Err(); err != nil {
		return nil, transport("consume", err)
	}
	return out, nil
}

// boltTx adapts a managed transaction to the Runner interface.
type boltTx struct {
	bolt *Bolt
	tx   sdk.ManagedTransaction
}

func (t *boltTx) Run(ctx context.Context, query string, params map[string]any) (*Result, error) {
	start := time.Now()
	res, err := t.tx.Run(ctx, query, params)
	out, err := t.bolt.collect(ctx, res, err)
	t.bolt.observe(start, err)
	return out, err
}

var _ Driver = (*Bolt)(nil)
