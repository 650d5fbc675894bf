package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportError(t *testing.T) {
	t.Run("matches_the_transport_sentinel", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := transport("verify connectivity", cause)

		assert.ErrorIs(t, err, ErrTransport)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "verify connectivity")

		var terr *TransportError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, "verify connectivity", terr.Op)
	})

	t.Run("nil_cause_stays_nil", func(t *testing.T) {
		assert.NoError(t, transport("run", nil))
	})

	t.Run("domain_errors_do_not_match", func(t *testing.T) {
		assert.NotErrorIs(t, errors.New("node not found"), ErrTransport)
	})
}

func TestMetrics(t *testing.T) {
	t.Run("average_latency_divides_by_queries", func(t *testing.T) {
		m := Metrics{Queries: 4, TotalLatency: 200 * time.Millisecond}
		assert.Equal(t, 50*time.Millisecond, m.AverageLatency())
	})

	t.Run("average_latency_of_no_queries_is_zero", func(t *testing.T) {
		assert.Equal(t, time.Duration(0), Metrics{}.AverageLatency())
	})

	t.Run("observe_counts_queries_and_failures", func(t *testing.T) {
		b := NewBolt(Config{URI: "bolt://example:7687"})

		b.observe(time.Now(), nil)
		b.observe(time.Now(), errors.New("boom"))

		m := b.Metrics()
		assert.Equal(t, int64(2), m.Queries)
		assert.Equal(t, int64(1), m.Failures)
		assert.Equal(t, int64(0), m.Retries)
		assert.GreaterOrEqual(t, m.TotalLatency, time.Duration(0))
	})
}

func TestBolt_Lifecycle(t *testing.T) {
	t.Run("config_defaults", func(t *testing.T) {
		cfg := Config{URI: "bolt://example:7687"}.withDefaults()
		assert.Equal(t, "neo4j", cfg.Database)
		assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
		assert.Equal(t, time.Second, cfg.RetryBackoff)
		assert.Equal(t, 0, cfg.ConnectRetries)
	})

	t.Run("explicit_config_wins_over_defaults", func(t *testing.T) {
		cfg := Config{URI: "bolt://example:7687", Database: "graph", ConnectTimeout: time.Second}.withDefaults()
		assert.Equal(t, "graph", cfg.Database)
		assert.Equal(t, time.Second, cfg.ConnectTimeout)
	})

	t.Run("run_before_connect_fails_fast", func(t *testing.T) {
		b := NewBolt(Config{URI: "bolt://example:7687"})
		assert.False(t, b.IsConnected())

		_, err := b.Run(context.Background(), "RETURN 1", nil)
		assert.ErrorIs(t, err, ErrNotConnected)

		err = b.Transaction(context.Background(), ModeWrite, func(tx Runner) error { return nil })
		assert.ErrorIs(t, err, ErrNotConnected)

		// Nothing reached the wire, so nothing was counted.
		assert.Equal(t, int64(0), b.Metrics().Queries)
	})

	t.Run("close_before_connect_is_a_no_op", func(t *testing.T) {
		b := NewBolt(Config{URI: "bolt://example:7687"})
		assert.NoError(t, b.Close(context.Background()))
		assert.False(t, b.IsConnected())
	})
}

func TestResult(t *testing.T) {
	t.Run("first_record", func(t *testing.T) {
		res := &Result{
			Columns: []string{"result"},
			Records: []map[string]any{{"result": "a"}, {"result": "b"}},
		}
		assert.Equal(t, 2, res.Len())
		first, ok := res.First()
		require.True(t, ok)
		assert.Equal(t, "a", first["result"])
	})

	t.Run("empty_result", func(t *testing.T) {
		res := &Result{}
		assert.Equal(t, 0, res.Len())
		_, ok := res.First()
		assert.False(t, ok)
	})
}

func TestAccessMode(t *testing.T) {
	assert.Equal(t, "write", ModeWrite.String())
	assert.Equal(t, "read", ModeRead.String())
}
