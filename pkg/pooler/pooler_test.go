package pooler

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basestub/basestub/pkg/sqlengine"
)

func newTestPooler(t *testing.T, cfg Config) (*Pooler, *sqlengine.Engine) {
	t.Helper()
	engine, err := sqlengine.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	p := New(engine, cfg)
	require.NoError(t, p.Start())
	t.Cleanup(func() { p.Stop() })
	return p, engine
}

func TestPoolerQuery(t *testing.T) {
	p, _ := newTestPooler(t, Config{})

	rows, err := p.Query(context.Background(), "SELECT 1 AS n", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["n"])
}

func TestPoolerExec(t *testing.T) {
	p, _ := newTestPooler(t, Config{})
	ctx := context.Background()

	_, err := p.Exec(ctx, "CREATE TABLE t (n INTEGER)", nil)
	require.NoError(t, err)

	res, err := p.Exec(ctx, "INSERT INTO t (n) VALUES (?)", []any{7})
	require.NoError(t, err)
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
}

func TestPoolerTransaction(t *testing.T) {
	p, _ := newTestPooler(t, Config{})
	ctx := context.Background()

	_, err := p.Exec(ctx, "CREATE TABLE t (n INTEGER)", nil)
	require.NoError(t, err)

	err = p.Transaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx, "INSERT INTO t (n) VALUES (1)")
		return execErr
	})
	require.NoError(t, err)

	rows, err := p.Query(ctx, "SELECT COUNT(*) AS c FROM t", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows[0]["c"])
}

func TestPoolerNotRunning(t *testing.T) {
	engine, err := sqlengine.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer engine.Close()

	p := New(engine, Config{})
	_, err = p.Query(context.Background(), "SELECT 1", nil)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestPoolerStopRejectsPending(t *testing.T) {
	p, _ := newTestPooler(t, Config{})

	// Jam the dispatcher with a slow op, then queue another behind it.
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.Do(context.Background(), func(ctx context.Context) error {
			<-release
			return nil
		})
	}()
	time.Sleep(20 * time.Millisecond)

	var pendingErr error
	go func() {
		defer wg.Done()
		pendingErr = p.Do(context.Background(), func(ctx context.Context) error { return nil })
	}()
	time.Sleep(20 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- p.Stop() }()
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, <-done)
	wg.Wait()
	assert.ErrorIs(t, pendingErr, ErrStopped)

	_, err := p.Query(context.Background(), "SELECT 1", nil)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestPoolerQueueFull(t *testing.T) {
	p, _ := newTestPooler(t, Config{MaxQueueSize: 1})

	release := make(chan struct{})
	defer close(release)
	go p.Do(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})
	time.Sleep(20 * time.Millisecond)

	// Dispatcher busy; fill the one queue slot.
	go p.Do(context.Background(), func(ctx context.Context) error { return nil })
	time.Sleep(20 * time.Millisecond)

	err := p.Do(context.Background(), func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue is full (size 1, max 1)")
}

func TestPoolerTimeout(t *testing.T) {
	p, _ := newTestPooler(t, Config{})

	release := make(chan struct{})
	defer close(release)
	go p.Do(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	err := p.Do(context.Background(), func(ctx context.Context) error { return nil },
		WithTimeout(50*time.Millisecond))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int64(1), p.MetricsSnapshot().TimedOut)
}

func TestPoolerPriorityOrdering(t *testing.T) {
	// Aging threshold set high so promotion doesn't reorder this test.
	p, _ := newTestPooler(t, Config{AgingThreshold: time.Minute})

	release := make(chan struct{})
	go p.Do(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})
	time.Sleep(20 * time.Millisecond)

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup
	submit := func(name string, priority Priority) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Do(context.Background(), func(ctx context.Context) error {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				return nil
			}, WithPriority(priority))
		}()
		time.Sleep(10 * time.Millisecond)
	}

	submit("low", PriorityLow)
	submit("critical", PriorityCritical)
	submit("medium", PriorityMedium)

	close(release)
	wg.Wait()

	assert.Equal(t, []string{"critical", "medium", "low"}, order)
}

func TestPoolerAgingPromotesWaiters(t *testing.T) {
	p, _ := newTestPooler(t, Config{AgingThreshold: 10 * time.Millisecond})

	release := make(chan struct{})
	go p.Do(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})
	time.Sleep(20 * time.Millisecond)

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup
	run := func(name string, priority Priority) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Do(context.Background(), func(ctx context.Context) error {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				return nil
			}, WithPriority(priority))
		}()
	}

	// The HIGH item waits past the threshold, promoting it to CRITICAL
	// parity with the fresher CRITICAL arrival; FIFO then favors it.
	run("aged-high", PriorityHigh)
	time.Sleep(50 * time.Millisecond)
	run("fresh-critical", PriorityCritical)
	time.Sleep(10 * time.Millisecond)

	close(release)
	wg.Wait()

	assert.Equal(t, []string{"aged-high", "fresh-critical"}, order)
}

func TestPoolerMetricsSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	engine, err := sqlengine.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer engine.Close()

	p := New(engine, Config{}).WithMetrics(NewPromMetrics(reg))
	require.NoError(t, p.Start())
	defer p.Stop()

	_, err = p.Query(context.Background(), "SELECT 1", nil)
	require.NoError(t, err)

	_, err = p.Query(context.Background(), "SELECT FROM no_such", nil)
	require.Error(t, err)

	m := p.MetricsSnapshot()
	assert.Equal(t, int64(2), m.Enqueued)
	assert.Equal(t, int64(2), m.Dequeued)
	assert.Equal(t, int64(1), m.Errors)
	assert.Equal(t, 0, m.CurrentSize)
	assert.GreaterOrEqual(t, m.AvgWaitMs, 0.0)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
