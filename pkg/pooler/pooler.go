package pooler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/basestub/basestub/pkg/observability"
	"github.com/basestub/basestub/pkg/sqlengine"
)

// Priority orders waiting operations. Higher values dispatch first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the priority's conventional upper-case name.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

var (
	// ErrNotRunning is returned when submitting to a pooler that has
	// not been started (or has already stopped).
	ErrNotRunning = errors.New("pooler: Pooler is not running")
	// ErrStopped rejects operations still waiting when Stop is called.
	ErrStopped = errors.New("pooler: Pooler stopped")
	// ErrTimeout rejects a caller whose operation did not complete
	// within its timeout. If the operation had already begun it still
	// completes on the connection; only the result is discarded.
	ErrTimeout = errors.New("pooler: Query timeout")
)

// Config tunes queue capacity, the per-operation fallback timeout, and
// the starvation-avoidance aging threshold.
type Config struct {
	MaxQueueSize   int
	DefaultTimeout time.Duration
	AgingThreshold time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize:   1000,
		DefaultTimeout: 30 * time.Second,
		AgingThreshold: 50 * time.Millisecond,
	}
}

type result struct {
	value any
	err   error
}

type item struct {
	fn         func(ctx context.Context) (any, error)
	priority   Priority
	enqueuedAt time.Time
	done       chan result
	abandoned  atomic.Bool
}

// effectivePriority promotes an item one level once it has waited past
// the aging threshold, capped at CRITICAL.
func (it *item) effectivePriority(now time.Time, aging time.Duration) Priority {
	p := it.priority
	if aging > 0 && now.Sub(it.enqueuedAt) > aging && p < PriorityCritical {
		p++
	}
	return p
}

// Metrics is a point-in-time snapshot of the pooler's counters.
type Metrics struct {
	Enqueued       int64
	Dequeued       int64
	TimedOut       int64
	Errors         int64
	CurrentSize    int
	AvgWaitMs      float64
	SizeByPriority map[Priority]int
}

// Pooler owns the queue and the single dispatcher goroutine that
// drains it against the engine.
type Pooler struct {
	engine *sqlengine.Engine
	cfg    Config
	prom   *PromMetrics

	mu      sync.Mutex
	queue   []*item
	running bool
	stopCh  chan struct{}
	notify  chan struct{}
	group   *errgroup.Group

	enqueued    atomic.Int64
	dequeued    atomic.Int64
	timedOut    atomic.Int64
	errCount    atomic.Int64
	totalWaitNs atomic.Int64
}

// New builds a stopped Pooler around an engine. Zero-valued config
// fields fall back to DefaultConfig.
func New(engine *sqlengine.Engine, cfg Config) *Pooler {
	def := DefaultConfig()
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = def.MaxQueueSize
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if cfg.AgingThreshold <= 0 {
		cfg.AgingThreshold = def.AgingThreshold
	}
	return &Pooler{engine: engine, cfg: cfg}
}

// WithMetrics attaches Prometheus collectors; call before Start.
func (p *Pooler) WithMetrics(m *PromMetrics) *Pooler {
	p.prom = m
	return p
}

// Start launches the dispatcher. Starting a running pooler is an error.
func (p *Pooler) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("pooler: already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.notify = make(chan struct{}, 1)
	p.group = &errgroup.Group{}
	stopCh := p.stopCh
	p.group.Go(func() error {
		p.dispatch(stopCh)
		return nil
	})
	return nil
}

// Stop halts the dispatcher, rejecting every still-queued operation
// with ErrStopped and waiting for an in-flight one to finish.
func (p *Pooler) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrNotRunning
	}
	p.running = false
	close(p.stopCh)
	pending := p.queue
	p.queue = nil
	group := p.group
	p.mu.Unlock()

	for _, it := range pending {
		it.done <- result{err: ErrStopped}
	}
	return group.Wait()
}

// Running reports whether the dispatcher is live.
func (p *Pooler) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Option adjusts one submitted operation.
type Option func(*opts)

type opts struct {
	priority Priority
	timeout  time.Duration
}

// WithPriority sets the operation's queue priority. Default MEDIUM.
func WithPriority(priority Priority) Option {
	return func(o *opts) { o.priority = priority }
}

// WithTimeout overrides the pooler's default per-operation timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *opts) { o.timeout = timeout }
}

// Query submits a SELECT-like statement and waits for its rows.
func (p *Pooler) Query(ctx context.Context, query string, params []any, options ...Option) ([]map[string]any, error) {
	v, err := p.do(ctx, func(ctx context.Context) (any, error) {
		rows, _, err := p.engine.Query(ctx, query, params...)
		return rows, err
	}, options...)
	if err != nil {
		return nil, err
	}
	return v.([]map[string]any), nil
}

// Exec submits a statement with no result rows.
func (p *Pooler) Exec(ctx context.Context, query string, params []any, options ...Option) (sql.Result, error) {
	v, err := p.do(ctx, func(ctx context.Context) (any, error) {
		return p.engine.Exec(ctx, query, params...)
	}, options...)
	if err != nil {
		return nil, err
	}
	return v.(sql.Result), nil
}

// Do submits an arbitrary function that runs with exclusive access to
// the engine's connection; a request's "bind identity, then execute"
// sequence goes through here so no other request interleaves.
func (p *Pooler) Do(ctx context.Context, fn func(ctx context.Context) error, options ...Option) error {
	_, err := p.do(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	}, options...)
	return err
}

// Transaction runs fn inside a SQL transaction with exclusive engine
// access.
func (p *Pooler) Transaction(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error, options ...Option) error {
	_, err := p.do(ctx, func(ctx context.Context) (any, error) {
		return nil, p.engine.Transaction(ctx, fn)
	}, options...)
	return err
}

func (p *Pooler) do(ctx context.Context, fn func(ctx context.Context) (any, error), options ...Option) (any, error) {
	o := opts{priority: PriorityMedium, timeout: p.cfg.DefaultTimeout}
	for _, apply := range options {
		apply(&o)
	}

	it := &item{fn: fn, priority: o.priority, enqueuedAt: time.Now(), done: make(chan result, 1)}

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil, ErrNotRunning
	}
	if len(p.queue) >= p.cfg.MaxQueueSize {
		size := len(p.queue)
		p.mu.Unlock()
		return nil, fmt.Errorf("pooler: queue is full (size %d, max %d)", size, p.cfg.MaxQueueSize)
	}
	p.queue = append(p.queue, it)
	p.mu.Unlock()

	p.enqueued.Add(1)
	if p.prom != nil {
		p.prom.Enqueued.WithLabelValues(o.priority.String()).Inc()
		p.prom.QueueSize.Set(float64(p.queueLen()))
	}

	select {
	case p.notify <- struct{}{}:
	default:
	}

	timer := time.NewTimer(o.timeout)
	defer timer.Stop()

	select {
	case res := <-it.done:
		return res.value, res.err
	case <-timer.C:
		it.abandoned.Store(true)
		p.timedOut.Add(1)
		if p.prom != nil {
			p.prom.TimedOut.Inc()
		}
		return nil, ErrTimeout
	case <-ctx.Done():
		it.abandoned.Store(true)
		return nil, ctx.Err()
	}
}

func (p *Pooler) queueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// dispatch drains the queue one item at a time. A ticker at the aging
// threshold keeps the loop re-evaluating promotions even when no new
// work arrives.
func (p *Pooler) dispatch(stopCh <-chan struct{}) {
	ticker := time.NewTicker(p.cfg.AgingThreshold)
	defer ticker.Stop()

	for {
		it := p.pop()
		if it == nil {
			select {
			case <-stopCh:
				return
			case <-p.notify:
			case <-ticker.C:
			}
			continue
		}

		wait := time.Since(it.enqueuedAt)
		p.dequeued.Add(1)
		p.totalWaitNs.Add(wait.Nanoseconds())
		if p.prom != nil {
			p.prom.Dequeued.Inc()
			p.prom.WaitSeconds.Observe(wait.Seconds())
			p.prom.QueueSize.Set(float64(p.queueLen()))
		}

		if it.abandoned.Load() {
			continue
		}

		res := p.run(it)
		if res.err != nil {
			p.errCount.Add(1)
			if p.prom != nil {
				p.prom.Errors.Inc()
			}
		}
		it.done <- res
	}
}

func (p *Pooler) run(it *item) (res result) {
	defer func() {
		if err := observability.MustRecover(recover()); err != nil {
			res = result{err: fmt.Errorf("pooler: operation %v", err)}
		}
	}()
	v, err := it.fn(context.Background())
	return result{value: v, err: err}
}

// pop removes and returns the most urgent waiting item: highest
// effective priority first, FIFO within a level.
func (p *Pooler) pop() *item {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		return nil
	}

	now := time.Now()
	best := 0
	bestPri := p.queue[0].effectivePriority(now, p.cfg.AgingThreshold)
	for i := 1; i < len(p.queue); i++ {
		pri := p.queue[i].effectivePriority(now, p.cfg.AgingThreshold)
		if pri > bestPri {
			best, bestPri = i, pri
		}
	}

	it := p.queue[best]
	p.queue = append(p.queue[:best], p.queue[best+1:]...)
	return it
}

// MetricsSnapshot returns the pooler's counters.
func (p *Pooler) MetricsSnapshot() Metrics {
	p.mu.Lock()
	byPriority := make(map[Priority]int)
	for _, it := range p.queue {
		byPriority[it.priority]++
	}
	size := len(p.queue)
	p.mu.Unlock()

	m := Metrics{
		Enqueued:       p.enqueued.Load(),
		Dequeued:       p.dequeued.Load(),
		TimedOut:       p.timedOut.Load(),
		Errors:         p.errCount.Load(),
		CurrentSize:    size,
		SizeByPriority: byPriority,
	}
	if m.Dequeued > 0 {
		m.AvgWaitMs = float64(p.totalWaitNs.Load()) / float64(m.Dequeued) / 1e6
	}
	return m
}
