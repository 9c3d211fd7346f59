package mutate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"gamelysync/internal/cache"
	"gamelysync/internal/entity"
	"gamelysync/internal/gateway"
)

const (
	// DefaultMaxRetries bounds retries after the first write attempt.
	DefaultMaxRetries = 3
	// DefaultRetryBase is the first backoff delay; each retry doubles it.
	DefaultRetryBase = 100 * time.Millisecond
	// DefaultWriteTimeout bounds each individual write attempt.
	DefaultWriteTimeout = 10 * time.Second
)

// Options tune the engine's retry and timeout behaviour.
type Options struct {
	MaxRetries   int
	RetryBase    time.Duration
	WriteTimeout time.Duration
}

type key struct {
	kind entity.Kind
	id   string
}

type task struct {
	m       Mutation
	before  entity.Entity
	after   entity.Entity
	settled chan error // nil for the secondary leg of a compound
	comp    *compoundRun
	skipped error // set when a rollback replay dropped this task
}

type queue struct {
	tasks   []*task
	running bool
}

// Engine applies mutations optimistically and settles them remotely.
// Mutations on one entity are serialized FIFO; mutations on different
// entities proceed independently and may complete out of order.
type Engine struct {
	gw    gateway.Gateway
	cache *cache.Cache

	maxRetries   int
	retryBase    time.Duration
	writeTimeout time.Duration
	sleep        func(context.Context, time.Duration) error

	mu     sync.Mutex
	queues map[key]*queue
	closed bool

	baseCtx context.Context
	cancel  context.CancelFunc
	pending sync.WaitGroup
}

func New(gw gateway.Gateway, c *cache.Cache, opts Options) *Engine {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = DefaultRetryBase
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		gw:           gw,
		cache:        c,
		maxRetries:   opts.MaxRetries,
		retryBase:    opts.RetryBase,
		writeTimeout: opts.WriteTimeout,
		sleep:        sleepCtx,
		queues:       make(map[key]*queue),
		baseCtx:      ctx,
		cancel:       cancel,
	}
}

// SetSleep overrides the backoff sleeper, for tests.
func (e *Engine) SetSleep(fn func(context.Context, time.Duration) error) { e.sleep = fn }

// Do applies the mutation to the cache immediately and returns the
// render-ready snapshot plus a channel that delivers the settlement
// outcome: nil on ack, a tagged failure after rollback.
func (e *Engine) Do(ctx context.Context, m Mutation) (entity.Entity, <-chan error, error) {
	cur, err := e.cache.Get(ctx, m.Kind, m.ID)
	if err != nil {
		return nil, nil, err
	}
	next, err := m.Apply(cur.Clone())
	if err != nil {
		return nil, nil, fmt.Errorf("mutation %s: %w", m.Name, err)
	}
	if err := next.Validate(); err != nil {
		return nil, nil, fmt.Errorf("mutation %s: %w", m.Name, err)
	}
	e.cache.Put(next)

	t := &task{m: m, before: cur, after: next, settled: make(chan error, 1)}
	if err := e.enqueue(key{m.Kind, m.ID}, t); err != nil {
		return nil, nil, err
	}
	return next.Clone(), t.settled, nil
}

// DoCompound applies both legs optimistically as one unit. The returned
// snapshots reflect both changes; the single settlement channel reports the
// outcome of the whole pair.
func (e *Engine) DoCompound(ctx context.Context, c Compound) (entity.Entity, entity.Entity, <-chan error, error) {
	if c.First.Kind == c.Second.Kind && c.First.ID == c.Second.ID {
		return nil, nil, nil, fmt.Errorf("compound %s: legs must target distinct entities", c.Name)
	}
	cur1, err := e.cache.Get(ctx, c.First.Kind, c.First.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	cur2, err := e.cache.Get(ctx, c.Second.Kind, c.Second.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	next1, err := c.First.Apply(cur1.Clone())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("mutation %s: %w", c.First.Name, err)
	}
	next2, err := c.Second.Apply(cur2.Clone())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("mutation %s: %w", c.Second.Name, err)
	}
	if err := next1.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("mutation %s: %w", c.First.Name, err)
	}
	if err := next2.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("mutation %s: %w", c.Second.Name, err)
	}
	e.cache.Put(next1)
	e.cache.Put(next2)

	t1 := &task{m: c.First, before: cur1, after: next1, settled: make(chan error, 1)}
	t2 := &task{m: c.Second, before: cur2, after: next2}
	run := &compoundRun{engine: e, t1: t1, t2: t2, done: make(chan struct{})}
	t1.comp = run
	t2.comp = run

	// both legs enqueue atomically: a half-queued pair would leave one
	// worker waiting at the rendezvous forever
	if err := e.enqueuePair(key{c.First.Kind, c.First.ID}, t1, key{c.Second.Kind, c.Second.ID}, t2); err != nil {
		return nil, nil, nil, err
	}
	return next1.Clone(), next2.Clone(), t1.settled, nil
}

// Flush blocks until every queued mutation has settled.
func (e *Engine) Flush() { e.pending.Wait() }

// Close drains the queues and stops the engine.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.pending.Wait()
	e.cancel()
}

func (e *Engine) enqueue(k key, t *task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("mutate: engine closed")
	}
	e.addLocked(k, t)
	return nil
}

func (e *Engine) enqueuePair(k1 key, t1 *task, k2 key, t2 *task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("mutate: engine closed")
	}
	e.addLocked(k1, t1)
	e.addLocked(k2, t2)
	return nil
}

func (e *Engine) addLocked(k key, t *task) {
	q, ok := e.queues[k]
	if !ok {
		q = &queue{}
		e.queues[k] = q
	}
	e.pending.Add(1)
	q.tasks = append(q.tasks, t)
	if !q.running {
		q.running = true
		go e.drain(k, q)
	}
}

func (e *Engine) drain(k key, q *queue) {
	for {
		e.mu.Lock()
		if len(q.tasks) == 0 {
			q.running = false
			e.mu.Unlock()
			return
		}
		t := q.tasks[0]
		skipped := t.skipped
		e.mu.Unlock()

		switch {
		case skipped != nil:
			if t.comp != nil {
				t.comp.abandon(t, skipped)
			} else {
				settle(t, skipped)
			}
		case t.comp != nil:
			t.comp.run(t)
		default:
			e.execute(k, t)
		}

		e.mu.Lock()
		q.tasks = q.tasks[1:]
		e.mu.Unlock()
		e.pending.Done()
	}
}

func (e *Engine) execute(k key, t *task) {
	patch, err := gateway.Diff(t.before, t.after)
	if err != nil {
		e.rollback(k, t, err)
		settle(t, err)
		return
	}
	if patch.IsEmpty() {
		settle(t, nil)
		return
	}
	if err := e.writeWithRetry(k, patch); err != nil {
		e.rollback(k, t, err)
		settle(t, err)
		return
	}
	e.cache.MarkFresh(k.kind, k.id)
	settle(t, nil)
}

// writeWithRetry performs the remote write, retrying transient Unavailable
// failures with jittered exponential backoff. Conflict and permission
// failures are terminal on the first occurrence.
func (e *Engine) writeWithRetry(k key, p gateway.Patch) error {
	attempt := 0
	for {
		ctx, cancel := context.WithTimeout(e.baseCtx, e.writeTimeout)
		err := e.gw.Write(ctx, k.kind, k.id, p)
		cancel()
		if err == nil {
			return nil
		}
		err = gateway.Classify("write", err)
		if !gateway.IsKind(err, gateway.ErrUnavailable) || attempt >= e.maxRetries {
			return err
		}
		attempt++
		if serr := e.sleep(e.baseCtx, backoff(e.retryBase, attempt)); serr != nil {
			return err
		}
	}
}

// rollback restores the entity to the state it would have had without the
// failed mutation: later optimistic mutations still queued on the same
// entity are replayed on top of the pre-mutation state. A Conflict also
// invalidates the entry so the next read refetches backend truth.
func (e *Engine) rollback(k key, t *task, cause error) {
	e.mu.Lock()
	q := e.queues[k]
	base := t.before
	if q != nil {
		for _, p := range q.tasks {
			if p == t || p.skipped != nil {
				continue
			}
			replayed, err := p.m.Apply(base.Clone())
			if err != nil {
				p.skipped = fmt.Errorf("mutation %s dropped by rollback of %s: %w", p.m.Name, t.m.Name, err)
				continue
			}
			p.before = base
			p.after = replayed
			base = replayed
		}
	}
	e.mu.Unlock()

	e.cache.Put(base)
	if gateway.IsKind(cause, gateway.ErrConflict) {
		e.cache.Invalidate(k.kind, k.id)
	}
}

func settle(t *task, err error) {
	if t.settled != nil {
		t.settled <- err
	}
}

func backoff(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
