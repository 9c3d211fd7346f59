package mutate

import (
	"fmt"
	"sync"

	"gamelysync/internal/gateway"
)

// compoundRun is the rendezvous between the two queue workers holding the
// legs of a compound mutation. The second worker to arrive executes the
// whole pair: at that point both legs sit at the head of their queues, so
// neither remote write can overtake an earlier mutation queued on either
// entity. The first arrival blocks until the pair settles, which keeps
// strict per-entity ordering on its own queue too.
type compoundRun struct {
	engine *Engine
	t1, t2 *task
	done   chan struct{}

	mu       sync.Mutex
	arrivals int
	dropped  *task
	dropErr  error
}

func (c *compoundRun) run(_ *task) {
	c.mu.Lock()
	c.arrivals++
	last := c.arrivals == 2
	dropped, cause := c.dropped, c.dropErr
	c.mu.Unlock()

	if !last {
		<-c.done
		return
	}
	defer close(c.done)
	if dropped != nil {
		c.engine.abortCompound(c, dropped, cause)
		return
	}
	c.engine.executeCompound(c)
}

// abandon reports that a leg was dropped by a rollback replay before it
// could run; the pair fails without touching the backend.
func (c *compoundRun) abandon(t *task, cause error) {
	c.mu.Lock()
	if c.dropped == nil {
		c.dropped, c.dropErr = t, cause
	}
	c.mu.Unlock()
	c.run(t)
}

// abortCompound unwinds the surviving leg of a pair whose other leg was
// dropped, and reports the drop to the caller.
func (e *Engine) abortCompound(c *compoundRun, dropped *task, cause error) {
	live := c.t1
	if dropped == c.t1 {
		live = c.t2
	}
	e.mu.Lock()
	liveDropped := live.skipped != nil
	e.mu.Unlock()
	if !liveDropped {
		e.rollback(key{live.m.Kind, live.m.ID}, live, cause)
	}
	settle(c.t1, cause)
}

func (e *Engine) executeCompound(c *compoundRun) {
	k1 := key{c.t1.m.Kind, c.t1.m.ID}
	k2 := key{c.t2.m.Kind, c.t2.m.ID}

	p1, err := gateway.Diff(c.t1.before, c.t1.after)
	if err == nil {
		var p2 gateway.Patch
		p2, err = gateway.Diff(c.t2.before, c.t2.after)
		if err == nil {
			e.settleCompound(c, k1, k2, p1, p2)
			return
		}
	}
	e.rollback(k1, c.t1, err)
	e.rollback(k2, c.t2, err)
	settle(c.t1, err)
}

func (e *Engine) settleCompound(c *compoundRun, k1, k2 key, p1, p2 gateway.Patch) {
	if err := e.writeWithRetry(k1, p1); err != nil {
		e.rollback(k1, c.t1, err)
		e.rollback(k2, c.t2, err)
		settle(c.t1, err)
		return
	}

	if err := e.writeWithRetry(k2, p2); err != nil {
		// the first leg is already on the backend; compensate it so the
		// two sides never stay asymmetric
		inv, derr := gateway.Diff(c.t1.after, c.t1.before)
		var cerr error
		if derr != nil {
			cerr = derr
		} else {
			cerr = e.writeWithRetry(k1, inv)
		}

		e.rollback(k1, c.t1, err)
		e.rollback(k2, c.t2, err)

		if cerr != nil {
			err = gateway.Fail(gateway.ErrPartialFailure, "write",
				fmt.Errorf("compound %s: second leg: %v; compensation: %w", c.t1.m.Name, err, cerr))
			e.cache.Invalidate(k1.kind, k1.id)
			e.cache.Invalidate(k2.kind, k2.id)
		}
		settle(c.t1, err)
		return
	}

	e.cache.MarkFresh(k1.kind, k1.id)
	e.cache.MarkFresh(k2.kind, k2.id)
	settle(c.t1, nil)
}
