package connection

import (
	"context"
	"sync"
	"time"
)

type refreshState int

const (
	stateIdle refreshState = iota
	stateRefreshing
)

func (s refreshState) String() string {
	if s == stateRefreshing {
		return "refreshing"
	}
	return "idle"
}

// refreshOutcome is delivered to every waiter of one refresh round.
type refreshOutcome struct {
	token string
	err   error

	// expired is set when the round ended the session.
	expired bool
}

// refreshFunc performs the refresh call and applies its result to the
// credential store before waiters are released.
type refreshFunc func(ctx context.Context) refreshOutcome

// refreshCoordinator ensures at most one refresh call is in flight.
//
// IDLE --(join)--> REFRESHING --(done)--> IDLE, releasing the queue in
// FIFO order. Joins while REFRESHING only enqueue.
type refreshCoordinator struct {
	mu      sync.Mutex
	state   refreshState
	waiters []chan refreshOutcome

	refresh refreshFunc
	timeout time.Duration

	// onDone is called with the outcome and the number of waiters released,
	// once the coordinator is idle again.
	onDone func(refreshOutcome, int)
}

func newRefreshCoordinator(fn refreshFunc, timeout time.Duration) *refreshCoordinator {
	return &refreshCoordinator{
		refresh: fn,
		timeout: timeout,
	}
}

// join waits for the outcome of the current refresh round, starting one if
// the coordinator is idle. The round runs detached from ctx so a caller
// giving up does not fail the others; the caller itself gets ctx.Err().
func (c *refreshCoordinator) join(ctx context.Context) (string, error) {
	ch := make(chan refreshOutcome, 1)

	c.mu.Lock()
	c.waiters = append(c.waiters, ch)
	if c.state == stateIdle {
		c.state = stateRefreshing
		go c.run(context.WithoutCancel(ctx))
	}
	c.mu.Unlock()

	select {
	case out := <-ch:
		return out.token, out.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *refreshCoordinator) run(ctx context.Context) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out := c.refresh(ctx)

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.state = stateIdle
	c.mu.Unlock()

	if c.onDone != nil {
		c.onDone(out, len(waiters))
	}
	for _, ch := range waiters {
		ch <- out
	}
}

// current returns the coordinator state.
func (c *refreshCoordinator) current() refreshState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
