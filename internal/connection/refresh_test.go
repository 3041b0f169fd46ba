package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshCoordinator_OneCallPerRound(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})

	c := newRefreshCoordinator(func(ctx context.Context) refreshOutcome {
		calls.Add(1)
		<-release
		return refreshOutcome{token: "new"}
	}, time.Second)

	var released int
	c.onDone = func(out refreshOutcome, waiters int) { released = waiters }

	const n = 20
	var wg sync.WaitGroup
	tokens := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], _ = c.join(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.waiters) == n
	}, time.Second, time.Millisecond)
	assert.Equal(t, stateRefreshing, c.current())

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, n, released)
	for _, tok := range tokens {
		assert.Equal(t, "new", tok)
	}
	assert.Equal(t, stateIdle, c.current())
}

func TestRefreshCoordinator_ReleasesEveryQueuedWaiter(t *testing.T) {
	c := newRefreshCoordinator(func(ctx context.Context) refreshOutcome {
		return refreshOutcome{token: "t"}
	}, time.Second)

	chans := make([]chan refreshOutcome, 3)
	for i := range chans {
		chans[i] = make(chan refreshOutcome, 1)
	}

	c.mu.Lock()
	c.waiters = append(c.waiters, chans...)
	c.state = stateRefreshing
	c.mu.Unlock()

	c.run(context.Background())

	for i, ch := range chans {
		select {
		case out := <-ch:
			assert.Equal(t, "t", out.token, "waiter %d", i)
		default:
			t.Fatalf("waiter %d not released", i)
		}
	}
	assert.Equal(t, stateIdle, c.current())
	assert.Empty(t, c.waiters)
}

func TestRefreshCoordinator_NewRoundAfterIdle(t *testing.T) {
	var calls atomic.Int32
	c := newRefreshCoordinator(func(ctx context.Context) refreshOutcome {
		calls.Add(1)
		return refreshOutcome{err: errors.New("rejected")}
	}, time.Second)

	_, err := c.join(context.Background())
	assert.EqualError(t, err, "rejected")
	_, err = c.join(context.Background())
	assert.EqualError(t, err, "rejected")

	assert.Equal(t, int32(2), calls.Load())
}

func TestRefreshCoordinator_DetachedFromCaller(t *testing.T) {
	done := make(chan error, 1)
	c := newRefreshCoordinator(func(ctx context.Context) refreshOutcome {
		time.Sleep(30 * time.Millisecond)
		done <- ctx.Err()
		return refreshOutcome{token: "t"}
	}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := c.join(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, <-done, "refresh must outlive the caller that started it")
}

func TestRefreshCoordinator_Timeout(t *testing.T) {
	c := newRefreshCoordinator(func(ctx context.Context) refreshOutcome {
		<-ctx.Done()
		return refreshOutcome{err: ctx.Err()}
	}, 10*time.Millisecond)

	_, err := c.join(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
