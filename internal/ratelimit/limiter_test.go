package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCheckAllowsLimitThenDenies(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := New(WithLimit(15), WithWindow(time.Minute), WithClock(clock.Now))

	for i := 1; i <= 15; i++ {
		d := l.Check("client")
		require.True(t, d.Allowed, "request %d should be allowed", i)
		assert.Equal(t, 15-i, d.Remaining)
		clock.Advance(2 * time.Second)
	}

	d := l.Check("client")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 15, d.Limit)
}

func TestCheckFreshWindowAfterExpiry(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := New(WithLimit(2), WithWindow(time.Minute), WithClock(clock.Now))

	l.Check("c")
	clock.Advance(2 * time.Second)
	l.Check("c")
	clock.Advance(2 * time.Second)
	require.False(t, l.Check("c").Allowed)

	clock.Advance(time.Minute)
	d := l.Check("c")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, clock.Now().Add(time.Minute), d.ResetTime)
}

func TestBurstPenalty(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	rapid := New(WithClock(clock.Now))
	spaced := New(WithClock(clock.Now))

	var last Decision
	for i := 0; i < 8; i++ {
		last = rapid.Check("k")
		clock.Advance(100 * time.Millisecond)
	}
	assert.Less(t, last.Remaining, DefaultLimit-8, "rapid calls should consume more than one unit each")

	for i := 0; i < 8; i++ {
		last = spaced.Check("k")
		clock.Advance(1500 * time.Millisecond)
	}
	assert.Equal(t, DefaultLimit-8, last.Remaining)
}

func TestKeysAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(WithLimit(1))
	assert.True(t, l.Check("a").Allowed)
	assert.False(t, l.Check("a").Allowed)
	assert.True(t, l.Check("b").Allowed)
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Now()
	d := Decision{ResetTime: now.Add(42*time.Second + 100*time.Millisecond)}
	assert.Equal(t, 43, d.RetryAfter(now))
	assert.Equal(t, 0, Decision{ResetTime: now.Add(-time.Second)}.RetryAfter(now))
}

func TestPeekDoesNotConsume(t *testing.T) {
	t.Parallel()

	l := New(WithLimit(3))
	l.Check("k")
	before := l.Peek("k")
	after := l.Peek("k")
	assert.Equal(t, before.Remaining, after.Remaining)
	assert.Equal(t, 2, after.Remaining)
	assert.Equal(t, 3, l.Peek("unknown").Remaining)
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	var hookRemoved, hookRemaining int
	l := New(WithClock(clock.Now), WithWindow(time.Minute), WithSweepHook(func(removed, remaining int) {
		hookRemoved, hookRemaining = removed, remaining
	}))

	for i := 0; i < 5; i++ {
		l.Check(fmt.Sprintf("old-%d", i))
	}
	clock.Advance(90 * time.Second)
	l.Check("fresh")

	assert.Equal(t, 6, l.Len())
	assert.Equal(t, 5, l.Sweep())
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, 5, hookRemoved)
	assert.Equal(t, 1, hookRemaining)
}

func TestStartStopLifecycle(t *testing.T) {
	t.Parallel()

	swept := make(chan struct{}, 8)
	l := New(WithSweepInterval(5*time.Millisecond), WithSweepHook(func(int, int) {
		select {
		case swept <- struct{}{}:
		default:
		}
	}))

	l.Start(context.Background())
	l.Start(context.Background())

	select {
	case <-swept:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep never ran")
	}

	l.Stop()
	l.Stop()
}

func TestStartStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	l := New(WithSweepInterval(time.Hour))
	l.Start(ctx)
	cancel()
	l.Stop()
}

func TestConcurrentChecksCountExactly(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := New(WithLimit(1000), WithBurstInterval(0), WithClock(clock.Now))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				l.Check("shared")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, l.Peek("shared").Limit-l.Peek("shared").Remaining)
}
