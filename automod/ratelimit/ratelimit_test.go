package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func testLimiter(store Store) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter(store, nil)
	l.Now = clock.Now
	return l, clock
}

func TestLimiterWindow(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	l, clock := testLimiter(NewMemStore())

	assert.True(l.TryAcquire(ctx, "t2_alice", 2))
	clock.Advance(10 * time.Second)
	assert.False(l.TryAcquire(ctx, "t2_alice", 2))

	// other actors are independent
	assert.True(l.TryAcquire(ctx, "t2_bob", 2))

	// exactly at the window boundary is allowed again
	clock.Advance(2*time.Minute - 10*time.Second)
	assert.True(l.TryAcquire(ctx, "t2_alice", 2))
	clock.Advance(2*time.Minute + time.Second)
	assert.True(l.TryAcquire(ctx, "t2_alice", 2))
}

func TestLimiterDeniedDoesNotExtend(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	l, clock := testLimiter(NewMemStore())

	assert.True(l.TryAcquire(ctx, "t2_alice", 5))
	clock.Advance(4 * time.Minute)
	assert.False(l.TryAcquire(ctx, "t2_alice", 5))
	// the denied attempt did not move the window forward
	clock.Advance(time.Minute)
	assert.True(l.TryAcquire(ctx, "t2_alice", 5))
}

func TestLimiterDisabledWindow(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := NewMemStore()
	l, _ := testLimiter(store)
	for i := 0; i < 3; i++ {
		assert.True(l.TryAcquire(ctx, "t2_alice", 0))
	}
	assert.Equal(0, store.Data.Size())
}

func TestLimiterReset(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	l, _ := testLimiter(NewMemStore())
	assert.True(l.TryAcquire(ctx, "t2_alice", 2))
	assert.False(l.TryAcquire(ctx, "t2_alice", 2))
	assert.NoError(l.Reset(ctx, "t2_alice"))
	assert.True(l.TryAcquire(ctx, "t2_alice", 2))
}

type brokenStore struct{}

func (brokenStore) CheckAndSet(ctx context.Context, actorID string, now time.Time, window time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func (brokenStore) Clear(ctx context.Context, actorID string) error {
	return errors.New("connection refused")
}

func TestLimiterFailsClosed(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	l, _ := testLimiter(brokenStore{})
	assert.False(l.TryAcquire(ctx, "t2_alice", 2))
}

func TestMemStoreConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	l, _ := testLimiter(NewMemStore())

	// many near-simultaneous attempts by the same actor: exactly one gets through
	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire(ctx, "t2_alice", 2) {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(int64(1), admitted)
}

func TestMemStoreSweep(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := NewMemStore()
	l, clock := testLimiter(store)
	start := clock.Now()
	for _, actor := range []string{"t2_alice", "t2_bob", "t2_carol"} {
		assert.True(l.TryAcquire(ctx, actor, 1))
	}
	assert.Equal(3, store.Data.Size())

	assert.Equal(0, store.Sweep(start.Add(30*time.Second)))
	assert.Equal(3, store.Data.Size())

	assert.Equal(3, store.Sweep(start.Add(time.Minute)))
	assert.Equal(0, store.Data.Size())
}

func TestMemStoreSweepsWhileRunning(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := NewMemStore()
	l, clock := testLimiter(store)
	for _, actor := range []string{"t2_alice", "t2_bob", "t2_carol"} {
		assert.True(l.TryAcquire(ctx, actor, 1))
	}

	// the other actors never return; their records go away on the next sweep
	clock.Advance(2 * time.Minute)
	for i := 0; i < sweepEvery; i++ {
		l.TryAcquire(ctx, "t2_dave", 1)
	}
	assert.Equal(1, store.Data.Size())
	_, ok := store.Data.Load(recordKey("t2_dave"))
	assert.True(ok)
}
