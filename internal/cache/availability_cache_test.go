package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/telehealth-scheduling/internal/availability"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type countingLoader struct {
	calls   atomic.Int64
	err     atomic.Value // error
	block   chan struct{}
	blockOn atomic.Bool
}

func (l *countingLoader) load(ctx context.Context, providerID uuid.UUID, from, to time.Time, slotMinutes int) ([]availability.DaySlots, error) {
	l.calls.Add(1)
	if l.blockOn.Load() {
		select {
		case <-l.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if v := l.err.Load(); v != nil {
		if err := v.(error); err != nil {
			return nil, err
		}
	}
	return []availability.DaySlots{{Date: from.Format("2006-01-02")}}, nil
}

func newTestCache(t *testing.T, loader *countingLoader, clock availability.Clock) *AvailabilityCache {
	t.Helper()
	c, err := New(loader.load, clock, Options{Size: 16, TTL: 5 * time.Minute, IdleTTL: 30 * time.Minute, RegenTimeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Stop)
	return c
}

var (
	testFrom = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	testTo   = time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestCacheHit(t *testing.T) {
	loader := &countingLoader{}
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	c := newTestCache(t, loader, clock)
	provider := uuid.New()

	for i := 0; i < 3; i++ {
		slots, err := c.Get(context.Background(), provider, testFrom, testTo, 30)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if len(slots) != 1 || slots[0].Date != "2025-06-02" {
			t.Fatalf("unexpected slots: %+v", slots)
		}
	}

	if n := loader.calls.Load(); n != 1 {
		t.Errorf("loader called %d times, want 1", n)
	}
}

func TestCacheDistinctKeys(t *testing.T) {
	loader := &countingLoader{}
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	c := newTestCache(t, loader, clock)
	provider := uuid.New()

	if _, err := c.Get(context.Background(), provider, testFrom, testTo, 30); err != nil {
		t.Fatalf("Get: %v", err)
	}
	// Different slot size is a different key.
	if _, err := c.Get(context.Background(), provider, testFrom, testTo, 60); err != nil {
		t.Fatalf("Get: %v", err)
	}

	if n := loader.calls.Load(); n != 2 {
		t.Errorf("loader called %d times, want 2", n)
	}
}

func TestCacheStaleWhileRevalidate(t *testing.T) {
	loader := &countingLoader{}
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	c := newTestCache(t, loader, clock)
	provider := uuid.New()

	if _, err := c.Get(context.Background(), provider, testFrom, testTo, 30); err != nil {
		t.Fatalf("Get: %v", err)
	}

	clock.Advance(6 * time.Minute)

	// Expired entry is served immediately while the refresh runs behind.
	start := time.Now()
	slots, err := c.Get(context.Background(), provider, testFrom, testTo, 30)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("stale read returned %+v", slots)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("stale read took %s, should not block on regeneration", elapsed)
	}

	waitFor(t, func() bool { return loader.calls.Load() == 2 }, "background refresh never ran")

	// The refreshed entry is fresh again; no further loads.
	if _, err := c.Get(context.Background(), provider, testFrom, testTo, 30); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n := loader.calls.Load(); n != 2 {
		t.Errorf("loader called %d times after refresh, want 2", n)
	}
}

func TestCacheSingleFlight(t *testing.T) {
	loader := &countingLoader{block: make(chan struct{})}
	loader.blockOn.Store(true)
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	c := newTestCache(t, loader, clock)
	provider := uuid.New()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Get(context.Background(), provider, testFrom, testTo, 30)
		}(i)
	}

	waitFor(t, func() bool { return loader.calls.Load() >= 1 }, "load never started")
	close(loader.block)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("goroutine %d: %v", i, err)
		}
	}
	if calls := loader.calls.Load(); calls != 1 {
		t.Errorf("loader called %d times for %d concurrent misses, want 1", calls, n)
	}
}

func TestCacheInvalidate(t *testing.T) {
	loader := &countingLoader{}
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	c := newTestCache(t, loader, clock)
	provider := uuid.New()
	other := uuid.New()

	if _, err := c.Get(context.Background(), provider, testFrom, testTo, 30); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := c.Get(context.Background(), other, testFrom, testTo, 30); err != nil {
		t.Fatalf("Get: %v", err)
	}

	c.Invalidate(provider)

	// Invalidated provider reloads, the other stays cached.
	if _, err := c.Get(context.Background(), provider, testFrom, testTo, 30); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := c.Get(context.Background(), other, testFrom, testTo, 30); err != nil {
		t.Fatalf("Get: %v", err)
	}

	if n := loader.calls.Load(); n != 3 {
		t.Errorf("loader called %d times, want 3", n)
	}
}

func TestCacheInvalidateDuringLoad(t *testing.T) {
	loader := &countingLoader{block: make(chan struct{})}
	loader.blockOn.Store(true)
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	c := newTestCache(t, loader, clock)
	provider := uuid.New()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Get(context.Background(), provider, testFrom, testTo, 30)
	}()

	waitFor(t, func() bool { return loader.calls.Load() == 1 }, "load never started")

	// Invalidation lands while the load is still in flight; its result
	// must not be cached.
	c.Invalidate(provider)
	loader.blockOn.Store(false)
	close(loader.block)
	<-done

	if _, err := c.Get(context.Background(), provider, testFrom, testTo, 30); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n := loader.calls.Load(); n != 2 {
		t.Errorf("loader called %d times, want 2 (stale flight must not repopulate)", n)
	}
}

func TestCacheStaleFallbackOnError(t *testing.T) {
	loader := &countingLoader{}
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	c := newTestCache(t, loader, clock)
	provider := uuid.New()

	if _, err := c.Get(context.Background(), provider, testFrom, testTo, 30); err != nil {
		t.Fatalf("Get: %v", err)
	}

	loader.err.Store(errors.New("store down"))
	clock.Advance(6 * time.Minute)

	// Expired entry, failing loader: the stale value keeps being served.
	slots, err := c.Get(context.Background(), provider, testFrom, testTo, 30)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(slots) != 1 {
		t.Errorf("stale fallback returned %+v", slots)
	}
}

func TestCacheMissWithFailingLoader(t *testing.T) {
	loader := &countingLoader{}
	loader.err.Store(errors.New("store down"))
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	c := newTestCache(t, loader, clock)

	_, err := c.Get(context.Background(), uuid.New(), testFrom, testTo, 30)
	if err == nil {
		t.Fatal("expected error with no cached value to fall back on")
	}
}

func TestCacheGetHonorsContext(t *testing.T) {
	loader := &countingLoader{block: make(chan struct{})}
	loader.blockOn.Store(true)
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	c := newTestCache(t, loader, clock)
	defer close(loader.block)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Get(ctx, uuid.New(), testFrom, testTo, 30)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
