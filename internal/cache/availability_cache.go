package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/carebridge/telehealth-scheduling/internal/availability"
)

var ErrAvailabilityUnavailable = errors.New("availability temporarily unavailable")

// LoadFunc regenerates the slots for a key, normally backed by
// availability.Service.GetAvailability.
type LoadFunc func(ctx context.Context, providerID uuid.UUID, from, to time.Time, slotMinutes int) ([]availability.DaySlots, error)

type Key struct {
	ProviderID  uuid.UUID
	From        string // "YYYY-MM-DD"
	To          string
	SlotMinutes int
}

func NewKey(providerID uuid.UUID, from, to time.Time, slotMinutes int) Key {
	return Key{
		ProviderID:  providerID,
		From:        from.Format("2006-01-02"),
		To:          to.Format("2006-01-02"),
		SlotMinutes: slotMinutes,
	}
}

type entry struct {
	slots      []availability.DaySlots
	fetchedAt  time.Time
	lastAccess atomic.Int64 // unix nanos
}

type Options struct {
	Size         int           // max cached keys
	TTL          time.Duration // freshness window before revalidation
	IdleTTL      time.Duration // eviction after this long without access
	RegenTimeout time.Duration // bound on one regeneration
}

const idleSweepInterval = time.Minute

// AvailabilityCache is a read-through cache over slot generation with a
// stale-while-revalidate policy: expired entries are served immediately
// while one background regeneration runs. Concurrent misses for the
// same key collapse into a single load.
type AvailabilityCache struct {
	load    LoadFunc
	entries *lru.Cache[Key, *entry]
	group   singleflight.Group
	clock   availability.Clock
	opts    Options

	mu   sync.Mutex
	gens map[uuid.UUID]uint64 // bumped on invalidation so stale flights cannot repopulate

	stop     chan struct{}
	stopOnce sync.Once
}

func New(load LoadFunc, clock availability.Clock, opts Options) (*AvailabilityCache, error) {
	if opts.Size <= 0 {
		opts.Size = 1024
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}
	if opts.RegenTimeout <= 0 {
		opts.RegenTimeout = 3 * time.Second
	}

	entries, err := lru.New[Key, *entry](opts.Size)
	if err != nil {
		return nil, fmt.Errorf("create availability cache: %w", err)
	}

	c := &AvailabilityCache{
		load:    load,
		entries: entries,
		clock:   clock,
		opts:    opts,
		gens:    make(map[uuid.UUID]uint64),
		stop:    make(chan struct{}),
	}

	go c.idleSweep()

	return c, nil
}

// Get returns the slots for the key. A fresh entry is returned as is;
// an expired one is returned immediately while a background refresh
// runs; a miss blocks on a single-flight regeneration. If regeneration
// fails and a last-known value exists, that value is returned instead.
func (c *AvailabilityCache) Get(ctx context.Context, providerID uuid.UUID, from, to time.Time, slotMinutes int) ([]availability.DaySlots, error) {
	key := NewKey(providerID, from, to, slotMinutes)
	now := c.clock.Now()

	if e, ok := c.entries.Get(key); ok {
		e.lastAccess.Store(now.UnixNano())
		if now.Sub(e.fetchedAt) <= c.opts.TTL {
			return e.slots, nil
		}
		go c.revalidate(key)
		return e.slots, nil
	}

	gen := c.generation(providerID)
	ch := c.group.DoChan(flightKey(key, gen), func() (interface{}, error) {
		return c.populate(key, gen)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if e, ok := c.entries.Get(key); ok {
				return e.slots, nil
			}
			return nil, res.Err
		}
		return res.Val.([]availability.DaySlots), nil
	}
}

// Invalidate drops every cached range for the provider. Loads already
// in flight for the old generation cannot repopulate the cache.
func (c *AvailabilityCache) Invalidate(providerID uuid.UUID) {
	c.mu.Lock()
	c.gens[providerID]++
	c.mu.Unlock()

	for _, key := range c.entries.Keys() {
		if key.ProviderID == providerID {
			c.entries.Remove(key)
		}
	}
}

// InvalidateAll flushes the whole cache. Administrative and test use.
func (c *AvailabilityCache) InvalidateAll() {
	c.mu.Lock()
	for p := range c.gens {
		c.gens[p]++
	}
	c.mu.Unlock()

	c.entries.Purge()
}

func (c *AvailabilityCache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// populate regenerates under its own bounded context, detached from any
// caller, so a cancelled request never leaves a partial entry behind.
func (c *AvailabilityCache) populate(key Key, gen uint64) ([]availability.DaySlots, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.RegenTimeout)
	defer cancel()

	from, _ := time.Parse("2006-01-02", key.From)
	to, _ := time.Parse("2006-01-02", key.To)

	slots, err := c.load(ctx, key.ProviderID, from, to, key.SlotMinutes)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrAvailabilityUnavailable, err)
		}
		return nil, err
	}

	e := &entry{slots: slots, fetchedAt: c.clock.Now()}
	e.lastAccess.Store(c.clock.Now().UnixNano())

	// Only store if the provider was not invalidated while loading.
	if c.generation(key.ProviderID) == gen {
		c.entries.Add(key, e)
	}

	return slots, nil
}

func (c *AvailabilityCache) revalidate(key Key) {
	gen := c.generation(key.ProviderID)
	_, err, _ := c.group.Do(flightKey(key, gen), func() (interface{}, error) {
		if e, ok := c.entries.Get(key); ok && c.clock.Now().Sub(e.fetchedAt) <= c.opts.TTL {
			return e.slots, nil
		}
		return c.populate(key, gen)
	})
	if err != nil {
		// The stale entry stays; the next request serves it again.
		log.Printf("availability cache: background refresh failed for provider %s: %v", key.ProviderID, err)
	}
}

func (c *AvailabilityCache) generation(providerID uuid.UUID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[providerID]
}

func flightKey(key Key, gen uint64) string {
	return fmt.Sprintf("%s|%s|%s|%d|%d", key.ProviderID, key.From, key.To, key.SlotMinutes, gen)
}

func (c *AvailabilityCache) idleSweep() {
	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			cutoff := c.clock.Now().Add(-c.opts.IdleTTL).UnixNano()
			for _, key := range c.entries.Keys() {
				if e, ok := c.entries.Peek(key); ok && e.lastAccess.Load() < cutoff {
					c.entries.Remove(key)
				}
			}
		}
	}
}
