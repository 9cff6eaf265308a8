// Package cache memoizes fetched entity snapshots for a fixed TTL.
//
// A value read past its expiry is re-fetched before any caller sees it,
// failed fetches are never cached, and concurrent reads of the same key
// share one in-flight fetch.
package cache

import (
	"context"
	"sync"
	"time"

	"asanagram/internal/clock"
)

const (
	DefaultTTL          = 5 * time.Minute
	DefaultFetchTimeout = 8 * time.Second
)

// FetchFunc loads the current value for key. A non-nil error (including a
// timeout) means the value is absent.
type FetchFunc[V any] func(ctx context.Context, key string) (V, error)

// Options tune a Cache. Zero values pick the defaults.
type Options struct {
	TTL          time.Duration
	FetchTimeout time.Duration
	Clock        clock.Clock
	// OnFetch observes every fetch attempt.
	OnFetch func(key string, d time.Duration, err error)
}

type entry[V any] struct {
	val       V
	expiresAt time.Time
	stale     bool
	version   uint64
	purge     clock.Timer
}

type flight[V any] struct {
	done        chan struct{}
	val         V
	ok          bool
	invalidated bool
}

// Cache is safe for concurrent use.
type Cache[V any] struct {
	fetch FetchFunc[V]
	opts  Options
	clk   clock.Clock

	mu       sync.Mutex
	entries  map[string]*entry[V]
	inflight map[string]*flight[V]
	seq      uint64
}

func New[V any](fetch FetchFunc[V], opts Options) *Cache[V] {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Cache[V]{
		fetch:    fetch,
		opts:     opts,
		clk:      clk,
		entries:  map[string]*entry[V]{},
		inflight: map[string]*flight[V]{},
	}
}

// Get returns a fresh value for key, fetching it on miss, expiry or after
// Invalidate. ok is false when the fetch failed or ctx ended first.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && !e.stale && c.clk.Now().Before(e.expiresAt) {
		v := e.val
		c.mu.Unlock()
		return v, true
	}
	if f, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.val, f.ok
		case <-ctx.Done():
			return zero, false
		}
	}
	f := &flight[V]{done: make(chan struct{})}
	c.inflight[key] = f
	c.mu.Unlock()

	v, err := c.doFetch(ctx, key)

	c.mu.Lock()
	delete(c.inflight, key)
	if err == nil {
		f.val, f.ok = v, true
		c.storeLocked(key, v, f.invalidated)
	}
	c.mu.Unlock()
	close(f.done)

	if err != nil {
		return zero, false
	}
	return v, true
}

func (c *Cache[V]) doFetch(ctx context.Context, key string) (v V, err error) {
	fctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()

	start := c.clk.Now()
	defer func() {
		if c.opts.OnFetch != nil {
			c.opts.OnFetch(key, c.clk.Now().Sub(start), err)
		}
	}()
	return c.fetch(fctx, key)
}

// Put stores a value obtained elsewhere, e.g. a snapshot embedded in an event.
func (c *Cache[V]) Put(key string, v V) {
	c.mu.Lock()
	c.storeLocked(key, v, false)
	c.mu.Unlock()
}

func (c *Cache[V]) storeLocked(key string, v V, stale bool) {
	if old, ok := c.entries[key]; ok && old.purge != nil {
		old.purge.Stop()
	}
	c.seq++
	e := &entry[V]{
		val:       v,
		expiresAt: c.clk.Now().Add(c.opts.TTL),
		stale:     stale,
		version:   c.seq,
	}
	ver := e.version
	e.purge = c.clk.AfterFunc(c.opts.TTL, func() { c.purge(key, ver) })
	c.entries[key] = e
}

func (c *Cache[V]) purge(key string, version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.version == version {
		delete(c.entries, key)
	}
}

// Invalidate forces the next Get for key to fetch. The last value stays
// visible to Peek until it is purged. A fetch already in flight is still
// returned to its waiters but is not cached as fresh.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.stale = true
	}
	if f, ok := c.inflight[key]; ok {
		f.invalidated = true
	}
}

// Peek returns the current or last known value without fetching.
func (c *Cache[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.val, true
	}
	var zero V
	return zero, false
}

// Len reports the number of cached entries, stale ones included.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
