// Package dedup answers "has this key been seen within its window?".
//
// Entries are pruned lazily on writes; when the set grows past its cap the
// entries closest to expiry are evicted first.
package dedup

import (
	"sync"
	"time"

	"asanagram/internal/clock"
)

// DefaultMaxEntries bounds the set when no explicit cap is configured.
const DefaultMaxEntries = 5000

// Filter is a time-windowed seen-set. It is safe for concurrent use and
// never blocks on I/O.
type Filter struct {
	mu    sync.Mutex
	clk   clock.Clock
	max   int
	until map[string]time.Time

	suppressed uint64
}

// New returns a Filter. max <= 0 uses DefaultMaxEntries.
func New(clk clock.Clock, max int) *Filter {
	if clk == nil {
		clk = clock.Real()
	}
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Filter{clk: clk, max: max, until: map[string]time.Time{}}
}

// CheckAndMark reports whether key was marked within its still-open window.
// A key seen for the first time (or after its window closed) is marked for
// window and false is returned. A duplicate does not extend the window.
func (f *Filter) CheckAndMark(key string, window time.Duration) bool {
	now := f.clk.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	if u, ok := f.until[key]; ok && now.Before(u) {
		f.suppressed++
		return true
	}
	if window <= 0 {
		return false
	}
	f.until[key] = now.Add(window)
	f.pruneLocked(now)
	return false
}

// Seen reports whether key is marked within its still-open window without
// marking it. A hit counts as suppressed.
func (f *Filter) Seen(key string) bool {
	now := f.clk.Now()

	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.until[key]; ok && now.Before(u) {
		f.suppressed++
		return true
	}
	return false
}

// Len reports the number of live entries, including ones not yet pruned.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.until)
}

// Suppressed reports how many CheckAndMark calls returned true.
func (f *Filter) Suppressed() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.suppressed
}

func (f *Filter) pruneLocked(now time.Time) {
	for k, u := range f.until {
		if !now.Before(u) {
			delete(f.until, k)
		}
	}
	for len(f.until) > f.max {
		var (
			minKey string
			minT   time.Time
			set    bool
		)
		for k, u := range f.until {
			if !set || u.Before(minT) {
				minKey, minT, set = k, u, true
			}
		}
		if !set {
			return
		}
		delete(f.until, minKey)
	}
}
