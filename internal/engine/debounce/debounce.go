// Package debounce coalesces bursts of per-entity change events into a single
// callback fired after a quiet window.
package debounce

import (
	"sort"
	"sync"
	"time"

	"asanagram/internal/clock"
)

// FireFunc receives the coalesced aggregate. kinds is sorted and non-empty.
type FireFunc[A, S any] func(entityID string, kinds []string, actor A, snapshot *S)

type pending[A, S any] struct {
	kinds    map[string]struct{}
	actor    A
	hasActor bool
	snapshot *S
	window   time.Duration
	deadline time.Time
	version  uint64
	timer    clock.Timer
	onFire   FireFunc[A, S]
}

// Aggregator holds at most one pending aggregate per entity id.
// A is the actor type, S the snapshot type carried alongside.
type Aggregator[A, S any] struct {
	clk clock.Clock
	// isEmpty reports whether an actor carries no identity and must not
	// overwrite the one already recorded.
	isEmpty func(A) bool

	mu      sync.Mutex
	m       map[string]*pending[A, S]
	seq     uint64
	stopped bool
}

// New returns an Aggregator. isEmpty may be nil, in which case every actor
// overwrites the previous one.
func New[A, S any](clk clock.Clock, isEmpty func(A) bool) *Aggregator[A, S] {
	if clk == nil {
		clk = clock.Real()
	}
	if isEmpty == nil {
		isEmpty = func(A) bool { return false }
	}
	return &Aggregator[A, S]{clk: clk, isEmpty: isEmpty, m: map[string]*pending[A, S]{}}
}

// Schedule records kind for entityID and restarts its quiet window.
//
// The aggregate's window is the longest window requested by any of its
// events. snapshot, when non-nil, replaces the one carried so far; the
// consumer decides whether it is still current. onFire
// of the latest call is the one invoked. Schedule is a no-op after Stop.
func (a *Aggregator[A, S]) Schedule(entityID, kind string, actor A, window time.Duration, snapshot *S, onFire FireFunc[A, S]) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}

	p, ok := a.m[entityID]
	if !ok {
		p = &pending[A, S]{kinds: map[string]struct{}{}}
		a.m[entityID] = p
	} else if p.timer != nil {
		p.timer.Stop()
	}

	if kind != "" {
		p.kinds[kind] = struct{}{}
	}
	if !ok || !a.isEmpty(actor) {
		p.actor = actor
		p.hasActor = true
	}
	if snapshot != nil {
		p.snapshot = snapshot
	}
	if window > p.window {
		p.window = window
	}
	if onFire != nil {
		p.onFire = onFire
	}

	a.seq++
	p.version = a.seq
	p.deadline = a.clk.Now().Add(p.window)
	ver := p.version
	p.timer = a.clk.AfterFunc(p.window, func() { a.fire(entityID, ver) })
}

func (a *Aggregator[A, S]) fire(entityID string, version uint64) {
	a.mu.Lock()
	p, ok := a.m[entityID]
	if !ok || p.version != version || a.stopped {
		a.mu.Unlock()
		return
	}
	delete(a.m, entityID)
	a.mu.Unlock()

	if p.onFire == nil || len(p.kinds) == 0 {
		return
	}
	p.onFire(entityID, sortedKinds(p.kinds), p.actor, p.snapshot)
}

// Discard drops the pending aggregate for entityID without firing.
// It reports whether one existed.
func (a *Aggregator[A, S]) Discard(entityID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.m[entityID]
	if !ok {
		return false
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(a.m, entityID)
	return true
}

// Pending reports the number of open aggregates.
func (a *Aggregator[A, S]) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.m)
}

// Deadline returns when the aggregate for entityID fires.
func (a *Aggregator[A, S]) Deadline(entityID string) (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.m[entityID]
	if !ok {
		return time.Time{}, false
	}
	return p.deadline, true
}

// Stop cancels every timer without firing and rejects further Schedule calls.
// It returns the number of aggregates dropped.
func (a *Aggregator[A, S]) Stop() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	n := len(a.m)
	for id, p := range a.m {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(a.m, id)
	}
	return n
}

func sortedKinds(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
