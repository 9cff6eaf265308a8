// Package engine consolidates the raw webhook stream into one notification
// per logical change.
//
// Task additions and edits are coalesced per task by a debounce aggregator
// and rendered from a fresh snapshot when the quiet window closes. Comments,
// sections, attachments and deletions are atomic: they are deduplicated and
// rendered right away.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"asanagram/internal/clock"
	"asanagram/internal/engine/cache"
	"asanagram/internal/engine/debounce"
	"asanagram/internal/engine/dedup"
	"asanagram/internal/engine/render"
	"asanagram/internal/eventbus"
	"asanagram/internal/metrics"
	rtsup "asanagram/internal/runtime/supervisor"
	logx "asanagram/pkg/logx"
)

var (
	ErrQueueFull = errors.New("engine queue full")
	ErrStopped   = errors.New("engine stopped")
)

// Source reads current entity state. Errors mean "unavailable".
type Source interface {
	Task(ctx context.Context, gid string) (*Snapshot, error)
	Story(ctx context.Context, gid string) (*Comment, error)
	UserName(ctx context.Context, gid string) (string, error)
}

// Message is one rendered notification handed to the Sink.
type Message struct {
	Kind     string // template, e.g. "task.updated"
	EntityID string
	Text     string
}

// Sink delivers rendered messages. The engine never retries a failed Deliver.
type Sink interface {
	Deliver(ctx context.Context, m Message) error
}

// Deps are the collaborators of an Engine. Log, Bus, Metrics, Mentions and
// Clock are optional.
type Deps struct {
	Source   Source
	Sink     Sink
	Mentions render.Mentions
	Log      logx.Logger
	Bus      eventbus.Bus
	Metrics  *metrics.Metrics
	Clock    clock.Clock
}

// Stats is a point-in-time view for /status.
type Stats struct {
	Pending    int    `json:"pending_aggregates"`
	Tasks      int    `json:"cached_tasks"`
	Stories    int    `json:"cached_stories"`
	Users      int    `json:"cached_users"`
	DedupKeys  int    `json:"dedup_keys"`
	Received   uint64 `json:"received"`
	Ignored    uint64 `json:"ignored"`
	Duplicates uint64 `json:"duplicates"`
	Fired      uint64 `json:"fired"`
	Discarded  uint64 `json:"discarded"`
	Delivered  uint64 `json:"delivered"`
	Failed     uint64 `json:"failed"`
}

type batch struct {
	id     string
	events []Event
}

type Engine struct {
	src  Source
	sink Sink
	men  render.Mentions
	log  logx.Logger
	bus  eventbus.Bus
	m    *metrics.Metrics
	clk  clock.Clock

	cfg atomic.Pointer[Config]

	tasks   *cache.Cache[*Snapshot]
	stories *cache.Cache[*Comment]
	users   *cache.Cache[string]
	seen    *dedup.Filter
	agg     *debounce.Aggregator[Actor, Snapshot]

	mu        sync.RWMutex
	queue     chan batch
	accepting bool
	sup       *rtsup.Supervisor
	baseCtx   context.Context

	received, ignored, fired, discarded, delivered, failed atomic.Uint64
}

// New wires an Engine. Cache TTLs, fetch timeout and the dedup cap are
// fixed at construction; the rest of cfg can be changed with Apply.
func New(cfg Config, d Deps) *Engine {
	cfg = cfg.withDefaults()
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	clk := d.Clock
	if clk == nil {
		clk = clock.Real()
	}
	bus := d.Bus
	if bus == nil {
		bus = eventbus.Nop{}
	}
	e := &Engine{
		src:     d.Source,
		sink:    d.Sink,
		men:     d.Mentions,
		log:     log.With(logx.String("comp", "engine")),
		bus:     bus,
		m:       d.Metrics,
		clk:     clk,
		baseCtx: context.Background(),
	}
	e.cfg.Store(&cfg)

	observe := func(resource string) func(string, time.Duration, error) {
		return func(key string, dur time.Duration, err error) {
			e.m.Fetch(resource, dur, err)
			if err != nil {
				e.log.Debug("fetch failed", logx.String("resource", resource), logx.String("gid", key), logx.Err(err))
			}
		}
	}
	e.tasks = cache.New(func(ctx context.Context, gid string) (*Snapshot, error) {
		if e.src == nil {
			return nil, ErrStopped
		}
		return e.src.Task(ctx, gid)
	}, cache.Options{TTL: cfg.CacheTTL, FetchTimeout: cfg.FetchTimeout, Clock: clk, OnFetch: observe("task")})
	e.stories = cache.New(func(ctx context.Context, gid string) (*Comment, error) {
		if e.src == nil {
			return nil, ErrStopped
		}
		return e.src.Story(ctx, gid)
	}, cache.Options{TTL: cfg.CacheTTL, FetchTimeout: cfg.FetchTimeout, Clock: clk, OnFetch: observe("story")})
	e.users = cache.New(func(ctx context.Context, gid string) (string, error) {
		if e.src == nil {
			return "", ErrStopped
		}
		return e.src.UserName(ctx, gid)
	}, cache.Options{TTL: cfg.UserCacheTTL, FetchTimeout: cfg.FetchTimeout, Clock: clk, OnFetch: observe("user")})
	e.seen = dedup.New(clk, cfg.DedupMaxEntries)
	e.agg = debounce.New[Actor, Snapshot](clk, func(a Actor) bool {
		return a.ID == "" && strings.TrimSpace(a.Name) == ""
	})
	return e
}

// Apply swaps the hot-reloadable settings.
func (e *Engine) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	e.cfg.Store(&cfg)
}

func (e *Engine) config() Config { return *e.cfg.Load() }

// Start launches the dispatch loop. Events submitted before Start are rejected.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.queue != nil {
		return
	}
	e.sup = rtsup.New(ctx, rtsup.WithLogger(e.log))
	e.baseCtx = e.sup.Context()
	e.queue = make(chan batch, e.config().QueueSize)
	e.accepting = true
	q := e.queue
	e.sup.GoRestart("engine.dispatch", func(c context.Context) error {
		return e.dispatch(c, q)
	}, rtsup.WithPublishFirstError(true))
}

// Stop rejects new batches, drains the queue until ctx ends and drops
// pending aggregates without firing.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.accepting {
		e.mu.Unlock()
		return nil
	}
	e.accepting = false
	close(e.queue)
	sup := e.sup
	e.mu.Unlock()

	err := sup.Wait(ctx)
	sup.Cancel()
	if n := e.agg.Stop(); n > 0 {
		e.log.Info("dropped pending aggregates on shutdown", logx.Int("count", n))
	}
	e.m.SetPendingAggregates(0)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Submit queues one webhook batch for in-order processing.
func (e *Engine) Submit(batchID string, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.accepting {
		return ErrStopped
	}
	select {
	case e.queue <- batch{id: batchID, events: events}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (e *Engine) dispatch(ctx context.Context, q <-chan batch) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-q:
			if !ok {
				return nil
			}
			for _, ev := range b.events {
				e.handleSafe(ctx, b.id, ev)
			}
		}
	}
}

func (e *Engine) handleSafe(ctx context.Context, batchID string, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("event handler panicked", logx.String("batch", batchID), logx.String("gid", ev.EntityID), logx.Any("panic", r))
		}
	}()
	e.Handle(ctx, ev)
}

// Handle routes a single event. It never returns an error: every failure is
// contained to the event.
func (e *Engine) Handle(ctx context.Context, ev Event) {
	e.received.Add(1)
	e.m.EventReceived(string(ev.Resource), string(ev.Action))

	switch {
	case ev.Resource == ResourceTask && ev.Action == ActionDeleted:
		e.taskDeleted(ctx, ev)
	case ev.Resource == ResourceTask && (ev.Action == ActionAdded || ev.Action == ActionChanged):
		e.taskChanged(ev)
	case ev.Resource == ResourceStory && ev.Action == ActionAdded:
		e.storyAdded(ctx, ev)
	case ev.Resource == ResourceSection && ev.Action == ActionAdded:
		e.sectionAdded(ctx, ev)
	case ev.Resource == ResourceAttachment && ev.Action == ActionAdded:
		e.attachmentAdded(ctx, ev)
	default:
		e.ignore("action")
	}
}

func (e *Engine) ignore(reason string) {
	e.ignored.Add(1)
	e.m.EventIgnored(reason)
}

func (e *Engine) duplicate(key string, window time.Duration, class string) bool {
	if e.seen.CheckAndMark(key, window) {
		e.m.DedupSuppressed(class)
		return true
	}
	return false
}

func (e *Engine) taskChanged(ev Event) {
	cfg := e.config()
	kind, ok := ChangeKind(ev.Action, ev.Field)
	if !ok {
		e.ignore("field")
		return
	}
	rawKey := fmt.Sprintf("raw:%s:%s:%s:%s", ev.EntityID, ev.Action, ev.Field, ev.CreatedAt)
	if e.duplicate(rawKey, cfg.AtomicDedupWindow, "raw") {
		return
	}
	if ev.Snapshot != nil {
		e.tasks.Put(ev.EntityID, ev.Snapshot)
	}
	window := cfg.EditWindow
	if kind == render.KindAdded {
		window = cfg.NewEntityWindow
	}
	e.agg.Schedule(ev.EntityID, kind, ev.Actor, window, ev.Snapshot, e.aggregateFired)
	e.m.SetPendingAggregates(e.agg.Pending())
}

func (e *Engine) aggregateFired(gid string, kinds []string, actor Actor, snap *Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("aggregate handler panicked", logx.String("gid", gid), logx.Any("panic", r))
		}
	}()
	e.fired.Add(1)
	e.m.Aggregate("fired")
	e.m.SetPendingAggregates(e.agg.Pending())
	e.bus.Publish(eventbus.Event{Type: eventbus.AggregateFired, Time: e.clk.Now(), Data: map[string]any{"gid": gid, "kinds": kinds}})

	cfg := e.config()
	key := "task:" + gid + ":" + strings.Join(kinds, ",")
	if e.seen.Seen(key) {
		e.m.DedupSuppressed("aggregate")
		return
	}

	// Current state wins over a snapshot carried by an earlier event; the
	// carried one only stands in when the fetch fails.
	ctx := e.ctx()
	e.tasks.Invalidate(gid)
	if s, ok := e.tasks.Get(ctx, gid); ok {
		snap = s
	}

	in := render.Input{
		Snapshot: snap,
		Kinds:    kinds,
		Actor:    e.resolveActor(ctx, actor),
		Locale:   cfg.Locale,
		Mentions: e.men,
		Budgets:  render.Budgets{Notes: cfg.NotesBudget, Comment: cfg.CommentBudget},
	}
	tpl := render.Template(in)
	text, ok := render.Render(in)
	e.m.Rendered(tpl)
	if !ok {
		e.log.Debug("aggregate rendered nothing", logx.String("gid", gid), logx.Strs("kinds", kinds))
		return
	}
	// Marked only once there is something to send, so a failed fetch or a
	// blank name does not swallow the next aggregate.
	if e.duplicate(key, cfg.AggregateDedupWindow, "aggregate") {
		return
	}
	e.deliver(ctx, Message{Kind: "task." + tpl, EntityID: gid, Text: text})
}

func (e *Engine) taskDeleted(ctx context.Context, ev Event) {
	cfg := e.config()
	if e.agg.Discard(ev.EntityID) {
		e.discarded.Add(1)
		e.m.Aggregate("discarded")
		e.m.SetPendingAggregates(e.agg.Pending())
		e.bus.Publish(eventbus.Event{Type: eventbus.AggregateDiscarded, Time: e.clk.Now(), Data: map[string]any{"gid": ev.EntityID}})
	}
	if e.duplicate("task-deleted:"+ev.EntityID, cfg.AtomicDedupWindow, "atomic") {
		return
	}
	name := ev.Name
	if s, ok := e.tasks.Peek(ev.EntityID); ok && s != nil && strings.TrimSpace(s.Name) != "" {
		name = s.Name
	}
	text, ok := render.RenderDeleted(name, e.resolveActor(ctx, ev.Actor), cfg.Locale)
	if !ok {
		e.m.Rendered("none")
		return
	}
	e.m.Rendered("deleted")
	e.deliver(ctx, Message{Kind: "task.deleted", EntityID: ev.EntityID, Text: text})
}

func (e *Engine) storyAdded(ctx context.Context, ev Event) {
	cfg := e.config()
	if e.duplicate("story:"+ev.EntityID, cfg.AtomicDedupWindow, "atomic") {
		return
	}
	if ev.Subtype != "" && ev.Subtype != "comment_added" {
		e.ignore("story_subtype")
		return
	}
	c, ok := e.stories.Get(ctx, ev.EntityID)
	if !ok || c == nil {
		e.m.Rendered("none")
		return
	}
	var task *Snapshot
	if ev.ParentID != "" {
		task, _ = e.tasks.Get(ctx, ev.ParentID)
	}
	text, ok := render.RenderComment(*c, task, e.resolveActor(ctx, ev.Actor), cfg.Locale, render.Budgets{Notes: cfg.NotesBudget, Comment: cfg.CommentBudget})
	if !ok {
		e.m.Rendered("none")
		return
	}
	e.m.Rendered("comment")
	e.deliver(ctx, Message{Kind: "story.comment", EntityID: ev.EntityID, Text: text})
}

func (e *Engine) sectionAdded(ctx context.Context, ev Event) {
	cfg := e.config()
	if e.duplicate("section:"+ev.EntityID, cfg.AtomicDedupWindow, "atomic") {
		return
	}
	text, _ := render.RenderSection(ev.Name, cfg.Locale)
	e.m.Rendered("section")
	e.deliver(ctx, Message{Kind: "section.added", EntityID: ev.EntityID, Text: text})
}

func (e *Engine) attachmentAdded(ctx context.Context, ev Event) {
	cfg := e.config()
	if e.duplicate("attachment:"+ev.EntityID, cfg.AtomicDedupWindow, "atomic") {
		return
	}
	var task *Snapshot
	if ev.ParentID != "" {
		task, _ = e.tasks.Get(ctx, ev.ParentID)
	}
	text, _ := render.RenderAttachment(ev.Name, task, cfg.Locale)
	e.m.Rendered("attachment")
	e.deliver(ctx, Message{Kind: "attachment.added", EntityID: ev.EntityID, Text: text})
}

// resolveActor fills in a missing display name from the users cache.
func (e *Engine) resolveActor(ctx context.Context, a Actor) Actor {
	if strings.TrimSpace(a.Name) != "" || a.ID == "" {
		return a
	}
	if name, ok := e.users.Get(ctx, a.ID); ok {
		a.Name = name
	}
	return a
}

func (e *Engine) deliver(ctx context.Context, m Message) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Deliver(ctx, m); err != nil {
		e.failed.Add(1)
		e.m.Delivery("failed")
		e.log.Warn("delivery failed", logx.String("kind", m.Kind), logx.String("gid", m.EntityID), logx.Err(err))
		return
	}
	e.delivered.Add(1)
	e.m.Delivery("handed_off")
}

func (e *Engine) ctx() context.Context {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.baseCtx
}

// Stats reports queue-independent engine state.
func (e *Engine) Stats() Stats {
	return Stats{
		Pending:    e.agg.Pending(),
		Tasks:      e.tasks.Len(),
		Stories:    e.stories.Len(),
		Users:      e.users.Len(),
		DedupKeys:  e.seen.Len(),
		Received:   e.received.Load(),
		Ignored:    e.ignored.Load(),
		Duplicates: e.seen.Suppressed(),
		Fired:      e.fired.Load(),
		Discarded:  e.discarded.Load(),
		Delivered:  e.delivered.Load(),
		Failed:     e.failed.Load(),
	}
}

// Supervisor exposes the dispatch supervisor for health output (nil before Start).
func (e *Engine) Supervisor() *rtsup.Supervisor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sup
}
