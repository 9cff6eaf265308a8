package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"asanagram/internal/eventbus"
	"asanagram/internal/metrics"
	rtsup "asanagram/internal/runtime/supervisor"
	"asanagram/internal/storage"
	kit "asanagram/internal/transport"
	logx "asanagram/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
	ErrNoTarget  = errors.New("notifier has no target chat")
)

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender kit.Sender
	bus    eventbus.Bus
	store  storage.Store
	m      *metrics.Metrics

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup
	queue     chan kit.Notification
	sup       *rtsup.Supervisor

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus, store storage.Store, m *metrics.Metrics) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	cfg = cfg.withDefaults()
	return &Service{
		log:     log.With(logx.String("comp", "notifier")),
		sender:  sender,
		bus:     bus,
		store:   store,
		m:       m,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
	}
}

// Apply updates rate, burst, target and timeouts. Queue size and worker
// count take effect on the next Start.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	s.limiter.SetBurst(cfg.Burst)
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil || !s.cfg.Enabled {
		return
	}
	s.queue = make(chan kit.Notification, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	q := s.queue
	for i := 0; i < s.cfg.Workers; i++ {
		s.sup.GoRestart(fmt.Sprintf("notifier.worker.%d", i), func(c context.Context) error {
			return s.workerLoop(c, q)
		}, rtsup.WithPublishFirstError(true))
	}
}

// Stop rejects new notifications and drains the queue until ctx ends.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.accepting {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	q, sup := s.queue, s.sup
	s.mu.Unlock()

	s.sendWG.Wait()
	close(q)
	if err := sup.Wait(ctx); err != nil && ctx.Err() != nil {
		s.log.Warn("notifier drain timed out", logx.Int("left", len(q)))
	}
	sup.Cancel()

	s.mu.Lock()
	s.queue, s.sup = nil, nil
	s.mu.Unlock()
}

// Notify enqueues n. It never blocks on the network.
func (s *Service) Notify(ctx context.Context, n kit.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting {
		s.mu.Unlock()
		return ErrStopped
	}
	if n.Target.ChatID == 0 {
		n.Target = s.cfg.Target
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	if n.Target.ChatID == 0 {
		return ErrNoTarget
	}
	ev := NotificationEvent{Kind: n.Kind, EntityID: n.EntityID, ChatID: n.Target.ChatID, ThreadID: n.Target.ThreadID, At: time.Now()}
	select {
	case q <- n:
		s.bus.Publish(eventbus.Event{Type: eventbus.NotifierQueued, Time: ev.At, Data: ev})
		return nil
	default:
		ev.Error = ErrQueueFull.Error()
		s.bus.Publish(eventbus.Event{Type: eventbus.NotifierDropped, Time: ev.At, Data: ev})
		s.m.Delivery("dropped")
		return ErrQueueFull
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan kit.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-q:
			if !ok {
				return nil
			}
			s.send(ctx, n)
		}
	}
}

func (s *Service) send(ctx context.Context, n kit.Notification) {
	s.mu.Lock()
	timeout := s.cfg.SendTimeout
	lim := s.limiter
	s.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return
	}
	opts := n.Options
	if opts == nil {
		opts = &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	_, err := s.sender.SendText(cctx, n.Target, n.Text, opts)
	cancel()

	now := time.Now()
	ev := NotificationEvent{Kind: n.Kind, EntityID: n.EntityID, ChatID: n.Target.ChatID, ThreadID: n.Target.ThreadID, At: now}
	rec := storage.Delivery{At: now, Kind: n.Kind, EntityID: n.EntityID, ChatID: n.Target.ChatID, OK: err == nil, Text: n.Text}
	if err != nil {
		ev.Error = err.Error()
		rec.Error = err.Error()
		s.log.Warn("notification send failed", logx.String("kind", n.Kind), logx.String("gid", n.EntityID), logx.Err(err))
		s.bus.Publish(eventbus.Event{Type: eventbus.NotifierFailed, Time: now, Data: ev})
		s.m.Delivery("failed")
	} else {
		s.bus.Publish(eventbus.Event{Type: eventbus.NotifierSent, Time: now, Data: ev})
		s.m.Delivery("sent")
	}
	s.appendHistory(HistoryItem{At: now, Kind: n.Kind, EntityID: n.EntityID, OK: err == nil, Error: ev.Error})

	if s.store != nil {
		sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		if serr := s.store.RecordDelivery(sctx, rec); serr != nil {
			s.log.Debug("delivery log write failed", logx.Err(serr))
		}
		scancel()
	}
}

func (s *Service) appendHistory(it HistoryItem) {
	s.mu.Lock()
	max := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, it)
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
}

// Snapshot returns recent sends, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

// QueueLen reports how many notifications wait for a worker.
func (s *Service) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}
