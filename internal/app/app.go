package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"asanagram/internal/asana"
	"asanagram/internal/config"
	"asanagram/internal/digest"
	"asanagram/internal/engine"
	"asanagram/internal/engine/mention"
	"asanagram/internal/eventbus"
	"asanagram/internal/metrics"
	"asanagram/internal/notifier"
	rtsup "asanagram/internal/runtime/supervisor"
	"asanagram/internal/scheduler"
	"asanagram/internal/storage"
	telegram "asanagram/internal/transport/telegram/adapter"
	"asanagram/internal/webhook"
	logx "asanagram/pkg/logx"
)

type App struct {
	cfgPath string
	started time.Time

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	metrics *metrics.Metrics
	store   storage.Store

	adapter  *telegram.Adapter
	asana    *asana.Client
	mentions *mention.Resolver

	engine *engine.Engine
	notif  *notifier.Service
	sched  *scheduler.Service
	digest *digest.Service
	server *webhook.Server

	digestCfg atomic.Pointer[digest.Config]
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: config.Duration(cfg.Telegram.PollTimeout, 10*time.Second),
		Owners:      cfg.Telegram.OwnerUserIDs,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg), ad)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()
	m := metrics.New()

	store, err := storage.Open(mapStorageConfig(cfg), log)
	if err != nil {
		return nil, err
	}
	if store != nil {
		log.Info("storage enabled", logx.String("driver", cfg.Storage.Driver))
	}

	client := asana.New(mapAsanaOptions(cfg))
	resolver := mention.New(cfg.Mentions)

	notifSvc := notifier.New(mapNotifierConfig(cfg), ad, log.With(logx.String("comp", "notifier")), bus, store, m)

	eng := engine.New(mapEngineConfig(cfg), engine.Deps{
		Source:   engine.AsanaSource{Client: client},
		Sink:     notifierSink{n: notifSvc},
		Mentions: resolver,
		Log:      log.With(logx.String("comp", "engine")),
		Bus:      bus,
		Metrics:  m,
	})

	schedSvc := scheduler.New(mapSchedulerConfig(cfg), log.With(logx.String("comp", "scheduler")))

	a := &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		metrics:  m,
		store:    store,
		adapter:  ad,
		asana:    client,
		mentions: resolver,
		engine:   eng,
		notif:    notifSvc,
		sched:    schedSvc,
	}
	dc := mapDigestConfig(cfg)
	a.digestCfg.Store(&dc)

	a.digest = digest.New(digest.Deps{
		Source:   client,
		Notifier: notifSvc,
		Mentions: resolver,
		Location: schedSvc.Location,
		Log:      log,
		Metrics:  m,
		Config:   func() digest.Config { return *a.digestCfg.Load() },
	})
	if err := schedSvc.Set(a.digest.Jobs()); err != nil {
		return nil, fmt.Errorf("digest schedule: %w", err)
	}

	a.server = webhook.NewServer(mapWebhookConfig(cfg), eng, log.With(logx.String("comp", "webhook")),
		webhook.WithMetrics(m),
		webhook.WithStatus(func() any { return a.status() }),
	)
	a.registerCommands()
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// validate rejects reloads the running services could not apply.
func (a *App) validate(_ context.Context, cfg *config.Config) error {
	var errs []error
	for name, spec := range map[string]string{
		"digest.overdue":   cfg.Digest.Overdue,
		"digest.deadlines": cfg.Digest.Deadlines,
		"digest.weekly":    cfg.Digest.Weekly,
	} {
		if strings.TrimSpace(spec) == "" {
			continue
		}
		if _, err := scheduler.ParseSchedule(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if tz := strings.TrimSpace(cfg.Digest.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("digest.timezone: invalid %q: %w", tz, err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) Start(ctx context.Context) error {
	a.started = time.Now()
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log)
	a.cfgm.SetValidator(a.validate)

	if err := a.adapter.Start(a.sup.Context()); err != nil {
		return err
	}
	a.notif.Start(a.sup.Context())
	a.engine.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())

	a.sup.Go("webhook.http", a.server.ListenAndServe)

	a.sup.Go0("config.watch", func(c context.Context) {
		if err := a.cfgm.Watch(c); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Keep only the latest of a burst.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.log.Info("started",
		logx.String("config", a.cfgPath),
		logx.String("webhook", a.server.Addr()),
		logx.Int("digest_jobs", len(a.sched.Entries())),
	)
	return nil
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.Strs("sections", restart))
	}

	a.logs.Apply(mapLoggingConfig(newCfg))
	a.mentions.Apply(newCfg.Mentions)
	a.engine.Apply(mapEngineConfig(newCfg))
	a.notif.Apply(mapNotifierConfig(newCfg))

	dc := mapDigestConfig(newCfg)
	a.digestCfg.Store(&dc)
	a.sched.Apply(mapSchedulerConfig(newCfg))
	if err := a.sched.Set(a.digest.Jobs()); err != nil {
		a.log.Warn("digest schedule not applied", logx.Err(err))
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Time: time.Now(), Data: sections})
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// step bounds one shutdown stage so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped, deadline reached", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				if err := <-done; err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
				}
			}()
		}
	}

	// Intake first, then the pipeline front to back.
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("engine", 3*time.Second, a.engine.Stop)
	step("notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("storage", time.Second, func(context.Context) error {
		if a.store == nil {
			return nil
		}
		return a.store.Close()
	})
	step("supervisor", 2*time.Second, a.sup.Wait)

	err := a.sup.Err()
	_ = a.logs.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
