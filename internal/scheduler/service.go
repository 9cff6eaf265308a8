// Package scheduler triggers named jobs on cron, daily or interval schedules
// in a configured timezone.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	logx "asanagram/pkg/logx"
)

var ErrUnknownJob = errors.New("unknown job")

type registered struct {
	job     Job
	spec    string
	entryID cron.EntryID
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	parser cron.Parser
	loc    *time.Location

	c    *cron.Cron
	ctx  context.Context
	jobs map[string]*registered
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log: log.With(logx.String("comp", "scheduler")),
		cfg: cfg,
		// SecondOptional allows both 5-field and 6-field specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		jobs:   map[string]*registered{},
	}
	s.loc = s.loadLocation(cfg.Timezone)
	return s
}

func (s *Service) loadLocation(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, using UTC", logx.String("tz", tz), logx.Err(err))
		return time.UTC
	}
	return loc
}

// Location is the timezone schedules are evaluated in.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// Set validates every job and then replaces the registered set. On error
// nothing changes.
func (s *Service) Set(jobs []Job) error {
	next := make(map[string]*registered, len(jobs))
	for _, j := range jobs {
		name := strings.TrimSpace(j.Name)
		if name == "" || j.Run == nil {
			return fmt.Errorf("job %q: name and run func required", j.Name)
		}
		if _, dup := next[name]; dup {
			return fmt.Errorf("job %q registered twice", name)
		}
		ps, err := ParseSchedule(j.Schedule)
		if err != nil {
			return fmt.Errorf("job %q: %w", name, err)
		}
		spec := ps.CronSpec()
		if _, err := s.parser.Parse(spec); err != nil {
			return fmt.Errorf("job %q: invalid cron %q: %w", name, spec, err)
		}
		j.Name = name
		next[name] = &registered{job: j, spec: spec}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		for _, r := range s.jobs {
			s.c.Remove(r.entryID)
		}
	}
	s.jobs = next
	if s.c != nil {
		s.addAllLocked()
	}
	return nil
}

// Apply restarts cron when the timezone changed.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	if old == strings.TrimSpace(cfg.Timezone) {
		return
	}
	s.loc = s.loadLocation(cfg.Timezone)
	if s.c == nil {
		return
	}
	s.c.Stop()
	s.startLocked()
	s.log.Info("timezone changed, schedules re-registered", logx.String("tz", s.loc.String()))
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx = ctx
	s.startLocked()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
}

func (s *Service) startLocked() {
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger{log: s.log}),
		cron.WithChain(cron.Recover(cronLogger{log: s.log}), cron.SkipIfStillRunning(cronLogger{log: s.log})),
	)
	s.addAllLocked()
	s.c.Start()
}

func (s *Service) addAllLocked() {
	for _, r := range s.jobs {
		r := r
		id, err := s.c.AddFunc(r.spec, func() { s.run(r.job) })
		if err != nil {
			s.log.Error("schedule register failed", logx.String("name", r.job.Name), logx.String("spec", r.spec), logx.Err(err))
			continue
		}
		r.entryID = id
		s.log.Debug("schedule registered", logx.String("name", r.job.Name), logx.String("spec", r.spec))
	}
}

func (s *Service) run(j Job) {
	s.mu.Lock()
	base := s.ctx
	s.mu.Unlock()
	if base == nil {
		base = context.Background()
	}
	if base.Err() != nil {
		return
	}
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(base, timeout)
	defer cancel()

	start := time.Now()
	if err := j.Run(ctx); err != nil {
		s.log.Warn("job failed", logx.String("name", j.Name), logx.Duration("took", time.Since(start)), logx.Err(err))
		return
	}
	s.log.Info("job done", logx.String("name", j.Name), logx.Duration("took", time.Since(start)))
}

// RunNow runs a registered job synchronously, outside its schedule.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	r, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	timeout := r.job.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.job.Run(cctx)
}

// NextRun reports when name fires next after t, in the scheduler timezone.
func (s *Service) NextRun(name string, after time.Time) (time.Time, bool) {
	s.mu.Lock()
	r, ok := s.jobs[name]
	loc := s.loc
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	sched, err := s.parser.Parse(r.spec)
	if err != nil {
		return time.Time{}, false
	}
	return sched.Next(after.In(loc)), true
}

// Entries lists registered jobs sorted by name.
func (s *Service) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EntryInfo, 0, len(s.jobs))
	for _, r := range s.jobs {
		info := EntryInfo{Name: r.job.Name, Schedule: r.job.Schedule}
		if s.c != nil && r.entryID != 0 {
			e := s.c.Entry(r.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stop stops triggering and waits for running jobs until ctx ends.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with jobs running")
	}
	s.log.Info("scheduler stopped")
}

// cronLogger routes robfig/cron logs into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, _ := kv[i].(string)
		if k == "" {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
