// Package digest builds the scheduled project reports: overdue tasks,
// deadlines for today and tomorrow, and the weekly summary.
package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"asanagram/internal/asana"
	"asanagram/internal/clock"
	"asanagram/internal/metrics"
	"asanagram/internal/scheduler"
	kit "asanagram/internal/transport"
	logx "asanagram/pkg/logx"
)

// Report names, also used as job names and /report arguments.
const (
	ReportOverdue   = "overdue"
	ReportDeadlines = "deadlines"
	ReportWeekly    = "weekly"
)

var ErrUnknownReport = errors.New("unknown report")

// Source lists the tasks of a project.
type Source interface {
	ProjectTasks(ctx context.Context, projectGID string) ([]asana.Task, error)
}

// Notifier queues a message for delivery.
type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
}

type Config struct {
	Enabled   bool
	Projects  []string
	Locale    string
	MaxItems  int
	Overdue   string // schedule, empty disables
	Deadlines string
	Weekly    string
	Timeout   time.Duration
}

// DefaultConfig mirrors the classic 09:00 / 10:00 / Sunday 10:00 plan.
func DefaultConfig() Config {
	return Config{
		Overdue:   "0 9 * * *",
		Deadlines: "0 10 * * *",
		Weekly:    "0 10 * * 0",
		MaxItems:  10,
		Timeout:   2 * time.Minute,
	}
}

type Service struct {
	src      Source
	notifier Notifier
	mentions Mentions
	clk      clock.Clock
	loc      func() *time.Location
	log      logx.Logger
	m        *metrics.Metrics

	cfg func() Config
}

type Deps struct {
	Source   Source
	Notifier Notifier
	Mentions Mentions
	Clock    clock.Clock
	// Location returns the reporting timezone. Nil means UTC.
	Location func() *time.Location
	Log      logx.Logger
	Metrics  *metrics.Metrics
	// Config returns the current digest settings.
	Config func() Config
}

func New(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Location == nil {
		d.Location = func() *time.Location { return time.UTC }
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Config == nil {
		cfg := DefaultConfig()
		d.Config = func() Config { return cfg }
	}
	return &Service{
		src:      d.Source,
		notifier: d.Notifier,
		mentions: d.Mentions,
		clk:      d.Clock,
		loc:      d.Location,
		log:      d.Log.With(logx.String("comp", "digest")),
		m:        d.Metrics,
		cfg:      d.Config,
	}
}

// Jobs returns the scheduler jobs for the enabled reports.
func (s *Service) Jobs() []scheduler.Job {
	cfg := s.cfg()
	if !cfg.Enabled {
		return nil
	}
	var jobs []scheduler.Job
	add := func(name, spec string) {
		if strings.TrimSpace(spec) == "" {
			return
		}
		jobs = append(jobs, scheduler.Job{Name: "digest." + name, Schedule: spec, Timeout: cfg.Timeout, Run: func(ctx context.Context) error {
			return s.Send(ctx, name)
		}})
	}
	add(ReportOverdue, cfg.Overdue)
	add(ReportDeadlines, cfg.Deadlines)
	add(ReportWeekly, cfg.Weekly)
	return jobs
}

// Build fetches tasks and renders report. ok is false when the report has
// nothing to say.
func (s *Service) Build(ctx context.Context, report string) (text string, ok bool, err error) {
	switch report {
	case ReportOverdue, ReportDeadlines, ReportWeekly:
	default:
		return "", false, fmt.Errorf("%w: %q", ErrUnknownReport, report)
	}
	cfg := s.cfg()
	tasks, err := s.fetch(ctx, cfg.Projects)
	if err != nil {
		return "", false, err
	}
	v := View{
		Tasks:    tasks,
		Now:      s.clk.Now().In(s.loc()),
		Locale:   cfg.Locale,
		Mentions: s.mentions,
		MaxItems: cfg.MaxItems,
	}
	switch report {
	case ReportOverdue:
		return Overdue(v), true, nil
	case ReportDeadlines:
		text, ok = Deadlines(v)
		return text, ok, nil
	default:
		return Weekly(v), true, nil
	}
}

// Send builds report and queues it for the default chat.
func (s *Service) Send(ctx context.Context, report string) (err error) {
	defer func() { s.m.DigestRun(report, err) }()
	text, ok, err := s.Build(ctx, report)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Info("report empty, nothing sent", logx.String("report", report))
		return nil
	}
	return s.notifier.Notify(ctx, kit.Notification{Kind: "digest." + report, Text: text})
}

// fetch merges tasks of every project. A failing project is logged and
// skipped; the error is returned only when every project failed.
func (s *Service) fetch(ctx context.Context, projects []string) ([]asana.Task, error) {
	if len(projects) == 0 {
		return nil, errors.New("no projects configured")
	}
	seen := map[string]bool{}
	var out []asana.Task
	var errs []error
	tried := 0
	for _, gid := range projects {
		gid = strings.TrimSpace(gid)
		if gid == "" {
			continue
		}
		tried++
		start := s.clk.Now()
		tasks, err := s.src.ProjectTasks(ctx, gid)
		s.m.Fetch("project_tasks", s.clk.Now().Sub(start), err)
		if err != nil {
			s.log.Warn("project tasks fetch failed", logx.String("project", gid), logx.Err(err))
			errs = append(errs, fmt.Errorf("project %s: %w", gid, err))
			continue
		}
		for _, t := range tasks {
			if t.GID != "" && seen[t.GID] {
				continue
			}
			seen[t.GID] = true
			out = append(out, t)
		}
	}
	if tried == 0 {
		return nil, errors.New("no projects configured")
	}
	if len(errs) == tried {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
