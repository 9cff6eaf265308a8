package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"asanagram/internal/digest"
	"asanagram/internal/engine"
	rtsup "asanagram/internal/runtime/supervisor"
	"asanagram/internal/scheduler"
	kit "asanagram/internal/transport"
	"asanagram/pkg/tgui"
)

// Status is the operational snapshot served on /health and /status.
type Status struct {
	Uptime      string                `json:"uptime"`
	Engine      engine.Stats          `json:"engine"`
	NotifyQueue int                   `json:"notify_queue"`
	Schedules   []scheduler.EntryInfo `json:"schedules"`
	Mentions    int                   `json:"mentions"`
	Goroutines  []rtsup.Stats         `json:"supervisors,omitempty"`
}

func (a *App) status() Status {
	st := Status{
		Engine:      a.engine.Stats(),
		NotifyQueue: a.notif.QueueLen(),
		Schedules:   a.sched.Entries(),
		Mentions:    a.mentions.Len(),
	}
	if !a.started.IsZero() {
		st.Uptime = time.Since(a.started).Round(time.Second).String()
	}
	for _, sup := range []*rtsup.Supervisor{a.sup, a.engine.Supervisor(), a.notif.Supervisor(), a.adapter.Supervisor()} {
		if sup != nil {
			st.Goroutines = append(st.Goroutines, sup.Snapshot()...)
		}
	}
	return st
}

func (a *App) registerCommands() {
	a.adapter.Handle(kit.BotCommand{Command: "status", Description: "Engine and delivery status"}, a.cmdStatus)
	a.adapter.Handle(kit.BotCommand{Command: "report", Description: "Run a report: overdue, deadlines, weekly"}, a.cmdReport)
	a.adapter.Handle(kit.BotCommand{Command: "history", Description: "Recent deliveries"}, a.cmdHistory)
	a.adapter.Handle(kit.BotCommand{Command: "reload", Description: "Reload config from disk"}, a.cmdReload)
}

func (a *App) cmdStatus(_ context.Context, _ kit.Command) (string, error) {
	st := a.status()
	es := st.Engine
	var b strings.Builder
	b.WriteString(tgui.B("Status").String())
	fmt.Fprintf(&b, "\nuptime: %s", tgui.Esc(st.Uptime))
	fmt.Fprintf(&b, "\nevents: %d received, %d ignored, %d duplicates", es.Received, es.Ignored, es.Duplicates)
	fmt.Fprintf(&b, "\naggregates: %d pending, %d fired, %d discarded", es.Pending, es.Fired, es.Discarded)
	fmt.Fprintf(&b, "\ndelivery: %d ok, %d failed, queue %d", es.Delivered, es.Failed, st.NotifyQueue)
	fmt.Fprintf(&b, "\ncache: %d tasks, %d stories, %d users", es.Tasks, es.Stories, es.Users)
	fmt.Fprintf(&b, "\nmentions: %d", st.Mentions)
	if len(st.Schedules) > 0 {
		b.WriteString("\n\n" + tgui.B("Schedules").String())
		for _, e := range st.Schedules {
			fmt.Fprintf(&b, "\n%s: %s", tgui.Esc(e.Name), tgui.Esc(e.Next.Format("2006-01-02 15:04 MST")))
		}
	}
	return b.String(), nil
}

func (a *App) cmdReport(ctx context.Context, cmd kit.Command) (string, error) {
	report := digest.ReportOverdue
	if len(cmd.Args) > 0 {
		report = strings.ToLower(strings.TrimSpace(cmd.Args[0]))
	}
	text, ok, err := a.digest.Build(ctx, report)
	if err != nil {
		return "", err
	}
	if !ok {
		return tgui.I("Nothing to report.").String(), nil
	}
	return text, nil
}

func (a *App) cmdHistory(_ context.Context, cmd kit.Command) (string, error) {
	items := a.notif.Snapshot()
	if len(items) == 0 {
		return tgui.I("No deliveries yet.").String(), nil
	}
	const show = 15
	if len(items) > show {
		items = items[len(items)-show:]
	}
	var b strings.Builder
	b.WriteString(tgui.B("Recent deliveries").String())
	for _, it := range items {
		mark := "✅"
		if !it.OK {
			mark = "❌"
		}
		fmt.Fprintf(&b, "\n%s %s %s", mark, it.At.Format("15:04:05"), tgui.Esc(it.Kind))
		if it.EntityID != "" {
			fmt.Fprintf(&b, " %s", tgui.Esc(it.EntityID))
		}
		if it.Error != "" {
			fmt.Fprintf(&b, ": %s", tgui.Esc(tgui.Truncate(it.Error, 120)))
		}
	}
	return b.String(), nil
}

func (a *App) cmdReload(ctx context.Context, _ kit.Command) (string, error) {
	changed, err := a.cfgm.Reload(ctx)
	if err != nil {
		return "", fmt.Errorf("reload rejected: %w", err)
	}
	if !changed {
		return "Config unchanged.", nil
	}
	return "Config reloaded.", nil
}
