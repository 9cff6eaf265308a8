package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"asanagram/internal/asana"
	"asanagram/internal/clock"
	"asanagram/internal/engine/mention"
	kit "asanagram/internal/transport"
	logx "asanagram/pkg/logx"
)

var moscow = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		panic(err)
	}
	return loc
}()

func fixture() []asana.Task {
	return []asana.Task{
		{GID: "A", Name: "A", DueOn: "2026-03-08", Assignee: &asana.User{Name: "Amina Mamm"}, PermalinkURL: "https://app.asana.com/0/1/A"},
		{GID: "B", Name: "B", DueOn: "2026-03-09"},
		{GID: "C", Name: "C", DueOn: "2026-03-01", Completed: true, CompletedAt: "2026-03-08T12:00:00Z"},
		{GID: "D", Name: "D", DueOn: "2026-03-11"},
		{GID: "E", Name: "E <x>", DueOn: "2026-03-10"},
	}
}

func view() View {
	return View{
		Tasks:    fixture(),
		Now:      time.Date(2026, 3, 10, 9, 0, 0, 0, moscow),
		Locale:   "en",
		Mentions: mention.New(map[string]string{"Amina Mamm": "amina_mamm"}),
	}
}

func TestOverdue(t *testing.T) {
	t.Parallel()
	want := "🚨 <b>Overdue tasks (2)</b>\n📅 As of 10.03.2026\n─────────────────\n" +
		"\n📋 <b>A</b>\n👤 Amina Mamm (@amina_mamm)\n⏰ Due: 08.03.2026 (<b>2 d. overdue</b>)\n<a href=\"https://app.asana.com/0/1/A\">🔗 Open</a>\n" +
		"\n📋 <b>B</b>\n👤 unassigned\n⏰ Due: 09.03.2026 (<b>1 d. overdue</b>)\n" +
		"\n@amina_mamm"
	if got := Overdue(view()); got != want {
		t.Fatalf("Overdue:\n%s\nwant:\n%s", got, want)
	}
}

func TestOverdueAllClear(t *testing.T) {
	t.Parallel()
	v := view()
	v.Tasks = v.Tasks[2:3]
	v.Locale = "ru"
	if got := Overdue(v); got != "✅ <b>Просроченных задач нет!</b>\nВсе задачи в срок." {
		t.Fatalf("Overdue = %q", got)
	}
}

func TestDeadlines(t *testing.T) {
	t.Parallel()
	got, ok := Deadlines(view())
	if !ok {
		t.Fatal("expected deadlines")
	}
	for _, part := range []string{
		"🔴 <b>Today (10.03.2026), tasks: 1</b>\n\n📋 <b>E &lt;x&gt;</b>",
		"🟡 <b>Tomorrow (11.03.2026), tasks: 1</b>\n\n📋 <b>D</b>",
	} {
		if !strings.Contains(got, part) {
			t.Fatalf("Deadlines missing %q:\n%s", part, got)
		}
	}

	v := view()
	v.Tasks = v.Tasks[:3]
	if _, ok := Deadlines(v); ok {
		t.Fatal("no deadlines should produce no message")
	}
}

func TestDeadlinesUseReportingTimezone(t *testing.T) {
	t.Parallel()
	v := view()
	// 01:00 in Moscow is still the previous day in UTC.
	v.Now = time.Date(2026, 3, 9, 22, 0, 0, 0, time.UTC).In(moscow)
	got, _ := Deadlines(v)
	if !strings.Contains(got, "Today (10.03.2026)") {
		t.Fatalf("Deadlines = %s", got)
	}
}

func TestWeeklyLimitsLists(t *testing.T) {
	t.Parallel()
	v := view()
	for i := 0; i < 12; i++ {
		v.Tasks = append(v.Tasks, asana.Task{GID: fmt.Sprint("done", i), Name: fmt.Sprint("done ", i), Completed: true, CompletedAt: "2026-03-09T08:00:00Z"})
	}
	v.Tasks = append(v.Tasks, asana.Task{GID: "old", Name: "old", Completed: true, CompletedAt: "2026-02-01T08:00:00Z"})
	got := Weekly(v)
	for _, part := range []string{
		"📅 04.03.2026 - 10.03.2026",
		"✅ Completed this week: <b>13</b>",
		"🔄 In progress: <b>4</b>",
		"🚨 Overdue: <b>2</b>",
		"<i>...and 3 more</i>",
		"• A, Amina Mamm (@amina_mamm) (08.03.2026)",
	} {
		if !strings.Contains(got, part) {
			t.Fatalf("Weekly missing %q:\n%s", part, got)
		}
	}
	if strings.Contains(got, "• old") {
		t.Fatal("task completed before the week is listed")
	}
}

type fakeSource struct {
	tasks map[string][]asana.Task
	err   map[string]error
}

func (f fakeSource) ProjectTasks(_ context.Context, gid string) ([]asana.Task, error) {
	return f.tasks[gid], f.err[gid]
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []kit.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n kit.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

func newService(src Source, n Notifier, projects ...string) *Service {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Projects = projects
	cfg.Locale = "en"
	return New(Deps{
		Source:   src,
		Notifier: n,
		Clock:    clock.NewFake(time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)),
		Location: func() *time.Location { return moscow },
		Log:      logx.Nop(),
		Config:   func() Config { return cfg },
	})
}

func TestServiceSendMergesProjects(t *testing.T) {
	t.Parallel()
	all := fixture()
	src := fakeSource{
		tasks: map[string][]asana.Task{"P1": all[:2], "P2": all[1:3]},
		err:   map[string]error{"P3": errors.New("forbidden")},
	}
	n := &fakeNotifier{}
	s := newService(src, n, "P1", "P2", "P3")
	if err := s.Send(context.Background(), ReportOverdue); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(n.sent) != 1 || n.sent[0].Kind != "digest.overdue" {
		t.Fatalf("sent = %+v", n.sent)
	}
	if !strings.Contains(n.sent[0].Text, "Overdue tasks (2)") {
		t.Fatalf("text = %s", n.sent[0].Text)
	}
}

func TestServiceSkipsEmptyDeadlines(t *testing.T) {
	t.Parallel()
	n := &fakeNotifier{}
	s := newService(fakeSource{tasks: map[string][]asana.Task{"P1": fixture()[:3]}}, n, "P1")
	if err := s.Send(context.Background(), ReportDeadlines); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(n.sent) != 0 {
		t.Fatalf("sent = %+v", n.sent)
	}
}

func TestServiceErrors(t *testing.T) {
	t.Parallel()
	s := newService(fakeSource{err: map[string]error{"P1": errors.New("down")}}, &fakeNotifier{}, "P1")
	if err := s.Send(context.Background(), ReportWeekly); err == nil {
		t.Fatal("expected error when every project fails")
	}
	if _, _, err := s.Build(context.Background(), "monthly"); !errors.Is(err, ErrUnknownReport) {
		t.Fatalf("Build(monthly) = %v", err)
	}
	if jobs := s.Jobs(); len(jobs) != 3 || jobs[0].Name != "digest.overdue" {
		t.Fatalf("jobs = %+v", jobs)
	}
}
