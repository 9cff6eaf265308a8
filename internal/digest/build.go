package digest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"asanagram/internal/asana"
	"asanagram/internal/engine/render"
	"asanagram/pkg/tgui"
)

const dateLayout = "2006-01-02"

// Mentions resolves an assignee to a chat handle.
type Mentions interface {
	ResolveAssignee(name, email string) (string, bool)
}

// View is the input of the report builders. Now must already be in the
// reporting timezone.
type View struct {
	Tasks    []asana.Task
	Now      time.Time
	Locale   string
	Mentions Mentions
	MaxItems int
}

func (v View) today() string    { return v.Now.Format(dateLayout) }
func (v View) tomorrow() string { return v.Now.AddDate(0, 0, 1).Format(dateLayout) }

func (v View) maxItems() int {
	if v.MaxItems <= 0 {
		return 10
	}
	return v.MaxItems
}

func (v View) overdue() []asana.Task {
	today := v.today()
	var out []asana.Task
	for _, t := range v.Tasks {
		if !t.Completed && t.DueOn != "" && t.DueOn < today {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueOn < out[j].DueOn })
	return out
}

func (v View) dueOn(day string) []asana.Task {
	var out []asana.Task
	for _, t := range v.Tasks {
		if !t.Completed && t.DueOn == day {
			out = append(out, t)
		}
	}
	return out
}

func (v View) completedSince(since time.Time) []asana.Task {
	var out []asana.Task
	for _, t := range v.Tasks {
		if !t.Completed || t.CompletedAt == "" {
			continue
		}
		at, err := time.Parse(time.RFC3339, t.CompletedAt)
		if err == nil && !at.Before(since) {
			out = append(out, t)
		}
	}
	return out
}

func (v View) assignee(t asana.Task, tx texts) string {
	label := t.AssigneeLabel()
	if label == "" {
		return tx.unassigned
	}
	email := ""
	if t.Assignee != nil {
		email = t.Assignee.Email
	}
	if v.Mentions != nil {
		if h, ok := v.Mentions.ResolveAssignee(t.Assignee.Name, email); ok {
			return tgui.Esc(label).String() + " (" + tgui.Esc(h).String() + ")"
		}
	}
	return tgui.Esc(label).String()
}

// mentionLine lists distinct handles of the assignees of tasks, in order.
func (v View) mentionLine(tasks []asana.Task) string {
	if v.Mentions == nil {
		return ""
	}
	seen := map[string]bool{}
	var hs []string
	for _, t := range tasks {
		if t.Assignee == nil {
			continue
		}
		h, ok := v.Mentions.ResolveAssignee(t.Assignee.Name, t.Assignee.Email)
		if !ok || seen[h] {
			continue
		}
		seen[h] = true
		hs = append(hs, tgui.Esc(h).String())
	}
	return strings.Join(hs, " ")
}

func taskBlock(b *strings.Builder, v View, tx texts, t asana.Task, extra string) {
	b.WriteString("\n📋 " + tgui.B(t.Name).String())
	b.WriteString("\n👤 " + v.assignee(t, tx))
	if extra != "" {
		b.WriteString("\n" + extra)
	}
	if t.PermalinkURL != "" {
		b.WriteString("\n" + tgui.Link(tx.open, t.PermalinkURL).String())
	}
	b.WriteString("\n")
}

// Overdue lists incomplete tasks whose due date is before today. With no
// such task it returns the all-clear message.
func Overdue(v View) string {
	tx := lookup(v.Locale)
	items := v.overdue()
	if len(items) == 0 {
		return tx.overdueNone
	}
	today := v.today()
	var b strings.Builder
	b.WriteString(fmt.Sprintf(tx.overdueTitle, len(items)) + "\n")
	b.WriteString(fmt.Sprintf(tx.asOf, render.FormatDate(today, tx.notSet)) + "\n")
	b.WriteString(separator + "\n")
	for _, t := range items {
		taskBlock(&b, v, tx, t, fmt.Sprintf(tx.dueOverdue, render.FormatDate(t.DueOn, tx.notSet), daysBetween(t.DueOn, today)))
	}
	if m := v.mentionLine(items); m != "" {
		b.WriteString("\n" + m)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Deadlines lists tasks due today and tomorrow. ok is false when there are none.
func Deadlines(v View) (text string, ok bool) {
	tx := lookup(v.Locale)
	today, tomorrow := v.today(), v.tomorrow()
	dueToday, dueTomorrow := v.dueOn(today), v.dueOn(tomorrow)
	if len(dueToday) == 0 && len(dueTomorrow) == 0 {
		return "", false
	}
	var b strings.Builder
	b.WriteString(tx.deadlinesTitle + "\n")
	section := func(title, day string, items []asana.Task) {
		if len(items) == 0 {
			return
		}
		b.WriteString("\n" + fmt.Sprintf(title, render.FormatDate(day, tx.notSet), len(items)) + "\n")
		for _, t := range items {
			taskBlock(&b, v, tx, t, "")
		}
	}
	section(tx.today, today, dueToday)
	section(tx.tomorrow, tomorrow, dueTomorrow)
	if m := v.mentionLine(append(append([]asana.Task(nil), dueToday...), dueTomorrow...)); m != "" {
		b.WriteString("\n" + m)
	}
	return strings.TrimRight(b.String(), "\n"), true
}

// Weekly summarizes the last seven days: completed, in progress and overdue
// counts, with at most MaxItems names per list.
func Weekly(v View) string {
	tx := lookup(v.Locale)
	done := v.completedSince(v.Now.AddDate(0, 0, -7))
	overdue := v.overdue()
	active := 0
	for _, t := range v.Tasks {
		if !t.Completed {
			active++
		}
	}
	limit := v.maxItems()

	var b strings.Builder
	b.WriteString(tx.weeklyTitle + "\n")
	from := v.Now.AddDate(0, 0, -6).Format(dateLayout)
	b.WriteString("📅 " + render.FormatDate(from, tx.notSet) + " - " + render.FormatDate(v.today(), tx.notSet) + "\n")
	b.WriteString(separator + "\n")
	b.WriteString("\n" + fmt.Sprintf(tx.doneCount, len(done)))
	b.WriteString("\n" + fmt.Sprintf(tx.activeCount, active))
	b.WriteString("\n" + fmt.Sprintf(tx.overdueCount, len(overdue)))

	if len(done) > 0 {
		b.WriteString("\n\n" + tx.doneList + "\n")
		for _, t := range done[:min(limit, len(done))] {
			b.WriteString("• " + tgui.Esc(t.Name).String() + "\n")
		}
		if len(done) > limit {
			b.WriteString(fmt.Sprintf(tx.more, len(done)-limit) + "\n")
		}
	}
	if len(overdue) > 0 {
		b.WriteString("\n" + tx.overdueList + "\n")
		for _, t := range overdue[:min(limit, len(overdue))] {
			b.WriteString("• " + tgui.Esc(t.Name).String() + ", " + v.assignee(t, tx) + " (" + render.FormatDate(t.DueOn, tx.notSet) + ")\n")
		}
		if len(overdue) > limit {
			b.WriteString(fmt.Sprintf(tx.more, len(overdue)-limit) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func daysBetween(from, to string) int {
	a, err1 := time.Parse(dateLayout, from)
	b, err2 := time.Parse(dateLayout, to)
	if err1 != nil || err2 != nil {
		return 0
	}
	return int(b.Sub(a).Hours() / 24)
}
