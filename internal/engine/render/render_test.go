package render

import (
	"strings"
	"testing"
)

type mentionTable map[string]string

func (m mentionTable) ResolveAssignee(name, email string) (string, bool) {
	if h, ok := m[name]; ok {
		return h, true
	}
	h, ok := m[email]
	return h, ok
}

func baseSnapshot() *Snapshot {
	return &Snapshot{
		ID:           "T2",
		Name:         "Ship <v2>",
		AssigneeName: "Anna",
		DueOn:        "2026-03-05",
		Permalink:    "https://app.asana.com/0/1/2",
		ProjectName:  "Ops",
	}
}

func TestRenderCompletedWinsOverOtherKinds(t *testing.T) {
	t.Parallel()
	s := baseSnapshot()
	s.Completed = true
	got, ok := Render(Input{
		Snapshot: s,
		Kinds:    []string{KindDescription, KindAssignee},
		Actor:    Actor{Name: "Boris"},
		Locale:   "en",
		Mentions: mentionTable{"Anna": "@anna"},
	})
	if !ok {
		t.Fatal("expected a message")
	}
	want := "<b>✅ Task completed</b>\n" +
		"📋 <b>Ship &lt;v2&gt;</b>\n" +
		"\n" +
		"📁 Project: Ops\n" +
		"👤 Assignee: Anna (@anna)\n" +
		"👁 By: Boris\n" +
		"\n" +
		`<a href="https://app.asana.com/0/1/2">🔗 Open task</a>` + "\n" +
		"@anna"
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
	if strings.Contains(got, "Description") {
		t.Fatal("completed message leaked a description line")
	}
}

func TestRenderBlankNameIsNone(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"", "  ", "\t\n"} {
		s := baseSnapshot()
		s.Name = name
		s.Completed = true
		if got, ok := Render(Input{Snapshot: s, Kinds: []string{KindAdded}}); ok {
			t.Fatalf("name %q rendered %q", name, got)
		}
	}
	if _, ok := Render(Input{Kinds: []string{KindAdded}}); ok {
		t.Fatal("nil snapshot rendered")
	}
}

func TestRenderCreatedAndSubtask(t *testing.T) {
	t.Parallel()
	s := baseSnapshot()
	got, ok := Render(Input{Snapshot: s, Kinds: []string{KindAssignee, KindAdded, KindDueDate}})
	if !ok || !strings.HasPrefix(got, "<b>➕ Новая задача создана</b>\n") {
		t.Fatalf("created = %q, %v", got, ok)
	}
	if !strings.Contains(got, "📅 Срок: 05.03.2026") || !strings.Contains(got, "👤 Исполнитель: Anna") {
		t.Fatalf("created message misses final state:\n%s", got)
	}

	s.ParentID, s.ParentName = "P1", "Epic"
	got, _ = Render(Input{Snapshot: s, Kinds: []string{KindAdded}, Locale: "en"})
	if !strings.HasPrefix(got, "<b>➕ New subtask created</b>\n") || !strings.Contains(got, "↳ Parent task: Epic") {
		t.Fatalf("subtask = %q", got)
	}
}

func TestRenderUpdatedFixedOrderAndUnknownKinds(t *testing.T) {
	t.Parallel()
	s := baseSnapshot()
	s.DueOn = ""
	got, ok := Render(Input{
		Snapshot: s,
		Kinds:    []string{"parent", KindDueDate, KindName, KindCustomField, KindAssignee},
		Locale:   "en",
	})
	if !ok {
		t.Fatal("expected a message")
	}
	want := "<b>✏️ Task updated</b>\n" +
		"📋 <b>Ship &lt;v2&gt;</b>\n" +
		"\n" +
		"🏷 Name: Ship &lt;v2&gt;\n" +
		"👤 Assignee: Anna\n" +
		"📅 Due: not set\n" +
		"🔧 Custom field changed\n" +
		"📁 Project: Ops\n" +
		"\n" +
		`<a href="https://app.asana.com/0/1/2">🔗 Open task</a>`
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
	if strings.Contains(got, "parent") {
		t.Fatal("unrecognized kind rendered raw")
	}
}

func TestRenderOnlyUnknownKindsIsNone(t *testing.T) {
	t.Parallel()
	if got, ok := Render(Input{Snapshot: baseSnapshot(), Kinds: []string{"parent", "start_on"}}); ok {
		t.Fatalf("rendered %q", got)
	}
}

func TestScenarioNotesOnCompletedTask(t *testing.T) {
	t.Parallel()
	s := baseSnapshot()
	s.Completed = true
	s.Notes = "new description"
	got, _ := Render(Input{Snapshot: s, Kinds: []string{KindDescription}})
	if !strings.HasPrefix(got, "<b>✅ Задача выполнена</b>") || strings.Contains(got, "Описание") {
		t.Fatalf("got %q", got)
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	t.Parallel()
	in := Input{Snapshot: baseSnapshot(), Kinds: []string{KindName, KindDescription}, Actor: Actor{Name: "Boris"}, Mentions: mentionTable{"Anna": "@anna"}}
	a, _ := Render(in)
	b, _ := Render(in)
	if a != b {
		t.Fatalf("non-deterministic output:\n%s\n---\n%s", a, b)
	}
}

func TestNotesTruncatedAndEscaped(t *testing.T) {
	t.Parallel()
	s := baseSnapshot()
	s.Notes = strings.Repeat("<", 301)
	got, _ := Render(Input{Snapshot: s, Kinds: []string{KindDescription}})
	want := "📝 Описание: <i>" + strings.Repeat("&lt;", 300) + "...</i>"
	if !strings.Contains(got, want) {
		t.Fatalf("notes line missing truncation:\n%s", got)
	}

	s.Notes = strings.Repeat("x", 300)
	got, _ = Render(Input{Snapshot: s, Kinds: []string{KindDescription}})
	if strings.Contains(got, "...") {
		t.Fatal("notes at budget were truncated")
	}
}

func TestMentionByEmailAndTrailingLine(t *testing.T) {
	t.Parallel()
	s := baseSnapshot()
	s.AssigneeName = "Anna K"
	s.AssigneeEmail = "anna@example.com"
	got, _ := Render(Input{Snapshot: s, Kinds: []string{KindAssignee}, Mentions: mentionTable{"anna@example.com": "@annak"}})
	if !strings.Contains(got, "👤 Исполнитель: Anna K (@annak)") || !strings.HasSuffix(got, "\n@annak") {
		t.Fatalf("mention not rendered:\n%s", got)
	}
	got, _ = Render(Input{Snapshot: s, Kinds: []string{KindName}, Mentions: mentionTable{"anna@example.com": "@annak"}})
	if strings.Contains(got, "@annak") {
		t.Fatal("mention added although assignee line was not rendered")
	}
}

func TestSystemActor(t *testing.T) {
	t.Parallel()
	got, _ := Render(Input{Snapshot: baseSnapshot(), Kinds: []string{KindAssignee}, Actor: Actor{System: true}, Locale: "en"})
	if !strings.Contains(got, "👁 By: <i>automation rule</i>") {
		t.Fatalf("system actor line missing:\n%s", got)
	}
}

func TestRenderDeleted(t *testing.T) {
	t.Parallel()
	if _, ok := RenderDeleted("  ", Actor{Name: "Boris"}, "ru"); ok {
		t.Fatal("deleted without name rendered")
	}
	got, ok := RenderDeleted("Old & busted", Actor{Name: "Boris"}, "en")
	want := "<b>🗑 Task deleted</b>\n📋 <s>Old &amp; busted</s>\n👁 By: Boris"
	if !ok || got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderComment(t *testing.T) {
	t.Parallel()
	task := baseSnapshot()
	c := Comment{ID: "S1", Subtype: "comment_added", Text: strings.Repeat("a", 401), AuthorName: "Vera"}
	got, ok := RenderComment(c, task, Actor{}, "en", Budgets{})
	if !ok {
		t.Fatal("expected comment message")
	}
	want := "<b>💬 New comment</b>\n" +
		"📋 <b>Ship &lt;v2&gt;</b>\n" +
		"\n" +
		"<i>" + strings.Repeat("a", 400) + "...</i>\n" +
		"\n" +
		"👤 Vera\n" +
		`<a href="https://app.asana.com/0/1/2">🔗 Open task</a>`
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}

	c.Subtype = "assigned"
	if _, ok := RenderComment(c, task, Actor{}, "en", Budgets{}); ok {
		t.Fatal("non-comment story rendered")
	}
}

func TestRenderSectionAndAttachment(t *testing.T) {
	t.Parallel()
	if got, _ := RenderSection("Backlog", "en"); got != "<b>📂 New section created</b>\nBacklog" {
		t.Fatalf("section = %q", got)
	}
	if got, ok := RenderSection("", "en"); !ok || got != "<b>📂 New section created</b>" {
		t.Fatalf("unnamed section = %q, %v", got, ok)
	}
	got, _ := RenderAttachment("", baseSnapshot(), "ru")
	want := "<b>📎 Файл прикреплён</b>\nфайл\n📋 Ship &lt;v2&gt;\n" + `<a href="https://app.asana.com/0/1/2">🔗 Открыть задачу</a>`
	if got != want {
		t.Fatalf("attachment = %q", got)
	}
}

func TestFormatDate(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"2026-01-09":           "09.01.2026",
		"2026-01-09T10:00:00Z": "09.01.2026",
		"":                     "n/a",
		"soon":                 "soon",
	}
	for in, want := range tests {
		if got := FormatDate(in, "n/a"); got != want {
			t.Fatalf("FormatDate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTemplateMatchesRender(t *testing.T) {
	t.Parallel()
	s := baseSnapshot()
	cases := []struct {
		kinds []string
		want  string
	}{
		{kinds: []string{KindAdded}, want: "created"},
		{kinds: []string{KindName}, want: "updated"},
		{kinds: []string{"parent"}, want: "none"},
	}
	for _, c := range cases {
		in := Input{Snapshot: s, Kinds: c.kinds}
		if got := Template(in); got != c.want {
			t.Fatalf("Template(%v) = %q, want %q", c.kinds, got, c.want)
		}
		_, ok := Render(in)
		if ok != (c.want != "none") {
			t.Fatalf("Render(%v) ok = %v disagrees with template %q", c.kinds, ok, c.want)
		}
	}
}
