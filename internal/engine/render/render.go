// Package render turns task snapshots and change sets into Telegram HTML.
//
// Every function here is pure: the same input always yields the same bytes.
// Untrusted text is escaped before it is embedded in markup.
package render

import (
	"strings"

	"asanagram/pkg/tgui"
)

// Render builds the message for a coalesced task change. It returns false
// when the change resolves to nothing worth sending.
func Render(in Input) (string, bool) {
	s := in.Snapshot
	if s == nil || strings.TrimSpace(s.Name) == "" {
		return "", false
	}
	l := lookup(in.Locale)
	b := in.Budgets.withDefaults()

	kinds := make(map[string]bool, len(in.Kinds))
	for _, k := range in.Kinds {
		kinds[k] = true
	}

	switch {
	case s.Completed:
		return renderCompleted(l, s, in), true
	case kinds[KindAdded]:
		return renderCreated(l, s, in, b), true
	default:
		return renderUpdated(l, s, in, b, kinds)
	}
}

type message struct {
	lines   []string
	mention string
}

func (m *message) add(line string) { m.lines = append(m.lines, line) }

func (m *message) blank() {
	if n := len(m.lines); n > 0 && m.lines[n-1] != "" {
		m.lines = append(m.lines, "")
	}
}

func (m *message) String() string {
	out := m.lines
	if m.mention != "" {
		out = append(append([]string(nil), out...), tgui.Esc(m.mention).String())
	}
	return strings.Join(out, "\n")
}

func header(m *message, title string, s *Snapshot) {
	m.add(tgui.B(title).String())
	m.add("📋 " + tgui.B(s.Name).String())
	m.blank()
}

func projectLine(m *message, l locale, s *Snapshot) {
	if p := strings.TrimSpace(s.ProjectName); p != "" {
		m.add(l.project + ": " + tgui.Esc(p).String())
	}
}

func assigneeLine(m *message, l locale, s *Snapshot, mentions Mentions) {
	name := strings.TrimSpace(s.AssigneeName)
	if name == "" {
		m.add(l.assignee + ": " + l.unassigned)
		return
	}
	line := l.assignee + ": " + tgui.Esc(name).String()
	if mentions != nil {
		if h, ok := mentions.ResolveAssignee(name, s.AssigneeEmail); ok {
			line += " (" + tgui.Esc(h).String() + ")"
			m.mention = h
		}
	}
	m.add(line)
}

func dueLine(m *message, l locale, s *Snapshot) {
	m.add(l.due + ": " + FormatDate(s.DueOn, l.notSet))
}

func actorLine(m *message, l locale, a Actor) {
	switch {
	case strings.TrimSpace(a.Name) != "":
		m.add(l.changedBy + ": " + tgui.Esc(strings.TrimSpace(a.Name)).String())
	case a.System:
		m.add(l.changedBy + ": " + tgui.I(l.automation).String())
	}
}

func linkLine(m *message, l locale, s *Snapshot) {
	if s.Permalink == "" {
		return
	}
	m.blank()
	m.add(tgui.Link(l.openTask, s.Permalink).String())
}

func renderCompleted(l locale, s *Snapshot, in Input) string {
	var m message
	header(&m, l.taskCompleted, s)
	projectLine(&m, l, s)
	assigneeLine(&m, l, s, in.Mentions)
	actorLine(&m, l, in.Actor)
	linkLine(&m, l, s)
	return m.String()
}

func renderCreated(l locale, s *Snapshot, in Input, b Budgets) string {
	var m message
	title := l.taskCreated
	if s.ParentID != "" {
		title = l.subtaskCreated
	}
	header(&m, title, s)
	if s.ParentID != "" && strings.TrimSpace(s.ParentName) != "" {
		m.add(l.parent + ": " + tgui.Esc(s.ParentName).String())
	}
	projectLine(&m, l, s)
	assigneeLine(&m, l, s, in.Mentions)
	dueLine(&m, l, s)
	if notes := strings.TrimSpace(s.Notes); notes != "" {
		m.add(l.notes + ": " + tgui.I(tgui.Truncate(notes, b.Notes)).String())
	}
	actorLine(&m, l, in.Actor)
	linkLine(&m, l, s)
	return m.String()
}

func renderUpdated(l locale, s *Snapshot, in Input, b Budgets, kinds map[string]bool) (string, bool) {
	var m message
	header(&m, l.taskUpdated, s)
	n := 0
	for _, k := range updatedOrder {
		if !kinds[k] {
			continue
		}
		n++
		switch k {
		case KindName:
			m.add(l.name + ": " + tgui.Esc(s.Name).String())
		case KindAssignee:
			assigneeLine(&m, l, s, in.Mentions)
		case KindDueDate:
			dueLine(&m, l, s)
		case KindDescription:
			notes := strings.TrimSpace(s.Notes)
			if notes == "" {
				m.add(l.notes + ": " + l.notSet)
			} else {
				m.add(l.notes + ": " + tgui.I(tgui.Truncate(notes, b.Notes)).String())
			}
		case KindCustomField:
			m.add(l.customFld)
		}
	}
	if n == 0 {
		return "", false
	}
	projectLine(&m, l, s)
	actorLine(&m, l, in.Actor)
	linkLine(&m, l, s)
	return m.String(), true
}

// RenderDeleted builds the deletion notice. name is the current or last
// known task name; a blank name yields no message.
func RenderDeleted(name string, actor Actor, loc string) (string, bool) {
	if strings.TrimSpace(name) == "" {
		return "", false
	}
	l := lookup(loc)
	var m message
	m.add(tgui.B(l.taskDeleted).String())
	m.add("📋 " + tgui.S(strings.TrimSpace(name)).String())
	actorLine(&m, l, actor)
	return m.String(), true
}

// RenderComment builds the new-comment notice. task may be nil when the
// parent task could not be fetched. Stories other than comments yield no
// message.
func RenderComment(c Comment, task *Snapshot, actor Actor, loc string, b Budgets) (string, bool) {
	if c.Subtype != "comment_added" {
		return "", false
	}
	l := lookup(loc)
	b = b.withDefaults()

	var m message
	m.add(tgui.B(l.newComment).String())
	if task != nil && strings.TrimSpace(task.Name) != "" {
		m.add("📋 " + tgui.B(task.Name).String())
	}
	m.blank()
	m.add(tgui.I(tgui.Truncate(c.Text, b.Comment)).String())
	m.blank()
	author := strings.TrimSpace(c.AuthorName)
	if author == "" {
		author = strings.TrimSpace(actor.Name)
	}
	if author != "" {
		m.add("👤 " + tgui.Esc(author).String())
	}
	if task != nil && task.Permalink != "" {
		m.add(tgui.Link(l.openTask, task.Permalink).String())
	}
	return m.String(), true
}

// RenderSection builds the new-section notice. It always renders, an
// unnamed section still signals a board layout change.
func RenderSection(name, loc string) (string, bool) {
	l := lookup(loc)
	var m message
	m.add(tgui.B(l.newSection).String())
	if n := strings.TrimSpace(name); n != "" {
		m.add(tgui.Esc(n).String())
	}
	return m.String(), true
}

// RenderAttachment builds the file-attached notice. task may be nil.
func RenderAttachment(name string, task *Snapshot, loc string) (string, bool) {
	l := lookup(loc)
	file := strings.TrimSpace(name)
	if file == "" {
		file = l.file
	}
	var m message
	m.add(tgui.B(l.fileAttached).String())
	m.add(tgui.Esc(file).String())
	if task != nil {
		if strings.TrimSpace(task.Name) != "" {
			m.add("📋 " + tgui.Esc(task.Name).String())
		}
		if task.Permalink != "" {
			m.add(tgui.Link(l.openTask, task.Permalink).String())
		}
	}
	return m.String(), true
}

// FormatDate renders a YYYY-MM-DD date as DD.MM.YYYY, or notSet when empty.
// Values in any other shape are escaped and returned as is.
func FormatDate(s, notSet string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return notSet
	}
	if len(s) > 10 {
		s = s[:10]
	}
	parts := strings.Split(s, "-")
	if len(parts) != 3 || len(parts[0]) != 4 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return tgui.Esc(s).String()
	}
	return parts[2] + "." + parts[1] + "." + parts[0]
}

// NotSet returns the locale's placeholder for absent values.
func NotSet(loc string) string { return lookup(loc).notSet }

// Template names the message Render would produce for in, or "none".
func Template(in Input) string {
	s := in.Snapshot
	if s == nil || strings.TrimSpace(s.Name) == "" {
		return "none"
	}
	if s.Completed {
		return "completed"
	}
	for _, k := range in.Kinds {
		if k == KindAdded {
			if s.ParentID != "" {
				return "subtask_created"
			}
			return "created"
		}
	}
	for _, k := range in.Kinds {
		for _, known := range updatedOrder {
			if k == known {
				return "updated"
			}
		}
	}
	return "none"
}
