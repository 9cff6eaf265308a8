package digest

import "strings"

type texts struct {
	overdueNone    string
	overdueTitle   string // count
	asOf           string // date
	dueOverdue     string // date, days
	open           string
	deadlinesTitle string
	today          string // date, count
	tomorrow       string // date, count
	weeklyTitle    string
	doneCount      string
	activeCount    string
	overdueCount   string
	doneList       string
	overdueList    string
	more           string // count
	unassigned     string
	notSet         string
}

const separator = "─────────────────"

var locales = map[string]texts{
	"ru": {
		overdueNone:    "✅ <b>Просроченных задач нет!</b>\nВсе задачи в срок.",
		overdueTitle:   "🚨 <b>Просроченные задачи (%d)</b>",
		asOf:           "📅 На %s",
		dueOverdue:     "⏰ Срок: %s (<b>просрочено на %d дн.</b>)",
		open:           "🔗 Открыть",
		deadlinesTitle: "📅 <b>Дедлайны на сегодня и завтра</b>",
		today:          "🔴 <b>Сегодня (%s), задач: %d</b>",
		tomorrow:       "🟡 <b>Завтра (%s), задач: %d</b>",
		weeklyTitle:    "📊 <b>Еженедельный дайджест</b>",
		doneCount:      "✅ Выполнено за неделю: <b>%d</b>",
		activeCount:    "🔄 В работе: <b>%d</b>",
		overdueCount:   "🚨 Просрочено: <b>%d</b>",
		doneList:       "<b>✅ Выполненные задачи:</b>",
		overdueList:    "<b>🚨 Просроченные:</b>",
		more:           "  <i>...и ещё %d</i>",
		unassigned:     "не назначен",
		notSet:         "не указан",
	},
	"en": {
		overdueNone:    "✅ <b>No overdue tasks!</b>\nEverything is on schedule.",
		overdueTitle:   "🚨 <b>Overdue tasks (%d)</b>",
		asOf:           "📅 As of %s",
		dueOverdue:     "⏰ Due: %s (<b>%d d. overdue</b>)",
		open:           "🔗 Open",
		deadlinesTitle: "📅 <b>Deadlines today and tomorrow</b>",
		today:          "🔴 <b>Today (%s), tasks: %d</b>",
		tomorrow:       "🟡 <b>Tomorrow (%s), tasks: %d</b>",
		weeklyTitle:    "📊 <b>Weekly digest</b>",
		doneCount:      "✅ Completed this week: <b>%d</b>",
		activeCount:    "🔄 In progress: <b>%d</b>",
		overdueCount:   "🚨 Overdue: <b>%d</b>",
		doneList:       "<b>✅ Completed tasks:</b>",
		overdueList:    "<b>🚨 Overdue:</b>",
		more:           "  <i>...and %d more</i>",
		unassigned:     "unassigned",
		notSet:         "not set",
	},
}

func lookup(name string) texts {
	if t, ok := locales[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t
	}
	return locales["ru"]
}
