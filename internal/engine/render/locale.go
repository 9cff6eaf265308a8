package render

import "strings"

type locale struct {
	taskCreated    string
	subtaskCreated string
	taskCompleted  string
	taskUpdated    string
	taskDeleted    string
	newComment     string
	newSection     string
	fileAttached   string

	openTask   string
	project    string
	parent     string
	assignee   string
	due        string
	name       string
	notes      string
	customFld  string
	changedBy  string
	automation string

	notSet     string
	unassigned string
	file       string
}

var locales = map[string]locale{
	"ru": {
		taskCreated:    "➕ Новая задача создана",
		subtaskCreated: "➕ Новая подзадача создана",
		taskCompleted:  "✅ Задача выполнена",
		taskUpdated:    "✏️ Задача изменена",
		taskDeleted:    "🗑 Задача удалена",
		newComment:     "💬 Новый комментарий",
		newSection:     "📂 Новая секция создана",
		fileAttached:   "📎 Файл прикреплён",

		openTask:   "🔗 Открыть задачу",
		project:    "📁 Проект",
		parent:     "↳ Родительская задача",
		assignee:   "👤 Исполнитель",
		due:        "📅 Срок",
		name:       "🏷 Название",
		notes:      "📝 Описание",
		customFld:  "🔧 Изменено настраиваемое поле",
		changedBy:  "👁 Изменил",
		automation: "правило автоматизации",

		notSet:     "не указан",
		unassigned: "не назначен",
		file:       "файл",
	},
	"en": {
		taskCreated:    "➕ New task created",
		subtaskCreated: "➕ New subtask created",
		taskCompleted:  "✅ Task completed",
		taskUpdated:    "✏️ Task updated",
		taskDeleted:    "🗑 Task deleted",
		newComment:     "💬 New comment",
		newSection:     "📂 New section created",
		fileAttached:   "📎 File attached",

		openTask:   "🔗 Open task",
		project:    "📁 Project",
		parent:     "↳ Parent task",
		assignee:   "👤 Assignee",
		due:        "📅 Due",
		name:       "🏷 Name",
		notes:      "📝 Description",
		customFld:  "🔧 Custom field changed",
		changedBy:  "👁 By",
		automation: "automation rule",

		notSet:     "not set",
		unassigned: "unassigned",
		file:       "file",
	},
}

// DefaultLocale is used for unknown or empty locale names.
const DefaultLocale = "ru"

// SupportedLocale reports whether name has a translation table.
func SupportedLocale(name string) bool {
	_, ok := locales[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func lookup(name string) locale {
	if l, ok := locales[strings.ToLower(strings.TrimSpace(name))]; ok {
		return l
	}
	return locales[DefaultLocale]
}
