package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"asanagram/internal/engine/render"
)

// ErrMalformedEvent marks events missing identifiers or of an unknown type.
var ErrMalformedEvent = errors.New("malformed event")

type (
	Snapshot = render.Snapshot
	Comment  = render.Comment
	Actor    = render.Actor
)

// Resource is the event variant.
type Resource string

const (
	ResourceTask       Resource = "task"
	ResourceStory      Resource = "story"
	ResourceSection    Resource = "section"
	ResourceAttachment Resource = "attachment"
)

type Action string

const (
	ActionAdded   Action = "added"
	ActionChanged Action = "changed"
	ActionDeleted Action = "deleted"
	ActionRemoved Action = "removed"
)

// Event is one decoded webhook event. Which optional fields are set depends
// on Resource: Field only for changed tasks, Name for sections and
// attachments, ParentID for stories, attachments and subtasks.
type Event struct {
	Resource  Resource
	Action    Action
	EntityID  string
	Subtype   string
	ParentID  string
	Name      string
	Field     string
	CreatedAt string
	// Actor.System is set when the upstream event carries no user, which is
	// how rule and integration driven changes arrive.
	Actor Actor
	// Snapshot is an optional pre-fetched task state. Webhook payloads never
	// carry one, so DecodeBatch leaves it nil; in-process callers may set it.
	// A fired aggregate still re-reads the task and uses Snapshot only when
	// that fetch fails.
	Snapshot *Snapshot
}

type wireRef struct {
	GID             string `json:"gid"`
	ResourceType    string `json:"resource_type"`
	ResourceSubtype string `json:"resource_subtype"`
	Name            string `json:"name"`
}

type wireEvent struct {
	User      *wireRef `json:"user"`
	CreatedAt string   `json:"created_at"`
	Action    string   `json:"action"`
	Resource  *wireRef `json:"resource"`
	Parent    *wireRef `json:"parent"`
	Change    *struct {
		Field  string `json:"field"`
		Action string `json:"action"`
	} `json:"change"`
}

// DecodeBatch parses a webhook body of the form {"events":[...]}. Malformed
// events are skipped and reported through skipped; err is returned only when
// the body itself is not a valid batch.
func DecodeBatch(body []byte) (events []Event, skipped []error, err error) {
	var batch struct {
		Events []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, nil, fmt.Errorf("decode webhook batch: %w", err)
	}
	events = make([]Event, 0, len(batch.Events))
	for i, raw := range batch.Events {
		ev, err := Decode(raw)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("event %d: %w", i, err))
			continue
		}
		events = append(events, ev)
	}
	return events, skipped, nil
}

// Decode validates and converts one raw Asana event.
func Decode(raw []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if w.Resource == nil || strings.TrimSpace(w.Resource.GID) == "" {
		return Event{}, fmt.Errorf("%w: missing resource gid", ErrMalformedEvent)
	}

	ev := Event{
		Resource:  Resource(w.Resource.ResourceType),
		Action:    Action(w.Action),
		EntityID:  strings.TrimSpace(w.Resource.GID),
		Subtype:   w.Resource.ResourceSubtype,
		Name:      w.Resource.Name,
		CreatedAt: w.CreatedAt,
	}
	switch ev.Resource {
	case ResourceTask, ResourceStory, ResourceSection, ResourceAttachment:
	default:
		return Event{}, fmt.Errorf("%w: unsupported resource type %q", ErrMalformedEvent, w.Resource.ResourceType)
	}
	switch ev.Action {
	case ActionAdded, ActionChanged, ActionDeleted, ActionRemoved:
	default:
		return Event{}, fmt.Errorf("%w: unsupported action %q", ErrMalformedEvent, w.Action)
	}

	if w.User != nil && w.User.GID != "" {
		ev.Actor = Actor{ID: w.User.GID, Name: w.User.Name}
	} else {
		ev.Actor = Actor{System: true}
	}
	if w.Change != nil {
		ev.Field = strings.TrimSpace(w.Change.Field)
	}
	if w.Parent != nil {
		switch ev.Resource {
		case ResourceStory, ResourceAttachment:
			ev.ParentID = w.Parent.GID
		case ResourceTask:
			if w.Parent.ResourceType == "task" {
				ev.ParentID = w.Parent.GID
			}
		}
	}
	return ev, nil
}

// ignoredFields never produce a notification on their own.
var ignoredFields = map[string]bool{
	"likes":        true,
	"hearts":       true,
	"num_likes":    true,
	"num_hearts":   true,
	"liked":        true,
	"hearted":      true,
	"followers":    true,
	"memberships":  true,
	"modified_at":  true,
	"projects":     true,
	"tags":         true,
	"dependencies": true,
	"dependents":   true,
}

// fieldKinds folds upstream field names into change kinds.
var fieldKinds = map[string]string{
	"name":          render.KindName,
	"assignee":      render.KindAssignee,
	"due_on":        render.KindDueDate,
	"due_at":        render.KindDueDate,
	"notes":         render.KindDescription,
	"html_notes":    render.KindDescription,
	"custom_fields": render.KindCustomField,
	"completed":     render.KindCompleted,
}

// ChangeKind maps a task event to its change kind. ok is false for fields on
// the ignore list. Unknown fields pass through unchanged and are dropped by
// the renderer.
func ChangeKind(action Action, field string) (kind string, ok bool) {
	if action == ActionAdded {
		return render.KindAdded, true
	}
	field = strings.TrimSpace(field)
	if ignoredFields[field] {
		return "", false
	}
	if k, found := fieldKinds[field]; found {
		return k, true
	}
	if field == "" {
		return string(ActionChanged), true
	}
	return field, true
}
