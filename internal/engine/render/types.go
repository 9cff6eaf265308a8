package render

// Change kinds understood by the builder. Anything else is dropped from the
// "updated" listing.
const (
	KindAdded       = "added"
	KindName        = "name"
	KindAssignee    = "assignee"
	KindDueDate     = "due_on"
	KindDescription = "notes"
	KindCustomField = "custom_fields"
	KindCompleted   = "completed"
)

// updatedOrder is the fixed order of labeled lines in an "updated" message.
var updatedOrder = []string{KindName, KindAssignee, KindDueDate, KindDescription, KindCustomField}

// Snapshot is an immutable view of a task as last fetched.
type Snapshot struct {
	ID            string `json:"gid"`
	Name          string `json:"name"`
	AssigneeName  string `json:"assignee_name,omitempty"`
	AssigneeEmail string `json:"assignee_email,omitempty"`
	DueOn         string `json:"due_on,omitempty"` // YYYY-MM-DD
	Permalink     string `json:"permalink_url,omitempty"`
	ProjectName   string `json:"project_name,omitempty"`
	ParentID      string `json:"parent_gid,omitempty"`
	ParentName    string `json:"parent_name,omitempty"`
	Notes         string `json:"notes,omitempty"`
	Completed     bool   `json:"completed"`
}

// Comment is a story of subtype comment_added.
type Comment struct {
	ID         string
	Text       string
	Subtype    string
	AuthorName string
}

// Actor is who caused a change. System marks rule or integration driven
// changes that carry no user.
type Actor struct {
	ID     string
	Name   string
	System bool
}

// Mentions maps an assignee identity (name or email) to a chat handle.
type Mentions interface {
	ResolveAssignee(name, email string) (string, bool)
}

// Budgets caps free text in runes. Zero fields fall back to the defaults.
type Budgets struct {
	Notes   int
	Comment int
}

const (
	DefaultNotesBudget   = 300
	DefaultCommentBudget = 400
)

func (b Budgets) withDefaults() Budgets {
	if b.Notes <= 0 {
		b.Notes = DefaultNotesBudget
	}
	if b.Comment <= 0 {
		b.Comment = DefaultCommentBudget
	}
	return b
}

// Input is everything needed to render an aggregated task change.
type Input struct {
	Snapshot *Snapshot
	Kinds    []string
	Actor    Actor
	Locale   string
	Mentions Mentions
	Budgets  Budgets
}
