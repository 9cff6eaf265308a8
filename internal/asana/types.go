package asana

// User is the compact user record embedded in tasks and stories.
type User struct {
	GID   string `json:"gid"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Named is any compact resource reference (project, parent task, section).
type Named struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

// Task carries the projection requested by TaskFields.
type Task struct {
	GID          string  `json:"gid"`
	Name         string  `json:"name"`
	Assignee     *User   `json:"assignee"`
	DueOn        string  `json:"due_on"`
	PermalinkURL string  `json:"permalink_url"`
	Projects     []Named `json:"projects"`
	Parent       *Named  `json:"parent"`
	Notes        string  `json:"notes"`
	Completed    bool    `json:"completed"`
	CompletedAt  string  `json:"completed_at,omitempty"`
}

// ProjectName returns the first project's name, if any.
func (t Task) ProjectName() string {
	for _, p := range t.Projects {
		if p.Name != "" {
			return p.Name
		}
	}
	return ""
}

// AssigneeLabel is the name, falling back to the email.
func (t Task) AssigneeLabel() string {
	if t.Assignee == nil {
		return ""
	}
	if t.Assignee.Name != "" {
		return t.Assignee.Name
	}
	return t.Assignee.Email
}

// Story is a task activity entry; comments have ResourceSubtype "comment_added".
type Story struct {
	GID             string `json:"gid"`
	Text            string `json:"text"`
	ResourceSubtype string `json:"resource_subtype"`
	CreatedBy       *User  `json:"created_by"`
}

// WebhookFilter narrows what a webhook delivers.
type WebhookFilter struct {
	ResourceType    string   `json:"resource_type"`
	ResourceSubtype string   `json:"resource_subtype,omitempty"`
	Action          string   `json:"action,omitempty"`
	Fields          []string `json:"fields,omitempty"`
}

// Webhook is the created subscription.
type Webhook struct {
	GID      string `json:"gid"`
	Active   bool   `json:"active"`
	Target   string `json:"target"`
	Resource Named  `json:"resource"`
}

// Opt-field projections. Requesting exactly these fields keeps payloads small.
const (
	TaskFields        = "name,assignee.name,assignee.email,due_on,permalink_url,projects.name,parent.name,notes,completed"
	StoryFields       = "text,resource_subtype,created_by.name"
	UserFields        = "name,email"
	ProjectTaskFields = "name,due_on,completed,completed_at,assignee.name,assignee.email,permalink_url"
)

// DefaultWebhookFilters subscribes to every event class the bridge renders.
func DefaultWebhookFilters() []WebhookFilter {
	return []WebhookFilter{
		{ResourceType: "task", Action: "added"},
		{ResourceType: "task", Action: "changed"},
		{ResourceType: "task", Action: "deleted"},
		{ResourceType: "story", Action: "added"},
		{ResourceType: "section", Action: "added"},
		{ResourceType: "attachment", Action: "added"},
	}
}
