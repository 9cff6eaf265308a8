package engine

import (
	"context"

	"asanagram/internal/asana"
)

// AsanaSource adapts the Asana client to Source.
type AsanaSource struct{ Client *asana.Client }

func (s AsanaSource) Task(ctx context.Context, gid string) (*Snapshot, error) {
	t, err := s.Client.Task(ctx, gid)
	if err != nil {
		return nil, err
	}
	return SnapshotFromTask(t), nil
}

func (s AsanaSource) Story(ctx context.Context, gid string) (*Comment, error) {
	st, err := s.Client.Story(ctx, gid)
	if err != nil {
		return nil, err
	}
	c := &Comment{ID: st.GID, Text: st.Text, Subtype: st.ResourceSubtype}
	if st.CreatedBy != nil {
		c.AuthorName = st.CreatedBy.Name
	}
	return c, nil
}

func (s AsanaSource) UserName(ctx context.Context, gid string) (string, error) {
	u, err := s.Client.User(ctx, gid)
	if err != nil {
		return "", err
	}
	return u.Name, nil
}

// SnapshotFromTask converts an API task into an immutable snapshot.
func SnapshotFromTask(t asana.Task) *Snapshot {
	s := &Snapshot{
		ID:          t.GID,
		Name:        t.Name,
		DueOn:       t.DueOn,
		Permalink:   t.PermalinkURL,
		ProjectName: t.ProjectName(),
		Notes:       t.Notes,
		Completed:   t.Completed,
	}
	if t.Assignee != nil {
		s.AssigneeName = t.Assignee.Name
		s.AssigneeEmail = t.Assignee.Email
	}
	if t.Parent != nil {
		s.ParentID = t.Parent.GID
		s.ParentName = t.Parent.Name
	}
	return s
}
