// Package mention maps assignee identities to chat handles.
package mention

import (
	"strings"
	"sync/atomic"
)

// Resolver is an exact-match identity to handle table. The table is
// replaced as a whole on Apply, readers never see a partial update.
type Resolver struct {
	table atomic.Pointer[map[string]string]
}

// New builds a Resolver from identity -> handle pairs. Identities are
// matched after trimming; emails case-insensitively.
func New(m map[string]string) *Resolver {
	r := &Resolver{}
	r.Apply(m)
	return r
}

// Apply swaps the table.
func (r *Resolver) Apply(m map[string]string) {
	t := make(map[string]string, len(m))
	for k, v := range m {
		k, v = normalize(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		if !strings.HasPrefix(v, "@") {
			v = "@" + v
		}
		t[k] = v
	}
	r.table.Store(&t)
}

// Resolve returns the handle mapped to identity.
func (r *Resolver) Resolve(identity string) (string, bool) {
	if r == nil {
		return "", false
	}
	t := r.table.Load()
	if t == nil {
		return "", false
	}
	h, ok := (*t)[normalize(identity)]
	return h, ok
}

// ResolveAssignee tries the display name first, then the email.
func (r *Resolver) ResolveAssignee(name, email string) (string, bool) {
	if h, ok := r.Resolve(name); ok {
		return h, true
	}
	if strings.TrimSpace(email) == "" {
		return "", false
	}
	return r.Resolve(email)
}

// Len reports the number of mapped identities.
func (r *Resolver) Len() int {
	if r == nil {
		return 0
	}
	if t := r.table.Load(); t != nil {
		return len(*t)
	}
	return 0
}

func normalize(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "@") && !strings.HasPrefix(s, "@") {
		return strings.ToLower(s)
	}
	return s
}
