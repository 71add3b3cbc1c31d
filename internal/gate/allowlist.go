package gate

import (
	"sort"
	"strings"
)

// AllowList is the immutable set of subject ids granted admin privileges.
type AllowList struct {
	ids map[string]struct{}
}

// ParseAllowList builds an AllowList from a comma-separated string such as the
// ADMIN_IDS environment variable. Ids are trimmed and empty entries dropped.
func ParseAllowList(raw string) AllowList {
	return NewAllowList(strings.Split(raw, ",")...)
}

// NewAllowList builds an AllowList from individual ids.
func NewAllowList(ids ...string) AllowList {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return AllowList{ids: set}
}

// Contains reports whether id is an admin id. The empty id is never an admin.
func (a AllowList) Contains(id string) bool {
	if id == "" {
		return false
	}
	_, ok := a.ids[id]
	return ok
}

// IsAdmin reports whether s is an authenticated admin.
func (a AllowList) IsAdmin(s Subject) bool {
	return s.IsAuthenticated() && a.Contains(s.ID())
}

// Len returns the number of admin ids.
func (a AllowList) Len() int {
	return len(a.ids)
}

// IDs returns the admin ids in sorted order.
func (a AllowList) IDs() []string {
	out := make([]string, 0, len(a.ids))
	for id := range a.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
