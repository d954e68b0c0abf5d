// Package identity holds what the game needs from the sign-in provider: a
// stable user id, display details and whether the user is an administrator.
package identity

import "strings"

// User is a signed-in caller.
type User struct {
	ID          string
	DisplayName string
	Avatar      string
}

// Registry is a fixed administrator allow-list.
type Registry struct {
	admins map[string]struct{}
}

// NewRegistry builds a registry from admin ids. Blank ids are ignored.
func NewRegistry(adminIDs []string) *Registry {
	r := &Registry{admins: make(map[string]struct{}, len(adminIDs))}
	for _, id := range adminIDs {
		if id = strings.TrimSpace(id); id != "" {
			r.admins[id] = struct{}{}
		}
	}
	return r
}

// IsAdmin reports whether the user id is on the allow-list.
func (r *Registry) IsAdmin(userID string) bool {
	if r == nil {
		return false
	}
	_, ok := r.admins[userID]
	return ok
}
