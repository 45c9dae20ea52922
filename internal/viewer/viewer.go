// Package viewer carries the acting identity, clock and feature flags
// explicitly through booking and reconciliation calls.
package viewer

import "time"

const (
	RoleMember     = "member"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
	RoleSystem     = "system"
)

type Identity struct {
	UserID int
	Email  string
	Role   string
}

type RequestContext struct {
	// Viewer is nil for anonymous visitors.
	Viewer *Identity
	Now    time.Time
	Flags  map[string]bool
}

func Anonymous(now time.Time) RequestContext {
	return RequestContext{Now: now}
}

func ForUser(userID int, role string, now time.Time) RequestContext {
	return RequestContext{Viewer: &Identity{UserID: userID, Role: role}, Now: now}
}

// System is the context used by background jobs and webhook handlers.
func System(now time.Time) RequestContext {
	return RequestContext{Viewer: &Identity{Role: RoleSystem}, Now: now}
}

func (rc RequestContext) IsAnonymous() bool {
	return rc.Viewer == nil || (rc.Viewer.UserID == 0 && rc.Viewer.Role != RoleSystem)
}

func (rc RequestContext) UserID() int {
	if rc.Viewer == nil {
		return 0
	}
	return rc.Viewer.UserID
}

// IsStaff reports whether the actor may act on other users' records.
func (rc RequestContext) IsStaff() bool {
	if rc.Viewer == nil {
		return false
	}
	return rc.Viewer.Role == RoleAdmin || rc.Viewer.Role == RoleSystem
}

func (rc RequestContext) Flag(name string) bool {
	return rc.Flags[name]
}
