// Package domain contains entities without logic, just meta-data.
package domain

type SessionID string

// Role describes what a connection is allowed to push.
// A broadcaster owns at most one transcode job; viewers never do.
type Role string

const (
	RoleBroadcaster Role = "broadcaster"
	RoleViewer      Role = "viewer"
)
