// Package domain contains core concepts of the chat system.
// This file defines connections, identities and group memberships.
// No runtime, network, or UI logic should be added here.
package domain

import "github.com/google/uuid"

// ConnectionID identifies one live transport session.
type ConnectionID string

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

const GuestName = "Guest"

// Identity is who stands behind a connection. Guests have no UserID.
type Identity struct {
	UserID string   `json:"user_id,omitempty"`
	Name   string   `json:"name"`
	Roles  []string `json:"roles,omitempty"`
}

func NewGuest(name string) Identity {
	if name == "" {
		name = GuestName
	}
	return Identity{Name: name}
}

func (i Identity) IsGuest() bool { return i.UserID == "" }

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
)

func ToRole(role string) Role {
	switch Role(role) {
	case RoleAdmin, RoleModerator:
		return Role(role)
	default:
		return RoleMember
	}
}

// Membership grants a user access to a group.
type Membership struct {
	UserID  string  `json:"uid"`
	GroupID GroupID `json:"groupId"`
	Role    Role    `json:"role"`
}
