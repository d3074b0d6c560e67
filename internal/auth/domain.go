// Package auth accepts the authentication hand-off: once a user has signed in
// elsewhere, the session records their role label and permission names and
// the permission store follows that role.
package auth

import (
	"errors"

	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
)

// ErrInvalidUser indicates a hand-off without a usable user id.
var ErrInvalidUser = errors.New("auth: invalid user")

// Credentials is the hand-off payload from the authentication backend. The
// raw body is signed with the shared secret and IssuedAt is a unix timestamp.
// Nil Permissions are resolved from the PermissionSource.
type Credentials struct {
	UserID      int64    `json:"user_id" validate:"required,gt=0"`
	IssuedAt    int64    `json:"issued_at" validate:"required,gt=0"`
	RoleLabel   string   `json:"role_label" validate:"required"`
	Permissions []string `json:"permissions,omitempty" validate:"omitempty,dive,required"`
}

// Identity is the signed-in view of a session.
type Identity struct {
	UserID      string      `json:"user_id"`
	RoleLabel   string      `json:"role_label"`
	Role        rbac.Role   `json:"role"`
	Permissions []string    `json:"permissions"`
	Grants      rbac.Grants `json:"grants"`
}

func newIdentity(userID, label string, permissions []string) Identity {
	if permissions == nil {
		permissions = []string{}
	}
	return Identity{
		UserID:      userID,
		RoleLabel:   label,
		Role:        rbac.RoleFromLabel(label),
		Permissions: permissions,
		Grants:      rbac.MapPermissionNames(permissions),
	}
}
