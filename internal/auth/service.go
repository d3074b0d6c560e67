package auth

import (
	"context"
	"fmt"
	"strconv"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// RoleSyncer makes the session role active in the permission store.
type RoleSyncer interface {
	SyncSessionRole(ctx context.Context, label string) error
}

// Service wraps the authentication hand-off rules.
type Service struct {
	source PermissionSource
	roles  RoleSyncer
}

// NewService constructs a new Service. A nil source leaves unspecified
// permissions empty.
func NewService(source PermissionSource, roles RoleSyncer) *Service {
	return &Service{source: source, roles: roles}
}

// SignIn records creds on sess and syncs the store's active role.
func (s *Service) SignIn(ctx context.Context, sess *shared.Session, creds Credentials) (Identity, error) {
	if sess == nil {
		return Identity{}, shared.ErrNotAuthenticated
	}
	if creds.UserID <= 0 {
		return Identity{}, ErrInvalidUser
	}
	perms := creds.Permissions
	if perms == nil && s.source != nil {
		resolved, err := s.source.EffectivePermissions(ctx, creds.UserID)
		if err != nil {
			return Identity{}, err
		}
		perms = resolved
	}
	if s.roles != nil {
		if err := s.roles.SyncSessionRole(ctx, creds.RoleLabel); err != nil {
			return Identity{}, fmt.Errorf("auth: sync role: %w", err)
		}
	}
	userID := strconv.FormatInt(creds.UserID, 10)
	sess.SignIn(userID, creds.RoleLabel, perms)
	return newIdentity(userID, creds.RoleLabel, perms), nil
}

// Current returns the identity recorded on sess.
func (s *Service) Current(sess *shared.Session) (Identity, error) {
	if sess == nil || sess.User() == "" {
		return Identity{}, shared.ErrNotAuthenticated
	}
	return newIdentity(sess.User(), sess.RoleLabel(), sess.Permissions()), nil
}
