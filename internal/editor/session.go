package editor

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
)

// Store is the part of the permission store an editing session needs.
type Store interface {
	RolePermissions(role rbac.Role) rbac.Grants
	UpdateRolePermissions(ctx context.Context, role rbac.Role, grants rbac.Grants) error
}

// Session edits a draft of one role's grants. A Session is not safe for
// concurrent use; Registry serialises access.
type Session struct {
	store   Store
	catalog *rbac.Catalog
	role    rbac.Role
	draft   rbac.Grants
	dirty   bool
}

// NewSession starts a draft from the store's current row for role.
func NewSession(store Store, catalog *rbac.Catalog, role rbac.Role) *Session {
	return &Session{
		store:   store,
		catalog: catalog,
		role:    role,
		draft:   store.RolePermissions(role),
	}
}

// Role returns the role being edited.
func (s *Session) Role() rbac.Role { return s.role }

// Dirty reports whether the draft has uncommitted edits.
func (s *Session) Dirty() bool { return s.dirty }

// Draft returns a copy of the working grants.
func (s *Session) Draft() rbac.Grants { return s.draft.Clone() }

// Permissions returns the draft grant for one module.
func (s *Session) Permissions(moduleID string) rbac.ModulePermissions {
	return s.draft[moduleID]
}

// TogglePermission flips op on moduleID with cascade.
func (s *Session) TogglePermission(moduleID string, op rbac.Operation) {
	s.reduce(Action{Kind: ToggleCell, ModuleID: moduleID, Operation: op})
}

// ToggleAllInCategory turns op off for the whole category when every module
// has it, and on otherwise.
func (s *Session) ToggleAllInCategory(category string, op rbac.Operation) {
	s.reduce(Action{Kind: ToggleCategory, Category: category, Operation: op})
}

// SelectAllForModule clears a fully granted module and fully grants any other.
func (s *Session) SelectAllForModule(moduleID string) {
	s.reduce(Action{Kind: ToggleModule, ModuleID: moduleID})
}

// Apply validates a against the catalog before reducing.
func (s *Session) Apply(a Action) error {
	if err := a.Validate(s.catalog); err != nil {
		return err
	}
	s.reduce(a)
	return nil
}

func (s *Session) reduce(a Action) {
	if !changes(s.catalog, a) {
		return
	}
	s.draft = Reduce(s.catalog, s.draft, a)
	s.dirty = true
}

// Commit replaces the role's row in the store with the draft.
func (s *Session) Commit(ctx context.Context) error {
	if err := s.store.UpdateRolePermissions(ctx, s.role, s.draft.Clone()); err != nil {
		return fmt.Errorf("editor: commit %s: %w", s.role, err)
	}
	s.dirty = false
	return nil
}

// Discard resets the draft to the store's current row.
func (s *Session) Discard() {
	s.draft = s.store.RolePermissions(s.role)
	s.dirty = false
}
