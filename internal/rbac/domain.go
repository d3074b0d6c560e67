package rbac

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownRole indicates a role outside the closed role set.
	ErrUnknownRole = errors.New("rbac: unknown role")
	// ErrUnknownOperation indicates an operation outside view/create/update/delete.
	ErrUnknownOperation = errors.New("rbac: unknown operation")
)

// Role identifies a row of the permission matrix.
type Role string

// Built-in roles.
const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

// Roles returns every role in declared order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleUser}
}

// Valid reports whether r belongs to the role set.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleUser:
		return true
	}
	return false
}

// ParseRole converts a stored or submitted role value.
func ParseRole(raw string) (Role, error) {
	role := Role(raw)
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
	return role, nil
}

// Operation is one of the four grantable actions.
type Operation string

// Grantable operations.
const (
	OpView   Operation = "view"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Operations returns the operations in matrix column order.
func Operations() []Operation {
	return []Operation{OpView, OpCreate, OpUpdate, OpDelete}
}

// Valid reports whether op is a recognised operation.
func (op Operation) Valid() bool {
	switch op {
	case OpView, OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// ParseOperation converts a submitted operation name.
func ParseOperation(raw string) (Operation, error) {
	op := Operation(raw)
	if !op.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, raw)
	}
	return op, nil
}

// ModulePermissions is the grant of one role on one module.
// View gates the other three: a consistent grant never holds
// create, update or delete without view.
type ModulePermissions struct {
	View   bool `json:"view" yaml:"view"`
	Create bool `json:"create" yaml:"create"`
	Update bool `json:"update" yaml:"update"`
	Delete bool `json:"delete" yaml:"delete"`
}

// AllGranted returns a grant with every operation enabled.
func AllGranted() ModulePermissions {
	return ModulePermissions{View: true, Create: true, Update: true, Delete: true}
}

// Grant builds a grant enabling exactly the listed operations.
func Grant(ops ...Operation) ModulePermissions {
	var p ModulePermissions
	for _, op := range ops {
		p = p.With(op, true)
	}
	return p
}

// Get reports whether op is granted. Unknown operations are never granted.
func (p ModulePermissions) Get(op Operation) bool {
	switch op {
	case OpView:
		return p.View
	case OpCreate:
		return p.Create
	case OpUpdate:
		return p.Update
	case OpDelete:
		return p.Delete
	}
	return false
}

// With returns a copy of p with op set to v.
func (p ModulePermissions) With(op Operation, v bool) ModulePermissions {
	switch op {
	case OpView:
		p.View = v
	case OpCreate:
		p.Create = v
	case OpUpdate:
		p.Update = v
	case OpDelete:
		p.Delete = v
	}
	return p
}

// All reports whether every operation is granted.
func (p ModulePermissions) All() bool {
	return p.View && p.Create && p.Update && p.Delete
}

// None reports whether no operation is granted.
func (p ModulePermissions) None() bool {
	return !p.View && !p.Create && !p.Update && !p.Delete
}

// Consistent reports whether the view prerequisite holds.
func (p ModulePermissions) Consistent() bool {
	return p.View || (!p.Create && !p.Update && !p.Delete)
}

// Repaired forces view on when any dependent operation is granted.
func (p ModulePermissions) Repaired() ModulePermissions {
	if p.Create || p.Update || p.Delete {
		p.View = true
	}
	return p
}

// Grants maps module ids to one role's grants. A missing module is
// equivalent to no permissions.
type Grants map[string]ModulePermissions

// Clone returns an independent copy; a nil receiver yields an empty map.
func (g Grants) Clone() Grants {
	out := make(Grants, len(g))
	for id, p := range g {
		out[id] = p
	}
	return out
}

// RolePermissions is the full role × module matrix.
type RolePermissions map[Role]Grants

// Clone deep-copies the matrix.
func (m RolePermissions) Clone() RolePermissions {
	out := make(RolePermissions, len(m))
	for role, grants := range m {
		out[role] = grants.Clone()
	}
	return out
}
