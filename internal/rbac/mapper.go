package rbac

import "strings"

// PermissionRecord is one backend permission entry, named "<moduleId>.<action>".
type PermissionRecord struct {
	Name string `json:"name" validate:"required"`
}

// MapPermissions converts backend permission records into per-module grants.
// Modules are created on first sight; unrecognised actions are ignored.
// The result is not checked for consistency.
func MapPermissions(records []PermissionRecord) Grants {
	out := make(Grants)
	for _, rec := range records {
		mapName(out, rec.Name)
	}
	return out
}

// MapPermissionNames is MapPermissions over bare names.
func MapPermissionNames(names []string) Grants {
	out := make(Grants)
	for _, name := range names {
		mapName(out, name)
	}
	return out
}

func mapName(out Grants, name string) {
	moduleID, action, _ := strings.Cut(name, ".")
	perms, ok := out[moduleID]
	if !ok {
		perms = ModulePermissions{}
	}
	if op := Operation(action); op.Valid() {
		perms = perms.With(op, true)
	}
	out[moduleID] = perms
}
