package rbac

// Session role labels supplied by the authentication backend.
var labelRoles = map[string]Role{
	"Administrator": RoleAdmin,
	"Manager":       RoleManager,
	"User":          RoleUser,
}

// RoleFromLabel maps a session role label to a Role. Matching is exact and
// case-sensitive; unknown or empty labels map to RoleUser.
func RoleFromLabel(label string) Role {
	if role, ok := labelRoles[label]; ok {
		return role
	}
	return RoleUser
}

// Label returns the display label used by the authentication backend.
func (r Role) Label() string {
	for label, role := range labelRoles {
		if role == r {
			return label
		}
	}
	return string(r)
}
