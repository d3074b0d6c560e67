package rbac

// Query names reported to the Recorder.
const (
	QueryHasPermission = "has_permission"
	QueryCanAccessPath = "can_access_path"
)

// Authorizer answers navigation and action checks from the current Store
// state. Nothing is cached between calls.
type Authorizer struct {
	store   *Store
	catalog *Catalog
}

// NewAuthorizer builds an Authorizer over store.
func NewAuthorizer(store *Store, catalog *Catalog) *Authorizer {
	return &Authorizer{store: store, catalog: catalog}
}

// RoleQueries runs the authorization queries for a fixed role.
type RoleQueries struct {
	a    *Authorizer
	role Role
}

// ForRole scopes the queries to role instead of the active role.
func (a *Authorizer) ForRole(role Role) RoleQueries {
	return RoleQueries{a: a, role: role}
}

func (a *Authorizer) active() RoleQueries {
	return a.ForRole(a.store.ActiveRole())
}

// HasPermission checks op on moduleID for the active role.
func (a *Authorizer) HasPermission(moduleID string, op Operation) bool {
	return a.active().HasPermission(moduleID, op)
}

// CanView is HasPermission with OpView.
func (a *Authorizer) CanView(moduleID string) bool {
	return a.active().CanView(moduleID)
}

// CanAccessPath reports whether the active role may navigate to path.
func (a *Authorizer) CanAccessPath(path string) bool {
	return a.active().CanAccessPath(path)
}

// AllowedPaths lists navigable paths for the active role in catalog order.
func (a *Authorizer) AllowedPaths() []string {
	return a.active().AllowedPaths()
}

// Role returns the role the queries run against.
func (q RoleQueries) Role() Role {
	return q.role
}

// HasPermission checks op on moduleID.
func (q RoleQueries) HasPermission(moduleID string, op Operation) bool {
	allowed := q.a.store.GetModulePermissions(q.role, moduleID).Get(op)
	q.a.record(QueryHasPermission, allowed)
	return allowed
}

// CanView is HasPermission with OpView.
func (q RoleQueries) CanView(moduleID string) bool {
	return q.HasPermission(moduleID, OpView)
}

// CanAccessPath resolves path to a catalog module and checks view.
func (q RoleQueries) CanAccessPath(path string) bool {
	m, ok := q.a.catalog.ModuleByPath(path)
	if !ok {
		allowed := allowUnmappedPath(path)
		q.a.record(QueryCanAccessPath, allowed)
		return allowed
	}
	allowed := q.a.store.GetModulePermissions(q.role, m.ID).View
	q.a.record(QueryCanAccessPath, allowed)
	return allowed
}

// AllowedPaths lists the paths of every viewable module in catalog order.
func (q RoleQueries) AllowedPaths() []string {
	grants := q.a.store.RolePermissions(q.role)
	paths := make([]string, 0, len(grants))
	for _, m := range q.a.catalog.Modules() {
		if m.Path != "" && grants[m.ID].View {
			paths = append(paths, m.Path)
		}
	}
	return paths
}

// Grants returns the role's row restricted to catalog modules; modules
// without an entry report no permissions.
func (q RoleQueries) Grants() Grants {
	row := q.a.store.RolePermissions(q.role)
	out := make(Grants, len(row))
	for _, m := range q.a.catalog.Modules() {
		out[m.ID] = row[m.ID]
	}
	return out
}

// allowUnmappedPath decides access for paths outside the catalog.
// Unmapped paths are currently open; product owners have not confirmed
// whether this covers public routes only.
func allowUnmappedPath(string) bool {
	return true
}

func (a *Authorizer) record(query string, allowed bool) {
	if a.store.recorder != nil {
		a.store.recorder.Decision(query, allowed)
	}
}
