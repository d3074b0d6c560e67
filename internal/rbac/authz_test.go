package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/kv"
)

func newTestAuthorizer(t *testing.T, opts ...StoreOption) (*Store, *Authorizer) {
	t.Helper()
	catalog := DefaultCatalog()
	store := NewStore(context.Background(), kv.NewMemory(), catalog, opts...)
	return store, NewAuthorizer(store, catalog)
}

func TestCanAccessPath(t *testing.T) {
	ctx := context.Background()
	store, authz := newTestAuthorizer(t)
	require.NoError(t, store.UpdateRolePermissions(ctx, RoleUser, Grants{
		ModuleAccounts: {},
		ModuleSales:    Grant(OpView),
	}))
	require.NoError(t, store.SetActiveRole(ctx, RoleUser))

	assert.False(t, authz.CanAccessPath("/accounts"))
	assert.True(t, authz.CanAccessPath("/sales"))
	assert.True(t, authz.CanAccessPath("/nonexistent"))
	assert.False(t, authz.CanAccessPath("/reports"), "missing entry means no view")
}

func TestAllowedPaths(t *testing.T) {
	ctx := context.Background()
	store, authz := newTestAuthorizer(t)
	require.NoError(t, store.UpdateRolePermissions(ctx, RoleManager, Grants{
		ModuleSales:     Grant(OpView, OpCreate),
		ModuleDashboard: Grant(OpView),
		ModuleAccounts:  {},
		"legacy":        Grant(OpView),
	}))
	require.NoError(t, store.SetActiveRole(ctx, RoleManager))

	assert.Equal(t, []string{"/", "/sales"}, authz.AllowedPaths())
}

func TestHasPermissionFollowsActiveRole(t *testing.T) {
	ctx := context.Background()
	store, authz := newTestAuthorizer(t)

	assert.True(t, authz.HasPermission(ModuleSettings, OpDelete))
	require.NoError(t, store.SetActiveRole(ctx, RoleUser))
	assert.False(t, authz.HasPermission(ModuleSettings, OpDelete))
	assert.True(t, authz.HasPermission(ModuleSales, OpCreate))
	assert.False(t, authz.HasPermission(ModuleSales, OpDelete))
	assert.True(t, authz.CanView(ModuleDashboard))

	require.NoError(t, store.UpdateRolePermissions(ctx, RoleUser, Grants{ModuleSales: AllGranted()}))
	assert.True(t, authz.HasPermission(ModuleSales, OpDelete), "queries are not cached")
	assert.False(t, authz.HasPermission("unknown", OpView))
}

func TestForRoleIgnoresActiveRole(t *testing.T) {
	_, authz := newTestAuthorizer(t)

	user := authz.ForRole(RoleUser)
	assert.Equal(t, RoleUser, user.Role())
	assert.False(t, user.CanAccessPath("/settings"))
	assert.True(t, authz.CanAccessPath("/settings"))

	grants := user.Grants()
	assert.Len(t, grants, len(DefaultCatalog().Modules()))
	assert.True(t, grants[ModuleRoles].None())
}

func TestDecisionsAreRecorded(t *testing.T) {
	rec := &countingRecorder{}
	_, authz := newTestAuthorizer(t, WithRecorder(rec))

	authz.ForRole(RoleUser).HasPermission(ModuleSettings, OpView)
	authz.ForRole(RoleAdmin).HasPermission(ModuleSettings, OpView)
	authz.ForRole(RoleUser).CanAccessPath("/public")

	assert.Equal(t, 1, rec.decisions[QueryHasPermission+":denied"])
	assert.Equal(t, 1, rec.decisions[QueryHasPermission+":allowed"])
	assert.Equal(t, 1, rec.decisions[QueryCanAccessPath+":allowed"])
}
