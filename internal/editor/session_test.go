package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/kv"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
)

type failingStore struct {
	*rbac.Store
	err error
}

func (f failingStore) UpdateRolePermissions(context.Context, rbac.Role, rbac.Grants) error {
	return f.err
}

func newStore(t *testing.T) *rbac.Store {
	t.Helper()
	return rbac.NewStore(context.Background(), kv.NewMemory(), rbac.DefaultCatalog())
}

func TestSessionEditsDraftOnly(t *testing.T) {
	store := newStore(t)
	s := NewSession(store, store.Catalog(), rbac.RoleUser)
	assert.False(t, s.Dirty())

	s.TogglePermission(rbac.ModuleSales, rbac.OpDelete)
	assert.True(t, s.Dirty())
	assert.Equal(t, rbac.AllGranted().With(rbac.OpUpdate, false), s.Permissions(rbac.ModuleSales))
	assert.Equal(t, rbac.Grant(rbac.OpView, rbac.OpCreate), store.GetModulePermissions(rbac.RoleUser, rbac.ModuleSales))
}

func TestSessionEmptyCategoryStaysClean(t *testing.T) {
	store := newStore(t)
	s := NewSession(store, store.Catalog(), rbac.RoleUser)
	s.ToggleAllInCategory("", rbac.OpView)
	s.ToggleAllInCategory("Payroll", rbac.OpView)
	assert.False(t, s.Dirty())
	assert.Equal(t, store.RolePermissions(rbac.RoleUser), s.Draft())
}

func TestSessionCommit(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	s := NewSession(store, store.Catalog(), rbac.RoleManager)

	s.SelectAllForModule(rbac.ModuleRoles)
	s.ToggleAllInCategory("Accounting", rbac.OpDelete)
	require.NoError(t, s.Commit(ctx))

	assert.False(t, s.Dirty())
	assert.Equal(t, rbac.AllGranted(), store.GetModulePermissions(rbac.RoleManager, rbac.ModuleRoles))
	assert.Equal(t, rbac.AllGranted(), store.GetModulePermissions(rbac.RoleManager, rbac.ModuleAccounts))
	assert.Equal(t, s.Draft(), store.RolePermissions(rbac.RoleManager))
}

func TestSessionCommitFailureKeepsDraft(t *testing.T) {
	store := newStore(t)
	boom := errors.New("disk full")
	s := NewSession(failingStore{Store: store, err: boom}, store.Catalog(), rbac.RoleUser)

	s.TogglePermission(rbac.ModuleReports, rbac.OpView)
	err := s.Commit(context.Background())
	require.ErrorIs(t, err, boom)
	assert.True(t, s.Dirty())
	assert.Equal(t, rbac.ModulePermissions{}, s.Permissions(rbac.ModuleReports))
}

func TestSessionDiscard(t *testing.T) {
	store := newStore(t)
	s := NewSession(store, store.Catalog(), rbac.RoleUser)

	s.SelectAllForModule(rbac.ModuleUsers)
	s.Discard()
	assert.False(t, s.Dirty())
	assert.Equal(t, store.RolePermissions(rbac.RoleUser), s.Draft())
}

func TestSessionDraftIsACopy(t *testing.T) {
	store := newStore(t)
	s := NewSession(store, store.Catalog(), rbac.RoleUser)
	d := s.Draft()
	d[rbac.ModuleSales] = rbac.AllGranted()
	assert.Equal(t, rbac.Grant(rbac.OpView, rbac.OpCreate), s.Permissions(rbac.ModuleSales))
}

func TestSessionApplyValidates(t *testing.T) {
	store := newStore(t)
	s := NewSession(store, store.Catalog(), rbac.RoleUser)
	err := s.Apply(Action{Kind: ToggleCell, ModuleID: "payroll", Operation: rbac.OpView})
	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.False(t, s.Dirty())

	require.NoError(t, s.Apply(Action{Kind: ToggleModule, ModuleID: rbac.ModuleHelp}))
	assert.True(t, s.Dirty())
}

func TestRegistry(t *testing.T) {
	store := newStore(t)
	reg := NewRegistry(store, store.Catalog(), 2, time.Minute)

	_, err := reg.Open("owner")
	assert.ErrorIs(t, err, rbac.ErrUnknownRole)

	id, err := reg.Open(rbac.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())

	require.NoError(t, reg.With(id, func(s *Session) error {
		s.SelectAllForModule(rbac.ModuleSales)
		return nil
	}))
	require.NoError(t, reg.With(id, func(s *Session) error {
		assert.True(t, s.Dirty())
		assert.Equal(t, rbac.AllGranted(), s.Permissions(rbac.ModuleSales))
		return nil
	}))

	boom := errors.New("boom")
	assert.ErrorIs(t, reg.With(id, func(*Session) error { return boom }), boom)

	assert.True(t, reg.Close(id))
	assert.False(t, reg.Close(id))
	assert.ErrorIs(t, reg.With(id, func(*Session) error { return nil }), ErrDraftNotFound)
}

func TestRegistryEvictsOldest(t *testing.T) {
	store := newStore(t)
	reg := NewRegistry(store, store.Catalog(), 1, time.Minute)

	first, err := reg.Open(rbac.RoleUser)
	require.NoError(t, err)
	second, err := reg.Open(rbac.RoleManager)
	require.NoError(t, err)

	assert.Equal(t, 1, reg.Len())
	assert.ErrorIs(t, reg.With(first, func(*Session) error { return nil }), ErrDraftNotFound)
	assert.NoError(t, reg.With(second, func(*Session) error { return nil }))
}

func TestRegistryCloseIsFinal(t *testing.T) {
	store := newStore(t)
	reg := NewRegistry(store, store.Catalog(), 4, time.Minute)

	id, err := reg.Open(rbac.RoleUser)
	require.NoError(t, err)
	require.NoError(t, reg.With(id, func(*Session) error {
		assert.True(t, reg.Close(id))
		return nil
	}))
	assert.Zero(t, reg.Len(), "a draft closed while in use stays closed")

	id, err = reg.Open(rbac.RoleUser)
	require.NoError(t, err)
	var wg sync.WaitGroup
	started := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-started
			for j := 0; j < 200; j++ {
				_ = reg.With(id, func(s *Session) error {
					s.TogglePermission(rbac.ModuleSales, rbac.OpCreate)
					return nil
				})
			}
		}()
	}
	close(started)
	reg.Close(id)
	wg.Wait()

	assert.ErrorIs(t, reg.With(id, func(*Session) error { return nil }), ErrDraftNotFound)
	assert.Zero(t, reg.Len())
}
