package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/kv"
)

// Persisted keys.
const (
	KeyRolePermissions = "role_permissions_v2"
	KeyUserRole        = "user_role"
)

// Recorder receives store and authorization events for metrics.
type Recorder interface {
	StoreWrite(err error)
	Decision(query string, allowed bool)
}

// Store owns the active role and the role × module matrix. Every mutation is
// written through to the KV store before it becomes visible.
type Store struct {
	mu         sync.RWMutex
	kv         kv.Store
	catalog    *Catalog
	logger     *slog.Logger
	recorder   Recorder
	repair     bool
	activeRole Role
	matrix     RolePermissions
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder reports writes to r.
func WithRecorder(r Recorder) StoreOption {
	return func(s *Store) { s.recorder = r }
}

// WithRepair makes UpdateRolePermissions force view on for any grant that
// carries create, update or delete.
func WithRepair() StoreOption {
	return func(s *Store) { s.repair = true }
}

// NewStore loads persisted state from backend. Missing or unreadable values
// fall back to RoleAdmin and the catalog defaults.
func NewStore(ctx context.Context, backend kv.Store, catalog *Catalog, opts ...StoreOption) *Store {
	s := &Store{
		kv:      backend,
		catalog: catalog,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.activeRole = s.loadRole(ctx)
	s.matrix = s.loadMatrix(ctx)
	return s
}

func (s *Store) loadRole(ctx context.Context) Role {
	raw, err := s.kv.Load(ctx, KeyUserRole)
	if err != nil {
		s.logFallback(KeyUserRole, err)
		return RoleAdmin
	}
	role, err := ParseRole(raw)
	if err != nil {
		s.logFallback(KeyUserRole, err)
		return RoleAdmin
	}
	return role
}

func (s *Store) loadMatrix(ctx context.Context) RolePermissions {
	raw, err := s.kv.Load(ctx, KeyRolePermissions)
	if err != nil {
		s.logFallback(KeyRolePermissions, err)
		return s.catalog.Defaults()
	}
	var matrix RolePermissions
	if err := json.Unmarshal([]byte(raw), &matrix); err != nil || matrix == nil {
		if err == nil {
			err = errors.New("null matrix")
		}
		s.logFallback(KeyRolePermissions, err)
		return s.catalog.Defaults()
	}
	return matrix
}

func (s *Store) logFallback(key string, err error) {
	if errors.Is(err, kv.ErrNotFound) {
		s.logger.Debug("rbac store default", slog.String("key", key))
		return
	}
	s.logger.Warn("rbac store fallback", slog.String("key", key), slog.Any("error", err))
}

// ActiveRole returns the role authorization queries run against.
func (s *Store) ActiveRole() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeRole
}

// SetActiveRole switches the active role.
func (s *Store) SetActiveRole(ctx context.Context, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("rbac: set active role: %w: %q", ErrUnknownRole, role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(ctx, role, s.matrix); err != nil {
		return err
	}
	s.activeRole = role
	return nil
}

// SyncSessionRole maps a session role label and makes it active.
func (s *Store) SyncSessionRole(ctx context.Context, label string) error {
	return s.SetActiveRole(ctx, RoleFromLabel(label))
}

// UpdateRolePermissions replaces the whole row for role.
func (s *Store) UpdateRolePermissions(ctx context.Context, role Role, grants Grants) error {
	if !role.Valid() {
		return fmt.Errorf("rbac: update role permissions: %w: %q", ErrUnknownRole, role)
	}
	row := s.prepare(grants)
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(RolePermissions, len(s.matrix)+1)
	for r, g := range s.matrix {
		next[r] = g
	}
	next[role] = row
	if err := s.persist(ctx, s.activeRole, next); err != nil {
		return err
	}
	s.matrix = next
	return nil
}

// ResetRole restores the catalog defaults for role.
func (s *Store) ResetRole(ctx context.Context, role Role) error {
	return s.UpdateRolePermissions(ctx, role, s.catalog.Defaults()[role])
}

// prepare is the single write-path hook for incoming rows.
func (s *Store) prepare(grants Grants) Grants {
	row := grants.Clone()
	if !s.repair {
		return row
	}
	for id, p := range row {
		row[id] = p.Repaired()
	}
	return row
}

// persist must be called with s.mu held.
func (s *Store) persist(ctx context.Context, role Role, matrix RolePermissions) error {
	payload, err := json.Marshal(matrix)
	if err == nil {
		err = s.kv.Save(ctx,
			kv.Entry{Key: KeyRolePermissions, Value: string(payload)},
			kv.Entry{Key: KeyUserRole, Value: string(role)},
		)
	}
	if s.recorder != nil {
		s.recorder.StoreWrite(err)
	}
	if err != nil {
		s.logger.Error("rbac store persist", slog.Any("error", err))
		return fmt.Errorf("rbac: persist: %w", err)
	}
	return nil
}

// GetModulePermissions returns the grant for (role, moduleID); absent entries
// yield no permissions.
func (s *Store) GetModulePermissions(role Role, moduleID string) ModulePermissions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matrix[role][moduleID]
}

// RolePermissions returns a copy of one role's row.
func (s *Store) RolePermissions(role Role) Grants {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matrix[role].Clone()
}

// Matrix returns a copy of the full matrix.
func (s *Store) Matrix() RolePermissions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matrix.Clone()
}

// Catalog returns the catalog the store was seeded from.
func (s *Store) Catalog() *Catalog {
	return s.catalog
}
