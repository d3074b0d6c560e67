package editor

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
)

// ErrDraftNotFound indicates an unknown, closed or expired draft id.
var ErrDraftNotFound = errors.New("editor: draft not found")

const (
	defaultCapacity = 256
	defaultTTL      = 30 * time.Minute
)

type entry struct {
	mu      sync.Mutex
	session *Session
}

// Registry holds open editing sessions keyed by id. The oldest session is
// evicted at capacity; idle sessions expire after the TTL.
type Registry struct {
	store   Store
	catalog *rbac.Catalog
	// mu orders inserts, refreshes and removals.
	mu    sync.Mutex
	cache *lru.LRU[string, *entry]
}

// NewRegistry builds a Registry. Non-positive capacity or ttl use defaults.
func NewRegistry(store Store, catalog *rbac.Catalog, capacity int, ttl time.Duration) *Registry {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Registry{
		store:   store,
		catalog: catalog,
		cache:   lru.NewLRU[string, *entry](capacity, nil, ttl),
	}
}

// Open starts a session for role and returns its id.
func (r *Registry) Open(role rbac.Role) (string, error) {
	if !role.Valid() {
		return "", rbac.ErrUnknownRole
	}
	id := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Add(id, &entry{session: NewSession(r.store, r.catalog, role)})
	return id, nil
}

// With runs fn with exclusive access to the session and refreshes its TTL.
func (r *Registry) With(id string, fn func(*Session) error) error {
	e, ok := r.cache.Get(id)
	if !ok {
		return ErrDraftNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	err := fn(e.session)
	r.refresh(id, e)
	return err
}

// refresh re-adds e to restart its TTL unless it was closed or evicted.
func (r *Registry) refresh(id string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.cache.Peek(id); ok && cur == e {
		r.cache.Add(id, e)
	}
}

// Close drops the session. It reports whether the id was open.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Remove(id)
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	return r.cache.Len()
}
