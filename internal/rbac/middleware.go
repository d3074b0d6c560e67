package rbac

import (
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Middleware gates HTTP handlers on the session role's grants.
type Middleware struct {
	Authorizer *Authorizer
	Logger     *slog.Logger
}

// RequireSession rejects requests without a signed-in session.
func (m Middleware) RequireSession() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := m.queries(r); !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOperation ensures the signed-in role may perform op on moduleID.
func (m Middleware) RequireOperation(moduleID string, op Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q, ok := m.queries(r)
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if !q.HasPermission(moduleID, op) {
				m.deny(r, q.Role(), slog.String("module", moduleID), slog.String("operation", string(op)))
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePath ensures the signed-in role may navigate to the request path.
func (m Middleware) RequirePath() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q, ok := m.queries(r)
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if !q.CanAccessPath(r.URL.Path) {
				m.deny(r, q.Role(), slog.String("path", r.URL.Path))
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// queries resolves the session role; ok is false without a signed-in user.
func (m Middleware) queries(r *http.Request) (RoleQueries, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		return RoleQueries{}, false
	}
	return m.Authorizer.ForRole(RoleFromLabel(sess.RoleLabel())), true
}

func (m Middleware) deny(r *http.Request, role Role, attrs ...any) {
	if m.Logger == nil {
		return
	}
	attrs = append(attrs, slog.String("role", string(role)), slog.String("method", r.Method))
	m.Logger.Debug("rbac denied", attrs...)
}
