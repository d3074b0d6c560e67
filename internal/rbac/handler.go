package rbac

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Handler exposes catalog, permission queries and role matrix administration.
type Handler struct {
	logger     *slog.Logger
	store      *Store
	authorizer *Authorizer
	validator  *validator.Validate
	rbac       Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, store *Store, authorizer *Authorizer, rbac Middleware) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{logger: logger, store: store, authorizer: authorizer, validator: validator.New(), rbac: rbac}
}

// MountRoutes registers routes relative to the mount point.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/modules", h.listModules)
	r.Route("/permissions", func(r chi.Router) {
		r.Use(h.rbac.RequireSession())
		r.Get("/me", h.myPermissions)
		r.Get("/check", h.checkPermission)
		r.Get("/path", h.checkPath)
	})
	r.Route("/roles", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireOperation(ModuleRoles, OpView))
			r.Get("/", h.listRoles)
			r.Get("/{role}/permissions", h.rolePermissions)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireOperation(ModuleRoles, OpUpdate))
			r.Put("/{role}/permissions", h.updateRolePermissions)
			r.Put("/active", h.setActiveRole)
		})
	})
}

type moduleView struct {
	Module
	Permissions *ModulePermissions `json:"permissions,omitempty"`
}

type roleView struct {
	Role   Role   `json:"role"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

type updateRoleRequest struct {
	Permissions map[string]ModulePermissions `json:"permissions" validate:"required"`
}

type activeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin manager user"`
}

func (h *Handler) listModules(w http.ResponseWriter, r *http.Request) {
	modules := h.store.Catalog().Modules()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"modules":    modules,
		"categories": h.store.Catalog().Categories(),
	})
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	q := h.sessionQueries(r)
	grants := q.Grants()
	modules := make([]moduleView, 0, len(grants))
	for _, m := range h.store.Catalog().Modules() {
		p := grants[m.ID]
		modules = append(modules, moduleView{Module: m, Permissions: &p})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role":          q.Role(),
		"allowed_paths": q.AllowedPaths(),
		"modules":       modules,
	})
}

func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	moduleID := strings.TrimSpace(r.URL.Query().Get("module"))
	if moduleID == "" {
		httpx.RespondError(w, fmt.Errorf("%w: module is required", httpx.ErrValidation))
		return
	}
	op := OpView
	if raw := r.URL.Query().Get("operation"); raw != "" {
		parsed, err := ParseOperation(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
			return
		}
		op = parsed
	}
	q := h.sessionQueries(r)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"module":    moduleID,
		"operation": op,
		"allowed":   q.HasPermission(moduleID, op),
	})
}

func (h *Handler) checkPath(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		httpx.RespondError(w, fmt.Errorf("%w: path is required", httpx.ErrValidation))
		return
	}
	q := h.sessionQueries(r)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"path":    path,
		"allowed": q.CanAccessPath(path),
	})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	active := h.store.ActiveRole()
	roles := make([]roleView, 0, len(Roles()))
	for _, role := range Roles() {
		roles = append(roles, roleView{Role: role, Label: role.Label(), Active: role == active})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	role, err := ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role":        role,
		"permissions": h.authorizer.ForRole(role).Grants(),
	})
}

func (h *Handler) updateRolePermissions(w http.ResponseWriter, r *http.Request) {
	role, err := ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.checkGrants(req.Permissions); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.store.UpdateRolePermissions(r.Context(), role, req.Permissions); err != nil {
		h.logger.Error("update role permissions", slog.String("role", string(role)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role":        role,
		"permissions": h.authorizer.ForRole(role).Grants(),
	})
}

func (h *Handler) setActiveRole(w http.ResponseWriter, r *http.Request) {
	var req activeRoleRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role := Role(req.Role)
	if err := h.store.SetActiveRole(r.Context(), role); err != nil {
		h.logger.Error("set active role", slog.String("role", req.Role), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role":          role,
		"allowed_paths": h.authorizer.AllowedPaths(),
	})
}

// checkGrants rejects unknown modules and grants that skip view.
func (h *Handler) checkGrants(grants map[string]ModulePermissions) error {
	for id, p := range grants {
		if _, ok := h.store.Catalog().Module(id); !ok {
			return fmt.Errorf("%w: unknown module %q", httpx.ErrValidation, id)
		}
		if !p.Consistent() {
			return fmt.Errorf("%w: module %q grants changes without view", httpx.ErrValidation, id)
		}
	}
	return nil
}

func (h *Handler) validate(v any) error {
	if err := h.validator.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: %s failed %s", httpx.ErrValidation, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}

func (h *Handler) sessionQueries(r *http.Request) RoleQueries {
	return h.authorizer.ForRole(RoleFromLabel(shared.RoleLabelFromContext(r.Context())))
}
