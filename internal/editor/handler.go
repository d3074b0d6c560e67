package editor

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
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
)

// Handler exposes draft editing over HTTP.
type Handler struct {
	logger    *slog.Logger
	registry  *Registry
	catalog   *rbac.Catalog
	validator *validator.Validate
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, registry *Registry, catalog *rbac.Catalog, mw rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{logger: logger, registry: registry, catalog: catalog, validator: validator.New(), rbac: mw}
}

// MountRoutes registers routes relative to the mount point.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/drafts", func(r chi.Router) {
		r.Use(h.rbac.RequireOperation(rbac.ModuleRoles, rbac.OpUpdate))
		r.Post("/", h.open)
		r.Get("/{id}", h.show)
		r.Delete("/{id}", h.close)
		r.Post("/{id}/actions", h.apply)
		r.Post("/{id}/commit", h.commit)
		r.Post("/{id}/discard", h.discard)
	})
}

type openRequest struct {
	Role string `json:"role" validate:"required,oneof=admin manager user"`
}

type actionsRequest struct {
	Actions []Action `json:"actions" validate:"required,min=1,dive"`
}

type draftView struct {
	ID          string      `json:"id"`
	Role        rbac.Role   `json:"role"`
	Dirty       bool        `json:"dirty"`
	Permissions rbac.Grants `json:"permissions"`
}

func view(id string, s *Session) draftView {
	return draftView{ID: id, Role: s.Role(), Dirty: s.Dirty(), Permissions: s.Draft()}
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := h.registry.Open(rbac.Role(req.Role))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	h.respond(w, http.StatusCreated, id, func(*Session) error { return nil })
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, chi.URLParam(r, "id"), func(*Session) error { return nil })
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	var req actionsRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	for _, a := range req.Actions {
		if err := a.Validate(h.catalog); err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
			return
		}
	}
	h.respond(w, http.StatusOK, chi.URLParam(r, "id"), func(s *Session) error {
		for _, a := range req.Actions {
			if err := s.Apply(a); err != nil {
				return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
			}
		}
		return nil
	})
}

func (h *Handler) commit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.respond(w, http.StatusOK, id, func(s *Session) error {
		if err := s.Commit(r.Context()); err != nil {
			h.logger.Error("commit draft", slog.String("draft", id), slog.Any("error", err))
			return err
		}
		h.logger.Info("draft committed", slog.String("draft", id), slog.String("role", string(s.Role())))
		return nil
	})
}

func (h *Handler) discard(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, chi.URLParam(r, "id"), func(s *Session) error {
		s.Discard()
		return nil
	})
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	if !h.registry.Close(chi.URLParam(r, "id")) {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, ErrDraftNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respond runs fn against the draft and writes its resulting state.
func (h *Handler) respond(w http.ResponseWriter, status int, id string, fn func(*Session) error) {
	var out draftView
	err := h.registry.With(id, func(s *Session) error {
		if err := fn(s); err != nil {
			return err
		}
		out = view(id, s)
		return nil
	})
	if errors.Is(err, ErrDraftNotFound) {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
		return
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, status, out)
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
