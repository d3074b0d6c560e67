package auth

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

// Handler wires HTTP endpoints for the session hand-off.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	verifier       *Verifier
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, verifier *Verifier, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		logger:         logger,
		service:        service,
		verifier:       verifier,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers session routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.issueToken)
	r.Post("/", h.signIn)
	r.Get("/", h.current)
	r.Delete("/", h.signOut)
}

type sessionResponse struct {
	Identity
	CSRFToken string `json:"csrf_token"`
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrfManager.EnsureToken(shared.SessionFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnauthorized, err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	raw, err := httpx.ReadBody(w, r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.verifier.Verify(raw, r.Header.Get(SignatureHeader)); err != nil {
		h.logger.Warn("session hand-off rejected", slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnauthorized, err))
		return
	}
	var creds Credentials
	if err := httpx.DecodeJSON(w, r, &creds); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(creds); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			err = fmt.Errorf("%s failed %s", strings.ToLower(fieldErrs[0].Field()), fieldErrs[0].Tag())
		}
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err := h.verifier.CheckIssued(creds.IssuedAt); err != nil {
		h.logger.Warn("session hand-off rejected", slog.Int64("user_id", creds.UserID), slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnauthorized, err))
		return
	}
	sess := shared.SessionFromContext(r.Context())
	identity, err := h.service.SignIn(r.Context(), sess, creds)
	if err != nil {
		h.logger.Error("session sign in", slog.Int64("user_id", creds.UserID), slog.Any("error", err))
		switch {
		case errors.Is(err, shared.ErrNotAuthenticated):
			httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnauthorized, err))
		case errors.Is(err, ErrInvalidUser):
			httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		default:
			httpx.RespondError(w, err)
		}
		return
	}
	token, _ := h.csrfManager.EnsureToken(sess)
	h.logger.Info("session signed in", slog.String("user_id", identity.UserID), slog.String("role", string(identity.Role)))
	httpx.JSON(w, http.StatusOK, sessionResponse{Identity: identity, CSRFToken: token})
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	identity, err := h.service.Current(shared.SessionFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnauthorized, err))
		return
	}
	httpx.JSON(w, http.StatusOK, identity)
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	h.sessionManager.Destroy(shared.SessionFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}
