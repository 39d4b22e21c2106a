package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/keystone-auth/keystone/internal/platform/httpx"
	"github.com/keystone-auth/keystone/internal/shared"
)

// Guard wraps a route so that only authenticated users reach it.
type Guard func(http.Handler) http.Handler

// CredentialUpdater changes a user's password. Implemented by the auth
// service so hashing policy stays in one place.
type CredentialUpdater interface {
	ChangePassword(ctx context.Context, userID uuid.UUID, password string) error
}

// Handler manages user self-service endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	credentials CredentialUpdater
	guard       Guard
	validator   *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, credentials CredentialUpdater, guard Guard) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		credentials: credentials,
		guard:       guard,
		validator:   validator.New(),
	}
}

// MountRoutes registers user routes. Everything here sits behind the access gate.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard)
		r.Get("/me", h.showMe)
		r.Patch("/me", h.updateMe)
		r.Get("/{id}", h.showUser)
	})
}

func (h *Handler) showMe(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, user.View())
}

type updateMeRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=8,max=72"`
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	var req updateMeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if req.Password != nil {
		if err := h.credentials.ChangePassword(r.Context(), user.ID, *req.Password); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	if req.Email != nil {
		if err := h.service.ChangeEmail(r.Context(), user.ID, *req.Email); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	updated, err := h.service.Get(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("reload user", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated.View())
}

// showUser returns another account by id. Restricted to superusers; regular
// users can only see themselves via /me.
func (h *Handler) showUser(w http.ResponseWriter, r *http.Request) {
	caller := UserFromContext(r.Context())
	if caller == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	if !caller.IsSuperuser && caller.ID != id {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
		return
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, shared.ErrNotFound)
			return
		}
		h.logger.Error("load user", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user.View())
}
