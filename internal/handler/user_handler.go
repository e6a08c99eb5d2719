package handler

import (
	"context"
	"net/http"

	"go-saas-auth/internal/i18n"
	"go-saas-auth/internal/middleware"
	"go-saas-auth/internal/model"
	"go-saas-auth/pkg/apierror"
)

type userService interface {
	Register(ctx context.Context, req model.RegisterRequest, defaultOrgID string) (model.Principal, error)
	ChangePassword(ctx context.Context, identity model.Identity, current string, next string) error
}

type UserHandler struct {
	responder
	service userService
}

func NewUserHandler(service userService, translator *i18n.Translator) *UserHandler {
	return &UserHandler{responder: responder{translator: translator}, service: service}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	writeSuccess(w, http.StatusOK, identity.Principal(), nil)
}

// Register creates a user. Without an explicit organization_id the user
// joins the administrator's own organization.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.identity(w, r)
	if !ok {
		return
	}

	var payload model.RegisterRequest
	if err := decodeJSON(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	principal, err := h.service.Register(auditContext(r), payload, admin.OrganizationID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, principal, nil)
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var payload model.ChangePasswordRequest
	if err := decodeJSON(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.service.ChangePassword(auditContext(r), identity, payload.CurrentPassword, payload.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.MessageData{Message: h.message(r, i18n.KeyPasswordChanged)}, nil)
}

func (h *UserHandler) identity(w http.ResponseWriter, r *http.Request) (model.Identity, bool) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apierror.New("UNAUTHORIZED", h.message(r, i18n.KeyUnauthenticated), "", http.StatusUnauthorized))
		return model.Identity{}, false
	}
	return identity, true
}
