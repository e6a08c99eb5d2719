package handler

import (
	"context"
	"net/http"
	"strings"

	"go-saas-auth/internal/i18n"
	"go-saas-auth/internal/middleware"
	"go-saas-auth/internal/model"
	"go-saas-auth/pkg/apierror"
)

type authService interface {
	Login(ctx context.Context, email string, password string) (model.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (model.AuthResult, error)
	Logout(ctx context.Context, email string) error
}

type AuthHandler struct {
	responder
	service authService
}

func NewAuthHandler(service authService, translator *i18n.Translator) *AuthHandler {
	return &AuthHandler{responder: responder{translator: translator}, service: service}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeJSON(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	if strings.TrimSpace(payload.Email) == "" || payload.Password == "" {
		h.writeError(w, r, apierror.New("BAD_REQUEST", "email and password are required", "email,password", http.StatusBadRequest))
		return
	}

	tokens, err := h.service.Login(auditContext(r), payload.Email, payload.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, tokens, nil)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var payload model.RefreshRequest
	if err := decodeJSON(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	payload.RefreshToken = strings.TrimSpace(payload.RefreshToken)
	if payload.RefreshToken == "" {
		h.writeError(w, r, apierror.New("BAD_REQUEST", "refresh_token is required", "refresh_token", http.StatusBadRequest))
		return
	}

	tokens, err := h.service.Refresh(auditContext(r), payload.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, tokens, nil)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apierror.New("UNAUTHORIZED", h.message(r, i18n.KeyUnauthenticated), "", http.StatusUnauthorized))
		return
	}

	if err := h.service.Logout(auditContext(r), identity.Email); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.MessageData{Message: h.message(r, i18n.KeyLogoutSuccess)}, nil)
}
