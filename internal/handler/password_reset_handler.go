package handler

import (
	"context"
	"net/http"
	"strings"

	"go-saas-auth/internal/i18n"
	"go-saas-auth/internal/model"
	"go-saas-auth/pkg/apierror"
)

type passwordResetService interface {
	RequestReset(ctx context.Context, email string) error
	ConfirmReset(ctx context.Context, token string, newPassword string) error
}

type PasswordResetHandler struct {
	responder
	service passwordResetService
}

func NewPasswordResetHandler(service passwordResetService, translator *i18n.Translator) *PasswordResetHandler {
	return &PasswordResetHandler{responder: responder{translator: translator}, service: service}
}

// Request answers with the same message whether or not the email belongs to
// an account.
func (h *PasswordResetHandler) Request(w http.ResponseWriter, r *http.Request) {
	var payload model.PasswordResetRequest
	if err := decodeJSON(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	if strings.TrimSpace(payload.Email) == "" {
		h.writeError(w, r, apierror.New("BAD_REQUEST", "email is required", "email", http.StatusBadRequest))
		return
	}

	if err := h.service.RequestReset(auditContext(r), payload.Email); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.MessageData{Message: h.message(r, i18n.KeyResetRequested)}, nil)
}

func (h *PasswordResetHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var payload model.PasswordResetConfirmRequest
	if err := decodeJSON(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	payload.Token = strings.TrimSpace(payload.Token)
	if payload.Token == "" || payload.NewPassword == "" {
		h.writeError(w, r, apierror.New("BAD_REQUEST", "token and new_password are required", "token,new_password", http.StatusBadRequest))
		return
	}

	if err := h.service.ConfirmReset(auditContext(r), payload.Token, payload.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.MessageData{Message: h.message(r, i18n.KeyResetCompleted)}, nil)
}
