package handler

import (
	"log/slog"
	"net/http"

	"go-saas-auth/internal/i18n"
	"go-saas-auth/internal/middleware"
	"go-saas-auth/internal/websocket"
	"go-saas-auth/pkg/apierror"
)

type NotificationsHandler struct {
	responder
	hub      *websocket.Hub
	upgrader *websocket.Upgrader
}

func NewNotificationsHandler(hub *websocket.Hub, upgrader *websocket.Upgrader, translator *i18n.Translator) *NotificationsHandler {
	return &NotificationsHandler{responder: responder{translator: translator}, hub: hub, upgrader: upgrader}
}

// Connect upgrades an already authenticated handshake. The identity was
// bound by the handshake guard; messages on the socket are not re-checked.
func (h *NotificationsHandler) Connect(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apierror.New("UNAUTHORIZED", h.message(r, i18n.KeyUnauthenticated), "", http.StatusUnauthorized))
		return
	}

	// The upgrader has already written the HTTP error when this fails.
	if err := h.upgrader.Serve(h.hub, w, r, identity.ID); err != nil {
		slog.Warn("websocket upgrade failed", "user_id", identity.ID, "error", err)
	}
}
