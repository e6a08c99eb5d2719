package handler

import (
	"context"
	"net/http"

	"go-saas-auth/internal/middleware"
	"go-saas-auth/internal/model"
)

func actorFromRequest(r *http.Request) model.AuditActor {
	actor := model.AuditActor{IP: middleware.ClientIP(r)}

	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		return actor
	}

	actor.UserID = identity.ID
	actor.Email = identity.Email

	return actor
}

// auditContext carries the request's actor down to the services.
func auditContext(r *http.Request) context.Context {
	return model.ContextWithActor(r.Context(), actorFromRequest(r))
}
