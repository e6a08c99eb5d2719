package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"go-saas-auth/internal/i18n"
	"go-saas-auth/internal/model"
	"go-saas-auth/internal/security"
)

type authenticator interface {
	AuthenticateToken(ctx context.Context, token string) (model.Identity, error)
}

// rejectionCounter is satisfied by *metrics.Auth.
type rejectionCounter interface {
	Rejected(transport string)
}

type contextKey string

const (
	identityContextKey contextKey = "auth_identity"
	subjectContextKey  contextKey = "auth_subject"
)

const handshakeTokenParam = "token"

type AuthMiddleware struct {
	auth       authenticator
	translator *i18n.Translator
	rejections rejectionCounter
}

func NewAuthMiddleware(auth authenticator, translator *i18n.Translator, rejections rejectionCounter) *AuthMiddleware {
	return &AuthMiddleware{auth: auth, translator: translator, rejections: rejections}
}

// Authenticate binds the identity named by a bearer token to the request.
// A missing or unusable token leaves the request anonymous; the decision to
// reject is left to RequireAuth and friends.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := security.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := m.auth.AuthenticateToken(r.Context(), token)
		if err != nil {
			if !errors.Is(err, security.ErrUnauthenticated) {
				slog.Error("resolve bearer token", "error", err)
			}
			m.reject("http")
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			m.writeUnauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRoles lets the request through when the identity holds at least one
// of the roles.
func (m *AuthMiddleware) RequireRoles(allowedRoles ...string) func(http.Handler) http.Handler {
	return m.require(func(identity model.Identity) bool {
		for _, role := range allowedRoles {
			if identity.HasRole(role) {
				return true
			}
		}
		return false
	})
}

// RequirePermissions lets the request through only when the identity holds
// every listed permission.
func (m *AuthMiddleware) RequirePermissions(permissions ...string) func(http.Handler) http.Handler {
	return m.require(func(identity model.Identity) bool {
		for _, permission := range permissions {
			if !identity.HasPermission(permission) {
				return false
			}
		}
		return true
	})
}

func (m *AuthMiddleware) require(allowed func(model.Identity) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				m.writeUnauthorized(w, r)
				return
			}
			if !allowed(identity) {
				writeJSONError(w, http.StatusForbidden, "FORBIDDEN", m.translator.Message(r.Header.Get("Accept-Language"), i18n.KeyAccessDenied))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireHandshakeToken guards a WebSocket upgrade. The token is read from
// the "token" query parameter first, then from the Authorization header.
// Without a resolvable token the handshake is refused with 401 and the
// upgrade never happens. Messages on the connection are not re-checked.
func (m *AuthMiddleware) RequireHandshakeToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.URL.Query().Get(handshakeTokenParam))
		if token == "" {
			token, _ = security.BearerToken(r.Header.Get("Authorization"))
		}
		if token == "" {
			slog.Warn("websocket handshake without token", "remote", r.RemoteAddr)
			m.reject("ws")
			m.writeUnauthorized(w, r)
			return
		}

		identity, err := m.auth.AuthenticateToken(r.Context(), token)
		if err != nil {
			slog.Warn("websocket handshake rejected", "remote", r.RemoteAddr, "error", err)
			m.reject("ws")
			m.writeUnauthorized(w, r)
			return
		}

		ctx := WithIdentity(r.Context(), identity)
		ctx = context.WithValue(ctx, subjectContextKey, identity.Email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) reject(transport string) {
	if m.rejections != nil {
		m.rejections.Rejected(transport)
	}
}

func (m *AuthMiddleware) writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Bearer`)
	writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", m.translator.Message(r.Header.Get("Accept-Language"), i18n.KeyUnauthenticated))
}

func WithIdentity(ctx context.Context, identity model.Identity) context.Context {
	recordIdentity(ctx, identity.ID, identity.Email)
	return context.WithValue(ctx, identityContextKey, identity)
}

func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	return identity, ok
}

// SubjectFromContext returns the token subject bound by a WebSocket
// handshake.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectContextKey).(string)
	return subject, ok && subject != ""
}
