package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-saas-auth/internal/config"
	"go-saas-auth/internal/handler"
	"go-saas-auth/internal/middleware"
	"go-saas-auth/internal/model"
)

type Handlers struct {
	Auth          *handler.AuthHandler
	Users         *handler.UserHandler
	PasswordReset *handler.PasswordResetHandler
	Audit         *handler.AuditHandler
	Notifications *handler.NotificationsHandler
	// Metrics is mounted on /metrics when non-nil.
	Metrics http.Handler
	Health  http.HandlerFunc
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, h Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	health := h.Health
	if health == nil {
		health = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		}
	}
	r.Get("/health", health)

	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	// Upgrades hijack the connection, so this route stays out of the timeout group.
	r.With(authMiddleware.RequireHandshakeToken).Get("/ws/notifications", h.Notifications.Connect)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))
		api.Use(authMiddleware.Authenticate)

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/login", h.Auth.Login)
			auth.Post("/refresh", h.Auth.Refresh)
			auth.Post("/password-reset/request", h.PasswordReset.Request)
			auth.Post("/password-reset/confirm", h.PasswordReset.Confirm)
			auth.With(authMiddleware.RequireAuth).Post("/logout", h.Auth.Logout)
			auth.With(authMiddleware.RequireAuth).Get("/me", h.Users.Me)
			auth.With(authMiddleware.RequireAuth).Put("/password", h.Users.ChangePassword)
			auth.With(authMiddleware.RequireAuth, authMiddleware.RequireRoles(model.RoleAdmin)).Post("/register", h.Users.Register)
		})

		api.With(authMiddleware.RequireAuth, authMiddleware.RequirePermissions(model.PermissionUserViewAll)).Get("/audit", h.Audit.List)
	})

	return r
}
