package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-saas-auth/internal/config"
	"go-saas-auth/internal/database"
	"go-saas-auth/internal/event"
	"go-saas-auth/internal/handler"
	"go-saas-auth/internal/i18n"
	"go-saas-auth/internal/metrics"
	"go-saas-auth/internal/middleware"
	"go-saas-auth/internal/repository"
	"go-saas-auth/internal/router"
	"go-saas-auth/internal/security"
	"go-saas-auth/internal/service"
	"go-saas-auth/internal/websocket"
)

type App struct {
	server          *http.Server
	db              *database.DB
	shutdownTimeout time.Duration
	cleanupFuncs    []func()
}

func New(cfg *config.Config) (*App, error) {
	slog.Info("connecting to PostgreSQL")
	db, err := database.New(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	pool := db.Pool
	userRepo := repository.NewUserRepository(pool)
	tokenRepo := repository.NewTokenRepository(pool)
	resetRepo := repository.NewResetTokenRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	slog.Info("database ready")

	translator, err := i18n.New()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to build message catalog: %w", err)
	}

	var authMetrics *metrics.Auth
	if cfg.MetricsEnabled {
		authMetrics = metrics.New()
	}

	now := func() time.Time { return time.Now().UTC() }
	hasher := security.NewBcryptHasher(cfg.BcryptCost)
	codec := security.NewTokenCodec(cfg.JWTSecret, cfg.JWTAccessTTL, now)
	refreshStore := security.NewRefreshTokenStore(tokenRepo, now)
	resetStore := security.NewResetTokenStore(resetRepo, now)
	throttle := security.NewLoginThrottle(now)
	slog.Warn("login lockout state is kept in process memory; it is not shared between instances and is lost on restart",
		"max_attempts", security.MaxFailedLoginAttempts, "lockout", security.LoginLockoutDuration.String())

	bus := event.NewBus()
	hub := websocket.NewHub(bus)

	auditService := service.NewAuditService(auditRepo)
	authService := service.NewAuthService(userRepo, hasher, codec, refreshStore, throttle).
		WithAudit(auditService).
		WithEvents(bus).
		WithMetrics(authMetrics)
	userService := service.NewUserService(userRepo, hasher, refreshStore, throttle, auditService, bus)
	resetService := service.NewPasswordResetService(userRepo, resetStore, hasher, refreshStore, throttle,
		service.LogResetNotifier{BaseURL: cfg.PasswordResetURL}, auditService, bus)

	if err := userService.SeedAdmin(context.Background(), cfg.SeedAdminEmail, cfg.SeedAdminPassword); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed admin user: %w", err)
	}

	if users, err := userRepo.Count(context.Background()); err != nil {
		slog.Warn("count users", "error", err)
	} else if users == 0 {
		slog.Warn("no users exist; set SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD to create an administrator")
	}

	authMetrics.GaugeFunc("auth_websocket_connections", "Open notification sockets.", func() float64 {
		return float64(hub.Active())
	})

	authMiddleware := middleware.NewAuthMiddleware(authService, translator, authMetrics)

	handlers := router.Handlers{
		Auth:          handler.NewAuthHandler(authService, translator),
		Users:         handler.NewUserHandler(userService, translator),
		PasswordReset: handler.NewPasswordResetHandler(resetService, translator),
		Audit:         handler.NewAuditHandler(auditService, translator),
		Notifications: handler.NewNotificationsHandler(hub, websocket.NewUpgrader(cfg.CORSOrigins), translator),
		Health:        healthHandler(db),
	}
	if authMetrics != nil {
		handlers.Metrics = authMetrics.Handler()
	}
	appRouter := router.New(cfg, authMiddleware, handlers)

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	go hub.Run(backgroundCtx)
	go runTokenJanitor(backgroundCtx, "refresh", tokenRepo, cfg.TokenCleanupInterval, now)
	go runTokenJanitor(backgroundCtx, "password_reset", resetRepo, cfg.TokenCleanupInterval, now)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      appRouter,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	return &App{
		server:          server,
		db:              db,
		shutdownTimeout: cfg.ShutdownTimeout,
		cleanupFuncs: []func(){
			backgroundCancel,
			db.Close,
		},
	}, nil
}

func (a *App) Run() error {
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-stop:
	case err := <-serveErr:
		runErr = fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil && runErr == nil {
		runErr = fmt.Errorf("graceful shutdown failed: %w", err)
	}

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	if runErr != nil {
		return runErr
	}
	slog.Info("server stopped")
	return nil
}

func healthHandler(db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.Health(ctx); err != nil {
			slog.Error("health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
