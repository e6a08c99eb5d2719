//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-saas-auth/internal/config"
	"go-saas-auth/internal/database"
	"go-saas-auth/internal/event"
	"go-saas-auth/internal/handler"
	"go-saas-auth/internal/i18n"
	"go-saas-auth/internal/middleware"
	"go-saas-auth/internal/model"
	"go-saas-auth/internal/repository"
	"go-saas-auth/internal/router"
	"go-saas-auth/internal/security"
	"go-saas-auth/internal/service"
	"go-saas-auth/internal/websocket"
)

const (
	adminEmail    = "admin@demo.com"
	adminPassword = "admin-password"
	testSecret    = "integration-secret-0123456789abcdef"
)

type testEnv struct {
	server *httptest.Server
	db     *database.DB
	outbox *resetOutbox
}

// resetOutbox records password reset tokens instead of mailing them.
type resetOutbox struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (o *resetOutbox) SendPasswordReset(_ context.Context, identity model.Identity, token string, _ time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tokens[identity.Email] = token
	return nil
}

func (o *resetOutbox) tokenFor(email string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tokens[email]
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code       string `json:"code"`
		Message    string `json:"message"`
		RetryAfter int64  `json:"retry_after"`
	} `json:"error"`
}

// newTestEnv wires the full stack against TEST_DATABASE_URL with emptied
// user and audit tables and a freshly seeded admin.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()
	db, err := database.New(ctx, databaseURL, 5, 1)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.EnsureSchema(ctx))
	_, err = db.Pool.Exec(ctx, `TRUNCATE users, audit_entries CASCADE`)
	require.NoError(t, err)

	userRepo := repository.NewUserRepository(db.Pool)
	tokenRepo := repository.NewTokenRepository(db.Pool)
	resetRepo := repository.NewResetTokenRepository(db.Pool)
	auditRepo := repository.NewAuditRepository(db.Pool)

	translator, err := i18n.New()
	require.NoError(t, err)

	now := func() time.Time { return time.Now().UTC() }
	hasher := security.NewBcryptHasher(4)
	codec := security.NewTokenCodec(testSecret, 15*time.Minute, now)
	refreshStore := security.NewRefreshTokenStore(tokenRepo, now)
	throttle := security.NewLoginThrottle(now)

	bus := event.NewBus()
	hub := websocket.NewHub(bus)
	hubCtx, cancelHub := context.WithCancel(ctx)
	t.Cleanup(cancelHub)
	go hub.Run(hubCtx)

	auditService := service.NewAuditService(auditRepo)
	authService := service.NewAuthService(userRepo, hasher, codec, refreshStore, throttle).
		WithAudit(auditService).
		WithEvents(bus)
	userService := service.NewUserService(userRepo, hasher, refreshStore, throttle, auditService, bus)
	require.NoError(t, userService.SeedAdmin(ctx, adminEmail, adminPassword))
	outbox := &resetOutbox{tokens: map[string]string{}}
	resetService := service.NewPasswordResetService(userRepo, security.NewResetTokenStore(resetRepo, now), hasher,
		refreshStore, throttle, outbox, auditService, bus)

	cfg := &config.Config{
		RequestTimeout:   10 * time.Second,
		CORSOrigins:      []string{"*"},
		RateLimitRPM:     10000,
		AuthRateLimitRPM: 10000,
	}

	appRouter := router.New(cfg, middleware.NewAuthMiddleware(authService, translator, nil), router.Handlers{
		Auth:          handler.NewAuthHandler(authService, translator),
		Users:         handler.NewUserHandler(userService, translator),
		PasswordReset: handler.NewPasswordResetHandler(resetService, translator),
		Audit:         handler.NewAuditHandler(auditService, translator),
		Notifications: handler.NewNotificationsHandler(hub, websocket.NewUpgrader(nil), translator),
	})

	server := httptest.NewServer(appRouter)
	t.Cleanup(server.Close)

	return &testEnv{server: server, db: db, outbox: outbox}
}

func (e *testEnv) url(path string) string {
	return e.server.URL + path
}

func (e *testEnv) postJSON(t *testing.T, path string, body any, accessToken string) (*http.Response, apiEnvelope) {
	t.Helper()
	return e.do(t, http.MethodPost, path, body, accessToken)
}

func (e *testEnv) do(t *testing.T, method string, path string, body any, accessToken string) (*http.Response, apiEnvelope) {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, e.url(path), bytes.NewReader(payload))
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var env apiEnvelope
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp, env
}

func (e *testEnv) login(t *testing.T, email string, password string) tokenPair {
	t.Helper()

	resp, env := e.postJSON(t, "/api/v1/auth/login", map[string]string{"email": email, "password": password}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tokens tokenPair
	require.NoError(t, json.Unmarshal(env.Data, &tokens))
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)
	return tokens
}
