//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-saas-auth/internal/security"
)

func TestLoginRefreshLogoutFlow(t *testing.T) {
	env := newTestEnv(t)
	tokens := env.login(t, adminEmail, adminPassword)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.Equal(t, int64(900), tokens.ExpiresIn)

	resp, body := env.do(t, http.MethodGet, "/api/v1/auth/me", nil, tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body.Data), adminEmail)
	assert.Contains(t, string(body.Data), "USER_VIEW_ALL")

	resp, body = env.postJSON(t, "/api/v1/auth/refresh", map[string]string{"refresh_token": tokens.RefreshToken}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var refreshed tokenPair
	require.NoError(t, json.Unmarshal(body.Data, &refreshed))
	assert.Equal(t, tokens.RefreshToken, refreshed.RefreshToken)

	resp, _ = env.postJSON(t, "/api/v1/auth/logout", nil, tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.postJSON(t, "/api/v1/auth/refresh", map[string]string{"refresh_token": tokens.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", body.Error.Code)
}

func TestSecondLoginInvalidatesFirstRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	first := env.login(t, adminEmail, adminPassword)
	second := env.login(t, adminEmail, adminPassword)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	resp, _ := env.postJSON(t, "/api/v1/auth/refresh", map[string]string{"refresh_token": first.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.postJSON(t, "/api/v1/auth/refresh", map[string]string{"refresh_token": second.RefreshToken}, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var rows int
	require.NoError(t, env.db.Pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM refresh_tokens t JOIN users u ON u.id = t.user_id WHERE u.email = $1`, adminEmail).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < security.MaxFailedLoginAttempts; i++ {
		resp, body := env.postJSON(t, "/api/v1/auth/login", map[string]string{"email": adminEmail, "password": "wrong"}, "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "attempt %d", i+1)
		require.Equal(t, "INVALID_CREDENTIALS", body.Error.Code)
	}

	resp, body := env.postJSON(t, "/api/v1/auth/login", map[string]string{"email": adminEmail, "password": adminPassword}, "")
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "LOGIN_BLOCKED", body.Error.Code)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Greater(t, body.Error.RetryAfter, int64(0))
}

func TestUnknownEmailAndWrongPasswordLookAlike(t *testing.T) {
	env := newTestEnv(t)

	wrongResp, wrong := env.postJSON(t, "/api/v1/auth/login", map[string]string{"email": adminEmail, "password": "nope"}, "")
	unknownResp, unknown := env.postJSON(t, "/api/v1/auth/login", map[string]string{"email": "ghost@demo.com", "password": "nope"}, "")

	assert.Equal(t, wrongResp.StatusCode, unknownResp.StatusCode)
	assert.Equal(t, wrong.Error, unknown.Error)
}

func TestAdminRegistersUserWithRoleChecks(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, adminEmail, adminPassword)

	newUser := map[string]string{"email": "member@demo.com", "password": "member-password", "full_name": "Member One"}
	resp, body := env.postJSON(t, "/api/v1/auth/register", newUser, admin.AccessToken)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Contains(t, string(body.Data), `"USER"`)

	resp, _ = env.postJSON(t, "/api/v1/auth/register", newUser, admin.AccessToken)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	member := env.login(t, "MEMBER@demo.com", "member-password")

	resp, _ = env.postJSON(t, "/api/v1/auth/register", map[string]string{"email": "x@demo.com", "password": "long-enough", "full_name": "X"}, member.AccessToken)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/audit", nil, member.AccessToken)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/v1/audit?action=auth.login&subject=member", nil, admin.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body.Data), "member@demo.com")
}

func TestPasswordChangeRevokesRefreshTokens(t *testing.T) {
	env := newTestEnv(t)
	tokens := env.login(t, adminEmail, adminPassword)

	resp, _ := env.do(t, http.MethodPut, "/api/v1/auth/password",
		map[string]string{"current_password": adminPassword, "new_password": "another-password"}, tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.postJSON(t, "/api/v1/auth/refresh", map[string]string{"refresh_token": tokens.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	env.login(t, adminEmail, "another-password")
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/v1/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body.Error.Code)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/auth/me", nil, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
