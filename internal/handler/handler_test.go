package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go-saas-auth/internal/i18n"
	"go-saas-auth/internal/middleware"
	"go-saas-auth/internal/model"
	"go-saas-auth/internal/security"
)

type mockAuthService struct {
	mock.Mock
}

func (m *mockAuthService) Login(ctx context.Context, email string, password string) (model.AuthResult, error) {
	args := m.Called(ctx, email, password)
	return args.Get(0).(model.AuthResult), args.Error(1)
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (model.AuthResult, error) {
	args := m.Called(ctx, refreshToken)
	return args.Get(0).(model.AuthResult), args.Error(1)
}

func (m *mockAuthService) Logout(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

type mockUserService struct {
	mock.Mock
}

func (m *mockUserService) Register(ctx context.Context, req model.RegisterRequest, defaultOrgID string) (model.Principal, error) {
	args := m.Called(ctx, req, defaultOrgID)
	return args.Get(0).(model.Principal), args.Error(1)
}

func (m *mockUserService) ChangePassword(ctx context.Context, identity model.Identity, current string, next string) error {
	return m.Called(ctx, identity, current, next).Error(0)
}

type mockAuditQuerier struct {
	mock.Mock
}

func (m *mockAuditQuerier) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	args := m.Called(ctx, query)
	return args.Get(0).([]model.AuditEntry), args.Get(1).(model.Meta), args.Error(2)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
}

func newTranslator(t *testing.T) *i18n.Translator {
	t.Helper()
	translator, err := i18n.New()
	require.NoError(t, err)
	return translator
}

func jsonRequest(t *testing.T, method string, target string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(method, target, bytes.NewReader(raw))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func fakeIdentity() model.Identity {
	return model.Identity{
		ID:             gofakeit.UUID(),
		Email:          gofakeit.Email(),
		FullName:       gofakeit.Name(),
		OrganizationID: gofakeit.UUID(),
		PasswordHash:   "hash",
		Roles:          []string{model.RoleAdmin},
		Permissions:    []string{model.PermissionUserViewAll},
	}
}

func TestAuthHandler_LoginSuccess(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, newTranslator(t))

	result := model.AuthResult{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer", ExpiresIn: 900}
	svc.On("Login", mock.Anything, "a@x.com", "secret-pass").Return(result, nil)

	rec := httptest.NewRecorder()
	h.Login(rec, jsonRequest(t, http.MethodPost, "/api/v1/auth/login", model.LoginRequest{Email: "a@x.com", Password: "secret-pass"}))

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)

	var got model.AuthResult
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, result, got)
	svc.AssertExpectations(t)
}

func TestAuthHandler_LoginPassesActor(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, newTranslator(t))

	svc.On("Login", mock.MatchedBy(func(ctx context.Context) bool {
		return model.ActorFromContext(ctx).IP == "203.0.113.7"
	}), "a@x.com", "pw").Return(model.AuthResult{}, nil)

	r := jsonRequest(t, http.MethodPost, "/api/v1/auth/login", model.LoginRequest{Email: "a@x.com", Password: "pw"})
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	rec := httptest.NewRecorder()
	h.Login(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestAuthHandler_LoginFailuresLookAlike(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, newTranslator(t))

	svc.On("Login", mock.Anything, "known@x.com", mock.Anything).Return(model.AuthResult{}, security.ErrInvalidCredentials)
	svc.On("Login", mock.Anything, "unknown@x.com", mock.Anything).Return(model.AuthResult{}, security.ErrInvalidCredentials)

	known := httptest.NewRecorder()
	h.Login(known, jsonRequest(t, http.MethodPost, "/", model.LoginRequest{Email: "known@x.com", Password: "wrong"}))
	unknown := httptest.NewRecorder()
	h.Login(unknown, jsonRequest(t, http.MethodPost, "/", model.LoginRequest{Email: "unknown@x.com", Password: "wrong"}))

	assert.Equal(t, http.StatusUnauthorized, known.Code)
	assert.Equal(t, known.Code, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
	assert.Equal(t, "Invalid email or password", decodeEnvelope(t, known).Error.Message)
}

func TestAuthHandler_LoginBlocked(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, newTranslator(t))

	svc.On("Login", mock.Anything, mock.Anything, mock.Anything).
		Return(model.AuthResult{}, &security.BlockedError{RetryAfter: 14*time.Minute + 30*time.Second})

	r := jsonRequest(t, http.MethodPost, "/", model.LoginRequest{Email: "a@x.com", Password: "pw"})
	r.Header.Set("Accept-Language", "sr-RS")
	rec := httptest.NewRecorder()
	h.Login(rec, r)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "870", rec.Header().Get("Retry-After"))

	env := decodeEnvelope(t, rec)
	assert.Equal(t, "LOGIN_BLOCKED", env.Error.Code)
	assert.Equal(t, int64(870), env.Error.RetryAfter)
	assert.Contains(t, env.Error.Message, "870 sekundi")
}

func TestAuthHandler_BlockedNeverAdvertisesZeroRetry(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, newTranslator(t))

	svc.On("Login", mock.Anything, mock.Anything, mock.Anything).
		Return(model.AuthResult{}, &security.BlockedError{RetryAfter: 0})

	rec := httptest.NewRecorder()
	h.Login(rec, jsonRequest(t, http.MethodPost, "/", model.LoginRequest{Email: "a@x.com", Password: "pw"}))

	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestAuthHandler_LoginBadInput(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, newTranslator(t))

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Login(rec, jsonRequest(t, http.MethodPost, "/", model.LoginRequest{Email: " "}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthHandler_LoginStorageErrorIsInternal(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, newTranslator(t))

	svc.On("Login", mock.Anything, mock.Anything, mock.Anything).
		Return(model.AuthResult{}, errors.New("load identity: connection refused"))

	rec := httptest.NewRecorder()
	h.Login(rec, jsonRequest(t, http.MethodPost, "/", model.LoginRequest{Email: "a@x.com", Password: "pw"}))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestAuthHandler_Refresh(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, newTranslator(t))

	svc.On("Refresh", mock.Anything, "good").Return(model.AuthResult{AccessToken: "new", RefreshToken: "good"}, nil)
	svc.On("Refresh", mock.Anything, "bad").Return(model.AuthResult{}, security.ErrRefreshTokenInvalid)

	rec := httptest.NewRecorder()
	h.Refresh(rec, jsonRequest(t, http.MethodPost, "/", model.RefreshRequest{RefreshToken: " good "}))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.Refresh(rec, jsonRequest(t, http.MethodPost, "/", model.RefreshRequest{RefreshToken: "bad"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", decodeEnvelope(t, rec).Error.Code)

	rec = httptest.NewRecorder()
	h.Refresh(rec, jsonRequest(t, http.MethodPost, "/", model.RefreshRequest{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandler_LogoutUsesBoundIdentity(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, newTranslator(t))
	identity := fakeIdentity()

	svc.On("Logout", mock.Anything, identity.Email).Return(nil)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	r = r.WithContext(middleware.WithIdentity(r.Context(), identity))
	rec := httptest.NewRecorder()
	h.Logout(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Logged out successfully")
	svc.AssertExpectations(t)
}

func TestAuthHandler_LogoutWithoutIdentity(t *testing.T) {
	svc := new(mockAuthService)
	h := NewAuthHandler(svc, newTranslator(t))

	rec := httptest.NewRecorder()
	h.Logout(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	svc.AssertNotCalled(t, "Logout", mock.Anything, mock.Anything)
}

func TestUserHandler_Me(t *testing.T) {
	h := NewUserHandler(new(mockUserService), newTranslator(t))
	identity := fakeIdentity()

	r := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	r = r.WithContext(middleware.WithIdentity(r.Context(), identity))
	rec := httptest.NewRecorder()
	h.Me(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hash")

	var got model.Principal
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &got))
	assert.Equal(t, identity.Principal(), got)
}

func TestUserHandler_RegisterDefaultsToAdminOrganization(t *testing.T) {
	svc := new(mockUserService)
	h := NewUserHandler(svc, newTranslator(t))
	admin := fakeIdentity()

	req := model.RegisterRequest{Email: gofakeit.Email(), Password: "long-enough", FullName: gofakeit.Name()}
	created := model.Principal{ID: gofakeit.UUID(), Email: req.Email, OrganizationID: admin.OrganizationID, Roles: []string{model.RoleUser}}
	svc.On("Register", mock.Anything, req, admin.OrganizationID).Return(created, nil)

	r := jsonRequest(t, http.MethodPost, "/api/v1/auth/register", req)
	r = r.WithContext(middleware.WithIdentity(r.Context(), admin))
	rec := httptest.NewRecorder()
	h.Register(rec, r)

	assert.Equal(t, http.StatusCreated, rec.Code)
	svc.AssertExpectations(t)
}

func TestUserHandler_RegisterErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"duplicate", model.ErrUserAlreadyExists, http.StatusConflict, "ALREADY_EXISTS"},
		{"weak password", model.ErrWeakPassword, http.StatusBadRequest, "at least 8 characters"},
		{"invalid input", model.ErrInvalidInput, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown org", model.ErrOrganizationNotFound, http.StatusNotFound, "Organization not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockUserService)
			h := NewUserHandler(svc, newTranslator(t))
			svc.On("Register", mock.Anything, mock.Anything, mock.Anything).Return(model.Principal{}, tt.err)

			r := jsonRequest(t, http.MethodPost, "/", model.RegisterRequest{Email: "x@y.com"})
			r = r.WithContext(middleware.WithIdentity(r.Context(), fakeIdentity()))
			rec := httptest.NewRecorder()
			h.Register(rec, r)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestUserHandler_ChangePassword(t *testing.T) {
	svc := new(mockUserService)
	h := NewUserHandler(svc, newTranslator(t))
	identity := fakeIdentity()

	svc.On("ChangePassword", mock.Anything, identity, "old-password", "new-password").Return(nil)
	svc.On("ChangePassword", mock.Anything, identity, "wrong", mock.Anything).Return(security.ErrInvalidCredentials)

	send := func(current string) *httptest.ResponseRecorder {
		r := jsonRequest(t, http.MethodPut, "/api/v1/auth/password", model.ChangePasswordRequest{CurrentPassword: current, NewPassword: "new-password"})
		r = r.WithContext(middleware.WithIdentity(r.Context(), identity))
		rec := httptest.NewRecorder()
		h.ChangePassword(rec, r)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("old-password").Code)
	assert.Equal(t, http.StatusUnauthorized, send("wrong").Code)
	svc.AssertExpectations(t)
}

func TestUserHandler_ChangePasswordBlocked(t *testing.T) {
	svc := new(mockUserService)
	h := NewUserHandler(svc, newTranslator(t))
	identity := fakeIdentity()

	svc.On("ChangePassword", mock.Anything, identity, mock.Anything, mock.Anything).
		Return(&security.BlockedError{RetryAfter: security.LoginLockoutDuration})

	r := jsonRequest(t, http.MethodPut, "/api/v1/auth/password", model.ChangePasswordRequest{CurrentPassword: "guess", NewPassword: "new-password"})
	r = r.WithContext(middleware.WithIdentity(r.Context(), identity))
	rec := httptest.NewRecorder()
	h.ChangePassword(rec, r)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "900", rec.Header().Get("Retry-After"))
}

func TestAuditHandler_ListForwardsFilters(t *testing.T) {
	svc := new(mockAuditQuerier)
	h := NewAuditHandler(svc, newTranslator(t))

	want := model.AuditQuery{Action: "auth.login", Status: "failure", Subject: "a@x.com", Page: 2, Limit: 10}
	entries := []model.AuditEntry{{Action: "auth.login", Status: "failure", Subject: "a@x.com"}}
	svc.On("Query", mock.Anything, want).Return(entries, model.Meta{Page: 2, Limit: 10, Total: 11, TotalPages: 2}, nil)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/audit?action=auth.login&status=failure&subject=a@x.com&page=2&limit=10", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_pages":2`)
	svc.AssertExpectations(t)
}

func TestParseIntOrDefault(t *testing.T) {
	assert.Equal(t, 5, parseIntOrDefault("", 5))
	assert.Equal(t, 5, parseIntOrDefault("abc", 5))
	assert.Equal(t, 12, parseIntOrDefault("12", 5))
}
