package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go-saas-auth/internal/model"
	"go-saas-auth/internal/security"
)

type mockResetService struct {
	mock.Mock
}

func (m *mockResetService) RequestReset(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *mockResetService) ConfirmReset(ctx context.Context, token string, newPassword string) error {
	return m.Called(ctx, token, newPassword).Error(0)
}

func TestPasswordResetHandler_RequestLooksTheSameForEveryEmail(t *testing.T) {
	svc := new(mockResetService)
	h := NewPasswordResetHandler(svc, newTranslator(t))
	svc.On("RequestReset", mock.Anything, mock.Anything).Return(nil)

	send := func(email string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.Request(rec, jsonRequest(t, http.MethodPost, "/api/v1/auth/password-reset/request", model.PasswordResetRequest{Email: email}))
		return rec
	}

	known := send("alice@example.com")
	unknown := send(gofakeit.Email())

	require.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, known.Code, unknown.Code)
	assert.JSONEq(t, known.Body.String(), unknown.Body.String())

	var data model.MessageData
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, known).Data, &data))
	assert.Contains(t, data.Message, "If an account with that email exists")
}

func TestPasswordResetHandler_RequestLocalized(t *testing.T) {
	svc := new(mockResetService)
	h := NewPasswordResetHandler(svc, newTranslator(t))
	svc.On("RequestReset", mock.Anything, "a@x.com").Return(nil)

	r := jsonRequest(t, http.MethodPost, "/api/v1/auth/password-reset/request", model.PasswordResetRequest{Email: "a@x.com"})
	r.Header.Set("Accept-Language", "sr")
	rec := httptest.NewRecorder()
	h.Request(rec, r)

	var data model.MessageData
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &data))
	assert.Contains(t, data.Message, "Ako nalog")
}

func TestPasswordResetHandler_RequestMissingEmail(t *testing.T) {
	svc := new(mockResetService)
	h := NewPasswordResetHandler(svc, newTranslator(t))

	rec := httptest.NewRecorder()
	h.Request(rec, jsonRequest(t, http.MethodPost, "/api/v1/auth/password-reset/request", model.PasswordResetRequest{Email: "  "}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "RequestReset", mock.Anything, mock.Anything)
}

func TestPasswordResetHandler_Confirm(t *testing.T) {
	svc := new(mockResetService)
	h := NewPasswordResetHandler(svc, newTranslator(t))

	svc.On("ConfirmReset", mock.Anything, "good-token", "new-password").Return(nil)
	svc.On("ConfirmReset", mock.Anything, "stale-token", mock.Anything).Return(security.ErrResetTokenInvalid)
	svc.On("ConfirmReset", mock.Anything, "good-token", "short").Return(model.ErrWeakPassword)

	send := func(token string, password string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.Confirm(rec, jsonRequest(t, http.MethodPost, "/api/v1/auth/password-reset/confirm",
			model.PasswordResetConfirmRequest{Token: token, NewPassword: password}))
		return rec
	}

	assert.Equal(t, http.StatusOK, send("good-token", "new-password").Code)

	stale := send("stale-token", "new-password")
	require.Equal(t, http.StatusBadRequest, stale.Code)
	env := decodeEnvelope(t, stale)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_RESET_TOKEN", env.Error.Code)

	weak := send("good-token", "short")
	require.Equal(t, http.StatusBadRequest, weak.Code)
	assert.Equal(t, "WEAK_PASSWORD", decodeEnvelope(t, weak).Error.Code)

	assert.Equal(t, http.StatusBadRequest, send("", "new-password").Code)
	svc.AssertNumberOfCalls(t, "ConfirmReset", 3)
}
