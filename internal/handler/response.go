package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"go-saas-auth/internal/i18n"
	"go-saas-auth/internal/model"
	"go-saas-auth/internal/security"
	"go-saas-auth/pkg/apierror"
)

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// responder renders errors in the language the client asked for.
type responder struct {
	translator *i18n.Translator
}

func (rs responder) message(r *http.Request, key string, args ...any) string {
	return rs.translator.Message(r.Header.Get("Accept-Language"), key, args...)
}

// writeError maps domain errors to fixed statuses. Credential and token
// failures share one code each so a response never tells whether an email
// is registered.
func (rs responder) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{Code: "INTERNAL_ERROR"}
	messageKey := i18n.KeyServerError
	var messageArgs []any

	var apiErr *apierror.APIError
	var blocked *security.BlockedError

	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
		body.RetryAfter = apiErr.RetryAfter
		messageKey = ""
	case errors.As(err, &blocked):
		status = http.StatusTooManyRequests
		body.Code = "LOGIN_BLOCKED"
		body.RetryAfter = max(blocked.RetryAfterSeconds(), 1)
		messageKey = i18n.KeyLoginBlocked
		messageArgs = []any{body.RetryAfter}
	case errors.Is(err, security.ErrInvalidCredentials):
		status = http.StatusUnauthorized
		body.Code = "INVALID_CREDENTIALS"
		messageKey = i18n.KeyInvalidCredentials
	case errors.Is(err, security.ErrRefreshTokenInvalid):
		status = http.StatusUnauthorized
		body.Code = "INVALID_REFRESH_TOKEN"
		messageKey = i18n.KeyRefreshInvalid
	case errors.Is(err, security.ErrResetTokenInvalid):
		status = http.StatusBadRequest
		body.Code = "INVALID_RESET_TOKEN"
		messageKey = i18n.KeyResetInvalid
	case errors.Is(err, security.ErrUnauthenticated):
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		messageKey = i18n.KeyUnauthenticated
		w.Header().Set("WWW-Authenticate", "Bearer")
	case errors.Is(err, model.ErrForbidden):
		status = http.StatusForbidden
		body.Code = "FORBIDDEN"
		messageKey = i18n.KeyAccessDenied
	case errors.Is(err, model.ErrUserAlreadyExists):
		status = http.StatusConflict
		body.Code = "ALREADY_EXISTS"
		messageKey = i18n.KeyUserExists
	case errors.Is(err, model.ErrWeakPassword):
		status = http.StatusBadRequest
		body.Code = "WEAK_PASSWORD"
		messageKey = i18n.KeyWeakPassword
		messageArgs = []any{security.MinPasswordLength}
	case errors.Is(err, model.ErrInvalidInput):
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Details = err.Error()
		messageKey = i18n.KeyValidation
	case errors.Is(err, model.ErrOrganizationNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		messageKey = i18n.KeyOrgNotFound
	case errors.Is(err, model.ErrUserNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		messageKey = i18n.KeyUserNotFound
	default:
		slog.Error("unhandled error in writeError", "path", r.URL.Path, "error", err.Error())
	}

	if messageKey != "" {
		body.Message = rs.message(r, messageKey, messageArgs...)
	}
	if body.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(body.RetryAfter, 10))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest)
	}
	return nil
}
