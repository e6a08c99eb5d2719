package service

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go-saas-auth/internal/model"
	"go-saas-auth/pkg/apierror"
)

type auditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

type AuditService struct {
	repo auditStore
	now  func() time.Time
}

func NewAuditService(repo auditStore) *AuditService {
	return &AuditService{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Log records an entry. Failures are logged and never surface to the caller;
// an audit outage must not block authentication.
func (s *AuditService) Log(ctx context.Context, action string, actor model.AuditActor, status string, subject string, details any, errText string) {
	if s == nil || s.repo == nil {
		return
	}

	entry := model.AuditEntry{
		Action:     action,
		OccurredAt: s.now().Format(time.RFC3339Nano),
		Actor:      actor,
		Status:     status,
		Subject:    subject,
		Details:    details,
		Error:      errText,
	}

	if err := s.repo.Log(context.WithoutCancel(ctx), entry); err != nil {
		slog.Error("audit log failed", "action", action, "status", status, "error", err)
	}
}

func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	if _, err := parseOptionalAuditTime(query.From); err != nil {
		return nil, model.Meta{}, apierror.New("BAD_REQUEST", "invalid 'from' datetime format", query.From, http.StatusBadRequest)
	}
	if _, err := parseOptionalAuditTime(query.To); err != nil {
		return nil, model.Meta{}, apierror.New("BAD_REQUEST", "invalid 'to' datetime format", query.To, http.StatusBadRequest)
	}

	return s.repo.Query(ctx, query)
}

func parseOptionalAuditTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}

	if value, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
		return value.UTC(), nil
	}

	value, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, err
	}

	return value.UTC(), nil
}
