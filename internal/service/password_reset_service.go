package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go-saas-auth/internal/event"
	"go-saas-auth/internal/model"
	"go-saas-auth/internal/security"
)

type resetUserStore interface {
	IdentityStore
	UpdatePassword(ctx context.Context, userID string, passwordHash string) error
}

type resetTokenStore interface {
	Issue(ctx context.Context, userID string) (string, error)
	Consume(ctx context.Context, raw string) (string, error)
	TTL() time.Duration
}

// ResetNotifier delivers the raw reset token to the owner of the account.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, identity model.Identity, token string, validFor time.Duration) error
}

// PasswordResetService lets a user set a new password with a short-lived,
// single-use token instead of the current password.
type PasswordResetService struct {
	users    resetUserStore
	tokens   resetTokenStore
	hasher   PasswordHasher
	revoker  tokenRevoker
	throttle loginGuard
	notifier ResetNotifier
	audit    *AuditService
	bus      event.Bus
	now      func() time.Time
}

func NewPasswordResetService(
	users resetUserStore,
	tokens resetTokenStore,
	hasher PasswordHasher,
	revoker tokenRevoker,
	throttle loginGuard,
	notifier ResetNotifier,
	audit *AuditService,
	bus event.Bus,
) *PasswordResetService {
	return &PasswordResetService{
		users:    users,
		tokens:   tokens,
		hasher:   hasher,
		revoker:  revoker,
		throttle: throttle,
		notifier: notifier,
		audit:    audit,
		bus:      bus,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RequestReset issues a reset token for the account behind email and hands
// it to the notifier. Unknown emails and delivery failures both return nil,
// so the caller cannot tell whether the email is registered.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	key := model.NormalizeEmail(email)
	if err := validateEmail(key); err != nil {
		return err
	}
	actor := model.ActorFromContext(ctx)
	if actor.Email == "" {
		actor.Email = key
	}

	identity, err := s.users.FindActiveByEmail(ctx, key)
	if errors.Is(err, model.ErrUserNotFound) {
		slog.Info("password reset requested for unknown email", "email", key)
		s.audit.Log(ctx, model.AuditActionResetRequest, actor, model.AuditStatusFailure, key, nil, err.Error())
		return nil
	}
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	raw, err := s.tokens.Issue(ctx, identity.ID)
	if err != nil {
		return err
	}

	actor.UserID = identity.ID
	if err := s.notifier.SendPasswordReset(ctx, identity, raw, s.tokens.TTL()); err != nil {
		slog.Error("password reset delivery failed", "user_id", identity.ID, "error", err)
		s.audit.Log(ctx, model.AuditActionResetRequest, actor, model.AuditStatusFailure, identity.Email, nil, err.Error())
		return nil
	}

	s.audit.Log(ctx, model.AuditActionResetRequest, actor, model.AuditStatusSuccess, identity.Email, nil, "")
	s.publish(event.TypeResetRequested, identity.ID, map[string]any{"ip": actor.IP})
	return nil
}

// ConfirmReset sets a new password for the owner of token. On success every
// refresh token of the user is revoked and its login lockout is lifted.
func (s *PasswordResetService) ConfirmReset(ctx context.Context, token string, newPassword string) error {
	actor := model.ActorFromContext(ctx)

	// Checked first so a weak password does not burn the token.
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	userID, err := s.tokens.Consume(ctx, token)
	if err != nil {
		if errors.Is(err, security.ErrResetTokenInvalid) {
			s.audit.Log(ctx, model.AuditActionPasswordReset, actor, model.AuditStatusFailure, "", nil, err.Error())
		}
		return err
	}

	identity, err := s.users.FindActiveByID(ctx, userID)
	if errors.Is(err, model.ErrUserNotFound) {
		return security.ErrResetTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	actor.UserID = identity.ID
	actor.Email = identity.Email

	fail := func(err error) error {
		s.audit.Log(ctx, model.AuditActionPasswordReset, actor, model.AuditStatusFailure, identity.Email, nil, err.Error())
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fail(err)
	}
	if err := s.users.UpdatePassword(ctx, identity.ID, hash); err != nil {
		return fail(err)
	}
	if err := s.revoker.RevokeAll(ctx, identity.ID); err != nil {
		return fail(err)
	}
	s.throttle.RecordSuccess(model.NormalizeEmail(identity.Email))

	slog.Info("password reset", "user_id", identity.ID)
	s.audit.Log(ctx, model.AuditActionPasswordReset, actor, model.AuditStatusSuccess, identity.Email, nil, "")
	s.publish(event.TypePasswordReset, identity.ID, nil)
	return nil
}

func (s *PasswordResetService) publish(typ event.Type, userID string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Event{
		Type:      typ,
		Payload:   payload,
		Timestamp: s.now().Format(time.RFC3339Nano),
		UserID:    userID,
	})
}

// LogResetNotifier writes the reset link to the application log. It stands
// in for a mail gateway in development and tests.
type LogResetNotifier struct {
	BaseURL string
}

func (n LogResetNotifier) SendPasswordReset(_ context.Context, identity model.Identity, token string, validFor time.Duration) error {
	slog.Info("password reset link issued",
		"user_id", identity.ID,
		"email", identity.Email,
		"reset_link", n.BaseURL+token,
		"valid_for", validFor.String(),
	)
	return nil
}
