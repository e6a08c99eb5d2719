package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"go-saas-auth/internal/event"
	"go-saas-auth/internal/model"
	"go-saas-auth/internal/security"
	"go-saas-auth/internal/util"
)

const (
	maxEmailLength    = 80
	maxFullNameLength = 50
	// bcrypt rejects longer passwords.
	maxPasswordBytes = 72

	DemoOrganizationSlug = "demo-org"
)

type userStore interface {
	IdentityStore
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, u model.Identity) error
	UpdatePassword(ctx context.Context, userID string, passwordHash string) error
	OrganizationExists(ctx context.Context, id string) (bool, error)
	FindOrganizationBySlug(ctx context.Context, slug string) (model.Organization, error)
}

type tokenRevoker interface {
	RevokeAll(ctx context.Context, userID string) error
}

type UserService struct {
	users    userStore
	hasher   PasswordHasher
	revoker  tokenRevoker
	throttle loginGuard
	audit    *AuditService
	bus      event.Bus
	now      func() time.Time
}

// NewUserService shares throttle with AuthService, so wrong current passwords
// on ChangePassword count toward the same lockout as failed logins.
func NewUserService(users userStore, hasher PasswordHasher, revoker tokenRevoker, throttle loginGuard, audit *AuditService, bus event.Bus) *UserService {
	return &UserService{
		users:    users,
		hasher:   hasher,
		revoker:  revoker,
		throttle: throttle,
		audit:    audit,
		bus:      bus,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a user with the USER role. An empty organization id puts
// the user into defaultOrgID.
func (s *UserService) Register(ctx context.Context, req model.RegisterRequest, defaultOrgID string) (model.Principal, error) {
	actor := model.ActorFromContext(ctx)
	email := model.NormalizeEmail(req.Email)

	u, err := s.register(ctx, req, email, defaultOrgID)
	if err != nil {
		s.audit.Log(ctx, model.AuditActionRegister, actor, model.AuditStatusFailure, email, nil, err.Error())
		return model.Principal{}, err
	}

	slog.Info("user registered", "user_id", u.ID, "organization_id", u.OrganizationID, "by", actor.UserID)
	s.audit.Log(ctx, model.AuditActionRegister, actor, model.AuditStatusSuccess, u.Email,
		map[string]any{"user_id": u.ID, "organization_id": u.OrganizationID}, "")
	s.publish(event.TypeUserRegistered, u.ID, map[string]any{"email": u.Email})

	return u.Principal(), nil
}

func (s *UserService) register(ctx context.Context, req model.RegisterRequest, email string, defaultOrgID string) (model.Identity, error) {
	if err := validateEmail(email); err != nil {
		return model.Identity{}, err
	}
	fullName, err := util.SanitizeDisplayName(req.FullName, maxFullNameLength)
	if err != nil {
		return model.Identity{}, err
	}
	if err := validatePassword(req.Password); err != nil {
		return model.Identity{}, err
	}

	orgID := strings.TrimSpace(req.OrganizationID)
	if orgID == "" {
		orgID = defaultOrgID
	}
	exists, err := s.users.OrganizationExists(ctx, orgID)
	if err != nil {
		return model.Identity{}, err
	}
	if !exists {
		return model.Identity{}, model.ErrOrganizationNotFound
	}

	taken, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return model.Identity{}, err
	}
	if taken {
		return model.Identity{}, model.ErrUserAlreadyExists
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return model.Identity{}, err
	}

	now := s.now()
	u := model.Identity{
		ID:             uuid.NewString(),
		Email:          email,
		FullName:       fullName,
		OrganizationID: orgID,
		PasswordHash:   hash,
		Roles:          []string{model.RoleUser},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return model.Identity{}, err
	}

	// Re-read so the response carries the permissions granted by the role.
	created, err := s.users.FindActiveByID(ctx, u.ID)
	if err != nil {
		return u, nil
	}
	return created, nil
}

// ChangePassword replaces the password of an authenticated user and revokes
// its refresh tokens, signing out every other session once its access token
// expires.
func (s *UserService) ChangePassword(ctx context.Context, identity model.Identity, current string, next string) error {
	actor := model.ActorFromContext(ctx)
	actor.UserID = identity.ID
	actor.Email = identity.Email

	key := model.NormalizeEmail(identity.Email)

	fail := func(err error) error {
		s.audit.Log(ctx, model.AuditActionPasswordChange, actor, model.AuditStatusFailure, identity.Email, nil, err.Error())
		return err
	}

	if s.throttle.IsBlocked(key) {
		blocked := &security.BlockedError{RetryAfter: s.throttle.RemainingLock(key)}
		slog.Warn("password change rejected: identity locked", "user_id", identity.ID, "retry_after_s", blocked.RetryAfterSeconds())
		s.audit.Log(ctx, model.AuditActionPasswordChange, actor, model.AuditStatusBlocked, identity.Email, nil, blocked.Error())
		return blocked
	}

	if !s.hasher.Verify(current, identity.PasswordHash) {
		if s.throttle.RecordFailure(key) {
			slog.Warn("identity locked after repeated failures", "email", key, "lockout", security.LoginLockoutDuration.String())
			s.publish(event.TypeAccountLocked, identity.ID, map[string]any{"lockout_seconds": int64(security.LoginLockoutDuration.Seconds())})
		}
		return fail(security.ErrInvalidCredentials)
	}
	s.throttle.RecordSuccess(key)
	if err := validatePassword(next); err != nil {
		return fail(err)
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fail(err)
	}
	if err := s.users.UpdatePassword(ctx, identity.ID, hash); err != nil {
		return fail(err)
	}
	if err := s.revoker.RevokeAll(ctx, identity.ID); err != nil {
		return fail(err)
	}

	slog.Info("password changed", "user_id", identity.ID)
	s.audit.Log(ctx, model.AuditActionPasswordChange, actor, model.AuditStatusSuccess, identity.Email, nil, "")
	s.publish(event.TypePasswordChanged, identity.ID, nil)
	return nil
}

// SeedAdmin creates the bootstrap administrator in the demo organization
// when no active user owns the email yet. An empty email disables seeding.
func (s *UserService) SeedAdmin(ctx context.Context, email string, password string) error {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil
	}

	taken, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return err
	}
	if taken {
		return nil
	}

	if err := validatePassword(password); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	org, err := s.users.FindOrganizationBySlug(ctx, DemoOrganizationSlug)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	now := s.now()
	err = s.users.Create(ctx, model.Identity{
		ID:             uuid.NewString(),
		Email:          email,
		FullName:       "Admin User",
		OrganizationID: org.ID,
		PasswordHash:   hash,
		Roles:          []string{model.RoleAdmin},
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if errors.Is(err, model.ErrUserAlreadyExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	slog.Info("admin user seeded", "email", email, "organization", org.Slug)
	return nil
}

func (s *UserService) publish(typ event.Type, userID string, payload any) {
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

func validateEmail(email string) error {
	if email == "" || len(email) > maxEmailLength {
		return fmt.Errorf("%w: email must be 1-%d characters", model.ErrInvalidInput, maxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: email is not a valid address", model.ErrInvalidInput)
	}
	return nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < security.MinPasswordLength {
		return model.ErrWeakPassword
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", model.ErrInvalidInput, maxPasswordBytes)
	}
	return nil
}
