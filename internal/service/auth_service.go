package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go-saas-auth/internal/event"
	"go-saas-auth/internal/metrics"
	"go-saas-auth/internal/model"
	"go-saas-auth/internal/security"
)

const TokenTypeBearer = "Bearer"

// IdentityStore resolves users by email or id. Both lookups return
// model.ErrUserNotFound for absent or deleted users.
type IdentityStore interface {
	FindActiveByEmail(ctx context.Context, email string) (model.Identity, error)
	FindActiveByID(ctx context.Context, id string) (model.Identity, error)
}

type PasswordHasher interface {
	Hash(raw string) (string, error)
	Verify(raw string, hash string) bool
}

// dummyVerifier is implemented by hashers that can spend the cost of a
// verification without a stored hash.
type dummyVerifier interface {
	VerifyDummy(raw string)
}

type accessTokenCodec interface {
	Issue(subject string) (string, error)
	ParseSubject(token string) (string, error)
	TTL() time.Duration
}

type refreshTokenStore interface {
	Issue(ctx context.Context, userID string) (string, error)
	Redeem(ctx context.Context, raw string) (string, error)
	RevokeAll(ctx context.Context, userID string) error
}

type loginGuard interface {
	RecordFailure(key string) bool
	RecordSuccess(key string)
	IsBlocked(key string) bool
	RemainingLock(key string) time.Duration
}

type AuthService struct {
	identities IdentityStore
	hasher     PasswordHasher
	codec      accessTokenCodec
	refresh    refreshTokenStore
	throttle   loginGuard

	audit   *AuditService
	bus     event.Bus
	metrics *metrics.Auth
	now     func() time.Time
}

func NewAuthService(identities IdentityStore, hasher PasswordHasher, codec accessTokenCodec, refresh refreshTokenStore, throttle loginGuard) *AuthService {
	return &AuthService{
		identities: identities,
		hasher:     hasher,
		codec:      codec,
		refresh:    refresh,
		throttle:   throttle,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *AuthService) WithAudit(audit *AuditService) *AuthService {
	s.audit = audit
	return s
}

func (s *AuthService) WithEvents(bus event.Bus) *AuthService {
	s.bus = bus
	return s
}

func (s *AuthService) WithMetrics(m *metrics.Auth) *AuthService {
	s.metrics = m
	return s
}

// Login checks the lockout first and only then the credentials, so a locked
// identity gets no signal about whether its password was right. Unknown
// emails and wrong passwords fail with the same error.
func (s *AuthService) Login(ctx context.Context, email string, password string) (model.AuthResult, error) {
	started := time.Now()
	key := model.NormalizeEmail(email)
	actor := model.ActorFromContext(ctx)
	if actor.Email == "" {
		actor.Email = key
	}

	if s.throttle.IsBlocked(key) {
		blocked := &security.BlockedError{RetryAfter: s.throttle.RemainingLock(key)}
		slog.Warn("login rejected: identity locked", "email", key, "retry_after_s", blocked.RetryAfterSeconds())
		s.audit.Log(ctx, model.AuditActionLogin, actor, model.AuditStatusBlocked, key, nil, blocked.Error())
		s.metrics.Login(metrics.OutcomeBlocked, time.Since(started).Seconds())
		return model.AuthResult{}, blocked
	}

	identity, err := s.identities.FindActiveByEmail(ctx, key)
	if err != nil && !errors.Is(err, model.ErrUserNotFound) {
		s.metrics.Login(metrics.OutcomeError, time.Since(started).Seconds())
		return model.AuthResult{}, fmt.Errorf("load identity: %w", err)
	}

	known := err == nil
	if known {
		known = s.hasher.Verify(password, identity.PasswordHash)
	} else if dv, ok := s.hasher.(dummyVerifier); ok {
		dv.VerifyDummy(password)
	}

	if !known {
		s.loginFailed(ctx, key, identity.ID, actor)
		s.metrics.Login(metrics.OutcomeFailure, time.Since(started).Seconds())
		return model.AuthResult{}, security.ErrInvalidCredentials
	}

	s.throttle.RecordSuccess(key)

	result, err := s.issue(ctx, identity)
	if err != nil {
		s.metrics.Login(metrics.OutcomeError, time.Since(started).Seconds())
		return model.AuthResult{}, err
	}

	actor.UserID = identity.ID
	slog.Info("login succeeded", "user_id", identity.ID, "email", identity.Email)
	s.audit.Log(ctx, model.AuditActionLogin, actor, model.AuditStatusSuccess, identity.Email, nil, "")
	s.publish(event.TypeLoginSucceeded, identity.ID, map[string]any{"ip": actor.IP})
	s.metrics.Login(metrics.OutcomeSuccess, time.Since(started).Seconds())

	return result, nil
}

func (s *AuthService) loginFailed(ctx context.Context, key string, userID string, actor model.AuditActor) {
	locked := s.throttle.RecordFailure(key)

	slog.Warn("login failed", "email", key, "locked", locked)
	s.audit.Log(ctx, model.AuditActionLogin, actor, model.AuditStatusFailure, key, nil, security.ErrInvalidCredentials.Error())

	// Unknown emails have no connections to notify.
	if userID != "" {
		s.publish(event.TypeLoginFailed, userID, map[string]any{"ip": actor.IP})
	}

	if locked {
		slog.Warn("identity locked after repeated failures", "email", key, "lockout", security.LoginLockoutDuration.String())
		s.metrics.Lockout()
		if userID != "" {
			s.publish(event.TypeAccountLocked, userID, map[string]any{"lockout_seconds": int64(security.LoginLockoutDuration.Seconds())})
		}
	}
}

// Refresh mints a new access token for the owner of a live refresh token.
// The refresh token itself is returned unchanged.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.AuthResult, error) {
	actor := model.ActorFromContext(ctx)

	userID, err := s.refresh.Redeem(ctx, refreshToken)
	if err != nil {
		s.refreshFailed(ctx, actor, err)
		return model.AuthResult{}, err
	}

	identity, err := s.identities.FindActiveByID(ctx, userID)
	if errors.Is(err, model.ErrUserNotFound) {
		s.refreshFailed(ctx, actor, security.ErrRefreshTokenInvalid)
		return model.AuthResult{}, security.ErrRefreshTokenInvalid
	}
	if err != nil {
		s.metrics.Refresh(metrics.OutcomeError)
		return model.AuthResult{}, fmt.Errorf("load identity: %w", err)
	}

	access, err := s.codec.Issue(identity.Email)
	if err != nil {
		s.metrics.Refresh(metrics.OutcomeError)
		return model.AuthResult{}, fmt.Errorf("issue access token: %w", err)
	}

	actor.UserID = identity.ID
	actor.Email = identity.Email
	s.audit.Log(ctx, model.AuditActionRefresh, actor, model.AuditStatusSuccess, identity.Email, nil, "")
	s.metrics.Refresh(metrics.OutcomeSuccess)

	return model.AuthResult{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(s.codec.TTL().Seconds()),
	}, nil
}

func (s *AuthService) refreshFailed(ctx context.Context, actor model.AuditActor, err error) {
	if !errors.Is(err, security.ErrRefreshTokenInvalid) {
		s.metrics.Refresh(metrics.OutcomeError)
		return
	}
	s.audit.Log(ctx, model.AuditActionRefresh, actor, model.AuditStatusFailure, "", nil, err.Error())
	s.metrics.Refresh(metrics.OutcomeFailure)
}

// Logout revokes every refresh token of the user and clears its throttle
// state. Access tokens already handed out stay valid until they expire.
func (s *AuthService) Logout(ctx context.Context, email string) error {
	key := model.NormalizeEmail(email)

	identity, err := s.identities.FindActiveByEmail(ctx, key)
	if errors.Is(err, model.ErrUserNotFound) {
		s.throttle.RecordSuccess(key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	if err := s.refresh.RevokeAll(ctx, identity.ID); err != nil {
		return err
	}
	s.throttle.RecordSuccess(key)

	actor := model.ActorFromContext(ctx)
	actor.UserID = identity.ID
	actor.Email = identity.Email
	slog.Info("logout", "user_id", identity.ID)
	s.audit.Log(ctx, model.AuditActionLogout, actor, model.AuditStatusSuccess, identity.Email, nil, "")
	s.publish(event.TypeLoggedOut, identity.ID, nil)
	s.metrics.Logout()

	return nil
}

// Authenticate resolves an Authorization header value to the identity it
// names. Every failure collapses into security.ErrUnauthenticated except
// storage errors, which are returned wrapped.
func (s *AuthService) Authenticate(ctx context.Context, authorization string) (model.Identity, error) {
	token, ok := security.BearerToken(authorization)
	if !ok {
		return model.Identity{}, security.ErrUnauthenticated
	}
	return s.AuthenticateToken(ctx, token)
}

func (s *AuthService) AuthenticateToken(ctx context.Context, token string) (model.Identity, error) {
	subject, err := s.codec.ParseSubject(token)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: %w", security.ErrUnauthenticated, err)
	}

	identity, err := s.identities.FindActiveByEmail(ctx, subject)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.Identity{}, security.ErrUnauthenticated
	}
	if err != nil {
		return model.Identity{}, fmt.Errorf("load identity: %w", err)
	}

	return identity, nil
}

func (s *AuthService) issue(ctx context.Context, identity model.Identity) (model.AuthResult, error) {
	access, err := s.codec.Issue(identity.Email)
	if err != nil {
		return model.AuthResult{}, fmt.Errorf("issue access token: %w", err)
	}

	refresh, err := s.refresh.Issue(ctx, identity.ID)
	if err != nil {
		return model.AuthResult{}, err
	}

	return model.AuthResult{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(s.codec.TTL().Seconds()),
	}, nil
}

func (s *AuthService) publish(typ event.Type, userID string, payload any) {
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
