package security

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"go-saas-auth/internal/model"
)

const (
	RefreshTokenTTL   = 7 * 24 * time.Hour
	refreshTokenBytes = 32
)

// RefreshTokenRepository persists refresh token digests. ReplaceForUser must
// delete every existing row of the user and insert the new one atomically.
type RefreshTokenRepository interface {
	ReplaceForUser(ctx context.Context, token model.RefreshToken) error
	FindByDigest(ctx context.Context, digest string) (model.RefreshToken, error)
	DeleteByDigest(ctx context.Context, digest string) error
	DeleteByUser(ctx context.Context, userID string) error
}

// RefreshTokenStore hands out opaque, random refresh tokens and keeps at most
// one active token per user.
type RefreshTokenStore struct {
	repo    RefreshTokenRepository
	ttl     time.Duration
	now     func() time.Time
	entropy io.Reader
}

func NewRefreshTokenStore(repo RefreshTokenRepository, now func() time.Time) *RefreshTokenStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &RefreshTokenStore{
		repo:    repo,
		ttl:     RefreshTokenTTL,
		now:     now,
		entropy: rand.Reader,
	}
}

func (s *RefreshTokenStore) Issue(ctx context.Context, userID string) (string, error) {
	raw, err := s.generate()
	if err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}

	now := s.now()
	err = s.repo.ReplaceForUser(ctx, model.RefreshToken{
		Digest:    DigestToken(raw),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	})
	if err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}

	return raw, nil
}

// Redeem returns the owner of a live token. Unknown and expired tokens yield
// the same error; an expired row is deleted on the way out.
func (s *RefreshTokenStore) Redeem(ctx context.Context, raw string) (string, error) {
	if raw == "" {
		return "", ErrRefreshTokenInvalid
	}

	digest := DigestToken(raw)
	token, err := s.repo.FindByDigest(ctx, digest)
	if errors.Is(err, model.ErrTokenNotFound) {
		return "", ErrRefreshTokenInvalid
	}
	if err != nil {
		return "", fmt.Errorf("find refresh token: %w", err)
	}

	if !s.now().Before(token.ExpiresAt) {
		if err := s.repo.DeleteByDigest(ctx, digest); err != nil {
			return "", fmt.Errorf("delete expired refresh token: %w", err)
		}
		return "", ErrRefreshTokenInvalid
	}

	return token.UserID, nil
}

func (s *RefreshTokenStore) RevokeAll(ctx context.Context, userID string) error {
	if err := s.repo.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

func (s *RefreshTokenStore) generate() (string, error) {
	return opaqueToken(s.entropy, refreshTokenBytes)
}

func opaqueToken(entropy io.Reader, size int) (string, error) {
	b := make([]byte, size)
	if _, err := io.ReadFull(entropy, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DigestToken is the value stored and looked up in place of the raw token.
func DigestToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
