package security

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"go-saas-auth/internal/model"
)

const (
	PasswordResetTTL = 15 * time.Minute
	resetTokenBytes  = 32
)

// ResetTokenRepository persists password reset digests. Consume must delete
// the row it returns so a token can be redeemed once.
type ResetTokenRepository interface {
	ReplaceForUser(ctx context.Context, token model.PasswordResetToken) error
	Consume(ctx context.Context, digest string) (model.PasswordResetToken, error)
}

// ResetTokenStore keeps at most one pending reset token per user. Requesting
// a new one invalidates the previous link.
type ResetTokenStore struct {
	repo    ResetTokenRepository
	ttl     time.Duration
	now     func() time.Time
	entropy io.Reader
}

func NewResetTokenStore(repo ResetTokenRepository, now func() time.Time) *ResetTokenStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ResetTokenStore{
		repo:    repo,
		ttl:     PasswordResetTTL,
		now:     now,
		entropy: rand.Reader,
	}
}

func (s *ResetTokenStore) TTL() time.Duration {
	return s.ttl
}

func (s *ResetTokenStore) Issue(ctx context.Context, userID string) (string, error) {
	raw, err := opaqueToken(s.entropy, resetTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}

	now := s.now()
	err = s.repo.ReplaceForUser(ctx, model.PasswordResetToken{
		Digest:    DigestToken(raw),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	})
	if err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}

	return raw, nil
}

// Consume redeems a token and returns its owner. The row is gone afterwards
// whether or not it was still live.
func (s *ResetTokenStore) Consume(ctx context.Context, raw string) (string, error) {
	if raw == "" {
		return "", ErrResetTokenInvalid
	}

	token, err := s.repo.Consume(ctx, DigestToken(raw))
	if errors.Is(err, model.ErrTokenNotFound) {
		return "", ErrResetTokenInvalid
	}
	if err != nil {
		return "", fmt.Errorf("consume reset token: %w", err)
	}

	if !s.now().Before(token.ExpiresAt) {
		return "", ErrResetTokenInvalid
	}
	return token.UserID, nil
}
