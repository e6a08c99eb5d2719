package security

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenCodec signs and verifies short-lived bearer tokens. It keeps no state
// besides the key, the TTL and the clock, so rotating the key invalidates
// every outstanding access token.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenCodec(secret string, ttl time.Duration, now func() time.Time) *TokenCodec {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &TokenCodec{secret: []byte(secret), ttl: ttl, now: now}
}

func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

func (c *TokenCodec) Issue(subject string) (string, error) {
	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &accessClaims{
		Subject:   subject,
		IssuedAt:  newPreciseDate(now),
		ExpiresAt: newPreciseDate(now.Add(c.ttl)),
	})
	return token.SignedString(c.secret)
}

func (c *TokenCodec) ParseSubject(tokenString string) (string, error) {
	if strings.TrimSpace(tokenString) == "" {
		return "", ErrInvalidToken
	}

	claims := &accessClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		// The expiry check only runs after the signature has been verified,
		// so a tampered token can never surface as "expired".
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}

// IsExpired reads the expiry claim without checking the signature. Callers
// must have validated the token already; unreadable tokens count as expired.
func (c *TokenCodec) IsExpired(tokenString string) bool {
	claims := &accessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return !c.now().Before(claims.ExpiresAt.Time)
}
