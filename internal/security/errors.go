package security

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAuthBlocked         = errors.New("too many failed login attempts")
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token expired")
	ErrRefreshTokenInvalid = errors.New("refresh token is invalid")
	ErrResetTokenInvalid   = errors.New("password reset token is invalid or expired")
	ErrUnauthenticated     = errors.New("unauthenticated")
)

// BlockedError reports an active lockout together with the time left on it.
type BlockedError struct {
	RetryAfter time.Duration
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s: retry in %d seconds", ErrAuthBlocked.Error(), e.RetryAfterSeconds())
}

func (e *BlockedError) Unwrap() error {
	return ErrAuthBlocked
}

// RetryAfterSeconds rounds up so a client never retries a moment too early.
func (e *BlockedError) RetryAfterSeconds() int64 {
	if e == nil || e.RetryAfter <= 0 {
		return 0
	}
	return int64(math.Ceil(e.RetryAfter.Seconds()))
}
