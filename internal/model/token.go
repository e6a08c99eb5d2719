package model

import "time"

// RefreshToken is the persisted row. Only the digest of the raw value is
// stored; the raw value is handed to the client once.
type RefreshToken struct {
	ID        string
	Digest    string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type AuthResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// PasswordResetToken is a single-use credential for setting a new password
// without the current one. Like RefreshToken only its digest is stored.
type PasswordResetToken struct {
	ID        string
	Digest    string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}
