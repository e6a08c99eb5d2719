package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-saas-auth/internal/database"
	"go-saas-auth/internal/model"
)

type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// ReplaceForUser removes every refresh token of the user and stores the new
// one. The user row is locked first so concurrent logins of the same user
// run one after another; the unique index on user_id backs this up.
func (r *TokenRepository) ReplaceForUser(ctx context.Context, token model.RefreshToken) error {
	if !isUUID(token.UserID) {
		return model.ErrUserNotFound
	}
	if token.ID == "" {
		token.ID = uuid.NewString()
	}

	return database.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		var locked string
		err := tx.QueryRow(ctx,
			`SELECT id::text FROM users WHERE id = $1 FOR UPDATE`, token.UserID).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("lock user row: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, token.UserID); err != nil {
			return fmt.Errorf("delete user refresh tokens: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO refresh_tokens (id, digest, user_id, created_at, expires_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			token.ID, token.Digest, token.UserID, token.CreatedAt, token.ExpiresAt)
		if err != nil {
			return fmt.Errorf("store refresh token: %w", err)
		}
		return nil
	})
}

func (r *TokenRepository) FindByDigest(ctx context.Context, digest string) (model.RefreshToken, error) {
	var t model.RefreshToken
	err := r.pool.QueryRow(ctx,
		`SELECT id::text, digest, user_id::text, created_at, expires_at
		 FROM refresh_tokens WHERE digest = $1`, digest).
		Scan(&t.ID, &t.Digest, &t.UserID, &t.CreatedAt, &t.ExpiresAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.RefreshToken{}, model.ErrTokenNotFound
	}
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("find refresh token: %w", err)
	}
	return t, nil
}

func (r *TokenRepository) DeleteByDigest(ctx context.Context, digest string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE digest = $1`, digest)
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

func (r *TokenRepository) DeleteByUser(ctx context.Context, userID string) error {
	if !isUUID(userID) {
		return nil
	}

	_, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("revoke all refresh tokens: %w", err)
	}
	return nil
}

// CleanExpired drops rows nobody presented after they expired.
func (r *TokenRepository) CleanExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("clean expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
