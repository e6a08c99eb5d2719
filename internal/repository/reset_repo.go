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

type ResetTokenRepository struct {
	pool *pgxpool.Pool
}

func NewResetTokenRepository(pool *pgxpool.Pool) *ResetTokenRepository {
	return &ResetTokenRepository{pool: pool}
}

// ReplaceForUser follows the same locking order as the refresh token
// repository so a reset request and a login of one user never deadlock.
func (r *ResetTokenRepository) ReplaceForUser(ctx context.Context, token model.PasswordResetToken) error {
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

		if _, err := tx.Exec(ctx, `DELETE FROM password_reset_tokens WHERE user_id = $1`, token.UserID); err != nil {
			return fmt.Errorf("delete user reset tokens: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO password_reset_tokens (id, digest, user_id, created_at, expires_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			token.ID, token.Digest, token.UserID, token.CreatedAt, token.ExpiresAt)
		if err != nil {
			return fmt.Errorf("store reset token: %w", err)
		}
		return nil
	})
}

// Consume deletes the row and returns it in one statement, so two concurrent
// confirmations of the same token cannot both succeed.
func (r *ResetTokenRepository) Consume(ctx context.Context, digest string) (model.PasswordResetToken, error) {
	var t model.PasswordResetToken
	err := r.pool.QueryRow(ctx,
		`DELETE FROM password_reset_tokens WHERE digest = $1
		 RETURNING id::text, digest, user_id::text, created_at, expires_at`, digest).
		Scan(&t.ID, &t.Digest, &t.UserID, &t.CreatedAt, &t.ExpiresAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.PasswordResetToken{}, model.ErrTokenNotFound
	}
	if err != nil {
		return model.PasswordResetToken{}, fmt.Errorf("consume reset token: %w", err)
	}
	return t, nil
}

func (r *ResetTokenRepository) CleanExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM password_reset_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("clean expired reset tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
