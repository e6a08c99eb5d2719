package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-saas-auth/internal/database"
	"go-saas-auth/internal/model"
)

const uniqueViolation = "23505"

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const identitySelect = `
	SELECT u.id::text, u.email, u.password_hash, u.full_name, u.organization_id::text,
	       u.deleted, u.created_at, u.updated_at,
	       COALESCE(array_agg(DISTINCT r.name) FILTER (WHERE r.name IS NOT NULL), '{}'),
	       COALESCE(array_agg(DISTINCT p.name) FILTER (WHERE p.name IS NOT NULL), '{}')
	FROM users u
	LEFT JOIN user_roles ur ON ur.user_id = u.id
	LEFT JOIN roles r ON r.id = ur.role_id
	LEFT JOIN role_permissions rp ON rp.role_id = r.id
	LEFT JOIN permissions p ON p.id = rp.permission_id`

func scanIdentity(row pgx.Row) (model.Identity, error) {
	var u model.Identity
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.OrganizationID,
		&u.Deleted, &u.CreatedAt, &u.UpdatedAt, &u.Roles, &u.Permissions)
	return u, err
}

// FindActiveByEmail loads a non-deleted user with its role and permission
// names. The email comparison is case-insensitive.
func (r *UserRepository) FindActiveByEmail(ctx context.Context, email string) (model.Identity, error) {
	u, err := scanIdentity(r.pool.QueryRow(ctx,
		identitySelect+`
		WHERE lower(u.email) = $1 AND u.deleted = false
		GROUP BY u.id`, model.NormalizeEmail(email)))

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Identity{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.Identity{}, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

func (r *UserRepository) FindActiveByID(ctx context.Context, id string) (model.Identity, error) {
	if !isUUID(id) {
		return model.Identity{}, model.ErrUserNotFound
	}

	u, err := scanIdentity(r.pool.QueryRow(ctx,
		identitySelect+`
		WHERE u.id = $1 AND u.deleted = false
		GROUP BY u.id`, id))

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Identity{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.Identity{}, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = $1 AND deleted = false)`,
		model.NormalizeEmail(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email exists: %w", err)
	}
	return exists, nil
}

// Create inserts the user and attaches the named roles in one transaction.
func (r *UserRepository) Create(ctx context.Context, u model.Identity) error {
	return database.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO users (id, email, password_hash, full_name, organization_id, deleted, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, false, $6, $7)`,
			u.ID, u.Email, u.PasswordHash, u.FullName, u.OrganizationID, u.CreatedAt, u.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return model.ErrUserAlreadyExists
			}
			return fmt.Errorf("create user: %w", err)
		}

		if len(u.Roles) == 0 {
			return nil
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO user_roles (user_id, role_id)
			 SELECT $1, id FROM roles WHERE name = ANY($2)`,
			u.ID, u.Roles)
		if err != nil {
			return fmt.Errorf("assign user roles: %w", err)
		}
		if tag.RowsAffected() != int64(len(u.Roles)) {
			return fmt.Errorf("assign user roles: unknown role in %v", u.Roles)
		}
		return nil
	})
}

func (r *UserRepository) UpdatePassword(ctx context.Context, userID string, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1 AND deleted = false`,
		userID, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) OrganizationExists(ctx context.Context, id string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}

	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM organizations WHERE id = $1 AND deleted = false)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check organization exists: %w", err)
	}
	return exists, nil
}

func (r *UserRepository) FindOrganizationBySlug(ctx context.Context, slug string) (model.Organization, error) {
	var o model.Organization
	err := r.pool.QueryRow(ctx,
		`SELECT id::text, name, slug, created_at FROM organizations
		 WHERE slug = $1 AND deleted = false`, strings.TrimSpace(slug)).
		Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Organization{}, model.ErrOrganizationNotFound
	}
	if err != nil {
		return model.Organization{}, fmt.Errorf("find organization by slug: %w", err)
	}
	return o, nil
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE deleted = false`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}
