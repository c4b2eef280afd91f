package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aaronBIOO/QuickChat/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ domain.UserRepository = (*UserRepo)(nil)

const userColumns = `id, email, full_name, bio, profile_pic, hashed_password, created_at, updated_at`

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, email, full_name, bio, profile_pic, hashed_password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		u.ID, u.Email, u.FullName, u.Bio, u.ProfilePic, u.HashedPassword,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return mapError(err, "insert user")
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *UserRepo) ListExcept(ctx context.Context, id string) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id <> $1
		ORDER BY full_name ASC, id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []*domain.User{}
	for rows.Next() {
		u := &domain.User{}
		if err := scanUserInto(rows, u); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id string, p domain.ProfileUpdate) (*domain.User, error) {
	u := &domain.User{}
	err := scanUserInto(r.db.QueryRowContext(ctx, `
		UPDATE users
		SET full_name   = COALESCE($2, full_name),
		    bio         = COALESCE($3, bio),
		    profile_pic = COALESCE($4, profile_pic),
		    updated_at  = NOW()
		WHERE id = $1
		RETURNING `+userColumns,
		id, p.FullName, p.Bio, p.ProfilePic,
	), u)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update profile %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

func (r *UserRepo) Upsert(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, email, full_name, bio, profile_pic, hashed_password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			email       = EXCLUDED.email,
			full_name   = EXCLUDED.full_name,
			profile_pic = EXCLUDED.profile_pic,
			updated_at  = NOW()
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		u.ID, u.Email, u.FullName, u.Bio, u.ProfilePic, u.HashedPassword,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return mapError(err, "upsert user")
	}
	return nil
}

// Delete removes the profile and records a tombstone for id. The tombstone
// is written even when no profile exists.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO deleted_users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id,
	); err != nil {
		return fmt.Errorf("tombstone user: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete user %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *UserRepo) IsDeleted(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM deleted_users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check tombstone: %w", err)
	}
	return exists, nil
}

func (r *UserRepo) scanUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	u := &domain.User{}
	err := scanUserInto(r.db.QueryRowContext(ctx, query, arg), u)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserInto(row rowScanner, u *domain.User) error {
	return row.Scan(
		&u.ID,
		&u.Email,
		&u.FullName,
		&u.Bio,
		&u.ProfilePic,
		&u.HashedPassword,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
}
