package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/marcwilhelm/authhub/internal/domain/user"
	"github.com/marcwilhelm/authhub/internal/observability"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already in use")
)

// Safe projection: credential and token columns are never selected unless the
// caller opts in via a WithSecrets variant.
const safeColumns = `id, email, name, role, is_active, created_at, updated_at`

const secretColumns = safeColumns + `, password_hash, refresh_token_hash, reset_token_hash, reset_expires`

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return false
}

func (r *UsersRepo) Create(ctx context.Context, email, passwordHash, name, role string) (user.User, error) {
	var u user.User

	err := r.observe("users.create", func() error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO users (id, email, password_hash, name, role, is_active, created_at, updated_at)
			 VALUES (gen_random_uuid(), $1, $2, $3, $4, TRUE, NOW(), NOW())
			 RETURNING `+safeColumns,
			user.CanonicalEmail(email), passwordHash, name, role,
		).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	})

	if err != nil {
		if IsUniqueViolation(err) {
			return user.User{}, ErrEmailTaken
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_id", `WHERE id = $1`, id, false)
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_email", `WHERE email = $1`, user.CanonicalEmail(email), false)
}

func (r *UsersRepo) GetByIDWithSecrets(ctx context.Context, id string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_id_secrets", `WHERE id = $1`, id, true)
}

func (r *UsersRepo) GetByEmailWithSecrets(ctx context.Context, email string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_email_secrets", `WHERE email = $1`, user.CanonicalEmail(email), true)
}

func (r *UsersRepo) getOne(ctx context.Context, op, where, arg string, secrets bool) (user.User, error) {
	cols := safeColumns
	if secrets {
		cols = secretColumns
	}

	var u user.User

	err := r.observe(op, func() error {
		row := r.pool.QueryRow(ctx, `SELECT `+cols+` FROM users `+where, arg)

		if secrets {
			return row.Scan(
				&u.ID, &u.Email, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
				&u.PasswordHash, &u.RefreshTokenHash, &u.ResetTokenHash, &u.ResetExpires,
			)
		}

		return row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, ErrUserNotFound
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) UpdateProfile(ctx context.Context, id string, name, email *string) (user.User, error) {
	var u user.User

	var canonical *string
	if email != nil {
		c := user.CanonicalEmail(*email)
		canonical = &c
	}

	err := r.observe("users.update_profile", func() error {
		return r.pool.QueryRow(ctx,
			`UPDATE users
			 SET name = COALESCE($2, name),
			     email = COALESCE($3, email),
			     updated_at = NOW()
			 WHERE id = $1
			 RETURNING `+safeColumns,
			id, name, canonical,
		).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, ErrUserNotFound
		}
		if IsUniqueViolation(err) {
			return user.User{}, ErrEmailTaken
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.exec(ctx, "users.update_password",
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
		id, passwordHash)
}

func (r *UsersRepo) SetRefreshToken(ctx context.Context, id, tokenHash string) error {
	return r.exec(ctx, "users.set_refresh_token",
		`UPDATE users SET refresh_token_hash = $2, updated_at = NOW() WHERE id = $1`,
		id, tokenHash)
}

func (r *UsersRepo) ClearRefreshToken(ctx context.Context, id string) error {
	return r.exec(ctx, "users.clear_refresh_token",
		`UPDATE users SET refresh_token_hash = '', updated_at = NOW() WHERE id = $1`,
		id)
}

func (r *UsersRepo) SetPasswordReset(ctx context.Context, id, tokenHash string, expires time.Time) error {
	return r.exec(ctx, "users.set_password_reset",
		`UPDATE users SET reset_token_hash = $2, reset_expires = $3, updated_at = NOW() WHERE id = $1`,
		id, tokenHash, expires)
}

// ResetPassword replaces the hash and clears both reset fields plus the
// refresh token in a single statement, so the record never persists half of
// the transition.
func (r *UsersRepo) ResetPassword(ctx context.Context, id, passwordHash string) error {
	return r.exec(ctx, "users.reset_password",
		`UPDATE users
		 SET password_hash = $2,
		     reset_token_hash = '',
		     reset_expires = NULL,
		     refresh_token_hash = '',
		     updated_at = NOW()
		 WHERE id = $1`,
		id, passwordHash)
}

func (r *UsersRepo) List(ctx context.Context) ([]user.User, error) {
	var users []user.User

	err := r.observe("users.list", func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT `+safeColumns+` FROM users ORDER BY created_at DESC`)

		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var u user.User

			err = rows.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)

			if err != nil {
				return err
			}

			users = append(users, u)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, err
	}

	return users, nil
}

func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	var err error
	var tag pgconn.CommandTag

	err = r.observe("users.delete", func() error {
		tag, err = r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		return err
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *UsersRepo) exec(ctx context.Context, op, sql string, args ...any) error {
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, sql, args...)
		return err
	})
}
