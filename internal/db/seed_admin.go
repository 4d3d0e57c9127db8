package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/marcwilhelm/authhub/internal/config"
	"github.com/marcwilhelm/authhub/internal/domain/user"
	"github.com/marcwilhelm/authhub/internal/security"
)

// EnsureAdminUser seeds the configured admin account on startup. No-op when
// the account already exists or no admin credentials are configured.
func EnsureAdminUser(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	email := user.CanonicalEmail(cfg.AdminEmail)

	// check if the user exists

	var dummy string

	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&dummy)

	if err == nil {
		return nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := security.HashPassword(cfg.AdminPassword)

	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, name, role, is_active, created_at, updated_at)
		 VALUES (gen_random_uuid(), $1, $2, $3, $4, TRUE, NOW(), NOW())`,
		email, hash, cfg.AdminName, user.RoleAdmin,
	)

	return err
}
