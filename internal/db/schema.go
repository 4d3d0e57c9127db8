package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the users table on a fresh database. Statements are
// idempotent so running against an existing schema is a no-op.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
		`CREATE TABLE IF NOT EXISTS users (
			id                 UUID PRIMARY KEY,
			email              TEXT NOT NULL,
			password_hash      TEXT NOT NULL,
			name               TEXT NOT NULL,
			role               TEXT NOT NULL DEFAULT 'user',
			is_active          BOOLEAN NOT NULL DEFAULT TRUE,
			refresh_token_hash TEXT NOT NULL DEFAULT '',
			reset_token_hash   TEXT NOT NULL DEFAULT '',
			reset_expires      TIMESTAMPTZ,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		// emails are stored canonical lowercase; the index enforces it
		`CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (email)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}
