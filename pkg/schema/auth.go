package schema

import (
	"context"
	"fmt"

	"github.com/basestub/basestub/pkg/sqlengine"
)

// authStatements are the idempotent CREATE statements for the auth
// schema. Every statement uses IF NOT EXISTS so installing twice
// converges to the same result, satisfying the "must not raise on an
// already-installed database" contract without a migrations table.
var authStatements = []string{
	`CREATE TABLE IF NOT EXISTS auth_users (
		id TEXT PRIMARY KEY,
		email TEXT,
		encrypted_password TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'authenticated',
		aud TEXT NOT NULL DEFAULT 'authenticated',
		app_metadata TEXT NOT NULL DEFAULT '{}',
		user_metadata TEXT NOT NULL DEFAULT '{}',
		banned_until TIMESTAMP,
		last_sign_in_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		deleted_at TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS auth_users_email_unique
		ON auth_users(email) WHERE deleted_at IS NULL AND email IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		refreshed_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS auth_sessions_user_id_idx ON auth_sessions(user_id)`,
	`CREATE TABLE IF NOT EXISTS auth_refresh_tokens (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		parent TEXT,
		revoked INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS auth_refresh_tokens_session_idx ON auth_refresh_tokens(session_id)`,
	`CREATE TABLE IF NOT EXISTS auth_config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// InstallAuthSchema creates auth_users, auth_sessions,
// auth_refresh_tokens, and auth_config, plus their lookup indexes.
// Running it against an already-installed database is a no-op.
func InstallAuthSchema(ctx context.Context, engine *sqlengine.Engine) error {
	for _, stmt := range authStatements {
		if _, err := engine.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema: install auth schema: %w", err)
		}
	}
	return nil
}
