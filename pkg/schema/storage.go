package schema

import (
	"context"
	"fmt"

	"github.com/basestub/basestub/pkg/sqlengine"
)

var storageStatements = []string{
	`CREATE TABLE IF NOT EXISTS storage_buckets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		public INTEGER NOT NULL DEFAULT 0,
		file_size_limit INTEGER,
		allowed_mime_types TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS storage_objects (
		id TEXT PRIMARY KEY,
		bucket_id TEXT NOT NULL,
		name TEXT NOT NULL,
		owner_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		user_metadata TEXT NOT NULL DEFAULT '{}',
		version TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		last_accessed_at TIMESTAMP NOT NULL,
		UNIQUE(bucket_id, name)
	)`,
	`CREATE INDEX IF NOT EXISTS storage_objects_bucket_name_idx ON storage_objects(bucket_id, name)`,
}

// InstallStorageSchema creates storage_buckets and storage_objects.
// Row-level security on these tables is enforced in Go by
// pkg/rls.PolicyStore rather than a SQLite-native RLS feature (SQLite
// has none); pkg/rls/doc.go documents that deviation. The three
// conventional roles (anon, authenticated, service_role) have no
// counterpart to GRANT against in an embedded single-user database —
// access is instead gated entirely by the claims bound via
// pkg/sqlengine.Engine.Bind and the policies in pkg/rls.
func InstallStorageSchema(ctx context.Context, engine *sqlengine.Engine) error {
	for _, stmt := range storageStatements {
		if _, err := engine.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema: install storage schema: %w", err)
		}
	}
	return nil
}
