// Package sqlengine wraps the embedded SQL engine that stands in for
// spec's external "SQL Engine Interface" boundary. It pins a single
// physical connection (mattn/go-sqlite3) for the lifetime of the process,
// matching the concurrency model described for the Data Router: every
// operation that touches user data serializes through one logical
// connection because identity claims are session-scoped state on that
// connection, not transaction-scoped.
//
// # Overview
//
// Engine.Bind sets four session variables (sub/role/email/claims JSON)
// that the registered scalar functions auth_uid/auth_role/auth_email/
// auth_jwt read back. Real Supabase exposes these as auth.uid() etc. on a
// networked Postgres; the embedded engine has no schema-qualified scalar
// functions, so names are flattened to auth_uid/auth_role/auth_email/
// auth_jwt (see pkg/schema/doc.go for the full mapping).
//
// # Related Packages
//
//   - pkg/schema: installs tables and registers the pgcrypto-equivalent
//     and storage utility scalar functions on top of this engine.
//   - pkg/pooler: serializes concurrent callers onto this single engine.
package sqlengine
