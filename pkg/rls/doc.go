// Package rls implements row-level security policy storage and
// enforcement for tables served through pkg/datarouter.
//
// SQLite has no native ROW LEVEL SECURITY feature, so policies here are
// enforced entirely in Go: a USING expression is AND-ed into the
// generated WHERE clause by the caller (pkg/datarouter), and a WITH
// CHECK expression is evaluated by running it as a scalar SQL
// expression against the literal values of the row being written,
// rather than against a live table row. This mirrors the
// context-sourced-scoping-value pattern already used by the teacher's
// organization-scoping middleware, generalized from a single tenant ID
// comparison to an arbitrary boolean SQL expression per policy.
//
// Policies reference the same auth_uid()/auth_role()/auth_email()/
// auth_jwt() functions pkg/sqlengine registers, so a USING or CHECK
// expression can read the bound identity the same way application SQL
// does.
package rls
