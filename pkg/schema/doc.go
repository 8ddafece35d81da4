// Package schema installs the auth and storage SQL schemas into an
// embedded pkg/sqlengine.Engine and registers the scalar SQL functions
// spec's helper-function list names.
//
// # Naming deviation
//
// spec's SQL helpers are written with Postgres's dotted schema-qualified
// syntax: auth.uid(), storage.foldername(), etc. SQLite has no notion of
// a schema-qualified *function* call (only schema-qualified tables via
// ATTACH), so every function is registered under its flattened,
// underscored name: auth_uid, auth_role, auth_email, auth_jwt (these
// four by pkg/sqlengine), and auth_hash_password, auth_verify_password,
// auth_generate_token, storage_foldername, storage_filename,
// storage_extension (by this package's RegisterFunctions). A reader
// porting this engine to a real Postgres backend should reintroduce the
// dotted names.
//
// # Stored-procedure deviation
//
// auth.create_user, auth.verify_user_credentials, auth.create_session,
// auth.create_refresh_token, auth.refresh_token, auth.sign_out, and
// auth.sign_out_all are multi-statement helpers in the source
// specification. The embedded engine has no procedural SQL, so these
// live as Go methods on pkg/auth.Store instead, issuing the equivalent
// statements inside a pkg/sqlengine.Engine.Transaction. Only the pure
// scalar functions above remain real registered SQL functions.
//
// # Related Packages
//
//   - pkg/sqlengine: the engine these installers and functions run against.
//   - pkg/auth: the Go-side replacement for the non-scalar SQL helpers.
package schema
