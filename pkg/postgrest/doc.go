// Package postgrest translates PostgREST-shaped HTTP requests — a
// resource name, a query string using the PostgREST filter vocabulary,
// and an optional JSON body — into parameterized SQL runnable against
// an embedded pkg/sqlengine.Engine.
//
// Translate is the package's single entry point. Parsing a query
// string into a ParsedQuery is cached with an LRU keyed on
// (method, resource, query string), since a REST façade's request
// volume is dominated by a small number of repeated query shapes. A
// cached entry holds only what the query string itself says (the
// filters with their literal values, order, limit and offset), and
// that query string is part of the key; nothing identity-derived is
// cached, so cache hits are safe to reuse across distinct callers and
// identities.
//
// # Deviations from a literal PostgREST/Postgres translation
//
// Table references are emitted unqualified (`"notes"`, not
// `"public"."notes"`) because the embedded engine has no schemas; a
// real Postgres-backed implementation would prefix "public".
//
// PUT (upsert) lowers to SQLite's "INSERT OR REPLACE", since the
// embedded engine has no ON CONFLICT target negotiation; a real
// Postgres-backed implementation would translate PUT to
// "INSERT ... ON CONFLICT (<key>) DO UPDATE SET ...".
//
// rpc/<f> calls lower to a positional scalar call SELECT "<f>"(?, ...)
// with arguments ordered by sorted JSON key name, because SQLite has
// neither named-argument call syntax nor set-returning functions; a
// Postgres-backed implementation would emit
// SELECT * FROM "public"."<f>"(<named-args>).
//
// RETURNING is never appended by Translate itself; pkg/datarouter
// decides whether to append it based on the request's Prefer header,
// since that decision depends on information (the header) the
// translator doesn't see.
package postgrest
